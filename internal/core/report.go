package core

import (
	"fmt"
	"sort"
	"strings"
)

// ValidReportText is rendered for a report with no findings.
const ValidReportText = "Arquivo válido."

// RenderReport translates a report into human-readable lines, one per finding,
// in finding order. Unknown finding kinds render an explicit line instead of
// being dropped.
func RenderReport(r *Report) string {
	if r == nil || r.Valid {
		return ValidReportText
	}
	lines := make([]string, 0, len(r.Findings))
	for _, f := range r.Findings {
		lines = append(lines, RenderFinding(f))
	}
	return strings.Join(lines, "\n")
}

// RenderFinding renders a single finding.
func RenderFinding(f Finding) string {
	switch f.Kind {
	case KindMissingColumns:
		return "Colunas faltando: " + strings.Join(f.Columns, ", ")

	case KindColumnNameMismatch:
		sources := make([]string, 0, len(f.Mapping))
		for src := range f.Mapping {
			sources = append(sources, src)
		}
		sort.Strings(sources)
		pairs := make([]string, len(sources))
		for i, src := range sources {
			pairs[i] = fmt.Sprintf("%s -> %s", src, f.Mapping[src])
		}
		line := "Colunas com nome errado: " + strings.Join(pairs, ", ")
		if len(f.Unknown) > 0 {
			line += " (desconhecidas: " + strings.Join(f.Unknown, ", ") + ")"
		}
		return line

	case KindReadError:
		return "Erro fatal de leitura: " + f.Message

	case KindDateFormat:
		return fmt.Sprintf("Formato de data inválido na coluna %s: detectado %s, esperado %s",
			f.Column, f.DetectedFormat, FormatISODate)

	case KindNumericFormat:
		return fmt.Sprintf("Formato numérico inválido na coluna %s: detectado %s",
			f.Column, f.DetectedFormat)

	case KindInvalidEnumValues:
		return fmt.Sprintf("Valores não permitidos na coluna %s: %s",
			f.Column, strings.Join(f.Values, ", "))

	default:
		return fmt.Sprintf("Achado não reconhecido (%s)", f.Kind)
	}
}

package core

// FindingKind tags a validation finding. The tag values are part of the
// report's JSON contract and must not change.
type FindingKind string

const (
	KindMissingColumns     FindingKind = "colunas_faltando"
	KindColumnNameMismatch FindingKind = "nomes_colunas"
	KindReadError          FindingKind = "erro_leitura"
	KindDateFormat         FindingKind = "formato_data"
	KindNumericFormat      FindingKind = "formato_valor"
	KindInvalidEnumValues  FindingKind = "valores_invalidos"
)

// Detected formats reported by the date and numeric checks.
const (
	FormatISODate        = "YYYY-MM-DD"
	FormatISODatePartial = "YYYY-MM-DD (partial)"
	FormatBRDate         = "DD/MM/YYYY"
	FormatUnknown        = "unknown"
	FormatTextOrLocal    = "text_or_localized"
)

// Finding is one validation problem. Only the fields relevant to Kind are set.
type Finding struct {
	Kind FindingKind `json:"tipo"`

	// MissingColumns
	Columns []string `json:"colunas,omitempty"`

	// ColumnNameMismatch: source name -> canonical name, plus columns that
	// matched neither a canonical name nor an alias.
	Mapping map[string]string `json:"mapeamento,omitempty"`
	Unknown []string          `json:"colunas_desconhecidas,omitempty"`

	// ReadError
	Message string `json:"mensagem,omitempty"`

	// DateFormatError, NumericFormatError, InvalidEnumValues
	Column         string   `json:"coluna,omitempty"`
	DetectedFormat string   `json:"formato_detectado,omitempty"`
	Values         []string `json:"valores,omitempty"`
}

// Report is the result of one validation pass.
// Valid is true iff Findings is empty; ErrorCount counts findings, not rows.
type Report struct {
	Valid      bool      `json:"valido"`
	ErrorCount int       `json:"total_erros"`
	Findings   []Finding `json:"detalhes"`
}

// NewReport builds a report from findings, keeping Valid and ErrorCount consistent.
func NewReport(findings []Finding) *Report {
	if findings == nil {
		findings = []Finding{}
	}
	return &Report{
		Valid:      len(findings) == 0,
		ErrorCount: len(findings),
		Findings:   findings,
	}
}

// ReadErrorReport returns the single-finding report produced when loading fails.
func ReadErrorReport(err error) *Report {
	return NewReport([]Finding{{Kind: KindReadError, Message: err.Error()}})
}

// Has reports whether the report contains a finding of the given kind.
func (r *Report) Has(kind FindingKind) bool {
	for _, f := range r.Findings {
		if f.Kind == kind {
			return true
		}
	}
	return false
}

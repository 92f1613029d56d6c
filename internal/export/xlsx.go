// Package export renders validation reports as XLSX workbooks.
package export

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/JonMunkholm/csvguard/internal/core"
	"github.com/xuri/excelize/v2"
)

// ContentType is the MIME type of an XLSX workbook.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

const (
	summarySheet  = "Resumo"
	findingsSheet = "Erros"
)

// Meta describes the file a report belongs to.
type Meta struct {
	FileName    string
	Template    string
	Fingerprint string
	Encoding    string
}

var findingHeaders = []string{"#", "tipo", "coluna", "formato_detectado", "valores", "detalhe"}

// Workbook builds a two-sheet workbook: a summary and one row per finding.
func Workbook(r *core.Report, meta Meta) (*excelize.File, error) {
	f := excelize.NewFile()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(findingsSheet); err != nil {
		return nil, err
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}

	summary := [][2]any{
		{"arquivo", meta.FileName},
		{"template", meta.Template},
		{"hash_estrutura", meta.Fingerprint},
		{"encoding", meta.Encoding},
		{"legivel", strconv.FormatBool(!r.Has(core.KindReadError))},
		{"valido", strconv.FormatBool(r.Valid)},
		{"total_erros", r.ErrorCount},
	}
	for i, kv := range summary {
		row := i + 1
		if err := setRow(f, summarySheet, row, kv[0], kv[1]); err != nil {
			return nil, err
		}
	}
	if err := f.SetCellStyle(summarySheet, "A1", fmt.Sprintf("A%d", len(summary)), bold); err != nil {
		return nil, err
	}
	if err := f.SetColWidth(summarySheet, "A", "A", 18); err != nil {
		return nil, err
	}
	if err := f.SetColWidth(summarySheet, "B", "B", 40); err != nil {
		return nil, err
	}

	headers := make([]any, len(findingHeaders))
	for i, h := range findingHeaders {
		headers[i] = h
	}
	if err := setRow(f, findingsSheet, 1, headers...); err != nil {
		return nil, err
	}
	last, _ := excelize.CoordinatesToCellName(len(findingHeaders), 1)
	if err := f.SetCellStyle(findingsSheet, "A1", last, bold); err != nil {
		return nil, err
	}

	for i, fd := range r.Findings {
		err := setRow(f, findingsSheet, i+2,
			i+1,
			string(fd.Kind),
			findingColumn(fd),
			fd.DetectedFormat,
			strings.Join(fd.Values, ", "),
			core.RenderFinding(fd),
		)
		if err != nil {
			return nil, err
		}
	}
	if err := f.SetColWidth(findingsSheet, "B", "E", 22); err != nil {
		return nil, err
	}
	if err := f.SetColWidth(findingsSheet, "F", "F", 80); err != nil {
		return nil, err
	}

	if idx, err := f.GetSheetIndex(findingsSheet); err == nil && !r.Valid {
		f.SetActiveSheet(idx)
	}
	return f, nil
}

// Write renders the workbook for r to w.
func Write(w io.Writer, r *core.Report, meta Meta) error {
	f, err := Workbook(r, meta)
	if err != nil {
		return fmt.Errorf("build workbook: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// SaveAs renders the workbook for r to a file.
func SaveAs(path string, r *core.Report, meta Meta) error {
	f, err := Workbook(r, meta)
	if err != nil {
		return fmt.Errorf("build workbook: %w", err)
	}
	defer f.Close()
	return f.SaveAs(path)
}

func setRow(f *excelize.File, sheet string, row int, values ...any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}

// findingColumn names the column(s) a finding is about.
func findingColumn(fd core.Finding) string {
	switch {
	case fd.Column != "":
		return fd.Column
	case len(fd.Columns) > 0:
		return strings.Join(fd.Columns, ", ")
	case len(fd.Mapping) > 0:
		src := make([]string, 0, len(fd.Mapping))
		for k := range fd.Mapping {
			src = append(src, k)
		}
		sort.Strings(src)
		return strings.Join(src, ", ")
	default:
		return ""
	}
}

package core

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"testing"
)

// ============================================================================
// Conversion Benchmarks
// ============================================================================

// BenchmarkConvertCell benchmarks cell conversion for ingestion.
// This runs once per cell of every ingested file.
func BenchmarkConvertCell(b *testing.B) {
	testCases := []struct {
		raw string
		t   DataType
	}{
		{"2024-01-15", TypeDate},
		{"1234.56", TypeDecimal},
		{"-0.5", TypeDecimal},
		{"42", TypeInteger},
		{"PIX", TypeString},
		{"", TypeDecimal},
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for _, tc := range testCases {
			ConvertCell(tc.raw, tc.t)
		}
	}
}

// BenchmarkIsBRDate benchmarks the localized date check used by validation.
func BenchmarkIsBRDate(b *testing.B) {
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		IsBRDate("15/01/2024")
	}
}

func BenchmarkToPgNumeric(b *testing.B) {
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ToPgNumeric("1234567.89")
	}
}

// ============================================================================
// Fingerprint Benchmarks
// ============================================================================

func BenchmarkFingerprint(b *testing.B) {
	columns := []string{"data_transacao", "valor", "conta_origem", "conta_destino", "descricao", "categoria", "tipo"}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Fingerprint(columns)
	}
}

// BenchmarkTypedFingerprint reads every value, so it scales with rows.
func BenchmarkTypedFingerprint(b *testing.B) {
	ds := mustParse(b, generateTestCSV(1000))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		TypedFingerprint(ds)
	}
}

// ============================================================================
// Loading Benchmarks
// ============================================================================

func BenchmarkParseCSV(b *testing.B) {
	data := generateTestCSV(100)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ParseCSV(data, "utf-8", ';')
	}
}

func BenchmarkParseCSV_Large(b *testing.B) {
	data := generateTestCSV(10000)

	b.SetBytes(int64(len(data)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ParseCSV(data, "utf-8", ';')
	}
}

// BenchmarkLoadBytes includes encoding and delimiter detection.
func BenchmarkLoadBytes(b *testing.B) {
	data := generateTestCSV(1000)
	loader := NewLoader(NewDetector())

	b.SetBytes(int64(len(data)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := loader.LoadBytes(data); err != nil {
			b.Fatal(err)
		}
	}
}

// ============================================================================
// Validation Benchmarks
// ============================================================================

func BenchmarkValidate(b *testing.B) {
	for _, rows := range []int{100, 10000} {
		b.Run(fmt.Sprintf("rows=%d", rows), func(b *testing.B) {
			ds := mustParse(b, generateTestCSV(rows))
			v := NewValidator(benchTemplate())

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				v.Validate(ds)
			}
		})
	}
}

// BenchmarkValidate_Invalid exercises the finding paths: aliases, localized
// dates and numbers, and enum violations.
func BenchmarkValidate_Invalid(b *testing.B) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Comma = ';'
	w.Write([]string{"Data", "Valor", "conta_origem", "tipo"})
	for i := 0; i < 1000; i++ {
		w.Write([]string{"15/01/2024", "1.234,56", "0001-9", "SAQUE"})
	}
	w.Flush()

	ds := mustParse(b, buf.Bytes())
	v := NewValidator(benchTemplate())

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		v.Validate(ds)
	}
}

func BenchmarkRenderReport(b *testing.B) {
	r := NewReport([]Finding{
		{Kind: KindMissingColumns, Columns: []string{"conta_origem"}},
		{Kind: KindColumnNameMismatch, Mapping: map[string]string{"Data": "data_transacao", "Valor": "valor"}},
		{Kind: KindDateFormat, Column: "data_transacao", DetectedFormat: FormatBRDate},
		{Kind: KindInvalidEnumValues, Column: "tipo", Values: []string{"SAQUE", "ESTORNO"}},
	})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		RenderReport(r)
	}
}

// ============================================================================
// Parallel Benchmarks
// ============================================================================

func BenchmarkValidateParallel(b *testing.B) {
	ds := mustParse(b, generateTestCSV(1000))
	v := NewValidator(benchTemplate())

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			v.Validate(ds)
		}
	})
}

func BenchmarkConvertCellParallel(b *testing.B) {
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			ConvertCell("1234.56", TypeDecimal)
		}
	})
}

// ============================================================================
// Helper Functions
// ============================================================================

func benchTemplate() *Template {
	return &Template{
		Name: "bench",
		Columns: []ColumnSpec{
			{Name: "data_transacao", Required: true, Aliases: []string{"Data"}, DataType: TypeDate},
			{Name: "valor", Required: true, Aliases: []string{"Valor"}, DataType: TypeDecimal},
			{Name: "conta_origem", Required: true},
			{Name: "descricao"},
			{Name: "tipo", Validation: &ColumnValidation{AllowedValues: []string{"CREDITO", "DEBITO", "PIX"}}},
		},
	}
}

func mustParse(b *testing.B, data []byte) *Dataset {
	b.Helper()
	ds, err := ParseCSV(data, "utf-8", ';')
	if err != nil {
		b.Fatal(err)
	}
	return ds
}

// generateTestCSV generates semicolon-delimited CSV data with the specified
// number of rows.
func generateTestCSV(rows int) []byte {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Comma = ';'

	// Header
	w.Write([]string{"data_transacao", "valor", "conta_origem", "descricao", "tipo"})

	// Data rows
	for i := 0; i < rows; i++ {
		w.Write([]string{
			"2024-01-15",
			"1234.56",
			"0001-9",
			"Pagamento fornecedor",
			"PIX",
		})
	}
	w.Flush()

	return buf.Bytes()
}

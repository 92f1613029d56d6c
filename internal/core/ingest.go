package core

// ingest.go maps validated datasets onto the ingestion table.
//
// The table has one column per template column, typed from tipo_dado, plus
// the bookkeeping columns id, run_id and ingested_at added by the store.
// Cells are coerced per column type; a row whose required column is NULL
// after coercion is dropped and counted as an error row.

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// DefaultIngestTable is the table validated rows are written to.
const DefaultIngestTable = "transacoes_financeiras"

// IngestionSink persists a validated dataset and returns the number of rows written.
type IngestionSink interface {
	Ingest(ctx context.Context, runID string, tpl *Template, ds *Dataset) (int, error)
}

// IngestColumn is one typed column of the ingestion table.
type IngestColumn struct {
	Name     string
	Type     DataType
	Required bool
}

// IngestPlan describes how a template maps onto the ingestion table.
type IngestPlan struct {
	Table   string
	Columns []IngestColumn
}

// CellConverter coerces a raw cell to a driver value. The bool is false when
// the cell is NULL after coercion.
type CellConverter func(raw string, t DataType) (any, bool)

// NewIngestPlan builds the plan for tpl, keeping template column order.
func NewIngestPlan(table string, tpl *Template) IngestPlan {
	if table == "" {
		table = DefaultIngestTable
	}
	cols := make([]IngestColumn, len(tpl.Columns))
	for i, c := range tpl.Columns {
		cols[i] = IngestColumn{Name: c.Name, Type: c.DataType, Required: c.Required}
	}
	return IngestPlan{Table: table, Columns: cols}
}

// ColumnNames returns the data column names in plan order.
func (p IngestPlan) ColumnNames() []string {
	names := make([]string, len(p.Columns))
	for i, c := range p.Columns {
		names[i] = c.Name
	}
	return names
}

// Rows converts ds into driver values aligned with p.Columns. Columns absent
// from the dataset are NULL.
func (p IngestPlan) Rows(ds *Dataset, convert CellConverter) (rows [][]any, dropped int) {
	idx := make([]int, len(p.Columns))
	for i, c := range p.Columns {
		idx[i] = ds.ColumnIndex(c.Name)
	}

	rows = make([][]any, 0, ds.Len())
	for _, raw := range ds.Rows {
		row := make([]any, len(p.Columns))
		keep := true
		for i, c := range p.Columns {
			cell := ""
			if idx[i] >= 0 {
				cell = raw[idx[i]]
			}
			v, ok := convert(cell, c.Type)
			if !ok {
				if c.Required {
					keep = false
					break
				}
				v = nil
			}
			row[i] = v
		}
		if !keep {
			dropped++
			continue
		}
		rows = append(rows, row)
	}
	return rows, dropped
}

// ConvertCell coerces a cell to a plain driver value: dates become
// YYYY-MM-DD text, decimals their canonical string, integers int64.
// Missing cells, NA tokens included, are not converted.
func ConvertCell(raw string, t DataType) (any, bool) {
	if IsMissing(raw) {
		return nil, false
	}
	switch t {
	case TypeDate:
		d, ok := ParseDate(raw)
		if !ok {
			return nil, false
		}
		return d.Format(time.DateOnly), true
	case TypeDecimal:
		d, ok := ParseDecimal(raw)
		if !ok {
			return nil, false
		}
		return d.String(), true
	case TypeInteger:
		d, ok := ParseDecimal(raw)
		if !ok || !d.IsInteger() {
			return nil, false
		}
		return d.IntPart(), true
	default:
		s := CleanCell(raw)
		if s == "" {
			return nil, false
		}
		return s, true
	}
}

// PgCell coerces a cell to the pgtype value for its column type.
func PgCell(raw string, t DataType) (any, bool) {
	if IsMissing(raw) {
		return nil, false
	}
	switch t {
	case TypeDate:
		d := ToPgDate(raw)
		return d, d.Valid
	case TypeDecimal:
		n := ToPgNumeric(raw)
		return n, n.Valid
	case TypeInteger:
		n := ToPgInt8(raw)
		return n, n.Valid
	default:
		s := ToPgText(CleanCell(raw))
		return s, s.Valid
	}
}

// ToPgInt8 converts a whole-number string to pgtype.Int8.
func ToPgInt8(s string) pgtype.Int8 {
	d, ok := ParseDecimal(s)
	if !ok || !d.IsInteger() || !fitsInt64(d) {
		return pgtype.Int8{Valid: false}
	}
	return pgtype.Int8{Int64: d.IntPart(), Valid: true}
}

var (
	minInt64 = decimal.NewFromInt(-1 << 63)
	maxInt64 = decimal.NewFromInt(1<<63 - 1)
)

func fitsInt64(d decimal.Decimal) bool {
	return d.GreaterThanOrEqual(minInt64) && d.LessThanOrEqual(maxInt64)
}

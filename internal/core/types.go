package core

import "time"

// DataType is the declared type of a template column (tipo_dado).
type DataType string

const (
	TypeString  DataType = "STRING"
	TypeDate    DataType = "DATE"
	TypeDecimal DataType = "DECIMAL"
	TypeInteger DataType = "INTEGER"
)

// ColumnSpec describes one canonical column of a schema template.
type ColumnSpec struct {
	Name       string            `json:"-" validate:"required"`
	Required   bool              `json:"obrigatorio"`
	Aliases    []string          `json:"aliases,omitempty" validate:"dive,required"`
	DataType   DataType          `json:"tipo_dado,omitempty"`
	Validation *ColumnValidation `json:"validacao,omitempty"`
}

// ColumnValidation holds optional value constraints for a column.
type ColumnValidation struct {
	AllowedValues []string `json:"valores_permitidos,omitempty" validate:"dive,required"`
}

// AllowedValues returns the enumerated value set, or nil when the column is unconstrained.
func (c ColumnSpec) AllowedValues() []string {
	if c.Validation == nil {
		return nil
	}
	return c.Validation.AllowedValues
}

// Template is an immutable schema template. Columns keep their declaration order.
type Template struct {
	Name    string       `validate:"required"`
	Columns []ColumnSpec `validate:"required,min=1,dive"`
}

// Column returns the column spec with the given canonical name.
func (t *Template) Column(name string) (ColumnSpec, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return ColumnSpec{}, false
}

// Dataset is a CSV file loaded into memory. Empty cells are missing values.
type Dataset struct {
	Columns   []string
	Rows      [][]string
	Encoding  string
	Delimiter rune
}

// Len returns the number of data rows.
func (d *Dataset) Len() int {
	return len(d.Rows)
}

// HasColumn reports whether the dataset contains a column with the exact name.
func (d *Dataset) HasColumn(name string) bool {
	return d.ColumnIndex(name) >= 0
}

// ColumnIndex returns the position of the named column or -1.
func (d *Dataset) ColumnIndex(name string) int {
	for i, c := range d.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Values returns every cell of the named column in row order.
func (d *Dataset) Values(name string) []string {
	idx := d.ColumnIndex(name)
	if idx < 0 {
		return nil
	}
	out := make([]string, len(d.Rows))
	for i, row := range d.Rows {
		out[i] = row[idx]
	}
	return out
}

// ScriptSource records where a correction script came from.
type ScriptSource string

const (
	SourceNone      ScriptSource = "none"
	SourceCache     ScriptSource = "cache"
	SourceGenerator ScriptSource = "generator"
	SourceManual    ScriptSource = "manual"
)

// Script is a cached correction script keyed by structural fingerprint.
type Script struct {
	ID          int64     `json:"id"`
	Fingerprint string    `json:"hash_estrutura"`
	Body        string    `json:"script_python"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// RunPhase indicates how far a pipeline run progressed.
type RunPhase string

const (
	PhaseLoaded    RunPhase = "loaded"
	PhaseValid     RunPhase = "valid"
	PhaseResolved  RunPhase = "script_resolved"
	PhaseCorrected RunPhase = "corrected"
	PhaseIngested  RunPhase = "ingested"
	PhaseFailed    RunPhase = "failed"
)

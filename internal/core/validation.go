package core

// validation.go checks a loaded dataset against a schema template.
//
// The battery runs in a fixed order and every check runs to completion:
//  1. Required columns: canonical name or any alias must be present
//  2. Name mapping: non-canonical columns matched against alias lists
//  3. Per-column checks in template order, for columns present in the data:
//     DATE format, DECIMAL/INTEGER coercion, then enumerated values
//
// Only a load failure short-circuits, producing a single ReadError finding.
// The validator is pure: the same dataset always yields the same report.

import (
	"errors"
	"strings"
)

// DefaultDateThreshold is the share of rows that must be YYYY-MM-DD for a
// DATE column to pass.
const DefaultDateThreshold = 0.8

// Validator validates datasets against one template.
type Validator struct {
	tpl           *Template
	dateThreshold float64
}

// ValidatorOption configures a Validator.
type ValidatorOption func(*Validator)

// WithDateThreshold overrides DefaultDateThreshold. Values outside (0, 1] are ignored.
func WithDateThreshold(t float64) ValidatorOption {
	return func(v *Validator) {
		if t > 0 && t <= 1 {
			v.dateThreshold = t
		}
	}
}

// NewValidator creates a validator for tpl.
func NewValidator(tpl *Template, opts ...ValidatorOption) *Validator {
	v := &Validator{tpl: tpl, dateThreshold: DefaultDateThreshold}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Template returns the template this validator checks against.
func (v *Validator) Template() *Template {
	return v.tpl
}

// ValidateFile loads path and validates it. A load failure yields a
// ReadError report and a nil dataset.
func (v *Validator) ValidateFile(loader *Loader, path string) (*Report, *Dataset) {
	ds, err := loader.Load(path)
	if err != nil {
		return readFailure(err), nil
	}
	return v.Validate(ds), ds
}

// ValidateBytes is ValidateFile for in-memory input.
func (v *Validator) ValidateBytes(loader *Loader, data []byte) (*Report, *Dataset) {
	ds, err := loader.LoadBytes(data)
	if err != nil {
		return readFailure(err), nil
	}
	return v.Validate(ds), ds
}

func readFailure(err error) *Report {
	var re *ReadError
	if errors.As(err, &re) && re.Err != nil {
		return ReadErrorReport(re.Err)
	}
	return ReadErrorReport(err)
}

// Validate runs the full check battery on ds.
func (v *Validator) Validate(ds *Dataset) *Report {
	var findings []Finding

	if missing := v.missingColumns(ds); len(missing) > 0 {
		findings = append(findings, Finding{Kind: KindMissingColumns, Columns: missing})
	}

	if mapping, unknown := v.nameMapping(ds); len(mapping) > 0 {
		findings = append(findings, Finding{
			Kind:    KindColumnNameMismatch,
			Mapping: mapping,
			Unknown: unknown,
		})
	}

	for _, col := range v.tpl.Columns {
		if !ds.HasColumn(col.Name) {
			continue
		}
		values := ds.Values(col.Name)

		switch col.DataType {
		case TypeDate:
			if ok, detected := v.checkDate(values); !ok {
				findings = append(findings, Finding{
					Kind:           KindDateFormat,
					Column:         col.Name,
					DetectedFormat: detected,
				})
			}
		case TypeDecimal:
			if !allNumeric(values, false) {
				findings = append(findings, Finding{
					Kind:           KindNumericFormat,
					Column:         col.Name,
					DetectedFormat: FormatTextOrLocal,
				})
			}
		case TypeInteger:
			if !allNumeric(values, true) {
				findings = append(findings, Finding{
					Kind:           KindNumericFormat,
					Column:         col.Name,
					DetectedFormat: FormatTextOrLocal,
				})
			}
		}

		if allowed := col.AllowedValues(); len(allowed) > 0 {
			if bad := invalidEnumValues(values, allowed); len(bad) > 0 {
				findings = append(findings, Finding{
					Kind:   KindInvalidEnumValues,
					Column: col.Name,
					Values: bad,
				})
			}
		}
	}

	return NewReport(findings)
}

// missingColumns lists required columns with neither the canonical name nor
// any alias present, in template order.
func (v *Validator) missingColumns(ds *Dataset) []string {
	var missing []string
	for _, col := range v.tpl.Columns {
		if !col.Required || ds.HasColumn(col.Name) {
			continue
		}
		found := false
		for _, alias := range col.Aliases {
			if ds.HasColumn(alias) {
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, col.Name)
		}
	}
	return missing
}

// nameMapping suggests renames for dataset columns that match an alias and
// collects the columns that match nothing. Dataset column order is kept.
func (v *Validator) nameMapping(ds *Dataset) (map[string]string, []string) {
	mapping := make(map[string]string)
	var unknown []string

	for _, name := range ds.Columns {
		if _, ok := v.tpl.Column(name); ok {
			continue
		}
		target := ""
		for _, col := range v.tpl.Columns {
			for _, alias := range col.Aliases {
				if alias == name {
					target = col.Name
					break
				}
			}
			if target != "" {
				break
			}
		}
		if target != "" {
			mapping[name] = target
		} else {
			unknown = append(unknown, name)
		}
	}
	return mapping, unknown
}

// checkDate applies the threshold over all rows, missing cells included.
// On failure it reports whether the non-ISO remainder looks like DD/MM/YYYY.
func (v *Validator) checkDate(values []string) (bool, string) {
	if len(values) == 0 {
		return true, FormatISODate
	}

	iso := 0
	var rest []string
	for _, val := range values {
		if IsISODate(val) {
			iso++
			continue
		}
		if !IsMissing(val) {
			rest = append(rest, val)
		}
	}

	if iso == 0 && len(rest) == 0 {
		// Every cell is missing.
		return true, FormatISODate
	}
	if float64(iso) >= float64(len(values))*v.dateThreshold {
		return true, FormatISODate
	}

	if len(rest) > 0 {
		br := 0
		for _, val := range rest {
			if IsBRDate(val) {
				br++
			}
		}
		if float64(br) >= float64(len(rest))*v.dateThreshold {
			return false, FormatBRDate
		}
	}
	if iso > 0 {
		return false, FormatISODatePartial
	}
	return false, FormatUnknown
}

// allNumeric reports whether every non-missing value coerces to a number.
func allNumeric(values []string, integral bool) bool {
	for _, val := range values {
		if IsMissing(val) {
			continue
		}
		if integral {
			if !IsInteger(val) {
				return false
			}
			continue
		}
		if _, ok := ParseDecimal(val); !ok {
			return false
		}
	}
	return true
}

// invalidEnumValues returns distinct non-missing values outside allowed,
// compared case-insensitively, in first-occurrence order.
func invalidEnumValues(values, allowed []string) []string {
	set := make(map[string]bool, len(allowed))
	for _, a := range allowed {
		set[strings.ToUpper(strings.TrimSpace(a))] = true
	}

	seen := make(map[string]bool)
	var bad []string
	for _, val := range values {
		if IsMissing(val) {
			continue
		}
		val = strings.TrimSpace(val)
		key := strings.ToUpper(val)
		if set[key] || seen[key] {
			continue
		}
		seen[key] = true
		bad = append(bad, val)
	}
	return bad
}

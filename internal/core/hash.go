package core

// hash.go derives the structural fingerprint used as the script cache key.
//
// The default fingerprint is a pure function of the column-name set: names
// are deduplicated, sorted, joined with "," and hashed to a 128-bit hex
// digest. A backslash or "," inside a name is escaped with a backslash first. Column order, row content, delimiter and encoding do not affect it.
//
// The typed mode suffixes each name with the kind of data the column holds,
// so a cached script is not reused for a file with the same columns but, for
// example, dates in a different localization.

import (
	"crypto/md5"
	"encoding/hex"
	"sort"
	"strings"
)

// FingerprintSeparator joins sorted column names before hashing.
const FingerprintSeparator = ","

// Column kinds used by the typed fingerprint.
const (
	ColumnEmpty   = "empty"
	ColumnISODate = "date_iso"
	ColumnBRDate  = "date_br"
	ColumnNumeric = "numeric"
	ColumnText    = "text"
)

// Hasher computes structural fingerprints.
type Hasher struct {
	Typed bool
}

// Fingerprint returns the fingerprint of ds according to the hasher mode.
func (h Hasher) Fingerprint(ds *Dataset) string {
	if !h.Typed {
		return Fingerprint(ds.Columns)
	}
	return TypedFingerprint(ds)
}

// nameEscaper keeps a name containing the separator from reading as two
// names. Names without a backslash or separator are left unchanged.
var nameEscaper = strings.NewReplacer(`\`, `\\`, FingerprintSeparator, `\`+FingerprintSeparator)

// Fingerprint hashes a column-name set.
func Fingerprint(columns []string) string {
	names := uniqueSorted(columns)
	for i, name := range names {
		names[i] = nameEscaper.Replace(name)
	}
	return digest(names)
}

// TypedFingerprint hashes "name:kind" pairs, where kind is inferred from the
// column's values.
func TypedFingerprint(ds *Dataset) string {
	names := uniqueSorted(ds.Columns)
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = nameEscaper.Replace(name) + ":" + InferKind(ds.Values(name))
	}
	return digest(parts)
}

func uniqueSorted(columns []string) []string {
	seen := make(map[string]bool, len(columns))
	out := make([]string, 0, len(columns))
	for _, c := range columns {
		if seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

func digest(parts []string) string {
	sum := md5.Sum([]byte(strings.Join(parts, FingerprintSeparator)))
	return hex.EncodeToString(sum[:])
}

// InferKind classifies a column by the format shared by all its non-missing values.
func InferKind(values []string) string {
	iso, br, num, present := 0, 0, 0, 0
	for _, v := range values {
		if IsMissing(v) {
			continue
		}
		present++
		switch {
		case IsISODate(v):
			iso++
		case IsBRDate(v):
			br++
		default:
			if _, ok := ParseDecimal(v); ok {
				num++
			}
		}
	}

	switch {
	case present == 0:
		return ColumnEmpty
	case iso == present:
		return ColumnISODate
	case br == present:
		return ColumnBRDate
	case num == present:
		return ColumnNumeric
	default:
		return ColumnText
	}
}

package core

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"
)

// DefaultSampleLines is the number of raw lines handed to the correction generator.
const DefaultSampleLines = 5

// Loader parses CSV files using detected encoding and delimiter.
type Loader struct {
	detector *Detector
}

// NewLoader creates a loader. A nil detector uses NewDetector().
func NewLoader(detector *Detector) *Loader {
	if detector == nil {
		detector = NewDetector()
	}
	return &Loader{detector: detector}
}

// Load reads and parses the file at path. Any failure is returned as *ReadError.
// The returned dataset records the encoding that was finally used.
func (l *Loader) Load(path string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ReadError{Path: path, Err: err}
	}
	ds, err := l.LoadBytes(data)
	if err != nil {
		var re *ReadError
		if errors.As(err, &re) {
			re.Path = path
		}
		return nil, err
	}
	return ds, nil
}

// LoadBytes parses an in-memory CSV file.
//
// When parsing with the detected encoding fails and that encoding belongs to
// the UTF-8 family (utf-8 or ascii), the parse is retried once
// with Latin-1 using the same delimiter. Other failures are returned as
// *ReadError.
func (l *Loader) LoadBytes(data []byte) (*Dataset, error) {
	det, err := l.detector.DetectBytes(data)
	if err != nil {
		return nil, &ReadError{Err: err}
	}

	ds, err := ParseCSV(data, det.Encoding.Encoding, det.Delimiter)
	if err == nil {
		return ds, nil
	}

	if len(det.Encoding.Fallbacks) == 0 {
		return nil, &ReadError{Encoding: det.Encoding.Encoding, Err: err}
	}

	// Single retry with the same delimiter
	fb := det.Encoding.Fallbacks[0]
	ds, err = ParseCSV(data, fb, det.Delimiter)
	if err != nil {
		return nil, &ReadError{Encoding: fb, Err: err}
	}
	return ds, nil
}

// ParseCSV parses data with an explicit encoding and delimiter.
//
// Rows longer than the header are an error. Shorter rows are padded with
// empty (missing) cells. Header names are whitespace-trimmed.
func ParseCSV(data []byte, enc string, delim rune) (*Dataset, error) {
	if isUTF8Family(enc) {
		if off := invalidUTF8Offset(data); off >= 0 {
			return nil, fmt.Errorf("'%s' codec can't decode byte 0x%02x in position %d: invalid start byte",
				normalizeEncoding(enc), data[off], off)
		}
	}

	decoded, err := NewDecodingReader(bytes.NewReader(data), enc)
	if err != nil {
		return nil, err
	}

	cr := csv.NewReader(decoded)
	cr.Comma = delim
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, errors.New("no columns to parse from file")
	}
	if err != nil {
		return nil, fmt.Errorf("invalid csv: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	ds := &Dataset{
		Columns:   header,
		Encoding:  normalizeEncoding(enc),
		Delimiter: delim,
	}
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("invalid csv: %w", err)
		}
		if len(rec) > len(header) {
			line, _ := cr.FieldPos(0)
			return nil, fmt.Errorf("invalid csv: line %d: expected %d fields, saw %d", line, len(header), len(rec))
		}
		if len(rec) < len(header) {
			padded := make([]string, len(header))
			copy(padded, rec)
			rec = padded
		}
		ds.Rows = append(ds.Rows, rec)
	}
	return ds, nil
}

// invalidUTF8Offset returns the position of the first byte that is not part
// of a valid UTF-8 sequence, or -1.
func invalidUTF8Offset(data []byte) int {
	if utf8.Valid(data) {
		return -1
	}
	for i := 0; i < len(data); {
		r, size := utf8.DecodeRune(data[i:])
		if r == utf8.RuneError && size == 1 {
			return i
		}
		i += size
	}
	return -1
}

// ReadSample returns the first n raw lines of the file decoded with enc.
func ReadSample(path, enc string, n int) (string, error) {
	if n <= 0 {
		n = DefaultSampleLines
	}
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	decoded, err := NewDecodingReader(f, enc)
	if err != nil {
		return "", err
	}

	br := bufio.NewReader(decoded)
	var b strings.Builder
	for i := 0; i < n; i++ {
		line, err := br.ReadString('\n')
		b.WriteString(line)
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("read sample: %w", err)
		}
	}
	return b.String(), nil
}

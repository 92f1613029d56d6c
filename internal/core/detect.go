package core

// detect.go guesses the text encoding and column delimiter of a CSV file.
//
// Both guesses are heuristics. The encoding is inferred from a bounded byte
// prefix (DetectionBudget bytes) and the delimiter from the first line only,
// so sparse headers or quoted headers spanning several lines can be
// misclassified. Each concern sits behind its own strategy interface so new
// encodings or delimiters can be added without touching the validator.

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/saintfish/chardet"
)

// DetectionBudget is the number of leading bytes inspected for encoding detection.
const DetectionBudget = 10000

// DefaultDelimiter is used when no candidate wins outright.
const DefaultDelimiter = ','

// DefaultDelimiters are the candidate delimiters, in tie-break order.
var DefaultDelimiters = []rune{',', ';', '\t', '|'}

// EncodingGuess is a ranked encoding guess plus the encodings to try if
// parsing with the guess fails.
type EncodingGuess struct {
	Encoding   string   `json:"encoding"`
	Confidence int      `json:"confidence"`
	Fallbacks  []string `json:"fallbacks,omitempty"`
}

// Detection is the combined result of encoding and delimiter detection.
type Detection struct {
	Encoding  EncodingGuess `json:"encoding"`
	Delimiter rune          `json:"-"`
}

// EncodingDetector infers a charset from a raw byte prefix.
type EncodingDetector interface {
	DetectEncoding(prefix []byte) EncodingGuess
}

// DelimiterDetector picks a delimiter given the decoded first line of a file.
type DelimiterDetector interface {
	DetectDelimiter(firstLine string) rune
}

// fallbackChain returns the encodings to retry after a failed parse.
// Only UTF-8 family guesses, ascii included, get the single-byte Latin-1 retry.
func fallbackChain(enc string) []string {
	if isUTF8Family(enc) {
		return []string{EncodingLatin1}
	}
	return nil
}

func guess(enc string, confidence int) EncodingGuess {
	return EncodingGuess{Encoding: enc, Confidence: confidence, Fallbacks: fallbackChain(enc)}
}

// ChardetDetector detects encodings statistically. Pure ASCII and valid UTF-8
// prefixes are recognized directly; anything else goes to chardet.
type ChardetDetector struct {
	detector *chardet.Detector
}

// NewChardetDetector creates a detector backed by chardet's text detector.
func NewChardetDetector() *ChardetDetector {
	return &ChardetDetector{detector: chardet.NewTextDetector()}
}

// DetectEncoding implements EncodingDetector. It falls back to UTF-8 when
// detection is inconclusive or names an encoding that cannot be decoded.
func (d *ChardetDetector) DetectEncoding(prefix []byte) EncodingGuess {
	if len(prefix) == 0 {
		return guess(EncodingUTF8, 0)
	}
	if isAllASCII(prefix) {
		return guess(EncodingASCII, 100)
	}

	// The byte budget may cut a multi-byte sequence in half
	trimmed := prefix[:len(prefix)-incompleteTrailingBytes(prefix)]
	if utf8.Valid(trimmed) {
		return guess(EncodingUTF8, 100)
	}

	res, err := d.detector.DetectBest(prefix)
	if err != nil || res == nil || res.Charset == "" {
		return guess(EncodingUTF8, 0)
	}
	name := normalizeEncoding(res.Charset)
	if _, err := resolveEncoding(name); err != nil {
		return guess(EncodingUTF8, 0)
	}
	return guess(name, res.Confidence)
}

// isAllASCII returns true if all bytes are ASCII (< 128).
func isAllASCII(data []byte) bool {
	for _, b := range data {
		if b >= 0x80 {
			return false
		}
	}
	return true
}

// CountingDelimiterDetector returns the candidate occurring most often in the
// first line. Ties for the top count and lines with no candidate at all
// resolve to DefaultDelimiter.
type CountingDelimiterDetector struct {
	Candidates []rune
}

// DetectDelimiter implements DelimiterDetector.
func (d CountingDelimiterDetector) DetectDelimiter(firstLine string) rune {
	candidates := d.Candidates
	if len(candidates) == 0 {
		candidates = DefaultDelimiters
	}

	best, bestCount, tied := DefaultDelimiter, 0, false
	for _, c := range candidates {
		n := strings.Count(firstLine, string(c))
		switch {
		case n > bestCount:
			best, bestCount, tied = c, n, false
		case n == bestCount && n > 0:
			tied = true
		}
	}
	if bestCount == 0 || tied {
		return DefaultDelimiter
	}
	return best
}

// Detector combines an encoding strategy and a delimiter strategy.
type Detector struct {
	Encoding  EncodingDetector
	Delimiter DelimiterDetector
	Budget    int
}

// NewDetector returns a detector using chardet and first-line counting.
func NewDetector() *Detector {
	return &Detector{
		Encoding:  NewChardetDetector(),
		Delimiter: CountingDelimiterDetector{Candidates: DefaultDelimiters},
		Budget:    DetectionBudget,
	}
}

func (d *Detector) budget() int {
	if d.Budget <= 0 {
		return DetectionBudget
	}
	return d.Budget
}

// Detect inspects the file at path.
func (d *Detector) Detect(path string) (Detection, error) {
	f, err := os.Open(path)
	if err != nil {
		return Detection{}, err
	}
	defer f.Close()

	prefix := make([]byte, d.budget())
	n, err := io.ReadFull(f, prefix)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return Detection{}, err
	}
	enc := d.Encoding.DetectEncoding(prefix[:n])

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return Detection{}, err
	}
	delim, err := d.delimiterFrom(f, enc.Encoding)
	if err != nil {
		return Detection{}, err
	}
	return Detection{Encoding: enc, Delimiter: delim}, nil
}

// DetectBytes inspects an in-memory file.
func (d *Detector) DetectBytes(data []byte) (Detection, error) {
	prefix := data
	if len(prefix) > d.budget() {
		prefix = prefix[:d.budget()]
	}
	enc := d.Encoding.DetectEncoding(prefix)

	delim, err := d.delimiterFrom(bytes.NewReader(data), enc.Encoding)
	if err != nil {
		return Detection{}, err
	}
	return Detection{Encoding: enc, Delimiter: delim}, nil
}

// delimiterFrom decodes r with enc and runs the delimiter strategy on line one.
func (d *Detector) delimiterFrom(r io.Reader, enc string) (rune, error) {
	decoded, err := NewDecodingReader(r, enc)
	if err != nil {
		return 0, err
	}
	line, err := bufio.NewReader(decoded).ReadString('\n')
	if err != nil && err != io.EOF {
		return 0, fmt.Errorf("read first line: %w", err)
	}
	return d.Delimiter.DetectDelimiter(line), nil
}

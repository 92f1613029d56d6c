package core

// streaming.go provides the readers that turn raw upload bytes into UTF-8 text.
//
//   - BOMSkippingReader: Removes the UTF-8 BOM (0xEF 0xBB 0xBF) written by Windows tools
//   - NewDecodingReader: Applies a named charset decoder (latin-1, windows-1252, ...)
//
// UTF-8 input is never sanitized here. Invalid sequences must surface as a
// load failure so the loader can retry with its single-byte fallback.

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/transform"
)

const (
	EncodingUTF8   = "utf-8"
	EncodingASCII  = "ascii"
	EncodingLatin1 = "latin-1"
)

// BOMSkippingReader wraps an io.Reader and skips the UTF-8 BOM if present.
type BOMSkippingReader struct {
	reader  io.Reader
	checked bool
	head    []byte
}

// NewBOMSkippingReader creates a new BOM-skipping reader.
func NewBOMSkippingReader(r io.Reader) *BOMSkippingReader {
	return &BOMSkippingReader{reader: r}
}

// Read implements io.Reader. On the first read, it checks for and skips the BOM.
func (r *BOMSkippingReader) Read(p []byte) (int, error) {
	if !r.checked {
		r.checked = true

		var buf [3]byte
		n, err := io.ReadFull(r.reader, buf[:])
		if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
			return 0, err
		}
		if !(n == 3 && buf[0] == 0xEF && buf[1] == 0xBB && buf[2] == 0xBF) {
			r.head = append(r.head, buf[:n]...)
		}
	}

	// Drain the bytes consumed during the BOM check first
	if len(r.head) > 0 {
		n := copy(p, r.head)
		r.head = r.head[n:]
		return n, nil
	}

	return r.reader.Read(p)
}

// isUTF8Family reports whether name denotes UTF-8 or its ASCII subset.
func isUTF8Family(name string) bool {
	switch normalizeEncoding(name) {
	case EncodingUTF8, EncodingASCII:
		return true
	}
	return false
}

// normalizeEncoding folds the common spellings of the encodings the loader
// cares about. Other names are lowercased and passed through.
func normalizeEncoding(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	switch n {
	case "utf-8", "utf8", "utf-8-sig":
		return EncodingUTF8
	case "ascii", "us-ascii":
		return EncodingASCII
	case "latin-1", "latin1", "iso-8859-1", "iso8859-1", "l1":
		return EncodingLatin1
	}
	return n
}

// resolveEncoding maps a charset name to a decoder. UTF-8 family names return
// a nil encoding, meaning the bytes are used as they are.
func resolveEncoding(name string) (encoding.Encoding, error) {
	switch n := normalizeEncoding(name); n {
	case EncodingUTF8, EncodingASCII:
		return nil, nil
	case EncodingLatin1:
		return charmap.ISO8859_1, nil
	default:
		enc, err := ianaindex.IANA.Encoding(n)
		if err != nil {
			return nil, fmt.Errorf("unsupported encoding %q: %w", name, err)
		}
		if enc == nil {
			return nil, fmt.Errorf("unsupported encoding %q", name)
		}
		return enc, nil
	}
}

// NewDecodingReader returns a reader yielding UTF-8 text decoded from r using
// the named encoding. The BOM is skipped for UTF-8 input.
func NewDecodingReader(r io.Reader, name string) (io.Reader, error) {
	enc, err := resolveEncoding(name)
	if err != nil {
		return nil, err
	}
	if enc == nil {
		return NewBOMSkippingReader(r), nil
	}
	return transform.NewReader(r, enc.NewDecoder()), nil
}

// incompleteTrailingBytes returns the number of bytes at the end of data
// that could be the start of an incomplete multi-byte UTF-8 sequence.
func incompleteTrailingBytes(data []byte) int {
	if len(data) == 0 {
		return 0
	}

	for i := 1; i <= 3 && i <= len(data); i++ {
		b := data[len(data)-i]
		if b >= 0xC0 {
			if i < runeLen(b) {
				return i
			}
			return 0
		}
		// Anything but a continuation byte ends the scan
		if b&0xC0 != 0x80 {
			return 0
		}
	}
	return 0
}

// runeLen returns the expected length of a UTF-8 sequence starting with byte b.
func runeLen(b byte) int {
	switch {
	case b < 0x80:
		return 1
	case b < 0xC0:
		return 0
	case b < 0xE0:
		return 2
	case b < 0xF0:
		return 3
	default:
		return 4
	}
}

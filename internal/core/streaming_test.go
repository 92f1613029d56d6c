package core

import (
	"bytes"
	"io"
	"testing"
)

func TestBOMSkippingReader(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected string
	}{
		{
			name:     "file with BOM",
			input:    append([]byte{0xEF, 0xBB, 0xBF}, []byte("hello,world")...),
			expected: "hello,world",
		},
		{
			name:     "file without BOM",
			input:    []byte("hello,world"),
			expected: "hello,world",
		},
		{
			name:     "empty file",
			input:    []byte{},
			expected: "",
		},
		{
			name:     "only BOM",
			input:    []byte{0xEF, 0xBB, 0xBF},
			expected: "",
		},
		{
			name:     "partial BOM at start",
			input:    []byte{0xEF, 0xBB, 'a', 'b', 'c'},
			expected: string([]byte{0xEF, 0xBB, 'a', 'b', 'c'}),
		},
		{
			name:     "short input",
			input:    []byte("a"),
			expected: "a",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader := NewBOMSkippingReader(bytes.NewReader(tt.input))
			result, err := io.ReadAll(reader)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(result) != tt.expected {
				t.Errorf("got %q, want %q", string(result), tt.expected)
			}
		})
	}
}

func TestNewDecodingReader(t *testing.T) {
	tests := []struct {
		name     string
		encoding string
		input    []byte
		expected string
	}{
		{"utf-8 passthrough", "utf-8", []byte("São Paulo"), "São Paulo"},
		{"utf-8 strips BOM", "UTF-8-SIG", append([]byte{0xEF, 0xBB, 0xBF}, 'x'), "x"},
		{"latin-1", "latin-1", []byte{'S', 0xE3, 'o'}, "São"},
		{"iso-8859-1 alias", "ISO-8859-1", []byte{0xE7}, "ç"},
		{"windows-1252 via IANA", "windows-1252", []byte{0x80}, "€"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewDecodingReader(bytes.NewReader(tt.input), tt.encoding)
			if err != nil {
				t.Fatalf("NewDecodingReader: %v", err)
			}
			got, err := io.ReadAll(r)
			if err != nil {
				t.Fatalf("read: %v", err)
			}
			if string(got) != tt.expected {
				t.Errorf("got %q, want %q", string(got), tt.expected)
			}
		})
	}
}

func TestNewDecodingReader_Unsupported(t *testing.T) {
	if _, err := NewDecodingReader(bytes.NewReader(nil), "klingon-8"); err == nil {
		t.Error("expected error for unknown encoding")
	}
}

func TestNormalizeEncoding(t *testing.T) {
	tests := map[string]string{
		"UTF8":         EncodingUTF8,
		"utf-8-sig":    EncodingUTF8,
		"US-ASCII":     EncodingASCII,
		"ISO-8859-1":   EncodingLatin1,
		"latin1":       EncodingLatin1,
		"Windows-1252": "windows-1252",
	}
	for in, want := range tests {
		if got := normalizeEncoding(in); got != want {
			t.Errorf("normalizeEncoding(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestIncompleteTrailingBytes(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		want  int
	}{
		{"ascii", []byte("abc"), 0},
		{"complete two-byte", []byte("ç"), 0},
		{"cut two-byte", []byte("ç")[:1], 1},
		{"cut three-byte after one", []byte("€")[:1], 1},
		{"cut three-byte after two", []byte("€")[:2], 2},
		{"empty", nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := incompleteTrailingBytes(tt.input); got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

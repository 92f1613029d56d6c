package core

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestLoader_LoadBytes(t *testing.T) {
	tests := []struct {
		name          string
		input         string
		wantColumns   []string
		wantRows      [][]string
		wantDelimiter rune
	}{
		{
			name:          "comma",
			input:         "data,valor\n2024-01-01,10.5\n",
			wantColumns:   []string{"data", "valor"},
			wantRows:      [][]string{{"2024-01-01", "10.5"}},
			wantDelimiter: ',',
		},
		{
			name:          "semicolon with trimmed header",
			input:         " data ; valor \n2024-01-01;10,5\n",
			wantColumns:   []string{"data", "valor"},
			wantRows:      [][]string{{"2024-01-01", "10,5"}},
			wantDelimiter: ';',
		},
		{
			name:          "BOM is skipped",
			input:         "\xef\xbb\xbfdata,valor\nx,y\n",
			wantColumns:   []string{"data", "valor"},
			wantRows:      [][]string{{"x", "y"}},
			wantDelimiter: ',',
		},
		{
			name:          "short rows are padded",
			input:         "a,b,c\n1\n1,2,3\n",
			wantColumns:   []string{"a", "b", "c"},
			wantRows:      [][]string{{"1", "", ""}, {"1", "2", "3"}},
			wantDelimiter: ',',
		},
		{
			name:          "quoted field with delimiter",
			input:         "a,b\n\"x,y\",z\n",
			wantColumns:   []string{"a", "b"},
			wantRows:      [][]string{{"x,y", "z"}},
			wantDelimiter: ',',
		},
		{
			name:          "header only",
			input:         "a,b\n",
			wantColumns:   []string{"a", "b"},
			wantRows:      nil,
			wantDelimiter: ',',
		},
	}

	loader := NewLoader(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ds, err := loader.LoadBytes([]byte(tt.input))
			if err != nil {
				t.Fatalf("LoadBytes: %v", err)
			}
			if !reflect.DeepEqual(ds.Columns, tt.wantColumns) {
				t.Errorf("Columns = %q, want %q", ds.Columns, tt.wantColumns)
			}
			if !reflect.DeepEqual(ds.Rows, tt.wantRows) {
				t.Errorf("Rows = %q, want %q", ds.Rows, tt.wantRows)
			}
			if ds.Delimiter != tt.wantDelimiter {
				t.Errorf("Delimiter = %q, want %q", ds.Delimiter, tt.wantDelimiter)
			}
		})
	}
}

func TestLoader_Errors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantMsg string
	}{
		{"empty file", "", "no columns to parse from file"},
		{"long row", "a,b\n1,2\n1,2,3\n", "line 3: expected 2 fields, saw 3"},
	}

	loader := NewLoader(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loader.LoadBytes([]byte(tt.input))
			if err == nil {
				t.Fatal("expected error")
			}
			var re *ReadError
			if !errors.As(err, &re) {
				t.Fatalf("got %T, want *ReadError", err)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error %q does not contain %q", err, tt.wantMsg)
			}
		})
	}
}

func TestLoader_Latin1Retry(t *testing.T) {
	data := []byte("cidade,valor\nS\xe3o Paulo,10\n")

	// Force a utf-8 family guess so the parse fails and the single retry runs.
	for _, enc := range []string{EncodingUTF8, EncodingASCII} {
		t.Run(enc, func(t *testing.T) {
			loader := NewLoader(&Detector{
				Encoding:  fixedEncoding(enc),
				Delimiter: CountingDelimiterDetector{},
			})

			ds, err := loader.LoadBytes(data)
			if err != nil {
				t.Fatalf("LoadBytes: %v", err)
			}
			if ds.Encoding != EncodingLatin1 {
				t.Errorf("Encoding = %q, want %q", ds.Encoding, EncodingLatin1)
			}
			if got := ds.Rows[0][0]; got != "São Paulo" {
				t.Errorf("cell = %q, want %q", got, "São Paulo")
			}
		})
	}
}

func TestLoader_NoRetryForOtherEncodings(t *testing.T) {
	loader := NewLoader(&Detector{
		Encoding:  fixedEncoding("windows-1252"),
		Delimiter: CountingDelimiterDetector{},
	})
	_, err := loader.LoadBytes([]byte("a,b\n1,2,3\n"))

	var re *ReadError
	if !errors.As(err, &re) {
		t.Fatalf("got %v, want *ReadError", err)
	}
	if re.Encoding != "windows-1252" {
		t.Errorf("Encoding = %q, want windows-1252", re.Encoding)
	}
}

func TestLoader_LoadSetsPath(t *testing.T) {
	path := writeFile(t, "bad.csv", []byte("a\n1,2\n"))

	_, err := NewLoader(nil).Load(path)
	var re *ReadError
	if !errors.As(err, &re) {
		t.Fatalf("got %v, want *ReadError", err)
	}
	if re.Path != path {
		t.Errorf("Path = %q, want %q", re.Path, path)
	}
}

func TestParseCSV_InvalidUTF8Message(t *testing.T) {
	_, err := ParseCSV([]byte("a\nS\xe3o\n"), "utf-8", ',')
	want := "'utf-8' codec can't decode byte 0xe3 in position 3: invalid start byte"
	if err == nil || err.Error() != want {
		t.Errorf("got %v, want %q", err, want)
	}
}

func TestReadSample(t *testing.T) {
	path := writeFile(t, "sample.csv", []byte("h\n1\n2\n3\n"))

	tests := []struct {
		n    int
		want string
	}{
		{2, "h\n1\n"},
		{10, "h\n1\n2\n3\n"},
	}
	for _, tt := range tests {
		got, err := ReadSample(path, EncodingUTF8, tt.n)
		if err != nil {
			t.Fatalf("ReadSample: %v", err)
		}
		if got != tt.want {
			t.Errorf("ReadSample(n=%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}

func TestReadSample_Latin1(t *testing.T) {
	path := writeFile(t, "latin.csv", []byte("S\xe3o\n"))
	got, err := ReadSample(path, EncodingLatin1, 5)
	if err != nil {
		t.Fatalf("ReadSample: %v", err)
	}
	if got != "São\n" {
		t.Errorf("got %q, want %q", got, "São\n")
	}
}

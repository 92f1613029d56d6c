package generator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/JonMunkholm/csvguard/internal/config"
	"github.com/JonMunkholm/csvguard/internal/core"
)

func testRequest() core.GenerationRequest {
	return core.GenerationRequest{
		Fingerprint: "abc123",
		ReportText:  "- Column 'valor' is missing",
		Sample:      "Data;Valor;Conta\n15/01/2024;R$ 10,50;A\n",
		Template: &core.Template{
			Name: "t",
			Columns: []core.ColumnSpec{
				{Name: "valor", Required: true, DataType: core.TypeDecimal},
			},
		},
	}
}

func newTestGemini(t *testing.T, handler http.HandlerFunc) *Gemini {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	g, err := NewGemini(config.GeneratorConfig{
		APIKey:      "test-key",
		BaseURL:     srv.URL + "/",
		Model:       "gemini-test",
		Temperature: 0.1,
	})
	if err != nil {
		t.Fatalf("NewGemini: %v", err)
	}
	return g
}

func TestGemini_Generate(t *testing.T) {
	var gotPath, gotKey string
	var gotReq geminiRequest

	g := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-goog-api-key")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"` + "```python\\n" + `def processar_csv(i, o):\n    pass\n` + "```" + `"}]},"finishReason":"STOP"}]}`))
	})

	script, err := g.Generate(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if want := "def processar_csv(i, o):\n    pass"; script != want {
		t.Errorf("script = %q, want %q", script, want)
	}
	if gotPath != "/models/gemini-test:generateContent" {
		t.Errorf("path = %q", gotPath)
	}
	if gotKey != "test-key" {
		t.Errorf("api key header = %q", gotKey)
	}
	if len(gotReq.Contents) != 1 || !strings.Contains(gotReq.Contents[0].Parts[0].Text, "Column 'valor' is missing") {
		t.Errorf("prompt not sent: %+v", gotReq.Contents)
	}
}

func TestGemini_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{"server error", http.StatusInternalServerError, `{"error":"boom"}`, "status 500"},
		{"rate limited", http.StatusTooManyRequests, `quota`, "rate limit"},
		{"blocked prompt", http.StatusOK, `{"candidates":[],"promptFeedback":{"blockReason":"SAFETY"}}`, "SAFETY"},
		{"no candidates", http.StatusOK, `{}`, "no candidates"},
		{"bad json", http.StatusOK, `{`, "decode"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})
			_, err := g.Generate(context.Background(), testRequest())
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Generate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestGemini_BlankAnswer(t *testing.T) {
	g := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"` + "```\\n```" + `"}]}}]}`))
	})
	script, err := g.Generate(context.Background(), testRequest())
	if err != nil || script != "" {
		t.Errorf("Generate() = %q, %v; want empty, nil", script, err)
	}
}

func TestNewGemini_RequiresKey(t *testing.T) {
	if _, err := NewGemini(config.GeneratorConfig{}); err == nil {
		t.Error("NewGemini without key should fail")
	}
}

func TestBuildPrompt(t *testing.T) {
	p := BuildPrompt(testRequest())
	for _, want := range []string{
		"TARGET SCHEMA (JSON):",
		`"colunas"`,
		"15/01/2024;R$ 10,50;A",
		"processar_csv(input_path, output_path)",
		"7. Return ONLY the raw Python code.",
	} {
		if !strings.Contains(p, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestStripFences(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{"plain", "print(1)", "print(1)"},
		{"python fence", "```python\nprint(1)\n```", "print(1)"},
		{"bare fence with crlf", "```\r\nprint(1)\r\n```\r\n", "print(1)"},
		{"surrounding prose kept", "x = 1\n```\ny = 2", "x = 1\ny = 2"},
		{"only fences", "```\n```", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripFences(tt.in); got != tt.want {
				t.Errorf("StripFences(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

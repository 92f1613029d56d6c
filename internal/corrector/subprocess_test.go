package corrector

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/JonMunkholm/csvguard/internal/config"
	"github.com/JonMunkholm/csvguard/internal/core"
)

func newTestCorrector(t *testing.T, timeout time.Duration) (*Subprocess, string) {
	t.Helper()
	python, err := exec.LookPath("python3")
	if err != nil {
		t.Skip("python3 not on PATH")
	}
	dir := t.TempDir()
	input := filepath.Join(dir, "input.csv")
	if err := os.WriteFile(input, []byte("Valor\n10,50\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return New(config.CorrectorConfig{
		Interpreter: python,
		WorkDir:     filepath.Join(dir, "work"),
		Timeout:     timeout,
	}), input
}

const copyScript = `
def processar_csv(input_path, output_path):
    with open(input_path, encoding="utf-8") as src, open(output_path, "w", encoding="utf-8") as dst:
        for line in src:
            dst.write(line.replace("Valor", "valor").replace("10,50", "10.50"))
`

func TestSubprocess_Apply(t *testing.T) {
	c, input := newTestCorrector(t, 10*time.Second)
	output := filepath.Join(filepath.Dir(input), "output.csv")

	if err := c.Apply(context.Background(), copyScript, input, output); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	got, err := os.ReadFile(output)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if string(got) != "valor\n10.50\n" {
		t.Errorf("output = %q", got)
	}

	entries, _ := os.ReadDir(c.workDir)
	if len(entries) != 0 {
		t.Errorf("exec dir not cleaned up: %d entries left", len(entries))
	}
}

func TestSubprocess_ContractViolations(t *testing.T) {
	tests := []struct {
		name       string
		script     string
		timeout    time.Duration
		wantErr    error
		wantStderr string
	}{
		{
			name:    "missing callable",
			script:  "def other(a, b):\n    pass\n",
			wantErr: core.ErrMissingCallable,
		},
		{
			name:    "blank script",
			script:  "   ",
			wantErr: core.ErrMissingCallable,
		},
		{
			name:       "script raises",
			script:     "def processar_csv(i, o):\n    raise ValueError('bad column')\n",
			wantStderr: "ValueError: bad column",
		},
		{
			name:       "syntax error",
			script:     "def processar_csv(i, o)\n    pass\n",
			wantStderr: "SyntaxError",
		},
		{
			name:    "no output",
			script:  "def processar_csv(i, o):\n    pass\n",
			wantErr: core.ErrNoOutput,
		},
		{
			name:    "timeout",
			script:  "import time\ndef processar_csv(i, o):\n    time.sleep(30)\n",
			timeout: 300 * time.Millisecond,
			wantErr: context.DeadlineExceeded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			timeout := tt.timeout
			if timeout == 0 {
				timeout = 10 * time.Second
			}
			c, input := newTestCorrector(t, timeout)
			output := filepath.Join(filepath.Dir(input), "output.csv")

			err := c.Apply(context.Background(), tt.script, input, output)

			var ecv *core.ExecutionContractViolation
			if !errors.As(err, &ecv) {
				t.Fatalf("Apply() error = %v, want *ExecutionContractViolation", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Apply() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantStderr != "" && !strings.Contains(ecv.Stderr, tt.wantStderr) {
				t.Errorf("stderr = %q, want containing %q", ecv.Stderr, tt.wantStderr)
			}
		})
	}
}

func TestSubprocess_RemovesStaleOutput(t *testing.T) {
	c, input := newTestCorrector(t, 10*time.Second)
	output := filepath.Join(filepath.Dir(input), "output.csv")
	if err := os.WriteFile(output, []byte("stale"), 0o644); err != nil {
		t.Fatal(err)
	}

	err := c.Apply(context.Background(), "def processar_csv(i, o):\n    pass\n", input, output)
	if !errors.Is(err, core.ErrNoOutput) {
		t.Errorf("Apply() error = %v, want ErrNoOutput", err)
	}
}

func TestTailWriter(t *testing.T) {
	w := newTailWriter(5)
	w.Write([]byte("abc"))
	w.Write([]byte("def"))
	if got := w.String(); got != "bcdef" {
		t.Errorf("got %q, want %q", got, "bcdef")
	}
	w.Write([]byte("0123456789"))
	if got := w.String(); got != "56789" {
		t.Errorf("got %q, want %q", got, "56789")
	}
}

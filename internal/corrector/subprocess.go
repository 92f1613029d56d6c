// Package corrector executes correction scripts in a child interpreter.
//
// A script is written next to a small harness into a scratch directory and
// run as `<interpreter> harness.py script.py INPUT OUTPUT processar_csv`.
// The harness exits 3 when the entry point is missing and 1 when the script
// raises; either, a timeout, or a missing output file is reported as
// *core.ExecutionContractViolation carrying the tail of stderr.
package corrector

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/JonMunkholm/csvguard/internal/config"
	"github.com/JonMunkholm/csvguard/internal/core"
)

//go:embed harness.py
var harness []byte

const (
	exitMissingCallable = 3

	// stderrTail is how much stderr is kept for error reports.
	stderrTail = 4096

	waitDelay = 2 * time.Second
)

// Subprocess implements core.Corrector.
type Subprocess struct {
	interpreter string
	workDir     string
	timeout     time.Duration
}

// New creates a Subprocess corrector from cfg.
func New(cfg config.CorrectorConfig) *Subprocess {
	s := &Subprocess{
		interpreter: cfg.Interpreter,
		workDir:     cfg.WorkDir,
		timeout:     cfg.Timeout,
	}
	if s.interpreter == "" {
		s.interpreter = "python3"
	}
	if s.workDir == "" {
		s.workDir = core.DefaultWorkDir
	}
	if s.timeout <= 0 {
		s.timeout = 2 * time.Minute
	}
	return s
}

// Apply runs script's entry point on inputPath, which must write outputPath.
func (s *Subprocess) Apply(ctx context.Context, script, inputPath, outputPath string) error {
	if strings.TrimSpace(script) == "" {
		return &core.ExecutionContractViolation{Err: core.ErrMissingCallable}
	}

	inAbs, err := filepath.Abs(inputPath)
	if err != nil {
		return err
	}
	outAbs, err := filepath.Abs(outputPath)
	if err != nil {
		return err
	}
	if err := os.Remove(outAbs); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("clear previous output: %w", err)
	}

	if err := os.MkdirAll(s.workDir, 0o755); err != nil {
		return fmt.Errorf("create work dir: %w", err)
	}
	dir, err := os.MkdirTemp(s.workDir, "exec-*")
	if err != nil {
		return fmt.Errorf("create exec dir: %w", err)
	}
	defer os.RemoveAll(dir)

	harnessPath := filepath.Join(dir, "harness.py")
	scriptPath := filepath.Join(dir, "script.py")
	if err := os.WriteFile(harnessPath, harness, 0o644); err != nil {
		return fmt.Errorf("write harness: %w", err)
	}
	if err := os.WriteFile(scriptPath, []byte(script), 0o644); err != nil {
		return fmt.Errorf("write script: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	stderr := newTailWriter(stderrTail)
	cmd := exec.CommandContext(runCtx, s.interpreter, harnessPath, scriptPath, inAbs, outAbs, core.CorrectionEntryPoint)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "PYTHONIOENCODING=utf-8", "PYTHONDONTWRITEBYTECODE=1")
	cmd.Stdout = newTailWriter(stderrTail)
	cmd.Stderr = stderr
	cmd.WaitDelay = waitDelay

	start := time.Now()
	runErr := cmd.Run()
	slog.Debug("correction script finished",
		"duration_ms", time.Since(start).Milliseconds(),
		"error", runErr,
	)

	if runErr != nil {
		tail := strings.TrimSpace(stderr.String())

		if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return &core.ExecutionContractViolation{
				Err:    fmt.Errorf("script exceeded %s: %w", s.timeout, context.DeadlineExceeded),
				Stderr: tail,
			}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) && exitErr.ExitCode() == exitMissingCallable {
			return &core.ExecutionContractViolation{Err: core.ErrMissingCallable, Stderr: tail}
		}
		if errors.As(runErr, &exitErr) {
			return &core.ExecutionContractViolation{Err: fmt.Errorf("script raised: %w", runErr), Stderr: tail}
		}
		return fmt.Errorf("start %s: %w", s.interpreter, runErr)
	}

	if _, err := os.Stat(outAbs); err != nil {
		return &core.ExecutionContractViolation{Err: core.ErrNoOutput, Stderr: strings.TrimSpace(stderr.String())}
	}
	return nil
}

// tailWriter keeps the last max bytes written to it.
type tailWriter struct {
	buf []byte
	max int
}

func newTailWriter(max int) *tailWriter {
	return &tailWriter{max: max}
}

func (w *tailWriter) Write(p []byte) (int, error) {
	n := len(p)
	if n >= w.max {
		w.buf = append(w.buf[:0], p[n-w.max:]...)
		return n, nil
	}
	if over := len(w.buf) + n - w.max; over > 0 {
		w.buf = w.buf[over:]
	}
	w.buf = append(w.buf, p...)
	return n, nil
}

func (w *tailWriter) String() string {
	return string(w.buf)
}

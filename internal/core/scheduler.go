package core

// scheduler.go runs background maintenance for the run work directory.
//
// Every run leaves a scratch directory behind (upload, corrected output,
// harness files). The sweeper deletes directories whose last modification
// is older than the retention. It runs once at start, then every interval,
// and logs failures without stopping.

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// SweepConfig holds configuration for the work-dir sweeper.
type SweepConfig struct {
	Dir       string        // Root of run directories
	Retention time.Duration // Age after which a run directory is removed (default: 24h)
	Interval  time.Duration // How often to sweep (default: 1h)
}

func (c SweepConfig) withDefaults() SweepConfig {
	if c.Retention <= 0 {
		c.Retention = 24 * time.Hour
	}
	if c.Interval <= 0 {
		c.Interval = time.Hour
	}
	return c
}

// StartSweeper sweeps cfg.Dir until ctx is cancelled.
func StartSweeper(ctx context.Context, cfg SweepConfig) {
	cfg = cfg.withDefaults()
	slog.Info("sweeper started",
		"dir", cfg.Dir,
		"retention", cfg.Retention.String(),
		"interval", cfg.Interval.String(),
	)

	runSweep(cfg, time.Now())

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("sweeper stopped")
			return
		case now := <-ticker.C:
			runSweep(cfg, now)
		}
	}
}

func runSweep(cfg SweepConfig, now time.Time) {
	start := time.Now()
	removed, err := SweepRunDirs(cfg.Dir, cfg.Retention, now)
	if err != nil {
		slog.Error("sweep failed", "error", err)
		return
	}
	slog.Info("sweep completed",
		"removed", removed,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

// SweepRunDirs removes subdirectories of dir last modified before
// now-retention and returns how many were removed. A missing dir is not an error.
func SweepRunDirs(dir string, retention time.Duration, now time.Time) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	cutoff := now.Add(-retention)
	removed := 0
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if err := os.RemoveAll(path); err != nil {
			slog.Warn("remove run dir failed", "path", path, "error", err)
			continue
		}
		removed++
	}
	return removed, nil
}

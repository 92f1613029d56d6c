// Package application assembles the pipeline and its collaborators from
// configuration. Both the HTTP server and the CLI start here.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/JonMunkholm/csvguard/internal/archive"
	"github.com/JonMunkholm/csvguard/internal/cache"
	"github.com/JonMunkholm/csvguard/internal/config"
	"github.com/JonMunkholm/csvguard/internal/core"
	"github.com/JonMunkholm/csvguard/internal/corrector"
	"github.com/JonMunkholm/csvguard/internal/generator"
	"github.com/JonMunkholm/csvguard/internal/store"
)

// App holds the long-lived components of a process.
type App struct {
	Config   *config.Config
	Store    store.Store
	Registry *core.Registry
	Pipeline *core.Pipeline

	closers []func() error
}

// Options tune what New connects to.
type Options struct {
	// Offline skips the generator, Redis and the archive.
	Offline bool
}

// New opens the store, loads templates and wires the pipeline. Redis and
// the archive are optional: when configured but unreachable they are
// skipped with a warning.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	registry, err := LoadRegistry(cfg.Validation)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	app := &App{Config: cfg, Store: st, Registry: registry}
	app.closers = append(app.closers, st.Close)

	deps := core.PipelineDeps{
		Loader:        NewLoader(cfg.Validation),
		Hasher:        core.Hasher{Typed: cfg.Validation.FingerprintTypes},
		Cache:         st,
		Corrector:     corrector.New(cfg.Corrector),
		Sink:          st,
		Audit:         st,
		WorkDir:       cfg.Corrector.WorkDir,
		SampleLines:   cfg.Validation.SampleLines,
		DateThreshold: cfg.Validation.DateThreshold,
	}

	if !opts.Offline {
		app.wireCache(ctx, &deps)
		app.wireArchive(ctx, &deps)

		if cfg.Generator.Enabled() {
			gen, err := generator.NewGemini(cfg.Generator)
			if err != nil {
				app.Close()
				return nil, fmt.Errorf("generator: %w", err)
			}
			deps.Generator = gen
			slog.Info("generator enabled", "model", cfg.Generator.Model)
		} else {
			slog.Info("generator disabled, cache misses need a supplied script")
		}
	}

	app.Pipeline, err = core.NewPipeline(deps)
	if err != nil {
		app.Close()
		return nil, err
	}
	return app, nil
}

func (a *App) wireCache(ctx context.Context, deps *core.PipelineDeps) {
	cfg := a.Config.Cache
	if !cfg.Enabled() {
		return
	}
	client, err := cache.NewClient(ctx, cfg)
	if err != nil {
		slog.Warn("redis unavailable, using store only", "error", err)
		return
	}
	a.closers = append(a.closers, client.Close)
	deps.Cache = cache.NewScriptCache(client, a.Store, cfg.TTL, cfg.KeyPrefix)
	deps.Locker = cache.NewLocker(client, cfg.KeyPrefix, cfg.LockTTL, cfg.LockWait)
	slog.Info("redis script cache enabled", "addr", cfg.RedisAddr, "ttl", cfg.TTL.String())
}

func (a *App) wireArchive(ctx context.Context, deps *core.PipelineDeps) {
	cfg := a.Config.Archive
	if !cfg.Enabled() {
		return
	}
	arch, err := archive.New(ctx, cfg)
	if err != nil {
		slog.Warn("archive unavailable, runs will not be archived", "error", err)
		return
	}
	deps.Archiver = arch
	slog.Info("run archive enabled", "endpoint", cfg.Endpoint, "bucket", cfg.Bucket)
}

// Close releases every connection opened by New.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// LoadRegistry registers every template in cfg.TemplateDir and checks that
// the default template exists.
func LoadRegistry(cfg config.ValidationConfig) (*core.Registry, error) {
	registry := core.NewRegistry(cfg.DefaultTemplate)
	n, err := registry.LoadDir(cfg.TemplateDir)
	if err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}
	if _, err := registry.Get(""); err != nil {
		return nil, fmt.Errorf("default template: %w", err)
	}
	slog.Debug("templates loaded", "dir", cfg.TemplateDir, "count", n)
	return registry, nil
}

// NewLoader returns a loader whose detector reads cfg.DetectionBudget bytes.
func NewLoader(cfg config.ValidationConfig) *core.Loader {
	detector := core.NewDetector()
	detector.Budget = cfg.DetectionBudget
	return core.NewLoader(detector)
}

// NewValidator returns a validator for tpl with the configured date threshold.
func NewValidator(cfg config.ValidationConfig, tpl *core.Template) *core.Validator {
	return core.NewValidator(tpl, core.WithDateThreshold(cfg.DateThreshold))
}

package application

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/JonMunkholm/csvguard/internal/config"
	"github.com/JonMunkholm/csvguard/internal/core"
)

const templateDoc = `{
  "colunas": {
    "data_transacao": {"obrigatorio": true, "aliases": ["Data"], "tipo_dado": "DATE"},
    "valor": {"obrigatorio": true, "tipo_dado": "DECIMAL"},
    "conta_origem": {"obrigatorio": true}
  }
}`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	tplDir := filepath.Join(dir, "templates")
	if err := os.MkdirAll(tplDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(tplDir, "transacoes.json"), []byte(templateDoc), 0o644); err != nil {
		t.Fatal(err)
	}

	return &config.Config{
		Store: config.StoreConfig{
			Driver:      config.DriverSQLite,
			SQLitePath:  filepath.Join(dir, "test.db"),
			IngestTable: "transacoes_financeiras",
			BatchSize:   100,
		},
		Corrector: config.CorrectorConfig{Interpreter: "python3", WorkDir: filepath.Join(dir, "runs")},
		Validation: config.ValidationConfig{
			TemplateDir:     tplDir,
			DefaultTemplate: "transacoes",
			DateThreshold:   0.8,
			SampleLines:     5,
			DetectionBudget: 10000,
		},
	}
}

func TestNew_RunsValidFile(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	app, err := New(ctx, cfg, Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer app.Close()

	if app.Pipeline.HasGenerator() {
		t.Error("generator wired without an API key")
	}

	tpl, err := app.Registry.Get("")
	if err != nil {
		t.Fatal(err)
	}
	if err := app.Store.Migrate(ctx, tpl); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	path := filepath.Join(t.TempDir(), "extrato.csv")
	os.WriteFile(path, []byte("data_transacao;valor;conta_origem\n2024-01-15;10.5;A\n2024-01-16;2;B\n"), 0o644)

	res, err := app.Pipeline.Run(ctx, core.RunRequest{Path: path, Template: tpl})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.RowsIngested != 2 {
		t.Errorf("rows ingested = %d, want 2", res.RowsIngested)
	}

	entries, err := app.Store.Recent(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].FileName != "extrato.csv" {
		t.Errorf("audit entries = %+v", entries)
	}
}

func TestNew_UnreachableOptionalsAreSkipped(t *testing.T) {
	cfg := testConfig(t)
	cfg.Cache = config.CacheConfig{RedisAddr: "127.0.0.1:1"}
	cfg.Archive = config.ArchiveConfig{Endpoint: "127.0.0.1:1", AccessKey: "a", SecretKey: "b", Bucket: "runs"}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	app, err := New(ctx, cfg, Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer app.Close()

	if app.Pipeline == nil {
		t.Fatal("pipeline not built")
	}
}

func TestLoadRegistry(t *testing.T) {
	cfg := testConfig(t)

	reg, err := LoadRegistry(cfg.Validation)
	if err != nil {
		t.Fatalf("LoadRegistry: %v", err)
	}
	if reg.Count() != 1 {
		t.Errorf("count = %d, want 1", reg.Count())
	}

	cfg.Validation.DefaultTemplate = "outro"
	if _, err := LoadRegistry(cfg.Validation); !errors.Is(err, core.ErrTemplateNotFound) {
		t.Errorf("missing default: got %v, want ErrTemplateNotFound", err)
	}

	cfg.Validation.TemplateDir = filepath.Join(t.TempDir(), "missing")
	if _, err := LoadRegistry(cfg.Validation); err == nil {
		t.Error("missing template dir should fail")
	}
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/JonMunkholm/csvguard/internal/config"
	"github.com/JonMunkholm/csvguard/internal/core"
	_ "github.com/mattn/go-sqlite3"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS scripts_transformacao (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	hash_estrutura TEXT NOT NULL UNIQUE,
	script_python TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS log_ingestao (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL,
	arquivo_nome TEXT NOT NULL,
	registros_total INTEGER NOT NULL,
	registros_sucesso INTEGER NOT NULL,
	registros_erro INTEGER NOT NULL,
	usou_ia BOOLEAN NOT NULL,
	fonte_script TEXT NOT NULL,
	hash_estrutura TEXT NOT NULL,
	duracao_segundos REAL NOT NULL,
	ip_address TEXT,
	user_agent TEXT,
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_log_ingestao_created_at ON log_ingestao(created_at DESC);
`

// maxSQLiteVariables is SQLite's bound-parameter limit per statement.
const maxSQLiteVariables = 32766

// SQLiteConfig holds configuration for the SQLite driver.
type SQLiteConfig struct {
	Path        string
	IngestTable string

	// BatchSize is the number of rows per multi-row INSERT.
	BatchSize int
}

// SQLite is the embedded driver. Writes are serialized.
type SQLite struct {
	db        *sql.DB
	mu        sync.Mutex
	table     string
	batchSize int
	now       func() time.Time
}

// NewSQLite opens (creating if needed) the database file and its base schema.
func NewSQLite(cfg SQLiteConfig) (*SQLite, error) {
	if cfg.Path == "" {
		return nil, errors.New("sqlite path is empty")
	}
	if cfg.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", cfg.Path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &SQLite{
		db:        db,
		table:     cfg.IngestTable,
		batchSize: cfg.BatchSize,
		now:       func() time.Time { return time.Now().UTC() },
	}
	if s.table == "" {
		s.table = core.DefaultIngestTable
	}
	if s.batchSize <= 0 {
		s.batchSize = 1000
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	slog.Info("opened database", "driver", config.DriverSQLite, "path", cfg.Path)
	return s, nil
}

func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

// Migrate ensures the ingestion table for tpl exists. tpl may be nil.
func (s *SQLite) Migrate(ctx context.Context, tpl *core.Template) error {
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if tpl == nil {
		return nil
	}
	plan := core.NewIngestPlan(s.table, tpl)
	if _, err := s.db.ExecContext(ctx, sqliteDialect.createTableDDL(plan)); err != nil {
		return fmt.Errorf("create table %s: %w", plan.Table, err)
	}
	return nil
}

// ----------------------------------------------------------------------------
// Script cache
// ----------------------------------------------------------------------------

// Lookup returns the script stored under fingerprint, or nil on a miss.
func (s *SQLite) Lookup(ctx context.Context, fingerprint string) (*core.Script, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, hash_estrutura, script_python, created_at, updated_at
		FROM scripts_transformacao
		WHERE hash_estrutura = ?`, fingerprint)

	var sc core.Script
	err := row.Scan(&sc.ID, &sc.Fingerprint, &sc.Body, &sc.CreatedAt, &sc.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sc, nil
}

// Store upserts the script for fingerprint and refreshes updated_at.
func (s *SQLite) Store(ctx context.Context, fingerprint, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scripts_transformacao (hash_estrutura, script_python, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(hash_estrutura)
		DO UPDATE SET script_python = excluded.script_python, updated_at = excluded.updated_at`,
		fingerprint, body, now, now)
	if err != nil {
		return fmt.Errorf("store script: %w", err)
	}
	return nil
}

func (s *SQLite) ListScripts(ctx context.Context, limit int) ([]core.Script, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, hash_estrutura, script_python, created_at, updated_at
		FROM scripts_transformacao
		ORDER BY updated_at DESC, id DESC
		LIMIT ?`, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	scripts := make([]core.Script, 0)
	for rows.Next() {
		var sc core.Script
		if err := rows.Scan(&sc.ID, &sc.Fingerprint, &sc.Body, &sc.CreatedAt, &sc.UpdatedAt); err != nil {
			return nil, err
		}
		scripts = append(scripts, sc)
	}
	return scripts, rows.Err()
}

// ----------------------------------------------------------------------------
// Audit log
// ----------------------------------------------------------------------------

func (s *SQLite) Record(ctx context.Context, e core.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO log_ingestao (
			run_id, arquivo_nome, registros_total, registros_sucesso, registros_erro,
			usou_ia, fonte_script, hash_estrutura, duracao_segundos, ip_address, user_agent, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.RunID, e.FileName, e.TotalRows, e.SuccessRows, e.ErrorRows,
		e.UsedGenerator, string(e.Source), e.Fingerprint, e.DurationSeconds,
		nullString(e.IPAddress), nullString(e.UserAgent), s.now())
	if err != nil {
		return fmt.Errorf("record ingestion: %w", err)
	}
	return nil
}

func (s *SQLite) Recent(ctx context.Context, limit int) ([]core.AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, arquivo_nome, registros_total, registros_sucesso, registros_erro,
			usou_ia, fonte_script, hash_estrutura, duracao_segundos, ip_address, user_agent, created_at
		FROM log_ingestao
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]core.AuditEntry, 0)
	for rows.Next() {
		var (
			e      core.AuditEntry
			source string
			ip, ua sql.NullString
		)
		err := rows.Scan(&e.ID, &e.RunID, &e.FileName, &e.TotalRows, &e.SuccessRows, &e.ErrorRows,
			&e.UsedGenerator, &source, &e.Fingerprint, &e.DurationSeconds, &ip, &ua, &e.CreatedAt)
		if err != nil {
			return nil, err
		}
		e.Source = core.ScriptSource(source)
		e.IPAddress = ip.String
		e.UserAgent = ua.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// ----------------------------------------------------------------------------
// Ingestion sink
// ----------------------------------------------------------------------------

// Ingest creates the destination table if needed and inserts the convertible
// rows of ds in one transaction using multi-row INSERTs.
func (s *SQLite) Ingest(ctx context.Context, runID string, tpl *core.Template, ds *core.Dataset) (int, error) {
	plan := core.NewIngestPlan(s.table, tpl)
	rows, dropped := plan.Rows(ds, core.ConvertCell)

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, sqliteDialect.createTableDDL(plan)); err != nil {
		return 0, fmt.Errorf("create table %s: %w", plan.Table, err)
	}

	cols := append(quoteIdents(plan.ColumnNames()), "run_id")
	batch := s.batchSize
	if limit := maxSQLiteVariables / len(cols); batch > limit {
		batch = limit
	}

	inserted := 0
	for start := 0; start < len(rows); start += batch {
		end := min(start+batch, len(rows))
		query, args := insertStatement(plan.Table, cols, rows[start:end], runID)
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return 0, fmt.Errorf("insert into %s: %w", plan.Table, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}

	if dropped > 0 {
		slog.Debug("rows dropped during ingestion", "run_id", runID, "dropped", dropped)
	}
	return inserted, nil
}

// insertStatement builds one multi-row INSERT with the run id appended to each row.
func insertStatement(table string, cols []string, rows [][]any, runID string) (string, []any) {
	placeholder := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ") + ")"

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(quoteIdent(table))
	b.WriteString(" (")
	b.WriteString(strings.Join(cols, ", "))
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(cols))
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(placeholder)
		args = append(args, row...)
		args = append(args, runID)
	}
	return b.String(), args
}

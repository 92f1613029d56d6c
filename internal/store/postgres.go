package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/JonMunkholm/csvguard/internal/config"
	"github.com/JonMunkholm/csvguard/internal/core"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS scripts_transformacao (
	id BIGSERIAL PRIMARY KEY,
	hash_estrutura TEXT NOT NULL UNIQUE,
	script_python TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS log_ingestao (
	id BIGSERIAL PRIMARY KEY,
	run_id TEXT NOT NULL,
	arquivo_nome TEXT NOT NULL,
	registros_total INTEGER NOT NULL,
	registros_sucesso INTEGER NOT NULL,
	registros_erro INTEGER NOT NULL,
	usou_ia BOOLEAN NOT NULL,
	fonte_script TEXT NOT NULL,
	hash_estrutura TEXT NOT NULL,
	duracao_segundos DOUBLE PRECISION NOT NULL,
	ip_address TEXT,
	user_agent TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_log_ingestao_created_at ON log_ingestao (created_at DESC);
`

// Postgres is the PostgreSQL driver. Rows are ingested with COPY.
type Postgres struct {
	pool  *pgxpool.Pool
	table string
}

// NewPostgres opens a pool configured from cfg and verifies the connection.
func NewPostgres(ctx context.Context, cfg config.DatabaseConfig, ingestTable string) (*Postgres, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if u, err := url.Parse(cfg.URL); err == nil {
		slog.Info("connected to database", "driver", config.DriverPostgres, "name", strings.TrimPrefix(u.Path, "/"))
	}

	return NewPostgresFromPool(pool, ingestTable), nil
}

// NewPostgresFromPool wraps an existing pool.
func NewPostgresFromPool(pool *pgxpool.Pool, ingestTable string) *Postgres {
	if ingestTable == "" {
		ingestTable = core.DefaultIngestTable
	}
	return &Postgres{pool: pool, table: ingestTable}
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

// Migrate creates all tables. tpl may be nil to skip the ingestion table.
func (p *Postgres) Migrate(ctx context.Context, tpl *core.Template) error {
	if _, err := p.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if tpl == nil {
		return nil
	}
	plan := core.NewIngestPlan(p.table, tpl)
	if _, err := p.pool.Exec(ctx, postgresDialect.createTableDDL(plan)); err != nil {
		return fmt.Errorf("create table %s: %w", plan.Table, err)
	}
	return nil
}

// ----------------------------------------------------------------------------
// Script cache
// ----------------------------------------------------------------------------

// Lookup returns the script stored under fingerprint, or nil on a miss.
func (p *Postgres) Lookup(ctx context.Context, fingerprint string) (*core.Script, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT id, hash_estrutura, script_python, created_at, updated_at
		FROM scripts_transformacao
		WHERE hash_estrutura = $1`, fingerprint)

	s, err := scanScript(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Store upserts the script for fingerprint and refreshes updated_at.
func (p *Postgres) Store(ctx context.Context, fingerprint, body string) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO scripts_transformacao (hash_estrutura, script_python)
		VALUES ($1, $2)
		ON CONFLICT (hash_estrutura)
		DO UPDATE SET script_python = EXCLUDED.script_python, updated_at = now()`,
		fingerprint, body)
	if err != nil {
		return fmt.Errorf("store script: %w", err)
	}
	return nil
}

func (p *Postgres) ListScripts(ctx context.Context, limit int) ([]core.Script, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, hash_estrutura, script_python, created_at, updated_at
		FROM scripts_transformacao
		ORDER BY updated_at DESC, id DESC
		LIMIT $1`, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	scripts := make([]core.Script, 0)
	for rows.Next() {
		s, err := scanScript(rows)
		if err != nil {
			return nil, err
		}
		scripts = append(scripts, *s)
	}
	return scripts, rows.Err()
}

func scanScript(row pgx.Row) (*core.Script, error) {
	var (
		s                    core.Script
		createdAt, updatedAt pgtype.Timestamptz
	)
	if err := row.Scan(&s.ID, &s.Fingerprint, &s.Body, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	s.CreatedAt = createdAt.Time
	s.UpdatedAt = updatedAt.Time
	return &s, nil
}

// ----------------------------------------------------------------------------
// Audit log
// ----------------------------------------------------------------------------

func (p *Postgres) Record(ctx context.Context, e core.AuditEntry) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO log_ingestao (
			run_id, arquivo_nome, registros_total, registros_sucesso, registros_erro,
			usou_ia, fonte_script, hash_estrutura, duracao_segundos, ip_address, user_agent
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		e.RunID, e.FileName, e.TotalRows, e.SuccessRows, e.ErrorRows,
		e.UsedGenerator, string(e.Source), e.Fingerprint, e.DurationSeconds,
		core.ToPgText(e.IPAddress), core.ToPgText(e.UserAgent))
	if err != nil {
		return fmt.Errorf("record ingestion: %w", err)
	}
	return nil
}

func (p *Postgres) Recent(ctx context.Context, limit int) ([]core.AuditEntry, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, run_id, arquivo_nome, registros_total, registros_sucesso, registros_erro,
			usou_ia, fonte_script, hash_estrutura, duracao_segundos, ip_address, user_agent, created_at
		FROM log_ingestao
		ORDER BY created_at DESC, id DESC
		LIMIT $1`, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]core.AuditEntry, 0)
	for rows.Next() {
		var (
			e         core.AuditEntry
			source    string
			ip, ua    pgtype.Text
			createdAt pgtype.Timestamptz
		)
		err := rows.Scan(&e.ID, &e.RunID, &e.FileName, &e.TotalRows, &e.SuccessRows, &e.ErrorRows,
			&e.UsedGenerator, &source, &e.Fingerprint, &e.DurationSeconds, &ip, &ua, &createdAt)
		if err != nil {
			return nil, err
		}
		e.Source = core.ScriptSource(source)
		e.IPAddress = ip.String
		e.UserAgent = ua.String
		e.CreatedAt = createdAt.Time
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ----------------------------------------------------------------------------
// Ingestion sink
// ----------------------------------------------------------------------------

// Ingest creates the destination table if needed and copies the convertible
// rows of ds in one transaction.
func (p *Postgres) Ingest(ctx context.Context, runID string, tpl *core.Template, ds *core.Dataset) (int, error) {
	plan := core.NewIngestPlan(p.table, tpl)
	rows, dropped := plan.Rows(ds, core.PgCell)
	for i := range rows {
		rows[i] = append(rows[i], runID)
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, postgresDialect.createTableDDL(plan)); err != nil {
		return 0, fmt.Errorf("create table %s: %w", plan.Table, err)
	}

	cols := append(plan.ColumnNames(), "run_id")
	n, err := tx.CopyFrom(ctx, pgx.Identifier{plan.Table}, cols, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, fmt.Errorf("copy into %s: %w", plan.Table, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}

	if dropped > 0 {
		slog.Debug("rows dropped during ingestion", "run_id", runID, "dropped", dropped)
	}
	return int(n), nil
}

// Package store persists correction scripts, the ingestion log and validated
// rows. Two drivers share one schema: PostgreSQL through pgxpool and an
// embedded SQLite file through database/sql.
package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/JonMunkholm/csvguard/internal/config"
	"github.com/JonMunkholm/csvguard/internal/core"
)

// Table names shared by both drivers.
const (
	ScriptsTable = "scripts_transformacao"
	LogTable     = "log_ingestao"
)

// DefaultListLimit caps list queries when the caller passes no limit.
const DefaultListLimit = 50

// Store is everything the pipeline and the surfaces need from persistence.
type Store interface {
	core.ScriptCache
	core.AuditLog
	core.AuditReader
	core.IngestionSink

	// ListScripts returns cached scripts, most recently updated first.
	ListScripts(ctx context.Context, limit int) ([]core.Script, error)

	// Migrate creates the scripts and log tables, and the ingestion table for tpl.
	Migrate(ctx context.Context, tpl *core.Template) error

	Ping(ctx context.Context) error
	Close() error
}

// Open connects the driver selected by cfg.Store.Driver.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	switch strings.ToLower(cfg.Store.Driver) {
	case config.DriverPostgres:
		return NewPostgres(ctx, cfg.Database, cfg.Store.IngestTable)
	case config.DriverSQLite:
		return NewSQLite(SQLiteConfig{
			Path:        cfg.Store.SQLitePath,
			IngestTable: cfg.Store.IngestTable,
			BatchSize:   cfg.Store.BatchSize,
		})
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// quoteIdent quotes a template-supplied identifier for both dialects.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quoteIdents(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = quoteIdent(n)
	}
	return out
}

// dialect maps template types onto column types and bookkeeping columns.
type dialect struct {
	types      map[core.DataType]string
	fallback   string
	idColumn   string
	ingestedAt string
}

var (
	postgresDialect = dialect{
		types: map[core.DataType]string{
			core.TypeDate:    "DATE",
			core.TypeDecimal: "NUMERIC",
			core.TypeInteger: "BIGINT",
		},
		fallback:   "TEXT",
		idColumn:   "id BIGSERIAL PRIMARY KEY",
		ingestedAt: "ingested_at TIMESTAMPTZ NOT NULL DEFAULT now()",
	}
	sqliteDialect = dialect{
		types: map[core.DataType]string{
			core.TypeDate:    "DATE",
			core.TypeDecimal: "NUMERIC",
			core.TypeInteger: "INTEGER",
		},
		fallback:   "TEXT",
		idColumn:   "id INTEGER PRIMARY KEY AUTOINCREMENT",
		ingestedAt: "ingested_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP",
	}
)

// createTableDDL renders CREATE TABLE IF NOT EXISTS for an ingestion plan.
func (d dialect) createTableDDL(plan core.IngestPlan) string {
	var b strings.Builder
	b.WriteString("CREATE TABLE IF NOT EXISTS ")
	b.WriteString(quoteIdent(plan.Table))
	b.WriteString(" (\n\t")
	b.WriteString(d.idColumn)
	for _, c := range plan.Columns {
		typ, ok := d.types[c.Type]
		if !ok {
			typ = d.fallback
		}
		b.WriteString(",\n\t")
		b.WriteString(quoteIdent(c.Name))
		b.WriteString(" ")
		b.WriteString(typ)
	}
	b.WriteString(",\n\trun_id TEXT NOT NULL,\n\t")
	b.WriteString(d.ingestedAt)
	b.WriteString("\n)")
	return b.String()
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return limit
}

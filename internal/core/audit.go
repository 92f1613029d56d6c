package core

import (
	"context"
	"time"
)

// AuditEntry is one ingestion log record, written once per successful run.
type AuditEntry struct {
	ID              int64        `json:"id"`
	RunID           string       `json:"run_id"`
	FileName        string       `json:"arquivo_nome"`
	TotalRows       int          `json:"registros_total"`
	SuccessRows     int          `json:"registros_sucesso"`
	ErrorRows       int          `json:"registros_erro"`
	UsedGenerator   bool         `json:"usou_ia"`
	Source          ScriptSource `json:"fonte_script"`
	Fingerprint     string       `json:"hash_estrutura"`
	DurationSeconds float64      `json:"duracao_segundos"`
	IPAddress       string       `json:"ip_address,omitempty"`
	UserAgent       string       `json:"user_agent,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
}

// AuditLog appends ingestion log entries.
type AuditLog interface {
	Record(ctx context.Context, entry AuditEntry) error
}

// AuditReader lists recent ingestion log entries, newest first.
type AuditReader interface {
	Recent(ctx context.Context, limit int) ([]AuditEntry, error)
}

// NewAuditEntry builds the log record for a finished run. Rows the sink
// dropped are counted as errors. Request metadata is taken from ctx.
func NewAuditEntry(ctx context.Context, res *RunResult) AuditEntry {
	return AuditEntry{
		RunID:           res.RunID,
		FileName:        res.FileName,
		TotalRows:       res.RowsTotal,
		SuccessRows:     res.RowsIngested,
		ErrorRows:       res.RowsTotal - res.RowsIngested,
		UsedGenerator:   res.Source == SourceGenerator,
		Source:          res.Source,
		Fingerprint:     res.Fingerprint,
		DurationSeconds: res.Duration.Seconds(),
		IPAddress:       GetIPAddressFromContext(ctx),
		UserAgent:       GetUserAgentFromContext(ctx),
		CreatedAt:       time.Now().UTC(),
	}
}

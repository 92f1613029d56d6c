package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/JonMunkholm/csvguard/internal/core"
	"github.com/JonMunkholm/csvguard/internal/export"
)

// validateResponse is the body of POST /api/validate.
type validateResponse struct {
	*core.Prepared
	Template string `json:"template"`
}

// fingerprintResponse is the body of POST /api/fingerprint.
type fingerprintResponse struct {
	Fingerprint string   `json:"hash_estrutura"`
	Columns     []string `json:"colunas"`
	Encoding    string   `json:"encoding"`
	Delimiter   string   `json:"delimitador"`
	Rows        int      `json:"registros"`
	Cached      bool     `json:"script_em_cache"`
}

// runResponse is the body of a successful POST /api/runs. Warnings hold
// failures that happened after the rows were committed.
type runResponse struct {
	*core.RunResult
	Warnings []string `json:"avisos,omitempty"`
}

// handleValidate validates an upload against a template and returns the
// report as JSON, or as an XLSX workbook when format=xlsx. A file that
// cannot be read is reported as an erro_leitura finding.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	up, err := s.receiveUpload(w, r)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}
	defer os.RemoveAll(up.dir)

	tpl, err := s.registry.Get(r.FormValue("template"))
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}

	ctx := WithRequestMetadata(r.Context(), r)
	prep, err := s.pipeline.Inspect(ctx, core.RunRequest{
		RunID:    up.runID,
		Path:     up.path,
		FileName: up.fileName,
		Template: tpl,
	})
	var re *core.ReadError
	if err != nil && !errors.As(err, &re) {
		respondError(w, r, err, statusFor(err))
		return
	}

	if strings.EqualFold(r.FormValue("format"), "xlsx") {
		w.Header().Set("Content-Type", export.ContentType)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", reportFileName(up.fileName)))
		if err := export.Write(w, prep.Report, export.Meta{
			FileName:    prep.FileName,
			Template:    tpl.Name,
			Fingerprint: prep.Fingerprint,
			Encoding:    prep.Encoding,
		}); err != nil {
			respondError(w, r, err, http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusOK, validateResponse{Prepared: prep, Template: tpl.Name})
}

// handleFingerprint returns the structural fingerprint of an upload and
// whether a correction script is cached for it.
func (s *Server) handleFingerprint(w http.ResponseWriter, r *http.Request) {
	up, err := s.receiveUpload(w, r)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}
	defer os.RemoveAll(up.dir)

	fp, ds, err := s.pipeline.Fingerprint(up.path)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}

	script, err := s.store.Lookup(r.Context(), fp)
	if err != nil {
		respondError(w, r, &core.PersistenceFailure{Op: "cache_lookup", Err: err}, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, fingerprintResponse{
		Fingerprint: fp,
		Columns:     ds.Columns,
		Encoding:    ds.Encoding,
		Delimiter:   string(ds.Delimiter),
		Rows:        ds.Len(),
		Cached:      script != nil,
	})
}

// handleRun runs an upload through validation, correction and ingestion.
// The optional "script" field overrides the cache and the generator.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if err := s.limiter.Acquire(r.Context()); err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}
	defer s.limiter.Release()

	up, err := s.receiveUpload(w, r)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}

	tpl, err := s.registry.Get(r.FormValue("template"))
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}

	ctx, cancel := context.WithTimeout(WithRequestMetadata(r.Context(), r), s.cfg.Upload.Timeout)
	defer cancel()

	res, err := s.pipeline.Run(ctx, core.RunRequest{
		RunID:    up.runID,
		Path:     up.path,
		FileName: up.fileName,
		Template: tpl,
		Script:   r.FormValue("script"),
	})
	if err != nil && res.Phase != core.PhaseIngested {
		respondRunError(w, r, err, res)
		return
	}

	resp := runResponse{RunResult: res}
	if err != nil {
		resp.Warnings = warnings(err)
	}
	writeJSON(w, http.StatusOK, resp)
}

// warnings flattens a joined error into user-facing lines.
func warnings(err error) []string {
	errs := []error{err}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		errs = joined.Unwrap()
	}
	out := make([]string, 0, len(errs))
	for _, e := range errs {
		out = append(out, core.FormatUserError(e))
	}
	return out
}

// reportFileName names the XLSX report for an uploaded file.
func reportFileName(upload string) string {
	base := strings.TrimSuffix(upload, filepath.Ext(upload))
	if base == "" {
		base = "relatorio"
	}
	return base + "_relatorio.xlsx"
}

package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/JonMunkholm/csvguard/internal/core"
	"github.com/go-chi/chi/v5"
)

const healthTimeout = 2 * time.Second

// templateInfo summarizes a registered template.
type templateInfo struct {
	Name    string       `json:"nome"`
	Default bool         `json:"padrao"`
	Columns []columnInfo `json:"colunas"`
}

type columnInfo struct {
	Name          string        `json:"nome"`
	Required      bool          `json:"obrigatorio"`
	Aliases       []string      `json:"aliases,omitempty"`
	DataType      core.DataType `json:"tipo_dado,omitempty"`
	AllowedValues []string      `json:"valores_permitidos,omitempty"`
}

// statusResponse is the body of GET /api/status.
type statusResponse struct {
	Runs      core.RunLimiterStatus `json:"runs"`
	Templates int                   `json:"templates"`
	Generator bool                  `json:"generator"`
	Database  string                `json:"database"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		respondError(w, r, &core.PersistenceFailure{Op: "ping", Err: err}, http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	all := s.registry.All()
	out := make([]templateInfo, 0, len(all))
	for _, tpl := range all {
		info := templateInfo{
			Name:    tpl.Name,
			Default: tpl.Name == s.registry.Default(),
			Columns: make([]columnInfo, 0, len(tpl.Columns)),
		}
		for _, c := range tpl.Columns {
			info.Columns = append(info.Columns, columnInfo{
				Name:          c.Name,
				Required:      c.Required,
				Aliases:       c.Aliases,
				DataType:      c.DataType,
				AllowedValues: c.AllowedValues(),
			})
		}
		out = append(out, info)
	}
	writeJSON(w, http.StatusOK, out)
}

// handleGetTemplate returns the template document in its file format.
func (s *Server) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	tpl, err := s.registry.Get(chi.URLParam(r, "name"))
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintln(w, tpl.Prompt())
}

func (s *Server) handleListScripts(w http.ResponseWriter, r *http.Request) {
	scripts, err := s.store.ListScripts(r.Context(), parseIntParam(r, "limit", 50))
	if err != nil {
		respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, scripts)
}

func (s *Server) handleGetScript(w http.ResponseWriter, r *http.Request) {
	fp := chi.URLParam(r, "fingerprint")
	script, err := s.store.Lookup(r.Context(), fp)
	if err != nil {
		respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	if script == nil {
		err := fmt.Errorf("%w: %s", core.ErrScriptNotFound, fp)
		respondError(w, r, err, statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, script)
}

func (s *Server) handleListIngestions(w http.ResponseWriter, r *http.Request) {
	entries, err := s.store.Recent(r.Context(), parseIntParam(r, "limit", 50))
	if err != nil {
		respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		Runs:      s.limiter.Status(),
		Templates: s.registry.Count(),
		Generator: s.pipeline.HasGenerator(),
		Database:  s.cfg.Store.Driver,
	})
}

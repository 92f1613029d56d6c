package web

// errors.go provides unified error responses for the API.
//
// Every error is logged with its technical detail and request id, mapped
// through core.MapError, and returned as JSON:
//
//	{"error": "...", "message": "...", "action": "...", "code": "FILE003", "request_id": "..."}
//
// Failed runs additionally carry the partial run result so the caller sees
// the report and, for corrected files, the remaining findings.

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/JonMunkholm/csvguard/internal/core"
	"github.com/JonMunkholm/csvguard/internal/logging"
	"github.com/go-chi/chi/v5/middleware"
)

// ErrorResponse represents the JSON structure for API error responses.
type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Action    string `json:"action,omitempty"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`

	// Stderr is the tail of the correction script's error output.
	Stderr string `json:"stderr,omitempty"`

	// Result is the partial run result for failed runs.
	Result *core.RunResult `json:"resultado,omitempty"`
}

var errNoFile = errors.New("no file provided")

// respondError logs err and writes its user-facing form with status.
func respondError(w http.ResponseWriter, r *http.Request, err error, status int) {
	writeJSON(w, status, errorResponse(r, err, status))
}

// respondRunError is respondError for a failed run, carrying res.
func respondRunError(w http.ResponseWriter, r *http.Request, err error, res *core.RunResult) {
	status := statusFor(err)
	resp := errorResponse(r, err, status)
	resp.Result = res
	writeJSON(w, status, resp)
}

func errorResponse(r *http.Request, err error, status int) ErrorResponse {
	msg := core.MapError(err)
	requestID := middleware.GetReqID(r.Context())

	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	logging.FromContext(r.Context()).Log(r.Context(), level, "request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", msg.Code,
	)

	resp := ErrorResponse{
		Error:     msg.Message,
		Message:   msg.Message,
		Action:    msg.Action,
		Code:      msg.Code,
		RequestID: requestID,
	}
	var ecv *core.ExecutionContractViolation
	if errors.As(err, &ecv) {
		resp.Stderr = ecv.Stderr
	}
	return resp
}

// statusFor maps pipeline errors to HTTP status codes.
func statusFor(err error) int {
	var (
		re  *core.ReadError
		gf  *core.GenerationFailure
		ecv *core.ExecutionContractViolation
		mbe *http.MaxBytesError
		bad *requestError
	)
	switch {
	case errors.Is(err, core.ErrTemplateNotFound), errors.Is(err, core.ErrScriptNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrTooManyRuns):
		return http.StatusServiceUnavailable
	case errors.Is(err, core.ErrNoGenerator):
		return http.StatusConflict
	case errors.As(err, &mbe):
		return http.StatusRequestEntityTooLarge
	case errors.As(err, &bad):
		return http.StatusBadRequest
	case errors.As(err, &re), errors.As(err, &ecv):
		return http.StatusUnprocessableEntity
	case errors.As(err, &gf):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

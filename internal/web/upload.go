package web

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
)

// multipartMemory is how much of a multipart form is kept in memory.
const multipartMemory = 32 << 20

// requestError marks a malformed request (400).
type requestError struct {
	err error
}

func (e *requestError) Error() string { return e.err.Error() }
func (e *requestError) Unwrap() error { return e.err }

// upload is a received file stored as input.csv in a fresh run directory.
type upload struct {
	runID    string
	dir      string
	path     string
	fileName string
}

// receiveUpload stores the "file" form part under the pipeline work dir.
// The body is capped at cfg.Upload.MaxFileSize.
func (s *Server) receiveUpload(w http.ResponseWriter, r *http.Request) (*upload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Upload.MaxFileSize)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return nil, &requestError{fmt.Errorf("parse upload: %w", err)}
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, &requestError{errNoFile}
	}
	defer file.Close()

	runID := uuid.NewString()
	dir, err := s.pipeline.RunDir(runID)
	if err != nil {
		return nil, err
	}

	path := filepath.Join(dir, "input.csv")
	out, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}
	if _, err := io.Copy(out, file); err != nil {
		out.Close()
		return nil, fmt.Errorf("store upload: %w", err)
	}
	if err := out.Close(); err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}

	name := filepath.Base(header.Filename)
	if name == "." || name == string(filepath.Separator) {
		name = "upload.csv"
	}
	return &upload{runID: runID, dir: dir, path: path, fileName: name}, nil
}

// parseIntParam parses a positive integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 1 {
		return defaultVal
	}
	return i
}

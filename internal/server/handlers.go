package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"audience/internal/sanitize"
	"audience/internal/storage"
	"audience/internal/upload"
)

// multipart bodies up to this size are kept in memory.
const maxMemory = 32 << 20

type uploadResponse struct {
	ID          string         `json:"id"`
	Fingerprint string         `json:"fingerprint"`
	Format      string         `json:"format"`
	Attempt     upload.Attempt `json:"attempt"`
	Preview     upload.Preview `json:"preview"`
	Saved       bool           `json:"saved"`
}

type errorResponse struct {
	Error    string `json:"error"`
	Message  string `json:"message"`
	Observed int    `json:"observed,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

type sanitizeRequest struct {
	Text string `json:"text"`
	Rich bool   `json:"rich"`
}

type sanitizeResponse struct {
	Text string `json:"text"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleUpload holds a semaphore slot before touching the body, so
// max_concurrent also bounds multipart buffering.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	save := r.URL.Query().Get("save") == "true"
	if save && s.repo == nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "bad_request", Message: "Saving is not enabled on this server."})
		return
	}

	if err := s.sem.Acquire(r.Context(), 1); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "unavailable", Message: "The server is busy. Please try again."})
		return
	}
	defer s.sem.Release(1)

	opt := s.cfg.Upload
	if err := r.ParseMultipartForm(maxMemory); err != nil {
		rerr := &upload.ReadError{Err: err}
		s.session.Fail(s.session.Begin(), rerr)
		writeUploadError(w, rerr)
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	if v := r.FormValue("max_rows"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "bad_request", Message: "max_rows must be a positive integer."})
			return
		}
		if opt.MaxRows <= 0 || n < opt.MaxRows {
			opt.MaxRows = n
		}
	}

	attempt := s.session.Begin()

	file, header, err := r.FormFile("file")
	if err != nil {
		rerr := &upload.ReadError{Err: err}
		s.session.Fail(attempt, rerr)
		writeUploadError(w, rerr)
		return
	}
	defer file.Close()

	out, err := upload.ValidateReader(r.Context(), file, opt)
	if err != nil {
		s.session.Fail(attempt, err)
		writeUploadError(w, err)
		return
	}
	s.session.Commit(attempt, out)

	resp := uploadResponse{
		ID:          out.ID.String(),
		Fingerprint: out.Fingerprint,
		Format:      string(out.Format),
		Attempt:     attempt,
		Preview:     out.Preview,
	}
	if save && out.Preview.HasAllRequired {
		_, err := storage.Persist(r.Context(), s.repo, out, storage.PersistOptions{
			Filename:  header.Filename,
			BatchSize: s.cfg.SaveBatchSize,
			Job:       opt.Job,
			Logger:    s.log,
		})
		if err != nil {
			s.log.Error("save upload", zap.String("id", resp.ID), zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "save_failed", Message: "The file was validated but could not be saved. Please try again."})
			return
		}
		resp.Saved = true
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCurrent(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.session.Snapshot())
}

func (s *Server) handleClear(w http.ResponseWriter, _ *http.Request) {
	s.session.Clear()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSanitize(w http.ResponseWriter, r *http.Request) {
	var req sanitizeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "bad_request", Message: "Request body must be JSON."})
		return
	}
	out := sanitize.Text(req.Text)
	if req.Rich {
		out = sanitize.RichText(req.Text)
	}
	writeJSON(w, http.StatusOK, sanitizeResponse{Text: out})
}

// writeUploadError maps pipeline errors to status codes: read failures are
// the client's transport problem (400); content problems are 422.
func writeUploadError(w http.ResponseWriter, err error) {
	resp := errorResponse{Message: upload.UserMessage(err)}
	status := http.StatusUnprocessableEntity

	var limit *upload.RowLimitExceededError
	switch {
	case errors.As(err, &limit):
		resp.Error = "row_limit_exceeded"
		resp.Observed, resp.Limit = limit.Observed, limit.Limit
	case errors.Is(err, upload.ErrEmptyFile):
		resp.Error = "empty_file"
	case errors.Is(err, upload.ErrParse):
		resp.Error = "parse_error"
	case errors.Is(err, upload.ErrRead):
		resp.Error = "read_error"
		status = http.StatusBadRequest
	default:
		resp.Error = "internal"
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

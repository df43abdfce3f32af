// Package api exposes the import pipeline over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/Veraticus/the-trades-must-flow/internal/blob"
	"github.com/Veraticus/the-trades-must-flow/internal/common"
	"github.com/Veraticus/the-trades-must-flow/internal/ingest"
	"github.com/Veraticus/the-trades-must-flow/internal/model"
	"github.com/Veraticus/the-trades-must-flow/internal/service"
)

// DefaultMaxUploadBytes caps multipart uploads.
const DefaultMaxUploadBytes = 50 << 20

// Controller is the import surface the handlers drive.
type Controller interface {
	ingest.Importer
	Run(ctx context.Context, userID, jobID string) (*model.ImportRun, error)
	Runs(ctx context.Context, filter service.RunFilter) ([]model.ImportRun, error)
}

// Server routes import requests to a controller.
type Server struct {
	ctrl           Controller
	auth           *Authenticator
	files          *blob.LocalStore
	MaxUploadBytes int64
}

// NewServer creates a server. files may be nil when blobs are not stored
// locally.
func NewServer(ctrl Controller, auth *Authenticator, files *blob.LocalStore) *Server {
	return &Server{
		ctrl:           ctrl,
		auth:           auth,
		files:          files,
		MaxUploadBytes: DefaultMaxUploadBytes,
	}
}

// Router builds the HTTP routes.
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()
	router.Use(logRequests)

	router.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)

	if s.files != nil {
		router.HandleFunc("/files/{key:.+}", s.handleFile).Methods(http.MethodGet)
	}

	imports := router.PathPrefix("/import").Subrouter()
	imports.Use(s.auth.Middleware)
	imports.HandleFunc("/start", s.handleStart).Methods(http.MethodPost)
	imports.HandleFunc("/commit-chunk", s.handleCommitChunk).Methods(http.MethodPost)
	imports.HandleFunc("/runs", s.handleRuns).Methods(http.MethodGet)
	imports.HandleFunc("/{jobId}/mapping", s.handleMapping).Methods(http.MethodPut)
	imports.HandleFunc("/{jobId}", s.handleRun).Methods(http.MethodGet)

	return router
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserFromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, s.MaxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid upload: %v", err))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file")
		return
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("failed to read upload: %v", err))
		return
	}

	res, err := s.ctrl.Start(r.Context(), ingest.StartRequest{
		UserID:          userID,
		FileName:        header.Filename,
		FileType:        r.FormValue("file_type"),
		BrokerAccountID: r.FormValue("broker_account_id"),
		Data:            data,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleMapping(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserFromContext(r.Context())

	var req ingest.ConfigureRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid body: %v", err))
		return
	}
	run, err := s.ctrl.Configure(r.Context(), userID, mux.Vars(r)["jobId"], req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, NewRunView(run))
}

func (s *Server) handleCommitChunk(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserFromContext(r.Context())

	var req ingest.ChunkRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid body: %v", err))
		return
	}
	resp, err := s.ctrl.CommitChunk(r.Context(), userID, req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserFromContext(r.Context())

	run, err := s.ctrl.Run(r.Context(), userID, mux.Vars(r)["jobId"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, NewRunView(run))
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserFromContext(r.Context())

	filter := service.RunFilter{
		UserID: userID,
		Status: model.RunStatus(r.URL.Query().Get("status")),
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusUnprocessableEntity, "limit must be a non-negative integer")
			return
		}
		filter.Limit = n
	}

	runs, err := s.ctrl.Runs(r.Context(), filter)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	views := make([]RunView, len(runs))
	for i := range runs {
		views[i] = NewRunView(&runs[i])
	}
	writeJSON(w, http.StatusOK, views)
}

// handleFile serves signed links to locally stored blobs.
func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	q := r.URL.Query()
	if err := s.files.Verify(key, q.Get("expires"), q.Get("sig")); err != nil {
		writeError(w, http.StatusForbidden, err.Error())
		return
	}

	data, err := s.files.Get(r.Context(), key)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	contentType := "application/octet-stream"
	if path.Ext(key) == ".csv" {
		contentType = "text/csv"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", path.Base(key)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		common.LogDebug(r.Context(), "Failed to write file", common.Fields{"key": key, "error": err.Error()})
	}
}

// fail maps controller errors onto status codes.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	var failure *ingest.ChunkFailure
	switch {
	case errors.As(err, &failure):
		if failure.Response != nil {
			writeJSON(w, failure.Status, failure.Response)
			return
		}
		writeError(w, failure.Status, failure.Reason)
	case errors.Is(err, ingest.ErrRunNotFound), errors.Is(err, common.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ingest.ErrRunNotActive), errors.Is(err, ingest.ErrAlreadyStarted):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, common.ErrUnsupportedFile):
		writeError(w, http.StatusUnsupportedMediaType, err.Error())
	case errors.Is(err, common.ErrInvalidRequest):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		common.LogError(r.Context(), err, "Request failed", common.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
		})
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// RunView is the JSON form of an import run.
type RunView struct {
	CreatedAt      time.Time              `json:"createdAt"`
	HeartbeatAt    time.Time              `json:"heartbeatAt"`
	LeaseExpiresAt time.Time              `json:"leaseExpiresAt"`
	FinishedAt     *time.Time             `json:"finishedAt,omitempty"`
	Mapping        map[model.Field]string `json:"mapping,omitempty"`
	ID             string                 `json:"id"`
	JobID          string                 `json:"jobId"`
	Status         model.RunStatus        `json:"status"`
	Mode           model.MappingMode      `json:"mode"`
	Source         string                 `json:"source"`
	FileName       string                 `json:"fileName"`
	FileType       string                 `json:"fileType"`
	FailureReason  string                 `json:"failureReason,omitempty"`
	Summary        model.RunSummary       `json:"summary"`
	LastRowIndex   int                    `json:"lastRowIndex"`
	ProcessedBytes int64                  `json:"processedBytes"`
	TotalBytes     int64                  `json:"totalBytes"`
}

// NewRunView converts a run.
func NewRunView(run *model.ImportRun) RunView {
	return RunView{
		CreatedAt:      run.CreatedAt,
		HeartbeatAt:    run.HeartbeatAt,
		LeaseExpiresAt: run.LeaseExpiresAt,
		FinishedAt:     run.FinishedAt,
		Mapping:        run.Mapping,
		ID:             run.ID,
		JobID:          run.JobID,
		Status:         run.Status,
		Mode:           run.Mode,
		Source:         run.Source,
		FileName:       run.FileName,
		FileType:       run.FileType,
		FailureReason:  run.FailureReason,
		Summary:        run.Summary,
		LastRowIndex:   run.LastRowIndex,
		ProcessedBytes: run.ProcessedBytes,
		TotalBytes:     run.TotalBytes,
	}
}

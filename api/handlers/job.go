package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"transcriber/api/dto"
	"transcriber/api/middleware"
	"transcriber/api/repository"
	"transcriber/api/validation"
)

// UploadService is the batch upload surface consumed by the handler.
type UploadService interface {
	CheckBatch(files []validation.FileMeta) *dto.BatchCheckResponse
	InitiateBatch(ctx context.Context, files []validation.FileMeta) *dto.InitiateBatchResponse
	Complete(ctx context.Context, traceID, ownerID string, req *dto.CompleteUploadRequest) (*dto.JobResponse, error)
}

// JobService is the registry action surface consumed by the handler.
type JobService interface {
	ListActive(ctx context.Context, ownerID string) ([]dto.JobResponse, error)
	ListCompletedPage(ctx context.Context, ownerID string, offset, limit int) ([]dto.JobResponse, bool, error)
	Status(ctx context.Context, jobID string) (*dto.JobStatusResponse, error)
	Retry(ctx context.Context, jobID string) error
	Cancel(ctx context.Context, jobID string) error
	Delete(ctx context.Context, jobID string) error
}

type JobHandler struct {
	uploads      UploadService
	jobs         JobService
	defaultLimit int
	logger       *zap.Logger
}

func NewJobHandler(uploads UploadService, jobs JobService, defaultLimit int, logger *zap.Logger) *JobHandler {
	return &JobHandler{
		uploads:      uploads,
		jobs:         jobs,
		defaultLimit: defaultLimit,
		logger:       logger,
	}
}

func (h *JobHandler) CheckBatch(w http.ResponseWriter, r *http.Request) {
	traceID := middleware.GetTraceID(r.Context())

	var req dto.BatchCheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.handleError(w, "Invalid request body", err, traceID, http.StatusBadRequest)
		return
	}

	h.respondJSON(w, http.StatusOK, h.uploads.CheckBatch(req.Files))
}

func (h *JobHandler) InitiateBatch(w http.ResponseWriter, r *http.Request) {
	traceID := middleware.GetTraceID(r.Context())

	var req dto.InitiateBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.handleError(w, "Invalid request body", err, traceID, http.StatusBadRequest)
		return
	}
	if len(req.Files) == 0 {
		h.handleError(w, "No files provided", nil, traceID, http.StatusBadRequest)
		return
	}

	h.respondJSON(w, http.StatusOK, h.uploads.InitiateBatch(r.Context(), req.Files))
}

func (h *JobHandler) CompleteUpload(w http.ResponseWriter, r *http.Request) {
	traceID := middleware.GetTraceID(r.Context())
	ownerID := ownerFromRequest(r)

	var req dto.CompleteUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.handleError(w, "Invalid request body", err, traceID, http.StatusBadRequest)
		return
	}

	job, err := h.uploads.Complete(r.Context(), traceID, ownerID, &req)
	if err != nil {
		h.logger.Error("Finalize failed",
			zap.String("trace_id", traceID),
			zap.String("job_id", req.JobID),
			zap.Error(err),
		)
		h.respondJSON(w, http.StatusInternalServerError, dto.CompleteUploadResponse{
			Success: false,
			Error:   "failed to finalize upload",
		})
		return
	}

	h.respondJSON(w, http.StatusCreated, dto.CompleteUploadResponse{Success: true, Job: job})
}

func (h *JobHandler) ListActive(w http.ResponseWriter, r *http.Request) {
	traceID := middleware.GetTraceID(r.Context())

	jobs, err := h.jobs.ListActive(r.Context(), ownerFromRequest(r))
	if err != nil {
		h.handleError(w, "Failed to list active jobs", err, traceID, http.StatusInternalServerError)
		return
	}

	h.respondJSON(w, http.StatusOK, dto.ActiveJobsResponse{Success: true, Jobs: jobs})
}

func (h *JobHandler) ListCompleted(w http.ResponseWriter, r *http.Request) {
	traceID := middleware.GetTraceID(r.Context())

	offset := queryInt(r, "offset", 0)
	limit := queryInt(r, "limit", h.defaultLimit)

	jobs, hasMore, err := h.jobs.ListCompletedPage(r.Context(), ownerFromRequest(r), offset, limit)
	if err != nil {
		h.handleError(w, "Failed to load completed jobs", err, traceID, http.StatusInternalServerError)
		return
	}

	h.respondJSON(w, http.StatusOK, dto.CompletedPageResponse{
		Success: true,
		Jobs:    jobs,
		HasMore: hasMore,
	})
}

// Action dispatches /jobs/{id}/status, /jobs/{id}/retry, /jobs/{id}/cancel
// and DELETE /jobs/{id}.
func (h *JobHandler) Action(w http.ResponseWriter, r *http.Request) {
	traceID := middleware.GetTraceID(r.Context())

	jobID, action := splitJobPath(r.URL.Path)
	if jobID == "" {
		h.handleError(w, "Job ID is required", nil, traceID, http.StatusBadRequest)
		return
	}

	if r.Method == http.MethodGet && action == "status" {
		h.status(w, r, jobID, traceID)
		return
	}

	var err error
	switch {
	case r.Method == http.MethodDelete && action == "":
		err = h.jobs.Delete(r.Context(), jobID)
	case r.Method == http.MethodPost && action == "retry":
		err = h.jobs.Retry(r.Context(), jobID)
	case r.Method == http.MethodPost && action == "cancel":
		err = h.jobs.Cancel(r.Context(), jobID)
	default:
		h.handleError(w, "Unknown job action", nil, traceID, http.StatusNotFound)
		return
	}

	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, repository.ErrJobNotFound):
			status = http.StatusNotFound
		case errors.Is(err, repository.ErrInvalidTransition):
			status = http.StatusConflict
		}
		h.logger.Error("Job action failed",
			zap.String("trace_id", traceID),
			zap.String("job_id", jobID),
			zap.String("action", action),
			zap.Error(err),
		)
		h.respondJSON(w, status, dto.ActionResponse{Success: false, Error: err.Error()})
		return
	}

	h.respondJSON(w, http.StatusOK, dto.ActionResponse{Success: true})
}

func (h *JobHandler) status(w http.ResponseWriter, r *http.Request, jobID, traceID string) {
	resp, err := h.jobs.Status(r.Context(), jobID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repository.ErrJobNotFound) {
			status = http.StatusNotFound
		}
		h.handleError(w, "Failed to look up job status", err, traceID, status)
		return
	}
	h.respondJSON(w, http.StatusOK, resp)
}

func splitJobPath(path string) (jobID, action string) {
	rest := strings.TrimPrefix(path, "/jobs/")
	if rest == path {
		return "", ""
	}
	parts := strings.SplitN(rest, "/", 2)
	jobID = parts[0]
	if len(parts) == 2 {
		action = parts[1]
	}
	return jobID, action
}

func ownerFromRequest(r *http.Request) string {
	// Auth is handled upstream; the gateway forwards the owner identity.
	return r.Header.Get("X-Owner-ID")
}

func queryInt(r *http.Request, key string, defaultValue int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return defaultValue
}

func (h *JobHandler) handleError(w http.ResponseWriter, message string, err error, traceID string, status int) {
	h.logger.Error(message,
		zap.String("trace_id", traceID),
		zap.Error(err),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(dto.ErrorResponse{
		Error:   message,
		TraceID: traceID,
	})
}

func (h *JobHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

package daemon

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"dubber/internal/language"
	"dubber/internal/logging"
	"dubber/internal/notifications"
	"dubber/internal/queue"
	"dubber/internal/services"
)

const maxRequestBody = 1 << 20

type submitRequest struct {
	SourceAsset    string `json:"source_asset"`
	TargetLanguage string `json:"target_language"`
}

type jobResponse struct {
	ID             string `json:"id"`
	SourceAsset    string `json:"source_asset"`
	TargetLanguage string `json:"target_language"`
	Status         string `json:"status"`
	Stage          string `json:"stage,omitempty"`
	OutputAsset    string `json:"output_asset,omitempty"`
	ErrorMessage   string `json:"error_message,omitempty"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
	CompletedAt    string `json:"completed_at,omitempty"`
}

type logResponse struct {
	Stage     string `json:"stage"`
	Message   string `json:"message"`
	CreatedAt string `json:"created_at"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func jobToResponse(job *queue.Job) jobResponse {
	resp := jobResponse{
		ID:             job.ID,
		SourceAsset:    job.SourceAsset,
		TargetLanguage: job.TargetLanguage,
		Status:         string(job.Status),
		Stage:          string(job.Stage),
		OutputAsset:    job.OutputAsset,
		ErrorMessage:   job.ErrorMessage,
		CreatedAt:      job.CreatedAt.Format(time.RFC3339Nano),
		UpdatedAt:      job.UpdatedAt.Format(time.RFC3339Nano),
	}
	if job.CompletedAt != nil {
		resp.CompletedAt = job.CompletedAt.Format(time.RFC3339Nano)
	}
	return resp
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, format string, args ...any) {
	s.writeJSON(w, status, errorResponse{Error: fmt.Sprintf(format, args...)})
}

func (s *apiServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := decoder.Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: %v", err)
		return
	}

	req.SourceAsset = strings.TrimSpace(req.SourceAsset)
	req.TargetLanguage = strings.TrimSpace(req.TargetLanguage)
	if req.SourceAsset == "" {
		s.writeError(w, http.StatusUnprocessableEntity, "source_asset is required")
		return
	}
	if req.TargetLanguage == "" {
		s.writeError(w, http.StatusUnprocessableEntity, "target_language is required")
		return
	}
	canonical, err := language.Normalize(req.TargetLanguage)
	if err != nil {
		s.writeError(w, http.StatusUnprocessableEntity, "target_language %q is not a recognized language tag", req.TargetLanguage)
		return
	}

	ctx := services.WithRequestID(r.Context(), uuid.NewString())
	job, err := s.daemon.store.NewJob(ctx, req.SourceAsset, canonical)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "create job: %v", err)
		return
	}

	if err := s.daemon.notifier.Publish(ctx, notifications.EventJobSubmitted, notifications.Payload{
		JobID:          job.ID,
		TargetLanguage: job.TargetLanguage,
	}); err != nil {
		s.logger.Warn("publish job submitted", logging.String(logging.FieldJobID, job.ID), logging.Error(err))
	}

	s.logger.Info("job submitted",
		logging.String(logging.FieldJobID, job.ID),
		logging.String("target_language", job.TargetLanguage))
	s.writeJSON(w, http.StatusAccepted, jobToResponse(job))
}

func (s *apiServer) handleList(w http.ResponseWriter, r *http.Request) {
	var statuses []queue.Status
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			status := queue.Status(strings.TrimSpace(part))
			switch status {
			case queue.StatusPending, queue.StatusRunning, queue.StatusDone, queue.StatusFailed:
				statuses = append(statuses, status)
			default:
				s.writeError(w, http.StatusUnprocessableEntity, "unknown status %q", part)
				return
			}
		}
	}

	jobs, err := s.daemon.store.List(r.Context(), statuses...)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "list jobs: %v", err)
		return
	}

	resp := make([]jobResponse, 0, len(jobs))
	for _, job := range jobs {
		resp = append(resp, jobToResponse(job))
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) handleGet(w http.ResponseWriter, r *http.Request) {
	job, ok := s.lookupJob(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, jobToResponse(job))
}

func (s *apiServer) handleLogs(w http.ResponseWriter, r *http.Request) {
	job, ok := s.lookupJob(w, r)
	if !ok {
		return
	}

	entries, err := s.daemon.store.LogsForJob(r.Context(), job.ID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "load logs: %v", err)
		return
	}

	resp := make([]logResponse, 0, len(entries))
	for _, entry := range entries {
		resp = append(resp, logResponse{
			Stage:     entry.Stage,
			Message:   entry.Message,
			CreatedAt: entry.CreatedAt.Format(time.RFC3339Nano),
		})
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) handleResubmit(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	job, err := s.daemon.store.Resubmit(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, queue.ErrNotFound):
			s.writeError(w, http.StatusNotFound, "job %s not found", id)
		case errors.Is(err, queue.ErrNotResubmittable):
			s.writeError(w, http.StatusConflict, "%v", err)
		default:
			s.writeError(w, http.StatusInternalServerError, "resubmit job: %v", err)
		}
		return
	}

	if err := s.daemon.notifier.Publish(r.Context(), notifications.EventJobSubmitted, notifications.Payload{
		JobID:          job.ID,
		TargetLanguage: job.TargetLanguage,
	}); err != nil {
		s.logger.Warn("publish job submitted", logging.String(logging.FieldJobID, job.ID), logging.Error(err))
	}

	s.logger.Info("job resubmitted",
		logging.String("original_job_id", id),
		logging.String(logging.FieldJobID, job.ID))
	s.writeJSON(w, http.StatusAccepted, jobToResponse(job))
}

func (s *apiServer) handleDownload(w http.ResponseWriter, r *http.Request) {
	job, ok := s.lookupJob(w, r)
	if !ok {
		return
	}
	if job.Status != queue.StatusDone {
		s.writeError(w, http.StatusConflict, "job %s is %s, output is only available for done jobs", job.ID, job.Status)
		return
	}
	if job.OutputAsset == "" {
		s.writeError(w, http.StatusConflict, "job %s has no output asset", job.ID)
		return
	}

	// Remote outputs are returned as presigned redirects, local paths as-is.
	target := job.OutputAsset
	if s.presigner != nil && !strings.Contains(target, "://") {
		signed, err := s.presigner.SignDownload(target)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, "sign download: %v", err)
			return
		}
		target = signed
	}
	http.Redirect(w, r, target, http.StatusFound)
}

func (s *apiServer) handlePresign(w http.ResponseWriter, r *http.Request) {
	if s.presigner == nil {
		s.writeError(w, http.StatusServiceUnavailable, "upload storage is not configured")
		return
	}
	filename := strings.TrimSpace(r.URL.Query().Get("filename"))
	if filename == "" {
		s.writeError(w, http.StatusUnprocessableEntity, "filename query parameter is required")
		return
	}

	upload, err := s.presigner.SignUpload(filename)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "sign upload: %v", err)
		return
	}
	s.writeJSON(w, http.StatusOK, upload)
}

type healthResponse struct {
	Healthy  bool                 `json:"healthy"`
	Database queue.DatabaseHealth `json:"database"`
	Queue    queue.HealthSummary  `json:"queue"`
	Stages   []stageHealth        `json:"stages"`
}

type stageHealth struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbHealth, err := s.daemon.store.CheckHealth(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "database health: %v", err)
		return
	}
	summary, err := s.daemon.store.Health(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "queue health: %v", err)
		return
	}

	resp := healthResponse{
		Healthy:  dbHealth.Healthy,
		Database: dbHealth,
		Queue:    summary,
	}
	for _, h := range s.daemon.workflow.Health(r.Context()) {
		resp.Stages = append(resp.Stages, stageHealth{Name: h.Name, Ready: h.Ready, Detail: h.Detail})
		if !h.Ready {
			resp.Healthy = false
		}
	}

	status := http.StatusOK
	if !resp.Healthy {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, resp)
}

func (s *apiServer) lookupJob(w http.ResponseWriter, r *http.Request) (*queue.Job, bool) {
	id := mux.Vars(r)["id"]
	job, err := s.daemon.store.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, queue.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "job %s not found", id)
		} else {
			s.writeError(w, http.StatusInternalServerError, "load job: %v", err)
		}
		return nil, false
	}
	return job, true
}

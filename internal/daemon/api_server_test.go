package daemon

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"dubber/internal/logging"
	"dubber/internal/notifications"
	"dubber/internal/queue"
	"dubber/internal/services/storage"
	"dubber/internal/stage"
	"dubber/internal/testsupport"
	"dubber/internal/workflow"
)

type readyStage struct{ name string }

func (s readyStage) Prepare(context.Context, *queue.Job) error { return nil }
func (s readyStage) Execute(context.Context, *queue.Job) error { return nil }
func (s readyStage) HealthCheck(context.Context) stage.Health  { return stage.Healthy(s.name) }

func newTestServer(t *testing.T) (*apiServer, *queue.Store) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	logger := logging.NewNop()

	mgr := workflow.NewManagerWithStages(cfg, store, logger, notifications.Noop(), workflow.StageSet{
		Diarizer:    readyStage{name: "diarize"},
		Translator:  readyStage{name: "translate"},
		Synthesizer: readyStage{name: "synthesize"},
		Resyncer:    readyStage{name: "resync"},
	})

	presigner, err := storage.New(cfg.Storage)
	if err != nil {
		t.Fatalf("storage.New: %v", err)
	}

	d, err := New(cfg, store, logger, mgr, notifications.Noop(), presigner)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	return d.api, store
}

func doRequest(t *testing.T, srv *apiServer, method, target string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	w := httptest.NewRecorder()
	srv.routes().ServeHTTP(w, req)
	return w
}

func decodeJob(t *testing.T, w *httptest.ResponseRecorder) jobResponse {
	t.Helper()
	var resp jobResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return resp
}

func TestSubmitCreatesPendingJob(t *testing.T) {
	srv, store := newTestServer(t)

	w := doRequest(t, srv, http.MethodPost, "/api/jobs", `{"source_asset":"uploads/movie.mp4","target_language":"es"}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}

	resp := decodeJob(t, w)
	if resp.ID == "" {
		t.Fatal("expected job id in response")
	}
	if resp.Status != string(queue.StatusPending) {
		t.Fatalf("expected pending status, got %q", resp.Status)
	}

	job, err := store.GetByID(context.Background(), resp.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if job.SourceAsset != "uploads/movie.mp4" || job.TargetLanguage != "es" {
		t.Fatalf("persisted job mismatch: %+v", job)
	}
}

func TestSubmitRejectsInvalidInput(t *testing.T) {
	srv, _ := newTestServer(t)

	cases := []struct {
		name string
		body string
	}{
		{"missing source", `{"target_language":"es"}`},
		{"missing language", `{"source_asset":"uploads/movie.mp4"}`},
		{"bad language tag", `{"source_asset":"uploads/movie.mp4","target_language":"not a language"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := doRequest(t, srv, http.MethodPost, "/api/jobs", tc.body)
			if w.Code != http.StatusUnprocessableEntity {
				t.Fatalf("expected 422, got %d: %s", w.Code, w.Body.String())
			}
		})
	}
}

func TestSubmitRejectsMalformedBody(t *testing.T) {
	srv, _ := newTestServer(t)

	w := doRequest(t, srv, http.MethodPost, "/api/jobs", `{"source_asset":`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestGetJobNotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	w := doRequest(t, srv, http.MethodGet, "/api/jobs/missing", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestListFiltersByStatus(t *testing.T) {
	srv, store := newTestServer(t)
	ctx := context.Background()

	pending := testsupport.NewJob(t, store, "uploads/a.mp4", "es")
	failed := testsupport.NewJob(t, store, "uploads/b.mp4", "fr")
	failed.MarkFailed("boom")
	if err := store.Update(ctx, failed); err != nil {
		t.Fatalf("Update: %v", err)
	}

	w := doRequest(t, srv, http.MethodGet, "/api/jobs?status=failed", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp []jobResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp) != 1 || resp[0].ID != failed.ID {
		t.Fatalf("expected only the failed job, got %+v", resp)
	}

	w = doRequest(t, srv, http.MethodGet, "/api/jobs", "")
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(resp))
	}
	_ = pending

	w = doRequest(t, srv, http.MethodGet, "/api/jobs?status=bogus", "")
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for unknown status, got %d", w.Code)
	}
}

func TestLogsReturnedInInsertionOrder(t *testing.T) {
	srv, store := newTestServer(t)
	ctx := context.Background()

	job := testsupport.NewJob(t, store, "uploads/c.mp4", "de")
	for _, msg := range []string{"diarizing started", "diarizing completed", "translating started"} {
		if err := store.AppendLog(ctx, job.ID, queue.StageDiarizing, msg); err != nil {
			t.Fatalf("AppendLog: %v", err)
		}
	}

	w := doRequest(t, srv, http.MethodGet, "/api/jobs/"+job.ID+"/logs", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp []logResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp) != 3 {
		t.Fatalf("expected 3 log entries, got %d", len(resp))
	}
	if resp[0].Message != "diarizing started" || resp[2].Message != "translating started" {
		t.Fatalf("unexpected log order: %+v", resp)
	}
}

func TestResubmitFailedJob(t *testing.T) {
	srv, store := newTestServer(t)
	ctx := context.Background()

	job := testsupport.NewJob(t, store, "uploads/d.mp4", "it")
	job.MarkFailed("provider outage")
	if err := store.Update(ctx, job); err != nil {
		t.Fatalf("Update: %v", err)
	}

	w := doRequest(t, srv, http.MethodPost, "/api/jobs/"+job.ID+"/resubmit", "")
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
	resp := decodeJob(t, w)
	if resp.ID == job.ID {
		t.Fatal("resubmit must create a new job, not reuse the failed one")
	}
	if resp.Status != string(queue.StatusPending) {
		t.Fatalf("expected pending status, got %q", resp.Status)
	}
}

func TestResubmitRejectsPendingJob(t *testing.T) {
	srv, store := newTestServer(t)

	job := testsupport.NewJob(t, store, "uploads/e.mp4", "pt")
	w := doRequest(t, srv, http.MethodPost, "/api/jobs/"+job.ID+"/resubmit", "")
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}
}

func TestDownloadRequiresDoneJob(t *testing.T) {
	srv, store := newTestServer(t)
	ctx := context.Background()

	job := testsupport.NewJob(t, store, "uploads/f.mp4", "ja")
	w := doRequest(t, srv, http.MethodGet, "/api/jobs/"+job.ID+"/download", "")
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 for pending job, got %d", w.Code)
	}

	job.MarkDone("outputs/f-dubbed.mp4")
	if err := store.Update(ctx, job); err != nil {
		t.Fatalf("Update: %v", err)
	}

	w = doRequest(t, srv, http.MethodGet, "/api/jobs/"+job.ID+"/download", "")
	if w.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d: %s", w.Code, w.Body.String())
	}
	location := w.Header().Get("Location")
	if !strings.Contains(location, "outputs/f-dubbed.mp4") || !strings.Contains(location, "X-Amz-Signature") {
		t.Fatalf("expected presigned redirect for object key, got %q", location)
	}
}

func TestDownloadRedirectsToRemoteURLDirectly(t *testing.T) {
	srv, store := newTestServer(t)
	ctx := context.Background()

	job := testsupport.NewJob(t, store, "uploads/g.mp4", "ko")
	job.MarkDone("https://cdn.example.com/outputs/g-dubbed.mp4")
	if err := store.Update(ctx, job); err != nil {
		t.Fatalf("Update: %v", err)
	}

	w := doRequest(t, srv, http.MethodGet, "/api/jobs/"+job.ID+"/download", "")
	if w.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d", w.Code)
	}
	if got := w.Header().Get("Location"); got != "https://cdn.example.com/outputs/g-dubbed.mp4" {
		t.Fatalf("expected direct redirect, got %q", got)
	}
}

func TestPresignUpload(t *testing.T) {
	srv, _ := newTestServer(t)

	w := doRequest(t, srv, http.MethodGet, "/api/upload/presign?filename=movie.mp4", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp storage.Upload
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.URL == "" || resp.Key == "" {
		t.Fatalf("expected url and key, got %+v", resp)
	}

	w = doRequest(t, srv, http.MethodGet, "/api/upload/presign", "")
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 without filename, got %d", w.Code)
	}
}

func TestHealthReportsStagesAndQueue(t *testing.T) {
	srv, store := newTestServer(t)

	testsupport.NewJob(t, store, "uploads/h.mp4", "sv")

	w := doRequest(t, srv, http.MethodGet, "/api/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp healthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !resp.Healthy {
		t.Fatalf("expected healthy daemon, got %+v", resp)
	}
	if len(resp.Stages) != 4 {
		t.Fatalf("expected 4 stage reports, got %d", len(resp.Stages))
	}
	if resp.Queue.Pending != 1 {
		t.Fatalf("expected 1 pending job, got %+v", resp.Queue)
	}
}

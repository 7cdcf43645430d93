package workflow_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"dubber/internal/config"
	"dubber/internal/logging"
	"dubber/internal/notifications"
	"dubber/internal/queue"
	"dubber/internal/services"
	"dubber/internal/stage"
	"dubber/internal/testsupport"
	"dubber/internal/workflow"
)

type stubStage struct {
	name    string
	execute func(ctx context.Context, job *queue.Job) error
}

func (s *stubStage) Prepare(ctx context.Context, job *queue.Job) error { return nil }

func (s *stubStage) Execute(ctx context.Context, job *queue.Job) error {
	if s.execute != nil {
		return s.execute(ctx, job)
	}
	return nil
}

func (s *stubStage) HealthCheck(ctx context.Context) stage.Health {
	return stage.Healthy(s.name)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notifications.Event
}

func (r *recordingNotifier) Publish(ctx context.Context, event notifications.Event, payload notifications.Payload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingNotifier) Close() {}

func (r *recordingNotifier) has(event notifications.Event) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e == event {
			return true
		}
	}
	return false
}

func passingStages(finalAsset string) workflow.StageSet {
	return workflow.StageSet{
		Diarizer:    &stubStage{name: "diarize"},
		Translator:  &stubStage{name: "translate"},
		Synthesizer: &stubStage{name: "synthesize"},
		Resyncer: &stubStage{name: "resync", execute: func(ctx context.Context, job *queue.Job) error {
			job.OutputAsset = finalAsset
			return nil
		}},
	}
}

func startManager(t *testing.T, cfg *config.Config, store *queue.Store, notifier notifications.Service, stages workflow.StageSet) *workflow.Manager {
	t.Helper()
	manager := workflow.NewManagerWithStages(cfg, store, logging.NewNop(), notifier, stages)
	if err := manager.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(manager.Stop)
	return manager
}

func waitForTerminal(t *testing.T, store *queue.Store, id string) *queue.Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := store.GetByID(context.Background(), id)
		if err != nil {
			t.Fatalf("GetByID failed: %v", err)
		}
		if job.IsTerminal() {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("job never reached a terminal state")
	return nil
}

func TestManagerRunsJobThroughAllStages(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithJobWorkers(1))
	store := testsupport.MustOpenStore(t, cfg)
	notifier := &recordingNotifier{}
	job := testsupport.NewJob(t, store, "uploads/talk.mp4", "es")

	startManager(t, cfg, store, notifier, passingStages("outputs/talk-es.mp4"))

	final := waitForTerminal(t, store, job.ID)
	if final.Status != queue.StatusDone {
		t.Fatalf("expected done, got %s (%s)", final.Status, final.ErrorMessage)
	}
	if final.OutputAsset != "outputs/talk-es.mp4" {
		t.Fatalf("unexpected output asset %q", final.OutputAsset)
	}
	if final.ErrorMessage != "" {
		t.Fatalf("done job carries error %q", final.ErrorMessage)
	}

	entries, err := store.LogsForJob(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("LogsForJob failed: %v", err)
	}
	var messages []string
	for _, entry := range entries {
		messages = append(messages, entry.Message)
	}
	joined := strings.Join(messages, "\n")
	for _, want := range []string{
		"diarizing started", "diarizing completed",
		"translating started", "translating completed",
		"synthesizing started", "synthesizing completed",
		"resyncing started", "resyncing completed",
		"job completed",
	} {
		if !strings.Contains(joined, want) {
			t.Fatalf("missing log entry %q in:\n%s", want, joined)
		}
	}
	if !notifier.has(notifications.EventJobCompleted) {
		t.Fatal("expected job completed notification")
	}
}

// inspectingNotifier snapshots the stored job row whenever a stage completes,
// before the manager has a chance to mark the job done.
type inspectingNotifier struct {
	store *queue.Store
	mu    sync.Mutex
	seen  []queue.Job
}

func (n *inspectingNotifier) Publish(ctx context.Context, event notifications.Event, payload notifications.Payload) error {
	if event != notifications.EventStageCompleted {
		return nil
	}
	job, err := n.store.GetByID(ctx, payload.JobID)
	if err != nil {
		return err
	}
	n.mu.Lock()
	n.seen = append(n.seen, *job)
	n.mu.Unlock()
	return nil
}

func (n *inspectingNotifier) Close() {}

func TestRunningJobNeverExposesOutputAsset(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithJobWorkers(1))
	store := testsupport.MustOpenStore(t, cfg)
	notifier := &inspectingNotifier{store: store}
	job := testsupport.NewJob(t, store, "uploads/talk.mp4", "es")

	startManager(t, cfg, store, notifier, passingStages("outputs/talk-es.mp4"))

	final := waitForTerminal(t, store, job.ID)
	if final.Status != queue.StatusDone || final.OutputAsset != "outputs/talk-es.mp4" {
		t.Fatalf("expected done with output, got %s %q", final.Status, final.OutputAsset)
	}

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if len(notifier.seen) != 4 {
		t.Fatalf("expected 4 stage-completed snapshots, got %d", len(notifier.seen))
	}
	for _, snapshot := range notifier.seen {
		if snapshot.Status != queue.StatusRunning {
			continue
		}
		if snapshot.OutputAsset != "" {
			t.Fatalf("running job stored with output asset %q at stage %s", snapshot.OutputAsset, snapshot.Stage)
		}
	}
}

func TestManagerFailsJobAndStopsPipeline(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithJobWorkers(1))
	store := testsupport.MustOpenStore(t, cfg)
	notifier := &recordingNotifier{}
	job := testsupport.NewJob(t, store, "uploads/talk.mp4", "es")

	stages := passingStages("outputs/talk-es.mp4")
	stages.Translator = &stubStage{name: "translate", execute: func(ctx context.Context, job *queue.Job) error {
		return services.Wrap(services.ErrProvider, "translate", "submit", "model rejected request", nil)
	}}
	startManager(t, cfg, store, notifier, stages)

	final := waitForTerminal(t, store, job.ID)
	if final.Status != queue.StatusFailed {
		t.Fatalf("expected failed, got %s", final.Status)
	}
	if final.OutputAsset != "" {
		t.Fatalf("failed job carries output %q", final.OutputAsset)
	}
	if !strings.Contains(final.ErrorMessage, "model rejected request") {
		t.Fatalf("unexpected error message %q", final.ErrorMessage)
	}

	entries, err := store.LogsForJob(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("LogsForJob failed: %v", err)
	}
	for _, entry := range entries {
		if strings.HasPrefix(entry.Message, "synthesizing") || strings.HasPrefix(entry.Message, "resyncing") {
			t.Fatalf("later stages must not run after failure: %q", entry.Message)
		}
	}
	if !notifier.has(notifications.EventJobFailed) {
		t.Fatal("expected job failed notification")
	}
	if notifier.has(notifications.EventJobCompleted) {
		t.Fatal("failed job must not emit completion")
	}
}

func TestStartSweepsAbandonedRunningJobs(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithJobWorkers(1))
	store := testsupport.MustOpenStore(t, cfg)
	testsupport.NewJob(t, store, "uploads/orphan.mp4", "es")

	claimed, err := store.ClaimNext(context.Background())
	if err != nil || claimed == nil {
		t.Fatalf("ClaimNext failed: %v", err)
	}

	startManager(t, cfg, store, &recordingNotifier{}, passingStages("x"))

	final := waitForTerminal(t, store, claimed.ID)
	if final.Status != queue.StatusFailed {
		t.Fatalf("expected abandoned job to be failed, got %s", final.Status)
	}
	if !strings.Contains(final.ErrorMessage, "restarted") {
		t.Fatalf("unexpected sweep reason %q", final.ErrorMessage)
	}
}

func TestManagerResubmittedJobRunsFresh(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithJobWorkers(1))
	store := testsupport.MustOpenStore(t, cfg)
	job := testsupport.NewJob(t, store, "uploads/retry.mp4", "pt")

	failing := passingStages("never")
	failing.Diarizer = &stubStage{name: "diarize", execute: func(ctx context.Context, job *queue.Job) error {
		return services.Wrap(services.ErrOperationTimeout, "diarize", "poll", "provider stalled", nil)
	}}
	manager := startManager(t, cfg, store, &recordingNotifier{}, failing)

	failed := waitForTerminal(t, store, job.ID)
	if failed.Status != queue.StatusFailed {
		t.Fatalf("expected failed, got %s", failed.Status)
	}
	manager.Stop()

	fresh, err := store.Resubmit(context.Background(), failed.ID)
	if err != nil {
		t.Fatalf("Resubmit failed: %v", err)
	}

	startManager(t, cfg, store, &recordingNotifier{}, passingStages("outputs/retry-pt.mp4"))
	done := waitForTerminal(t, store, fresh.ID)
	if done.Status != queue.StatusDone {
		t.Fatalf("expected resubmitted job to complete, got %s (%s)", done.Status, done.ErrorMessage)
	}

	original, err := store.GetByID(context.Background(), failed.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if original.Status != queue.StatusFailed {
		t.Fatalf("original job must stay failed, got %s", original.Status)
	}
}

func TestHealthAggregatesStages(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	manager := workflow.NewManagerWithStages(cfg, store, logging.NewNop(), &recordingNotifier{}, passingStages("x"))

	results := manager.Health(context.Background())
	if len(results) != 4 {
		t.Fatalf("expected 4 stage health records, got %d", len(results))
	}
	for _, health := range results {
		if !health.Ready {
			t.Fatalf("expected healthy stage, got %#v", health)
		}
	}
}

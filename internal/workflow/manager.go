package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"dubber/internal/config"
	"dubber/internal/diarize"
	"dubber/internal/logging"
	"dubber/internal/notifications"
	"dubber/internal/queue"
	"dubber/internal/resync"
	"dubber/internal/stage"
	"dubber/internal/synthesize"
	"dubber/internal/translate"
)

// StageSet bundles the concrete pipeline handlers the manager orchestrates.
type StageSet struct {
	Diarizer    stage.Handler
	Translator  stage.Handler
	Synthesizer stage.Handler
	Resyncer    stage.Handler
}

// DefaultStages builds the production stage handlers.
func DefaultStages(cfg *config.Config, store *queue.Store, logger *slog.Logger) StageSet {
	return StageSet{
		Diarizer:    diarize.NewDiarizer(cfg, store, logger),
		Translator:  translate.NewTranslator(cfg, store, logger),
		Synthesizer: synthesize.NewSynthesizer(cfg, store, logger),
		Resyncer:    resync.NewResyncer(cfg, store, logger),
	}
}

type pipelineStage struct {
	name    queue.Stage
	handler stage.Handler
}

// Manager claims pending jobs and drives each one through the pipeline with
// a fixed-size worker pool.
type Manager struct {
	cfg          *config.Config
	store        *queue.Store
	logger       *slog.Logger
	notifier     notifications.Service
	stages       []pipelineStage
	pollInterval time.Duration
	errorRetry   time.Duration
	workers      int

	mu      sync.RWMutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	lastErr error
}

// NewManager constructs a workflow manager with production stages.
func NewManager(cfg *config.Config, store *queue.Store, logger *slog.Logger, notifier notifications.Service) *Manager {
	return NewManagerWithStages(cfg, store, logger, notifier, DefaultStages(cfg, store, logger))
}

// NewManagerWithStages allows injecting stage handlers (used in tests).
func NewManagerWithStages(cfg *config.Config, store *queue.Store, logger *slog.Logger, notifier notifications.Service, stages StageSet) *Manager {
	managerLogger := logger
	if managerLogger != nil {
		managerLogger = managerLogger.With(logging.String(logging.FieldComponent, "workflow-manager"))
	} else {
		managerLogger = logging.NewNop()
	}
	workers := cfg.Workflow.JobWorkers
	if workers < 1 {
		workers = 1
	}
	return &Manager{
		cfg:      cfg,
		store:    store,
		logger:   managerLogger,
		notifier: notifier,
		stages: []pipelineStage{
			{name: queue.StageDiarizing, handler: stages.Diarizer},
			{name: queue.StageTranslating, handler: stages.Translator},
			{name: queue.StageSynthesizing, handler: stages.Synthesizer},
			{name: queue.StageResyncing, handler: stages.Resyncer},
		},
		pollInterval: time.Duration(cfg.Workflow.QueuePollInterval) * time.Second,
		errorRetry:   time.Duration(cfg.Workflow.ErrorRetryInterval) * time.Second,
		workers:      workers,
	}
}

// Start sweeps jobs orphaned by a previous run and launches the worker pool.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	for _, stg := range m.stages {
		if stg.handler == nil {
			m.mu.Unlock()
			return errors.New("workflow stages not configured")
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.wg.Add(m.workers)
	m.mu.Unlock()

	swept, err := m.store.FailAbandonedRunning(runCtx, "daemon restarted while job was running")
	if err != nil {
		m.logger.Warn("failed to sweep abandoned jobs", logging.Error(err))
	} else if swept > 0 {
		m.logger.Info("failed abandoned jobs from previous run", logging.Int64("count", swept))
	}

	for i := 0; i < m.workers; i++ {
		go m.runWorker(runCtx, i)
	}
	return nil
}

// Stop terminates background processing and waits for workers to exit.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
}

func (m *Manager) runWorker(ctx context.Context, id int) {
	defer m.wg.Done()
	logger := m.logger.With(logging.Int("worker", id))

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := m.store.ClaimNext(ctx)
		if err != nil {
			m.setLastError(err)
			logger.Error("failed to claim next job",
				logging.Error(err),
				logging.String(logging.FieldEventType, "queue_claim_failed"),
			)
			m.wait(ctx, m.errorRetry)
			continue
		}
		if job == nil {
			m.wait(ctx, m.pollInterval)
			continue
		}

		if err := m.processJob(ctx, logger, job); err != nil && errors.Is(err, context.Canceled) {
			return
		}
	}
}

func (m *Manager) wait(ctx context.Context, d time.Duration) {
	if d <= 0 {
		d = time.Second
	}
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

// LastError returns the most recent orchestration error, if any.
func (m *Manager) LastError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastErr
}

package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"dubber/internal/logging"
	"dubber/internal/notifications"
	"dubber/internal/queue"
	"dubber/internal/services"
)

// processJob runs a freshly claimed job through every pipeline stage in
// order. The job arrives running at the first stage; each transition is
// persisted and logged before the next stage executes.
func (m *Manager) processJob(ctx context.Context, workerLogger *slog.Logger, job *queue.Job) error {
	requestID := uuid.NewString()
	jobCtx := services.WithRequestID(services.WithJobID(ctx, job.ID), requestID)
	jobLogger := workerLogger.With(logging.String(logging.FieldJobID, job.ID))

	jobStart := time.Now()
	for _, stg := range m.stages {
		if err := m.runStage(jobCtx, jobLogger, job, stg); err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			m.failJob(jobCtx, jobLogger, job, stg.name, err)
			return err
		}
	}

	job.MarkDone(job.OutputAsset)
	if err := m.store.Update(jobCtx, job); err != nil {
		m.setLastError(err)
		jobLogger.Error("failed to persist completed job", logging.Error(err))
		return err
	}
	m.appendLog(jobCtx, jobLogger, job.ID, queue.StageResyncing, "job completed")
	m.publish(jobCtx, jobLogger, notifications.EventJobCompleted, notifications.Payload{
		JobID:          job.ID,
		TargetLanguage: job.TargetLanguage,
		OutputAsset:    job.OutputAsset,
	})
	jobLogger.Info("job completed",
		logging.String(logging.FieldEventType, "job_complete"),
		logging.String("output_asset", job.OutputAsset),
		logging.Duration("job_duration", time.Since(jobStart)),
	)
	return nil
}

func (m *Manager) runStage(ctx context.Context, jobLogger *slog.Logger, job *queue.Job, stg pipelineStage) error {
	stageCtx := services.WithStage(ctx, string(stg.name))
	stageLogger := jobLogger.With(logging.String(logging.FieldStage, string(stg.name)))

	job.Stage = stg.name
	if err := m.store.Update(stageCtx, job); err != nil {
		return fmt.Errorf("persist stage transition: %w", err)
	}
	m.appendLog(stageCtx, stageLogger, job.ID, stg.name, string(stg.name)+" started")
	m.publish(stageCtx, stageLogger, notifications.EventStageStarted, notifications.Payload{
		JobID: job.ID,
		Stage: string(stg.name),
	})

	stageStart := time.Now()
	stageLogger.Info("stage started", logging.String(logging.FieldEventType, "stage_start"))

	if err := stg.handler.Prepare(stageCtx, job); err != nil {
		return err
	}
	if err := stg.handler.Execute(stageCtx, job); err != nil {
		return err
	}

	// Only terminal jobs carry an output asset; withhold it until MarkDone
	// so readers never observe output on a running job.
	output := job.OutputAsset
	job.OutputAsset = ""
	err := m.store.Update(stageCtx, job)
	job.OutputAsset = output
	if err != nil {
		return fmt.Errorf("persist stage result: %w", err)
	}
	m.appendLog(stageCtx, stageLogger, job.ID, stg.name, string(stg.name)+" completed")
	m.publish(stageCtx, stageLogger, notifications.EventStageCompleted, notifications.Payload{
		JobID: job.ID,
		Stage: string(stg.name),
	})
	stageLogger.Info("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.Duration("stage_duration", time.Since(stageStart)),
	)
	return nil
}

func (m *Manager) failJob(ctx context.Context, jobLogger *slog.Logger, job *queue.Job, stageName queue.Stage, stageErr error) {
	kind := services.Classify(stageErr)
	message := strings.TrimSpace(stageErr.Error())
	if message == "" {
		message = fmt.Sprintf("%s failed", stageName)
	}

	job.MarkFailed(message)
	if err := m.store.Update(ctx, job); err != nil {
		jobLogger.Error("failed to persist job failure", logging.Error(err))
	}
	m.appendLog(ctx, jobLogger, job.ID, stageName, message)
	m.publish(ctx, jobLogger, notifications.EventJobFailed, notifications.Payload{
		JobID: job.ID,
		Stage: string(stageName),
		Error: message,
	})

	m.setLastError(stageErr)
	jobLogger.Error("stage failed",
		logging.Error(stageErr),
		logging.String(logging.FieldStage, string(stageName)),
		logging.String(logging.FieldErrorKind, kind),
		logging.String(logging.FieldEventType, "stage_failure"),
	)
}

func (m *Manager) appendLog(ctx context.Context, logger *slog.Logger, jobID string, stageName queue.Stage, message string) {
	if err := m.store.AppendLog(ctx, jobID, stageName, message); err != nil {
		logger.Warn("failed to append job log", logging.Error(err))
	}
}

func (m *Manager) publish(ctx context.Context, logger *slog.Logger, event notifications.Event, payload notifications.Payload) {
	if m.notifier == nil {
		return
	}
	if err := m.notifier.Publish(ctx, event, payload); err != nil {
		logger.Warn("failed to publish notification",
			logging.String("event", string(event)),
			logging.Error(err),
		)
	}
}

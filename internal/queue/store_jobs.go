package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const jobColumns = "id, source_asset, target_language, status, stage, output_asset, error_message, segments_json, created_at, updated_at, completed_at"

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		id           string
		sourceAsset  string
		targetLang   string
		statusStr    string
		stageStr     sql.NullString
		outputAsset  sql.NullString
		errorMessage sql.NullString
		segmentsJSON sql.NullString
		createdRaw   string
		updatedRaw   string
		completedRaw sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&sourceAsset,
		&targetLang,
		&statusStr,
		&stageStr,
		&outputAsset,
		&errorMessage,
		&segmentsJSON,
		&createdRaw,
		&updatedRaw,
		&completedRaw,
	); err != nil {
		return nil, err
	}

	job := &Job{
		ID:             id,
		SourceAsset:    sourceAsset,
		TargetLanguage: targetLang,
		Status:         Status(statusStr),
		Stage:          Stage(stageStr.String),
		OutputAsset:    outputAsset.String,
		ErrorMessage:   errorMessage.String,
		SegmentsJSON:   segmentsJSON.String,
	}

	if created, err := parseTimeString(createdRaw); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		job.UpdatedAt = updated
	}
	if completedRaw.Valid {
		if completed, err := parseTimeString(completedRaw.String); err == nil {
			job.CompletedAt = &completed
		}
	}

	return job, nil
}

func parseTimeString(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, errors.New("empty timestamp")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, value)
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

// NewJob inserts a pending job for the given source asset and target language.
func (s *Store) NewJob(ctx context.Context, sourceAsset, targetLanguage string) (*Job, error) {
	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)
	id := uuid.NewString()

	_, err := s.execWithRetry(
		ctx,
		`INSERT INTO jobs (
            id, source_asset, target_language, status, stage,
            output_asset, error_message, segments_json, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		sourceAsset,
		targetLanguage,
		StatusPending,
		nil,
		nil,
		nil,
		nil,
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}

	return s.GetByID(ctx, id)
}

// GetByID loads a single job. Returns ErrNotFound when no job has that ID.
func (s *Store) GetByID(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+jobColumns+" FROM jobs WHERE id = ?", id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// Update persists the mutable fields of a job. The row is addressed by job ID
// alone so concurrent status changes never clobber a different job.
func (s *Store) Update(ctx context.Context, job *Job) error {
	if job == nil {
		return errors.New("nil job")
	}
	now := time.Now().UTC()
	job.UpdatedAt = now

	var completedAt any
	if job.IsTerminal() {
		if job.CompletedAt == nil {
			job.CompletedAt = &now
		}
		completedAt = job.CompletedAt.Format(time.RFC3339Nano)
	}

	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs SET
            status = ?, stage = ?, output_asset = ?, error_message = ?,
            segments_json = ?, updated_at = ?, completed_at = ?
         WHERE id = ?`,
		job.Status,
		nullableString(string(job.Stage)),
		nullableString(job.OutputAsset),
		nullableString(job.ErrorMessage),
		nullableString(job.SegmentsJSON),
		now.Format(time.RFC3339Nano),
		completedAt,
		job.ID,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update job rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, job.ID)
	}
	return nil
}

// List returns jobs ordered newest first, optionally filtered by status.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Job, error) {
	query := "SELECT " + jobColumns + " FROM jobs"
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		placeholders := make([]string, len(statuses))
		for i, status := range statuses {
			placeholders[i] = "?"
			args = append(args, status)
		}
		query += " WHERE status IN (" + strings.Join(placeholders, ", ") + ")"
	}
	query += " ORDER BY created_at DESC, id DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// ClaimNext atomically moves the oldest pending job to running at the first
// pipeline stage and returns it. Returns nil when no pending job exists.
func (s *Store) ClaimNext(ctx context.Context) (*Job, error) {
	ctx = ensureContext(ctx)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin claim tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx,
		"SELECT "+jobColumns+" FROM jobs WHERE status = ? ORDER BY created_at ASC, id ASC LIMIT 1",
		StatusPending,
	)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim candidate: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := tx.ExecContext(ctx,
		"UPDATE jobs SET status = ?, stage = ?, updated_at = ? WHERE id = ? AND status = ?",
		StatusRunning, StageDiarizing, now, job.ID, StatusPending,
	)
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("claim rows affected: %w", err)
	}
	if affected == 0 {
		// Lost the race to another worker.
		return nil, nil
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim: %w", err)
	}

	job.Status = StatusRunning
	job.Stage = StageDiarizing
	return job, nil
}

// Resubmit creates a fresh pending job from a failed job's parameters. Failed
// jobs never transition back to running themselves.
func (s *Store) Resubmit(ctx context.Context, id string) (*Job, error) {
	original, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if original.Status != StatusFailed {
		return nil, fmt.Errorf("job %s is %s: %w", id, original.Status, ErrNotResubmittable)
	}
	return s.NewJob(ctx, original.SourceAsset, original.TargetLanguage)
}

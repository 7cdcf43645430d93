package queue

import (
	"context"
	"fmt"
	"time"
)

// AppendLog records a progress entry for a job. Entries are append-only and
// ordered by their autoincrement ID.
func (s *Store) AppendLog(ctx context.Context, jobID string, stage Stage, message string) error {
	now := time.Now().UTC()
	if err := s.execWithoutResultRetry(
		ctx,
		`INSERT INTO job_logs (job_id, stage, message, created_at) VALUES (?, ?, ?, ?)`,
		jobID,
		string(stage),
		message,
		now.Format(time.RFC3339Nano),
	); err != nil {
		return fmt.Errorf("append job log: %w", err)
	}
	return nil
}

// LogsForJob returns all log entries for a job in insertion order.
func (s *Store) LogsForJob(ctx context.Context, jobID string) ([]LogEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, job_id, stage, message, created_at FROM job_logs WHERE job_id = ? ORDER BY id ASC`,
		jobID,
	)
	if err != nil {
		return nil, fmt.Errorf("query job logs: %w", err)
	}
	defer rows.Close()

	var entries []LogEntry
	for rows.Next() {
		var (
			entry      LogEntry
			createdRaw string
		)
		if err := rows.Scan(&entry.ID, &entry.JobID, &entry.Stage, &entry.Message, &createdRaw); err != nil {
			return nil, err
		}
		if created, err := parseTimeString(createdRaw); err == nil {
			entry.CreatedAt = created
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

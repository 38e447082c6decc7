package primary

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"docq/internal/models"
	"docq/internal/store"
)

// CreateJob inserts a new job record.
func (s *StoreImpl) CreateJob(ctx context.Context, job *models.QueueJob) error {
	query := `
		INSERT INTO jobs (job_id, queue_type, status, priority, user_id, payload,
			retry_count, max_retries, created_at, updated_at, estimated_duration)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	payload := job.Payload
	if payload == nil {
		payload = json.RawMessage("{}")
	}

	_, err := s.db.Exec(ctx, query,
		job.JobID,
		job.QueueType,
		job.Status,
		job.Priority,
		job.UserID,
		payload,
		job.RetryCount,
		job.MaxRetries,
		job.CreatedAt,
		job.UpdatedAt,
		job.EstimatedDuration,
	)
	if err != nil {
		return fmt.Errorf("failed to insert job %s: %w", job.JobID, err)
	}
	return nil
}

// GetJob fetches a single job record by its ID.
func (s *StoreImpl) GetJob(ctx context.Context, jobID string) (*models.QueueJob, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE job_id = $1`

	var job models.QueueJob
	err := scanJob(s.db.QueryRow(ctx, query, jobID), &job)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("job %s: %w", jobID, store.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get job %s: %w", jobID, err)
	}
	return &job, nil
}

// LeaseJob transitions a queued job to processing for the given worker. The
// status condition makes the lease idempotent under duplicate delivery: the
// second delivery sees ErrConflict and drops the message.
func (s *StoreImpl) LeaseJob(ctx context.Context, jobID, workerID string, now time.Time) (*models.QueueJob, error) {
	query := `
		UPDATE jobs
		SET status = $1, processing_started_at = $2, assigned_worker = $3, updated_at = $2
		WHERE job_id = $4 AND status = $5
		RETURNING ` + jobColumns

	var job models.QueueJob
	err := scanJob(s.db.QueryRow(ctx, query,
		models.JobStatusProcessing, now, workerID, jobID, models.JobStatusQueued,
	), &job)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Either the job does not exist or it is no longer queued.
			if _, getErr := s.GetJob(ctx, jobID); getErr != nil {
				return nil, getErr
			}
			return nil, fmt.Errorf("job %s is not leaseable: %w", jobID, store.ErrConflict)
		}
		return nil, fmt.Errorf("failed to lease job %s: %w", jobID, err)
	}
	return &job, nil
}

// CompleteJob transitions a processing job to completed and stores its result.
func (s *StoreImpl) CompleteJob(ctx context.Context, jobID string, result json.RawMessage, now time.Time) (*models.QueueJob, error) {
	query := `
		UPDATE jobs
		SET status = $1, processing_completed_at = $2, result = $3, updated_at = $2
		WHERE job_id = $4 AND status = $5
		RETURNING ` + jobColumns

	var job models.QueueJob
	err := scanJob(s.db.QueryRow(ctx, query,
		models.JobStatusCompleted, now, result, jobID, models.JobStatusProcessing,
	), &job)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if _, getErr := s.GetJob(ctx, jobID); getErr != nil {
				return nil, getErr
			}
			return nil, fmt.Errorf("job %s is not in processing state: %w", jobID, store.ErrConflict)
		}
		return nil, fmt.Errorf("failed to complete job %s: %w", jobID, err)
	}
	return &job, nil
}

// RecordRetry moves a processing job back to queued with the retry count
// incremented and the (possibly bumped) priority stored. The attempt's worker
// assignment and start timestamp are cleared. The status condition keeps a job
// cancelled mid-attempt from being resurrected by its own failure report.
func (s *StoreImpl) RecordRetry(ctx context.Context, jobID, errMsg string, priority models.JobPriority, now time.Time) (*models.QueueJob, error) {
	query := `
		UPDATE jobs
		SET status = $1, retry_count = retry_count + 1, priority = $2,
			error_message = $3, assigned_worker = NULL, processing_started_at = NULL,
			updated_at = $4
		WHERE job_id = $5 AND status = $6
		RETURNING ` + jobColumns

	var job models.QueueJob
	err := scanJob(s.db.QueryRow(ctx, query,
		models.JobStatusQueued, priority, errMsg, now, jobID, models.JobStatusProcessing,
	), &job)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if _, getErr := s.GetJob(ctx, jobID); getErr != nil {
				return nil, getErr
			}
			return nil, fmt.Errorf("job %s is not in processing state: %w", jobID, store.ErrConflict)
		}
		return nil, fmt.Errorf("failed to record retry for job %s: %w", jobID, err)
	}
	return &job, nil
}

// MarkTerminal sets a terminal status (failed or cancelled) on a job.
func (s *StoreImpl) MarkTerminal(ctx context.Context, jobID string, status models.JobStatus, errMsg string, now time.Time) error {
	if !status.Terminal() {
		return fmt.Errorf("status %s is not terminal", status)
	}
	query := `
		UPDATE jobs
		SET status = $1, error_message = $2, processing_completed_at = $3, updated_at = $3
		WHERE job_id = $4`

	cmdTag, err := s.db.Exec(ctx, query, status, errMsg, now, jobID)
	if err != nil {
		return fmt.Errorf("failed to mark job %s as %s: %w", jobID, status, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("job %s: %w", jobID, store.ErrNotFound)
	}
	return nil
}

// ListUserJobs returns a user's jobs, newest first, optionally filtered by
// status.
func (s *StoreImpl) ListUserJobs(ctx context.Context, userID string, status *models.JobStatus, limit int) ([]*models.QueueJob, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE user_id = $1`
	args := []any{userID}
	if status != nil {
		query += ` AND status = $2`
		args = append(args, *status)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT %d`, limit)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs for user %s: %w", userID, err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

// CountByStatus returns a status histogram for one queue type.
func (s *StoreImpl) CountByStatus(ctx context.Context, queue models.QueueType) (map[models.JobStatus]int, error) {
	query := `SELECT status, COUNT(*) FROM jobs WHERE queue_type = $1 GROUP BY status`

	rows, err := s.db.Query(ctx, query, queue)
	if err != nil {
		return nil, fmt.Errorf("failed to count jobs for queue %s: %w", queue, err)
	}
	defer rows.Close()

	counts := make(map[models.JobStatus]int)
	for rows.Next() {
		var status models.JobStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		counts[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating status counts: %w", err)
	}
	return counts, nil
}

// ListProcessingSince returns processing jobs whose attempt started after
// cutoff.
func (s *StoreImpl) ListProcessingSince(ctx context.Context, cutoff time.Time) ([]*models.QueueJob, error) {
	query := `SELECT ` + jobColumns + `
		FROM jobs
		WHERE status = $1 AND processing_started_at >= $2
		ORDER BY processing_started_at DESC`

	rows, err := s.db.Query(ctx, query, models.JobStatusProcessing, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list processing jobs: %w", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

// ListQueuedBefore returns queued jobs on one queue that were created before
// cutoff.
func (s *StoreImpl) ListQueuedBefore(ctx context.Context, queue models.QueueType, cutoff time.Time) ([]*models.QueueJob, error) {
	query := `SELECT ` + jobColumns + `
		FROM jobs
		WHERE status = $1 AND queue_type = $2 AND created_at < $3
		ORDER BY created_at ASC`

	rows, err := s.db.Query(ctx, query, models.JobStatusQueued, queue, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list queued jobs for queue %s: %w", queue, err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

// PurgeTerminal deletes completed and failed jobs that finished before cutoff
// and returns the number of records removed.
func (s *StoreImpl) PurgeTerminal(ctx context.Context, cutoff time.Time) (int, error) {
	query := `
		DELETE FROM jobs
		WHERE status = ANY($1)
			AND processing_completed_at IS NOT NULL
			AND processing_completed_at < $2`

	statuses := []models.JobStatus{models.JobStatusCompleted, models.JobStatusFailed}
	cmdTag, err := s.db.Exec(ctx, query, statuses, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge terminal jobs: %w", err)
	}
	return int(cmdTag.RowsAffected()), nil
}

func collectJobs(rows pgx.Rows) ([]*models.QueueJob, error) {
	var jobs []*models.QueueJob
	for rows.Next() {
		var job models.QueueJob
		if err := scanJob(rows, &job); err != nil {
			return nil, fmt.Errorf("failed to scan job row: %w", err)
		}
		jobs = append(jobs, &job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating job rows: %w", err)
	}
	return jobs, nil
}

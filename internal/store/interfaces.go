package store

import (
	"context"
	"encoding/json"
	"time"

	"docq/internal/models"
)

// JobStore persists job records. Every state transition is a single-record
// conditional update; there are no cross-record transactions.
type JobStore interface {
	CreateJob(ctx context.Context, job *models.QueueJob) error
	GetJob(ctx context.Context, jobID string) (*models.QueueJob, error)

	// LeaseJob transitions queued->processing for one record, stamping
	// processing_started_at and assigned_worker. Returns ErrConflict when
	// the record is not in queued state (duplicate delivery, cancellation
	// raced the lease, ...).
	LeaseJob(ctx context.Context, jobID, workerID string, now time.Time) (*models.QueueJob, error)

	// CompleteJob transitions processing->completed and stores the result
	// summary.
	CompleteJob(ctx context.Context, jobID string, result json.RawMessage, now time.Time) (*models.QueueJob, error)

	// RecordRetry moves a non-terminal record back to queued with the retry
	// count incremented, the error recorded, and the (possibly bumped)
	// priority stored.
	RecordRetry(ctx context.Context, jobID, errMsg string, priority models.JobPriority, now time.Time) (*models.QueueJob, error)

	// MarkTerminal sets a terminal status (failed or cancelled) with the
	// error message and stamps processing_completed_at.
	MarkTerminal(ctx context.Context, jobID string, status models.JobStatus, errMsg string, now time.Time) error

	ListUserJobs(ctx context.Context, userID string, status *models.JobStatus, limit int) ([]*models.QueueJob, error)
	CountByStatus(ctx context.Context, queue models.QueueType) (map[models.JobStatus]int, error)

	// ListProcessingSince returns processing-status records whose
	// processing_started_at falls after cutoff; the basis for worker
	// liveness inference.
	ListProcessingSince(ctx context.Context, cutoff time.Time) ([]*models.QueueJob, error)

	// ListQueuedBefore returns queued-status records created before cutoff,
	// candidates for the orphan reconciliation sweep.
	ListQueuedBefore(ctx context.Context, queue models.QueueType, cutoff time.Time) ([]*models.QueueJob, error)

	// PurgeTerminal deletes completed/failed records whose
	// processing_completed_at is older than cutoff and returns the count.
	// Queued and processing records are never touched.
	PurgeTerminal(ctx context.Context, cutoff time.Time) (int, error)

	Ping(ctx context.Context) error
}

// ObjectStore is the durable artifact collaborator (markdown, sidecars,
// manifest).
type ObjectStore interface {
	// Put writes an object and returns its externally addressable URL.
	Put(ctx context.Context, key string, body []byte, contentType string) (string, error)
	// Get reads an object. Returns ErrNotFound when the key does not exist.
	Get(ctx context.Context, key string) ([]byte, error)
}

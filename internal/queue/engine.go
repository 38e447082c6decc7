package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"docq/internal/broker"
	"docq/internal/config"
	"docq/internal/models"
	"docq/internal/store"
)

// Engine coordinates the job store and the message broker. The store is the
// source of truth for job state; broker messages are delivery triggers that
// carry only an envelope referencing the stored record.
type Engine struct {
	store  store.JobStore
	broker broker.Broker
	cfg    *config.Config

	// now is swappable for tests.
	now func() time.Time
}

// envelope is the broker message body. The payload lives in the job record,
// so a lost or duplicated message never loses or duplicates work.
type envelope struct {
	JobID     string             `json:"job_id"`
	QueueType models.QueueType   `json:"queue_type"`
	Priority  models.JobPriority `json:"priority"`
	UserID    string             `json:"user_id"`
	CreatedAt time.Time          `json:"created_at"`
}

// NewEngine creates a queue engine over the given store and broker.
func NewEngine(jobStore store.JobStore, b broker.Broker, cfg *config.Config) *Engine {
	return &Engine{
		store:  jobStore,
		broker: b,
		cfg:    cfg,
		now:    time.Now,
	}
}

// priorityDelay maps a priority to its initial delivery delay: urgent goes
// out immediately, each step down waits two more seconds.
func priorityDelay(p models.JobPriority) time.Duration {
	return time.Duration(int(models.PriorityUrgent)-int(p)) * 2 * time.Second
}

// Enqueue persists a new job record and publishes its delivery envelope.
// estimatedSeconds is an optional caller hint stored on the record.
func (e *Engine) Enqueue(ctx context.Context, queueType models.QueueType, userID string, payload json.RawMessage, priority models.JobPriority, estimatedSeconds *int) (*models.QueueJob, error) {
	if !queueType.Valid() {
		return nil, fmt.Errorf("unknown queue type %q: %w", queueType, models.ErrValidation)
	}
	if !priority.Valid() {
		return nil, fmt.Errorf("priority %d out of range: %w", int(priority), models.ErrValidation)
	}

	now := e.now().UTC()
	job := &models.QueueJob{
		JobID:             uuid.NewString(),
		QueueType:         queueType,
		Status:            models.JobStatusQueued,
		Priority:          priority,
		UserID:            userID,
		Payload:           payload,
		RetryCount:        0,
		MaxRetries:        e.cfg.Queue.MaxRetries,
		CreatedAt:         now,
		UpdatedAt:         now,
		EstimatedDuration: estimatedSeconds,
	}

	if err := e.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to persist job: %w", err)
	}

	if err := e.publish(ctx, job, priorityDelay(priority)); err != nil {
		// The record exists; the reconciliation sweep will republish it.
		log.Errorf("Job %s persisted but publish failed (reconcile will recover it): %v", job.JobID, err)
		return job, fmt.Errorf("failed to publish job %s: %w", job.JobID, err)
	}

	log.Infof("Enqueued job %s on %s (priority %s, delay %s)", job.JobID, queueType, priority, priorityDelay(priority))
	return job, nil
}

func (e *Engine) publish(ctx context.Context, job *models.QueueJob, delay time.Duration) error {
	body, err := json.Marshal(envelope{
		JobID:     job.JobID,
		QueueType: job.QueueType,
		Priority:  job.Priority,
		UserID:    job.UserID,
		CreatedAt: job.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	attrs := map[string]string{
		broker.AttrPriority: strconv.Itoa(int(job.Priority)),
		broker.AttrJobType:  string(job.QueueType),
	}
	_, err = e.broker.Publish(ctx, job.QueueType, body, delay, attrs)
	return err
}

// Dequeue receives one delivery from the queue and leases its job for the
// worker. Returns (nil, nil) when the queue yields nothing within the poll
// window, and silently drops deliveries whose job is no longer leaseable.
func (e *Engine) Dequeue(ctx context.Context, queueType models.QueueType, workerID string) (*models.QueueJob, error) {
	msg, err := e.broker.Receive(ctx, queueType, e.cfg.PollWait())
	if err != nil {
		return nil, fmt.Errorf("failed to receive from %s: %w", queueType, err)
	}
	if msg == nil {
		return nil, nil
	}

	var env envelope
	if err := json.Unmarshal(msg.Body, &env); err != nil {
		// Malformed body can never lease anything; drop it so it does not
		// cycle through redelivery into the DLQ slowly.
		log.Warnf("Dropping malformed message %s on %s: %v", msg.MessageID, queueType, err)
		if ackErr := e.broker.Ack(ctx, queueType, msg.ReceiptHandle); ackErr != nil {
			log.Warnf("Failed to ack malformed message %s: %v", msg.MessageID, ackErr)
		}
		return nil, nil
	}

	job, err := e.store.LeaseJob(ctx, env.JobID, workerID, e.now().UTC())
	if err != nil {
		if errors.Is(err, store.ErrConflict) || errors.Is(err, store.ErrNotFound) {
			// Duplicate delivery, cancellation, or a purged record. The
			// message has no work left to trigger.
			log.Debugf("Dropping delivery for job %s (not leaseable): %v", env.JobID, err)
			if ackErr := e.broker.Ack(ctx, queueType, msg.ReceiptHandle); ackErr != nil {
				log.Warnf("Failed to ack stale delivery for job %s: %v", env.JobID, ackErr)
			}
			return nil, nil
		}
		return nil, fmt.Errorf("failed to lease job %s: %w", env.JobID, err)
	}

	job.ReceiptHandle = msg.ReceiptHandle
	log.Infof("Worker %s leased job %s from %s (attempt %d/%d)", workerID, job.JobID, queueType, job.RetryCount+1, job.MaxRetries+1)
	return job, nil
}

// Complete marks a leased job completed, records its result summary, and acks
// the delivery. If the job was cancelled mid-flight the delivery is still
// acked and ErrConflict is returned.
func (e *Engine) Complete(ctx context.Context, job *models.QueueJob, result json.RawMessage) error {
	completed, err := e.store.CompleteJob(ctx, job.JobID, result, e.now().UTC())
	if err != nil && !errors.Is(err, store.ErrConflict) {
		return fmt.Errorf("failed to complete job %s: %w", job.JobID, err)
	}

	if job.ReceiptHandle != "" {
		if ackErr := e.broker.Ack(ctx, job.QueueType, job.ReceiptHandle); ackErr != nil {
			log.Warnf("Job %s completed but ack failed (duplicate delivery will be dropped on lease): %v", job.JobID, ackErr)
		}
	}

	if err != nil {
		log.Warnf("Job %s finished after it was cancelled; result discarded", job.JobID)
		return err
	}
	if completed.ProcessingStartedAt != nil {
		log.Infof("Completed job %s in %s", job.JobID, completed.ProcessingDuration())
	}
	return nil
}

// Fail records a failed attempt. When retry is true and attempts remain, the
// job goes back to queued with its priority bumped one level and a fresh
// envelope is published; otherwise it is marked failed. The original delivery
// is never acked here, so the broker's redelivery cap still backstops jobs
// whose failure handling itself fails.
func (e *Engine) Fail(ctx context.Context, jobID, errMsg string, retry bool) error {
	job, err := e.store.GetJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to load failing job %s: %w", jobID, err)
	}

	// A terminal record is never resurrected. A failure reported after
	// cancellation settled the job is dropped.
	if job.Status.Terminal() {
		log.Warnf("Job %s is already %s; discarding failure report: %s", jobID, job.Status, errMsg)
		return nil
	}

	if retry && job.RetryCount < job.MaxRetries {
		bumped := job.Priority.Bump()
		retried, err := e.store.RecordRetry(ctx, jobID, errMsg, bumped, e.now().UTC())
		if err != nil {
			return fmt.Errorf("failed to record retry for job %s: %w", jobID, err)
		}
		if err := e.publish(ctx, retried, priorityDelay(bumped)); err != nil {
			log.Errorf("Retry of job %s recorded but publish failed (reconcile will recover it): %v", jobID, err)
			return fmt.Errorf("failed to republish job %s: %w", jobID, err)
		}
		log.Warnf("Job %s failed (attempt %d/%d), retrying at priority %s: %s", jobID, retried.RetryCount, job.MaxRetries, bumped, errMsg)
		return nil
	}

	if err := e.store.MarkTerminal(ctx, jobID, models.JobStatusFailed, errMsg, e.now().UTC()); err != nil {
		return fmt.Errorf("failed to mark job %s failed: %w", jobID, err)
	}
	log.Errorf("Job %s failed permanently after %d retries: %s", jobID, job.RetryCount, errMsg)
	return nil
}

// Cancel marks a job cancelled. Queued jobs never start; processing jobs run
// to the end of the current attempt, whose Complete then finds the terminal
// status and discards the result.
func (e *Engine) Cancel(ctx context.Context, jobID string) error {
	job, err := e.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return fmt.Errorf("job %s is already %s: %w", jobID, job.Status, store.ErrConflict)
	}
	if err := e.store.MarkTerminal(ctx, jobID, models.JobStatusCancelled, "cancelled by user", e.now().UTC()); err != nil {
		return fmt.Errorf("failed to cancel job %s: %w", jobID, err)
	}
	log.Infof("Cancelled job %s (was %s)", jobID, job.Status)
	return nil
}

// GetJobStatus fetches a single job record.
func (e *Engine) GetJobStatus(ctx context.Context, jobID string) (*models.QueueJob, error) {
	return e.store.GetJob(ctx, jobID)
}

// GetUserJobs lists a user's jobs, newest first, optionally filtered by
// status.
func (e *Engine) GetUserJobs(ctx context.Context, userID string, status *models.JobStatus, limit int) ([]*models.QueueJob, error) {
	if limit <= 0 {
		limit = 50
	}
	return e.store.ListUserJobs(ctx, userID, status, limit)
}

// PurgeCompletedJobs deletes completed and failed jobs older than the given
// number of days and returns the number removed.
func (e *Engine) PurgeCompletedJobs(ctx context.Context, olderThanDays int) (int, error) {
	if olderThanDays <= 0 {
		return 0, fmt.Errorf("retention days must be positive: %w", models.ErrValidation)
	}
	cutoff := e.now().UTC().AddDate(0, 0, -olderThanDays)
	removed, err := e.store.PurgeTerminal(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge terminal jobs: %w", err)
	}
	log.Infof("Purged %d terminal jobs completed before %s", removed, cutoff.Format(time.RFC3339))
	return removed, nil
}

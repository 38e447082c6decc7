package queue

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docq/internal/broker"
	"docq/internal/config"
	"docq/internal/models"
	"docq/internal/store"
)

// fakeStore is an in-memory store.JobStore mirroring the conditional-update
// contract of the SQL implementation.
type fakeStore struct {
	mu   sync.Mutex
	jobs map[string]*models.QueueJob
}

func newFakeStore() *fakeStore {
	return &fakeStore{jobs: make(map[string]*models.QueueJob)}
}

func (f *fakeStore) CreateJob(_ context.Context, job *models.QueueJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *job
	f.jobs[job.JobID] = &copied
	return nil
}

func (f *fakeStore) GetJob(_ context.Context, jobID string) (*models.QueueJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[jobID]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := *job
	return &copied, nil
}

func (f *fakeStore) LeaseJob(_ context.Context, jobID, workerID string, now time.Time) (*models.QueueJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[jobID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if job.Status != models.JobStatusQueued {
		return nil, store.ErrConflict
	}
	job.Status = models.JobStatusProcessing
	job.ProcessingStartedAt = &now
	job.AssignedWorker = &workerID
	job.UpdatedAt = now
	copied := *job
	return &copied, nil
}

func (f *fakeStore) CompleteJob(_ context.Context, jobID string, result json.RawMessage, now time.Time) (*models.QueueJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[jobID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if job.Status != models.JobStatusProcessing {
		return nil, store.ErrConflict
	}
	job.Status = models.JobStatusCompleted
	job.ProcessingCompletedAt = &now
	job.Result = result
	job.UpdatedAt = now
	copied := *job
	return &copied, nil
}

func (f *fakeStore) RecordRetry(_ context.Context, jobID, errMsg string, priority models.JobPriority, now time.Time) (*models.QueueJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[jobID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if job.Status != models.JobStatusProcessing {
		return nil, store.ErrConflict
	}
	job.Status = models.JobStatusQueued
	job.RetryCount++
	job.Priority = priority
	job.ErrorMessage = &errMsg
	job.AssignedWorker = nil
	job.ProcessingStartedAt = nil
	job.UpdatedAt = now
	copied := *job
	return &copied, nil
}

func (f *fakeStore) MarkTerminal(_ context.Context, jobID string, status models.JobStatus, errMsg string, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[jobID]
	if !ok {
		return store.ErrNotFound
	}
	job.Status = status
	job.ErrorMessage = &errMsg
	job.ProcessingCompletedAt = &now
	job.UpdatedAt = now
	return nil
}

func (f *fakeStore) ListUserJobs(_ context.Context, userID string, status *models.JobStatus, limit int) ([]*models.QueueJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.QueueJob
	for _, job := range f.jobs {
		if job.UserID != userID {
			continue
		}
		if status != nil && job.Status != *status {
			continue
		}
		copied := *job
		out = append(out, &copied)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (f *fakeStore) CountByStatus(_ context.Context, queue models.QueueType) (map[models.JobStatus]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := make(map[models.JobStatus]int)
	for _, job := range f.jobs {
		if job.QueueType == queue {
			counts[job.Status]++
		}
	}
	return counts, nil
}

func (f *fakeStore) ListProcessingSince(_ context.Context, cutoff time.Time) ([]*models.QueueJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.QueueJob
	for _, job := range f.jobs {
		if job.Status != models.JobStatusProcessing || job.ProcessingStartedAt == nil {
			continue
		}
		if job.ProcessingStartedAt.Before(cutoff) {
			continue
		}
		copied := *job
		out = append(out, &copied)
	}
	return out, nil
}

func (f *fakeStore) ListQueuedBefore(_ context.Context, queue models.QueueType, cutoff time.Time) ([]*models.QueueJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.QueueJob
	for _, job := range f.jobs {
		if job.Status != models.JobStatusQueued || job.QueueType != queue {
			continue
		}
		if !job.CreatedAt.Before(cutoff) {
			continue
		}
		copied := *job
		out = append(out, &copied)
	}
	return out, nil
}

func (f *fakeStore) PurgeTerminal(_ context.Context, cutoff time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	removed := 0
	for id, job := range f.jobs {
		if job.Status != models.JobStatusCompleted && job.Status != models.JobStatusFailed {
			continue
		}
		if job.ProcessingCompletedAt == nil || !job.ProcessingCompletedAt.Before(cutoff) {
			continue
		}
		delete(f.jobs, id)
		removed++
	}
	return removed, nil
}

func (f *fakeStore) Ping(context.Context) error { return nil }

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Queue.MaxRetries = 3
	cfg.Queue.WorkerWindowMinutes = 10
	cfg.Queue.ReconcileAgeSeconds = 120
	cfg.Broker.PollWaitSeconds = 1
	return cfg
}

func testEngine(t *testing.T) (*Engine, *fakeStore, *broker.MemoryBroker) {
	t.Helper()
	queues := make(map[models.QueueType]config.QueueConfig)
	for _, qt := range models.AllQueueTypes {
		queues[qt] = config.QueueConfig{VisibilitySeconds: 30, MaxReceiveCount: 3}
	}
	b := broker.NewMemoryBroker(queues)
	b.SetPollInterval(5 * time.Millisecond)
	st := newFakeStore()
	return NewEngine(st, b, testConfig()), st, b
}

func TestPriorityDelay(t *testing.T) {
	assert.Equal(t, 6*time.Second, priorityDelay(models.PriorityLow))
	assert.Equal(t, 4*time.Second, priorityDelay(models.PriorityNormal))
	assert.Equal(t, 2*time.Second, priorityDelay(models.PriorityHigh))
	assert.Equal(t, time.Duration(0), priorityDelay(models.PriorityUrgent))
}

func TestEnqueuePersistsAndPublishes(t *testing.T) {
	ctx := context.Background()
	e, st, b := testEngine(t)

	job, err := e.Enqueue(ctx, models.QueueDocumentProcessing, "u1", json.RawMessage(`{"files":[]}`), models.PriorityUrgent, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, job.JobID)
	assert.Equal(t, models.JobStatusQueued, job.Status)
	assert.Equal(t, 3, job.MaxRetries)

	stored, err := st.GetJob(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusQueued, stored.Status)

	time.Sleep(10 * time.Millisecond)
	depth, err := b.Depth(ctx, models.QueueDocumentProcessing)
	require.NoError(t, err)
	assert.Equal(t, 1, depth.Visible+depth.Delayed)
}

func TestEnqueueRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	e, _, _ := testEngine(t)

	_, err := e.Enqueue(ctx, "bogus", "u1", nil, models.PriorityNormal, nil)
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = e.Enqueue(ctx, models.QueueDocumentProcessing, "u1", nil, models.JobPriority(9), nil)
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestDequeueLeasesJob(t *testing.T) {
	ctx := context.Background()
	e, _, _ := testEngine(t)

	enqueued, err := e.Enqueue(ctx, models.QueueDocumentProcessing, "u1", json.RawMessage(`{}`), models.PriorityUrgent, nil)
	require.NoError(t, err)

	leased, err := e.Dequeue(ctx, models.QueueDocumentProcessing, "w1")
	require.NoError(t, err)
	require.NotNil(t, leased)
	assert.Equal(t, enqueued.JobID, leased.JobID)
	assert.Equal(t, models.JobStatusProcessing, leased.Status)
	require.NotNil(t, leased.AssignedWorker)
	assert.Equal(t, "w1", *leased.AssignedWorker)
	assert.NotEmpty(t, leased.ReceiptHandle)
}

func TestDequeueEmptyQueue(t *testing.T) {
	e, _, _ := testEngine(t)

	job, err := e.Dequeue(context.Background(), models.QueueDocumentProcessing, "w1")
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestDequeueDropsCancelledJob(t *testing.T) {
	ctx := context.Background()
	e, _, b := testEngine(t)

	job, err := e.Enqueue(ctx, models.QueueDocumentProcessing, "u1", json.RawMessage(`{}`), models.PriorityUrgent, nil)
	require.NoError(t, err)
	require.NoError(t, e.Cancel(ctx, job.JobID))

	leased, err := e.Dequeue(ctx, models.QueueDocumentProcessing, "w1")
	require.NoError(t, err)
	assert.Nil(t, leased, "cancelled job must not lease")

	// The stale delivery was acked away.
	depth, err := b.Depth(ctx, models.QueueDocumentProcessing)
	require.NoError(t, err)
	assert.Zero(t, depth.Visible+depth.InFlight)
}

func TestCompleteStoresResultAndAcks(t *testing.T) {
	ctx := context.Background()
	e, st, b := testEngine(t)

	_, err := e.Enqueue(ctx, models.QueueDocumentProcessing, "u1", json.RawMessage(`{}`), models.PriorityUrgent, nil)
	require.NoError(t, err)
	leased, err := e.Dequeue(ctx, models.QueueDocumentProcessing, "w1")
	require.NoError(t, err)
	require.NotNil(t, leased)

	result := json.RawMessage(`{"successful_documents":2}`)
	require.NoError(t, e.Complete(ctx, leased, result))

	stored, err := st.GetJob(ctx, leased.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, stored.Status)
	assert.JSONEq(t, string(result), string(stored.Result))
	assert.NotNil(t, stored.ProcessingCompletedAt)

	depth, err := b.Depth(ctx, models.QueueDocumentProcessing)
	require.NoError(t, err)
	assert.Zero(t, depth.Visible+depth.InFlight)
}

func TestFailRetriesWithPriorityBump(t *testing.T) {
	ctx := context.Background()
	e, st, b := testEngine(t)

	job, err := e.Enqueue(ctx, models.QueueDocumentProcessing, "u1", json.RawMessage(`{}`), models.PriorityUrgent, nil)
	require.NoError(t, err)
	_, err = e.Dequeue(ctx, models.QueueDocumentProcessing, "w1")
	require.NoError(t, err)

	require.NoError(t, e.Fail(ctx, job.JobID, "transient error", true))

	stored, err := st.GetJob(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusQueued, stored.Status)
	assert.Equal(t, 1, stored.RetryCount)
	assert.Equal(t, models.PriorityUrgent, stored.Priority, "urgent stays capped")
	require.NotNil(t, stored.ErrorMessage)
	assert.Equal(t, "transient error", *stored.ErrorMessage)

	// A fresh envelope was published for the retry.
	time.Sleep(10 * time.Millisecond)
	depth, err := b.Depth(ctx, models.QueueDocumentProcessing)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, depth.Visible+depth.Delayed, 1)
}

func TestFailBumpsLowerPriorities(t *testing.T) {
	ctx := context.Background()
	e, st, _ := testEngine(t)

	job, err := e.Enqueue(ctx, models.QueueDocumentProcessing, "u1", json.RawMessage(`{}`), models.PriorityNormal, nil)
	require.NoError(t, err)
	_, err = st.LeaseJob(ctx, job.JobID, "w1", time.Now().UTC())
	require.NoError(t, err)

	require.NoError(t, e.Fail(ctx, job.JobID, "boom", true))

	stored, err := st.GetJob(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.PriorityHigh, stored.Priority)
}

func TestFailExhaustedGoesTerminal(t *testing.T) {
	ctx := context.Background()
	e, st, _ := testEngine(t)

	job, err := e.Enqueue(ctx, models.QueueDocumentProcessing, "u1", json.RawMessage(`{}`), models.PriorityUrgent, nil)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err = st.LeaseJob(ctx, job.JobID, "w1", time.Now().UTC())
		require.NoError(t, err)
		require.NoError(t, e.Fail(ctx, job.JobID, "still broken", true))
	}
	// Retries spent; the next failure is final.
	_, err = st.LeaseJob(ctx, job.JobID, "w1", time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, e.Fail(ctx, job.JobID, "still broken", true))

	stored, err := st.GetJob(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, stored.Status)
	assert.Equal(t, 3, stored.RetryCount)
}

func TestFailNonRetryableGoesTerminal(t *testing.T) {
	ctx := context.Background()
	e, st, _ := testEngine(t)

	job, err := e.Enqueue(ctx, models.QueueDocumentProcessing, "u1", json.RawMessage(`{}`), models.PriorityUrgent, nil)
	require.NoError(t, err)

	require.NoError(t, e.Fail(ctx, job.JobID, "bad payload", false))

	stored, err := st.GetJob(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, stored.Status)
	assert.Zero(t, stored.RetryCount)
}

func TestCancelTerminalJobRejected(t *testing.T) {
	ctx := context.Background()
	e, _, _ := testEngine(t)

	job, err := e.Enqueue(ctx, models.QueueDocumentProcessing, "u1", json.RawMessage(`{}`), models.PriorityUrgent, nil)
	require.NoError(t, err)
	require.NoError(t, e.Cancel(ctx, job.JobID))

	err = e.Cancel(ctx, job.JobID)
	assert.ErrorIs(t, err, store.ErrConflict)
}

func TestFailAfterCancelKeepsTerminalStatus(t *testing.T) {
	ctx := context.Background()
	e, st, _ := testEngine(t)

	job, err := e.Enqueue(ctx, models.QueueDocumentProcessing, "u1", json.RawMessage(`{}`), models.PriorityUrgent, nil)
	require.NoError(t, err)
	leased, err := e.Dequeue(ctx, models.QueueDocumentProcessing, "w1")
	require.NoError(t, err)
	require.NotNil(t, leased)

	// Cancelled mid-attempt; the attempt's failure must not requeue it.
	require.NoError(t, e.Cancel(ctx, job.JobID))
	require.NoError(t, e.Fail(ctx, job.JobID, "attempt blew up", true))

	stored, err := st.GetJob(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCancelled, stored.Status)
	assert.Zero(t, stored.RetryCount)
}

func TestRecordRetryRequiresProcessingState(t *testing.T) {
	ctx := context.Background()
	_, st, _ := testEngine(t)

	now := time.Now().UTC()
	st.jobs["settled"] = &models.QueueJob{
		JobID: "settled", QueueType: models.QueueDocumentProcessing,
		Status: models.JobStatusCancelled, ProcessingCompletedAt: &now,
	}

	_, err := st.RecordRetry(ctx, "settled", "late failure", models.PriorityHigh, now)
	assert.ErrorIs(t, err, store.ErrConflict)

	stored, err := st.GetJob(ctx, "settled")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCancelled, stored.Status)
}

func TestPurgeRequiresPositiveRetention(t *testing.T) {
	e, _, _ := testEngine(t)
	_, err := e.PurgeCompletedJobs(context.Background(), 0)
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestPurgeOnlyRemovesOldTerminalJobs(t *testing.T) {
	ctx := context.Background()
	e, st, _ := testEngine(t)

	old := time.Now().UTC().AddDate(0, 0, -40)
	recent := time.Now().UTC().AddDate(0, 0, -5)

	st.jobs["old-done"] = &models.QueueJob{
		JobID: "old-done", QueueType: models.QueueDocumentProcessing,
		Status: models.JobStatusCompleted, ProcessingCompletedAt: &old,
	}
	st.jobs["recent-done"] = &models.QueueJob{
		JobID: "recent-done", QueueType: models.QueueDocumentProcessing,
		Status: models.JobStatusCompleted, ProcessingCompletedAt: &recent,
	}
	st.jobs["old-queued"] = &models.QueueJob{
		JobID: "old-queued", QueueType: models.QueueDocumentProcessing,
		Status: models.JobStatusQueued, CreatedAt: old,
	}

	removed, err := e.PurgeCompletedJobs(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = st.GetJob(ctx, "recent-done")
	assert.NoError(t, err)
	_, err = st.GetJob(ctx, "old-queued")
	assert.NoError(t, err)
}

func TestGetActiveWorkersWindow(t *testing.T) {
	ctx := context.Background()
	e, st, _ := testEngine(t)

	fresh := time.Now().UTC().Add(-2 * time.Minute)
	stale := time.Now().UTC().Add(-30 * time.Minute)
	w1, w2 := "w1", "w2"

	st.jobs["a"] = &models.QueueJob{
		JobID: "a", QueueType: models.QueueDocumentProcessing,
		Status: models.JobStatusProcessing, ProcessingStartedAt: &fresh, AssignedWorker: &w1,
	}
	st.jobs["b"] = &models.QueueJob{
		JobID: "b", QueueType: models.QueueDocumentProcessing,
		Status: models.JobStatusProcessing, ProcessingStartedAt: &stale, AssignedWorker: &w2,
	}

	workers, err := e.GetActiveWorkers(ctx)
	require.NoError(t, err)
	require.Len(t, workers, 1, "stale attempt means the worker is presumed dead")
	assert.Equal(t, "w1", workers[0].WorkerID)
	assert.Equal(t, 1, workers[0].ActiveJobs)
}

func TestReconcileRepublishesOrphans(t *testing.T) {
	ctx := context.Background()
	e, st, b := testEngine(t)

	st.jobs["orphan"] = &models.QueueJob{
		JobID: "orphan", QueueType: models.QueueDocumentProcessing,
		Status: models.JobStatusQueued, Priority: models.PriorityNormal,
		CreatedAt: time.Now().UTC().Add(-10 * time.Minute),
	}
	st.jobs["young"] = &models.QueueJob{
		JobID: "young", QueueType: models.QueueDocumentProcessing,
		Status: models.JobStatusQueued, Priority: models.PriorityNormal,
		CreatedAt: time.Now().UTC(),
	}

	republished, err := e.Reconcile(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, republished)

	time.Sleep(10 * time.Millisecond)
	depth, err := b.Depth(ctx, models.QueueDocumentProcessing)
	require.NoError(t, err)
	assert.Equal(t, 1, depth.Visible)
}

func TestQueueStatisticsHealth(t *testing.T) {
	ctx := context.Background()
	e, st, _ := testEngine(t)

	st.jobs["j"] = &models.QueueJob{
		JobID: "j", QueueType: models.QueueDocumentProcessing, Status: models.JobStatusQueued,
	}

	stats, err := e.GetQueueStatistics(ctx, models.QueueDocumentProcessing)
	require.NoError(t, err)
	assert.Equal(t, HealthHealthy, stats.Health)
	assert.Equal(t, 1, stats.StatusCounts[models.JobStatusQueued])

	sys, err := e.GetSystemStatistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, HealthHealthy, sys.OverallHealth)
	assert.Len(t, sys.Queues, len(models.AllQueueTypes))
}

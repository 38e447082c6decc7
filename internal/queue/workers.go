package queue

import (
	"context"
	"fmt"
	"sort"
	"time"

	"docq/internal/models"
)

// WorkerJob is one in-flight job attributed to a worker.
type WorkerJob struct {
	JobID     string           `json:"job_id"`
	QueueType models.QueueType `json:"queue_type"`
	StartedAt time.Time        `json:"started_at"`
	Elapsed   time.Duration    `json:"elapsed"`
}

// WorkerInfo describes one worker inferred from the jobs it holds. There is
// no worker registry; a worker is "active" exactly when it holds a processing
// job whose attempt started inside the liveness window.
type WorkerInfo struct {
	WorkerID   string      `json:"worker_id"`
	Jobs       []WorkerJob `json:"jobs"`
	OldestJob  time.Time   `json:"oldest_job"`
	ActiveJobs int         `json:"active_jobs"`
}

// GetActiveWorkers groups processing jobs started within the liveness window
// by their assigned worker, sorted by worker ID.
func (e *Engine) GetActiveWorkers(ctx context.Context) ([]WorkerInfo, error) {
	now := e.now().UTC()
	cutoff := now.Add(-e.cfg.WorkerWindow())

	jobs, err := e.store.ListProcessingSince(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list processing jobs: %w", err)
	}

	byWorker := make(map[string]*WorkerInfo)
	for _, job := range jobs {
		if job.AssignedWorker == nil || job.ProcessingStartedAt == nil {
			continue
		}
		info, ok := byWorker[*job.AssignedWorker]
		if !ok {
			info = &WorkerInfo{WorkerID: *job.AssignedWorker, OldestJob: *job.ProcessingStartedAt}
			byWorker[*job.AssignedWorker] = info
		}
		if job.ProcessingStartedAt.Before(info.OldestJob) {
			info.OldestJob = *job.ProcessingStartedAt
		}
		info.Jobs = append(info.Jobs, WorkerJob{
			JobID:     job.JobID,
			QueueType: job.QueueType,
			StartedAt: *job.ProcessingStartedAt,
			Elapsed:   now.Sub(*job.ProcessingStartedAt),
		})
		info.ActiveJobs++
	}

	workers := make([]WorkerInfo, 0, len(byWorker))
	for _, info := range byWorker {
		workers = append(workers, *info)
	}
	sort.Slice(workers, func(i, j int) bool { return workers[i].WorkerID < workers[j].WorkerID })
	return workers, nil
}

package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"docq/internal/config"
	"docq/internal/models"
)

// Engine is the queue surface the worker drives: leasing deliveries,
// reporting outcomes, and running maintenance actions.
type Engine interface {
	Dequeue(ctx context.Context, queue models.QueueType, workerID string) (*models.QueueJob, error)
	Complete(ctx context.Context, job *models.QueueJob, result json.RawMessage) error
	Fail(ctx context.Context, jobID, errMsg string, retry bool) error
	PurgeCompletedJobs(ctx context.Context, olderThanDays int) (int, error)
	Reconcile(ctx context.Context, age time.Duration) (int, error)
}

// Pipeline processes one leased document job.
type Pipeline interface {
	Run(ctx context.Context, job *models.QueueJob) (*models.ProcessingResult, error)
}

// Worker polls its configured queues, leases jobs, and dispatches them to the
// matching handler. One Worker drives Concurrency independent poll loops.
type Worker struct {
	engine   Engine
	pipeline Pipeline
	cfg      *config.Config
	id       string
	queues   []models.QueueType
}

// New creates a worker. The worker ID comes from config when set, otherwise
// hostname plus a random suffix.
func New(engine Engine, pl Pipeline, cfg *config.Config) (*Worker, error) {
	id := cfg.Worker.ID
	if id == "" {
		host, err := os.Hostname()
		if err != nil {
			host = "worker"
		}
		id = fmt.Sprintf("%s-%s", host, uuid.NewString()[:8])
	}

	var queues []models.QueueType
	for _, name := range cfg.Worker.Queues {
		qt := models.QueueType(name)
		if !qt.Valid() {
			return nil, fmt.Errorf("unknown queue %q in worker config", name)
		}
		if qt == models.QueueApprovalWorkflow {
			// Approval jobs are resolved by human decisions, not this worker.
			log.Warnf("Ignoring approval queue in worker config; approvals are not worker-processed")
			continue
		}
		queues = append(queues, qt)
	}
	if len(queues) == 0 {
		return nil, errors.New("worker has no processable queues configured")
	}

	return &Worker{
		engine:   engine,
		pipeline: pl,
		cfg:      cfg,
		id:       id,
		queues:   queues,
	}, nil
}

// ID returns the worker's identifier as recorded on leased jobs.
func (w *Worker) ID() string { return w.id }

// Run processes jobs until the context is cancelled. In-flight jobs run to
// completion; only the polling stops.
func (w *Worker) Run(ctx context.Context) error {
	log.Infof("Worker %s starting with concurrency %d on queues %v", w.id, w.cfg.Worker.Concurrency, w.queues)

	var wg sync.WaitGroup
	for i := 0; i < w.cfg.Worker.Concurrency; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			w.loop(ctx, slot)
		}(i)
	}
	wg.Wait()

	log.Infof("Worker %s stopped", w.id)
	return nil
}

// loop polls the queues round-robin. The long-poll wait inside Dequeue keeps
// an idle loop from spinning.
func (w *Worker) loop(ctx context.Context, slot int) {
	for i := 0; ; i++ {
		if ctx.Err() != nil {
			return
		}
		qt := w.queues[i%len(w.queues)]

		job, err := w.engine.Dequeue(ctx, qt, w.id)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Errorf("Worker %s slot %d: dequeue from %s failed: %v", w.id, slot, qt, err)
			continue
		}
		if job == nil {
			continue
		}

		// The attempt finishes even when shutdown was requested mid-job.
		w.process(context.WithoutCancel(ctx), job)
	}
}

func (w *Worker) process(ctx context.Context, job *models.QueueJob) {
	var result json.RawMessage
	var err error

	switch job.QueueType {
	case models.QueueDocumentProcessing:
		result, err = w.processDocument(ctx, job)
	case models.QueueMaintenance:
		result, err = w.processMaintenance(ctx, job)
	default:
		err = fmt.Errorf("%w: worker cannot process queue %s", models.ErrValidation, job.QueueType)
	}

	if err != nil {
		retry := retryable(err)
		if failErr := w.engine.Fail(ctx, job.JobID, err.Error(), retry); failErr != nil {
			log.Errorf("Worker %s: failed to record failure of job %s: %v", w.id, job.JobID, failErr)
		}
		return
	}

	if err := w.engine.Complete(ctx, job, result); err != nil {
		log.Errorf("Worker %s: failed to complete job %s: %v", w.id, job.JobID, err)
	}
}

func (w *Worker) processDocument(ctx context.Context, job *models.QueueJob) (json.RawMessage, error) {
	result, err := w.pipeline.Run(ctx, job)
	if err != nil {
		return nil, err
	}
	return json.Marshal(result)
}

func (w *Worker) processMaintenance(ctx context.Context, job *models.QueueJob) (json.RawMessage, error) {
	payload, err := models.DecodeMaintenancePayload(job.Payload)
	if err != nil {
		return nil, err
	}

	switch payload.Action {
	case models.MaintenanceActionPurge:
		removed, err := w.engine.PurgeCompletedJobs(ctx, payload.OlderThanDays)
		if err != nil {
			return nil, err
		}
		return json.Marshal(map[string]int{"purged_jobs": removed})
	case models.MaintenanceActionReconcile:
		age := time.Duration(payload.MinAgeSeconds) * time.Second
		republished, err := w.engine.Reconcile(ctx, age)
		if err != nil {
			return nil, err
		}
		return json.Marshal(map[string]int{"republished_jobs": republished})
	default:
		return nil, fmt.Errorf("%w: unknown maintenance action %q", models.ErrValidation, payload.Action)
	}
}

// retryable reports whether a processing error can be cured by rerunning.
// Payload and content problems stay broken no matter how often they run.
func retryable(err error) bool {
	switch {
	case errors.Is(err, models.ErrValidation),
		errors.Is(err, models.ErrNoText),
		errors.Is(err, models.ErrDimensionMismatch):
		return false
	}
	return true
}

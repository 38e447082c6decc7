package queue

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"docq/internal/models"
)

// Reconcile republishes envelopes for jobs that are still queued well past
// their creation: their original publish failed, or the message was lost.
// Republishing a job whose original envelope is merely slow is harmless; the
// second delivery loses the lease race and gets dropped. An age of zero uses
// the configured default.
func (e *Engine) Reconcile(ctx context.Context, age time.Duration) (int, error) {
	if age <= 0 {
		age = e.cfg.ReconcileAge()
	}
	cutoff := e.now().UTC().Add(-age)

	republished := 0
	for _, qt := range models.AllQueueTypes {
		jobs, err := e.store.ListQueuedBefore(ctx, qt, cutoff)
		if err != nil {
			return republished, fmt.Errorf("failed to list stale queued jobs on %s: %w", qt, err)
		}
		for _, job := range jobs {
			if err := e.publish(ctx, job, 0); err != nil {
				log.Warnf("Failed to republish orphaned job %s: %v", job.JobID, err)
				continue
			}
			log.Infof("Republished orphaned job %s on %s (queued since %s)", job.JobID, qt, job.CreatedAt)
			republished++
		}
	}
	return republished, nil
}

package queue

import (
	"context"
	"fmt"

	"docq/internal/broker"
	"docq/internal/models"
)

// QueueStatistics is a snapshot of one queue: broker depths plus the job
// store's status histogram.
type QueueStatistics struct {
	QueueType    models.QueueType         `json:"queue_type"`
	Depth        broker.Depth             `json:"depth"`
	StatusCounts map[models.JobStatus]int `json:"status_counts"`
	Health       string                   `json:"health"`
}

// SystemStatistics aggregates all queues. OverallHealth is "warning" as soon
// as any queue reports warning.
type SystemStatistics struct {
	Queues        []QueueStatistics `json:"queues"`
	OverallHealth string            `json:"overall_health"`
}

const (
	HealthHealthy = "healthy"
	HealthWarning = "warning"
)

// GetQueueStatistics snapshots a single queue.
func (e *Engine) GetQueueStatistics(ctx context.Context, queueType models.QueueType) (*QueueStatistics, error) {
	if !queueType.Valid() {
		return nil, fmt.Errorf("unknown queue type %q: %w", queueType, models.ErrValidation)
	}

	depth, err := e.broker.Depth(ctx, queueType)
	if err != nil {
		return nil, fmt.Errorf("failed to get broker depth for %s: %w", queueType, err)
	}
	counts, err := e.store.CountByStatus(ctx, queueType)
	if err != nil {
		return nil, fmt.Errorf("failed to count jobs for %s: %w", queueType, err)
	}

	// Dead letters mean deliveries exhausted their redelivery budget without
	// ever being acked; that always warrants attention.
	health := HealthHealthy
	if depth.DeadLetter > 0 {
		health = HealthWarning
	}

	return &QueueStatistics{
		QueueType:    queueType,
		Depth:        depth,
		StatusCounts: counts,
		Health:       health,
	}, nil
}

// GetSystemStatistics snapshots every configured queue.
func (e *Engine) GetSystemStatistics(ctx context.Context) (*SystemStatistics, error) {
	sys := &SystemStatistics{OverallHealth: HealthHealthy}
	for _, qt := range models.AllQueueTypes {
		stats, err := e.GetQueueStatistics(ctx, qt)
		if err != nil {
			return nil, err
		}
		if stats.Health != HealthHealthy {
			sys.OverallHealth = stats.Health
		}
		sys.Queues = append(sys.Queues, *stats)
	}
	return sys, nil
}

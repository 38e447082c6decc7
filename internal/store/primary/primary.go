package primary

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"docq/internal/models"
)

// StoreImpl implements the store.JobStore interface using PostgreSQL.
type StoreImpl struct {
	db *pgxpool.Pool
}

// NewPrimaryStore creates a new PostgreSQL job store implementation.
func NewPrimaryStore(ctx context.Context, dsn string) (*StoreImpl, error) {
	if dsn == "" {
		return nil, errors.New("database DSN cannot be empty")
	}
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database DSN: %w", err)
	}

	dbpool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := dbpool.Ping(ctx); err != nil {
		dbpool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &StoreImpl{db: dbpool}, nil
}

// Ping checks the database connection.
func (s *StoreImpl) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection pool.
func (s *StoreImpl) Close() {
	s.db.Close()
}

// jobColumns is the canonical SELECT column order; scanJob must match it.
const jobColumns = `job_id, queue_type, status, priority, user_id, payload,
	retry_count, max_retries, created_at, updated_at,
	processing_started_at, processing_completed_at,
	error_message, assigned_worker, estimated_duration, result`

// scanJob scans a single row into a models.QueueJob. Column order must match
// jobColumns.
func scanJob(row pgx.Row, dest *models.QueueJob) error {
	return row.Scan(
		&dest.JobID,
		&dest.QueueType,
		&dest.Status,
		&dest.Priority,
		&dest.UserID,
		&dest.Payload,
		&dest.RetryCount,
		&dest.MaxRetries,
		&dest.CreatedAt,
		&dest.UpdatedAt,
		&dest.ProcessingStartedAt,
		&dest.ProcessingCompletedAt,
		&dest.ErrorMessage,
		&dest.AssignedWorker,
		&dest.EstimatedDuration,
		&dest.Result,
	)
}

package models

import (
	"encoding/json"
	"time"
)

// JobStatus is the lifecycle state of a queued job.
//
// queued/processing/completed/failed/cancelled form the sub-machine owned by
// the queue engine. The approval states are written by the approval workflow
// collaborator and are passed through untouched.
type JobStatus string

const (
	JobStatusQueued          JobStatus = "queued"
	JobStatusProcessing      JobStatus = "processing"
	JobStatusCompleted       JobStatus = "completed"
	JobStatusFailed          JobStatus = "failed"
	JobStatusCancelled       JobStatus = "cancelled"
	JobStatusPendingApproval JobStatus = "pending_approval"
	JobStatusApproved        JobStatus = "approved"
	JobStatusRejected        JobStatus = "rejected"
)

// AllJobStatuses lists every status, used when building histograms.
var AllJobStatuses = []JobStatus{
	JobStatusQueued, JobStatusProcessing, JobStatusCompleted, JobStatusFailed,
	JobStatusCancelled, JobStatusPendingApproval, JobStatusApproved, JobStatusRejected,
}

// Terminal reports whether the status is an end state for the queue engine.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// Valid reports whether s is a known status value.
func (s JobStatus) Valid() bool {
	for _, known := range AllJobStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// JobPriority orders jobs within a queue. Higher values are delivered with a
// shorter initial delay; they do not constitute strict ordering.
type JobPriority int

const (
	PriorityLow    JobPriority = 1
	PriorityNormal JobPriority = 2
	PriorityHigh   JobPriority = 3
	PriorityUrgent JobPriority = 4
)

// Bump returns the priority raised by one level, capped at urgent.
func (p JobPriority) Bump() JobPriority {
	if p >= PriorityUrgent {
		return PriorityUrgent
	}
	return p + 1
}

// Valid reports whether p is within the defined range.
func (p JobPriority) Valid() bool {
	return p >= PriorityLow && p <= PriorityUrgent
}

func (p JobPriority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityUrgent:
		return "urgent"
	}
	return "unknown"
}

// QueueType names one of the logical queues.
type QueueType string

const (
	QueueDocumentProcessing QueueType = "document_processing"
	QueueApprovalWorkflow   QueueType = "approval_workflow"
	QueueMaintenance        QueueType = "maintenance"
)

// AllQueueTypes lists the queues the engine manages.
var AllQueueTypes = []QueueType{QueueDocumentProcessing, QueueApprovalWorkflow, QueueMaintenance}

// Valid reports whether q is a known queue type.
func (q QueueType) Valid() bool {
	for _, known := range AllQueueTypes {
		if q == known {
			return true
		}
	}
	return false
}

// QueueJob is the persisted record for one unit of work. It mirrors the jobs
// table; the payload is opaque to the queue engine and interpreted only by
// the processing pipeline.
type QueueJob struct {
	JobID                 string          `db:"job_id" json:"job_id"`
	QueueType             QueueType       `db:"queue_type" json:"queue_type"`
	Status                JobStatus       `db:"status" json:"status"`
	Priority              JobPriority     `db:"priority" json:"priority"`
	UserID                string          `db:"user_id" json:"user_id"`
	Payload               json.RawMessage `db:"payload" json:"payload"`
	RetryCount            int             `db:"retry_count" json:"retry_count"`
	MaxRetries            int             `db:"max_retries" json:"max_retries"`
	CreatedAt             time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time       `db:"updated_at" json:"updated_at"`
	ProcessingStartedAt   *time.Time      `db:"processing_started_at" json:"processing_started_at,omitempty"`
	ProcessingCompletedAt *time.Time      `db:"processing_completed_at" json:"processing_completed_at,omitempty"`
	ErrorMessage          *string         `db:"error_message" json:"error_message,omitempty"`
	AssignedWorker        *string         `db:"assigned_worker" json:"assigned_worker,omitempty"`
	EstimatedDuration     *int            `db:"estimated_duration" json:"estimated_duration,omitempty"`
	Result                json.RawMessage `db:"result" json:"result,omitempty"`

	// ReceiptHandle identifies the broker message this record was leased
	// from. Transient: set by Dequeue, consumed by Complete, never persisted.
	ReceiptHandle string `db:"-" json:"-"`
}

// ProcessingDuration returns the wall time between lease and completion, or
// zero when either timestamp is missing.
func (j *QueueJob) ProcessingDuration() time.Duration {
	if j.ProcessingStartedAt == nil || j.ProcessingCompletedAt == nil {
		return 0
	}
	return j.ProcessingCompletedAt.Sub(*j.ProcessingStartedAt)
}

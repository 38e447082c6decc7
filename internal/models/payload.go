package models

import (
	"encoding/json"
	"fmt"
)

// Payloads form a tagged union keyed by queue type. The queue engine treats
// them as raw JSON; workers decode the variant for their queue and validate
// it before acting on it.

// FileInput is one uploaded file carried inside a document job. Content is
// base64-encoded by encoding/json's []byte handling.
type FileInput struct {
	Filename string `json:"filename"`
	Content  []byte `json:"content"`
}

// DocumentPayload describes a document-processing job: any mix of uploaded
// files and remote URLs.
type DocumentPayload struct {
	JobName string      `json:"job_name,omitempty"`
	Files   []FileInput `json:"files,omitempty"`
	URLs    []string    `json:"urls,omitempty"`
}

// Validate checks the payload holds at least one processable input.
func (p *DocumentPayload) Validate() error {
	if len(p.Files) == 0 && len(p.URLs) == 0 {
		return fmt.Errorf("%w: document payload has no files or urls", ErrValidation)
	}
	for i, f := range p.Files {
		if f.Filename == "" {
			return fmt.Errorf("%w: file %d has no filename", ErrValidation, i)
		}
		if len(f.Content) == 0 {
			return fmt.Errorf("%w: file %q is empty", ErrValidation, f.Filename)
		}
	}
	for i, u := range p.URLs {
		if u == "" {
			return fmt.Errorf("%w: url %d is empty", ErrValidation, i)
		}
	}
	return nil
}

// Maintenance actions understood by the worker.
const (
	MaintenanceActionPurge     = "purge_completed_jobs"
	MaintenanceActionReconcile = "reconcile_queues"
)

// MaintenancePayload describes a maintenance job (retention purge or
// queued-orphan reconciliation).
type MaintenancePayload struct {
	Action        string `json:"action"`
	OlderThanDays int    `json:"older_than_days,omitempty"`
	MinAgeSeconds int    `json:"min_age_seconds,omitempty"`
}

// Validate checks the action is one the worker knows how to run.
func (p *MaintenancePayload) Validate() error {
	switch p.Action {
	case MaintenanceActionPurge:
		if p.OlderThanDays <= 0 {
			return fmt.Errorf("%w: purge requires older_than_days > 0", ErrValidation)
		}
	case MaintenanceActionReconcile:
		// min_age_seconds falls back to the configured default when zero.
	default:
		return fmt.Errorf("%w: unknown maintenance action %q", ErrValidation, p.Action)
	}
	return nil
}

// ApprovalPayload is carried for approval-workflow jobs. The engine and
// workers never interpret it; the approval collaborator owns its shape.
type ApprovalPayload struct {
	DocumentID string          `json:"document_id,omitempty"`
	Extra      json.RawMessage `json:"extra,omitempty"`
}

// DecodeDocumentPayload decodes and validates a document-processing payload.
func DecodeDocumentPayload(raw json.RawMessage) (*DocumentPayload, error) {
	var p DocumentPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: decoding document payload: %v", ErrValidation, err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// DecodeMaintenancePayload decodes and validates a maintenance payload.
func DecodeMaintenancePayload(raw json.RawMessage) (*MaintenancePayload, error) {
	var p MaintenancePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: decoding maintenance payload: %v", ErrValidation, err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

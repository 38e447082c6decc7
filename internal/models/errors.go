package models

import (
	"errors"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrValidation = errors.New("validation error")

	// ErrNoText means every extraction tier came back empty; terminal for
	// the document, never retried inside the pipeline.
	ErrNoText = errors.New("no text could be extracted")

	// ErrDimensionMismatch means the embedding service returned a vector of
	// the wrong size for the model contract; hard failure, not retried.
	ErrDimensionMismatch = errors.New("unexpected embedding dimensions")

	ErrEmbeddingFailed  = errors.New("embedding generation failed")
	ErrRetriesExhausted = errors.New("retry budget exhausted")
)

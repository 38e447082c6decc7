package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	log "github.com/sirupsen/logrus"

	"docq/internal/config"
	"docq/internal/models"
)

// Client wraps a Provider with the text preparation and retry discipline the
// pipeline relies on: cleaning, word-budget truncation, exponential backoff,
// and dimension validation.
type Client struct {
	provider   Provider
	dimension  int
	maxRetries int
	maxWords   int

	// sleep is swappable for tests.
	sleep func(time.Duration)
}

// NewClient creates an embedding client around the given provider.
func NewClient(provider Provider, cfg *config.Config) *Client {
	return &Client{
		provider:   provider,
		dimension:  cfg.Embedding.Dimension,
		maxRetries: cfg.Embedding.MaxRetries,
		maxWords:   cfg.Embedding.MaxWords,
		sleep:      time.Sleep,
	}
}

// Provider exposes the wrapped provider.
func (c *Client) Provider() Provider { return c.provider }

// Dimension returns the vector length the client validates against.
func (c *Client) Dimension() int { return c.dimension }

// EmbedSegment embeds one segment in place, retrying transient failures with
// exponential backoff. A dimension mismatch is a provider misconfiguration
// and fails immediately. The segment records how many retries were spent and
// the total latency.
func (c *Client) EmbedSegment(ctx context.Context, seg *models.Segment) error {
	text := Clean(seg.Text)
	if text == "" {
		return fmt.Errorf("segment %d empty after cleaning: %w", seg.Index, models.ErrNoText)
	}
	text = truncateWords(text, c.maxWords)

	start := time.Now()
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<attempt) * time.Second
			log.Debugf("Retrying embedding for segment %s (attempt %d/%d) after %s", seg.Hash, attempt, c.maxRetries, backoff)
			c.sleep(backoff)
		}

		vector, err := c.provider.Embed(ctx, text)
		if err != nil {
			lastErr = err
			continue
		}
		if len(vector) != c.dimension {
			return fmt.Errorf("provider %s returned %d dimensions, expected %d: %w",
				c.provider.Name(), len(vector), c.dimension, models.ErrDimensionMismatch)
		}

		seg.Embedding = vector
		seg.EmbedRetries = attempt
		seg.EmbedLatency = time.Since(start)
		return nil
	}

	seg.EmbedRetries = c.maxRetries
	return fmt.Errorf("%w after %d retries: %v", models.ErrRetriesExhausted, c.maxRetries, lastErr)
}

// EmbedAll embeds every segment, continuing past per-segment failures. It
// returns the number embedded; the error is non-nil only when nothing
// embedded, or on a dimension mismatch (which aborts the batch).
func (c *Client) EmbedAll(ctx context.Context, segments []models.Segment) (int, error) {
	embedded := 0
	var lastErr error
	for i := range segments {
		if err := c.EmbedSegment(ctx, &segments[i]); err != nil {
			if errors.Is(err, models.ErrDimensionMismatch) {
				return embedded, err
			}
			log.Warnf("Failed to embed segment %d (%s): %v", segments[i].Index, segments[i].Hash, err)
			lastErr = err
			continue
		}
		embedded++
	}
	if embedded == 0 && len(segments) > 0 {
		return 0, fmt.Errorf("%w: %v", models.ErrEmbeddingFailed, lastErr)
	}
	return embedded, nil
}

// Clean normalizes text for embedding: whitespace collapses to single spaces
// and short noise tokens are dropped, except numbers, which stay meaningful
// at any length.
func Clean(text string) string {
	fields := strings.Fields(text)
	kept := fields[:0]
	for _, f := range fields {
		if len(f) >= 2 || isNumeric(f) {
			kept = append(kept, f)
		}
	}
	return strings.Join(kept, " ")
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func truncateWords(text string, maxWords int) string {
	if maxWords <= 0 {
		return text
	}
	words := strings.Fields(text)
	if len(words) <= maxWords {
		return text
	}
	return strings.Join(words[:maxWords], " ")
}

package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"docq/internal/config"
	"docq/internal/models"
)

// MemoryBroker models SQS semantics in memory: publish delay, visibility
// timeout leasing, redelivery counting, and dead-letter demotion once a
// message exceeds its queue's max receive count. Used for local mode and
// tests; it is not durable.
type MemoryBroker struct {
	mu     sync.Mutex
	queues map[models.QueueType]*memQueue

	// pollInterval paces the Receive busy-wait. Shortened in tests.
	pollInterval time.Duration
}

type memQueue struct {
	cfg      config.QueueConfig
	messages []*memMessage
	dlq      []*memMessage
}

type memMessage struct {
	id           string
	receipt      string
	body         []byte
	attrs        map[string]string
	visibleAt    time.Time
	leasedUntil  time.Time
	receiveCount int
}

// NewMemoryBroker builds an in-memory broker for the given queue configs.
func NewMemoryBroker(queues map[models.QueueType]config.QueueConfig) *MemoryBroker {
	b := &MemoryBroker{
		queues:       make(map[models.QueueType]*memQueue, len(queues)),
		pollInterval: 25 * time.Millisecond,
	}
	for qt, qc := range queues {
		b.queues[qt] = &memQueue{cfg: qc}
	}
	return b
}

// NewMemoryBrokerFromConfig wires a memory broker with the configured queue
// set, for broker.kind == "memory".
func NewMemoryBrokerFromConfig(cfg *config.Config) (*MemoryBroker, error) {
	queues := make(map[models.QueueType]config.QueueConfig, len(models.AllQueueTypes))
	for _, qt := range models.AllQueueTypes {
		qc, err := cfg.QueueFor(qt)
		if err != nil {
			return nil, err
		}
		queues[qt] = qc
	}
	return NewMemoryBroker(queues), nil
}

var _ Broker = (*MemoryBroker)(nil)

func (b *MemoryBroker) Publish(ctx context.Context, queue models.QueueType, body []byte, delay time.Duration, attrs map[string]string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	q, ok := b.queues[queue]
	if !ok {
		return "", fmt.Errorf("unknown queue type %q", queue)
	}

	copied := make(map[string]string, len(attrs))
	for k, v := range attrs {
		copied[k] = v
	}
	m := &memMessage{
		id:        uuid.NewString(),
		body:      append([]byte(nil), body...),
		attrs:     copied,
		visibleAt: time.Now().Add(delay),
	}
	q.messages = append(q.messages, m)
	return m.id, nil
}

func (b *MemoryBroker) Receive(ctx context.Context, queue models.QueueType, wait time.Duration) (*Message, error) {
	deadline := time.Now().Add(wait)
	for {
		if msg, err := b.tryReceive(queue); err != nil || msg != nil {
			return msg, err
		}
		if time.Now().After(deadline) {
			return nil, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(b.pollInterval):
		}
	}
}

func (b *MemoryBroker) tryReceive(queue models.QueueType) (*Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	q, ok := b.queues[queue]
	if !ok {
		return nil, fmt.Errorf("unknown queue type %q", queue)
	}

	now := time.Now()
	kept := q.messages[:0]
	var leased *memMessage
	for _, m := range q.messages {
		if leased == nil && now.After(m.visibleAt) && now.After(m.leasedUntil) {
			m.receiveCount++
			if q.cfg.MaxReceiveCount > 0 && m.receiveCount > q.cfg.MaxReceiveCount {
				// Redelivery threshold exceeded: demote instead of deliver.
				q.dlq = append(q.dlq, m)
				continue
			}
			m.receipt = uuid.NewString()
			m.leasedUntil = now.Add(q.cfg.VisibilityTimeout())
			leased = m
		}
		kept = append(kept, m)
	}
	q.messages = kept

	if leased == nil {
		return nil, nil
	}
	attrs := make(map[string]string, len(leased.attrs))
	for k, v := range leased.attrs {
		attrs[k] = v
	}
	return &Message{
		MessageID:     leased.id,
		ReceiptHandle: leased.receipt,
		Body:          append([]byte(nil), leased.body...),
		Attributes:    attrs,
		ReceiveCount:  leased.receiveCount,
	}, nil
}

func (b *MemoryBroker) Ack(ctx context.Context, queue models.QueueType, receiptHandle string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	q, ok := b.queues[queue]
	if !ok {
		return fmt.Errorf("unknown queue type %q", queue)
	}
	for i, m := range q.messages {
		if m.receipt == receiptHandle && m.receipt != "" {
			q.messages = append(q.messages[:i], q.messages[i+1:]...)
			return nil
		}
	}
	// Ack of an expired or unknown lease; SQS treats this the same way.
	return fmt.Errorf("%w: no message with receipt handle", models.ErrNotFound)
}

func (b *MemoryBroker) Depth(ctx context.Context, queue models.QueueType) (Depth, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	q, ok := b.queues[queue]
	if !ok {
		return Depth{}, fmt.Errorf("unknown queue type %q", queue)
	}
	now := time.Now()
	var d Depth
	for _, m := range q.messages {
		switch {
		case now.Before(m.visibleAt):
			d.Delayed++
		case now.Before(m.leasedUntil):
			d.InFlight++
		default:
			d.Visible++
		}
	}
	d.DeadLetter = len(q.dlq)
	return d, nil
}

// SetPollInterval shortens the receive poll loop; test helper.
func (b *MemoryBroker) SetPollInterval(d time.Duration) {
	b.mu.Lock()
	b.pollInterval = d
	b.mu.Unlock()
}

package broker

import (
	"context"
	"time"

	"docq/internal/models"
)

// Message is one lease-able delivery. ReceiptHandle identifies this
// particular receive for acking; ReceiveCount is the broker's redelivery
// counter (1 on first delivery).
type Message struct {
	MessageID     string
	ReceiptHandle string
	Body          []byte
	Attributes    map[string]string
	ReceiveCount  int
}

// Depth is a point-in-time snapshot of one queue.
type Depth struct {
	Visible    int
	InFlight   int
	Delayed    int
	DeadLetter int
}

// Broker is the at-least-once message transport behind the queue engine.
// Implementations provide visibility-timeout leasing and dead-letter the
// messages that exceed their redelivery threshold.
type Broker interface {
	// Publish makes a message deliverable after delay elapses and returns
	// its broker-assigned id.
	Publish(ctx context.Context, queue models.QueueType, body []byte, delay time.Duration, attrs map[string]string) (string, error)

	// Receive leases at most one message, long-polling up to wait. The
	// message stays invisible for the queue's visibility timeout; an
	// unacked lease becomes deliverable again when it expires. Returns
	// (nil, nil) when the queue is empty within the wait; that is the
	// normal outcome, not an error.
	Receive(ctx context.Context, queue models.QueueType, wait time.Duration) (*Message, error)

	// Ack deletes a leased message, acknowledging delivery.
	Ack(ctx context.Context, queue models.QueueType, receiptHandle string) error

	// Depth reports approximate queue and dead-letter counts.
	Depth(ctx context.Context, queue models.QueueType) (Depth, error)
}

// Message attribute keys set on published envelopes.
const (
	AttrPriority = "Priority"
	AttrJobType  = "JobType"
)

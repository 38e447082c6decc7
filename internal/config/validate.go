package config

import (
	"fmt"

	"docq/internal/models"
)

// Validate checks the parts of the config that every process needs. Broker
// and storage credentials are validated lazily by their clients so that CLI
// commands which never touch AWS still run.
func (c *Config) Validate() error {
	if c.Broker.Kind != "sqs" && c.Broker.Kind != "memory" {
		return fmt.Errorf("broker.kind must be \"sqs\" or \"memory\", got %q", c.Broker.Kind)
	}
	for name := range c.Broker.Queues {
		if !models.QueueType(name).Valid() {
			return fmt.Errorf("broker.queues: unknown queue type %q", name)
		}
	}
	for _, qt := range models.AllQueueTypes {
		qc, ok := c.Broker.Queues[string(qt)]
		if !ok {
			return fmt.Errorf("broker.queues: missing configuration for %q", qt)
		}
		if qc.QueueName == "" || qc.DLQName == "" {
			return fmt.Errorf("broker.queues.%s: queue_name and dlq_name are required", qt)
		}
		if qc.VisibilitySeconds <= 0 {
			return fmt.Errorf("broker.queues.%s: visibility_seconds must be positive", qt)
		}
	}
	if c.Embedding.Provider != "openai" && c.Embedding.Provider != "gemini" {
		return fmt.Errorf("embedding.provider must be \"openai\" or \"gemini\", got %q", c.Embedding.Provider)
	}
	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("embedding.dimension must be positive")
	}
	if c.Queue.MaxRetries < 0 {
		return fmt.Errorf("queue.max_retries must not be negative")
	}
	for _, q := range c.Worker.Queues {
		if !models.QueueType(q).Valid() {
			return fmt.Errorf("worker.queues: unknown queue type %q", q)
		}
	}
	return nil
}

// QueueFor returns the broker settings for a queue type.
func (c *Config) QueueFor(qt models.QueueType) (QueueConfig, error) {
	qc, ok := c.Broker.Queues[string(qt)]
	if !ok {
		return QueueConfig{}, fmt.Errorf("no broker configuration for queue type %q", qt)
	}
	return qc, nil
}

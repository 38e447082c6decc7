package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// QueueConfig carries the per-queue-type broker settings.
type QueueConfig struct {
	QueueName         string `mapstructure:"queue_name"`
	DLQName           string `mapstructure:"dlq_name"`
	VisibilitySeconds int    `mapstructure:"visibility_seconds"`
	MaxReceiveCount   int    `mapstructure:"max_receive_count"`
}

// VisibilityTimeout returns the lease duration for the queue.
func (q QueueConfig) VisibilityTimeout() time.Duration {
	return time.Duration(q.VisibilitySeconds) * time.Second
}

type Config struct {
	Database struct {
		DSN string `mapstructure:"dsn"`
	} `mapstructure:"database"`

	Broker struct {
		Kind      string `mapstructure:"kind"` // "sqs" or "memory"
		Region    string `mapstructure:"region"`
		AccessKey string `mapstructure:"access_key"`
		SecretKey string `mapstructure:"secret_key"`
		// Endpoint overrides the SQS endpoint (localstack etc.); empty in production.
		Endpoint string                 `mapstructure:"endpoint"`
		Queues   map[string]QueueConfig `mapstructure:"queues"`
		// PollWaitSeconds bounds the long-poll in Dequeue.
		PollWaitSeconds int `mapstructure:"poll_wait_seconds"`
	} `mapstructure:"broker"`

	Storage struct {
		Bucket      string `mapstructure:"bucket"`
		Region      string `mapstructure:"region"`
		ManifestKey string `mapstructure:"manifest_key"`
	} `mapstructure:"storage"`

	Embedding struct {
		Provider     string `mapstructure:"provider"` // "openai" or "gemini"
		Model        string `mapstructure:"model"`
		OpenaiApiKey string `mapstructure:"openai_api_key"`
		GoogleApiKey string `mapstructure:"google_api_key"`
		Dimension    int    `mapstructure:"dimension"`
		MaxRetries   int    `mapstructure:"max_retries"`
		MaxWords     int    `mapstructure:"max_words"`
	} `mapstructure:"embedding"`

	Chunking struct {
		// MaxTokens/Overlap of zero mean "size adaptively from document length".
		MaxTokens     int `mapstructure:"max_tokens"`
		Overlap       int `mapstructure:"overlap"`
		MinChunkWords int `mapstructure:"min_chunk_words"`
	} `mapstructure:"chunking"`

	Extraction struct {
		MinDirectWords   int     `mapstructure:"min_direct_words"`
		OCRConfidence    float64 `mapstructure:"ocr_confidence"`
		OCRConfidenceAdv float64 `mapstructure:"ocr_confidence_advanced"`
		MaxOCRBytes      int     `mapstructure:"max_ocr_bytes"`
		FetchTimeoutSecs int     `mapstructure:"fetch_timeout_seconds"`
	} `mapstructure:"extraction"`

	Queue struct {
		MaxRetries          int `mapstructure:"max_retries"`
		WorkerWindowMinutes int `mapstructure:"worker_window_minutes"`
		ReconcileAgeSeconds int `mapstructure:"reconcile_age_seconds"`
	} `mapstructure:"queue"`

	Worker struct {
		ID          string   `mapstructure:"id"`
		Concurrency int      `mapstructure:"concurrency"`
		Queues      []string `mapstructure:"queues"`
	} `mapstructure:"worker"`

	Server struct {
		Addr string `mapstructure:"addr"`
		Port string `mapstructure:"port"`
	} `mapstructure:"server"`
}

// LoadConfig reads config.yaml from the working directory, layering
// environment variables on top. Missing files are fine; env vars and the
// defaults below are enough to run.
func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")

	viper.AutomaticEnv()
	// Credentials come from the environment in every deployed setup.
	viper.BindEnv("embedding.openai_api_key", "OPENAI_API_KEY")
	viper.BindEnv("embedding.google_api_key", "GEMINI_API_KEY")
	viper.BindEnv("broker.access_key", "AWS_ACCESS_KEY_ID")
	viper.BindEnv("broker.secret_key", "AWS_SECRET_ACCESS_KEY")
	viper.BindEnv("database.dsn", "DATABASE_URL")
	viper.BindEnv("storage.bucket", "S3_BUCKET")

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}
	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("broker.kind", "sqs")
	viper.SetDefault("broker.region", "us-east-1")
	viper.SetDefault("broker.poll_wait_seconds", 10)
	viper.SetDefault("broker.queues", map[string]interface{}{
		"document_processing": map[string]interface{}{
			"queue_name":         "docq-processing",
			"dlq_name":           "docq-processing-dlq",
			"visibility_seconds": 900,
			"max_receive_count":  3,
		},
		"approval_workflow": map[string]interface{}{
			"queue_name":         "docq-approval",
			"dlq_name":           "docq-approval-dlq",
			"visibility_seconds": 300,
			"max_receive_count":  3,
		},
		"maintenance": map[string]interface{}{
			"queue_name":         "docq-maintenance",
			"dlq_name":           "docq-maintenance-dlq",
			"visibility_seconds": 600,
			"max_receive_count":  2,
		},
	})

	viper.SetDefault("storage.region", "us-east-1")
	viper.SetDefault("storage.manifest_key", "manifest.json")

	viper.SetDefault("embedding.provider", "openai")
	viper.SetDefault("embedding.model", "text-embedding-3-small")
	viper.SetDefault("embedding.dimension", 1536)
	viper.SetDefault("embedding.max_retries", 3)
	viper.SetDefault("embedding.max_words", 2000)

	viper.SetDefault("chunking.min_chunk_words", 10)

	viper.SetDefault("extraction.min_direct_words", 50)
	viper.SetDefault("extraction.ocr_confidence", 80.0)
	viper.SetDefault("extraction.ocr_confidence_advanced", 75.0)
	viper.SetDefault("extraction.max_ocr_bytes", 10*1024*1024)
	viper.SetDefault("extraction.fetch_timeout_seconds", 30)

	viper.SetDefault("queue.max_retries", 3)
	viper.SetDefault("queue.worker_window_minutes", 10)
	viper.SetDefault("queue.reconcile_age_seconds", 120)

	viper.SetDefault("worker.concurrency", 2)
	viper.SetDefault("worker.queues", []string{"document_processing", "maintenance"})

	viper.SetDefault("server.addr", "127.0.0.1")
	viper.SetDefault("server.port", "8080")
}

// PollWait returns the bounded long-poll duration for dequeue.
func (c *Config) PollWait() time.Duration {
	return time.Duration(c.Broker.PollWaitSeconds) * time.Second
}

// WorkerWindow returns the liveness window for worker inference.
func (c *Config) WorkerWindow() time.Duration {
	return time.Duration(c.Queue.WorkerWindowMinutes) * time.Minute
}

// ReconcileAge returns the minimum age before a queued record is treated as
// a possible orphan.
func (c *Config) ReconcileAge() time.Duration {
	return time.Duration(c.Queue.ReconcileAgeSeconds) * time.Second
}

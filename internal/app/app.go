package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"docq/internal/broker"
	"docq/internal/chunking"
	"docq/internal/config"
	"docq/internal/embedding"
	"docq/internal/extract"
	"docq/internal/extract/ocr"
	"docq/internal/objectstore"
	"docq/internal/pipeline"
	"docq/internal/queue"
	"docq/internal/store"
	"docq/internal/store/primary"
)

// App holds every initialized collaborator. Commands pull it from the cobra
// context after the root pre-run has built it.
type App struct {
	Config *config.Config

	JobStore    store.JobStore
	Broker      broker.Broker
	ObjectStore store.ObjectStore
	Engine      *queue.Engine
	Embedding   *embedding.Client
	Pipeline    *pipeline.Pipeline

	closers []func()
}

// NewApp initializes the full application from config.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	app := &App{Config: cfg}

	if err := app.initJobStore(ctx); err != nil {
		return nil, err
	}
	if err := app.initBroker(ctx); err != nil {
		app.Close()
		return nil, err
	}
	if err := app.initObjectStore(ctx); err != nil {
		app.Close()
		return nil, err
	}
	if err := app.initEmbedding(); err != nil {
		app.Close()
		return nil, err
	}
	app.initEngine()
	if err := app.initPipeline(ctx); err != nil {
		app.Close()
		return nil, err
	}

	log.Debug("Application initialization complete.")
	return app, nil
}

func (a *App) initJobStore(ctx context.Context) error {
	jobStore, err := primary.NewPrimaryStore(ctx, a.Config.Database.DSN)
	if err != nil {
		return fmt.Errorf("failed to initialize job store: %w", err)
	}
	a.JobStore = jobStore
	a.closers = append(a.closers, jobStore.Close)
	return nil
}

func (a *App) initBroker(ctx context.Context) error {
	switch a.Config.Broker.Kind {
	case "memory":
		b, err := broker.NewMemoryBrokerFromConfig(a.Config)
		if err != nil {
			return fmt.Errorf("failed to initialize memory broker: %w", err)
		}
		a.Broker = b
		log.Warn("Using in-memory broker; messages do not survive a restart.")
	default:
		b, err := broker.NewSQSBroker(ctx, a.Config)
		if err != nil {
			return fmt.Errorf("failed to initialize SQS broker: %w", err)
		}
		a.Broker = b
	}
	return nil
}

func (a *App) initObjectStore(ctx context.Context) error {
	if a.Config.Storage.Bucket == "" {
		a.ObjectStore = objectstore.NewMemoryStore()
		log.Warn("No storage bucket configured; artifacts go to an in-memory store.")
		return nil
	}
	s3store, err := objectstore.NewS3Store(ctx, a.Config)
	if err != nil {
		return fmt.Errorf("failed to initialize object store: %w", err)
	}
	a.ObjectStore = s3store
	return nil
}

func (a *App) initEmbedding() error {
	provider, err := embedding.NewProvider(a.Config)
	if err != nil {
		return fmt.Errorf("failed to initialize embedding provider: %w", err)
	}
	a.Embedding = embedding.NewClient(provider, a.Config)
	return nil
}

func (a *App) initEngine() {
	a.Engine = queue.NewEngine(a.JobStore, a.Broker, a.Config)
}

func (a *App) initPipeline(ctx context.Context) error {
	var ocrClient ocr.Client
	if a.Config.Broker.Kind != "memory" {
		client, err := ocr.NewTextractClient(ctx, a.Config)
		if err != nil {
			log.Warnf("OCR unavailable, extraction limited to tier 1: %v", err)
		} else {
			ocrClient = client
		}
	}

	extractor := extract.NewExtractor(ocrClient, a.Config)
	fetcher := extract.NewFetcher(a.Config)
	splitter := chunking.NewSplitter(a.Config.Chunking.MaxTokens, a.Config.Chunking.MinChunkWords)
	manifests := objectstore.NewManifests(a.ObjectStore, a.Config.Storage.ManifestKey)

	a.Pipeline = pipeline.New(extractor, fetcher, splitter, a.Embedding, a.ObjectStore, manifests, a.Config)
	return nil
}

// Close releases held resources in reverse initialization order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

package pipeline

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docq/internal/chunking"
	"docq/internal/config"
	"docq/internal/embedding"
	"docq/internal/extract"
	"docq/internal/models"
	"docq/internal/objectstore"
)

type staticProvider struct{ dimension int }

func (p *staticProvider) Embed(_ context.Context, _ string) ([]float32, error) {
	return make([]float32, p.dimension), nil
}
func (p *staticProvider) Dimension() int    { return p.dimension }
func (p *staticProvider) Name() string      { return "static" }
func (p *staticProvider) ModelName() string { return "static-embedding-001" }

func pipelineConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Extraction.MinDirectWords = 50
	cfg.Extraction.OCRConfidence = 80
	cfg.Extraction.OCRConfidenceAdv = 75
	cfg.Embedding.Dimension = 8
	cfg.Embedding.MaxRetries = 1
	cfg.Embedding.MaxWords = 2000
	cfg.Chunking.MaxTokens = 512
	cfg.Chunking.MinChunkWords = 10
	cfg.Storage.ManifestKey = "manifest.json"
	return cfg
}

func testPipeline(t *testing.T) (*Pipeline, *objectstore.MemoryStore) {
	t.Helper()
	cfg := pipelineConfig()
	objects := objectstore.NewMemoryStore()
	embedder := embedding.NewClient(&staticProvider{dimension: 8}, cfg)
	p := New(
		extract.NewExtractor(nil, cfg),
		extract.NewFetcher(cfg),
		chunking.NewSplitter(cfg.Chunking.MaxTokens, cfg.Chunking.MinChunkWords),
		embedder,
		objects,
		objectstore.NewManifests(objects, cfg.Storage.ManifestKey),
		cfg,
	)
	return p, objects
}

func documentText(sentenceCount int) string {
	var sb strings.Builder
	for i := 0; i < sentenceCount; i++ {
		sb.WriteString("Every sentence here carries exactly ten words of filler text. ")
	}
	return sb.String()
}

func documentJob(t *testing.T, files ...models.FileInput) *models.QueueJob {
	t.Helper()
	payload, err := json.Marshal(models.DocumentPayload{JobName: "research-batch", Files: files})
	require.NoError(t, err)
	return &models.QueueJob{
		JobID:     "job-1",
		QueueType: models.QueueDocumentProcessing,
		UserID:    "u1",
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
}

func TestRunProcessesSingleFile(t *testing.T) {
	p, objects := testPipeline(t)
	job := documentJob(t, models.FileInput{Filename: "notes.txt", Content: []byte(documentText(20))})

	result, err := p.Run(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, 1, result.TotalDocuments)
	assert.Equal(t, 1, result.SuccessfulDocuments)
	assert.Zero(t, result.FailedDocuments)
	require.Len(t, result.Manifest, 1)

	entry := result.Manifest[0]
	assert.Equal(t, "job-1", entry.JobID)
	assert.Equal(t, "research-batch", entry.JobName)
	assert.Equal(t, "file", entry.SourceType)
	assert.Equal(t, "notes.txt", entry.Filename)
	assert.Equal(t, 200, entry.WordCount)
	assert.Equal(t, "static-embedding-001", entry.EmbeddingModel)
	assert.True(t, strings.HasPrefix(entry.MarkdownKey, "documents/research-batch/"))
	assert.True(t, strings.HasPrefix(entry.SidecarKey, "sidecars/research-batch/"))

	// Markdown, sidecar, and the manifest all landed in the object store.
	keys := objects.Keys()
	assert.Len(t, keys, 3)

	markdown, err := objects.Get(context.Background(), entry.MarkdownKey)
	require.NoError(t, err)
	assert.Contains(t, string(markdown), "# Document Information")
	assert.Contains(t, string(markdown), "**Source:** notes.txt")
	assert.Contains(t, string(markdown), "ten words of filler")
}

func TestRunSidecarShape(t *testing.T) {
	p, objects := testPipeline(t)
	job := documentJob(t, models.FileInput{Filename: "notes.txt", Content: []byte(documentText(20))})

	result, err := p.Run(context.Background(), job)
	require.NoError(t, err)

	body, err := objects.Get(context.Background(), result.Manifest[0].SidecarKey)
	require.NoError(t, err)

	var sidecar models.Sidecar
	require.NoError(t, json.Unmarshal(body, &sidecar))
	assert.Equal(t, "notes.txt", sidecar.Source)
	assert.Equal(t, "static-embedding-001", sidecar.EmbeddingModel)
	assert.Equal(t, 8, sidecar.EmbeddingDimensions)
	assert.Equal(t, sidecar.TotalChunks, sidecar.SuccessfulChunks)
	assert.Zero(t, sidecar.FailedChunks)
	assert.InDelta(t, 100, sidecar.Quality.SuccessRate, 0.01)
	require.NotEmpty(t, sidecar.Chunks)
	for _, chunk := range sidecar.Chunks {
		assert.Len(t, chunk.Embedding, 8)
		assert.NotEmpty(t, chunk.Text)
		assert.Contains(t, chunk.ChunkID, chunk.Metadata.ChunkHash)
	}
}

func TestRunIsolatesFailingInput(t *testing.T) {
	p, _ := testPipeline(t)
	job := documentJob(t,
		models.FileInput{Filename: "good.txt", Content: []byte(documentText(20))},
		models.FileInput{Filename: "blank.txt", Content: []byte("   \n\n  ")},
	)

	result, err := p.Run(context.Background(), job)
	require.NoError(t, err, "one failing input does not fail the job")
	assert.Equal(t, 2, result.TotalDocuments)
	assert.Equal(t, 1, result.SuccessfulDocuments)
	assert.Equal(t, 1, result.FailedDocuments)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, "blank.txt", result.Failures[0].Identifier)
	assert.Equal(t, "file", result.Failures[0].SourceType)
	assert.NotEmpty(t, result.Failures[0].Error)
}

func TestRunAllInputsFailed(t *testing.T) {
	p, objects := testPipeline(t)
	job := documentJob(t, models.FileInput{Filename: "blank.txt", Content: []byte("   ")})

	result, err := p.Run(context.Background(), job)
	require.Error(t, err)
	require.NotNil(t, result, "the failure detail still comes back for the job record")
	assert.Equal(t, 1, result.FailedDocuments)
	assert.Empty(t, objects.Keys(), "nothing stored when every input failed")
}

func TestRunRejectsBadPayload(t *testing.T) {
	p, _ := testPipeline(t)
	job := &models.QueueJob{JobID: "job-1", Payload: json.RawMessage(`{"files":[],"urls":[]}`)}

	_, err := p.Run(context.Background(), job)
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestRunAppendsManifest(t *testing.T) {
	p, objects := testPipeline(t)
	manifests := objectstore.NewManifests(objects, "manifest.json")

	job := documentJob(t, models.FileInput{Filename: "first.txt", Content: []byte(documentText(20))})
	_, err := p.Run(context.Background(), job)
	require.NoError(t, err)

	second := documentJob(t, models.FileInput{Filename: "second.txt", Content: []byte(documentText(20))})
	second.JobID = "job-2"
	_, err = p.Run(context.Background(), second)
	require.NoError(t, err)

	manifest, err := manifests.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1.0", manifest.Version)
	assert.Equal(t, 2, manifest.DocumentCount)
	require.Len(t, manifest.Documents, 2)
	assert.Equal(t, "first.txt", manifest.Documents[0].Filename)
	assert.Equal(t, "second.txt", manifest.Documents[1].Filename)
}

func TestRunFallsBackToJobIDForName(t *testing.T) {
	p, _ := testPipeline(t)
	payload, err := json.Marshal(models.DocumentPayload{Files: []models.FileInput{
		{Filename: "notes.txt", Content: []byte(documentText(20))},
	}})
	require.NoError(t, err)
	job := &models.QueueJob{JobID: "job-77", Payload: payload}

	result, err := p.Run(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, "job-77", result.Manifest[0].JobName)
}

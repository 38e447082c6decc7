package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"docq/internal/chunking"
	"docq/internal/config"
	"docq/internal/embedding"
	"docq/internal/extract"
	"docq/internal/models"
	"docq/internal/objectstore"
	"docq/internal/store"
)

// maxParallelDocuments bounds how many inputs of one job process at once.
const maxParallelDocuments = 4

// Pipeline turns a document-processing payload into stored artifacts:
// rendered markdown, an embedding sidecar per document, and manifest entries.
// Inputs fail independently; the job result aggregates both outcomes.
type Pipeline struct {
	extractor *extract.Extractor
	fetcher   *extract.Fetcher
	splitter  *chunking.Splitter
	embedder  *embedding.Client
	objects   store.ObjectStore
	manifests *objectstore.Manifests
	cfg       *config.Config

	now func() time.Time
}

// New assembles a pipeline from its collaborators.
func New(extractor *extract.Extractor, fetcher *extract.Fetcher, splitter *chunking.Splitter,
	embedder *embedding.Client, objects store.ObjectStore, manifests *objectstore.Manifests,
	cfg *config.Config) *Pipeline {
	return &Pipeline{
		extractor: extractor,
		fetcher:   fetcher,
		splitter:  splitter,
		embedder:  embedder,
		objects:   objects,
		manifests: manifests,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Run processes every input of one job. The returned result marshals into
// the job record's result column. Run errors only when the job produced
// nothing at all; partial success is a successful job.
func (p *Pipeline) Run(ctx context.Context, job *models.QueueJob) (*models.ProcessingResult, error) {
	payload, err := models.DecodeDocumentPayload(job.Payload)
	if err != nil {
		return nil, err
	}

	jobName := payload.JobName
	if jobName == "" {
		jobName = job.JobID
	}

	type input struct {
		identifier string
		sourceType string
		file       *models.FileInput
		url        string
	}
	var inputs []input
	for i := range payload.Files {
		inputs = append(inputs, input{identifier: payload.Files[i].Filename, sourceType: "file", file: &payload.Files[i]})
	}
	for _, u := range payload.URLs {
		inputs = append(inputs, input{identifier: u, sourceType: "url", url: u})
	}

	result := &models.ProcessingResult{
		JobID:          job.JobID,
		TotalDocuments: len(inputs),
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelDocuments)

	for _, in := range inputs {
		in := in
		g.Go(func() error {
			var entry *models.ManifestEntry
			var procErr error
			if in.file != nil {
				entry, procErr = p.processFile(gctx, job, jobName, in.file)
			} else {
				entry, procErr = p.processURL(gctx, job, jobName, in.url)
			}

			mu.Lock()
			defer mu.Unlock()
			if procErr != nil {
				log.Warnf("Job %s: input %s failed: %v", job.JobID, in.identifier, procErr)
				result.FailedDocuments++
				result.Failures = append(result.Failures, models.InputFailure{
					Identifier: in.identifier,
					SourceType: in.sourceType,
					Error:      procErr.Error(),
				})
				return nil
			}
			result.SuccessfulDocuments++
			result.Manifest = append(result.Manifest, *entry)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if len(result.Manifest) > 0 {
		if err := p.manifests.Append(ctx, result.Manifest); err != nil {
			// Artifacts are stored; losing the index entry is recoverable.
			log.Errorf("Job %s: failed to append manifest entries: %v", job.JobID, err)
		}
	}

	if result.SuccessfulDocuments == 0 && result.TotalDocuments > 0 {
		return result, fmt.Errorf("all %d documents failed", result.TotalDocuments)
	}
	log.Infof("Job %s processed %d/%d documents", job.JobID, result.SuccessfulDocuments, result.TotalDocuments)
	return result, nil
}

func (p *Pipeline) processFile(ctx context.Context, job *models.QueueJob, jobName string, file *models.FileInput) (*models.ManifestEntry, error) {
	extraction, err := p.extractor.ExtractFile(ctx, file.Filename, file.Content)
	if err != nil {
		return nil, err
	}
	return p.store(ctx, job, jobName, file.Filename, "file", "", len(file.Content), extraction)
}

func (p *Pipeline) processURL(ctx context.Context, job *models.QueueJob, jobName, url string) (*models.ManifestEntry, error) {
	extraction, err := p.fetcher.ExtractURL(ctx, url)
	if err != nil {
		return nil, err
	}
	return p.store(ctx, job, jobName, urlFilename(url), "url", url, len(extraction.Text), extraction)
}

// store chunks, embeds, and uploads one extracted document. A document
// succeeds when at least one chunk embeds.
func (p *Pipeline) store(ctx context.Context, job *models.QueueJob, jobName, filename, sourceType, sourceURL string, fileSize int, extraction *extract.Extraction) (*models.ManifestEntry, error) {
	segments := p.splitter.Split(extraction.Text)
	if len(segments) == 0 {
		return nil, fmt.Errorf("%s produced no usable chunks: %w", filename, models.ErrNoText)
	}

	embedded, err := p.embedder.EmbedAll(ctx, segments)
	if err != nil {
		return nil, fmt.Errorf("embedding %s: %w", filename, err)
	}

	now := p.now().UTC()
	markdown := renderMarkdown(filename, sourceURL, extraction, now)
	sidecar := p.buildSidecar(filename, extraction, segments, embedded, now)

	markdownKey := objectstore.DocumentKey(jobName, filename, now)
	markdownURL, err := p.objects.Put(ctx, markdownKey, []byte(markdown), "text/markdown")
	if err != nil {
		return nil, fmt.Errorf("storing markdown for %s: %w", filename, err)
	}

	sidecarBody, err := json.MarshalIndent(sidecar, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling sidecar for %s: %w", filename, err)
	}
	sidecarKey := objectstore.SidecarKey(jobName, filename, now)
	sidecarURL, err := p.objects.Put(ctx, sidecarKey, sidecarBody, "application/json")
	if err != nil {
		return nil, fmt.Errorf("storing sidecar for %s: %w", filename, err)
	}

	return &models.ManifestEntry{
		DocumentID:     segments[0].Hash,
		JobID:          job.JobID,
		UserID:         job.UserID,
		JobName:        jobName,
		SourceType:     sourceType,
		Filename:       filename,
		SourceURL:      sourceURL,
		ProcessedAt:    now,
		WordCount:      extraction.Metadata.WordCount,
		ChunkCount:     embedded,
		MarkdownKey:    markdownKey,
		SidecarKey:     sidecarKey,
		MarkdownURL:    markdownURL,
		SidecarURL:     sidecarURL,
		FileSize:       fileSize,
		EmbeddingModel: p.embedder.Provider().ModelName(),
	}, nil
}

// buildSidecar assembles the sidecar artifact from the embedded segments.
func (p *Pipeline) buildSidecar(filename string, extraction *extract.Extraction, segments []models.Segment, embedded int, now time.Time) *models.Sidecar {
	strategy := p.splitter.Strategy(extraction.Metadata.WordCount)

	var chunks []models.SidecarChunk
	var totalWords int
	var embedSeconds float64
	for _, seg := range segments {
		totalWords += seg.WordCount
		if len(seg.Embedding) == 0 {
			continue
		}
		embedSeconds += seg.EmbedLatency.Seconds()
		chunks = append(chunks, models.SidecarChunk{
			ChunkID:   fmt.Sprintf("%s-%04d", seg.Hash, seg.Index),
			Index:     seg.Index,
			Text:      seg.Text,
			Embedding: seg.Embedding,
			Metadata: models.SidecarChunkMetadata{
				Source:              filename,
				WordCount:           seg.WordCount,
				CharacterCount:      seg.CharCount,
				ChunkHash:           seg.Hash,
				EmbeddingDimensions: len(seg.Embedding),
				EmbedRetries:        seg.EmbedRetries,
				GenerationSeconds:   seg.EmbedLatency.Seconds(),
			},
		})
	}

	sidecar := &models.Sidecar{
		Source:              filename,
		CreatedAt:           now,
		EmbeddingModel:      p.embedder.Provider().ModelName(),
		EmbeddingDimensions: p.embedder.Dimension(),
		TotalChunks:         len(segments),
		SuccessfulChunks:    embedded,
		FailedChunks:        len(segments) - embedded,
		ChunkingStrategy:    strategy,
		Statistics: models.SidecarStatistics{
			OriginalWordCount:      extraction.Metadata.WordCount,
			OriginalCharacterCount: extraction.Metadata.CharCount,
			TotalEmbeddingSeconds:  embedSeconds,
		},
		Chunks: chunks,
	}
	if len(segments) > 0 {
		sidecar.Statistics.AverageChunkSizeWords = float64(totalWords) / float64(len(segments))
		sidecar.Quality.SuccessRate = 100 * float64(embedded) / float64(len(segments))
	}
	if extraction.Metadata.WordCount > 0 {
		sidecar.Quality.ChunkUtilization = 100 * float64(totalWords) / float64(extraction.Metadata.WordCount)
	}
	return sidecar
}

// renderMarkdown wraps the extracted text with a document information header.
func renderMarkdown(filename, sourceURL string, extraction *extract.Extraction, now time.Time) string {
	var sb strings.Builder
	sb.WriteString("# Document Information\n\n")
	fmt.Fprintf(&sb, "- **Source:** %s\n", filename)
	if sourceURL != "" {
		fmt.Fprintf(&sb, "- **URL:** %s\n", sourceURL)
	}
	fmt.Fprintf(&sb, "- **Processed:** %s\n", now.Format(time.RFC3339))
	fmt.Fprintf(&sb, "- **Processing Method:** %s (tier %d)\n", extraction.Metadata.Method, extraction.Metadata.Tier)
	fmt.Fprintf(&sb, "- **Word Count:** %d\n", extraction.Metadata.WordCount)
	if extraction.Metadata.Confidence > 0 {
		fmt.Fprintf(&sb, "- **OCR Confidence:** %.1f\n", extraction.Metadata.Confidence)
	}
	sb.WriteString("\n---\n\n")
	sb.WriteString(extraction.Text)
	sb.WriteString("\n")
	return sb.String()
}

// urlFilename derives an artifact filename from a URL.
func urlFilename(url string) string {
	name := strings.TrimPrefix(strings.TrimPrefix(url, "https://"), "http://")
	name = strings.Trim(name, "/")
	name = strings.NewReplacer("/", "_", "?", "_", "&", "_", "#", "_", "=", "_", ":", "_").Replace(name)
	if name == "" {
		name = "page"
	}
	return name + ".html"
}

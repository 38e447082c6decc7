package models

import "time"

// Segment is one embeddable span of normalized text. Segments are not
// persisted on their own; they live inside the sidecar artifact.
type Segment struct {
	Index     int    `json:"index"`
	Text      string `json:"text"`
	WordCount int    `json:"word_count"`
	CharCount int    `json:"character_count"`
	Hash      string `json:"hash"` // short content hash, dedup aid

	Embedding    []float32     `json:"embedding,omitempty"`
	EmbedRetries int           `json:"embed_retries,omitempty"`
	EmbedLatency time.Duration `json:"-"`
}

// SidecarChunk is the persisted form of an embedded segment.
type SidecarChunk struct {
	ChunkID   string               `json:"chunk_id"`
	Index     int                  `json:"index"`
	Text      string               `json:"text"`
	Embedding []float32            `json:"embedding"`
	Metadata  SidecarChunkMetadata `json:"metadata"`
}

// SidecarChunkMetadata carries per-chunk bookkeeping.
type SidecarChunkMetadata struct {
	Source              string  `json:"source"`
	WordCount           int     `json:"word_count"`
	CharacterCount      int     `json:"character_count"`
	ChunkHash           string  `json:"chunk_hash"`
	EmbeddingDimensions int     `json:"embedding_dimensions"`
	EmbedRetries        int     `json:"embed_retries"`
	GenerationSeconds   float64 `json:"embedding_generation_time_seconds"`
}

// ChunkingStrategy records the parameters the splitter ran with.
type ChunkingStrategy struct {
	ChunkSize int `json:"chunk_size"`
	Overlap   int `json:"overlap"`
}

// SidecarStatistics summarizes the embedding pass over one document.
type SidecarStatistics struct {
	OriginalWordCount      int     `json:"original_word_count"`
	OriginalCharacterCount int     `json:"original_character_count"`
	AverageChunkSizeWords  float64 `json:"average_chunk_size_words"`
	TotalEmbeddingSeconds  float64 `json:"total_embedding_time_seconds"`
}

// SidecarQuality holds the quality proxies monitoring reads.
type SidecarQuality struct {
	SuccessRate      float64 `json:"success_rate"`      // percent of chunks embedded
	ChunkUtilization float64 `json:"chunk_utilization"` // percent of source words covered
}

// Sidecar is the JSON artifact holding every chunk embedding for one
// processed document.
type Sidecar struct {
	Source              string            `json:"source"`
	CreatedAt           time.Time         `json:"created_at"`
	EmbeddingModel      string            `json:"embedding_model"`
	EmbeddingDimensions int               `json:"embedding_dimensions"`
	TotalChunks         int               `json:"total_chunks"`
	SuccessfulChunks    int               `json:"successful_chunks"`
	FailedChunks        int               `json:"failed_chunks"`
	ChunkingStrategy    ChunkingStrategy  `json:"chunking_strategy"`
	Statistics          SidecarStatistics `json:"processing_statistics"`
	Quality             SidecarQuality    `json:"quality_metrics"`
	Chunks              []SidecarChunk    `json:"chunks"`
}

// ManifestEntry links one processed input to its stored artifacts. The
// manifest is append-only; entries are never rewritten.
type ManifestEntry struct {
	DocumentID     string    `json:"document_id"`
	JobID          string    `json:"job_id"`
	UserID         string    `json:"user_id,omitempty"`
	JobName        string    `json:"job_name,omitempty"`
	SourceType     string    `json:"source_type"` // "file" or "url"
	Filename       string    `json:"filename,omitempty"`
	SourceURL      string    `json:"source_url,omitempty"`
	ProcessedAt    time.Time `json:"processed_at"`
	WordCount      int       `json:"word_count"`
	ChunkCount     int       `json:"chunk_count"`
	MarkdownKey    string    `json:"markdown_key"`
	SidecarKey     string    `json:"sidecar_key"`
	MarkdownURL    string    `json:"markdown_url"`
	SidecarURL     string    `json:"sidecar_url"`
	FileSize       int       `json:"file_size"`
	EmbeddingModel string    `json:"embedding_model"`
}

// Manifest is the single append-only index of processed documents.
type Manifest struct {
	Version       string          `json:"version"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	DocumentCount int             `json:"document_count"`
	Documents     []ManifestEntry `json:"documents"`
}

// InputFailure records one input that could not be processed, without
// failing the rest of the job.
type InputFailure struct {
	Identifier string `json:"identifier"` // filename or URL
	SourceType string `json:"source_type"`
	Error      string `json:"error"`
}

// ProcessingResult aggregates the outcome of one document-processing job.
type ProcessingResult struct {
	JobID               string          `json:"job_id"`
	TotalDocuments      int             `json:"total_documents"`
	SuccessfulDocuments int             `json:"successful_documents"`
	FailedDocuments     int             `json:"failed_documents_count"`
	Manifest            []ManifestEntry `json:"processed_documents"`
	Failures            []InputFailure  `json:"failed_documents"`
}

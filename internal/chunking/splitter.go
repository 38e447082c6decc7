package chunking

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/neurosnap/sentences"

	"docq/internal/models"
)

// Default splitting parameters. Adaptive sizing may choose a smaller chunk
// size; MinChunkWords is the floor below which a chunk carries too little
// signal to embed.
const (
	DefaultMaxTokens = 1024
	MaxOverlap       = 100
	MinChunkWords    = 10
)

// Splitter breaks extracted text into embedding-sized segments. Splitting is
// deterministic: the same text always yields the same segments.
type Splitter struct {
	maxTokens     int
	minChunkWords int
	tokenizer     *sentences.DefaultSentenceTokenizer
}

// NewSplitter creates a splitter with the given ceiling on chunk size in
// words. Values <= 0 fall back to the defaults.
func NewSplitter(maxTokens, minChunkWords int) *Splitter {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	if minChunkWords <= 0 {
		minChunkWords = MinChunkWords
	}
	return &Splitter{
		maxTokens:     maxTokens,
		minChunkWords: minChunkWords,
		tokenizer:     sentences.NewSentenceTokenizer(nil),
	}
}

// Strategy picks the chunk size and overlap for a document of the given total
// word count. Short documents get small chunks so they still yield several
// retrieval units; long documents get the full ceiling.
func (s *Splitter) Strategy(totalWords int) models.ChunkingStrategy {
	size := s.maxTokens
	switch {
	case totalWords < 500:
		size = min(size, 256)
	case totalWords < 2000:
		size = min(size, 512)
	}
	return models.ChunkingStrategy{
		ChunkSize: size,
		Overlap:   min(MaxOverlap, size/10),
	}
}

// Split chunks text into segments. Paragraphs that fit the chunk size travel
// whole; only a paragraph bigger than a chunk is broken up, and then on
// sentence boundaries, never inside one. A single sentence longer than the
// chunk size becomes its own oversized segment. Segments below the minimum
// word count are dropped.
func (s *Splitter) Split(text string) []models.Segment {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	strategy := s.Strategy(countWords(text))

	var chunks []string
	var parts []string // paragraphs (or sentence runs) of the chunk being built
	partWords := 0
	fresh := false // parts holds content not yet emitted
	flush := func() {
		// Pure overlap with nothing new appended yet would just re-emit
		// the previous tail.
		if !fresh {
			return
		}
		chunk := strings.Join(parts, "\n\n")
		chunks = append(chunks, chunk)
		parts, partWords = nil, 0
		// Seed the next chunk with the tail of this one for continuity
		// across the boundary.
		if strategy.Overlap > 0 {
			tail := strings.Fields(chunk)
			if len(tail) > strategy.Overlap {
				tail = tail[len(tail)-strategy.Overlap:]
			}
			parts = []string{strings.Join(tail, " ")}
			partWords = len(tail)
		}
		fresh = false
	}
	add := func(unit string, wordCount int) {
		parts = append(parts, unit)
		partWords += wordCount
		fresh = true
	}

	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		paraWords := countWords(para)
		if paraWords == 0 {
			continue
		}

		if paraWords <= strategy.ChunkSize {
			if fresh && partWords+paraWords > strategy.ChunkSize {
				flush()
			}
			add(para, paraWords)
			if partWords >= strategy.ChunkSize {
				flush()
			}
			continue
		}

		// The paragraph alone exceeds a chunk; pack its sentences instead.
		var run []string
		runWords := 0
		endRun := func() {
			if len(run) > 0 {
				add(strings.Join(run, " "), runWords)
				run, runWords = nil, 0
			}
		}
		for _, sentence := range s.sentences(para) {
			sw := countWords(sentence)
			if sw == 0 {
				continue
			}
			if (fresh || runWords > 0) && partWords+runWords+sw > strategy.ChunkSize {
				endRun()
				flush()
			}
			run = append(run, sentence)
			runWords += sw
			// An oversized single sentence goes out as-is rather than being
			// split mid-sentence.
			if partWords+runWords >= strategy.ChunkSize {
				endRun()
				flush()
			}
		}
		endRun()
	}
	flush()

	segments := make([]models.Segment, 0, len(chunks))
	for _, chunk := range chunks {
		wordCount := countWords(chunk)
		if wordCount < s.minChunkWords {
			continue
		}
		segments = append(segments, models.Segment{
			Index:     len(segments),
			Text:      chunk,
			WordCount: wordCount,
			CharCount: len(chunk),
			Hash:      hashSegment(chunk),
		})
	}
	return segments
}

// sentences tokenizes a paragraph, falling back to the paragraph itself when
// the tokenizer finds nothing.
func (s *Splitter) sentences(para string) []string {
	sents := s.tokenizer.Tokenize(para)
	if len(sents) == 0 {
		return []string{para}
	}
	out := make([]string, 0, len(sents))
	for _, sent := range sents {
		if t := strings.TrimSpace(sent.Text); t != "" {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return []string{para}
	}
	return out
}

func countWords(text string) int {
	return len(strings.Fields(text))
}

// hashSegment returns a short stable identifier for a chunk's exact text.
func hashSegment(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])[:16]
}

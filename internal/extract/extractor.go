package extract

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"code.sajari.com/docconv"
	log "github.com/sirupsen/logrus"

	"docq/internal/config"
	"docq/internal/extract/ocr"
	"docq/internal/models"
)

// Processing method names recorded in extraction metadata.
const (
	MethodDirect      = "direct"
	MethodOCRBasic    = "ocr_basic"
	MethodOCRAdvanced = "ocr_advanced"
	MethodWebFetch    = "web_fetch"
)

// Metadata describes how a document's text was obtained.
type Metadata struct {
	Method      string   `json:"processing_method"`
	Tier        int      `json:"tier"`
	WordCount   int      `json:"word_count"`
	CharCount   int      `json:"char_count"`
	Confidence  float64  `json:"ocr_confidence,omitempty"`
	Escalations []string `json:"escalations,omitempty"`
}

// Extraction is extracted text plus how it was obtained.
type Extraction struct {
	Text     string
	Metadata Metadata
}

// Extractor turns document bytes into text through a tiered cascade: direct
// structural extraction first, then basic OCR, then structure-aware OCR. A
// tier runs only when the previous one missed its quality floor.
type Extractor struct {
	ocr ocr.Client // nil disables the OCR tiers
	cfg *config.Config
}

// NewExtractor creates an extractor. The OCR client may be nil, which limits
// the cascade to direct extraction.
func NewExtractor(ocrClient ocr.Client, cfg *config.Config) *Extractor {
	return &Extractor{ocr: ocrClient, cfg: cfg}
}

// ocrCapable file extensions: formats Textract accepts as inline bytes.
var ocrCapable = map[string]bool{
	".pdf": true, ".png": true, ".jpg": true, ".jpeg": true, ".tiff": true,
}

// plainText extensions read as-is without conversion.
var plainText = map[string]bool{
	".txt": true, ".md": true, ".markdown": true, ".csv": true,
}

// ExtractFile runs the cascade over one file. When no tier reaches its floor
// the best-yielding tier still wins; only a fully empty cascade is an error.
func (e *Extractor) ExtractFile(ctx context.Context, filename string, content []byte) (*Extraction, error) {
	ext := strings.ToLower(filepath.Ext(filename))

	direct, directErr := e.extractDirect(filename, ext, content)
	best := &Extraction{Metadata: Metadata{Method: MethodDirect, Tier: 1}}
	if directErr == nil {
		best = direct
		if best.Metadata.WordCount >= e.cfg.Extraction.MinDirectWords {
			return best, nil
		}
		best.Metadata.Escalations = append(best.Metadata.Escalations,
			fmt.Sprintf("direct extraction yielded %d words, below floor of %d", best.Metadata.WordCount, e.cfg.Extraction.MinDirectWords))
	} else {
		best.Metadata.Escalations = append(best.Metadata.Escalations,
			fmt.Sprintf("direct extraction failed: %v", directErr))
	}

	if e.ocr == nil || !ocrCapable[ext] {
		return e.finish(filename, best)
	}

	basic, err := e.ocr.DetectText(ctx, content)
	if err != nil {
		best.Metadata.Escalations = append(best.Metadata.Escalations,
			fmt.Sprintf("basic OCR failed: %v", err))
	} else {
		candidate := asExtraction(basic, MethodOCRBasic, 2, best.Metadata.Escalations)
		switch {
		case basic.Confidence < e.cfg.Extraction.OCRConfidence:
			best.Metadata.Escalations = append(best.Metadata.Escalations,
				fmt.Sprintf("basic OCR confidence %.1f below floor %.1f", basic.Confidence, e.cfg.Extraction.OCRConfidence))
		case candidate.Metadata.WordCount <= best.Metadata.WordCount:
			best.Metadata.Escalations = append(best.Metadata.Escalations,
				fmt.Sprintf("basic OCR yield %d words did not improve on %d", candidate.Metadata.WordCount, best.Metadata.WordCount))
		default:
			return candidate, nil
		}
	}

	advanced, err := e.ocr.Analyze(ctx, content)
	if err != nil {
		best.Metadata.Escalations = append(best.Metadata.Escalations,
			fmt.Sprintf("advanced OCR failed: %v", err))
		return e.finish(filename, best)
	}
	candidate := asExtraction(advanced, MethodOCRAdvanced, 3, best.Metadata.Escalations)
	if advanced.Confidence >= e.cfg.Extraction.OCRConfidenceAdv && candidate.Metadata.WordCount > best.Metadata.WordCount {
		return candidate, nil
	}
	if candidate.Metadata.WordCount > best.Metadata.WordCount {
		// Low confidence but strictly more text than anything else found.
		candidate.Metadata.Escalations = append(candidate.Metadata.Escalations,
			fmt.Sprintf("advanced OCR confidence %.1f below floor %.1f, kept as best yield", advanced.Confidence, e.cfg.Extraction.OCRConfidenceAdv))
		return e.finish(filename, candidate)
	}
	return e.finish(filename, best)
}

// finish returns the best-effort extraction, or ErrNoText when every tier
// came up empty.
func (e *Extractor) finish(filename string, best *Extraction) (*Extraction, error) {
	if strings.TrimSpace(best.Text) == "" {
		return nil, fmt.Errorf("no extractable text in %s: %w", filename, models.ErrNoText)
	}
	log.Warnf("Extraction of %s settled on %s (tier %d) with %d words after: %s",
		filename, best.Metadata.Method, best.Metadata.Tier, best.Metadata.WordCount,
		strings.Join(best.Metadata.Escalations, "; "))
	return best, nil
}

// extractDirect reads plain-text formats as-is and converts everything else
// through docconv.
func (e *Extractor) extractDirect(filename, ext string, content []byte) (*Extraction, error) {
	var text string
	if plainText[ext] {
		text = string(content)
	} else {
		mimeType := docconv.MimeTypeByExtension(filename)
		res, err := docconv.Convert(bytes.NewReader(content), mimeType, true)
		if err != nil {
			return nil, fmt.Errorf("docconv failed for %s: %w", filename, err)
		}
		text = res.Body
	}

	text = strings.TrimSpace(text)
	return &Extraction{
		Text: text,
		Metadata: Metadata{
			Method:    MethodDirect,
			Tier:      1,
			WordCount: len(strings.Fields(text)),
			CharCount: len(text),
		},
	}, nil
}

func asExtraction(res *ocr.Result, method string, tier int, escalations []string) *Extraction {
	return &Extraction{
		Text: res.Text,
		Metadata: Metadata{
			Method:      method,
			Tier:        tier,
			WordCount:   res.WordCount,
			CharCount:   len(res.Text),
			Confidence:  res.Confidence,
			Escalations: append([]string(nil), escalations...),
		},
	}
}

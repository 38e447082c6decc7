package extract

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docq/internal/config"
	"docq/internal/extract/ocr"
	"docq/internal/models"
)

type fakeOCR struct {
	detect     *ocr.Result
	detectErr  error
	analyze    *ocr.Result
	analyzeErr error

	detectCalls  int
	analyzeCalls int
}

func (f *fakeOCR) DetectText(context.Context, []byte) (*ocr.Result, error) {
	f.detectCalls++
	return f.detect, f.detectErr
}

func (f *fakeOCR) Analyze(context.Context, []byte) (*ocr.Result, error) {
	f.analyzeCalls++
	return f.analyze, f.analyzeErr
}

func extractConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Extraction.MinDirectWords = 50
	cfg.Extraction.OCRConfidence = 80
	cfg.Extraction.OCRConfidenceAdv = 75
	return cfg
}

func words(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = "word"
	}
	return strings.Join(parts, " ")
}

func TestExtractFileDirectSufficient(t *testing.T) {
	f := &fakeOCR{}
	e := NewExtractor(f, extractConfig())

	text := words(60)
	res, err := e.ExtractFile(context.Background(), "report.txt", []byte(text))
	require.NoError(t, err)
	assert.Equal(t, MethodDirect, res.Metadata.Method)
	assert.Equal(t, 1, res.Metadata.Tier)
	assert.Equal(t, 60, res.Metadata.WordCount)
	assert.Empty(t, res.Metadata.Escalations)
	assert.Zero(t, f.detectCalls, "OCR never runs when direct meets the floor")
}

func TestExtractFileShortDirectNotOCRCapable(t *testing.T) {
	f := &fakeOCR{}
	e := NewExtractor(f, extractConfig())

	// Below the direct floor, but .txt cannot go through OCR; the short
	// text still wins with the escalation recorded.
	res, err := e.ExtractFile(context.Background(), "note.txt", []byte(words(10)))
	require.NoError(t, err)
	assert.Equal(t, MethodDirect, res.Metadata.Method)
	assert.Len(t, res.Metadata.Escalations, 1)
	assert.Contains(t, res.Metadata.Escalations[0], "below floor")
	assert.Zero(t, f.detectCalls)
}

func TestExtractFileEscalatesToBasicOCR(t *testing.T) {
	f := &fakeOCR{
		detect: &ocr.Result{Text: words(120), Confidence: 92.5, WordCount: 120},
	}
	e := NewExtractor(f, extractConfig())

	// Scanned PDFs give docconv nothing, so tier 1 fails outright.
	res, err := e.ExtractFile(context.Background(), "scan.pdf", []byte("%PDF-1.4 garbage"))
	require.NoError(t, err)
	assert.Equal(t, MethodOCRBasic, res.Metadata.Method)
	assert.Equal(t, 2, res.Metadata.Tier)
	assert.Equal(t, 120, res.Metadata.WordCount)
	assert.InDelta(t, 92.5, res.Metadata.Confidence, 0.01)
	assert.Equal(t, 1, f.detectCalls)
	assert.Zero(t, f.analyzeCalls)
}

func TestExtractFileLowConfidenceBasicEscalatesToAdvanced(t *testing.T) {
	f := &fakeOCR{
		detect:  &ocr.Result{Text: words(120), Confidence: 60, WordCount: 120},
		analyze: &ocr.Result{Text: words(150), Confidence: 88, WordCount: 150},
	}
	e := NewExtractor(f, extractConfig())

	res, err := e.ExtractFile(context.Background(), "scan.pdf", []byte("%PDF-1.4 garbage"))
	require.NoError(t, err)
	assert.Equal(t, MethodOCRAdvanced, res.Metadata.Method)
	assert.Equal(t, 3, res.Metadata.Tier)
	assert.Equal(t, 150, res.Metadata.WordCount)
	assert.Equal(t, 1, f.detectCalls)
	assert.Equal(t, 1, f.analyzeCalls)

	var found bool
	for _, esc := range res.Metadata.Escalations {
		if strings.Contains(esc, "confidence 60.0 below floor 80.0") {
			found = true
		}
	}
	assert.True(t, found, "basic OCR rejection is recorded: %v", res.Metadata.Escalations)
}

func TestExtractFileLowConfidenceAdvancedKeptAsBestYield(t *testing.T) {
	f := &fakeOCR{
		detect:  &ocr.Result{Text: words(30), Confidence: 50, WordCount: 30},
		analyze: &ocr.Result{Text: words(90), Confidence: 40, WordCount: 90},
	}
	e := NewExtractor(f, extractConfig())

	res, err := e.ExtractFile(context.Background(), "scan.pdf", []byte("%PDF-1.4 garbage"))
	require.NoError(t, err)
	assert.Equal(t, MethodOCRAdvanced, res.Metadata.Method)
	assert.Equal(t, 90, res.Metadata.WordCount)

	var found bool
	for _, esc := range res.Metadata.Escalations {
		if strings.Contains(esc, "kept as best yield") {
			found = true
		}
	}
	assert.True(t, found, "low confidence keep is recorded: %v", res.Metadata.Escalations)
}

func TestExtractFileNilOCRClient(t *testing.T) {
	e := NewExtractor(nil, extractConfig())

	res, err := e.ExtractFile(context.Background(), "note.txt", []byte(words(10)))
	require.NoError(t, err)
	assert.Equal(t, MethodDirect, res.Metadata.Method)

	// A format that would normally escalate just errors without OCR.
	_, err = e.ExtractFile(context.Background(), "scan.pdf", []byte("%PDF-1.4 garbage"))
	assert.ErrorIs(t, err, models.ErrNoText)
}

func TestExtractFileEverythingEmpty(t *testing.T) {
	f := &fakeOCR{
		detectErr:  errors.New("throttled"),
		analyzeErr: errors.New("throttled"),
	}
	e := NewExtractor(f, extractConfig())

	_, err := e.ExtractFile(context.Background(), "scan.pdf", []byte("%PDF-1.4 garbage"))
	assert.ErrorIs(t, err, models.ErrNoText)
}

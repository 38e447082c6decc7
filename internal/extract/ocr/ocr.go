package ocr

import "context"

// Result is the outcome of one OCR pass over a document.
type Result struct {
	// Text is the recognized content rendered as markdown-ish plain text,
	// with page markers between pages.
	Text string
	// Confidence is the mean per-line confidence, 0-100.
	Confidence float64
	WordCount  int
}

// Client recognizes text in scanned documents. DetectText is the fast
// text-only pass; Analyze additionally reconstructs tables and key/value
// form fields.
type Client interface {
	DetectText(ctx context.Context, doc []byte) (*Result, error)
	Analyze(ctx context.Context, doc []byte) (*Result, error)
}

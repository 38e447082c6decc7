package extract

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"docq/internal/config"
	"docq/internal/models"
)

const fetchUserAgent = "Mozilla/5.0 (compatible; docq/1.0; +https://github.com/dotcommander/docq)"

// maxFetchBytes caps how much of a remote page is read.
const maxFetchBytes = 8 * 1024 * 1024

// Fetcher retrieves web pages and reduces them to readable text.
type Fetcher struct {
	client   *http.Client
	minWords int
}

// NewFetcher creates a URL fetcher with the configured timeout.
func NewFetcher(cfg *config.Config) *Fetcher {
	minWords := cfg.Extraction.MinDirectWords
	if minWords <= 0 {
		minWords = 50
	}
	return &Fetcher{
		client: &http.Client{
			Timeout: time.Duration(cfg.Extraction.FetchTimeoutSecs) * time.Second,
		},
		minWords: minWords,
	}
}

// containers tried in order when locating the main content of a page.
var contentSelectors = []string{
	"main", "article", "[role=main]",
	".content", "#content", ".post-content", ".entry-content", ".article-body",
}

// ExtractURL fetches a page and returns its readable text, headings rendered
// as markdown heading lines and list items as bullets.
func (f *Fetcher) ExtractURL(ctx context.Context, url string) (*Extraction, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid URL %s: %w", url, err)
	}
	req.Header.Set("User-Agent", fetchUserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch of %s returned status %d", url, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML from %s: %w", url, err)
	}

	doc.Find("script, style, nav, header, footer, aside, noscript, iframe").Remove()

	root := doc.Selection
	for _, sel := range contentSelectors {
		if found := doc.Find(sel); found.Length() > 0 {
			root = found.First()
			break
		}
	}

	text := renderSelection(root)
	if len(strings.Fields(text)) < f.minWords {
		// The structured blocks missed the floor; the raw body text usually
		// holds the rest of the page.
		body := collapseSpace(doc.Find("body").Text())
		if len(strings.Fields(body)) > len(strings.Fields(text)) {
			text = body
		}
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("no readable text at %s: %w", url, models.ErrNoText)
	}

	var title string
	if t := strings.TrimSpace(doc.Find("title").First().Text()); t != "" {
		title = "# " + t + "\n\n"
	}
	text = title + text

	return &Extraction{
		Text: text,
		Metadata: Metadata{
			Method:    MethodWebFetch,
			Tier:      1,
			WordCount: len(strings.Fields(text)),
			CharCount: len(text),
		},
	}, nil
}

// renderSelection walks block-level elements, keeping heading structure and
// list bullets.
func renderSelection(root *goquery.Selection) string {
	var blocks []string
	root.Find("h1, h2, h3, h4, h5, h6, p, li, pre, blockquote").Each(func(_ int, s *goquery.Selection) {
		text := strings.TrimSpace(collapseSpace(s.Text()))
		if text == "" {
			return
		}
		switch goquery.NodeName(s) {
		case "h1":
			blocks = append(blocks, "# "+text)
		case "h2":
			blocks = append(blocks, "## "+text)
		case "h3":
			blocks = append(blocks, "### "+text)
		case "h4", "h5", "h6":
			blocks = append(blocks, "#### "+text)
		case "li":
			blocks = append(blocks, "- "+text)
		default:
			blocks = append(blocks, text)
		}
	})
	return strings.Join(blocks, "\n\n")
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

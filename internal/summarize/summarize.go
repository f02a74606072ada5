// Package summarize condenses web pages into short summaries.
package summarize

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"quill/internal/llm"
	"quill/internal/logging"
)

const summarySystemPrompt = `You summarize web page content. Produce a clear summary of roughly 300 words that covers the page's main points. Do not add information that is not in the page.`

// pageTextLimit caps how much extracted page text is sent to the model.
const pageTextLimit = 16000

// Summarizer fetches a page and condenses it with the model.
type Summarizer struct {
	client     llm.Client
	httpClient *http.Client
	logger     logging.Logger
}

// New creates a summarizer.
func New(client llm.Client) *Summarizer {
	return &Summarizer{
		client:     client,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logging.NewComponentLogger("summarize"),
	}
}

// SummarizeURL fetches the page at rawURL and returns a ~300 word summary.
func (s *Summarizer) SummarizeURL(ctx context.Context, rawURL string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return "", fmt.Errorf("invalid URL %q", rawURL)
	}

	text, err := s.fetchPageText(ctx, parsed.String())
	if err != nil {
		return "", err
	}
	if text == "" {
		return "", fmt.Errorf("page %s contains no readable text", parsed.String())
	}

	s.logger.Debug("Summarizing %d characters from %s", len(text), parsed.Host)

	resp, err := s.client.Complete(ctx, llm.CompletionRequest{
		Messages: []llm.Message{
			{Role: "system", Content: summarySystemPrompt},
			{Role: "user", Content: "Summarize this page:\n\n" + text},
		},
	})
	if err != nil {
		return "", fmt.Errorf("generate summary: %w", err)
	}
	return strings.TrimSpace(resp.Content), nil
}

func (s *Summarizer) fetchPageText(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; quill/1.0)")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch page: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("page returned status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", fmt.Errorf("parse page: %w", err)
	}

	// Script, style and navigation noise carry no prose.
	doc.Find("script, style, nav, header, footer, noscript").Remove()

	text := strings.Join(strings.Fields(doc.Find("body").Text()), " ")
	if runes := []rune(text); len(runes) > pageTextLimit {
		text = string(runes[:pageTextLimit])
	}
	return text, nil
}

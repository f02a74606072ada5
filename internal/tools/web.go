// Package tools provides the research tools exposed to the reasoning agent:
// general web search, academic paper search, and encyclopedia lookup.
package tools

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"quill/internal/logging"
)

const userAgent = "Mozilla/5.0 (compatible; quill/1.0)"

// maxWebResults bounds how many search hits one observation carries.
const maxWebResults = 5

// WebSearch answers general queries through the DuckDuckGo HTML endpoint,
// which needs no API key.
type WebSearch struct {
	client  *http.Client
	baseURL string
	logger  logging.Logger
}

// NewWebSearch creates the general web search tool.
func NewWebSearch() *WebSearch {
	return newWebSearch("https://html.duckduckgo.com/html/", nil)
}

func newWebSearch(baseURL string, client *http.Client) *WebSearch {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &WebSearch{
		client:  client,
		baseURL: baseURL,
		logger:  logging.NewComponentLogger("web-search"),
	}
}

func (t *WebSearch) Name() string {
	return "general-web-search"
}

func (t *WebSearch) Description() string {
	return "Search the web for current information, news, and facts. Input: a plain search query."
}

// Run executes one search and renders the top results as an observation.
func (t *WebSearch) Run(ctx context.Context, input string) (string, error) {
	query := strings.TrimSpace(input)
	if query == "" {
		return "", fmt.Errorf("search query is required")
	}

	reqURL := t.baseURL + "?q=" + url.QueryEscape(query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("search request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("search returned status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", fmt.Errorf("parse search results: %w", err)
	}

	var sb strings.Builder
	count := 0
	doc.Find(".result").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		title := strings.TrimSpace(sel.Find(".result__a").Text())
		snippet := strings.TrimSpace(sel.Find(".result__snippet").Text())
		if title == "" && snippet == "" {
			return true
		}
		count++
		fmt.Fprintf(&sb, "%d. %s\n%s\n\n", count, title, snippet)
		return count < maxWebResults
	})

	if count == 0 {
		t.logger.Debug("No results for query %q", query)
		return "No results found for: " + query, nil
	}
	return strings.TrimSpace(sb.String()), nil
}

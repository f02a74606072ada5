package tools

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// arxivSummaryLimit caps the abstract length carried into an observation.
const arxivSummaryLimit = 200

// ArxivSearch looks up academic papers through the arXiv Atom API. Only the
// top match is returned, with a tightly truncated abstract, to keep the
// observation small.
type ArxivSearch struct {
	client  *http.Client
	baseURL string
}

// NewArxivSearch creates the academic paper search tool.
func NewArxivSearch() *ArxivSearch {
	return newArxivSearch("http://export.arxiv.org/api/query", nil)
}

func newArxivSearch(baseURL string, client *http.Client) *ArxivSearch {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &ArxivSearch{client: client, baseURL: baseURL}
}

func (t *ArxivSearch) Name() string {
	return "academic-paper-search"
}

func (t *ArxivSearch) Description() string {
	return "Search arXiv for scientific papers and research publications. Input: a topic, paper title, or author."
}

type arxivFeed struct {
	Entries []arxivEntry `xml:"entry"`
}

type arxivEntry struct {
	Title     string `xml:"title"`
	Summary   string `xml:"summary"`
	Published string `xml:"published"`
	ID        string `xml:"id"`
	Authors   []struct {
		Name string `xml:"name"`
	} `xml:"author"`
}

// Run queries arXiv and renders the best match.
func (t *ArxivSearch) Run(ctx context.Context, input string) (string, error) {
	query := strings.TrimSpace(input)
	if query == "" {
		return "", fmt.Errorf("search query is required")
	}

	params := url.Values{}
	params.Set("search_query", "all:"+query)
	params.Set("start", "0")
	params.Set("max_results", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("arxiv request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("arxiv returned status %d", resp.StatusCode)
	}

	var feed arxivFeed
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return "", fmt.Errorf("parse arxiv response: %w", err)
	}

	if len(feed.Entries) == 0 {
		return "No papers found for: " + query, nil
	}

	entry := feed.Entries[0]
	names := make([]string, len(entry.Authors))
	for i, a := range entry.Authors {
		names[i] = a.Name
	}

	summary := strings.Join(strings.Fields(entry.Summary), " ")
	if runes := []rune(summary); len(runes) > arxivSummaryLimit {
		summary = string(runes[:arxivSummaryLimit])
	}

	return fmt.Sprintf("Title: %s\nAuthors: %s\nPublished: %s\nSummary: %s\nLink: %s",
		strings.Join(strings.Fields(entry.Title), " "),
		strings.Join(names, ", "),
		entry.Published,
		summary,
		strings.TrimSpace(entry.ID),
	), nil
}

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// wikipediaTopK is how many articles one lookup returns.
	wikipediaTopK = 2
	// wikipediaExtractLimit caps each article extract.
	wikipediaExtractLimit = 1000
)

// WikipediaLookup answers encyclopedic queries through the MediaWiki API.
type WikipediaLookup struct {
	client  *http.Client
	baseURL string
}

// NewWikipediaLookup creates the encyclopedia lookup tool.
func NewWikipediaLookup() *WikipediaLookup {
	return newWikipediaLookup("https://en.wikipedia.org/w/api.php", nil)
}

func newWikipediaLookup(baseURL string, client *http.Client) *WikipediaLookup {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &WikipediaLookup{client: client, baseURL: baseURL}
}

func (t *WikipediaLookup) Name() string {
	return "encyclopedia-lookup"
}

func (t *WikipediaLookup) Description() string {
	return "Look up established knowledge about people, places, history, and concepts on Wikipedia. Input: the subject to look up."
}

// Run searches Wikipedia and renders intro extracts of the top articles.
func (t *WikipediaLookup) Run(ctx context.Context, input string) (string, error) {
	query := strings.TrimSpace(input)
	if query == "" {
		return "", fmt.Errorf("lookup subject is required")
	}

	titles, err := t.search(ctx, query)
	if err != nil {
		return "", err
	}
	if len(titles) == 0 {
		return "No encyclopedia articles found for: " + query, nil
	}

	var sb strings.Builder
	for _, title := range titles {
		extract, err := t.extract(ctx, title)
		if err != nil {
			// A single unavailable article should not void the lookup.
			continue
		}
		if runes := []rune(extract); len(runes) > wikipediaExtractLimit {
			extract = string(runes[:wikipediaExtractLimit])
		}
		fmt.Fprintf(&sb, "Page: %s\nSummary: %s\n\n", title, extract)
	}

	result := strings.TrimSpace(sb.String())
	if result == "" {
		return "No encyclopedia articles found for: " + query, nil
	}
	return result, nil
}

func (t *WikipediaLookup) search(ctx context.Context, query string) ([]string, error) {
	params := url.Values{}
	params.Set("action", "query")
	params.Set("list", "search")
	params.Set("srsearch", query)
	params.Set("srlimit", fmt.Sprintf("%d", wikipediaTopK))
	params.Set("format", "json")

	var payload struct {
		Query struct {
			Search []struct {
				Title string `json:"title"`
			} `json:"search"`
		} `json:"query"`
	}
	if err := t.call(ctx, params, &payload); err != nil {
		return nil, err
	}

	titles := make([]string, 0, len(payload.Query.Search))
	for _, hit := range payload.Query.Search {
		titles = append(titles, hit.Title)
	}
	return titles, nil
}

func (t *WikipediaLookup) extract(ctx context.Context, title string) (string, error) {
	params := url.Values{}
	params.Set("action", "query")
	params.Set("prop", "extracts")
	params.Set("explaintext", "1")
	params.Set("exintro", "1")
	params.Set("titles", title)
	params.Set("format", "json")

	var payload struct {
		Query struct {
			Pages map[string]struct {
				Extract string `json:"extract"`
			} `json:"pages"`
		} `json:"query"`
	}
	if err := t.call(ctx, params, &payload); err != nil {
		return "", err
	}

	for _, page := range payload.Query.Pages {
		if page.Extract != "" {
			return page.Extract, nil
		}
	}
	return "", fmt.Errorf("no extract for %q", title)
}

func (t *WikipediaLookup) call(ctx context.Context, params url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("wikipedia request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("wikipedia returned status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("parse wikipedia response: %w", err)
	}
	return nil
}

package tools

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebSearchParsesResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "go concurrency", r.URL.Query().Get("q"))
		fmt.Fprint(w, `<html><body>
			<div class="result">
				<a class="result__a">Go Concurrency Patterns</a>
				<div class="result__snippet">Goroutines and channels explained.</div>
			</div>
			<div class="result">
				<a class="result__a">Share Memory By Communicating</a>
				<div class="result__snippet">The Go blog on concurrency.</div>
			</div>
		</body></html>`)
	}))
	defer server.Close()

	tool := newWebSearch(server.URL, server.Client())
	out, err := tool.Run(context.Background(), "go concurrency")
	require.NoError(t, err)

	assert.Contains(t, out, "1. Go Concurrency Patterns")
	assert.Contains(t, out, "Goroutines and channels explained.")
	assert.Contains(t, out, "2. Share Memory By Communicating")
}

func TestWebSearchNoResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><body></body></html>`)
	}))
	defer server.Close()

	tool := newWebSearch(server.URL, server.Client())
	out, err := tool.Run(context.Background(), "gibberish query")
	require.NoError(t, err)
	assert.Contains(t, out, "No results found")
}

func TestWebSearchRejectsEmptyQuery(t *testing.T) {
	tool := NewWebSearch()
	_, err := tool.Run(context.Background(), "   ")
	assert.Error(t, err)
}

func TestWebSearchUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	tool := newWebSearch(server.URL, server.Client())
	_, err := tool.Run(context.Background(), "anything")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestArxivSearchTopResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "all:attention", r.URL.Query().Get("search_query"))
		assert.Equal(t, "1", r.URL.Query().Get("max_results"))
		fmt.Fprint(w, `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <entry>
    <id>http://arxiv.org/abs/1706.03762</id>
    <title>Attention Is All You Need</title>
    <summary>`+strings.Repeat("The dominant sequence transduction models. ", 20)+`</summary>
    <published>2017-06-12T17:57:34Z</published>
    <author><name>Ashish Vaswani</name></author>
    <author><name>Noam Shazeer</name></author>
  </entry>
</feed>`)
	}))
	defer server.Close()

	tool := newArxivSearch(server.URL, server.Client())
	out, err := tool.Run(context.Background(), "attention")
	require.NoError(t, err)

	assert.Contains(t, out, "Title: Attention Is All You Need")
	assert.Contains(t, out, "Ashish Vaswani, Noam Shazeer")
	assert.Contains(t, out, "arxiv.org/abs/1706.03762")

	// Long abstracts are truncated.
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, "Summary: ") {
			assert.LessOrEqual(t, len([]rune(strings.TrimPrefix(line, "Summary: "))), arxivSummaryLimit)
		}
	}
}

func TestArxivSearchNoResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<?xml version="1.0"?><feed xmlns="http://www.w3.org/2005/Atom"></feed>`)
	}))
	defer server.Close()

	tool := newArxivSearch(server.URL, server.Client())
	out, err := tool.Run(context.Background(), "nonexistent topic")
	require.NoError(t, err)
	assert.Contains(t, out, "No papers found")
}

func TestWikipediaLookup(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("list") {
		case "search":
			assert.Equal(t, "2", r.URL.Query().Get("srlimit"))
			fmt.Fprint(w, `{"query":{"search":[{"title":"Alan Turing"},{"title":"Turing machine"}]}}`)
		default:
			title := r.URL.Query().Get("titles")
			fmt.Fprintf(w, `{"query":{"pages":{"1":{"extract":"Intro text about %s."}}}}`, title)
		}
	}))
	defer server.Close()

	tool := newWikipediaLookup(server.URL, server.Client())
	out, err := tool.Run(context.Background(), "turing")
	require.NoError(t, err)

	assert.Contains(t, out, "Page: Alan Turing")
	assert.Contains(t, out, "Page: Turing machine")
	assert.Contains(t, out, "Intro text about Alan Turing.")
}

func TestWikipediaLookupExtractTruncated(t *testing.T) {
	long := strings.Repeat("a", 3000)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("list") == "search" {
			fmt.Fprint(w, `{"query":{"search":[{"title":"Long Article"}]}}`)
			return
		}
		fmt.Fprintf(w, `{"query":{"pages":{"1":{"extract":"%s"}}}}`, long)
	}))
	defer server.Close()

	tool := newWikipediaLookup(server.URL, server.Client())
	out, err := tool.Run(context.Background(), "long")
	require.NoError(t, err)

	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, "Summary: ") {
			assert.Len(t, []rune(strings.TrimPrefix(line, "Summary: ")), wikipediaExtractLimit)
		}
	}
}

func TestWikipediaLookupNoResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"query":{"search":[]}}`)
	}))
	defer server.Close()

	tool := newWikipediaLookup(server.URL, server.Client())
	out, err := tool.Run(context.Background(), "nothing")
	require.NoError(t, err)
	assert.Contains(t, out, "No encyclopedia articles found")
}

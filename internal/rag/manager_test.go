package rag

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quill/internal/config"
	"quill/internal/llm"
	"quill/internal/observability"
	"quill/pkg/types"
)

// wordEmbedder is a deterministic local embedder. Texts sharing words land
// close together, which is all retrieval tests need.
type wordEmbedder struct{}

func (wordEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	return wordVector(text), nil
}

func (wordEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = wordVector(text)
	}
	return out, nil
}

func wordVector(text string) []float32 {
	vec := make([]float32, 64)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,;:!?\"'()")
		if word == "" {
			continue
		}
		h := fnv.New32a()
		_, _ = h.Write([]byte(word))
		vec[h.Sum32()%64]++
	}
	// Keep the vector non-zero so cosine similarity is defined.
	vec[0] += 0.01
	return vec
}

func newTestManager(t *testing.T, client llm.Client) *Manager {
	t.Helper()

	store, err := NewVectorStore("", wordEmbedder{})
	require.NoError(t, err)
	metrics, err := observability.NewMetricsCollector(observability.MetricsConfig{})
	require.NoError(t, err)

	mgr, err := NewManager(config.IndexConfig{
		ChunkSize:    32,
		ChunkOverlap: 4,
		TopK:         2,
	}, config.DefaultHistoryWindow, wordEmbedder{}, store, client, metrics)
	require.NoError(t, err)
	return mgr
}

func TestQueryWithoutDocumentsSkipsModel(t *testing.T) {
	client := llm.NewMockClient("should never be returned")
	mgr := newTestManager(t, client)

	answer, err := mgr.Query(context.Background(), "empty-session", "what does the report say?", nil)
	require.NoError(t, err)

	assert.Equal(t, NoDocumentsResponse, answer)
	assert.Equal(t, 0, client.Calls(), "no model call should be spent on a session without documents")
}

func TestIndexDocumentsIsAdditive(t *testing.T) {
	mgr := newTestManager(t, llm.NewMockClient())
	ctx := context.Background()

	file := File{Name: "notes.txt", Data: []byte(strings.Repeat("quarterly revenue grew twelve percent\n", 20))}

	report, err := mgr.IndexDocuments(ctx, "s1", []File{file})
	require.NoError(t, err)
	require.Empty(t, report.Failed())

	first := mgr.ChunkCount("s1")
	require.Greater(t, first, 0)
	assert.Equal(t, report.TotalChunks, first)

	// Re-uploading the same file appends, never replaces.
	_, err = mgr.IndexDocuments(ctx, "s1", []File{file})
	require.NoError(t, err)
	assert.Equal(t, first*2, mgr.ChunkCount("s1"))
}

func TestIndexDocumentsIsolatesBadFiles(t *testing.T) {
	mgr := newTestManager(t, llm.NewMockClient())

	report, err := mgr.IndexDocuments(context.Background(), "s1", []File{
		{Name: "report.docx", Data: []byte("unsupported")},
		{Name: "notes.txt", Data: []byte("the merger closed in march\n")},
	})
	require.NoError(t, err)

	failed := report.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, "report.docx", failed[0].Name)

	assert.Greater(t, report.TotalChunks, 0)
	assert.Greater(t, mgr.ChunkCount("s1"), 0)
}

func TestQueryRetrievesRelevantChunks(t *testing.T) {
	client := llm.NewMockClient("Revenue grew twelve percent year over year.")
	mgr := newTestManager(t, client)
	ctx := context.Background()

	var sb strings.Builder
	for i := 0; i < 10; i++ {
		fmt.Fprintf(&sb, "The gardening club meets on tuesdays in the annex, week %d.\n", i)
	}
	sb.WriteString("Quarterly revenue grew twelve percent compared to last year.\n")
	for i := 0; i < 10; i++ {
		fmt.Fprintf(&sb, "Parking permits are renewed at the front desk, week %d.\n", i)
	}

	_, err := mgr.IndexDocuments(ctx, "s1", []File{{Name: "minutes.txt", Data: []byte(sb.String())}})
	require.NoError(t, err)

	answer, err := mgr.Query(ctx, "s1", "how much did quarterly revenue grow?", nil)
	require.NoError(t, err)
	assert.Equal(t, "Revenue grew twelve percent year over year.", answer)

	req, err := client.LastRequest()
	require.NoError(t, err)

	prompt := req.Messages[len(req.Messages)-1].Content
	assert.Contains(t, prompt, "revenue grew twelve percent")
	assert.Contains(t, prompt, "how much did quarterly revenue grow?")
}

func TestQuerySessionIsolation(t *testing.T) {
	client := llm.NewMockClient("answer")
	mgr := newTestManager(t, client)
	ctx := context.Background()

	_, err := mgr.IndexDocuments(ctx, "alpha", []File{
		{Name: "a.txt", Data: []byte("alpha session secret content\n")},
	})
	require.NoError(t, err)

	// The sibling session sees none of alpha's chunks.
	assert.Equal(t, 0, mgr.ChunkCount("beta"))

	answer, err := mgr.Query(ctx, "beta", "what is the secret?", nil)
	require.NoError(t, err)
	assert.Equal(t, NoDocumentsResponse, answer)
	assert.Equal(t, 0, client.Calls())
}

func TestQueryIncludesRecentHistory(t *testing.T) {
	client := llm.NewMockClient("contextual answer")
	mgr := newTestManager(t, client)
	ctx := context.Background()

	_, err := mgr.IndexDocuments(ctx, "s1", []File{
		{Name: "a.txt", Data: []byte("the contract renewal deadline is june first\n")},
	})
	require.NoError(t, err)

	history := []types.Message{
		{Role: types.RoleUser, Content: "when is the deadline?"},
		{Role: types.RoleAssistant, Content: "June first."},
	}
	_, err = mgr.Query(ctx, "s1", "and who signs the renewal?", history)
	require.NoError(t, err)

	req, err := client.LastRequest()
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(req.Messages), 4)
	assert.Equal(t, "when is the deadline?", req.Messages[1].Content)
	assert.Equal(t, "June first.", req.Messages[2].Content)
}

func TestClearSessionDropsChunks(t *testing.T) {
	mgr := newTestManager(t, llm.NewMockClient())
	ctx := context.Background()

	_, err := mgr.IndexDocuments(ctx, "s1", []File{
		{Name: "a.txt", Data: []byte("some indexed content\n")},
	})
	require.NoError(t, err)
	require.Greater(t, mgr.ChunkCount("s1"), 0)

	require.NoError(t, mgr.ClearSession(ctx, "s1"))
	assert.Equal(t, 0, mgr.ChunkCount("s1"))

	// Clearing an already empty session is a no-op.
	assert.NoError(t, mgr.ClearSession(ctx, "s1"))
}

package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"quill/internal/config"
	"quill/internal/llm"
	"quill/internal/logging"
	"quill/internal/observability"
	"quill/pkg/types"
)

// NoDocumentsResponse is returned, without consulting the model, when a
// session has no indexed chunks.
const NoDocumentsResponse = "No documents have been uploaded to this session yet. Upload a document first, then ask your question again."

const answerSystemPrompt = `You are a helpful assistant that answers questions about uploaded documents.
Use only the document excerpts provided in the user's message. If the excerpts do not contain the answer, say so plainly instead of guessing.`

// maximum texts per embeddings API call
const embedBatchSize = 100

// indexWorkers bounds concurrent per-file pipelines during one upload.
const indexWorkers = 4

// FileResult records the outcome of indexing a single file.
type FileResult struct {
	Name   string `json:"name"`
	Chunks int    `json:"chunks"`
	Err    error  `json:"-"`
}

// IndexReport summarizes one upload across all its files.
type IndexReport struct {
	Files       []FileResult
	TotalChunks int
}

// Failed returns the results for files that could not be indexed.
func (r *IndexReport) Failed() []FileResult {
	var failed []FileResult
	for _, f := range r.Files {
		if f.Err != nil {
			failed = append(failed, f)
		}
	}
	return failed
}

// Manager owns the per-session document index pipeline.
type Manager struct {
	chunker  Chunker
	embedder Embedder
	store    VectorStore
	client   llm.Client

	topK          int
	historyWindow int

	metrics *observability.MetricsCollector
	logger  logging.Logger
}

// NewManager creates the index manager.
func NewManager(cfg config.IndexConfig, historyWindow int, embedder Embedder, store VectorStore, client llm.Client, metrics *observability.MetricsCollector) (*Manager, error) {
	chunker, err := NewChunker(ChunkerConfig{
		ChunkSize:    cfg.ChunkSize,
		ChunkOverlap: cfg.ChunkOverlap,
	})
	if err != nil {
		return nil, fmt.Errorf("create chunker: %w", err)
	}

	topK := cfg.TopK
	if topK <= 0 {
		topK = config.DefaultRetrievalTopK
	}
	if historyWindow <= 0 {
		historyWindow = config.DefaultHistoryWindow
	}

	return &Manager{
		chunker:       chunker,
		embedder:      embedder,
		store:         store,
		client:        client,
		topK:          topK,
		historyWindow: historyWindow,
		metrics:       metrics,
		logger:        logging.NewComponentLogger("index"),
	}, nil
}

// IndexDocuments extracts, chunks, embeds and stores the given files for one
// session. Files are processed independently: one bad file never blocks the
// rest, its failure is reported in the returned IndexReport instead. Repeated
// uploads of the same file add new chunks rather than replacing old ones.
func (m *Manager) IndexDocuments(ctx context.Context, sessionID string, files []File) (*IndexReport, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session ID is required")
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no files provided")
	}

	report := &IndexReport{
		Files: make([]FileResult, len(files)),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(indexWorkers)

	for i, file := range files {
		i, file := i, file
		g.Go(func() error {
			chunks, err := m.indexFile(gctx, sessionID, file)
			report.Files[i] = FileResult{Name: file.Name, Chunks: chunks, Err: err}
			if err != nil {
				m.logger.Warn("Indexing %s failed: %v", file.Name, err)
			}
			return nil
		})
	}
	// Workers report per-file failures through the report, never as errors.
	_ = g.Wait()

	for _, f := range report.Files {
		report.TotalChunks += f.Chunks
	}

	m.metrics.RecordChunksIndexed(ctx, report.TotalChunks)
	m.logger.Info("Indexed %d chunks from %d files for session %s",
		report.TotalChunks, len(files), sessionID)
	return report, nil
}

func (m *Manager) indexFile(ctx context.Context, sessionID string, file File) (int, error) {
	text, err := ExtractText(file)
	if err != nil {
		return 0, err
	}

	chunks, err := m.chunker.ChunkText(text, map[string]string{
		"filename": file.Name,
	})
	if err != nil {
		return 0, fmt.Errorf("chunk %s: %w", file.Name, err)
	}
	if len(chunks) == 0 {
		return 0, fmt.Errorf("file %s produced no chunks", file.Name)
	}

	// Every upload gets a fresh nonce so re-uploading a file appends new
	// chunks instead of overwriting the previous ones by ID.
	nonce := uuid.NewString()[:8]

	for start := 0; start < len(chunks); start += embedBatchSize {
		end := min(start+embedBatchSize, len(chunks))
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for j, c := range batch {
			texts[j] = c.Text
		}

		embeddings, err := m.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return 0, fmt.Errorf("embed %s: %w", file.Name, err)
		}

		docs := make([]Document, len(batch))
		for j, c := range batch {
			meta := map[string]string{
				"filename": file.Name,
				"upload":   nonce,
			}
			docs[j] = Document{
				ID:        fmt.Sprintf("%s:%s:%d", nonce, file.Name, c.Index),
				Content:   c.Text,
				Embedding: embeddings[j],
				Metadata:  meta,
			}
		}

		if err := m.store.Add(ctx, sessionID, docs); err != nil {
			return 0, fmt.Errorf("store %s: %w", file.Name, err)
		}
	}

	return len(chunks), nil
}

// ChunkCount returns how many chunks a session has indexed.
func (m *Manager) ChunkCount(sessionID string) int {
	return m.store.Count(sessionID)
}

// ClearSession drops all indexed chunks for a session.
func (m *Manager) ClearSession(ctx context.Context, sessionID string) error {
	if m.store.Count(sessionID) == 0 {
		return nil
	}
	return m.store.Drop(ctx, sessionID)
}

// Query answers a question against a session's indexed documents. When the
// session has no chunks it returns NoDocumentsResponse immediately, so no
// model call is spent on an unanswerable question.
func (m *Manager) Query(ctx context.Context, sessionID, question string, history []types.Message) (string, error) {
	if m.store.Count(sessionID) == 0 {
		m.logger.Debug("Session %s has no indexed chunks, skipping retrieval", sessionID)
		return NoDocumentsResponse, nil
	}

	results, err := m.store.SearchByText(ctx, sessionID, question, m.topK)
	if err != nil {
		return "", fmt.Errorf("retrieve: %w", err)
	}
	if len(results) == 0 {
		return NoDocumentsResponse, nil
	}

	messages := []llm.Message{
		{Role: "system", Content: answerSystemPrompt},
	}
	for _, msg := range recentHistory(history, m.historyWindow) {
		messages = append(messages, llm.Message{Role: msg.Role, Content: msg.Content})
	}
	messages = append(messages, llm.Message{
		Role:    "user",
		Content: buildAnswerPrompt(question, results),
	})

	resp, err := m.client.Complete(ctx, llm.CompletionRequest{Messages: messages})
	if err != nil {
		return "", fmt.Errorf("generate answer: %w", err)
	}

	return strings.TrimSpace(resp.Content), nil
}

func buildAnswerPrompt(question string, results []SearchResult) string {
	var sb strings.Builder
	sb.WriteString("Document excerpts:\n\n")
	for i, r := range results {
		source := r.Document.Metadata["filename"]
		if source == "" {
			source = "unknown"
		}
		fmt.Fprintf(&sb, "[%d] (%s)\n%s\n\n", i+1, source, r.Document.Content)
	}
	sb.WriteString("Question: ")
	sb.WriteString(question)
	return sb.String()
}

func recentHistory(history []types.Message, window int) []types.Message {
	if len(history) <= window {
		return history
	}
	return history[len(history)-window:]
}

package rag

import (
	"context"
	"fmt"
	"path/filepath"

	chromem "github.com/philippgille/chromem-go"
)

// Document represents a stored chunk with its embedding
type Document struct {
	ID        string
	Content   string
	Embedding []float32
	Metadata  map[string]string
}

// SearchResult represents a retrieval hit
type SearchResult struct {
	Document   Document
	Similarity float32 // 0.0 to 1.0
}

// VectorStore manages per-session embeddings and similarity search. Each
// session owns an isolated collection so retrieval never crosses sessions.
type VectorStore interface {
	// Add appends documents to a session's collection
	Add(ctx context.Context, sessionID string, docs []Document) error

	// SearchByText performs similarity search within one session
	SearchByText(ctx context.Context, sessionID, queryText string, topK int) ([]SearchResult, error)

	// Count returns the chunk count for a session
	Count(sessionID string) int

	// Drop removes a session's collection entirely
	Drop(ctx context.Context, sessionID string) error

	// Close closes the store
	Close() error
}

// chromemStore implements VectorStore using chromem-go
type chromemStore struct {
	db       *chromem.DB
	embedder Embedder
}

// NewVectorStore creates a new vector store. An empty persistPath keeps all
// collections in memory.
func NewVectorStore(persistPath string, embedder Embedder) (VectorStore, error) {
	var db *chromem.DB
	var err error

	if persistPath != "" {
		persistFile := filepath.Join(persistPath, "chromem.gob")
		db, err = chromem.NewPersistentDB(persistFile, false)
		if err != nil {
			return nil, fmt.Errorf("create persistent DB: %w", err)
		}
	} else {
		db = chromem.NewDB()
	}

	return &chromemStore{
		db:       db,
		embedder: embedder,
	}, nil
}

func collectionName(sessionID string) string {
	return "session:" + sessionID
}

func (s *chromemStore) embeddingFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return s.embedder.Embed(ctx, text)
	}
}

// Add appends documents to a session's collection
func (s *chromemStore) Add(ctx context.Context, sessionID string, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	collection, err := s.db.GetOrCreateCollection(collectionName(sessionID), nil, s.embeddingFunc())
	if err != nil {
		return fmt.Errorf("get collection: %w", err)
	}

	for _, doc := range docs {
		err := collection.AddDocument(ctx, chromem.Document{
			ID:        doc.ID,
			Content:   doc.Content,
			Embedding: doc.Embedding,
			Metadata:  doc.Metadata,
		})
		if err != nil {
			return fmt.Errorf("add document %s: %w", doc.ID, err)
		}
	}

	return nil
}

// SearchByText performs similarity search within one session
func (s *chromemStore) SearchByText(ctx context.Context, sessionID, queryText string, topK int) ([]SearchResult, error) {
	if topK <= 0 {
		topK = 4
	}

	collection := s.db.GetCollection(collectionName(sessionID), s.embeddingFunc())
	if collection == nil {
		return nil, nil
	}

	// chromem rejects queries asking for more results than stored documents.
	count := collection.Count()
	if count == 0 {
		return nil, nil
	}
	if topK > count {
		topK = count
	}

	results, err := collection.Query(ctx, queryText, topK, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query collection: %w", err)
	}

	searchResults := make([]SearchResult, 0, len(results))
	for _, r := range results {
		searchResults = append(searchResults, SearchResult{
			Document: Document{
				ID:        r.ID,
				Content:   r.Content,
				Embedding: r.Embedding,
				Metadata:  r.Metadata,
			},
			Similarity: r.Similarity,
		})
	}

	return searchResults, nil
}

// Count returns the chunk count for a session
func (s *chromemStore) Count(sessionID string) int {
	collection := s.db.GetCollection(collectionName(sessionID), s.embeddingFunc())
	if collection == nil {
		return 0
	}
	return collection.Count()
}

// Drop removes a session's collection entirely
func (s *chromemStore) Drop(ctx context.Context, sessionID string) error {
	return s.db.DeleteCollection(collectionName(sessionID))
}

// Close closes the store
func (s *chromemStore) Close() error {
	// chromem-go auto-persists on changes, no explicit close needed
	return nil
}

// Package memstore is an in-process, non-durable store. It backs the
// resilient decorator's fallback cache and doubles as the test store.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"quill/internal/observability"
	"quill/internal/store"
	"quill/pkg/types"
)

type sessionState struct {
	session  types.Session
	messages []types.Message
}

// Store is a mutex-guarded map keyed by session identifier.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*sessionState
}

var _ store.Store = (*Store)(nil)

// New constructs an empty in-memory store.
func New() *Store {
	return &Store{sessions: make(map[string]*sessionState)}
}

func (s *Store) CreateSession(ctx context.Context, id, name string) (*types.Session, error) {
	if id == "" {
		id = uuid.NewString()
	}
	if name == "" {
		name = id
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; ok {
		return nil, store.ErrSessionExists
	}

	now := time.Now().UTC()
	session := types.Session{
		ID:        id,
		Name:      name,
		OwnerID:   observability.OwnerIDFromContext(ctx),
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.sessions[id] = &sessionState{session: session}
	return &session, nil
}

func (s *Store) ListSessions(ctx context.Context) ([]types.Session, error) {
	owner := observability.OwnerIDFromContext(ctx)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var sessions []types.Session
	for _, state := range s.sessions {
		if state.session.OwnerID != owner {
			continue
		}
		sessions = append(sessions, state.session)
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].UpdatedAt.After(sessions[j].UpdatedAt)
	})
	return sessions, nil
}

func (s *Store) RenameSession(ctx context.Context, id, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.sessions[id]
	if !ok || state.session.OwnerID != observability.OwnerIDFromContext(ctx) {
		return store.ErrSessionNotFound
	}
	state.session.Name = name
	state.session.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) DeleteSession(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.sessions[id]
	if !ok || state.session.OwnerID != observability.OwnerIDFromContext(ctx) {
		return store.ErrSessionNotFound
	}
	delete(s.sessions, id)
	return nil
}

func (s *Store) AppendMessage(_ context.Context, msg types.Message) error {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.sessions[msg.SessionID]
	if !ok {
		// The cache adopts unknown sessions so a mid-outage conversation
		// is never dropped.
		now := time.Now().UTC()
		state = &sessionState{session: types.Session{
			ID:        msg.SessionID,
			Name:      msg.SessionID,
			CreatedAt: now,
			UpdatedAt: now,
		}}
		s.sessions[msg.SessionID] = state
	}
	state.messages = append(state.messages, msg)
	state.session.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) ListMessages(_ context.Context, sessionID string) ([]types.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	out := make([]types.Message, len(state.messages))
	copy(out, state.messages)
	return out, nil
}

func (s *Store) ClearMessages(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if state, ok := s.sessions[sessionID]; ok {
		state.messages = nil
	}
	return nil
}

// ReplaceMessages swaps a session's cached history with an authoritative copy
// read from the durable store.
func (s *Store) ReplaceMessages(sessionID string, msgs []types.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.sessions[sessionID]
	if !ok {
		now := time.Now().UTC()
		state = &sessionState{session: types.Session{
			ID:        sessionID,
			Name:      sessionID,
			CreatedAt: now,
			UpdatedAt: now,
		}}
		s.sessions[sessionID] = state
	}
	state.messages = make([]types.Message, len(msgs))
	copy(state.messages, msgs)
}

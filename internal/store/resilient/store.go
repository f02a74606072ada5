// Package resilient composes the durable store with the in-process cache so
// that a durable-store outage degrades the persistence layer instead of
// failing the conversation. The fallback policy lives here and only here.
package resilient

import (
	"context"
	"errors"
	"time"

	quillerrors "quill/internal/errors"
	"quill/internal/logging"
	"quill/internal/observability"
	"quill/internal/store"
	"quill/internal/store/memstore"
	"quill/pkg/types"
)

// Config tunes the circuit breaker guarding the durable store.
type Config struct {
	FailureThreshold int
	RetryTimeout     time.Duration
}

// Store wraps a durable store with a local cache fallback. A nil durable
// store is allowed and yields a cache-only (local) persistence layer.
type Store struct {
	durable store.Store
	cache   *memstore.Store
	breaker *quillerrors.CircuitBreaker
	metrics *observability.MetricsCollector
	logger  logging.Logger
}

var _ store.Store = (*Store)(nil)

// New builds the resilient persistence layer.
func New(durable store.Store, cache *memstore.Store, cfg Config, metrics *observability.MetricsCollector) *Store {
	if cache == nil {
		cache = memstore.New()
	}

	var breaker *quillerrors.CircuitBreaker
	if durable != nil {
		breakerCfg := quillerrors.DefaultCircuitBreakerConfig()
		if cfg.FailureThreshold > 0 {
			breakerCfg.FailureThreshold = cfg.FailureThreshold
		}
		if cfg.RetryTimeout > 0 {
			breakerCfg.Timeout = cfg.RetryTimeout
		}
		breaker = quillerrors.NewCircuitBreaker("durable-store", breakerCfg)
	}

	return &Store{
		durable: durable,
		cache:   cache,
		breaker: breaker,
		metrics: metrics,
		logger:  logging.NewComponentLogger("store-resilient"),
	}
}

// isInputError reports whether err is the caller's fault rather than a store
// outage. Input errors surface; outages degrade.
func isInputError(err error) bool {
	return errors.Is(err, store.ErrSessionNotFound) ||
		errors.Is(err, store.ErrSessionExists) ||
		quillerrors.IsPermanent(err)
}

// tryDurable runs fn against the durable store under the circuit breaker.
// The boolean reports whether the durable store was actually consulted and
// answered (success or input error).
func (s *Store) tryDurable(fn func() error) (bool, error) {
	if s.durable == nil {
		return false, nil
	}
	if err := s.breaker.Allow(); err != nil {
		return false, err
	}
	err := fn()
	if err == nil || isInputError(err) {
		s.breaker.Mark(nil)
		return true, err
	}
	s.breaker.Mark(err)
	return false, err
}

func (s *Store) CreateSession(ctx context.Context, id, name string) (*types.Session, error) {
	var created *types.Session
	ok, err := s.tryDurable(func() error {
		var innerErr error
		created, innerErr = s.durable.CreateSession(ctx, id, name)
		return innerErr
	})
	if ok {
		if err != nil {
			return nil, err
		}
		// Mirror into the cache so a later outage still sees the session.
		if _, cacheErr := s.cache.CreateSession(ctx, created.ID, created.Name); cacheErr != nil && !errors.Is(cacheErr, store.ErrSessionExists) {
			s.logger.Warn("Failed to mirror session %s into cache: %v", created.ID, cacheErr)
		}
		return created, nil
	}

	s.degraded(ctx, "create_session", err)
	return s.cache.CreateSession(ctx, id, name)
}

func (s *Store) ListSessions(ctx context.Context) ([]types.Session, error) {
	var sessions []types.Session
	ok, err := s.tryDurable(func() error {
		var innerErr error
		sessions, innerErr = s.durable.ListSessions(ctx)
		return innerErr
	})
	if ok {
		return sessions, err
	}

	s.degraded(ctx, "list_sessions", err)
	cached, cacheErr := s.cache.ListSessions(ctx)
	if cacheErr != nil {
		return nil, cacheErr
	}
	if len(cached) == 0 {
		// Match the UI expectation of always having somewhere to type.
		now := time.Now().UTC()
		return []types.Session{{
			ID:        "default",
			Name:      "Default Chat",
			CreatedAt: now,
			UpdatedAt: now,
		}}, nil
	}
	return cached, nil
}

func (s *Store) RenameSession(ctx context.Context, id, name string) error {
	ok, err := s.tryDurable(func() error {
		return s.durable.RenameSession(ctx, id, name)
	})
	if ok {
		if err != nil {
			return err
		}
		if cacheErr := s.cache.RenameSession(ctx, id, name); cacheErr != nil && !errors.Is(cacheErr, store.ErrSessionNotFound) {
			s.logger.Warn("Failed to rename cached session %s: %v", id, cacheErr)
		}
		return nil
	}

	s.degraded(ctx, "rename_session", err)
	return s.cache.RenameSession(ctx, id, name)
}

// DeleteSession removes the session from both backends so a resolved outage
// cannot resurrect stale data.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	ok, err := s.tryDurable(func() error {
		return s.durable.DeleteSession(ctx, id)
	})

	cacheErr := s.cache.DeleteSession(ctx, id)

	if ok {
		return err
	}
	s.degraded(ctx, "delete_session", err)
	return cacheErr
}

func (s *Store) AppendMessage(ctx context.Context, msg types.Message) error {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	// The cache always receives the message so the user-visible conversation
	// survives a mid-session outage.
	if cacheErr := s.cache.AppendMessage(ctx, msg); cacheErr != nil {
		s.logger.Warn("Failed to cache message for session %s: %v", msg.SessionID, cacheErr)
	}

	ok, err := s.tryDurable(func() error {
		return s.durable.AppendMessage(ctx, msg)
	})
	if ok {
		if err != nil {
			return err
		}
		s.metrics.RecordMessagePersisted(ctx, "durable")
		return nil
	}

	s.degraded(ctx, "append_message", err)
	s.metrics.RecordMessagePersisted(ctx, "cache")
	return nil
}

func (s *Store) ListMessages(ctx context.Context, sessionID string) ([]types.Message, error) {
	var messages []types.Message
	ok, err := s.tryDurable(func() error {
		var innerErr error
		messages, innerErr = s.durable.ListMessages(ctx, sessionID)
		return innerErr
	})
	if ok {
		if err != nil {
			return nil, err
		}
		// A successful durable read is authoritative and replaces any stale
		// cached copy.
		s.cache.ReplaceMessages(sessionID, messages)
		return messages, nil
	}

	s.degraded(ctx, "list_messages", err)
	return s.cache.ListMessages(ctx, sessionID)
}

// ClearMessages clears both backends.
func (s *Store) ClearMessages(ctx context.Context, sessionID string) error {
	ok, err := s.tryDurable(func() error {
		return s.durable.ClearMessages(ctx, sessionID)
	})

	cacheErr := s.cache.ClearMessages(ctx, sessionID)

	if ok {
		return err
	}
	s.degraded(ctx, "clear_messages", err)
	return cacheErr
}

func (s *Store) degraded(ctx context.Context, operation string, err error) {
	if s.durable == nil {
		return
	}
	s.metrics.RecordFallbackActivation(ctx, operation)
	if err != nil {
		s.logger.Warn("Durable store unavailable for %s, using local cache: %v", operation, err)
	}
}

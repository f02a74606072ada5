// Package postgres implements the durable session/message store on Postgres.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"quill/internal/logging"
	"quill/internal/observability"
	"quill/internal/store"
	"quill/pkg/types"
)

const (
	sessionTable = "quill_sessions"
	messageTable = "quill_messages"
)

var sessionIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

var _ store.Store = (*Store)(nil)

// Store implements a Postgres-backed session/message store.
type Store struct {
	pool   *pgxpool.Pool
	logger logging.Logger
}

// New constructs a Postgres-backed store.
func New(pool *pgxpool.Pool) *Store {
	return &Store{
		pool:   pool,
		logger: logging.NewComponentLogger("store-postgres"),
	}
}

// Connect opens a pool for the DSN and verifies connectivity.
func Connect(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return New(pool), nil
}

// EnsureSchema creates the session and message tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("store not initialized")
	}

	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
    id TEXT NOT NULL,
    owner_id TEXT NOT NULL DEFAULT '',
    name TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (id, owner_id)
);
CREATE INDEX IF NOT EXISTS idx_quill_sessions_updated_at ON %[1]s (updated_at DESC);
CREATE TABLE IF NOT EXISTS %[2]s (
    seq BIGSERIAL PRIMARY KEY,
    session_id TEXT NOT NULL,
    role TEXT NOT NULL,
    content TEXT NOT NULL,
    thinking JSONB NOT NULL DEFAULT '[]'::jsonb,
    ts TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_quill_messages_session ON %[2]s (session_id, seq);
`, sessionTable, messageTable)

	_, err := s.pool.Exec(ctx, query)
	return err
}

// Close releases the connection pool.
func (s *Store) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

// CreateSession inserts a new session row. An empty id gets a generated one.
func (s *Store) CreateSession(ctx context.Context, id, name string) (*types.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.pool == nil {
		return nil, fmt.Errorf("store not initialized")
	}

	if id == "" {
		id = uuid.NewString()
	}
	if !isSafeSessionID(id) {
		return nil, fmt.Errorf("invalid session ID")
	}
	if name == "" {
		name = id
	}

	now := time.Now().UTC()
	session := &types.Session{
		ID:        id,
		Name:      name,
		OwnerID:   observability.OwnerIDFromContext(ctx),
		CreatedAt: now,
		UpdatedAt: now,
	}

	query := fmt.Sprintf(`
INSERT INTO %s (id, owner_id, name, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5)
`, sessionTable)

	_, err := s.pool.Exec(ctx, query, session.ID, session.OwnerID, session.Name, session.CreatedAt, session.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, store.ErrSessionExists
		}
		return nil, err
	}

	return session, nil
}

// ListSessions returns the caller's sessions ordered by recency.
func (s *Store) ListSessions(ctx context.Context) ([]types.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.pool == nil {
		return nil, fmt.Errorf("store not initialized")
	}

	query := fmt.Sprintf(`
SELECT id, owner_id, name, created_at, updated_at
FROM %s
WHERE owner_id = $1
ORDER BY updated_at DESC
`, sessionTable)

	rows, err := s.pool.Query(ctx, query, observability.OwnerIDFromContext(ctx))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []types.Session
	for rows.Next() {
		var sess types.Session
		if err := rows.Scan(&sess.ID, &sess.OwnerID, &sess.Name, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sessions, nil
}

// RenameSession updates a session's display name.
func (s *Store) RenameSession(ctx context.Context, id, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !isSafeSessionID(id) {
		return fmt.Errorf("invalid session ID")
	}
	if s == nil || s.pool == nil {
		return fmt.Errorf("store not initialized")
	}

	query := fmt.Sprintf(`
UPDATE %s SET name = $1, updated_at = $2
WHERE id = $3 AND owner_id = $4
`, sessionTable)

	tag, err := s.pool.Exec(ctx, query, name, time.Now().UTC(), id, observability.OwnerIDFromContext(ctx))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrSessionNotFound
	}
	return nil
}

// DeleteSession removes a session and cascades to its messages.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !isSafeSessionID(id) {
		return fmt.Errorf("invalid session ID")
	}
	if s == nil || s.pool == nil {
		return fmt.Errorf("store not initialized")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE id = $1 AND owner_id = $2`, sessionTable),
		id, observability.OwnerIDFromContext(ctx))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrSessionNotFound
	}
	if _, err := tx.Exec(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE session_id = $1`, messageTable), id); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// AppendMessage inserts one message and touches the owning session.
func (s *Store) AppendMessage(ctx context.Context, msg types.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !isSafeSessionID(msg.SessionID) {
		return fmt.Errorf("invalid session ID")
	}
	if s == nil || s.pool == nil {
		return fmt.Errorf("store not initialized")
	}

	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	steps := msg.Steps
	if steps == nil {
		steps = []types.Step{}
	}
	thinking, err := json.Marshal(steps)
	if err != nil {
		return fmt.Errorf("encode steps: %w", err)
	}

	query := fmt.Sprintf(`
INSERT INTO %s (session_id, role, content, thinking, ts)
VALUES ($1, $2, $3, $4::jsonb, $5)
`, messageTable)

	if _, err := s.pool.Exec(ctx, query, msg.SessionID, msg.Role, msg.Content, thinking, msg.Timestamp); err != nil {
		s.logger.Error("Failed to persist message for session %s: %v", msg.SessionID, err)
		return err
	}

	touch := fmt.Sprintf(`UPDATE %s SET updated_at = $1 WHERE id = $2`, sessionTable)
	if _, err := s.pool.Exec(ctx, touch, time.Now().UTC(), msg.SessionID); err != nil {
		s.logger.Warn("Failed to touch session %s: %v", msg.SessionID, err)
	}
	return nil
}

// ListMessages returns a session's messages in insertion order.
func (s *Store) ListMessages(ctx context.Context, sessionID string) ([]types.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !isSafeSessionID(sessionID) {
		return nil, fmt.Errorf("invalid session ID")
	}
	if s == nil || s.pool == nil {
		return nil, fmt.Errorf("store not initialized")
	}

	query := fmt.Sprintf(`
SELECT session_id, role, content, thinking, ts
FROM %s
WHERE session_id = $1
ORDER BY seq ASC
`, messageTable)

	rows, err := s.pool.Query(ctx, query, sessionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	defer rows.Close()

	var messages []types.Message
	for rows.Next() {
		var (
			msg          types.Message
			thinkingJSON []byte
		)
		if err := rows.Scan(&msg.SessionID, &msg.Role, &msg.Content, &thinkingJSON, &msg.Timestamp); err != nil {
			return nil, err
		}
		if len(thinkingJSON) > 0 {
			if err := json.Unmarshal(thinkingJSON, &msg.Steps); err != nil {
				return nil, fmt.Errorf("decode steps: %w", err)
			}
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return messages, nil
}

// ClearMessages removes every message from a session.
func (s *Store) ClearMessages(ctx context.Context, sessionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !isSafeSessionID(sessionID) {
		return fmt.Errorf("invalid session ID")
	}
	if s == nil || s.pool == nil {
		return fmt.Errorf("store not initialized")
	}

	query := fmt.Sprintf(`DELETE FROM %s WHERE session_id = $1`, messageTable)
	_, err := s.pool.Exec(ctx, query, sessionID)
	return err
}

func isSafeSessionID(id string) bool {
	return sessionIDPattern.MatchString(id)
}

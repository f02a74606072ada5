// Package store defines the persistence contract for sessions and messages.
// Two implementations back it: the durable Postgres store and the in-process
// cache. The resilient decorator composes them so a durable-store outage
// degrades instead of surfacing to the caller.
package store

import (
	"context"
	"errors"

	"quill/pkg/types"
)

// ErrSessionNotFound is returned for operations against an unknown session.
var ErrSessionNotFound = errors.New("session not found")

// ErrSessionExists is returned when creating a session whose ID is taken
// within its owning scope.
var ErrSessionExists = errors.New("session already exists")

// Store persists sessions and their append-only message history.
//
// Within one session, messages are totally ordered by insertion; ListMessages
// returns them in that order and implementations never reorder or mutate a
// stored message.
type Store interface {
	// CreateSession creates a session. An empty id asks the store to
	// generate one. The owner marker is taken from the context.
	CreateSession(ctx context.Context, id, name string) (*types.Session, error)

	// ListSessions returns sessions visible to the caller, most recently
	// updated first.
	ListSessions(ctx context.Context) ([]types.Session, error)

	// RenameSession changes a session's display name.
	RenameSession(ctx context.Context, id, name string) error

	// DeleteSession removes a session and all of its messages.
	DeleteSession(ctx context.Context, id string) error

	// AppendMessage appends one immutable message to its session.
	AppendMessage(ctx context.Context, msg types.Message) error

	// ListMessages returns a session's messages in insertion order.
	ListMessages(ctx context.Context, sessionID string) ([]types.Message, error)

	// ClearMessages removes all messages from a session, keeping the session.
	ClearMessages(ctx context.Context, sessionID string) error
}

package observability

import "context"

type contextKey string

const (
	sessionIDKey contextKey = "session_id"
	ownerIDKey   contextKey = "owner_id"
)

// WithSessionID stores a session identifier in the context.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDKey, sessionID)
}

// SessionIDFromContext returns the session identifier from the context, if any.
func SessionIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(sessionIDKey).(string); ok {
		return v
	}
	return ""
}

// WithOwnerID stores an owner (authenticated user) identifier in the context.
func WithOwnerID(ctx context.Context, ownerID string) context.Context {
	return context.WithValue(ctx, ownerIDKey, ownerID)
}

// OwnerIDFromContext returns the owner identifier from the context. Empty
// means the caller is anonymous and sessions are local-only.
func OwnerIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ownerIDKey).(string); ok {
		return v
	}
	return ""
}

package resilient

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quill/internal/store"
	"quill/internal/store/memstore"
	"quill/pkg/types"
)

// flakyStore simulates a durable store whose availability can be toggled.
type flakyStore struct {
	inner *memstore.Store
	down  bool
	calls int
}

var errStoreDown = errors.New("connection refused")

func newFlakyStore() *flakyStore {
	return &flakyStore{inner: memstore.New()}
}

func (f *flakyStore) guard() error {
	f.calls++
	if f.down {
		return errStoreDown
	}
	return nil
}

func (f *flakyStore) CreateSession(ctx context.Context, id, name string) (*types.Session, error) {
	if err := f.guard(); err != nil {
		return nil, err
	}
	return f.inner.CreateSession(ctx, id, name)
}

func (f *flakyStore) ListSessions(ctx context.Context) ([]types.Session, error) {
	if err := f.guard(); err != nil {
		return nil, err
	}
	return f.inner.ListSessions(ctx)
}

func (f *flakyStore) RenameSession(ctx context.Context, id, name string) error {
	if err := f.guard(); err != nil {
		return err
	}
	return f.inner.RenameSession(ctx, id, name)
}

func (f *flakyStore) DeleteSession(ctx context.Context, id string) error {
	if err := f.guard(); err != nil {
		return err
	}
	return f.inner.DeleteSession(ctx, id)
}

func (f *flakyStore) AppendMessage(ctx context.Context, msg types.Message) error {
	if err := f.guard(); err != nil {
		return err
	}
	return f.inner.AppendMessage(ctx, msg)
}

func (f *flakyStore) ListMessages(ctx context.Context, sessionID string) ([]types.Message, error) {
	if err := f.guard(); err != nil {
		return nil, err
	}
	return f.inner.ListMessages(ctx, sessionID)
}

func (f *flakyStore) ClearMessages(ctx context.Context, sessionID string) error {
	if err := f.guard(); err != nil {
		return err
	}
	return f.inner.ClearMessages(ctx, sessionID)
}

func newResilient(durable store.Store) *Store {
	return New(durable, memstore.New(), Config{FailureThreshold: 100}, nil)
}

func TestAppendMessageSurvivesOutage(t *testing.T) {
	durable := newFlakyStore()
	s := newResilient(durable)
	ctx := context.Background()

	_, err := s.CreateSession(ctx, "s1", "Chat")
	require.NoError(t, err)

	durable.down = true

	err = s.AppendMessage(ctx, types.Message{SessionID: "s1", Role: types.RoleUser, Content: "still here?"})
	require.NoError(t, err, "store outage must not surface to the caller")

	msgs, err := s.ListMessages(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "still here?", msgs[0].Content)
}

func TestDurableReadIsAuthoritativeAfterRecovery(t *testing.T) {
	durable := newFlakyStore()
	s := newResilient(durable)
	ctx := context.Background()

	_, err := s.CreateSession(ctx, "s1", "Chat")
	require.NoError(t, err)
	require.NoError(t, s.AppendMessage(ctx, types.Message{SessionID: "s1", Role: types.RoleUser, Content: "durable one"}))

	durable.down = true
	require.NoError(t, s.AppendMessage(ctx, types.Message{SessionID: "s1", Role: types.RoleAssistant, Content: "cached only"}))

	durable.down = false
	require.NoError(t, s.AppendMessage(ctx, types.Message{SessionID: "s1", Role: types.RoleUser, Content: "durable two"}))

	msgs, err := s.ListMessages(ctx, "s1")
	require.NoError(t, err)
	// The durable store never saw the mid-outage message; its answer wins.
	require.Len(t, msgs, 2)
	assert.Equal(t, "durable one", msgs[0].Content)
	assert.Equal(t, "durable two", msgs[1].Content)

	// And the authoritative read refreshed the cache.
	durable.down = true
	cached, err := s.ListMessages(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, cached, 2)
	assert.Equal(t, "durable two", cached[1].Content)
}

func TestListSessionsFallsBackToDefault(t *testing.T) {
	durable := newFlakyStore()
	s := newResilient(durable)
	durable.down = true

	sessions, err := s.ListSessions(context.Background())
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "default", sessions[0].ID)
	assert.Equal(t, "Default Chat", sessions[0].Name)
}

func TestDeleteAppliesToBothBackends(t *testing.T) {
	durable := newFlakyStore()
	s := newResilient(durable)
	ctx := context.Background()

	_, err := s.CreateSession(ctx, "s1", "Chat")
	require.NoError(t, err)
	require.NoError(t, s.AppendMessage(ctx, types.Message{SessionID: "s1", Role: types.RoleUser, Content: "hello"}))

	require.NoError(t, s.DeleteSession(ctx, "s1"))

	// Even with the durable store gone, no stale cache copy may resurface.
	durable.down = true
	msgs, err := s.ListMessages(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestInputErrorsSurface(t *testing.T) {
	durable := newFlakyStore()
	s := newResilient(durable)
	ctx := context.Background()

	err := s.RenameSession(ctx, "missing", "nope")
	assert.ErrorIs(t, err, store.ErrSessionNotFound)

	_, err = s.CreateSession(ctx, "s1", "Chat")
	require.NoError(t, err)
	_, err = s.CreateSession(ctx, "s1", "Chat again")
	assert.ErrorIs(t, err, store.ErrSessionExists)
}

func TestCacheOnlyModeWithoutDurable(t *testing.T) {
	s := newResilient(nil)
	ctx := context.Background()

	_, err := s.CreateSession(ctx, "local", "Local")
	require.NoError(t, err)
	require.NoError(t, s.AppendMessage(ctx, types.Message{SessionID: "local", Role: types.RoleUser, Content: "hi"}))

	msgs, err := s.ListMessages(ctx, "local")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
}

package outbox

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classync/classync/core/notification"
)

func newTestStore(t *testing.T) *Store {
	store, err := Open(filepath.Join(t.TempDir(), "outbox", "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func entry(id string, at time.Time) notification.OutboxEntry {
	return notification.OutboxEntry{
		ID:            id,
		Notification:  notification.Notification{ID: id, RecipientID: "u1", Title: "title " + id},
		Channels:      []notification.Channel{notification.ChannelFeed, notification.ChannelRealtime},
		Attempts:      1,
		NextAttemptAt: at,
	}
}

func TestStore(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.Enqueue(ctx, entry("b", now.Add(-time.Minute))))
	require.NoError(t, store.Enqueue(ctx, entry("a", now.Add(-time.Hour))))
	require.NoError(t, store.Enqueue(ctx, entry("c", now.Add(time.Minute))))
	require.NoError(t, store.Enqueue(ctx, entry("d", now)))

	n, err := store.Len()
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	due, err := store.Due(ctx, now, 0)
	require.NoError(t, err)
	if assert.Len(t, due, 3) {
		assert.Equal(t, "a", due[0].ID)
		assert.Equal(t, "b", due[1].ID)
		assert.Equal(t, "d", due[2].ID)
		assert.Equal(t, "title a", due[0].Notification.Title)
		assert.Equal(t, []notification.Channel{notification.ChannelFeed, notification.ChannelRealtime}, due[0].Channels)
	}

	due, err = store.Due(ctx, now, 1)
	require.NoError(t, err)
	if assert.Len(t, due, 1) {
		assert.Equal(t, "a", due[0].ID)
	}

	// rescheduled in the future: no longer due
	a := due[0]
	a.Attempts = 2
	a.NextAttemptAt = now.Add(time.Hour)
	a.LastError = "hub down"
	require.NoError(t, store.Reschedule(ctx, a))

	due, err = store.Due(ctx, now, 0)
	require.NoError(t, err)
	assert.Len(t, due, 2)

	due, err = store.Due(ctx, now.Add(2*time.Hour), 0)
	require.NoError(t, err)
	if assert.Len(t, due, 4) {
		assert.Equal(t, "a", due[3].ID)
		assert.Equal(t, 2, due[3].Attempts)
		assert.Equal(t, "hub down", due[3].LastError)
	}

	require.NoError(t, store.Remove(ctx, "b"))
	require.NoError(t, store.Remove(ctx, "unknown"))
	n, err = store.Len()
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	assert.Error(t, store.Enqueue(ctx, notification.OutboxEntry{}))
}

func TestStore_reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "outbox.db")
	now := time.Now().UTC()

	store, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, store.Enqueue(ctx, entry("kept", now)))
	require.NoError(t, store.Close())

	store, err = Open(path)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	due, err := store.Due(ctx, now, 10)
	require.NoError(t, err)
	if assert.Len(t, due, 1) {
		assert.Equal(t, "kept", due[0].ID)
	}
}

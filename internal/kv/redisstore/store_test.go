package redisstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/TabSessions/backend/internal/kv"
)

func testClient(t *testing.T) (*Store, *Feed) {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client, err := Dial(context.Background(), addr, os.Getenv("REDIS_PASSWORD"), 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	prefix := "test:" + uuid.NewString() + ":"
	store := New(client, prefix)
	t.Cleanup(func() { _ = store.Clear(context.Background()) })
	return store, NewFeed(client, prefix, nil)
}

func TestStoreRoundTrip(t *testing.T) {
	store, _ := testClient(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "session_x_authToken", "tok"))
	require.NoError(t, store.Set(ctx, "activeTabs", "[]"))

	v, ok, err := store.Get(ctx, "session_x_authToken")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "tok", v)

	keys, err := store.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"activeTabs", "session_x_authToken"}, keys)

	require.NoError(t, store.Remove(ctx, "activeTabs"))
	n, err := store.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, ok, err = store.Get(ctx, "activeTabs")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFeedDeliversToOtherView(t *testing.T) {
	store, feed := testClient(t)
	ctx := context.Background()

	received := make(chan kv.Change, 1)
	reader := kv.NewView(store, feed, "reader")
	cancel, err := reader.OnChange(func(c kv.Change) { received <- c })
	require.NoError(t, err)
	defer cancel()

	writer := kv.NewView(store, feed, "writer")
	require.NoError(t, writer.Set(ctx, "sync_x_counter", "1"))

	select {
	case c := <-received:
		assert.Equal(t, "sync_x_counter", c.Key)
		assert.Equal(t, "writer", c.Source)
		require.NotNil(t, c.NewValue)
		assert.Equal(t, "1", *c.NewValue)
	case <-time.After(2 * time.Second):
		t.Fatal("change not delivered")
	}
}

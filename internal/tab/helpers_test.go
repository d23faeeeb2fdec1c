package tab

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/TabSessions/backend/internal/kv"
	"github.com/GriffinCanCode/TabSessions/backend/internal/session"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// shared is one origin: a persistent store and its change feed.
type shared struct {
	store *kv.Memory
	feed  *kv.MemoryFeed
}

func newShared() *shared {
	return &shared{store: kv.NewMemory(), feed: kv.NewMemoryFeed()}
}

func openTab(t *testing.T, origin *shared, tabStore kv.Store, opts ...Option) *Env {
	t.Helper()
	env, err := Open(context.Background(), TabConfig{
		Persistent: origin.store,
		Feed:       origin.feed,
		TabStore:   tabStore,
		URL:        "https://ecole.example/dashboard",
		UserAgent:  "test-agent",
	}, opts...)
	require.NoError(t, err)
	t.Cleanup(env.Close)
	return env
}

// duplicateOf returns a private store carrying the session id of env,
// the way a duplicated browser tab inherits its opener's session.
func duplicateOf(t *testing.T, env *Env) kv.Store {
	t.Helper()
	store := kv.NewMemory()
	require.NoError(t, store.Set(context.Background(), session.CurrentSessionKey, string(env.SessionID())))
	return store
}

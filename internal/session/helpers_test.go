package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/TabSessions/backend/internal/kv"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestManager(t *testing.T, shared kv.Store, clock *fakeClock) *Manager {
	t.Helper()
	m, err := NewManager(context.Background(), shared, kv.NewMemory(), WithClock(clock.Now))
	require.NoError(t, err)
	t.Cleanup(m.Close)
	return m
}

// seedSession writes a raw record for id directly into the shared store.
func seedSession(t *testing.T, store kv.Store, id ID, fields map[string]string) {
	t.Helper()
	for k, v := range fields {
		require.NoError(t, store.Set(context.Background(), Prefix(id)+k, v))
	}
}

// failingStore wraps a store and fails writes to keys accepted by failSet.
type failingStore struct {
	kv.Store
	failSet  func(key string) bool
	failKeys bool
}

var errBroken = errors.New("disk on fire")

func (f *failingStore) Set(ctx context.Context, key, value string) error {
	if f.failSet != nil && f.failSet(key) {
		return &kv.StorageError{Op: "set", Key: key, Err: errBroken}
	}
	return f.Store.Set(ctx, key, value)
}

func (f *failingStore) Keys(ctx context.Context) ([]string, error) {
	if f.failKeys {
		return nil, &kv.StorageError{Op: "keys", Err: errBroken}
	}
	return f.Store.Keys(ctx)
}

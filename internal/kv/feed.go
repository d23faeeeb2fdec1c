package kv

import (
	"context"
	"sync"
)

// MemoryFeed is an in-process Feed. Publish invokes subscribers synchronously
// in publish order.
type MemoryFeed struct {
	mu   sync.RWMutex
	subs map[uint64]func(Change)
	next uint64
}

// NewMemoryFeed creates a feed with no subscribers.
func NewMemoryFeed() *MemoryFeed {
	return &MemoryFeed{subs: make(map[uint64]func(Change))}
}

func (f *MemoryFeed) Publish(_ context.Context, change Change) error {
	f.mu.RLock()
	fns := make([]func(Change), 0, len(f.subs))
	for _, fn := range f.subs {
		fns = append(fns, fn)
	}
	f.mu.RUnlock()

	for _, fn := range fns {
		fn(change)
	}
	return nil
}

func (f *MemoryFeed) Subscribe(fn func(Change)) (func(), error) {
	f.mu.Lock()
	id := f.next
	f.next++
	f.subs[id] = fn
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, id)
			f.mu.Unlock()
		})
	}, nil
}

// Subscribers returns the number of live subscriptions.
func (f *MemoryFeed) Subscribers() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}

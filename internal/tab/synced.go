package tab

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/TabSessions/backend/internal/bus"
	"github.com/GriffinCanCode/TabSessions/backend/internal/kv"
)

// SyncedKey returns the shared-store key of a synced value.
func SyncedKey(env *Env, key string) string {
	return "sync_" + string(env.SessionID()) + "_" + key
}

// Synced is a typed value in the shared store mirrored across every tab of
// the same session. Concurrent writers resolve last-write-wins on the write
// timestamp.
type Synced[T any] struct {
	env    *Env
	key    string
	def    T
	source string

	mu    sync.RWMutex
	value T
	at    time.Time

	subs    *bus.Bus[T]
	cancels []func()
	once    sync.Once
}

// NewSynced loads key from the shared store and starts listening to both
// same-tab and cross-tab writes.
func NewSynced[T any](ctx context.Context, env *Env, key string, def T) (*Synced[T], error) {
	s := &Synced[T]{
		env:    env,
		key:    SyncedKey(env, key),
		def:    def,
		source: env.nextSource(),
		value:  def,
		subs:   bus.New[T](),
	}

	raw, ok, err := env.view.Get(ctx, s.key)
	if err != nil {
		return nil, err
	}
	if ok {
		if decoded, err := decode[T](raw); err == nil {
			s.value = decoded
		} else {
			env.logger.Warn("Failed to read synced value", zap.String("key", s.key), zap.Error(err))
		}
	}

	cancelFeed, err := env.view.OnChange(s.onRemote)
	if err != nil {
		return nil, err
	}
	s.cancels = []func(){cancelFeed, env.synced.Subscribe(s.onLocal)}

	if err := env.track(s.Close); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Key returns the full storage key.
func (s *Synced[T]) Key() string { return s.key }

// Get returns the current value.
func (s *Synced[T]) Get() T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value
}

// Set persists next and broadcasts it. A nil pointer, map, slice or
// interface removes the key.
func (s *Synced[T]) Set(ctx context.Context, next T) error {
	if isNil(next) {
		return s.Clear(ctx)
	}

	encoded, err := encode(next)
	if err != nil {
		return err
	}
	if err := s.env.view.Set(ctx, s.key, encoded); err != nil {
		return err
	}
	s.commit(next, &encoded)
	return nil
}

// Update stores fn applied to the current value.
func (s *Synced[T]) Update(ctx context.Context, fn func(T) T) error {
	return s.Set(ctx, fn(s.Get()))
}

// Clear removes the key and resets the value to its default.
func (s *Synced[T]) Clear(ctx context.Context) error {
	if err := s.env.view.Remove(ctx, s.key); err != nil {
		return err
	}
	s.commit(s.def, nil)
	return nil
}

func (s *Synced[T]) commit(next T, raw *string) {
	at := s.env.now()
	s.mu.Lock()
	s.value = next
	s.at = at
	s.mu.Unlock()

	s.env.synced.Publish(syncEvent{key: s.key, raw: raw, at: at, origin: s.source})
	s.subs.Publish(next)
}

// Subscribe calls fn with every accepted value.
func (s *Synced[T]) Subscribe(fn func(T)) func() {
	return s.subs.Subscribe(fn)
}

// Close stops listening for writes.
func (s *Synced[T]) Close() {
	s.once.Do(func() {
		for _, cancel := range s.cancels {
			cancel()
		}
	})
}

func (s *Synced[T]) onLocal(ev syncEvent) {
	if ev.key != s.key || ev.origin == s.source {
		return
	}
	s.apply(ev.raw, ev.at)
}

func (s *Synced[T]) onRemote(c kv.Change) {
	if c.Key != s.key {
		return
	}
	s.apply(c.NewValue, c.At)
}

func (s *Synced[T]) apply(raw *string, at time.Time) {
	next := s.def
	if raw != nil {
		decoded, err := decode[T](*raw)
		if err != nil {
			s.env.logger.Warn("Failed to sync value", zap.String("key", s.key), zap.Error(err))
			return
		}
		next = decoded
	}

	s.mu.Lock()
	if at.Before(s.at) {
		s.mu.Unlock()
		return
	}
	s.value = next
	s.at = at
	s.mu.Unlock()

	s.subs.Publish(next)
}

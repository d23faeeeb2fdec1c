package tab

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/TabSessions/backend/internal/bus"
	"github.com/GriffinCanCode/TabSessions/backend/internal/kv"
)

// ValueKey returns the private-store key of a tab value.
func ValueKey(env *Env, key string) string {
	return "tab_" + string(env.SessionID()) + "_" + key
}

// Value is a typed value kept in the tab's private store.
// Instances bound to the same key in one tab observe each other's writes.
type Value[T any] struct {
	env    *Env
	key    string
	def    T
	source string

	mu    sync.RWMutex
	value T

	subs   *bus.Bus[T]
	cancel func()
	once   sync.Once
}

// NewValue loads key from the tab store, falling back to def when the key is
// absent or its content cannot be decoded.
func NewValue[T any](ctx context.Context, env *Env, key string, def T) (*Value[T], error) {
	v := &Value[T]{
		env:    env,
		key:    ValueKey(env, key),
		def:    def,
		source: env.nextSource(),
		value:  def,
		subs:   bus.New[T](),
	}

	raw, ok, err := env.tabStore.Get(ctx, v.key)
	if err != nil {
		return nil, err
	}
	if ok {
		if decoded, err := decode[T](raw); err == nil {
			v.value = decoded
		} else {
			env.logger.Warn("Failed to read tab value", zap.String("key", v.key), zap.Error(err))
		}
	}

	v.cancel = env.tabChanges.Subscribe(v.onChange)
	if err := env.track(v.Close); err != nil {
		v.cancel()
		return nil, err
	}
	return v, nil
}

// Key returns the full storage key.
func (v *Value[T]) Key() string { return v.key }

// Get returns the current value.
func (v *Value[T]) Get() T {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.value
}

// Set stores next. A nil pointer, map, slice or interface removes the key
// and resets the value to its default.
func (v *Value[T]) Set(ctx context.Context, next T) error {
	if isNil(next) {
		return v.Clear(ctx)
	}

	raw, err := encode(next)
	if err != nil {
		return err
	}
	if err := v.env.tabStore.Set(ctx, v.key, raw); err != nil {
		return err
	}

	v.mu.Lock()
	v.value = next
	v.mu.Unlock()

	v.env.tabChanges.Publish(kv.Change{Key: v.key, NewValue: &raw, Source: v.source, At: v.env.now()})
	v.subs.Publish(next)
	return nil
}

// Update stores fn applied to the current value.
func (v *Value[T]) Update(ctx context.Context, fn func(T) T) error {
	return v.Set(ctx, fn(v.Get()))
}

// Clear removes the key and resets the value to its default.
func (v *Value[T]) Clear(ctx context.Context) error {
	if err := v.env.tabStore.Remove(ctx, v.key); err != nil {
		return err
	}

	v.mu.Lock()
	v.value = v.def
	v.mu.Unlock()

	v.env.tabChanges.Publish(kv.Change{Key: v.key, Source: v.source, At: v.env.now()})
	v.subs.Publish(v.def)
	return nil
}

// Subscribe calls fn with every new value.
func (v *Value[T]) Subscribe(fn func(T)) func() {
	return v.subs.Subscribe(fn)
}

// Close detaches the value from its siblings.
func (v *Value[T]) Close() {
	v.once.Do(func() {
		v.cancel()
	})
}

func (v *Value[T]) onChange(c kv.Change) {
	if c.Key != v.key || c.Source == v.source {
		return
	}

	next := v.def
	if c.NewValue != nil {
		decoded, err := decode[T](*c.NewValue)
		if err != nil {
			v.env.logger.Warn("Failed to sync tab value", zap.String("key", v.key), zap.Error(err))
			return
		}
		next = decoded
	}

	v.mu.Lock()
	v.value = next
	v.mu.Unlock()
	v.subs.Publish(next)
}

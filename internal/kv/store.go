package kv

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrQuotaExceeded is returned when a write would exceed the store quota.
var ErrQuotaExceeded = errors.New("storage quota exceeded")

// Store is a string-to-string key-value store.
// Get reports absence with ok=false, never with an error.
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
	Len(ctx context.Context) (int, error)
	Clear(ctx context.Context) error
}

// StorageError describes a failed store operation.
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("kv %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("kv %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Change describes one mutation of a shared store.
// A nil OldValue means the key was created, a nil NewValue means it was removed.
type Change struct {
	Key      string    `json:"key"`
	OldValue *string   `json:"oldValue,omitempty"`
	NewValue *string   `json:"newValue,omitempty"`
	Source   string    `json:"source"`
	At       time.Time `json:"at"`
}

// Removed reports whether the change deleted its key.
func (c Change) Removed() bool {
	return c.NewValue == nil
}

// Feed delivers store changes to every subscriber, including other processes
// when the implementation is backed by a broker.
type Feed interface {
	Publish(ctx context.Context, change Change) error
	Subscribe(fn func(Change)) (cancel func(), err error)
}

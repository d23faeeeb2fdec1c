package kv

import (
	"context"
	"time"
)

// View is one tab's handle on a shared store.
// Writes go to the store and are announced on the feed tagged with the view's
// source. OnChange hides changes carrying that same source.
//
// A write that reached the store is not reported as failed when only its
// announcement fails; the publish error goes to the handler set with
// WithPublishErrors instead.
type View struct {
	store          Store
	feed           Feed
	source         string
	now            func() time.Time
	onPublishError func(error)
}

// ViewOption configures a View.
type ViewOption func(*View)

// WithViewClock sets the clock used to stamp changes.
func WithViewClock(now func() time.Time) ViewOption {
	return func(v *View) {
		v.now = now
	}
}

// WithPublishErrors receives announcement failures as *StorageError with Op "publish".
func WithPublishErrors(fn func(error)) ViewOption {
	return func(v *View) {
		v.onPublishError = fn
	}
}

// NewView binds store and feed to source. A nil feed disables notifications.
func NewView(store Store, feed Feed, source string, opts ...ViewOption) *View {
	v := &View{
		store:  store,
		feed:   feed,
		source:         source,
		now:            time.Now,
		onPublishError: func(error) {},
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Source returns the id stamped on changes made through this view.
func (v *View) Source() string {
	return v.source
}

func (v *View) Get(ctx context.Context, key string) (string, bool, error) {
	return v.store.Get(ctx, key)
}

func (v *View) Set(ctx context.Context, key, value string) error {
	old, err := v.previous(ctx, key)
	if err != nil {
		return err
	}
	if err := v.store.Set(ctx, key, value); err != nil {
		return err
	}
	return v.publish(ctx, key, old, &value)
}

func (v *View) Remove(ctx context.Context, key string) error {
	old, err := v.previous(ctx, key)
	if err != nil {
		return err
	}
	if err := v.store.Remove(ctx, key); err != nil {
		return err
	}
	if old == nil {
		return nil
	}
	return v.publish(ctx, key, old, nil)
}

func (v *View) Keys(ctx context.Context) ([]string, error) {
	return v.store.Keys(ctx)
}

func (v *View) Len(ctx context.Context) (int, error) {
	return v.store.Len(ctx)
}

// Clear removes every key, announcing one change per removed key.
func (v *View) Clear(ctx context.Context) error {
	keys, err := v.store.Keys(ctx)
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err := v.Remove(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

// OnChange subscribes fn to changes made by other sources.
func (v *View) OnChange(fn func(Change)) (func(), error) {
	if v.feed == nil {
		return func() {}, nil
	}
	return v.feed.Subscribe(func(c Change) {
		if c.Source == v.source {
			return
		}
		fn(c)
	})
}

func (v *View) previous(ctx context.Context, key string) (*string, error) {
	if v.feed == nil {
		return nil, nil
	}
	old, ok, err := v.store.Get(ctx, key)
	if err != nil || !ok {
		return nil, err
	}
	return &old, nil
}

func (v *View) publish(ctx context.Context, key string, old, updated *string) error {
	if v.feed == nil {
		return nil
	}
	err := v.feed.Publish(ctx, Change{
		Key:      key,
		OldValue: old,
		NewValue: updated,
		Source:   v.source,
		At:       v.now(),
	})
	if err != nil {
		v.onPublishError(&StorageError{Op: "publish", Key: key, Err: err})
	}
	return nil
}

package tab

import (
	"context"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultSweepInterval is how often stale tabs are pruned.
	DefaultSweepInterval = time.Minute
	// DefaultStaleAfter is the age after which a tab entry is dropped.
	DefaultStaleAfter = 5 * time.Minute
)

// Descriptor announces one tab in the registry.
type Descriptor struct {
	ID        string `json:"id"`
	URL       string `json:"url"`
	UserAgent string `json:"userAgent"`
	Timestamp int64  `json:"timestamp"`
}

// Registry keeps the list of tabs announced under the current session.
// Tabs that crash without deregistering fall out after the staleness window.
type Registry struct {
	env        *Env
	tabs       *Synced[[]Descriptor]
	interval   time.Duration
	staleAfter time.Duration

	stop   chan struct{}
	done   chan struct{}
	cancel func()
	once   sync.Once
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithSweepInterval sets how often stale entries are pruned. Non-positive
// values keep DefaultSweepInterval.
func WithSweepInterval(d time.Duration) RegistryOption {
	return func(r *Registry) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithStaleAfter sets the staleness window. Non-positive values keep
// DefaultStaleAfter.
func WithStaleAfter(d time.Duration) RegistryOption {
	return func(r *Registry) {
		if d > 0 {
			r.staleAfter = d
		}
	}
}

// NewRegistry registers the current tab and starts the prune loop.
func NewRegistry(ctx context.Context, env *Env, opts ...RegistryOption) (*Registry, error) {
	r := &Registry{
		env:        env,
		interval:   DefaultSweepInterval,
		staleAfter: DefaultStaleAfter,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}

	var err error
	r.tabs, err = NewSynced[[]Descriptor](ctx, env, "activeTabs", []Descriptor{})
	if err != nil {
		return nil, err
	}
	r.cancel = r.tabs.Subscribe(func(tabs []Descriptor) { r.report(len(tabs)) })

	if err := r.announce(ctx); err != nil {
		r.cancel()
		r.tabs.Close()
		return nil, err
	}

	if err := env.track(func() { r.Close(context.Background()) }); err != nil {
		r.cancel()
		r.tabs.Close()
		return nil, err
	}

	go r.loop()
	return r, nil
}

// CurrentTabID returns the id of the registering tab.
func (r *Registry) CurrentTabID() string {
	return string(r.env.id)
}

// Tabs returns a copy of the registered tabs.
func (r *Registry) Tabs() []Descriptor {
	return slices.Clone(r.tabs.Get())
}

// Count returns the number of registered tabs.
func (r *Registry) Count() int {
	return len(r.tabs.Get())
}

// IsDuplicate reports whether more than one tab shares the session.
func (r *Registry) IsDuplicate() bool {
	return r.Count() > 1
}

// Subscribe calls fn whenever the tab list changes.
func (r *Registry) Subscribe(fn func([]Descriptor)) func() {
	return r.tabs.Subscribe(fn)
}

// Prune drops entries older than the staleness window and refreshes the
// current tab's own timestamp. It returns the number of entries dropped.
func (r *Registry) Prune(ctx context.Context) (int, error) {
	now := r.env.now()
	self := r.CurrentTabID()
	removed := 0

	err := r.tabs.Update(ctx, func(tabs []Descriptor) []Descriptor {
		kept := make([]Descriptor, 0, len(tabs))
		for _, t := range tabs {
			if t.ID == self {
				t.Timestamp = now.UnixMilli()
				kept = append(kept, t)
				continue
			}
			if now.Sub(time.UnixMilli(t.Timestamp)) >= r.staleAfter {
				removed++
				continue
			}
			kept = append(kept, t)
		}
		return kept
	})
	return removed, err
}

// Close deregisters the tab and stops the prune loop. Safe to call more than once.
func (r *Registry) Close(ctx context.Context) {
	r.once.Do(func() {
		close(r.stop)
		<-r.done

		self := r.CurrentTabID()
		err := r.tabs.Update(ctx, func(tabs []Descriptor) []Descriptor {
			return slices.DeleteFunc(slices.Clone(tabs), func(t Descriptor) bool { return t.ID == self })
		})
		if err != nil {
			r.env.logger.Warn("Failed to deregister tab", zap.Error(err))
		}
		r.cancel()
		r.tabs.Close()
	})
}

func (r *Registry) announce(ctx context.Context) error {
	current := Descriptor{
		ID:        r.CurrentTabID(),
		URL:       r.env.url,
		UserAgent: r.env.userAgent,
		Timestamp: r.env.now().UnixMilli(),
	}
	return r.tabs.Update(ctx, func(tabs []Descriptor) []Descriptor {
		next := slices.DeleteFunc(slices.Clone(tabs), func(t Descriptor) bool { return t.ID == current.ID })
		return append(next, current)
	})
}

func (r *Registry) loop() {
	defer close(r.done)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			removed, err := r.Prune(context.Background())
			if err != nil {
				r.env.logger.Warn("Failed to prune tab registry", zap.Error(err))
				continue
			}
			if removed > 0 {
				r.env.logger.Debug("Pruned stale tabs", zap.Int("removed", removed))
			}
		}
	}
}

func (r *Registry) report(n int) {
	if r.env.metrics != nil {
		r.env.metrics.SetTabsActive(n)
	}
}

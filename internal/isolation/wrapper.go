// Package isolation ties a tab's environment, activity state, tab registry
// and authentication context together for the lifetime of the tab.
package isolation

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/TabSessions/backend/internal/auth"
	"github.com/GriffinCanCode/TabSessions/backend/internal/bus"
	"github.com/GriffinCanCode/TabSessions/backend/internal/session"
	"github.com/GriffinCanCode/TabSessions/backend/internal/tab"
)

const (
	// DefaultActiveInterval is the stats refresh period of a visible, focused tab.
	DefaultActiveInterval = 5 * time.Second
	// DefaultInactiveInterval is the stats refresh period otherwise.
	DefaultInactiveInterval = 30 * time.Second
)

// Info identifies the tab and its place among the session's tabs.
type Info struct {
	TabID      string     `json:"tabId"`
	SessionID  session.ID `json:"sessionId"`
	IsMultiTab bool       `json:"isMultiTab"`
	TabCount   int        `json:"tabCount"`
	CreatedAt  time.Time  `json:"createdAt"`
	URL        string     `json:"url"`
}

// Stats is a periodic snapshot of an active tab.
type Stats struct {
	Info
	LastUpdate   time.Time     `json:"lastUpdate"`
	IsActive     bool          `json:"isActive"`
	IsVisible    bool          `json:"isVisible"`
	IsFocused    bool          `json:"isFocused"`
	LastActivity time.Time     `json:"lastActivity"`
	Uptime       time.Duration `json:"uptime"`
}

// Wrapper owns the per-tab components and the stats refresh loop.
type Wrapper struct {
	env      *tab.Env
	auth     *auth.Context
	state    *tab.State
	registry *tab.Registry
	logger   *zap.Logger

	activeInterval   time.Duration
	inactiveInterval time.Duration
	stateOpts        []tab.StateOption
	registryOpts     []tab.RegistryOption

	mu         sync.RWMutex
	info       Info
	stats      *Stats
	wasActive  bool
	cancelSubs []func()

	subs *bus.Bus[Stats]
	wake chan struct{}
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// Option configures a Wrapper.
type Option func(*Wrapper)

// WithIntervals sets the stats refresh periods. Non-positive values keep
// the defaults.
func WithIntervals(active, inactive time.Duration) Option {
	return func(w *Wrapper) {
		if active > 0 {
			w.activeInterval = active
		}
		if inactive > 0 {
			w.inactiveInterval = inactive
		}
	}
}

// WithStateOptions passes options to the tab state.
func WithStateOptions(opts ...tab.StateOption) Option {
	return func(w *Wrapper) {
		w.stateOpts = append(w.stateOpts, opts...)
	}
}

// WithRegistryOptions passes options to the tab registry.
func WithRegistryOptions(opts ...tab.RegistryOption) Option {
	return func(w *Wrapper) {
		w.registryOpts = append(w.registryOpts, opts...)
	}
}

// New registers the tab, starts tracking its activity and begins
// refreshing stats.
func New(ctx context.Context, env *tab.Env, authCtx *auth.Context, opts ...Option) (*Wrapper, error) {
	w := &Wrapper{
		env:              env,
		auth:             authCtx,
		logger:           env.Logger(),
		activeInterval:   DefaultActiveInterval,
		inactiveInterval: DefaultInactiveInterval,
		subs:             bus.New[Stats](),
		wake:             make(chan struct{}, 1),
		stop:             make(chan struct{}),
		done:             make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	var err error
	if w.state, err = tab.NewState(ctx, env, w.stateOpts...); err != nil {
		return nil, err
	}
	if w.registry, err = tab.NewRegistry(ctx, env, w.registryOpts...); err != nil {
		w.state.Close()
		return nil, err
	}

	w.info = Info{
		TabID:      w.registry.CurrentTabID(),
		SessionID:  env.SessionID(),
		IsMultiTab: w.registry.IsDuplicate(),
		TabCount:   w.registry.Count(),
		CreatedAt:  env.Now(),
		URL:        env.URL(),
	}
	w.wasActive = w.state.IsActive()

	w.cancelSubs = []func(){
		w.registry.Subscribe(w.onTabs),
		w.state.Subscribe(w.onActivity),
	}

	w.logger.Info("Tab isolation initialized",
		zap.String("tab_id", w.info.TabID),
		zap.Int("tab_count", w.info.TabCount),
		zap.Bool("multi_tab", w.info.IsMultiTab))

	go w.loop()
	return w, nil
}

// Info returns the tab's identity.
func (w *Wrapper) Info() Info {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.info
}

// Stats returns the latest snapshot, or false before the tab was first active.
func (w *Wrapper) Stats() (Stats, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.stats == nil {
		return Stats{}, false
	}
	return *w.stats, true
}

// Subscribe calls fn after every stats refresh.
func (w *Wrapper) Subscribe(fn func(Stats)) func() {
	return w.subs.Subscribe(fn)
}

// Auth returns the authentication context.
func (w *Wrapper) Auth() *auth.Context { return w.auth }

// State returns the tab's activity state.
func (w *Wrapper) State() *tab.State { return w.state }

// Registry returns the tab registry.
func (w *Wrapper) Registry() *tab.Registry { return w.registry }

// Touch records user activity now.
func (w *Wrapper) Touch(ctx context.Context) error {
	return w.state.Touch(ctx)
}

// Unload marks the session closed, deregisters the tab and stops every
// timer the wrapper started. Safe to call more than once.
func (w *Wrapper) Unload(ctx context.Context) error {
	var err error
	w.once.Do(func() {
		w.logger.Info("Unloading tab", zap.String("tab_id", w.info.TabID))

		close(w.stop)
		<-w.done
		for _, cancel := range w.cancelSubs {
			cancel()
		}

		if err = w.env.Manager().MarkClosed(ctx); err != nil {
			w.logger.Warn("Failed to mark session closed", zap.Error(err))
		}
		w.registry.Close(ctx)
		w.state.Close()
	})
	return err
}

func (w *Wrapper) onTabs(tabs []tab.Descriptor) {
	w.mu.Lock()
	w.info.TabCount = len(tabs)
	w.info.IsMultiTab = len(tabs) > 1
	w.mu.Unlock()
}

func (w *Wrapper) onActivity(a tab.Activity) {
	w.mu.Lock()
	changed := a.IsActive != w.wasActive
	w.wasActive = a.IsActive
	w.mu.Unlock()

	if !changed {
		return
	}
	if a.IsActive {
		w.logger.Debug("Tab active, normal refresh rate")
	} else {
		w.logger.Debug("Tab inactive, reducing refresh rate")
	}

	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *Wrapper) interval() time.Duration {
	if w.state.IsActive() {
		return w.activeInterval
	}
	return w.inactiveInterval
}

func (w *Wrapper) loop() {
	defer close(w.done)

	w.refresh()
	timer := time.NewTimer(w.interval())
	defer timer.Stop()

	for {
		select {
		case <-w.stop:
			return
		case <-w.wake:
			w.refresh()
		case <-timer.C:
			w.refresh()
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(w.interval())
	}
}

// refresh takes a snapshot when the tab is active. Inactive tabs keep
// their last snapshot.
func (w *Wrapper) refresh() {
	activity := w.state.Snapshot()
	if !activity.IsActive {
		return
	}

	now := w.env.Now()
	w.mu.Lock()
	stats := Stats{
		Info:         w.info,
		LastUpdate:   now,
		IsActive:     activity.IsActive,
		IsVisible:    activity.IsVisible,
		IsFocused:    activity.IsFocused,
		LastActivity: activity.LastActivity,
		Uptime:       now.Sub(w.info.CreatedAt),
	}
	w.stats = &stats
	w.mu.Unlock()

	w.subs.Publish(stats)
}

package tab

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/TabSessions/backend/internal/bus"
	"github.com/GriffinCanCode/TabSessions/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/TabSessions/backend/internal/kv"
	"github.com/GriffinCanCode/TabSessions/backend/internal/session"
	"github.com/GriffinCanCode/TabSessions/backend/internal/shared/id"
)

// CurrentTabKey holds the tab id in the private store.
const CurrentTabKey = "current_tab_id"

// ErrClosed is returned by operations on a closed Env.
var ErrClosed = errors.New("tab environment closed")

// TabConfig describes the stores and identity of one tab.
type TabConfig struct {
	Persistent kv.Store
	Feed       kv.Feed
	// TabStore defaults to a fresh in-memory store.
	TabStore  kv.Store
	URL       string
	UserAgent string
}

// syncEvent is the same-tab broadcast of a synced write.
type syncEvent struct {
	key    string
	raw    *string
	at     time.Time
	origin string
}

// Env is everything one tab owns.
type Env struct {
	id        id.TabID
	url       string
	userAgent string

	tabStore kv.Store
	view     *kv.View
	manager  *session.Manager

	tabChanges *bus.Bus[kv.Change]
	synced     *bus.Bus[syncEvent]

	logger      *zap.Logger
	metrics     *monitoring.Metrics
	now         func() time.Time
	sessionOpts []session.Option

	instances atomic.Uint64

	mu      sync.Mutex
	closers []func()
	closed  bool
}

// Option configures an Env.
type Option func(*Env)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Env) {
		e.logger = logger
	}
}

// WithMetrics enables metrics collection.
func WithMetrics(metrics *monitoring.Metrics) Option {
	return func(e *Env) {
		e.metrics = metrics
	}
}

// WithClock replaces time.Now for the tab and its session manager.
func WithClock(now func() time.Time) Option {
	return func(e *Env) {
		e.now = now
	}
}

// WithSessionOptions passes extra options to the session manager.
func WithSessionOptions(opts ...session.Option) Option {
	return func(e *Env) {
		e.sessionOpts = append(e.sessionOpts, opts...)
	}
}

// Open resolves the tab and session ids and builds the tab's environment.
func Open(ctx context.Context, cfg TabConfig, opts ...Option) (*Env, error) {
	if cfg.Persistent == nil {
		return nil, fmt.Errorf("persistent store is required")
	}

	e := &Env{
		url:        cfg.URL,
		userAgent:  cfg.UserAgent,
		tabStore:   cfg.TabStore,
		tabChanges: bus.New[kv.Change](),
		synced:     bus.New[syncEvent](),
		logger:     zap.NewNop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.tabStore == nil {
		e.tabStore = kv.NewMemory()
	}

	tabID, err := e.resolveTabID(ctx)
	if err != nil {
		return nil, err
	}
	e.id = tabID
	e.view = kv.NewView(cfg.Persistent, cfg.Feed, string(tabID),
		kv.WithViewClock(e.now),
		kv.WithPublishErrors(func(err error) {
			e.logger.Warn("Change not announced to other tabs", zap.Error(err))
		}),
	)

	sessionOpts := append([]session.Option{
		session.WithLogger(e.logger),
		session.WithClock(e.now),
	}, e.sessionOpts...)
	if e.metrics != nil {
		sessionOpts = append(sessionOpts, session.WithMetrics(e.metrics))
	}

	e.manager, err = session.NewManager(ctx, e.view, e.tabStore, sessionOpts...)
	if err != nil {
		return nil, err
	}

	e.logger = e.logger.With(
		zap.String("tab_id", string(e.id)),
		zap.String("session_id", string(e.manager.SessionID())),
	)
	e.logger.Debug("Tab opened")
	return e, nil
}

func (e *Env) resolveTabID(ctx context.Context) (id.TabID, error) {
	current, ok, err := e.tabStore.Get(ctx, CurrentTabKey)
	if err != nil {
		return "", fmt.Errorf("failed to read tab id: %w", err)
	}
	if ok && id.IsValid(current) {
		return id.TabID(current), nil
	}

	tabID := id.NewTabID()
	if err := e.tabStore.Set(ctx, CurrentTabKey, string(tabID)); err != nil {
		return "", fmt.Errorf("failed to persist tab id: %w", err)
	}
	return tabID, nil
}

// ID returns the tab id.
func (e *Env) ID() id.TabID { return e.id }

// URL returns the URL the tab was opened on.
func (e *Env) URL() string { return e.url }

// UserAgent returns the tab's user agent string.
func (e *Env) UserAgent() string { return e.userAgent }

// SessionID returns the tab's session id.
func (e *Env) SessionID() session.ID { return e.manager.SessionID() }

// Manager returns the tab's session manager.
func (e *Env) Manager() *session.Manager { return e.manager }

// View returns the tab's handle on the shared store.
func (e *Env) View() *kv.View { return e.view }

// TabStore returns the tab's private store.
func (e *Env) TabStore() kv.Store { return e.tabStore }

// Logger returns the tab-scoped logger.
func (e *Env) Logger() *zap.Logger { return e.logger }

// Metrics returns the metrics sink, which may be nil.
func (e *Env) Metrics() *monitoring.Metrics { return e.metrics }

// Now returns the tab clock's current time.
func (e *Env) Now() time.Time { return e.now() }

// nextSource returns a source tag unique to one binding instance.
func (e *Env) nextSource() string {
	return string(e.id) + "#" + strconv.FormatUint(e.instances.Add(1), 10)
}

// track registers fn to run on Close.
func (e *Env) track(fn func()) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	e.closers = append(e.closers, fn)
	return nil
}

// Close releases every binding created from the Env and stops the session
// manager's sweeper. Safe to call more than once.
func (e *Env) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	closers := e.closers
	e.closers = nil
	e.mu.Unlock()

	for i := len(closers) - 1; i >= 0; i-- {
		closers[i]()
	}
	e.manager.Close()
	e.logger.Debug("Tab closed")
}

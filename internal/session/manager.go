package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/TabSessions/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/TabSessions/backend/internal/kv"
)

// Well-known keys.
const (
	// CurrentSessionKey holds the tab's session id in the tab store.
	CurrentSessionKey = "current_session_id"

	KeyAuthToken    = "authToken"
	KeyUserData     = "userData"
	KeyCreatedAt    = "createdAt"
	KeyLastActivity = "lastActivity"
	KeyClosed       = "closed"
)

// DefaultExpiration is the inactivity window after which other sessions are swept.
const DefaultExpiration = 24 * time.Hour

// AuthData is the authentication payload of a session.
type AuthData struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// Manager owns the current tab's session id and its authentication payload,
// and performs bookkeeping across every session in the shared store.
type Manager struct {
	persistent kv.Store
	tab        kv.Store
	id         ID
	storage    *Storage

	logger    *zap.Logger
	metrics   *monitoring.Metrics
	now       func() time.Time
	generator *Generator

	mu        sync.Mutex
	stopSweep chan struct{}
	sweepDone chan struct{}
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithMetrics enables metrics collection.
func WithMetrics(metrics *monitoring.Metrics) Option {
	return func(m *Manager) {
		m.metrics = metrics
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithGenerator replaces the default id generator.
func WithGenerator(g *Generator) Option {
	return func(m *Manager) {
		m.generator = g
	}
}

// NewManager resolves the tab's session id and binds its namespace in persistent.
func NewManager(ctx context.Context, persistent, tab kv.Store, opts ...Option) (*Manager, error) {
	m := &Manager{
		persistent: persistent,
		tab:        tab,
		logger:     zap.NewNop(),
		now:        time.Now,
		generator:  DefaultGenerator(),
	}
	for _, opt := range opts {
		opt(m)
	}

	id, err := m.ResolveSessionID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve session id: %w", err)
	}
	m.id = id

	m.storage, err = newStorage(persistent, id, m.now)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// GenerateID returns a fresh id from the manager's generator.
func (m *Manager) GenerateID() ID {
	return m.generator.Generate()
}

// ResolveSessionID returns the id persisted in the tab store, generating and
// persisting a new one when it is absent or malformed.
func (m *Manager) ResolveSessionID(ctx context.Context) (ID, error) {
	current, ok, err := m.tab.Get(ctx, CurrentSessionKey)
	if err != nil {
		return "", err
	}
	if ok && IsValidID(current) {
		return ID(current), nil
	}

	id := m.generator.Generate()
	if err := m.tab.Set(ctx, CurrentSessionKey, string(id)); err != nil {
		return "", err
	}
	m.logger.Debug("Generated session id", zap.String("session_id", string(id)))
	return id, nil
}

// SessionID returns the current tab's session id.
func (m *Manager) SessionID() ID {
	return m.id
}

// Storage returns the current session's namespace.
func (m *Manager) Storage() *Storage {
	return m.storage
}

// SaveAuthData stores token and user. createdAt is written only on the first save.
func (m *Manager) SaveAuthData(ctx context.Context, token string, user User) error {
	encoded, err := encodeUser(user)
	if err != nil {
		return fmt.Errorf("failed to encode user: %w", err)
	}

	if err := m.storage.Set(ctx, KeyAuthToken, token); err != nil {
		return err
	}
	if err := m.storage.Set(ctx, KeyUserData, encoded); err != nil {
		return err
	}

	now := formatMillis(m.now())
	if _, ok, err := m.storage.Get(ctx, KeyCreatedAt); err != nil {
		return err
	} else if !ok {
		if err := m.storage.Set(ctx, KeyCreatedAt, now); err != nil {
			return err
		}
	}
	if err := m.storage.Set(ctx, KeyLastActivity, now); err != nil {
		return err
	}

	if m.metrics != nil {
		m.metrics.IncSessionsSaved()
	}
	return nil
}

// AuthData returns the payload when both token and user are present, and
// refreshes lastActivity. Partial or corrupt records yield nil.
func (m *Manager) AuthData(ctx context.Context) (*AuthData, error) {
	token, ok, err := m.storage.Get(ctx, KeyAuthToken)
	if err != nil || !ok || token == "" {
		return nil, err
	}
	raw, ok, err := m.storage.Get(ctx, KeyUserData)
	if err != nil || !ok || raw == "" {
		return nil, err
	}

	user, err := parseUser(raw)
	if err != nil {
		m.logger.Warn("Corrupt user data in session",
			zap.String("session_id", string(m.id)),
			zap.Error(err),
		)
		return nil, nil
	}

	if err := m.touch(ctx); err != nil {
		return nil, err
	}
	return &AuthData{Token: token, User: user}, nil
}

// ClearAuthData erases the whole current namespace.
func (m *Manager) ClearAuthData(ctx context.Context) error {
	if err := m.storage.Clear(ctx); err != nil {
		return err
	}
	if m.metrics != nil {
		m.metrics.IncSessionsCleared()
	}
	return nil
}

// IsAuthenticated checks only for the token. It does not decode the user, so a
// half-written record still reports true here while AuthData returns nil.
func (m *Manager) IsAuthenticated(ctx context.Context) (bool, error) {
	return hasToken(ctx, m.storage)
}

// UserRole returns the role of the authenticated user, or "" when there is none.
func (m *Manager) UserRole(ctx context.Context) (Role, error) {
	data, err := m.AuthData(ctx)
	if err != nil || data == nil {
		return "", err
	}
	return data.User.Role, nil
}

// MarkClosed records when the tab owning this session went away.
func (m *Manager) MarkClosed(ctx context.Context) error {
	return m.storage.Set(ctx, KeyClosed, formatMillis(m.now()))
}

func (m *Manager) touch(ctx context.Context) error {
	return m.storage.Set(ctx, KeyLastActivity, formatMillis(m.now()))
}

// AllSessionIDs scans the shared store for session_<id>_ keys and returns
// the distinct ids in first-seen order.
func (m *Manager) AllSessionIDs(ctx context.Context) ([]ID, error) {
	keys, err := m.persistent.Keys(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[ID]struct{})
	var ids []ID
	for _, k := range keys {
		if !strings.HasPrefix(k, KeyPrefix) {
			continue
		}
		parts := strings.Split(k, "_")
		if len(parts) < 2 || parts[1] == "" {
			continue
		}
		id := ID(parts[1])
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, nil
}

// CleanExpiredSessions prunes every other session idle for longer than maxAge
// and returns how many were removed. The current session is never pruned.
// A non-positive maxAge selects DefaultExpiration.
func (m *Manager) CleanExpiredSessions(ctx context.Context, maxAge time.Duration) (int, error) {
	if maxAge <= 0 {
		maxAge = DefaultExpiration
	}

	ids, err := m.AllSessionIDs(ctx)
	if err != nil {
		return 0, err
	}

	cleaned := 0
	for _, id := range ids {
		if id == m.id {
			continue
		}
		st, err := m.storageFor(id)
		if err != nil {
			return cleaned, err
		}
		pruned, err := st.PruneIfStale(ctx, maxAge)
		if err != nil {
			return cleaned, fmt.Errorf("failed to prune session %s: %w", id, err)
		}
		if pruned {
			m.logger.Info("Pruned expired session", zap.String("session_id", string(id)))
			cleaned++
		}
	}

	if m.metrics != nil && cleaned > 0 {
		m.metrics.AddSessionsPruned(cleaned)
	}
	m.logger.Info("Expired session sweep complete", zap.Int("cleaned", cleaned))
	return cleaned, nil
}

// ForceCleanSession clears another session's namespace. It refuses the current session.
func (m *Manager) ForceCleanSession(ctx context.Context, id ID) (bool, error) {
	if id == m.id {
		m.logger.Warn("Refusing to clean the current session", zap.String("session_id", string(id)))
		return false, nil
	}

	st, err := m.storageFor(id)
	if err != nil {
		return false, err
	}
	n, err := st.Size(ctx)
	if err != nil || n == 0 {
		return false, err
	}
	if err := st.Clear(ctx); err != nil {
		return false, err
	}

	m.logger.Info("Session cleaned manually", zap.String("session_id", string(id)))
	if m.metrics != nil {
		m.metrics.IncSessionsCleared()
	}
	return true, nil
}

// StartSweeper runs CleanExpiredSessions every interval until Close.
// Calling it again replaces the running sweeper. A non-positive interval
// only stops the running one.
func (m *Manager) StartSweeper(interval, maxAge time.Duration) {
	m.stopSweeper()
	if interval <= 0 {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	stop := make(chan struct{})
	done := make(chan struct{})
	m.stopSweep, m.sweepDone = stop, done

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if _, err := m.CleanExpiredSessions(context.Background(), maxAge); err != nil {
					m.logger.Error("Session sweep failed", zap.Error(err))
				}
			}
		}
	}()
}

func (m *Manager) stopSweeper() {
	m.mu.Lock()
	stop, done := m.stopSweep, m.sweepDone
	m.stopSweep, m.sweepDone = nil, nil
	m.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
}

// Close stops background work started by the manager.
func (m *Manager) Close() {
	m.stopSweeper()
}

func (m *Manager) storageFor(id ID) (*Storage, error) {
	return newStorage(m.persistent, id, m.now)
}

func hasToken(ctx context.Context, st *Storage) (bool, error) {
	token, ok, err := st.Get(ctx, KeyAuthToken)
	if err != nil {
		return false, err
	}
	return ok && token != "", nil
}

package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/TabSessions/backend/internal/bus"
	"github.com/GriffinCanCode/TabSessions/backend/internal/client"
	"github.com/GriffinCanCode/TabSessions/backend/internal/session"
)

// Messages shown when a storage operation fails.
const (
	ErrMsgInit   = "Erreur lors de l'initialisation"
	ErrMsgLogin  = "Erreur lors de la connexion"
	ErrMsgLogout = "Erreur lors de la déconnexion"
	ErrMsgUpdate = "Erreur lors de la mise à jour"
)

// Authenticator is the part of the platform API used to sign in.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (*client.AuthResult, error)
	ChangePassword(ctx context.Context, token, password, confirmation string) (*client.AuthResult, error)
}

// SessionInfo is the debug view of the tab's session.
type SessionInfo struct {
	SessionID       session.ID        `json:"sessionId"`
	IsAuthenticated bool              `json:"isAuthenticated"`
	UserRole        session.Role      `json:"userRole,omitempty"`
	AllSessions     []session.ID      `json:"allSessions"`
	SessionStats    *session.AllStats `json:"sessionStats"`
}

// Context holds the authentication state of one tab on top of its session
// manager. Storage failures never escape as panics: they are logged and
// surface as State.Error.
type Context struct {
	manager *session.Manager
	logger  *zap.Logger
	now     func() time.Time

	mu    sync.RWMutex
	state State

	subs *bus.Bus[State]
}

// Option configures a Context.
type Option func(*Context)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Context) {
		c.logger = logger
	}
}

// WithClock replaces time.Now for token expiry checks.
func WithClock(now func() time.Time) Option {
	return func(c *Context) {
		c.now = now
	}
}

// New creates a Context in the initial loading state.
func New(manager *session.Manager, opts ...Option) *Context {
	c := &Context{
		manager: manager,
		logger:  zap.NewNop(),
		now:     time.Now,
		state:   Initial(),
		subs:    bus.New[State](),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Manager returns the underlying session manager.
func (c *Context) Manager() *session.Manager {
	return c.manager
}

// State returns the current state.
func (c *Context) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Subscribe calls fn after every state change.
func (c *Context) Subscribe(fn func(State)) func() {
	return c.subs.Subscribe(fn)
}

func (c *Context) dispatch(transition func(State) State) State {
	c.mu.Lock()
	c.state = transition(c.state)
	next := c.state
	c.mu.Unlock()

	c.subs.Publish(next)
	return next
}

func (c *Context) fail(msg string, err error) {
	c.logger.Error(msg, zap.Error(err))
	c.dispatch(func(s State) State { return s.SetError(msg) })
}

// Init migrates legacy data, sweeps expired sessions and loads the current
// session. Migration and sweep failures are logged and do not stop loading.
func (c *Context) Init(ctx context.Context) error {
	c.dispatch(func(s State) State { return s.SetLoading(true) })

	if migrated, err := c.manager.MigrateExistingData(ctx); err != nil {
		c.logger.Warn("Legacy data migration failed", zap.Error(err))
	} else if migrated {
		c.logger.Info("Legacy session data migrated")
	}

	if removed, err := c.manager.CleanExpiredSessions(ctx, 0); err != nil {
		c.logger.Warn("Expired session sweep failed", zap.Error(err))
	} else if removed > 0 {
		c.logger.Info("Expired sessions removed", zap.Int("count", removed))
	}

	data, err := c.load(ctx)
	if err != nil {
		c.fail(ErrMsgInit, err)
		return err
	}

	c.dispatch(func(s State) State { return s.Initialize(data, c.manager.SessionID()) })
	return nil
}

// load returns the stored payload, discarding it when its JWT has expired.
func (c *Context) load(ctx context.Context) (*session.AuthData, error) {
	data, err := c.manager.AuthData(ctx)
	if err != nil || data == nil {
		return nil, err
	}
	if client.TokenExpired(data.Token, c.now()) {
		c.logger.Info("Stored token expired, clearing session")
		if err := c.manager.ClearAuthData(ctx); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return data, nil
}

// Login stores token and user in the current session.
func (c *Context) Login(ctx context.Context, token string, user session.User) bool {
	c.dispatch(func(s State) State { return s.SetLoading(true).ClearError() })

	if err := c.manager.SaveAuthData(ctx, token, user); err != nil {
		c.fail(ErrMsgLogin, err)
		return false
	}

	c.dispatch(func(s State) State { return s.LoginSuccess(token, user, c.manager.SessionID()) })
	return true
}

// SignIn calls the API and stores the returned credentials. When the API
// requires a password change, nothing is stored and the result carries the
// activation token to pass to ChangePassword.
func (c *Context) SignIn(ctx context.Context, api Authenticator, email, password string) (*client.AuthResult, error) {
	c.dispatch(func(s State) State { return s.SetLoading(true).ClearError() })

	res, err := api.Login(ctx, email, password)
	if err != nil {
		c.dispatch(func(s State) State { return s.SetError(apiMessage(err)) })
		return nil, err
	}
	if res.RequiresPasswordChange() {
		c.dispatch(func(s State) State { return s.SetLoading(false) })
		return res, nil
	}

	if !c.Login(ctx, res.Token, res.Utilisateur) {
		return res, errors.New(ErrMsgLogin)
	}
	return res, nil
}

// ChangePassword sets a new password with an activation token and signs in
// with the token returned by the API.
func (c *Context) ChangePassword(ctx context.Context, api Authenticator, token, password, confirmation string) (*client.AuthResult, error) {
	c.dispatch(func(s State) State { return s.SetLoading(true).ClearError() })

	res, err := api.ChangePassword(ctx, token, password, confirmation)
	if err != nil {
		c.dispatch(func(s State) State { return s.SetError(apiMessage(err)) })
		return nil, err
	}

	if !c.Login(ctx, res.Token, res.Utilisateur) {
		return res, errors.New(ErrMsgLogin)
	}
	return res, nil
}

// Logout erases the current session's namespace.
func (c *Context) Logout(ctx context.Context) bool {
	c.dispatch(func(s State) State { return s.SetLoading(true) })

	if err := c.manager.ClearAuthData(ctx); err != nil {
		c.fail(ErrMsgLogout, err)
		return false
	}

	c.dispatch(State.Logout)
	return true
}

// UpdateUser merges patch into the stored user. It does nothing when the
// session holds no credentials.
func (c *Context) UpdateUser(ctx context.Context, patch session.User) bool {
	data, err := c.manager.AuthData(ctx)
	if err != nil {
		c.fail(ErrMsgUpdate, err)
		return false
	}
	if data == nil {
		return false
	}

	if err := c.manager.SaveAuthData(ctx, data.Token, data.User.Merge(patch)); err != nil {
		c.fail(ErrMsgUpdate, err)
		return false
	}

	c.dispatch(func(s State) State { return s.UpdateUser(patch) })
	return true
}

// Refresh reconciles the state with the store, picking up logins and
// logouts made through another handle on the same session.
func (c *Context) Refresh(ctx context.Context) State {
	data, err := c.load(ctx)
	if err != nil {
		c.logger.Warn("Failed to refresh authentication", zap.Error(err))
		return c.State()
	}

	authenticated := c.State().IsAuthenticated
	switch {
	case data != nil && !authenticated:
		return c.dispatch(func(s State) State { return s.LoginSuccess(data.Token, data.User, c.manager.SessionID()) })
	case data == nil && authenticated:
		return c.dispatch(State.Logout)
	}
	return c.State()
}

// ClearError drops the error message.
func (c *Context) ClearError() {
	c.dispatch(State.ClearError)
}

// Role returns the current user's role.
func (c *Context) Role() session.Role {
	return c.State().Role()
}

// HasRole reports whether the current user has role.
func (c *Context) HasRole(role session.Role) bool {
	current := c.Role()
	return current != "" && current == role
}

// DashboardPath returns the landing page for the current user's role.
func (c *Context) DashboardPath() string {
	return session.DashboardPath(c.Role())
}

// SessionInfo gathers the debug view of every session in the store.
func (c *Context) SessionInfo(ctx context.Context) (*SessionInfo, error) {
	ids, err := c.manager.AllSessionIDs(ctx)
	if err != nil {
		return nil, err
	}
	stats, err := c.manager.AllSessionsStats(ctx)
	if err != nil {
		return nil, err
	}

	state := c.State()
	return &SessionInfo{
		SessionID:       state.SessionID,
		IsAuthenticated: state.IsAuthenticated,
		UserRole:        state.Role(),
		AllSessions:     ids,
		SessionStats:    stats,
	}, nil
}

// CleanExpiredSessions removes other sessions idle for longer than the
// default expiration window.
func (c *Context) CleanExpiredSessions(ctx context.Context) (int, error) {
	return c.manager.CleanExpiredSessions(ctx, 0)
}

// EnsureStorageSpace sweeps expired sessions when the store is near its quota.
func (c *Context) EnsureStorageSpace(ctx context.Context) (session.SpaceReport, error) {
	return c.manager.EnsureStorageSpace(ctx)
}

func apiMessage(err error) string {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message()
	}
	return ErrMsgLogin
}

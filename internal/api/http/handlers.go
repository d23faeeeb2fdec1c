package http

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/TabSessions/backend/internal/auth"
	"github.com/GriffinCanCode/TabSessions/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/TabSessions/backend/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/TabSessions/backend/internal/isolation"
	"github.com/GriffinCanCode/TabSessions/backend/internal/session"
	"github.com/GriffinCanCode/TabSessions/backend/internal/shared/validate"
)

const service = "debug"

// Handlers exposes one tab's sessions for inspection.
type Handlers struct {
	tab     *isolation.Wrapper
	metrics *monitoring.Metrics
	logger  *zap.Logger
	breaker func() resilience.State
	api     auth.Authenticator
	now     func() time.Time
}

// Option configures Handlers.
type Option func(*Handlers)

// WithMetrics enables request timing and the metrics endpoints.
func WithMetrics(metrics *monitoring.Metrics) Option {
	return func(h *Handlers) {
		h.metrics = metrics
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(h *Handlers) {
		h.logger = logger
	}
}

// WithBreaker reports the platform API circuit breaker in health checks.
func WithBreaker(state func() resilience.State) Option {
	return func(h *Handlers) {
		h.breaker = state
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(h *Handlers) {
		h.now = now
	}
}

// NewHandlers creates the debug handler set for a tab.
func NewHandlers(tab *isolation.Wrapper, opts ...Option) *Handlers {
	h := &Handlers{
		tab:    tab,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handlers) manager() *session.Manager {
	return h.tab.Auth().Manager()
}

// Root reports the service identity.
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "Tab Sessions Debug",
		"tabId":   h.tab.Info().TabID,
	})
}

// Health reports the tab and its dependencies.
func (h *Handlers) Health(c *gin.Context) {
	info := h.tab.Info()
	body := gin.H{
		"status":     "healthy",
		"tab":        info,
		"authState":  h.tab.Auth().State(),
		"activity":   h.tab.State().Snapshot(),
		"tabCount":   info.TabCount,
		"multiTab":   info.IsMultiTab,
		"checkedAt":  h.now().UTC(),
		"apiBreaker": "unknown",
	}
	if h.breaker != nil {
		state := h.breaker()
		body["apiBreaker"] = state.String()
		if state == resilience.StateOpen {
			body["status"] = "degraded"
		}
	}
	c.JSON(http.StatusOK, body)
}

// Auth returns the tab's authentication state and latest stats.
func (h *Handlers) Auth(c *gin.Context) {
	body := gin.H{
		"state": h.tab.Auth().State(),
		"info":  h.tab.Info(),
	}
	if stats, ok := h.tab.Stats(); ok {
		body["stats"] = stats
	}
	c.JSON(http.StatusOK, body)
}

// ListSessions returns every session in the shared store.
func (h *Handlers) ListSessions(c *gin.Context) {
	timer := monitoring.NewTimer(h.metrics, service, "list_sessions")

	info, err := h.tab.Auth().SessionInfo(c.Request.Context())
	if err != nil {
		timer.Stop("error")
		h.fail(c, http.StatusInternalServerError, "Failed to read sessions", err)
		return
	}
	timer.Stop("success")

	if h.metrics != nil && info.SessionStats != nil {
		h.metrics.SetSessionsActive(info.SessionStats.TotalSessions)
		h.metrics.SetStorageBytes(info.SessionStats.TotalStorageUsedBytes)
	}
	c.JSON(http.StatusOK, info)
}

// CleanSessions prunes expired sessions. The optional maxAge query takes a
// Go duration and defaults to the session expiration window.
func (h *Handlers) CleanSessions(c *gin.Context) {
	var maxAge time.Duration
	if raw := c.Query("maxAge"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "maxAge must be a positive duration"})
			return
		}
		maxAge = d
	}

	timer := monitoring.NewTimer(h.metrics, service, "clean_sessions")
	cleaned, err := h.manager().CleanExpiredSessions(c.Request.Context(), maxAge)
	if err != nil {
		timer.Stop("error")
		h.fail(c, http.StatusInternalServerError, "Failed to clean sessions", err)
		return
	}
	timer.Stop("success")

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"cleaned": cleaned,
	})
}

// MigrateSessions moves legacy unscoped auth data into the current session.
func (h *Handlers) MigrateSessions(c *gin.Context) {
	migrated, err := h.manager().MigrateExistingData(c.Request.Context())
	if err != nil {
		h.fail(c, http.StatusInternalServerError, "Failed to migrate legacy data", err)
		return
	}
	if migrated {
		h.tab.Auth().Refresh(c.Request.Context())
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"migrated": migrated,
	})
}

// DeleteSession clears another session. The tab's own session is refused.
func (h *Handlers) DeleteSession(c *gin.Context) {
	id := c.Param("id")
	if !session.IsValidID(id) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		return
	}
	if session.ID(id) == h.manager().SessionID() {
		c.JSON(http.StatusConflict, gin.H{"error": "cannot delete the current session"})
		return
	}

	cleaned, err := h.manager().ForceCleanSession(c.Request.Context(), session.ID(id))
	if err != nil {
		h.fail(c, http.StatusInternalServerError, "Failed to delete session", err)
		return
	}
	if !cleaned {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"session_id": id,
	})
}

// EnsureStorage sweeps expired sessions when the store is near its quota.
func (h *Handlers) EnsureStorage(c *gin.Context) {
	report, err := h.tab.Auth().EnsureStorageSpace(c.Request.Context())
	if err != nil {
		h.fail(c, http.StatusInternalServerError, "Failed to free storage", err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// Backup returns a snapshot bundle of every authenticated session.
func (h *Handlers) Backup(c *gin.Context) {
	timer := monitoring.NewTimer(h.metrics, service, "backup")
	backup, err := h.manager().CreateBackup(c.Request.Context())
	if err != nil {
		timer.Stop("error")
		h.fail(c, http.StatusInternalServerError, "Failed to create backup", err)
		return
	}
	timer.Stop("success")

	data, err := sonic.Marshal(backup)
	if err != nil {
		h.fail(c, http.StatusInternalServerError, "Failed to encode backup", err)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", data)
}

// RestoreBackup imports a bundle produced by Backup.
func (h *Handlers) RestoreBackup(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, validate.MaxBackupSize+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}
	if err := validate.Size(body, validate.MaxBackupSize); err != nil {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": err.Error()})
		return
	}

	var backup session.Backup
	if err := sonic.Unmarshal(body, &backup); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid backup format"})
		return
	}

	restored, err := h.manager().RestoreFromBackup(c.Request.Context(), &backup)
	if errors.Is(err, session.ErrInvalidBackup) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		h.fail(c, http.StatusInternalServerError, "Failed to restore backup", err)
		return
	}

	h.tab.Auth().Refresh(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"restored": restored,
		"total":    len(backup.Sessions),
	})
}

// bindJSON binds a request body of at most validate.MaxJSONSize bytes.
func bindJSON(c *gin.Context, obj any) error {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, validate.MaxJSONSize)
	return c.ShouldBindJSON(obj)
}

func (h *Handlers) fail(c *gin.Context, status int, msg string, err error) {
	_ = c.Error(err)
	h.logger.Error(msg, zap.String("path", c.FullPath()), zap.Error(err))
	c.JSON(status, gin.H{"error": msg})
}

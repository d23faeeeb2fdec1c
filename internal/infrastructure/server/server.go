package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	debughttp "github.com/GriffinCanCode/TabSessions/backend/internal/api/http"
	"github.com/GriffinCanCode/TabSessions/backend/internal/api/middleware"
	"github.com/GriffinCanCode/TabSessions/backend/internal/api/ws"
	"github.com/GriffinCanCode/TabSessions/backend/internal/auth"
	"github.com/GriffinCanCode/TabSessions/backend/internal/client"
	"github.com/GriffinCanCode/TabSessions/backend/internal/infrastructure/config"
	"github.com/GriffinCanCode/TabSessions/backend/internal/infrastructure/logging"
	"github.com/GriffinCanCode/TabSessions/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/TabSessions/backend/internal/isolation"
	"github.com/GriffinCanCode/TabSessions/backend/internal/session"
	"github.com/GriffinCanCode/TabSessions/backend/internal/tab"
)

const shutdownTimeout = 10 * time.Second

// Server hosts one tab over the shared store and exposes it for inspection.
type Server struct {
	router  *gin.Engine
	http    *http.Server
	backend *backend
	env     *tab.Env
	tab     *isolation.Wrapper
	api     *client.Client
	logger  *zap.Logger
	config  *config.Config
	metrics *monitoring.Metrics
}

// Option configures a Server.
type Option func(*options)

type options struct {
	logger   *zap.Logger
	registry prometheus.Registerer
}

// WithLogger replaces the logger built from configuration.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithRegistry registers metrics on reg instead of a private registry.
func WithRegistry(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.registry = reg
	}
}

// NewServer opens the store, the tab and its authentication context, and
// builds the debug router.
func NewServer(ctx context.Context, cfg *config.Config, opts ...Option) (*Server, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = logging.NewOrNop(logging.Config{
			Level:       cfg.Logging.Level,
			Development: cfg.Logging.Development,
		})
	}
	if o.registry == nil {
		o.registry = prometheus.NewRegistry()
	}

	logger.Info("Initializing tab session server",
		zap.String("addr", cfg.Addr()),
		zap.String("store", cfg.Store.Backend),
		zap.String("api", cfg.API.BaseURL),
	)

	metrics := monitoring.NewMetrics(o.registry)

	be, err := openBackend(ctx, cfg.Store, logging.Component(logger, "store"))
	if err != nil {
		return nil, err
	}

	env, err := tab.Open(ctx, tab.TabConfig{
		Persistent: be.store,
		Feed:       be.feed,
		URL:        cfg.Tab.URL,
		UserAgent:  cfg.Tab.UserAgent,
	},
		tab.WithLogger(logger),
		tab.WithMetrics(metrics),
		tab.WithSessionOptions(session.WithLogger(logging.Component(logger, "session"))),
	)
	if err != nil {
		be.close()
		return nil, fmt.Errorf("failed to open tab: %w", err)
	}
	tabLogger := logging.ForTab(logger, env.ID().String(), env.SessionID().String())

	authCtx := auth.New(env.Manager(), auth.WithLogger(logging.Component(tabLogger, "auth")))
	if err := authCtx.Init(ctx); err != nil {
		tabLogger.Warn("Authentication state unavailable", zap.Error(err))
	}
	if cfg.Session.SweepInterval > 0 {
		env.Manager().StartSweeper(cfg.Session.SweepInterval, cfg.Session.Expiration)
	}

	wrapper, err := isolation.New(ctx, env, authCtx)
	if err != nil {
		env.Close()
		be.close()
		return nil, fmt.Errorf("failed to start tab isolation: %w", err)
	}

	api := client.New(client.Config{
		BaseURL:      cfg.API.BaseURL,
		Timeout:      cfg.API.Timeout,
		RateLimitRPS: cfg.API.RateLimitRPS,
		MaxRetries:   cfg.API.MaxRetries,
	},
		client.WithSession(env.Manager()),
		client.WithNavigator(client.NavigatorFunc(func(path string) {
			authCtx.Refresh(context.Background())
			tabLogger.Info("Token rejected, returning to login", zap.String("path", path))
		})),
		client.WithLogger(logging.Component(tabLogger, "api")),
		client.WithMetrics(metrics),
	)

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.TabID(env.ID().String()))
	router.Use(middleware.Logger(logging.Component(tabLogger, "http")))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		rl := middleware.DefaultRateLimitConfig()
		rl.RequestsPerSecond = cfg.RateLimit.RequestsPerSecond
		rl.Burst = cfg.RateLimit.Burst
		router.Use(middleware.RateLimit(rl))
	}

	handlers := debughttp.NewHandlers(wrapper,
		debughttp.WithMetrics(metrics),
		debughttp.WithLogger(logging.Component(tabLogger, "debug")),
		debughttp.WithBreaker(api.BreakerState),
		debughttp.WithAuthenticator(api),
	)
	handlers.Register(router)

	stream := ws.NewHandler(be.feed, env.ID().String(), metrics, logging.Component(tabLogger, "stream"))
	router.GET("/debug/stream", stream.HandleConnection)

	logger.Info("Server initialized successfully",
		zap.String("tab_id", env.ID().String()),
		zap.String("session_id", env.SessionID().String()),
	)

	return &Server{
		router:  router,
		http:    &http.Server{Addr: cfg.Addr(), Handler: router},
		backend: be,
		env:     env,
		tab:     wrapper,
		api:     api,
		logger:  logger,
		config:  cfg,
		metrics: metrics,
	}, nil
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Tab returns the tab hosted by the server.
func (s *Server) Tab() *isolation.Wrapper {
	return s.tab
}

// Run serves HTTP until Close.
func (s *Server) Run() error {
	s.logger.Info("Starting HTTP server", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close stops serving, unloads the tab and releases the store.
func (s *Server) Close() error {
	s.logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if err := s.http.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to stop http server: %w", err))
	}
	if err := s.tab.Unload(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to unload tab: %w", err))
	}
	s.env.Close()
	if err := s.backend.close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close store: %w", err))
	}

	_ = s.logger.Sync()
	return errors.Join(errs...)
}

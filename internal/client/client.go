package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/TabSessions/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/TabSessions/backend/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/TabSessions/backend/internal/session"
)

// DefaultBaseURL is the hosted platform API.
const DefaultBaseURL = "https://projet-suivi-1.onrender.com"

const loginPath = "/api/auth/login"

// Config configures the transport.
type Config struct {
	BaseURL      string
	Timeout      time.Duration
	RateLimitRPS float64
	MaxRetries   int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
}

// DefaultConfig returns the production settings.
func DefaultConfig() Config {
	return Config{
		BaseURL:      DefaultBaseURL,
		Timeout:      30 * time.Second,
		MaxRetries:   3,
		RetryWaitMin: time.Second,
		RetryWaitMax: 30 * time.Second,
	}
}

// TokenSource yields the bearer token for outgoing requests.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// TokenSourceFunc adapts a function to TokenSource.
type TokenSourceFunc func(ctx context.Context) (string, error)

func (f TokenSourceFunc) Token(ctx context.Context) (string, error) { return f(ctx) }

// Navigator moves the user to another page.
type Navigator interface {
	Navigate(path string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(path string)

func (f NavigatorFunc) Navigate(path string) { f(path) }

// Client is the platform API client.
type Client struct {
	resty   *resty.Client
	limiter *rate.Limiter
	breaker *resilience.Breaker

	tokens         TokenSource
	onUnauthorized func(ctx context.Context) error
	navigator      Navigator

	logger  *zap.Logger
	metrics *monitoring.Metrics
}

// Option configures a Client.
type Option func(*Client)

// WithTokenSource sets where bearer tokens come from.
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) {
		c.tokens = ts
	}
}

// WithUnauthorizedHandler sets what runs when the API rejects the token.
func WithUnauthorizedHandler(fn func(ctx context.Context) error) Option {
	return func(c *Client) {
		c.onUnauthorized = fn
	}
}

// WithSession reads the token from the current session and clears the
// session's auth keys when the token is rejected.
func WithSession(m *session.Manager) Option {
	return func(c *Client) {
		c.tokens = TokenSourceFunc(func(ctx context.Context) (string, error) {
			token, _, err := m.Storage().Get(ctx, session.KeyAuthToken)
			return token, err
		})
		c.onUnauthorized = m.ClearAuthData
	}
}

// WithNavigator sets the navigator used after a rejected token.
func WithNavigator(n Navigator) Option {
	return func(c *Client) {
		c.navigator = n
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithMetrics enables metrics collection.
func WithMetrics(metrics *monitoring.Metrics) Option {
	return func(c *Client) {
		c.metrics = metrics
	}
}

// New builds a client. Zero config fields fall back to DefaultConfig.
func New(cfg Config, opts ...Option) *Client {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.RetryWaitMin == 0 {
		cfg.RetryWaitMin = def.RetryWaitMin
	}
	if cfg.RetryWaitMax == 0 {
		cfg.RetryWaitMax = def.RetryWaitMax
	}

	c := &Client{
		limiter: rate.NewLimiter(rate.Inf, 0),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if cfg.RateLimitRPS > 0 {
		burst := int(cfg.RateLimitRPS)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), burst)
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = cfg.MaxRetries
	retryClient.RetryWaitMin = cfg.RetryWaitMin
	retryClient.RetryWaitMax = cfg.RetryWaitMax
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler
	retryClient.Logger = nil

	c.resty = resty.NewWithClient(retryClient.StandardClient()).
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetJSONMarshaler(sonic.Marshal).
		SetJSONUnmarshaler(sonic.Unmarshal).
		OnBeforeRequest(c.attachToken).
		OnAfterResponse(c.checkUnauthorized)

	c.breaker = resilience.New("school-api", resilience.Settings{
		MaxRequests: 2,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				return !apiErr.Temporary()
			}
			return err == nil
		},
		OnStateChange: func(name string, from, to resilience.State) {
			c.logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.Stringer("from", from),
				zap.Stringer("to", to))
		},
	})
	return c
}

// BreakerState returns the circuit breaker state.
func (c *Client) BreakerState() resilience.State {
	return c.breaker.State()
}

func (c *Client) attachToken(_ *resty.Client, r *resty.Request) error {
	if c.tokens == nil {
		return nil
	}
	token, err := c.tokens.Token(r.Context())
	if err != nil {
		c.logger.Warn("Failed to read auth token", zap.Error(err))
		return nil
	}
	if token != "" {
		r.SetAuthToken(token)
	}
	return nil
}

func (c *Client) checkUnauthorized(_ *resty.Client, resp *resty.Response) error {
	if resp.StatusCode() != http.StatusUnauthorized || strings.Contains(resp.Request.URL, loginPath) {
		return nil
	}

	c.logger.Info("Token rejected, signing out", zap.String("url", resp.Request.URL))
	if c.onUnauthorized != nil {
		if err := c.onUnauthorized(resp.Request.Context()); err != nil {
			c.logger.Error("Failed to clear session after 401", zap.Error(err))
		}
	}
	if c.navigator != nil {
		c.navigator.Navigate("/")
	}
	return nil
}

// do sends a JSON request and decodes a JSON response into out when non-nil.
func (c *Client) do(ctx context.Context, name, method, path string, body, out any) error {
	timer := monitoring.NewTimer(c.metrics, "api", name)

	if err := c.limiter.Wait(ctx); err != nil {
		timer.Stop("rate_limited")
		return fmt.Errorf("rate limit error: %w", err)
	}

	var resp *resty.Response
	err := c.breaker.Execute(func() error {
		req := c.resty.R().SetContext(ctx)
		if body != nil {
			req.SetBody(body)
		}

		var err error
		resp, err = req.Execute(method, path)
		if err != nil {
			return fmt.Errorf("%s %s: %w", method, path, err)
		}
		if resp.IsError() {
			return &APIError{Method: method, Path: path, Status: resp.StatusCode(), Body: resp.Body()}
		}
		return nil
	})
	if err != nil {
		timer.Stop("error")
		if c.metrics != nil {
			c.metrics.RecordServiceError("api", name, errorType(err))
		}
		return err
	}
	timer.Stop("success")

	if out == nil || len(resp.Body()) == 0 {
		return nil
	}
	if err := sonic.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("failed to decode %s %s: %w", method, path, err)
	}
	return nil
}

func errorType(err error) string {
	var apiErr *APIError
	switch {
	case errors.As(err, &apiErr):
		return fmt.Sprintf("http_%d", apiErr.Status)
	case errors.Is(err, resilience.ErrCircuitOpen), errors.Is(err, resilience.ErrTooManyRequests):
		return "circuit_open"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "transport"
	}
}

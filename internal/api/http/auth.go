package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/TabSessions/backend/internal/auth"
	"github.com/GriffinCanCode/TabSessions/backend/internal/client"
	"github.com/GriffinCanCode/TabSessions/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/TabSessions/backend/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/TabSessions/backend/internal/shared/validate"
)

// LoginRequest carries platform credentials.
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// PasswordRequest carries an activation token and the new password.
type PasswordRequest struct {
	Token        string `json:"token" binding:"required"`
	Password     string `json:"password" binding:"required"`
	Confirmation string `json:"confirmation" binding:"required"`
}

// WithAuthenticator enables the sign-in endpoints.
func WithAuthenticator(api auth.Authenticator) Option {
	return func(h *Handlers) {
		h.api = api
	}
}

// SignIn logs the tab in through the platform API.
func (h *Handlers) SignIn(c *gin.Context) {
	if h.api == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "platform API not configured"})
		return
	}
	var req LoginRequest
	if err := bindJSON(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email and password are required"})
		return
	}
	if err := validate.Email(req.Email); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := validate.Password(req.Password); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	timer := monitoring.NewTimer(h.metrics, service, "sign_in")
	res, err := h.tab.Auth().SignIn(c.Request.Context(), h.api, req.Email, req.Password)
	if err != nil {
		timer.Stop("error")
		h.authFailure(c, err)
		return
	}
	timer.Stop("success")
	h.authResult(c, res)
}

// ChangePassword completes a first sign-in that required a new password.
func (h *Handlers) ChangePassword(c *gin.Context) {
	if h.api == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "platform API not configured"})
		return
	}
	var req PasswordRequest
	if err := bindJSON(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "token, password and confirmation are required"})
		return
	}

	res, err := h.tab.Auth().ChangePassword(c.Request.Context(), h.api, req.Token, req.Password, req.Confirmation)
	if err != nil {
		h.authFailure(c, err)
		return
	}
	h.authResult(c, res)
}

// SignOut clears the tab's session.
func (h *Handlers) SignOut(c *gin.Context) {
	ok := h.tab.Auth().Logout(c.Request.Context())
	status := http.StatusOK
	if !ok {
		status = http.StatusInternalServerError
	}
	c.JSON(status, gin.H{
		"success": ok,
		"state":   h.tab.Auth().State(),
	})
}

func (h *Handlers) authResult(c *gin.Context, res *client.AuthResult) {
	body := gin.H{
		"statut": res.Statut,
		"state":  h.tab.Auth().State(),
	}
	if res.RequiresPasswordChange() {
		body["activationToken"] = res.Token
		body["message"] = res.Message
	} else {
		body["redirect"] = h.tab.Auth().DashboardPath()
	}
	c.JSON(http.StatusOK, body)
}

func (h *Handlers) authFailure(c *gin.Context, err error) {
	var apiErr *client.APIError
	switch {
	case errors.As(err, &apiErr):
		status := apiErr.Status
		if apiErr.Temporary() || status < http.StatusBadRequest {
			status = http.StatusBadGateway
		}
		c.JSON(status, gin.H{"error": apiErr.Message()})
	case errors.Is(err, resilience.ErrCircuitOpen), errors.Is(err, resilience.ErrTooManyRequests):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": h.tab.Auth().State().Error})
	default:
		h.fail(c, http.StatusInternalServerError, h.tab.Auth().State().Error, err)
	}
}

package client

import (
	"context"
	"fmt"
	"net/http"

	"github.com/GriffinCanCode/TabSessions/backend/internal/session"
)

// LoginStatus is the outcome reported by the login endpoint.
type LoginStatus string

const (
	StatusSuccess                LoginStatus = "SUCCESS"
	StatusPasswordChangeRequired LoginStatus = "CHANGEMENT_MOT_DE_PASSE_REQUIS"
)

// AuthResult is the body returned by login and password change.
// When a password change is required, Token is a one-time activation token
// rather than a JWT.
type AuthResult struct {
	Statut      LoginStatus  `json:"statut"`
	Message     string       `json:"message,omitempty"`
	Token       string       `json:"token"`
	Utilisateur session.User `json:"utilisateur"`
}

// RequiresPasswordChange reports whether the user must set a new password first.
func (r *AuthResult) RequiresPasswordChange() bool {
	return r.Statut == StatusPasswordChangeRequired
}

type loginRequest struct {
	Email      string `json:"email"`
	MotDePasse string `json:"mot_de_passe"`
}

type changePasswordRequest struct {
	Token        string `json:"token"`
	Nouveau      string `json:"nouveau_mot_de_passe"`
	Confirmation string `json:"confirmation_mot_de_passe"`
}

// Login exchanges credentials for a token.
func (c *Client) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	var res AuthResult
	err := c.do(ctx, "login", http.MethodPost, loginPath, loginRequest{Email: email, MotDePasse: password}, &res)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// ChangePassword replaces a temporary password using the activation token
// returned by Login.
func (c *Client) ChangePassword(ctx context.Context, token, password, confirmation string) (*AuthResult, error) {
	var res AuthResult
	body := changePasswordRequest{Token: token, Nouveau: password, Confirmation: confirmation}
	if err := c.do(ctx, "change_password", http.MethodPost, "/api/auth/changer-mot-de-passe", body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Dashboard fetches the dashboard payload of role.
func (c *Client) Dashboard(ctx context.Context, role session.Role) (map[string]any, error) {
	var segment string
	switch role {
	case session.RoleDE:
		segment = "de"
	case session.RoleFormateur:
		segment = "formateur"
	case session.RoleEtudiant:
		segment = "etudiant"
	default:
		return nil, fmt.Errorf("no dashboard for role %q", role)
	}

	var out map[string]any
	if err := c.do(ctx, "dashboard", http.MethodGet, "/api/dashboard/"+segment, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

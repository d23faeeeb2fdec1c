package client

import (
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
)

const defaultErrorMessage = "Impossible de se connecter. Veuillez réessayer."

// APIError is a non-2xx response from the platform API.
type APIError struct {
	Method string
	Path   string
	Status int
	Body   []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.Status)
}

// Unauthorized reports whether the API rejected the credentials or token.
func (e *APIError) Unauthorized() bool {
	return e.Status == 401
}

// Temporary reports whether the failure is on the server side.
func (e *APIError) Temporary() bool {
	return e.Status >= 500 || e.Status == 429
}

// Message turns the response detail into a message fit for the login form.
func (e *APIError) Message() string {
	var body struct {
		Detail any `json:"detail"`
	}
	if err := sonic.Unmarshal(e.Body, &body); err != nil {
		return defaultErrorMessage
	}

	switch detail := body.Detail.(type) {
	case []any:
		return "Veuillez vérifier les informations saisies."
	case string:
		switch {
		case strings.Contains(detail, "Incorrect email or password"):
			return "Email ou mot de passe incorrect."
		case strings.Contains(detail, "User not found"):
			return "Utilisateur inconnu."
		case detail != "":
			return detail
		}
	case map[string]any:
		if msg, ok := detail["message"].(string); ok && msg != "" {
			return msg
		}
	}
	return defaultErrorMessage
}

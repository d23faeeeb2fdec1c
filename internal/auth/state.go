package auth

import "github.com/GriffinCanCode/TabSessions/backend/internal/session"

// State is the authentication state of one tab.
// Transitions return a new value and never modify the receiver.
type State struct {
	IsAuthenticated bool          `json:"isAuthenticated"`
	User            *session.User `json:"user"`
	Token           string        `json:"-"`
	SessionID       session.ID    `json:"sessionId,omitempty"`
	IsLoading       bool          `json:"isLoading"`
	Error           string        `json:"error,omitempty"`
	IsInitialized   bool          `json:"isInitialized"`
}

// Initial is the state before Init has run.
func Initial() State {
	return State{IsLoading: true}
}

// Initialize records the outcome of loading the session at startup.
func (s State) Initialize(data *session.AuthData, id session.ID) State {
	s.IsAuthenticated = data != nil
	s.User, s.Token = nil, ""
	if data != nil {
		s.User = copyUser(data.User)
		s.Token = data.Token
	}
	s.SessionID = id
	s.IsLoading = false
	s.IsInitialized = true
	s.Error = ""
	return s
}

// LoginSuccess records a successful login.
func (s State) LoginSuccess(token string, user session.User, id session.ID) State {
	s.IsAuthenticated = true
	s.User = copyUser(user)
	s.Token = token
	s.SessionID = id
	s.IsLoading = false
	s.Error = ""
	return s
}

// Logout drops the credentials. The session id stays: it identifies the tab.
func (s State) Logout() State {
	s.IsAuthenticated = false
	s.User = nil
	s.Token = ""
	s.IsLoading = false
	s.Error = ""
	return s
}

// UpdateUser merges patch into the current user.
func (s State) UpdateUser(patch session.User) State {
	var base session.User
	if s.User != nil {
		base = *s.User
	}
	s.User = copyUser(base.Merge(patch))
	return s
}

// SetLoading sets the loading flag.
func (s State) SetLoading(loading bool) State {
	s.IsLoading = loading
	return s
}

// SetError records msg and stops loading.
func (s State) SetError(msg string) State {
	s.Error = msg
	s.IsLoading = false
	return s
}

// ClearError drops the error message.
func (s State) ClearError() State {
	s.Error = ""
	return s
}

// Role returns the role of the current user, or "" when there is none.
func (s State) Role() session.Role {
	if s.User == nil {
		return ""
	}
	return s.User.Role
}

func copyUser(u session.User) *session.User {
	return &u
}

package session

import (
	"github.com/bytedance/sonic"
)

// Role is the platform role of an authenticated user.
type Role string

const (
	RoleDE        Role = "DE"
	RoleFormateur Role = "FORMATEUR"
	RoleEtudiant  Role = "ETUDIANT"
)

// DashboardPath maps a role to its landing page. Unknown roles land on "/".
func DashboardPath(role Role) string {
	switch role {
	case RoleDE:
		return "/dashboard/de"
	case RoleFormateur:
		return "/dashboard/formateur"
	case RoleEtudiant:
		return "/dashboard/etudiant"
	default:
		return "/"
	}
}

// User is the profile stored alongside a session token.
// Attributes other than the named ones are kept in Extra and survive a round trip.
//
// Extra holds decoded JSON values: string, float64, bool, nil, []any and
// map[string]any. A stored user reads back deeply equal only when its Extra
// values already have those types; an int, for instance, comes back as float64.
type User struct {
	Identifiant string
	Nom         string
	Prenom      string
	Role        Role
	Email       string
	Extra       map[string]any
}

var userFields = []string{"identifiant", "nom", "prenom", "role", "email"}

func (u User) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(u.Extra)+len(userFields))
	for k, v := range u.Extra {
		m[k] = v
	}
	for _, f := range []struct {
		key string
		val string
	}{
		{"identifiant", u.Identifiant},
		{"nom", u.Nom},
		{"prenom", u.Prenom},
		{"role", string(u.Role)},
		{"email", u.Email},
	} {
		if f.val != "" {
			m[f.key] = f.val
		}
	}
	return sonic.Marshal(m)
}

func (u *User) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := sonic.Unmarshal(data, &m); err != nil {
		return err
	}

	take := func(key string) string {
		s, ok := m[key].(string)
		if !ok {
			return ""
		}
		delete(m, key)
		return s
	}

	*u = User{
		Identifiant: take("identifiant"),
		Nom:         take("nom"),
		Prenom:      take("prenom"),
		Role:        Role(take("role")),
		Email:       take("email"),
	}
	if len(m) > 0 {
		u.Extra = m
	}
	return nil
}

// Merge returns u with the non-empty fields of patch applied on top.
func (u User) Merge(patch User) User {
	out := u
	if patch.Identifiant != "" {
		out.Identifiant = patch.Identifiant
	}
	if patch.Nom != "" {
		out.Nom = patch.Nom
	}
	if patch.Prenom != "" {
		out.Prenom = patch.Prenom
	}
	if patch.Role != "" {
		out.Role = patch.Role
	}
	if patch.Email != "" {
		out.Email = patch.Email
	}
	if len(u.Extra) > 0 || len(patch.Extra) > 0 {
		out.Extra = make(map[string]any, len(u.Extra)+len(patch.Extra))
		for k, v := range u.Extra {
			out.Extra[k] = v
		}
		for k, v := range patch.Extra {
			out.Extra[k] = v
		}
	}
	return out
}

// FullName returns "Prenom Nom" trimmed of missing parts.
func (u User) FullName() string {
	switch {
	case u.Prenom == "":
		return u.Nom
	case u.Nom == "":
		return u.Prenom
	default:
		return u.Prenom + " " + u.Nom
	}
}

// UserSummary is the subset of a profile exposed in statistics.
type UserSummary struct {
	Nom    string `json:"nom,omitempty"`
	Prenom string `json:"prenom,omitempty"`
	Role   Role   `json:"role,omitempty"`
	Email  string `json:"email,omitempty"`
}

// Summary returns the statistics view of u.
func (u User) Summary() *UserSummary {
	return &UserSummary{Nom: u.Nom, Prenom: u.Prenom, Role: u.Role, Email: u.Email}
}

func parseUser(raw string) (User, error) {
	var u User
	err := sonic.UnmarshalString(raw, &u)
	return u, err
}

func encodeUser(u User) (string, error) {
	return sonic.MarshalString(u)
}

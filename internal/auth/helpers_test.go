package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/TabSessions/backend/internal/client"
	"github.com/GriffinCanCode/TabSessions/backend/internal/kv"
	"github.com/GriffinCanCode/TabSessions/backend/internal/session"
)

var errStoreDown = errors.New("store down")

// flakyStore fails the selected operations of an in-memory store.
type flakyStore struct {
	*kv.Memory
	failGet bool
	failSet bool
}

func (s *flakyStore) Get(ctx context.Context, key string) (string, bool, error) {
	if s.failGet {
		return "", false, errStoreDown
	}
	return s.Memory.Get(ctx, key)
}

func (s *flakyStore) Set(ctx context.Context, key, value string) error {
	if s.failSet {
		return errStoreDown
	}
	return s.Memory.Set(ctx, key, value)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newManager(t *testing.T, persistent, tab kv.Store) *session.Manager {
	t.Helper()
	m, err := session.NewManager(context.Background(), persistent, tab)
	require.NoError(t, err)
	return m
}

func newContext(t *testing.T, opts ...Option) (*Context, *kv.Memory) {
	t.Helper()
	persistent := kv.NewMemory()
	return New(newManager(t, persistent, kv.NewMemory()), opts...), persistent
}

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"identifiant": "7",
		"exp":         exp.Unix(),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

var formateur = session.User{
	Identifiant: "7",
	Nom:         "Ndiaye",
	Prenom:      "Awa",
	Role:        session.RoleFormateur,
	Email:       "awa@ecole.sn",
}

// fakeAPI answers Login and ChangePassword with canned results.
type fakeAPI struct {
	login    *client.AuthResult
	change   *client.AuthResult
	err      error
	received []string
}

func (f *fakeAPI) Login(_ context.Context, email, password string) (*client.AuthResult, error) {
	f.received = append(f.received, email, password)
	return f.login, f.err
}

func (f *fakeAPI) ChangePassword(_ context.Context, token, password, confirmation string) (*client.AuthResult, error) {
	f.received = append(f.received, token, password, confirmation)
	return f.change, f.err
}

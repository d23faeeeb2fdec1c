package client

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sign(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func TestTokenExpiry(t *testing.T) {
	exp := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	got, ok := TokenExpiry(sign(t, jwt.MapClaims{"sub": "7", "exp": exp.Unix()}))
	require.True(t, ok)
	assert.True(t, exp.Equal(got))

	_, ok = TokenExpiry(sign(t, jwt.MapClaims{"sub": "7"}))
	assert.False(t, ok)

	_, ok = TokenExpiry("opaque-activation-token")
	assert.False(t, ok)
}

func TestTokenExpired(t *testing.T) {
	exp := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	token := sign(t, jwt.MapClaims{"exp": exp.Unix()})

	assert.False(t, TokenExpired(token, exp.Add(-time.Minute)))
	assert.True(t, TokenExpired(token, exp))
	assert.False(t, TokenExpired("opaque", exp))
}

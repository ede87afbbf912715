package shared

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSRFManager_RoundTrip(t *testing.T) {
	m := NewCSRFManager("secret")

	token := m.TokenFor("session-a")
	require.NotEmpty(t, token)
	assert.NoError(t, m.Verify("session-a", token))
}

func TestCSRFManager_TokenBoundToSession(t *testing.T) {
	m := NewCSRFManager("secret")

	token := m.TokenFor("session-a")
	assert.ErrorIs(t, m.Verify("session-b", token), ErrCSRFTokenMismatch)
}

func TestCSRFManager_MissingToken(t *testing.T) {
	m := NewCSRFManager("secret")

	assert.ErrorIs(t, m.Verify("session-a", ""), ErrCSRFTokenMissing)
}

func TestCSRFManager_SecretMatters(t *testing.T) {
	token := NewCSRFManager("secret-1").TokenFor("session-a")
	assert.ErrorIs(t, NewCSRFManager("secret-2").Verify("session-a", token), ErrCSRFTokenMismatch)
}

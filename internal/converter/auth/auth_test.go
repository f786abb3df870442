package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAuthenticator(t *testing.T) *Authenticator {
	t.Helper()

	users, err := ParseUsers([]string{"admin:s3cret:Admin", "guest:pa:ss:Guest"})
	require.NoError(t, err)

	a, err := NewAuthenticator("test-secret", "currency-converter", time.Hour, users)
	require.NoError(t, err)

	return a
}

func TestParseUsers(t *testing.T) {
	tests := []struct {
		name    string
		entries []string
		wantErr bool
	}{
		{name: "valid", entries: []string{"admin:pw:Admin", "guest:pw:Guest"}},
		{name: "missing role", entries: []string{"admin:pw"}, wantErr: true},
		{name: "empty password", entries: []string{"admin::Admin"}, wantErr: true},
		{name: "unknown role", entries: []string{"admin:pw:Root"}, wantErr: true},
		{name: "duplicate", entries: []string{"admin:pw:Admin", "ADMIN:pw:Guest"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			users, err := ParseUsers(tt.entries)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, users, len(tt.entries))
		})
	}
}

func TestAuthenticate(t *testing.T) {
	a := newTestAuthenticator(t)

	u, err := a.Authenticate("ADMIN", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, u.Role)

	u, err = a.Authenticate("guest", "pa:ss")
	require.NoError(t, err)
	assert.Equal(t, RoleGuest, u.Role)

	_, err = a.Authenticate("admin", "S3CRET")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = a.Authenticate("nobody", "s3cret")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestToken_RoundTrip(t *testing.T) {
	a := newTestAuthenticator(t)
	u, err := a.Authenticate("admin", "s3cret")
	require.NoError(t, err)

	token, err := a.GenerateToken(u, "client-1")
	require.NoError(t, err)

	claims, err := a.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, claims.Role)
	assert.Equal(t, "client-1", claims.ClientID)
	assert.Equal(t, "admin", claims.Subject)
	assert.NotEmpty(t, claims.ID)
}

func TestParseToken_Expired(t *testing.T) {
	a := newTestAuthenticator(t)
	u, err := a.Authenticate("admin", "s3cret")
	require.NoError(t, err)

	issued := time.Now().Add(-2 * time.Hour)
	a.now = func() time.Time { return issued }
	token, err := a.GenerateToken(u, "")
	require.NoError(t, err)

	a.now = time.Now
	_, err = a.ParseToken(token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestParseToken_Rejects(t *testing.T) {
	a := newTestAuthenticator(t)
	u, err := a.Authenticate("admin", "s3cret")
	require.NoError(t, err)
	token, err := a.GenerateToken(u, "")
	require.NoError(t, err)

	other, err := NewAuthenticator("other-secret", "currency-converter", time.Hour, nil)
	require.NoError(t, err)
	_, err = other.ParseToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = a.ParseToken("garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{Role: RoleAdmin}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = a.ParseToken(none)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

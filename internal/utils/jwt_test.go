package utils

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenIssuer_RoundTrip(t *testing.T) {
	iss := NewTokenIssuer("secret", 0)
	tok, err := iss.Issue("000000000007")
	require.NoError(t, err)

	id, err := iss.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, "000000000007", id)

	claims := &SessionClaims{}
	_, _, err = jwt.NewParser().ParseUnverified(tok, claims)
	require.NoError(t, err)
	assert.Equal(t, "000000000007", claims.Subject)
	assert.Equal(t, DefaultTokenTTL, claims.ExpiresAt.Sub(claims.IssuedAt.Time))
}

func TestTokenIssuer_Rejects(t *testing.T) {
	iss := NewTokenIssuer("secret", time.Hour)
	good, err := iss.Issue("000000000001")
	require.NoError(t, err)

	past := time.Now().Add(-2 * time.Hour)
	expired, err := NewTokenIssuer("secret", time.Hour).WithClock(func() time.Time { return past }).Issue("000000000001")
	require.NoError(t, err)

	otherKey, err := NewTokenIssuer("other", time.Hour).Issue("000000000001")
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"userId": "000000000001",
		"exp":    time.Now().Add(time.Hour).Unix(),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{name: "expired", token: expired},
		{name: "bad signature", token: otherKey},
		{name: "alg none", token: none},
		{name: "malformed", token: "not-a-jwt"},
		{name: "truncated", token: good[:len(good)-4]},
		{name: "empty", token: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := iss.Verify(tt.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestTokenIssuer_EmptyUser(t *testing.T) {
	_, err := NewTokenIssuer("secret", 0).Issue("")
	assert.Error(t, err)
}

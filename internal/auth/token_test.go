package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndValidate(t *testing.T) {
	issuer := NewTokenIssuer("secret", 24*time.Hour)

	token, expiresAt, err := issuer.Issue(42, "mingus")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), expiresAt, time.Minute)

	claims, err := issuer.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.UserID)
	assert.Equal(t, "mingus", claims.Username)
	assert.NotEmpty(t, claims.ID)
}

func TestValidateRejects(t *testing.T) {
	issuer := NewTokenIssuer("secret", time.Hour)

	t.Run("wrong secret", func(t *testing.T) {
		token, _, err := NewTokenIssuer("other", time.Hour).Issue(1, "a")
		require.NoError(t, err)
		_, err = issuer.Validate(token)
		assert.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)
	})

	t.Run("expired", func(t *testing.T) {
		old := NewTokenIssuer("secret", time.Hour)
		old.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
		token, _, err := old.Issue(1, "a")
		require.NoError(t, err)
		_, err = issuer.Validate(token)
		assert.ErrorIs(t, err, jwt.ErrTokenExpired)
	})

	t.Run("none algorithm", func(t *testing.T) {
		token, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: 1}).
			SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = issuer.Validate(token)
		assert.Error(t, err)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := issuer.Validate("not-a-token")
		assert.Error(t, err)
	})
}

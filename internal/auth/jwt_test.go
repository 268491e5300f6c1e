package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cidadeplus/backend/internal/models"
)

func TestJWTService_RoundTrip(t *testing.T) {
	svc := NewJWTService("test-secret", 1)
	home := uuid.New()
	user := &models.User{ID: uuid.New(), Email: "mod@tijucas.sc.gov.br", Role: models.RoleModerator, HomeCityID: &home}

	token, err := svc.Generate(user)
	require.NoError(t, err)

	claims, err := svc.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, models.RoleModerator, claims.Role)
	require.NotNil(t, claims.HomeCityID)
	assert.Equal(t, home, *claims.HomeCityID)
}

func TestJWTService_GlobalStaffHasNoHomeCity(t *testing.T) {
	svc := NewJWTService("test-secret", 1)
	token, err := svc.Generate(&models.User{ID: uuid.New(), Role: models.RoleAdmin})
	require.NoError(t, err)

	claims, err := svc.Validate(token)
	require.NoError(t, err)
	assert.Nil(t, claims.HomeCityID)
}

func TestJWTService_Rejects(t *testing.T) {
	svc := NewJWTService("test-secret", 1)
	user := &models.User{ID: uuid.New(), Role: models.RoleAdmin}

	t.Run("wrong secret", func(t *testing.T) {
		token, err := NewJWTService("other-secret", 1).Generate(user)
		require.NoError(t, err)
		_, err = svc.Validate(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		old := NewJWTService("test-secret", 1)
		old.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
		token, err := old.Generate(user)
		require.NoError(t, err)
		_, err = svc.Validate(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("none algorithm", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: user.ID, RegisteredClaims: jwt.RegisteredClaims{Issuer: issuer}})
		s, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = svc.Validate(s)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := svc.Validate("not-a-token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestCheckPassword(t *testing.T) {
	hash, err := HashPassword("s3cret-pass")
	require.NoError(t, err)

	assert.True(t, CheckPassword("s3cret-pass", hash))
	assert.False(t, CheckPassword("wrong", hash))
	assert.False(t, CheckPassword("s3cret-pass", ""))
}

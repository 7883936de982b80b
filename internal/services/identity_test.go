package services

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/localnerve/datashare/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestJWTValidator(t *testing.T) {
	v := NewJWTValidator([]byte("secret"), "datashare")
	ctx := context.Background()

	token, err := v.Sign(Identity{UserID: "u-1", Email: "u@example.org", Roles: []string{"user"}}, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	require.NoError(t, err)

	id, err := v.Validate(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", id.UserID)
	assert.Equal(t, "u@example.org", id.Email)
	assert.Equal(t, []string{"user"}, id.Roles)

	_, err = NewJWTValidator([]byte("other"), "datashare").Validate(ctx, token)
	assert.Error(t, err)

	_, err = NewJWTValidator([]byte("secret"), "elsewhere").Validate(ctx, token)
	assert.Error(t, err)

	expired, err := v.Sign(Identity{UserID: "u-1"}, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	})
	require.NoError(t, err)
	_, err = v.Validate(ctx, expired)
	assert.Error(t, err)

	_, err = v.Validate(ctx, "not-a-token")
	assert.Error(t, err)
}

func TestJWTValidatorRequiresSubject(t *testing.T) {
	v := NewJWTValidator([]byte("secret"), "")
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{}).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = v.Validate(context.Background(), token)
	assert.Error(t, err)
}

func TestNewIdentityValidator(t *testing.T) {
	v, err := NewIdentityValidator(&config.Config{AuthMode: config.AuthModeJWT, JWTSecret: "s"}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &JWTValidator{}, v)

	_, err = NewIdentityValidator(&config.Config{AuthMode: "basic"}, zap.NewNop())
	assert.Error(t, err)
}

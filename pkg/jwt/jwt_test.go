package jwt

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidateToken(t *testing.T) {
	service := NewService("test-secret", 15*time.Minute, 24*time.Hour)
	userID := uuid.New()

	token, err := service.GenerateAccessToken(userID, "alice")
	require.NoError(t, err)

	claims, err := service.ValidateToken(token)
	require.NoError(t, err)

	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, "alice", claims.Username)
}

func TestValidateTokenWrongSecret(t *testing.T) {
	issuer := NewService("secret-a", 15*time.Minute, 24*time.Hour)
	verifier := NewService("secret-b", 15*time.Minute, 24*time.Hour)

	token, err := issuer.GenerateAccessToken(uuid.New(), "alice")
	require.NoError(t, err)

	_, err = verifier.ValidateToken(token)
	assert.Error(t, err)
}

func TestValidateExpiredToken(t *testing.T) {
	service := NewService("test-secret", -time.Minute, 24*time.Hour)

	token, err := service.GenerateAccessToken(uuid.New(), "alice")
	require.NoError(t, err)

	_, err = service.ValidateToken(token)
	assert.Error(t, err)
}

func TestValidateGarbageToken(t *testing.T) {
	service := NewService("test-secret", 15*time.Minute, 24*time.Hour)

	_, err := service.ValidateToken("not.a.token")
	assert.Error(t, err)
}

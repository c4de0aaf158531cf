package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var secret = []byte("test-secret")

func TestGenerateAndVerify(t *testing.T) {
	token, err := GenerateToken(secret, "ana-42", time.Hour)
	require.NoError(t, err)

	claims, err := ParseToken(secret, token)
	require.NoError(t, err)
	assert.Equal(t, "ana-42", claims.Room)
	assert.NotEmpty(t, claims.ID)

	assert.NoError(t, VerifyRoom(secret, token, "ana-42"))
	assert.ErrorIs(t, VerifyRoom(secret, token, "bo-7"), ErrRoomMismatch)
}

func TestParseTokenRejects(t *testing.T) {
	token, err := GenerateToken(secret, "room", time.Hour)
	require.NoError(t, err)

	_, err = ParseToken([]byte("other"), token)
	assert.Error(t, err)

	_, err = ParseToken(secret, token+"x")
	assert.Error(t, err)

	_, err = ParseToken(nil, token)
	assert.ErrorIs(t, err, ErrNoSecret)
}

func TestExpiredToken(t *testing.T) {
	claims := InviteClaims{
		Room: "room",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	require.NoError(t, err)

	_, err = ParseToken(secret, token)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestGenerateRequiresSecret(t *testing.T) {
	_, err := GenerateToken(nil, "room", 0)
	assert.ErrorIs(t, err, ErrNoSecret)
}

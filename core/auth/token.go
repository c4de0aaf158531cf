// Package auth signs and verifies party invite tokens.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultInviteTTL 邀请有效期
const DefaultInviteTTL = 24 * time.Hour

var (
	ErrNoSecret     = errors.New("invite secret not configured")
	ErrRoomMismatch = errors.New("invite token is for another room")
)

// InviteClaims 邀请 token 声明
type InviteClaims struct {
	Room string `json:"room"`
	jwt.RegisteredClaims
}

// GenerateToken signs an invite for room valid for ttl.
func GenerateToken(secret []byte, room string, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", ErrNoSecret
	}
	if ttl <= 0 {
		ttl = DefaultInviteTTL
	}
	now := time.Now()
	claims := InviteClaims{
		Room: room,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    "mtcplayer-relay",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign invite: %w", err)
	}
	return token, nil
}

// ParseToken verifies the signature and expiry of an invite token.
func ParseToken(secret []byte, tokenString string) (*InviteClaims, error) {
	if len(secret) == 0 {
		return nil, ErrNoSecret
	}
	claims := &InviteClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("invalid invite token: %w", err)
	}
	return claims, nil
}

// VerifyRoom parses tokenString and checks it was issued for room.
func VerifyRoom(secret []byte, tokenString, room string) error {
	claims, err := ParseToken(secret, tokenString)
	if err != nil {
		return err
	}
	if claims.Room != room {
		return ErrRoomMismatch
	}
	return nil
}

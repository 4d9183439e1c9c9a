package auth

import (
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/fairyhunter13/verisure-ledger-simulator/internal/model"
)

// ErrInvalidToken wraps every reason a session token fails to parse.
var ErrInvalidToken = errors.New("invalid session token")

// Claims is the identity carried by a session token.
type Claims struct {
	SessionID string
	Username  string
	Role      model.Role
}

type sessionClaims struct {
	Role      string `json:"role"`
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// TokenSigner signs and verifies HS256 session tokens.
type TokenSigner struct {
	secret []byte
}

// NewTokenSigner builds a signer from secret. An empty secret yields a random
// per-process key, so tokens do not survive a restart.
func NewTokenSigner(secret string) (*TokenSigner, error) {
	if secret != "" {
		return &TokenSigner{secret: []byte(secret)}, nil
	}
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate ephemeral jwt key: %w", err)
	}
	return &TokenSigner{secret: key}, nil
}

func (s *TokenSigner) Sign(sess Session) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, sessionClaims{
		Role:      string(sess.Identity.Role),
		SessionID: sess.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sess.Identity.Username,
			IssuedAt:  jwt.NewNumericDate(sess.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(sess.ExpiresAt),
		},
	})
	return token.SignedString(s.secret)
}

func (s *TokenSigner) Parse(raw string) (Claims, error) {
	parsed, err := jwt.ParseWithClaims(raw, &sessionClaims{}, func(token *jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	c, ok := parsed.Claims.(*sessionClaims)
	if !ok || !parsed.Valid || c.SessionID == "" {
		return Claims{}, ErrInvalidToken
	}
	return Claims{SessionID: c.SessionID, Username: c.Subject, Role: model.Role(c.Role)}, nil
}

// internal/token/token.go

// Package token issues and verifies the signed player credentials the game server accepts.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// MinSecretLen is the shortest HMAC-SHA256 key accepted (256 bits).
const MinSecretLen = 32

// ErrInvalid is the only verification failure callers see. The underlying
// reason stays in the wrapped chain for logging.
var ErrInvalid = errors.New("invalid token")

// Claims binds a player id to the token.
type Claims struct {
	PlayerID int64 `json:"playerId"`
	jwt.RegisteredClaims
}

// Service signs tokens with a shared secret. It has no side effects.
type Service struct {
	secret   []byte
	lifetime time.Duration
	now      func() time.Time
}

// Option customises a Service.
type Option func(*Service)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(secret string, lifetime time.Duration, opts ...Option) (*Service, error) {
	if len(secret) < MinSecretLen {
		return nil, fmt.Errorf("token secret must be at least %d bytes", MinSecretLen)
	}
	if lifetime <= 0 {
		return nil, errors.New("token lifetime must be positive")
	}
	s := &Service{secret: []byte(secret), lifetime: lifetime, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Issue creates an HS256 token for playerID expiring after the configured lifetime.
func (s *Service) Issue(playerID int64) (string, error) {
	now := s.now()
	claims := Claims{
		PlayerID: playerID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.lifetime)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify checks signature, structure and expiry and returns the embedded player id.
// Every failure wraps ErrInvalid; malformed input never panics.
func (s *Service) Verify(tokenString string) (int64, error) {
	var claims Claims
	t, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithStrictDecoding(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if !t.Valid {
		return 0, ErrInvalid
	}
	if claims.PlayerID <= 0 {
		return 0, fmt.Errorf("%w: missing playerId", ErrInvalid)
	}
	return claims.PlayerID, nil
}

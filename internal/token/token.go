// Package token issues and verifies the HS256 bearer tokens handed out by
// POST /jwt. The payload is whatever JSON object the caller supplied; the
// service only adds iat and exp.
package token

import (
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Lifetime is how long an issued token stays valid.
const Lifetime = time.Hour

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrEmptySecret  = errors.New("token secret is empty")
)

// Identity is the decoded payload of a verified token.
type Identity map[string]any

// Email returns the email claim if the payload carries one as a string.
func (id Identity) Email() (string, bool) {
	v, ok := id["email"].(string)
	return v, ok
}

type Service struct {
	secret []byte
	now    func() time.Time
}

func NewService(secret string) (*Service, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	return &Service{secret: []byte(secret), now: time.Now}, nil
}

// WithClock replaces the time source; used by tests to move past expiry.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Issue signs payload with a fresh iat and exp. Caller-supplied iat and exp
// claims are replaced, not rejected.
func (s *Service) Issue(payload map[string]any) (string, error) {
	now := s.now()
	claims := make(jwt.MapClaims, len(payload)+2)
	maps.Copy(claims, payload)
	claims["iat"] = now.Unix()
	claims["exp"] = now.Add(Lifetime).Unix()

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (s *Service) Verify(raw string) (Identity, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	return Identity(claims), nil
}

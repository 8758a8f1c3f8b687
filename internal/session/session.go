// Package session mints and verifies the browser-session bearer tokens used
// by the consent and developer dashboard endpoints. These are HS256 JWTs
// issued by the platform's login flow; OAuth access and refresh tokens are
// opaque and never pass through here.
package session

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/whatsyourinfo/oauth-service/internal/config"
)

// Claims carried by a session token.
type Claims struct {
	Username string `json:"username,omitempty"`
	jwt.RegisteredClaims
}

// Service signs and parses session tokens.
type Service struct {
	cfg    config.SessionConfig
	parser *jwt.Parser
}

// New constructs the session service.
func New(cfg config.SessionConfig) *Service {
	return &Service{
		cfg: cfg,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		),
	}
}

// Mint issues a session token for the given user.
func (s *Service) Mint(userID uuid.UUID, username string) (string, error) {
	now := time.Now().UTC()
	claims := &Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.TTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

// Parse validates a session token and returns the authenticated user id.
func (s *Service) Parse(tokenString string) (uuid.UUID, *Claims, error) {
	token, err := s.parser.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return []byte(s.cfg.Secret), nil
	})
	if err != nil {
		return uuid.Nil, nil, fmt.Errorf("parse session token: %w", err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return uuid.Nil, nil, fmt.Errorf("session token invalid")
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, nil, fmt.Errorf("session subject invalid: %w", err)
	}
	return userID, claims, nil
}

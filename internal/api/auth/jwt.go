// Package auth issues and validates the operator bearer tokens the Control
// Plane API requires on every mutating route.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Errors returned by Validate.
var (
	ErrInvalidToken        = errors.New("auth: invalid token")
	ErrExpiredToken        = errors.New("auth: token has expired")
	ErrNotOperator         = errors.New("auth: token does not carry the operator claim")
	ErrInvalidSecretLength = errors.New("auth: secret must be at least 32 characters")
)

// Claims is the single claim set this service issues: a subject plus the
// operator flag the Control Plane API gates every mutation on. There is no
// user/group/role hierarchy here — operating a Nexus is a single capability.
type Claims struct {
	jwt.RegisteredClaims
	Operator bool `json:"operator"`
}

// Config configures the Service.
type Config struct {
	// Secret is the HMAC signing key. Must be at least 32 characters.
	Secret string

	// Issuer is the token issuer claim. Default: "nexusd".
	Issuer string

	// TokenDuration is the issued token lifetime. Default: 1 hour.
	TokenDuration time.Duration
}

// Service issues and validates operator bearer tokens.
type Service struct {
	cfg Config
}

// NewService constructs a Service, applying defaults to unset Config fields.
func NewService(cfg Config) (*Service, error) {
	if len(cfg.Secret) < 32 {
		return nil, ErrInvalidSecretLength
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "nexusd"
	}
	if cfg.TokenDuration == 0 {
		cfg.TokenDuration = time.Hour
	}
	return &Service{cfg: cfg}, nil
}

// Issue mints an operator token for subject, valid for the configured
// TokenDuration. Nothing in nexusd or nexusctl calls it; nexusd itself
// never needs to mint tokens for a running server.
func (s *Service) Issue(subject string) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.TokenDuration)
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.cfg.Issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Operator: true,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.Secret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Validate parses and verifies tokenString, requiring the operator claim.
func (s *Service) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("auth: unexpected signing method %v", t.Header["alg"])
		}
		return []byte(s.cfg.Secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if !claims.Operator {
		return nil, ErrNotOperator
	}
	return claims, nil
}

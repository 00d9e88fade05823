// Package auth issues and verifies operator tokens.
package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrInvalidToken is returned for any token that fails verification.
	ErrInvalidToken = errors.New("invalid operator token")

	// ErrTokenExpired is returned when the token is past its expiry.
	ErrTokenExpired = errors.New("operator token has expired")

	// ErrNoSecret is returned when tokens are requested without a signing key.
	ErrNoSecret = errors.New("operator token secret not configured")
)

// Claims identifies the operator acting on the API.
type Claims struct {
	Operator string `json:"operator"`
	jwt.RegisteredClaims
}

// OperatorTokens signs and validates HS256 operator tokens.
type OperatorTokens struct {
	signingKey []byte
	issuer     string
	ttl        time.Duration
	now        func() time.Time
}

// NewOperatorTokens returns a token service. An empty secret yields a
// service whose Issue and Verify always fail with ErrNoSecret.
func NewOperatorTokens(secret, issuer string, ttl time.Duration) *OperatorTokens {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &OperatorTokens{
		signingKey: []byte(secret),
		issuer:     issuer,
		ttl:        ttl,
		now:        time.Now,
	}
}

// Enabled reports whether a signing key is configured.
func (s *OperatorTokens) Enabled() bool {
	return s != nil && len(s.signingKey) > 0
}

// Issue creates a signed token for operator.
func (s *OperatorTokens) Issue(operator string) (string, error) {
	if !s.Enabled() {
		return "", ErrNoSecret
	}
	operator = strings.TrimSpace(operator)
	if operator == "" {
		return "", errors.New("operator is required")
	}

	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Operator: operator,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   operator,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			ID:        uuid.NewString(),
		},
	})
	return token.SignedString(s.signingKey)
}

// Verify validates tokenString and returns the operator it names.
func (s *OperatorTokens) Verify(tokenString string) (string, error) {
	if !s.Enabled() {
		return "", ErrNoSecret
	}

	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	},
		jwt.WithIssuer(s.issuer),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrTokenExpired
		}
		return "", ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return "", ErrInvalidToken
	}

	operator := claims.Operator
	if operator == "" {
		operator = claims.Subject
	}
	if strings.TrimSpace(operator) == "" {
		return "", ErrInvalidToken
	}
	return operator, nil
}

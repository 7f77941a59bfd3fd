// Package token mints and verifies the short-lived access tokens handed
// out after a successful password check. Tokens are stateless HS256 JWTs;
// expiry is the only revocation mechanism.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pagegate-org/pagegate/internal/faults"
)

// AccessClaims scope a token to one protected resource.
type AccessClaims struct {
	ResourceID uint   `json:"rid"`
	Slug       string `json:"slug"`
	jwt.RegisteredClaims
}

type Manager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewManager(secret string, ttl time.Duration) *Manager {
	return &Manager{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

func (m *Manager) Mint(resourceID uint, slug string) (string, error) {
	now := m.now()
	claims := AccessClaims{
		ResourceID: resourceID,
		Slug:       slug,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// Verify checks signature and expiry, then requires the slug claim to
// match the resource actually being served.
func (m *Manager) Verify(tokenString, slug string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithTimeFunc(m.now))
	if err != nil || !parsed.Valid {
		return nil, faults.ErrTokenInvalid
	}

	if claims.Slug != slug {
		return nil, faults.ErrTokenMismatch
	}
	return claims, nil
}

// IsMismatch distinguishes a wrong-resource token (403) from a broken or
// expired one (401).
func IsMismatch(err error) bool {
	return errors.Is(err, faults.ErrTokenMismatch)
}

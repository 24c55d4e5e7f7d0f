// Package gatewayauth issues and verifies the bearer tokens that gate a
// LAN-bound daemon's HTTP upgrade endpoint. A loopback bind needs no
// token (loopback implies trusted); "--bind lan" does, since any host
// on the network can otherwise reach the socket (spec.md §4.9).
package gatewayauth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrDisabled is returned when no secret is configured: the caller asked
// for a gate with nothing to gate with.
var ErrDisabled = errors.New("gatewayauth: no secret configured")

// ErrInvalidToken covers every token-shaped failure: bad signature,
// expired, wrong algorithm, or missing subject.
var ErrInvalidToken = errors.New("gatewayauth: invalid or expired token")

// Claims is the token payload. Subject identifies the bearer; this
// daemon has exactly one trusted caller per token, so Verify only
// requires Subject to be non-empty and never branches on its value.
type Claims struct {
	jwt.RegisteredClaims
}

// Issuer signs and verifies bearer tokens for one daemon instance.
type Issuer struct {
	secret []byte
	expiry time.Duration
}

// New builds an Issuer. secret must be non-empty; expiry <= 0 means
// tokens never expire.
func New(secret string, expiry time.Duration) *Issuer {
	return &Issuer{secret: []byte(secret), expiry: expiry}
}

// Issue signs a fresh token for subject (typically "cli" or a client
// identifier supplied at onboarding time).
func (i *Issuer) Issue(subject string) (string, error) {
	if len(i.secret) == 0 {
		return "", ErrDisabled
	}
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:  subject,
		IssuedAt: jwt.NewNumericDate(time.Now()),
	}}
	if i.expiry > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(i.expiry))
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.secret)
}

// Verify checks a bearer token's signature and expiry.
func (i *Issuer) Verify(token string) error {
	if len(i.secret) == 0 {
		return ErrDisabled
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return i.secret, nil
	})
	if err != nil || !parsed.Valid {
		return ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || strings.TrimSpace(claims.Subject) == "" {
		return ErrInvalidToken
	}
	return nil
}

// BearerFromHeader extracts the token from an "Authorization: Bearer
// <token>" header value, as received by the HTTP upgrade request.
func BearerFromHeader(header string) (string, bool) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if token == "" {
		return "", false
	}
	return token, true
}

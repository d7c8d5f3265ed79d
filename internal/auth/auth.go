// Package auth handles the credential presented at WebSocket handshake
// time. The server is the authority on token validity; the client only
// inspects the expiry claim locally so a stale token fails fast as an
// auth rejection instead of burning a dial.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrEmptyToken   = errors.New("empty auth token")
	ErrTokenExpired = errors.New("auth token expired")
)

// Credential wraps the bearer token handed to Connect.
type Credential struct {
	token string
}

// NewCredential creates a credential from a raw token string.
func NewCredential(token string) Credential {
	return Credential{token: token}
}

// Token returns the raw token for the handshake.
func (c Credential) Token() string {
	return c.token
}

// IsZero reports whether no token is set.
func (c Credential) IsZero() bool {
	return c.token == ""
}

// Check reports whether the credential is plausibly usable at the given
// time. JWT tokens are parsed unverified (signature verification is the
// server's job) and rejected when past their exp claim; opaque session
// tokens pass through untouched.
func (c Credential) Check(now time.Time) error {
	if c.token == "" {
		return ErrEmptyToken
	}

	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(c.token, &claims); err != nil {
		return nil
	}

	if claims.ExpiresAt != nil && now.After(claims.ExpiresAt.Time) {
		return fmt.Errorf("%w: expired %s ago",
			ErrTokenExpired, now.Sub(claims.ExpiresAt.Time).Round(time.Second))
	}

	return nil
}

// Subject returns the sub claim for JWT tokens, or "" for opaque
// tokens. Used as the viewer id fallback when the config leaves it
// unset.
func (c Credential) Subject() string {
	if c.token == "" {
		return ""
	}

	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(c.token, &claims); err != nil {
		return ""
	}
	return claims.Subject
}

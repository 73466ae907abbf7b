// Package session implements issuance, verification, and invalidation of
// signed session tokens.
package session

import (
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"

	apperrors "github.com/centrid/go-identity-server/internal/errors"
	"github.com/centrid/go-identity-server/token"
)

// Claim names of a session token beyond the registered JWT set.
const (
	ClaimUsername   = "username"
	ClaimAdmin      = "admin"
	ClaimSupervisor = "supervisor"
	ClaimSource     = "source"
	ClaimEndpoint   = "endpoint"
	ClaimTimeout    = "timeout"
	ClaimTenant     = "tenant"
)

// Session wraps a raw signed token together with its unsafely-decoded claims.
// Construction never proves authenticity; only Manager.Verify or a relying
// party's verifier does.
type Session struct {
	raw    string
	claims jwtlib.MapClaims
}

// Parse decodes a raw token without verifying its signature. It fails when
// the token cannot be decoded at all.
func Parse(raw string) (*Session, error) {
	if raw == "" {
		return nil, errors.Wrap(apperrors.ErrInvalidToken, "empty token")
	}
	claims, _, err := token.DecodeUnsafe(raw)
	if err != nil {
		return nil, err
	}
	return &Session{raw: raw, claims: claims}, nil
}

// Token returns the raw signed token.
func (s *Session) Token() string { return s.raw }

// ID returns the unique session identifier (jti).
func (s *Session) ID() string { return s.stringClaim("jti") }

// AccountID returns the authenticated account's primary key (sub).
func (s *Session) AccountID() string { return s.stringClaim("sub") }

// Username returns the account's login name.
func (s *Session) Username() string { return s.stringClaim(ClaimUsername) }

// Admin reports whether the account is an administrator.
func (s *Session) Admin() bool { return s.boolClaim(ClaimAdmin) }

// Supervisor reports whether the account is a supervisor.
func (s *Session) Supervisor() bool { return s.boolClaim(ClaimSupervisor) }

// Source returns the id of the session this one was derived from, or "".
// Invalidating the source session invalidates this one as well.
func (s *Session) Source() string { return s.stringClaim(ClaimSource) }

// Issuer returns the authority identity that signed the token.
func (s *Session) Issuer() string { return s.stringClaim("iss") }

// IssuedAt returns the issue time.
func (s *Session) IssuedAt() time.Time {
	return time.Unix(s.int64Claim("iat"), 0)
}

// Endpoint returns the client-type tag the session was issued for.
func (s *Session) Endpoint() string { return s.stringClaim(ClaimEndpoint) }

// Timeout returns the session's self-declared validity window.
func (s *Session) Timeout() time.Duration {
	return time.Duration(s.int64Claim(ClaimTimeout)) * time.Millisecond
}

// TenantCode returns the tenant the session belongs to. A session without a
// tenant is rejected before any cryptographic check.
func (s *Session) TenantCode() string { return s.stringClaim(ClaimTenant) }

// StringClaim returns a caller-supplied extension claim, or fallback when
// absent.
func (s *Session) StringClaim(name, fallback string) string {
	if v := s.stringClaim(name); v != "" {
		return v
	}
	return fallback
}

// BoolClaim returns a caller-supplied boolean extension claim.
func (s *Session) BoolClaim(name string, fallback bool) bool {
	if v, ok := s.claims[name].(bool); ok {
		return v
	}
	return fallback
}

// Int64Claim returns a caller-supplied integer extension claim.
func (s *Session) Int64Claim(name string, fallback int64) int64 {
	if _, ok := s.claims[name]; !ok {
		return fallback
	}
	return s.int64Claim(name)
}

func (s *Session) stringClaim(name string) string {
	v, _ := s.claims[name].(string)
	return v
}

func (s *Session) boolClaim(name string) bool {
	v, _ := s.claims[name].(bool)
	return v
}

func (s *Session) int64Claim(name string) int64 {
	switch v := s.claims[name].(type) {
	case int64:
		return v
	case float64:
		return int64(v)
	default:
		return 0
	}
}

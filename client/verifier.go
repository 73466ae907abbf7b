package client

import (
	"context"
	"crypto/rsa"
	"sync"

	"github.com/rs/zerolog/log"

	apperrors "github.com/centrid/go-identity-server/internal/errors"
	"github.com/centrid/go-identity-server/session"
	"github.com/centrid/go-identity-server/token"
)

// ErrAuthorityUnavailable reports that the authority could not be reached
// and no cached verdict existed.
var ErrAuthorityUnavailable = apperrors.ErrUnavailable

// Verifier validates session tokens on a resource server: signature checks
// run locally against the authority's public key, liveness is confirmed
// through the authority behind the verdict cache.
type Verifier struct {
	authority Authority
	cache     *Cache

	// failOpen accepts crypto-valid sessions when the authority is down and
	// no verdict is cached. Off by default.
	failOpen bool

	keyMu     sync.RWMutex
	publicKey *rsa.PublicKey
}

// VerifierOption configures a Verifier.
type VerifierOption func(*Verifier)

// WithFailOpen accepts signature-valid sessions while the authority is
// unreachable. The default rejects them.
func WithFailOpen() VerifierOption {
	return func(v *Verifier) {
		v.failOpen = true
	}
}

// WithPublicKey seeds the signing key so no fetch is needed on first use.
func WithPublicKey(key *rsa.PublicKey) VerifierOption {
	return func(v *Verifier) {
		v.publicKey = key
	}
}

// NewVerifier builds a verifier backed by the given authority and cache.
// The cache may be shared between verifiers.
func NewVerifier(authority Authority, cache *Cache, options ...VerifierOption) *Verifier {
	v := &Verifier{
		authority: authority,
		cache:     cache,
	}
	for _, opt := range options {
		opt(v)
	}
	return v
}

// Verify reports whether the raw token is a live session for the tenant.
// Malformed, cross-tenant, and badly signed tokens are rejected without
// touching the authority. A cached verdict is returned as-is; otherwise the
// authority decides and its answer is cached. When the authority is
// unreachable the error is ErrAuthorityUnavailable unless fail-open is set.
func (v *Verifier) Verify(ctx context.Context, tenant, raw string) (bool, error) {
	sess, err := session.Parse(raw)
	if err != nil {
		return false, nil
	}
	if sess.TenantCode() == "" || sess.TenantCode() != tenant {
		return false, nil
	}

	// Without the signing key no local check is possible, so even fail-open
	// rejects here.
	key, err := v.signingKey(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("session authority unreachable")
		return false, apperrors.Unavailable(err)
	}
	if _, err := token.Verify(raw, token.TypeSession, key); err != nil {
		return false, nil
	}

	if live, known := v.cache.Lookup(tenant, sess.ID()); known {
		return live, nil
	}

	live, err := v.authority.VerifySession(ctx, tenant, raw)
	if err != nil {
		return v.authorityDown(err)
	}
	v.cache.Record(tenant, sess.ID(), live)
	return live, nil
}

// Invalidate terminates the session at the authority and records the dead
// verdict locally so the rejection is immediate.
func (v *Verifier) Invalidate(ctx context.Context, tenant, raw string) error {
	sess, err := session.Parse(raw)
	if err != nil {
		return apperrors.BadRequest("malformed session token")
	}
	if err := v.authority.InvalidateSession(ctx, tenant, raw); err != nil {
		return apperrors.Unavailable(err)
	}
	v.cache.Record(tenant, sess.ID(), false)
	return nil
}

func (v *Verifier) authorityDown(err error) (bool, error) {
	log.Warn().Err(err).Msg("session authority unreachable")
	if v.failOpen {
		return true, nil
	}
	return false, apperrors.Unavailable(err)
}

// signingKey returns the cached public key, fetching it from the authority
// on first use.
func (v *Verifier) signingKey(ctx context.Context) (*rsa.PublicKey, error) {
	v.keyMu.RLock()
	key := v.publicKey
	v.keyMu.RUnlock()
	if key != nil {
		return key, nil
	}

	v.keyMu.Lock()
	defer v.keyMu.Unlock()
	if v.publicKey != nil {
		return v.publicKey, nil
	}
	fetched, err := v.authority.PublicKey(ctx)
	if err != nil {
		return nil, err
	}
	v.publicKey = fetched
	return fetched, nil
}

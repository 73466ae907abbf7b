package session

import (
	"context"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/centrid/go-identity-server/accounts"
	apperrors "github.com/centrid/go-identity-server/internal/errors"
	"github.com/centrid/go-identity-server/token"
)

// DefaultTimeout is applied when a login request does not declare a
// validity window.
const DefaultTimeout = 30 * time.Minute

// Manager issues, verifies, and invalidates session tokens on the authority
// side. Tokens are signed with the codec's private key; liveness is tracked
// in the registry.
type Manager struct {
	codec          *token.Codec
	registry       Registry
	issuer         string
	defaultTimeout time.Duration
	nowFunc        func() time.Time
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithDefaultTimeout changes the validity window applied when a caller does
// not specify one.
func WithDefaultTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) {
		m.defaultTimeout = d
	}
}

// WithNowFunc overrides the clock, primarily for tests.
func WithNowFunc(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowFunc = now
	}
}

// NewManager creates a session manager.
func NewManager(codec *token.Codec, registry Registry, issuer string, options ...ManagerOption) *Manager {
	m := &Manager{
		codec:          codec,
		registry:       registry,
		issuer:         issuer,
		defaultTimeout: DefaultTimeout,
		nowFunc:        time.Now,
	}
	for _, opt := range options {
		opt(m)
	}
	return m
}

// IssueRequest carries the optional parameters of an issuance.
type IssueRequest struct {
	// Timeout overrides the default validity window when positive.
	Timeout time.Duration

	// Limit caps concurrent sessions per account per endpoint when positive.
	Limit int

	// Claims are caller-supplied extension claims; reserved claim names are
	// not overridable.
	Claims *token.Claims
}

// Issue builds and signs a session token for an authenticated account on the
// given endpoint, then records it in the registry.
func (m *Manager) Issue(ctx context.Context, tenant string, account *accounts.Account, endpoint string, req IssueRequest) (*Session, error) {
	if account == nil || strings.TrimSpace(account.ID) == "" {
		return nil, errors.New("account id is required")
	}
	// Supervisor accounts have no username and authenticate by id.
	if strings.TrimSpace(account.Username) == "" && !account.Supervisor {
		return nil, errors.New("account username is required")
	}

	claims := jwtlib.MapClaims{
		"sub":           account.ID,
		ClaimUsername:   account.Username,
		ClaimAdmin:      account.Admin,
		ClaimSupervisor: account.Supervisor,
	}
	return m.issue(ctx, tenant, endpoint, claims, req)
}

// IssueDerived signs a new session backed by an existing one, for
// scan-to-login style token-for-token exchanges. The new token records the
// source session's id; a session that is itself derived cannot be derived
// from again.
func (m *Manager) IssueDerived(ctx context.Context, tenant string, source *Session, endpoint string, req IssueRequest) (*Session, error) {
	if source == nil {
		return nil, errors.New("source session is required")
	}
	if source.Source() != "" {
		return nil, apperrors.ErrDerivedSession
	}

	claims := jwtlib.MapClaims{
		"sub":           source.AccountID(),
		ClaimUsername:   source.Username(),
		ClaimAdmin:      source.Admin(),
		ClaimSupervisor: source.Supervisor(),
		ClaimSource:     source.ID(),
	}
	return m.issue(ctx, tenant, endpoint, claims, req)
}

func (m *Manager) issue(ctx context.Context, tenant, endpoint string, claims jwtlib.MapClaims, req IssueRequest) (*Session, error) {
	if strings.TrimSpace(tenant) == "" {
		return nil, errors.New("tenant is required")
	}
	if strings.TrimSpace(endpoint) == "" {
		return nil, errors.New("endpoint is required")
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = m.defaultTimeout
	}

	claims["jti"] = uuid.New().String()
	claims["iss"] = m.issuer
	claims["iat"] = m.nowFunc().Unix()
	claims[ClaimEndpoint] = endpoint
	claims[ClaimTimeout] = timeout.Milliseconds()
	claims[ClaimTenant] = tenant
	if req.Claims != nil {
		req.Claims.MergeInto(claims)
	}

	raw, err := m.codec.Sign(claims, token.TypeSession)
	if err != nil {
		return nil, errors.Wrap(err, "sign session")
	}

	sess, err := Parse(raw)
	if err != nil {
		return nil, errors.Wrap(err, "parse issued session")
	}
	if err := m.registry.Save(ctx, sess, req.Limit); err != nil {
		return nil, errors.Wrap(err, "save session")
	}
	return sess, nil
}

// PublicKey returns the base64-encoded verification key distributed to
// relying parties.
func (m *Manager) PublicKey() (string, error) {
	return (&token.KeyPair{PublicKey: m.codec.PublicKey()}).PublicKeyBase64()
}

// Verify reports whether the session is authentic and still live. It never
// fails on a bad token; invalid input is logged and reported as false.
func (m *Manager) Verify(ctx context.Context, sess *Session) bool {
	if sess == nil || sess.TenantCode() == "" {
		return false
	}

	if _, err := m.codec.Verify(sess.Token(), token.TypeSession); err != nil {
		log.Info().Err(err).Str("session", sess.ID()).Msg("session failed signature check")
		return false
	}

	live, err := m.registry.Verify(ctx, sess)
	if err != nil {
		log.Error().Err(err).Str("session", sess.ID()).Msg("session registry lookup failed")
		return false
	}
	return live
}

// VerifyToken parses and verifies a raw token in one step.
func (m *Manager) VerifyToken(ctx context.Context, raw string) bool {
	sess, err := Parse(raw)
	if err != nil {
		log.Info().Err(err).Msg("undecodable session token")
		return false
	}
	return m.Verify(ctx, sess)
}

// Invalid removes a single session from the registry. Best effort: the token
// itself cannot be recalled, it simply stops verifying.
func (m *Manager) Invalid(ctx context.Context, sess *Session) error {
	return m.registry.Invalidate(ctx, sess)
}

// Clear invalidates every session of an account.
func (m *Manager) Clear(ctx context.Context, tenant, accountID string) error {
	return m.registry.Clear(ctx, tenant, accountID)
}

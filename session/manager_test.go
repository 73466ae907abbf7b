package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/centrid/go-identity-server/accounts"
	apperrors "github.com/centrid/go-identity-server/internal/errors"
	"github.com/centrid/go-identity-server/session"
	"github.com/centrid/go-identity-server/token"
)

const (
	testIssuer = "com.testissuer"
	testTenant = "master"
)

type managerFixture struct {
	codec    *token.Codec
	registry *session.MemoryRegistry
	manager  *session.Manager
	clock    *fakeClock
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func setupManager(t *testing.T, options ...session.ManagerOption) *managerFixture {
	t.Helper()

	keyPair, err := token.GenerateKeyPair(2048)
	require.NoError(t, err)
	codec := token.NewCodec(keyPair)

	clock := &fakeClock{now: time.Now()}
	registry := session.NewMemoryRegistry(session.WithRegistryNowFunc(clock.Now))

	options = append(options, session.WithNowFunc(clock.Now))
	return &managerFixture{
		codec:    codec,
		registry: registry,
		manager:  session.NewManager(codec, registry, testIssuer, options...),
		clock:    clock,
	}
}

func testAccount() *accounts.Account {
	return &accounts.Account{
		ID:       "account-1",
		Username: "john.doe",
		Name:     "John Doe",
		Admin:    true,
		Enabled:  true,
	}
}

func TestIssueBuildsSessionClaims(t *testing.T) {
	f := setupManager(t)

	sess, err := f.manager.Issue(context.Background(), testTenant, testAccount(), "web", session.IssueRequest{})
	require.NoError(t, err)

	require.NotEmpty(t, sess.ID())
	require.Equal(t, "account-1", sess.AccountID())
	require.Equal(t, "john.doe", sess.Username())
	require.True(t, sess.Admin())
	require.False(t, sess.Supervisor())
	require.Equal(t, "web", sess.Endpoint())
	require.Equal(t, testTenant, sess.TenantCode())
	require.Equal(t, testIssuer, sess.Issuer())
	require.Equal(t, session.DefaultTimeout, sess.Timeout())
	require.Empty(t, sess.Source())
}

func TestIssueValidatesInput(t *testing.T) {
	f := setupManager(t)
	ctx := context.Background()

	_, err := f.manager.Issue(ctx, testTenant, nil, "web", session.IssueRequest{})
	require.Error(t, err)

	_, err = f.manager.Issue(ctx, testTenant, &accounts.Account{ID: "a1"}, "web", session.IssueRequest{})
	require.Error(t, err)

	_, err = f.manager.Issue(ctx, "", testAccount(), "web", session.IssueRequest{})
	require.Error(t, err)

	_, err = f.manager.Issue(ctx, testTenant, testAccount(), "", session.IssueRequest{})
	require.Error(t, err)

	// Supervisor accounts carry no username.
	_, err = f.manager.Issue(ctx, testTenant, &accounts.Account{ID: "root", Supervisor: true}, "web", session.IssueRequest{})
	require.NoError(t, err)
}

func TestIssueMergesExtensionClaims(t *testing.T) {
	f := setupManager(t)

	sess, err := f.manager.Issue(context.Background(), testTenant, testAccount(), "web", session.IssueRequest{
		Claims: token.NewClaims().
			SetString("department", "engineering").
			SetString("sub", "spoofed"),
	})
	require.NoError(t, err)

	require.Equal(t, "engineering", sess.StringClaim("department", ""))
	// Reserved claims cannot be overridden by extensions.
	require.Equal(t, "account-1", sess.AccountID())
}

func TestVerifyLifecycle(t *testing.T) {
	f := setupManager(t)
	ctx := context.Background()

	sess, err := f.manager.Issue(ctx, testTenant, testAccount(), "web", session.IssueRequest{})
	require.NoError(t, err)

	require.True(t, f.manager.Verify(ctx, sess))
	require.True(t, f.manager.VerifyToken(ctx, sess.Token()))

	require.NoError(t, f.manager.Invalid(ctx, sess))
	require.False(t, f.manager.Verify(ctx, sess))
}

func TestVerifyRejectsForeignSignature(t *testing.T) {
	f := setupManager(t)
	other := setupManager(t)
	ctx := context.Background()

	sess, err := other.manager.Issue(ctx, testTenant, testAccount(), "web", session.IssueRequest{})
	require.NoError(t, err)

	require.False(t, f.manager.Verify(ctx, sess))
}

func TestVerifyTokenRejectsGarbage(t *testing.T) {
	f := setupManager(t)
	require.False(t, f.manager.VerifyToken(context.Background(), "garbage"))
	require.False(t, f.manager.VerifyToken(context.Background(), ""))
}

func TestSlidingExpiry(t *testing.T) {
	f := setupManager(t)
	ctx := context.Background()

	sess, err := f.manager.Issue(ctx, testTenant, testAccount(), "web", session.IssueRequest{
		Timeout: time.Minute,
	})
	require.NoError(t, err)
	require.Equal(t, time.Minute, sess.Timeout())

	// Each successful verification pushes the deadline out again.
	f.clock.Advance(50 * time.Second)
	require.True(t, f.manager.Verify(ctx, sess))
	f.clock.Advance(50 * time.Second)
	require.True(t, f.manager.Verify(ctx, sess))

	f.clock.Advance(2 * time.Minute)
	require.False(t, f.manager.Verify(ctx, sess))
}

func TestIssueDerivedRecordsSource(t *testing.T) {
	f := setupManager(t)
	ctx := context.Background()

	source, err := f.manager.Issue(ctx, testTenant, testAccount(), "web", session.IssueRequest{})
	require.NoError(t, err)

	derived, err := f.manager.IssueDerived(ctx, testTenant, source, "phone", session.IssueRequest{})
	require.NoError(t, err)
	require.Equal(t, source.ID(), derived.Source())
	require.Equal(t, source.AccountID(), derived.AccountID())
	require.Equal(t, "phone", derived.Endpoint())
	require.True(t, f.manager.Verify(ctx, derived))
}

func TestIssueDerivedIsSingleHop(t *testing.T) {
	f := setupManager(t)
	ctx := context.Background()

	source, err := f.manager.Issue(ctx, testTenant, testAccount(), "web", session.IssueRequest{})
	require.NoError(t, err)
	derived, err := f.manager.IssueDerived(ctx, testTenant, source, "phone", session.IssueRequest{})
	require.NoError(t, err)

	_, err = f.manager.IssueDerived(ctx, testTenant, derived, "pad", session.IssueRequest{})
	require.ErrorIs(t, err, apperrors.ErrDerivedSession)
}

func TestDerivedSessionDiesWithSource(t *testing.T) {
	f := setupManager(t)
	ctx := context.Background()

	source, err := f.manager.Issue(ctx, testTenant, testAccount(), "web", session.IssueRequest{})
	require.NoError(t, err)
	derived, err := f.manager.IssueDerived(ctx, testTenant, source, "phone", session.IssueRequest{})
	require.NoError(t, err)

	require.NoError(t, f.manager.Invalid(ctx, source))
	require.False(t, f.manager.Verify(ctx, derived))
}

func TestEndpointLimitEvictsOldest(t *testing.T) {
	f := setupManager(t)
	ctx := context.Background()

	first, err := f.manager.Issue(ctx, testTenant, testAccount(), "web", session.IssueRequest{Limit: 1})
	require.NoError(t, err)
	second, err := f.manager.Issue(ctx, testTenant, testAccount(), "web", session.IssueRequest{Limit: 1})
	require.NoError(t, err)

	require.False(t, f.manager.Verify(ctx, first))
	require.True(t, f.manager.Verify(ctx, second))

	// Each endpoint is limited independently.
	phone, err := f.manager.Issue(ctx, testTenant, testAccount(), "phone", session.IssueRequest{Limit: 1})
	require.NoError(t, err)
	require.True(t, f.manager.Verify(ctx, second))
	require.True(t, f.manager.Verify(ctx, phone))
}

func TestClearInvalidatesAllSessions(t *testing.T) {
	f := setupManager(t)
	ctx := context.Background()

	web, err := f.manager.Issue(ctx, testTenant, testAccount(), "web", session.IssueRequest{})
	require.NoError(t, err)
	phone, err := f.manager.Issue(ctx, testTenant, testAccount(), "phone", session.IssueRequest{})
	require.NoError(t, err)

	require.NoError(t, f.manager.Clear(ctx, testTenant, "account-1"))
	require.False(t, f.manager.Verify(ctx, web))
	require.False(t, f.manager.Verify(ctx, phone))
}

func TestTenantIsolationInRegistry(t *testing.T) {
	f := setupManager(t)
	ctx := context.Background()

	masterSess, err := f.manager.Issue(ctx, "master", testAccount(), "web", session.IssueRequest{})
	require.NoError(t, err)
	acmeSess, err := f.manager.Issue(ctx, "acme", testAccount(), "web", session.IssueRequest{})
	require.NoError(t, err)

	// Clearing the account in one tenant leaves the other tenant's sessions
	// alone.
	require.NoError(t, f.manager.Clear(ctx, "acme", "account-1"))
	require.True(t, f.manager.Verify(ctx, masterSess))
	require.False(t, f.manager.Verify(ctx, acmeSess))
}

func TestPublicKeyIsDistributable(t *testing.T) {
	f := setupManager(t)

	encoded, err := f.manager.PublicKey()
	require.NoError(t, err)

	key, err := token.ParsePublicKeyBase64(encoded)
	require.NoError(t, err)

	sess, err := f.manager.Issue(context.Background(), testTenant, testAccount(), "web", session.IssueRequest{})
	require.NoError(t, err)
	_, err = token.Verify(sess.Token(), token.TypeSession, key)
	require.NoError(t, err)
}

// Package oauth implements the authorization-code exchange: the multi-step
// flow through which a client application obtains a scoped access token on
// behalf of a logged-in user.
package oauth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/centrid/go-identity-server/accounts"
	"github.com/centrid/go-identity-server/apps"
	apperrors "github.com/centrid/go-identity-server/internal/errors"
	"github.com/centrid/go-identity-server/session"
	"github.com/centrid/go-identity-server/store"
	"github.com/centrid/go-identity-server/token"
)

// GrantTypeAuthorizationCode is the only grant type this flow supports.
const GrantTypeAuthorizationCode = "authorization_code"

const (
	transKeyPrefix = "oauth:trans:"
	codeKeyPrefix  = "oauth:code:"
)

// SessionChecker confirms session validity before codes are issued. The
// session manager satisfies it on the authority side.
type SessionChecker interface {
	VerifyToken(ctx context.Context, raw string) bool
}

// Config carries the flow's tunables.
type Config struct {
	Enabled            bool
	AutoGranting       bool
	Issuer             string
	CodeTimeout        time.Duration
	TransactionTimeout time.Duration
	AccessTokenTimeout time.Duration
}

// Flow drives the authorize -> (login) -> grant -> code -> access-token
// state machine.
type Flow struct {
	apps     apps.Repo
	accounts accounts.Repo
	codec    *token.Codec
	store    store.Ephemeral
	sessions SessionChecker
	config   Config

	// serial recycles 1000..9999; it prefixes authorization codes purely for
	// debuggability and carries no security weight.
	serial  atomic.Int32
	nowFunc func() time.Time
}

// FlowOption configures a Flow.
type FlowOption func(*Flow)

// WithFlowNowFunc overrides the clock, primarily for tests.
func WithFlowNowFunc(now func() time.Time) FlowOption {
	return func(f *Flow) {
		f.nowFunc = now
	}
}

// NewFlow wires the flow's collaborators.
func NewFlow(appRepo apps.Repo, accountRepo accounts.Repo, codec *token.Codec, ephemeral store.Ephemeral, sessions SessionChecker, config Config, options ...FlowOption) *Flow {
	f := &Flow{
		apps:     appRepo,
		accounts: accountRepo,
		codec:    codec,
		store:    ephemeral,
		sessions: sessions,
		config:   config,
		nowFunc:  time.Now,
	}
	f.serial.Store(1000)
	for _, opt := range options {
		opt(f)
	}
	return f
}

// AuthorizeParams is one authorize request.
type AuthorizeParams struct {
	ResponseType string
	ClientID     string
	RedirectURI  string
	State        string
	Scopes       []Scope

	// RequestURI is the canonical URI of the current request; its digest
	// protects the transaction round-trip against parameter tampering.
	RequestURI string

	// LoginURL is where an unauthenticated user is sent; it carries
	// RequestURI as the return target.
	LoginURL string
}

// AuthorizeResult is the tagged outcome of an authorize request.
type AuthorizeResult struct {
	// RedirectURL is always set: either the login page, or the client's
	// redirect URI (with or without a code).
	RedirectURL string

	// TransactionID is non-empty when a new consent transaction began and
	// must be tracked by cookie.
	TransactionID string

	// ClearTransaction is set when the tracking cookie must be removed
	// because its transaction was consumed.
	ClearTransaction bool
}

// Authorize runs the entry point of the flow. transID is the value of the
// transaction-tracking cookie, empty on a first visit.
func (f *Flow) Authorize(ctx context.Context, tenant string, params AuthorizeParams, sessionToken, transID string) (*AuthorizeResult, error) {
	if !f.config.Enabled {
		return nil, apperrors.Forbidden("OAuth 2.0 is disabled")
	}
	if params.ResponseType != "code" {
		return nil, apperrors.BadRequest("response_type must be 'code'")
	}

	app, err := f.apps.GetByCode(params.ClientID)
	if err != nil || !app.Enabled {
		return nil, apperrors.BadRequestErr(apperrors.ErrInvalidClient)
	}
	if !app.AcceptsRedirectURI(params.RedirectURI) {
		return nil, apperrors.BadRequestErr(apperrors.ErrInvalidRedirectURI)
	}

	if f.config.AutoGranting {
		return f.autoGrant(ctx, tenant, params, sessionToken)
	}
	return f.explicitGrant(ctx, tenant, params, transID)
}

// autoGrant issues a code straight away for a logged-in user, or bounces to
// the login page.
func (f *Flow) autoGrant(ctx context.Context, tenant string, params AuthorizeParams, sessionToken string) (*AuthorizeResult, error) {
	if !f.sessions.VerifyToken(ctx, sessionToken) {
		return &AuthorizeResult{RedirectURL: params.LoginURL}, nil
	}

	redirect, err := f.issueCode(ctx, tenant, params.ClientID, params.RedirectURI, params.State, sessionToken, params.Scopes)
	if err != nil {
		return nil, err
	}
	return &AuthorizeResult{RedirectURL: redirect}, nil
}

// explicitGrant walks the consent transaction: first visit creates it and
// redirects to login; the return visit consumes it.
func (f *Flow) explicitGrant(ctx context.Context, tenant string, params AuthorizeParams, transID string) (*AuthorizeResult, error) {
	if transID == "" {
		trans := &Transaction{
			ID:       uuid.New().String(),
			ClientID: params.ClientID,
			Scopes:   params.Scopes,
			Digest:   digest(params.RequestURI),
		}
		if err := f.putTransaction(ctx, tenant, trans); err != nil {
			return nil, err
		}
		return &AuthorizeResult{RedirectURL: params.LoginURL, TransactionID: trans.ID}, nil
	}

	trans, err := f.takeTransaction(ctx, tenant, transID)
	if err != nil {
		return nil, err
	}

	if trans.Digest != digest(params.RequestURI) {
		return nil, apperrors.ForbiddenErr(apperrors.ErrTampered)
	}

	if !trans.Granted {
		// Explicit denial: back to the client without a code.
		return &AuthorizeResult{RedirectURL: params.RedirectURI, ClearTransaction: true}, nil
	}

	redirect, err := f.issueCode(ctx, tenant, params.ClientID, params.RedirectURI, params.State, trans.Session, trans.GrantedScopes)
	if err != nil {
		return nil, err
	}
	return &AuthorizeResult{RedirectURL: redirect, ClearTransaction: true}, nil
}

// GetScopes renders the pending consent decision. The transaction is read
// destructively and put back with a fresh TTL, so the following Grant call
// still finds it while an already-consumed id fails.
func (f *Flow) GetScopes(ctx context.Context, tenant, sessionToken, transID string) (*ConsentSummary, error) {
	if !f.sessions.VerifyToken(ctx, sessionToken) {
		return nil, apperrors.Unauthenticated("not logged in")
	}
	sess, err := session.Parse(sessionToken)
	if err != nil {
		return nil, apperrors.Unauthenticated("not logged in")
	}

	trans, err := f.takeTransaction(ctx, tenant, transID)
	if err != nil {
		return nil, err
	}
	if err := f.putTransaction(ctx, tenant, trans); err != nil {
		return nil, err
	}

	account, err := f.accounts.GetByID(sess.AccountID())
	if err != nil {
		return nil, apperrors.BadRequest("account not found")
	}
	app, err := f.apps.GetByCode(trans.ClientID)
	if err != nil {
		return nil, apperrors.BadRequestErr(apperrors.ErrInvalidClient)
	}

	summary := &ConsentSummary{
		Account: AccountSummary{
			ID:       account.ID,
			Username: account.Username,
			Name:     account.Name,
			Avatar:   account.Avatar,
		},
		Application: ApplicationSummary{
			Code: app.Code,
			Name: app.Name,
			Logo: app.Logo,
		},
	}
	for _, s := range withBasic(trans.Scopes) {
		summary.Scopes = append(summary.Scopes, ScopeView{
			Name:     s.Name(),
			Value:    string(s),
			Checked:  true,
			Required: s == ScopeBasic,
		})
	}
	return summary, nil
}

// Grant records the user's consent. The selected scopes may narrow the
// requested set but never widen it. The transaction is re-stored with a
// fresh TTL so the authorize retry can consume it.
func (f *Flow) Grant(ctx context.Context, tenant, sessionToken, transID string, selected []Scope) error {
	if !f.sessions.VerifyToken(ctx, sessionToken) {
		return apperrors.Unauthenticated("not logged in")
	}

	trans, err := f.takeTransaction(ctx, tenant, transID)
	if err != nil {
		return err
	}

	// The basic scope is implicit in every request, so selecting it is never
	// an overreach even when the client did not name it.
	requested := withBasic(trans.Scopes)
	for _, s := range selected {
		if !containsScope(requested, s) {
			return apperrors.BadRequestErr(apperrors.ErrScopeExceeded)
		}
	}

	trans.Granted = true
	trans.GrantedScopes = selected
	trans.Session = sessionToken
	return f.putTransaction(ctx, tenant, trans)
}

// AccessTokenParams is one token-exchange request.
type AccessTokenParams struct {
	GrantType    string
	ClientID     string
	ClientSecret string
	Code         string
	RedirectURI  string
}

// AccessToken exchanges a one-time code for a signed access token. The code
// is consumed whether or not the exchange succeeds.
func (f *Flow) AccessToken(ctx context.Context, tenant string, params AccessTokenParams) (*TokenResponse, error) {
	if !f.config.Enabled {
		return nil, apperrors.Forbidden("OAuth 2.0 is disabled")
	}
	if params.GrantType != GrantTypeAuthorizationCode {
		return nil, apperrors.BadRequest("grant_type must be 'authorization_code'")
	}

	value, err := f.store.GetAndRemove(ctx, tenant, codeKeyPrefix+params.Code)
	if err != nil {
		return nil, apperrors.BadRequestErr(apperrors.ErrCodeExpired)
	}
	var code Code
	if err := json.Unmarshal(value, &code); err != nil {
		return nil, apperrors.BadRequestErr(apperrors.ErrCodeExpired)
	}

	if code.RedirectURI != params.RedirectURI {
		return nil, apperrors.BadRequest("redirect_uri does not match the authorization request")
	}
	if code.ClientID != params.ClientID {
		return nil, apperrors.BadRequest("client_id does not match the authorization request")
	}

	// One uniform rejection for any application problem, so callers cannot
	// probe which part failed.
	app, err := f.apps.GetByCode(code.ClientID)
	if err != nil || !app.Enabled || app.Secret != params.ClientSecret {
		return nil, apperrors.BadRequestErr(apperrors.ErrInvalidClient)
	}

	sess, err := session.Parse(code.Session)
	if err != nil {
		return nil, apperrors.BadRequestErr(apperrors.ErrCodeExpired)
	}

	scopes := withBasic(code.Scopes)
	expiresAt := f.nowFunc().Add(f.config.AccessTokenTimeout)

	claims := jwtlib.MapClaims{
		"jti":   uuid.New().String(),
		"sub":   sess.AccountID(),
		"iss":   f.config.Issuer,
		"aud":   app.Code,
		"scope": scopeValues(scopes),
		"exp":   expiresAt.Unix(),
	}
	accessToken, err := f.codec.Sign(claims, token.TypeAccessToken)
	if err != nil {
		return nil, errors.Wrap(err, "sign access token")
	}

	return &TokenResponse{
		AccessToken: accessToken,
		TokenType:   "bearer",
		ExpiresIn:   int64(f.config.AccessTokenTimeout.Seconds()),
		AccountID:   sess.AccountID(),
		Username:    sess.Username(),
		Scope:       strings.Join(scopeValues(scopes), ","),
	}, nil
}

// UserInfo validates a bearer access token and projects the account fields
// its granted scopes cover.
func (f *Flow) UserInfo(ctx context.Context, bearer string) (map[string]any, error) {
	claims, err := f.validateAccessToken(bearer)
	if err != nil {
		return nil, err
	}

	sub, _ := claims["sub"].(string)
	account, err := f.accounts.GetByID(sub)
	if err != nil {
		return nil, apperrors.BadRequest("account not found")
	}

	result := make(map[string]any)
	for _, value := range claimStrings(claims["scope"]) {
		if s, ok := ResolveScope(value); ok {
			for field, v := range s.Fields(account) {
				result[field] = v
			}
		}
	}
	return result, nil
}

// validateAccessToken applies the resource-access checks: type marker,
// expiry claim, signature, and a currently enabled audience application.
func (f *Flow) validateAccessToken(raw string) (jwtlib.MapClaims, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, apperrors.Unauthenticated("missing access token")
	}

	unverified, typ, err := token.DecodeUnsafe(raw)
	if err != nil {
		return nil, apperrors.Forbidden("invalid access token")
	}
	if typ != token.TypeAccessToken {
		return nil, apperrors.Forbidden("invalid access token: bad type")
	}
	if _, ok := unverified["exp"]; !ok {
		return nil, apperrors.Forbidden("invalid access token: missing required claim 'exp'")
	}

	claims, err := f.codec.Verify(raw, token.TypeAccessToken)
	if err != nil {
		return nil, apperrors.ForbiddenErr(err)
	}

	aud, _ := claims["aud"].(string)
	app, err := f.apps.GetByCode(aud)
	if err != nil || !app.Enabled {
		return nil, apperrors.Forbidden("invalid access token: unknown audience")
	}
	return claims, nil
}

// issueCode mints and stores a one-time code bound to the session and scope
// set, and returns the client redirect URL carrying state and code.
func (f *Flow) issueCode(ctx context.Context, tenant, clientID, redirectURI, state, sessionToken string, scopes []Scope) (string, error) {
	code := &Code{
		Code:        "OC-" + f.nextSerial() + "-" + uuid.New().String(),
		ClientID:    clientID,
		RedirectURI: redirectURI,
		Session:     sessionToken,
		Scopes:      scopes,
	}

	value, err := json.Marshal(code)
	if err != nil {
		return "", errors.Wrap(err, "marshal code")
	}
	if err := f.store.Put(ctx, tenant, codeKeyPrefix+code.Code, value, f.config.CodeTimeout); err != nil {
		return "", errors.Wrap(err, "store code")
	}

	redirect, err := url.Parse(redirectURI)
	if err != nil {
		return "", apperrors.BadRequestErr(apperrors.ErrInvalidRedirectURI)
	}
	query := redirect.Query()
	query.Set("state", state)
	query.Set("code", code.Code)
	redirect.RawQuery = query.Encode()
	return redirect.String(), nil
}

func (f *Flow) putTransaction(ctx context.Context, tenant string, trans *Transaction) error {
	value, err := json.Marshal(trans)
	if err != nil {
		return errors.Wrap(err, "marshal transaction")
	}
	if err := f.store.Put(ctx, tenant, transKeyPrefix+trans.ID, value, f.config.TransactionTimeout); err != nil {
		return errors.Wrap(err, "store transaction")
	}
	return nil
}

// takeTransaction consumes a transaction. A miss is always reported as
// not-found, whether the id expired or never existed.
func (f *Flow) takeTransaction(ctx context.Context, tenant, transID string) (*Transaction, error) {
	if transID == "" {
		return nil, apperrors.BadRequestErr(apperrors.ErrTransactionNotFound)
	}
	value, err := f.store.GetAndRemove(ctx, tenant, transKeyPrefix+transID)
	if err != nil {
		return nil, apperrors.BadRequestErr(apperrors.ErrTransactionNotFound)
	}
	var trans Transaction
	if err := json.Unmarshal(value, &trans); err != nil {
		return nil, apperrors.BadRequestErr(apperrors.ErrTransactionNotFound)
	}
	return &trans, nil
}

func (f *Flow) nextSerial() string {
	for {
		current := f.serial.Load()
		next := current + 1
		if next > 9999 {
			next = 1000
		}
		if f.serial.CompareAndSwap(current, next) {
			return strconv.Itoa(int(next))
		}
	}
}

func digest(uri string) string {
	sum := sha256.Sum256([]byte(uri))
	return hex.EncodeToString(sum[:])
}

func claimStrings(claim any) []string {
	values, ok := claim.([]any)
	if !ok {
		return nil
	}
	strs := make([]string, 0, len(values))
	for _, v := range values {
		if s, ok := v.(string); ok {
			strs = append(strs, s)
		}
	}
	return strs
}

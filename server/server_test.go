package server_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/centrid/go-identity-server/accounts"
	accountfakes "github.com/centrid/go-identity-server/accounts/repofakes"
	"github.com/centrid/go-identity-server/apps"
	appfakes "github.com/centrid/go-identity-server/apps/repofakes"
	"github.com/centrid/go-identity-server/client"
	"github.com/centrid/go-identity-server/internal/config"
	"github.com/centrid/go-identity-server/oauth"
	"github.com/centrid/go-identity-server/server"
	"github.com/centrid/go-identity-server/session"
	"github.com/centrid/go-identity-server/store/memstore"
	"github.com/centrid/go-identity-server/token"
)

const (
	testWebSecret   = "web-secret"
	testClientID    = "demo"
	testSecret      = "demo-secret"
	testRedirectURI = "http://localhost:3000/callback"
)

type serverFixture struct {
	server      *server.Server
	accountRepo *accountfakes.FakeAccountRepo
}

func setupServer(t *testing.T, autoGranting bool) *serverFixture {
	t.Helper()

	cfg := config.Config{
		Env:            "DEV",
		Issuer:         "com.testissuer",
		SessionTimeout: 30 * time.Minute,
		OAuth: config.OAuth{
			Enabled:            true,
			AutoGranting:       autoGranting,
			CodeTimeout:        time.Minute,
			TransactionTimeout: 10 * time.Minute,
			AccessTokenTimeout: 30 * time.Minute,
		},
		Endpoints: config.Endpoints{
			WebSecret: testWebSecret,
			WebLimit:  -1,
		},
	}

	keyPair, err := token.GenerateKeyPair(2048)
	require.NoError(t, err)
	codec := token.NewCodec(keyPair)

	ephemeral := memstore.New()
	t.Cleanup(func() { _ = ephemeral.Close() })

	sessions := session.NewManager(codec, session.NewMemoryRegistry(), cfg.Issuer,
		session.WithDefaultTimeout(cfg.SessionTimeout))

	accountRepo := accountfakes.NewFakeAccountRepo()
	require.NoError(t, accountRepo.Upsert(&accounts.Account{
		ID:       "account-1",
		Username: "john.doe",
		Name:     "John Doe",
		Email:    "john.doe@example.com",
		Enabled:  true,
	}))
	require.NoError(t, accountRepo.SetPassword("account-1", "password123"))

	appRepo := appfakes.NewFakeAppRepo()
	require.NoError(t, appRepo.Upsert(&apps.Application{
		ID:      testClientID,
		Code:    testClientID,
		Secret:  testSecret,
		Name:    "Demo Application",
		URL:     "http://localhost:3000",
		Enabled: true,
	}))

	flow := oauth.NewFlow(appRepo, accountRepo, codec, ephemeral, sessions, oauth.Config{
		Enabled:            cfg.OAuth.Enabled,
		AutoGranting:       cfg.OAuth.AutoGranting,
		Issuer:             cfg.Issuer,
		CodeTimeout:        cfg.OAuth.CodeTimeout,
		TransactionTimeout: cfg.OAuth.TransactionTimeout,
		AccessTokenTimeout: cfg.OAuth.AccessTokenTimeout,
	})

	return &serverFixture{
		server:      server.New(cfg, sessions, flow, accountRepo, accountRepo),
		accountRepo: accountRepo,
	}
}

func (f *serverFixture) do(t *testing.T, method, target string, form url.Values, adjust ...func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	var body *strings.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	} else {
		body = strings.NewReader("")
	}
	req := httptest.NewRequest(method, target, body)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	for _, fn := range adjust {
		fn(req)
	}
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	return rec
}

func (f *serverFixture) login(t *testing.T) string {
	t.Helper()
	rec := f.do(t, http.MethodPost, server.RouteLogin, url.Values{
		"account":  {"john.doe"},
		"password": {"password123"},
		"secret":   {testWebSecret},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	raw := rec.Body.String()
	require.NotEmpty(t, raw)
	return raw
}

func TestPublicKeyEndpoint(t *testing.T) {
	f := setupServer(t, true)

	rec := f.do(t, http.MethodGet, server.RoutePublicKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	_, err := token.ParsePublicKeyBase64(strings.TrimSpace(rec.Body.String()))
	require.NoError(t, err)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	f := setupServer(t, true)

	rec := f.do(t, http.MethodPost, server.RouteLogin, url.Values{
		"account":  {"john.doe"},
		"password": {"wrong"},
		"secret":   {testWebSecret},
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodPost, server.RouteLogin, url.Values{
		"account":  {"john.doe"},
		"password": {"password123"},
		"secret":   {"not-an-endpoint-secret"},
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestVerifyReportsLiteralBoolean(t *testing.T) {
	f := setupServer(t, true)
	sessionToken := f.login(t)

	rec := f.do(t, http.MethodPost, server.RouteVerify, url.Values{"token": {sessionToken}})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "true", rec.Body.String())

	// Garbage never errors, it is simply not a live session.
	rec = f.do(t, http.MethodPost, server.RouteVerify, url.Values{"token": {"garbage"}})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "false", rec.Body.String())

	// A session is scoped to its tenant.
	rec = f.do(t, http.MethodPost, server.RouteVerify, url.Values{"token": {sessionToken}},
		func(r *http.Request) { r.Header.Set(server.TenantHeader, "acme") })
	require.Equal(t, "false", rec.Body.String())
}

func TestLogoutTerminatesPresentedSession(t *testing.T) {
	f := setupServer(t, true)
	first := f.login(t)
	second := f.login(t)

	rec := f.do(t, http.MethodPost, server.RouteLogout, url.Values{"token": {first}})
	require.Equal(t, http.StatusOK, rec.Code)

	// Only the presented session dies; the account's other sessions live on.
	rec = f.do(t, http.MethodPost, server.RouteVerify, url.Values{"token": {first}})
	require.Equal(t, "false", rec.Body.String())
	rec = f.do(t, http.MethodPost, server.RouteVerify, url.Values{"token": {second}})
	require.Equal(t, "true", rec.Body.String())

	// Logout never fails, even on garbage input.
	rec = f.do(t, http.MethodPost, server.RouteLogout, url.Values{"token": {"garbage"}})
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestInvalidClearsAllAccountSessions(t *testing.T) {
	f := setupServer(t, true)
	first := f.login(t)
	second := f.login(t)

	rec := f.do(t, http.MethodPost, server.RouteInvalid, url.Values{"accountId": {"account-1"}})
	require.Equal(t, http.StatusOK, rec.Code)

	for _, raw := range []string{first, second} {
		rec = f.do(t, http.MethodPost, server.RouteVerify, url.Values{"token": {raw}})
		require.Equal(t, "false", rec.Body.String())
	}

	rec = f.do(t, http.MethodPost, server.RouteInvalid, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLoginCarriesExtensionClaims(t *testing.T) {
	f := setupServer(t, true)

	rec := f.do(t, http.MethodPost, server.RouteLogin, url.Values{
		"account":  {"john.doe"},
		"password": {"password123"},
		"secret":   {testWebSecret},
		"claims":   {`{"device":"kiosk-7","trusted":true}`},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	sess, err := session.Parse(rec.Body.String())
	require.NoError(t, err)
	require.Equal(t, "kiosk-7", sess.StringClaim("device", ""))
	require.True(t, sess.BoolClaim("trusted", false))

	// Extension claims cannot shadow the reserved claim set.
	rec = f.do(t, http.MethodPost, server.RouteLogin, url.Values{
		"account":  {"john.doe"},
		"password": {"password123"},
		"secret":   {testWebSecret},
		"claims":   {`{"sub":"someone-else"}`},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	sess, err = session.Parse(rec.Body.String())
	require.NoError(t, err)
	require.Equal(t, "account-1", sess.AccountID())

	rec = f.do(t, http.MethodPost, server.RouteLogin, url.Values{
		"account":  {"john.doe"},
		"password": {"password123"},
		"secret":   {testWebSecret},
		"claims":   {`not-json`},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLoginByTokenDerivesSession(t *testing.T) {
	f := setupServer(t, true)
	sessionToken := f.login(t)

	rec := f.do(t, http.MethodPost, server.RouteLoginByToken, url.Values{
		"token":  {sessionToken},
		"secret": {testWebSecret},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	derived := rec.Body.String()
	require.NotEmpty(t, derived)
	sess, err := session.Parse(derived)
	require.NoError(t, err)
	require.Equal(t, "account-1", sess.AccountID())

	// The derived session cannot be derived from again.
	rec = f.do(t, http.MethodPost, server.RouteLoginByToken, url.Values{
		"token":  {derived},
		"secret": {testWebSecret},
	})
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestLoginByTokenRejectsDisabledAccount(t *testing.T) {
	f := setupServer(t, true)
	sessionToken := f.login(t)

	// The account is disabled while its session is still live.
	require.NoError(t, f.accountRepo.Upsert(&accounts.Account{
		ID:       "account-1",
		Username: "john.doe",
		Name:     "John Doe",
		Enabled:  false,
	}))

	rec := f.do(t, http.MethodPost, server.RouteLoginByToken, url.Values{
		"token":  {sessionToken},
		"secret": {testWebSecret},
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthorizationCodeFlowOverHTTP(t *testing.T) {
	f := setupServer(t, true)
	sessionToken := f.login(t)

	authorizeURL := server.RouteAuthorize +
		"?response_type=code&client_id=" + testClientID +
		"&redirect_uri=" + url.QueryEscape(testRedirectURI) +
		"&state=xyz"

	rec := f.do(t, http.MethodGet, authorizeURL, nil, func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: server.SessionCookie, Value: sessionToken})
	})
	require.Equal(t, http.StatusFound, rec.Code)

	redirect, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "xyz", redirect.Query().Get("state"))
	code := redirect.Query().Get("code")
	require.NotEmpty(t, code)

	rec = f.do(t, http.MethodPost, server.RouteToken, url.Values{
		"grant_type":    {"authorization_code"},
		"client_id":     {testClientID},
		"client_secret": {testSecret},
		"code":          {code},
		"redirect_uri":  {testRedirectURI},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var tokenResp oauth.TokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tokenResp))
	require.NotEmpty(t, tokenResp.AccessToken)
	require.Equal(t, "bearer", tokenResp.TokenType)

	rec = f.do(t, http.MethodGet, server.RouteUserInfo, nil, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+tokenResp.AccessToken)
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var info map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	require.Equal(t, "account-1", info["account_id"])
	require.Equal(t, "john.doe", info["username"])
}

func TestAuthorizeWithoutSessionRedirectsToLogin(t *testing.T) {
	f := setupServer(t, true)

	authorizeURL := server.RouteAuthorize +
		"?response_type=code&client_id=" + testClientID +
		"&redirect_uri=" + url.QueryEscape(testRedirectURI)

	rec := f.do(t, http.MethodGet, authorizeURL, nil)
	require.Equal(t, http.StatusFound, rec.Code)
	require.True(t, strings.HasPrefix(rec.Header().Get("Location"), server.RouteLoginPage))
}

func TestExplicitConsentFlowOverHTTP(t *testing.T) {
	f := setupServer(t, false)
	sessionToken := f.login(t)

	authorizeURL := server.RouteAuthorize +
		"?response_type=code&client_id=" + testClientID +
		"&redirect_uri=" + url.QueryEscape(testRedirectURI) +
		"&state=xyz&scope=" + url.QueryEscape("user:basic,user:contact")

	// First visit creates a transaction tracked by cookie.
	rec := f.do(t, http.MethodGet, authorizeURL, nil)
	require.Equal(t, http.StatusFound, rec.Code)
	require.True(t, strings.HasPrefix(rec.Header().Get("Location"), server.RouteLoginPage))

	var granting *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == server.GrantingCookie {
			granting = c
		}
	}
	require.NotNil(t, granting)
	require.NotEmpty(t, granting.Value)

	withCookies := func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: server.SessionCookie, Value: sessionToken})
		r.AddCookie(&http.Cookie{Name: server.GrantingCookie, Value: granting.Value})
	}

	rec = f.do(t, http.MethodGet, server.RouteScopes, nil, withCookies)
	require.Equal(t, http.StatusOK, rec.Code)

	var summary oauth.ConsentSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	require.Equal(t, "Demo Application", summary.Application.Name)
	require.Len(t, summary.Scopes, 2)

	rec = f.do(t, http.MethodPost, server.RouteGrant, url.Values{
		"scope": {"user:basic"},
	}, withCookies)
	require.Equal(t, http.StatusOK, rec.Code)

	// The retry of the same authorize URL issues the code.
	rec = f.do(t, http.MethodGet, authorizeURL, nil, withCookies)
	require.Equal(t, http.StatusFound, rec.Code)

	redirect, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	require.NotEmpty(t, redirect.Query().Get("code"))
}

func TestRelyingPartyEndToEnd(t *testing.T) {
	f := setupServer(t, true)
	sessionToken := f.login(t)

	ts := httptest.NewServer(f.server)
	defer ts.Close()

	rp := client.NewRelyingParty(ts.URL, testClientID, testSecret, testRedirectURI,
		[]string{"user:basic"})

	// The user-agent visits the authorize URL with a live session and is
	// redirected back to the application with the code.
	req, err := http.NewRequest(http.MethodGet, rp.AuthCodeURL("rp-state"), nil)
	require.NoError(t, err)
	req.AddCookie(&http.Cookie{Name: server.SessionCookie, Value: sessionToken})

	browser := &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	resp, err := browser.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusFound, resp.StatusCode)

	redirect, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "rp-state", redirect.Query().Get("state"))
	code := redirect.Query().Get("code")
	require.NotEmpty(t, code)

	ctx := context.Background()
	tok, err := rp.Exchange(ctx, code)
	require.NoError(t, err)
	require.NotEmpty(t, tok.AccessToken)

	info, err := rp.UserInfo(ctx, tok)
	require.NoError(t, err)
	require.Equal(t, "account-1", info["account_id"])
	require.Equal(t, "john.doe", info["username"])
}

func TestTokenResponseContentNegotiation(t *testing.T) {
	f := setupServer(t, true)
	sessionToken := f.login(t)

	issueCode := func() string {
		authorizeURL := server.RouteAuthorize +
			"?response_type=code&client_id=" + testClientID +
			"&redirect_uri=" + url.QueryEscape(testRedirectURI)
		rec := f.do(t, http.MethodGet, authorizeURL, nil, func(r *http.Request) {
			r.AddCookie(&http.Cookie{Name: server.SessionCookie, Value: sessionToken})
		})
		redirect, err := url.Parse(rec.Header().Get("Location"))
		require.NoError(t, err)
		return redirect.Query().Get("code")
	}

	form := func(code string) url.Values {
		return url.Values{
			"grant_type":    {"authorization_code"},
			"client_id":     {testClientID},
			"client_secret": {testSecret},
			"code":          {code},
			"redirect_uri":  {testRedirectURI},
		}
	}

	rec := f.do(t, http.MethodPost, server.RouteToken, form(issueCode()), func(r *http.Request) {
		r.Header.Set("Accept", "application/xml")
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Header().Get("Content-Type"), "application/xml")

	rec = f.do(t, http.MethodPost, server.RouteToken, form(issueCode()), func(r *http.Request) {
		r.Header.Set("Accept", "application/x-www-form-urlencoded")
	})
	require.Equal(t, http.StatusOK, rec.Code)
	parsed, err := url.ParseQuery(rec.Body.String())
	require.NoError(t, err)
	require.NotEmpty(t, parsed.Get("access_token"))
}

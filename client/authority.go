// Package client is the resource-server side of session verification. It
// validates session tokens locally against the authority's public key and
// confirms liveness with the authority, caching both outcomes so steady-state
// traffic rarely leaves the process.
package client

import (
	"context"
	"crypto/rsa"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/centrid/go-identity-server/token"
)

// TenantHeader carries the tenant code on every authority call.
const TenantHeader = "X-Tenant"

// Authority is the remote identity server, reduced to the calls the
// verifier needs.
type Authority interface {
	// PublicKey fetches the authority's session-signing public key.
	PublicKey(ctx context.Context) (*rsa.PublicKey, error)

	// VerifySession asks whether the session behind the token is live.
	VerifySession(ctx context.Context, tenant, sessionToken string) (bool, error)

	// InvalidateSession terminates the session behind the token.
	InvalidateSession(ctx context.Context, tenant, sessionToken string) error
}

// HTTPAuthority talks to the identity server over its HTTP surface.
type HTTPAuthority struct {
	baseURL string
	client  *http.Client
}

// HTTPAuthorityOption configures an HTTPAuthority.
type HTTPAuthorityOption func(*HTTPAuthority)

// WithHTTPClient overrides the default http client.
func WithHTTPClient(client *http.Client) HTTPAuthorityOption {
	return func(a *HTTPAuthority) {
		a.client = client
	}
}

// NewHTTPAuthority points the client at the identity server's base URL.
func NewHTTPAuthority(baseURL string, options ...HTTPAuthorityOption) *HTTPAuthority {
	a := &HTTPAuthority{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range options {
		opt(a)
	}
	return a
}

func (a *HTTPAuthority) PublicKey(ctx context.Context) (*rsa.PublicKey, error) {
	body, err := a.call(ctx, http.MethodGet, "/session/public-key", "", nil)
	if err != nil {
		return nil, errors.Wrap(err, "fetch public key")
	}
	key, err := token.ParsePublicKeyBase64(strings.TrimSpace(string(body)))
	if err != nil {
		return nil, errors.Wrap(err, "parse public key")
	}
	return key, nil
}

func (a *HTTPAuthority) VerifySession(ctx context.Context, tenant, sessionToken string) (bool, error) {
	form := url.Values{"token": {sessionToken}}
	body, err := a.call(ctx, http.MethodPost, "/session/verify", tenant, form)
	if err != nil {
		return false, errors.Wrap(err, "verify session")
	}
	return strings.TrimSpace(string(body)) == "true", nil
}

func (a *HTTPAuthority) InvalidateSession(ctx context.Context, tenant, sessionToken string) error {
	form := url.Values{"token": {sessionToken}}
	if _, err := a.call(ctx, http.MethodPost, "/session/logout", tenant, form); err != nil {
		return errors.Wrap(err, "invalidate session")
	}
	return nil
}

func (a *HTTPAuthority) call(ctx context.Context, method, path, tenant string, form url.Values) ([]byte, error) {
	var reqBody io.Reader
	if form != nil {
		reqBody = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reqBody)
	if err != nil {
		return nil, err
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if tenant != "" {
		req.Header.Set(TenantHeader, tenant)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("authority returned status %d", resp.StatusCode)
	}
	return body, nil
}

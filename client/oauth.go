package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/pkg/errors"
	"golang.org/x/oauth2"
)

// RelyingParty is a convenience wrapper for client applications that obtain
// access tokens from the identity server's authorize/token endpoints.
type RelyingParty struct {
	config oauth2.Config
	apiURL string
}

// NewRelyingParty builds the oauth2 configuration for one registered
// application. baseURL is the identity server root.
func NewRelyingParty(baseURL, clientID, clientSecret, redirectURL string, scopes []string) *RelyingParty {
	return &RelyingParty{
		config: oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   baseURL + "/oauth/authorize",
				TokenURL:  baseURL + "/oauth/token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		apiURL: baseURL,
	}
}

// AuthCodeURL returns the URL to send the user to.
func (rp *RelyingParty) AuthCodeURL(state string) string {
	return rp.config.AuthCodeURL(state)
}

// Exchange swaps an authorization code for an access token.
func (rp *RelyingParty) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	tok, err := rp.config.Exchange(ctx, code)
	if err != nil {
		return nil, errors.Wrap(err, "exchange authorization code")
	}
	return tok, nil
}

// UserInfo fetches the account fields the token's scopes cover.
func (rp *RelyingParty) UserInfo(ctx context.Context, tok *oauth2.Token) (map[string]any, error) {
	httpClient := rp.config.Client(ctx, tok)
	resp, err := httpClient.Get(rp.apiURL + "/oauth/userinfo")
	if err != nil {
		return nil, errors.Wrap(err, "fetch userinfo")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read userinfo response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("userinfo returned status %d", resp.StatusCode)
	}

	var info map[string]any
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, errors.Wrap(err, "decode userinfo response")
	}
	return info, nil
}

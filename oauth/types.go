package oauth

// Transaction is the server-side record of one pending consent decision.
// It lives in the ephemeral store under the tenant's namespace and is
// consumed exactly once.
type Transaction struct {
	ID       string  `json:"id"`
	ClientID string  `json:"clientId"`
	Scopes   []Scope `json:"scopes"`

	// Digest is the SHA-256 of the canonical authorize-request URI; it
	// detects parameter tampering across the redirect round-trip.
	Digest string `json:"digest"`

	Granted       bool    `json:"granted"`
	GrantedScopes []Scope `json:"grantedScopes,omitempty"`

	// Session is the raw session token captured at grant time.
	Session string `json:"session,omitempty"`
}

// Code is a one-time authorization code, exchangeable for an access token by
// the same client and redirect URI it was issued to.
type Code struct {
	Code        string  `json:"code"`
	ClientID    string  `json:"clientId"`
	RedirectURI string  `json:"redirectUri"`
	Session     string  `json:"session"`
	Scopes      []Scope `json:"scopes"`
}

// TokenResponse is the access-token exchange response body.
type TokenResponse struct {
	AccessToken string `json:"access_token" xml:"access_token"`
	TokenType   string `json:"token_type" xml:"token_type"`
	ExpiresIn   int64  `json:"expires_in" xml:"expires_in"`
	AccountID   string `json:"account_id" xml:"account_id"`
	Username    string `json:"username" xml:"username"`
	Scope       string `json:"scope" xml:"scope"`
}

// AccountSummary is the subset of account fields shown on the consent page.
type AccountSummary struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
	Avatar   string `json:"avatar"`
}

// ApplicationSummary is the subset of application fields shown on the
// consent page.
type ApplicationSummary struct {
	Code string `json:"code"`
	Name string `json:"name"`
	Logo string `json:"logo"`
}

// ScopeView annotates one requested scope for the consent UI.
type ScopeView struct {
	Name    string `json:"name"`
	Value   string `json:"value"`
	Checked bool   `json:"checked"`
	// Required scopes cannot be declined.
	Required bool `json:"required"`
}

// ConsentSummary is the GetScopes response.
type ConsentSummary struct {
	Account     AccountSummary     `json:"account"`
	Application ApplicationSummary `json:"application"`
	Scopes      []ScopeView        `json:"scopes"`
}

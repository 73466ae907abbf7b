package oauth

import (
	"strings"

	"github.com/centrid/go-identity-server/accounts"
)

// Scope identifies a set of account fields a client application may read.
type Scope string

const (
	// ScopeBasic is implicitly granted to every client and cannot be
	// declined.
	ScopeBasic Scope = "user:basic"

	// ScopeContact exposes the account's contact details.
	ScopeContact Scope = "user:contact"
)

type scopeInfo struct {
	name     string
	fetchers map[string]func(*accounts.Account) any
}

var scopeCatalogue = map[Scope]scopeInfo{
	ScopeBasic: {
		name: "Basic profile",
		fetchers: map[string]func(*accounts.Account) any{
			"account_id": func(a *accounts.Account) any { return a.ID },
			"username":   func(a *accounts.Account) any { return a.Username },
			"name":       func(a *accounts.Account) any { return a.Name },
			"avatar":     func(a *accounts.Account) any { return a.Avatar },
		},
	},
	ScopeContact: {
		name: "Contact details",
		fetchers: map[string]func(*accounts.Account) any{
			"email":  func(a *accounts.Account) any { return a.Email },
			"mobile": func(a *accounts.Account) any { return a.Mobile },
		},
	},
}

// ResolveScope maps a wire value to a known scope.
func ResolveScope(value string) (Scope, bool) {
	s := Scope(strings.TrimSpace(value))
	_, ok := scopeCatalogue[s]
	return s, ok
}

// ParseScopes splits a comma-separated scope parameter, dropping unknown
// values. An empty parameter means basic only.
func ParseScopes(param string) []Scope {
	if strings.TrimSpace(param) == "" {
		return []Scope{ScopeBasic}
	}
	var scopes []Scope
	for _, part := range strings.Split(param, ",") {
		if s, ok := ResolveScope(part); ok && !containsScope(scopes, s) {
			scopes = append(scopes, s)
		}
	}
	if len(scopes) == 0 {
		return []Scope{ScopeBasic}
	}
	return scopes
}

// Name returns the scope's display name.
func (s Scope) Name() string {
	return scopeCatalogue[s].name
}

// Fields projects the account attributes covered by this scope.
func (s Scope) Fields(account *accounts.Account) map[string]any {
	fields := make(map[string]any, len(scopeCatalogue[s].fetchers))
	for field, get := range scopeCatalogue[s].fetchers {
		fields[field] = get(account)
	}
	return fields
}

// withBasic returns scopes with ScopeBasic guaranteed present.
func withBasic(scopes []Scope) []Scope {
	if containsScope(scopes, ScopeBasic) {
		return scopes
	}
	return append([]Scope{ScopeBasic}, scopes...)
}

func containsScope(scopes []Scope, target Scope) bool {
	for _, s := range scopes {
		if s == target {
			return true
		}
	}
	return false
}

func scopeValues(scopes []Scope) []string {
	values := make([]string, 0, len(scopes))
	for _, s := range scopes {
		values = append(values, string(s))
	}
	return values
}

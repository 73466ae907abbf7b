// Package apps exposes the read-only application registry: the client
// applications allowed to participate in the authorization-code flow.
package apps

import (
	"errors"
	"strings"
)

// ErrApplicationNotFound is returned when no application matches the lookup.
var ErrApplicationNotFound = errors.New("application not found")

// Application is a registered client application.
type Application struct {
	ID          string
	Code        string // client_id on the wire
	Secret      string
	Name        string
	Logo        string
	URL         string // base URL, e.g. "http://x"
	ContextPath string // e.g. "/app"
	Enabled     bool
}

// AcceptsRedirectURI reports whether uri falls under the application's
// registered base URL and context path. The comparison is case-insensitive.
func (a *Application) AcceptsRedirectURI(uri string) bool {
	prefix := strings.ToLower(a.URL + a.ContextPath)
	return strings.HasPrefix(strings.ToLower(uri), prefix)
}

// Repo is the read-only application lookup service.
type Repo interface {
	// GetByCode returns the application registered under the given client id.
	GetByCode(code string) (*Application, error)
}

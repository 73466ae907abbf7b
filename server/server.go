// Package server exposes the session and authorization services over HTTP.
package server

import (
	"net/http"
	"strings"

	"github.com/centrid/go-identity-server/accounts"
	"github.com/centrid/go-identity-server/internal/config"
	"github.com/centrid/go-identity-server/oauth"
	"github.com/centrid/go-identity-server/session"
)

// DefaultTenant is assumed when a request carries no tenant header.
const DefaultTenant = "master"

// TenantHeader selects the tenant a request operates in.
const TenantHeader = "X-Tenant"

// Cookie names.
const (
	// SessionCookie carries the browser's session token.
	SessionCookie = "CENTRID_SESSION"

	// GrantingCookie tracks an in-flight consent transaction.
	GrantingCookie = "CENTRID_GRANTING"
)

type Server struct {
	env      string
	mux      *http.ServeMux
	routes   []string
	config   config.Config
	sessions *session.Manager
	flow     *oauth.Flow
	accounts accounts.Repo
	verifier accounts.PasswordVerifier
}

func New(cfg config.Config, sessions *session.Manager, flow *oauth.Flow, accountRepo accounts.Repo, verifier accounts.PasswordVerifier) *Server {
	s := &Server{
		env:      cfg.Env,
		mux:      http.NewServeMux(),
		config:   cfg,
		sessions: sessions,
		flow:     flow,
		accounts: accountRepo,
		verifier: verifier,
	}
	s.initRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

// tenant resolves the tenant a request operates in.
func tenant(r *http.Request) string {
	if t := strings.TrimSpace(r.Header.Get(TenantHeader)); t != "" {
		return t
	}
	return DefaultTenant
}

// sessionToken pulls the caller's session token. An explicit "token" form or
// query parameter wins over the browser cookie.
func sessionToken(r *http.Request) string {
	if raw := r.FormValue("token"); raw != "" {
		return raw
	}
	if cookie, err := r.Cookie(SessionCookie); err == nil {
		return cookie.Value
	}
	return ""
}

func setCookie(w http.ResponseWriter, name, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

package server

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/centrid/go-identity-server/oauth"
)

// AuthorizeHandler is the entry point of the authorization-code flow.
func (s *Server) AuthorizeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestURI := canonicalRequestURI(r)
		params := oauth.AuthorizeParams{
			ResponseType: r.FormValue("response_type"),
			ClientID:     r.FormValue("client_id"),
			RedirectURI:  r.FormValue("redirect_uri"),
			State:        r.FormValue("state"),
			Scopes:       oauth.ParseScopes(r.FormValue("scope")),
			RequestURI:   requestURI,
			LoginURL:     RouteLoginPage + "?redirect_uri=" + url.QueryEscape(requestURI),
		}

		result, err := s.flow.Authorize(r.Context(), tenant(r), params, sessionToken(r), grantingID(r))
		if err != nil {
			writeError(w, err)
			return
		}

		if result.TransactionID != "" {
			setCookie(w, GrantingCookie, result.TransactionID)
		}
		if result.ClearTransaction {
			clearCookie(w, GrantingCookie)
		}
		http.Redirect(w, r, result.RedirectURL, http.StatusFound)
	}
}

// ScopesHandler renders the pending consent decision for the logged-in user.
func (s *Server) ScopesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		summary, err := s.flow.GetScopes(r.Context(), tenant(r), sessionToken(r), grantingID(r))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, summary)
	}
}

// GrantHandler records the user's consent decision.
func (s *Server) GrantHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		selected := oauth.ParseScopes(r.FormValue("scope"))
		if err := s.flow.Grant(r.Context(), tenant(r), sessionToken(r), grantingID(r), selected); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// TokenHandler exchanges an authorization code for an access token.
func (s *Server) TokenHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params := oauth.AccessTokenParams{
			GrantType:    r.FormValue("grant_type"),
			ClientID:     r.FormValue("client_id"),
			ClientSecret: r.FormValue("client_secret"),
			Code:         r.FormValue("code"),
			RedirectURI:  r.FormValue("redirect_uri"),
		}

		resp, err := s.flow.AccessToken(r.Context(), tenant(r), params)
		if err != nil {
			writeError(w, err)
			return
		}
		writeTokenResponse(w, r, resp)
	}
}

// UserInfoHandler returns the account fields the bearer token's scopes cover.
func (s *Server) UserInfoHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		info, err := s.flow.UserInfo(r.Context(), bearerToken(r))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, info)
	}
}

// grantingID reads the consent-transaction cookie.
func grantingID(r *http.Request) string {
	if cookie, err := r.Cookie(GrantingCookie); err == nil {
		return cookie.Value
	}
	return ""
}

// bearerToken extracts the access token from the Authorization header,
// falling back to the access_token parameter.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return strings.TrimSpace(header[len("bearer "):])
	}
	return r.FormValue("access_token")
}

// canonicalRequestURI normalises the authorize URL so its digest is stable
// between the first visit and the post-login retry. Query parameters are
// re-encoded in sorted key order.
func canonicalRequestURI(r *http.Request) string {
	query := r.URL.Query()
	if encoded := query.Encode(); encoded != "" {
		return r.URL.Path + "?" + encoded
	}
	return r.URL.Path
}

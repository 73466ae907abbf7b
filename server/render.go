package server

import (
	"encoding/json"
	"encoding/xml"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	apperrors "github.com/centrid/go-identity-server/internal/errors"
	"github.com/centrid/go-identity-server/oauth"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, apperrors.HTTPStatus(err), map[string]string{"error": err.Error()})
}

// writeTokenResponse renders the access-token response in the representation
// the Accept header asks for. JSON is the default; XML and form encoding are
// kept for older integrations.
func writeTokenResponse(w http.ResponseWriter, r *http.Request, resp *oauth.TokenResponse) {
	accept := r.Header.Get("Accept")
	switch {
	case strings.Contains(accept, "xml"):
		w.Header().Set("Content-Type", "application/xml; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_ = xml.NewEncoder(w).Encode(resp)
	case strings.Contains(accept, "x-www-form-urlencoded"):
		form := url.Values{}
		form.Set("access_token", resp.AccessToken)
		form.Set("token_type", resp.TokenType)
		form.Set("expires_in", strconv.FormatInt(resp.ExpiresIn, 10))
		form.Set("account_id", resp.AccountID)
		form.Set("username", resp.Username)
		form.Set("scope", resp.Scope)
		w.Header().Set("Content-Type", "application/x-www-form-urlencoded; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(form.Encode()))
	default:
		writeJSON(w, http.StatusOK, resp)
	}
}

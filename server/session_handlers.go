package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/centrid/go-identity-server/internal/errors"
	"github.com/centrid/go-identity-server/session"
	"github.com/centrid/go-identity-server/token"
)

// PublicKeyHandler returns the base64 encoded session signing public key, so
// resource servers can verify token signatures without a round trip per
// request.
func (s *Server) PublicKeyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key, err := s.sessions.PublicKey()
		if err != nil {
			writeError(w, err)
			return
		}
		writeText(w, http.StatusOK, key)
	}
}

// LoginHandler authenticates an account and password for one endpoint and
// issues a session token.
func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		login := r.FormValue("account")
		password := r.FormValue("password")

		endpoint, endpointCfg := s.config.Endpoints.Resolve(r.FormValue("secret"))
		if endpoint == "" {
			writeError(w, apperrors.Unauthenticated("unknown endpoint secret"))
			return
		}

		account, err := s.accounts.GetByUsername(login)
		if err != nil {
			// Supervisor accounts have no username and log in by id.
			account, err = s.accounts.GetByID(login)
			if err != nil || !account.Supervisor {
				writeError(w, apperrors.Unauthenticated("invalid credentials"))
				return
			}
		}
		if !account.Active() {
			writeError(w, apperrors.Unauthenticated("account is disabled"))
			return
		}
		if !s.verifier.Verify(account.ID, password) {
			writeError(w, apperrors.Unauthenticated("invalid credentials"))
			return
		}

		extra, err := parseClaims(r.FormValue("claims"))
		if err != nil {
			writeError(w, apperrors.BadRequest("malformed claims parameter"))
			return
		}

		sess, err := s.sessions.Issue(r.Context(), tenant(r), account, endpoint, session.IssueRequest{
			Timeout: loginTimeout(r),
			Limit:   endpointCfg.Limit,
			Claims:  extra,
		})
		if err != nil {
			writeError(w, err)
			return
		}

		log.Info().Str("account", account.ID).Str("endpoint", endpoint).Msg("session issued")
		setCookie(w, SessionCookie, sess.Token())
		writeText(w, http.StatusOK, sess.Token())
	}
}

// LoginByTokenHandler derives a new session on another endpoint from an
// existing live session. Only sessions created by password login can be the
// source.
func (s *Server) LoginByTokenHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		endpoint, endpointCfg := s.config.Endpoints.Resolve(r.FormValue("secret"))
		if endpoint == "" {
			writeError(w, apperrors.Unauthenticated("unknown endpoint secret"))
			return
		}

		source, err := session.Parse(sessionToken(r))
		if err != nil {
			writeError(w, apperrors.Unauthenticated("malformed session token"))
			return
		}
		if source.TenantCode() != tenant(r) || !s.sessions.Verify(r.Context(), source) {
			writeError(w, apperrors.Unauthenticated("session is not valid"))
			return
		}

		// The source token may outlive its account; re-check before deriving.
		account, err := s.accounts.GetByID(source.AccountID())
		if err != nil || !account.Active() {
			writeError(w, apperrors.Unauthenticated("account is disabled"))
			return
		}

		extra, err := parseClaims(r.FormValue("claims"))
		if err != nil {
			writeError(w, apperrors.BadRequest("malformed claims parameter"))
			return
		}

		sess, err := s.sessions.IssueDerived(r.Context(), tenant(r), source, endpoint, session.IssueRequest{
			Timeout: loginTimeout(r),
			Limit:   endpointCfg.Limit,
			Claims:  extra,
		})
		if apperrors.Is(err, apperrors.ErrDerivedSession) {
			writeError(w, apperrors.ForbiddenErr(err))
			return
		}
		if err != nil {
			writeError(w, err)
			return
		}

		writeText(w, http.StatusOK, sess.Token())
	}
}

// LogoutHandler terminates the session behind the presented token. Best
// effort: an unparseable or already-dead token still gets a success reply.
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if sess, err := session.Parse(sessionToken(r)); err == nil && sess.TenantCode() == tenant(r) {
			if err := s.sessions.Invalid(r.Context(), sess); err != nil {
				log.Warn().Err(err).Str("session", sess.ID()).Msg("logout could not remove session")
			}
		}
		clearCookie(w, SessionCookie)
		writeText(w, http.StatusOK, "logged out")
	}
}

// VerifyHandler reports session liveness as a literal "true" or "false". It
// never fails: any problem with the token is just "false".
func (s *Server) VerifyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := sessionToken(r)
		live := false
		if sess, err := session.Parse(raw); err == nil && sess.TenantCode() == tenant(r) {
			live = s.sessions.Verify(r.Context(), sess)
		}
		writeText(w, http.StatusOK, strconv.FormatBool(live))
	}
}

// InvalidHandler is the administrative kill switch: it clears every session
// of the given account in the request's tenant.
func (s *Server) InvalidHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID := r.FormValue("accountId")
		if accountID == "" {
			writeError(w, apperrors.BadRequest("accountId is required"))
			return
		}
		if err := s.sessions.Clear(r.Context(), tenant(r), accountID); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// loginTimeout reads the optional per-login timeout in milliseconds. Zero
// means use the server default.
func loginTimeout(r *http.Request) time.Duration {
	millis, err := strconv.ParseInt(r.FormValue("timeout"), 10, 64)
	if err != nil || millis <= 0 {
		return 0
	}
	return time.Duration(millis) * time.Millisecond
}

// parseClaims turns the optional claims parameter, a flat JSON object, into
// extension claims. Nested values are rejected.
func parseClaims(param string) (*token.Claims, error) {
	if param == "" {
		return nil, nil
	}
	var values map[string]any
	if err := json.Unmarshal([]byte(param), &values); err != nil {
		return nil, err
	}

	claims := token.NewClaims()
	for name, value := range values {
		switch v := value.(type) {
		case string:
			claims.SetString(name, v)
		case bool:
			claims.SetBool(name, v)
		case float64:
			claims.SetFloat64(name, v)
		default:
			return nil, errInvalidClaimValue
		}
	}
	return claims, nil
}

var errInvalidClaimValue = apperrors.BadRequest("claim values must be scalar")

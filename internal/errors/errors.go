package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Protocol error classes. Every failure surfaced by the session and
// authorization subsystems wraps exactly one of these, so HTTP handlers can
// map any error to a response code without inspecting messages.
var (
	// ErrUnauthenticated covers missing, expired, or invalid sessions (401).
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrForbidden covers disabled features, tampered request digests, and
	// wrong-audience tokens (403).
	ErrForbidden = errors.New("forbidden")

	// ErrBadRequest covers malformed parameters, scope overreach, expired or
	// unknown codes and transactions, and client mismatches (400).
	ErrBadRequest = errors.New("bad request")

	// ErrUnavailable covers an unreachable signing/verification authority,
	// distinguished from BadRequest so callers can retry or alert (503).
	ErrUnavailable = errors.New("authority unavailable")
)

// Token errors
var (
	ErrInvalidSignature = errors.New("invalid token signature")
	ErrTokenExpired     = errors.New("token expired")
	ErrClaimMismatch    = errors.New("token claim mismatch")
	ErrInvalidToken     = errors.New("invalid token")
)

// Session errors
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrDerivedSession  = errors.New("session was issued from another session, re-issuance not allowed")
)

// Authorization flow errors
var (
	ErrInvalidClient       = errors.New("invalid client")
	ErrInvalidClientSecret = errors.New("invalid client secret")
	ErrInvalidRedirectURI  = errors.New("invalid redirect URI")
	ErrInvalidScope        = errors.New("invalid scope")
	ErrScopeExceeded       = errors.New("granted scope exceeds requested scope")
	ErrTransactionNotFound = errors.New("authorization transaction not found")
	ErrCodeExpired         = errors.New("authorization code expired or not found")
	ErrTampered            = errors.New("request parameters tampered")
)

// Unauthenticated wraps msg as a 401-class error.
func Unauthenticated(msg string) error {
	return fmt.Errorf("%w: %s", ErrUnauthenticated, msg)
}

// Forbidden wraps msg as a 403-class error.
func Forbidden(msg string) error {
	return fmt.Errorf("%w: %s", ErrForbidden, msg)
}

// BadRequest wraps msg as a 400-class error.
func BadRequest(msg string) error {
	return fmt.Errorf("%w: %s", ErrBadRequest, msg)
}

// BadRequestErr attaches the 400 class to an existing error.
func BadRequestErr(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrBadRequest, err)
}

// ForbiddenErr attaches the 403 class to an existing error.
func ForbiddenErr(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrForbidden, err)
}

// Unavailable wraps err as a 503-class error.
func Unavailable(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}

// HTTPStatus maps an error to its response code. Unknown errors are treated
// as internal failures.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

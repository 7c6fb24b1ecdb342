package oauth

import (
	"context"
	"errors"
)

// ErrorKind classifies authentication failures into the fixed taxonomy
// surfaced to the session state. Raw provider response shapes never leak
// past the token exchange boundary; they are folded into one of these kinds.
type ErrorKind string

const (
	// KindNetworkError covers any transport-level failure (offline, DNS,
	// timeout) during exchange, refresh, or profile fetch.
	KindNetworkError ErrorKind = "network_error"

	// KindTokenExchangeFailed means the provider rejected the authorization
	// code, or the callback's invariants were violated (missing code, missing
	// handshake, state mismatch).
	KindTokenExchangeFailed ErrorKind = "token_exchange_failed"

	// KindRefreshFailed means the provider rejected the refresh token
	// (e.g., revoked).
	KindRefreshFailed ErrorKind = "refresh_failed"

	// KindCallbackError means the provider itself reported an authorization
	// error (user denied consent, etc.).
	KindCallbackError ErrorKind = "callback_error"
)

// defaultMessages are the human-readable fallbacks per kind.
var defaultMessages = map[ErrorKind]string{
	KindNetworkError:        "network error",
	KindTokenExchangeFailed: "token exchange failed",
	KindRefreshFailed:       "token refresh failed",
	KindCallbackError:       "authorization callback error",
}

// AuthError is the single normalized error value placed into session state.
// It carries the taxonomy kind, a human-readable message, and the underlying
// cause for diagnostics.
type AuthError struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *AuthError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = defaultMessages[e.Kind]
	}
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the cause for error chain inspection.
func (e *AuthError) Unwrap() error {
	return e.Cause
}

// NewAuthError creates an AuthError with the given kind and message.
// An empty message falls back to the kind's default.
func NewAuthError(kind ErrorKind, message string, cause error) *AuthError {
	if message == "" {
		message = defaultMessages[kind]
	}
	return &AuthError{Kind: kind, Message: message, Cause: cause}
}

// FromError normalizes an arbitrary error into an AuthError. Existing
// AuthErrors pass through unchanged; context cancellation is preserved so
// callers can still distinguish it via errors.Is; everything else becomes
// the fallback kind.
func FromError(err error, fallback ErrorKind) *AuthError {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr
	}
	return NewAuthError(fallback, "", err)
}

// IsCancelled reports whether the error stems from context cancellation or
// deadline expiry of the caller's own context, as opposed to a provider or
// transport failure.
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

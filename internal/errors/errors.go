package errors

import (
	"errors"

	pkgerrors "github.com/pkg/errors"
)

// Common error types for the SMART launch client
var (
	// Launch context errors
	ErrIncompleteContext = errors.New("launch context incomplete")
	ErrInvalidIssuer     = errors.New("invalid issuer")

	// Discovery errors
	ErrDiscoveryFailed  = errors.New("smart configuration discovery failed")
	ErrEndpointsMissing = errors.New("smart configuration missing endpoints")

	// PKCE errors
	ErrMissingVerifier      = errors.New("missing PKCE code_verifier")
	ErrInvalidCodeVerifier  = errors.New("invalid code verifier")
	ErrInvalidCodeChallenge = errors.New("invalid code challenge")

	// Authorization / token errors
	ErrAuthorizationDenied = errors.New("authorization denied")
	ErrTokenExchange       = errors.New("token exchange failed")
	ErrInvalidToken        = errors.New("invalid token")
	ErrTokenExpired        = errors.New("token expired")

	// Session errors
	ErrSessionNotFound  = errors.New("session not found")
	ErrNotAuthenticated = errors.New("not authenticated")

	// General errors
	ErrNotFound       = errors.New("not found")
	ErrInvalidRequest = errors.New("invalid request")
)

// Wrapf annotates err with a formatted message and a stack trace. The
// result still matches err with Is.
func Wrapf(err error, format string, args ...interface{}) error {
	return pkgerrors.Wrapf(err, format, args...)
}

// Wrap annotates err with message and a stack trace.
func Wrap(err error, message string) error {
	return pkgerrors.Wrap(err, message)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// New returns an error that formats as the given text and records the
// stack at the call site.
func New(text string) error {
	return pkgerrors.New(text)
}

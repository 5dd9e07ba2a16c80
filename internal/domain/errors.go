package domain

import "errors"

// ErrorKind classifies a failed remote call. Exactly one kind is attached to
// every error the gateway returns; callers branch on the kind, the message is
// best-effort human text and not authoritative.
type ErrorKind string

const (
	ErrKindConnection ErrorKind = "connection-error" // transport failure
	ErrKindLogin      ErrorKind = "login-failed"     // auth rejected (HTTP 403)
	ErrKindRequest    ErrorKind = "request-failed"   // server-reported application error
	ErrKindTimeout    ErrorKind = "timeout"          // exceeded deadline
	ErrKindServer     ErrorKind = "server-error"     // non-2xx, non-auth
	ErrKindUnknown    ErrorKind = "unknown-error"    // fallback
)

// APIError is the tagged error produced by the remote API gateway. It never
// escapes as a panic; every gateway call resolves to a value or an APIError.
type APIError struct {
	Kind    ErrorKind
	Message string
	Err     error // underlying cause, may be nil
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return string(e.Kind) + ": " + e.Message
	}
	return string(e.Kind)
}

func (e *APIError) Unwrap() error { return e.Err }

// NewAPIError builds an APIError with an optional cause.
func NewAPIError(kind ErrorKind, message string, cause error) *APIError {
	return &APIError{Kind: kind, Message: message, Err: cause}
}

// KindOf extracts the error kind from err, or ErrKindUnknown when err is not
// an APIError.
func KindOf(err error) ErrorKind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return ErrKindUnknown
}

// IsAuthFailure reports whether err is a login rejection, which downstream
// gates further polling until re-authentication succeeds.
func IsAuthFailure(err error) bool {
	return KindOf(err) == ErrKindLogin
}

// Sentinel errors for local operations
var (
	// ErrNotRunning indicates the background daemon did not answer a message.
	ErrNotRunning = errors.New("daemon is not running")

	// ErrNotLoggedIn indicates the session is not authenticated.
	ErrNotLoggedIn = errors.New("not logged in to the download server")
)

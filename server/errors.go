package server

import (
	"errors"
	"fmt"
	"net/http"
)

// OAuth error codes. Kept in sync with the root package constants, which
// cannot be imported here.
const (
	ErrorCodeInvalidRequest       = "invalid_request"
	ErrorCodeInvalidClient        = "invalid_client"
	ErrorCodeInvalidGrant         = "invalid_grant"
	ErrorCodeUnauthorizedClient   = "unauthorized_client"
	ErrorCodeUnsupportedGrantType = "unsupported_grant_type"
)

// Error is a protocol error with the HTTP status it maps to.
type Error struct {
	Code        string
	Description string
	Status      int
}

func (e *Error) Error() string {
	if e.Description == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

func errInvalidRequest(desc string) *Error {
	return &Error{Code: ErrorCodeInvalidRequest, Description: desc, Status: http.StatusBadRequest}
}

func errInvalidClient(desc string) *Error {
	return &Error{Code: ErrorCodeInvalidClient, Description: desc, Status: http.StatusUnauthorized}
}

func errInvalidGrant(desc string) *Error {
	return &Error{Code: ErrorCodeInvalidGrant, Description: desc, Status: http.StatusBadRequest}
}

func errUnauthorizedClient() *Error {
	return &Error{Code: ErrorCodeUnauthorizedClient, Status: http.StatusBadRequest}
}

func errUnsupportedGrantType() *Error {
	return &Error{Code: ErrorCodeUnsupportedGrantType, Status: http.StatusBadRequest}
}

var (
	// ErrStoreUnavailable wraps every KV failure. Callers surface it as an
	// opaque server error.
	ErrStoreUnavailable = errors.New("credential store unavailable")

	// ErrInvalidToken is returned by bearer validation for a token or API key
	// that is unknown or expired.
	ErrInvalidToken = errors.New("invalid or expired token")
)

func storeError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, err)
}

package oauth

import (
	"errors"
	"strings"
)

// Errors named after the OAuth2 error codes they are reported as.
var (
	ErrInvalidClient        = errors.New("invalid_client")
	ErrInvalidGrant         = errors.New("invalid_grant")
	ErrInvalidRequest       = errors.New("invalid_request")
	ErrInvalidScope         = errors.New("invalid_scope")
	ErrInvalidToken         = errors.New("invalid_token")
	ErrUnsupportedGrantType = errors.New("unsupported_grant_type")
	ErrUnsupportedResponse  = errors.New("unsupported_response_type")
	ErrAccessDenied         = errors.New("access_denied")
	// ErrRegistrationDisabled is returned while new logins are switched off.
	ErrRegistrationDisabled = errors.New("registration-disabled")
	// ErrCapability is returned when the consenting user may not authorize
	// clients at all.
	ErrCapability = errors.New("insufficient-capability")
)

// ValidationError is one rejected field of an app registration.
type ValidationError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	return e.Code + ": " + e.Message
}

// ValidationErrors collects every rejected field of one registration.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, len(e))
	for i, v := range e {
		msgs[i] = v.Error()
	}
	return strings.Join(msgs, "; ")
}

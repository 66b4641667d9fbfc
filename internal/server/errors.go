package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/chao7150/wpmastodon/internal/media"
	"github.com/chao7150/wpmastodon/internal/oauth"
	"github.com/chao7150/wpmastodon/internal/projection"
	"github.com/chao7150/wpmastodon/internal/store"
)

// APIError is an error with the status and body it is reported as.
type APIError struct {
	Status      int
	Code        string
	Description string
	// Details lists field level failures of a 422.
	Details []oauth.ValidationError
	Err     error
}

func NewAPIError(status int, code, description string) *APIError {
	return &APIError{Status: status, Code: code, Description: description}
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Description, e.Err)
	}
	return e.Code + ": " + e.Description
}

func (e *APIError) Unwrap() error {
	return e.Err
}

type errorBody struct {
	Error            string                  `json:"error"`
	ErrorDescription string                  `json:"error_description"`
	Details          []oauth.ValidationError `json:"details,omitempty"`
}

var (
	errNotFound     = NewAPIError(http.StatusNotFound, "record-not-found", "Record not found")
	errTokenMissing = NewAPIError(http.StatusUnauthorized, "token-required", "The access token is invalid")
	errScope        = NewAPIError(http.StatusUnauthorized, "insufficient-permissions", "This action is outside the authorized scopes")
	errUserRequired = NewAPIError(http.StatusUnprocessableEntity, "user-required", "This method requires an authenticated user")
	errForbidden    = NewAPIError(http.StatusForbidden, "forbidden", "This action is not allowed")
)

func validationFailed(description string) *APIError {
	return NewAPIError(http.StatusUnprocessableEntity, "validation-failed", description)
}

// toAPIError maps errors from every layer to the response they produce.
func toAPIError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	var verrs oauth.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return &APIError{
			Status:      http.StatusUnprocessableEntity,
			Code:        verrs[0].Code,
			Description: verrs.Error(),
			Details:     verrs,
		}
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		desc := http.StatusText(he.Code)
		if msg, ok := he.Message.(string); ok {
			desc = msg
		}
		code := strings.ReplaceAll(strings.ToLower(http.StatusText(he.Code)), " ", "-")
		return &APIError{Status: he.Code, Code: code, Description: desc, Err: he.Internal}
	}

	switch {
	case errors.Is(err, projection.ErrNotFound), errors.Is(err, store.ErrNotFound), errors.Is(err, media.ErrNotFound):
		return errNotFound
	case errors.Is(err, projection.ErrIntegrity):
		return &APIError{Status: http.StatusInternalServerError, Code: "integrity-error", Description: "The requested entity could not be built", Err: err}
	case errors.Is(err, media.ErrUnsupportedType):
		return validationFailed("Unsupported media type")
	case errors.Is(err, oauth.ErrRegistrationDisabled):
		return NewAPIError(http.StatusForbidden, "registration-disabled", "Registration of new clients is disabled")
	case errors.Is(err, oauth.ErrCapability):
		return NewAPIError(http.StatusForbidden, "insufficient-capability", "This user may not authorize clients")
	case errors.Is(err, oauth.ErrInvalidToken):
		return errTokenMissing
	case errors.Is(err, oauth.ErrInvalidClient):
		return NewAPIError(http.StatusUnauthorized, "invalid_client", "Client authentication failed")
	case errors.Is(err, oauth.ErrAccessDenied):
		return NewAPIError(http.StatusForbidden, "access_denied", "The resource owner or server denied the request")
	}
	for _, oe := range []error{
		oauth.ErrInvalidGrant, oauth.ErrInvalidRequest, oauth.ErrInvalidScope,
		oauth.ErrUnsupportedGrantType, oauth.ErrUnsupportedResponse,
	} {
		if errors.Is(err, oe) {
			return NewAPIError(http.StatusBadRequest, oe.Error(), oauthDescriptions[oe])
		}
	}
	return &APIError{Status: http.StatusInternalServerError, Code: "internal-error", Description: "Internal server error", Err: err}
}

var oauthDescriptions = map[error]string{
	oauth.ErrInvalidGrant:         "The provided authorization grant is invalid, expired or revoked",
	oauth.ErrInvalidRequest:       "The request is missing a required parameter or is otherwise malformed",
	oauth.ErrInvalidScope:         "The requested scope is invalid, unknown or malformed",
	oauth.ErrUnsupportedGrantType: "The authorization grant type is not supported",
	oauth.ErrUnsupportedResponse:  "The authorization server does not support this response type",
}

// errorHandler writes {error, error_description} for API paths and falls
// back to the echo default elsewhere.
func (s *Server) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	apiErr := toAPIError(err)
	l := s.logger.With().Str("path", c.Request().URL.Path).Logger()
	if apiErr.Status >= http.StatusInternalServerError {
		l.Error().Err(err).Msg("request failed")
	} else {
		l.Debug().Err(err).Msg("request rejected")
	}

	if !isAPIPath(c.Request().URL.Path) {
		s.echo.DefaultHTTPErrorHandler(echo.NewHTTPError(apiErr.Status, apiErr.Description), c)
		return
	}
	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(apiErr.Status)
		return
	}
	_ = c.JSON(apiErr.Status, errorBody{
		Error:            apiErr.Code,
		ErrorDescription: apiErr.Description,
		Details:          apiErr.Details,
	})
}

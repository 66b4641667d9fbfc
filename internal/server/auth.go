package server

import (
	"errors"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/chao7150/wpmastodon/internal/model"
	"github.com/chao7150/wpmastodon/internal/oauth"
	"github.com/chao7150/wpmastodon/internal/projection"
)

const (
	grantKey      = "grant"
	tokenErrorKey = "token_error"
)

func bearerToken(c echo.Context) string {
	h := c.Request().Header.Get(echo.HeaderAuthorization)
	if token, ok := strings.CutPrefix(h, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return c.QueryParam("access_token")
}

// authenticate resolves the bearer token, if any. A missing or invalid token
// leaves the request anonymous; routes that need a grant reject it later.
func (s *Server) authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token := bearerToken(c)
		if token == "" {
			return next(c)
		}
		g, err := s.oauth.Authenticate(c.Request().Context(), token)
		if err != nil {
			if !errors.Is(err, oauth.ErrInvalidToken) {
				return err
			}
			c.Set(tokenErrorKey, err)
			return next(c)
		}
		c.Set(grantKey, g)
		return next(c)
	}
}

func grantOf(c echo.Context) *oauth.Grant {
	g, _ := c.Get(grantKey).(*oauth.Grant)
	return g
}

// viewerOf returns the request scoped identity. It is anonymous unless a
// valid token was presented.
func viewerOf(c echo.Context) projection.Viewer {
	g := grantOf(c)
	if g == nil {
		return projection.Viewer{}
	}
	return projection.Viewer{User: g.User, App: g.App, Scope: g.Token.Scope}
}

// userOf returns the token's user. Only valid behind requireUser.
func userOf(c echo.Context) *model.User {
	return grantOf(c).User
}

// requireScope rejects requests without a valid token covering scope. An
// empty scope only requires a valid token.
func (s *Server) requireScope(scope string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			g := grantOf(c)
			if g == nil {
				if err, ok := c.Get(tokenErrorKey).(error); ok {
					return &APIError{Status: errTokenMissing.Status, Code: errTokenMissing.Code, Description: errTokenMissing.Description, Err: err}
				}
				return errTokenMissing
			}
			if scope != "" && !g.Allows(scope) {
				return errScope
			}
			return next(c)
		}
	}
}

// requireUser is requireScope for endpoints acting on behalf of a user.
func (s *Server) requireUser(scope string) echo.MiddlewareFunc {
	check := s.requireScope(scope)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return check(func(c echo.Context) error {
			if grantOf(c).User == nil {
				return errUserRequired
			}
			return next(c)
		})
	}
}

// kindsOf lists the native kinds the calling app may view.
func kindsOf(v projection.Viewer) []string {
	if v.App == nil {
		return nil
	}
	return v.App.PostTypeList()
}

package server

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/chao7150/wpmastodon/internal/mastodon"
	"github.com/chao7150/wpmastodon/internal/oauth"
)

func (s *Server) postApps(c echo.Context) error {
	p, err := readParams(c)
	if err != nil {
		return err
	}
	app, err := s.oauth.RegisterApp(c.Request().Context(), oauth.Registration{
		ClientName:   p.Get("client_name"),
		RedirectUris: p.All("redirect_uris"),
		Scopes:       p.Get("scopes"),
		Website:      p.Get("website"),
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, oauth.AppRegistration(app))
}

func (s *Server) getAppCredentials(c echo.Context) error {
	app := grantOf(c).App
	res := mastodon.Application{Name: app.ClientName}
	if app.Website != "" {
		res.Website = &app.Website
	}
	return c.JSON(http.StatusOK, res)
}

func authorizeRequest(p params) oauth.AuthorizeRequest {
	return oauth.AuthorizeRequest{
		ResponseType: p.Get("response_type"),
		ClientId:     p.Get("client_id"),
		RedirectUri:  p.Get("redirect_uri"),
		Scope:        p.Get("scope"),
		State:        p.Get("state"),
	}
}

// authorizeURL rebuilds the GET form of an authorization request.
func authorizeURL(r oauth.AuthorizeRequest) string {
	q := url.Values{}
	q.Set("response_type", r.ResponseType)
	q.Set("client_id", r.ClientId)
	q.Set("redirect_uri", r.RedirectUri)
	if r.Scope != "" {
		q.Set("scope", r.Scope)
	}
	if r.State != "" {
		q.Set("state", r.State)
	}
	return "/oauth/authorize?" + q.Encode()
}

func (s *Server) getAuthorize(c echo.Context) error {
	ctx := c.Request().Context()
	p, err := readParams(c)
	if err != nil {
		return err
	}
	r := authorizeRequest(p)
	app, scope, err := s.oauth.CheckAuthorize(ctx, r)
	if err != nil {
		return err
	}
	user, err := s.loggedInUser(c)
	if err != nil {
		return err
	}
	if user == nil {
		return redirectToLogin(c)
	}
	if !user.CanManagePrivate() {
		return oauth.ErrCapability
	}
	return s.render(c, http.StatusOK, "authorize", map[string]any{
		"Title":   "Authorize " + app.ClientName,
		"App":     app,
		"User":    user,
		"Request": r,
		"Scope":   scope,
		"Scopes":  strings.Fields(scope),
	})
}

func (s *Server) postAuthorize(c echo.Context) error {
	ctx := c.Request().Context()
	p, err := readParams(c)
	if err != nil {
		return err
	}
	r := authorizeRequest(p)
	app, scope, err := s.oauth.CheckAuthorize(ctx, r)
	if err != nil {
		return err
	}
	user, err := s.loggedInUser(c)
	if err != nil {
		return err
	}
	if user == nil {
		return c.Redirect(http.StatusFound, "/login?redirect_to="+url.QueryEscape(authorizeURL(r)))
	}
	if p.Get("authorize") != "Authorize" {
		return NewAPIError(http.StatusForbidden, "consent_required", "The user did not authorize the client")
	}
	code, err := s.oauth.IssueCode(ctx, app, user, r.RedirectUri, scope)
	if err != nil {
		return err
	}
	s.logger.Info().Str("client_id", app.ClientId).Str("login", user.Login).Msg("authorized client")

	if r.RedirectUri == oauth.OOBRedirect {
		return s.render(c, http.StatusOK, "code", map[string]any{
			"Title": "Authorization code",
			"App":   app,
			"Code":  code,
		})
	}
	target, err := url.Parse(r.RedirectUri)
	if err != nil {
		return oauth.ErrInvalidRequest
	}
	q := target.Query()
	q.Set("code", code)
	if r.State != "" {
		q.Set("state", r.State)
	}
	target.RawQuery = q.Encode()
	return c.Redirect(http.StatusFound, target.String())
}

// clientCredentials reads client_id and client_secret from the body or from
// HTTP basic auth.
func clientCredentials(c echo.Context, p params) (string, string) {
	id, secret := p.Get("client_id"), p.Get("client_secret")
	if user, pass, ok := c.Request().BasicAuth(); ok {
		if id == "" {
			id = user
		}
		if secret == "" {
			secret = pass
		}
	}
	return id, secret
}

func (s *Server) postToken(c echo.Context) error {
	p, err := readParams(c)
	if err != nil {
		return err
	}
	id, secret := clientCredentials(c, p)
	token, err := s.oauth.Exchange(c.Request().Context(), oauth.TokenRequest{
		GrantType:    p.Get("grant_type"),
		Code:         p.Get("code"),
		RedirectUri:  p.Get("redirect_uri"),
		ClientId:     id,
		ClientSecret: secret,
		Scope:        p.Get("scope"),
	})
	if err != nil {
		return err
	}
	c.Response().Header().Set("Cache-Control", "no-store")
	return c.JSON(http.StatusOK, token)
}

func (s *Server) postRevoke(c echo.Context) error {
	p, err := readParams(c)
	if err != nil {
		return err
	}
	id, secret := clientCredentials(c, p)
	if err := s.oauth.Revoke(c.Request().Context(), id, secret, p.Get("token")); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{})
}

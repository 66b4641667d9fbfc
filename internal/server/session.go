package server

import (
	"embed"
	"errors"
	"html/template"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/chao7150/wpmastodon/internal/model"
	"github.com/chao7150/wpmastodon/internal/oauth"
)

//go:embed templates/*.html
var templateFiles embed.FS

var pages = map[string]*template.Template{}

func init() {
	for _, name := range []string{"login", "authorize", "code"} {
		pages[name] = template.Must(template.ParseFS(templateFiles, "templates/layout.html", "templates/"+name+".html"))
	}
}

const csrfKey = "csrf"

func (s *Server) csrf() echo.MiddlewareFunc {
	return middleware.CSRFWithConfig(middleware.CSRFConfig{
		TokenLookup:    "form:" + csrfKey,
		ContextKey:     csrfKey,
		CookieName:     "wpm_csrf",
		CookiePath:     "/",
		CookieHTTPOnly: true,
		CookieSameSite: http.SameSiteLaxMode,
		CookieSecure:   s.secureCookies(),
	})
}

func (s *Server) secureCookies() bool {
	return strings.HasPrefix(s.cfg.Server.BaseURL, "https://")
}

func (s *Server) render(c echo.Context, status int, name string, data map[string]any) error {
	data["Site"] = s.cfg.Site.Title
	data["CSRF"], _ = c.Get(csrfKey).(string)
	var b strings.Builder
	if err := pages[name].ExecuteTemplate(&b, name+".html", data); err != nil {
		return err
	}
	return c.HTML(status, b.String())
}

// loggedInUser returns the user of a valid session cookie, or nil.
func (s *Server) loggedInUser(c echo.Context) (*model.User, error) {
	cookie, err := c.Cookie(oauth.SessionCookie)
	if err != nil || cookie.Value == "" {
		return nil, nil
	}
	user, err := s.sessions.User(c.Request().Context(), cookie.Value)
	if err != nil {
		if errors.Is(err, oauth.ErrInvalidSession) {
			return nil, nil
		}
		return nil, err
	}
	return user, nil
}

// redirectToLogin sends the browser to the login page, returning to the
// current request afterwards.
func redirectToLogin(c echo.Context) error {
	return c.Redirect(http.StatusFound, "/login?redirect_to="+url.QueryEscape(c.Request().URL.RequestURI()))
}

// localRedirect keeps redirect_to on this site.
func localRedirect(target string) string {
	if !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return "/"
	}
	return target
}

func (s *Server) getLogin(c echo.Context) error {
	return s.render(c, http.StatusOK, "login", map[string]any{
		"Title":      "Log in",
		"RedirectTo": localRedirect(c.QueryParam("redirect_to")),
	})
}

func (s *Server) postLogin(c echo.Context) error {
	login := strings.TrimSpace(c.FormValue("log"))
	redirectTo := localRedirect(c.FormValue("redirect_to"))
	user, token, err := s.sessions.Login(c.Request().Context(), login, c.FormValue("pwd"))
	if err != nil {
		status, msg := http.StatusUnauthorized, "Unknown username or wrong password."
		switch {
		case errors.Is(err, oauth.ErrLoginsDisabled):
			status, msg = http.StatusForbidden, "Logins are currently disabled."
		case !errors.Is(err, oauth.ErrBadCredentials):
			return err
		}
		return s.render(c, status, "login", map[string]any{
			"Title":      "Log in",
			"Error":      msg,
			"Login":      login,
			"RedirectTo": redirectTo,
		})
	}
	c.SetCookie(&http.Cookie{
		Name:     oauth.SessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  s.store.Now().Add(oauth.SessionLifetime),
		MaxAge:   int(oauth.SessionLifetime / time.Second),
		HttpOnly: true,
		Secure:   s.secureCookies(),
		SameSite: http.SameSiteLaxMode,
	})
	s.logger.Info().Str("login", user.Login).Msg("user logged in")
	return c.Redirect(http.StatusFound, redirectTo)
}

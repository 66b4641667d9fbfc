// Package server exposes the Mastodon REST and OAuth2 endpoints over echo.
package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/chao7150/wpmastodon/internal/config"
	"github.com/chao7150/wpmastodon/internal/logging"
	"github.com/chao7150/wpmastodon/internal/media"
	"github.com/chao7150/wpmastodon/internal/oauth"
	"github.com/chao7150/wpmastodon/internal/projection"
	"github.com/chao7150/wpmastodon/internal/remote"
	"github.com/chao7150/wpmastodon/internal/store"
	"github.com/chao7150/wpmastodon/internal/timeline"
)

// Deps are the collaborators the handlers use. Remote may be nil, which
// disables resolving remote accounts in search and lookup.
type Deps struct {
	Config    *config.Config
	Store     *store.Store
	Projector *projection.Projector
	Timeline  *timeline.Engine
	OAuth     *oauth.Provider
	Sessions  *oauth.Sessions
	Media     *media.Library
	Remote    *remote.Resolver
	Logger    zerolog.Logger
}

type Server struct {
	cfg      *config.Config
	store    *store.Store
	proj     *projection.Projector
	timeline *timeline.Engine
	oauth    *oauth.Provider
	sessions *oauth.Sessions
	media    *media.Library
	remote   *remote.Resolver
	logger   zerolog.Logger
	composer *composer

	echo *echo.Echo
}

func New(d Deps) *Server {
	s := &Server{
		cfg:      d.Config,
		store:    d.Store,
		proj:     d.Projector,
		timeline: d.Timeline,
		oauth:    d.OAuth,
		sessions: d.Sessions,
		media:    d.Media,
		remote:   d.Remote,
		logger:   d.Logger,
	}
	s.composer = newComposer(d.Store, d.Media, d.Projector)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.errorHandler
	e.Use(logging.Middleware(d.Logger))
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowCredentials: true,
		AllowMethods:     []string{http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders:     []string{echo.HeaderAuthorization, echo.HeaderContentType, echo.HeaderAccept, "Idempotency-Key"},
		ExposeHeaders:    []string{"Link", echo.HeaderXRequestID},
	}))
	e.Use(s.authenticate)
	s.echo = e
	s.routes()
	return s
}

// Handler returns the http.Handler serving every route.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	errc := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("listening")
		errc <- s.echo.Start(addr)
	}()
	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.echo.Shutdown(shutdownCtx)
	}
}

func (s *Server) routes() {
	e := s.echo

	e.GET("/login", s.getLogin, s.csrf())
	e.POST("/login", s.postLogin, s.csrf())
	e.GET("/uploads/*", s.getUpload)

	e.GET("/.well-known/nodeinfo", s.getNodeInfoLinks)
	e.GET("/nodeinfo/2.0", s.getNodeInfo)
	e.GET("/api/nodeinfo/2.0.json", s.getNodeInfo)

	o := e.Group("/oauth")
	o.GET("/authorize", s.getAuthorize, s.csrf())
	o.POST("/authorize", s.postAuthorize, s.csrf())
	o.POST("/token", s.postToken)
	o.POST("/revoke", s.postRevoke)

	v1 := e.Group("/api/v1")
	v1.POST("/apps", s.postApps)
	v1.GET("/apps/verify_credentials", s.getAppCredentials, s.requireScope(""))
	v1.GET("/instance", s.getInstance)
	v1.GET("/instance/peers", s.emptyList)
	v1.GET("/instance/activity", s.emptyList)

	v1.GET("/timelines/home", s.getHomeTimeline, s.requireScope("read:statuses"))
	v1.GET("/timelines/public", s.getPublicTimeline)
	v1.GET("/timelines/tag/:hashtag", s.getTagTimeline)

	v1.POST("/statuses", s.postStatus, s.requireUser("write:statuses"))
	v1.GET("/statuses/:id", s.getStatus)
	v1.DELETE("/statuses/:id", s.deleteStatus, s.requireUser("write:statuses"))
	v1.GET("/statuses/:id/context", s.getStatusContext)
	v1.POST("/statuses/:id/favourite", s.react(reactionFavourite, true), s.requireUser("write:favourites"))
	v1.POST("/statuses/:id/unfavourite", s.react(reactionFavourite, false), s.requireUser("write:favourites"))
	v1.POST("/statuses/:id/reblog", s.react(reactionReblog, true), s.requireUser("write:statuses"))
	v1.POST("/statuses/:id/unreblog", s.react(reactionReblog, false), s.requireUser("write:statuses"))
	v1.GET("/statuses/:id/favourited_by", s.emptyList)
	v1.GET("/statuses/:id/reblogged_by", s.emptyList)

	v1.GET("/accounts/verify_credentials", s.getVerifyCredentials, s.requireUser("read:accounts"))
	v1.GET("/accounts/relationships", s.getRelationships, s.requireUser("read:follows"))
	v1.GET("/accounts/lookup", s.getAccountLookup)
	v1.GET("/accounts/search", s.getAccountSearch)
	v1.GET("/accounts/:id", s.getAccount)
	v1.GET("/accounts/:id/statuses", s.getAccountStatuses)
	v1.GET("/accounts/:id/followers", s.getAccountCollection)
	v1.GET("/accounts/:id/following", s.getAccountCollection)
	v1.POST("/accounts/:id/follow", s.follow(true), s.requireUser("write:follows"))
	v1.POST("/accounts/:id/unfollow", s.follow(false), s.requireUser("write:follows"))

	v1.GET("/notifications", s.getNotifications, s.requireUser("read:notifications"))
	v1.POST("/notifications/clear", s.postClearNotifications, s.requireUser("write:notifications"))
	v1.POST("/notifications/dismiss", s.postDismissNotification, s.requireUser("write:notifications"))
	v1.GET("/notifications/:id", s.getNotification, s.requireUser("read:notifications"))
	v1.POST("/notifications/:id/dismiss", s.postDismissNotification, s.requireUser("write:notifications"))

	v1.POST("/media", s.postMedia, s.requireUser("write:media"))
	v1.GET("/media/:id", s.getMedia, s.requireUser("write:media"))
	v1.PUT("/media/:id", s.putMedia, s.requireUser("write:media"))

	v1.GET("/search", s.getSearch)

	for _, path := range []string{
		"/announcements", "/filters", "/lists", "/bookmarks", "/conversations",
		"/mutes", "/blocks", "/custom_emojis", "/favourites", "/follow_requests",
		"/endorsements", "/featured_tags", "/domain_blocks", "/suggestions",
		"/trends", "/trends/tags", "/trends/statuses", "/followed_tags",
	} {
		v1.GET(path, s.emptyList)
	}
	v1.GET("/markers", s.emptyObject)
	v1.POST("/markers", s.emptyObject)
	v1.GET("/preferences", s.emptyObject)
	v1.Any("/streaming", s.streamingUnsupported)
	v1.Any("/streaming/*", s.streamingUnsupported)

	v2 := e.Group("/api/v2")
	v2.GET("/instance", s.getInstanceV2)
	v2.POST("/media", s.postMedia, s.requireUser("write:media"))
	v2.GET("/search", s.getSearch)
	v2.GET("/filters", s.emptyList)
	v2.GET("/suggestions", s.emptyList)
}

// isAPIPath reports whether errors on path are rendered as JSON.
func isAPIPath(path string) bool {
	return strings.HasPrefix(path, "/api/") || strings.HasPrefix(path, "/oauth/") ||
		strings.HasPrefix(path, "/.well-known/") || strings.HasPrefix(path, "/nodeinfo/")
}

func (s *Server) emptyList(c echo.Context) error {
	return c.JSON(http.StatusOK, []any{})
}

func (s *Server) emptyObject(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{})
}

func (s *Server) streamingUnsupported(c echo.Context) error {
	return NewAPIError(http.StatusNotFound, "streaming-unsupported", "streaming is not supported by this server")
}

package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/chao7150/wpmastodon/internal/mastodon"
	"github.com/chao7150/wpmastodon/internal/model"
	"github.com/chao7150/wpmastodon/internal/projection"
	"github.com/chao7150/wpmastodon/internal/timeline"
)

const (
	reactionFavourite = model.ReactionFavourite
	reactionReblog    = model.ReactionReblog
)

// statusQuery reads the filters shared by every status timeline.
func statusQuery(p params, v projection.Viewer) timeline.Query {
	return timeline.Query{
		Kinds:     kindsOf(v),
		OnlyMedia: p.Bool("only_media"),
		MinId:     p.Get("min_id"),
		MaxId:     p.Get("max_id"),
		SinceId:   p.Get("since_id"),
		Limit:     p.Int("limit"),
	}
}

// writePage writes a page of items with its Link header.
func writePage[T any](c echo.Context, page *timeline.Page[T]) error {
	if link := page.Link(absoluteURL(c)); link != "" {
		c.Response().Header().Set("Link", link)
	}
	items := page.Items
	if items == nil {
		items = []T{}
	}
	return c.JSON(http.StatusOK, items)
}

func (s *Server) statuses(c echo.Context, q timeline.Query) error {
	page, err := s.timeline.Statuses(c.Request().Context(), q, viewerOf(c))
	if err != nil {
		return err
	}
	return writePage(c, page)
}

func (s *Server) getHomeTimeline(c echo.Context) error {
	p, err := readParams(c)
	if err != nil {
		return err
	}
	return s.statuses(c, statusQuery(p, viewerOf(c)))
}

func (s *Server) getPublicTimeline(c echo.Context) error {
	p, err := readParams(c)
	if err != nil {
		return err
	}
	// Everything here is local, so remote=true selects nothing.
	if p.Bool("remote") {
		return c.JSON(http.StatusOK, []mastodon.Status{})
	}
	return s.statuses(c, statusQuery(p, viewerOf(c)))
}

func (s *Server) getTagTimeline(c echo.Context) error {
	p, err := readParams(c)
	if err != nil {
		return err
	}
	q := statusQuery(p, viewerOf(c))
	q.Tag = strings.TrimPrefix(c.Param("hashtag"), "#")
	return s.statuses(c, q)
}

func (s *Server) getStatus(c echo.Context) error {
	st, err := s.proj.StatusByID(c.Request().Context(), c.Param("id"), viewerOf(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, st)
}

func (s *Server) postStatus(c echo.Context) error {
	p, err := readParams(c)
	if err != nil {
		return err
	}
	v := viewerOf(c)
	n, err := s.composer.Create(c.Request().Context(), v, Draft{
		Text:        p.Get("status"),
		InReplyToId: p.Get("in_reply_to_id"),
		MediaIds:    p.All("media_ids"),
		Visibility:  p.Get("visibility"),
		SpoilerText: p.Get("spoiler_text"),
	})
	if err != nil {
		return err
	}
	st, err := s.proj.Status(c.Request().Context(), n, v)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, st)
}

func (s *Server) deleteStatus(c echo.Context) error {
	ctx := c.Request().Context()
	v := viewerOf(c)
	user := userOf(c)
	n, err := s.proj.NativeByID(ctx, c.Param("id"))
	if err != nil {
		return err
	}
	st, err := s.proj.Status(ctx, n, v)
	if err != nil {
		return err
	}
	switch {
	case n.Comment != nil:
		if n.Comment.UserId != user.Id && !user.CanManagePrivate() {
			return errForbidden
		}
		if err := s.store.DeleteComment(ctx, n.Comment.Id); err != nil {
			return err
		}
	case n.Post != nil:
		if n.Post.AuthorId != user.Id && !user.CanManagePrivate() {
			return errForbidden
		}
		if err := s.store.UpdatePostStatus(ctx, n.Post.Id, model.StatusTrash); err != nil {
			return err
		}
	default:
		return errNotFound
	}
	s.logger.Info().Str("status_id", st.Id).Str("login", user.Login).Msg("deleted status")
	return c.JSON(http.StatusOK, st)
}

func (s *Server) getStatusContext(c echo.Context) error {
	ctx := c.Request().Context()
	v := viewerOf(c)
	n, err := s.proj.NativeByID(ctx, c.Param("id"))
	if err != nil {
		return err
	}
	// The status itself must be visible before its thread is.
	if _, err := s.proj.Status(ctx, n, v); err != nil {
		return err
	}
	tc, err := s.timeline.Context(ctx, n, v)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, tc)
}

// react records or removes a favourite or reblog of the viewer.
func (s *Server) react(kind string, on bool) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		v := viewerOf(c)
		id := c.Param("id")
		if _, err := s.proj.StatusByID(ctx, id, v); err != nil {
			return err
		}
		var err error
		if on {
			err = s.store.InsertReaction(ctx, v.UserId(), id, kind)
		} else {
			err = s.store.DeleteReaction(ctx, v.UserId(), id, kind)
		}
		if err != nil {
			return err
		}
		st, err := s.proj.StatusByID(ctx, id, v)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, st)
	}
}

// dropped reports whether err only means the item cannot be shown.
func dropped(err error) bool {
	return errors.Is(err, projection.ErrNotFound) || errors.Is(err, projection.ErrIntegrity)
}

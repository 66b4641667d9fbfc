package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/chao7150/wpmastodon/internal/timeline"
)

func (s *Server) getNotifications(c echo.Context) error {
	p, err := readParams(c)
	if err != nil {
		return err
	}
	page, err := s.timeline.Notifications(c.Request().Context(), timeline.NotificationQuery{
		Types:        p.All("types"),
		ExcludeTypes: p.All("exclude_types"),
		MinId:        p.Get("min_id"),
		MaxId:        p.Get("max_id"),
		SinceId:      p.Get("since_id"),
		Limit:        p.Int("limit"),
	}, viewerOf(c))
	if err != nil {
		return err
	}
	return writePage(c, page)
}

func (s *Server) getNotification(c echo.Context) error {
	n, err := s.timeline.Notification(c.Request().Context(), c.Param("id"), viewerOf(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, n)
}

func (s *Server) postClearNotifications(c echo.Context) error {
	if err := s.timeline.Clear(c.Request().Context(), viewerOf(c)); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{})
}

// postDismissNotification serves both /notifications/:id/dismiss and the
// older /notifications/dismiss taking the id as a parameter.
func (s *Server) postDismissNotification(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		p, err := readParams(c)
		if err != nil {
			return err
		}
		id = p.Get("id")
	}
	if id == "" {
		return validationFailed("id is required")
	}
	if err := s.timeline.Dismiss(c.Request().Context(), id, viewerOf(c)); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{})
}

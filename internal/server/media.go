package server

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"path"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/chao7150/wpmastodon/internal/media"
	"github.com/chao7150/wpmastodon/internal/model"
)

func (s *Server) postMedia(c echo.Context) error {
	ctx := c.Request().Context()
	fh, err := c.FormFile("file")
	if err != nil {
		return validationFailed("file is required")
	}
	if fh.Size > media.MaxUploadSize {
		return validationFailed(fmt.Sprintf("File is larger than %d bytes", media.MaxUploadSize))
	}
	f, err := fh.Open()
	if err != nil {
		return err
	}
	defer f.Close()

	att, err := s.media.Store(ctx, userOf(c), media.Upload{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get(echo.HeaderContentType),
		Size:        fh.Size,
		Body:        f,
		Description: c.FormValue("description"),
	})
	if err != nil {
		return err
	}
	s.logger.Info().Int64("attachment_id", att.Id).Str("mime_type", att.MimeType).Msg("stored upload")
	return s.writeMedia(c, att)
}

// ownedAttachment loads the attachment :id if the current user may edit it.
func (s *Server) ownedAttachment(c echo.Context) (*model.Post, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return nil, errNotFound
	}
	att, err := s.media.Attachment(c.Request().Context(), id)
	if err != nil {
		return nil, err
	}
	user := userOf(c)
	if att.AuthorId != user.Id && !user.CanManagePrivate() {
		return nil, errNotFound
	}
	return att, nil
}

func (s *Server) getMedia(c echo.Context) error {
	att, err := s.ownedAttachment(c)
	if err != nil {
		return err
	}
	return s.writeMedia(c, att)
}

func (s *Server) putMedia(c echo.Context) error {
	att, err := s.ownedAttachment(c)
	if err != nil {
		return err
	}
	p, err := readParams(c)
	if err != nil {
		return err
	}
	att, err = s.media.Describe(c.Request().Context(), userOf(c), att.Id, p.Get("description"))
	if err != nil {
		return err
	}
	return s.writeMedia(c, att)
}

func (s *Server) writeMedia(c echo.Context, att *model.Post) error {
	m, err := s.proj.AttachmentMedia(c.Request().Context(), att)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, m)
}

// getUpload serves stored files under /uploads/.
func (s *Server) getUpload(c echo.Context) error {
	key := c.Param("*")
	if key == "" {
		return errNotFound
	}
	if ct := mime.TypeByExtension(path.Ext(key)); ct != "" {
		c.Response().Header().Set(echo.HeaderContentType, ct)
	} else {
		c.Response().Header().Set(echo.HeaderContentType, echo.MIMEOctetStream)
	}
	c.Response().Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	err := s.media.Blobs().Get(c.Request().Context(), key, c.Response())
	if errors.Is(err, media.ErrNotFound) && !c.Response().Committed {
		c.Response().Header().Del("Cache-Control")
		return echo.ErrNotFound
	}
	return err
}

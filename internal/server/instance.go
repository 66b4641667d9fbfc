package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/chao7150/wpmastodon/internal/mastodon"
	"github.com/chao7150/wpmastodon/internal/media"
	"github.com/chao7150/wpmastodon/internal/model"
	"github.com/chao7150/wpmastodon/internal/store"
)

const (
	softwareName    = "wpmastodon"
	softwareVersion = "0.4.0"
	sourceURL       = "https://github.com/chao7150/wpmastodon"
)

// apiVersion is reported as the Mastodon version clients feature-detect on.
var apiVersion = fmt.Sprintf("4.0.0 (compatible; %s %s)", softwareName, softwareVersion)

var supportedMimeTypes = []string{
	"image/jpeg", "image/png", "image/gif", "image/webp", "image/avif",
	"video/mp4", "video/webm", "video/quicktime",
	"audio/mpeg", "audio/ogg", "audio/wav",
}

type siteStats struct {
	users    int64
	statuses int64
}

func (s *Server) stats(ctx context.Context) (siteStats, error) {
	users, err := s.store.CountUsers(ctx)
	if err != nil {
		return siteStats{}, err
	}
	posts, err := s.store.CountPosts(ctx, store.PostQuery{
		Types:    []string{model.PostTypePost},
		Statuses: []string{model.StatusPublish},
	})
	if err != nil {
		return siteStats{}, err
	}
	return siteStats{users: int64(users), statuses: int64(posts)}, nil
}

func (s *Server) instanceConfiguration() mastodon.InstanceConfiguration {
	return mastodon.InstanceConfiguration{
		Accounts: mastodon.AccountLimits{MaxFeaturedTags: 0},
		Statuses: mastodon.StatusLimits{
			MaxCharacters:            100000,
			MaxMediaAttachments:      maxStatusMedia,
			CharactersReservedPerUrl: 23,
		},
		MediaAttachments: mastodon.MediaLimits{
			SupportedMimeTypes:  supportedMimeTypes,
			ImageSizeLimit:      media.MaxUploadSize,
			ImageMatrixLimit:    16777216,
			VideoSizeLimit:      media.MaxUploadSize,
			VideoFrameRateLimit: 60,
			VideoMatrixLimit:    2304000,
		},
		Polls: mastodon.PollLimits{
			MaxOptions:             4,
			MaxCharactersPerOption: 50,
			MinExpiration:          300,
			MaxExpiration:          2629746,
		},
	}
}

func (s *Server) languages() []string {
	if s.cfg.Site.Language == "" {
		return []string{"en"}
	}
	return []string{s.cfg.Site.Language}
}

func (s *Server) getInstance(c echo.Context) error {
	st, err := s.stats(c.Request().Context())
	if err != nil {
		return err
	}
	site := s.cfg.Site
	inst := &mastodon.Instance{
		Uri:              site.Domain,
		Title:            site.Title,
		ShortDescription: site.Description,
		Description:      site.Description,
		Email:            site.ContactEmail,
		Version:          apiVersion,
		Stats: mastodon.InstanceStats{
			UserCount:   st.users,
			StatusCount: st.statuses,
			DomainCount: 1,
		},
		Languages:     s.languages(),
		Configuration: s.instanceConfiguration(),
		Rules:         []mastodon.Rule{},
	}
	if site.Thumbnail != "" {
		inst.Thumbnail = &site.Thumbnail
	}
	if err := mastodon.Validate(inst, nil); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, inst)
}

func (s *Server) getInstanceV2(c echo.Context) error {
	st, err := s.stats(c.Request().Context())
	if err != nil {
		return err
	}
	site := s.cfg.Site
	inst := &mastodon.InstanceV2{
		Domain:        site.Domain,
		Title:         site.Title,
		Version:       apiVersion,
		SourceUrl:     sourceURL,
		Description:   site.Description,
		Thumbnail:     mastodon.InstanceThumbnail{Url: site.Thumbnail},
		Languages:     s.languages(),
		Configuration: s.instanceConfiguration(),
		Contact:       mastodon.InstanceContact{Email: site.ContactEmail},
		Rules:         []mastodon.Rule{},
	}
	inst.Usage.Users.ActiveMonth = st.users
	if err := mastodon.Validate(inst, nil); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, inst)
}

func (s *Server) getNodeInfoLinks(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"links": []map[string]string{{
			"rel":  "http://nodeinfo.diaspora.software/ns/schema/2.0",
			"href": s.cfg.Server.BaseURL + "/nodeinfo/2.0",
		}},
	})
}

func (s *Server) getNodeInfo(c echo.Context) error {
	st, err := s.stats(c.Request().Context())
	if err != nil {
		return err
	}
	info := mastodon.NodeInfo{
		Version:   "2.0",
		Software:  mastodon.NodeInfoSoftware{Name: softwareName, Version: softwareVersion},
		Protocols: []string{},
		Services:  mastodon.NodeInfoServices{Inbound: []string{}, Outbound: []string{}},
		Metadata: map[string]any{
			"nodeName":        s.cfg.Site.Title,
			"nodeDescription": s.cfg.Site.Description,
		},
	}
	info.Usage.Users.Total = st.users
	info.Usage.LocalPosts = st.statuses
	return c.JSON(http.StatusOK, info)
}

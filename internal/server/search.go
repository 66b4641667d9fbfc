package server

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/chao7150/wpmastodon/internal/mastodon"
)

// getSearch serves /api/v1/search and /api/v2/search. Statuses match post
// and comment text; hashtags match by prefix.
func (s *Server) getSearch(c echo.Context) error {
	ctx := c.Request().Context()
	p, err := readParams(c)
	if err != nil {
		return err
	}
	q := strings.TrimSpace(p.Get("q"))
	kind := p.Get("type")
	limit := searchLimit(p)
	res := mastodon.SearchResults{
		Accounts: []mastodon.Account{},
		Statuses: []mastodon.Status{},
		Hashtags: []mastodon.Tag{},
	}
	if q == "" {
		return c.JSON(http.StatusOK, res)
	}
	want := func(t string) bool { return kind == "" || kind == t }

	if want("accounts") {
		res.Accounts, err = s.searchAccounts(ctx, q, p.Bool("resolve") && grantOf(c) != nil, limit)
		if err != nil {
			return err
		}
	}
	if want("statuses") {
		statuses, err := s.timeline.Search(ctx, q, limit, viewerOf(c))
		if err != nil {
			return err
		}
		if statuses != nil {
			res.Statuses = statuses
		}
	}
	if want("hashtags") {
		tags, err := s.store.SearchTags(ctx, strings.TrimPrefix(q, "#"), limit)
		if err != nil {
			return err
		}
		for i := range tags {
			res.Hashtags = append(res.Hashtags, s.proj.Tag(&tags[i]))
		}
	}
	return c.JSON(http.StatusOK, res)
}

package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/chao7150/wpmastodon/internal/idmap"
	"github.com/chao7150/wpmastodon/internal/mastodon"
	"github.com/chao7150/wpmastodon/internal/model"
	"github.com/chao7150/wpmastodon/internal/remote"
	"github.com/chao7150/wpmastodon/internal/store"
	"github.com/chao7150/wpmastodon/internal/timeline"
)

func (s *Server) getVerifyCredentials(c echo.Context) error {
	a, err := s.proj.CredentialAccount(c.Request().Context(), userOf(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}

func (s *Server) getAccount(c echo.Context) error {
	a, err := s.proj.AccountByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}

// localUserId returns the blog user behind an external account id.
func (s *Server) localUserId(ctx context.Context, id string) (int64, bool, error) {
	ref, err := s.proj.Mapper().Resolve(ctx, id)
	if err != nil {
		if errors.Is(err, idmap.ErrUnknownID) {
			return 0, false, errNotFound
		}
		return 0, false, err
	}
	if ref.Kind != idmap.KindLocal {
		return 0, false, nil
	}
	n, ok := ref.Int()
	return n, ok, nil
}

func (s *Server) getAccountStatuses(c echo.Context) error {
	ctx := c.Request().Context()
	if _, err := s.proj.AccountByID(ctx, c.Param("id")); err != nil {
		return err
	}
	userId, local, err := s.localUserId(ctx, c.Param("id"))
	if err != nil {
		return err
	}
	if !local {
		// Remote outboxes are not imported.
		return c.JSON(http.StatusOK, []mastodon.Status{})
	}
	p, err := readParams(c)
	if err != nil {
		return err
	}
	q := statusQuery(p, viewerOf(c))
	q.AuthorId = userId
	q.Pinned = p.Bool("pinned")
	q.ExcludeReplies = p.Bool("exclude_replies")
	q.Tag = strings.TrimPrefix(p.Get("tagged"), "#")
	return s.statuses(c, q)
}

func (s *Server) getAccountCollection(c echo.Context) error {
	if _, err := s.proj.AccountByID(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, []mastodon.Account{})
}

// getAccountLookup finds an account by acct. Handles on other hosts are
// resolved over WebFinger.
func (s *Server) getAccountLookup(c echo.Context) error {
	ctx := c.Request().Context()
	acct := strings.TrimPrefix(strings.TrimSpace(c.QueryParam("acct")), "@")
	if acct == "" {
		return validationFailed("acct is required")
	}
	login, host, remoteHandle := strings.Cut(acct, "@")
	if remoteHandle && !strings.EqualFold(host, s.cfg.Site.Domain) {
		a, err := s.resolveRemote(ctx, acct)
		if err != nil {
			return err
		}
		if a == nil {
			return errNotFound
		}
		return c.JSON(http.StatusOK, a)
	}
	u, err := s.store.SelectUserByLogin(ctx, login)
	if err != nil {
		return err
	}
	a, err := s.proj.LocalAccount(ctx, u)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}

// resolveRemote fetches a remote account. It returns nil when the handle
// cannot be resolved.
func (s *Server) resolveRemote(ctx context.Context, input string) (*mastodon.Account, error) {
	if s.remote == nil {
		return nil, nil
	}
	actor, err := s.remote.Actor(ctx, input)
	if err != nil {
		s.logger.Debug().Err(err).Str("input", input).Msg("remote account not resolved")
		return nil, nil
	}
	a, err := s.proj.RemoteAccount(ctx, input, actor)
	if err != nil {
		if dropped(err) {
			return nil, nil
		}
		return nil, err
	}
	return a, nil
}

func (s *Server) getAccountSearch(c echo.Context) error {
	p, err := readParams(c)
	if err != nil {
		return err
	}
	accounts, err := s.searchAccounts(c.Request().Context(), p.Get("q"), p.Bool("resolve") && grantOf(c) != nil, searchLimit(p))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, accounts)
}

func (s *Server) getRelationships(c echo.Context) error {
	p, err := readParams(c)
	if err != nil {
		return err
	}
	ids := p.All("id")
	following, err := s.store.SelectFollowing(c.Request().Context(), userOf(c).Id, ids)
	if err != nil {
		return err
	}
	rels := make([]mastodon.Relationship, 0, len(ids))
	for _, id := range ids {
		rels = append(rels, s.proj.Relationship(id, following[id]))
	}
	return c.JSON(http.StatusOK, rels)
}

// follow records the relationship locally; nothing is delivered.
func (s *Server) follow(on bool) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		id := c.Param("id")
		user := userOf(c)
		a, err := s.proj.AccountByID(ctx, id)
		if err != nil {
			return err
		}
		if on {
			if a.Id == s.ownAccountId(ctx, user) {
				return validationFailed("You cannot follow yourself")
			}
			err = s.store.InsertFollow(ctx, user.Id, id)
		} else {
			err = s.store.DeleteFollow(ctx, user.Id, id)
		}
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, s.proj.Relationship(id, on))
	}
}

func (s *Server) ownAccountId(ctx context.Context, u *model.User) string {
	id, err := s.proj.Mapper().Remap(ctx, idmap.Local(u.Id))
	if err != nil {
		return ""
	}
	return id
}

// searchAccounts matches local users and, when resolve is set and q looks
// like a handle or profile url, the remote account it names.
func (s *Server) searchAccounts(ctx context.Context, q string, resolve bool, limit int) ([]mastodon.Account, error) {
	accounts := []mastodon.Account{}
	q = strings.TrimSpace(q)
	if q == "" {
		return accounts, nil
	}
	if resolve {
		if _, ok := remote.ParseHandle(q); ok {
			a, err := s.resolveRemote(ctx, q)
			if err != nil {
				return nil, err
			}
			if a != nil {
				accounts = append(accounts, *a)
			}
		}
	}
	users, err := s.store.SearchUsers(ctx, strings.TrimPrefix(q, "@"), limit)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	for i := range users {
		if len(accounts) >= limit {
			break
		}
		a, err := s.proj.LocalAccount(ctx, &users[i])
		if err != nil {
			if dropped(err) {
				continue
			}
			return nil, err
		}
		accounts = append(accounts, *a)
	}
	return accounts, nil
}

func searchLimit(p params) int {
	return timeline.ClampLimit(p.Int("limit"), timeline.DefaultLimit, timeline.MaxLimit)
}

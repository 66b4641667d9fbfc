// Package timeline assembles paginated lists of statuses and notifications
// from posts and comments.
//
// Native ids are assumed to grow with creation time. Cursors of the same kind
// as the rows being queried become id predicates, cursors of the other kind
// become creation time predicates.
package timeline

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/chao7150/wpmastodon/internal/idmap"
	"github.com/chao7150/wpmastodon/internal/mastodon"
	"github.com/chao7150/wpmastodon/internal/model"
	"github.com/chao7150/wpmastodon/internal/projection"
	"github.com/chao7150/wpmastodon/internal/store"
)

const (
	DefaultLimit             = 20
	DefaultNotificationLimit = 15
	MaxLimit                 = 40
)

// ClampLimit applies the default to a missing limit and keeps it in [1, max].
func ClampLimit(n, def, max int) int {
	switch {
	case n <= 0:
		n = def
	case n > max:
		n = max
	}
	if n < 1 {
		n = 1
	}
	return n
}

// Page is one window of a paginated list. Next and Prev are the ids of the
// last and first item.
type Page[T any] struct {
	Items []T
	Next  string
	Prev  string
}

func newPage[T any](items []T, id func(*T) string) *Page[T] {
	p := &Page[T]{Items: items}
	if len(items) > 0 {
		p.Prev = id(&items[0])
		p.Next = id(&items[len(items)-1])
	}
	return p
}

// Link renders the Link header for the page, keeping the other query
// parameters of u. It is empty for an empty page.
func (p *Page[T]) Link(u *url.URL) string {
	if len(p.Items) == 0 {
		return ""
	}
	return fmt.Sprintf(`<%s>; rel="next", <%s>; rel="prev"`, withCursor(u, "max_id", p.Next), withCursor(u, "min_id", p.Prev))
}

func withCursor(u *url.URL, name, id string) string {
	q := u.Query()
	q.Del("max_id")
	q.Del("min_id")
	q.Del("since_id")
	q.Set(name, id)
	next := *u
	next.RawQuery = q.Encode()
	return next.String()
}

// Query selects a status timeline.
type Query struct {
	// Kinds are the native kinds the client may view; see App.PostTypeList.
	Kinds          []string
	AuthorId       int64
	Tag            string
	Pinned         bool
	ExcludeReplies bool
	OnlyMedia      bool

	MinId   string
	MaxId   string
	SinceId string
	Limit   int
}

type Engine struct {
	store  *store.Store
	ids    *idmap.Mapper
	proj   *projection.Projector
	logger zerolog.Logger
}

func New(s *store.Store, proj *projection.Projector, logger zerolog.Logger) *Engine {
	return &Engine{
		store:  s,
		ids:    proj.Mapper(),
		proj:   proj,
		logger: logger,
	}
}

// visibleStatuses lists the post statuses the viewer may read.
func visibleStatuses(v projection.Viewer) []string {
	if v.User.CanManagePrivate() {
		return []string{model.StatusPublish, model.StatusPrivate}
	}
	return []string{model.StatusPublish}
}

// splitKinds separates post types from the comment pseudo kind.
func splitKinds(kinds []string) (postTypes []string, comments bool) {
	if len(kinds) == 0 {
		kinds = []string{model.PostTypePost, model.KindComment}
	}
	for _, k := range kinds {
		switch k {
		case model.KindComment:
			comments = true
		case model.PostTypeAttachment:
		default:
			postTypes = append(postTypes, k)
		}
	}
	return postTypes, comments
}

// Statuses returns one page of the timeline selected by q.
func (e *Engine) Statuses(ctx context.Context, q Query, v projection.Viewer) (*Page[mastodon.Status], error) {
	limit := ClampLimit(q.Limit, DefaultLimit, MaxLimit)
	postTypes, withComments := splitKinds(q.Kinds)
	if q.Pinned || q.ExcludeReplies || q.Tag != "" || q.OnlyMedia {
		withComments = false
	}
	statuses := visibleStatuses(v)

	pq := store.PostQuery{
		Types:    postTypes,
		Statuses: statuses,
		AuthorId: q.AuthorId,
		Tag:      q.Tag,
		Sticky:   q.Pinned,
		Limit:    limit,
	}
	cq := store.CommentQuery{
		Types:        []string{model.CommentTypeComment},
		PostTypes:    postTypes,
		PostStatuses: statuses,
		UserId:       q.AuthorId,
		Limit:        limit,
	}

	ascending, err := e.applyCursors(ctx, q.MinId, q.MaxId, q.SinceId, &pq, &cq)
	if err != nil {
		return nil, err
	}
	pq.Ascending = ascending
	cq.Ascending = ascending

	var items []mastodon.Status
	if q.OnlyMedia {
		items, err = e.mediaStatuses(ctx, pq, limit, v)
		if err != nil {
			return nil, err
		}
	} else {
		var natives []projection.Native
		if len(postTypes) > 0 {
			posts, err := e.store.SelectPosts(ctx, pq)
			if err != nil {
				return nil, err
			}
			natives, err = e.loadPosts(ctx, posts)
			if err != nil {
				return nil, err
			}
		}
		if withComments {
			comments, err := e.store.SelectComments(ctx, cq)
			if err != nil {
				return nil, err
			}
			for i := range comments {
				natives = append(natives, projection.FromComment(&comments[i]))
			}
		}
		sortNatives(natives, ascending)
		items = e.project(ctx, natives, limit, v, nil)
	}
	if ascending {
		slices.Reverse(items)
	}
	return newPage(items, func(s *mastodon.Status) string { return s.Id }), nil
}

// mediaStatuses walks the posts selected by pq batch by batch until limit
// statuses with media are found or the posts run out. Comments never carry
// media.
func (e *Engine) mediaStatuses(ctx context.Context, pq store.PostQuery, limit int, v projection.Viewer) ([]mastodon.Status, error) {
	out := []mastodon.Status{}
	if len(pq.Types) == 0 {
		return out, nil
	}
	pq.Limit = limit
	for len(out) < limit {
		posts, err := e.store.SelectPosts(ctx, pq)
		if err != nil {
			return nil, err
		}
		natives, err := e.loadPosts(ctx, posts)
		if err != nil {
			return nil, err
		}
		out = append(out, e.project(ctx, natives, limit-len(out), v, hasMedia)...)
		if len(posts) < pq.Limit {
			break
		}
		last := posts[len(posts)-1].Id
		if pq.Ascending {
			pq.AfterId = last
		} else {
			pq.BeforeId = last
		}
	}
	return out, nil
}

func (e *Engine) loadPosts(ctx context.Context, posts []model.Post) ([]projection.Native, error) {
	natives := make([]projection.Native, 0, len(posts))
	for i := range posts {
		n, err := e.proj.LoadPost(ctx, &posts[i])
		if err != nil {
			return nil, err
		}
		natives = append(natives, n)
	}
	return natives, nil
}

func (e *Engine) drop(err error, n projection.Native) {
	ev := e.logger.Debug()
	if !errors.Is(err, projection.ErrNotFound) {
		ev = e.logger.Warn()
	}
	ev.Err(err).Stringer("kind", n.Kind).Int64("native_id", n.NativeId()).Msg("dropped item from timeline")
}

func hasMedia(s *mastodon.Status) bool {
	if s.Reblog != nil {
		return len(s.Reblog.MediaAttachments) > 0
	}
	return len(s.MediaAttachments) > 0
}

// sortNatives orders items newest first, or oldest first when ascending,
// breaking ties by native id.
func sortNatives(natives []projection.Native, ascending bool) {
	slices.SortStableFunc(natives, func(a, b projection.Native) int {
		c := a.CreatedAt().Compare(b.CreatedAt())
		if c == 0 {
			c = cmpInt(a.NativeId(), b.NativeId())
		}
		if ascending {
			return c
		}
		return -c
	})
}

func cmpInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// cursor is a resolved pagination id.
type cursor struct {
	comment bool
	id      int64
	at      time.Time
}

// resolveCursor turns an external status id into a cursor. It returns nil
// for ids that name nothing a timeline can contain. A local id whose post
// is gone keeps its id when keepMissing is set and is dated by the nearest
// older post, or the epoch when there is none.
func (e *Engine) resolveCursor(ctx context.Context, id string, keepMissing bool) (*cursor, error) {
	if id == "" {
		return nil, nil
	}
	ref, err := e.ids.Resolve(ctx, id)
	if err != nil {
		return nil, nil
	}
	n, ok := ref.Int()
	if !ok {
		return nil, nil
	}
	switch ref.Kind {
	case idmap.KindLocal, idmap.KindReblog:
		post, err := e.store.SelectPost(ctx, n)
		if err == nil {
			return &cursor{id: n, at: post.CreatedAt}, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		if !keepMissing {
			return nil, nil
		}
		at, ok, err := e.store.SelectNearestPostDate(ctx, n)
		if err != nil {
			return nil, err
		}
		if !ok {
			at = time.Unix(0, 0)
		}
		return &cursor{id: n, at: at}, nil
	case idmap.KindComment:
		c, err := e.store.SelectComment(ctx, n)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, nil
			}
			return nil, err
		}
		return &cursor{comment: true, id: n, at: c.CreatedAt}, nil
	default:
		return nil, nil
	}
}

// bound narrows both queries to items older (or newer) than c.
func (c *cursor) bound(older bool, pq *store.PostQuery, cq *store.CommentQuery) {
	if c.comment {
		setTime(&pq.Before, &pq.After, c.at, older)
		setId(&cq.BeforeId, &cq.AfterId, c.id, older)
	} else {
		setId(&pq.BeforeId, &pq.AfterId, c.id, older)
		setTime(&cq.Before, &cq.After, c.at, older)
	}
}

func setId(before, after *int64, id int64, older bool) {
	if older {
		*before = id
	} else {
		*after = id
	}
}

func setTime(before, after *time.Time, at time.Time, older bool) {
	if older {
		*before = at
	} else {
		*after = at
	}
}

// applyCursors translates the pagination parameters into query bounds and
// reports whether the window must be fetched oldest first.
func (e *Engine) applyCursors(ctx context.Context, minId, maxId, sinceId string, pq *store.PostQuery, cq *store.CommentQuery) (bool, error) {
	maxC, err := e.resolveCursor(ctx, maxId, true)
	if err != nil {
		return false, err
	}
	if maxC != nil {
		maxC.bound(true, pq, cq)
	}
	minC, err := e.resolveCursor(ctx, minId, false)
	if err != nil {
		return false, err
	}
	if minC != nil {
		minC.bound(false, pq, cq)
		return true, nil
	}
	sinceC, err := e.resolveCursor(ctx, sinceId, false)
	if err != nil {
		return false, err
	}
	if sinceC != nil {
		sinceC.bound(false, pq, cq)
	}
	return false, nil
}

// Search lists statuses whose text contains text, newest first.
func (e *Engine) Search(ctx context.Context, text string, limit int, v projection.Viewer) ([]mastodon.Status, error) {
	if text == "" {
		return []mastodon.Status{}, nil
	}
	limit = ClampLimit(limit, DefaultLimit, MaxLimit)
	postTypes, withComments := splitKinds(nil)
	if v.App != nil {
		postTypes, withComments = splitKinds(v.App.PostTypeList())
	}
	statuses := visibleStatuses(v)

	var natives []projection.Native
	if len(postTypes) > 0 {
		posts, err := e.store.SelectPosts(ctx, store.PostQuery{Types: postTypes, Statuses: statuses, Search: text, Limit: limit})
		if err != nil {
			return nil, err
		}
		for i := range posts {
			n, err := e.proj.LoadPost(ctx, &posts[i])
			if err != nil {
				return nil, err
			}
			natives = append(natives, n)
		}
	}
	if withComments {
		comments, err := e.store.SelectComments(ctx, store.CommentQuery{
			Types:        []string{model.CommentTypeComment},
			PostStatuses: statuses,
			Search:       text,
			Limit:        limit,
		})
		if err != nil {
			return nil, err
		}
		for i := range comments {
			natives = append(natives, projection.FromComment(&comments[i]))
		}
	}
	sortNatives(natives, false)
	return e.project(ctx, natives, limit, v, nil), nil
}

// project projects natives in order, dropping items that fail or that keep
// rejects, until limit items are collected.
func (e *Engine) project(ctx context.Context, natives []projection.Native, limit int, v projection.Viewer, keep func(*mastodon.Status) bool) []mastodon.Status {
	out := []mastodon.Status{}
	for _, n := range natives {
		if limit > 0 && len(out) == limit {
			break
		}
		s, err := e.proj.Status(ctx, n, v)
		if err != nil {
			e.drop(err, n)
			continue
		}
		if keep != nil && !keep(s) {
			continue
		}
		out = append(out, *s)
	}
	return out
}

func formatId(id int64) string {
	return strconv.FormatInt(id, 10)
}

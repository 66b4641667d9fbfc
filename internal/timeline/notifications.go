package timeline

import (
	"context"
	"errors"
	"slices"
	"strconv"

	"github.com/chao7150/wpmastodon/internal/mastodon"
	"github.com/chao7150/wpmastodon/internal/projection"
	"github.com/chao7150/wpmastodon/internal/store"
)

// NotificationQuery selects notifications of the viewer. Notification ids
// are the ids of the comments that raised them.
type NotificationQuery struct {
	Types        []string
	ExcludeTypes []string

	MinId   string
	MaxId   string
	SinceId string
	Limit   int
}

var allNotificationTypes = []string{
	mastodon.NotificationMention,
	mastodon.NotificationFavourite,
	mastodon.NotificationReblog,
}

// commentTypesFor maps the requested notification types to comment types.
func commentTypesFor(q NotificationQuery) []string {
	types := q.Types
	if len(types) == 0 {
		types = allNotificationTypes
	}
	var kept []string
	for _, t := range types {
		if !slices.Contains(q.ExcludeTypes, t) {
			kept = append(kept, t)
		}
	}
	return projection.CommentTypes(kept)
}

func clearedOption(userId int64) string {
	return store.OptionNotificationClear + strconv.FormatInt(userId, 10)
}

// baseNotificationQuery lists reactions to the viewer's posts that were
// neither dismissed nor cleared.
func (e *Engine) baseNotificationQuery(ctx context.Context, v projection.Viewer) (store.CommentQuery, error) {
	uid := v.UserId()
	dismissed, err := e.store.SelectDismissals(ctx, uid)
	if err != nil {
		return store.CommentQuery{}, err
	}
	cq := store.CommentQuery{
		PostAuthorId: uid,
		PostStatuses: visibleStatuses(v),
		ExcludeIds:   dismissed,
	}
	if raw, ok, err := e.store.GetOption(ctx, clearedOption(uid)); err != nil {
		return store.CommentQuery{}, err
	} else if ok {
		cq.AfterId, _ = strconv.ParseInt(raw, 10, 64)
	}
	return cq, nil
}

// Notifications returns one page of the viewer's notifications.
func (e *Engine) Notifications(ctx context.Context, q NotificationQuery, v projection.Viewer) (*Page[mastodon.Notification], error) {
	empty := newPage([]mastodon.Notification{}, nil)
	if v.User == nil {
		return empty, nil
	}
	types := commentTypesFor(q)
	if len(types) == 0 {
		return empty, nil
	}
	limit := ClampLimit(q.Limit, DefaultNotificationLimit, MaxLimit)
	cq, err := e.baseNotificationQuery(ctx, v)
	if err != nil {
		return nil, err
	}
	cq.Types = types
	cq.Limit = limit

	if id := parseId(q.MaxId); id > 0 {
		cq.BeforeId = id
	}
	if id := parseId(q.MinId); id > 0 {
		cq.AfterId = max(cq.AfterId, id)
		cq.Ascending = true
	} else if id := parseId(q.SinceId); id > 0 {
		cq.AfterId = max(cq.AfterId, id)
	}

	comments, err := e.store.SelectComments(ctx, cq)
	if err != nil {
		return nil, err
	}
	items := make([]mastodon.Notification, 0, len(comments))
	for i := range comments {
		c := &comments[i]
		if c.UserId != 0 && c.UserId == v.User.Id {
			continue
		}
		n, err := e.proj.Notification(ctx, c, v)
		if err != nil {
			e.logger.Warn().Err(err).Int64("comment_id", c.Id).Msg("dropped notification")
			continue
		}
		items = append(items, *n)
	}
	if cq.Ascending {
		slices.Reverse(items)
	}
	return newPage(items, func(n *mastodon.Notification) string { return n.Id }), nil
}

// Notification returns a single notification of the viewer.
func (e *Engine) Notification(ctx context.Context, id string, v projection.Viewer) (*mastodon.Notification, error) {
	n := parseId(id)
	if v.User == nil || n <= 0 {
		return nil, projection.ErrNotFound
	}
	cq, err := e.baseNotificationQuery(ctx, v)
	if err != nil {
		return nil, err
	}
	c, err := e.store.SelectComment(ctx, n)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, projection.ErrNotFound
		}
		return nil, err
	}
	if !c.Approved || c.Id <= cq.AfterId || slices.Contains(cq.ExcludeIds, c.Id) {
		return nil, projection.ErrNotFound
	}
	post, err := e.store.SelectPost(ctx, c.PostId)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, projection.ErrNotFound
		}
		return nil, err
	}
	if post.AuthorId != v.User.Id {
		return nil, projection.ErrNotFound
	}
	return e.proj.Notification(ctx, c, v)
}

// Dismiss hides one notification of the viewer.
func (e *Engine) Dismiss(ctx context.Context, id string, v projection.Viewer) error {
	if _, err := e.Notification(ctx, id, v); err != nil {
		return err
	}
	return e.store.InsertDismissal(ctx, v.User.Id, parseId(id))
}

// Clear hides every notification the viewer has received so far.
func (e *Engine) Clear(ctx context.Context, v projection.Viewer) error {
	if v.User == nil {
		return projection.ErrNotFound
	}
	latest, err := e.store.SelectMaxCommentId(ctx, v.User.Id)
	if err != nil || latest == 0 {
		return err
	}
	return e.store.PutOption(ctx, clearedOption(v.User.Id), formatId(latest), 0)
}

func parseId(id string) int64 {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

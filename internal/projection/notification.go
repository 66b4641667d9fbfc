package projection

import (
	"context"
	"errors"

	"github.com/chao7150/wpmastodon/internal/mastodon"
	"github.com/chao7150/wpmastodon/internal/model"
)

// NotificationType maps a comment type to the notification it raises.
func NotificationType(commentType string) string {
	switch commentType {
	case model.CommentTypeLike:
		return mastodon.NotificationFavourite
	case model.CommentTypeRepost:
		return mastodon.NotificationReblog
	default:
		return mastodon.NotificationMention
	}
}

// CommentTypes maps notification types back to comment types.
func CommentTypes(types []string) []string {
	var out []string
	for _, t := range types {
		switch t {
		case mastodon.NotificationMention:
			out = append(out, model.CommentTypeComment)
		case mastodon.NotificationFavourite:
			out = append(out, model.CommentTypeLike)
		case mastodon.NotificationReblog:
			out = append(out, model.CommentTypeRepost)
		}
	}
	return out
}

// Notification projects a comment on one of the viewer's posts. Mentions
// carry the comment itself, favourites and reblogs the post they target.
func (p *Projector) Notification(ctx context.Context, c *model.Comment, v Viewer) (*mastodon.Notification, error) {
	account, err := p.CommenterAccount(ctx, c)
	if err != nil {
		return nil, err
	}
	n := &mastodon.Notification{
		Id:        formatId(c.Id),
		Type:      NotificationType(c.CommentType),
		CreatedAt: c.CreatedAt.UTC(),
		Account:   account,
	}
	var status *mastodon.Status
	if n.Type == mastodon.NotificationMention {
		status, err = p.Status(ctx, FromComment(c), v)
	} else {
		var post *model.Post
		if post, err = p.store.SelectPost(ctx, c.PostId); err == nil {
			var native Native
			if native, err = p.LoadPost(ctx, post); err == nil {
				status, err = p.Status(ctx, native, v)
			}
		}
	}
	if err != nil && !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrIntegrity) {
		return nil, err
	}
	n.Status = status

	n = p.Notifications.Run(ctx, n, c)
	if n == nil {
		return nil, ErrNotFound
	}
	if err := p.validate(n, "notification"); err != nil {
		return nil, err
	}
	return n, nil
}

// Relationship builds the viewer's relation to one account. Only following
// is tracked.
func (p *Projector) Relationship(id string, following bool) mastodon.Relationship {
	return mastodon.Relationship{
		Id:             id,
		Following:      following,
		ShowingReblogs: following,
	}
}

package timeline

import (
	"context"
	"errors"

	"github.com/chao7150/wpmastodon/internal/mastodon"
	"github.com/chao7150/wpmastodon/internal/model"
	"github.com/chao7150/wpmastodon/internal/projection"
	"github.com/chao7150/wpmastodon/internal/store"
)

// Context returns the conversation around n: the post and the chain of
// parent comments above it, and the replies below it oldest first.
// Activities fetched from remote hosts have no local conversation.
func (e *Engine) Context(ctx context.Context, n projection.Native, v projection.Viewer) (*mastodon.Context, error) {
	out := &mastodon.Context{Ancestors: []mastodon.Status{}, Descendants: []mastodon.Status{}}

	var postId, commentId int64
	switch {
	case n.Comment != nil:
		postId, commentId = n.Comment.PostId, n.Comment.Id
	case n.Post != nil:
		postId = n.Post.Id
	default:
		return out, nil
	}

	comments, err := e.store.SelectComments(ctx, store.CommentQuery{
		PostId:    postId,
		Types:     []string{model.CommentTypeComment},
		Ascending: true,
	})
	if err != nil {
		return nil, err
	}
	byId := make(map[int64]*model.Comment, len(comments))
	for i := range comments {
		byId[comments[i].Id] = &comments[i]
	}

	if commentId != 0 {
		var ancestors []projection.Native
		post, err := e.store.SelectPost(ctx, postId)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		if post != nil {
			pn, err := e.proj.LoadPost(ctx, post)
			if err != nil {
				return nil, err
			}
			ancestors = append(ancestors, pn)
		}
		var chain []projection.Native
		seen := map[int64]bool{commentId: true}
		for parent := n.Comment.ParentId; parent != 0 && !seen[parent]; {
			c, ok := byId[parent]
			if !ok {
				break
			}
			seen[parent] = true
			chain = append(chain, projection.FromComment(c))
			parent = c.ParentId
		}
		for i := len(chain) - 1; i >= 0; i-- {
			ancestors = append(ancestors, chain[i])
		}
		out.Ancestors = e.project(ctx, ancestors, 0, v, nil)
	}

	var descendants []projection.Native
	for i := range comments {
		c := &comments[i]
		if c.Id == commentId {
			continue
		}
		if commentId == 0 || descendsFrom(c, commentId, byId) {
			descendants = append(descendants, projection.FromComment(c))
		}
	}
	out.Descendants = e.project(ctx, descendants, 0, v, nil)
	return out, nil
}

// descendsFrom reports whether ancestor is on the parent chain of c.
func descendsFrom(c *model.Comment, ancestor int64, byId map[int64]*model.Comment) bool {
	seen := map[int64]bool{}
	for parent := c.ParentId; parent != 0 && !seen[parent]; {
		if parent == ancestor {
			return true
		}
		seen[parent] = true
		p, ok := byId[parent]
		if !ok {
			return false
		}
		parent = p.ParentId
	}
	return false
}

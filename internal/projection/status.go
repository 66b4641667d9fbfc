package projection

import (
	"context"
	"errors"
	"html"
	"strings"
	"time"

	"github.com/chao7150/wpmastodon/internal/idmap"
	"github.com/chao7150/wpmastodon/internal/mastodon"
	"github.com/chao7150/wpmastodon/internal/model"
	"github.com/chao7150/wpmastodon/internal/remote"
	"github.com/chao7150/wpmastodon/internal/store"
)

// Status projects one native item for the viewer.
func (p *Projector) Status(ctx context.Context, n Native, v Viewer) (*mastodon.Status, error) {
	var def *mastodon.Status
	var err error
	switch n.Kind {
	case KindLocalPost:
		def, err = p.postStatus(ctx, n.Post, v)
	case KindLocalComment:
		def, err = p.commentStatus(ctx, n.Comment, v)
	case KindRemoteActivity:
		def, err = p.activityStatus(ctx, n, v)
	default:
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	s := p.Statuses.Run(ctx, def, n)
	if s == nil {
		return nil, ErrNotFound
	}
	if err := p.validate(s, "status"); err != nil {
		return nil, err
	}
	return s, nil
}

// LoadPost classifies a post row, reading its meta.
func (p *Projector) LoadPost(ctx context.Context, post *model.Post) (Native, error) {
	meta, err := p.store.SelectPostMeta(ctx, post.Id)
	if err != nil {
		return Native{}, err
	}
	return FromPost(post, meta), nil
}

// NativeByID resolves an external status id to the item it was built from.
func (p *Projector) NativeByID(ctx context.Context, id string) (Native, error) {
	ref, err := p.ids.Resolve(ctx, id)
	if err != nil {
		return Native{}, ErrNotFound
	}
	switch ref.Kind {
	case idmap.KindLocal, idmap.KindReblog:
		n, ok := ref.Int()
		if !ok {
			return Native{}, ErrNotFound
		}
		post, err := p.store.SelectPost(ctx, n)
		if err != nil {
			return Native{}, notFoundOr(err)
		}
		if post.PostType == model.PostTypeAttachment {
			return Native{}, ErrNotFound
		}
		native, err := p.LoadPost(ctx, post)
		if err != nil {
			return Native{}, err
		}
		if ref.Kind == idmap.KindReblog {
			if native.Kind != KindRemoteActivity || !native.Activity.Reblog {
				return Native{}, ErrNotFound
			}
		}
		return native, nil
	case idmap.KindComment:
		n, ok := ref.Int()
		if !ok {
			return Native{}, ErrNotFound
		}
		c, err := p.store.SelectComment(ctx, n)
		if err != nil {
			return Native{}, notFoundOr(err)
		}
		if !c.Approved {
			return Native{}, ErrNotFound
		}
		return FromComment(c), nil
	case idmap.KindRemoteStatus:
		if p.remote == nil {
			return Native{}, ErrNotFound
		}
		body, err := p.remote.Document(ctx, ref.Native)
		if err != nil {
			return Native{}, ErrNotFound
		}
		a, err := ParseActivity(body)
		if err != nil {
			return Native{}, ErrNotFound
		}
		a.Reblog = false
		return FromActivity(a), nil
	default:
		return Native{}, ErrNotFound
	}
}

// StatusByID resolves and projects an external status id.
func (p *Projector) StatusByID(ctx context.Context, id string, v Viewer) (*mastodon.Status, error) {
	n, err := p.NativeByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s, err := p.Status(ctx, n, v)
	if err != nil {
		return nil, err
	}
	// A reblog id addresses the boosted status itself.
	if s.Id != id && s.Reblog != nil && s.Reblog.Id == id {
		return s.Reblog, nil
	}
	return s, nil
}

func notFoundOr(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

func (p *Projector) postStatus(ctx context.Context, post *model.Post, v Viewer) (*mastodon.Status, error) {
	if post.PostType == model.PostTypeAttachment || !v.CanSee(post.Status) {
		return nil, ErrNotFound
	}
	account, err := p.postAuthor(ctx, post)
	if err != nil {
		return nil, err
	}
	content, blocks := ExtractMediaBlocks(post.Content)
	if post.Title != "" && !strings.Contains(content, html.EscapeString(post.Title)) {
		content = "<p><strong>" + html.EscapeString(post.Title) + "</strong></p>\n" + content
	}
	media, err := p.postMedia(ctx, post.Id, blocks)
	if err != nil {
		return nil, err
	}
	tags, err := p.postTags(ctx, post.Id)
	if err != nil {
		return nil, err
	}
	s := p.baseStatus(formatId(post.Id), post)
	s.Account = account
	s.Content = content
	s.MediaAttachments = media
	s.Tags = tags
	s.Pinned = post.Sticky
	if post.Status == model.StatusPrivate {
		s.Visibility = mastodon.VisibilityPrivate
	}
	replies, err := p.store.CountComments(ctx, post.Id, model.CommentTypeComment)
	if err != nil {
		return nil, err
	}
	s.RepliesCount = int64(replies)
	if err := p.decorate(ctx, s, post.Id, v); err != nil {
		return nil, err
	}
	return s, nil
}

// postAuthor returns nil without error when the author row is gone, which
// makes the status fail validation.
func (p *Projector) postAuthor(ctx context.Context, post *model.Post) (*mastodon.Account, error) {
	u, err := p.store.SelectUser(ctx, post.AuthorId)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return p.LocalAccount(ctx, u)
}

func (p *Projector) baseStatus(id string, post *model.Post) *mastodon.Status {
	uri := post.Guid
	if uri == "" {
		uri = p.postURL(post.Id)
	}
	s := &mastodon.Status{
		Id:         id,
		Uri:        uri,
		Url:        ptr(p.postURL(post.Id)),
		CreatedAt:  post.CreatedAt.UTC(),
		Visibility: mastodon.VisibilityPublic,
	}
	if post.ModifiedAt.Sub(post.CreatedAt) > time.Second {
		s.EditedAt = ptr(post.ModifiedAt.UTC())
	}
	if p.language != "" {
		s.Language = ptr(p.language)
	}
	return s
}

// postMedia lists content blocks in document order, then attachment rows no
// block refers to.
func (p *Projector) postMedia(ctx context.Context, postId int64, blocks []MediaBlock) ([]mastodon.MediaAttachment, error) {
	atts, err := p.store.SelectAttachmentsByParent(ctx, postId)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	media := []mastodon.MediaAttachment{}
	for i := range blocks {
		m, err := p.media(ctx, MediaSource{Block: &blocks[i]})
		if err != nil {
			if errors.Is(err, ErrIntegrity) || errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		seen[m.Url] = true
		media = append(media, *m)
	}
	for i := range atts {
		if seen[atts[i].Guid] {
			continue
		}
		m, err := p.AttachmentMedia(ctx, &atts[i])
		if err != nil {
			if errors.Is(err, ErrIntegrity) || errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		media = append(media, *m)
	}
	return media, nil
}

func (p *Projector) postTags(ctx context.Context, postId int64) ([]mastodon.Tag, error) {
	rows, err := p.store.SelectPostTags(ctx, postId)
	if err != nil {
		return nil, err
	}
	tags := make([]mastodon.Tag, 0, len(rows))
	for _, t := range rows {
		tags = append(tags, p.Tag(&t))
	}
	return tags, nil
}

// Tag projects a native tag.
func (p *Projector) Tag(t *model.Tag) mastodon.Tag {
	return mastodon.Tag{
		Name:    t.Slug,
		Url:     p.baseURL + "/tag/" + t.Slug,
		History: []mastodon.TagHistory{},
	}
}

// decorate fills reaction counts and the viewer's own reactions. Likes and
// reposts left as comments on postId count as well.
func (p *Projector) decorate(ctx context.Context, s *mastodon.Status, postId int64, v Viewer) error {
	favs, err := p.store.CountReactions(ctx, s.Id, model.ReactionFavourite)
	if err != nil {
		return err
	}
	reblogs, err := p.store.CountReactions(ctx, s.Id, model.ReactionReblog)
	if err != nil {
		return err
	}
	if postId != 0 {
		likes, err := p.store.CountComments(ctx, postId, model.CommentTypeLike)
		if err != nil {
			return err
		}
		reposts, err := p.store.CountComments(ctx, postId, model.CommentTypeRepost)
		if err != nil {
			return err
		}
		favs += likes
		reblogs += reposts
	}
	s.FavouritesCount = int64(favs)
	s.ReblogsCount = int64(reblogs)
	if v.User != nil {
		kinds, err := p.store.SelectReactionKinds(ctx, v.User.Id, s.Id)
		if err != nil {
			return err
		}
		s.Favourited = kinds[model.ReactionFavourite]
		s.Reblogged = kinds[model.ReactionReblog]
	}
	return nil
}

func (p *Projector) commentStatus(ctx context.Context, c *model.Comment, v Viewer) (*mastodon.Status, error) {
	if !c.Approved || (c.CommentType != "" && c.CommentType != model.CommentTypeComment) {
		return nil, ErrNotFound
	}
	post, err := p.store.SelectPost(ctx, c.PostId)
	if err != nil {
		return nil, notFoundOr(err)
	}
	if !v.CanSee(post.Status) {
		return nil, ErrNotFound
	}
	id, err := p.ids.Remap(ctx, idmap.Ref{Kind: idmap.KindComment, Native: formatId(c.Id)})
	if err != nil {
		return nil, err
	}
	account, err := p.CommenterAccount(ctx, c)
	if err != nil && !errors.Is(err, ErrIntegrity) {
		return nil, err
	}

	s := &mastodon.Status{
		Id:         id,
		Uri:        p.commentURL(c),
		Url:        ptr(p.commentURL(c)),
		CreatedAt:  c.CreatedAt.UTC(),
		Account:    account,
		Content:    commentHTML(c.Content),
		Visibility: mastodon.VisibilityPublic,
	}
	if post.Status == model.StatusPrivate {
		s.Visibility = mastodon.VisibilityPrivate
	}
	if p.language != "" {
		s.Language = ptr(p.language)
	}

	var parent *mastodon.Account
	if c.ParentId != 0 {
		pc, err := p.store.SelectComment(ctx, c.ParentId)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		if pc != nil {
			pid, err := p.ids.Remap(ctx, idmap.Ref{Kind: idmap.KindComment, Native: formatId(pc.Id)})
			if err != nil {
				return nil, err
			}
			s.InReplyToId = ptr(pid)
			if parent, err = p.CommenterAccount(ctx, pc); err != nil && !errors.Is(err, ErrIntegrity) {
				return nil, err
			}
		}
	}
	if s.InReplyToId == nil {
		s.InReplyToId = ptr(formatId(post.Id))
		if parent, err = p.postAuthor(ctx, post); err != nil && !errors.Is(err, ErrIntegrity) {
			return nil, err
		}
	}
	if parent != nil {
		s.InReplyToAccountId = ptr(parent.Id)
		if account == nil || parent.Id != account.Id {
			s.Mentions = []mastodon.Mention{{Id: parent.Id, Username: parent.Username, Url: parent.Url, Acct: parent.Acct}}
		}
	}
	if err := p.decorate(ctx, s, 0, v); err != nil {
		return nil, err
	}
	return s, nil
}

func (p *Projector) activityStatus(ctx context.Context, n Native, v Viewer) (*mastodon.Status, error) {
	a := n.Activity
	if n.Post != nil && !v.CanSee(n.Post.Status) {
		return nil, ErrNotFound
	}
	var known *remote.Actor
	if len(a.ActorDoc) > 0 {
		known, _ = remote.ParseActor(a.ActorDoc)
	}
	account, err := p.RemoteAccount(ctx, a.Actor, known)
	if err != nil && !errors.Is(err, ErrIntegrity) && !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	inner := &mastodon.Status{
		Uri:         a.URI,
		Url:         ptr(a.URL),
		CreatedAt:   a.Published,
		Account:     account,
		Content:     a.Content,
		Visibility:  mastodon.VisibilityPublic,
		Sensitive:   a.Sensitive,
		SpoilerText: a.Summary,
	}
	if inner.CreatedAt.IsZero() && n.Post != nil {
		inner.CreatedAt = n.Post.CreatedAt.UTC()
	}
	if inner.Content == "" && n.Post != nil {
		inner.Content, _ = ExtractMediaBlocks(n.Post.Content)
	}
	media := []mastodon.MediaAttachment{}
	for i := range a.Attachments {
		m, err := p.media(ctx, MediaSource{Remote: &a.Attachments[i]})
		if err != nil {
			if errors.Is(err, ErrIntegrity) || errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		media = append(media, *m)
	}
	inner.MediaAttachments = media

	if n.Post == nil {
		id, err := p.ids.Remap(ctx, idmap.Ref{Kind: idmap.KindRemoteStatus, Native: a.URI})
		if err != nil {
			return nil, err
		}
		inner.Id = id
		if err := p.decorate(ctx, inner, 0, v); err != nil {
			return nil, err
		}
		return inner, nil
	}

	if !a.Reblog {
		inner.Id = formatId(n.Post.Id)
		inner.Pinned = n.Post.Sticky
		if err := p.decorate(ctx, inner, n.Post.Id, v); err != nil {
			return nil, err
		}
		return inner, nil
	}

	// The boost wrapper belongs to the local author and carries no media
	// or mentions of its own; the boosted status gets an id of its own.
	innerId, err := p.ids.Remap(ctx, idmap.Ref{Kind: idmap.KindReblog, Native: formatId(n.Post.Id)})
	if err != nil {
		return nil, err
	}
	inner.Id = innerId
	if err := p.decorate(ctx, inner, 0, v); err != nil {
		return nil, err
	}
	outer := p.baseStatus(formatId(n.Post.Id), n.Post)
	if outer.Account, err = p.postAuthor(ctx, n.Post); err != nil && !errors.Is(err, ErrIntegrity) {
		return nil, err
	}
	outer.Reblog = inner
	outer.Content = ""
	outer.MediaAttachments = []mastodon.MediaAttachment{}
	outer.Mentions = []mastodon.Mention{}
	outer.Pinned = n.Post.Sticky
	if err := p.decorate(ctx, outer, n.Post.Id, v); err != nil {
		return nil, err
	}
	return outer, nil
}

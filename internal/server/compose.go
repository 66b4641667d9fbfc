package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"

	"github.com/chao7150/wpmastodon/internal/mastodon"
	"github.com/chao7150/wpmastodon/internal/media"
	"github.com/chao7150/wpmastodon/internal/model"
	"github.com/chao7150/wpmastodon/internal/projection"
	"github.com/chao7150/wpmastodon/internal/store"
)

const maxStatusMedia = 4

var hashtagPattern = regexp.MustCompile(`(?:^|[^\p{L}\p{N}_&/])#([\p{L}\p{N}_]*[\p{L}_][\p{L}\p{N}_]*)`)

// Draft is a status as submitted by a client.
type Draft struct {
	Text        string
	InReplyToId string
	MediaIds    []string
	Visibility  string
	SpoilerText string
}

// composer turns drafts into native posts and comments.
type composer struct {
	store *store.Store
	media *media.Library
	proj  *projection.Projector
	md    goldmark.Markdown
}

func newComposer(s *store.Store, lib *media.Library, proj *projection.Projector) *composer {
	return &composer{
		store: s,
		media: lib,
		proj:  proj,
		md: goldmark.New(
			goldmark.WithExtensions(extension.Linkify, extension.Strikethrough),
			goldmark.WithRendererOptions(html.WithHardWraps()),
		),
	}
}

func (m *composer) render(text string) (string, error) {
	var buf bytes.Buffer
	if err := m.md.Convert([]byte(text), &buf); err != nil {
		return "", fmt.Errorf("failed to render status: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// Hashtags lists the distinct hashtags of text in order of appearance.
func Hashtags(text string) []string {
	seen := map[string]bool{}
	var tags []string
	for _, m := range hashtagPattern.FindAllStringSubmatch(text, -1) {
		key := strings.ToLower(m[1])
		if seen[key] {
			continue
		}
		seen[key] = true
		tags = append(tags, m[1])
	}
	return tags
}

// Create stores a draft of the viewer and returns what it became: a comment
// for replies, a post otherwise.
func (m *composer) Create(ctx context.Context, v projection.Viewer, d Draft) (projection.Native, error) {
	if strings.TrimSpace(d.Text) == "" && len(d.MediaIds) == 0 {
		return projection.Native{}, validationFailed("Text can't be blank")
	}
	if len(d.MediaIds) > maxStatusMedia {
		return projection.Native{}, validationFailed(fmt.Sprintf("At most %d attachments are allowed", maxStatusMedia))
	}
	content, err := m.render(d.Text)
	if err != nil {
		return projection.Native{}, err
	}
	if d.InReplyToId != "" {
		if len(d.MediaIds) > 0 {
			return projection.Native{}, validationFailed("Replies cannot carry media")
		}
		return m.reply(ctx, v, d, content)
	}
	return m.post(ctx, v, d, content)
}

func (m *composer) reply(ctx context.Context, v projection.Viewer, d Draft, content string) (projection.Native, error) {
	parent, err := m.proj.NativeByID(ctx, d.InReplyToId)
	if err != nil {
		return projection.Native{}, err
	}
	// The parent must be visible to the author of the reply.
	if _, err := m.proj.Status(ctx, parent, v); err != nil {
		return projection.Native{}, err
	}
	c := &model.Comment{
		UserId:      v.User.Id,
		AuthorName:  v.User.DisplayName,
		AuthorEmail: v.User.Email,
		AuthorUrl:   v.User.Url,
		Content:     content,
		CommentType: model.CommentTypeComment,
		Approved:    true,
	}
	switch {
	case parent.Comment != nil:
		c.PostId = parent.Comment.PostId
		c.ParentId = parent.Comment.Id
	case parent.Post != nil:
		c.PostId = parent.Post.Id
	default:
		return projection.Native{}, validationFailed("Only local statuses can be replied to")
	}
	if err := m.store.InsertComment(ctx, c); err != nil {
		return projection.Native{}, err
	}
	return projection.FromComment(c), nil
}

func (m *composer) post(ctx context.Context, v projection.Viewer, d Draft, content string) (projection.Native, error) {
	atts, err := m.attachments(ctx, v.User, d.MediaIds)
	if err != nil {
		return projection.Native{}, err
	}
	for _, att := range atts {
		if block, ok := mediaBlock(att); ok {
			content += "\n" + projection.MediaBlockMarkup(block)
		}
	}

	postType := model.PostTypePost
	if v.App != nil && v.App.CreatePostType != "" {
		postType = v.App.CreatePostType
	}
	status := model.StatusPublish
	if d.Visibility == mastodon.VisibilityPrivate || d.Visibility == mastodon.VisibilityDirect {
		status = model.StatusPrivate
	}
	post := &model.Post{
		AuthorId: v.User.Id,
		PostType: postType,
		Status:   status,
		Title:    d.SpoilerText,
		Content:  content,
	}
	if err := m.store.InsertPost(ctx, post); err != nil {
		return projection.Native{}, err
	}

	ids := make([]int64, len(atts))
	for i, att := range atts {
		ids[i] = att.Id
	}
	if err := m.store.ReparentAttachments(ctx, ids, post.Id); err != nil {
		return projection.Native{}, err
	}
	if tags := Hashtags(d.Text); len(tags) > 0 {
		if err := m.store.TagPost(ctx, post.Id, tags); err != nil {
			return projection.Native{}, err
		}
	}
	return projection.FromPost(post, nil), nil
}

// attachments loads the uploads named by ids, which must belong to user.
func (m *composer) attachments(ctx context.Context, user *model.User, ids []string) ([]*model.Post, error) {
	atts := make([]*model.Post, 0, len(ids))
	for _, raw := range ids {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, validationFailed("Unknown media id " + raw)
		}
		att, err := m.media.Attachment(ctx, id)
		if err != nil {
			if errors.Is(err, media.ErrNotFound) {
				return nil, validationFailed("Unknown media id " + raw)
			}
			return nil, err
		}
		if att.AuthorId != user.Id {
			return nil, validationFailed("Unknown media id " + raw)
		}
		atts = append(atts, att)
	}
	return atts, nil
}

func mediaBlock(att *model.Post) (projection.MediaBlock, bool) {
	major, _, _ := strings.Cut(att.MimeType, "/")
	if major != "image" && major != "video" {
		return projection.MediaBlock{}, false
	}
	return projection.MediaBlock{
		Type:         major,
		URL:          att.Guid,
		Alt:          att.Excerpt,
		AttachmentId: att.Id,
	}, true
}

package projection

import (
	"context"
	"errors"
	"mime"
	"path"
	"strings"

	"github.com/chao7150/wpmastodon/internal/idmap"
	"github.com/chao7150/wpmastodon/internal/mastodon"
	"github.com/chao7150/wpmastodon/internal/model"
	"github.com/chao7150/wpmastodon/internal/store"
)

// MediaSource is the tagged input of media projection: exactly one of
// Attachment, Block or Remote is set.
type MediaSource struct {
	Attachment *model.Post
	Block      *MediaBlock
	Remote     *ActivityAttachment
}

// AttachmentMedia projects an attachment post.
func (p *Projector) AttachmentMedia(ctx context.Context, att *model.Post) (*mastodon.MediaAttachment, error) {
	return p.media(ctx, MediaSource{Attachment: att})
}

// MediaByID resolves an external media id.
func (p *Projector) MediaByID(ctx context.Context, id string) (*mastodon.MediaAttachment, error) {
	ref, err := p.ids.Resolve(ctx, id)
	if err != nil {
		return nil, ErrNotFound
	}
	switch ref.Kind {
	case idmap.KindLocal:
		n, ok := ref.Int()
		if !ok {
			return nil, ErrNotFound
		}
		att, err := p.store.SelectPost(ctx, n)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, ErrNotFound
			}
			return nil, err
		}
		if att.PostType != model.PostTypeAttachment {
			return nil, ErrNotFound
		}
		return p.AttachmentMedia(ctx, att)
	case idmap.KindMedia:
		return p.media(ctx, MediaSource{Block: &MediaBlock{Type: mediaTypeFromURL(ref.Native), URL: ref.Native}})
	default:
		return nil, ErrNotFound
	}
}

func (p *Projector) media(ctx context.Context, src MediaSource) (*mastodon.MediaAttachment, error) {
	var def *mastodon.MediaAttachment
	switch {
	case src.Attachment != nil:
		att := src.Attachment
		def = &mastodon.MediaAttachment{
			Id:         formatId(att.Id),
			Type:       mediaType(att.MimeType),
			Url:        att.Guid,
			PreviewUrl: ptr(att.Guid),
		}
		if att.Excerpt != "" {
			def.Description = ptr(att.Excerpt)
		}
	case src.Block != nil:
		b := src.Block
		id, err := p.blockMediaId(ctx, b)
		if err != nil {
			return nil, err
		}
		def = &mastodon.MediaAttachment{
			Id:         id,
			Type:       b.Type,
			Url:        b.URL,
			PreviewUrl: ptr(b.URL),
		}
		if b.Alt != "" {
			def.Description = ptr(b.Alt)
		}
	case src.Remote != nil:
		r := src.Remote
		id, err := p.ids.Remap(ctx, idmap.Ref{Kind: idmap.KindMedia, Native: r.URL})
		if err != nil {
			return nil, err
		}
		typ := mediaType(r.MediaType)
		if typ == mastodon.MediaUnknown {
			typ = mediaTypeFromURL(r.URL)
		}
		def = &mastodon.MediaAttachment{
			Id:         id,
			Type:       typ,
			Url:        r.URL,
			PreviewUrl: ptr(r.URL),
			RemoteUrl:  ptr(r.URL),
		}
		if r.Name != "" {
			def.Description = ptr(r.Name)
		}
		if r.Blurhash != "" {
			def.Blurhash = ptr(r.Blurhash)
		}
	default:
		return nil, ErrNotFound
	}
	m := p.Media.Run(ctx, def, src)
	if m == nil {
		return nil, ErrNotFound
	}
	if err := p.validate(m, "media_attachment"); err != nil {
		return nil, err
	}
	return m, nil
}

// blockMediaId prefers the attachment row a block points at, then one whose
// url matches, and registers the url otherwise.
func (p *Projector) blockMediaId(ctx context.Context, b *MediaBlock) (string, error) {
	if b.AttachmentId != 0 {
		att, err := p.store.SelectPost(ctx, b.AttachmentId)
		if err == nil && att.PostType == model.PostTypeAttachment && att.Guid == b.URL {
			return formatId(att.Id), nil
		}
	}
	if att, err := p.store.SelectAttachmentByGuid(ctx, b.URL); err == nil {
		return formatId(att.Id), nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return "", err
	}
	return p.ids.Remap(ctx, idmap.Ref{Kind: idmap.KindMedia, Native: b.URL})
}

func mediaType(mimeType string) string {
	major, _, _ := strings.Cut(mimeType, "/")
	switch major {
	case "image":
		return mastodon.MediaImage
	case "video":
		return mastodon.MediaVideo
	case "audio":
		return mastodon.MediaAudio
	default:
		return mastodon.MediaUnknown
	}
}

func mediaTypeFromURL(u string) string {
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	ext := strings.ToLower(path.Ext(u))
	switch ext {
	case ".mp4", ".m4v", ".mov", ".webm", ".ogv":
		return mastodon.MediaVideo
	case ".mp3", ".m4a", ".ogg", ".oga", ".wav", ".flac":
		return mastodon.MediaAudio
	}
	return mediaType(mime.TypeByExtension(ext))
}

// Package media stores uploaded files and registers them as attachment posts.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/chao7150/wpmastodon/internal/config"
	"github.com/chao7150/wpmastodon/internal/model"
	"github.com/chao7150/wpmastodon/internal/store"
)

// MaxUploadSize bounds a single upload.
const MaxUploadSize = 40 << 20

var (
	ErrNotFound        = errors.New("media not found")
	ErrUnsupportedType = errors.New("unsupported media type")
)

// BlobStore keeps the bytes of uploaded files under slash separated keys.
type BlobStore interface {
	Put(ctx context.Context, key, contentType string, r io.Reader, size int64) error
	Get(ctx context.Context, key string, w io.Writer) error
	Delete(ctx context.Context, key string) error
}

// NewBlobStoreFromConfig creates the blob store named by cfg.Type.
func NewBlobStoreFromConfig(ctx context.Context, cfg config.MediaConfig) (BlobStore, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryStore(), nil
	case "filesystem", "":
		if cfg.Root == "" {
			return nil, fmt.Errorf("filesystem media store requires root to be set")
		}
		fs, err := NewFileSystemStore(cfg.Root)
		if err != nil {
			return nil, err
		}
		return fs, nil
	case "s3":
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("s3 media store requires s3_bucket to be set")
		}
		s3, err := NewS3Store(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return s3, nil
	default:
		return nil, fmt.Errorf("unknown media store type: %s", cfg.Type)
	}
}

// Library stores uploads and the attachment posts describing them.
type Library struct {
	blobs   BlobStore
	store   *store.Store
	baseURL string
}

func NewLibrary(blobs BlobStore, s *store.Store, baseURL string) *Library {
	return &Library{blobs: blobs, store: s, baseURL: strings.TrimSuffix(baseURL, "/")}
}

// Blobs exposes the underlying blob store for serving files.
func (l *Library) Blobs() BlobStore {
	return l.blobs
}

// Upload is one uploaded file.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
	Description string
}

// key builds a dated key like 2024/01/<uuid>.png.
func (l *Library) key(u Upload) string {
	ext := strings.ToLower(path.Ext(u.Filename))
	if ext == "" {
		if exts, _ := mime.ExtensionsByType(u.ContentType); len(exts) > 0 {
			ext = exts[0]
		}
	}
	now := l.store.Now()
	return fmt.Sprintf("%04d/%02d/%s%s", now.Year(), int(now.Month()), uuid.NewString(), ext)
}

func allowedType(contentType string) bool {
	major, _, _ := strings.Cut(contentType, "/")
	return major == "image" || major == "video" || major == "audio"
}

// Store saves the file and creates an unattached attachment post owned by
// author.
func (l *Library) Store(ctx context.Context, author *model.User, u Upload) (*model.Post, error) {
	if u.ContentType == "" {
		u.ContentType = mime.TypeByExtension(strings.ToLower(path.Ext(u.Filename)))
	}
	if ct, _, err := mime.ParseMediaType(u.ContentType); err == nil {
		u.ContentType = ct
	}
	if !allowedType(u.ContentType) {
		return nil, ErrUnsupportedType
	}
	if u.Size > MaxUploadSize {
		return nil, fmt.Errorf("upload of %d bytes exceeds %d", u.Size, MaxUploadSize)
	}
	key := l.key(u)
	if err := l.blobs.Put(ctx, key, u.ContentType, u.Body, u.Size); err != nil {
		return nil, err
	}
	att := &model.Post{
		AuthorId: author.Id,
		PostType: model.PostTypeAttachment,
		Status:   model.StatusInherit,
		Title:    strings.TrimSuffix(path.Base(u.Filename), path.Ext(u.Filename)),
		Excerpt:  u.Description,
		MimeType: u.ContentType,
		Guid:     l.baseURL + "/" + key,
	}
	if err := l.store.InsertPost(ctx, att); err != nil {
		_ = l.blobs.Delete(ctx, key)
		return nil, err
	}
	return att, nil
}

// Attachment loads an attachment post.
func (l *Library) Attachment(ctx context.Context, id int64) (*model.Post, error) {
	att, err := l.store.SelectPost(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if att.PostType != model.PostTypeAttachment {
		return nil, ErrNotFound
	}
	return att, nil
}

// Describe replaces the description of an attachment owned by author.
func (l *Library) Describe(ctx context.Context, author *model.User, id int64, description string) (*model.Post, error) {
	att, err := l.Attachment(ctx, id)
	if err != nil {
		return nil, err
	}
	if att.AuthorId != author.Id && !author.CanManagePrivate() {
		return nil, ErrNotFound
	}
	att.Excerpt = description
	if err := l.store.UpdatePost(ctx, att); err != nil {
		return nil, err
	}
	return att, nil
}

// KeyFromURL returns the blob key of a url served by this library.
func (l *Library) KeyFromURL(u string) (string, bool) {
	key, ok := strings.CutPrefix(u, l.baseURL+"/")
	return key, ok && key != ""
}

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/chao7150/wpmastodon/internal/model"
)

// PostQuery narrows a post listing. Zero values leave a field unconstrained.
type PostQuery struct {
	Types    []string
	Statuses []string
	AuthorId int64
	Tag      string
	MetaKey  string
	MetaVal  string
	Sticky   bool
	Search   string
	Ids      []int64

	BeforeId int64
	AfterId  int64
	Before   time.Time
	After    time.Time

	// Ascending orders oldest first; the default is newest first.
	Ascending bool
	Limit     int
}

func (s *Store) SelectPost(ctx context.Context, id int64) (*model.Post, error) {
	var post model.Post
	err := s.db.NewSelect().Model(&post).Where("id = ?", id).Scan(ctx)
	if err != nil {
		if err = notFound(err); err == ErrNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("failed to select post %d: %w", id, err)
	}
	return &post, nil
}

func (s *Store) SelectPosts(ctx context.Context, q PostQuery) ([]model.Post, error) {
	var posts []model.Post
	sel := s.db.NewSelect().Model(&posts)
	if len(q.Types) > 0 {
		sel.Where("p.post_type IN (?)", bun.In(q.Types))
	}
	if len(q.Statuses) > 0 {
		sel.Where("p.status IN (?)", bun.In(q.Statuses))
	}
	if q.AuthorId != 0 {
		sel.Where("p.author_id = ?", q.AuthorId)
	}
	if q.Sticky {
		sel.Where("p.sticky = ?", true)
	}
	if q.Search != "" {
		like := "%" + q.Search + "%"
		sel.WhereGroup(" AND ", func(g *bun.SelectQuery) *bun.SelectQuery {
			return g.Where("p.content LIKE ?", like).WhereOr("p.title LIKE ?", like)
		})
	}
	if len(q.Ids) > 0 {
		sel.Where("p.id IN (?)", bun.In(q.Ids))
	}
	if q.Tag != "" {
		sel.Where("p.id IN (SELECT pt.post_id FROM post_tags AS pt JOIN tags AS t ON t.id = pt.tag_id WHERE t.slug = ?)", q.Tag)
	}
	if q.MetaKey != "" {
		sel.Where("p.id IN (SELECT pm.post_id FROM post_meta AS pm WHERE pm.meta_key = ? AND pm.meta_value = ?)", q.MetaKey, q.MetaVal)
	}
	if q.BeforeId != 0 {
		sel.Where("p.id < ?", q.BeforeId)
	}
	if q.AfterId != 0 {
		sel.Where("p.id > ?", q.AfterId)
	}
	if !q.Before.IsZero() {
		sel.Where("p.created_at < ?", q.Before.UTC())
	}
	if !q.After.IsZero() {
		sel.Where("p.created_at > ?", q.After.UTC())
	}
	if q.Ascending {
		sel.Order("p.created_at ASC", "p.id ASC")
	} else {
		sel.Order("p.created_at DESC", "p.id DESC")
	}
	if q.Limit > 0 {
		sel.Limit(q.Limit)
	}
	if err := sel.Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to select posts: %w", err)
	}
	return posts, nil
}

func (s *Store) CountPosts(ctx context.Context, q PostQuery) (int, error) {
	sel := s.db.NewSelect().Model((*model.Post)(nil))
	if len(q.Types) > 0 {
		sel.Where("post_type IN (?)", bun.In(q.Types))
	}
	if len(q.Statuses) > 0 {
		sel.Where("status IN (?)", bun.In(q.Statuses))
	}
	if q.AuthorId != 0 {
		sel.Where("author_id = ?", q.AuthorId)
	}
	n, err := sel.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count posts: %w", err)
	}
	return n, nil
}

func (s *Store) InsertPost(ctx context.Context, post *model.Post) error {
	now := s.Now()
	if post.CreatedAt.IsZero() {
		post.CreatedAt = now
	}
	if post.ModifiedAt.IsZero() {
		post.ModifiedAt = post.CreatedAt
	}
	if _, err := s.db.NewInsert().Model(post).Exec(ctx); err != nil {
		return fmt.Errorf("failed to insert post: %w", err)
	}
	return nil
}

func (s *Store) UpdatePost(ctx context.Context, post *model.Post) error {
	post.ModifiedAt = s.Now()
	if _, err := s.db.NewUpdate().Model(post).WherePK().Exec(ctx); err != nil {
		return fmt.Errorf("failed to update post %d: %w", post.Id, err)
	}
	return nil
}

func (s *Store) UpdatePostStatus(ctx context.Context, id int64, status string) error {
	_, err := s.db.NewUpdate().Model((*model.Post)(nil)).
		Set("status = ?", status).
		Set("modified_at = ?", s.Now()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to update post status: %w", err)
	}
	return nil
}

// SelectAttachmentsByParent returns attachment posts belonging to a post.
func (s *Store) SelectAttachmentsByParent(ctx context.Context, parentId int64) ([]model.Post, error) {
	var posts []model.Post
	err := s.db.NewSelect().Model(&posts).
		Where("post_type = ?", model.PostTypeAttachment).
		Where("parent_id = ?", parentId).
		Order("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to select attachments: %w", err)
	}
	return posts, nil
}

// SelectAttachmentByGuid finds the attachment row whose url matches.
func (s *Store) SelectAttachmentByGuid(ctx context.Context, guid string) (*model.Post, error) {
	var post model.Post
	err := s.db.NewSelect().Model(&post).
		Where("post_type = ?", model.PostTypeAttachment).
		Where("guid = ?", guid).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err = notFound(err); err == ErrNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("failed to select attachment: %w", err)
	}
	return &post, nil
}

func (s *Store) ReparentAttachments(ctx context.Context, ids []int64, parentId int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.db.NewUpdate().Model((*model.Post)(nil)).
		Set("parent_id = ?", parentId).
		Where("post_type = ?", model.PostTypeAttachment).
		Where("id IN (?)", bun.In(ids)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to reparent attachments: %w", err)
	}
	return nil
}

// SelectPostMeta returns every meta value of a post keyed by meta key; the
// first row wins for repeated keys.
func (s *Store) SelectPostMeta(ctx context.Context, postId int64) (map[string]string, error) {
	var rows []model.PostMeta
	err := s.db.NewSelect().Model(&rows).Where("post_id = ?", postId).Order("id ASC").Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to select post meta: %w", err)
	}
	meta := make(map[string]string, len(rows))
	for _, r := range rows {
		if _, ok := meta[r.MetaKey]; !ok {
			meta[r.MetaKey] = r.MetaValue
		}
	}
	return meta, nil
}

func (s *Store) UpdatePostMeta(ctx context.Context, postId int64, key, value string) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().Model((*model.PostMeta)(nil)).
			Where("post_id = ?", postId).Where("meta_key = ?", key).Exec(ctx); err != nil {
			return fmt.Errorf("failed to clear post meta: %w", err)
		}
		row := &model.PostMeta{PostId: postId, MetaKey: key, MetaValue: value}
		if _, err := tx.NewInsert().Model(row).Exec(ctx); err != nil {
			return fmt.Errorf("failed to insert post meta: %w", err)
		}
		return nil
	})
}

// SelectNearestPostDate returns the creation time of the newest post whose id
// is below id. ok is false when there is none.
func (s *Store) SelectNearestPostDate(ctx context.Context, id int64) (t time.Time, ok bool, err error) {
	var post model.Post
	err = s.db.NewSelect().Model(&post).Column("created_at").
		Where("id < ?", id).Order("id DESC").Limit(1).Scan(ctx)
	if err != nil {
		if notFound(err) == ErrNotFound {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("failed to select post date: %w", err)
	}
	return post.CreatedAt, true, nil
}

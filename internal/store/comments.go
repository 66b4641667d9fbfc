package store

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/chao7150/wpmastodon/internal/model"
)

// CommentQuery narrows a comment listing. Only approved comments are listed.
type CommentQuery struct {
	PostId       int64
	UserId       int64
	Types        []string
	PostTypes    []string
	PostStatuses []string
	PostAuthorId int64
	Search       string
	ExcludeIds   []int64

	BeforeId int64
	AfterId  int64
	Before   time.Time
	After    time.Time

	Ascending bool
	Limit     int
}

func (s *Store) SelectComment(ctx context.Context, id int64) (*model.Comment, error) {
	var comment model.Comment
	err := s.db.NewSelect().Model(&comment).Where("id = ?", id).Scan(ctx)
	if err != nil {
		if err = notFound(err); err == ErrNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("failed to select comment %d: %w", id, err)
	}
	return &comment, nil
}

func (s *Store) SelectComments(ctx context.Context, q CommentQuery) ([]model.Comment, error) {
	var comments []model.Comment
	sel := s.db.NewSelect().Model(&comments).Where("c.approved = ?", true)
	if q.PostId != 0 {
		sel.Where("c.post_id = ?", q.PostId)
	}
	if q.UserId != 0 {
		sel.Where("c.user_id = ?", q.UserId)
	}
	if len(q.Types) > 0 {
		sel.Where("c.comment_type IN (?)", bun.In(q.Types))
	}
	if len(q.PostTypes) > 0 || len(q.PostStatuses) > 0 || q.PostAuthorId != 0 {
		sub := s.db.NewSelect().TableExpr("posts AS cp").Column("cp.id")
		if len(q.PostTypes) > 0 {
			sub.Where("cp.post_type IN (?)", bun.In(q.PostTypes))
		}
		if len(q.PostStatuses) > 0 {
			sub.Where("cp.status IN (?)", bun.In(q.PostStatuses))
		}
		if q.PostAuthorId != 0 {
			sub.Where("cp.author_id = ?", q.PostAuthorId)
		}
		sel.Where("c.post_id IN (?)", sub)
	}
	if q.Search != "" {
		sel.Where("c.content LIKE ?", "%"+q.Search+"%")
	}
	if len(q.ExcludeIds) > 0 {
		sel.Where("c.id NOT IN (?)", bun.In(q.ExcludeIds))
	}
	if q.BeforeId != 0 {
		sel.Where("c.id < ?", q.BeforeId)
	}
	if q.AfterId != 0 {
		sel.Where("c.id > ?", q.AfterId)
	}
	if !q.Before.IsZero() {
		sel.Where("c.created_at < ?", q.Before.UTC())
	}
	if !q.After.IsZero() {
		sel.Where("c.created_at > ?", q.After.UTC())
	}
	if q.Ascending {
		sel.Order("c.created_at ASC", "c.id ASC")
	} else {
		sel.Order("c.created_at DESC", "c.id DESC")
	}
	if q.Limit > 0 {
		sel.Limit(q.Limit)
	}
	if err := sel.Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to select comments: %w", err)
	}
	return comments, nil
}

func (s *Store) CountComments(ctx context.Context, postId int64, commentType string) (int, error) {
	n, err := s.db.NewSelect().Model((*model.Comment)(nil)).
		Where("post_id = ?", postId).
		Where("comment_type = ?", commentType).
		Where("approved = ?", true).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count comments: %w", err)
	}
	return n, nil
}

// SelectMaxCommentId returns the highest comment id on posts by the author,
// or 0 when there is none.
func (s *Store) SelectMaxCommentId(ctx context.Context, postAuthorId int64) (int64, error) {
	var id int64
	err := s.db.NewSelect().Model((*model.Comment)(nil)).
		ColumnExpr("COALESCE(MAX(c.id), 0)").
		Where("c.post_id IN (SELECT id FROM posts WHERE author_id = ?)", postAuthorId).
		Scan(ctx, &id)
	if err != nil {
		return 0, fmt.Errorf("failed to select max comment id: %w", err)
	}
	return id, nil
}

func (s *Store) InsertComment(ctx context.Context, comment *model.Comment) error {
	if comment.CreatedAt.IsZero() {
		comment.CreatedAt = s.Now()
	}
	if comment.CommentType == "" {
		comment.CommentType = model.CommentTypeComment
	}
	if _, err := s.db.NewInsert().Model(comment).Exec(ctx); err != nil {
		return fmt.Errorf("failed to insert comment: %w", err)
	}
	return nil
}

func (s *Store) DeleteComment(ctx context.Context, id int64) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().Model((*model.CommentMeta)(nil)).Where("comment_id = ?", id).Exec(ctx); err != nil {
			return fmt.Errorf("failed to delete comment meta: %w", err)
		}
		if _, err := tx.NewDelete().Model((*model.Comment)(nil)).Where("id = ?", id).Exec(ctx); err != nil {
			return fmt.Errorf("failed to delete comment: %w", err)
		}
		return nil
	})
}

func (s *Store) SelectCommentMeta(ctx context.Context, commentId int64) (map[string]string, error) {
	var rows []model.CommentMeta
	err := s.db.NewSelect().Model(&rows).Where("comment_id = ?", commentId).Order("id ASC").Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to select comment meta: %w", err)
	}
	meta := make(map[string]string, len(rows))
	for _, r := range rows {
		if _, ok := meta[r.MetaKey]; !ok {
			meta[r.MetaKey] = r.MetaValue
		}
	}
	return meta, nil
}

func (s *Store) InsertCommentMeta(ctx context.Context, commentId int64, key, value string) error {
	row := &model.CommentMeta{CommentId: commentId, MetaKey: key, MetaValue: value}
	if _, err := s.db.NewInsert().Model(row).Exec(ctx); err != nil {
		return fmt.Errorf("failed to insert comment meta: %w", err)
	}
	return nil
}

package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/uptrace/bun"

	"github.com/chao7150/wpmastodon/internal/model"
)

func (s *Store) InsertFollow(ctx context.Context, userId int64, target string) error {
	row := &model.Follow{UserId: userId, Target: target, CreatedAt: s.Now()}
	if _, err := s.db.NewInsert().Model(row).Ignore().Exec(ctx); err != nil {
		return fmt.Errorf("failed to insert follow: %w", err)
	}
	return nil
}

func (s *Store) DeleteFollow(ctx context.Context, userId int64, target string) error {
	_, err := s.db.NewDelete().Model((*model.Follow)(nil)).
		Where("user_id = ?", userId).Where("target = ?", target).Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete follow: %w", err)
	}
	return nil
}

// SelectFollowing returns the subset of targets the user follows.
func (s *Store) SelectFollowing(ctx context.Context, userId int64, targets []string) (map[string]bool, error) {
	following := make(map[string]bool, len(targets))
	if len(targets) == 0 {
		return following, nil
	}
	var rows []model.Follow
	err := s.db.NewSelect().Model(&rows).
		Where("user_id = ?", userId).Where("target IN (?)", bun.In(targets)).Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to select follows: %w", err)
	}
	for _, r := range rows {
		following[r.Target] = true
	}
	return following, nil
}

func (s *Store) CountFollowing(ctx context.Context, userId int64) (int, error) {
	n, err := s.db.NewSelect().Model((*model.Follow)(nil)).Where("user_id = ?", userId).Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count follows: %w", err)
	}
	return n, nil
}

func (s *Store) InsertReaction(ctx context.Context, userId int64, statusId, kind string) error {
	row := &model.Reaction{UserId: userId, StatusId: statusId, Kind: kind, CreatedAt: s.Now()}
	if _, err := s.db.NewInsert().Model(row).Ignore().Exec(ctx); err != nil {
		return fmt.Errorf("failed to insert reaction: %w", err)
	}
	return nil
}

func (s *Store) DeleteReaction(ctx context.Context, userId int64, statusId, kind string) error {
	_, err := s.db.NewDelete().Model((*model.Reaction)(nil)).
		Where("user_id = ?", userId).Where("status_id = ?", statusId).Where("kind = ?", kind).Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete reaction: %w", err)
	}
	return nil
}

// SelectReactionKinds returns the reaction kinds a user left on a status.
func (s *Store) SelectReactionKinds(ctx context.Context, userId int64, statusId string) (map[string]bool, error) {
	var rows []model.Reaction
	err := s.db.NewSelect().Model(&rows).
		Where("user_id = ?", userId).Where("status_id = ?", statusId).Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to select reactions: %w", err)
	}
	kinds := make(map[string]bool, len(rows))
	for _, r := range rows {
		kinds[r.Kind] = true
	}
	return kinds, nil
}

func (s *Store) CountReactions(ctx context.Context, statusId, kind string) (int, error) {
	n, err := s.db.NewSelect().Model((*model.Reaction)(nil)).
		Where("status_id = ?", statusId).Where("kind = ?", kind).Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count reactions: %w", err)
	}
	return n, nil
}

func (s *Store) InsertDismissal(ctx context.Context, userId, notificationId int64) error {
	row := &model.NotificationDismissal{UserId: userId, NotificationId: notificationId}
	if _, err := s.db.NewInsert().Model(row).Ignore().Exec(ctx); err != nil {
		return fmt.Errorf("failed to insert dismissal: %w", err)
	}
	return nil
}

func (s *Store) SelectDismissals(ctx context.Context, userId int64) ([]int64, error) {
	var ids []int64
	err := s.db.NewSelect().Model((*model.NotificationDismissal)(nil)).
		Column("notification_id").Where("user_id = ?", userId).Scan(ctx, &ids)
	if err != nil {
		return nil, fmt.Errorf("failed to select dismissals: %w", err)
	}
	return ids, nil
}

// Slugify lowercases a tag name and strips characters unsafe in a slug.
func Slugify(name string) string {
	name = strings.TrimPrefix(strings.TrimSpace(name), "#")
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r == ' ' || r == '-':
			b.WriteRune('-')
		case r == '_' || r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r > 127:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// TagPost links a post to tags, creating missing tags.
func (s *Store) TagPost(ctx context.Context, postId int64, names []string) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for _, name := range names {
			slug := Slugify(name)
			if slug == "" {
				continue
			}
			tag := &model.Tag{Name: strings.TrimPrefix(name, "#"), Slug: slug}
			if _, err := tx.NewInsert().Model(tag).Ignore().Returning("NULL").Exec(ctx); err != nil {
				return fmt.Errorf("failed to insert tag: %w", err)
			}
			if err := tx.NewSelect().Model(tag).Where("slug = ?", slug).Scan(ctx); err != nil {
				return fmt.Errorf("failed to select tag: %w", err)
			}
			link := &model.PostTag{PostId: postId, TagId: tag.Id}
			if _, err := tx.NewInsert().Model(link).Ignore().Exec(ctx); err != nil {
				return fmt.Errorf("failed to link tag: %w", err)
			}
		}
		return nil
	})
}

func (s *Store) SelectPostTags(ctx context.Context, postId int64) ([]model.Tag, error) {
	var tags []model.Tag
	err := s.db.NewSelect().Model(&tags).
		Where("id IN (SELECT tag_id FROM post_tags WHERE post_id = ?)", postId).
		Order("name ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to select post tags: %w", err)
	}
	return tags, nil
}

func (s *Store) SearchTags(ctx context.Context, q string, limit int) ([]model.Tag, error) {
	var tags []model.Tag
	err := s.db.NewSelect().Model(&tags).
		Where("slug LIKE ?", Slugify(q)+"%").
		Order("name ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to search tags: %w", err)
	}
	return tags, nil
}

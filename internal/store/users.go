package store

import (
	"context"
	"fmt"

	"github.com/chao7150/wpmastodon/internal/model"
)

func (s *Store) SelectUser(ctx context.Context, id int64) (*model.User, error) {
	var user model.User
	err := s.db.NewSelect().Model(&user).Where("id = ?", id).Scan(ctx)
	if err != nil {
		if err = notFound(err); err == ErrNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("failed to select user %d: %w", id, err)
	}
	return &user, nil
}

func (s *Store) SelectUserByLogin(ctx context.Context, login string) (*model.User, error) {
	var user model.User
	err := s.db.NewSelect().Model(&user).Where("login = ?", login).Scan(ctx)
	if err != nil {
		if err = notFound(err); err == ErrNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("failed to select user %s: %w", login, err)
	}
	return &user, nil
}

// SearchUsers matches login or display name.
func (s *Store) SearchUsers(ctx context.Context, q string, limit int) ([]model.User, error) {
	var users []model.User
	like := "%" + q + "%"
	err := s.db.NewSelect().Model(&users).
		Where("login LIKE ?", like).
		WhereOr("display_name LIKE ?", like).
		Order("id ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to search users: %w", err)
	}
	return users, nil
}

func (s *Store) CountUsers(ctx context.Context) (int, error) {
	n, err := s.db.NewSelect().Model((*model.User)(nil)).Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return n, nil
}

func (s *Store) InsertUser(ctx context.Context, user *model.User) error {
	if user.Registered.IsZero() {
		user.Registered = s.Now()
	}
	if user.Role == "" {
		user.Role = model.RoleSubscriber
	}
	if _, err := s.db.NewInsert().Model(user).Exec(ctx); err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

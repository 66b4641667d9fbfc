package store

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun/dialect"

	"github.com/chao7150/wpmastodon/internal/model"
)

// Option names shared across packages.
const (
	OptionDisableLogins     = "mastodon_api_disable_logins"
	OptionAutoReregister    = "mastodon_api_auto_app_reregister"
	OptionDefaultPostTypes  = "mastodon_api_default_post_types"
	OptionNotificationClear = "mastodon_api_notifications_cleared_"
)

// GetOption returns the value of a non-expired option.
func (s *Store) GetOption(ctx context.Context, name string) (string, bool, error) {
	var opt model.Option
	err := s.db.NewSelect().Model(&opt).Where("name = ?", name).Scan(ctx)
	if err != nil {
		if notFound(err) == ErrNotFound {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to select option %s: %w", name, err)
	}
	if opt.ExpiresAt != 0 && opt.ExpiresAt <= s.Now().Unix() {
		return "", false, nil
	}
	return opt.Value, true, nil
}

// PutOption stores an option; a positive ttl turns it into a transient.
func (s *Store) PutOption(ctx context.Context, name, value string, ttl time.Duration) error {
	opt := &model.Option{Name: name, Value: value}
	if ttl > 0 {
		opt.ExpiresAt = s.Now().Add(ttl).Unix()
	}
	_, err := s.db.NewInsert().Model(opt).
		On(s.upsertClause("name")).
		Set("value = " + s.excluded("value")).
		Set("expires_at = " + s.excluded("expires_at")).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to put option %s: %w", name, err)
	}
	return nil
}

func (s *Store) DeleteOption(ctx context.Context, name string) error {
	if _, err := s.db.NewDelete().Model((*model.Option)(nil)).Where("name = ?", name).Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete option %s: %w", name, err)
	}
	return nil
}

// ClaimOption deletes a live, truthy option and reports whether this call
// removed it. At most one concurrent caller wins.
func (s *Store) ClaimOption(ctx context.Context, name string) (bool, error) {
	res, err := s.db.NewDelete().Model((*model.Option)(nil)).
		Where("name = ?", name).
		Where("value IN ('1', 'true')").
		Where("(expires_at = 0 OR expires_at > ?)", s.Now().Unix()).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to claim option %s: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get claim result: %w", err)
	}
	return n == 1, nil
}

// DeleteExpiredOptions removes expired transients.
func (s *Store) DeleteExpiredOptions(ctx context.Context) (int64, error) {
	res, err := s.db.NewDelete().Model((*model.Option)(nil)).
		Where("expires_at > 0").
		Where("expires_at <= ?", s.Now().Unix()).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired options: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get delete result: %w", err)
	}
	return n, nil
}

// BoolOption reads an option stored as "1"/"0".
func (s *Store) BoolOption(ctx context.Context, name string) (bool, error) {
	v, ok, err := s.GetOption(ctx, name)
	if err != nil || !ok {
		return false, err
	}
	return v == "1" || v == "true", nil
}

func (s *Store) isMySQL() bool {
	return s.db.Dialect().Name() == dialect.MySQL
}

func (s *Store) upsertClause(key string) string {
	if s.isMySQL() {
		return "DUPLICATE KEY UPDATE"
	}
	return "CONFLICT (" + key + ") DO UPDATE"
}

func (s *Store) excluded(column string) string {
	if s.isMySQL() {
		return "VALUES(" + column + ")"
	}
	return "EXCLUDED." + column
}

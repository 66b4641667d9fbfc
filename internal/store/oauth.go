package store

import (
	"context"
	"fmt"
	"time"

	"github.com/chao7150/wpmastodon/internal/model"
)

func (s *Store) SelectApp(ctx context.Context, clientId string) (*model.App, error) {
	var app model.App
	err := s.db.NewSelect().Model(&app).Where("client_id = ?", clientId).Scan(ctx)
	if err != nil {
		if err = notFound(err); err == ErrNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("failed to select app %s: %w", clientId, err)
	}
	return &app, nil
}

func (s *Store) SelectApps(ctx context.Context) ([]model.App, error) {
	var apps []model.App
	if err := s.db.NewSelect().Model(&apps).Order("creation_date DESC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to select apps: %w", err)
	}
	return apps, nil
}

func (s *Store) InsertApp(ctx context.Context, app *model.App) error {
	if app.CreationDate.IsZero() {
		app.CreationDate = s.Now()
	}
	if app.LastUsed.IsZero() {
		app.LastUsed = app.CreationDate
	}
	if _, err := s.db.NewInsert().Model(app).Exec(ctx); err != nil {
		return fmt.Errorf("failed to create app: %w", err)
	}
	return nil
}

func (s *Store) UpdateAppLastUsed(ctx context.Context, clientId string, at time.Time) error {
	_, err := s.db.NewUpdate().Model((*model.App)(nil)).
		Set("last_used = ?", at.UTC()).Where("client_id = ?", clientId).Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to update app last used: %w", err)
	}
	return nil
}

func (s *Store) UpdateAppSecret(ctx context.Context, clientId, secret string) error {
	_, err := s.db.NewUpdate().Model((*model.App)(nil)).
		Set("client_secret = ?", secret).Where("client_id = ?", clientId).Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to update app secret: %w", err)
	}
	return nil
}

// UpdateAppSettings stores the per-app post type settings.
func (s *Store) UpdateAppSettings(ctx context.Context, clientId, postTypes, createPostType string) error {
	_, err := s.db.NewUpdate().Model((*model.App)(nil)).
		Set("post_types = ?", postTypes).
		Set("create_post_type = ?", createPostType).
		Where("client_id = ?", clientId).Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to update app settings: %w", err)
	}
	return nil
}

// DeleteApp removes an app together with its codes and tokens.
func (s *Store) DeleteApp(ctx context.Context, clientId string) error {
	for _, m := range []any{(*model.AccessToken)(nil), (*model.AuthCode)(nil), (*model.App)(nil)} {
		if _, err := s.db.NewDelete().Model(m).Where("client_id = ?", clientId).Exec(ctx); err != nil {
			return fmt.Errorf("failed to delete app %s: %w", clientId, err)
		}
	}
	return nil
}

func (s *Store) InsertAuthCode(ctx context.Context, code *model.AuthCode) error {
	if _, err := s.db.NewInsert().Model(code).Exec(ctx); err != nil {
		return fmt.Errorf("failed to insert auth code: %w", err)
	}
	return nil
}

func (s *Store) SelectAuthCode(ctx context.Context, code string) (*model.AuthCode, error) {
	var row model.AuthCode
	err := s.db.NewSelect().Model(&row).Where("code = ?", code).Scan(ctx)
	if err != nil {
		if err = notFound(err); err == ErrNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("failed to select auth code: %w", err)
	}
	return &row, nil
}

// ClaimAuthCode deletes a live code and reports whether this call deleted it.
// Of concurrent claims of the same code exactly one observes true.
func (s *Store) ClaimAuthCode(ctx context.Context, code string) (bool, error) {
	res, err := s.db.NewDelete().Model((*model.AuthCode)(nil)).
		Where("code = ?", code).
		Where("expires > ?", s.Now().Unix()).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to claim auth code: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get claim result: %w", err)
	}
	return n == 1, nil
}

func (s *Store) InsertAccessToken(ctx context.Context, token *model.AccessToken) error {
	if token.CreatedAt.IsZero() {
		token.CreatedAt = s.Now()
	}
	if _, err := s.db.NewInsert().Model(token).Exec(ctx); err != nil {
		return fmt.Errorf("failed to insert access token: %w", err)
	}
	return nil
}

func (s *Store) SelectAccessToken(ctx context.Context, token string) (*model.AccessToken, error) {
	var row model.AccessToken
	err := s.db.NewSelect().Model(&row).Where("access_token = ?", token).Scan(ctx)
	if err != nil {
		if err = notFound(err); err == ErrNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("failed to select access token: %w", err)
	}
	return &row, nil
}

func (s *Store) SelectAccessTokensByApp(ctx context.Context, clientId string) ([]model.AccessToken, error) {
	var rows []model.AccessToken
	err := s.db.NewSelect().Model(&rows).Where("client_id = ?", clientId).Order("created_at DESC").Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to select access tokens: %w", err)
	}
	return rows, nil
}

func (s *Store) UpdateAccessTokenLastUsed(ctx context.Context, token string, at int64) error {
	_, err := s.db.NewUpdate().Model((*model.AccessToken)(nil)).
		Set("last_used = ?", at).Where("access_token = ?", token).Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to update token last used: %w", err)
	}
	return nil
}

func (s *Store) DeleteAccessToken(ctx context.Context, token string) (bool, error) {
	res, err := s.db.NewDelete().Model((*model.AccessToken)(nil)).Where("access_token = ?", token).Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to delete access token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get delete result: %w", err)
	}
	return n > 0, nil
}

// SweepResult counts rows removed by a sweep.
type SweepResult struct {
	Codes  int64
	Tokens int64
	Apps   int64
}

// SweepExpired deletes codes and tokens that expired before cutoff and apps
// created before appCutoff that no live code or token references.
func (s *Store) SweepExpired(ctx context.Context, cutoff int64, appCutoff time.Time) (SweepResult, error) {
	var result SweepResult

	res, err := s.db.NewDelete().Model((*model.AuthCode)(nil)).Where("expires < ?", cutoff).Exec(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to sweep auth codes: %w", err)
	}
	result.Codes, _ = res.RowsAffected()

	res, err = s.db.NewDelete().Model((*model.AccessToken)(nil)).Where("expires < ?", cutoff).Exec(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to sweep access tokens: %w", err)
	}
	result.Tokens, _ = res.RowsAffected()

	now := s.Now().Unix()
	res, err = s.db.NewDelete().Model((*model.App)(nil)).
		Where("creation_date < ?", appCutoff.UTC()).
		Where("client_id NOT IN (SELECT client_id FROM access_tokens WHERE expires > ?)", now).
		Where("client_id NOT IN (SELECT client_id FROM auth_codes WHERE expires > ?)", now).
		Exec(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to sweep apps: %w", err)
	}
	result.Apps, _ = res.RowsAffected()
	return result, nil
}

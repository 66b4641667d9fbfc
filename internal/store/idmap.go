package store

import (
	"context"
	"fmt"

	"github.com/chao7150/wpmastodon/internal/model"
)

// GetOrCreateMapping returns the id_map row for (kind, hash), inserting it
// first when missing. The unique index on (kind, ref_hash) makes concurrent
// first resolutions converge on one row.
func (s *Store) GetOrCreateMapping(ctx context.Context, kind, ref, hash string) (*model.IdMapping, error) {
	row := &model.IdMapping{Kind: kind, NativeRef: ref, RefHash: hash, CreatedAt: s.Now()}
	if _, err := s.db.NewInsert().Model(row).Ignore().Returning("NULL").Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to insert id mapping: %w", err)
	}
	existing, err := s.SelectMappingByHash(ctx, kind, hash)
	if err != nil {
		return nil, err
	}
	return existing, nil
}

func (s *Store) SelectMappingByHash(ctx context.Context, kind, hash string) (*model.IdMapping, error) {
	var row model.IdMapping
	err := s.db.NewSelect().Model(&row).Where("kind = ?", kind).Where("ref_hash = ?", hash).Scan(ctx)
	if err != nil {
		if err = notFound(err); err == ErrNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("failed to select id mapping: %w", err)
	}
	return &row, nil
}

func (s *Store) SelectMapping(ctx context.Context, id int64) (*model.IdMapping, error) {
	var row model.IdMapping
	err := s.db.NewSelect().Model(&row).Where("id = ?", id).Scan(ctx)
	if err != nil {
		if err = notFound(err); err == ErrNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("failed to select id mapping %d: %w", id, err)
	}
	return &row, nil
}

package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Photo struct {
	ID              string
	AlbumID         string
	ProjectID       string
	Filename        string
	OriginalKey     string
	Status          string
	DerivativeKey   string
	DerivativeReady bool
	CreatedAt       time.Time
}

type PhotoStore struct{ db *pgxpool.Pool }

func (s *PhotoStore) Get(ctx context.Context, id string) (*Photo, error) {
	var p Photo
	err := s.db.QueryRow(ctx, `select
id, album_id, project_id, filename, original_key, status,
coalesce(derivative_key, ''), derivative_ready, created_at
from photos where id = $1`, id).Scan(
		&p.ID, &p.AlbumID, &p.ProjectID, &p.Filename, &p.OriginalKey,
		&p.Status, &p.DerivativeKey, &p.DerivativeReady, &p.CreatedAt,
	)
	if err != nil {
		return nil, mapErr(err)
	}
	return &p, nil
}

// ListByAlbum returns album members in upload order.
func (s *PhotoStore) ListByAlbum(ctx context.Context, albumID string) ([]Photo, error) {
	rows, err := s.db.Query(ctx, `select
id, album_id, project_id, filename, original_key, status,
coalesce(derivative_key, ''), derivative_ready, created_at
from photos where album_id = $1 order by created_at, id`, albumID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Photo
	for rows.Next() {
		var p Photo
		if err := rows.Scan(&p.ID, &p.AlbumID, &p.ProjectID, &p.Filename,
			&p.OriginalKey, &p.Status, &p.DerivativeKey, &p.DerivativeReady,
			&p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PhotoStore) SetDerivative(ctx context.Context, id, key string) error {
	tag, err := s.db.Exec(ctx, `update photos set
derivative_key = $2, derivative_ready = true, status = $3
where id = $1`, id, key, MediaStatusReady)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PhotoStore) SetStatus(ctx context.Context, id, status string) error {
	tag, err := s.db.Exec(ctx,
		`update photos set status = $2 where id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

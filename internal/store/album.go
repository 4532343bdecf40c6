package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Album struct {
	ID        string
	ProjectID string
	Name      string
	CreatedAt time.Time
}

// Bundle is the built zip artifact for one album variant.
type Bundle struct {
	AlbumID   string
	Variant   string // "original" or "social"
	Path      string
	SizeBytes int64
	BuiltAt   *time.Time
}

type AlbumStore struct{ db *pgxpool.Pool }

func (s *AlbumStore) Get(ctx context.Context, id string) (*Album, error) {
	var a Album
	err := s.db.QueryRow(ctx,
		`select id, project_id, name, created_at from albums where id = $1`, id).
		Scan(&a.ID, &a.ProjectID, &a.Name, &a.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &a, nil
}

func (s *AlbumStore) Bundle(ctx context.Context, albumID, variant string) (*Bundle, error) {
	var b Bundle
	err := s.db.QueryRow(ctx, `select
album_id, variant, coalesce(path, ''), size_bytes, built_at
from album_bundles where album_id = $1 and variant = $2`, albumID, variant).
		Scan(&b.AlbumID, &b.Variant, &b.Path, &b.SizeBytes, &b.BuiltAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &b, nil
}

// SetBundle records a freshly built artifact.
func (s *AlbumStore) SetBundle(ctx context.Context, b *Bundle) error {
	_, err := s.db.Exec(ctx, `insert into album_bundles(
album_id, variant, path, size_bytes, built_at
) values ($1,$2,$3,$4,now())
on conflict (album_id, variant) do update set
path = excluded.path, size_bytes = excluded.size_bytes, built_at = now()`,
		b.AlbumID, b.Variant, b.Path, b.SizeBytes)
	return err
}

// ClearBundle zeroes the record after an artifact is removed.
func (s *AlbumStore) ClearBundle(ctx context.Context, albumID, variant string) error {
	_, err := s.db.Exec(ctx, `update album_bundles set
path = null, size_bytes = 0, built_at = null
where album_id = $1 and variant = $2`, albumID, variant)
	return err
}

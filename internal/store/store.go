// Package store is the PostgreSQL persistence layer. Plain SQL through
// pgx, no ORM.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("record not found")

// Media processing states shared by videos and photo derivatives.
const (
	MediaStatusUploading  = "uploading"
	MediaStatusQueued     = "queued"
	MediaStatusProcessing = "processing"
	MediaStatusReady      = "ready"
	MediaStatusError      = "error"
)

type Store struct {
	db *pgxpool.Pool

	Videos        *VideoStore
	Photos        *PhotoStore
	Albums        *AlbumStore
	Projects      *ProjectStore
	Notifications *NotificationStore
	Comments      *CommentStore
}

func New(db *pgxpool.Pool) *Store {
	return &Store{
		db:            db,
		Videos:        &VideoStore{db: db},
		Photos:        &PhotoStore{db: db},
		Albums:        &AlbumStore{db: db},
		Projects:      &ProjectStore{db: db},
		Notifications: &NotificationStore{db: db},
		Comments:      &CommentStore{db: db},
	}
}

// Ping verifies connectivity, used by startup checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func Connect(ctx context.Context, url string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MaxConnLifetime = time.Hour

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

func mapErr(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

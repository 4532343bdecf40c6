package store

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

type CommentStore struct{ db *pgxpool.Pool }

// Exists reports whether the comment is still present. Notifications whose
// source comment is gone are cancelled instead of sent.
func (s *CommentStore) Exists(ctx context.Context, id string) (bool, error) {
	var ok bool
	err := s.db.QueryRow(ctx,
		`select exists(select 1 from comments where id = $1)`, id).Scan(&ok)
	return ok, err
}

package store

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Project struct {
	ID          string
	Name        string
	ClientEmail string
}

type ProjectStore struct{ db *pgxpool.Pool }

func (s *ProjectStore) Get(ctx context.Context, id string) (*Project, error) {
	var p Project
	err := s.db.QueryRow(ctx,
		`select id, name, coalesce(client_email, '') from projects where id = $1`, id).
		Scan(&p.ID, &p.Name, &p.ClientEmail)
	if err != nil {
		return nil, mapErr(err)
	}
	return &p, nil
}

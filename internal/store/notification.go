package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Notification scopes. Each row carries an independent delivery state
// machine per scope.
const (
	ScopeAdmin  = "admin"
	ScopeClient = "client"
)

// ScopeState is one scope's delivery state for a notification.
type ScopeState struct {
	Sent     bool
	Failed   bool
	Attempts int
	SentAt   *time.Time
}

type Notification struct {
	ID             string
	Type           string // "comment", "upload", ...
	ProjectID      string
	CorrelationKey *string // e.g. the comment ID, for cancellation checks
	Author         string
	Body           string
	Timecode       *float64
	CreatedAt      time.Time

	Admin  ScopeState
	Client ScopeState
}

type NotificationStore struct{ db *pgxpool.Pool }

func scopeColumns(scope string) (string, error) {
	switch scope {
	case ScopeAdmin, ScopeClient:
		return scope, nil
	default:
		return "", fmt.Errorf("unknown notification scope %q", scope)
	}
}

// ListPending returns notifications the given scope has neither sent nor
// given up on, oldest first.
func (s *NotificationStore) ListPending(ctx context.Context, scope string) ([]Notification, error) {
	col, err := scopeColumns(scope)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.Query(ctx, fmt.Sprintf(`select
id, type, project_id, correlation_key, author, body, timecode, created_at,
admin_sent, admin_failed, admin_attempts, admin_sent_at,
client_sent, client_failed, client_attempts, client_sent_at
from notifications
where not %[1]s_sent and not %[1]s_failed
order by created_at, id`, col))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(
			&n.ID, &n.Type, &n.ProjectID, &n.CorrelationKey, &n.Author, &n.Body,
			&n.Timecode, &n.CreatedAt,
			&n.Admin.Sent, &n.Admin.Failed, &n.Admin.Attempts, &n.Admin.SentAt,
			&n.Client.Sent, &n.Client.Failed, &n.Client.Attempts, &n.Client.SentAt,
		); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// AddAttempt charges one delivery attempt to the scope before sending.
func (s *NotificationStore) AddAttempt(ctx context.Context, scope string, ids []string) error {
	col, err := scopeColumns(scope)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, fmt.Sprintf(
		`update notifications set %[1]s_attempts = %[1]s_attempts + 1
where id = any($1)`, col), ids)
	return err
}

func (s *NotificationStore) MarkSent(ctx context.Context, scope string, ids []string) error {
	col, err := scopeColumns(scope)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, fmt.Sprintf(
		`update notifications set %[1]s_sent = true, %[1]s_sent_at = now()
where id = any($1)`, col), ids)
	return err
}

// MarkFailed retires the scope's state machine after attempts are exhausted.
func (s *NotificationStore) MarkFailed(ctx context.Context, scope string, ids []string) error {
	col, err := scopeColumns(scope)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, fmt.Sprintf(
		`update notifications set %[1]s_failed = true where id = any($1)`, col), ids)
	return err
}

// Delete removes a notification outright, used when its source was deleted.
func (s *NotificationStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.Exec(ctx, `delete from notifications where id = $1`, id)
	return err
}

// Watermark returns the scope's last successful batch time, nil when the
// scope has never sent.
func (s *NotificationStore) Watermark(ctx context.Context, scope string) (*time.Time, error) {
	if _, err := scopeColumns(scope); err != nil {
		return nil, err
	}
	var t *time.Time
	err := s.db.QueryRow(ctx,
		`select last_sent from notify_watermarks where scope = $1`, scope).Scan(&t)
	if err != nil {
		err = mapErr(err)
		if err == ErrNotFound {
			return nil, nil
		}
		return nil, err
	}
	return t, nil
}

func (s *NotificationStore) SetWatermark(ctx context.Context, scope string, at time.Time) error {
	if _, err := scopeColumns(scope); err != nil {
		return err
	}
	_, err := s.db.Exec(ctx, `insert into notify_watermarks(scope, last_sent)
values ($1, $2)
on conflict (scope) do update set last_sent = excluded.last_sent`, scope, at)
	return err
}

package store

import "context"

// NotifySetting is one scope's delivery schedule as configured by the
// studio owner.
type NotifySetting struct {
	Scope    string
	Schedule string // IMMEDIATE, HOURLY, DAILY, WEEKLY
	At       string // "HH:MM"
	Day      int    // 0=Sunday, WEEKLY only
}

// LoadSettings returns the configured schedule per scope.
func (s *NotificationStore) LoadSettings(ctx context.Context) (map[string]NotifySetting, error) {
	rows, err := s.db.Query(ctx,
		`select scope, schedule, send_at, send_day from notify_settings`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]NotifySetting)
	for rows.Next() {
		var n NotifySetting
		if err := rows.Scan(&n.Scope, &n.Schedule, &n.At, &n.Day); err != nil {
			return nil, err
		}
		out[n.Scope] = n
	}
	return out, rows.Err()
}

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Video struct {
	ID              string
	ProjectID       string
	SourceKey       string
	Status          string
	Progress        int
	Duration        float64
	Width           int
	Height          int
	FPS             float64
	Codec           string
	PosterKey       string
	PosterCustom    bool
	ProcessingError *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Rendition is one encoded output tier for a video.
type Rendition struct {
	VideoID   string
	Tier      string // "720p", "1080p", "2160p"
	ObjectKey string
	Width     int
	Height    int
	SizeBytes int64
}

type VideoStore struct{ db *pgxpool.Pool }

func (s *VideoStore) Get(ctx context.Context, id string) (*Video, error) {
	var v Video
	err := s.db.QueryRow(ctx, `select
id, project_id, source_key, status, progress, duration, width, height,
fps, codec, poster_key, poster_custom, processing_error, created_at, updated_at
from videos where id = $1`, id).Scan(
		&v.ID, &v.ProjectID, &v.SourceKey, &v.Status, &v.Progress, &v.Duration,
		&v.Width, &v.Height, &v.FPS, &v.Codec, &v.PosterKey, &v.PosterCustom,
		&v.ProcessingError, &v.CreatedAt, &v.UpdatedAt,
	)
	if err != nil {
		return nil, mapErr(err)
	}
	return &v, nil
}

// MarkProcessing starts a run: progress rewinds to zero and any error from
// the previous run is cleared so the record reflects the new cycle.
func (s *VideoStore) MarkProcessing(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `update videos set
status = $2, progress = 0, processing_error = null, updated_at = now()
where id = $1`, id, MediaStatusProcessing)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetProgress persists percent only when it advances past the stored value.
func (s *VideoStore) SetProgress(ctx context.Context, id string, percent int) error {
	_, err := s.db.Exec(ctx,
		`update videos set progress = $2, updated_at = now()
where id = $1 and progress < $2`, id, percent)
	return err
}

// SetProbe records the source characteristics discovered by ffprobe.
func (s *VideoStore) SetProbe(ctx context.Context, id string, duration float64, width, height int, fps float64, codec string) error {
	_, err := s.db.Exec(ctx, `update videos set
duration = $2, width = $3, height = $4, fps = $5, codec = $6, updated_at = now()
where id = $1`, id, duration, width, height, fps, codec)
	return err
}

func (s *VideoStore) SetPoster(ctx context.Context, id, posterKey string) error {
	_, err := s.db.Exec(ctx,
		`update videos set poster_key = $2, updated_at = now()
where id = $1 and not poster_custom`, id, posterKey)
	return err
}

// MarkReady finalizes a successful run.
func (s *VideoStore) MarkReady(ctx context.Context, id string) error {
	_, err := s.db.Exec(ctx, `update videos set
status = $2, progress = 100, processing_error = null, updated_at = now()
where id = $1`, id, MediaStatusReady)
	return err
}

// MarkError finalizes a failed run with a viewer-facing message.
func (s *VideoStore) MarkError(ctx context.Context, id, message string) error {
	_, err := s.db.Exec(ctx, `update videos set
status = $2, processing_error = $3, updated_at = now()
where id = $1`, id, MediaStatusError, message)
	return err
}

// UpsertRendition records one encoded tier, replacing any previous key.
func (s *VideoStore) UpsertRendition(ctx context.Context, r *Rendition) error {
	_, err := s.db.Exec(ctx, `insert into video_renditions(
video_id, tier, object_key, width, height, size_bytes
) values ($1,$2,$3,$4,$5,$6)
on conflict (video_id, tier) do update set
object_key = excluded.object_key, width = excluded.width,
height = excluded.height, size_bytes = excluded.size_bytes`,
		r.VideoID, r.Tier, r.ObjectKey, r.Width, r.Height, r.SizeBytes)
	if err != nil {
		return fmt.Errorf("upsert rendition %s/%s: %w", r.VideoID, r.Tier, err)
	}
	return nil
}

func (s *VideoStore) Renditions(ctx context.Context, videoID string) ([]Rendition, error) {
	rows, err := s.db.Query(ctx, `select
video_id, tier, object_key, width, height, size_bytes
from video_renditions where video_id = $1 order by height`, videoID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Rendition
	for rows.Next() {
		var r Rendition
		if err := rows.Scan(&r.VideoID, &r.Tier, &r.ObjectKey, &r.Width, &r.Height, &r.SizeBytes); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

package media

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/reelroom/reelroom/internal/logger"
	"github.com/reelroom/reelroom/internal/metrics"
	"github.com/reelroom/reelroom/internal/scratch"
	"github.com/reelroom/reelroom/internal/storage"
	"github.com/reelroom/reelroom/internal/store"
	"github.com/reelroom/reelroom/internal/tracing"
)

const (
	encodeProgressBudget = 80 // percent of overall job progress
	posterProgressBudget = 20
)

// VideoRecords is the persistence surface the pipeline mutates.
type VideoRecords interface {
	Get(ctx context.Context, id string) (*store.Video, error)
	MarkProcessing(ctx context.Context, id string) error
	SetProbe(ctx context.Context, id string, duration float64, width, height int, fps float64, codec string) error
	SetProgress(ctx context.Context, id string, percent int) error
	SetPoster(ctx context.Context, id, posterKey string) error
	MarkReady(ctx context.Context, id string) error
	MarkError(ctx context.Context, id, message string) error
	UpsertRendition(ctx context.Context, r *store.Rendition) error
}

// Pipeline runs a full transcode: download, validate, probe, encode every
// applicable tier, poster, upload, finalize.
type Pipeline struct {
	Records   VideoRecords
	Storage   storage.Storage
	Scratch   *scratch.Dir
	Prober    *Prober
	Encoder   *Encoder
	Watermark *Watermark // nil disables branding overlays
}

func (p *Pipeline) Run(ctx context.Context, videoID string) error {
	log := logger.FromContext(ctx)
	start := time.Now()

	video, err := p.Records.Get(ctx, videoID)
	if err != nil {
		return fmt.Errorf("load video %s: %w", videoID, err)
	}

	if err := p.Records.MarkProcessing(ctx, videoID); err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}

	workDir, err := p.Scratch.TempDir("transcode-" + videoID)
	if err != nil {
		return p.fail(ctx, videoID, err)
	}
	defer p.cleanup(ctx, workDir)

	sourcePath := filepath.Join(workDir, "source")
	meta, err := p.fetchAndProbe(ctx, video, sourcePath)
	if err != nil {
		return p.fail(ctx, videoID, err)
	}

	log.Info("source probed",
		"video_id", videoID,
		"duration", meta.Duration,
		"width", meta.Width,
		"height", meta.Height,
		"fps", meta.FPS,
		"codec", meta.Codec,
	)

	if err := p.Records.SetProbe(ctx, videoID, meta.Duration, meta.Width, meta.Height, meta.FPS, meta.Codec); err != nil {
		return p.fail(ctx, videoID, err)
	}

	reporter := newProgressReporter(p.Records, videoID)
	presets := SelectPresets(meta.Width, meta.Height)

	for i, preset := range presets {
		if err := p.encodeTier(ctx, video, meta, preset, sourcePath, workDir, reporter.tierFunc(i, len(presets))); err != nil {
			return p.fail(ctx, videoID, err)
		}
	}

	if !video.PosterCustom {
		if err := p.poster(ctx, video, meta, sourcePath, workDir); err != nil {
			return p.fail(ctx, videoID, err)
		}
	}
	reporter.report(ctx, encodeProgressBudget+posterProgressBudget)

	if err := p.Records.MarkReady(ctx, videoID); err != nil {
		return fmt.Errorf("mark ready: %w", err)
	}

	log.Info("transcode completed",
		"video_id", videoID,
		"tiers", len(presets),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// fetchAndProbe downloads the source, validates its container by content,
// and probes its characteristics.
func (p *Pipeline) fetchAndProbe(ctx context.Context, video *store.Video, sourcePath string) (*Metadata, error) {
	if err := p.Storage.DownloadToFile(ctx, video.SourceKey, sourcePath); err != nil {
		return nil, fmt.Errorf("download source: %w", err)
	}

	fi, err := os.Stat(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("stat source: %w", err)
	}
	if fi.Size() == 0 {
		return nil, ErrEmptySource
	}

	head := make([]byte, SniffLen)
	f, err := os.Open(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("open source: %w", err)
	}
	n, err := io.ReadFull(f, head)
	f.Close()
	if err != nil && n < 12 {
		return nil, ErrEmptySource
	}
	if _, ok := SniffContainer(head[:n]); !ok {
		return nil, ErrUnsupportedContainer
	}

	return p.Prober.Probe(ctx, sourcePath)
}

func (p *Pipeline) encodeTier(ctx context.Context, video *store.Video, meta *Metadata, preset Preset, sourcePath, workDir string, onProgress func(context.Context, float64)) error {
	log := logger.FromContext(ctx)
	start := time.Now()

	ctx, span := tracing.StartSpan(ctx, "media.encode_tier")
	defer span.End()
	tracing.AddSpanAttributes(ctx,
		attribute.String("video.id", video.ID),
		attribute.String("video.tier", preset.Name),
	)

	width, height := OutputDimensions(meta.Width, meta.Height, preset)
	outputPath := filepath.Join(workDir, preset.Name+".mp4")

	req := &EncodeRequest{
		InputPath:  sourcePath,
		OutputPath: outputPath,
		Width:      width,
		Height:     height,
		Watermark:  p.Watermark,
		HasAudio:   meta.HasAudio,
		Duration:   meta.Duration,
	}
	if err := p.Encoder.Encode(ctx, req, func(frac float64) { onProgress(ctx, frac) }); err != nil {
		metrics.TranscodeTiersTotal.WithLabelValues(preset.Name, "error").Inc()
		return fmt.Errorf("encode %s: %w", preset.Name, err)
	}
	metrics.TranscodeTiersTotal.WithLabelValues(preset.Name, "success").Inc()

	key := fmt.Sprintf("renditions/%s/%s.mp4", video.ID, preset.Name)
	if err := p.Storage.UploadFile(ctx, key, outputPath, "video/mp4"); err != nil {
		return fmt.Errorf("upload %s: %w", preset.Name, err)
	}

	var size int64
	if fi, err := os.Stat(outputPath); err == nil {
		size = fi.Size()
	}
	if err := p.Records.UpsertRendition(ctx, &store.Rendition{
		VideoID:   video.ID,
		Tier:      preset.Name,
		ObjectKey: key,
		Width:     width,
		Height:    height,
		SizeBytes: size,
	}); err != nil {
		return fmt.Errorf("persist rendition %s: %w", preset.Name, err)
	}

	log.Info("tier encoded",
		"video_id", video.ID,
		"tier", preset.Name,
		"width", width,
		"height", height,
		"size", size,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func (p *Pipeline) poster(ctx context.Context, video *store.Video, meta *Metadata, sourcePath, workDir string) error {
	posterPath := filepath.Join(workDir, "poster.jpg")
	if err := p.Encoder.ExtractPoster(ctx, sourcePath, posterPath, PosterOffset(meta.Duration)); err != nil {
		return err
	}

	key := fmt.Sprintf("posters/%s.jpg", video.ID)
	if err := p.Storage.UploadFile(ctx, key, posterPath, "image/jpeg"); err != nil {
		return fmt.Errorf("upload poster: %w", err)
	}
	return p.Records.SetPoster(ctx, video.ID, key)
}

// fail persists the classified failure on the record before propagating.
// The record write is best-effort so the original error always surfaces.
func (p *Pipeline) fail(ctx context.Context, videoID string, cause error) error {
	log := logger.FromContext(ctx)
	log.Error("transcode failed", "video_id", videoID, "error", cause)
	tracing.RecordError(ctx, cause)

	if err := p.Records.MarkError(ctx, videoID, FailureMessage(cause)); err != nil {
		log.Error("failed to persist error state", "video_id", videoID, "error", err)
	}
	return cause
}

func (p *Pipeline) cleanup(ctx context.Context, dir string) {
	if err := os.RemoveAll(dir); err != nil {
		logger.FromContext(ctx).Warn("scratch cleanup failed", "dir", dir, "error", err)
	}
}

// progressReporter scales per-tier encode fractions into the job's overall
// progress budget and only persists forward movement.
type progressReporter struct {
	records VideoRecords
	videoID string

	mu   sync.Mutex
	last int
}

func newProgressReporter(records VideoRecords, videoID string) *progressReporter {
	return &progressReporter{records: records, videoID: videoID}
}

// tierFunc returns a callback mapping tier i's 0..1 fraction into the
// encode budget shared evenly across tiers.
func (r *progressReporter) tierFunc(index, total int) func(context.Context, float64) {
	return func(ctx context.Context, frac float64) {
		overall := (float64(index) + frac) / float64(total) * encodeProgressBudget
		r.report(ctx, int(overall))
	}
}

func (r *progressReporter) report(ctx context.Context, percent int) {
	if percent > 100 {
		percent = 100
	}

	r.mu.Lock()
	if percent <= r.last {
		r.mu.Unlock()
		return
	}
	r.last = percent
	r.mu.Unlock()

	if err := r.records.SetProgress(ctx, r.videoID, percent); err != nil {
		logger.FromContext(ctx).Warn("progress update failed", "video_id", r.videoID, "error", err)
	}
}

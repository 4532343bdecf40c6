package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/reelroom/reelroom/internal/bundle"
	"github.com/reelroom/reelroom/internal/derivative"
	"github.com/reelroom/reelroom/internal/logger"
	"github.com/reelroom/reelroom/internal/media"
	"github.com/reelroom/reelroom/internal/metrics"
	"github.com/reelroom/reelroom/internal/queue"
)

// Dependencies carries everything the job handlers need. Constructed once
// at startup and passed down; handlers never reach for globals.
type Dependencies struct {
	Transcode   *media.Pipeline
	Derivatives *derivative.Generator
	Bundles     *bundle.Builder

	// BundleRedelay is how long an unready bundle job waits before its
	// next precondition check.
	BundleRedelay time.Duration
}

// TranscodeHandler runs the full media pipeline for one video.
func TranscodeHandler(deps *Dependencies) queue.Handler {
	return func(ctx context.Context, j *queue.Job) error {
		ctx = logger.WithJobID(ctx, j.ID)
		log := logger.FromContext(ctx).With("job_type", "transcode")
		ctx = logger.WithLogger(ctx, log)

		var payload TranscodePayload
		if err := j.UnmarshalPayload(&payload); err != nil {
			log.Error("invalid payload", "error", err)
			return queue.Permanent(fmt.Errorf("invalid payload: %w", err))
		}

		log.Info("job started", "video_id", payload.VideoID)
		return deps.Transcode.Run(ctx, payload.VideoID)
	}
}

// DerivativeHandler generates one photo's social derivative.
func DerivativeHandler(deps *Dependencies) queue.Handler {
	return func(ctx context.Context, j *queue.Job) error {
		ctx = logger.WithJobID(ctx, j.ID)
		log := logger.FromContext(ctx).With("job_type", "derivative")
		ctx = logger.WithLogger(ctx, log)

		var payload DerivativePayload
		if err := j.UnmarshalPayload(&payload); err != nil {
			log.Error("invalid payload", "error", err)
			return queue.Permanent(fmt.Errorf("invalid payload: %w", err))
		}

		log.Info("job started", "photo_id", payload.PhotoID)
		return deps.Derivatives.Run(ctx, payload.PhotoID)
	}
}

// BundleHandler builds one album zip. An album that is not ready yet is
// backpressure, not failure: the job reschedules itself under its stable
// key without consuming a retry attempt.
func BundleHandler(deps *Dependencies) queue.Handler {
	return func(ctx context.Context, j *queue.Job) error {
		ctx = logger.WithJobID(ctx, j.ID)
		log := logger.FromContext(ctx).With("job_type", "bundle")
		ctx = logger.WithLogger(ctx, log)

		var payload BundlePayload
		if err := j.UnmarshalPayload(&payload); err != nil {
			log.Error("invalid payload", "error", err)
			return queue.Permanent(fmt.Errorf("invalid payload: %w", err))
		}

		log.Info("job started", "album_id", payload.AlbumID, "variant", payload.Variant)
		err := deps.Bundles.Build(ctx, payload.AlbumID, payload.Variant)
		if errors.Is(err, bundle.ErrNotReady) {
			log.Info("album not ready, rescheduling",
				"album_id", payload.AlbumID,
				"variant", payload.Variant,
				"delay", deps.BundleRedelay.String(),
				"reason", err.Error(),
			)
			return queue.Requeue(deps.BundleRedelay)
		}
		if err != nil {
			metrics.BundlesBuiltTotal.WithLabelValues(payload.Variant, "error").Inc()
			return err
		}
		metrics.BundlesBuiltTotal.WithLabelValues(payload.Variant, "success").Inc()
		return nil
	}
}

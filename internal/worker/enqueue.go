package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/reelroom/reelroom/internal/logger"
	"github.com/reelroom/reelroom/internal/metrics"
	"github.com/reelroom/reelroom/internal/queue"
	"github.com/reelroom/reelroom/internal/store"
)

// AlbumBundles is the bundle bookkeeping the client needs for
// invalidation.
type AlbumBundles interface {
	Bundle(ctx context.Context, albumID, variant string) (*store.Bundle, error)
	ClearBundle(ctx context.Context, albumID, variant string) error
}

// Client is the enqueue surface handed to collaborators (upload handlers,
// membership mutations). It owns stable-key and debounce policy so callers
// cannot get them wrong.
type Client struct {
	Queue  queue.Store
	Albums AlbumBundles

	// RebuildDelay debounces bundle rebuilds so a burst of membership
	// changes coalesces into one build.
	RebuildDelay time.Duration
}

func (c *Client) EnqueueTranscode(ctx context.Context, videoID string) error {
	_, err := c.Queue.Enqueue(ctx, QueueTranscode, TranscodePayload{VideoID: videoID}, &queue.EnqueueOptions{
		JobID: "transcode-" + videoID,
	})
	if err != nil {
		return fmt.Errorf("enqueue transcode %s: %w", videoID, err)
	}
	metrics.JobsEnqueuedTotal.WithLabelValues(QueueTranscode).Inc()
	return nil
}

func (c *Client) EnqueueDerivative(ctx context.Context, photoID string) error {
	_, err := c.Queue.Enqueue(ctx, QueueDerivative, DerivativePayload{PhotoID: photoID}, &queue.EnqueueOptions{
		JobID: "derivative-" + photoID,
	})
	if err != nil {
		return fmt.Errorf("enqueue derivative %s: %w", photoID, err)
	}
	metrics.JobsEnqueuedTotal.WithLabelValues(QueueDerivative).Inc()
	return nil
}

// RebuildBundle invalidates the current artifact and schedules a debounced
// rebuild. Enqueueing under the stable key replaces any pending build, so
// rapid membership changes produce one build after the dust settles.
func (c *Client) RebuildBundle(ctx context.Context, albumID, variant string) error {
	log := logger.FromContext(ctx)

	if err := c.invalidate(ctx, albumID, variant); err != nil {
		return err
	}

	payload := BundlePayload{AlbumID: albumID, Variant: variant}
	_, err := c.Queue.Enqueue(ctx, QueueBundle, payload, &queue.EnqueueOptions{
		JobID: BundleKey(albumID, variant),
		Delay: c.RebuildDelay,
	})
	if err != nil {
		return fmt.Errorf("enqueue bundle %s/%s: %w", albumID, variant, err)
	}
	metrics.JobsEnqueuedTotal.WithLabelValues(QueueBundle).Inc()

	log.Info("bundle rebuild scheduled",
		"album_id", albumID, "variant", variant, "delay", c.RebuildDelay.String())
	return nil
}

// invalidate deletes the stale artifact and zeroes its record so nothing
// serves an archive that no longer matches the membership.
func (c *Client) invalidate(ctx context.Context, albumID, variant string) error {
	b, err := c.Albums.Bundle(ctx, albumID, variant)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load bundle %s/%s: %w", albumID, variant, err)
	}

	if b.Path != "" {
		if err := os.Remove(b.Path); err != nil && !os.IsNotExist(err) {
			logger.FromContext(ctx).Warn("failed to remove stale bundle artifact",
				"path", b.Path, "error", err)
		}
	}
	if err := c.Albums.ClearBundle(ctx, albumID, variant); err != nil {
		return fmt.Errorf("clear bundle %s/%s: %w", albumID, variant, err)
	}
	return nil
}

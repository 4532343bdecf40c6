// Package derivative generates the social rendition of an uploaded photo:
// auto-oriented, resized to a fixed long edge, optionally text-watermarked,
// re-encoded as JPEG.
package derivative

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"time"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"

	"github.com/reelroom/reelroom/internal/logger"
	"github.com/reelroom/reelroom/internal/storage"
	"github.com/reelroom/reelroom/internal/store"
)

const (
	longEdge    = 2048
	jpegQuality = 85
)

// PhotoRecords is the persistence surface the generator mutates.
type PhotoRecords interface {
	Get(ctx context.Context, id string) (*store.Photo, error)
	SetDerivative(ctx context.Context, id, key string) error
	SetStatus(ctx context.Context, id, status string) error
}

// Generator builds social derivatives.
type Generator struct {
	Records PhotoRecords
	Storage storage.Storage

	// WatermarkText is stamped on the derivative when non-empty.
	WatermarkText string
	// FontPath is the TTF used for the watermark; empty falls back to
	// drawing without a loaded face.
	FontPath string
}

func (g *Generator) Run(ctx context.Context, photoID string) error {
	log := logger.FromContext(ctx)
	start := time.Now()

	photo, err := g.Records.Get(ctx, photoID)
	if err != nil {
		return fmt.Errorf("load photo %s: %w", photoID, err)
	}

	rc, err := g.Storage.Download(ctx, photo.OriginalKey)
	if err != nil {
		return fmt.Errorf("download original %s: %w", photo.OriginalKey, err)
	}
	defer rc.Close()

	// AutoOrientation folds the EXIF rotation into the pixels so the
	// derivative displays upright everywhere.
	img, err := imaging.Decode(rc, imaging.AutoOrientation(true))
	if err != nil {
		g.markError(ctx, photoID)
		return fmt.Errorf("decode %s: %w", photo.OriginalKey, err)
	}

	var resized image.Image = imaging.Fit(img, longEdge, longEdge, imaging.Lanczos)
	if g.WatermarkText != "" {
		resized = g.stamp(resized)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, resized, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return fmt.Errorf("encode derivative: %w", err)
	}

	key := fmt.Sprintf("derived/social/%s.jpg", photoID)
	if err := g.Storage.Upload(ctx, key, &buf, "image/jpeg", int64(buf.Len())); err != nil {
		return fmt.Errorf("upload derivative: %w", err)
	}

	if err := g.Records.SetDerivative(ctx, photoID, key); err != nil {
		return fmt.Errorf("persist derivative: %w", err)
	}

	bounds := resized.Bounds()
	log.Info("derivative generated",
		"photo_id", photoID,
		"width", bounds.Dx(),
		"height", bounds.Dy(),
		"size", buf.Len(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func (g *Generator) stamp(img image.Image) image.Image {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	dc := gg.NewContext(width, height)
	dc.DrawImage(img, 0, 0)

	fontSize := float64(width) / 40
	if fontSize < 14 {
		fontSize = 14
	}
	if g.FontPath != "" {
		if err := dc.LoadFontFace(g.FontPath, fontSize); err != nil {
			logger.Default().Warn("watermark font load failed", "path", g.FontPath, "error", err)
		}
	}

	pad := fontSize * 0.75
	x, y := float64(width)-pad, float64(height)-pad

	// Shadow pass first so the text reads on light backgrounds.
	dc.SetRGBA(0, 0, 0, 0.25)
	dc.DrawStringAnchored(g.WatermarkText, x+1.5, y+1.5, 1, 1)
	dc.SetRGBA(1, 1, 1, 0.5)
	dc.DrawStringAnchored(g.WatermarkText, x, y, 1, 1)

	return dc.Image()
}

func (g *Generator) markError(ctx context.Context, photoID string) {
	if err := g.Records.SetStatus(ctx, photoID, store.MediaStatusError); err != nil {
		logger.FromContext(ctx).Error("failed to persist photo error state", "photo_id", photoID, "error", err)
	}
}

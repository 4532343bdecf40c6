// Package bundle builds the downloadable zip archive for an album variant.
package bundle

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/reelroom/reelroom/internal/logger"
	"github.com/reelroom/reelroom/internal/storage"
	"github.com/reelroom/reelroom/internal/store"
)

const (
	VariantOriginal = "original"
	VariantSocial   = "social"
)

// ErrNotReady reports that the album is not in a bundleable state yet: a
// member is still uploading, or a social bundle is missing derivatives.
// This is backpressure, not failure; callers reschedule instead of failing.
var ErrNotReady = errors.New("bundle: album not ready")

// PhotoLister is the membership read the builder needs.
type PhotoLister interface {
	ListByAlbum(ctx context.Context, albumID string) ([]store.Photo, error)
}

// BundleRecords persists artifact bookkeeping.
type BundleRecords interface {
	SetBundle(ctx context.Context, b *store.Bundle) error
	ClearBundle(ctx context.Context, albumID, variant string) error
}

type Builder struct {
	Photos  PhotoLister
	Records BundleRecords
	Storage storage.Storage
	Dir     string // artifact directory on local disk
}

// Build assembles the archive for one album variant. Entries are ordered by
// member creation time so repeated builds of the same membership are
// byte-stable in layout. A member whose bytes cannot be read is skipped
// with a warning; a mostly complete archive beats none.
func (b *Builder) Build(ctx context.Context, albumID, variant string) error {
	log := logger.FromContext(ctx)
	start := time.Now()

	photos, err := b.Photos.ListByAlbum(ctx, albumID)
	if err != nil {
		return fmt.Errorf("list album %s: %w", albumID, err)
	}

	if err := checkReady(photos, variant); err != nil {
		return err
	}

	if len(photos) == 0 {
		return b.removeArtifact(ctx, albumID, variant)
	}

	sort.SliceStable(photos, func(i, j int) bool {
		return photos[i].CreatedAt.Before(photos[j].CreatedAt)
	})

	dest := b.artifactPath(albumID, variant)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create bundle dir: %w", err)
	}

	// Write to a temp path and rename so a half-written archive is never
	// visible at the published path.
	tmp := dest + ".tmp"
	entries, err := b.writeArchive(ctx, tmp, photos, variant)
	if err != nil {
		os.Remove(tmp)
		return err
	}

	if entries == 0 {
		os.Remove(tmp)
		return fmt.Errorf("bundle %s/%s: no member could be read", albumID, variant)
	}

	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("publish bundle: %w", err)
	}

	fi, err := os.Stat(dest)
	if err != nil {
		return fmt.Errorf("stat bundle: %w", err)
	}
	if err := b.Records.SetBundle(ctx, &store.Bundle{
		AlbumID:   albumID,
		Variant:   variant,
		Path:      dest,
		SizeBytes: fi.Size(),
	}); err != nil {
		return fmt.Errorf("persist bundle record: %w", err)
	}

	log.Info("bundle built",
		"album_id", albumID,
		"variant", variant,
		"entries", entries,
		"skipped", len(photos)-entries,
		"size", fi.Size(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// checkReady enforces the build preconditions.
func checkReady(photos []store.Photo, variant string) error {
	for _, p := range photos {
		if p.Status == store.MediaStatusUploading {
			return fmt.Errorf("%w: photo %s still uploading", ErrNotReady, p.ID)
		}
		if variant == VariantSocial && !p.DerivativeReady {
			return fmt.Errorf("%w: photo %s derivative not ready", ErrNotReady, p.ID)
		}
	}
	return nil
}

func (b *Builder) writeArchive(ctx context.Context, path string, photos []store.Photo, variant string) (int, error) {
	log := logger.FromContext(ctx)

	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create archive: %w", err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	entries := 0
	for _, p := range photos {
		key := p.OriginalKey
		if variant == VariantSocial {
			key = p.DerivativeKey
		}

		rc, err := b.Storage.Download(ctx, key)
		if err != nil {
			log.Warn("bundle member unreadable, skipping",
				"photo_id", p.ID, "key", key, "error", err)
			continue
		}

		w, err := zw.Create(entryName(p, variant))
		if err != nil {
			rc.Close()
			return 0, fmt.Errorf("create entry %s: %w", p.Filename, err)
		}
		if _, err := io.Copy(w, rc); err != nil {
			rc.Close()
			return 0, fmt.Errorf("write entry %s: %w", p.Filename, err)
		}
		rc.Close()
		entries++
	}

	if err := zw.Close(); err != nil {
		return 0, fmt.Errorf("finalize archive: %w", err)
	}
	return entries, nil
}

// removeArtifact handles the empty album: delete any existing archive
// rather than publishing an empty one.
func (b *Builder) removeArtifact(ctx context.Context, albumID, variant string) error {
	dest := b.artifactPath(albumID, variant)
	if err := os.Remove(dest); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove bundle artifact: %w", err)
	}
	if err := b.Records.ClearBundle(ctx, albumID, variant); err != nil {
		return fmt.Errorf("clear bundle record: %w", err)
	}
	logger.FromContext(ctx).Info("empty album, bundle removed", "album_id", albumID, "variant", variant)
	return nil
}

func (b *Builder) artifactPath(albumID, variant string) string {
	return filepath.Join(b.Dir, fmt.Sprintf("%s-%s.zip", albumID, variant))
}

func entryName(p store.Photo, variant string) string {
	name := p.Filename
	if name == "" {
		name = p.ID + ".jpg"
	}
	if variant == VariantSocial {
		ext := filepath.Ext(name)
		name = name[:len(name)-len(ext)] + "-social.jpg"
	}
	return name
}

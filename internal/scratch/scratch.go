// Package scratch manages the worker's local working directory. Every
// pipeline run gets its own subdirectory; a periodic sweep removes entries
// left behind by crashed runs.
package scratch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/reelroom/reelroom/internal/logger"
)

type Dir struct {
	root   string
	maxAge time.Duration
}

func New(root string, maxAge time.Duration) (*Dir, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create scratch root %s: %w", root, err)
	}
	return &Dir{root: root, maxAge: maxAge}, nil
}

func (d *Dir) Root() string { return d.root }

// TempDir creates a fresh per-job working directory under the root.
func (d *Dir) TempDir(prefix string) (string, error) {
	dir, err := os.MkdirTemp(d.root, prefix+"-*")
	if err != nil {
		return "", fmt.Errorf("create scratch dir: %w", err)
	}
	return dir, nil
}

// SweepStats reports one sweep pass.
type SweepStats struct {
	Removed int
	Errors  int
}

// Sweep removes root entries whose mtime is older than maxAge.
func (d *Dir) Sweep(ctx context.Context) (SweepStats, error) {
	log := logger.FromContext(ctx)
	var stats SweepStats

	entries, err := os.ReadDir(d.root)
	if err != nil {
		return stats, fmt.Errorf("read scratch root: %w", err)
	}

	cutoff := time.Now().Add(-d.maxAge)
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}

		path := filepath.Join(d.root, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			log.Warn("scratch sweep failed to remove entry", "path", path, "error", err)
			stats.Errors++
			continue
		}
		stats.Removed++
	}

	if stats.Removed > 0 || stats.Errors > 0 {
		log.Info("scratch sweep completed", "removed", stats.Removed, "errors", stats.Errors)
	}
	return stats, nil
}

// RunSweeper sweeps on an interval until ctx is cancelled.
func (d *Dir) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := d.Sweep(ctx); err != nil {
				logger.FromContext(ctx).Error("scratch sweep failed", "error", err)
			}
		}
	}
}

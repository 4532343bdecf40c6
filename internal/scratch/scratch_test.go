package scratch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestTempDirIsolated(t *testing.T) {
	d, err := New(t.TempDir(), time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	a, err := d.TempDir("transcode")
	if err != nil {
		t.Fatal(err)
	}
	b, err := d.TempDir("transcode")
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Error("each job must get its own directory")
	}
	if filepath.Dir(a) != d.Root() {
		t.Errorf("temp dir %s not under root %s", a, d.Root())
	}
}

func TestSweepRemovesOldEntries(t *testing.T) {
	root := t.TempDir()
	d, err := New(root, time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	old := filepath.Join(root, "transcode-stale")
	if err := os.MkdirAll(old, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(old, "partial.mp4"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	stale := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(old, stale, stale); err != nil {
		t.Fatal(err)
	}

	fresh, err := d.TempDir("transcode")
	if err != nil {
		t.Fatal(err)
	}

	stats, err := d.Sweep(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if stats.Removed != 1 || stats.Errors != 0 {
		t.Errorf("stats = %+v, want one removal", stats)
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Error("stale entry must be removed")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Error("fresh entry must survive the sweep")
	}
}

package bundle

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/reelroom/reelroom/internal/storage"
	"github.com/reelroom/reelroom/internal/store"
)

type fakePhotos struct {
	photos []store.Photo
}

func (f *fakePhotos) ListByAlbum(ctx context.Context, albumID string) ([]store.Photo, error) {
	return f.photos, nil
}

type fakeBundleRecords struct {
	set     *store.Bundle
	cleared bool
}

func (f *fakeBundleRecords) SetBundle(ctx context.Context, b *store.Bundle) error {
	f.set = b
	return nil
}

func (f *fakeBundleRecords) ClearBundle(ctx context.Context, albumID, variant string) error {
	f.cleared = true
	return nil
}

func testPhoto(id, filename string, createdAt time.Time) store.Photo {
	return store.Photo{
		ID:              id,
		AlbumID:         "a1",
		Filename:        filename,
		OriginalKey:     "originals/" + id,
		Status:          store.MediaStatusReady,
		DerivativeKey:   "derived/social/" + id + ".jpg",
		DerivativeReady: true,
		CreatedAt:       createdAt,
	}
}

func newTestBuilder(t *testing.T, photos []store.Photo) (*Builder, *storage.MemoryStorage, *fakeBundleRecords) {
	t.Helper()

	stg := storage.NewMemoryStorage()
	for _, p := range photos {
		mustPut(t, stg, p.OriginalKey, []byte("original bytes for "+p.ID))
		if p.DerivativeKey != "" {
			mustPut(t, stg, p.DerivativeKey, []byte("social bytes for "+p.ID))
		}
	}

	records := &fakeBundleRecords{}
	b := &Builder{
		Photos:  &fakePhotos{photos: photos},
		Records: records,
		Storage: stg,
		Dir:     t.TempDir(),
	}
	return b, stg, records
}

func mustPut(t *testing.T, stg *storage.MemoryStorage, key string, data []byte) {
	t.Helper()
	if err := stg.Upload(context.Background(), key, bytes.NewReader(data), "application/octet-stream", int64(len(data))); err != nil {
		t.Fatalf("seed %s: %v", key, err)
	}
}

func archiveNames(t *testing.T, path string) []string {
	t.Helper()
	zr, err := zip.OpenReader(path)
	if err != nil {
		t.Fatalf("open archive %s: %v", path, err)
	}
	defer zr.Close()

	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	return names
}

func TestBuildOriginalVariant(t *testing.T) {
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	photos := []store.Photo{
		testPhoto("p2", "beach.jpg", base.Add(time.Minute)),
		testPhoto("p1", "sunset.jpg", base),
	}
	b, _, records := newTestBuilder(t, photos)

	if err := b.Build(context.Background(), "a1", VariantOriginal); err != nil {
		t.Fatal(err)
	}

	dest := filepath.Join(b.Dir, "a1-original.zip")
	names := archiveNames(t, dest)
	want := []string{"sunset.jpg", "beach.jpg"} // upload order, not list order
	if len(names) != 2 || names[0] != want[0] || names[1] != want[1] {
		t.Errorf("entries = %v, want %v", names, want)
	}

	if records.set == nil {
		t.Fatal("bundle record not persisted")
	}
	if records.set.Path != dest || records.set.SizeBytes <= 0 {
		t.Errorf("record = %+v", records.set)
	}
	if _, err := os.Stat(dest + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file must not survive a successful build")
	}
}

func TestBuildSocialVariantRenamesEntries(t *testing.T) {
	photos := []store.Photo{testPhoto("p1", "sunset.jpg", time.Now())}
	b, _, _ := newTestBuilder(t, photos)

	if err := b.Build(context.Background(), "a1", VariantSocial); err != nil {
		t.Fatal(err)
	}

	names := archiveNames(t, filepath.Join(b.Dir, "a1-social.zip"))
	if len(names) != 1 || names[0] != "sunset-social.jpg" {
		t.Errorf("entries = %v, want [sunset-social.jpg]", names)
	}
}

func TestBuildMemberStillUploading(t *testing.T) {
	photos := []store.Photo{testPhoto("p1", "a.jpg", time.Now())}
	photos[0].Status = store.MediaStatusUploading
	b, _, records := newTestBuilder(t, photos)

	err := b.Build(context.Background(), "a1", VariantOriginal)
	if !errors.Is(err, ErrNotReady) {
		t.Fatalf("err = %v, want ErrNotReady", err)
	}
	if records.set != nil {
		t.Error("no record must be written for an unready album")
	}
}

func TestBuildSocialDerivativeNotReady(t *testing.T) {
	photos := []store.Photo{testPhoto("p1", "a.jpg", time.Now())}
	photos[0].DerivativeReady = false
	b, _, _ := newTestBuilder(t, photos)

	if err := b.Build(context.Background(), "a1", VariantSocial); !errors.Is(err, ErrNotReady) {
		t.Fatalf("err = %v, want ErrNotReady", err)
	}

	// The original variant does not care about derivatives.
	if err := b.Build(context.Background(), "a1", VariantOriginal); err != nil {
		t.Fatalf("original variant should build: %v", err)
	}
}

func TestBuildSkipsUnreadableMember(t *testing.T) {
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	photos := []store.Photo{
		testPhoto("p1", "a.jpg", base),
		testPhoto("p2", "b.jpg", base.Add(time.Minute)),
		testPhoto("p3", "c.jpg", base.Add(2*time.Minute)),
	}
	b, stg, records := newTestBuilder(t, photos)
	stg.FailKeys["originals/p2"] = true

	if err := b.Build(context.Background(), "a1", VariantOriginal); err != nil {
		t.Fatalf("partial archive should still succeed: %v", err)
	}

	names := archiveNames(t, filepath.Join(b.Dir, "a1-original.zip"))
	if len(names) != 2 || names[0] != "a.jpg" || names[1] != "c.jpg" {
		t.Errorf("entries = %v, want [a.jpg c.jpg]", names)
	}
	if records.set == nil {
		t.Error("partial archive must still be recorded")
	}
}

func TestBuildAllMembersUnreadable(t *testing.T) {
	photos := []store.Photo{testPhoto("p1", "a.jpg", time.Now())}
	b, stg, _ := newTestBuilder(t, photos)
	stg.FailKeys["originals/p1"] = true

	err := b.Build(context.Background(), "a1", VariantOriginal)
	if err == nil {
		t.Fatal("an archive with zero entries must not be published")
	}
	if errors.Is(err, ErrNotReady) {
		t.Error("unreadable members are a failure, not backpressure")
	}
	if _, statErr := os.Stat(filepath.Join(b.Dir, "a1-original.zip")); !os.IsNotExist(statErr) {
		t.Error("no artifact must be published")
	}
}

func TestBuildEmptyAlbumRemovesArtifact(t *testing.T) {
	b, _, records := newTestBuilder(t, nil)

	// Plant a stale artifact from a previous membership.
	dest := filepath.Join(b.Dir, "a1-original.zip")
	if err := os.WriteFile(dest, []byte("stale"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := b.Build(context.Background(), "a1", VariantOriginal); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Error("stale artifact must be removed for an empty album")
	}
	if !records.cleared {
		t.Error("bundle record must be cleared")
	}
}

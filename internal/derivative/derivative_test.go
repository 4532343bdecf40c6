package derivative

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"strings"
	"testing"

	"github.com/disintegration/imaging"

	"github.com/reelroom/reelroom/internal/storage"
	"github.com/reelroom/reelroom/internal/store"
)

type fakePhotoRecords struct {
	photo *store.Photo

	derivativeKey string
	status        string
}

func (f *fakePhotoRecords) Get(ctx context.Context, id string) (*store.Photo, error) {
	return f.photo, nil
}

func (f *fakePhotoRecords) SetDerivative(ctx context.Context, id, key string) error {
	f.derivativeKey = key
	return nil
}

func (f *fakePhotoRecords) SetStatus(ctx context.Context, id, status string) error {
	f.status = status
	return nil
}

func seedJPEG(t *testing.T, stg *storage.MemoryStorage, key string, width, height int) {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatal(err)
	}
	if err := stg.Upload(context.Background(), key, &buf, "image/jpeg", int64(buf.Len())); err != nil {
		t.Fatal(err)
	}
}

func decodeStored(t *testing.T, stg *storage.MemoryStorage, key string) image.Image {
	t.Helper()

	data, ok := stg.GetData(key)
	if !ok {
		t.Fatalf("no object at %s", key)
	}
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode %s: %v", key, err)
	}
	return img
}

func TestRunResizesToLongEdge(t *testing.T) {
	stg := storage.NewMemoryStorage()
	seedJPEG(t, stg, "originals/p1", 4000, 3000)

	records := &fakePhotoRecords{photo: &store.Photo{
		ID: "p1", OriginalKey: "originals/p1", Status: store.MediaStatusQueued,
	}}
	g := &Generator{Records: records, Storage: stg}

	if err := g.Run(context.Background(), "p1"); err != nil {
		t.Fatal(err)
	}

	if records.derivativeKey != "derived/social/p1.jpg" {
		t.Errorf("derivative key = %q", records.derivativeKey)
	}

	img := decodeStored(t, stg, records.derivativeKey)
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	if w != 2048 || h != 1536 {
		t.Errorf("derivative = %dx%d, want 2048x1536", w, h)
	}
	if ct, _ := stg.GetContentType(records.derivativeKey); ct != "image/jpeg" {
		t.Errorf("content type = %q", ct)
	}
}

func TestRunDoesNotUpscaleSmallSources(t *testing.T) {
	stg := storage.NewMemoryStorage()
	seedJPEG(t, stg, "originals/p1", 800, 600)

	records := &fakePhotoRecords{photo: &store.Photo{ID: "p1", OriginalKey: "originals/p1"}}
	g := &Generator{Records: records, Storage: stg}

	if err := g.Run(context.Background(), "p1"); err != nil {
		t.Fatal(err)
	}

	img := decodeStored(t, stg, records.derivativeKey)
	if w, h := img.Bounds().Dx(), img.Bounds().Dy(); w != 800 || h != 600 {
		t.Errorf("derivative = %dx%d, want untouched 800x600", w, h)
	}
}

func TestRunWatermarkedOutputKeepsDimensions(t *testing.T) {
	stg := storage.NewMemoryStorage()
	seedJPEG(t, stg, "originals/p1", 1024, 768)

	records := &fakePhotoRecords{photo: &store.Photo{ID: "p1", OriginalKey: "originals/p1"}}
	g := &Generator{Records: records, Storage: stg, WatermarkText: "Reel Room"}

	if err := g.Run(context.Background(), "p1"); err != nil {
		t.Fatal(err)
	}

	img := decodeStored(t, stg, records.derivativeKey)
	if w, h := img.Bounds().Dx(), img.Bounds().Dy(); w != 1024 || h != 768 {
		t.Errorf("watermarked derivative = %dx%d, want 1024x768", w, h)
	}
}

func TestRunCorruptOriginalMarksError(t *testing.T) {
	stg := storage.NewMemoryStorage()
	if err := stg.Upload(context.Background(), "originals/p1",
		strings.NewReader("not an image"), "image/jpeg", 12); err != nil {
		t.Fatal(err)
	}

	records := &fakePhotoRecords{photo: &store.Photo{ID: "p1", OriginalKey: "originals/p1"}}
	g := &Generator{Records: records, Storage: stg}

	if err := g.Run(context.Background(), "p1"); err == nil {
		t.Fatal("corrupt source must error")
	}
	if records.status != store.MediaStatusError {
		t.Errorf("status = %q, want %q", records.status, store.MediaStatusError)
	}
	if records.derivativeKey != "" {
		t.Error("no derivative must be recorded")
	}
}

func TestRunMissingOriginalDoesNotMarkError(t *testing.T) {
	// A missing object is infrastructure trouble, not a bad photo; the job
	// retries without poisoning the record.
	stg := storage.NewMemoryStorage()
	records := &fakePhotoRecords{photo: &store.Photo{ID: "p1", OriginalKey: "originals/p1"}}
	g := &Generator{Records: records, Storage: stg}

	if err := g.Run(context.Background(), "p1"); err == nil {
		t.Fatal("missing original must error")
	}
	if records.status != "" {
		t.Errorf("status = %q, want unchanged", records.status)
	}
}

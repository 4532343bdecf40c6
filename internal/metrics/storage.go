package metrics

import (
	"context"
	"io"
	"time"

	"github.com/reelroom/reelroom/internal/storage"
)

// InstrumentedStorage wraps a Storage with operation counters and latency
// histograms.
type InstrumentedStorage struct {
	storage.Storage
}

func NewInstrumentedStorage(s storage.Storage) *InstrumentedStorage {
	return &InstrumentedStorage{Storage: s}
}

func (s *InstrumentedStorage) Upload(ctx context.Context, key string, reader io.Reader, contentType string, size int64) error {
	start := time.Now()
	err := s.Storage.Upload(ctx, key, reader, contentType, size)
	observe("upload", start, err)
	return err
}

func (s *InstrumentedStorage) UploadFile(ctx context.Context, key, path, contentType string) error {
	start := time.Now()
	err := s.Storage.UploadFile(ctx, key, path, contentType)
	observe("upload", start, err)
	return err
}

func (s *InstrumentedStorage) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	start := time.Now()
	rc, err := s.Storage.Download(ctx, key)
	observe("download", start, err)
	return rc, err
}

func (s *InstrumentedStorage) DownloadToFile(ctx context.Context, key, path string) error {
	start := time.Now()
	err := s.Storage.DownloadToFile(ctx, key, path)
	observe("download", start, err)
	return err
}

func (s *InstrumentedStorage) Delete(ctx context.Context, key string) error {
	start := time.Now()
	err := s.Storage.Delete(ctx, key)
	observe("delete", start, err)
	return err
}

func observe(op string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	StorageOperationsTotal.WithLabelValues(op, status).Inc()
	StorageOperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

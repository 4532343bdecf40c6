package storage

import (
	"context"
	"errors"
	"io"
)

var (
	ErrNotFound   = errors.New("storage: object not found")
	ErrInvalidKey = errors.New("storage: invalid key")
)

// Storage is the object store holding originals, renditions, posters and
// photo derivatives.
type Storage interface {
	Upload(ctx context.Context, key string, reader io.Reader, contentType string, size int64) error
	// UploadFile streams a local file, used for encoder outputs.
	UploadFile(ctx context.Context, key, path, contentType string) error
	Download(ctx context.Context, key string) (io.ReadCloser, error)
	// DownloadToFile materializes an object in the scratch dir for tools
	// that need a real path (ffmpeg, ffprobe).
	DownloadToFile(ctx context.Context, key, path string) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	HealthCheck(ctx context.Context) error
}

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	Region    string
}

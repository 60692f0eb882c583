// Package blob abstracts the object store holding file contents.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"

	"redis-job-pipeline/internal/config"
)

var ErrNotFound = errors.New("blob: object not found")

// Store is an object store addressed by key. Delete of a missing key is not
// an error.
type Store interface {
	Copy(ctx context.Context, srcKey, dstKey string) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
}

// New returns the backend named by cfg.BlobBackend: "s3" or "memory".
func New(cfg config.Config) (Store, error) {
	switch cfg.BlobBackend {
	case "s3":
		s, err := NewS3(S3Config{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			UseSSL:    cfg.S3UseSSL,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	case "memory", "":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob backend %q", cfg.BlobBackend)
	}
}

// Package storage keeps book cover images in an object store.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/unilib/apiserver/config"
)

var (
	ErrObjectNotFound  = errors.New("object not found")
	ErrDisabled        = errors.New("object storage is not configured")
	ErrUnsupportedType = errors.New("unsupported content type")
)

// MaxCoverSize bounds uploaded cover images.
const MaxCoverSize = 5 << 20

var coverExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// Object is an open stored object. Callers must close Body.
type Object struct {
	Body        io.ReadCloser
	ContentType string
	Size        int64
}

// ObjectStorage defines common object operations across backends.
type ObjectStorage interface {
	EnsureBucket(ctx context.Context) error
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (*Object, error)
	Delete(ctx context.Context, key string) error
}

// Open builds the backend selected by cfg.Backend and makes sure its bucket exists.
// An empty backend yields Disabled.
func Open(ctx context.Context, cfg config.StorageConfig) (ObjectStorage, error) {
	var (
		backend ObjectStorage
		err     error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "":
		return Disabled{}, nil
	case "minio":
		backend, err = NewMinioClient(cfg.Minio)
	case "gcs":
		backend, err = NewGCSClient(ctx, cfg.GCS)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	if err := backend.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("ensure bucket: %w", err)
	}
	return backend, nil
}

// Disabled rejects every operation with ErrDisabled.
type Disabled struct{}

func (Disabled) EnsureBucket(context.Context) error { return nil }
func (Disabled) Put(context.Context, string, io.Reader, int64, string) error {
	return ErrDisabled
}
func (Disabled) Get(context.Context, string) (*Object, error) { return nil, ErrDisabled }
func (Disabled) Delete(context.Context, string) error         { return ErrDisabled }

// Covers stores cover images under per-book keys.
type Covers struct {
	backend ObjectStorage
}

func NewCovers(backend ObjectStorage) *Covers {
	return &Covers{backend: backend}
}

// Upload stores a cover for bookID and returns its key.
func (c *Covers) Upload(ctx context.Context, bookID int, r io.Reader, size int64, contentType string) (string, error) {
	key, err := CoverKey(bookID, contentType)
	if err != nil {
		return "", err
	}
	if err := c.backend.Put(ctx, key, r, size, contentType); err != nil {
		return "", err
	}
	return key, nil
}

func (c *Covers) Open(ctx context.Context, key string) (*Object, error) {
	return c.backend.Get(ctx, key)
}

func (c *Covers) Remove(ctx context.Context, key string) error {
	return c.backend.Delete(ctx, key)
}

// CoverKey returns a fresh object key for a cover of the given content type.
func CoverKey(bookID int, contentType string) (string, error) {
	mediaType, _, _ := strings.Cut(strings.ToLower(contentType), ";")
	ext, ok := coverExtensions[strings.TrimSpace(mediaType)]
	if !ok {
		return "", ErrUnsupportedType
	}
	return fmt.Sprintf("covers/%d/%s%s", bookID, uuid.NewString(), ext), nil
}

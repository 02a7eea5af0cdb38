package storage

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/unilib/apiserver/config"
)

type memoryBackend struct {
	objects map[string][]byte
	types   map[string]string
}

func newMemoryBackend() *memoryBackend {
	return &memoryBackend{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *memoryBackend) EnsureBucket(context.Context) error { return nil }

func (m *memoryBackend) Put(_ context.Context, key string, r io.Reader, _ int64, contentType string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.objects[key] = data
	m.types[key] = contentType
	return nil
}

func (m *memoryBackend) Get(_ context.Context, key string) (*Object, error) {
	data, ok := m.objects[key]
	if !ok {
		return nil, ErrObjectNotFound
	}
	return &Object{Body: io.NopCloser(bytes.NewReader(data)), ContentType: m.types[key], Size: int64(len(data))}, nil
}

func (m *memoryBackend) Delete(_ context.Context, key string) error {
	delete(m.objects, key)
	return nil
}

func TestCoverKey(t *testing.T) {
	key, err := CoverKey(42, "image/png")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, "covers/42/"))
	assert.True(t, strings.HasSuffix(key, ".png"))

	other, err := CoverKey(42, "image/jpeg; charset=binary")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(other, ".jpg"))
	assert.NotEqual(t, key, other)

	_, err = CoverKey(42, "application/pdf")
	assert.ErrorIs(t, err, ErrUnsupportedType)
}

func TestCoversUploadOpenRemove(t *testing.T) {
	ctx := context.Background()
	backend := newMemoryBackend()
	covers := NewCovers(backend)

	key, err := covers.Upload(ctx, 3, strings.NewReader("png-bytes"), 9, "image/png")
	require.NoError(t, err)

	obj, err := covers.Open(ctx, key)
	require.NoError(t, err)
	defer obj.Body.Close()
	body, err := io.ReadAll(obj.Body)
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(body))
	assert.Equal(t, "image/png", obj.ContentType)

	require.NoError(t, covers.Remove(ctx, key))
	_, err = covers.Open(ctx, key)
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestOpenBackendSelection(t *testing.T) {
	backend, err := Open(context.Background(), config.StorageConfig{})
	require.NoError(t, err)
	assert.IsType(t, Disabled{}, backend)

	_, err = NewCovers(backend).Upload(context.Background(), 1, strings.NewReader("x"), 1, "image/png")
	assert.ErrorIs(t, err, ErrDisabled)

	_, err = Open(context.Background(), config.StorageConfig{Backend: "ftp"})
	assert.Error(t, err)

	_, err = Open(context.Background(), config.StorageConfig{Backend: "minio"})
	assert.Error(t, err)
}

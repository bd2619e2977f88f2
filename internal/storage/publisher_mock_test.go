package storage_test

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxbase-eu/sharedmods/internal/storage"
	"github.com/fluxbase-eu/sharedmods/internal/testutil"
)

func TestPublisher_EnsuresBucket(t *testing.T) {
	outDir := t.TempDir()
	testutil.WriteFile(t, filepath.Join(outDir, "libA", "meta.json"), `{"name":"libA"}`)

	mock := testutil.NewMockStorageProvider()
	publisher := storage.NewPublisher(mock, "modules", "", zerolog.Nop())

	_, err := publisher.Publish(context.Background(), outDir)
	require.NoError(t, err)

	assert.Equal(t, `{"name":"libA"}`, string(mock.Content("modules", "libA/meta.json")))
}

func TestPublisher_UploadFailure(t *testing.T) {
	outDir := t.TempDir()
	testutil.WriteFile(t, filepath.Join(outDir, "libA", "meta.json"), `{}`)

	mock := testutil.NewMockStorageProvider()
	mock.OnUpload = func(ctx context.Context, bucket, key string, data io.Reader, size int64) error {
		return errors.New("quota exceeded")
	}
	publisher := storage.NewPublisher(mock, "modules", "", zerolog.Nop())

	_, err := publisher.Publish(context.Background(), outDir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestPublisher_UnhealthyProvider(t *testing.T) {
	mock := testutil.NewMockStorageProvider()
	mock.OnHealth = func(ctx context.Context) error { return errors.New("down") }
	publisher := storage.NewPublisher(mock, "modules", "", zerolog.Nop())

	_, err := publisher.Publish(context.Background(), t.TempDir())
	assert.EqualError(t, err, "down")
}

func TestPublisher_CacheControl(t *testing.T) {
	outDir := t.TempDir()
	testutil.WriteFile(t, filepath.Join(outDir, "libA", "meta.json"), `{"name":"libA"}`)
	testutil.WriteFile(t, filepath.Join(outDir, "libA", "main.bundle.js"), "a")
	testutil.WriteFile(t, filepath.Join(outDir, "libA", "generated.js"), "g")
	testutil.WriteFile(t, filepath.Join(outDir, "libA", "chunks", "chunk-AB12.js"), "c")
	testutil.WriteFile(t, filepath.Join(outDir, "libA", "assets", "logo-CD34.svg"), "<svg/>")

	mock := testutil.NewMockStorageProvider()
	publisher := storage.NewPublisher(mock, "modules", "", zerolog.Nop())

	_, err := publisher.Publish(context.Background(), outDir)
	require.NoError(t, err)

	for _, key := range []string{"libA/meta.json", "libA/main.bundle.js", "libA/generated.js"} {
		assert.Equal(t, storage.CacheRevalidated, mock.Options("modules", key).CacheControl, key)
	}
	for _, key := range []string{"libA/chunks/chunk-AB12.js", "libA/assets/logo-CD34.svg"} {
		assert.Equal(t, storage.CacheImmutable, mock.Options("modules", key).CacheControl, key)
	}
	assert.Equal(t, "application/javascript", mock.Options("modules", "libA/main.bundle.js").ContentType)
}

func TestPublisher_SkipsUploadedHashedObjects(t *testing.T) {
	outDir := t.TempDir()
	testutil.WriteFile(t, filepath.Join(outDir, "libA", "meta.json"), `{"name":"libA"}`)
	testutil.WriteFile(t, filepath.Join(outDir, "libA", "main.bundle.js"), "a")
	testutil.WriteFile(t, filepath.Join(outDir, "libA", "chunks", "chunk-AB12.js"), "c")

	var uploads atomic.Int32
	mock := testutil.NewMockStorageProvider()
	mock.OnUpload = func(ctx context.Context, bucket, key string, data io.Reader, size int64) error {
		uploads.Add(1)
		return nil
	}
	publisher := storage.NewPublisher(mock, "modules", "", zerolog.Nop())

	first, err := publisher.Publish(context.Background(), outDir)
	require.NoError(t, err)
	assert.Equal(t, 3, first.Objects)
	assert.Zero(t, first.Unchanged)

	second, err := publisher.Publish(context.Background(), outDir)
	require.NoError(t, err)
	// meta and bundle are always re-uploaded, the chunk is not
	assert.Equal(t, 2, second.Objects)
	assert.Equal(t, 1, second.Unchanged)
	assert.Equal(t, int32(5), uploads.Load())
}

func TestPublisher_Published(t *testing.T) {
	outDir := t.TempDir()
	testutil.WriteFile(t, filepath.Join(outDir, "libA", "meta.json"), `{"name":"libA"}`)
	testutil.WriteFile(t, filepath.Join(outDir, "libA", "main.bundle.js"), "a")
	testutil.WriteFile(t, filepath.Join(outDir, "@scope", "pkg", "meta.json"), `{"name":"@scope/pkg"}`)

	mock := testutil.NewMockStorageProvider()
	publisher := storage.NewPublisher(mock, "modules", "v1/", zerolog.Nop())

	names, err := publisher.Published(context.Background())
	require.NoError(t, err)
	assert.Empty(t, names)

	_, err = publisher.Publish(context.Background(), outDir)
	require.NoError(t, err)

	names, err = publisher.Published(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"@scope/pkg", "libA"}, names)

	other := storage.NewPublisher(mock, "modules", "v2", zerolog.Nop())
	names, err = other.Published(context.Background())
	require.NoError(t, err)
	assert.Empty(t, names)
}

package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupLocalStorage(t *testing.T) (*LocalStorage, string) {
	tmpDir := t.TempDir()

	storage, err := NewLocalStorage(tmpDir)
	require.NoError(t, err)

	return storage, tmpDir
}

func TestNewLocalStorage(t *testing.T) {
	tmpDir := filepath.Join(t.TempDir(), "nested", "store")

	storage, err := NewLocalStorage(tmpDir)

	assert.NoError(t, err)
	assert.NotNil(t, storage)
	assert.Equal(t, tmpDir, storage.basePath)

	_, err = os.Stat(tmpDir)
	assert.NoError(t, err)
}

func TestLocalStorage_Name(t *testing.T) {
	storage, _ := setupLocalStorage(t)

	assert.Equal(t, "local", storage.Name())
}

func TestLocalStorage_Health(t *testing.T) {
	storage, _ := setupLocalStorage(t)

	assert.NoError(t, storage.Health(context.Background()))
}

func TestLocalStorage_Upload(t *testing.T) {
	storage, tmpDir := setupLocalStorage(t)
	ctx := context.Background()

	content := "export default 1;"
	opts := &UploadOptions{
		ContentType: "application/javascript",
		Metadata:    map[string]string{"package": "libA"},
	}

	obj, err := storage.Upload(ctx, "modules", "libA/main.bundle.js", strings.NewReader(content), int64(len(content)), opts)

	require.NoError(t, err)
	assert.Equal(t, "libA/main.bundle.js", obj.Key)
	assert.Equal(t, "modules", obj.Bucket)
	assert.Equal(t, int64(len(content)), obj.Size)
	assert.Equal(t, "application/javascript", obj.ContentType)
	assert.NotEmpty(t, obj.ETag)

	data, err := os.ReadFile(filepath.Join(tmpDir, "modules", "libA", "main.bundle.js"))
	require.NoError(t, err)
	assert.Equal(t, content, string(data))
}

func TestLocalStorage_UploadRejectsTraversal(t *testing.T) {
	storage, _ := setupLocalStorage(t)

	_, err := storage.Upload(context.Background(), "modules", "../escape.js", strings.NewReader("x"), 1, nil)

	assert.Error(t, err)
}

func TestLocalStorage_Exists(t *testing.T) {
	storage, _ := setupLocalStorage(t)
	ctx := context.Background()

	exists, err := storage.Exists(ctx, "modules", "missing.js")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = storage.Upload(ctx, "modules", "present.js", strings.NewReader("x"), 1, nil)
	require.NoError(t, err)

	exists, err = storage.Exists(ctx, "modules", "present.js")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestLocalStorage_List(t *testing.T) {
	storage, _ := setupLocalStorage(t)
	ctx := context.Background()

	for _, key := range []string{"libB/meta.json", "libA/meta.json", "libA/chunks/a.js"} {
		_, err := storage.Upload(ctx, "modules", key, strings.NewReader("x"), 1, nil)
		require.NoError(t, err)
	}

	objects, err := storage.List(ctx, "modules", "libA/")
	require.NoError(t, err)

	keys := make([]string, 0, len(objects))
	for _, obj := range objects {
		keys = append(keys, obj.Key)
	}
	assert.Equal(t, []string{"libA/chunks/a.js", "libA/meta.json"}, keys)
}

func TestLocalStorage_ListMissingBucket(t *testing.T) {
	storage, _ := setupLocalStorage(t)

	objects, err := storage.List(context.Background(), "nope", "")

	require.NoError(t, err)
	assert.Empty(t, objects)
}

func TestLocalStorage_EnsureBucket(t *testing.T) {
	storage, tmpDir := setupLocalStorage(t)

	require.NoError(t, storage.EnsureBucket(context.Background(), "modules"))
	require.NoError(t, storage.EnsureBucket(context.Background(), "modules"))

	info, err := os.Stat(filepath.Join(tmpDir, "modules"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestPublisher_Publish(t *testing.T) {
	outDir := t.TempDir()
	writeTestFile(t, filepath.Join(outDir, "libA", "meta.json"), `{"name":"libA"}`)
	writeTestFile(t, filepath.Join(outDir, "libA", "main.bundle.js"), "a")
	writeTestFile(t, filepath.Join(outDir, "libA", "chunks", "c-1.js"), "c")
	writeTestFile(t, filepath.Join(outDir, "@scope", "pkg", "meta.json"), `{"name":"@scope/pkg"}`)
	writeTestFile(t, filepath.Join(outDir, "@scope", "pkg", "main.bundle.js"), "s")
	// no meta.json: failed build, must not be published
	writeTestFile(t, filepath.Join(outDir, "broken", "generated.js"), "x")
	writeTestFile(t, filepath.Join(outDir, "node_modules", "libA", "meta.json"), "{}")

	store, storeDir := setupLocalStorage(t)
	publisher := NewPublisher(store, "modules", "built_modules", zerolog.Nop())

	result, err := publisher.Publish(context.Background(), outDir)
	require.NoError(t, err)

	assert.Equal(t, []string{"@scope/pkg", "libA"}, result.Packages)
	assert.Equal(t, 5, result.Objects)

	data, err := os.ReadFile(filepath.Join(storeDir, "modules", "built_modules", "libA", "chunks", "c-1.js"))
	require.NoError(t, err)
	assert.Equal(t, "c", string(data))

	exists, err := store.Exists(context.Background(), "modules", "built_modules/broken/generated.js")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "application/javascript", contentType("main.bundle.js"))
	assert.Equal(t, "application/json", contentType("meta.json"))
	assert.Equal(t, "application/octet-stream", contentType("LICENSE"))
}

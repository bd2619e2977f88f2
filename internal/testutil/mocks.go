// Package testutil provides shared test utilities and mocks for unit testing.
package testutil

import (
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fluxbase-eu/sharedmods/internal/storage"
)

// ErrMockBucketNotFound is returned when uploading into a bucket that was never ensured
var ErrMockBucketNotFound = errors.New("bucket not found")

// MockStorageProvider implements storage.Provider for testing
type MockStorageProvider struct {
	mu      sync.RWMutex
	objects map[string]map[string][]byte // bucket -> key -> data
	options map[string]storage.UploadOptions
	buckets map[string]bool

	// Callbacks for custom behavior
	OnUpload func(ctx context.Context, bucket, key string, data io.Reader, size int64) error
	OnHealth func(ctx context.Context) error
}

// NewMockStorageProvider creates a new mock storage provider
func NewMockStorageProvider() *MockStorageProvider {
	return &MockStorageProvider{
		objects: make(map[string]map[string][]byte),
		options: make(map[string]storage.UploadOptions),
		buckets: make(map[string]bool),
	}
}

func (m *MockStorageProvider) Name() string {
	return "mock"
}

func (m *MockStorageProvider) Health(ctx context.Context) error {
	if m.OnHealth != nil {
		return m.OnHealth(ctx)
	}
	return nil
}

func (m *MockStorageProvider) Upload(ctx context.Context, bucket, key string, data io.Reader, size int64, opts *storage.UploadOptions) (*storage.Object, error) {
	if m.OnUpload != nil {
		if err := m.OnUpload(ctx, bucket, key, data, size); err != nil {
			return nil, err
		}
	}

	content, err := io.ReadAll(data)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.buckets[bucket] {
		return nil, ErrMockBucketNotFound
	}
	if m.objects[bucket] == nil {
		m.objects[bucket] = make(map[string][]byte)
	}
	m.objects[bucket][key] = content
	if opts != nil {
		m.options[bucket+"/"+key] = *opts
	}

	obj := &storage.Object{
		Key:          key,
		Bucket:       bucket,
		Size:         int64(len(content)),
		LastModified: time.Now(),
	}
	if opts != nil {
		obj.ContentType = opts.ContentType
		obj.Metadata = opts.Metadata
	}
	return obj, nil
}

func (m *MockStorageProvider) Exists(ctx context.Context, bucket, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.objects[bucket][key]
	return ok, nil
}

func (m *MockStorageProvider) List(ctx context.Context, bucket, prefix string) ([]storage.Object, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var objects []storage.Object
	for key, data := range m.objects[bucket] {
		if strings.HasPrefix(key, prefix) {
			objects = append(objects, storage.Object{Key: key, Bucket: bucket, Size: int64(len(data))})
		}
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	return objects, nil
}

func (m *MockStorageProvider) EnsureBucket(ctx context.Context, bucket string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.buckets[bucket] = true
	return nil
}

// Content returns the stored bytes of an object, or nil.
func (m *MockStorageProvider) Content(bucket, key string) []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.objects[bucket][key]
}

// Options returns the upload options an object was last stored with.
func (m *MockStorageProvider) Options(bucket, key string) storage.UploadOptions {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.options[bucket+"/"+key]
}

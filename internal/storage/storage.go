package storage

import (
	"context"
	"io"
	"time"
)

// Object represents a stored artifact file
type Object struct {
	Key          string            `json:"key"`
	Bucket       string            `json:"bucket"`
	Size         int64             `json:"size"`
	ContentType  string            `json:"content_type"`
	LastModified time.Time         `json:"last_modified"`
	ETag         string            `json:"etag,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// UploadOptions contains options for uploading files
type UploadOptions struct {
	ContentType  string
	Metadata     map[string]string
	CacheControl string
}

// Storage defines the operations the publisher needs from a backend
type Storage interface {
	// Upload uploads a file to storage
	Upload(ctx context.Context, bucket, key string, data io.Reader, size int64, opts *UploadOptions) (*Object, error)

	// Exists checks if a file exists
	Exists(ctx context.Context, bucket, key string) (bool, error)

	// List lists objects under a key prefix
	List(ctx context.Context, bucket, prefix string) ([]Object, error)

	// EnsureBucket creates the bucket unless it already exists
	EnsureBucket(ctx context.Context, bucket string) error
}

// Provider is the interface that storage providers must implement
type Provider interface {
	Storage
	Name() string
	Health(ctx context.Context) error
}

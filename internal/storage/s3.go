package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"
)

// S3Options locate an S3-compatible endpoint (AWS S3, MinIO, R2, ...).
type S3Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
}

// S3Storage publishes artifacts to an S3-compatible bucket.
type S3Storage struct {
	client *minio.Client
	region string
	logger zerolog.Logger
}

// NewS3Storage creates a client for opts. No request is made until the
// first call.
func NewS3Storage(opts S3Options, logger zerolog.Logger) (*S3Storage, error) {
	if opts.Endpoint == "" {
		return nil, errors.New("s3: endpoint is required")
	}
	// minio wants a bare host; accept a URL too
	endpoint := strings.TrimPrefix(strings.TrimPrefix(opts.Endpoint, "https://"), "http://")

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("s3: %w", err)
	}

	return &S3Storage{
		client: client,
		region: opts.Region,
		logger: logger.With().Str("provider", "s3").Str("endpoint", endpoint).Logger(),
	}, nil
}

// Name implements Provider.
func (s *S3Storage) Name() string {
	return "s3"
}

// Health implements Provider.
func (s *S3Storage) Health(ctx context.Context) error {
	if _, err := s.client.ListBuckets(ctx); err != nil {
		return fmt.Errorf("s3: endpoint unreachable: %w", err)
	}
	return nil
}

// Upload implements Storage.
func (s *S3Storage) Upload(ctx context.Context, bucket, key string, data io.Reader, size int64, opts *UploadOptions) (*Object, error) {
	if opts == nil {
		opts = &UploadOptions{}
	}

	info, err := s.client.PutObject(ctx, bucket, key, data, size, minio.PutObjectOptions{
		ContentType:  opts.ContentType,
		CacheControl: opts.CacheControl,
		UserMetadata: opts.Metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("s3: put %s/%s: %w", bucket, key, err)
	}

	s.logger.Debug().Str("bucket", bucket).Str("key", key).Int64("size", info.Size).Msg("Object uploaded")

	lastModified := info.LastModified
	if lastModified.IsZero() {
		lastModified = time.Now()
	}
	return &Object{
		Key:          key,
		Bucket:       bucket,
		Size:         info.Size,
		ContentType:  opts.ContentType,
		LastModified: lastModified,
		ETag:         info.ETag,
		Metadata:     opts.Metadata,
	}, nil
}

// Exists implements Storage.
func (s *S3Storage) Exists(ctx context.Context, bucket, key string) (bool, error) {
	_, err := s.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, fmt.Errorf("s3: stat %s/%s: %w", bucket, key, err)
}

// List implements Storage. Keys are returned in the lexical order S3 lists them.
func (s *S3Storage) List(ctx context.Context, bucket, prefix string) ([]Object, error) {
	var objects []Object
	for info := range s.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if info.Err != nil {
			if isNotFound(info.Err) {
				return nil, nil
			}
			return nil, fmt.Errorf("s3: list %s/%s: %w", bucket, prefix, info.Err)
		}
		objects = append(objects, Object{
			Key:          info.Key,
			Bucket:       bucket,
			Size:         info.Size,
			ContentType:  info.ContentType,
			LastModified: info.LastModified,
			ETag:         info.ETag,
		})
	}
	return objects, nil
}

// EnsureBucket implements Storage.
func (s *S3Storage) EnsureBucket(ctx context.Context, bucket string) error {
	exists, err := s.client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("s3: bucket %s: %w", bucket, err)
	}
	if exists {
		return nil
	}

	err = s.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: s.region})
	if err != nil {
		// lost a race with another publisher
		if code := minio.ToErrorResponse(err).Code; code == "BucketAlreadyOwnedByYou" || code == "BucketAlreadyExists" {
			return nil
		}
		return fmt.Errorf("s3: create bucket %s: %w", bucket, err)
	}
	s.logger.Info().Str("bucket", bucket).Msg("Bucket created")
	return nil
}

func isNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	switch resp.Code {
	case "NoSuchKey", "NoSuchBucket", "NotFound":
		return true
	}
	return resp.StatusCode == http.StatusNotFound
}

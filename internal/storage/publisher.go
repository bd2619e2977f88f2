package storage

import (
	"context"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"
)

// MetaFileName marks a directory as a built package.
const MetaFileName = "meta.json"

// Cache-Control values of published objects. Files under a content-hashed
// directory never change once written; everything else is revalidated.
const (
	CacheImmutable   = "public, max-age=31536000, immutable"
	CacheRevalidated = "no-cache"
)

// hashedDirs hold files whose names carry their content hash.
var hashedDirs = []string{"chunks/", "assets/"}

// PublishResult summarises one Publish call.
type PublishResult struct {
	Packages []string `json:"packages"`
	Objects  int      `json:"objects"`
	Bytes    int64    `json:"bytes"`
	// Unchanged counts content-hashed objects already present in the bucket.
	Unchanged int `json:"unchanged"`
}

// Publisher uploads built package directories to a storage provider.
type Publisher struct {
	provider Provider
	bucket   string
	prefix   string
	logger   zerolog.Logger
}

// NewPublisher creates a publisher writing under bucket/prefix.
func NewPublisher(provider Provider, bucket, prefix string, logger zerolog.Logger) *Publisher {
	return &Publisher{
		provider: provider,
		bucket:   bucket,
		prefix:   prefix,
		logger:   logger.With().Str("component", "publisher").Str("provider", provider.Name()).Logger(),
	}
}

// Publish uploads every package under outDir that has a meta.json. Packages
// without one never finished building and are left out.
func (p *Publisher) Publish(ctx context.Context, outDir string) (*PublishResult, error) {
	if err := p.provider.Health(ctx); err != nil {
		return nil, err
	}
	if err := p.provider.EnsureBucket(ctx, p.bucket); err != nil {
		return nil, err
	}

	pkgDirs, err := findPackageDirs(outDir)
	if err != nil {
		return nil, err
	}

	result := &PublishResult{}
	for _, rel := range pkgDirs {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		stats, err := p.publishDir(ctx, filepath.Join(outDir, rel), filepath.ToSlash(rel))
		if err != nil {
			return result, fmt.Errorf("failed to publish %s: %w", rel, err)
		}
		result.Packages = append(result.Packages, filepath.ToSlash(rel))
		result.Objects += stats.objects
		result.Bytes += stats.bytes
		result.Unchanged += stats.unchanged

		p.logger.Info().
			Str("package", filepath.ToSlash(rel)).
			Int("objects", stats.objects).
			Int("unchanged", stats.unchanged).
			Int64("bytes", stats.bytes).
			Msg("Package published")
	}

	return result, nil
}

// Published lists the packages already present under the publisher's
// prefix, sorted.
func (p *Publisher) Published(ctx context.Context) ([]string, error) {
	prefix := p.prefix
	if prefix != "" {
		prefix = strings.TrimSuffix(prefix, "/") + "/"
	}
	objects, err := p.provider.List(ctx, p.bucket, prefix)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, obj := range objects {
		rel := strings.TrimPrefix(obj.Key, prefix)
		if name, ok := strings.CutSuffix(rel, "/"+MetaFileName); ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

type dirStats struct {
	objects   int
	unchanged int
	bytes     int64
}

func (p *Publisher) publishDir(ctx context.Context, dir, name string) (dirStats, error) {
	var stats dirStats

	err := filepath.WalkDir(dir, func(file string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			// nested packages are published on their own
			if file != dir && isPackageDir(file) {
				return fs.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(dir, file)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}

		rel = filepath.ToSlash(rel)
		key := path.Join(p.prefix, name, rel)
		hashed := isHashed(rel)
		if hashed {
			exists, err := p.provider.Exists(ctx, p.bucket, key)
			if err != nil {
				return err
			}
			if exists {
				stats.unchanged++
				return nil
			}
		}

		f, err := os.Open(file)
		if err != nil {
			return err
		}
		defer f.Close()

		_, err = p.provider.Upload(ctx, p.bucket, key, f, info.Size(), &UploadOptions{
			ContentType:  contentType(file),
			CacheControl: cacheControl(hashed),
		})
		if err != nil {
			return err
		}
		stats.objects++
		stats.bytes += info.Size()
		return nil
	})

	return stats, err
}

func isHashed(rel string) bool {
	for _, dir := range hashedDirs {
		if strings.HasPrefix(rel, dir) {
			return true
		}
	}
	return false
}

func cacheControl(hashed bool) string {
	if hashed {
		return CacheImmutable
	}
	return CacheRevalidated
}

// findPackageDirs returns the outDir-relative directories containing meta.json, sorted.
func findPackageDirs(outDir string) ([]string, error) {
	var dirs []string
	err := filepath.WalkDir(outDir, func(file string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() || d.Name() == "node_modules" {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if file != outDir && isPackageDir(file) {
			rel, err := filepath.Rel(outDir, file)
			if err != nil {
				return err
			}
			dirs = append(dirs, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan output directory: %w", err)
	}
	sort.Strings(dirs)
	return dirs, nil
}

func isPackageDir(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, MetaFileName))
	return err == nil && !info.IsDir()
}

func contentType(file string) string {
	switch filepath.Ext(file) {
	case ".js", ".mjs":
		return "application/javascript"
	case ".json":
		return "application/json"
	}
	if t := mime.TypeByExtension(filepath.Ext(file)); t != "" {
		return t
	}
	return "application/octet-stream"
}

package objectstore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
)

// putTimeout bounds a single object upload.
const putTimeout = 2 * time.Minute

// putter is the subset of *minio.Client used for uploads.
type putter interface {
	PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// Uploader copies files below Root to the bucket, keyed by their path
// relative to Root.
type Uploader struct {
	client putter
	bucket string
	prefix string
	root   string
}

// New connects to the store described by cfg and makes sure the bucket
// exists. Files are keyed relative to root.
func New(ctx context.Context, cfg Config, root string) (*Uploader, error) {
	client, err := NewMinIOClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("object store: %w", err)
	}
	ensureCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := EnsureBucket(ensureCtx, client, cfg.Bucket, cfg.Region); err != nil {
		return nil, fmt.Errorf("ensure bucket %s: %w", cfg.Bucket, err)
	}
	return newUploader(client, cfg.Bucket, cfg.Prefix, root), nil
}

func newUploader(client putter, bucket, prefix, root string) *Uploader {
	return &Uploader{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/"), root: root}
}

// Key returns the object key for a local file.
func (u *Uploader) Key(file string) string {
	rel, err := filepath.Rel(u.root, file)
	if err != nil || strings.HasPrefix(rel, "..") {
		rel = filepath.Base(file)
	}
	return path.Join(u.prefix, filepath.ToSlash(rel))
}

// Upload stores file in the bucket and returns its key.
func (u *Uploader) Upload(ctx context.Context, file string) (string, error) {
	f, err := os.Open(file)
	if err != nil {
		return "", err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return "", err
	}

	key := u.Key(file)
	putCtx, cancel := context.WithTimeout(ctx, putTimeout)
	defer cancel()
	_, err = u.client.PutObject(putCtx, u.bucket, key, f, info.Size(),
		minio.PutObjectOptions{ContentType: ContentType(file)})
	if err != nil {
		return "", fmt.Errorf("put %s/%s: %w", u.bucket, key, err)
	}
	return key, nil
}

// ContentType maps artifact extensions to MIME types.
func ContentType(file string) string {
	switch strings.ToLower(filepath.Ext(file)) {
	case ".atf":
		return "text/tab-separated-values"
	case ".csv":
		return "text/csv"
	case ".json":
		return "application/json"
	case ".npz":
		return "application/zip"
	}
	return "application/octet-stream"
}

// Package storage turns library references into URLs the media element can
// load: local paths become file:// URLs, MinIO objects presigned GETs.
package storage

import (
	"context"
	"fmt"
	"mime"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"time"

	"MTCPlayer/core/playerr"
	"MTCPlayer/logger"

	"github.com/minio/minio-go/v7"
)

// ObjectScheme prefixes media references stored in MinIO.
const ObjectScheme = "minio://"

// DefaultExpiry 预签名 URL 有效期
const DefaultExpiry = time.Hour

// Resolver resolves media references. A nil MinIO client limits it to local
// and already playable URLs.
type Resolver struct {
	client *minio.Client
	bucket string
	expiry time.Duration
}

func NewResolver(client *minio.Client, bucket string) *Resolver {
	return &Resolver{client: client, bucket: bucket, expiry: DefaultExpiry}
}

// FileURL returns the file:// URL of a local path.
func FileURL(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}
	return u.String(), nil
}

// ObjectRef is the library reference of an object key.
func ObjectRef(key string) string {
	return ObjectScheme + strings.TrimPrefix(key, "/")
}

// Resolve maps a stored reference to a playable URL.
func (r *Resolver) Resolve(ctx context.Context, ref string) (string, error) {
	switch {
	case ref == "":
		return "", playerr.Validation("resolve media", "empty reference")
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"),
		strings.HasPrefix(ref, "file:"), strings.HasPrefix(ref, "blob:"):
		return ref, nil
	case strings.HasPrefix(ref, ObjectScheme):
		return r.PresignedURL(ctx, strings.TrimPrefix(ref, ObjectScheme))
	}
	return FileURL(ref)
}

// PresignedURL signs a GET for key.
func (r *Resolver) PresignedURL(ctx context.Context, key string) (string, error) {
	if r.client == nil {
		return "", playerr.Connectivity("presign", "object storage not configured")
	}
	u, err := r.client.PresignedGetObject(ctx, r.bucket, key, r.expiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	return u.String(), nil
}

// Upload stores a local file under prefix and returns its reference.
func (r *Resolver) Upload(ctx context.Context, prefix, localPath string) (string, error) {
	if r.client == nil {
		return "", playerr.Connectivity("upload", "object storage not configured")
	}
	key := path.Join(prefix, filepath.Base(localPath))
	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(localPath)))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	info, err := r.client.FPutObject(ctx, r.bucket, key, localPath, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", localPath, err)
	}
	logger.Info("media uploaded",
		logger.String("key", key),
		logger.Int64("size", info.Size),
		logger.String("contentType", contentType))
	return ObjectRef(key), nil
}

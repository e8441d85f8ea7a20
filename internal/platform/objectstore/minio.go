// Package objectstore stores submitted trademark images in S3-compatible storage.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/dontdude/markcheck/internal/domain"
)

// Config holds the S3 connection settings.
type Config struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	Bucket        string
	Region        string
	UseSSL        bool
	PublicBaseURL string // Optional, e.g. a CDN in front of the bucket
	KeyPrefix     string
}

// MinIO uploads objects through the S3 API.
type MinIO struct {
	client *minio.Client
	cfg    Config
	newID  func() string
}

var _ domain.ObjectStore = (*MinIO)(nil)

// New creates a MinIO-backed store. It does not contact the server.
func New(cfg Config) (*MinIO, error) {
	cfg.Endpoint = strings.TrimSpace(cfg.Endpoint)
	if cfg.Endpoint == "" {
		return nil, errors.New("object store endpoint is required")
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		cfg.Bucket = "trademark-images"
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return &MinIO{client: client, cfg: cfg, newID: uuid.NewString}, nil
}

// EnsureBucket creates the bucket if it does not exist.
func (m *MinIO) EnsureBucket(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.cfg.Bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", m.cfg.Bucket, err)
	}
	if exists {
		return nil
	}
	if err := m.client.MakeBucket(ctx, m.cfg.Bucket, minio.MakeBucketOptions{Region: m.cfg.Region}); err != nil {
		return fmt.Errorf("make bucket %s: %w", m.cfg.Bucket, err)
	}
	return nil
}

// Upload stores obj under a fresh key and returns its retrieval URL.
func (m *MinIO) Upload(ctx context.Context, obj domain.Object) (string, error) {
	key := objectKey(m.cfg.KeyPrefix, m.newID(), obj.Filename)

	size := obj.Size
	if size <= 0 {
		size = -1
	}
	contentType := obj.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	if _, err := m.client.PutObject(ctx, m.cfg.Bucket, key, obj.Body, size, minio.PutObjectOptions{
		ContentType: contentType,
	}); err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}
	return objectURL(m.cfg, key), nil
}

// objectKey builds "<prefix>/<id>-<filename>" with the filename reduced to its base name.
func objectKey(prefix, id, filename string) string {
	name := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		name = "image"
	}
	key := id + "-" + name
	if prefix = strings.Trim(prefix, "/"); prefix != "" {
		key = prefix + "/" + key
	}
	return key
}

func objectURL(cfg Config, key string) string {
	escaped := (&url.URL{Path: key}).EscapedPath()
	if base := strings.TrimRight(cfg.PublicBaseURL, "/"); base != "" {
		return base + "/" + escaped
	}
	scheme := "http"
	if cfg.UseSSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s/%s", scheme, cfg.Endpoint, cfg.Bucket, escaped)
}

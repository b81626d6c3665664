// Package s3 stores artifacts in an S3-compatible bucket via MinIO.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/askdb/askdb/internal/config"
	"github.com/askdb/askdb/internal/storage"
)

// objectAPI is the bucket surface the store needs. minioAPI backs it in
// production; tests swap in a recording fake.
type objectAPI interface {
	Upload(ctx context.Context, bucket, key string, body io.Reader, size int64, contentType string) (storage.ObjectInfo, error)
	Open(ctx context.Context, bucket, key string) (io.ReadCloser, error)
	Describe(ctx context.Context, bucket, key string) (storage.ObjectInfo, error)
	Remove(ctx context.Context, bucket, key string) error
	EnsureBucket(ctx context.Context, bucket, region string) error
}

// Store keeps snapshot and backup artifacts in one bucket, everything under
// an optional key prefix.
type Store struct {
	objects objectAPI
	bucket  string
	prefix  string
}

func New(ctx context.Context, cfg config.ObjectStoreConfig) (*Store, error) {
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}
	endpoint, secure, err := parseEndpoint(cfg.Endpoint, cfg.UseSSL)
	if err != nil {
		return nil, err
	}
	mc, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: secure,
		Region: strings.TrimSpace(cfg.Region),
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}

	store := &Store{objects: minioAPI{c: mc}, bucket: bucket, prefix: cleanPrefix(cfg.Prefix)}
	if cfg.AutoCreateBucket {
		if err := store.objects.EnsureBucket(ctx, bucket, strings.TrimSpace(cfg.Region)); err != nil {
			return nil, err
		}
	}
	return store, nil
}

func (s *Store) Put(ctx context.Context, key string, body io.Reader, size int64, opts storage.PutOptions) (storage.ObjectInfo, error) {
	qualified, err := s.qualify(key)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	info, err := s.objects.Upload(ctx, s.bucket, qualified, body, size, opts.ContentType)
	if err != nil {
		return storage.ObjectInfo{}, fmt.Errorf("put object %q: %w", qualified, err)
	}
	return info, nil
}

func (s *Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	qualified, err := s.qualify(key)
	if err != nil {
		return nil, err
	}
	body, err := s.objects.Open(ctx, s.bucket, qualified)
	switch {
	case errors.Is(err, storage.ErrObjectNotFound):
		return nil, storage.ErrObjectNotFound
	case err != nil:
		return nil, fmt.Errorf("get object %q: %w", qualified, err)
	}
	return body, nil
}

func (s *Store) Stat(ctx context.Context, key string) (storage.ObjectInfo, error) {
	qualified, err := s.qualify(key)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	info, err := s.objects.Describe(ctx, s.bucket, qualified)
	switch {
	case errors.Is(err, storage.ErrObjectNotFound):
		return storage.ObjectInfo{}, storage.ErrObjectNotFound
	case err != nil:
		return storage.ObjectInfo{}, fmt.Errorf("stat object %q: %w", qualified, err)
	}
	return info, nil
}

// Delete removes the object; a missing object is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	qualified, err := s.qualify(key)
	if err != nil {
		return err
	}
	err = s.objects.Remove(ctx, s.bucket, qualified)
	switch {
	case errors.Is(err, storage.ErrObjectNotFound):
		return nil
	case err != nil:
		return fmt.Errorf("delete object %q: %w", qualified, err)
	}
	return nil
}

// qualify validates the key against traversal and prepends the store prefix.
func (s *Store) qualify(key string) (string, error) {
	key = strings.TrimPrefix(strings.TrimSpace(key), "/")
	if key == "" {
		return "", errors.New("object key is required")
	}
	cleaned := path.Clean(key)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("object key %q escapes the store root", key)
	}
	if s.prefix == "" {
		return cleaned, nil
	}
	return path.Join(s.prefix, cleaned), nil
}

func cleanPrefix(prefix string) string {
	prefix = strings.TrimSpace(strings.TrimPrefix(prefix, "/"))
	if prefix == "" {
		return ""
	}
	if prefix = path.Clean(prefix); prefix == "." {
		return ""
	}
	return prefix
}

// parseEndpoint accepts either host:port or a full URL; an https URL forces
// TLS regardless of useSSL.
func parseEndpoint(raw string, useSSL bool) (string, bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false, errors.New("endpoint is required")
	}
	if !strings.Contains(raw, "://") {
		return raw, useSSL, nil
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", false, fmt.Errorf("parse endpoint URL: %w", err)
	}
	if parsed.Host == "" {
		return "", false, errors.New("endpoint host is required")
	}
	return parsed.Host, parsed.Scheme == "https" || useSSL, nil
}

// minioAPI adapts *minio.Client to objectAPI, translating its error codes
// to storage.ErrObjectNotFound.
type minioAPI struct {
	c *minio.Client
}

func (m minioAPI) Upload(ctx context.Context, bucket, key string, body io.Reader, size int64, contentType string) (storage.ObjectInfo, error) {
	info, err := m.c.PutObject(ctx, bucket, key, body, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return storage.ObjectInfo{}, asStorageErr(err)
	}
	return storage.ObjectInfo{Key: info.Key, Size: info.Size, ETag: info.ETag}, nil
}

func (m minioAPI) Open(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	obj, err := m.c.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, asStorageErr(err)
	}
	// GetObject is lazy; Stat forces the existence check now.
	if _, statErr := obj.Stat(); statErr != nil {
		_ = obj.Close()
		return nil, asStorageErr(statErr)
	}
	return obj, nil
}

func (m minioAPI) Describe(ctx context.Context, bucket, key string) (storage.ObjectInfo, error) {
	obj, err := m.c.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return storage.ObjectInfo{}, asStorageErr(err)
	}
	return storage.ObjectInfo{Key: obj.Key, Size: obj.Size, ETag: obj.ETag, LastModified: obj.LastModified}, nil
}

func (m minioAPI) Remove(ctx context.Context, bucket, key string) error {
	if err := m.c.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return asStorageErr(err)
	}
	return nil
}

func (m minioAPI) EnsureBucket(ctx context.Context, bucket, region string) error {
	exists, err := m.c.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("check bucket %q: %w", bucket, err)
	}
	if exists {
		return nil
	}
	if err := m.c.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region}); err != nil {
		return fmt.Errorf("create bucket %q: %w", bucket, err)
	}
	return nil
}

func asStorageErr(err error) error {
	var respErr minio.ErrorResponse
	if errors.As(err, &respErr) {
		switch respErr.Code {
		case "NoSuchKey", "NoSuchBucket", "NotFound":
			return storage.ErrObjectNotFound
		}
	}
	return err
}

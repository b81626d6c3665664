package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/askdb/askdb/internal/storage"
)

// Store keeps artifacts under a local directory. It is the dev-profile
// stand-in for a bucket and shares key semantics with the s3 store.
type Store struct {
	root string
}

func New(root string) (*Store, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("root directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create root directory: %w", err)
	}
	return &Store{root: root}, nil
}

func (s *Store) Put(ctx context.Context, key string, body io.Reader, size int64, opts storage.PutOptions) (storage.ObjectInfo, error) {
	target, err := s.resolve(key)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return storage.ObjectInfo{}, fmt.Errorf("create object directory: %w", err)
	}

	file, err := os.Create(target)
	if err != nil {
		return storage.ObjectInfo{}, fmt.Errorf("create object %q: %w", key, err)
	}
	written, err := io.Copy(file, body)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(target)
		return storage.ObjectInfo{}, fmt.Errorf("write object %q: %w", key, err)
	}
	if size >= 0 && written != size {
		_ = os.Remove(target)
		return storage.ObjectInfo{}, fmt.Errorf("write object %q: wrote %d of %d bytes", key, written, size)
	}

	info, err := os.Stat(target)
	if err != nil {
		return storage.ObjectInfo{}, fmt.Errorf("stat object %q: %w", key, err)
	}
	return storage.ObjectInfo{Key: path.Clean(strings.TrimPrefix(key, "/")), Size: written, LastModified: info.ModTime()}, nil
}

func (s *Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	target, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(target)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storage.ErrObjectNotFound
		}
		return nil, fmt.Errorf("open object %q: %w", key, err)
	}
	return file, nil
}

func (s *Store) Stat(ctx context.Context, key string) (storage.ObjectInfo, error) {
	target, err := s.resolve(key)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	info, err := os.Stat(target)
	if err != nil {
		if os.IsNotExist(err) {
			return storage.ObjectInfo{}, storage.ErrObjectNotFound
		}
		return storage.ObjectInfo{}, fmt.Errorf("stat object %q: %w", key, err)
	}
	return storage.ObjectInfo{
		Key:          path.Clean(strings.TrimPrefix(key, "/")),
		Size:         info.Size(),
		LastModified: info.ModTime(),
	}, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	target, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("delete object %q: %w", key, err)
	}
	return nil
}

func (s *Store) resolve(key string) (string, error) {
	key = strings.TrimPrefix(strings.TrimSpace(key), "/")
	if key == "" {
		return "", errors.New("object key is required")
	}
	cleaned := path.Clean(key)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("object key %q escapes the store root", key)
	}
	return filepath.Join(s.root, filepath.FromSlash(cleaned)), nil
}

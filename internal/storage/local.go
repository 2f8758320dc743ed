package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var errInvalidName = errors.New("invalid bucket or key")

// LocalStorage implements Storage on the local filesystem. Objects are
// published under publicBaseURL, which the HTTP server maps to Get.
type LocalStorage struct {
	basePath      string
	publicBaseURL string
}

// NewLocalStorage creates a new LocalStorage instance
func NewLocalStorage(basePath, publicBaseURL string) (*LocalStorage, error) {
	// Create directory if it doesn't exist
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}

	return &LocalStorage{
		basePath:      basePath,
		publicBaseURL: publicBaseURL,
	}, nil
}

// Upload writes the object to basePath/bucket/key
func (l *LocalStorage) Upload(ctx context.Context, bucket, key string, data []byte, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	path, err := l.path(bucket, key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("creating bucket directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("writing file: %w", err)
	}
	return bucket + "/" + key, nil
}

// PublicURL returns the URL the HTTP server serves the object under
func (l *LocalStorage) PublicURL(bucket, key string) string {
	return joinURL(l.publicBaseURL, bucket, key)
}

// Get retrieves an object
func (l *LocalStorage) Get(bucket, key string) ([]byte, error) {
	path, err := l.path(bucket, key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return data, nil
}

// Delete removes an object
func (l *LocalStorage) Delete(ctx context.Context, bucket, key string) error {
	path, err := l.path(bucket, key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("deleting file: %w", err)
	}
	return nil
}

// path keeps objects inside basePath
func (l *LocalStorage) path(bucket, key string) (string, error) {
	for _, part := range []string{bucket, key} {
		if part == "" || part == "." || part == ".." || strings.ContainsAny(part, `/\`) {
			return "", fmt.Errorf("%w: %q", errInvalidName, part)
		}
	}
	return filepath.Join(l.basePath, bucket, key), nil
}

// Package storage holds the blob-store collaborators the service writes
// media files through. The service only depends on BlobStore; backend
// selection happens at startup.
package storage

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// BlobStore persists a file and returns a publicly readable locator URL.
type BlobStore interface {
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)
}

// LocalStore writes files under a base directory served by the static
// file handler at baseURL.
type LocalStore struct {
	dir     string
	baseURL string
}

func NewLocalStore(dir, baseURL string) *LocalStore {
	return &LocalStore{
		dir:     dir,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

func (s *LocalStore) Put(ctx context.Context, key, contentType string, data []byte) (string, error) {
	dst := filepath.Join(s.dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return "", err
	}
	return s.baseURL + "/" + path.Clean(key), nil
}

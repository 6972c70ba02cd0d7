// Package blob abstracts artifact storage for generated reports. The
// filesystem store backs single-node and dev deployments; an object-store
// implementation slots in behind the same interface.
package blob

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Uploader stores a finished artifact and returns its download URL.
type Uploader interface {
	Put(ctx context.Context, key string, data []byte) (string, error)
}

// FSUploader writes artifacts under a directory and serves URLs off a base.
type FSUploader struct {
	dir     string
	baseURL string
}

// NewFSUploader creates a filesystem uploader rooted at dir.
func NewFSUploader(dir, baseURL string) (*FSUploader, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create blob dir: %w", err)
	}
	return &FSUploader{dir: dir, baseURL: strings.TrimSuffix(baseURL, "/")}, nil
}

// Put writes the artifact atomically (temp file plus rename) so a partially
// written report is never downloadable.
func (u *FSUploader) Put(_ context.Context, key string, data []byte) (string, error) {
	if strings.Contains(key, "..") || strings.ContainsRune(key, os.PathSeparator) {
		return "", fmt.Errorf("invalid blob key %q", key)
	}

	tmp, err := os.CreateTemp(u.dir, ".upload-*")
	if err != nil {
		return "", err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), filepath.Join(u.dir, key)); err != nil {
		return "", err
	}
	return u.baseURL + "/" + key, nil
}

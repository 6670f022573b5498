// Package media stores user-uploaded images (avatars, cover images) and
// hands back stable URLs for them.
package media

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// ErrUnsupportedType marks an upload whose content type is not an image
// format we accept.
var ErrUnsupportedType = errors.New("unsupported media type")

// UploadParams describes one incoming image.
type UploadParams struct {
	Reader      io.Reader
	Size        int64
	ContentType string
	// Kind groups objects by purpose, e.g. "avatars" or "covers".
	Kind string
}

// Store uploads images and removes superseded ones. Remove is best-effort:
// callers log failures rather than failing the request that replaced the
// object.
type Store interface {
	Upload(ctx context.Context, params UploadParams) (string, error)
	Remove(ctx context.Context, url string) error
}

var extensionsByType = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

func extensionFor(contentType string) (string, error) {
	ext, ok := extensionsByType[strings.ToLower(strings.TrimSpace(contentType))]
	if !ok {
		return "", fmt.Errorf("%s: %w", contentType, ErrUnsupportedType)
	}
	return ext, nil
}

func randomObjectName(ext string) (string, error) {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("generate object name: %w", err)
	}
	return hex.EncodeToString(bytes) + ext, nil
}

// FileStore keeps uploads on the local filesystem, serving them from a base
// URL such as /media. It is the default backend for single-node deployments.
type FileStore struct {
	baseDir string
	baseURL string
}

func NewFileStore(baseDir, baseURL string) (*FileStore, error) {
	if baseDir == "" {
		return nil, errors.New("media directory required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create media dir: %w", err)
	}
	return &FileStore{baseDir: baseDir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (s *FileStore) Upload(_ context.Context, params UploadParams) (string, error) {
	ext, err := extensionFor(params.ContentType)
	if err != nil {
		return "", err
	}
	name, err := randomObjectName(ext)
	if err != nil {
		return "", err
	}

	kind := path.Clean(params.Kind)
	if kind == "." || kind == ".." || strings.Contains(kind, "/") {
		return "", fmt.Errorf("invalid media kind %q", params.Kind)
	}
	dir := filepath.Join(s.baseDir, kind)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create media kind dir: %w", err)
	}

	target := filepath.Join(dir, name)
	file, err := os.Create(target)
	if err != nil {
		return "", fmt.Errorf("create media file: %w", err)
	}
	if _, err := io.Copy(file, params.Reader); err != nil {
		_ = file.Close()
		_ = os.Remove(target)
		return "", fmt.Errorf("write media file: %w", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(target)
		return "", fmt.Errorf("close media file: %w", err)
	}
	return s.baseURL + "/" + kind + "/" + name, nil
}

func (s *FileStore) Remove(_ context.Context, url string) error {
	rel, ok := strings.CutPrefix(url, s.baseURL+"/")
	if !ok {
		return fmt.Errorf("url %q is not managed by this store", url)
	}
	rel = path.Clean(rel)
	if rel == "." || strings.HasPrefix(rel, "..") {
		return fmt.Errorf("url %q resolves outside the media dir", url)
	}
	if err := os.Remove(filepath.Join(s.baseDir, filepath.FromSlash(rel))); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove media file: %w", err)
	}
	return nil
}

var _ Store = (*FileStore)(nil)

package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// Storage persists attachment blobs under relative paths.
type Storage interface {
	Put(ctx context.Context, relPath string, data []byte) error
	Delete(ctx context.Context, relPath string) error
	// URL resolves a relative path to its public URL.
	URL(relPath string) string
	// IsInternalURL reports whether a URL points at this storage.
	IsInternalURL(rawURL string) bool
}

var extPattern = regexp.MustCompile(`^\.[a-z0-9]{1,10}$`)

// AttachmentPath builds a collision-resistant tenant/ticket scoped path.
// The provider-supplied name only contributes a sanitized extension.
func AttachmentPath(tenantID, ticketID int64, originalName string) string {
	ext := strings.ToLower(path.Ext(originalName))
	if !extPattern.MatchString(ext) {
		ext = ""
	}
	return fmt.Sprintf("tenants/%d/tickets/%d/%s%s", tenantID, ticketID, uuid.NewString(), ext)
}

// FilesystemStorage stores blobs below a root directory.
type FilesystemStorage struct {
	root    string
	baseURL *url.URL
}

// NewFilesystemStorage creates the root directory if needed.
func NewFilesystemStorage(root, publicBaseURL string) (*FilesystemStorage, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	base, err := url.Parse(strings.TrimRight(publicBaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse storage url: %w", err)
	}
	return &FilesystemStorage{root: root, baseURL: base}, nil
}

func (s *FilesystemStorage) resolve(relPath string) (string, error) {
	clean := filepath.Clean("/" + filepath.FromSlash(relPath))
	if clean == string(filepath.Separator) {
		return "", errors.New("empty storage path")
	}
	return filepath.Join(s.root, clean), nil
}

// Put writes data to relPath.
func (s *FilesystemStorage) Put(_ context.Context, relPath string, data []byte) error {
	full, err := s.resolve(relPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	return nil
}

// Delete removes relPath; a missing file is not an error.
func (s *FilesystemStorage) Delete(_ context.Context, relPath string) error {
	full, err := s.resolve(relPath)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove file: %w", err)
	}
	return nil
}

// URL resolves a relative path to its public URL.
func (s *FilesystemStorage) URL(relPath string) string {
	return s.baseURL.String() + "/" + strings.TrimLeft(relPath, "/")
}

// IsInternalURL reports whether rawURL is on the storage host and below its base path.
func (s *FilesystemStorage) IsInternalURL(rawURL string) bool {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return false
	}
	if !strings.EqualFold(u.Host, s.baseURL.Host) {
		return false
	}
	base := strings.TrimRight(s.baseURL.Path, "/") + "/"
	return strings.HasPrefix(u.Path, base)
}

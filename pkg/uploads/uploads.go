// Package uploads stores contribution photos. Files are renamed to
// <random-hex>.<ext> on save; the original name survives only in the
// response metadata.
package uploads

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

const (
	// MaxFileBytes bounds one uploaded photo.
	MaxFileBytes = 5 << 20
	// MaxFilesPerRequest bounds one upload request.
	MaxFilesPerRequest = 5
)

var allowedExtensions = map[string]bool{
	"png": true, "jpg": true, "jpeg": true, "webp": true,
}

var storedNamePattern = regexp.MustCompile(`^[0-9a-f]{32}\.(png|jpg|jpeg|webp)$`)

// Store is the photo storage backend contract.
type Store interface {
	// Save persists data under a fresh random name with the given
	// extension and returns the stored name.
	Save(ctx context.Context, ext string, data []byte) (string, error)
	// Get retrieves a photo by its stored name.
	Get(ctx context.Context, name string) ([]byte, error)
	// Delete removes a photo by its stored name.
	Delete(ctx context.Context, name string) error
}

// ValidateFile checks an upload's original filename and size before it
// is accepted.
func ValidateFile(filename string, size int64) (ext string, err error) {
	ext = strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	if !allowedExtensions[ext] {
		return "", fmt.Errorf("unsupported file extension: %q", ext)
	}
	if size > MaxFileBytes {
		return "", fmt.Errorf("file exceeds %d bytes", int64(MaxFileBytes))
	}
	return ext, nil
}

// newStoredName generates <32 hex chars>.<ext>.
func newStoredName(ext string) (string, error) {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("generate upload name: %w", err)
	}
	return hex.EncodeToString(buf[:]) + "." + ext, nil
}

func validStoredName(name string) error {
	if !storedNamePattern.MatchString(name) {
		return fmt.Errorf("invalid stored name: %s", name)
	}
	return nil
}

// FileStore is the filesystem backend, writing into a flat upload
// directory.
type FileStore struct {
	dir string
}

// NewFileStore ensures the upload directory exists.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure upload dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) Save(_ context.Context, ext string, data []byte) (string, error) {
	name, err := newStoredName(ext)
	if err != nil {
		return "", err
	}
	path := filepath.Join(s.dir, name)

	// Write to a temp path, then rename into place.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("write upload: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("commit upload: %w", err)
	}
	return name, nil
}

func (s *FileStore) Get(_ context.Context, name string) ([]byte, error) {
	if err := validStoredName(name); err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(s.dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("upload not found: %s", name)
		}
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return io.ReadAll(f)
}

func (s *FileStore) Delete(_ context.Context, name string) error {
	if err := validStoredName(name); err != nil {
		return err
	}
	err := os.Remove(filepath.Join(s.dir, name))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete upload: %w", err)
	}
	return nil
}

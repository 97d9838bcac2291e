package archive

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// FileStore keeps archive objects as files under a root directory
type FileStore struct {
	root string
}

// NewFileStore creates a FileStore rooted at root. The root is created on
// first write.
func NewFileStore(root string) *FileStore {
	return &FileStore{root: root}
}

// Root returns the storage root
func (s *FileStore) Root() string {
	return s.root
}

func (s *FileStore) Locate(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key))
}

// Write replaces the file atomically: temp file, fsync, rename.
func (s *FileStore) Write(ctx context.Context, location string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dir := filepath.Dir(location)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &StoreError{Op: "write", Location: location, Err: err}
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return &StoreError{Op: "write", Location: location, Err: err}
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &StoreError{Op: "write", Location: location, Err: err}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &StoreError{Op: "write", Location: location, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return &StoreError{Op: "write", Location: location, Err: err}
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return &StoreError{Op: "write", Location: location, Err: err}
	}
	if err := os.Rename(tmpName, location); err != nil {
		os.Remove(tmpName)
		return &StoreError{Op: "write", Location: location, Err: err}
	}
	return nil
}

func (s *FileStore) Read(ctx context.Context, location string) ([]byte, error) {
	data, err := os.ReadFile(location)
	if err != nil {
		return nil, &StoreError{Op: "read", Location: location, Err: err}
	}
	return data, nil
}

func (s *FileStore) Remove(ctx context.Context, location string) error {
	if err := os.Remove(location); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &StoreError{Op: "remove", Location: location, Err: err}
	}
	return nil
}

func (s *FileStore) Exists(ctx context.Context, location string) (bool, error) {
	_, err := os.Stat(location)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, &StoreError{Op: "stat", Location: location, Err: err}
}

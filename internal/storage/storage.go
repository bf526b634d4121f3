package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Cache is a durable blob store keyed by name.
type Cache interface {
	Load(key string) ([]byte, bool, error)
	Save(key string, data []byte) error
}

// FileCache stores each key as a JSON file under a base directory.
type FileCache struct {
	basePath string
}

// NewFileCache creates a new FileCache and ensures the base directory exists.
func NewFileCache(basePath string) (*FileCache, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory %s: %w", basePath, err)
	}
	return &FileCache{basePath: basePath}, nil
}

// sanitizeKey makes the key safe for filenames.
func sanitizeKey(key string) string {
	r := strings.NewReplacer("/", "_", "\\", "_", ":", "-", "..", "_")
	return r.Replace(key)
}

func (c *FileCache) path(key string) string {
	return filepath.Join(c.basePath, sanitizeKey(key)+".json")
}

// Load returns the stored value for key. A missing key is not an error.
func (c *FileCache) Load(key string) ([]byte, bool, error) {
	data, err := os.ReadFile(c.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cache entry %s: %w", key, err)
	}
	return data, true, nil
}

// Save replaces the value for key. The file is written next to its final
// location and renamed, so readers never see a partial value.
func (c *FileCache) Save(key string, data []byte) error {
	tmp, err := os.CreateTemp(c.basePath, sanitizeKey(key)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create cache file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close cache file: %w", err)
	}
	if err := os.Rename(tmp.Name(), c.path(key)); err != nil {
		return fmt.Errorf("failed to replace cache entry %s: %w", key, err)
	}
	return nil
}

// Delete removes the value for key if it exists.
func (c *FileCache) Delete(key string) error {
	if err := os.Remove(c.path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove cache entry %s: %w", key, err)
	}
	return nil
}

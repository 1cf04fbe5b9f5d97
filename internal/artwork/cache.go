package artwork

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Cache stores downloaded artwork on disk keyed by URL.
type Cache struct {
	dir string
}

// NewCache returns a cache rooted at dir. An empty dir uses DefaultCacheDir.
func NewCache(dir string) (*Cache, error) {
	if dir == "" {
		d, err := DefaultCacheDir()
		if err != nil {
			return nil, err
		}
		dir = d
	}
	return &Cache{dir: dir}, nil
}

// DefaultCacheDir returns the default cache directory path.
func DefaultCacheDir() (string, error) {
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to determine cache directory: %w", err)
		}
		return filepath.Join(home, ".cache", "backdrop", "artwork"), nil
	}
	return filepath.Join(cacheDir, "backdrop", "artwork"), nil
}

// Dir returns the cache directory.
func (c *Cache) Dir() string { return c.dir }

// Path returns the file a URL is cached under: a SHA-256 prefix of the URL
// plus its extension, defaulting to .jpg.
func (c *Cache) Path(url string) string {
	hash := sha256.Sum256([]byte(url))

	ext := filepath.Ext(url)
	if idx := strings.IndexAny(ext, "?#"); idx != -1 {
		ext = ext[:idx]
	}
	if ext == "" || len(ext) > 5 || strings.ContainsRune(ext, '/') {
		ext = ".jpg"
	}
	return filepath.Join(c.dir, hex.EncodeToString(hash[:16])+ext)
}

// Get returns cached bytes for url.
func (c *Cache) Get(url string) ([]byte, bool) {
	data, err := os.ReadFile(c.Path(url))
	if err != nil || len(data) == 0 {
		return nil, false
	}
	return data, true
}

// Put stores data for url, replacing the file atomically.
func (c *Cache) Put(url string, data []byte) error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil { // #nosec G301 - Cache directory needs standard permissions
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	tmp, err := os.CreateTemp(c.dir, ".artwork-*")
	if err != nil {
		return fmt.Errorf("failed to create cache file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write cached image: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write cached image: %w", err)
	}
	if err := os.Rename(tmp.Name(), c.Path(url)); err != nil {
		return fmt.Errorf("failed to store cached image: %w", err)
	}
	return nil
}

// Package digest computes the content fingerprints used for change detection.
package digest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Size is the length of a digest string.
const Size = sha256.Size * 2

// Bytes returns the hex sha256 digest of b.
func Bytes(b []byte) string {
	h := sha256.Sum256(b)
	return hex.EncodeToString(h[:])
}

// String returns the hex sha256 digest of s.
func String(s string) string {
	return Bytes([]byte(s))
}

// File streams the file at path through sha256.
func File(path string) (string, error) {
	// #nosec G304 - callers pass paths they discovered under the input/output roots
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("digest %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// DefaultCacheSize bounds the number of memoized file digests.
const DefaultCacheSize = 4096

// Cache memoizes file digests for the lifetime of a single export run.
// Source files shared as dependencies by many entries are read once.
// A Cache must not outlive the run: it never revalidates entries.
type Cache struct {
	entries *lru.Cache[string, string]
}

// NewCache creates a cache holding at most size digests.
func NewCache(size int) *Cache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	c, err := lru.New[string, string](size)
	if err != nil {
		// lru.New only fails for non-positive sizes
		panic(err)
	}
	return &Cache{entries: c}
}

// File returns the digest of the file at path, reading it at most once.
func (c *Cache) File(path string) (string, error) {
	if c == nil {
		return File(path)
	}
	if sum, ok := c.entries.Get(path); ok {
		return sum, nil
	}
	sum, err := File(path)
	if err != nil {
		return "", err
	}
	c.entries.Add(path, sum)
	return sum, nil
}

// Len reports the number of memoized digests.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	return c.entries.Len()
}

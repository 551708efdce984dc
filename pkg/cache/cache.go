// Package cache provides the response cache used by the crates.io client.
//
// Registry lookups are slow and rate-limited, so depsync caches raw HTTP
// response payloads between runs. Two backends are provided:
//
//   - [FileCache]: persistent, stored under the user cache directory
//   - [NullCache]: no-op, for tests and --refresh style workflows
//
// Entries carry a TTL; expired entries are treated as misses and removed
// lazily on the next read.
package cache

import (
	"context"
	"os"
	"path/filepath"
	"time"
)

// Cache is the interface implemented by all cache backends.
// Implementations must be safe for concurrent use.
type Cache interface {
	// Get retrieves the value for key. The second return value reports
	// whether the key was present and unexpired.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores data under key. A ttl of zero means no expiration.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases any resources held by the backend.
	Close() error
}

// DefaultDir returns the default on-disk cache location
// (e.g. ~/.cache/depsync on Linux). It does not create the directory.
func DefaultDir() (string, error) {
	base, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "depsync"), nil
}

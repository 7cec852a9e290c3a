// Package interfaces provides service interfaces for dependency injection.
package interfaces

import (
	"time"
)

// CacheStats reports artifact cache counters
type CacheStats struct {
	Hits     uint64 `json:"hits"`
	Misses   uint64 `json:"misses"`
	KeyCount int    `json:"keys"`
}

// ArtifactCache is a process-local key/value cache with per-entry expiry.
// Used for rendered artifact handles and cached text-generation responses.
type ArtifactCache interface {
	// Get returns the value and true for a live entry.
	// Expired entries are reported as misses.
	Get(key string) ([]byte, bool)

	// Set stores a value for ttl; ttl 0 uses the configured default.
	// Empty keys, empty values and negative ttls are rejected.
	Set(key string, value []byte, ttl time.Duration) error

	Delete(key string) error

	// Flush removes every entry
	Flush() error

	Stats() CacheStats
}

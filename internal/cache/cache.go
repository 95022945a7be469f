// Package cache stores raw fetch payloads so repeated runs of the same
// source+query pair neither refetch nor re-persist identical artifacts.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Cache is the storage interface shared by the memory and disk tiers.
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// ArtifactKey derives the cache key for one source+query pair.
func ArtifactKey(sourceID, query string) string {
	sum := sha256.Sum256([]byte(sourceID + "\x00" + query))
	return "lens:artifact:v1:" + hex.EncodeToString(sum[:])
}

// SeenKey derives the key marking a content hash already persisted for a
// source+query pair; used for is_duplicate checks.
func SeenKey(sourceID, query, contentHash string) string {
	sum := sha256.Sum256([]byte(sourceID + "\x00" + query + "\x00" + contentHash))
	return "lens:seen:v1:" + hex.EncodeToString(sum[:])
}

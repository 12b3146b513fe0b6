package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"

	"github.com/componentforge/forge/pkg/models"
)

// Cache stores completed generations keyed by the full input fingerprint.
// Concurrent writes of the same key always carry identical values (the key
// embeds every input hash and the pipeline version), so last-writer-wins
// needs no coordination beyond the store's own.
type Cache interface {
	Get(ctx context.Context, key string) (*models.GeneratedCode, bool, error)
	Set(ctx context.Context, key string, code *models.GeneratedCode) error
}

// CacheKey computes SHA-256(input digest ‖ tokens hash ‖ requirements hash ‖
// pattern id ‖ pipeline version).
func CacheKey(inputDigest, tokensHash, requirementsHash, patternID, pipelineVersion string) string {
	joined := strings.Join([]string{inputDigest, tokensHash, requirementsHash, patternID, pipelineVersion}, "\x1f")
	sum := sha256.Sum256([]byte(joined))
	return hex.EncodeToString(sum[:])
}

// InputDigest hashes the raw run input (image bytes or figma reference).
func InputDigest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// MemoryCache is the in-process cache used when no external store is
// configured. Entries have no TTL; keys embed every input hash, so staleness
// is impossible by construction.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]models.GeneratedCode
}

// NewMemoryCache creates an empty cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]models.GeneratedCode)}
}

// Get implements Cache.
func (c *MemoryCache) Get(_ context.Context, key string) (*models.GeneratedCode, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	// Copy out so callers cannot mutate the cached value.
	copied := entry
	return &copied, true, nil
}

// Set implements Cache.
func (c *MemoryCache) Set(_ context.Context, key string, code *models.GeneratedCode) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = *code
	return nil
}

// Package refcache implements the Reference-NFT Cache (C9): an in-memory
// index binding a token identity hash to its parent NFT's metadata and
// whether that NFT has been marked "reference" yet. Shared by the Block
// Processor and Reindexer of a single network. Grounded on
// original_source/indexer/src/domain/services/reference_cache.rs.
package refcache

import "sync"

// Metadata is what a token inherits from its parent NFT.
type Metadata struct {
	AppID       string
	Name        *string
	Symbol      *string
	Description *string
	Decimals    *int16
}

// Cache is a readers-writer-guarded (hash -> metadata, hash -> marked) pair.
// Safe for concurrent use by the bounded tx-analysis fan-out.
type Cache struct {
	mu       sync.RWMutex
	metadata map[string]Metadata
	marked   map[string]bool
}

// New constructs an empty cache.
func New() *Cache {
	return &Cache{
		metadata: make(map[string]Metadata),
		marked:   make(map[string]bool),
	}
}

// PutNFT records (or overwrites) the metadata slot for an NFT's identity
// hash, called when the Block Processor ingests an NFT charm.
func (c *Cache) PutNFT(hash string, m Metadata) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metadata[hash] = m
}

// Lookup returns the cached metadata for hash, if any.
func (c *Cache) Lookup(hash string) (Metadata, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.metadata[hash]
	return m, ok
}

// MarkReferenceOnce reports whether hash has not yet been marked as a
// reference NFT, and if so, marks it. Callers must issue the
// is_reference=true UPDATE only when this returns true, guaranteeing at most
// one such UPDATE per hash per process lifetime (spec.md §8 property 8).
func (c *Cache) MarkReferenceOnce(hash string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.marked[hash] {
		return false
	}
	c.marked[hash] = true
	return true
}

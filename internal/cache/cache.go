// Package cache memoizes parse results by content digest, so identical
// Dockerfiles in a batch are parsed once.
package cache

import (
	"sync"

	digest "github.com/opencontainers/go-digest"
	"golang.org/x/sync/singleflight"

	"github.com/shmocker/dfparse/pkg/dockerfile"
)

// Result is a cached parse outcome. Failed parses are cached as well.
type Result struct {
	Document *dockerfile.Document
	Err      error
}

// Cache holds parse results keyed by the digest of their source bytes.
// The zero value is not usable; use New.
type Cache struct {
	mu      sync.RWMutex
	entries map[digest.Digest]Result
	group   singleflight.Group

	loads, parses int
}

// Stats reports how often Load was served from the cache.
type Stats struct {
	Entries int `json:"entries"`
	Hits    int `json:"hits"`
	Misses  int `json:"misses"`
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{entries: make(map[digest.Digest]Result)}
}

// Get returns the cached result for key.
func (c *Cache) Get(key digest.Digest) (Result, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.entries[key]
	return r, ok
}

// Put stores a parse result.
func (c *Cache) Put(key digest.Digest, r Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = r
}

// Load returns the result for content, calling parse at most once per
// distinct content even when invoked concurrently.
func (c *Cache) Load(content []byte, parse func([]byte) (*dockerfile.Document, error)) (*dockerfile.Document, error) {
	c.mu.Lock()
	c.loads++
	c.mu.Unlock()

	key := digest.FromBytes(content)
	if r, ok := c.Get(key); ok {
		return r.Document, r.Err
	}

	v, _, _ := c.group.Do(key.String(), func() (interface{}, error) {
		if r, ok := c.Get(key); ok {
			return r, nil
		}
		doc, err := parse(content)
		r := Result{Document: doc, Err: err}

		c.mu.Lock()
		c.entries[key] = r
		c.parses++
		c.mu.Unlock()
		return r, nil
	})
	r := v.(Result)
	return r.Document, r.Err
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{Entries: len(c.entries), Hits: c.loads - c.parses, Misses: c.parses}
}

// Clear removes all entries and resets the counters.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[digest.Digest]Result)
	c.loads, c.parses = 0, 0
}

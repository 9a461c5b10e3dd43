// cache.go
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ResourceCache is a persistent URL-keyed store for image analysis
// results. Load and save are whole-file operations; every save first
// copies the previous file to a timestamped backup.
type ResourceCache struct {
	path string

	mu      sync.Mutex
	entries map[string]CacheEntry
	hits    int
}

// NewResourceCache creates a cache backed by the given file path.
func NewResourceCache(path string) *ResourceCache {
	return &ResourceCache{
		path:    path,
		entries: make(map[string]CacheEntry),
	}
}

// Load reads the cache file. A missing file yields an empty cache.
func (c *ResourceCache) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading cache file: %w", err)
	}

	entries := make(map[string]CacheEntry)
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("parsing cache file: %w", err)
	}
	c.entries = entries
	return nil
}

// Save writes the whole cache to disk, backing up the previous file
// first so a failed write never loses prior analysis results.
func (c *ResourceCache) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saveLocked()
}

func (c *ResourceCache) saveLocked() error {
	if err := os.MkdirAll(filepath.Dir(c.path), 0755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}

	if prev, err := os.ReadFile(c.path); err == nil {
		backupPath := fmt.Sprintf("%s.%d.bak", c.path, time.Now().Unix())
		if err := os.WriteFile(backupPath, prev, 0644); err != nil {
			return fmt.Errorf("writing cache backup: %w", err)
		}
	}

	data, err := json.MarshalIndent(c.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding cache: %w", err)
	}
	if err := os.WriteFile(c.path, data, 0644); err != nil {
		return fmt.Errorf("writing cache file: %w", err)
	}
	return nil
}

// Get returns the entry for a URL. A hit increments the hit counter.
func (c *ResourceCache) Get(rawURL string) (CacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[sanitizeURLKey(rawURL)]
	if ok {
		c.hits++
	}
	return entry, ok
}

// Put stores an entry and persists the cache immediately, so a killed
// run never loses paid-for analysis results.
func (c *ResourceCache) Put(entry CacheEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[sanitizeURLKey(entry.URL)] = entry
	return c.saveLocked()
}

// Merge folds another entry set into this cache. Key conflicts keep the
// entry with the later timestamp.
func (c *ResourceCache) Merge(other map[string]CacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, entry := range other {
		key = sanitizeURLKey(key)
		existing, ok := c.entries[key]
		if !ok || entry.Timestamp.After(existing.Timestamp) {
			c.entries[key] = entry
		}
	}
}

// Validate drops malformed entries (no URL, no filename, or zero
// timestamp) and returns how many were removed.
func (c *ResourceCache) Validate() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, entry := range c.entries {
		if entry.URL == "" || entry.Filename == "" || entry.Timestamp.IsZero() {
			log.Printf("Dropping malformed cache entry %q", key)
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Hits returns the number of cache hits this run.
func (c *ResourceCache) Hits() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits
}

// Len returns the number of cached entries.
func (c *ResourceCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// TotalCost sums the cost units recorded across all entries.
func (c *ResourceCache) TotalCost() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	var total float64
	for _, entry := range c.entries {
		total += entry.Cost
	}
	return total
}

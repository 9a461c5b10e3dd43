package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func testEntry(url string, ts time.Time) CacheEntry {
	return CacheEntry{
		URL:       url,
		Timestamp: ts,
		AltText:   "Ein Bild",
		Filename:  "ein-bild",
		Cost:      0.01,
	}
}

func TestCacheLoadMissingFile(t *testing.T) {
	cache := NewResourceCache(filepath.Join(t.TempDir(), "gibtsnicht.json"))
	if err := cache.Load(); err != nil {
		t.Fatalf("Load() error = %v, want nil for missing file", err)
	}
	if cache.Len() != 0 {
		t.Errorf("Len() = %d, want 0", cache.Len())
	}
}

func TestCachePutPersistsImmediately(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	cache := NewResourceCache(path)

	if err := cache.Put(testEntry("https://example.com/a.jpg", time.Now())); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	reloaded := NewResourceCache(path)
	if err := reloaded.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	entry, ok := reloaded.Get("https://example.com/a.jpg")
	if !ok {
		t.Fatal("Get() missed after reload")
	}
	if entry.Filename != "ein-bild" {
		t.Errorf("Filename = %q", entry.Filename)
	}
}

func TestCacheSaveCreatesBackup(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cache.json")
	cache := NewResourceCache(path)

	if err := cache.Put(testEntry("https://example.com/a.jpg", time.Now())); err != nil {
		t.Fatalf("first Put() error = %v", err)
	}
	if err := cache.Put(testEntry("https://example.com/b.jpg", time.Now())); err != nil {
		t.Fatalf("second Put() error = %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	backups := 0
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".bak") {
			backups++
		}
	}
	if backups == 0 {
		t.Error("second save created no backup file")
	}
}

func TestCacheGetCountsHits(t *testing.T) {
	cache := NewResourceCache(filepath.Join(t.TempDir(), "cache.json"))
	cache.Put(testEntry("https://example.com/a.jpg", time.Now()))

	cache.Get("https://example.com/a.jpg")
	cache.Get("https://EXAMPLE.com/a.jpg") // key sanitization folds case
	cache.Get("https://example.com/fehlt.jpg")

	if cache.Hits() != 2 {
		t.Errorf("Hits() = %d, want 2", cache.Hits())
	}
}

func TestCacheMergeKeepsLaterTimestamp(t *testing.T) {
	cache := NewResourceCache(filepath.Join(t.TempDir(), "cache.json"))

	older := testEntry("https://example.com/a.jpg", time.Now().Add(-time.Hour))
	older.AltText = "alt"
	newer := testEntry("https://example.com/a.jpg", time.Now())
	newer.AltText = "neu"

	cache.Put(newer)
	cache.Merge(map[string]CacheEntry{older.URL: older})

	entry, _ := cache.Get("https://example.com/a.jpg")
	if entry.AltText != "neu" {
		t.Errorf("Merge() overwrote newer entry with %q", entry.AltText)
	}

	cache.Merge(map[string]CacheEntry{
		"https://example.com/b.jpg": testEntry("https://example.com/b.jpg", time.Now()),
	})
	if cache.Len() != 2 {
		t.Errorf("Len() = %d, want 2 after merging a new key", cache.Len())
	}
}

func TestCacheValidateDropsMalformed(t *testing.T) {
	cache := NewResourceCache(filepath.Join(t.TempDir(), "cache.json"))
	cache.Put(testEntry("https://example.com/gut.jpg", time.Now()))

	broken := CacheEntry{URL: "https://example.com/kaputt.jpg"} // no filename, zero time
	cache.Merge(map[string]CacheEntry{broken.URL: broken})

	if dropped := cache.Validate(); dropped != 1 {
		t.Errorf("Validate() dropped = %d, want 1", dropped)
	}
	if cache.Len() != 1 {
		t.Errorf("Len() = %d, want 1", cache.Len())
	}
}

func TestCacheTotalCost(t *testing.T) {
	cache := NewResourceCache(filepath.Join(t.TempDir(), "cache.json"))
	cache.Put(testEntry("https://example.com/a.jpg", time.Now()))
	cache.Put(testEntry("https://example.com/b.jpg", time.Now()))

	if got := cache.TotalCost(); got != 0.02 {
		t.Errorf("TotalCost() = %v, want 0.02", got)
	}
}

// images.go
package main

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const (
	maxDownloadAttempts = 3
	baseRetryDelay      = 500 * time.Millisecond
	maxRetryDelay       = 5 * time.Second
	maxImageBytes       = 10 << 20 // 10 MiB hard ceiling
	downloadThrottle    = 100 * time.Millisecond
)

var imageExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".webp", ".svg"}

// DownloadStats tracks acquirer counters for the run summary.
type DownloadStats struct {
	Downloaded int
	Failed     int
	Skipped    int
	TotalBytes int64
}

// imageAsset tracks one URL for the duration of a run. path is the first
// materialized copy, used as the local source for further destination
// directories; ready is closed once the first acquisition settles, so
// concurrent articles sharing a URL wait instead of fetching twice.
type imageAsset struct {
	url      string
	filename string
	path     string
	err      error
	ready    chan struct{}
}

// ImageAcquirer fetches remote images to local storage with retry,
// content validation and URL-level dedup within one run.
type ImageAcquirer struct {
	client   *http.Client
	baseURL  string
	dryRun   bool
	throttle time.Duration

	mu     sync.Mutex
	assets map[string]*imageAsset // keyed by sanitized URL
	stats  DownloadStats
}

// NewImageAcquirer creates an acquirer from run configuration.
func NewImageAcquirer(cfg *Config) *ImageAcquirer {
	return &ImageAcquirer{
		client:   &http.Client{Timeout: cfg.Timeout},
		baseURL:  cfg.ImageBaseURL,
		dryRun:   cfg.DryRun,
		throttle: downloadThrottle,
		assets:   make(map[string]*imageAsset),
	}
}

// Download fetches one image into destDir and returns its local filename.
// A URL already acquired this run is fetched only once; every further
// destination gets a local copy of the first download, never a second
// network call. URLs that fail sanitization or lack an image extension
// fail fast without retry.
func (d *ImageAcquirer) Download(rawURL, destDir string) (string, error) {
	normalized, err := d.normalizeURL(rawURL)
	if err != nil {
		return "", NewStageError(StageDownload, err)
	}

	key := sanitizeURLKey(normalized)
	filename := filenameFromURL(normalized)
	if !hasImageExtension(filename) {
		return "", NewStageError(StageDownload, fmt.Errorf("no recognized image extension: %s", filename))
	}

	d.mu.Lock()
	asset, seen := d.assets[key]
	if !seen {
		asset = &imageAsset{url: normalized, filename: filename, ready: make(chan struct{})}
		d.assets[key] = asset
	}
	d.mu.Unlock()

	if !seen {
		asset.path, asset.err = d.acquire(normalized, filename, destDir)
		close(asset.ready)
	} else {
		<-asset.ready
	}

	if asset.err != nil {
		return "", NewStageError(StageDownload, asset.err)
	}
	if err := d.materialize(asset, destDir); err != nil {
		return "", NewStageError(StageDownload, err)
	}
	return asset.filename, nil
}

// acquire performs the single fetch for a URL and returns the local path
// of the materialized file. Dry runs record the intent and keep no path.
func (d *ImageAcquirer) acquire(url, filename, destDir string) (string, error) {
	if d.dryRun {
		d.recordSkip()
		return "", nil
	}

	if err := os.MkdirAll(destDir, 0755); err != nil {
		return "", fmt.Errorf("creating images directory: %w", err)
	}

	destPath := filepath.Join(destDir, filename)
	if _, err := os.Stat(destPath); err == nil {
		// Idempotent re-runs: a file already on disk short-circuits.
		d.recordSkip()
		return destPath, nil
	}

	if err := d.fetchWithRetries(url, destPath); err != nil {
		d.recordFailure()
		return "", err
	}

	d.recordSuccess()
	time.Sleep(d.throttle)
	return destPath, nil
}

// materialize ensures the acquired file exists under destDir, copying
// from the first download when another article shares the URL. The first
// copy may have been renamed away by image analysis; in that case the
// URL is fetched again.
func (d *ImageAcquirer) materialize(asset *imageAsset, destDir string) error {
	if d.dryRun || asset.path == "" {
		return nil
	}

	destPath := filepath.Join(destDir, asset.filename)
	if destPath == asset.path {
		return nil
	}
	if _, err := os.Stat(destPath); err == nil {
		return nil
	}

	if err := os.MkdirAll(destDir, 0755); err != nil {
		return fmt.Errorf("creating images directory: %w", err)
	}

	if _, err := os.Stat(asset.path); err != nil {
		if err := d.fetchWithRetries(asset.url, destPath); err != nil {
			d.recordFailure()
			return err
		}
		d.recordSuccess()
		return nil
	}
	return copyFile(asset.path, destPath)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		os.Remove(dst)
		return err
	}
	return nil
}

// fetchWithRetries performs the network fetch with capped exponential
// backoff. Content-type and size violations are non-retryable.
func (d *ImageAcquirer) fetchWithRetries(url, destPath string) error {
	var lastErr error
	for attempt := 0; attempt < maxDownloadAttempts; attempt++ {
		if attempt > 0 {
			delay := baseRetryDelay << uint(attempt-1)
			if delay > maxRetryDelay {
				delay = maxRetryDelay
			}
			time.Sleep(delay)
		}

		retryable, err := d.fetch(url, destPath)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable {
			return err
		}
	}
	return fmt.Errorf("download failed after %d attempts: %w", maxDownloadAttempts, lastErr)
}

// fetch performs one download attempt. The boolean reports whether the
// failure may be retried.
func (d *ImageAcquirer) fetch(url, destPath string) (bool, error) {
	resp, err := d.client.Get(url)
	if err != nil {
		return true, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		retryable := resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests
		return retryable, fmt.Errorf("HTTP %d fetching %s", resp.StatusCode, url)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType != "" && !strings.HasPrefix(contentType, "image/") {
		return false, fmt.Errorf("unexpected content type %q for %s", contentType, url)
	}
	if resp.ContentLength > maxImageBytes {
		return false, fmt.Errorf("image too large (%d bytes) for %s", resp.ContentLength, url)
	}

	out, err := os.Create(destPath)
	if err != nil {
		return false, err
	}
	defer out.Close()

	written, err := io.Copy(out, io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		os.Remove(destPath)
		return true, err
	}
	if written > maxImageBytes {
		os.Remove(destPath)
		return false, fmt.Errorf("image exceeds size ceiling for %s", url)
	}

	d.recordBytes(written)
	return false, nil
}

// normalizeURL resolves protocol-relative and relative URLs and rejects
// anything that is not plain http(s).
func (d *ImageAcquirer) normalizeURL(rawURL string) (string, error) {
	url := strings.TrimSpace(rawURL)
	if url == "" {
		return "", fmt.Errorf("empty image URL")
	}
	if strings.HasPrefix(url, "//") {
		url = "https:" + url
	} else if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		if d.baseURL == "" {
			return "", fmt.Errorf("relative URL without base URL: %s", url)
		}
		url = strings.TrimRight(d.baseURL, "/") + "/" + strings.TrimLeft(url, "/")
	}
	if strings.ContainsAny(url, " \t\n\"'<>") {
		return "", fmt.Errorf("URL failed sanitization: %s", rawURL)
	}
	return url, nil
}

func (d *ImageAcquirer) recordSuccess() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stats.Downloaded++
}

func (d *ImageAcquirer) recordFailure() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stats.Failed++
}

func (d *ImageAcquirer) recordSkip() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stats.Skipped++
}

func (d *ImageAcquirer) recordBytes(n int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stats.TotalBytes += n
}

// Stats returns a copy of the download counters.
func (d *ImageAcquirer) Stats() DownloadStats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// filenameFromURL extracts the last path component, dropping query
// parameters. A missing image extension gets ".jpg" appended, matching
// how WordPress serves dynamically resized files.
func filenameFromURL(url string) string {
	if idx := strings.Index(url, "?"); idx != -1 {
		url = url[:idx]
	}
	if idx := strings.Index(url, "#"); idx != -1 {
		url = url[:idx]
	}

	parts := strings.Split(url, "/")
	filename := parts[len(parts)-1]
	if filename == "" {
		return "image.jpg"
	}
	if !hasImageExtension(filename) {
		filename += ".jpg"
	}
	return filename
}

func hasImageExtension(filename string) bool {
	lower := strings.ToLower(filename)
	for _, ext := range imageExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// sanitizeURLKey normalizes a URL for use as a dedup/cache key.
func sanitizeURLKey(url string) string {
	key := strings.TrimSpace(strings.ToLower(url))
	key = strings.TrimPrefix(key, "http://")
	key = strings.TrimPrefix(key, "https://")
	if idx := strings.Index(key, "?"); idx != -1 {
		key = key[:idx]
	}
	return strings.TrimSuffix(key, "/")
}

// imageVariable converts an image filename to a camelCase identifier for
// the generated import statements.
func imageVariable(filename string) string {
	if idx := strings.LastIndex(filename, "."); idx != -1 {
		filename = filename[:idx]
	}

	words := strings.FieldsFunc(filename, func(r rune) bool {
		return r == '-' || r == '_' || r == ' ' || r == '.'
	})
	if len(words) == 0 {
		return "image"
	}

	var sb strings.Builder
	sb.WriteString(strings.ToLower(words[0]))
	for _, word := range words[1:] {
		if word == "" {
			continue
		}
		sb.WriteString(strings.ToUpper(word[:1]))
		sb.WriteString(strings.ToLower(word[1:]))
	}

	result := sb.String()
	if result == "" {
		return "image"
	}
	if result[0] >= '0' && result[0] <= '9' {
		result = "img" + strings.ToUpper(result[:1]) + result[1:]
	}
	return result
}

package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func visionResponse(content string) string {
	body := map[string]interface{}{
		"choices": []map[string]interface{}{
			{"message": map[string]string{"content": content}},
		},
	}
	data, _ := json.Marshal(body)
	return string(data)
}

func newTestAnalyzer(t *testing.T, endpoint string) (*ImageAnalyzer, *ResourceCache) {
	t.Helper()
	cache := NewResourceCache(filepath.Join(t.TempDir(), "cache.json"))
	settings := VisionSettings{
		Endpoint:  endpoint,
		Model:     "test-model",
		Locale:    "de",
		MaxTokens: 300,
		CostPer:   0.01,
	}
	return NewImageAnalyzer(cache, settings, "test-key", 5*time.Second), cache
}

func TestAnalyzeParsesFields(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("Authorization = %q", auth)
		}
		w.Write([]byte(visionResponse(
			"BESCHREIBUNG: Eine Schale frischer Beeren auf einem Holztisch\nDATEINAME: schale-frischer-beeren",
		)))
	}))
	defer server.Close()

	analyzer, _ := newTestAnalyzer(t, server.URL)

	analysis, err := analyzer.Analyze("https://example.com/beeren.jpg", "nutrition", "")
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if analysis.AltText != "Eine Schale frischer Beeren auf einem Holztisch" {
		t.Errorf("AltText = %q", analysis.AltText)
	}
	if analysis.Filename != "schale-frischer-beeren" {
		t.Errorf("Filename = %q", analysis.Filename)
	}
	if analysis.CacheHit || analysis.Fallback {
		t.Errorf("flags = %+v, want fresh non-fallback result", analysis)
	}
}

func TestAnalyzeCacheHitSkipsNetwork(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte(visionResponse(
			"BESCHREIBUNG: Eine Schale frischer Beeren auf einem Holztisch\nDATEINAME: schale-frischer-beeren",
		)))
	}))
	defer server.Close()

	analyzer, cache := newTestAnalyzer(t, server.URL)
	url := "https://example.com/beeren.jpg"

	if _, err := analyzer.Analyze(url, "", ""); err != nil {
		t.Fatalf("first Analyze() error = %v", err)
	}

	second, err := analyzer.Analyze(url, "", "")
	if err != nil {
		t.Fatalf("second Analyze() error = %v", err)
	}
	if !second.CacheHit {
		t.Error("second Analyze() was not a cache hit")
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("service calls = %d, want 1", got)
	}
	if cache.Hits() != 1 {
		t.Errorf("cache hits = %d, want 1", cache.Hits())
	}
}

func TestAnalyzeFallbackOnServiceError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	analyzer, cache := newTestAnalyzer(t, server.URL)

	analysis, err := analyzer.Analyze("https://example.com/gruener-smoothie.jpg", "", "Rezept für einen grünen Smoothie")
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if !analysis.Fallback {
		t.Error("Analyze() did not fall back")
	}
	if analysis.AltText == "" || analysis.Filename == "" {
		t.Errorf("fallback produced empty fields: %+v", analysis)
	}

	// Fallback results are cached too, at zero cost.
	entry, ok := cache.Get("https://example.com/gruener-smoothie.jpg")
	if !ok {
		t.Fatal("fallback result was not cached")
	}
	if entry.Cost != 0 {
		t.Errorf("fallback cost = %v, want 0", entry.Cost)
	}
}

func TestAnalyzeFallbackOnMalformedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(visionResponse("Hier ist eine schoene Beschreibung ohne die verlangten Felder.")))
	}))
	defer server.Close()

	analyzer, _ := newTestAnalyzer(t, server.URL)

	analysis, err := analyzer.Analyze("https://example.com/wald-spaziergang.jpg", "", "")
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if !analysis.Fallback {
		t.Error("Analyze() accepted a response without the delimiter fields")
	}
}

func TestParseAnalysisFields(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{
			"valid",
			"BESCHREIBUNG: Eine ausführliche Beschreibung des Bildes hier\nDATEINAME: bild-beschreibung",
			false,
		},
		{
			"description too short",
			"BESCHREIBUNG: Kurz\nDATEINAME: bild-beschreibung",
			true,
		},
		{
			"description too long",
			"BESCHREIBUNG: " + strings.Repeat("a", 301) + "\nDATEINAME: bild-beschreibung",
			true,
		},
		{
			"filename too short",
			"BESCHREIBUNG: Eine ausführliche Beschreibung des Bildes hier\nDATEINAME: ab",
			true,
		},
		{
			"missing filename",
			"BESCHREIBUNG: Eine ausführliche Beschreibung des Bildes hier",
			true,
		},
		{
			"fields embedded in prose",
			"Gerne!\nBESCHREIBUNG: Eine ausführliche Beschreibung des Bildes hier\nDATEINAME: bild-beschreibung\nViel Erfolg!",
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := parseAnalysisFields(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Errorf("parseAnalysisFields() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestExtractKeywords(t *testing.T) {
	text := "Vitamin Vitamin Vitamin Sonne Sonne Winter und die der das"
	got := extractKeywords(text, 2)

	if len(got) != 2 || got[0] != "vitamin" || got[1] != "sonne" {
		t.Errorf("extractKeywords() = %v, want [vitamin sonne]", got)
	}
}

func TestPromptForCategory(t *testing.T) {
	if promptForCategory("Ernährung") != promptNutrition {
		t.Error("Ernährung did not select the nutrition prompt")
	}
	if promptForCategory("unbekannt") != promptDefault {
		t.Error("unknown category did not select the default prompt")
	}
}

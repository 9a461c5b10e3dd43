package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.BatchSize != 5 {
		t.Errorf("BatchSize = %d, want 5", cfg.BatchSize)
	}
	if cfg.Concurrency != 3 {
		t.Errorf("Concurrency = %d, want 3", cfg.Concurrency)
	}
	if !cfg.DownloadImages {
		t.Error("DownloadImages defaults to false")
	}
	if cfg.Vision.Locale != "de" {
		t.Errorf("Vision.Locale = %q, want de", cfg.Vision.Locale)
	}
}

func TestConfigValidate(t *testing.T) {
	input := filepath.Join(t.TempDir(), "export.xml")
	if err := os.WriteFile(input, []byte("<rss/>"), 0644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"missing input", func(c *Config) { c.InputFile = "" }, true},
		{"nonexistent input", func(c *Config) { c.InputFile = "/nirgendwo/export.xml" }, true},
		{"zero batch size", func(c *Config) { c.BatchSize = 0 }, true},
		{"zero concurrency", func(c *Config) { c.Concurrency = 0 }, true},
		{"analysis without endpoint", func(c *Config) {
			c.AnalyzeImages = true
			c.Vision.Endpoint = ""
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.InputFile = input
			tt.mutate(cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestApplySettings(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ApplySettings(&Settings{
		OutputDirectory: "/tmp/out",
		BatchSize:       10,
		Vision:          VisionSettings{Model: "anderes-modell"},
	})

	if cfg.OutputDir != "/tmp/out" {
		t.Errorf("OutputDir = %q", cfg.OutputDir)
	}
	if cfg.BatchSize != 10 {
		t.Errorf("BatchSize = %d", cfg.BatchSize)
	}
	if cfg.Vision.Model != "anderes-modell" {
		t.Errorf("Vision.Model = %q", cfg.Vision.Model)
	}
	// Values the file is silent on keep their defaults.
	if cfg.Concurrency != 3 {
		t.Errorf("Concurrency = %d, want 3", cfg.Concurrency)
	}
	if cfg.Vision.Locale != "de" {
		t.Errorf("Vision.Locale = %q, want de", cfg.Vision.Locale)
	}

	cfg.ApplySettings(nil) // must be a no-op
	if cfg.BatchSize != 10 {
		t.Error("ApplySettings(nil) changed the config")
	}
}

func TestLoadCategoryMappingMergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "categories.json")
	if err := os.WriteFile(path, []byte(`{"rezepte": "Ernährung"}`), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := DefaultConfig()
	if err := cfg.LoadCategoryMapping(path); err != nil {
		t.Fatalf("LoadCategoryMapping() error = %v", err)
	}

	if cfg.GetCategory("rezepte") != "Ernährung" {
		t.Error("custom mapping not loaded")
	}
	if cfg.GetCategory("gesundheit") != "Gesundheit" {
		t.Error("defaults lost after merge")
	}
}

func TestLoadSettingsMissingFile(t *testing.T) {
	settings, err := loadSettings(filepath.Join(t.TempDir(), "fehlt.yaml"))
	if err != nil {
		t.Fatalf("loadSettings() error = %v", err)
	}
	if settings != nil {
		t.Errorf("loadSettings() = %+v, want nil for missing file", settings)
	}
}

func TestGetAuthorFallsBackToOriginal(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AuthorMapping = map[string]string{"maria": "maria-schmidt"}

	if got := cfg.GetAuthor("maria"); got != "maria-schmidt" {
		t.Errorf("GetAuthor(maria) = %q", got)
	}
	if got := cfg.GetAuthor("unbekannt"); got != "unbekannt" {
		t.Errorf("GetAuthor(unbekannt) = %q", got)
	}
}

// config.go
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const defaultConfigDir = ".wp-importer"

// VisionSettings configures the external vision-description service. The
// endpoint speaks the OpenAI-compatible chat-completions protocol.
type VisionSettings struct {
	Endpoint  string  `yaml:"endpoint"`
	Model     string  `yaml:"model"`
	Locale    string  `yaml:"locale"`
	MaxTokens int     `yaml:"max_tokens"`
	CostPer   float64 `yaml:"cost_per_call"`
}

// Config holds all options for one conversion run. It is built from
// defaults, the optional settings file and command-line flags, and is
// passed to every component explicitly.
type Config struct {
	// Input/Output
	InputFile string
	OutputDir string

	// Filtering
	IncludeDrafts bool
	IncludePages  bool

	// Transform options
	DownloadImages     bool
	AnalyzeImages      bool
	GenerateTOC        bool
	PreserveShortcodes bool
	ImageBaseURL       string

	// Processing
	BatchSize   int
	Concurrency int
	Timeout     time.Duration

	// Output control
	DryRun  bool
	Force   bool
	Verbose bool
	Quiet   bool

	// External contracts
	AuthorMapping   map[string]string
	CategoryMapping map[string]string
	CacheFile       string
	Vision          VisionSettings
}

// Settings is the YAML structure of .wp-importer/settings.yaml.
type Settings struct {
	OutputDirectory string         `yaml:"output_directory"`
	BatchSize       int            `yaml:"batch_size"`
	Concurrency     int            `yaml:"concurrency"`
	CacheFile       string         `yaml:"cache_file"`
	Vision          VisionSettings `yaml:"vision"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		OutputDir:          "./output",
		DownloadImages:     true,
		AnalyzeImages:      false,
		GenerateTOC:        true,
		PreserveShortcodes: false,
		BatchSize:          5,
		Concurrency:        3,
		Timeout:            30 * time.Second,
		CacheFile:          filepath.Join(defaultConfigDir, "image-cache.json"),
		AuthorMapping:      make(map[string]string),
		CategoryMapping:    defaultCategoryMapping(),
		Vision: VisionSettings{
			Endpoint:  "https://api.openai.com",
			Model:     "gpt-4o-mini",
			Locale:    "de",
			MaxTokens: 300,
			CostPer:   0.01,
		},
	}
}

// defaultCategoryMapping maps source taxonomy terms to the destination's
// closed German category vocabulary.
func defaultCategoryMapping() map[string]string {
	return map[string]string{
		// English to German
		"nutrition":        "Ernährung",
		"health":           "Gesundheit",
		"wellness":         "Wellness",
		"mental health":    "Lifestyle & Psyche",
		"fitness":          "Lifestyle & Psyche",
		"immune system":    "Immunsystem",
		"prevention":       "Wissenswertes",
		"natural remedies": "Wissenswertes",
		"micronutrients":   "Mikronährstoffe",
		"organs":           "Organsysteme",
		"scientific":       "Wissenschaftliches",
		"interesting":      "Lesenswertes",

		// German categories (pass-through)
		"ernährung":          "Ernährung",
		"gesundheit":         "Gesundheit",
		"immunsystem":        "Immunsystem",
		"lesenswertes":       "Lesenswertes",
		"lifestyle & psyche": "Lifestyle & Psyche",
		"mikronährstoffe":    "Mikronährstoffe",
		"organsysteme":       "Organsysteme",
		"wissenschaftliches": "Wissenschaftliches",
		"wissenswertes":      "Wissenswertes",
	}
}

// DestinationCategories is the closed category vocabulary of the
// destination schema, supplied to the validator.
func DestinationCategories() []string {
	return []string{
		"Ernährung",
		"Gesundheit",
		"Wellness",
		"Lifestyle & Psyche",
		"Immunsystem",
		"Mikronährstoffe",
		"Organsysteme",
		"Wissenschaftliches",
		"Lesenswertes",
		"Wissenswertes",
	}
}

// Validate checks whether the configuration is usable for a convert run.
func (c *Config) Validate() error {
	if c.InputFile == "" {
		return fmt.Errorf("input file is required")
	}
	if _, err := os.Stat(c.InputFile); os.IsNotExist(err) {
		return fmt.Errorf("input file does not exist: %s", c.InputFile)
	}
	if c.OutputDir == "" {
		return fmt.Errorf("output directory is required")
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("batch size must be at least 1")
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1")
	}
	if c.AnalyzeImages && c.Vision.Endpoint == "" {
		return fmt.Errorf("image analysis requires a vision endpoint")
	}
	return nil
}

// ApplySettings overlays values from a settings file onto the config,
// keeping flag-provided values where the file is silent.
func (c *Config) ApplySettings(s *Settings) {
	if s == nil {
		return
	}
	if s.OutputDirectory != "" {
		c.OutputDir = s.OutputDirectory
	}
	if s.BatchSize > 0 {
		c.BatchSize = s.BatchSize
	}
	if s.Concurrency > 0 {
		c.Concurrency = s.Concurrency
	}
	if s.CacheFile != "" {
		c.CacheFile = s.CacheFile
	}
	if s.Vision.Endpoint != "" {
		c.Vision.Endpoint = s.Vision.Endpoint
	}
	if s.Vision.Model != "" {
		c.Vision.Model = s.Vision.Model
	}
	if s.Vision.Locale != "" {
		c.Vision.Locale = s.Vision.Locale
	}
	if s.Vision.MaxTokens > 0 {
		c.Vision.MaxTokens = s.Vision.MaxTokens
	}
}

// LoadAuthorMapping loads the author-identity mapping table from JSON.
func (c *Config) LoadAuthorMapping(filename string) error {
	if filename == "" {
		return nil
	}
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("reading author mapping: %w", err)
	}
	var mapping map[string]string
	if err := json.Unmarshal(data, &mapping); err != nil {
		return fmt.Errorf("parsing author mapping: %w", err)
	}
	c.AuthorMapping = mapping
	return nil
}

// LoadCategoryMapping loads a category mapping from JSON and merges it
// over the defaults.
func (c *Config) LoadCategoryMapping(filename string) error {
	if filename == "" {
		return nil
	}
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("reading category mapping: %w", err)
	}
	var mapping map[string]string
	if err := json.Unmarshal(data, &mapping); err != nil {
		return fmt.Errorf("parsing category mapping: %w", err)
	}
	for k, v := range mapping {
		c.CategoryMapping[k] = v
	}
	return nil
}

// GetAuthor returns the mapped author identifier or the original name.
func (c *Config) GetAuthor(original string) string {
	if mapped, ok := c.AuthorMapping[original]; ok {
		return mapped
	}
	return original
}

// GetCategory returns the mapped category or "" when no mapping exists.
func (c *Config) GetCategory(normalized string) string {
	return c.CategoryMapping[normalized]
}

// loadSettings reads the settings file, returning nil when it is absent.
func loadSettings(settingsPath string) (*Settings, error) {
	data, err := os.ReadFile(settingsPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading settings file %s: %w", settingsPath, err)
	}

	var settings Settings
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("parsing settings YAML: %w", err)
	}
	return &settings, nil
}

// getConfigPath returns the path to a file in the .wp-importer directory.
func getConfigPath(filename string) string {
	return filepath.Join(defaultConfigDir, filename)
}

// ensureConfigExists creates the config directory and a default settings
// file on first run. Users are expected to customize it.
func ensureConfigExists() error {
	if err := os.MkdirAll(defaultConfigDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	settingsPath := getConfigPath("settings.yaml")
	if _, err := os.Stat(settingsPath); os.IsNotExist(err) {
		defaultSettings := `output_directory: ./output
batch_size: 5
concurrency: 3
cache_file: .wp-importer/image-cache.json
vision:
  endpoint: https://api.openai.com
  model: gpt-4o-mini
  locale: de
  max_tokens: 300
  cost_per_call: 0.01
`
		if err := os.WriteFile(settingsPath, []byte(defaultSettings), 0644); err != nil {
			return fmt.Errorf("writing default settings: %w", err)
		}
	}

	return nil
}

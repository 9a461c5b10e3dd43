// types.go
package main

import (
	"fmt"
	"strconv"
	"time"
)

// Stage identifies the pipeline phase in which a failure occurred.
type Stage string

const (
	StageParse    Stage = "parse"
	StageConvert  Stage = "convert"
	StageValidate Stage = "validate"
	StageWrite    Stage = "write"
	StageDownload Stage = "download"
)

// StageError wraps an error with the pipeline stage it belongs to. Stage
// failures below the whole-document level are recorded and never abort
// sibling articles.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// NewStageError wraps err with a stage tag.
func NewStageError(stage Stage, err error) *StageError {
	return &StageError{Stage: stage, Err: err}
}

// ConversionError is one recorded per-article (or per-document) failure.
type ConversionError struct {
	Stage     Stage
	Message   string
	ArticleID string
	Title     string
}

func (e ConversionError) String() string {
	if e.Title != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Stage, e.Title, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Stage, e.Message)
}

// SourceArticle is one post or page extracted from the WordPress export.
// It is owned by the parser; downstream stages treat it as read-only.
type SourceArticle struct {
	ID           string
	Title        string
	Content      string
	Excerpt      string
	PubDate      time.Time
	ModDate      time.Time
	Author       string
	Categories   []string
	Tags         []string
	Status       string
	Type         string
	Slug         string
	Sticky       bool
	HeroImageURL string
	HeroImageAlt string
	CustomFields map[string]string
}

// Meta returns the value of a custom field, or "" when absent. Unknown
// keys are retained untouched in CustomFields.
func (a *SourceArticle) Meta(key string) string {
	return a.CustomFields[key]
}

// MetaInt returns a custom field parsed as an integer, or 0.
func (a *SourceArticle) MetaInt(key string) int {
	n, err := strconv.Atoi(a.CustomFields[key])
	if err != nil {
		return 0
	}
	return n
}

// SourceAttachment is a media item from the export. Articles reference
// attachments by id via the _thumbnail_id custom field; the parser
// resolves those references in a separate pass.
type SourceAttachment struct {
	ID          string
	Title       string
	URL         string
	Filename    string
	Alt         string
	Caption     string
	Description string
	MediaType   string
}

// SourceAuthor is an author record from the export channel.
type SourceAuthor struct {
	ID          string
	Login       string
	Email       string
	DisplayName string
}

// Editorial stance of an article, drawn from a closed three-value set.
const (
	GroupPro         = "pro"         // positive: tips, benefits
	GroupKontra      = "kontra"      // negative: risks, warnings
	GroupFragezeiten = "fragezeiten" // uncertain: questions, FAQ
)

// HeroImage is the destination hero-image descriptor.
type HeroImage struct {
	Src string
	Alt string
}

// MappedArticle is the destination-shaped entity produced by the mapper.
// The invariant that every local image referenced by Body or HeroImage
// appears in Images is enforced by the validator, not by construction.
type MappedArticle struct {
	ID          string
	Title       string
	Author      string
	Description string
	PubDatetime time.Time
	ModDatetime time.Time
	Keywords    []string
	Categories  []string
	Group       string
	Tags        []string
	Draft       bool
	Featured    bool
	HeroImage   *HeroImage
	Slug        string
	Path        string // YYYY-MM-DD-slug directory name
	Body        string
	Images      []string // local image filenames under images/
}

// CacheEntry is one persisted image-analysis result, keyed by sanitized
// source URL. Created on first successful analysis, read-only afterward.
type CacheEntry struct {
	URL       string    `json:"url"`
	Timestamp time.Time `json:"timestamp"`
	RawText   string    `json:"raw_text,omitempty"`
	AltText   string    `json:"alt_text"`
	Filename  string    `json:"filename"`
	Cost      float64   `json:"cost"`
}

// ConversionResult aggregates the outcome of one full run. It is written
// once by the orchestrator and immutable afterward.
type ConversionResult struct {
	PostsConverted   int
	PostsSkipped     int
	ImagesDownloaded int
	ImagesFailed     int
	Errors           []ConversionError
	Warnings         []string
	StartTime        time.Time
	EndTime          time.Time
}

// Duration returns the total run duration.
func (r *ConversionResult) Duration() time.Duration {
	return r.EndTime.Sub(r.StartTime)
}

// HasErrors reports whether any error was recorded during the run.
func (r *ConversionResult) HasErrors() bool {
	return len(r.Errors) > 0
}

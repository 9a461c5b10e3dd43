// writer.go
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// OutputWriter materializes mapped articles as MDX bundles:
// <output>/<YYYY-MM-DD-slug>/index.mdx plus an images/ subdirectory.
type OutputWriter struct {
	outputDir string
	dryRun    bool
	force     bool
}

// NewOutputWriter creates a writer rooted at the configured output
// directory.
func NewOutputWriter(cfg *Config) *OutputWriter {
	return &OutputWriter{
		outputDir: cfg.OutputDir,
		dryRun:    cfg.DryRun,
		force:     cfg.Force,
	}
}

// ArticleDir returns the absolute destination directory for a path
// component.
func (w *OutputWriter) ArticleDir(path string) string {
	return filepath.Join(w.outputDir, path)
}

// Prepare makes the article directory ready for writing. An existing
// completed bundle is moved aside to <dir>.bak.<unix> unless force is
// set, in which case it is overwritten in place. Prepare runs before any
// image lands in the directory, so the backup never swallows fresh files.
func (w *OutputWriter) Prepare(path string) (string, error) {
	dir := w.ArticleDir(path)
	if w.dryRun {
		return dir, nil
	}

	indexPath := filepath.Join(dir, "index.mdx")
	if _, err := os.Stat(indexPath); err == nil && !w.force {
		backup := fmt.Sprintf("%s.bak.%d", dir, time.Now().Unix())
		if err := os.Rename(dir, backup); err != nil {
			return "", NewStageError(StageWrite, fmt.Errorf("backing up %s: %w", dir, err))
		}
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", NewStageError(StageWrite, fmt.Errorf("creating article directory: %w", err))
	}
	return dir, nil
}

// Write renders and stores the article's index.mdx. The directory must
// have been prepared first.
func (w *OutputWriter) Write(a *MappedArticle) error {
	content := w.Render(a)
	if w.dryRun {
		return nil
	}

	indexPath := filepath.Join(w.ArticleDir(a.Path), "index.mdx")
	if err := os.WriteFile(indexPath, []byte(content), 0644); err != nil {
		return NewStageError(StageWrite, fmt.Errorf("writing %s: %w", indexPath, err))
	}
	return nil
}

// Render produces the full MDX document: frontmatter, image imports and
// body. Frontmatter keys keep a fixed order so diffs across runs stay
// readable.
func (w *OutputWriter) Render(a *MappedArticle) string {
	var sb strings.Builder

	sb.WriteString("---\n")
	writeField(&sb, "id", a.ID)
	writeField(&sb, "title", a.Title)
	writeField(&sb, "author", a.Author)
	writeField(&sb, "pubDatetime", a.PubDatetime.UTC().Format(time.RFC3339))
	writeField(&sb, "modDatetime", a.ModDatetime.UTC().Format(time.RFC3339))
	writeField(&sb, "description", a.Description)
	writeList(&sb, "keywords", a.Keywords)
	writeList(&sb, "categories", a.Categories)
	writeField(&sb, "group", a.Group)
	writeList(&sb, "tags", a.Tags)
	if a.HeroImage != nil {
		sb.WriteString("heroImage:\n")
		sb.WriteString("  src: " + yamlScalar(a.HeroImage.Src) + "\n")
		sb.WriteString("  alt: " + yamlScalar(a.HeroImage.Alt) + "\n")
	}
	sb.WriteString(fmt.Sprintf("draft: %t\n", a.Draft))
	sb.WriteString(fmt.Sprintf("featured: %t\n", a.Featured))
	sb.WriteString("---\n")

	if len(a.Images) > 0 {
		sb.WriteString("\n")
		for _, img := range a.Images {
			sb.WriteString(fmt.Sprintf("import %s from \"./images/%s\";\n", imageVariable(img), img))
		}
	}

	sb.WriteString("\n")
	sb.WriteString(strings.TrimSpace(a.Body))
	sb.WriteString("\n")

	return sb.String()
}

func writeField(sb *strings.Builder, key, value string) {
	sb.WriteString(key + ": " + yamlScalar(value) + "\n")
}

func writeList(sb *strings.Builder, key string, values []string) {
	if len(values) == 0 {
		sb.WriteString(key + ": []\n")
		return
	}
	sb.WriteString(key + ":\n")
	for _, v := range values {
		sb.WriteString("  - " + yamlScalar(v) + "\n")
	}
}

// yamlScalar quotes a value when it contains characters YAML would
// otherwise interpret.
func yamlScalar(value string) string {
	if value == "" {
		return `""`
	}
	if strings.ContainsAny(value, ":#\"'[]{}&*|>%@`,\n") ||
		strings.HasPrefix(value, " ") || strings.HasSuffix(value, " ") {
		escaped := strings.ReplaceAll(value, `\`, `\\`)
		escaped = strings.ReplaceAll(escaped, `"`, `\"`)
		escaped = strings.ReplaceAll(escaped, "\n", `\n`)
		return `"` + escaped + `"`
	}
	return value
}

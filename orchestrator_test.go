package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func orchestratorConfig(t *testing.T) *Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.OutputDir = t.TempDir()
	cfg.DownloadImages = false
	cfg.Quiet = true
	cfg.BatchSize = 5
	cfg.Concurrency = 3
	return cfg
}

func orchestratorArticle(i int) *SourceArticle {
	return &SourceArticle{
		ID:    fmt.Sprintf("%d", i),
		Title: fmt.Sprintf("Gesunde Tipps Nummer %d", i),
		Content: "<p>Ein ausreichend langer Absatz über gesunde Ernährung " +
			"und das Leben im Allgemeinen, damit die Prüfung zufrieden ist.</p>",
		Excerpt:      "Eine kurze, aber ausreichende Zusammenfassung.",
		PubDate:      time.Date(2023, 3, 1, 8, 0, 0, 0, time.UTC).AddDate(0, 0, i),
		ModDate:      time.Date(2023, 3, 1, 8, 0, 0, 0, time.UTC).AddDate(0, 0, i),
		Author:       "maria",
		Categories:   []string{"Ernährung"},
		Status:       "publish",
		Type:         "post",
		Slug:         fmt.Sprintf("gesunde-tipps-%d", i),
		CustomFields: map[string]string{},
	}
}

func TestOrchestratorRunIsolatesFailures(t *testing.T) {
	cfg := orchestratorConfig(t)

	var articles []*SourceArticle
	for i := 1; i <= 11; i++ {
		articles = append(articles, orchestratorArticle(i))
	}
	// One article without title or slug cannot be mapped.
	articles = append(articles, &SourceArticle{
		ID:           "99",
		Content:      "<p>Inhalt ohne Heimat.</p>",
		PubDate:      time.Date(2023, 3, 1, 8, 0, 0, 0, time.UTC),
		Status:       "publish",
		Type:         "post",
		CustomFields: map[string]string{},
	})

	o := NewPipelineOrchestrator(cfg, nil)
	result := o.Run(context.Background(), articles)

	if result.PostsConverted != 11 {
		t.Errorf("PostsConverted = %d, want 11", result.PostsConverted)
	}
	if result.PostsSkipped != 1 {
		t.Errorf("PostsSkipped = %d, want 1", result.PostsSkipped)
	}
	if len(result.Errors) != 1 {
		t.Fatalf("Errors = %v, want exactly one", result.Errors)
	}
	if result.Errors[0].Stage != StageConvert || result.Errors[0].ArticleID != "99" {
		t.Errorf("error = %+v, want convert failure for article 99", result.Errors[0])
	}
	if !result.HasErrors() {
		t.Error("HasErrors() = false")
	}
}

func TestOrchestratorWritesBundles(t *testing.T) {
	cfg := orchestratorConfig(t)
	articles := []*SourceArticle{orchestratorArticle(1)}

	o := NewPipelineOrchestrator(cfg, nil)
	result := o.Run(context.Background(), articles)

	if result.PostsConverted != 1 {
		t.Fatalf("PostsConverted = %d, want 1; errors: %v", result.PostsConverted, result.Errors)
	}

	indexPath := filepath.Join(cfg.OutputDir, "2023-03-02-gesunde-tipps-1", "index.mdx")
	if _, err := os.Stat(indexPath); err != nil {
		t.Errorf("expected bundle at %s: %v", indexPath, err)
	}
}

func TestOrchestratorDryRun(t *testing.T) {
	cfg := orchestratorConfig(t)
	cfg.DryRun = true

	o := NewPipelineOrchestrator(cfg, nil)
	result := o.Run(context.Background(), []*SourceArticle{orchestratorArticle(1)})

	if result.PostsConverted != 1 {
		t.Fatalf("PostsConverted = %d, want 1; errors: %v", result.PostsConverted, result.Errors)
	}

	entries, _ := os.ReadDir(cfg.OutputDir)
	if len(entries) != 0 {
		t.Errorf("dry run created %d entries", len(entries))
	}
}

func TestOrchestratorCancelledContext(t *testing.T) {
	cfg := orchestratorConfig(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var articles []*SourceArticle
	for i := 1; i <= 6; i++ {
		articles = append(articles, orchestratorArticle(i))
	}

	o := NewPipelineOrchestrator(cfg, nil)
	result := o.Run(ctx, articles)

	if result.PostsConverted != 0 {
		t.Errorf("PostsConverted = %d, want 0 after cancellation", result.PostsConverted)
	}
	if !result.HasErrors() {
		t.Error("cancelled run recorded no error")
	}
}

func TestOrchestratorRecoversPanics(t *testing.T) {
	cfg := orchestratorConfig(t)

	o := NewPipelineOrchestrator(cfg, nil)
	o.pipeline = &TransformPipeline{stages: []Transformer{
		{Name: "boom", Fn: func(content string, ctx *TransformContext) (string, error) {
			if ctx.Article.ID == "2" {
				panic("kaboom")
			}
			return content, nil
		}},
	}}

	articles := []*SourceArticle{orchestratorArticle(1), orchestratorArticle(2)}
	result := o.Run(context.Background(), articles)

	if result.PostsConverted != 1 {
		t.Errorf("PostsConverted = %d, want 1", result.PostsConverted)
	}
	if result.PostsSkipped != 1 {
		t.Errorf("PostsSkipped = %d, want 1", result.PostsSkipped)
	}
	if len(result.Errors) != 1 || result.Errors[0].ArticleID != "2" {
		t.Fatalf("Errors = %v, want one panic error for article 2", result.Errors)
	}
}

// orchestrator.go
package main

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"
)

const interBatchPause = 200 * time.Millisecond

// PipelineOrchestrator drives the full conversion: batching, bounded
// concurrency within a batch and per-article error isolation. One
// article's failure never aborts its siblings.
type PipelineOrchestrator struct {
	config    *Config
	pipeline  *TransformPipeline
	mapper    *SchemaMapper
	validator *ContentValidator
	writer    *OutputWriter
	acquirer  *ImageAcquirer
	analyzer  *ImageAnalyzer

	mu     sync.Mutex
	result *ConversionResult
}

// NewPipelineOrchestrator wires the pipeline components together. The
// analyzer may be nil when image analysis is disabled.
func NewPipelineOrchestrator(cfg *Config, analyzer *ImageAnalyzer) *PipelineOrchestrator {
	return &PipelineOrchestrator{
		config:    cfg,
		pipeline:  NewTransformPipeline(cfg),
		mapper:    NewSchemaMapper(cfg),
		validator: NewContentValidator(DestinationCategories()),
		writer:    NewOutputWriter(cfg),
		acquirer:  NewImageAcquirer(cfg),
		analyzer:  analyzer,
	}
}

// Run converts all articles and returns the aggregated result. The
// context cancels between batches and between articles.
func (o *PipelineOrchestrator) Run(ctx context.Context, articles []*SourceArticle) *ConversionResult {
	o.result = &ConversionResult{StartTime: time.Now()}

	var bar *progressbar.ProgressBar
	if !o.config.Quiet {
		bar = progressbar.NewOptions(len(articles),
			progressbar.OptionSetDescription("Converting"),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
	}

	batchSize := o.config.BatchSize
	for start := 0; start < len(articles); start += batchSize {
		if ctx.Err() != nil {
			o.recordError(ConversionError{Stage: StageConvert, Message: "run cancelled"})
			break
		}

		end := start + batchSize
		if end > len(articles) {
			end = len(articles)
		}

		o.runBatch(ctx, articles[start:end], bar)

		if end < len(articles) {
			time.Sleep(interBatchPause)
		}
	}

	stats := o.acquirer.Stats()
	o.result.ImagesDownloaded = stats.Downloaded
	o.result.ImagesFailed = stats.Failed
	o.result.EndTime = time.Now()
	return o.result
}

// runBatch converts one batch with bounded concurrency. Panics in a
// worker are contained and recorded as convert-stage errors.
func (o *PipelineOrchestrator) runBatch(ctx context.Context, batch []*SourceArticle, bar *progressbar.ProgressBar) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(o.config.Concurrency)

	for _, article := range batch {
		article := article
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					o.recordError(ConversionError{
						Stage:     StageConvert,
						Message:   fmt.Sprintf("panic: %v", r),
						ArticleID: article.ID,
						Title:     article.Title,
					})
					o.recordSkip()
				}
				if bar != nil {
					bar.Add(1)
				}
			}()

			if err := ctx.Err(); err != nil {
				return nil
			}

			o.convertArticle(article)
			return nil
		})
	}
	g.Wait()
}

// convertArticle runs one article through transform, map, validate and
// write. Every failure is recorded against this article only.
func (o *PipelineOrchestrator) convertArticle(article *SourceArticle) {
	slug := article.Slug
	if slug == "" {
		slug = slugify(article.Title)
	}
	path := OutputPath(article.PubDate, slug)

	// Prepare before the transform so freshly downloaded images are not
	// swept into the backup.
	articleDir, err := o.writer.Prepare(path)
	if err != nil {
		o.fail(StageWrite, article, err)
		return
	}

	tctx := &TransformContext{
		Article:    article,
		Config:     o.config,
		Acquirer:   o.acquirer,
		Analyzer:   o.analyzer,
		ArticleDir: articleDir,
	}

	hero := ResolveHeroImage(tctx)
	body := o.pipeline.Run(article.Content, tctx)

	mapped, err := o.mapper.Map(article, body, tctx.Images, hero)
	if err != nil {
		o.fail(StageConvert, article, err)
		return
	}

	if issues := o.validator.Validate(mapped); len(issues) > 0 {
		for _, issue := range issues {
			o.recordWarning(fmt.Sprintf("article %s (%s): %s", article.ID, article.Title, issue))
		}
	}
	for _, w := range tctx.Warnings {
		o.recordWarning(w)
	}

	if err := o.writer.Write(mapped); err != nil {
		o.fail(StageWrite, article, err)
		return
	}

	if o.config.Verbose {
		log.Printf("Converted %s -> %s", article.Title, mapped.Path)
	}
	o.recordSuccess()
}

func (o *PipelineOrchestrator) fail(stage Stage, article *SourceArticle, err error) {
	o.recordError(ConversionError{
		Stage:     stage,
		Message:   err.Error(),
		ArticleID: article.ID,
		Title:     article.Title,
	})
	o.recordSkip()
}

func (o *PipelineOrchestrator) recordError(e ConversionError) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.result.Errors = append(o.result.Errors, e)
}

func (o *PipelineOrchestrator) recordWarning(w string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.result.Warnings = append(o.result.Warnings, w)
}

func (o *PipelineOrchestrator) recordSuccess() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.result.PostsConverted++
}

func (o *PipelineOrchestrator) recordSkip() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.result.PostsSkipped++
}

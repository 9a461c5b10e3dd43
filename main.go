// main.go
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var (
	flagOutputDir       string
	flagIncludeDrafts   bool
	flagIncludePages    bool
	flagSkipImages      bool
	flagAnalyzeImages   bool
	flagNoTOC           bool
	flagPreserveCodes   bool
	flagImageBaseURL    string
	flagBatchSize       int
	flagConcurrency     int
	flagTimeout         time.Duration
	flagDryRun          bool
	flagForce           bool
	flagVerbose         bool
	flagQuiet           bool
	flagAuthorMapping   string
	flagCategoryMapping string
	flagCacheFile       string
	flagVisionKey       string
)

var rootCmd = &cobra.Command{
	Use:   "wp-importer",
	Short: "WordPress export to MDX content migration",
	Long: `Converts WordPress WXR export files into MDX article bundles
with downloaded images, German typography and destination schema mapping.`,
	SilenceUsage: true,
}

var convertCmd = &cobra.Command{
	Use:   "convert <export.xml>",
	Short: "Convert an export file to MDX bundles",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := buildConfig(args[0])
		if err != nil {
			return err
		}

		parser := NewDocumentParser(cfg.InputFile)
		parsed, err := parser.Parse()
		if err != nil {
			return err
		}

		articles := FilterArticles(parsed.Articles, cfg.IncludeDrafts, cfg.IncludePages)
		if len(articles) == 0 {
			log.Println("Nothing to convert")
			return nil
		}
		log.Printf("Converting %d of %d articles", len(articles), len(parsed.Articles))

		var analyzer *ImageAnalyzer
		var cache *ResourceCache
		if cfg.AnalyzeImages {
			apiKey := flagVisionKey
			if apiKey == "" {
				apiKey = os.Getenv("VISION_API_KEY")
			}
			if apiKey == "" {
				apiKey = os.Getenv("OPENAI_API_KEY")
			}
			if apiKey == "" {
				return fmt.Errorf("image analysis requires --vision-api-key or VISION_API_KEY")
			}

			cache = NewResourceCache(cfg.CacheFile)
			if err := cache.Load(); err != nil {
				return err
			}
			if dropped := cache.Validate(); dropped > 0 {
				log.Printf("Dropped %d malformed cache entries", dropped)
			}
			analyzer = NewImageAnalyzer(cache, cfg.Vision, apiKey, cfg.Timeout)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		orchestrator := NewPipelineOrchestrator(cfg, analyzer)
		result := orchestrator.Run(ctx, articles)

		printSummary(cfg, result, cache)

		if result.HasErrors() {
			return fmt.Errorf("%d articles failed", len(result.Errors))
		}
		return nil
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate <export.xml>",
	Short: "Parse an export file and report its contents",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		parser := NewDocumentParser(args[0])
		parsed, err := parser.Parse()
		if err != nil {
			return err
		}

		ch := parsed.Channel
		fmt.Printf("Site:       %s (%s)\n", ch.Title, ch.Link)
		fmt.Printf("Language:   %s\n", ch.Language)
		fmt.Printf("Items:      %d\n", ch.ItemCount)
		fmt.Printf("Articles:   %d\n", len(parsed.Articles))
		fmt.Printf("Media:      %d\n", len(parsed.Attachments))
		fmt.Printf("Authors:    %d\n", len(parsed.Authors))
		fmt.Printf("Categories: %d\n", len(parsed.Categories))

		types := make([]string, 0, len(ch.TypeCounts))
		for t := range ch.TypeCounts {
			types = append(types, t)
		}
		sort.Strings(types)
		for _, t := range types {
			fmt.Printf("  %-12s %d\n", t, ch.TypeCounts[t])
		}
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list <export.xml>",
	Short: "List the articles a convert run would process",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		parser := NewDocumentParser(args[0])
		parsed, err := parser.Parse()
		if err != nil {
			return err
		}

		articles := FilterArticles(parsed.Articles, flagIncludeDrafts, flagIncludePages)
		for _, a := range articles {
			slug := a.Slug
			if slug == "" {
				slug = slugify(a.Title)
			}
			fmt.Printf("%-8s %-10s %s -> %s\n", a.ID, a.Status, a.Title, OutputPath(a.PubDate, slug))
		}
		fmt.Printf("\n%d articles\n", len(articles))
		return nil
	},
}

var categoriesCmd = &cobra.Command{
	Use:   "categories <export.xml>",
	Short: "Show how source categories map onto the destination set",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		parser := NewDocumentParser(args[0])
		parsed, err := parser.Parse()
		if err != nil {
			return err
		}

		cfg := DefaultConfig()
		if flagCategoryMapping != "" {
			if err := cfg.LoadCategoryMapping(flagCategoryMapping); err != nil {
				return err
			}
		}
		mapper := NewSchemaMapper(cfg)

		sorted := append([]string(nil), parsed.Categories...)
		sort.Strings(sorted)
		for _, cat := range sorted {
			mapped := mapper.mapCategories([]string{cat})
			fmt.Printf("%-30s -> %s\n", cat, mapped[0])
		}
		return nil
	},
}

// buildConfig assembles the run configuration from defaults, the
// settings file and flags, in that precedence order.
func buildConfig(inputFile string) (*Config, error) {
	if err := ensureConfigExists(); err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	settings, err := loadSettings(getConfigPath("settings.yaml"))
	if err != nil {
		return nil, err
	}
	cfg.ApplySettings(settings)

	cfg.InputFile = inputFile
	if flagOutputDir != "" {
		cfg.OutputDir = flagOutputDir
	}
	cfg.IncludeDrafts = flagIncludeDrafts
	cfg.IncludePages = flagIncludePages
	cfg.DownloadImages = !flagSkipImages
	cfg.AnalyzeImages = flagAnalyzeImages
	cfg.GenerateTOC = !flagNoTOC
	cfg.PreserveShortcodes = flagPreserveCodes
	cfg.ImageBaseURL = flagImageBaseURL
	if flagBatchSize > 0 {
		cfg.BatchSize = flagBatchSize
	}
	if flagConcurrency > 0 {
		cfg.Concurrency = flagConcurrency
	}
	if flagTimeout > 0 {
		cfg.Timeout = flagTimeout
	}
	cfg.DryRun = flagDryRun
	cfg.Force = flagForce
	cfg.Verbose = flagVerbose
	cfg.Quiet = flagQuiet
	if flagCacheFile != "" {
		cfg.CacheFile = flagCacheFile
	}

	if err := cfg.LoadAuthorMapping(flagAuthorMapping); err != nil {
		return nil, err
	}
	if err := cfg.LoadCategoryMapping(flagCategoryMapping); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func printSummary(cfg *Config, result *ConversionResult, cache *ResourceCache) {
	if cfg.Quiet {
		return
	}

	fmt.Printf("\nConverted:  %d\n", result.PostsConverted)
	fmt.Printf("Skipped:    %d\n", result.PostsSkipped)
	fmt.Printf("Images:     %d downloaded, %d failed\n", result.ImagesDownloaded, result.ImagesFailed)
	fmt.Printf("Duration:   %s\n", result.Duration().Round(time.Millisecond))
	if cache != nil {
		fmt.Printf("Cache:      %d entries, %d hits, %.2f total cost\n",
			cache.Len(), cache.Hits(), cache.TotalCost())
	}

	if len(result.Warnings) > 0 {
		fmt.Printf("\n%d warnings:\n", len(result.Warnings))
		for _, w := range result.Warnings {
			fmt.Printf("  - %s\n", w)
		}
	}
	if len(result.Errors) > 0 {
		fmt.Printf("\n%d errors:\n", len(result.Errors))
		for _, e := range result.Errors {
			fmt.Printf("  - %s\n", e)
		}
	}
}

func init() {
	convertCmd.Flags().StringVarP(&flagOutputDir, "output", "o", "", "Output directory")
	convertCmd.Flags().BoolVar(&flagIncludeDrafts, "drafts", false, "Include draft posts")
	convertCmd.Flags().BoolVar(&flagIncludePages, "pages", false, "Include pages")
	convertCmd.Flags().BoolVar(&flagSkipImages, "skip-images", false, "Do not download images")
	convertCmd.Flags().BoolVar(&flagAnalyzeImages, "analyze-images", false, "Generate alt text via the vision service")
	convertCmd.Flags().BoolVar(&flagNoTOC, "no-toc", false, "Do not generate a table of contents")
	convertCmd.Flags().BoolVar(&flagPreserveCodes, "preserve-shortcodes", false, "Keep unknown shortcodes in the output")
	convertCmd.Flags().StringVar(&flagImageBaseURL, "image-base-url", "", "Base URL for relative image paths")
	convertCmd.Flags().IntVar(&flagBatchSize, "batch-size", 0, "Articles per batch")
	convertCmd.Flags().IntVar(&flagConcurrency, "concurrency", 0, "Concurrent conversions per batch")
	convertCmd.Flags().DurationVar(&flagTimeout, "timeout", 0, "HTTP timeout")
	convertCmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "Run without writing any files")
	convertCmd.Flags().BoolVar(&flagForce, "force", false, "Overwrite existing articles without backup")
	convertCmd.Flags().StringVar(&flagAuthorMapping, "author-mapping", "", "JSON file mapping source authors to destination ids")
	convertCmd.Flags().StringVar(&flagCategoryMapping, "category-mapping", "", "JSON file with extra category mappings")
	convertCmd.Flags().StringVar(&flagCacheFile, "cache-file", "", "Image analysis cache file")
	convertCmd.Flags().StringVar(&flagVisionKey, "vision-api-key", "", "API key for the vision service")

	listCmd.Flags().BoolVar(&flagIncludeDrafts, "drafts", false, "Include draft posts")
	listCmd.Flags().BoolVar(&flagIncludePages, "pages", false, "Include pages")

	categoriesCmd.Flags().StringVar(&flagCategoryMapping, "category-mapping", "", "JSON file with extra category mappings")

	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Verbose logging")
	rootCmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "Suppress progress and summary output")

	rootCmd.AddCommand(convertCmd, validateCmd, listCmd, categoriesCmd)
}

func main() {
	log.SetFlags(0)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

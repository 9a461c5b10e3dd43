// transform.go
package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// TransformContext carries per-article state through the pipeline stages.
// Stages communicate exclusively through the context and their string
// result; they never touch the source article.
type TransformContext struct {
	Article  *SourceArticle
	Config   *Config
	Acquirer *ImageAcquirer
	Analyzer *ImageAnalyzer

	// ArticleDir is the destination directory of the article; images land
	// in its images/ subdirectory.
	ArticleDir string

	// Images collects local image filenames in order of first reference.
	Images []string

	// Warnings collects non-fatal stage problems for the run summary.
	Warnings []string

	imageVars map[string]string // variable name -> filename
}

func (ctx *TransformContext) warnf(format string, args ...interface{}) {
	ctx.Warnings = append(ctx.Warnings, fmt.Sprintf(format, args...))
}

// addImage registers a local image file and returns the variable name its
// import statement will use. Variable collisions between distinct files
// get a numeric suffix.
func (ctx *TransformContext) addImage(filename string) string {
	if ctx.imageVars == nil {
		ctx.imageVars = make(map[string]string)
	}

	name := imageVariable(filename)
	for i := 2; ; i++ {
		existing, taken := ctx.imageVars[name]
		if !taken {
			ctx.imageVars[name] = filename
			ctx.Images = append(ctx.Images, filename)
			return name
		}
		if existing == filename {
			return name
		}
		name = fmt.Sprintf("%s%d", imageVariable(filename), i)
	}
}

// Transformer is one named pipeline stage.
type Transformer struct {
	Name string
	Fn   func(content string, ctx *TransformContext) (string, error)
}

// TransformPipeline runs an ordered list of stages over article content.
// A failing stage is logged, recorded as a warning and skipped; the
// content from the previous stage carries forward.
type TransformPipeline struct {
	stages []Transformer
}

// NewTransformPipeline builds the standard stage sequence for a run.
func NewTransformPipeline(cfg *Config) *TransformPipeline {
	converter := NewMarkdownConverter()

	stages := []Transformer{
		{Name: "sanitize", Fn: sanitizeContent},
		{Name: "shortcodes", Fn: processShortcodes},
		{Name: "markdown", Fn: func(content string, ctx *TransformContext) (string, error) {
			return converter.Convert(content)
		}},
		{Name: "punctuation", Fn: fixGermanPunctuation},
		{Name: "images", Fn: resolveImageTokens},
	}
	if cfg.GenerateTOC {
		stages = append(stages, Transformer{Name: "toc", Fn: generateTOC})
	}

	return &TransformPipeline{stages: stages}
}

// Run executes all stages in order and returns the final content.
func (p *TransformPipeline) Run(content string, ctx *TransformContext) string {
	for _, stage := range p.stages {
		next, err := stage.Fn(content, ctx)
		if err != nil {
			log.Printf("Stage %q failed for article %s: %v", stage.Name, ctx.Article.ID, err)
			ctx.warnf("article %s: stage %s skipped: %v", ctx.Article.ID, stage.Name, err)
			continue
		}
		content = next
	}
	return content
}

// sanitizeContent normalizes whitespace artifacts WordPress leaves behind.
func sanitizeContent(content string, _ *TransformContext) (string, error) {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.ReplaceAll(content, " ", " ")
	content = strings.ReplaceAll(content, "​", "")
	return content, nil
}

var (
	captionShortcodeRe = regexp.MustCompile(`(?s)\[caption[^\]]*\](.*?)\[/caption\]`)
	captionTextRe      = regexp.MustCompile(`(?s)(<img[^>]*>)(.*)`)
	embedShortcodeRe   = regexp.MustCompile(`(?s)\[embed[^\]]*\](.*?)\[/embed\]`)
	videoShortcodeRe   = regexp.MustCompile(`\[video[^\]]*(?:src|mp4)="([^"]+)"[^\]]*\](?:\[/video\])?`)
	galleryShortcodeRe = regexp.MustCompile(`\[gallery[^\]]*\]`)
	anyShortcodeRe     = regexp.MustCompile(`\[/?[a-zA-Z][a-zA-Z0-9_-]*(?:\s[^\]]*)?\]`)
)

// processShortcodes resolves WordPress shortcodes before markdown
// conversion. Captions become figures so the image rule keeps the text,
// embeds and videos become plain links, galleries are dropped with a
// warning. Unknown shortcodes are stripped unless preservation is on.
func processShortcodes(content string, ctx *TransformContext) (string, error) {
	content = captionShortcodeRe.ReplaceAllStringFunc(content, func(match string) string {
		inner := captionShortcodeRe.FindStringSubmatch(match)[1]
		parts := captionTextRe.FindStringSubmatch(inner)
		if parts == nil {
			return inner
		}
		img := parts[1]
		caption := strings.TrimSpace(parts[2])
		return fmt.Sprintf("<figure>%s<figcaption>%s</figcaption></figure>", img, caption)
	})

	content = embedShortcodeRe.ReplaceAllStringFunc(content, func(match string) string {
		url := strings.TrimSpace(embedShortcodeRe.FindStringSubmatch(match)[1])
		return fmt.Sprintf(`<a href="%s">%s</a>`, url, url)
	})

	content = videoShortcodeRe.ReplaceAllStringFunc(content, func(match string) string {
		url := videoShortcodeRe.FindStringSubmatch(match)[1]
		return fmt.Sprintf(`<a href="%s">Video</a>`, url)
	})

	if galleryShortcodeRe.MatchString(content) {
		ctx.warnf("article %s: gallery shortcode dropped", ctx.Article.ID)
		content = galleryShortcodeRe.ReplaceAllString(content, "")
	}

	if !ctx.Config.PreserveShortcodes {
		content = anyShortcodeRe.ReplaceAllString(content, "")
	}
	return content, nil
}

// Regions that punctuation replacement must never touch: import lines,
// JSX components, fenced code blocks, inline code and pending image
// tokens. Each is swapped out for an opaque marker and restored after.
var protectedRegionRe = regexp.MustCompile(
	"(?m)(^import .*$|<Image[^>]*/>|</?Blockquote>|```[\\s\\S]*?```|`[^`\n]*`|%%WPIMG:.*?%%)",
)

const protectedMarker = "\x00P%d\x00"

var protectedMarkerRe = regexp.MustCompile("\x00P(\\d+)\x00")

// fixGermanPunctuation converts straight quotes to German typographic
// quotes and normalizes dashes and ellipses, leaving protected regions
// byte-identical.
func fixGermanPunctuation(content string, _ *TransformContext) (string, error) {
	var protected []string
	content = protectedRegionRe.ReplaceAllStringFunc(content, func(match string) string {
		protected = append(protected, match)
		return fmt.Sprintf(protectedMarker, len(protected)-1)
	})

	content = replaceQuotePairs(content, `"`, "„", "“")
	content = replaceQuotePairs(content, "'", "‚", "‘")
	content = strings.ReplaceAll(content, "...", "…")
	content = strings.ReplaceAll(content, " - ", " – ")

	content = protectedMarkerRe.ReplaceAllStringFunc(content, func(match string) string {
		var idx int
		fmt.Sscanf(match, "\x00P%d\x00", &idx)
		if idx < 0 || idx >= len(protected) {
			return match
		}
		return protected[idx]
	})
	return content, nil
}

// replaceQuotePairs walks the text line by line and alternates opening
// and closing quotes. A line with an odd quote count is left untouched.
func replaceQuotePairs(content, quote, open, close string) string {
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		if strings.Count(line, quote)%2 != 0 {
			continue
		}
		var sb strings.Builder
		opened := false
		rest := line
		for {
			idx := strings.Index(rest, quote)
			if idx == -1 {
				sb.WriteString(rest)
				break
			}
			sb.WriteString(rest[:idx])
			if opened {
				sb.WriteString(close)
			} else {
				sb.WriteString(open)
			}
			opened = !opened
			rest = rest[idx+len(quote):]
		}
		lines[i] = sb.String()
	}
	return strings.Join(lines, "\n")
}

// resolveImageTokens replaces every image placeholder token with a JSX
// image component backed by a downloaded local file. Download failures
// degrade the token to a plain remote markdown image and count against
// the run. When image download is disabled, all tokens degrade.
func resolveImageTokens(content string, ctx *TransformContext) (string, error) {
	imagesDir := filepath.Join(ctx.ArticleDir, "images")

	return imageTokenRe.ReplaceAllStringFunc(content, func(match string) string {
		payload := imageTokenRe.FindStringSubmatch(match)[1]
		src, alt, caption, err := parseImageToken(payload)
		if err != nil {
			ctx.warnf("article %s: %v", ctx.Article.ID, err)
			return ""
		}

		if !ctx.Config.DownloadImages || ctx.Acquirer == nil {
			return fmt.Sprintf("![%s](%s)", alt, src)
		}

		filename, err := ctx.Acquirer.Download(src, imagesDir)
		if err != nil {
			ctx.warnf("article %s: image %s not downloaded: %v", ctx.Article.ID, src, err)
			return fmt.Sprintf("![%s](%s)", alt, src)
		}

		filename, alt = ctx.annotateImage(src, filename, alt, caption, imagesDir)

		varName := ctx.addImage(filename)
		component := fmt.Sprintf(`<Image src={%s} alt=%q />`, varName, alt)
		if caption != "" {
			component += "\n*" + caption + "*"
		}
		return component
	}), nil
}

// annotateImage runs the optional analyzer over a downloaded image,
// adopting its alt text and renaming the local file to its descriptive
// filename. Without an analyzer the existing alt text stands, falling
// back to a name derived from the filename. Dry runs never reach the
// analyzer: the service call would bill credits and the cache write
// would mutate the filesystem.
func (ctx *TransformContext) annotateImage(src, filename, alt, caption, imagesDir string) (string, string) {
	if ctx.Config.AnalyzeImages && ctx.Analyzer != nil && !ctx.Config.DryRun {
		category := ""
		if len(ctx.Article.Categories) > 0 {
			category = ctx.Article.Categories[0]
		}
		hint := strings.TrimSpace(alt + " " + caption + " " + ctx.Article.Title)

		analysis, err := ctx.Analyzer.Analyze(src, category, hint)
		if err != nil {
			ctx.warnf("article %s: image analysis failed for %s: %v", ctx.Article.ID, src, err)
		} else {
			alt = analysis.AltText
			if renamed, err := renameImage(imagesDir, filename, analysis.Filename, ctx.Config.DryRun); err == nil {
				filename = renamed
			}
		}
	}

	if strings.TrimSpace(alt) == "" {
		base := strings.TrimSuffix(filename, filepath.Ext(filename))
		alt = strings.ReplaceAll(strings.ReplaceAll(base, "-", " "), "_", " ")
	}
	return filename, alt
}

// renameImage moves a downloaded file to its descriptive name, keeping
// the original extension. An occupied target name is reused as is, which
// keeps re-runs idempotent.
func renameImage(imagesDir, oldName, newBase string, dryRun bool) (string, error) {
	newName := newBase + strings.ToLower(filepath.Ext(oldName))
	if newName == oldName {
		return oldName, nil
	}
	if dryRun {
		return newName, nil
	}

	oldPath := filepath.Join(imagesDir, oldName)
	newPath := filepath.Join(imagesDir, newName)
	if _, err := os.Stat(newPath); err == nil {
		os.Remove(oldPath)
		return newName, nil
	}
	if err := os.Rename(oldPath, newPath); err != nil {
		return oldName, err
	}
	return newName, nil
}

var headingRe = regexp.MustCompile(`(?m)^## (.+)$`)

// generateTOC inserts a table of contents before the first second-level
// heading when the article has at least three of them.
func generateTOC(content string, _ *TransformContext) (string, error) {
	matches := headingRe.FindAllStringSubmatch(content, -1)
	if len(matches) < 3 {
		return content, nil
	}

	var sb strings.Builder
	sb.WriteString("## Inhaltsverzeichnis\n\n")
	for _, m := range matches {
		heading := strings.TrimSpace(m[1])
		sb.WriteString(fmt.Sprintf("- [%s](#%s)\n", heading, headingAnchor(heading)))
	}
	sb.WriteString("\n")

	idx := headingRe.FindStringIndex(content)
	return content[:idx[0]] + sb.String() + content[idx[0]:], nil
}

// headingAnchor derives the markdown anchor id for a heading.
func headingAnchor(heading string) string {
	return slugify(heading)
}

// ResolveHeroImage downloads and optionally annotates the article's
// featured image, returning the destination descriptor and registering
// the file. A missing or failed hero image yields nil.
func ResolveHeroImage(ctx *TransformContext) *HeroImage {
	article := ctx.Article
	if article.HeroImageURL == "" {
		return nil
	}
	if !ctx.Config.DownloadImages || ctx.Acquirer == nil {
		return &HeroImage{Src: article.HeroImageURL, Alt: article.HeroImageAlt}
	}

	imagesDir := filepath.Join(ctx.ArticleDir, "images")
	filename, err := ctx.Acquirer.Download(article.HeroImageURL, imagesDir)
	if err != nil {
		ctx.warnf("article %s: hero image not downloaded: %v", article.ID, err)
		return nil
	}

	alt := article.HeroImageAlt
	filename, alt = ctx.annotateImage(article.HeroImageURL, filename, alt, "", imagesDir)
	ctx.addImage(filename)

	return &HeroImage{Src: "./images/" + filename, Alt: alt}
}

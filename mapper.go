// mapper.go
package main

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	defaultAuthor      = "gesundes-leben-team"
	defaultCategory    = "Wissenswertes"
	maxKeywords        = 10
	maxDescriptionLen  = 160
	featuredRecentDays = 30
	featuredMinChars   = 5000
	featuredMinQuality = 7
)

// Keyword sets for stance classification, checked against title and
// excerpt in this order. The first matching set wins; nothing matching
// defaults to pro.
var (
	proKeywords = []string{
		"vorteil", "tipp", "gesund", "stärk", "verbesser", "hilft",
		"fördert", "profitier", "positiv", "empfehl",
	}
	kontraKeywords = []string{
		"risiko", "gefahr", "warnung", "schädlich", "vermeiden",
		"nebenwirkung", "achtung", "vorsicht", "negativ", "problem",
	}
	fragezeitenKeywords = []string{
		"warum", "wieso", "weshalb", "wie funktioniert", "was ist",
		"stimmt es", "mythos", "frage", "wirklich", "?",
	}
)

// SchemaMapper converts parsed source articles into the destination
// content schema: closed category vocabulary, editorial stance, slug and
// directory path, keywords and the featured flag.
type SchemaMapper struct {
	config *Config
}

// NewSchemaMapper creates a mapper bound to the run configuration.
func NewSchemaMapper(cfg *Config) *SchemaMapper {
	return &SchemaMapper{config: cfg}
}

// Map produces the destination entity for one article. body is the
// transformed markdown, imageFiles the local images the transform
// collected for it.
func (m *SchemaMapper) Map(article *SourceArticle, body string, imageFiles []string, hero *HeroImage) (*MappedArticle, error) {
	if article == nil {
		return nil, fmt.Errorf("nil article")
	}

	id := article.ID
	if strings.TrimSpace(id) == "" {
		id = uuid.NewString()
	}

	slug := article.Slug
	if slug == "" {
		slug = slugify(article.Title)
	}
	if slug == "" {
		return nil, NewStageError(StageConvert, fmt.Errorf("article %s has no usable slug", id))
	}

	modDate := article.ModDate
	if modDate.Before(article.PubDate) {
		modDate = article.PubDate
	}

	mapped := &MappedArticle{
		ID:          id,
		Title:       article.Title,
		Author:      m.mapAuthor(article.Author),
		Description: m.buildDescription(article, body),
		PubDatetime: article.PubDate,
		ModDatetime: modDate,
		Keywords:    ExtractKeywords(article, maxKeywords),
		Categories:  m.mapCategories(article.Categories),
		Group:       classifyGroup(article),
		Tags:        article.Tags,
		Draft:       article.Status == "draft",
		HeroImage:   hero,
		Slug:        slug,
		Path:        OutputPath(article.PubDate, slug),
		Body:        body,
		Images:      imageFiles,
	}
	mapped.Featured = isFeatured(article, body)

	return mapped, nil
}

// OutputPath builds the destination directory name, YYYY-MM-DD-slug.
func OutputPath(pubDate time.Time, slug string) string {
	return pubDate.Format("2006-01-02") + "-" + slug
}

// mapAuthor resolves the destination author identifier, falling back to
// the site's team account for unmapped or empty names.
func (m *SchemaMapper) mapAuthor(original string) string {
	if strings.TrimSpace(original) == "" {
		return defaultAuthor
	}
	if mapped, ok := m.config.AuthorMapping[original]; ok {
		return mapped
	}
	return slugify(original)
}

// mapCategories maps source categories into the closed destination
// vocabulary: exact lookup first, then substring match against the
// mapping keys, then the default category. Duplicates collapse.
func (m *SchemaMapper) mapCategories(source []string) []string {
	seen := make(map[string]bool)
	var result []string

	add := func(category string) {
		if category != "" && !seen[category] {
			seen[category] = true
			result = append(result, category)
		}
	}

	for _, cat := range source {
		normalized := strings.ToLower(strings.TrimSpace(cat))
		if normalized == "" {
			continue
		}
		if mapped := m.config.GetCategory(normalized); mapped != "" {
			add(mapped)
			continue
		}
		add(m.partialCategoryMatch(normalized))
	}

	if len(result) == 0 {
		result = append(result, defaultCategory)
	}
	return result
}

// partialCategoryMatch finds a mapping whose key contains the source
// term or vice versa. Multiple candidates resolve to the one with the
// longest key, which is deterministic for a fixed mapping table.
func (m *SchemaMapper) partialCategoryMatch(normalized string) string {
	bestKey := ""
	for key := range m.config.CategoryMapping {
		if strings.Contains(key, normalized) || strings.Contains(normalized, key) {
			if len(key) > len(bestKey) {
				bestKey = key
			}
		}
	}
	if bestKey == "" {
		return defaultCategory
	}
	return m.config.CategoryMapping[bestKey]
}

// classifyGroup determines the editorial stance. An explicit marker
// wins: a group custom field, or a category/tag naming one of the three
// stances exactly. Otherwise title and excerpt are scanned against the
// keyword sets in pro, kontra, fragezeiten order.
func classifyGroup(article *SourceArticle) string {
	if g := explicitGroup(article); g != "" {
		return g
	}

	haystack := strings.ToLower(article.Title + " " + article.Excerpt)
	for _, kw := range proKeywords {
		if strings.Contains(haystack, kw) {
			return GroupPro
		}
	}
	for _, kw := range kontraKeywords {
		if strings.Contains(haystack, kw) {
			return GroupKontra
		}
	}
	for _, kw := range fragezeitenKeywords {
		if strings.Contains(haystack, kw) {
			return GroupFragezeiten
		}
	}
	return GroupPro
}

func explicitGroup(article *SourceArticle) string {
	candidates := []string{article.Meta("group")}
	candidates = append(candidates, article.Categories...)
	candidates = append(candidates, article.Tags...)

	for _, c := range candidates {
		switch strings.ToLower(strings.TrimSpace(c)) {
		case GroupPro:
			return GroupPro
		case GroupKontra:
			return GroupKontra
		case GroupFragezeiten:
			return GroupFragezeiten
		}
	}
	return ""
}

// buildDescription prefers the excerpt and falls back to the body's
// opening text, cut at a word boundary.
func (m *SchemaMapper) buildDescription(article *SourceArticle, body string) string {
	description := strings.TrimSpace(article.Excerpt)
	if description == "" {
		description = firstProse(body)
	}
	return truncateAtWord(description, maxDescriptionLen)
}

var markdownSyntaxRe = regexp.MustCompile(`[#*_\x60\[\]()!{}<>|]`)

// firstProse returns the first non-empty prose line of markdown, with
// syntax characters stripped.
func firstProse(body string) string {
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "import ") || strings.HasPrefix(line, "<") {
			continue
		}
		return strings.TrimSpace(markdownSyntaxRe.ReplaceAllString(line, ""))
	}
	return ""
}

func truncateAtWord(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	cut := string(runes[:max])
	if idx := strings.LastIndex(cut, " "); idx > 0 {
		cut = cut[:idx]
	}
	return cut + "…"
}

// ExtractKeywords derives up to max keywords from title, tags and
// excerpt: tags first, then frequent content words.
func ExtractKeywords(article *SourceArticle, max int) []string {
	seen := make(map[string]bool)
	var keywords []string

	add := func(kw string) {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" || seen[kw] || len(keywords) >= max {
			return
		}
		seen[kw] = true
		keywords = append(keywords, kw)
	}

	for _, tag := range article.Tags {
		add(tag)
	}
	for _, kw := range extractKeywords(article.Title+" "+article.Excerpt, max) {
		add(kw)
	}
	return keywords
}

// isFeatured decides the featured flag: sticky posts always, otherwise
// recent long articles with a high editorial quality score.
func isFeatured(article *SourceArticle, body string) bool {
	if article.Sticky {
		return true
	}
	recent := time.Since(article.PubDate) <= featuredRecentDays*24*time.Hour
	long := len(body) >= featuredMinChars
	quality := article.MetaInt("quality_score")
	return recent && long && quality > featuredMinQuality
}

var (
	slugInvalidRe  = regexp.MustCompile(`[^a-z0-9-]+`)
	slugDashRunRe  = regexp.MustCompile(`-{2,}`)
	umlautReplacer = strings.NewReplacer(
		"ä", "ae", "ö", "oe", "ü", "ue", "ß", "ss",
		"Ä", "ae", "Ö", "oe", "Ü", "ue",
	)
)

// slugify converts text to a URL-safe slug, transliterating German
// umlauts rather than dropping them.
func slugify(text string) string {
	slug := strings.ToLower(strings.TrimSpace(text))
	slug = umlautReplacer.Replace(slug)
	slug = strings.ReplaceAll(slug, " ", "-")
	slug = slugInvalidRe.ReplaceAllString(slug, "-")
	slug = slugDashRunRe.ReplaceAllString(slug, "-")
	return strings.Trim(slug, "-")
}

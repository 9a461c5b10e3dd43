// parser.go
package main

import (
	"encoding/xml"
	"fmt"
	"html"
	"log"
	"os"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
)

// Raw WordPress export (WXR) structures. Field names follow the WXR 1.2
// namespaces.

type wxrExport struct {
	Channel wxrChannel `xml:"channel"`
}

type wxrChannel struct {
	Title       string      `xml:"title"`
	Link        string      `xml:"link"`
	Description string      `xml:"description"`
	Language    string      `xml:"language"`
	Items       []wxrItem   `xml:"item"`
	Authors     []wxrAuthor `xml:"author"`
}

type wxrAuthor struct {
	ID          int    `xml:"author_id"`
	Login       string `xml:"author_login"`
	Email       string `xml:"author_email"`
	DisplayName string `xml:"author_display_name"`
}

type wxrItem struct {
	Title      string        `xml:"title"`
	Link       string        `xml:"link"`
	PubDate    string        `xml:"pubDate"`
	Creator    string        `xml:"http://purl.org/dc/elements/1.1/ creator"`
	GUID       string        `xml:"guid"`
	Content    string        `xml:"http://purl.org/rss/1.0/modules/content/ encoded"`
	Excerpt    string        `xml:"http://wordpress.org/export/1.2/excerpt/ encoded"`
	PostID     int           `xml:"http://wordpress.org/export/1.2/ post_id"`
	PostDate   string        `xml:"http://wordpress.org/export/1.2/ post_date"`
	PostName   string        `xml:"http://wordpress.org/export/1.2/ post_name"`
	PostType   string        `xml:"http://wordpress.org/export/1.2/ post_type"`
	Status     string        `xml:"http://wordpress.org/export/1.2/ status"`
	IsSticky   int           `xml:"http://wordpress.org/export/1.2/ is_sticky"`
	Categories []wxrCategory `xml:"category"`
	PostMeta   []wxrPostMeta `xml:"http://wordpress.org/export/1.2/ postmeta"`
}

type wxrCategory struct {
	Domain   string `xml:"domain,attr"`
	Nicename string `xml:"nicename,attr"`
	Value    string `xml:",chardata"`
}

type wxrPostMeta struct {
	Key   string `xml:"http://wordpress.org/export/1.2/ meta_key"`
	Value string `xml:"http://wordpress.org/export/1.2/ meta_value"`
}

// ChannelInfo summarizes the export channel for the validate command.
type ChannelInfo struct {
	Title      string
	Link       string
	Language   string
	ItemCount  int
	TypeCounts map[string]int
}

// ParseResult holds the typed entities extracted from one export file.
type ParseResult struct {
	Articles    []*SourceArticle
	Attachments []*SourceAttachment
	Authors     []SourceAuthor
	Categories  []string
	Channel     ChannelInfo
}

// DocumentParser reads a WordPress WXR export into typed entities,
// isolating per-entity extraction failures.
type DocumentParser struct {
	filename    string
	titlePolicy *bluemonday.Policy
	bodyPolicy  *bluemonday.Policy
}

// NewDocumentParser creates a parser for the given export file.
func NewDocumentParser(filename string) *DocumentParser {
	return &DocumentParser{
		filename:    filename,
		titlePolicy: bluemonday.StrictPolicy(),
		bodyPolicy:  bluemonday.UGCPolicy(),
	}
}

// Parse reads and parses the export file. A malformed top-level document
// aborts with a parse-stage error; individual broken entities are logged
// and dropped.
func (p *DocumentParser) Parse() (*ParseResult, error) {
	data, err := os.ReadFile(p.filename)
	if err != nil {
		return nil, NewStageError(StageParse, fmt.Errorf("reading export file: %w", err))
	}
	return p.parseBytes(data)
}

func (p *DocumentParser) parseBytes(data []byte) (*ParseResult, error) {
	var export wxrExport
	if err := xml.Unmarshal(data, &export); err != nil {
		return nil, NewStageError(StageParse, fmt.Errorf("parsing export XML: %w", err))
	}

	result := &ParseResult{
		Channel: ChannelInfo{
			Title:      export.Channel.Title,
			Link:       export.Channel.Link,
			Language:   export.Channel.Language,
			ItemCount:  len(export.Channel.Items),
			TypeCounts: make(map[string]int),
		},
	}

	for _, a := range export.Channel.Authors {
		result.Authors = append(result.Authors, SourceAuthor{
			ID:          fmt.Sprintf("%d", a.ID),
			Login:       a.Login,
			Email:       a.Email,
			DisplayName: a.DisplayName,
		})
	}

	categorySeen := make(map[string]bool)
	for i := range export.Channel.Items {
		item := &export.Channel.Items[i]
		result.Channel.TypeCounts[item.PostType]++

		switch item.PostType {
		case "attachment":
			att, err := p.extractAttachment(item)
			if err != nil {
				log.Printf("Skipping attachment %d: %v", item.PostID, err)
				continue
			}
			result.Attachments = append(result.Attachments, att)
		case "post", "page":
			article, err := p.extractArticle(item)
			if err != nil {
				log.Printf("Skipping item %d (%q): %v", item.PostID, item.Title, err)
				continue
			}
			result.Articles = append(result.Articles, article)
			for _, c := range article.Categories {
				if !categorySeen[c] {
					categorySeen[c] = true
					result.Categories = append(result.Categories, c)
				}
			}
		default:
			// Revisions, nav menu items, auto-drafts and other machinery
			// are skipped without counting as errors.
		}
	}

	p.resolveFeaturedImages(result)

	return result, nil
}

// extractArticle converts one raw item into a SourceArticle. All text
// fields pass through the sanitizing filter before being stored.
func (p *DocumentParser) extractArticle(item *wxrItem) (*SourceArticle, error) {
	if item.Status == "trash" {
		return nil, fmt.Errorf("item is trashed")
	}
	if strings.TrimSpace(item.Title) == "" && strings.TrimSpace(item.Content) == "" {
		return nil, fmt.Errorf("item has neither title nor content")
	}

	pubDate, err := parseWXRDate(item.PubDate, item.PostDate)
	if err != nil {
		log.Printf("Item %d: %v, falling back to current time", item.PostID, err)
		pubDate = time.Now()
	}

	article := &SourceArticle{
		ID:           fmt.Sprintf("%d", item.PostID),
		Title:        p.sanitizeText(item.Title),
		Content:      p.bodyPolicy.Sanitize(item.Content),
		Excerpt:      p.sanitizeText(item.Excerpt),
		PubDate:      pubDate,
		ModDate:      pubDate,
		Author:       item.Creator,
		Status:       item.Status,
		Type:         item.PostType,
		Slug:         item.PostName,
		Sticky:       item.IsSticky == 1,
		CustomFields: make(map[string]string),
	}

	for _, cat := range item.Categories {
		value := p.sanitizeText(cat.Value)
		switch cat.Domain {
		case "category":
			article.Categories = append(article.Categories, value)
		case "post_tag":
			article.Tags = append(article.Tags, value)
		}
	}

	for _, meta := range item.PostMeta {
		article.CustomFields[meta.Key] = meta.Value
	}

	return article, nil
}

// extractAttachment converts a raw attachment item.
func (p *DocumentParser) extractAttachment(item *wxrItem) (*SourceAttachment, error) {
	url := strings.TrimSpace(item.GUID)
	if url == "" {
		url = strings.TrimSpace(metaValue(item, "_wp_attached_file"))
	}
	if url == "" {
		return nil, fmt.Errorf("attachment has no source URL")
	}

	return &SourceAttachment{
		ID:          fmt.Sprintf("%d", item.PostID),
		Title:       p.sanitizeText(item.Title),
		URL:         url,
		Filename:    filenameFromURL(url),
		Alt:         p.sanitizeText(metaValue(item, "_wp_attachment_image_alt")),
		Caption:     p.sanitizeText(item.Excerpt),
		Description: p.sanitizeText(item.Content),
		MediaType:   mediaTypeForFilename(filenameFromURL(url)),
	}, nil
}

// resolveFeaturedImages looks up each article's _thumbnail_id inside the
// attachment list in a separate pass, avoiding forward-reference ordering
// problems in the export. Missing ids keep no hero URL.
func (p *DocumentParser) resolveFeaturedImages(result *ParseResult) {
	byID := make(map[string]*SourceAttachment, len(result.Attachments))
	for _, att := range result.Attachments {
		byID[att.ID] = att
	}

	for _, article := range result.Articles {
		thumbID := article.Meta("_thumbnail_id")
		if thumbID == "" {
			continue
		}
		att, ok := byID[thumbID]
		if !ok {
			log.Printf("Article %s references missing attachment %s", article.ID, thumbID)
			continue
		}
		article.HeroImageURL = att.URL
		article.HeroImageAlt = att.Alt
		if article.HeroImageAlt == "" {
			article.HeroImageAlt = att.Title
		}
	}
}

// sanitizeText strips all markup from a short text field and decodes the
// entities the sanitizer leaves behind.
func (p *DocumentParser) sanitizeText(s string) string {
	return strings.TrimSpace(html.UnescapeString(p.titlePolicy.Sanitize(s)))
}

// FilterArticles keeps the articles a run should convert: published posts
// by default, drafts and pages by option. Trash never survives parsing.
func FilterArticles(articles []*SourceArticle, includeDrafts, includePages bool) []*SourceArticle {
	var filtered []*SourceArticle
	for _, a := range articles {
		if a.Status == "draft" && !includeDrafts {
			continue
		}
		if a.Type == "page" && !includePages {
			continue
		}
		if a.Status != "publish" && a.Status != "draft" && a.Status != "private" {
			continue
		}
		filtered = append(filtered, a)
	}
	return filtered
}

// parseWXRDate tries the date formats WordPress exports use.
func parseWXRDate(candidates ...string) (time.Time, error) {
	formats := []string{
		time.RFC1123Z,
		time.RFC1123,
		time.RFC3339,
		"2006-01-02 15:04:05",
		"Mon, 02 Jan 2006 15:04:05 -0700",
	}

	for _, dateStr := range candidates {
		dateStr = strings.TrimSpace(dateStr)
		if dateStr == "" {
			continue
		}
		for _, format := range formats {
			if t, err := time.Parse(format, dateStr); err == nil {
				return t, nil
			}
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse date from %q", strings.Join(candidates, ", "))
}

func metaValue(item *wxrItem, key string) string {
	for _, meta := range item.PostMeta {
		if meta.Key == key {
			return meta.Value
		}
	}
	return ""
}

func mediaTypeForFilename(filename string) string {
	lower := strings.ToLower(filename)
	switch {
	case strings.HasSuffix(lower, ".png"):
		return "image/png"
	case strings.HasSuffix(lower, ".gif"):
		return "image/gif"
	case strings.HasSuffix(lower, ".webp"):
		return "image/webp"
	case strings.HasSuffix(lower, ".svg"):
		return "image/svg+xml"
	case strings.HasSuffix(lower, ".jpg"), strings.HasSuffix(lower, ".jpeg"):
		return "image/jpeg"
	default:
		return "application/octet-stream"
	}
}

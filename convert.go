// convert.go
package main

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
)

// Image placeholder tokens. The HTML-to-markdown conversion is synchronous
// while image resolution may hit the network, so every image element is
// replaced by a uniquely delimited token carrying URL, alt and caption;
// a later pass resolves each token (two-pass placeholder-swap). Fields are
// query-escaped, so neither "|" nor "%%" can appear inside them.
const (
	imageTokenOpen  = "%%WPIMG:"
	imageTokenClose = "%%"
)

var imageTokenRe = regexp.MustCompile(`%%WPIMG:(.*?)%%`)

// imageToken encodes an image reference as a placeholder token.
func imageToken(src, alt, caption string) string {
	fields := []string{
		url.QueryEscape(src),
		url.QueryEscape(alt),
		url.QueryEscape(caption),
	}
	return imageTokenOpen + strings.Join(fields, "|") + imageTokenClose
}

// parseImageToken decodes the fields of one matched token payload.
func parseImageToken(payload string) (src, alt, caption string, err error) {
	parts := strings.Split(payload, "|")
	if len(parts) != 3 {
		return "", "", "", fmt.Errorf("malformed image token: %q", payload)
	}
	src, err = url.QueryUnescape(parts[0])
	if err != nil {
		return "", "", "", err
	}
	alt, err = url.QueryUnescape(parts[1])
	if err != nil {
		return "", "", "", err
	}
	caption, err = url.QueryUnescape(parts[2])
	if err != nil {
		return "", "", "", err
	}
	return src, alt, caption, nil
}

// MarkdownConverter turns sanitized article HTML into markdown, emitting
// image placeholder tokens for later resolution.
type MarkdownConverter struct {
	converter *md.Converter
}

// NewMarkdownConverter creates a converter with the blog's custom rules.
func NewMarkdownConverter() *MarkdownConverter {
	converter := md.NewConverter("", true, nil)
	addCustomRules(converter)
	return &MarkdownConverter{converter: converter}
}

// Convert converts HTML content to markdown and post-processes it.
func (c *MarkdownConverter) Convert(htmlContent string) (string, error) {
	markdown, err := c.converter.ConvertString(htmlContent)
	if err != nil {
		return "", fmt.Errorf("converting HTML to markdown: %w", err)
	}
	return postProcessMarkdown(markdown), nil
}

// addCustomRules registers conversion rules for WordPress markup.
func addCustomRules(converter *md.Converter) {
	// Figures become image tokens; the figcaption travels along.
	converter.AddRules(md.Rule{
		Filter: []string{"figure"},
		Replacement: func(content string, selec *goquery.Selection, options *md.Options) *string {
			img := selec.Find("img")
			src, ok := img.Attr("src")
			if !ok || src == "" {
				return &content
			}
			alt, _ := img.Attr("alt")
			caption := strings.TrimSpace(selec.Find("figcaption").Text())

			result := "\n" + imageToken(src, alt, caption) + "\n"
			return &result
		},
	})

	// Bare images outside figures.
	converter.AddRules(md.Rule{
		Filter: []string{"img"},
		Replacement: func(content string, selec *goquery.Selection, options *md.Options) *string {
			if selec.ParentsFiltered("figure").Length() > 0 {
				empty := ""
				return &empty
			}
			src, ok := selec.Attr("src")
			if !ok || src == "" {
				empty := ""
				return &empty
			}
			alt, _ := selec.Attr("alt")
			result := "\n" + imageToken(src, alt, "") + "\n"
			return &result
		},
	})

	// Gutenberg block wrappers carry no meaning in the destination.
	converter.AddRules(md.Rule{
		Filter: []string{"div"},
		Replacement: func(content string, selec *goquery.Selection, options *md.Options) *string {
			return &content
		},
	})

	// Blockquotes become the destination's component.
	converter.AddRules(md.Rule{
		Filter: []string{"blockquote"},
		Replacement: func(content string, selec *goquery.Selection, options *md.Options) *string {
			result := fmt.Sprintf("\n<Blockquote>\n%s\n</Blockquote>\n", strings.TrimSpace(content))
			return &result
		},
	})
}

var (
	blankLinesRe = regexp.MustCompile(`\n{3,}`)
	htmlNoteRe   = regexp.MustCompile(`<!--[\s\S]*?-->`)
	listItemRe   = regexp.MustCompile(`^(?:[-*] |\d+\. )`)
)

// postProcessMarkdown cleans up converter output: editor comments,
// excessive blank lines, spacing around lists and headings.
func postProcessMarkdown(markdown string) string {
	markdown = htmlNoteRe.ReplaceAllString(markdown, "")
	markdown = blankLinesRe.ReplaceAllString(markdown, "\n\n")
	markdown = fixListSpacing(markdown)
	markdown = fixHeadingSpacing(markdown)
	return strings.TrimSpace(markdown)
}

func fixListSpacing(markdown string) string {
	lines := strings.Split(markdown, "\n")
	var result []string

	inList := false
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		isItem := listItemRe.MatchString(trimmed)

		switch {
		case isItem && !inList:
			if i > 0 && len(result) > 0 && result[len(result)-1] != "" {
				result = append(result, "")
			}
			inList = true
		case !isItem && inList && trimmed != "":
			result = append(result, "")
			inList = false
		case !isItem:
			inList = false
		}
		result = append(result, line)
	}

	return strings.Join(result, "\n")
}

func fixHeadingSpacing(markdown string) string {
	lines := strings.Split(markdown, "\n")
	var result []string

	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "#") {
			if len(result) > 0 && result[len(result)-1] != "" {
				result = append(result, "")
			}
		}
		result = append(result, line)
	}

	return strings.Join(result, "\n")
}

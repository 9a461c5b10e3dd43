// validator.go
package main

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	maxTags        = 8
	maxTagLength   = 40
	maxDescription = 200
	minTitleLen    = 3
	minDescLen     = 10
	minBodyLen     = 50
)

// ValidationIssue is one schema or invariant violation found in a mapped
// article.
type ValidationIssue struct {
	Field   string
	Message string
}

func (i ValidationIssue) String() string {
	return fmt.Sprintf("%s: %s", i.Field, i.Message)
}

// ContentValidator checks mapped articles against the destination
// schema. Validation never blocks writing; its issues surface as run
// warnings.
type ContentValidator struct {
	allowedCategories map[string]bool
}

// NewContentValidator creates a validator for the closed category set.
func NewContentValidator(categories []string) *ContentValidator {
	allowed := make(map[string]bool, len(categories))
	for _, c := range categories {
		allowed[c] = true
	}
	return &ContentValidator{allowedCategories: allowed}
}

var (
	slugPatternRe   = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)
	pathPatternRe   = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}-[a-z0-9]+(?:-[a-z0-9]+)*$`)
	localImageRefRe = regexp.MustCompile(`\./images/([^)\s"'}]+)`)
)

// Validate returns every violation found; an empty slice means the
// article is schema-clean.
func (v *ContentValidator) Validate(a *MappedArticle) []ValidationIssue {
	var issues []ValidationIssue
	add := func(field, format string, args ...interface{}) {
		issues = append(issues, ValidationIssue{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if len(strings.TrimSpace(a.Title)) < minTitleLen {
		add("title", "shorter than %d characters", minTitleLen)
	}
	if len(strings.TrimSpace(a.Description)) < minDescLen {
		add("description", "shorter than %d characters", minDescLen)
	}
	if len([]rune(a.Description)) > maxDescription {
		add("description", "longer than %d characters", maxDescription)
	}
	if len(strings.TrimSpace(a.Body)) < minBodyLen {
		add("body", "shorter than %d characters", minBodyLen)
	}
	if a.Author == "" {
		add("author", "missing")
	}
	if a.PubDatetime.IsZero() {
		add("pubDatetime", "missing")
	}
	if a.ModDatetime.Before(a.PubDatetime) {
		add("modDatetime", "earlier than pubDatetime")
	}

	if len(a.Keywords) > maxKeywords {
		add("keywords", "more than %d entries", maxKeywords)
	}
	if len(a.Tags) > maxTags {
		add("tags", "more than %d entries", maxTags)
	}
	for _, tag := range a.Tags {
		if len(tag) > maxTagLength {
			add("tags", "tag %q longer than %d characters", tag, maxTagLength)
		}
	}

	if len(a.Categories) == 0 {
		add("categories", "missing")
	}
	for _, cat := range a.Categories {
		if !v.allowedCategories[cat] {
			add("categories", "%q is not in the destination vocabulary", cat)
		}
	}

	switch a.Group {
	case GroupPro, GroupKontra, GroupFragezeiten:
	default:
		add("group", "%q is not a valid stance", a.Group)
	}

	if !slugPatternRe.MatchString(a.Slug) {
		add("slug", "%q contains invalid characters", a.Slug)
	}
	if !pathPatternRe.MatchString(a.Path) {
		add("path", "%q does not match YYYY-MM-DD-slug", a.Path)
	}

	issues = append(issues, v.validateImages(a)...)

	return issues
}

// validateImages enforces the image invariant: every local image the
// body or hero image references must be in the article's image set.
func (v *ContentValidator) validateImages(a *MappedArticle) []ValidationIssue {
	available := make(map[string]bool, len(a.Images))
	for _, img := range a.Images {
		available[img] = true
	}

	var issues []ValidationIssue
	seen := make(map[string]bool)
	for _, match := range localImageRefRe.FindAllStringSubmatch(a.Body, -1) {
		name := match[1]
		if seen[name] {
			continue
		}
		seen[name] = true
		if !available[name] {
			issues = append(issues, ValidationIssue{
				Field:   "images",
				Message: fmt.Sprintf("body references %s which was not acquired", name),
			})
		}
	}

	if a.HeroImage != nil && strings.HasPrefix(a.HeroImage.Src, "./images/") {
		name := strings.TrimPrefix(a.HeroImage.Src, "./images/")
		if !available[name] {
			issues = append(issues, ValidationIssue{
				Field:   "heroImage",
				Message: fmt.Sprintf("hero image %s was not acquired", name),
			})
		}
	}
	return issues
}

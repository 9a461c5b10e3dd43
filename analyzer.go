// analyzer.go
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"time"
)

// Bounds for the two structured fields extracted from the service
// response. Out-of-bounds results trigger the local fallback.
const (
	minAltLength      = 20
	maxAltLength      = 300
	minFilenameLength = 5
	maxFilenameLength = 80
)

// Category-specific prompt templates. Each instructs the service to embed
// the two structured fields in a fixed delimiter format.
const (
	promptFieldFormat = `Antworte AUSSCHLIESSLICH in diesem Format:
BESCHREIBUNG: <praegnante deutsche Bildbeschreibung, 20-300 Zeichen>
DATEINAME: <sprechender-dateiname-mit-bindestrichen, ohne Endung>`

	promptDefault = `Du beschreibst Bilder fuer einen deutschsprachigen Gesundheitsblog.
Beschreibe das Bild sachlich fuer sehbehinderte Leser.

` + promptFieldFormat

	promptMedical = `Du beschreibst medizinische Abbildungen fuer einen deutschsprachigen
Gesundheitsblog. Benenne anatomische Strukturen und klinische Details praezise,
ohne Diagnosen zu stellen.

` + promptFieldFormat

	promptNutrition = `Du beschreibst Lebensmittel- und Ernaehrungsbilder fuer einen
deutschsprachigen Gesundheitsblog. Benenne Zutaten, Zubereitung und Darreichung.

` + promptFieldFormat

	promptWellness = `Du beschreibst Wellness- und Lifestyle-Bilder fuer einen
deutschsprachigen Gesundheitsblog. Beschreibe Stimmung, Umgebung und Aktivitaet.

` + promptFieldFormat

	promptScientific = `Du beschreibst wissenschaftliche Abbildungen (Diagramme, Grafiken,
Laboraufnahmen) fuer einen deutschsprachigen Gesundheitsblog. Benenne dargestellte
Groessen und erkennbare Zusammenhaenge.

` + promptFieldFormat
)

var (
	altFieldRe      = regexp.MustCompile(`(?mi)^BESCHREIBUNG:\s*(.+)$`)
	filenameFieldRe = regexp.MustCompile(`(?mi)^DATEINAME:\s*(.+)$`)
)

// ImageAnalysis is the outcome of analyzing one image.
type ImageAnalysis struct {
	AltText  string
	Filename string
	CacheHit bool
	Fallback bool
}

// ImageAnalyzer produces German alt text and a descriptive filename for
// an image, consulting the persistent cache before calling the external
// vision-description service and falling back to local heuristics when
// the service fails or returns out-of-bounds fields.
type ImageAnalyzer struct {
	cache    *ResourceCache
	client   *http.Client
	settings VisionSettings
	apiKey   string
}

// NewImageAnalyzer creates an analyzer with an injected cache.
func NewImageAnalyzer(cache *ResourceCache, settings VisionSettings, apiKey string, timeout time.Duration) *ImageAnalyzer {
	return &ImageAnalyzer{
		cache:    cache,
		client:   &http.Client{Timeout: timeout},
		settings: settings,
		apiKey:   apiKey,
	}
}

// Analyze returns the analysis for an image URL. Cached URLs never issue
// a network call and consume zero service credits. Uncached URLs make
// exactly one service call whose result is persisted before returning.
// hint is contextual text (existing alt, caption, article title) used by
// the local fallback generator.
func (a *ImageAnalyzer) Analyze(imageURL, category, hint string) (*ImageAnalysis, error) {
	if entry, ok := a.cache.Get(imageURL); ok {
		return &ImageAnalysis{
			AltText:  entry.AltText,
			Filename: entry.Filename,
			CacheHit: true,
		}, nil
	}

	raw, callErr := a.describeImage(imageURL, category)

	var analysis *ImageAnalysis
	cost := a.settings.CostPer
	if callErr != nil {
		log.Printf("Vision service failed for %s: %v, using fallback", imageURL, callErr)
		analysis = a.fallbackAnalysis(imageURL, hint)
		cost = 0
	} else {
		alt, filename, parseErr := parseAnalysisFields(raw)
		if parseErr != nil {
			log.Printf("Unusable vision response for %s: %v, using fallback", imageURL, parseErr)
			analysis = a.fallbackAnalysis(imageURL, hint)
		} else {
			analysis = &ImageAnalysis{AltText: alt, Filename: filename}
		}
	}

	entry := CacheEntry{
		URL:       imageURL,
		Timestamp: time.Now(),
		RawText:   raw,
		AltText:   analysis.AltText,
		Filename:  analysis.Filename,
		Cost:      cost,
	}
	if err := a.cache.Put(entry); err != nil {
		return nil, fmt.Errorf("persisting analysis: %w", err)
	}

	return analysis, nil
}

// describeImage makes the single chat-completions call to the vision
// service, sending the image URL and the category-specific prompt.
func (a *ImageAnalyzer) describeImage(imageURL, category string) (string, error) {
	endpoint := strings.TrimRight(a.settings.Endpoint, "/")

	payload := map[string]interface{}{
		"model":      a.settings.Model,
		"max_tokens": a.settings.MaxTokens,
		"messages": []map[string]interface{}{
			{
				"role":    "system",
				"content": promptForCategory(category),
			},
			{
				"role": "user",
				"content": []map[string]interface{}{
					{
						"type":      "image_url",
						"image_url": map[string]string{"url": imageURL},
					},
					{
						"type": "text",
						"text": fmt.Sprintf("Zielsprache: %s. Beschreibe dieses Bild.", a.settings.Locale),
					},
				},
			},
		},
	}

	body, _ := json.Marshal(payload)
	req, err := http.NewRequest(http.MethodPost, endpoint+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+a.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return "", fmt.Errorf("vision service error: %s", strings.TrimSpace(string(respBody)))
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", err
	}
	if result.Error != nil && result.Error.Message != "" {
		return "", fmt.Errorf("vision service error: %s", result.Error.Message)
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("empty response from vision service")
	}
	return result.Choices[0].Message.Content, nil
}

// parseAnalysisFields extracts the two labeled fields from the service's
// free-text response and applies the length bounds.
func parseAnalysisFields(raw string) (alt, filename string, err error) {
	altMatch := altFieldRe.FindStringSubmatch(raw)
	fileMatch := filenameFieldRe.FindStringSubmatch(raw)
	if altMatch == nil || fileMatch == nil {
		return "", "", fmt.Errorf("response is missing BESCHREIBUNG/DATEINAME fields")
	}

	alt = strings.TrimSpace(altMatch[1])
	filename = slugify(strings.TrimSpace(fileMatch[1]))

	if len(alt) < minAltLength || len(alt) > maxAltLength {
		return "", "", fmt.Errorf("description length %d out of bounds", len(alt))
	}
	if len(filename) < minFilenameLength || len(filename) > maxFilenameLength {
		return "", "", fmt.Errorf("filename length %d out of bounds", len(filename))
	}
	return alt, filename, nil
}

// German stop words excluded from fallback keyword extraction.
var germanStopWords = map[string]bool{
	"der": true, "die": true, "das": true, "und": true, "ist": true,
	"in": true, "zu": true, "den": true, "von": true, "mit": true,
	"ein": true, "eine": true, "für": true, "auf": true, "des": true,
	"sich": true, "werden": true, "dem": true, "nicht": true, "hat": true,
	"im": true, "am": true, "an": true, "als": true, "auch": true,
	"bei": true, "oder": true, "aber": true, "wird": true, "sind": true,
}

// fallbackAnalysis derives alt text and filename locally: keywords by
// frequency from the hint text, the filename from the URL. Deterministic
// for a given input.
func (a *ImageAnalyzer) fallbackAnalysis(imageURL, hint string) *ImageAnalysis {
	base := filenameFromURL(imageURL)
	if idx := strings.LastIndex(base, "."); idx != -1 {
		base = base[:idx]
	}
	baseWords := strings.ReplaceAll(strings.ReplaceAll(base, "-", " "), "_", " ")

	keywords := extractKeywords(hint+" "+baseWords, 4)
	alt := strings.Join(keywords, " ")
	if alt == "" {
		alt = baseWords
	}
	alt = strings.TrimSpace("Bild: " + alt)

	filename := slugify(base)
	if len(filename) < minFilenameLength {
		filename = slugify(alt)
	}

	return &ImageAnalysis{AltText: alt, Filename: filename, Fallback: true}
}

// extractKeywords returns the most frequent non-stop-words of text,
// longest-streak-first, with a deterministic tie-break on the word.
func extractKeywords(text string, max int) []string {
	counts := make(map[string]int)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,!?;:()[]{}\"'„“–—")
		if len([]rune(word)) <= 3 || germanStopWords[word] {
			continue
		}
		counts[word]++
	}

	words := make([]string, 0, len(counts))
	for word := range counts {
		words = append(words, word)
	}
	sort.Slice(words, func(i, j int) bool {
		if counts[words[i]] != counts[words[j]] {
			return counts[words[i]] > counts[words[j]]
		}
		return words[i] < words[j]
	})

	if len(words) > max {
		words = words[:max]
	}
	return words
}

func promptForCategory(category string) string {
	switch strings.ToLower(strings.TrimSpace(category)) {
	case "medical", "gesundheit", "organsysteme", "immunsystem":
		return promptMedical
	case "nutrition", "ernährung", "mikronährstoffe":
		return promptNutrition
	case "wellness", "lifestyle & psyche":
		return promptWellness
	case "scientific", "wissenschaftliches":
		return promptScientific
	default:
		return promptDefault
	}
}

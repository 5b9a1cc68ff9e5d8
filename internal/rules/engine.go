// Package rules implements the local moderation rule engine: deterministic,
// side-effect-free scoring of an ad's text and images against a fixed set of
// heuristics. It is the fallback path when the external AI moderation
// service is unavailable and the only source of copyright assessments.
package rules

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/openlistings/moderation/internal/models"
)

// ImageOnlySentinel is accepted in place of real text when only the image
// paths of an ad should be evaluated.
const ImageOnlySentinel = "[image-only]"

// Rule weights. Scores from independent categories accumulate; order of
// evaluation never affects the sum.
const (
	weightBannedTerm     = 35
	weightScamPattern    = 30
	weightSuspiciousLink = 25
	weightContactPattern = 15
	weightExcessiveCaps  = 10
	weightExcessivePunct = 5
	weightTooManyImages  = 10
	weightOversizeImage  = 5

	maxImageCount  = 10
	maxImageBytes  = 10 << 20 // 10 MiB
	capsRatioLimit = 0.7
	minCapsLetters = 10
)

// Category names used for per-category sub-scores.
const (
	CategoryBannedTerms = "banned_terms"
	CategoryScam        = "scam_patterns"
	CategoryLinks       = "suspicious_links"
	CategoryContact     = "contact_patterns"
	CategoryFormatting  = "formatting"
	CategoryImages      = "images"
)

var bannedTerms = []string{
	"counterfeit",
	"stolen",
	"unlicensed firearm",
	"fake id",
	"prescription free",
	"narcotic",
	"escort service",
	"money laundering",
	"pyramid scheme",
}

var scamPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bfree\s+(iphone|ipad|macbook|playstation|xbox|samsung|laptop|phone)\b`),
	regexp.MustCompile(`(?i)\bclick\s+here\b`),
	regexp.MustCompile(`(?i)\bact\s+now\b`),
	regexp.MustCompile(`(?i)\bguaranteed\s+(income|profit|return)\b`),
	regexp.MustCompile(`(?i)\b(wire|western\s+union|moneygram)\s+(transfer|payment)\b`),
	regexp.MustCompile(`(?i)\bwork\s+from\s+home\b.*\$\d`),
	regexp.MustCompile(`(?i)\b100%\s*(free|guaranteed)\b`),
	regexp.MustCompile(`(?i)\bno\s+questions\s+asked\b`),
	regexp.MustCompile(`(?i)\bpay\s+(in\s+advance|upfront)\b`),
}

var shortenerPattern = regexp.MustCompile(`(?i)https?://(bit\.ly|tinyurl\.com|goo\.gl|t\.co|ow\.ly|is\.gd|cutt\.ly|rb\.gy)/\S*`)

var contactPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bwhats?app\b`),
	regexp.MustCompile(`(?i)\btelegram\b`),
	regexp.MustCompile(`\+?\d[\d\s\-()]{8,}\d`),
	regexp.MustCompile(`(?i)[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}`),
}

var punctRunPattern = regexp.MustCompile(`[!?]{3,}`)

// Engine scores ads against the built-in heuristics. The zero value is not
// usable; construct with NewEngine.
type Engine struct {
	statFile func(path string) (int64, error)
}

// NewEngine returns a rule engine backed by the local filesystem for image
// checks.
func NewEngine() *Engine {
	return &Engine{statFile: fileSize}
}

// NewEngineWithStat returns an engine using the given file-size function.
// Used by tests to simulate unreadable or oversize images.
func NewEngineWithStat(stat func(path string) (int64, error)) *Engine {
	return &Engine{statFile: stat}
}

func fileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// Evaluate scores the given title, description and image paths and returns a
// verdict. It never fails: malformed input is noted as an issue and results
// in a conservative review-tier verdict instead of a safe one.
func (e *Engine) Evaluate(title, description string, imagePaths []string) models.Verdict {
	start := time.Now()

	v := models.Verdict{
		Source:         models.SourceLocalRules,
		CategoryScores: make(map[string]float64),
	}

	text := strings.TrimSpace(title + " " + description)
	imageOnly := title == ImageOnlySentinel || description == ImageOnlySentinel

	if text == "" && len(imagePaths) == 0 {
		v.Issues = append(v.Issues, "ad has no text and no images")
		v.Score = models.ThresholdLow + 1 // force a review-tier outcome
	}
	if !imageOnly && text != "" {
		e.scoreText(text, &v)
	}
	e.scoreImages(imagePaths, &v)

	if v.Score > models.ScoreMax {
		v.Score = models.ScoreMax
	}
	v.RiskLevel = models.RiskForScore(v.Score)
	v.Safe = v.RiskLevel == models.RiskLow && len(v.Issues) == 0
	v.Confidence = confidenceFor(len(v.Issues) + len(v.Warnings))
	v.ProcessingTimeMs = time.Since(start).Milliseconds()
	return v
}

// scoreText accumulates hits from the text rule categories into v.
func (e *Engine) scoreText(text string, v *models.Verdict) {
	lower := strings.ToLower(text)

	for _, term := range bannedTerms {
		if strings.Contains(lower, term) {
			v.Score += weightBannedTerm
			v.CategoryScores[CategoryBannedTerms] += weightBannedTerm
			v.Issues = append(v.Issues, fmt.Sprintf("banned term: %q", term))
			v.Flags = append(v.Flags, "banned_term")
		}
	}

	for _, re := range scamPatterns {
		if m := re.FindString(text); m != "" {
			v.Score += weightScamPattern
			v.CategoryScores[CategoryScam] += weightScamPattern
			v.Issues = append(v.Issues, fmt.Sprintf("scam pattern: %q", m))
			v.Flags = append(v.Flags, "scam_pattern")
		}
	}

	if m := shortenerPattern.FindString(text); m != "" {
		v.Score += weightSuspiciousLink
		v.CategoryScores[CategoryLinks] += weightSuspiciousLink
		v.Issues = append(v.Issues, fmt.Sprintf("shortened link: %q", m))
		v.Flags = append(v.Flags, "suspicious_link")
	}

	for _, re := range contactPatterns {
		if re.MatchString(text) {
			v.Score += weightContactPattern
			v.CategoryScores[CategoryContact] += weightContactPattern
			v.Warnings = append(v.Warnings, "contact details embedded in ad text")
			v.Flags = append(v.Flags, "contact_info")
			break // one contact hit is enough
		}
	}

	if excessiveCaps(text) {
		v.Score += weightExcessiveCaps
		v.CategoryScores[CategoryFormatting] += weightExcessiveCaps
		v.Warnings = append(v.Warnings, "text is mostly uppercase")
		v.Flags = append(v.Flags, "excessive_caps")
	}
	if punctRunPattern.MatchString(text) {
		v.Score += weightExcessivePunct
		v.CategoryScores[CategoryFormatting] += weightExcessivePunct
		v.Warnings = append(v.Warnings, "excessive punctuation")
		v.Flags = append(v.Flags, "excessive_punctuation")
	}
}

// scoreImages applies the image sanity heuristics. Unreadable paths are
// skipped with a warning, never fatal.
func (e *Engine) scoreImages(paths []string, v *models.Verdict) {
	if len(paths) == 0 {
		return
	}
	if len(paths) > maxImageCount {
		v.Score += weightTooManyImages
		v.CategoryScores[CategoryImages] += weightTooManyImages
		v.Warnings = append(v.Warnings, fmt.Sprintf("ad carries %d images (limit %d)", len(paths), maxImageCount))
		v.Flags = append(v.Flags, "too_many_images")
	}

	for _, p := range paths {
		size, err := e.statFile(p)
		if err != nil {
			v.Warnings = append(v.Warnings, fmt.Sprintf("image not readable, skipped: %s", p))
			v.Flags = append(v.Flags, "unreadable_image")
			continue
		}
		if size == 0 {
			v.Warnings = append(v.Warnings, fmt.Sprintf("empty image file: %s", p))
			v.Flags = append(v.Flags, "empty_image")
			continue
		}
		if size > maxImageBytes {
			v.Score += weightOversizeImage
			v.CategoryScores[CategoryImages] += weightOversizeImage
			v.Warnings = append(v.Warnings, fmt.Sprintf("oversize image (%d bytes): %s", size, p))
			v.Flags = append(v.Flags, "oversize_image")
		}
	}
}

// excessiveCaps reports whether the text is shouting: at least minCapsLetters
// letters with an uppercase ratio above capsRatioLimit.
func excessiveCaps(text string) bool {
	var letters, upper int
	for _, r := range text {
		if unicode.IsLetter(r) {
			letters++
			if unicode.IsUpper(r) {
				upper++
			}
		}
	}
	if letters < minCapsLetters {
		return false
	}
	return float64(upper)/float64(letters) > capsRatioLimit
}

// confidenceFor derives the verdict confidence from the number of findings.
// A clean pass is a confident pass; a handful of independent hits raises
// confidence in a violation verdict.
func confidenceFor(findings int) int {
	if findings == 0 {
		return 90
	}
	c := 60 + findings*5
	if c > 95 {
		c = 95
	}
	return c
}

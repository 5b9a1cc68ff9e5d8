package rules

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openlistings/moderation/internal/models"
)

func TestEvaluate_ScamAd(t *testing.T) {
	e := NewEngine()
	v := e.Evaluate("FREE IPHONE CLICK HERE http://bit.ly/x", "", nil)

	assert.False(t, v.Safe)
	assert.GreaterOrEqual(t, v.Score, 60)
	assert.Contains(t, []models.RiskLevel{models.RiskHigh, models.RiskCritical}, v.RiskLevel)
	assert.Contains(t, v.Flags, "scam_pattern")
	assert.Contains(t, v.Flags, "suspicious_link")
	assert.True(t, v.Valid(), "verdict must satisfy structural invariants")
}

func TestEvaluate_CleanAd(t *testing.T) {
	dir := t.TempDir()
	img := filepath.Join(dir, "shoes.jpg")
	require.NoError(t, os.WriteFile(img, []byte("jpeg bytes"), 0o644))

	e := NewEngine()
	v := e.Evaluate("Blue running shoes, size 10", "Barely used, great condition", []string{img})

	assert.True(t, v.Safe)
	assert.Equal(t, models.RiskLow, v.RiskLevel)
	assert.LessOrEqual(t, v.Score, models.ThresholdLow)
	assert.Empty(t, v.Issues)
	assert.True(t, v.Valid())
}

func TestEvaluate_NeverFailsOnMalformedInput(t *testing.T) {
	e := NewEngine()

	cases := []struct {
		name  string
		title string
		desc  string
		imgs  []string
	}{
		{"empty everything", "", "", nil},
		{"nonexistent image", "", "", []string{"/nonexistent/path.jpg"}},
		{"image-only sentinel", ImageOnlySentinel, ImageOnlySentinel, []string{"/also/missing.png"}},
		{"huge input", string(make([]byte, 1<<16)), "x", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := e.Evaluate(tc.title, tc.desc, tc.imgs)
			assert.True(t, v.Valid(), "structurally valid verdict required")
			assert.Equal(t, models.SourceLocalRules, v.Source)
		})
	}
}

func TestEvaluate_EmptyAdIsReviewNotSafe(t *testing.T) {
	e := NewEngine()
	v := e.Evaluate("", "", nil)

	assert.False(t, v.Safe, "an ad with no content must not pass as safe")
	assert.NotEmpty(t, v.Issues)
	assert.NotEqual(t, models.RiskLow, v.RiskLevel)
}

func TestEvaluate_UnreadableImageIsWarningOnly(t *testing.T) {
	e := NewEngine()
	v := e.Evaluate("Garden table", "Solid oak, minor scratches", []string{"/no/such/image.jpg"})

	assert.True(t, v.Safe, "unreadable images must not block the verdict")
	assert.Contains(t, v.Flags, "unreadable_image")
	assert.NotEmpty(t, v.Warnings)
	assert.Empty(t, v.Issues)
}

func TestEvaluate_BannedTerm(t *testing.T) {
	e := NewEngine()
	v := e.Evaluate("Counterfeit watches", "best prices", nil)

	assert.False(t, v.Safe)
	assert.Contains(t, v.Flags, "banned_term")
	assert.Greater(t, v.CategoryScores[CategoryBannedTerms], 0.0)
}

func TestEvaluate_ImageHeuristics(t *testing.T) {
	stat := func(path string) (int64, error) {
		switch path {
		case "big.jpg":
			return maxImageBytes + 1, nil
		case "empty.jpg":
			return 0, nil
		default:
			return 1024, nil
		}
	}
	e := NewEngineWithStat(stat)

	paths := []string{"big.jpg", "empty.jpg"}
	for i := 0; i < maxImageCount; i++ {
		paths = append(paths, "ok.jpg")
	}
	v := e.Evaluate("Sofa", "Three-seater, grey", paths)

	assert.Contains(t, v.Flags, "oversize_image")
	assert.Contains(t, v.Flags, "empty_image")
	assert.Contains(t, v.Flags, "too_many_images")
	assert.True(t, v.Valid())
}

func TestEvaluate_ExcessiveCapsAndPunctuation(t *testing.T) {
	e := NewEngine()
	v := e.Evaluate("AMAZING DEAL BUY THIS NOW!!!", "", nil)

	assert.Contains(t, v.Flags, "excessive_caps")
	assert.Contains(t, v.Flags, "excessive_punctuation")
}

func TestEvaluate_ContactPatternFiresOnce(t *testing.T) {
	e := NewEngine()
	v := e.Evaluate("Bike for sale", "whatsapp me at +1 555 123 4567 or mail a@b.com", nil)

	var hits int
	for _, f := range v.Flags {
		if f == "contact_info" {
			hits++
		}
	}
	assert.Equal(t, 1, hits)
}

func TestEvaluate_Deterministic(t *testing.T) {
	e := NewEngine()
	a := e.Evaluate("FREE IPHONE CLICK HERE", "wire transfer only", nil)
	b := e.Evaluate("FREE IPHONE CLICK HERE", "wire transfer only", nil)

	assert.Equal(t, a.Score, b.Score)
	assert.Equal(t, a.Issues, b.Issues)
	assert.Equal(t, a.Flags, b.Flags)
}

func TestGenerateReport(t *testing.T) {
	e := NewEngine()

	v := e.Evaluate("FREE IPHONE CLICK HERE http://bit.ly/x", "", nil)
	c := e.CheckCopyrightRisk("FREE IPHONE CLICK HERE http://bit.ly/x", "")
	r := e.GenerateReport(v, c)

	assert.Equal(t, v.Score, r.Score, "report adds no new scoring")
	assert.Equal(t, v.RiskLevel, r.RiskLevel)
	assert.Contains(t, []string{"review", "reject"}, r.Recommendation)
	assert.NotEmpty(t, r.Summary)

	clean := e.Evaluate("Garden table", "Solid oak", nil)
	cleanReport := e.GenerateReport(clean, models.CopyrightAssessment{RiskLevel: models.RiskLow})
	assert.Equal(t, "approve", cleanReport.Recommendation)
}

func TestGenerateReport_CopyrightDrivesRecommendation(t *testing.T) {
	e := NewEngine()
	clean := e.Evaluate("Handbag", "Lightly used", nil)

	r := e.GenerateReport(clean, models.CopyrightAssessment{
		RiskLevel: models.RiskCritical,
		Concerns:  []string{`counterfeit marker "replica"`},
	})
	assert.Equal(t, "reject", r.Recommendation)
	assert.Contains(t, r.Flags, "copyright_risk")
}

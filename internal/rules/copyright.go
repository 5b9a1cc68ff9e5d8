package rules

import (
	"fmt"
	"strings"

	"github.com/openlistings/moderation/internal/models"
)

// Brand names watched for trademark abuse. Lexical matching only; the check
// is independent of Evaluate and never consults its score.
var watchedBrands = []string{
	"nike",
	"adidas",
	"gucci",
	"louis vuitton",
	"rolex",
	"chanel",
	"prada",
	"ray-ban",
	"iphone",
	"airpods",
	"samsung galaxy",
	"north face",
	"lego",
}

// Phrases that signal counterfeit goods when they appear near a brand name,
// and are suspicious on their own.
var replicaMarkers = []string{
	"replica",
	"1:1",
	"aaa quality",
	"mirror quality",
	"inspired by",
	"copy of",
	"same as original",
	"factory seconds",
}

// CheckCopyrightRisk performs the local brand/trademark assessment of an
// ad's text. It is always run locally, even when a verdict came from the
// external service.
func (e *Engine) CheckCopyrightRisk(title, description string) models.CopyrightAssessment {
	lower := strings.ToLower(title + " " + description)

	var brands, markers []string
	for _, b := range watchedBrands {
		if strings.Contains(lower, b) {
			brands = append(brands, b)
		}
	}
	for _, m := range replicaMarkers {
		if strings.Contains(lower, m) {
			markers = append(markers, m)
		}
	}

	a := models.CopyrightAssessment{RiskLevel: models.RiskLow}
	for _, b := range brands {
		a.Concerns = append(a.Concerns, fmt.Sprintf("references protected brand %q", b))
	}
	for _, m := range markers {
		a.Concerns = append(a.Concerns, fmt.Sprintf("counterfeit marker %q", m))
	}

	switch {
	case len(brands) > 0 && len(markers) > 0:
		a.RiskLevel = models.RiskCritical
	case len(markers) > 0:
		a.RiskLevel = models.RiskHigh
	case len(brands) > 0:
		a.RiskLevel = models.RiskMedium
	}
	return a
}

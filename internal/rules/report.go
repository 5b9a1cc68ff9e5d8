package rules

import (
	"fmt"

	"github.com/openlistings/moderation/internal/models"
)

// GenerateReport combines a verdict and a copyright assessment into the
// formatted report consumed by review tooling. It performs no new scoring.
func (e *Engine) GenerateReport(v models.Verdict, c models.CopyrightAssessment) models.Report {
	r := models.Report{
		Safe:      v.Safe,
		Score:     v.Score,
		RiskLevel: v.RiskLevel,
		Source:    v.Source,
		Issues:    v.Issues,
		Warnings:  v.Warnings,
		Flags:     v.Flags,
		Copyright: c,
	}

	switch {
	case v.RiskLevel == models.RiskCritical || c.RiskLevel == models.RiskCritical:
		r.Recommendation = "reject"
	case !v.Safe || c.RiskLevel == models.RiskHigh:
		r.Recommendation = "review"
	default:
		r.Recommendation = "approve"
	}

	if c.RiskLevel != models.RiskLow {
		r.Flags = append(r.Flags, "copyright_risk")
	}

	r.Summary = fmt.Sprintf("score %d (%s) via %s, %d issue(s), %d warning(s), copyright %s",
		v.Score, v.RiskLevel, v.Source, len(v.Issues), len(v.Warnings), c.RiskLevel)
	return r
}

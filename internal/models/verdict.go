package models

import "encoding/json"

// RiskLevel buckets a moderation score into a review-priority tier.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Verdict sources. ExternalAI verdicts come from the AI moderation service;
// LocalRules verdicts come from the built-in rule engine.
const (
	SourceExternalAI = "external_ai"
	SourceLocalRules = "local_rules"
)

// Score tier boundaries. A score s maps to:
//
//	s <= 30  -> low
//	s <= 60  -> medium
//	s <= 85  -> high
//	s <= 100 -> critical
//
// The tiers are total and non-overlapping; every component that derives a
// risk level from a score must go through RiskForScore so score and tier
// can never disagree.
const (
	ScoreMax        = 100
	ThresholdLow    = 30
	ThresholdMedium = 60
	ThresholdHigh   = 85

	// FlagThreshold is the score at or above which an ad is flagged for
	// review even when no single rule marked it unsafe.
	FlagThreshold = 40
)

// RiskForScore maps a 0-100 moderation score to its risk tier.
func RiskForScore(score int) RiskLevel {
	switch {
	case score <= ThresholdLow:
		return RiskLow
	case score <= ThresholdMedium:
		return RiskMedium
	case score <= ThresholdHigh:
		return RiskHigh
	default:
		return RiskCritical
	}
}

// Severity converts a risk level to the integer severity stored on
// violation records. Higher is more severe.
func (r RiskLevel) Severity() int {
	switch r {
	case RiskLow:
		return 1
	case RiskMedium:
		return 2
	case RiskHigh:
		return 3
	case RiskCritical:
		return 4
	default:
		return 2
	}
}

// Verdict is the moderation engine's structured judgment about one ad.
type Verdict struct {
	Safe             bool               `json:"safe"`
	Score            int                `json:"score"`      // 0-100, higher means more likely violating.
	Issues           []string           `json:"issues"`     // Blocking findings.
	Warnings         []string           `json:"warnings"`   // Non-blocking findings.
	Flags            []string           `json:"flags"`      // Machine-readable rule tags.
	Confidence       int                `json:"confidence"` // 0-100.
	RiskLevel        RiskLevel          `json:"risk_level"`
	Source           string             `json:"source"` // external_ai or local_rules.
	ProcessingTimeMs int64              `json:"processing_time_ms"`
	CategoryScores   map[string]float64 `json:"category_scores,omitempty"`
	Raw              json.RawMessage    `json:"raw,omitempty"` // Original external payload, if any.
}

// Valid reports whether the verdict satisfies its structural invariants:
// score in range, risk tier consistent with score, and safe only in the
// low tier.
func (v Verdict) Valid() bool {
	if v.Score < 0 || v.Score > ScoreMax {
		return false
	}
	if v.RiskLevel != RiskForScore(v.Score) {
		return false
	}
	if v.Safe && v.RiskLevel != RiskLow {
		return false
	}
	return true
}

// CopyrightAssessment is the local-only brand/trademark risk check. It is
// produced independently of the main verdict and never delegated to the
// external service.
type CopyrightAssessment struct {
	RiskLevel RiskLevel `json:"risk_level"`
	Concerns  []string  `json:"concerns"`
}

// Report is the formatted aggregation of a verdict and its copyright
// assessment, suitable for review tooling. It adds no new scoring.
type Report struct {
	Safe           bool                `json:"safe"`
	Score          int                 `json:"score"`
	RiskLevel      RiskLevel           `json:"risk_level"`
	Source         string              `json:"source"`
	Recommendation string              `json:"recommendation"` // approve, review or reject.
	Issues         []string            `json:"issues"`
	Warnings       []string            `json:"warnings"`
	Flags          []string            `json:"flags"`
	Copyright      CopyrightAssessment `json:"copyright"`
	Summary        string              `json:"summary"`
}

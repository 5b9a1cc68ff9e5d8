package models

import "time"

// Violation record statuses. Records are never deleted, only transitioned.
const (
	ViolationStatusPending   = "pending"
	ViolationStatusResolved  = "resolved"
	ViolationStatusDismissed = "dismissed"
)

// Scan types accepted by the scheduler.
const (
	ScanTypeIncremental = "incremental"
	ScanTypePriority    = "priority"
	ScanTypeFull        = "full"
)

// ViolationRecord is a persisted moderation finding for one ad. It is
// created by the scan scheduler when a verdict is unsafe or above the flag
// threshold and later resolved or dismissed by a human reviewer.
type ViolationRecord struct {
	ID              int64      `json:"id"`
	AdID            string     `json:"ad_id"`
	CompanySlug     string     `json:"company_slug"`
	Severity        int        `json:"severity"` // 1-4, derived from the verdict's risk level.
	AIScore         int        `json:"ai_score"`
	Details         string     `json:"details"` // Serialized verdict JSON.
	SuggestedAction string     `json:"suggested_action"`
	CreatedAt       time.Time  `json:"created_at"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`
	ResolvedBy      string     `json:"resolved_by,omitempty"`
	Status          string     `json:"status"`
}

// FlaggedAd is the per-ad summary carried in a ScanResult.
type FlaggedAd struct {
	AdID      string    `json:"ad_id"`
	Score     int       `json:"score"`
	RiskLevel RiskLevel `json:"risk_level"`
	Source    string    `json:"source"`
	Issues    []string  `json:"issues,omitempty"`
}

// ScanResult summarizes one scheduler run. It is immutable once the run
// completes.
type ScanResult struct {
	RunID          string        `json:"run_id"`
	ScanType       string        `json:"scan_type"`
	TotalScanned   int           `json:"total_scanned"`
	CleanCount     int           `json:"clean_count"`
	FlaggedAds     []FlaggedAd   `json:"flagged_ads"`
	SeverityCounts map[int]int   `json:"severity_counts"`
	Unpersisted    []string      `json:"unpersisted,omitempty"` // Ad IDs whose violation write failed.
	ProcessingTime time.Duration `json:"processing_time"`
	Timestamp      time.Time     `json:"timestamp"`
}

// FlaggedCount returns the number of flagged ads in the result.
func (s *ScanResult) FlaggedCount() int {
	return len(s.FlaggedAds)
}

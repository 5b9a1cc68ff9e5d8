// Package moderation contains the per-ad decision pipeline: the client for
// the external AI moderation service and the orchestrator that falls back
// to the local rule engine when that service is unavailable.
package moderation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/openlistings/moderation/internal/models"
	"github.com/openlistings/moderation/internal/observability"
	"go.uber.org/zap"
)

// Client calls the external AI moderation service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
	metrics    observability.MetricsRegistry
}

// MediaRef describes one media asset attached to a moderation request.
type MediaRef struct {
	Type string `json:"type"` // "image" or "video"
	URL  string `json:"url"`
}

// RequestUser identifies the submitting user/company.
type RequestUser struct {
	ID      string `json:"id"`
	Company string `json:"company"`
}

// RequestContext carries request provenance for the external service.
type RequestContext struct {
	AdID   string `json:"ad_id"`
	Source string `json:"source"`
	IP     string `json:"ip,omitempty"`
}

// Request is the payload sent to the external moderation endpoint.
type Request struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Category    string         `json:"category"`
	Language    string         `json:"language"`
	Media       []MediaRef     `json:"media"`
	User        RequestUser    `json:"user"`
	Context     RequestContext `json:"context"`
}

// response mirrors the external service's reply. Fields are pointers where
// absence must be distinguished from a zero value during validation.
type response struct {
	Success        bool               `json:"success"`
	Decision       string             `json:"decision"`
	RiskLevel      string             `json:"risk_level"`
	GlobalScore    *float64           `json:"global_score"`
	CategoryScores map[string]float64 `json:"category_scores"`
	Flags          []string           `json:"flags"`
	Reasons        []string           `json:"reasons"`
	ProcessingTime float64            `json:"processing_time"`
}

// NewClient creates a client for the external moderation service.
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger, metrics observability.MetricsRegistry) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger:  logger,
		metrics: metrics,
	}
}

// ModerateRealtime asks the external service for a verdict. Any failure --
// transport error, non-2xx status, unparseable body or a body missing
// mandatory fields -- is returned as an error so the caller can degrade to
// local rules. A non-nil verdict is always complete and schema-valid.
func (c *Client) ModerateRealtime(ctx context.Context, req Request) (*models.Verdict, error) {
	start := time.Now()
	outcome := "success"
	defer func() {
		c.metrics.RecordExternalRequestLatency(time.Since(start))
		c.metrics.IncrementExternalRequests(outcome)
	}()

	reqBody, err := json.Marshal(req)
	if err != nil {
		outcome = "failure"
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/moderate/realtime", bytes.NewReader(reqBody))
	if err != nil {
		outcome = "failure"
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		outcome = "failure"
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil && c.logger != nil {
			c.logger.Warn("failed to close response body", zap.Error(err))
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		outcome = "failure"
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, string(body))
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		outcome = "failure"
		return nil, fmt.Errorf("read response: %w", err)
	}

	var extResp response
	if err := json.Unmarshal(raw, &extResp); err != nil {
		outcome = "failure"
		return nil, fmt.Errorf("decode response: %w", err)
	}

	verdict, err := normalize(extResp, raw)
	if err != nil {
		outcome = "failure"
		return nil, err
	}
	return verdict, nil
}

// normalize validates the external response against the mandatory schema and
// maps it onto the internal verdict shape. It rejects rather than defaults:
// a response missing mandatory fields is a failure, not a lenient verdict.
func normalize(r response, raw []byte) (*models.Verdict, error) {
	if !r.Success {
		return nil, fmt.Errorf("service reported success=false")
	}
	switch r.Decision {
	case "approve", "review", "reject":
	default:
		return nil, fmt.Errorf("invalid decision %q", r.Decision)
	}
	if r.GlobalScore == nil {
		return nil, fmt.Errorf("missing global_score")
	}
	if *r.GlobalScore < 0 || *r.GlobalScore > 1 {
		return nil, fmt.Errorf("global_score %v out of range", *r.GlobalScore)
	}

	score := int(math.Round(*r.GlobalScore * 100))
	if score < 0 {
		score = 0
	}
	if score > models.ScoreMax {
		score = models.ScoreMax
	}

	// Risk is derived from the normalized score so score and tier can never
	// disagree; the service's own risk_level stays available in Raw. Safe
	// additionally requires the score to sit in the low tier.
	risk := models.RiskForScore(score)
	v := &models.Verdict{
		Safe:             r.Decision == "approve" && risk == models.RiskLow,
		Score:            score,
		Issues:           r.Reasons,
		Flags:            r.Flags,
		Confidence:       confidenceForDecision(r.Decision),
		RiskLevel:        risk,
		Source:           models.SourceExternalAI,
		ProcessingTimeMs: int64(r.ProcessingTime),
		CategoryScores:   r.CategoryScores,
		Raw:              json.RawMessage(raw),
	}
	return v, nil
}

// confidenceForDecision maps external decisions onto the 0-100 confidence
// scale. Rejections are the most clear-cut signal the service emits.
func confidenceForDecision(decision string) int {
	switch decision {
	case "reject":
		return 95
	case "approve":
		return 90
	default:
		return 70
	}
}

// HealthCheck probes the external moderation service. Used for operator
// visibility only; per-call fallback remains the routing decision.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("create health check request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil && c.logger != nil {
			c.logger.Warn("failed to close response body", zap.Error(err))
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed with status %d", resp.StatusCode)
	}
	return nil
}

// SetBaseURL sets the base URL for the moderation service (for testing).
func (c *Client) SetBaseURL(url string) {
	c.baseURL = url
}

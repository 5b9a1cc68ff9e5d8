package moderation

import (
	"context"

	"github.com/openlistings/moderation/internal/models"
	"github.com/openlistings/moderation/internal/observability"
	"github.com/openlistings/moderation/internal/rules"
	"go.uber.org/zap"
)

// RealtimeModerator is the external-service surface consumed by the
// orchestrator. *Client satisfies it.
type RealtimeModerator interface {
	ModerateRealtime(ctx context.Context, req Request) (*models.Verdict, error)
	HealthCheck(ctx context.Context) error
}

// Input is one ad's worth of moderation input.
type Input struct {
	AdID        string
	Title       string
	Description string
	ImagePaths  []string
	Category    string
	Language    string
	CompanySlug string
	UserID      string
	Source      string // request provenance, e.g. "scanner" or "upload"
}

// Outcome is the orchestrator's full per-ad result: exactly one verdict
// (external or local), plus the always-local copyright assessment and the
// formatted report.
type Outcome struct {
	UsedExternal bool                       `json:"used_external"`
	Verdict      models.Verdict             `json:"moderation"`
	Copyright    models.CopyrightAssessment `json:"copyright"`
	Report       models.Report              `json:"report"`
}

// Orchestrator runs the per-ad decision pipeline. It retains no state
// between calls and is safe for concurrent use across independent ads.
type Orchestrator struct {
	client  RealtimeModerator // nil disables the external path entirely
	engine  *rules.Engine
	logger  *zap.Logger
	metrics observability.MetricsRegistry
}

// NewOrchestrator wires an orchestrator. client may be nil when external
// moderation is disabled; the pipeline then always runs on local rules.
func NewOrchestrator(client RealtimeModerator, engine *rules.Engine, logger *zap.Logger, metrics observability.MetricsRegistry) *Orchestrator {
	return &Orchestrator{client: client, engine: engine, logger: logger, metrics: metrics}
}

// Moderate produces the full moderation outcome for one ad. The external
// service is tried first; on any failure the local rule engine supplies the
// verdict, which cannot fail. Copyright assessment and report generation
// always run locally, regardless of which path produced the verdict.
func (o *Orchestrator) Moderate(ctx context.Context, in Input) Outcome {
	var (
		verdict  *models.Verdict
		external bool
	)

	if o.client != nil {
		v, err := o.client.ModerateRealtime(ctx, buildRequest(in))
		if err != nil {
			o.logger.Warn("external moderation unavailable, falling back to local rules",
				zap.Error(err),
				zap.String("ad_id", in.AdID))
		} else {
			verdict = v
			external = true
		}
	}

	if verdict == nil {
		v := o.engine.Evaluate(in.Title, in.Description, in.ImagePaths)
		verdict = &v
	}
	o.metrics.IncrementVerdicts(verdict.Source)

	copyright := o.engine.CheckCopyrightRisk(in.Title, in.Description)
	report := o.engine.GenerateReport(*verdict, copyright)

	return Outcome{
		UsedExternal: external,
		Verdict:      *verdict,
		Copyright:    copyright,
		Report:       report,
	}
}

// ServiceHealthy reports whether the external moderation service responds to
// its health probe. Informational only: it picks log hints, never routing.
func (o *Orchestrator) ServiceHealthy(ctx context.Context) bool {
	if o.client == nil {
		return false
	}
	return o.client.HealthCheck(ctx) == nil
}

func buildRequest(in Input) Request {
	media := make([]MediaRef, 0, len(in.ImagePaths))
	for _, p := range in.ImagePaths {
		media = append(media, MediaRef{Type: "image", URL: p})
	}
	lang := in.Language
	if lang == "" {
		lang = "en"
	}
	return Request{
		Title:       in.Title,
		Description: in.Description,
		Category:    in.Category,
		Language:    lang,
		Media:       media,
		User:        RequestUser{ID: in.UserID, Company: in.CompanySlug},
		Context:     RequestContext{AdID: in.AdID, Source: in.Source},
	}
}

package scanner

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/openlistings/moderation/internal/analytics"
	"github.com/openlistings/moderation/internal/inventory"
	"github.com/openlistings/moderation/internal/models"
	"github.com/openlistings/moderation/internal/moderation"
	"github.com/openlistings/moderation/internal/observability"
)

// State is the daemon lifecycle state.
type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// ResultStore persists flagged ads and completed scan runs. *db.Postgres
// satisfies it.
type ResultStore interface {
	SaveViolation(ctx context.Context, v *models.ViolationRecord) (int64, error)
	SaveScanHistory(ctx context.Context, r *models.ScanResult) error
}

// CursorStore tracks the incremental-scan watermark between daemon cycles.
// *db.RedisStore satisfies it. May be nil.
type CursorStore interface {
	GetScanCursor(ctx context.Context) (time.Time, error)
	SetScanCursor(ctx context.Context, t time.Time) error
}

// ScoreCache caches each ad's latest score for priority ordering.
// *db.RedisStore satisfies it. May be nil.
type ScoreCache interface {
	SetLastScore(ctx context.Context, adID string, score int) error
}

// Options configures a Scheduler.
type Options struct {
	Interval         time.Duration // gap between daemon cycles
	IncrementalHours int           // window for incremental scans
	BatchLimit       int           // max ads per cycle
	StatsEveryCycles int           // aggregate stats log cadence
}

// Scheduler iterates ad inventory, applies the moderation orchestrator per
// ad and records violations. One-shot scans and the long-running daemon
// share the same per-cycle scan path.
type Scheduler struct {
	orch    *moderation.Orchestrator
	inv     inventory.Store
	store   ResultStore
	cursor  CursorStore               // optional
	scores  ScoreCache                // optional
	events  analytics.ScanEventLogger // optional
	coord   *Coordinator
	logger  *zap.Logger
	metrics observability.MetricsRegistry
	opts    Options

	state atomic.Int32

	// running totals across daemon cycles
	cycleCount   int
	totalScanned int64
	totalFlagged int64
}

// NewScheduler wires a Scheduler. cursor, scores and events may be nil.
func NewScheduler(
	orch *moderation.Orchestrator,
	inv inventory.Store,
	store ResultStore,
	cursor CursorStore,
	scores ScoreCache,
	events analytics.ScanEventLogger,
	coord *Coordinator,
	logger *zap.Logger,
	metrics observability.MetricsRegistry,
	opts Options,
) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Minute
	}
	if opts.IncrementalHours <= 0 {
		opts.IncrementalHours = 24
	}
	if opts.StatsEveryCycles <= 0 {
		opts.StatsEveryCycles = 10
	}
	return &Scheduler{
		orch:    orch,
		inv:     inv,
		store:   store,
		cursor:  cursor,
		scores:  scores,
		events:  events,
		coord:   coord,
		logger:  logger,
		metrics: metrics,
		opts:    opts,
	}
}

// CurrentState returns the daemon state.
func (s *Scheduler) CurrentState() State {
	return State(s.state.Load())
}

func (s *Scheduler) setState(st State) {
	s.state.Store(int32(st))
}

// RunIncremental scans ads created within the last hoursBack hours. The run
// lock is held for the duration and released on every exit path.
func (s *Scheduler) RunIncremental(ctx context.Context, hoursBack, limit int) (*models.ScanResult, error) {
	if err := s.coord.Acquire(); err != nil {
		if err == ErrAlreadyRunning {
			s.metrics.IncrementLockContention()
		}
		return nil, err
	}
	defer s.coord.Release()
	since := time.Now().Add(-time.Duration(hoursBack) * time.Hour)
	return s.scan(ctx, models.ScanTypeIncremental, since, limit)
}

// RunPriority scans the ads most in need of review, up to limit.
func (s *Scheduler) RunPriority(ctx context.Context, limit int) (*models.ScanResult, error) {
	if err := s.coord.Acquire(); err != nil {
		if err == ErrAlreadyRunning {
			s.metrics.IncrementLockContention()
		}
		return nil, err
	}
	defer s.coord.Release()
	return s.scan(ctx, models.ScanTypePriority, time.Time{}, limit)
}

// RunFull scans the whole inventory, bounded by limit.
func (s *Scheduler) RunFull(ctx context.Context, limit int) (*models.ScanResult, error) {
	if err := s.coord.Acquire(); err != nil {
		if err == ErrAlreadyRunning {
			s.metrics.IncrementLockContention()
		}
		return nil, err
	}
	defer s.coord.Release()
	return s.scan(ctx, models.ScanTypeFull, time.Time{}, limit)
}

// Run is the daemon loop: it acquires the run lock once, then repeats
// incremental scan cycles until ctx is cancelled. Each cycle's wall time is
// subtracted from the interval so a slow cycle never compounds backlog, and
// the sleep is never shorter than one second.
func (s *Scheduler) Run(ctx context.Context) error {
	s.setState(StateStarting)
	if err := s.coord.Acquire(); err != nil {
		s.setState(StateStopped)
		if err == ErrAlreadyRunning {
			s.metrics.IncrementLockContention()
		}
		return err
	}
	defer func() {
		s.coord.Release()
		s.setState(StateStopped)
	}()

	s.setState(StateRunning)
	s.logger.Info("scan daemon started",
		zap.Duration("interval", s.opts.Interval),
		zap.Int("batch_limit", s.opts.BatchLimit))

	for {
		cycleStart := time.Now()

		if s.orch.ServiceHealthy(ctx) {
			s.logger.Debug("external moderation service reachable")
		} else {
			s.logger.Info("external moderation service unreachable, cycles will run on local rules")
		}

		since := s.incrementalSince(ctx, cycleStart)
		result, err := s.scan(ctx, models.ScanTypeIncremental, since, s.opts.BatchLimit)
		if err != nil {
			if ctx.Err() != nil {
				s.setState(StateStopping)
				s.logger.Info("scan daemon stopping")
				return nil
			}
			// Inventory errors are logged and the next cycle retried; a
			// broken cycle must not kill the daemon.
			s.logger.Error("scan cycle failed", zap.Error(err))
		} else {
			s.finishCycle(ctx, result, cycleStart)
		}

		elapsed := time.Since(cycleStart)
		sleep := s.opts.Interval - elapsed
		if sleep < time.Second {
			sleep = time.Second
		}
		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.setState(StateStopping)
			s.logger.Info("scan daemon stopping")
			return nil
		case <-timer.C:
		}
	}
}

// incrementalSince picks the window start for a daemon cycle: the stored
// cursor when available, otherwise the configured hours-back window.
func (s *Scheduler) incrementalSince(ctx context.Context, cycleStart time.Time) time.Time {
	fallback := cycleStart.Add(-time.Duration(s.opts.IncrementalHours) * time.Hour)
	if s.cursor == nil {
		return fallback
	}
	t, err := s.cursor.GetScanCursor(ctx)
	if err != nil {
		s.logger.Warn("scan cursor unavailable", zap.Error(err))
		return fallback
	}
	if t.IsZero() || t.Before(fallback) {
		return fallback
	}
	return t
}

func (s *Scheduler) finishCycle(ctx context.Context, result *models.ScanResult, cycleStart time.Time) {
	if err := s.store.SaveScanHistory(ctx, result); err != nil {
		s.logger.Error("save scan history", zap.Error(err), zap.String("run_id", result.RunID))
	}
	if s.cursor != nil {
		if err := s.cursor.SetScanCursor(ctx, cycleStart); err != nil {
			s.logger.Warn("set scan cursor", zap.Error(err))
		}
	}

	s.cycleCount++
	s.totalScanned += int64(result.TotalScanned)
	s.totalFlagged += int64(result.FlaggedCount())
	if s.cycleCount%s.opts.StatsEveryCycles == 0 {
		s.logger.Info("scan daemon statistics",
			zap.Int("cycles", s.cycleCount),
			zap.Int64("total_scanned", s.totalScanned),
			zap.Int64("total_flagged", s.totalFlagged))
	}
}

// scan is one pass over a batch of ads. Ads are processed in enumeration
// order; cancellation is observed between ads, and the in-flight ad always
// completes before the loop exits.
func (s *Scheduler) scan(ctx context.Context, scanType string, since time.Time, limit int) (*models.ScanResult, error) {
	start := time.Now()
	var (
		ads []models.Ad
		err error
	)
	switch scanType {
	case models.ScanTypeIncremental:
		ads, err = s.inv.ListRecent(ctx, since, limit)
	case models.ScanTypePriority:
		ads, err = s.inv.ListPriority(ctx, limit)
	case models.ScanTypeFull:
		ads, err = s.inv.ListAll(ctx, limit)
	default:
		return nil, fmt.Errorf("unknown scan type %q", scanType)
	}
	if err != nil {
		return nil, fmt.Errorf("enumerate ads: %w", err)
	}

	result := &models.ScanResult{
		RunID:          uuid.NewString(),
		ScanType:       scanType,
		SeverityCounts: make(map[int]int),
		Timestamp:      start,
	}
	sampleRate := observability.GetSamplingRate()

	for _, ad := range ads {
		select {
		case <-ctx.Done():
			s.logger.Info("scan interrupted",
				zap.String("run_id", result.RunID),
				zap.Int("scanned", result.TotalScanned))
			result.ProcessingTime = time.Since(start)
			return result, nil
		default:
		}

		s.moderateOne(ctx, ad, result, sampleRate)
		s.metrics.IncrementAdsScanned(scanType)
		result.TotalScanned++
	}

	result.ProcessingTime = time.Since(start)
	s.metrics.RecordScanCycleDuration(scanType, result.ProcessingTime)
	s.logger.Info("scan complete",
		zap.String("run_id", result.RunID),
		zap.String("scan_type", scanType),
		zap.Int("scanned", result.TotalScanned),
		zap.Int("flagged", result.FlaggedCount()),
		zap.Int("clean", result.CleanCount),
		zap.Duration("elapsed", result.ProcessingTime))
	return result, nil
}

// moderateOne runs the full pipeline for a single ad and folds the outcome
// into the running result. The ad's verdict is complete before anything is
// recorded.
func (s *Scheduler) moderateOne(ctx context.Context, ad models.Ad, result *models.ScanResult, sampleRate float64) {
	adStart := time.Now()
	outcome := s.orch.Moderate(ctx, moderation.Input{
		AdID:        ad.ID,
		Title:       ad.Title,
		Description: ad.Description,
		ImagePaths:  ad.ImagePaths,
		Category:    ad.CategoryID,
		CompanySlug: ad.CompanySlug,
		Source:      "scanner",
	})
	v := outcome.Verdict

	if s.scores != nil {
		if err := s.scores.SetLastScore(ctx, ad.ID, v.Score); err != nil {
			s.logger.Warn("cache last score", zap.Error(err), zap.String("ad_id", ad.ID))
		}
	}

	flagged := !v.Safe || v.Score >= models.FlagThreshold
	if !flagged {
		result.CleanCount++
	} else {
		severity := v.RiskLevel.Severity()
		result.FlaggedAds = append(result.FlaggedAds, models.FlaggedAd{
			AdID:      ad.ID,
			Score:     v.Score,
			RiskLevel: v.RiskLevel,
			Source:    v.Source,
			Issues:    v.Issues,
		})
		result.SeverityCounts[severity]++
		s.metrics.IncrementAdsFlagged(string(v.RiskLevel))

		if err := s.persistViolation(ctx, ad, outcome); err != nil {
			// The scan keeps going; the drift between counted and stored
			// violations stays visible in the result.
			s.logger.Error("persist violation", zap.Error(err), zap.String("ad_id", ad.ID))
			s.metrics.IncrementViolationPersistErrors()
			result.Unpersisted = append(result.Unpersisted, ad.ID)
		} else {
			s.metrics.IncrementViolationsPersisted()
		}
	}

	if s.events != nil {
		ev := analytics.ScanEvent{
			Timestamp:   adStart,
			RunID:       result.RunID,
			ScanType:    result.ScanType,
			AdID:        ad.ID,
			CompanySlug: ad.CompanySlug,
			Source:      v.Source,
			Score:       v.Score,
			RiskLevel:   string(v.RiskLevel),
			Flagged:     flagged,
			DurationMs:  time.Since(adStart).Milliseconds(),
		}
		if err := s.events.RecordScanEvent(ctx, ev); err != nil && err != analytics.ErrUnavailable {
			s.logger.Warn("record scan event", zap.Error(err), zap.String("ad_id", ad.ID))
		}
	}

	if observability.ShouldSample(sampleRate) {
		s.logger.Debug("ad moderated",
			zap.String("ad_id", ad.ID),
			zap.Int("score", v.Score),
			zap.String("risk_level", string(v.RiskLevel)),
			zap.String("source", v.Source),
			zap.Bool("flagged", flagged))
	}
}

func (s *Scheduler) persistViolation(ctx context.Context, ad models.Ad, outcome moderation.Outcome) error {
	details, err := json.Marshal(outcome.Verdict)
	if err != nil {
		return fmt.Errorf("marshal verdict: %w", err)
	}
	rec := &models.ViolationRecord{
		AdID:            ad.ID,
		CompanySlug:     ad.CompanySlug,
		Severity:        outcome.Verdict.RiskLevel.Severity(),
		AIScore:         outcome.Verdict.Score,
		Details:         string(details),
		SuggestedAction: outcome.Report.Recommendation,
		CreatedAt:       time.Now(),
		Status:          models.ViolationStatusPending,
	}
	if _, err := s.store.SaveViolation(ctx, rec); err != nil {
		return err
	}
	return nil
}

// ServiceHealth reports whether the external moderation service is
// currently reachable. Used by the ops endpoints and the status command.
func (s *Scheduler) ServiceHealth(ctx context.Context) bool {
	return s.orch.ServiceHealthy(ctx)
}

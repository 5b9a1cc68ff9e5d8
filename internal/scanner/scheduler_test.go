package scanner

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/openlistings/moderation/internal/analytics"
	"github.com/openlistings/moderation/internal/models"
	"github.com/openlistings/moderation/internal/moderation"
	"github.com/openlistings/moderation/internal/observability"
	"github.com/openlistings/moderation/internal/rules"
)

// fakeInventory serves a fixed ad list for every mode.
type fakeInventory struct {
	ads []models.Ad
	err error
}

func (f *fakeInventory) ListRecent(ctx context.Context, since time.Time, limit int) ([]models.Ad, error) {
	return f.list(limit)
}
func (f *fakeInventory) ListPriority(ctx context.Context, limit int) ([]models.Ad, error) {
	return f.list(limit)
}
func (f *fakeInventory) ListAll(ctx context.Context, limit int) ([]models.Ad, error) {
	return f.list(limit)
}
func (f *fakeInventory) list(limit int) ([]models.Ad, error) {
	if f.err != nil {
		return nil, f.err
	}
	ads := f.ads
	if limit > 0 && len(ads) > limit {
		ads = ads[:limit]
	}
	return ads, nil
}

// fakeStore is an in-memory ResultStore.
type fakeStore struct {
	mu         sync.Mutex
	violations []models.ViolationRecord
	history    []models.ScanResult
	failSaves  bool
	nextID     int64
}

func (f *fakeStore) SaveViolation(ctx context.Context, v *models.ViolationRecord) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSaves {
		return 0, errors.New("store down")
	}
	f.nextID++
	v.ID = f.nextID
	f.violations = append(f.violations, *v)
	return v.ID, nil
}

func (f *fakeStore) SaveScanHistory(ctx context.Context, r *models.ScanResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.history = append(f.history, *r)
	return nil
}

func (f *fakeStore) byAdID(adID string) *models.ViolationRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.violations {
		if f.violations[i].AdID == adID {
			return &f.violations[i]
		}
	}
	return nil
}

func scamAd(id string) models.Ad {
	return models.Ad{
		ID:          id,
		Title:       "FREE IPHONE CLICK HERE http://bit.ly/x",
		CompanySlug: "shady-deals",
		CreatedAt:   time.Now(),
		Status:      models.AdStatusActive,
	}
}

func cleanAd(id string) models.Ad {
	return models.Ad{
		ID:          id,
		Title:       "Blue running shoes, size 10",
		Description: "Barely used, great condition",
		CompanySlug: "acme-sports",
		CreatedAt:   time.Now(),
		Status:      models.AdStatusActive,
	}
}

func newTestScheduler(t *testing.T, inv *fakeInventory, store *fakeStore, events analytics.ScanEventLogger, metrics observability.MetricsRegistry) *Scheduler {
	t.Helper()
	logger := zap.NewNop()
	orch := moderation.NewOrchestrator(nil, rules.NewEngine(), logger, metrics)
	coord := NewCoordinator(filepath.Join(t.TempDir(), "scanner.lock"), 30*time.Minute, logger)
	return NewScheduler(orch, inv, store, nil, nil, events, coord, logger, metrics, Options{
		Interval:         50 * time.Millisecond,
		IncrementalHours: 24,
		BatchLimit:       100,
		StatsEveryCycles: 10,
	})
}

func TestScheduler_FlagsAndPersistsViolations(t *testing.T) {
	inv := &fakeInventory{ads: []models.Ad{scamAd("AD-1"), cleanAd("AD-2"), cleanAd("AD-3")}}
	store := &fakeStore{}
	metrics := observability.NewMockMetricsRegistry()
	s := newTestScheduler(t, inv, store, nil, metrics)

	result, err := s.RunIncremental(context.Background(), 24, 0)
	require.NoError(t, err)

	assert.Equal(t, 3, result.TotalScanned)
	assert.Equal(t, 2, result.CleanCount)
	require.Len(t, result.FlaggedAds, 1)
	assert.Equal(t, "AD-1", result.FlaggedAds[0].AdID)
	assert.Empty(t, result.Unpersisted)

	rec := store.byAdID("AD-1")
	require.NotNil(t, rec)
	assert.Equal(t, models.ViolationStatusPending, rec.Status)
	assert.Equal(t, "shady-deals", rec.CompanySlug)
	assert.GreaterOrEqual(t, rec.AIScore, 60)
	assert.GreaterOrEqual(t, rec.Severity, 3)
	assert.NotEmpty(t, rec.Details)

	// Severity counters line up with the flagged ad's tier.
	var total int
	for _, n := range result.SeverityCounts {
		total += n
	}
	assert.Equal(t, 1, total)
	assert.Equal(t, 1, metrics.PersistedViolations)
}

func TestScheduler_ViolationRoundTrip(t *testing.T) {
	inv := &fakeInventory{ads: []models.Ad{scamAd("AD-RT")}}
	store := &fakeStore{}
	s := newTestScheduler(t, inv, store, nil, observability.NewMockMetricsRegistry())

	result, err := s.RunFull(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, result.FlaggedAds, 1)

	rec := store.byAdID("AD-RT")
	require.NotNil(t, rec)
	assert.Equal(t, result.FlaggedAds[0].Score, rec.AIScore)
	assert.Equal(t, result.FlaggedAds[0].RiskLevel.Severity(), rec.Severity)
	assert.Equal(t, models.ViolationStatusPending, rec.Status)
}

func TestScheduler_PersistFailureIsSurvivable(t *testing.T) {
	inv := &fakeInventory{ads: []models.Ad{scamAd("AD-1"), cleanAd("AD-2")}}
	store := &fakeStore{failSaves: true}
	metrics := observability.NewMockMetricsRegistry()
	s := newTestScheduler(t, inv, store, nil, metrics)

	result, err := s.RunIncremental(context.Background(), 24, 0)
	require.NoError(t, err, "persistence failure must not abort the scan")

	assert.Equal(t, 2, result.TotalScanned)
	require.Len(t, result.FlaggedAds, 1)
	assert.Equal(t, []string{"AD-1"}, result.Unpersisted)
	assert.Equal(t, 1, metrics.PersistErrors)
}

func TestScheduler_InventoryFailureIsFatal(t *testing.T) {
	inv := &fakeInventory{err: errors.New("inventory root unreadable")}
	s := newTestScheduler(t, inv, &fakeStore{}, nil, observability.NewMockMetricsRegistry())

	result, err := s.RunFull(context.Background(), 0)
	assert.Error(t, err)
	assert.Nil(t, result, "no partial result on fatal startup failure")
}

func TestScheduler_ConcurrentInvocations(t *testing.T) {
	// Two schedulers sharing one lock path: exactly one completes a scan,
	// the other reports already-running.
	var ads []models.Ad
	for i := 0; i < 50; i++ {
		ads = append(ads, cleanAd(fmt.Sprintf("AD-%03d", i)))
	}
	inv := &fakeInventory{ads: ads}
	logger := zap.NewNop()
	lockPath := filepath.Join(t.TempDir(), "scanner.lock")

	build := func() *Scheduler {
		orch := moderation.NewOrchestrator(nil, rules.NewEngine(), logger, observability.NewMockMetricsRegistry())
		coord := NewCoordinator(lockPath, 30*time.Minute, logger)
		return NewScheduler(orch, inv, &fakeStore{}, nil, nil, nil, coord, logger, observability.NewMockMetricsRegistry(), Options{})
	}

	type outcome struct {
		result *models.ScanResult
		err    error
	}
	results := make(chan outcome, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := build().RunFull(context.Background(), 0)
			results <- outcome{r, err}
		}()
	}
	wg.Wait()
	close(results)

	var completed, rejected int
	for o := range results {
		if errors.Is(o.err, ErrAlreadyRunning) {
			rejected++
			assert.Nil(t, o.result, "rejected invocation must scan zero ads")
		} else {
			require.NoError(t, o.err)
			completed++
			assert.Equal(t, 50, o.result.TotalScanned)
		}
	}
	assert.Equal(t, 1, completed)
	assert.Equal(t, 1, rejected)
}

func TestScheduler_CancellationBetweenAds(t *testing.T) {
	var ads []models.Ad
	for i := 0; i < 100; i++ {
		ads = append(ads, cleanAd(fmt.Sprintf("AD-%03d", i)))
	}
	inv := &fakeInventory{ads: ads}
	s := newTestScheduler(t, inv, &fakeStore{}, nil, observability.NewMockMetricsRegistry())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := s.RunFull(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, result.TotalScanned, "cancellation before the first ad stops the scan")

	// The lock must have been released.
	st, err := NewCoordinator(filepath.Join(t.TempDir(), "other.lock"), time.Minute, zap.NewNop()).Status()
	require.NoError(t, err)
	assert.False(t, st.Held)
}

func TestScheduler_DaemonLifecycle(t *testing.T) {
	inv := &fakeInventory{ads: []models.Ad{cleanAd("AD-1")}}
	store := &fakeStore{}
	events := analytics.NewMockScanEventLogger()
	s := newTestScheduler(t, inv, store, events, observability.NewMockMetricsRegistry())

	require.Equal(t, StateStopped, s.CurrentState())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	// Wait for at least one completed cycle.
	require.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return len(store.history) >= 1
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, StateRunning, s.CurrentState())

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop after cancellation")
	}
	assert.Equal(t, StateStopped, s.CurrentState())
	assert.NotEmpty(t, events.Recorded(), "scan events recorded during cycles")
}

func TestScheduler_DaemonLockContention(t *testing.T) {
	logger := zap.NewNop()
	lockPath := filepath.Join(t.TempDir(), "scanner.lock")
	coord := NewCoordinator(lockPath, 30*time.Minute, logger)
	require.NoError(t, coord.Acquire())
	defer coord.Release()

	orch := moderation.NewOrchestrator(nil, rules.NewEngine(), logger, observability.NewMockMetricsRegistry())
	metrics := observability.NewMockMetricsRegistry()
	s := NewScheduler(orch, &fakeInventory{}, &fakeStore{}, nil, nil, nil,
		NewCoordinator(lockPath, 30*time.Minute, logger), logger, metrics, Options{})

	err := s.Run(context.Background())
	assert.True(t, errors.Is(err, ErrAlreadyRunning))
	assert.Equal(t, StateStopped, s.CurrentState())
	assert.Equal(t, 1, metrics.LockContentions)
}

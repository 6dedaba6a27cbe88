package application

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	alerts "water-quality-cloud/internal/alerts/domain"
	dashboard "water-quality-cloud/internal/dashboard/domain"
	"water-quality-cloud/internal/observability/metrics"
	quality "water-quality-cloud/internal/quality/domain"
	reports "water-quality-cloud/internal/reports/domain"
)

// DefaultTTL is how long a computed snapshot is served unchanged.
const DefaultTTL = 60 * time.Second

const flightKey = "snapshot"

// Source supplies the counts and rows a snapshot is built from.
type Source interface {
	CountStations(ctx context.Context) (int64, error)
	CountReadings(ctx context.Context) (int64, error)
	CountReports(ctx context.Context) (int64, error)
	CountAlertsByState(ctx context.Context) (dashboard.AlertStatusCounts, error)
	CountReportsByStatus(ctx context.Context) (dashboard.ReportStatusCounts, error)
	// ParameterValues returns raw reading values whose normalised parameter is one of keys.
	ParameterValues(ctx context.Context, keys []string) ([]string, error)
	LatestAlerts(ctx context.Context, limit int) ([]alerts.Alert, error)
	LatestReports(ctx context.Context, limit int) ([]reports.Report, error)
}

// Aggregator computes dashboard snapshots behind a single cache slot.
// At most one recomputation runs at a time; concurrent callers share it.
type Aggregator struct {
	source Source
	table  *quality.RuleTable
	clock  clockwork.Clock
	ttl    time.Duration
	group  singleflight.Group

	mu       sync.RWMutex
	cached   *dashboard.Snapshot
	cachedAt time.Time
}

// Option configures the aggregator.
type Option func(*Aggregator)

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(a *Aggregator) {
		if ttl > 0 {
			a.ttl = ttl
		}
	}
}

// WithClock overrides the clock.
func WithClock(clock clockwork.Clock) Option {
	return func(a *Aggregator) {
		if clock != nil {
			a.clock = clock
		}
	}
}

// WithRuleTable sets the table used to resolve box plot keys to aliases.
func WithRuleTable(table *quality.RuleTable) Option {
	return func(a *Aggregator) {
		if table != nil {
			a.table = table
		}
	}
}

// NewAggregator constructs an aggregator.
func NewAggregator(source Source, opts ...Option) (*Aggregator, error) {
	if source == nil {
		return nil, errors.New("dashboard aggregator: nil source")
	}
	a := &Aggregator{
		source: source,
		table:  quality.DefaultRuleTable(),
		clock:  clockwork.NewRealClock(),
		ttl:    DefaultTTL,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Snapshot returns the cached snapshot while it is younger than the TTL and
// recomputes it otherwise. A failed recomputation leaves the cache untouched.
// Callers get their own copy and may modify it.
func (a *Aggregator) Snapshot(ctx context.Context) (dashboard.Snapshot, error) {
	if a == nil {
		return dashboard.Snapshot{}, errors.New("dashboard aggregator: nil aggregator")
	}
	if snap, ok := a.fresh(a.clock.Now()); ok {
		metrics.IncDashboardCache(true)
		return snap, nil
	}
	metrics.IncDashboardCache(false)

	v, err, _ := a.group.Do(flightKey, func() (any, error) {
		now := a.clock.Now()
		if snap, ok := a.fresh(now); ok {
			return snap, nil
		}
		start := time.Now()
		snap, err := a.compute(context.WithoutCancel(ctx), now)
		if err != nil {
			metrics.ObserveDashboardCompute(metrics.ResultError, time.Since(start))
			return nil, err
		}
		metrics.ObserveDashboardCompute(metrics.ResultSuccess, time.Since(start))
		a.mu.Lock()
		a.cached = &snap
		a.cachedAt = now
		a.mu.Unlock()
		return snap, nil
	})
	if err != nil {
		return dashboard.Snapshot{}, err
	}
	return v.(dashboard.Snapshot).Clone(), nil
}

// Invalidate drops the cached snapshot.
func (a *Aggregator) Invalidate() {
	if a == nil {
		return
	}
	a.mu.Lock()
	a.cached = nil
	a.cachedAt = time.Time{}
	a.mu.Unlock()
}

func (a *Aggregator) fresh(now time.Time) (dashboard.Snapshot, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.cached == nil || now.Sub(a.cachedAt) >= a.ttl {
		return dashboard.Snapshot{}, false
	}
	return a.cached.Clone(), true
}

func (a *Aggregator) compute(ctx context.Context, now time.Time) (dashboard.Snapshot, error) {
	var snap dashboard.Snapshot
	var err error

	if snap.TotalStations, err = a.source.CountStations(ctx); err != nil {
		return dashboard.Snapshot{}, err
	}
	if snap.TotalReadings, err = a.source.CountReadings(ctx); err != nil {
		return dashboard.Snapshot{}, err
	}
	if snap.TotalReports, err = a.source.CountReports(ctx); err != nil {
		return dashboard.Snapshot{}, err
	}
	snap.AvgReadingsPerStation = dashboard.Ratio(snap.TotalReadings, snap.TotalStations)
	snap.AvgReportsPerStation = dashboard.Ratio(snap.TotalReports, snap.TotalStations)

	if snap.AlertStatusCounts, err = a.source.CountAlertsByState(ctx); err != nil {
		return dashboard.Snapshot{}, err
	}
	if snap.ReportStatusCounts, err = a.source.CountReportsByStatus(ctx); err != nil {
		return dashboard.Snapshot{}, err
	}

	snap.ParameterStats = make(map[string]dashboard.BoxStats)
	for _, key := range dashboard.BoxPlotParameters {
		raw, err := a.source.ParameterValues(ctx, a.keysFor(key))
		if err != nil {
			return dashboard.Snapshot{}, err
		}
		values := make([]float64, 0, len(raw))
		for _, r := range raw {
			if v, ok := quality.ParseValue(r); ok {
				values = append(values, v)
			}
		}
		if stats, ok := dashboard.ComputeBoxStats(values); ok {
			snap.ParameterStats[key] = stats
		}
	}

	latestAlerts, err := a.source.LatestAlerts(ctx, dashboard.LatestLimit)
	if err != nil {
		return dashboard.Snapshot{}, err
	}
	snap.LatestAlerts = make([]alerts.Summary, 0, len(latestAlerts))
	for _, alert := range latestAlerts {
		snap.LatestAlerts = append(snap.LatestAlerts, alert.Summarize())
	}

	latestReports, err := a.source.LatestReports(ctx, dashboard.LatestLimit)
	if err != nil {
		return dashboard.Snapshot{}, err
	}
	if latestReports == nil {
		latestReports = []reports.Report{}
	}
	snap.LatestReports = latestReports
	snap.ComputedAt = now.UTC()
	return snap, nil
}

func (a *Aggregator) keysFor(displayKey string) []string {
	if keys := a.table.NormalizedKeys(displayKey); len(keys) > 0 {
		return keys
	}
	return []string{quality.NormalizeParameter(displayKey)}
}

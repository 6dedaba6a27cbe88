package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	masterdata "water-quality-cloud/internal/masterdata/domain"
	"water-quality-cloud/internal/observability/metrics"
	quality "water-quality-cloud/internal/quality/domain"
)

const (
	DefaultAnalyzeLookbackDays = 7
	DefaultTrendsLookbackDays  = 30
	sweepLookbackDays          = 7

	statsPrecision = 4
)

// StationAnalysis is the result of analyzing one station.
type StationAnalysis struct {
	StationID         int64             `json:"station_id"`
	StationName       string            `json:"station_name"`
	LookbackDays      int               `json:"lookback_days"`
	PredictedAlerts   []quality.Verdict `json:"predicted_alerts"`
	AlertCount        int               `json:"alert_count"`
	AnalysisTimestamp time.Time         `json:"analysis_timestamp"`
}

// AlertSummary describes one alert created by a sweep.
type AlertSummary struct {
	AlertID  int64  `json:"alert_id"`
	Station  string `json:"station"`
	Message  string `json:"message"`
	Severity string `json:"severity"`
}

// SweepResult summarises an auto-predict run.
type SweepResult struct {
	RunID             string         `json:"run_id"`
	AnalysisTimestamp time.Time      `json:"analysis_timestamp"`
	StationsAnalyzed  int            `json:"stations_analyzed"`
	AlertsCreated     int            `json:"alerts_created"`
	Alerts            []AlertSummary `json:"alerts"`
}

// StationRef identifies the station in a trend report.
type StationRef struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Location string `json:"location"`
}

// ParameterStatistics summarises one parameter's numeric values.
type ParameterStatistics struct {
	Min        float64 `json:"min"`
	Max        float64 `json:"max"`
	Avg        float64 `json:"avg"`
	Latest     float64 `json:"latest"`
	DataPoints int     `json:"data_points"`
}

// TrendReport is the detailed per-station trend view.
type TrendReport struct {
	Station            StationRef                     `json:"station"`
	Statistics         map[string]ParameterStatistics `json:"statistics"`
	Predictions        []quality.Verdict              `json:"predictions"`
	CriticalAlerts     int                            `json:"critical_alerts"`
	WarningAlerts      int                            `json:"warning_alerts"`
	AnalysisPeriodDays int                            `json:"analysis_period_days"`
}

// Service runs analyses on demand and drives station sweeps.
type Service struct {
	stations StationSource
	readings ReadingSource
	emitter  *Emitter
	table    *quality.RuleTable
	clock    clockwork.Clock
	logger   *log.Logger
}

// ServiceOption customizes the service.
type ServiceOption func(*Service)

// WithRuleTable overrides the default rule table.
func WithRuleTable(table *quality.RuleTable) ServiceOption {
	return func(s *Service) {
		if table != nil {
			s.table = table
		}
	}
}

// WithClock overrides the clock.
func WithClock(clock clockwork.Clock) ServiceOption {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewService constructs a quality service.
func NewService(stations StationSource, readings ReadingSource, emitter *Emitter, opts ...ServiceOption) (*Service, error) {
	if stations == nil {
		return nil, errors.New("quality service: nil station source")
	}
	if readings == nil {
		return nil, errors.New("quality service: nil reading source")
	}
	if emitter == nil {
		return nil, errors.New("quality service: nil emitter")
	}
	s := &Service{
		stations: stations,
		readings: readings,
		emitter:  emitter,
		table:    quality.DefaultRuleTable(),
		clock:    clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// AnalyzeStation analyzes a station's recent readings without side effects.
func (s *Service) AnalyzeStation(ctx context.Context, stationID int64, lookbackDays int) (*StationAnalysis, error) {
	if s == nil {
		return nil, errors.New("quality service: nil service")
	}
	if lookbackDays <= 0 {
		return nil, quality.ErrInvalidLookback
	}
	station, err := s.station(ctx, stationID)
	if err != nil {
		metrics.IncStationAnalysis("analyze", metrics.ResultError)
		return nil, err
	}
	now := s.clock.Now().UTC()
	verdicts, err := s.verdicts(ctx, station.ID, now, lookbackDays)
	if err != nil {
		metrics.IncStationAnalysis("analyze", metrics.ResultError)
		return nil, err
	}
	metrics.IncStationAnalysis("analyze", metrics.ResultSuccess)
	return &StationAnalysis{
		StationID:         station.ID,
		StationName:       station.Name,
		LookbackDays:      lookbackDays,
		PredictedAlerts:   nonNilVerdicts(verdicts),
		AlertCount:        len(verdicts),
		AnalysisTimestamp: now,
	}, nil
}

// AutoPredict sweeps every station and emits alerts for high and critical
// verdicts. Stations committed before a failure stay committed.
func (s *Service) AutoPredict(ctx context.Context) (*SweepResult, error) {
	if s == nil {
		return nil, errors.New("quality service: nil service")
	}
	start := time.Now()
	result, err := s.sweep(ctx)
	outcome := metrics.ResultSuccess
	if err != nil {
		outcome = metrics.ResultError
	}
	metrics.ObserveSweep(outcome, time.Since(start))
	return result, err
}

func (s *Service) sweep(ctx context.Context) (*SweepResult, error) {
	runID := uuid.NewString()
	stations, err := s.stations.List(ctx)
	if err != nil {
		return nil, err
	}
	result := &SweepResult{
		RunID:  runID,
		Alerts: []AlertSummary{},
	}
	for _, station := range stations {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		verdicts, err := s.verdicts(ctx, station.ID, s.clock.Now().UTC(), sweepLookbackDays)
		if err != nil {
			return nil, fmt.Errorf("sweep station %d: %w", station.ID, err)
		}
		created, err := s.emitter.Emit(ctx, station, verdicts)
		if err != nil {
			return nil, err
		}
		for _, c := range created {
			result.Alerts = append(result.Alerts, AlertSummary{
				AlertID:  c.Alert.ID,
				Station:  station.Name,
				Message:  c.Alert.Message,
				Severity: c.Alert.Severity,
			})
		}
	}
	result.StationsAnalyzed = len(stations)
	result.AlertsCreated = len(result.Alerts)
	result.AnalysisTimestamp = s.clock.Now().UTC()
	s.logf("sweep completed: run=%s stations=%d created=%d", runID, result.StationsAnalyzed, result.AlertsCreated)
	return result, nil
}

// GetTrends reports per-parameter statistics and verdicts for a station.
func (s *Service) GetTrends(ctx context.Context, stationID int64, lookbackDays int) (*TrendReport, error) {
	if s == nil {
		return nil, errors.New("quality service: nil service")
	}
	if lookbackDays <= 0 {
		return nil, quality.ErrInvalidLookback
	}
	station, err := s.station(ctx, stationID)
	if err != nil {
		metrics.IncStationAnalysis("trends", metrics.ResultError)
		return nil, err
	}
	since := s.clock.Now().UTC().AddDate(0, 0, -lookbackDays)
	readings, err := s.readings.ListSince(ctx, station.ID, since)
	if err != nil {
		metrics.IncStationAnalysis("trends", metrics.ResultError)
		return nil, err
	}
	samples := ToSamples(readings)
	predictions := Analyze(s.table, samples)

	report := &TrendReport{
		Station: StationRef{
			ID:       station.ID,
			Name:     station.Name,
			Location: station.Location,
		},
		Statistics:         Statistics(samples),
		Predictions:        nonNilVerdicts(predictions),
		AnalysisPeriodDays: lookbackDays,
	}
	for _, p := range predictions {
		switch p.Severity {
		case quality.SeverityCritical:
			report.CriticalAlerts++
		case quality.SeverityHigh:
			report.WarningAlerts++
		}
	}
	metrics.IncStationAnalysis("trends", metrics.ResultSuccess)
	return report, nil
}

// Statistics summarises every normalised parameter, whether or not a rule covers it.
func Statistics(samples []quality.Sample) map[string]ParameterStatistics {
	stats := make(map[string]ParameterStatistics)
	for param, values := range GroupByParameter(samples) {
		if len(values) == 0 {
			continue
		}
		lo, hi := values[0], values[0]
		for _, v := range values[1:] {
			lo = min(lo, v)
			hi = max(hi, v)
		}
		stats[param] = ParameterStatistics{
			Min:        quality.Round(lo, statsPrecision),
			Max:        quality.Round(hi, statsPrecision),
			Avg:        quality.Round(mean(values), statsPrecision),
			Latest:     quality.Round(values[len(values)-1], statsPrecision),
			DataPoints: len(values),
		}
	}
	return stats
}

func (s *Service) station(ctx context.Context, stationID int64) (*masterdata.Station, error) {
	station, err := s.stations.Get(ctx, stationID)
	if err != nil {
		return nil, err
	}
	if station == nil {
		return nil, quality.ErrStationNotFound
	}
	return station, nil
}

func (s *Service) verdicts(ctx context.Context, stationID int64, now time.Time, lookbackDays int) ([]quality.Verdict, error) {
	since := now.AddDate(0, 0, -lookbackDays)
	readings, err := s.readings.ListSince(ctx, stationID, since)
	if err != nil {
		return nil, err
	}
	return AnalyzeReadings(s.table, readings), nil
}

func (s *Service) logf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}

func nonNilVerdicts(v []quality.Verdict) []quality.Verdict {
	if v == nil {
		return []quality.Verdict{}
	}
	return v
}

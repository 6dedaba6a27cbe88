package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"water-quality-cloud/internal/alerts/infrastructure/memory"
	masterdata "water-quality-cloud/internal/masterdata/domain"
	quality "water-quality-cloud/internal/quality/domain"
	telemetry "water-quality-cloud/internal/telemetry/domain"
)

type stubStations struct {
	stations []masterdata.Station
	listErr  error
}

func (s *stubStations) List(context.Context) ([]masterdata.Station, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return append([]masterdata.Station(nil), s.stations...), nil
}

func (s *stubStations) Get(_ context.Context, id int64) (*masterdata.Station, error) {
	for _, st := range s.stations {
		if st.ID == id {
			found := st
			return &found, nil
		}
	}
	return nil, nil
}

type stubReadings struct {
	byStation map[int64][]telemetry.Reading
	err       error
}

func (s *stubReadings) ListSince(_ context.Context, stationID int64, since time.Time) ([]telemetry.Reading, error) {
	if s.err != nil {
		return nil, s.err
	}
	var out []telemetry.Reading
	for _, r := range s.byStation[stationID] {
		if !r.RecordedAt.Before(since) {
			out = append(out, r)
		}
	}
	return out, nil
}

func stationReadings(stationID int64, parameter string, values ...string) []telemetry.Reading {
	out := readings(parameter, values...)
	for i := range out {
		out[i].StationID = stationID
	}
	return out
}

type serviceFixture struct {
	clock    *clockwork.FakeClock
	alerts   *memory.AlertRepository
	stations *stubStations
	readings *stubReadings
	service  *Service
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	f := &serviceFixture{
		clock:  clockwork.NewFakeClockAt(baseTime.Add(24 * time.Hour)),
		alerts: memory.NewAlertRepository(),
		stations: &stubStations{stations: []masterdata.Station{
			{ID: 1, Name: "Athi Intake", Location: "Machakos"},
			{ID: 2, Name: "Lake Basin", Location: "Kisumu"},
			{ID: 3, Name: "Coast Works", Location: "Mombasa"},
		}},
		readings: &stubReadings{byStation: map[int64][]telemetry.Reading{}},
	}
	f.readings.byStation[1] = stationReadings(1, "lead", "0.05", "0.05", "0.05")
	f.readings.byStation[2] = stationReadings(2, "pH", "9.0", "9.0", "9.0")
	f.readings.byStation[3] = stationReadings(3, "DO", "3.0", "3.0")

	emitter, err := NewEmitter(f.alerts, WithEmitterClock(f.clock))
	require.NoError(t, err)
	f.service, err = NewService(f.stations, f.readings, emitter, WithClock(f.clock))
	require.NoError(t, err)
	return f
}

func TestNewServiceValidatesDependencies(t *testing.T) {
	emitter, err := NewEmitter(memory.NewAlertRepository())
	require.NoError(t, err)

	_, err = NewService(nil, &stubReadings{}, emitter)
	assert.Error(t, err)
	_, err = NewService(&stubStations{}, nil, emitter)
	assert.Error(t, err)
	_, err = NewService(&stubStations{}, &stubReadings{}, nil)
	assert.Error(t, err)
}

func TestAnalyzeStationReturnsVerdictsWithoutPersisting(t *testing.T) {
	f := newServiceFixture(t)

	result, err := f.service.AnalyzeStation(context.Background(), 2, DefaultAnalyzeLookbackDays)
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.StationID)
	assert.Equal(t, "Lake Basin", result.StationName)
	assert.Equal(t, 7, result.LookbackDays)
	assert.Equal(t, 1, result.AlertCount)
	require.Len(t, result.PredictedAlerts, 1)
	assert.Equal(t, "pH", result.PredictedAlerts[0].Parameter)
	assert.Equal(t, f.clock.Now().UTC(), result.AnalysisTimestamp)
	assert.Empty(t, f.alerts.All())
}

func TestAnalyzeStationErrors(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	_, err := f.service.AnalyzeStation(ctx, 99, 7)
	assert.ErrorIs(t, err, quality.ErrStationNotFound)

	_, err = f.service.AnalyzeStation(ctx, 1, 0)
	assert.ErrorIs(t, err, quality.ErrInvalidLookback)

	_, err = f.service.GetTrends(ctx, 1, -3)
	assert.ErrorIs(t, err, quality.ErrInvalidLookback)
}

func TestAnalyzeStationHonoursLookback(t *testing.T) {
	f := newServiceFixture(t)
	f.clock.Advance(10 * 24 * time.Hour)

	result, err := f.service.AnalyzeStation(context.Background(), 1, 7)
	require.NoError(t, err)
	assert.Zero(t, result.AlertCount)
	assert.NotNil(t, result.PredictedAlerts)
}

func TestAutoPredictCreatesAlertsForHighAndCritical(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	result, err := f.service.AutoPredict(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, 3, result.StationsAnalyzed)
	assert.Equal(t, 2, result.AlertsCreated)
	require.Len(t, result.Alerts, 2)
	assert.Equal(t, "Athi Intake", result.Alerts[0].Station)
	assert.Equal(t, "critical", result.Alerts[0].Severity)
	assert.Equal(t, "Coast Works", result.Alerts[1].Station)
	assert.Equal(t, "high", result.Alerts[1].Severity)
	assert.NotZero(t, result.Alerts[0].AlertID)

	stored := f.alerts.All()
	require.Len(t, stored, 2)
	assert.Equal(t, "Machakos", stored[0].Location)
	assert.Equal(t, "Mombasa", stored[1].Location)

	f.clock.Advance(time.Hour)
	again, err := f.service.AutoPredict(ctx)
	require.NoError(t, err)
	assert.Zero(t, again.AlertsCreated)
	assert.NotNil(t, again.Alerts)
	assert.NotEqual(t, result.RunID, again.RunID)
	assert.Len(t, f.alerts.All(), 2)
}

func TestAutoPredictContinuesPastStationWithoutLocation(t *testing.T) {
	f := newServiceFixture(t)
	f.stations.stations = []masterdata.Station{
		{ID: 1, Name: "Unplaced Borehole", Location: ""},
		{ID: 2, Name: "Lake Basin", Location: "Kisumu"},
	}
	f.readings.byStation[2] = stationReadings(2, "lead", "0.05", "0.05", "0.05")

	result, err := f.service.AutoPredict(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.StationsAnalyzed)
	assert.Equal(t, 2, result.AlertsCreated)

	stored := f.alerts.All()
	require.Len(t, stored, 2)
	assert.Equal(t, "", stored[0].Location)
	assert.Equal(t, "critical", stored[0].Severity)
	assert.Equal(t, "Kisumu", stored[1].Location)
	assert.Equal(t, "critical", stored[1].Severity)
}

func TestAutoPredictPropagatesSourceErrors(t *testing.T) {
	f := newServiceFixture(t)
	boom := errors.New("readings offline")
	f.readings.err = boom

	_, err := f.service.AutoPredict(context.Background())
	assert.ErrorIs(t, err, boom)

	f.readings.err = nil
	f.stations.listErr = boom
	_, err = f.service.AutoPredict(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestAutoPredictStopsOnCancelledContext(t *testing.T) {
	f := newServiceFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.service.AutoPredict(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, f.alerts.All())
}

func TestGetTrendsStatisticsAndCounts(t *testing.T) {
	f := newServiceFixture(t)
	var rs []telemetry.Reading
	rs = append(rs, stationReadings(1, "lead", "0.01", "0.02", "0.03")...)
	rs = append(rs, stationReadings(1, "Temperature", "20", "22")...)
	rs = append(rs, stationReadings(1, "DO", "3.0")...)
	rs = append(rs, stationReadings(1, "pH", "3.14", "3.14abc")...)
	f.readings.byStation[1] = rs

	report, err := f.service.GetTrends(context.Background(), 1, DefaultTrendsLookbackDays)
	require.NoError(t, err)
	assert.Equal(t, StationRef{ID: 1, Name: "Athi Intake", Location: "Machakos"}, report.Station)
	assert.Equal(t, 30, report.AnalysisPeriodDays)

	lead := report.Statistics["lead"]
	assert.Equal(t, 0.01, lead.Min)
	assert.Equal(t, 0.03, lead.Max)
	assert.Equal(t, 0.02, lead.Avg)
	assert.Equal(t, 0.03, lead.Latest)
	assert.Equal(t, 3, lead.DataPoints)

	temp := report.Statistics["temperature"]
	assert.Equal(t, 21.0, temp.Avg)
	assert.Equal(t, 2, temp.DataPoints)

	ph := report.Statistics["ph"]
	assert.Equal(t, 1, ph.DataPoints, "malformed values are dropped")
	assert.Equal(t, 3.14, ph.Latest)

	assert.Contains(t, report.Statistics, "do")
	require.Len(t, report.Predictions, 3)
	assert.Equal(t, 1, report.CriticalAlerts)
	assert.Equal(t, 1, report.WarningAlerts)
	assert.Empty(t, f.alerts.All())
}

func TestStatisticsRoundsToFourPlaces(t *testing.T) {
	stats := Statistics([]quality.Sample{
		{Parameter: "lead", Value: 0.01},
		{Parameter: "lead", Value: 0.01},
		{Parameter: "lead", Value: 0.02},
	})
	assert.Equal(t, 0.0133, stats["lead"].Avg)
}

package integration_test

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	alertapp "water-quality-cloud/internal/alerts/application"
	alertrepo "water-quality-cloud/internal/alerts/infrastructure/postgres"
	dashboardapp "water-quality-cloud/internal/dashboard/application"
	dashboardrepo "water-quality-cloud/internal/dashboard/infrastructure/postgres"
	masterdatarepo "water-quality-cloud/internal/masterdata/infrastructure/postgres"
	qualityapp "water-quality-cloud/internal/quality/application"
	telemetrypostgres "water-quality-cloud/internal/telemetry/infrastructure/postgres"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func TestSweepClosedLoop_Postgres(t *testing.T) {
	dsn := os.Getenv("PG_DSN")
	if dsn == "" {
		t.Skip("PG_DSN not set")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	if !tableExists(db, "water_stations") ||
		!tableExists(db, "station_readings") ||
		!tableExists(db, "reports") ||
		!tableExists(db, "alerts") {
		t.Skip("missing tables; run migrations")
	}

	ctx := context.Background()
	_, _ = db.ExecContext(ctx, "DELETE FROM alerts")
	_, _ = db.ExecContext(ctx, "DELETE FROM station_readings")
	_, _ = db.ExecContext(ctx, "DELETE FROM reports")
	_, _ = db.ExecContext(ctx, "DELETE FROM water_stations")

	now := time.Now().UTC().Truncate(time.Second)
	var leadStation, phStation int64
	if err := db.QueryRowContext(ctx, `
INSERT INTO water_stations (name, location, latitude, longitude)
VALUES ($1, $2, $3, $4) RETURNING id`, "Athi Intake", "Machakos", -1.52, 37.26).Scan(&leadStation); err != nil {
		t.Fatalf("insert station: %v", err)
	}
	if err := db.QueryRowContext(ctx, `
INSERT INTO water_stations (name, location) VALUES ($1, $2) RETURNING id`, "Lake Basin", "Kisumu").Scan(&phStation); err != nil {
		t.Fatalf("insert station: %v", err)
	}
	insertReading := func(stationID int64, parameter, value string, at time.Time) {
		t.Helper()
		if _, err := db.ExecContext(ctx, `
INSERT INTO station_readings (station_id, parameter, value, recorded_at)
VALUES ($1, $2, $3, $4)`, stationID, parameter, value, at); err != nil {
			t.Fatalf("insert reading: %v", err)
		}
	}
	for i := 0; i < 3; i++ {
		at := now.Add(-time.Duration(3-i) * time.Hour)
		insertReading(leadStation, "Lead", "0.05", at)
		insertReading(phStation, "pH", "9.1", at)
	}
	insertReading(leadStation, "lead", "n/a", now.Add(-30*time.Minute))
	insertReading(phStation, "Dissolved Oxygen", "6.5", now.Add(-time.Hour))

	clock := clockwork.NewFakeClockAt(now)
	stations := masterdatarepo.NewStationRepository(db)
	alerts := alertrepo.NewAlertRepository(db)
	emitter, err := qualityapp.NewEmitter(alerts, qualityapp.WithEmitterClock(clock))
	if err != nil {
		t.Fatalf("new emitter: %v", err)
	}
	service, err := qualityapp.NewService(stations, telemetrypostgres.NewReadingQuery(db), emitter, qualityapp.WithClock(clock))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	result, err := service.AutoPredict(ctx)
	if err != nil {
		t.Fatalf("auto predict: %v", err)
	}
	if result.StationsAnalyzed != 2 || result.AlertsCreated != 1 {
		t.Fatalf("expected 2 stations and 1 alert, got %+v", result)
	}

	clock.Advance(time.Hour)
	again, err := service.AutoPredict(ctx)
	if err != nil {
		t.Fatalf("second auto predict: %v", err)
	}
	if again.AlertsCreated != 0 {
		t.Fatalf("expected dedup on second sweep, got %d", again.AlertsCreated)
	}

	active, err := alerts.ListActive(ctx)
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(active) != 1 || active[0].Location != "Machakos" || active[0].Severity != "critical" {
		t.Fatalf("unexpected active alerts: %+v", active)
	}
	if active[0].StationID == nil || *active[0].StationID != leadStation {
		t.Fatalf("expected station id %d on alert", leadStation)
	}

	alertService, err := alertapp.NewService(alerts, alertapp.WithClock(clock))
	if err != nil {
		t.Fatalf("new alert service: %v", err)
	}
	if _, err := alertService.Resolve(ctx, active[0].ID); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	aggregator, err := dashboardapp.NewAggregator(dashboardrepo.NewSource(db), dashboardapp.WithClock(clock))
	if err != nil {
		t.Fatalf("new aggregator: %v", err)
	}
	snap, err := aggregator.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.TotalStations != 2 || snap.TotalReadings != 8 {
		t.Fatalf("unexpected totals: %+v", snap)
	}
	if snap.AvgReadingsPerStation != 4 {
		t.Fatalf("expected 4 readings per station, got %v", snap.AvgReadingsPerStation)
	}
	if snap.AlertStatusCounts.Active != 0 || snap.AlertStatusCounts.Resolved != 1 {
		t.Fatalf("unexpected alert counts: %+v", snap.AlertStatusCounts)
	}
	if got := snap.ParameterStats["lead"].Count; got != 3 {
		t.Fatalf("expected 3 numeric lead values, got %d", got)
	}
	if got := snap.ParameterStats["DO"].Count; got != 1 {
		t.Fatalf("expected dissolved oxygen gathered under DO, got %d", got)
	}
}

func tableExists(db *sql.DB, table string) bool {
	var exists bool
	err := db.QueryRow(`
SELECT EXISTS (
	SELECT 1
	FROM information_schema.tables
	WHERE table_schema = 'public' AND table_name = $1
)`, table).Scan(&exists)
	if err != nil {
		return false
	}
	return exists
}

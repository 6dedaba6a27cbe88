package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	alerts "water-quality-cloud/internal/alerts/domain"
	dashboard "water-quality-cloud/internal/dashboard/domain"
	reports "water-quality-cloud/internal/reports/domain"
)

// Tables names the relations the dashboard reads.
type Tables struct {
	Stations string
	Readings string
	Reports  string
	Alerts   string
}

// DefaultTables matches the service schema.
var DefaultTables = Tables{
	Stations: "water_stations",
	Readings: "station_readings",
	Reports:  "reports",
	Alerts:   "alerts",
}

// Source is a read-only Postgres implementation of the dashboard source.
type Source struct {
	db     *sql.DB
	tables Tables
}

// SourceOption configures the source.
type SourceOption func(*Source)

// WithTables overrides the default table names.
func WithTables(tables Tables) SourceOption {
	return func(s *Source) {
		if tables.Stations != "" {
			s.tables.Stations = tables.Stations
		}
		if tables.Readings != "" {
			s.tables.Readings = tables.Readings
		}
		if tables.Reports != "" {
			s.tables.Reports = tables.Reports
		}
		if tables.Alerts != "" {
			s.tables.Alerts = tables.Alerts
		}
	}
}

// NewSource constructs a source.
func NewSource(db *sql.DB, opts ...SourceOption) *Source {
	s := &Source{db: db, tables: DefaultTables}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Source) CountStations(ctx context.Context) (int64, error) {
	return s.count(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", s.tables.Stations))
}

func (s *Source) CountReadings(ctx context.Context) (int64, error) {
	return s.count(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", s.tables.Readings))
}

func (s *Source) CountReports(ctx context.Context) (int64, error) {
	return s.count(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", s.tables.Reports))
}

func (s *Source) CountAlertsByState(ctx context.Context) (dashboard.AlertStatusCounts, error) {
	if s == nil || s.db == nil {
		return dashboard.AlertStatusCounts{}, errors.New("dashboard source: nil db")
	}
	query := fmt.Sprintf(`
SELECT
	COUNT(*) FILTER (WHERE is_active),
	COUNT(*) FILTER (WHERE NOT is_active)
FROM %s`, s.tables.Alerts)
	var counts dashboard.AlertStatusCounts
	if err := s.db.QueryRowContext(ctx, query).Scan(&counts.Active, &counts.Resolved); err != nil {
		return dashboard.AlertStatusCounts{}, err
	}
	return counts, nil
}

func (s *Source) CountReportsByStatus(ctx context.Context) (dashboard.ReportStatusCounts, error) {
	if s == nil || s.db == nil {
		return dashboard.ReportStatusCounts{}, errors.New("dashboard source: nil db")
	}
	query := fmt.Sprintf(`
SELECT
	COUNT(*) FILTER (WHERE status = $1),
	COUNT(*) FILTER (WHERE status = $2),
	COUNT(*) FILTER (WHERE status = $3)
FROM %s`, s.tables.Reports)
	var counts dashboard.ReportStatusCounts
	err := s.db.QueryRowContext(ctx, query,
		string(reports.StatusPending),
		string(reports.StatusVerified),
		string(reports.StatusRejected),
	).Scan(&counts.Pending, &counts.Verified, &counts.Rejected)
	if err != nil {
		return dashboard.ReportStatusCounts{}, err
	}
	return counts, nil
}

// ParameterValues matches the same normalisation the analyzer applies.
func (s *Source) ParameterValues(ctx context.Context, keys []string) ([]string, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("dashboard source: nil db")
	}
	if len(keys) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`
SELECT value
FROM %s
WHERE regexp_replace(lower(btrim(parameter)), '\s+', '_', 'g') = ANY($1)`, s.tables.Readings)
	rows, err := s.db.QueryContext(ctx, query, keys)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var value sql.NullString
		if err := rows.Scan(&value); err != nil {
			return nil, err
		}
		if value.Valid {
			values = append(values, value.String)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return values, nil
}

func (s *Source) LatestAlerts(ctx context.Context, limit int) ([]alerts.Alert, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("dashboard source: nil db")
	}
	query := fmt.Sprintf(`
SELECT id, type, message, location, severity, is_active, issued_at
FROM %s
ORDER BY issued_at DESC, id DESC
LIMIT $1`, s.tables.Alerts)
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []alerts.Alert
	for rows.Next() {
		var (
			alert     alerts.Alert
			alertType string
			severity  sql.NullString
		)
		if err := rows.Scan(&alert.ID, &alertType, &alert.Message, &alert.Location, &severity, &alert.IsActive, &alert.IssuedAt); err != nil {
			return nil, err
		}
		alert.Type = alerts.Type(alertType)
		alert.Severity = severity.String
		alert.IssuedAt = alert.IssuedAt.UTC()
		list = append(list, alert)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return list, nil
}

func (s *Source) LatestReports(ctx context.Context, limit int) ([]reports.Report, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("dashboard source: nil db")
	}
	query := fmt.Sprintf(`
SELECT id, location, description, water_source, station_name, status, created_at
FROM %s
ORDER BY created_at DESC, id DESC
LIMIT $1`, s.tables.Reports)
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []reports.Report
	for rows.Next() {
		var (
			report      reports.Report
			description sql.NullString
			waterSource sql.NullString
			stationName sql.NullString
			status      string
		)
		if err := rows.Scan(&report.ID, &report.Location, &description, &waterSource, &stationName, &status, &report.CreatedAt); err != nil {
			return nil, err
		}
		report.Description = description.String
		report.WaterSource = waterSource.String
		report.StationName = stationName.String
		report.Status = reports.Status(status)
		report.CreatedAt = report.CreatedAt.UTC()
		list = append(list, report)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return list, nil
}

func (s *Source) count(ctx context.Context, query string) (int64, error) {
	if s == nil || s.db == nil {
		return 0, errors.New("dashboard source: nil db")
	}
	var count int64
	if err := s.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

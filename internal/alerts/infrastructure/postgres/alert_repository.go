package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	alertapp "water-quality-cloud/internal/alerts/application"
	alerts "water-quality-cloud/internal/alerts/domain"
)

const defaultAlertsTable = "alerts"

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// AlertRepository is a Postgres repository for alerts.
type AlertRepository struct {
	db    *sql.DB
	table string
}

// AlertOption configures the repository.
type AlertOption func(*AlertRepository)

// WithAlertTable overrides the default table name.
func WithAlertTable(table string) AlertOption {
	return func(repo *AlertRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// NewAlertRepository constructs a repository.
func NewAlertRepository(db *sql.DB, opts ...AlertOption) *AlertRepository {
	repo := &AlertRepository{db: db, table: defaultAlertsTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// Begin opens a transaction scoped unit of work.
func (r *AlertRepository) Begin(ctx context.Context) (alertapp.UnitOfWork, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("alert repo: nil db")
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &alertTx{tx: tx, table: r.table}, nil
}

// Create inserts an alert outside a unit of work.
func (r *AlertRepository) Create(ctx context.Context, alert *alerts.Alert) error {
	if r == nil || r.db == nil {
		return errors.New("alert repo: nil db")
	}
	return insertAlert(ctx, r.db, r.table, alert)
}

// GetByID fetches an alert by id.
func (r *AlertRepository) GetByID(ctx context.Context, id int64) (*alerts.Alert, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("alert repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT %s
FROM %s
WHERE id = $1`, alertColumns, r.table)
	return scanAlert(r.db.QueryRowContext(ctx, query, id))
}

// ListActive lists active alerts, newest first.
func (r *AlertRepository) ListActive(ctx context.Context) ([]alerts.Alert, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("alert repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT %s
FROM %s
WHERE is_active = TRUE
ORDER BY issued_at DESC, id DESC`, alertColumns, r.table)
	return queryAlerts(ctx, r.db, query)
}

// ListByType lists alerts of one type, newest first.
func (r *AlertRepository) ListByType(ctx context.Context, alertType alerts.Type, activeOnly bool) ([]alerts.Alert, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("alert repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT %s
FROM %s
WHERE type = $1`, alertColumns, r.table)
	if activeOnly {
		query += " AND is_active = TRUE"
	}
	query += " ORDER BY issued_at DESC, id DESC"
	return queryAlerts(ctx, r.db, query, string(alertType))
}

// Resolve marks an alert inactive and returns the updated row.
func (r *AlertRepository) Resolve(ctx context.Context, id int64, resolvedAt time.Time) (*alerts.Alert, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("alert repo: nil db")
	}
	query := fmt.Sprintf(`
UPDATE %s
SET is_active = FALSE, resolved_at = $1
WHERE id = $2
RETURNING %s`, r.table, alertColumns)
	return scanAlert(r.db.QueryRowContext(ctx, query, resolvedAt, id))
}

type alertTx struct {
	tx    *sql.Tx
	table string
}

// FindActiveByLocation sees rows inserted earlier in the same transaction.
func (t *alertTx) FindActiveByLocation(ctx context.Context, location string, since time.Time) (*alerts.Alert, error) {
	if t == nil || t.tx == nil {
		return nil, errors.New("alert tx: nil tx")
	}
	query := fmt.Sprintf(`
SELECT %s
FROM %s
WHERE location = $1 AND is_active = TRUE AND issued_at >= $2
ORDER BY issued_at DESC
LIMIT 1`, alertColumns, t.table)
	return scanAlert(t.tx.QueryRowContext(ctx, query, location, since))
}

func (t *alertTx) Create(ctx context.Context, alert *alerts.Alert) error {
	if t == nil || t.tx == nil {
		return errors.New("alert tx: nil tx")
	}
	return insertAlert(ctx, t.tx, t.table, alert)
}

func (t *alertTx) Commit() error {
	if t == nil || t.tx == nil {
		return errors.New("alert tx: nil tx")
	}
	return t.tx.Commit()
}

func (t *alertTx) Rollback() error {
	if t == nil || t.tx == nil {
		return errors.New("alert tx: nil tx")
	}
	err := t.tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}

const alertColumns = `id, type, message, location, latitude, longitude, severity,
	station_id, report_id, issued_at, resolved_at, is_active`

func insertAlert(ctx context.Context, db DBTX, table string, alert *alerts.Alert) error {
	if alert == nil {
		return errors.New("alert repo: nil alert")
	}
	if err := alert.Validate(); err != nil {
		return err
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	type, message, location, latitude, longitude, severity,
	station_id, report_id, issued_at, resolved_at, is_active
) VALUES (
	$1, $2, $3, $4, $5, $6,
	$7, $8, $9, $10, $11
)
RETURNING id`, table)
	return db.QueryRowContext(ctx, query,
		string(alert.Type),
		alert.Message,
		alert.Location,
		nullableFloat(alert.Latitude),
		nullableFloat(alert.Longitude),
		alert.Severity,
		nullableInt(alert.StationID),
		nullableInt(alert.ReportID),
		alert.IssuedAt.UTC(),
		nullableTime(alert.ResolvedAt),
		alert.IsActive,
	).Scan(&alert.ID)
}

func queryAlerts(ctx context.Context, db DBTX, query string, args ...any) ([]alerts.Alert, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []alerts.Alert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *alert)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

type alertScanner interface {
	Scan(dest ...any) error
}

func scanAlert(row alertScanner) (*alerts.Alert, error) {
	var (
		alert      alerts.Alert
		alertType  string
		latitude   sql.NullFloat64
		longitude  sql.NullFloat64
		severity   sql.NullString
		stationID  sql.NullInt64
		reportID   sql.NullInt64
		resolvedAt sql.NullTime
	)
	if err := row.Scan(
		&alert.ID,
		&alertType,
		&alert.Message,
		&alert.Location,
		&latitude,
		&longitude,
		&severity,
		&stationID,
		&reportID,
		&alert.IssuedAt,
		&resolvedAt,
		&alert.IsActive,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	alert.Type = alerts.Type(alertType)
	alert.IssuedAt = alert.IssuedAt.UTC()
	if latitude.Valid {
		v := latitude.Float64
		alert.Latitude = &v
	}
	if longitude.Valid {
		v := longitude.Float64
		alert.Longitude = &v
	}
	if severity.Valid {
		alert.Severity = severity.String
	}
	if stationID.Valid {
		v := stationID.Int64
		alert.StationID = &v
	}
	if reportID.Valid {
		v := reportID.Int64
		alert.ReportID = &v
	}
	if resolvedAt.Valid {
		v := resolvedAt.Time.UTC()
		alert.ResolvedAt = &v
	}
	return &alert, nil
}

func nullableFloat(value *float64) sql.NullFloat64 {
	if value == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *value, Valid: true}
}

func nullableInt(value *int64) sql.NullInt64 {
	if value == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *value, Valid: true}
}

func nullableTime(value *time.Time) sql.NullTime {
	if value == nil || value.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: value.UTC(), Valid: true}
}

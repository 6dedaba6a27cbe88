package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	telemetry "water-quality-cloud/internal/telemetry/domain"
)

const defaultReadingsTable = "station_readings"

// ReadingQuery is a Postgres query implementation.
type ReadingQuery struct {
	db    *sql.DB
	table string
}

// QueryOption configures the query.
type QueryOption func(*ReadingQuery)

// WithReadingsTable overrides the default table name.
func WithReadingsTable(table string) QueryOption {
	return func(q *ReadingQuery) {
		if table != "" {
			q.table = table
		}
	}
}

// NewReadingQuery constructs a query with default table name.
func NewReadingQuery(db *sql.DB, opts ...QueryOption) *ReadingQuery {
	query := &ReadingQuery{db: db, table: defaultReadingsTable}
	for _, opt := range opts {
		opt(query)
	}
	return query
}

// ListSince returns readings recorded at or after since, oldest first.
func (q *ReadingQuery) ListSince(ctx context.Context, stationID int64, since time.Time) ([]telemetry.Reading, error) {
	if q == nil || q.db == nil {
		return nil, errors.New("reading query: nil db")
	}
	if stationID <= 0 {
		return nil, errors.New("reading query: invalid station id")
	}

	query := fmt.Sprintf(`
SELECT id, station_id, parameter, value, recorded_at
FROM %s
WHERE station_id = $1
	AND recorded_at >= $2
ORDER BY recorded_at ASC, id ASC`, q.table)

	rows, err := q.db.QueryContext(ctx, query, stationID, since.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var readings []telemetry.Reading
	for rows.Next() {
		var (
			reading telemetry.Reading
			value   sql.NullString
		)
		if err := rows.Scan(&reading.ID, &reading.StationID, &reading.Parameter, &value, &reading.RecordedAt); err != nil {
			return nil, err
		}
		reading.Value = value.String
		reading.RecordedAt = reading.RecordedAt.UTC()
		readings = append(readings, reading)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return readings, nil
}

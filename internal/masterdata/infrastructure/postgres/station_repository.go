package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	masterdata "water-quality-cloud/internal/masterdata/domain"
)

const defaultStationsTable = "water_stations"

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// StationRepository is a Postgres implementation for stations.
type StationRepository struct {
	db    DBTX
	table string
}

// NewStationRepository constructs a repository.
func NewStationRepository(db DBTX, opts ...StationOption) *StationRepository {
	repo := &StationRepository{db: db, table: defaultStationsTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// StationOption configures the repository.
type StationOption func(*StationRepository)

// WithStationTable overrides the default table name.
func WithStationTable(table string) StationOption {
	return func(repo *StationRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// Get loads a station by id. It returns nil, nil when the station does not exist.
func (r *StationRepository) Get(ctx context.Context, id int64) (*masterdata.Station, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("station repo: nil db")
	}
	if id <= 0 {
		return nil, nil
	}

	query := fmt.Sprintf(`
SELECT id, name, location, latitude, longitude, managed_by
FROM %s
WHERE id = $1
LIMIT 1`, r.table)

	station, err := scanStation(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return station, nil
}

// List returns every station ordered by id.
func (r *StationRepository) List(ctx context.Context) ([]masterdata.Station, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("station repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT id, name, location, latitude, longitude, managed_by
FROM %s
ORDER BY id ASC`, r.table)

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stations []masterdata.Station
	for rows.Next() {
		station, err := scanStation(rows)
		if err != nil {
			return nil, err
		}
		stations = append(stations, *station)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return stations, nil
}

type stationScanner interface {
	Scan(dest ...any) error
}

func scanStation(row stationScanner) (*masterdata.Station, error) {
	var (
		station   masterdata.Station
		location  sql.NullString
		latitude  sql.NullFloat64
		longitude sql.NullFloat64
		managedBy sql.NullString
	)
	if err := row.Scan(&station.ID, &station.Name, &location, &latitude, &longitude, &managedBy); err != nil {
		return nil, err
	}
	station.Location = location.String
	station.ManagedBy = managedBy.String
	if latitude.Valid {
		v := latitude.Float64
		station.Latitude = &v
	}
	if longitude.Valid {
		v := longitude.Float64
		station.Longitude = &v
	}
	return &station, nil
}

package application

import (
	"context"
	"time"

	alertapp "water-quality-cloud/internal/alerts/application"
	masterdata "water-quality-cloud/internal/masterdata/domain"
	telemetry "water-quality-cloud/internal/telemetry/domain"
)

// ReadingSource loads a station's readings recorded at or after since,
// ascending by recorded time.
type ReadingSource interface {
	ListSince(ctx context.Context, stationID int64, since time.Time) ([]telemetry.Reading, error)
}

// StationSource lists stations. Get returns nil, nil for an unknown id.
type StationSource interface {
	List(ctx context.Context) ([]masterdata.Station, error)
	Get(ctx context.Context, id int64) (*masterdata.Station, error)
}

// AlertStore opens per-station alert units of work.
type AlertStore = alertapp.Store

// AlertUnitOfWork is one station's transactional alert batch.
type AlertUnitOfWork = alertapp.UnitOfWork

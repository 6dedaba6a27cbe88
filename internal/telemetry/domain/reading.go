package telemetry

import (
	"context"
	"time"
)

// Reading is a stored station reading. Value keeps the producer's text form;
// numeric conversion happens when readings enter analysis.
type Reading struct {
	ID         int64     `json:"id"`
	StationID  int64     `json:"station_id"`
	Parameter  string    `json:"parameter"`
	Value      string    `json:"value"`
	RecordedAt time.Time `json:"recorded_at"`
}

// ReadingQuery loads readings for analysis.
type ReadingQuery interface {
	ListSince(ctx context.Context, stationID int64, since time.Time) ([]Reading, error)
}

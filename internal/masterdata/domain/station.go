package masterdata

import (
	"context"
	"errors"
)

// Station is a water monitoring station.
type Station struct {
	ID        int64    `json:"id"`
	Name      string   `json:"name"`
	Location  string   `json:"location"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	ManagedBy string   `json:"managed_by,omitempty"`
}

// Validate checks station invariants.
func (s Station) Validate() error {
	if s.ID <= 0 {
		return errors.New("station: invalid id")
	}
	if s.Name == "" {
		return errors.New("station: empty name")
	}
	if s.Location == "" {
		return errors.New("station: empty location")
	}
	return nil
}

// StationRepository reads stations.
type StationRepository interface {
	Get(ctx context.Context, id int64) (*Station, error)
	List(ctx context.Context) ([]Station, error)
}

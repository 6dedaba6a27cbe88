package reports

import "time"

// Status is the review state of a citizen report.
type Status string

const (
	StatusPending  Status = "pending"
	StatusVerified Status = "verified"
	StatusRejected Status = "rejected"
)

// Report is the read-only projection of a submitted water report.
type Report struct {
	ID          int64     `json:"id"`
	Location    string    `json:"location"`
	Description string    `json:"description"`
	WaterSource string    `json:"water_source"`
	StationName string    `json:"station_name,omitempty"`
	Status      Status    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

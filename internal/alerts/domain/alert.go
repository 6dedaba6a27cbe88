package alerts

import (
	"fmt"
	"time"
)

// Type classifies an alert.
type Type string

const (
	TypeBoilNotice    Type = "boil_notice"
	TypeContamination Type = "contamination"
	TypeOutage        Type = "outage"
)

// ParseType validates an alert type string.
func ParseType(value string) (Type, error) {
	switch Type(value) {
	case TypeBoilNotice, TypeContamination, TypeOutage:
		return Type(value), nil
	default:
		return "", ErrInvalidType
	}
}

// Alert is a public water-quality alert.
type Alert struct {
	ID         int64      `json:"id"`
	Type       Type       `json:"type"`
	Message    string     `json:"message"`
	Location   string     `json:"location"`
	Latitude   *float64   `json:"latitude"`
	Longitude  *float64   `json:"longitude"`
	Severity   string     `json:"severity"`
	StationID  *int64     `json:"station_id"`
	ReportID   *int64     `json:"report_id"`
	IssuedAt   time.Time  `json:"issued_at"`
	ResolvedAt *time.Time `json:"resolved_at"`
	IsActive   bool       `json:"is_active"`
}

// Validate checks alert invariants before persistence. An empty location is
// allowed: stations may have one, and it still works as a dedup key.
func (a Alert) Validate() error {
	if _, err := ParseType(string(a.Type)); err != nil {
		return err
	}
	if a.Message == "" {
		return fmt.Errorf("%w: empty message", ErrInvalidAlert)
	}
	if a.IssuedAt.IsZero() {
		return fmt.Errorf("%w: zero issued_at", ErrInvalidAlert)
	}
	return nil
}

// Summary is the compact projection used by dashboards.
type Summary struct {
	ID       int64     `json:"id"`
	Type     Type      `json:"type"`
	Message  string    `json:"message"`
	Location string    `json:"location"`
	Severity string    `json:"severity"`
	IsActive bool      `json:"is_active"`
	IssuedAt time.Time `json:"issued_at"`
}

// Summarize projects an alert to its summary.
func (a Alert) Summarize() Summary {
	return Summary{
		ID:       a.ID,
		Type:     a.Type,
		Message:  a.Message,
		Location: a.Location,
		Severity: a.Severity,
		IsActive: a.IsActive,
		IssuedAt: a.IssuedAt,
	}
}

package quality

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrStationNotFound indicates an unknown station id.
	ErrStationNotFound = errors.New("quality: station not found")
	// ErrInvalidLookback indicates a non-positive lookback window.
	ErrInvalidLookback = errors.New("quality: lookback days must be positive")
)

// Trend is the direction heuristic attached to a verdict.
type Trend string

const (
	TrendWorsening Trend = "worsening"
	TrendImproving Trend = "improving"
)

// Sample is one numeric observation of a normalised parameter.
type Sample struct {
	Parameter  string
	Value      float64
	RecordedAt time.Time
}

// Threshold echoes the rule bounds a verdict was evaluated against.
type Threshold struct {
	Min      *float64 `json:"min"`
	Max      *float64 `json:"max"`
	Severity Severity `json:"severity"`
}

// Verdict is the analyzer's judgment that a parameter warrants an alert.
type Verdict struct {
	Parameter   string    `json:"parameter"`
	Message     string    `json:"message"`
	Severity    Severity  `json:"severity"`
	Threshold   Threshold `json:"threshold"`
	RecentValue float64   `json:"recent_value"`
	Trend       Trend     `json:"trend"`
}

// ParseValue converts a stored reading value. Anything that is not a finite
// number is rejected.
func ParseValue(raw string) (float64, bool) {
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, false
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, false
	}
	return value, true
}

// Round rounds to the given number of decimal places using the shortest
// correctly rounded decimal representation.
func Round(value float64, places int) float64 {
	rounded, err := strconv.ParseFloat(strconv.FormatFloat(value, 'f', places, 64), 64)
	if err != nil {
		return value
	}
	return rounded
}

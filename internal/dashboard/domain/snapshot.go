package dashboard

import (
	"math"
	"sort"
	"strconv"
	"time"

	alerts "water-quality-cloud/internal/alerts/domain"
	reports "water-quality-cloud/internal/reports/domain"
)

// BoxPlotParameters are the display keys summarised in the box plot, in order.
var BoxPlotParameters = []string{"pH", "DO", "turbidity", "lead", "arsenic"}

const (
	LatestLimit = 3

	ratioPrecision = 2
	boxPrecision   = 4
)

// AlertStatusCounts splits alerts by active flag.
type AlertStatusCounts struct {
	Active   int64 `json:"active"`
	Resolved int64 `json:"resolved"`
}

// ReportStatusCounts splits reports by review status.
type ReportStatusCounts struct {
	Pending  int64 `json:"pending"`
	Verified int64 `json:"verified"`
	Rejected int64 `json:"rejected"`
}

// BoxStats is a five-number summary using nearest-rank indices.
type BoxStats struct {
	Min    float64 `json:"min"`
	Q1     float64 `json:"q1"`
	Median float64 `json:"median"`
	Q3     float64 `json:"q3"`
	Max    float64 `json:"max"`
	Count  int     `json:"count"`
}

// Snapshot is the cached dashboard payload.
type Snapshot struct {
	TotalStations         int64               `json:"total_stations"`
	TotalReadings         int64               `json:"total_readings"`
	TotalReports          int64               `json:"total_reports"`
	AvgReadingsPerStation float64             `json:"avg_readings_per_station"`
	AvgReportsPerStation  float64             `json:"avg_reports_per_station"`
	AlertStatusCounts     AlertStatusCounts   `json:"alert_status_counts"`
	ReportStatusCounts    ReportStatusCounts  `json:"report_status_counts"`
	ParameterStats        map[string]BoxStats `json:"parameter_stats"`
	LatestAlerts          []alerts.Summary    `json:"latest_alerts"`
	LatestReports         []reports.Report    `json:"latest_reports"`
	ComputedAt            time.Time           `json:"computed_at"`
}

// Clone returns a copy that shares no map or slice storage with s.
func (s Snapshot) Clone() Snapshot {
	out := s
	if s.ParameterStats != nil {
		out.ParameterStats = make(map[string]BoxStats, len(s.ParameterStats))
		for key, stats := range s.ParameterStats {
			out.ParameterStats[key] = stats
		}
	}
	if s.LatestAlerts != nil {
		out.LatestAlerts = append(make([]alerts.Summary, 0, len(s.LatestAlerts)), s.LatestAlerts...)
	}
	if s.LatestReports != nil {
		out.LatestReports = append(make([]reports.Report, 0, len(s.LatestReports)), s.LatestReports...)
	}
	return out
}

// Ratio divides and rounds to two places. A zero denominator yields 0.
func Ratio(numerator, denominator int64) float64 {
	if denominator == 0 {
		return 0
	}
	return round(float64(numerator)/float64(denominator), ratioPrecision)
}

// ComputeBoxStats summarises values. It reports false when values is empty.
// Quartiles are values[n/4], values[n/2] and values[3n/4] of the sorted copy.
func ComputeBoxStats(values []float64) (BoxStats, bool) {
	n := len(values)
	if n == 0 {
		return BoxStats{}, false
	}
	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)
	return BoxStats{
		Min:    round(sorted[0], boxPrecision),
		Q1:     round(sorted[n/4], boxPrecision),
		Median: round(sorted[n/2], boxPrecision),
		Q3:     round(sorted[(3*n)/4], boxPrecision),
		Max:    round(sorted[n-1], boxPrecision),
		Count:  n,
	}, true
}

func round(value float64, places int) float64 {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return value
	}
	rounded, err := strconv.ParseFloat(strconv.FormatFloat(value, 'f', places, 64), 64)
	if err != nil {
		return value
	}
	return rounded
}

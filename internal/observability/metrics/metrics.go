package metrics

import (
	"database/sql"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "waterquality_"

	resultSuccess = "success"
	resultError   = "error"

	cacheHit  = "hit"
	cacheMiss = "miss"
)

var (
	registerOnce sync.Once

	sweepTotal   *prometheus.CounterVec
	sweepLatency *prometheus.HistogramVec

	stationAnalysisTotal *prometheus.CounterVec

	alertsCreated    *prometheus.CounterVec
	alertsSuppressed prometheus.Counter
	alertEventsTotal *prometheus.CounterVec

	readingsDropped prometheus.Counter

	dashboardCache   *prometheus.CounterVec
	dashboardLatency *prometheus.HistogramVec
	dashboardExports *prometheus.CounterVec
)

// Init registers metrics and DB-backed gauges.
func Init(db *sql.DB, logger *log.Logger) {
	registerOnce.Do(func() {
		sweepTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "sweep_total",
				Help: "Total station sweeps by result",
			},
			[]string{"result"},
		)
		sweepLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "sweep_latency_seconds",
				Help:    "Station sweep latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		stationAnalysisTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "station_analysis_total",
				Help: "Total single-station analyses by kind and result",
			},
			[]string{"kind", "result"},
		)
		alertsCreated = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "alerts_created_total",
				Help: "Alerts created by the engine by severity",
			},
			[]string{"severity"},
		)
		alertsSuppressed = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "alerts_suppressed_total",
				Help: "Verdicts suppressed by an active alert at the same location",
			},
		)
		alertEventsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "alert_events_total",
				Help: "Alert lifecycle events by type",
			},
			[]string{"event"},
		)
		readingsDropped = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "readings_dropped_total",
				Help: "Readings dropped because the value was not numeric",
			},
		)
		dashboardCache = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "dashboard_cache_total",
				Help: "Dashboard snapshot lookups by cache result",
			},
			[]string{"result"},
		)
		dashboardLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "dashboard_compute_latency_seconds",
				Help:    "Dashboard recomputation latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		dashboardExports = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "dashboard_export_total",
				Help: "Dashboard exports by format and result",
			},
			[]string{"format", "result"},
		)

		prometheus.MustRegister(
			sweepTotal,
			sweepLatency,
			stationAnalysisTotal,
			alertsCreated,
			alertsSuppressed,
			alertEventsTotal,
			readingsDropped,
			dashboardCache,
			dashboardLatency,
			dashboardExports,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// ObserveSweep records a full sweep.
func ObserveSweep(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if sweepTotal != nil {
		sweepTotal.WithLabelValues(result).Inc()
	}
	if sweepLatency != nil {
		sweepLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// IncStationAnalysis counts analyze/trends requests.
func IncStationAnalysis(kind, result string) {
	if kind == "" {
		kind = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if stationAnalysisTotal != nil {
		stationAnalysisTotal.WithLabelValues(kind, result).Inc()
	}
}

// IncAlertCreated counts engine-created alerts.
func IncAlertCreated(severity string) {
	if severity == "" {
		severity = "unknown"
	}
	if alertsCreated != nil {
		alertsCreated.WithLabelValues(severity).Inc()
	}
}

// IncAlertSuppressed counts deduplicated verdicts.
func IncAlertSuppressed() {
	if alertsSuppressed != nil {
		alertsSuppressed.Inc()
	}
}

// IncAlertEvent counts alert lifecycle notifications.
func IncAlertEvent(event string) {
	if event == "" {
		event = "unknown"
	}
	if alertEventsTotal != nil {
		alertEventsTotal.WithLabelValues(event).Inc()
	}
}

// AddReadingsDropped counts non-numeric readings.
func AddReadingsDropped(count int) {
	if count <= 0 {
		return
	}
	if readingsDropped != nil {
		readingsDropped.Add(float64(count))
	}
}

// IncDashboardCache records a cache hit or miss.
func IncDashboardCache(hit bool) {
	result := cacheMiss
	if hit {
		result = cacheHit
	}
	if dashboardCache != nil {
		dashboardCache.WithLabelValues(result).Inc()
	}
}

// ObserveDashboardCompute records a snapshot recomputation.
func ObserveDashboardCompute(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if dashboardLatency != nil {
		dashboardLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// IncDashboardExport counts snapshot exports.
func IncDashboardExport(format, result string) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if dashboardExports != nil {
		dashboardExports.WithLabelValues(format, result).Inc()
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError
)

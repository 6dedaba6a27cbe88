package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	dashboardapp "water-quality-cloud/internal/dashboard/application"
	"water-quality-cloud/internal/observability/metrics"
)

const dashboardPath = "/api/v1/dashboard"

// Handler serves the dashboard snapshot and its exports.
type Handler struct {
	aggregator *dashboardapp.Aggregator
}

// NewHandler constructs a handler.
func NewHandler(aggregator *dashboardapp.Aggregator) (*Handler, error) {
	if aggregator == nil {
		return nil, errors.New("dashboard handler: nil aggregator")
	}
	return &Handler{aggregator: aggregator}, nil
}

// ServeHTTP handles /api/v1/dashboard and its export subroutes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	sub := strings.Trim(strings.TrimPrefix(r.URL.Path, dashboardPath), "/")
	switch sub {
	case "", "export.pdf", "export.xlsx":
	default:
		w.WriteHeader(http.StatusNotFound)
		return
	}

	snap, err := h.aggregator.Snapshot(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	switch sub {
	case "":
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(snap)
	case "export.pdf":
		data, err := BuildSnapshotPDF(snap)
		if err != nil {
			metrics.IncDashboardExport("pdf", metrics.ResultError)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		metrics.IncDashboardExport("pdf", metrics.ResultSuccess)
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", `attachment; filename="dashboard.pdf"`)
		_, _ = w.Write(data)
	case "export.xlsx":
		data, err := BuildSnapshotXLSX(snap)
		if err != nil {
			metrics.IncDashboardExport("xlsx", metrics.ResultError)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		metrics.IncDashboardExport("xlsx", metrics.ResultSuccess)
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", `attachment; filename="dashboard.xlsx"`)
		_, _ = w.Write(data)
	}
}

package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"water-quality-cloud/internal/audit"
	qualityapp "water-quality-cloud/internal/quality/application"
	quality "water-quality-cloud/internal/quality/domain"
)

const predictivePrefix = "/api/v1/predictive/"

// Handler provides predictive analysis endpoints.
type Handler struct {
	service     *qualityapp.Service
	auditLogger audit.Logger
}

// HandlerOption configures the handler.
type HandlerOption func(*Handler)

// WithAuditLogger records manually triggered sweeps.
func WithAuditLogger(logger audit.Logger) HandlerOption {
	return func(h *Handler) {
		h.auditLogger = logger
	}
}

// NewHandler constructs a handler.
func NewHandler(service *qualityapp.Service, opts ...HandlerOption) (*Handler, error) {
	if service == nil {
		return nil, errors.New("predictive handler: nil service")
	}
	h := &Handler{service: service}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// ServeHTTP handles /api/v1/predictive/*.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, predictivePrefix), "/")
	parts := strings.Split(path, "/")
	switch {
	case path == "auto-predict":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleAutoPredict(w, r)
	case len(parts) == 2 && parts[0] == "analyze":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleAnalyze(w, r, parts[1])
	case len(parts) == 2 && parts[0] == "trends":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleTrends(w, r, parts[1])
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleAnalyze(w http.ResponseWriter, r *http.Request, rawID string) {
	stationID, lookback, ok := parseStationQuery(w, r, rawID, qualityapp.DefaultAnalyzeLookbackDays)
	if !ok {
		return
	}
	result, err := h.service.AnalyzeStation(r.Context(), stationID, lookback)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, result)
}

func (h *Handler) handleTrends(w http.ResponseWriter, r *http.Request, rawID string) {
	stationID, lookback, ok := parseStationQuery(w, r, rawID, qualityapp.DefaultTrendsLookbackDays)
	if !ok {
		return
	}
	result, err := h.service.GetTrends(r.Context(), stationID, lookback)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, result)
}

func (h *Handler) handleAutoPredict(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.AutoPredict(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	if h.auditLogger != nil {
		_ = h.auditLogger.Log(r.Context(), audit.FromRequest(r, "quality.auto_predict", "sweep", result.RunID, map[string]any{
			"stations_analyzed": result.StationsAnalyzed,
			"alerts_created":    result.AlertsCreated,
		}))
	}
	writeJSON(w, result)
}

func parseStationQuery(w http.ResponseWriter, r *http.Request, rawID string, defaultLookback int) (int64, int, bool) {
	stationID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || stationID <= 0 {
		http.Error(w, "invalid station id", http.StatusBadRequest)
		return 0, 0, false
	}
	lookback := defaultLookback
	if raw := r.URL.Query().Get("lookback_days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "lookback_days must be a positive integer", http.StatusBadRequest)
			return 0, 0, false
		}
		lookback = parsed
	}
	return stationID, lookback, true
}

func respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, quality.ErrStationNotFound):
		http.Error(w, "station not found", http.StatusNotFound)
	case errors.Is(err, quality.ErrInvalidLookback):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}

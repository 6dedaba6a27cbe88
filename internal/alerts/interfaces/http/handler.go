package http

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"

	alertapp "water-quality-cloud/internal/alerts/application"
	alerts "water-quality-cloud/internal/alerts/domain"
	"water-quality-cloud/internal/audit"
)

const alertsPath = "/api/v1/alerts"

// Handler provides alert HTTP endpoints.
type Handler struct {
	service     *alertapp.Service
	stream      http.Handler
	auditLogger audit.Logger
}

// HandlerOption configures the handler.
type HandlerOption func(*Handler)

// WithAuditLogger records creations and resolutions.
func WithAuditLogger(logger audit.Logger) HandlerOption {
	return func(h *Handler) {
		h.auditLogger = logger
	}
}

// NewHandler constructs a handler. stream may be nil.
func NewHandler(service *alertapp.Service, stream http.Handler, opts ...HandlerOption) (*Handler, error) {
	if service == nil {
		return nil, errors.New("alerts handler: nil service")
	}
	h := &Handler{service: service, stream: stream}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// ServeHTTP handles /api/v1/alerts and subroutes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == alertsPath:
		switch r.Method {
		case http.MethodGet:
			h.handleList(w, r)
		case http.MethodPost:
			h.handleCreate(w, r)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	case r.URL.Path == alertsPath+"/stream":
		if h.stream == nil {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h.stream.ServeHTTP(w, r)
	case strings.HasPrefix(r.URL.Path, alertsPath+"/"):
		h.handleItem(w, r)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	var (
		list []alerts.Alert
		err  error
	)
	if raw := r.URL.Query().Get("type"); raw != "" {
		alertType, parseErr := alerts.ParseType(raw)
		if parseErr != nil {
			http.Error(w, "invalid alert type", http.StatusBadRequest)
			return
		}
		activeOnly := r.URL.Query().Get("include_resolved") != "true"
		list, err = h.service.ListByType(r.Context(), alertType, activeOnly)
	} else {
		list, err = h.service.ListActive(r.Context())
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []alerts.Alert{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Type      string          `json:"type"`
		Message   string          `json:"message"`
		Location  string          `json:"location"`
		Latitude  json.RawMessage `json:"latitude"`
		Longitude json.RawMessage `json:"longitude"`
		Severity  string          `json:"severity"`
		ReportID  *int64          `json:"report_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	alert, err := h.service.Create(r.Context(), alertapp.CreateInput{
		Type:      alerts.Type(req.Type),
		Message:   req.Message,
		Location:  req.Location,
		Latitude:  parseCoordinate(req.Latitude),
		Longitude: parseCoordinate(req.Longitude),
		Severity:  req.Severity,
		ReportID:  req.ReportID,
	})
	if err != nil {
		if errors.Is(err, alerts.ErrInvalidType) || errors.Is(err, alerts.ErrInvalidAlert) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.logAudit(r, "alert.create", alert)
	writeJSON(w, http.StatusCreated, alert)
}

// parseCoordinate accepts a number or numeric string. Anything else, including
// "", "null" and malformed text, yields no coordinate.
func parseCoordinate(raw json.RawMessage) *float64 {
	if len(raw) == 0 {
		return nil
	}
	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		text = string(raw)
	}
	text = strings.TrimSpace(text)
	if text == "" || text == "null" {
		return nil
	}
	value, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return nil
	}
	return &value
}

func (h *Handler) handleItem(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, alertsPath+"/")
	parts := strings.Split(path, "/")
	if len(parts) == 0 || len(parts) > 2 {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "invalid alert id", http.StatusBadRequest)
		return
	}

	var alert *alerts.Alert
	switch {
	case len(parts) == 1:
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		alert, err = h.service.Get(r.Context(), id)
	case parts[1] == "resolve":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		alert, err = h.service.Resolve(r.Context(), id)
		if err == nil {
			h.logAudit(r, "alert.resolve", alert)
		}
	default:
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if err != nil {
		if errors.Is(err, alerts.ErrNotFound) {
			http.Error(w, "alert not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

func (h *Handler) logAudit(r *http.Request, action string, alert *alerts.Alert) {
	if h.auditLogger == nil || alert == nil {
		return
	}
	entry := audit.FromRequest(r, action, "alert", strconv.FormatInt(alert.ID, 10), map[string]any{
		"location": alert.Location,
		"type":     alert.Type,
	})
	_ = h.auditLogger.Log(r.Context(), entry)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

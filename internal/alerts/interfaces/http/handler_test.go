package http

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	alertapp "water-quality-cloud/internal/alerts/application"
	alerts "water-quality-cloud/internal/alerts/domain"
	"water-quality-cloud/internal/alerts/infrastructure/memory"
	"water-quality-cloud/internal/audit"
	"water-quality-cloud/internal/auth"
	quality "water-quality-cloud/internal/quality/domain"
)

var issued = time.Date(2026, 5, 10, 8, 0, 0, 0, time.UTC)

func newTestHandler(t *testing.T) (*Handler, *memory.AlertRepository, *SSEBroker) {
	t.Helper()
	repo := memory.NewAlertRepository()
	for i, alertType := range []alerts.Type{alerts.TypeContamination, alerts.TypeBoilNotice} {
		require.NoError(t, repo.Create(context.Background(), &alerts.Alert{
			Type:     alertType,
			Message:  "advisory",
			Location: "Kisumu",
			Severity: "high",
			IssuedAt: issued.Add(time.Duration(i) * time.Hour),
			IsActive: true,
		}))
	}
	broker := NewSSEBroker()
	service, err := alertapp.NewService(repo, alertapp.WithNotifier(broker))
	require.NoError(t, err)
	handler, err := NewHandler(service, NewStreamHandler(broker))
	require.NoError(t, err)
	return handler, repo, broker
}

func decodeAlerts(t *testing.T, rec *httptest.ResponseRecorder) []alerts.Alert {
	t.Helper()
	var list []alerts.Alert
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	return list
}

func TestListAlerts(t *testing.T) {
	handler, _, _ := newTestHandler(t)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/alerts", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeAlerts(t, rec)
	require.Len(t, list, 2)
	assert.Equal(t, alerts.TypeBoilNotice, list[0].Type)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/alerts?type=contamination", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	list = decodeAlerts(t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, alerts.TypeContamination, list[0].Type)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/alerts?type=outage", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/alerts?type=flood", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetAndResolveAlert(t *testing.T) {
	handler, _, _ := newTestHandler(t)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/alerts/1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/alerts/1/resolve", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var resolved alerts.Alert
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resolved))
	assert.False(t, resolved.IsActive)
	assert.NotNil(t, resolved.ResolvedAt)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/alerts?type=contamination&include_resolved=true", nil))
	assert.Len(t, decodeAlerts(t, rec), 1)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/alerts", nil))
	assert.Len(t, decodeAlerts(t, rec), 1)
}

func TestAlertItemErrors(t *testing.T) {
	handler, _, _ := newTestHandler(t)
	cases := []struct {
		name   string
		method string
		path   string
		status int
	}{
		{"missing", http.MethodGet, "/api/v1/alerts/99", http.StatusNotFound},
		{"resolve missing", http.MethodPost, "/api/v1/alerts/99/resolve", http.StatusNotFound},
		{"bad id", http.MethodGet, "/api/v1/alerts/abc", http.StatusBadRequest},
		{"resolve via get", http.MethodGet, "/api/v1/alerts/1/resolve", http.StatusMethodNotAllowed},
		{"unknown action", http.MethodPost, "/api/v1/alerts/1/archive", http.StatusNotFound},
		{"list via delete", http.MethodDelete, "/api/v1/alerts", http.StatusMethodNotAllowed},
		{"create without body", http.MethodPost, "/api/v1/alerts", http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(tc.method, tc.path, nil))
			assert.Equal(t, tc.status, rec.Code)
		})
	}
}

func TestAlertStreamDeliversEvents(t *testing.T) {
	handler, _, broker := newTestHandler(t)
	server := httptest.NewServer(handler)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/api/v1/alerts/stream", nil)
	require.NoError(t, err)
	resp, err := server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "event: ready\n", line)

	broker.Notify(context.Background(), alertapp.Event{
		Type:  alertapp.EventCreated,
		Alert: alerts.Alert{ID: 77, Type: alerts.TypeContamination, Location: "Kisumu", IssuedAt: issued},
	})

	var frame []string
	for {
		line, err = reader.ReadString('\n')
		require.NoError(t, err)
		frame = append(frame, line)
		if strings.HasPrefix(line, "data: ") && strings.Contains(line, `"id":77`) {
			break
		}
	}
	assert.Contains(t, line, `"type":"created"`)
	assert.Contains(t, frame, "id: 77\n")
	assert.Contains(t, frame, "event: created\n")
}

func TestBrokerUnsubscribe(t *testing.T) {
	broker := NewSSEBroker()
	sub := broker.Subscribe(StreamFilter{})
	broker.Unsubscribe(sub)
	broker.Unsubscribe(sub)
	_, open := <-sub.C
	assert.False(t, open)
	broker.Notify(context.Background(), alertapp.Event{Type: alertapp.EventCreated})
}

func TestBrokerAppliesFilters(t *testing.T) {
	broker := NewSSEBroker()
	kisumu := broker.Subscribe(StreamFilter{Location: "kisumu"})
	severe := broker.Subscribe(StreamFilter{MinSeverity: quality.SeverityHigh})
	defer broker.Unsubscribe(kisumu)
	defer broker.Unsubscribe(severe)

	ctx := context.Background()
	broker.Notify(ctx, alertapp.Event{Type: alertapp.EventCreated, Alert: alerts.Alert{ID: 1, Location: "Kisumu", Severity: "medium"}})
	broker.Notify(ctx, alertapp.Event{Type: alertapp.EventCreated, Alert: alerts.Alert{ID: 2, Location: "Mombasa", Severity: "critical"}})

	require.Len(t, kisumu.C, 1)
	assert.Equal(t, int64(1), (<-kisumu.C).Alert.ID)
	require.Len(t, severe.C, 1)
	assert.Equal(t, int64(2), (<-severe.C).Alert.ID)
}

func TestAlertStreamRejectsUnknownSeverity(t *testing.T) {
	handler, _, _ := newTestHandler(t)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/alerts/stream?min_severity=severe", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type auditRecorder struct {
	entries []audit.Entry
}

func (a *auditRecorder) Log(_ context.Context, entry audit.Entry) error {
	a.entries = append(a.entries, entry)
	return nil
}

func TestResolveIsAudited(t *testing.T) {
	repo := memory.NewAlertRepository()
	require.NoError(t, repo.Create(context.Background(), &alerts.Alert{
		Type: alerts.TypeOutage, Message: "mains burst", Location: "Nakuru", IssuedAt: issued, IsActive: true,
	}))
	service, err := alertapp.NewService(repo)
	require.NoError(t, err)
	recorder := &auditRecorder{}
	handler, err := NewHandler(service, nil, WithAuditLogger(recorder))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/alerts/1/resolve", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), auth.RoleAuthority, "officer-7"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, recorder.entries, 1)
	entry := recorder.entries[0]
	assert.Equal(t, "alert.resolve", entry.Action)
	assert.Equal(t, "1", entry.ResourceID)
	assert.Equal(t, "officer-7", entry.Actor)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/alerts/stream", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateAlert(t *testing.T) {
	handler, repo, broker := newTestHandler(t)
	sub := broker.Subscribe(StreamFilter{})
	defer broker.Unsubscribe(sub)

	body := `{"type":"boil_notice","message":"Boil water","location":"Kibera","latitude":"-1.31","longitude":"not-a-number"}`
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/alerts", strings.NewReader(body)))
	require.Equal(t, http.StatusCreated, rec.Code)

	var created alerts.Alert
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, int64(3), created.ID)
	assert.Equal(t, alerts.TypeBoilNotice, created.Type)
	assert.Equal(t, "medium", created.Severity)
	assert.True(t, created.IsActive)
	require.NotNil(t, created.Latitude)
	assert.Equal(t, -1.31, *created.Latitude)
	assert.Nil(t, created.Longitude)
	assert.Len(t, repo.All(), 3)

	select {
	case event := <-sub.C:
		assert.Equal(t, alertapp.EventCreated, event.Type)
		assert.Equal(t, created.ID, event.Alert.ID)
	case <-time.After(time.Second):
		t.Fatal("expected created event")
	}
}

func TestCreateAlertRejectsInvalidType(t *testing.T) {
	handler, repo, _ := newTestHandler(t)

	rec := httptest.NewRecorder()
	body := `{"type":"flood","message":"x","location":"Kisumu"}`
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/alerts", strings.NewReader(body)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Len(t, repo.All(), 2)
}

func TestParseCoordinate(t *testing.T) {
	cases := []struct {
		raw  string
		want *float64
	}{
		{`"36.8"`, floatPtr(36.8)},
		{`-1.5`, floatPtr(-1.5)},
		{`""`, nil},
		{`"null"`, nil},
		{`null`, nil},
		{`"12abc"`, nil},
		{`"NaN"`, nil},
		{``, nil},
	}
	for _, tc := range cases {
		got := parseCoordinate(json.RawMessage(tc.raw))
		if tc.want == nil {
			assert.Nil(t, got, tc.raw)
			continue
		}
		require.NotNil(t, got, tc.raw)
		assert.Equal(t, *tc.want, *got, tc.raw)
	}
}

func TestCreateIsAudited(t *testing.T) {
	repo := memory.NewAlertRepository()
	service, err := alertapp.NewService(repo)
	require.NoError(t, err)
	recorder := &auditRecorder{}
	handler, err := NewHandler(service, nil, WithAuditLogger(recorder))
	require.NoError(t, err)

	body := `{"type":"outage","message":"Mains burst","location":"Nakuru","severity":"high"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/alerts", strings.NewReader(body))
	req = req.WithContext(auth.WithIdentity(req.Context(), auth.RoleAuthority, "officer-7"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	require.Len(t, recorder.entries, 1)
	assert.Equal(t, "alert.create", recorder.entries[0].Action)
	assert.Equal(t, "1", recorder.entries[0].ResourceID)
}

func floatPtr(v float64) *float64 {
	return &v
}

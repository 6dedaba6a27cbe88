package audit

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"water-quality-cloud/internal/auth"
)

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.1.2.3:5555"
	assert.Equal(t, "10.1.2.3", ClientIP(r))

	r.Header.Set("X-Forwarded-For", " 203.0.113.7 , 10.0.0.1")
	assert.Equal(t, "203.0.113.7", ClientIP(r))
}

func TestFromRequestUsesIdentity(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/api/v1/alerts/4/resolve", nil)
	r.Header.Set("User-Agent", "ops-console")
	r = r.WithContext(auth.WithIdentity(r.Context(), auth.RoleAuthority, "officer-12"))

	entry := FromRequest(r, "alert.resolve", "alert", "4", map[string]any{"location": "Kisumu"})
	assert.Equal(t, "officer-12", entry.Actor)
	assert.Equal(t, string(auth.RoleAuthority), entry.Role)
	assert.Equal(t, "alert.resolve", entry.Action)
	assert.Equal(t, "4", entry.ResourceID)
	assert.JSONEq(t, `{"location":"Kisumu"}`, string(entry.Metadata))
	assert.Equal(t, "ops-console", entry.UserAgent)
	assert.Len(t, DigestJSON(entry.Metadata), 64)
}

func TestDigestJSONEmpty(t *testing.T) {
	assert.Empty(t, DigestJSON(nil))
	assert.NotEmpty(t, NewID())
}

func TestFromRequestRecordsOrganization(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/api/v1/alerts", nil)
	ctx := auth.WithIdentity(r.Context(), auth.RoleAuthority, "officer-3")
	r = r.WithContext(auth.WithOrganization(ctx, "Nairobi Water"))
	meta := map[string]any{"type": "outage"}

	entry := FromRequest(r, "alert.create", "alert", "9", meta)
	assert.JSONEq(t, `{"type":"outage","organization":"Nairobi Water"}`, string(entry.Metadata))
	assert.NotContains(t, meta, "organization")
}

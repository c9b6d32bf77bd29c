package gatekeeper

import (
	"bytes"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"capi-relay/internal/logging"
)

func TestGatekeeper_Check(t *testing.T) {
	allowList := []string{"https://shop.example.com", "http://localhost:3000"}

	tests := []struct {
		name       string
		allowed    []string
		method     string
		origin     string
		wantStatus int
		wantOut    Outcome
		wantACAO   string
	}{
		{name: "preflight from allowed origin", allowed: allowList, method: http.MethodOptions, origin: "https://shop.example.com", wantStatus: 200, wantOut: OutcomePreflight, wantACAO: "https://shop.example.com"},
		{name: "preflight from foreign origin", allowed: allowList, method: http.MethodOptions, origin: "https://evil.example", wantStatus: 403, wantOut: OutcomeOriginRejected},
		{name: "preflight in permissive mode", allowed: nil, method: http.MethodOptions, origin: "https://any.example", wantStatus: 200, wantOut: OutcomePreflight, wantACAO: "https://any.example"},
		{name: "post from allowed origin", allowed: allowList, method: http.MethodPost, origin: "http://localhost:3000", wantStatus: 200, wantOut: OutcomeAllowed, wantACAO: "http://localhost:3000"},
		{name: "post from foreign origin", allowed: allowList, method: http.MethodPost, origin: "https://evil.example", wantStatus: 403, wantOut: OutcomeOriginRejected},
		{name: "post without origin header", allowed: allowList, method: http.MethodPost, origin: "", wantStatus: 403, wantOut: OutcomeOriginRejected},
		{name: "post without origin in permissive mode", allowed: nil, method: http.MethodPost, origin: "", wantStatus: 200, wantOut: OutcomeAllowed},
		{name: "get from allowed origin", allowed: allowList, method: http.MethodGet, origin: "https://shop.example.com", wantStatus: 405, wantOut: OutcomeMethodNotAllowed, wantACAO: "https://shop.example.com"},
		{name: "get from foreign origin", allowed: allowList, method: http.MethodGet, origin: "https://evil.example", wantStatus: 403, wantOut: OutcomeOriginRejected},
		{name: "put in permissive mode", allowed: nil, method: http.MethodPut, origin: "https://any.example", wantStatus: 405, wantOut: OutcomeMethodNotAllowed, wantACAO: "https://any.example"},
		{name: "origin match is exact", allowed: allowList, method: http.MethodPost, origin: "https://shop.example.com/", wantStatus: 403, wantOut: OutcomeOriginRejected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := New(tt.allowed, 24*time.Hour, logging.Discard())

			d := g.Check(tt.method, tt.origin, "203.0.113.7")

			assert.Equal(t, tt.wantStatus, d.StatusCode)
			assert.Equal(t, tt.wantOut, d.Outcome)
			assert.Equal(t, tt.wantOut == OutcomeAllowed, d.Proceed())
			assert.Equal(t, tt.wantACAO, d.Headers["Access-Control-Allow-Origin"])
			assert.NotEqual(t, "*", d.Headers["Access-Control-Allow-Origin"])
		})
	}
}

func TestGatekeeper_CORSHeaders(t *testing.T) {
	g := New([]string{"https://shop.example.com"}, 24*time.Hour, logging.Discard())

	d := g.Check(http.MethodOptions, "https://shop.example.com", "203.0.113.7")

	assert.Equal(t, map[string]string{
		"Access-Control-Allow-Origin":      "https://shop.example.com",
		"Access-Control-Allow-Methods":     "POST, OPTIONS",
		"Access-Control-Allow-Headers":     "Content-Type",
		"Access-Control-Max-Age":           "86400",
		"Access-Control-Allow-Credentials": "true",
		"Vary":                             "Origin",
	}, d.Headers)
}

func TestGatekeeper_AuditLog(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	g := New([]string{"https://shop.example.com"}, time.Hour, logger)
	g.now = func() time.Time { return time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC) }

	g.Check(http.MethodPost, "https://evil.example", "198.51.100.4")

	out := buf.String()
	assert.Contains(t, out, `"msg":"request origin rejected"`)
	assert.Contains(t, out, `"origin":"https://evil.example"`)
	assert.Contains(t, out, `"client_ip":"198.51.100.4"`)
	assert.Contains(t, out, `"timestamp":"2026-10-17T12:00:00Z"`)
}

func TestGatekeeper_PermissiveWarning(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	g := New(nil, time.Hour, logger)

	assert.True(t, g.Permissive())
	assert.Contains(t, buf.String(), "accepting requests from every origin")
}

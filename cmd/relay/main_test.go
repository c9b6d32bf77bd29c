package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"

	"capi-relay/internal/config"
)

func TestNewLocalServer_UsesConfiguredPort(t *testing.T) {
	srv := newLocalServer(config.ServerConfig{Port: "9191"}, http.NotFoundHandler(), prometheus.NewRegistry())

	assert.Equal(t, ":9191", srv.Addr)
}

func TestNewLocalServer_Routes(t *testing.T) {
	var tracked []string
	track := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tracked = append(tracked, r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	})
	srv := newLocalServer(config.ServerConfig{Port: "8080"}, track, prometheus.NewRegistry())

	tests := []struct {
		method     string
		path       string
		wantStatus int
	}{
		{http.MethodPost, "/api/track", http.StatusNoContent},
		{http.MethodOptions, "/api/track-event", http.StatusNoContent},
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/metrics", http.StatusOK},
	}

	for _, tt := range tests {
		rec := httptest.NewRecorder()
		srv.Handler.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
		assert.Equal(t, tt.wantStatus, rec.Code, tt.path)
	}
	assert.Equal(t, []string{"/api/track", "/api/track-event"}, tracked)
}

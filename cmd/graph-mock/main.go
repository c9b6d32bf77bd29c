// Command graph-mock is a local stand-in for the Conversions API events
// endpoint. It logs every received event and answers like the real API.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"

	"capi-relay/internal/domain"
	"capi-relay/internal/logging"
)

const (
	defaultPort = "8081"
)

// Server answers POST /{version}/{pixel}/events.
type Server struct {
	logger *slog.Logger
}

type graphError struct {
	Message   string `json:"message"`
	Type      string `json:"type"`
	Code      int    `json:"code"`
	FBTraceID string `json:"fbtrace_id"`
}

func NewServer(logger *slog.Logger) *Server {
	return &Server{
		logger: logger,
	}
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"healthy"}`))
	})
	mux.HandleFunc("POST /{version}/{pixel}/events", s.handleEvents)
	return mux
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	traceID := uuid.NewString()

	logger := s.logger.With(
		"version", r.PathValue("version"),
		"pixel_id", r.PathValue("pixel"),
		"fbtrace_id", traceID,
	)

	if r.URL.Query().Get("access_token") == "" {
		logger.Warn("request without access token")
		s.writeError(w, http.StatusBadRequest, graphError{
			Message:   "An access token is required to request this resource.",
			Type:      "OAuthException",
			Code:      190,
			FBTraceID: traceID,
		})
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		logger.Error("failed to read request body", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	var batch domain.EventBatch
	if err := json.Unmarshal(body, &batch); err != nil || len(batch.Data) == 0 {
		logger.Warn("invalid events payload", "error", err)
		s.writeError(w, http.StatusBadRequest, graphError{
			Message:   "Invalid parameter",
			Type:      "OAuthException",
			Code:      100,
			FBTraceID: traceID,
		})
		return
	}

	for _, e := range batch.Data {
		logger.Info("mock event received",
			"event_name", e.EventName,
			"event_id", e.EventID,
			"event_time", e.EventTime,
			"event_source_url", e.EventSourceURL,
			"fbp", e.UserData.FBP,
			"fbc", e.UserData.FBC,
			"custom_data", e.CustomData,
			"test_event_code", batch.TestEventCode,
		)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(map[string]any{
		"events_received": len(batch.Data),
		"messages":        []string{},
		"fbtrace_id":      traceID,
	}); err != nil {
		logger.Error("failed to write response", "error", err)
	}

	logger.Info("events accepted", "count", len(batch.Data), "duration", time.Since(start))
}

func (s *Server) writeError(w http.ResponseWriter, status int, e graphError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]graphError{"error": e}); err != nil {
		s.logger.Error("failed to write error response", "error", err)
	}
}

func main() {
	logger := logging.New(logging.DefaultConfig())

	port := os.Getenv("PORT")
	if port == "" {
		port = defaultPort
	}

	server := NewServer(logger)

	addr := fmt.Sprintf(":%s", port)
	logger.Info("starting conversions api mock",
		"port", port,
		"endpoint", fmt.Sprintf("http://localhost:%s/{version}/{pixel_id}/events", port),
	)

	srv := &http.Server{
		Addr:              addr,
		Handler:           server.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"capi-relay/internal/app"
	"capi-relay/internal/config"
	"capi-relay/internal/logging"
	"capi-relay/internal/models"
)

func main() {
	logger := logging.New(logging.DefaultConfig())

	if os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != "" {
		lambda.Start(lambdaHandler(logger))
	} else {
		if err := runLocal(logger); err != nil {
			logger.Error("relay stopped", "error", err)
			os.Exit(1)
		}
	}
}

// lambdaHandler bootstraps once per cold start. A bootstrap failure is
// reported on every invocation rather than crashing the runtime.
func lambdaHandler(logger *slog.Logger) func(context.Context, events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	application, _, err := bootstrap(context.Background(), logger, prometheus.NewRegistry())
	if err != nil {
		logger.Error("failed to initialize relay", "error", err)
		return func(context.Context, events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
			return models.NewErrorResponse(http.StatusInternalServerError, "server configuration error", nil), nil
		}
	}
	return application.APIHandler().Handle
}

func bootstrap(ctx context.Context, logger *slog.Logger, reg prometheus.Registerer) (*app.App, *config.AppConfig, error) {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, nil, err
	}

	application, err := app.New(ctx, app.Options{
		Config:     cfg,
		Logger:     logger,
		Registerer: reg,
	})
	if err != nil {
		return nil, nil, err
	}
	return application, cfg, nil
}

func runLocal(logger *slog.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	reg.MustRegister(collectors.NewGoCollector())

	application, cfg, err := bootstrap(ctx, logger, reg)
	if err != nil {
		return err
	}

	server := newLocalServer(cfg.Server, application.HTTPHandler(), reg)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("relay listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down", "reason", ctx.Err())
	case err := <-errCh:
		return err
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}

// newLocalServer routes the tracking endpoints, health and metrics.
func newLocalServer(cfg config.ServerConfig, track http.Handler, gatherer prometheus.Gatherer) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/api/track", track)
	mux.Handle("/api/track-event", track)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"healthy"}`))
	})
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

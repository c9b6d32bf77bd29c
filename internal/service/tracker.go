package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"capi-relay/internal/domain"
	"capi-relay/internal/normalizer"
	"capi-relay/internal/observability"
	"capi-relay/internal/ports"
)

// Result is the outcome of a delivered event.
type Result struct {
	Event     *domain.NormalizedEvent
	Response  *domain.UpstreamResponse
	Confirmed bool // upstream reported events_received > 0
}

// Tracker normalizes a tracking payload and forwards it upstream.
type Tracker struct {
	normalizer *normalizer.Normalizer
	sender     ports.EventSender
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewTracker creates a new tracker service. A nil sender means the upstream
// credentials are not configured; every Track call then fails with
// domain.ErrConfigurationMissing.
func NewTracker(n *normalizer.Normalizer, sender ports.EventSender, metrics *observability.Metrics, logger *slog.Logger) *Tracker {
	return &Tracker{
		normalizer: n,
		sender:     sender,
		metrics:    metrics,
		logger:     logger,
	}
}

// Track runs one event through normalization and a single upstream delivery.
func (t *Tracker) Track(ctx context.Context, body []byte, meta domain.RequestMeta) (*Result, error) {
	if t.sender == nil {
		t.logger.Error("conversions api credentials not configured")
		t.metrics.EventsTotal.WithLabelValues("config_missing").Inc()
		return nil, domain.ErrConfigurationMissing
	}

	event, report, err := t.normalizer.Normalize(body, meta)
	if err != nil {
		t.recordNormalizeFailure(err)
		return nil, err
	}

	for _, r := range report.Repairs {
		t.metrics.FieldRepairs.WithLabelValues(r.Field, r.Action).Inc()
	}

	start := time.Now()
	resp, err := t.sender.SendEvents(ctx, []domain.NormalizedEvent{*event})
	if err != nil {
		return nil, t.recordSendFailure(err, event, time.Since(start))
	}
	t.metrics.UpstreamDuration.WithLabelValues("ok").Observe(time.Since(start).Seconds())

	result := &Result{
		Event:     event,
		Response:  resp,
		Confirmed: resp.EventsReceived > 0,
	}

	if !result.Confirmed {
		t.logger.Warn("upstream did not confirm event",
			"event_name", event.EventName,
			"event_id", event.EventID,
			"events_received", resp.EventsReceived,
			"fbtrace_id", resp.FBTraceID)
		t.metrics.EventsTotal.WithLabelValues("unconfirmed").Inc()
		return result, nil
	}

	t.logger.Info("event delivered",
		"event_name", event.EventName,
		"event_id", event.EventID,
		"events_received", resp.EventsReceived,
		"repairs", len(report.Repairs),
		"fbtrace_id", resp.FBTraceID)
	t.metrics.EventsTotal.WithLabelValues("delivered").Inc()

	return result, nil
}

func (t *Tracker) recordNormalizeFailure(err error) {
	var missing *domain.MissingFieldsError
	switch {
	case errors.As(err, &missing):
		t.logger.Warn("event rejected", "missing", missing.Fields)
		t.metrics.EventsTotal.WithLabelValues("missing_fields").Inc()
	default:
		t.logger.Warn("event rejected", "error", err)
		t.metrics.EventsTotal.WithLabelValues("invalid_body").Inc()
	}
}

// recordSendFailure logs the full failure server-side and returns err as is.
func (t *Tracker) recordSendFailure(err error, event *domain.NormalizedEvent, elapsed time.Duration) error {
	status := "transport_error"
	var upstream *domain.UpstreamError
	if errors.As(err, &upstream) {
		status = "upstream_error"
		t.logger.Error("upstream rejected event",
			"event_name", event.EventName,
			"event_id", event.EventID,
			"status_code", upstream.StatusCode,
			"code", upstream.Code,
			"fbtrace_id", upstream.FBTraceID,
			"error", err)
	} else {
		t.logger.Error("failed to reach upstream",
			"event_name", event.EventName,
			"event_id", event.EventID,
			"duration", elapsed,
			"error", err)
	}

	t.metrics.UpstreamDuration.WithLabelValues(status).Observe(elapsed.Seconds())
	t.metrics.EventsTotal.WithLabelValues(status).Inc()
	return err
}

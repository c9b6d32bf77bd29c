package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"maps"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"

	"capi-relay/internal/domain"
	"capi-relay/internal/gatekeeper"
	"capi-relay/internal/models"
	"capi-relay/internal/observability"
	"capi-relay/internal/service"
)

// EventTracker runs an admitted request through the event pipeline.
type EventTracker interface {
	Track(ctx context.Context, body []byte, meta domain.RequestMeta) (*service.Result, error)
}

// APIHandler handles tracking requests from API Gateway.
type APIHandler struct {
	gatekeeper *gatekeeper.Gatekeeper
	tracker    EventTracker
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewAPIHandler creates a new API handler.
func NewAPIHandler(gk *gatekeeper.Gatekeeper, tracker EventTracker, metrics *observability.Metrics, logger *slog.Logger) *APIHandler {
	return &APIHandler{
		gatekeeper: gk,
		tracker:    tracker,
		metrics:    metrics,
		logger:     logger,
	}
}

// Handle processes one API Gateway proxy request. Every outcome is expressed
// as a response; the returned error is always nil.
func (h *APIHandler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	return h.handle(ctx, req, nil), nil
}

// handle runs the pipeline. bodyErr reports a failure reading the body
// upstream of this handler and is surfaced only after the gatekeeper admits
// the request.
func (h *APIHandler) handle(ctx context.Context, req events.APIGatewayProxyRequest, bodyErr error) events.APIGatewayProxyResponse {
	meta := domain.RequestMeta{
		Origin:    header(req.Headers, "Origin"),
		ClientIP:  clientIP(req),
		UserAgent: header(req.Headers, "User-Agent"),
	}

	decision := h.gatekeeper.Check(req.HTTPMethod, meta.Origin, meta.ClientIP)
	h.metrics.GatekeeperDecisions.WithLabelValues(methodLabel(req.HTTPMethod), string(decision.Outcome)).Inc()

	switch decision.Outcome {
	case gatekeeper.OutcomeOriginRejected:
		return models.NewErrorResponse(decision.StatusCode, "origin not allowed", decision.Headers)
	case gatekeeper.OutcomePreflight:
		return models.NewEmptyResponse(decision.StatusCode, decision.Headers)
	case gatekeeper.OutcomeMethodNotAllowed:
		headers := withHeader(decision.Headers, "Allow", "POST, OPTIONS")
		return models.NewErrorResponse(decision.StatusCode, "method not allowed", headers)
	}

	if bodyErr != nil {
		h.logger.Warn("failed to read request body", "error", bodyErr, "client_ip", meta.ClientIP)
		return models.NewErrorResponse(http.StatusBadRequest, "invalid request body", decision.Headers)
	}

	body, err := requestBody(req)
	if err != nil {
		h.logger.Warn("invalid request body encoding", "error", err)
		return models.NewErrorResponse(http.StatusBadRequest, "invalid request body", decision.Headers)
	}

	result, err := h.tracker.Track(ctx, body, meta)
	if err != nil {
		return h.errorResponse(err, decision.Headers)
	}

	count := result.Response.EventsReceived
	resp := models.Response{
		Success:        true,
		Message:        "event sent",
		EventsReceived: &count,
		EventID:        result.Event.EventID,
		Upstream:       result.Response.Raw,
	}
	if !result.Confirmed {
		resp.Message = "event sent, upstream reported no events received"
	}

	return models.NewJSONResponse(http.StatusOK, resp, decision.Headers)
}

// errorResponse maps pipeline errors to client responses. Transport and
// unknown failures expose no detail.
func (h *APIHandler) errorResponse(err error, headers map[string]string) events.APIGatewayProxyResponse {
	var missing *domain.MissingFieldsError
	var upstream *domain.UpstreamError

	switch {
	case errors.As(err, &missing):
		return models.NewJSONResponse(http.StatusBadRequest, models.Response{
			Message: "missing required fields",
			Missing: missing.Fields,
		}, headers)

	case errors.Is(err, domain.ErrInvalidBody):
		return models.NewErrorResponse(http.StatusBadRequest, "invalid request body", headers)

	case errors.Is(err, domain.ErrConfigurationMissing):
		return models.NewErrorResponse(http.StatusInternalServerError, "server configuration error", headers)

	case errors.As(err, &upstream):
		detail := upstream.Detail
		if len(detail) == 0 {
			detail, _ = json.Marshal(upstream.Message)
		}
		return models.NewJSONResponse(http.StatusInternalServerError, models.Response{
			Message: "upstream api error",
			Error:   detail,
		}, headers)

	default:
		h.logger.Error("failed to track event", "error", err)
		return models.NewErrorResponse(http.StatusInternalServerError, "internal error", headers)
	}
}

// methodLabel keeps the metric's method label to a fixed set; the method
// token is client controlled.
func methodLabel(method string) string {
	switch method {
	case http.MethodPost, http.MethodOptions:
		return method
	default:
		return "other"
	}
}

// header looks up a header case-insensitively; API Gateway preserves the
// client's casing.
func header(headers map[string]string, name string) string {
	if v, ok := headers[name]; ok {
		return v
	}
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// clientIP prefers the first X-Forwarded-For hop, then the API Gateway
// source IP.
func clientIP(req events.APIGatewayProxyRequest) string {
	if xff := header(req.Headers, "X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	return req.RequestContext.Identity.SourceIP
}

func requestBody(req events.APIGatewayProxyRequest) ([]byte, error) {
	if !req.IsBase64Encoded {
		return []byte(req.Body), nil
	}
	return base64.StdEncoding.DecodeString(req.Body)
}

func withHeader(headers map[string]string, key, value string) map[string]string {
	out := make(map[string]string, len(headers)+1)
	maps.Copy(out, headers)
	out[key] = value
	return out
}

package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"capi-relay/internal/domain"
)

// maxResponseBytes caps how much of an upstream response is read.
const maxResponseBytes = 1 << 20

// Config holds Conversions API client configuration.
type Config struct {
	APIEndpoint   string // e.g., "https://graph.facebook.com"
	APIVersion    string // e.g., "v19.0"
	PixelID       string
	AccessToken   string
	TestEventCode string
	Timeout       time.Duration
	Transport     http.RoundTripper // defaults to http.DefaultTransport
}

// Client posts server events to the Conversions API.
type Client struct {
	config     Config
	httpClient *http.Client
}

// NewClient creates a new Conversions API client. The transport is
// instrumented with OpenTelemetry; without a configured provider the spans
// are no-ops.
func NewClient(config Config) *Client {
	base := config.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout:   config.Timeout,
			Transport: otelhttp.NewTransport(base),
		},
	}
}

type errorEnvelope struct {
	Error json.RawMessage `json:"error"`
}

type errorInfo struct {
	Message   string `json:"message"`
	Type      string `json:"type"`
	Code      int    `json:"code"`
	FBTraceID string `json:"fbtrace_id"`
}

// SendEvents performs a single POST of events. There is no retry.
// Network failures return *domain.TransportError; an upstream error body or
// non-2xx status returns *domain.UpstreamError.
func (c *Client) SendEvents(ctx context.Context, events []domain.NormalizedEvent) (*domain.UpstreamResponse, error) {
	body, err := json.Marshal(domain.EventBatch{
		Data:          events,
		TestEventCode: c.config.TestEventCode,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	endpoint, err := c.eventsURL()
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", redact(err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &domain.TransportError{Op: "send request", Err: redact(err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &domain.TransportError{Op: "read response", Err: err}
	}

	if upstreamErr := parseError(resp.StatusCode, respBody); upstreamErr != nil {
		return nil, upstreamErr
	}

	var out domain.UpstreamResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, &domain.TransportError{Op: "decode response", Err: err}
	}
	out.StatusCode = resp.StatusCode
	out.Raw = json.RawMessage(respBody)

	return &out, nil
}

// eventsURL builds <endpoint>/<version>/<pixel>/events?access_token=<token>.
func (c *Client) eventsURL() (string, error) {
	u, err := url.Parse(strings.TrimRight(c.config.APIEndpoint, "/"))
	if err != nil {
		return "", fmt.Errorf("parse api endpoint: %w", err)
	}
	u = u.JoinPath(c.config.APIVersion, c.config.PixelID, "events")

	q := u.Query()
	q.Set("access_token", c.config.AccessToken)
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// parseError returns an UpstreamError when the body carries an "error"
// object or the status is not 2xx.
func parseError(status int, body []byte) *domain.UpstreamError {
	var env errorEnvelope
	jsonErr := json.Unmarshal(body, &env)

	if jsonErr == nil && len(env.Error) > 0 && !bytes.Equal(env.Error, []byte("null")) {
		ue := &domain.UpstreamError{StatusCode: status, Detail: env.Error}
		var info errorInfo
		if json.Unmarshal(env.Error, &info) == nil {
			ue.Message = info.Message
			ue.Type = info.Type
			ue.Code = info.Code
			ue.FBTraceID = info.FBTraceID
		} else {
			// Some proxies return "error" as a plain string.
			ue.Message = strings.Trim(string(env.Error), `"`)
		}
		return ue
	}

	if status < 200 || status > 299 {
		detail := json.RawMessage(body)
		if !json.Valid(body) {
			quoted, _ := json.Marshal(string(body))
			detail = quoted
		}
		return &domain.UpstreamError{StatusCode: status, Detail: detail}
	}

	return nil
}

// redact strips the query string, which carries the access token, from URL
// errors before they reach a log line.
func redact(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if u, parseErr := url.Parse(urlErr.URL); parseErr == nil {
			u.RawQuery = ""
			urlErr.URL = u.String()
		} else {
			urlErr.URL = "<redacted>"
		}
	}
	return err
}

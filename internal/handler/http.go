package handler

import (
	"io"
	"net"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
)

// HTTPHandler serves the tracking pipeline over net/http for local runs.
// It converts each request into the API Gateway shape so both entry points
// share one code path.
type HTTPHandler struct {
	api          *APIHandler
	maxBodyBytes int64
}

// NewHTTPHandler wraps an APIHandler. Bodies beyond maxBodyBytes are rejected
// as invalid; zero disables the limit.
func NewHTTPHandler(api *APIHandler, maxBodyBytes int64) *HTTPHandler {
	return &HTTPHandler{api: api, maxBodyBytes: maxBodyBytes}
}

func (h *HTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.maxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	}

	body, bodyErr := io.ReadAll(r.Body)

	headers := make(map[string]string, len(r.Header))
	for k := range r.Header {
		headers[k] = r.Header.Get(k)
	}

	req := events.APIGatewayProxyRequest{
		Path:       r.URL.Path,
		HTTPMethod: r.Method,
		Headers:    headers,
		Body:       string(body),
		RequestContext: events.APIGatewayProxyRequestContext{
			Identity: events.APIGatewayRequestIdentity{SourceIP: remoteIP(r.RemoteAddr)},
		},
	}

	resp := h.api.handle(r.Context(), req, bodyErr)

	for k, v := range resp.Headers {
		w.Header().Set(k, v)
	}
	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		if _, err := io.WriteString(w, resp.Body); err != nil {
			h.api.logger.Warn("failed to write response", "error", err)
		}
	}
}

func remoteIP(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

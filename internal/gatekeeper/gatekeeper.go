// Package gatekeeper decides whether a request may reach the event pipeline
// and which CORS headers it receives.
package gatekeeper

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

// Outcome is the result of a gatekeeper check.
type Outcome string

const (
	OutcomeAllowed          Outcome = "allowed"            // POST may proceed
	OutcomePreflight        Outcome = "preflight"          // answer 200 with no body
	OutcomeOriginRejected   Outcome = "origin_rejected"    // answer 403
	OutcomeMethodNotAllowed Outcome = "method_not_allowed" // answer 405
)

// Decision is returned for every inbound request.
type Decision struct {
	Outcome    Outcome
	StatusCode int
	Headers    map[string]string
}

// Proceed reports whether the request should continue to normalization.
func (d Decision) Proceed() bool {
	return d.Outcome == OutcomeAllowed
}

// Gatekeeper enforces the origin allow-list. It is immutable after New.
type Gatekeeper struct {
	allowed map[string]struct{}
	maxAge  time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

// New creates a Gatekeeper. An empty allow-list admits every origin.
func New(allowedOrigins []string, maxAge time.Duration, logger *slog.Logger) *Gatekeeper {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = struct{}{}
	}

	if len(allowed) == 0 {
		logger.Warn("no allowed origins configured, accepting requests from every origin")
	}

	return &Gatekeeper{
		allowed: allowed,
		maxAge:  maxAge,
		logger:  logger,
		now:     time.Now,
	}
}

// Permissive reports whether the allow-list is empty.
func (g *Gatekeeper) Permissive() bool {
	return len(g.allowed) == 0
}

// Allowed reports whether origin may call the relay.
func (g *Gatekeeper) Allowed(origin string) bool {
	if g.Permissive() {
		return true
	}
	_, ok := g.allowed[origin]
	return ok
}

// Check evaluates method and origin. With a non-empty allow-list a foreign
// origin is rejected before the method is considered.
func (g *Gatekeeper) Check(method, origin, clientIP string) Decision {
	allowed := g.Allowed(origin)
	headers := g.corsHeaders(origin, allowed)

	var d Decision
	switch {
	case !allowed:
		d = Decision{Outcome: OutcomeOriginRejected, StatusCode: http.StatusForbidden}
	case method == http.MethodOptions:
		d = Decision{Outcome: OutcomePreflight, StatusCode: http.StatusOK}
	case method != http.MethodPost:
		d = Decision{Outcome: OutcomeMethodNotAllowed, StatusCode: http.StatusMethodNotAllowed}
	default:
		d = Decision{Outcome: OutcomeAllowed, StatusCode: http.StatusOK}
	}
	d.Headers = headers

	g.audit(d, method, origin, clientIP)
	return d
}

// corsHeaders echoes the exact origin when allowed. Credentials are allowed,
// so a wildcard is never sent.
func (g *Gatekeeper) corsHeaders(origin string, allowed bool) map[string]string {
	headers := map[string]string{
		"Access-Control-Allow-Methods":     "POST, OPTIONS",
		"Access-Control-Allow-Headers":     "Content-Type",
		"Access-Control-Max-Age":           strconv.Itoa(int(g.maxAge.Seconds())),
		"Access-Control-Allow-Credentials": "true",
		"Vary":                             "Origin",
	}
	if allowed && origin != "" {
		headers["Access-Control-Allow-Origin"] = origin
	}
	return headers
}

func (g *Gatekeeper) audit(d Decision, method, origin, clientIP string) {
	attrs := []any{
		"outcome", string(d.Outcome),
		"method", method,
		"origin", origin,
		"client_ip", clientIP,
		"timestamp", g.now().UTC().Format(time.RFC3339),
	}

	switch d.Outcome {
	case OutcomeOriginRejected:
		g.logger.Warn("request origin rejected", attrs...)
	case OutcomeMethodNotAllowed:
		g.logger.Warn("method not allowed", attrs...)
	default:
		g.logger.Info("request admitted", attrs...)
	}
}

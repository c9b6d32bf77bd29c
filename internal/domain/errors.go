package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for common conditions.
var (
	ErrInvalidBody          = errors.New("invalid request body")
	ErrMissingFields        = errors.New("missing required fields")
	ErrConfigurationMissing = errors.New("configuration missing")
	ErrUpstream             = errors.New("upstream api error")
	ErrTransport            = errors.New("upstream transport failure")
	ErrInvalidConfig        = errors.New("invalid configuration")
)

// MissingFieldsError lists the required event fields absent from a request.
type MissingFieldsError struct {
	Fields []string
}

func (e *MissingFieldsError) Error() string {
	return fmt.Sprintf("%v: %s", ErrMissingFields, strings.Join(e.Fields, ", "))
}

func (e *MissingFieldsError) Unwrap() error {
	return ErrMissingFields
}

// UpstreamError is a structured error reported by the Conversions API.
// Detail holds the upstream "error" object verbatim.
type UpstreamError struct {
	StatusCode int
	Detail     json.RawMessage
	Message    string
	Type       string
	Code       int
	FBTraceID  string
}

func (e *UpstreamError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%v (status %d)", ErrUpstream, e.StatusCode)
	}
	return fmt.Sprintf("%v: %s (status: %d, code: %d, type: %s, trace: %s)",
		ErrUpstream, e.Message, e.StatusCode, e.Code, e.Type, e.FBTraceID)
}

func (e *UpstreamError) Unwrap() error {
	return ErrUpstream
}

// TransportError wraps a network-level failure reaching the upstream.
type TransportError struct {
	Op  string // operation that failed
	Err error  // underlying error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() []error {
	return []error{ErrTransport, e.Err}
}

// ConfigError reports a failed configuration check. It matches
// ErrInvalidConfig as well as the underlying problems.
type ConfigError struct {
	ConfigName string
	Err        error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %v", e.ConfigName, e.Err)
}

func (e *ConfigError) Unwrap() []error {
	return []error{ErrInvalidConfig, e.Err}
}

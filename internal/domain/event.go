package domain

import "encoding/json"

// ActionSourceWebsite is the only action source this relay emits.
const ActionSourceWebsite = "website"

// DefaultEventName is used when the client sends a non-string event name.
const DefaultEventName = "UnknownEvent"

// RequestMeta carries the trusted, server-observed facts about a request.
type RequestMeta struct {
	Origin    string
	ClientIP  string
	UserAgent string
}

// NormalizedEvent is a server event in the Conversions API wire shape.
type NormalizedEvent struct {
	EventName      string     `json:"event_name"`
	EventTime      int64      `json:"event_time"`
	ActionSource   string     `json:"action_source"`
	EventSourceURL string     `json:"event_source_url"`
	EventID        string     `json:"event_id"`
	UserData       UserData   `json:"user_data"`
	CustomData     CustomData `json:"custom_data,omitempty"`
}

// UserData holds the matching keys sent with an event.
// FBP and FBC are omitted rather than sent empty.
type UserData struct {
	ClientIPAddress string `json:"client_ip_address"`
	ClientUserAgent string `json:"client_user_agent"`
	FBP             string `json:"fbp,omitempty"`
	FBC             string `json:"fbc,omitempty"`
}

// CustomData holds the recognized commerce fields. Keys follow the upstream
// naming: value, currency, content_ids, content_type, content_category,
// button_name.
type CustomData map[string]any

// EventBatch is the request body accepted by the events endpoint.
type EventBatch struct {
	Data          []NormalizedEvent `json:"data"`
	TestEventCode string            `json:"test_event_code,omitempty"`
}

// UpstreamResponse is a successful Conversions API response. Raw holds the
// body exactly as received.
type UpstreamResponse struct {
	StatusCode     int             `json:"-"`
	EventsReceived int             `json:"events_received"`
	Messages       []string        `json:"messages,omitempty"`
	FBTraceID      string          `json:"fbtrace_id,omitempty"`
	Raw            json.RawMessage `json:"-"`
}

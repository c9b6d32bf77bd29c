package models

import (
	"encoding/json"
	"log/slog"
	"maps"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
)

// Response is the JSON body returned to the browser for every request.
type Response struct {
	Success        bool            `json:"success"`
	Message        string          `json:"message,omitempty"`
	Missing        []string        `json:"missing,omitempty"`
	Error          json.RawMessage `json:"error,omitempty"`
	EventsReceived *int            `json:"events_received,omitempty"`
	EventID        string          `json:"event_id,omitempty"`
	Upstream       json.RawMessage `json:"upstream,omitempty"`
}

// NewErrorResponse creates an API Gateway error response.
func NewErrorResponse(statusCode int, message string, headers map[string]string) events.APIGatewayProxyResponse {
	return NewJSONResponse(statusCode, Response{Success: false, Message: message}, headers)
}

// NewJSONResponse serializes body as the API Gateway response payload.
// headers are merged over the JSON content type.
func NewJSONResponse(statusCode int, body Response, headers map[string]string) events.APIGatewayProxyResponse {
	bodyJSON, err := json.Marshal(body)
	if err != nil {
		slog.Error("failed to marshal response",
			"error", err,
			"status_code", statusCode)
		return events.APIGatewayProxyResponse{
			StatusCode: http.StatusInternalServerError,
			Headers:    mergeHeaders(headers),
			Body:       `{"success":false,"message":"failed to build response"}`,
		}
	}

	return events.APIGatewayProxyResponse{
		StatusCode: statusCode,
		Headers:    mergeHeaders(headers),
		Body:       string(bodyJSON),
	}
}

// NewEmptyResponse creates a response with no body, used for preflight.
func NewEmptyResponse(statusCode int, headers map[string]string) events.APIGatewayProxyResponse {
	h := make(map[string]string, len(headers))
	maps.Copy(h, headers)
	return events.APIGatewayProxyResponse{
		StatusCode: statusCode,
		Headers:    h,
	}
}

func mergeHeaders(headers map[string]string) map[string]string {
	h := map[string]string{
		"Content-Type": "application/json",
	}
	maps.Copy(h, headers)
	return h
}

package ports

import (
	"context"

	"capi-relay/internal/domain"
)

// EventSender delivers normalized events to the upstream ingestion API.
type EventSender interface {
	// SendEvents performs one delivery attempt for a batch of events.
	SendEvents(ctx context.Context, events []domain.NormalizedEvent) (*domain.UpstreamResponse, error)
}

package messaging

import (
	"context"
)

// Broker defines the interface for message brokers
type Broker interface {
	Publish(ctx context.Context, channel string, message interface{}) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	Close() error
}

// WebhookEventsChannel carries DispatchMessage hand-offs from the API
// binary to the worker binary.
const WebhookEventsChannel = "webhook_events"

// DispatchMessage is the hand-off envelope published by the webhook
// receiver and consumed by the worker binary.
type DispatchMessage struct {
	WebhookEventID string `json:"webhook_event_id"`
}

package client

import "context"

// Notifier announces purchase approval events. Delivery is best-effort:
// implementations log failures and never return them.
type Notifier interface {
	PublishPurchaseEvent(ctx context.Context, event *PurchaseEvent)
}

// EventPublisher is the transport under NotificationPublisher.
// natsclient.Client satisfies it.
type EventPublisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

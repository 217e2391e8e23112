package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// SubjectPrefix is prepended to the event kind to build the NATS subject.
const SubjectPrefix = "notifications.purchase."

const (
	DefaultPublishTimeout = 2 * time.Second
	DefaultQueueSize      = 256
)

// NotificationPublisher publishes purchase approval events to NATS JetStream
// for consumption by the notifications service, which owns rendering and
// delivery.
//
// Subject convention: notifications.purchase.<kind>
//
// All publish operations are non-fatal. Events are queued and sent by a
// background worker, each send bounded by the publish timeout, so a slow or
// stalled NATS never holds up an approval request. When the queue is full the
// event is dropped and logged. Errors are logged but never propagated.
type NotificationPublisher struct {
	nats    EventPublisher
	log     zerolog.Logger
	timeout time.Duration
	queue   chan outbound

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

type outbound struct {
	ctx     context.Context
	subject string
	orderID string
	data    []byte
}

// PublisherOption customises a NotificationPublisher.
type PublisherOption func(*NotificationPublisher)

// WithPublishTimeout bounds each NATS publish. Non-positive values are ignored.
func WithPublishTimeout(d time.Duration) PublisherOption {
	return func(p *NotificationPublisher) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithQueueSize sets how many events may wait for the worker.
func WithQueueSize(n int) PublisherOption {
	return func(p *NotificationPublisher) {
		if n > 0 {
			p.queue = make(chan outbound, n)
		}
	}
}

// NotificationEvent is the JSON schema published to NATS.
type NotificationEvent struct {
	EventType    string                 `json:"event_type"`
	CompanyID    string                 `json:"company_id"`
	ActorID      string                 `json:"actor_id"`
	Recipients   []string               `json:"recipients"`
	ResourceType string                 `json:"resource_type,omitempty"`
	ResourceID   string                 `json:"resource_id,omitempty"`
	Template     string                 `json:"template,omitempty"`
	IsActionable bool                   `json:"is_actionable,omitempty"`
	Severity     string                 `json:"severity,omitempty"`
	Category     string                 `json:"category,omitempty"`
	Payload      map[string]interface{} `json:"payload,omitempty"`
}

// NewNotificationPublisher creates a publisher backed by the given NATS client
// and starts its worker. A nil publisher disables notifications. Close stops
// the worker.
func NewNotificationPublisher(nats EventPublisher, log zerolog.Logger, opts ...PublisherOption) *NotificationPublisher {
	p := &NotificationPublisher{
		nats:    nats,
		log:     log,
		timeout: DefaultPublishTimeout,
		queue:   make(chan outbound, DefaultQueueSize),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	if nats == nil {
		close(p.done)
		return p
	}
	go p.run()
	return p
}

// Close stops accepting events and waits for queued ones to be sent, or for
// ctx to end.
func (p *NotificationPublisher) Close(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		if p.nats != nil {
			close(p.queue)
		}
	}
	p.mu.Unlock()

	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *NotificationPublisher) run() {
	defer close(p.done)
	for msg := range p.queue {
		p.send(msg)
	}
}

func (p *NotificationPublisher) send(msg outbound) {
	ctx, cancel := context.WithTimeout(msg.ctx, p.timeout)
	defer cancel()

	if err := p.nats.Publish(ctx, msg.subject, msg.data); err != nil {
		p.log.Warn().Err(err).
			Str("subject", msg.subject).
			Str("order_id", msg.orderID).
			Msg("notification: failed to publish NATS event (non-fatal)")
		return
	}

	p.log.Debug().
		Str("subject", msg.subject).
		Str("order_id", msg.orderID).
		Msg("notification: event published")
}

// PublishPurchaseEvent queues a purchase approval event and returns without
// waiting for NATS.
// Subject: notifications.purchase.<kind>
func (p *NotificationPublisher) PublishPurchaseEvent(ctx context.Context, ev *PurchaseEvent) {
	if p.nats == nil || ev == nil {
		return
	}
	if len(ev.Recipients) == 0 {
		p.log.Debug().
			Str("event_type", string(ev.Kind)).
			Str("order_id", ev.OrderID).
			Msg("notification: no recipients, skipped")
		return
	}

	severity := "info"
	if ev.Kind == EventRejected {
		severity = "warning"
	}

	event := &NotificationEvent{
		EventType:    string(ev.Kind),
		CompanyID:    ev.CompanyID,
		ActorID:      ev.ActorID,
		Recipients:   ev.Recipients,
		ResourceType: "purchase_order",
		ResourceID:   ev.OrderID,
		Template:     ev.Kind.Template(),
		IsActionable: ev.Kind.Actionable(),
		Severity:     severity,
		Category:     "purchase_approval",
		Payload: map[string]interface{}{
			"order_number":   ev.OrderNumber,
			"amount_total":   ev.AmountTotal.StringFixed(2),
			"currency":       ev.Currency,
			"approval_level": ev.ApprovalLevel,
		},
	}

	data, err := json.Marshal(event)
	if err != nil {
		p.log.Warn().Err(err).Str("event_type", event.EventType).Msg("notification: failed to marshal event")
		return
	}

	subject := fmt.Sprintf("%s%s", SubjectPrefix, ev.Kind)
	p.enqueue(outbound{
		ctx:     context.WithoutCancel(ctx),
		subject: subject,
		orderID: ev.OrderID,
		data:    data,
	})
}

// enqueue never blocks.
func (p *NotificationPublisher) enqueue(msg outbound) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.log.Warn().Str("subject", msg.subject).Str("order_id", msg.orderID).Msg("notification: publisher closed, event dropped")
		return
	}

	select {
	case p.queue <- msg:
	default:
		p.log.Warn().
			Str("subject", msg.subject).
			Str("order_id", msg.orderID).
			Int("queue_size", cap(p.queue)).
			Msg("notification: queue full, event dropped")
	}
}

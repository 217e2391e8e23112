package client

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	subject string
	data    []byte
}

type fakePublisher struct {
	mu   sync.Mutex
	sent []published
	err  error
}

func (p *fakePublisher) Publish(_ context.Context, subject string, data []byte) error {
	if p.err != nil {
		return p.err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, published{subject: subject, data: data})
	return nil
}

func (p *fakePublisher) messages() []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]published(nil), p.sent...)
}

// stallingPublisher blocks every publish until its context ends, like a
// JetStream publish waiting for an ack that never comes.
type stallingPublisher struct {
	mu       sync.Mutex
	started  chan struct{}
	deadline []bool
}

func newStallingPublisher() *stallingPublisher {
	return &stallingPublisher{started: make(chan struct{}, 16)}
}

func (p *stallingPublisher) Publish(ctx context.Context, _ string, _ []byte) error {
	p.started <- struct{}{}
	_, hasDeadline := ctx.Deadline()
	p.mu.Lock()
	p.deadline = append(p.deadline, hasDeadline)
	p.mu.Unlock()
	<-ctx.Done()
	return ctx.Err()
}

func flush(t *testing.T, p *NotificationPublisher) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, p.Close(ctx))
}

func purchaseEvent(kind EventKind, recipients ...string) *PurchaseEvent {
	return &PurchaseEvent{
		Kind:          kind,
		OrderID:       "order-1",
		OrderNumber:   "PO-001",
		CompanyID:     "acme",
		ActorID:       "rita",
		Recipients:    recipients,
		AmountTotal:   decimal.RequireFromString("10000.5"),
		Currency:      "USD",
		ApprovalLevel: 1,
	}
}

func TestNotificationPublisher_PublishPurchaseEvent(t *testing.T) {
	type testCase struct {
		name       string
		kind       EventKind
		subject    string
		template   string
		actionable bool
		severity   string
	}

	tests := []testCase{
		{name: "level 1 requested", kind: EventLevel1Requested, subject: "notifications.purchase.level1_requested", template: "email_approval_level1", actionable: true, severity: "info"},
		{name: "level 2 requested", kind: EventLevel2Requested, subject: "notifications.purchase.level2_requested", template: "email_approval_level2", actionable: true, severity: "info"},
		{name: "approved", kind: EventLevel1Approved, subject: "notifications.purchase.level1_approved", severity: "info"},
		{name: "rejected", kind: EventRejected, subject: "notifications.purchase.rejected", template: "email_rejection", severity: "warning"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			nats := &fakePublisher{}
			p := NewNotificationPublisher(nats, zerolog.Nop())

			p.PublishPurchaseEvent(context.Background(), purchaseEvent(tc.kind, "alice"))
			flush(t, p)

			sent := nats.messages()
			require.Len(t, sent, 1)
			assert.Equal(t, tc.subject, sent[0].subject)

			var ev NotificationEvent
			require.NoError(t, json.Unmarshal(sent[0].data, &ev))
			assert.Equal(t, string(tc.kind), ev.EventType)
			assert.Equal(t, []string{"alice"}, ev.Recipients)
			assert.Equal(t, "purchase_order", ev.ResourceType)
			assert.Equal(t, "order-1", ev.ResourceID)
			assert.Equal(t, tc.template, ev.Template)
			assert.Equal(t, tc.actionable, ev.IsActionable)
			assert.Equal(t, tc.severity, ev.Severity)
			assert.Equal(t, "10000.50", ev.Payload["amount_total"])
			assert.Equal(t, "PO-001", ev.Payload["order_number"])
		})
	}
}

func TestNotificationPublisher_Skips(t *testing.T) {
	nats := &fakePublisher{}
	p := NewNotificationPublisher(nats, zerolog.Nop())

	p.PublishPurchaseEvent(context.Background(), purchaseEvent(EventLevel1Requested))
	p.PublishPurchaseEvent(context.Background(), nil)
	flush(t, p)
	assert.Empty(t, nats.messages())

	p.PublishPurchaseEvent(context.Background(), purchaseEvent(EventRejected, "rita"))
	assert.Empty(t, nats.messages(), "closed publisher drops events")

	disabled := NewNotificationPublisher(nil, zerolog.Nop())
	assert.NotPanics(t, func() {
		disabled.PublishPurchaseEvent(context.Background(), purchaseEvent(EventRejected, "rita"))
	})
	flush(t, disabled)
}

func TestNotificationPublisher_PublishErrorIsSwallowed(t *testing.T) {
	nats := &fakePublisher{err: stderrors.New("nats down")}
	p := NewNotificationPublisher(nats, zerolog.Nop())

	assert.NotPanics(t, func() {
		p.PublishPurchaseEvent(context.Background(), purchaseEvent(EventRejected, "rita"))
	})
	flush(t, p)
}

func TestNotificationPublisher_StalledNATSDoesNotBlockCaller(t *testing.T) {
	nats := newStallingPublisher()
	p := NewNotificationPublisher(nats, zerolog.Nop(), WithPublishTimeout(50*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	for i := 0; i < 3; i++ {
		p.PublishPurchaseEvent(ctx, purchaseEvent(EventLevel1Requested, "alice"))
	}
	assert.Less(t, time.Since(start), 50*time.Millisecond, "publishing must not wait for NATS")
	require.NoError(t, ctx.Err())

	flush(t, p)
	nats.mu.Lock()
	defer nats.mu.Unlock()
	assert.Equal(t, []bool{true, true, true}, nats.deadline, "every publish is bounded")
}

func TestNotificationPublisher_CallerCancelDoesNotAbortPublish(t *testing.T) {
	nats := &fakePublisher{}
	p := NewNotificationPublisher(nats, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	p.PublishPurchaseEvent(ctx, purchaseEvent(EventLevel1Approved, "rita"))
	cancel()

	flush(t, p)
	assert.Len(t, nats.messages(), 1)
}

func TestNotificationPublisher_FullQueueDrops(t *testing.T) {
	nats := newStallingPublisher()
	p := NewNotificationPublisher(nats, zerolog.Nop(),
		WithQueueSize(1),
		WithPublishTimeout(100*time.Millisecond),
	)

	p.PublishPurchaseEvent(context.Background(), purchaseEvent(EventRejected, "rita"))
	<-nats.started // the worker holds the first event

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 5; i++ {
			p.PublishPurchaseEvent(context.Background(), purchaseEvent(EventRejected, "rita"))
		}
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publishing blocked on a full queue")
	}

	flush(t, p)
	nats.mu.Lock()
	defer nats.mu.Unlock()
	assert.Len(t, nats.deadline, 2, "one in flight plus one queued")
}

package service

import (
	"context"
	"time"

	"github.com/pesio-ai/be-po-approvals/internal/common/logger"
	"github.com/pesio-ai/be-po-approvals/internal/repository"
)

// HostConfirmer is the standard purchase confirm: draft and sent orders move
// to purchase with date_approve stamped. Orders in any other state are left
// alone.
type HostConfirmer struct {
	orders OrderStore
	now    func() time.Time
	log    *logger.Logger
}

// NewHostConfirmer creates a new HostConfirmer.
func NewHostConfirmer(orders OrderStore, log *logger.Logger) *HostConfirmer {
	return &HostConfirmer{orders: orders, now: time.Now, log: log}
}

// ConfirmOrder implements OrderConfirmer.
func (c *HostConfirmer) ConfirmOrder(ctx context.Context, order *repository.PurchaseOrder, actorID string) (bool, error) {
	if order.State != repository.StateDraft && order.State != repository.StateSent {
		return false, nil
	}

	now := c.now()
	err := c.orders.Transition(ctx, &repository.StateTransition{
		OrderID:     order.ID,
		From:        order.State,
		To:          repository.StatePurchase,
		ConfirmedAt: &now,
		Audit:       newAuditEntry(order, "confirmed", actorID, repository.StatePurchase, nil),
	})
	if err != nil {
		return false, err
	}

	c.log.Info().
		Str("order_id", order.ID).
		Str("order_number", order.OrderNumber).
		Msg("Purchase order confirmed")
	return true, nil
}

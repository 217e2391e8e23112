package service

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/pesio-ai/be-po-approvals/internal/client"
	"github.com/pesio-ai/be-po-approvals/internal/common/errors"
	"github.com/pesio-ai/be-po-approvals/internal/common/logger"
	"github.com/pesio-ai/be-po-approvals/internal/common/tracing"
	"github.com/pesio-ai/be-po-approvals/internal/repository"
)

var (
	// ErrAuthorizationDenied is wrapped by failures of the approver rights check.
	ErrAuthorizationDenied = errors.New(errors.ErrCodeForbidden, "user is not authorized to perform this approval")

	// ErrInvalidState is wrapped when an order is not in the state an action
	// requires.
	ErrInvalidState = errors.New(errors.ErrCodeConflict, "purchase order is not in a valid state for this action")
)

// Outcome is the per-order result of a batch action.
type Outcome string

const (
	OutcomeApplied Outcome = "applied"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

// Skip reasons.
const (
	ReasonNotApplicable = "not_applicable"
	ReasonHostSkipped   = "host_state"
)

// ActionResult reports what an action did to one order.
type ActionResult struct {
	OrderID string
	Outcome Outcome
	State   repository.OrderState
	Reason  string
	Err     error
}

// Actor is the identity performing an action. It only reaches orders of its
// own CompanyID; an empty CompanyID matches no company's orders.
type Actor struct {
	UserID    string
	CompanyID string
}

// ApprovalOptions tunes policy decisions.
type ApprovalOptions struct {
	// RejectRequiresApprover limits reject to members of either approver group.
	RejectRequiresApprover bool
}

// ApprovalService drives purchase orders through the tiered approval
// workflow: confirm, level-1 approval, level-2 approval and reject.
type ApprovalService struct {
	configs   ConfigFinder
	orders    OrderStore
	groups    GroupDirectory
	audit     AuditLog
	notifier  client.Notifier
	confirmer OrderConfirmer
	opts      ApprovalOptions
	now       func() time.Time
	log       *logger.Logger
}

// NewApprovalService creates a new ApprovalService.
func NewApprovalService(
	configs ConfigFinder,
	orders OrderStore,
	groups GroupDirectory,
	audit AuditLog,
	notifier client.Notifier,
	confirmer OrderConfirmer,
	opts ApprovalOptions,
	log *logger.Logger,
) *ApprovalService {
	return &ApprovalService{
		configs:   configs,
		orders:    orders,
		groups:    groups,
		audit:     audit,
		notifier:  notifier,
		confirmer: confirmer,
		opts:      opts,
		now:       time.Now,
		log:       log,
	}
}

// ── Confirm ───────────────────────────────────────────────────────────────────

// Confirm recomputes the approval level of every order, then sends orders
// that need approval to to_approve and hands the rest to the host confirm
// path.
func (s *ApprovalService) Confirm(ctx context.Context, actor Actor, orderIDs []string) (results []*ActionResult, err error) {
	ctx, span := tracing.StartSpan(ctx, "approval.Confirm", attribute.Int("order.count", len(orderIDs)))
	defer func() { tracing.EndSpan(span, err) }()

	b, err := s.newBatch(actor, orderIDs)
	if err != nil {
		return nil, err
	}

	var evaluated []*repository.PurchaseOrder
	for _, id := range b.ids {
		order, err := s.loadOrder(ctx, actor, id)
		if err != nil {
			b.fail(id, err)
			continue
		}

		cfg, err := b.config(ctx, s.configs, order.CompanyID)
		if err != nil {
			b.fail(id, err)
			continue
		}
		level, err := ResolveLevel(order.AmountTotal, cfg)
		if err != nil {
			b.failAt(id, order.State, err)
			continue
		}
		if level != order.ApprovalLevel {
			if err := s.orders.SetApprovalLevel(ctx, order.ID, level); err != nil {
				b.failAt(id, order.State, err)
				continue
			}
			order.ApprovalLevel = level
		}
		evaluated = append(evaluated, order)
	}

	approval, normal := Partition(evaluated)

	for _, order := range approval {
		err := s.orders.Transition(ctx, &repository.StateTransition{
			OrderID: order.ID,
			From:    order.State,
			To:      repository.StateToApprove,
			Audit: newAuditEntry(order, "submitted", actor.UserID, repository.StateToApprove, map[string]interface{}{
				"amount_total": order.AmountTotal.String(),
			}),
		})
		if err != nil {
			b.failAt(order.ID, order.State, err)
			continue
		}
		b.apply(order.ID, repository.StateToApprove)

		s.log.Info().
			Str("order_id", order.ID).
			Int("approval_level", int(order.ApprovalLevel)).
			Msg("Purchase order submitted for approval")

		cfg, _ := b.config(ctx, s.configs, order.CompanyID)
		s.notifyGroup(ctx, client.EventLevel1Requested, order, actor.UserID, cfg.ApproverGroup(repository.Level1))
	}

	for _, order := range normal {
		moved, err := s.confirmer.ConfirmOrder(ctx, order, actor.UserID)
		switch {
		case err != nil:
			b.failAt(order.ID, order.State, err)
		case moved:
			b.apply(order.ID, repository.StatePurchase)
		default:
			b.skip(order.ID, order.State, ReasonHostSkipped)
		}
	}

	return b.results(), nil
}

// ── Approve ───────────────────────────────────────────────────────────────────

// ApproveLevel1 records the level-1 sign-off. Level-1 orders are final and
// move to purchase; level-2 orders move to approved_level1 and await the
// second approver.
func (s *ApprovalService) ApproveLevel1(ctx context.Context, actor Actor, orderIDs []string) (results []*ActionResult, err error) {
	ctx, span := tracing.StartSpan(ctx, "approval.ApproveLevel1", attribute.Int("order.count", len(orderIDs)))
	defer func() { tracing.EndSpan(span, err) }()

	b, err := s.newBatch(actor, orderIDs)
	if err != nil {
		return nil, err
	}

	for _, id := range b.ids {
		order, cfg, ok := s.authorize(ctx, b, actor, id, repository.Level1)
		if !ok {
			continue
		}
		if order.ApprovalLevel < repository.Level1 {
			b.skip(id, order.State, ReasonNotApplicable)
			continue
		}
		if order.State != repository.StateToApprove {
			b.failAt(id, order.State, invalidState(order, "approve level 1"))
			continue
		}

		now := s.now()
		t := &repository.StateTransition{
			OrderID:  order.ID,
			From:     order.State,
			Approval: &repository.ApprovalStamp{Level: repository.Level1, ApproverID: actor.UserID, At: now},
		}
		if order.ApprovalLevel == repository.Level1 {
			t.To = repository.StatePurchase
			t.ConfirmedAt = &now
		} else {
			t.To = repository.StateApprovedLevel1
		}
		t.Audit = newAuditEntry(order, "approved_level1", actor.UserID, t.To, nil)

		if err := s.orders.Transition(ctx, t); err != nil {
			b.failAt(id, order.State, err)
			continue
		}
		b.apply(id, t.To)

		s.log.Info().
			Str("order_id", order.ID).
			Str("approver", actor.UserID).
			Str("state", string(t.To)).
			Msg("Purchase order approved at level 1")

		if t.To == repository.StatePurchase {
			s.notifyUsers(ctx, client.EventLevel1Approved, order, actor.UserID, []string{order.CreatedBy})
		} else {
			s.notifyGroup(ctx, client.EventLevel2Requested, order, actor.UserID, cfg.ApproverGroup(repository.Level2))
		}
	}

	return b.results(), nil
}

// ApproveLevel2 records the second sign-off on level-2 orders that already
// passed level 1, moving them to purchase.
func (s *ApprovalService) ApproveLevel2(ctx context.Context, actor Actor, orderIDs []string) (results []*ActionResult, err error) {
	ctx, span := tracing.StartSpan(ctx, "approval.ApproveLevel2", attribute.Int("order.count", len(orderIDs)))
	defer func() { tracing.EndSpan(span, err) }()

	b, err := s.newBatch(actor, orderIDs)
	if err != nil {
		return nil, err
	}

	for _, id := range b.ids {
		order, _, ok := s.authorize(ctx, b, actor, id, repository.Level2)
		if !ok {
			continue
		}
		if order.ApprovalLevel != repository.Level2 {
			b.skip(id, order.State, ReasonNotApplicable)
			continue
		}
		if order.State != repository.StateApprovedLevel1 {
			b.failAt(id, order.State, invalidState(order, "approve level 2"))
			continue
		}

		now := s.now()
		err := s.orders.Transition(ctx, &repository.StateTransition{
			OrderID:     order.ID,
			From:        order.State,
			To:          repository.StatePurchase,
			Approval:    &repository.ApprovalStamp{Level: repository.Level2, ApproverID: actor.UserID, At: now},
			ConfirmedAt: &now,
			Audit:       newAuditEntry(order, "approved_level2", actor.UserID, repository.StatePurchase, nil),
		})
		if err != nil {
			b.failAt(id, order.State, err)
			continue
		}
		b.apply(id, repository.StatePurchase)

		s.log.Info().
			Str("order_id", order.ID).
			Str("approver", actor.UserID).
			Msg("Purchase order approved at level 2")

		s.notifyUsers(ctx, client.EventLevel2Approved, order, actor.UserID, []string{order.CreatedBy})
	}

	return b.results(), nil
}

// ── Reject ────────────────────────────────────────────────────────────────────

// Reject returns orders to draft from any state. Approver identities and
// dates recorded so far are kept.
func (s *ApprovalService) Reject(ctx context.Context, actor Actor, orderIDs []string) (results []*ActionResult, err error) {
	ctx, span := tracing.StartSpan(ctx, "approval.Reject", attribute.Int("order.count", len(orderIDs)))
	defer func() { tracing.EndSpan(span, err) }()

	b, err := s.newBatch(actor, orderIDs)
	if err != nil {
		return nil, err
	}

	for _, id := range b.ids {
		order, err := s.loadOrder(ctx, actor, id)
		if err != nil {
			b.fail(id, err)
			continue
		}

		if s.opts.RejectRequiresApprover {
			allowed, err := s.isAnyApprover(ctx, b, order.CompanyID, actor.UserID)
			if err != nil {
				b.failAt(id, order.State, err)
				continue
			}
			if !allowed {
				b.failAt(id, order.State, errors.Forbidden("only approvers may reject purchase orders", ErrAuthorizationDenied))
				continue
			}
		}

		err = s.orders.Transition(ctx, &repository.StateTransition{
			OrderID: order.ID,
			From:    order.State,
			To:      repository.StateDraft,
			Audit:   newAuditEntry(order, "rejected", actor.UserID, repository.StateDraft, nil),
		})
		if err != nil {
			b.failAt(id, order.State, err)
			continue
		}
		b.apply(id, repository.StateDraft)

		s.log.Info().
			Str("order_id", order.ID).
			Str("rejected_by", actor.UserID).
			Str("state_before", string(order.State)).
			Msg("Purchase order rejected")

		s.notifyUsers(ctx, client.EventRejected, order, actor.UserID, []string{order.CreatedBy})
	}

	return b.results(), nil
}

// ── Query helpers ─────────────────────────────────────────────────────────────

// GetPendingApprovals returns the orders of a company awaiting userID's
// approval: to_approve orders for level-1 group members and approved_level1
// orders for level-2 group members.
func (s *ApprovalService) GetPendingApprovals(ctx context.Context, companyID, userID string) ([]*repository.PurchaseOrder, error) {
	cfg, err := s.configs.FindActive(ctx, companyID)
	if err != nil {
		return nil, err
	}

	var states []repository.OrderState
	for _, lv := range []struct {
		level repository.ApprovalLevel
		state repository.OrderState
	}{
		{repository.Level1, repository.StateToApprove},
		{repository.Level2, repository.StateApprovedLevel1},
	} {
		ok, err := CanApprove(ctx, lv.level, userID, cfg, s.groups)
		if err != nil {
			return nil, err
		}
		if ok {
			states = append(states, lv.state)
		}
	}
	if len(states) == 0 {
		return []*repository.PurchaseOrder{}, nil
	}

	orders, err := s.orders.ListByStates(ctx, companyID, states)
	if err != nil {
		return nil, err
	}

	pending := make([]*repository.PurchaseOrder, 0, len(orders))
	for _, o := range orders {
		if o.State == repository.StateApprovedLevel1 && o.ApprovalLevel != repository.Level2 {
			continue
		}
		pending = append(pending, o)
	}
	return pending, nil
}

// GetApprovalHistory returns the full audit trail for an order.
func (s *ApprovalService) GetApprovalHistory(ctx context.Context, actor Actor, orderID string) ([]*repository.ApprovalAuditEntry, error) {
	if _, err := s.loadOrder(ctx, actor, orderID); err != nil {
		return nil, err
	}
	return s.audit.GetByOrderID(ctx, orderID)
}

// ── Authorization helper ──────────────────────────────────────────────────────

// authorize loads an order and checks the actor's rights for level against
// the order's company config. On failure the batch result is recorded and ok
// is false.
func (s *ApprovalService) authorize(
	ctx context.Context,
	b *batch,
	actor Actor,
	id string,
	level repository.ApprovalLevel,
) (order *repository.PurchaseOrder, cfg *repository.ApprovalConfig, ok bool) {
	order, err := s.loadOrder(ctx, actor, id)
	if err != nil {
		b.fail(id, err)
		return nil, nil, false
	}
	cfg, err = b.config(ctx, s.configs, order.CompanyID)
	if err != nil {
		b.failAt(id, order.State, err)
		return nil, nil, false
	}

	allowed, err := CanApprove(ctx, level, actor.UserID, cfg, s.groups)
	if err != nil {
		b.failAt(id, order.State, err)
		return nil, nil, false
	}
	if !allowed {
		s.log.Warn().
			Str("order_id", order.ID).
			Str("user_id", actor.UserID).
			Int("level", int(level)).
			Msg("Approval denied")
		b.failAt(id, order.State, errors.Forbidden(
			fmt.Sprintf("you do not have permission to approve level %d purchases", level),
			ErrAuthorizationDenied,
		))
		return nil, nil, false
	}
	return order, cfg, true
}

func (s *ApprovalService) isAnyApprover(ctx context.Context, b *batch, companyID, userID string) (bool, error) {
	cfg, err := b.config(ctx, s.configs, companyID)
	if err != nil {
		return false, err
	}
	for _, level := range []repository.ApprovalLevel{repository.Level1, repository.Level2} {
		ok, err := CanApprove(ctx, level, userID, cfg, s.groups)
		if err != nil || ok {
			return ok, err
		}
	}
	return false, nil
}

// ── Internal helpers ──────────────────────────────────────────────────────────

// loadOrder fetches an order, hiding orders of other companies.
func (s *ApprovalService) loadOrder(ctx context.Context, actor Actor, id string) (*repository.PurchaseOrder, error) {
	return loadScopedOrder(ctx, s.orders, actor.CompanyID, id)
}

func loadScopedOrder(ctx context.Context, orders OrderStore, companyID, id string) (*repository.PurchaseOrder, error) {
	order, err := orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.CompanyID != companyID {
		return nil, errors.NotFound("purchase_order", id)
	}
	return order, nil
}

func (s *ApprovalService) newBatch(actor Actor, orderIDs []string) (*batch, error) {
	if actor.UserID == "" {
		return nil, errors.New(errors.ErrCodeUnauthorized, "acting user is required")
	}
	if len(orderIDs) == 0 {
		return nil, errors.InvalidInput("order_ids", "at least one order id is required")
	}
	return newBatch(orderIDs), nil
}

// notifyGroup notifies the members of group. A nil group or a failed member
// lookup sends nothing.
func (s *ApprovalService) notifyGroup(ctx context.Context, kind client.EventKind, order *repository.PurchaseOrder, actorID string, group *string) {
	if group == nil {
		s.log.Debug().Str("order_id", order.ID).Str("event", string(kind)).Msg("No approver group configured; notification skipped")
		return
	}
	members, err := s.groups.Members(ctx, order.CompanyID, *group)
	if err != nil {
		s.log.Warn().Err(err).Str("group_id", *group).Msg("Could not fetch approver group members; notification skipped")
		return
	}
	s.notifyUsers(ctx, kind, order, actorID, members)
}

func (s *ApprovalService) notifyUsers(ctx context.Context, kind client.EventKind, order *repository.PurchaseOrder, actorID string, recipients []string) {
	if s.notifier == nil {
		return
	}
	s.notifier.PublishPurchaseEvent(ctx, &client.PurchaseEvent{
		Kind:          kind,
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		CompanyID:     order.CompanyID,
		ActorID:       actorID,
		Recipients:    nonEmpty(recipients),
		AmountTotal:   order.AmountTotal,
		Currency:      order.Currency,
		ApprovalLevel: int(order.ApprovalLevel),
	})
}

func newAuditEntry(
	order *repository.PurchaseOrder,
	action, actorID string,
	to repository.OrderState,
	metadata map[string]interface{},
) *repository.ApprovalAuditEntry {
	before := string(order.State)
	after := string(to)
	return &repository.ApprovalAuditEntry{
		OrderID:       order.ID,
		CompanyID:     order.CompanyID,
		Action:        action,
		PerformedBy:   actorID,
		StateBefore:   &before,
		StateAfter:    &after,
		ApprovalLevel: order.ApprovalLevel,
		Metadata:      metadata,
	}
}

func invalidState(order *repository.PurchaseOrder, action string) error {
	return &errors.AppError{
		Code:    errors.ErrCodeConflict,
		Message: fmt.Sprintf("cannot %s purchase order %s in state %s", action, order.OrderNumber, order.State),
		Err:     ErrInvalidState,
	}
}

func nonEmpty(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" {
			out = append(out, id)
		}
	}
	return out
}

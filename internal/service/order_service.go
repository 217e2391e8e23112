package service

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pesio-ai/be-po-approvals/internal/common/errors"
	"github.com/pesio-ai/be-po-approvals/internal/common/logger"
	"github.com/pesio-ai/be-po-approvals/internal/repository"
)

// editableStates are the states in which an order's amount may change.
var editableStates = []repository.OrderState{repository.StateDraft, repository.StateSent}

// PurchaseOrderService covers the host order operations the approval workflow
// depends on: creating drafts, changing amounts and marking orders sent.
type PurchaseOrderService struct {
	orders   OrderStore
	audit    AuditLog
	resolver *ThresholdResolver
	log      *logger.Logger
}

// NewPurchaseOrderService creates a new purchase order service
func NewPurchaseOrderService(
	orders OrderStore,
	audit AuditLog,
	resolver *ThresholdResolver,
	log *logger.Logger,
) *PurchaseOrderService {
	return &PurchaseOrderService{
		orders:   orders,
		audit:    audit,
		resolver: resolver,
		log:      log,
	}
}

// CreateOrderRequest represents a create purchase order request
type CreateOrderRequest struct {
	CompanyID   string
	OrderNumber string
	AmountTotal decimal.Decimal
	Currency    string
	CreatedBy   string
}

// UpdateAmountRequest represents an amount change on a draft or sent order
type UpdateAmountRequest struct {
	ID          string
	CompanyID   string
	AmountTotal decimal.Decimal
	UpdatedBy   string
}

// CreateOrder creates a draft order with its approval level computed.
func (s *PurchaseOrderService) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*repository.PurchaseOrder, error) {
	if strings.TrimSpace(req.OrderNumber) == "" {
		return nil, errors.InvalidInput("order_number", "order number is required")
	}
	if req.CompanyID == "" {
		return nil, errors.InvalidInput("company_id", "company is required")
	}
	if err := validateMoney("amount_total", req.AmountTotal); err != nil {
		return nil, err
	}
	currency := strings.ToUpper(req.Currency)
	if len(currency) != 3 {
		return nil, errors.InvalidInput("currency", "currency must be 3-letter ISO code")
	}

	level, err := s.resolver.Resolve(ctx, req.CompanyID, req.AmountTotal)
	if err != nil {
		return nil, err
	}

	order := &repository.PurchaseOrder{
		CompanyID:     req.CompanyID,
		OrderNumber:   req.OrderNumber,
		AmountTotal:   req.AmountTotal,
		Currency:      currency,
		State:         repository.StateDraft,
		ApprovalLevel: level,
		CreatedBy:     req.CreatedBy,
	}
	if err := s.orders.Create(ctx, order); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("order_id", order.ID).
		Str("order_number", order.OrderNumber).
		Str("amount_total", order.AmountTotal.String()).
		Int("approval_level", int(level)).
		Msg("Purchase order created")

	return order, nil
}

// GetOrder retrieves an order of companyID.
func (s *PurchaseOrderService) GetOrder(ctx context.Context, companyID, id string) (*repository.PurchaseOrder, error) {
	return loadScopedOrder(ctx, s.orders, companyID, id)
}

// UpdateAmount changes an order total and recomputes its approval level. An
// amount in a classification gap is rejected and the order is left as is.
func (s *PurchaseOrderService) UpdateAmount(ctx context.Context, req *UpdateAmountRequest) (*repository.PurchaseOrder, error) {
	if err := validateMoney("amount_total", req.AmountTotal); err != nil {
		return nil, err
	}

	order, err := loadScopedOrder(ctx, s.orders, req.CompanyID, req.ID)
	if err != nil {
		return nil, err
	}
	if order.State != repository.StateDraft && order.State != repository.StateSent {
		return nil, invalidState(order, "change the amount of")
	}

	level, err := s.resolver.Resolve(ctx, order.CompanyID, req.AmountTotal)
	if err != nil {
		return nil, err
	}

	if err := s.orders.UpdateAmount(ctx, order.ID, req.AmountTotal, level, editableStates); err != nil {
		return nil, err
	}

	previous := order.AmountTotal
	order.AmountTotal = req.AmountTotal
	order.ApprovalLevel = level
	order.UpdatedAt = time.Now()

	s.appendAudit(ctx, &repository.ApprovalAuditEntry{
		OrderID:       order.ID,
		CompanyID:     order.CompanyID,
		Action:        "amount_changed",
		PerformedBy:   req.UpdatedBy,
		ApprovalLevel: level,
		Metadata: map[string]interface{}{
			"amount_before": previous.String(),
			"amount_after":  req.AmountTotal.String(),
		},
	})

	return order, nil
}

// MarkSent moves a draft order to sent (request for quotation sent).
func (s *PurchaseOrderService) MarkSent(ctx context.Context, companyID, id, actorID string) (*repository.PurchaseOrder, error) {
	order, err := loadScopedOrder(ctx, s.orders, companyID, id)
	if err != nil {
		return nil, err
	}
	if order.State != repository.StateDraft {
		return nil, invalidState(order, "send")
	}

	err = s.orders.Transition(ctx, &repository.StateTransition{
		OrderID: order.ID,
		From:    repository.StateDraft,
		To:      repository.StateSent,
		Audit:   newAuditEntry(order, "sent", actorID, repository.StateSent, nil),
	})
	if err != nil {
		return nil, err
	}
	order.State = repository.StateSent
	return order, nil
}

// appendAudit writes an audit entry and logs a warning on failure (never returns error).
func (s *PurchaseOrderService) appendAudit(ctx context.Context, entry *repository.ApprovalAuditEntry) {
	if err := s.audit.Append(ctx, entry); err != nil {
		s.log.Warn().Err(err).
			Str("order_id", entry.OrderID).
			Str("action", entry.Action).
			Msg("Failed to write audit log entry")
	}
}

// Amounts are stored as NUMERIC(16,2).
const moneyScale = 2

var maxMoney = decimal.New(1, 14)

// validateMoney rejects negative amounts and amounts the store cannot hold
// exactly, so classification always sees the value that gets persisted.
func validateMoney(field string, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return errors.InvalidInput(field, "amount cannot be negative")
	}
	if !amount.Equal(amount.Round(moneyScale)) {
		return errors.InvalidInput(field, "amount cannot have more than 2 decimal places")
	}
	if amount.GreaterThanOrEqual(maxMoney) {
		return errors.InvalidInput(field, "amount is too large")
	}
	return nil
}

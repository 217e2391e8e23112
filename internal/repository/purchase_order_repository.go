package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/pesio-ai/be-po-approvals/internal/common/database"
	"github.com/pesio-ai/be-po-approvals/internal/common/errors"
)

// ErrStateChanged is returned when a conditional update finds the order no
// longer in the expected state.
var ErrStateChanged = errors.New(errors.ErrCodeConflict, "purchase order state changed concurrently")

// PurchaseOrderRepository reads purchase orders and writes the approval
// workflow columns.
type PurchaseOrderRepository struct {
	db *database.DB
}

// NewPurchaseOrderRepository creates a new PurchaseOrderRepository.
func NewPurchaseOrderRepository(db *database.DB) *PurchaseOrderRepository {
	return &PurchaseOrderRepository{db: db}
}

const orderColumns = `
	id, company_id, order_number, amount_total, currency,
	state, approval_level,
	level1_approver, level1_approval_date,
	level2_approver, level2_approval_date,
	date_approve, created_by, created_at, updated_at
`

// Create inserts a purchase order.
func (r *PurchaseOrderRepository) Create(ctx context.Context, order *PurchaseOrder) error {
	query := `
		INSERT INTO purchase_orders
		    (company_id, order_number, amount_total, currency,
		     state, approval_level, created_by)
		VALUES ($1, $2, $3, $4,
		        $5::purchase_order_state, $6, $7)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRow(ctx, query,
		order.CompanyID,
		order.OrderNumber,
		order.AmountTotal,
		order.Currency,
		string(order.State),
		int(order.ApprovalLevel),
		order.CreatedBy,
	).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)
	if isUniqueViolation(err) {
		return errors.Wrap(err, errors.ErrCodeConflict, "purchase order number already exists")
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create purchase order")
	}
	return nil
}

// GetByID retrieves a purchase order.
func (r *PurchaseOrderRepository) GetByID(ctx context.Context, id string) (*PurchaseOrder, error) {
	if !isUUID(id) {
		return nil, errors.NotFound("purchase_order", id)
	}
	query := `SELECT ` + orderColumns + ` FROM purchase_orders WHERE id = $1`

	order, err := r.scanOrder(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.NotFound("purchase_order", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get purchase order")
	}
	return order, nil
}

// ListByStates returns a company's orders in any of states, oldest first.
func (r *PurchaseOrderRepository) ListByStates(ctx context.Context, companyID string, states []OrderState) ([]*PurchaseOrder, error) {
	names := make([]string, len(states))
	for i, s := range states {
		names[i] = string(s)
	}

	query := `SELECT ` + orderColumns + `
		FROM purchase_orders
		WHERE company_id = $1 AND state::text = ANY($2)
		ORDER BY created_at ASC, id ASC
	`

	rows, err := r.db.Query(ctx, query, companyID, names)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list purchase orders")
	}
	defer rows.Close()

	var orders []*PurchaseOrder
	for rows.Next() {
		order, err := r.scanOrder(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan purchase order")
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list purchase orders")
	}
	return orders, nil
}

// UpdateAmount changes the total and its derived approval level while the
// order is in one of allowed states.
func (r *PurchaseOrderRepository) UpdateAmount(
	ctx context.Context,
	id string,
	amount decimal.Decimal,
	level ApprovalLevel,
	allowed []OrderState,
) error {
	if !isUUID(id) {
		return ErrStateChanged
	}
	names := make([]string, len(allowed))
	for i, s := range allowed {
		names[i] = string(s)
	}

	tag, err := r.db.Exec(ctx, `
		UPDATE purchase_orders
		SET amount_total   = $2,
		    approval_level = $3,
		    updated_at     = NOW()
		WHERE id = $1 AND state::text = ANY($4)
	`, id, amount, int(level), names)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to update purchase order amount")
	}
	if tag.RowsAffected() == 0 {
		return ErrStateChanged
	}
	return nil
}

// SetApprovalLevel stores a recomputed approval level.
func (r *PurchaseOrderRepository) SetApprovalLevel(ctx context.Context, id string, level ApprovalLevel) error {
	if !isUUID(id) {
		return errors.NotFound("purchase_order", id)
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE purchase_orders
		SET approval_level = $2, updated_at = NOW()
		WHERE id = $1
	`, id, int(level))
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to set approval level")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("purchase_order", id)
	}
	return nil
}

// Transition applies t and appends its audit entry in one transaction.
// Returns ErrStateChanged when the order is no longer in t.From.
func (r *PurchaseOrderRepository) Transition(ctx context.Context, t *StateTransition) error {
	if !isUUID(t.OrderID) {
		return ErrStateChanged
	}
	query, args := buildTransitionUpdate(t)

	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, query, args...)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to transition purchase order")
		}
		if tag.RowsAffected() == 0 {
			return ErrStateChanged
		}
		if t.Audit != nil {
			return appendAudit(ctx, tx, t.Audit)
		}
		return nil
	})
}

func buildTransitionUpdate(t *StateTransition) (string, []any) {
	args := []any{t.OrderID, string(t.From), string(t.To)}
	set := "state = $3::purchase_order_state, updated_at = NOW()"

	if a := t.Approval; a != nil {
		switch a.Level {
		case Level1:
			args = append(args, a.ApproverID, a.At)
			set += fmt.Sprintf(", level1_approver = $%d, level1_approval_date = $%d", len(args)-1, len(args))
		case Level2:
			args = append(args, a.ApproverID, a.At)
			set += fmt.Sprintf(", level2_approver = $%d, level2_approval_date = $%d", len(args)-1, len(args))
		}
	}
	if t.ConfirmedAt != nil {
		args = append(args, *t.ConfirmedAt)
		set += fmt.Sprintf(", date_approve = $%d", len(args))
	}

	query := `UPDATE purchase_orders SET ` + set +
		` WHERE id = $1 AND state = $2::purchase_order_state`
	return query, args
}

// isUUID guards id columns so malformed ids read as missing rows instead of
// query errors.
func isUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// ── scan helpers ─────────────────────────────────────────────────────────────

type orderScanner interface {
	Scan(dest ...any) error
}

func (r *PurchaseOrderRepository) scanOrder(row orderScanner) (*PurchaseOrder, error) {
	o := &PurchaseOrder{}
	var state string
	var level int16

	err := row.Scan(
		&o.ID,
		&o.CompanyID,
		&o.OrderNumber,
		&o.AmountTotal,
		&o.Currency,
		&state,
		&level,
		&o.Level1Approver,
		&o.Level1ApprovalDate,
		&o.Level2Approver,
		&o.Level2ApprovalDate,
		&o.DateApprove,
		&o.CreatedBy,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	o.State = OrderState(state)
	o.ApprovalLevel = ApprovalLevel(level)
	return o, nil
}

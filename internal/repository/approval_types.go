package repository

import (
	"time"

	"github.com/shopspring/decimal"
)

// ── Purchase order lifecycle ─────────────────────────────────────────────────

// OrderState is the purchase order state. draft, sent, purchase, done and
// cancel belong to the host lifecycle; the rest are added by the approval
// workflow.
type OrderState string

const (
	StateDraft          OrderState = "draft"
	StateSent           OrderState = "sent"
	StateToApprove      OrderState = "to_approve"
	StateApprovedLevel1 OrderState = "approved_level1"
	StateApprovedLevel2 OrderState = "approved_level2"
	StatePurchase       OrderState = "purchase"
	StateDone           OrderState = "done"
	StateCancel         OrderState = "cancel"
)

// Valid reports whether s is a known state.
func (s OrderState) Valid() bool {
	switch s {
	case StateDraft, StateSent, StateToApprove, StateApprovedLevel1,
		StateApprovedLevel2, StatePurchase, StateDone, StateCancel:
		return true
	}
	return false
}

// ApprovalLevel is the approval tier: 0 auto, 1 single sign-off, 2 two
// sequential sign-offs.
type ApprovalLevel int

const (
	LevelAuto ApprovalLevel = 0
	Level1    ApprovalLevel = 1
	Level2    ApprovalLevel = 2
)

// ── Domain types ─────────────────────────────────────────────────────────────

// ApprovalConfig holds the threshold bands and approver groups for a company.
type ApprovalConfig struct {
	ID                  string          `json:"id"`
	CompanyID           string          `json:"company_id"`
	Name                string          `json:"name"`
	AutoApproveMax      decimal.Decimal `json:"auto_approve_max"`
	Level1Min           decimal.Decimal `json:"level1_min"`
	Level1Max           decimal.Decimal `json:"level1_max"`
	Level2Min           decimal.Decimal `json:"level2_min"`
	Level1ApproverGroup *string         `json:"level1_approver_group,omitempty"`
	Level2ApproverGroup *string         `json:"level2_approver_group,omitempty"`
	Active              bool            `json:"active"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// ApproverGroup returns the approver group for level, or nil.
func (c *ApprovalConfig) ApproverGroup(level ApprovalLevel) *string {
	if c == nil {
		return nil
	}
	switch level {
	case Level1:
		return c.Level1ApproverGroup
	case Level2:
		return c.Level2ApproverGroup
	}
	return nil
}

// PurchaseOrder carries the host order fields the approval workflow reads and
// the workflow fields it writes.
type PurchaseOrder struct {
	ID                 string          `json:"id"`
	CompanyID          string          `json:"company_id"`
	OrderNumber        string          `json:"order_number"`
	AmountTotal        decimal.Decimal `json:"amount_total"`
	Currency           string          `json:"currency"`
	State              OrderState      `json:"state"`
	ApprovalLevel      ApprovalLevel   `json:"approval_level"`
	Level1Approver     *string         `json:"level1_approver,omitempty"`
	Level1ApprovalDate *time.Time      `json:"level1_approval_date,omitempty"`
	Level2Approver     *string         `json:"level2_approver,omitempty"`
	Level2ApprovalDate *time.Time      `json:"level2_approval_date,omitempty"`
	DateApprove        *time.Time      `json:"date_approve,omitempty"`
	CreatedBy          string          `json:"created_by"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// RequiresApproval is derived from ApprovalLevel.
func (o *PurchaseOrder) RequiresApproval() bool {
	return o.ApprovalLevel > LevelAuto
}

// ApprovalStamp records who approved a level and when.
type ApprovalStamp struct {
	Level      ApprovalLevel
	ApproverID string
	At         time.Time
}

// StateTransition is a conditional state change: it applies only while the
// order is still in From. Audit, when set, is appended in the same
// transaction.
type StateTransition struct {
	OrderID     string
	From        OrderState
	To          OrderState
	Approval    *ApprovalStamp
	ConfirmedAt *time.Time
	Audit       *ApprovalAuditEntry
}

// ApprovalAuditEntry is one immutable record in the approval audit log.
type ApprovalAuditEntry struct {
	ID            string                 `json:"id"`
	OrderID       string                 `json:"order_id"`
	CompanyID     string                 `json:"company_id"`
	Action        string                 `json:"action"` // confirmed | submitted | approved_level1 | approved_level2 | rejected | sent
	PerformedBy   string                 `json:"performed_by"`
	PerformedAt   time.Time              `json:"performed_at"`
	StateBefore   *string                `json:"state_before,omitempty"`
	StateAfter    *string                `json:"state_after,omitempty"`
	ApprovalLevel ApprovalLevel          `json:"approval_level"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}

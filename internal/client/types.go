package client

import "github.com/shopspring/decimal"

// EventKind names a purchase approval notification.
type EventKind string

const (
	EventLevel1Requested EventKind = "level1_requested"
	EventLevel2Requested EventKind = "level2_requested"
	EventLevel1Approved  EventKind = "level1_approved"
	EventLevel2Approved  EventKind = "level2_approved"
	EventRejected        EventKind = "rejected"
)

// Template returns the email template the notifications service renders for
// k, or "" when k is an in-app notification only.
func (k EventKind) Template() string {
	switch k {
	case EventLevel1Requested:
		return "email_approval_level1"
	case EventLevel2Requested:
		return "email_approval_level2"
	case EventRejected:
		return "email_rejection"
	}
	return ""
}

// Actionable reports whether recipients are expected to act on the event.
func (k EventKind) Actionable() bool {
	return k == EventLevel1Requested || k == EventLevel2Requested
}

// PurchaseEvent is what the approval service asks to be announced.
type PurchaseEvent struct {
	Kind          EventKind
	OrderID       string
	OrderNumber   string
	CompanyID     string
	ActorID       string
	Recipients    []string
	AmountTotal   decimal.Decimal
	Currency      string
	ApprovalLevel int
}

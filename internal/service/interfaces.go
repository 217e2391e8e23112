package service

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/pesio-ai/be-po-approvals/internal/repository"
)

// ConfigFinder looks up the active approval config for a company. It returns
// nil, nil when the company has none.
type ConfigFinder interface {
	FindActive(ctx context.Context, companyID string) (*repository.ApprovalConfig, error)
}

// ConfigStore is the full approval config repository.
type ConfigStore interface {
	ConfigFinder
	Create(ctx context.Context, cfg *repository.ApprovalConfig) error
	GetByID(ctx context.Context, id string) (*repository.ApprovalConfig, error)
	List(ctx context.Context, companyID string, activeOnly bool) ([]*repository.ApprovalConfig, error)
	Update(ctx context.Context, cfg *repository.ApprovalConfig) error
	Deactivate(ctx context.Context, id string) error
}

// GroupMembership answers whether a user belongs to a company's approver
// group.
type GroupMembership interface {
	Contains(ctx context.Context, companyID, userID, groupID string) (bool, error)
}

// GroupDirectory extends GroupMembership with listing and administration.
type GroupDirectory interface {
	GroupMembership
	Members(ctx context.Context, companyID, groupID string) ([]string, error)
	AddMember(ctx context.Context, companyID, groupID, userID string) error
	RemoveMember(ctx context.Context, companyID, groupID, userID string) error
}

// OrderStore reads purchase orders and writes the workflow columns.
// Transition and UpdateAmount return repository.ErrStateChanged when the
// order is no longer in the expected state.
type OrderStore interface {
	Create(ctx context.Context, order *repository.PurchaseOrder) error
	GetByID(ctx context.Context, id string) (*repository.PurchaseOrder, error)
	ListByStates(ctx context.Context, companyID string, states []repository.OrderState) ([]*repository.PurchaseOrder, error)
	UpdateAmount(ctx context.Context, id string, amount decimal.Decimal, level repository.ApprovalLevel, allowed []repository.OrderState) error
	SetApprovalLevel(ctx context.Context, id string, level repository.ApprovalLevel) error
	Transition(ctx context.Context, t *repository.StateTransition) error
}

// AuditLog is the append-only approval history.
type AuditLog interface {
	Append(ctx context.Context, entry *repository.ApprovalAuditEntry) error
	GetByOrderID(ctx context.Context, orderID string) ([]*repository.ApprovalAuditEntry, error)
}

// OrderConfirmer is the host's own confirm path for orders that need no
// approval. It reports whether the order was moved.
type OrderConfirmer interface {
	ConfirmOrder(ctx context.Context, order *repository.PurchaseOrder, actorID string) (bool, error)
}

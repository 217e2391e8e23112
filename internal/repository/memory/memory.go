// Package memory provides in-memory implementations of the repositories,
// used for local runs (STORE_DRIVER=memory) and tests.
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pesio-ai/be-po-approvals/internal/common/errors"
	"github.com/pesio-ai/be-po-approvals/internal/repository"
)

// NowFunc returns current time. Override in tests for determinism.
var NowFunc = time.Now

// ── Approval configs ─────────────────────────────────────────────────────────

// ConfigRepository keeps configs in insertion (storage) order.
type ConfigRepository struct {
	mu      sync.RWMutex
	configs []*repository.ApprovalConfig
}

func NewConfigRepository() *ConfigRepository {
	return &ConfigRepository{}
}

func (r *ConfigRepository) Create(_ context.Context, cfg *repository.ApprovalConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cfg.ID = uuid.NewString()
	cfg.CreatedAt = NowFunc()
	cfg.UpdatedAt = cfg.CreatedAt
	cp := *cfg
	r.configs = append(r.configs, &cp)
	return nil
}

func (r *ConfigRepository) GetByID(_ context.Context, id string) (*repository.ApprovalConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, cfg := range r.configs {
		if cfg.ID == id {
			cp := *cfg
			return &cp, nil
		}
	}
	return nil, errors.NotFound("approval_config", id)
}

func (r *ConfigRepository) List(_ context.Context, companyID string, activeOnly bool) ([]*repository.ApprovalConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*repository.ApprovalConfig
	for _, cfg := range r.configs {
		if cfg.CompanyID != companyID || (activeOnly && !cfg.Active) {
			continue
		}
		cp := *cfg
		out = append(out, &cp)
	}
	return out, nil
}

func (r *ConfigRepository) FindActive(_ context.Context, companyID string) (*repository.ApprovalConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, cfg := range r.configs {
		if cfg.CompanyID == companyID && cfg.Active {
			cp := *cfg
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *ConfigRepository) Update(_ context.Context, cfg *repository.ApprovalConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.configs {
		if existing.ID == cfg.ID {
			cfg.CompanyID = existing.CompanyID
			cfg.CreatedAt = existing.CreatedAt
			cfg.UpdatedAt = NowFunc()
			cp := *cfg
			r.configs[i] = &cp
			return nil
		}
	}
	return errors.NotFound("approval_config", cfg.ID)
}

func (r *ConfigRepository) Deactivate(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, cfg := range r.configs {
		if cfg.ID == id {
			cfg.Active = false
			cfg.UpdatedAt = NowFunc()
			return nil
		}
	}
	return errors.NotFound("approval_config", id)
}

// ── Group membership ─────────────────────────────────────────────────────────

// GroupRepository maps (company, group) to a member set.
type GroupRepository struct {
	mu     sync.RWMutex
	groups map[groupKey]map[string]struct{}
}

type groupKey struct {
	companyID string
	groupID   string
}

func NewGroupRepository() *GroupRepository {
	return &GroupRepository{groups: make(map[groupKey]map[string]struct{})}
}

func (r *GroupRepository) Contains(_ context.Context, companyID, userID, groupID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.groups[groupKey{companyID, groupID}][userID]
	return ok, nil
}

func (r *GroupRepository) Members(_ context.Context, companyID, groupID string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.groups[groupKey{companyID, groupID}]
	users := make([]string, 0, len(set))
	for userID := range set {
		users = append(users, userID)
	}
	slices.Sort(users)
	return users, nil
}

func (r *GroupRepository) AddMember(_ context.Context, companyID, groupID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := groupKey{companyID, groupID}
	if r.groups[key] == nil {
		r.groups[key] = make(map[string]struct{})
	}
	r.groups[key][userID] = struct{}{}
	return nil
}

func (r *GroupRepository) RemoveMember(_ context.Context, companyID, groupID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := groupKey{companyID, groupID}
	if _, ok := r.groups[key][userID]; !ok {
		return errors.NotFound("group_member", groupID+"/"+userID)
	}
	delete(r.groups[key], userID)
	return nil
}

// ── Audit ────────────────────────────────────────────────────────────────────

// AuditRepository is an append-only slice.
type AuditRepository struct {
	mu      sync.RWMutex
	entries []*repository.ApprovalAuditEntry
}

func NewAuditRepository() *AuditRepository {
	return &AuditRepository{}
}

func (r *AuditRepository) Append(_ context.Context, entry *repository.ApprovalAuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.appendLocked(entry)
	return nil
}

func (r *AuditRepository) appendLocked(entry *repository.ApprovalAuditEntry) {
	entry.ID = uuid.NewString()
	entry.PerformedAt = NowFunc()
	cp := *entry
	r.entries = append(r.entries, &cp)
}

func (r *AuditRepository) GetByOrderID(_ context.Context, orderID string) ([]*repository.ApprovalAuditEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*repository.ApprovalAuditEntry
	for _, e := range r.entries {
		if e.OrderID == orderID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

// ── Purchase orders ──────────────────────────────────────────────────────────

// OrderRepository stores orders by id. Transition appends to audit under the
// same lock so the pair is atomic.
type OrderRepository struct {
	mu     sync.RWMutex
	orders map[string]*repository.PurchaseOrder
	seq    []string
	audit  *AuditRepository
}

func NewOrderRepository(audit *AuditRepository) *OrderRepository {
	return &OrderRepository{
		orders: make(map[string]*repository.PurchaseOrder),
		audit:  audit,
	}
}

func (r *OrderRepository) Create(_ context.Context, order *repository.PurchaseOrder) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.orders {
		if existing.CompanyID == order.CompanyID && existing.OrderNumber == order.OrderNumber {
			return errors.New(errors.ErrCodeConflict, "purchase order number already exists")
		}
	}
	order.ID = uuid.NewString()
	order.CreatedAt = NowFunc()
	order.UpdatedAt = order.CreatedAt
	cp := *order
	r.orders[order.ID] = &cp
	r.seq = append(r.seq, order.ID)
	return nil
}

func (r *OrderRepository) GetByID(_ context.Context, id string) (*repository.PurchaseOrder, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	order, ok := r.orders[id]
	if !ok {
		return nil, errors.NotFound("purchase_order", id)
	}
	cp := *order
	return &cp, nil
}

func (r *OrderRepository) ListByStates(_ context.Context, companyID string, states []repository.OrderState) ([]*repository.PurchaseOrder, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*repository.PurchaseOrder
	for _, id := range r.seq {
		order := r.orders[id]
		if order.CompanyID == companyID && slices.Contains(states, order.State) {
			cp := *order
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *OrderRepository) UpdateAmount(
	_ context.Context,
	id string,
	amount decimal.Decimal,
	level repository.ApprovalLevel,
	allowed []repository.OrderState,
) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[id]
	if !ok || !slices.Contains(allowed, order.State) {
		return repository.ErrStateChanged
	}
	order.AmountTotal = amount
	order.ApprovalLevel = level
	order.UpdatedAt = NowFunc()
	return nil
}

func (r *OrderRepository) SetApprovalLevel(_ context.Context, id string, level repository.ApprovalLevel) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[id]
	if !ok {
		return errors.NotFound("purchase_order", id)
	}
	order.ApprovalLevel = level
	order.UpdatedAt = NowFunc()
	return nil
}

func (r *OrderRepository) Transition(_ context.Context, t *repository.StateTransition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[t.OrderID]
	if !ok || order.State != t.From {
		return repository.ErrStateChanged
	}

	order.State = t.To
	if a := t.Approval; a != nil {
		approver, at := a.ApproverID, a.At
		switch a.Level {
		case repository.Level1:
			order.Level1Approver, order.Level1ApprovalDate = &approver, &at
		case repository.Level2:
			order.Level2Approver, order.Level2ApprovalDate = &approver, &at
		}
	}
	if t.ConfirmedAt != nil {
		at := *t.ConfirmedAt
		order.DateApprove = &at
	}
	order.UpdatedAt = NowFunc()

	if t.Audit != nil && r.audit != nil {
		r.audit.mu.Lock()
		r.audit.appendLocked(t.Audit)
		r.audit.mu.Unlock()
	}
	return nil
}

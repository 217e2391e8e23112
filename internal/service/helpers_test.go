package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-po-approvals/internal/client"
	"github.com/pesio-ai/be-po-approvals/internal/common/logger"
	"github.com/pesio-ai/be-po-approvals/internal/repository"
	"github.com/pesio-ai/be-po-approvals/internal/repository/memory"
)

const (
	testCompany = "acme"
	groupL1     = "po-approvers-l1"
	groupL2     = "po-approvers-l2"
	requester   = "rita"
	approverL1  = "alice"
	approverL2  = "bob"
	outsider    = "carol"
)

var fixedNow = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func strPtr(s string) *string {
	return &s
}

func defaultConfig() *repository.ApprovalConfig {
	return &repository.ApprovalConfig{
		CompanyID:           testCompany,
		Name:                "Default Config",
		AutoApproveMax:      d("5000"),
		Level1Min:           d("5001"),
		Level1Max:           d("20000"),
		Level2Min:           d("20001"),
		Level1ApproverGroup: strPtr(groupL1),
		Level2ApproverGroup: strPtr(groupL2),
		Active:              true,
	}
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []*client.PurchaseEvent
}

func (n *recordingNotifier) PublishPurchaseEvent(_ context.Context, ev *client.PurchaseEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
}

func (n *recordingNotifier) kinds() []client.EventKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	kinds := make([]client.EventKind, len(n.events))
	for i, ev := range n.events {
		kinds[i] = ev.Kind
	}
	return kinds
}

func (n *recordingNotifier) last() *client.PurchaseEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.events) == 0 {
		return nil
	}
	return n.events[len(n.events)-1]
}

type fixture struct {
	configs  *memory.ConfigRepository
	orders   *memory.OrderRepository
	groups   *memory.GroupRepository
	audit    *memory.AuditRepository
	notifier *recordingNotifier

	approvals *ApprovalService
	orderSvc  *PurchaseOrderService
	configSvc *ApprovalConfigService
}

func newFixture(t *testing.T, opts ApprovalOptions) *fixture {
	t.Helper()

	f := &fixture{
		configs:  memory.NewConfigRepository(),
		groups:   memory.NewGroupRepository(),
		audit:    memory.NewAuditRepository(),
		notifier: &recordingNotifier{},
	}
	f.orders = memory.NewOrderRepository(f.audit)

	log := logger.Nop()
	confirmer := NewHostConfirmer(f.orders, log)
	confirmer.now = func() time.Time { return fixedNow }

	f.approvals = NewApprovalService(f.configs, f.orders, f.groups, f.audit, f.notifier, confirmer, opts, log)
	f.approvals.now = func() time.Time { return fixedNow }
	f.orderSvc = NewPurchaseOrderService(f.orders, f.audit, NewThresholdResolver(f.configs), log)
	f.configSvc = NewApprovalConfigService(f.configs, f.groups, log)
	return f
}

// withDefaultConfig installs the default config with alice on level 1 and bob
// on level 2.
func (f *fixture) withDefaultConfig(t *testing.T) *repository.ApprovalConfig {
	t.Helper()
	ctx := context.Background()

	cfg := defaultConfig()
	require.NoError(t, f.configs.Create(ctx, cfg))
	require.NoError(t, f.groups.AddMember(ctx, testCompany, groupL1, approverL1))
	require.NoError(t, f.groups.AddMember(ctx, testCompany, groupL2, approverL2))
	return cfg
}

func (f *fixture) createOrder(t *testing.T, number, amount string) *repository.PurchaseOrder {
	t.Helper()
	order, err := f.orderSvc.CreateOrder(context.Background(), &CreateOrderRequest{
		CompanyID:   testCompany,
		OrderNumber: number,
		AmountTotal: d(amount),
		Currency:    "USD",
		CreatedBy:   requester,
	})
	require.NoError(t, err)
	return order
}

func (f *fixture) reload(t *testing.T, id string) *repository.PurchaseOrder {
	t.Helper()
	order, err := f.orders.GetByID(context.Background(), id)
	require.NoError(t, err)
	return order
}

func actor(userID string) Actor {
	return Actor{UserID: userID, CompanyID: testCompany}
}

// single unwraps a one-order batch call: single(t)(svc.Confirm(...)).
func single(t *testing.T) func([]*ActionResult, error) *ActionResult {
	return func(results []*ActionResult, err error) *ActionResult {
		t.Helper()
		require.NoError(t, err)
		require.Len(t, results, 1)
		return results[0]
	}
}

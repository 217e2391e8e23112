package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-po-approvals/internal/common/errors"
	"github.com/pesio-ai/be-po-approvals/internal/repository"
)

func newOrder(t *testing.T, orders *OrderRepository, number string) *repository.PurchaseOrder {
	t.Helper()
	order := &repository.PurchaseOrder{
		CompanyID:     "acme",
		OrderNumber:   number,
		AmountTotal:   decimal.NewFromInt(10000),
		Currency:      "USD",
		State:         repository.StateToApprove,
		ApprovalLevel: repository.Level1,
		CreatedBy:     "rita",
	}
	require.NoError(t, orders.Create(context.Background(), order))
	return order
}

func TestOrderRepository_Transition(t *testing.T) {
	ctx := context.Background()
	audit := NewAuditRepository()
	orders := NewOrderRepository(audit)
	order := newOrder(t, orders, "PO-1")

	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	err := orders.Transition(ctx, &repository.StateTransition{
		OrderID:     order.ID,
		From:        repository.StateToApprove,
		To:          repository.StatePurchase,
		Approval:    &repository.ApprovalStamp{Level: repository.Level1, ApproverID: "alice", At: at},
		ConfirmedAt: &at,
		Audit:       &repository.ApprovalAuditEntry{OrderID: order.ID, Action: "approved_level1", PerformedBy: "alice"},
	})
	require.NoError(t, err)

	got, err := orders.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.StatePurchase, got.State)
	assert.Equal(t, "alice", *got.Level1Approver)
	assert.Equal(t, at, *got.Level1ApprovalDate)
	assert.Equal(t, at, *got.DateApprove)
	assert.Nil(t, got.Level2Approver)

	entries, err := audit.GetByOrderID(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.NotEmpty(t, entries[0].ID)

	t.Run("stale from state", func(t *testing.T) {
		err := orders.Transition(ctx, &repository.StateTransition{
			OrderID: order.ID,
			From:    repository.StateToApprove,
			To:      repository.StateDraft,
			Audit:   &repository.ApprovalAuditEntry{OrderID: order.ID, Action: "rejected"},
		})
		assert.ErrorIs(t, err, repository.ErrStateChanged)

		got, err := orders.GetByID(ctx, order.ID)
		require.NoError(t, err)
		assert.Equal(t, repository.StatePurchase, got.State)

		entries, err := audit.GetByOrderID(ctx, order.ID)
		require.NoError(t, err)
		assert.Len(t, entries, 1, "no audit for a transition that did not apply")
	})

	t.Run("unknown order", func(t *testing.T) {
		err := orders.Transition(ctx, &repository.StateTransition{OrderID: "missing", From: repository.StateDraft, To: repository.StateSent})
		assert.ErrorIs(t, err, repository.ErrStateChanged)
	})
}

func TestOrderRepository_ConcurrentTransition(t *testing.T) {
	ctx := context.Background()
	orders := NewOrderRepository(NewAuditRepository())
	order := newOrder(t, orders, "PO-2")

	const workers = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		applied int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := orders.Transition(ctx, &repository.StateTransition{
				OrderID: order.ID,
				From:    repository.StateToApprove,
				To:      repository.StatePurchase,
			})
			if err == nil {
				mu.Lock()
				applied++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, applied)
}

func TestOrderRepository_CopiesAreIsolated(t *testing.T) {
	ctx := context.Background()
	orders := NewOrderRepository(nil)
	order := newOrder(t, orders, "PO-3")

	order.State = repository.StateCancel
	got, err := orders.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.StateToApprove, got.State)

	got.State = repository.StateDone
	again, err := orders.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.StateToApprove, again.State)
}

func TestOrderRepository_UpdateAmount(t *testing.T) {
	ctx := context.Background()
	orders := NewOrderRepository(nil)
	order := newOrder(t, orders, "PO-4")
	editable := []repository.OrderState{repository.StateDraft, repository.StateSent}

	err := orders.UpdateAmount(ctx, order.ID, decimal.NewFromInt(1), repository.LevelAuto, editable)
	assert.ErrorIs(t, err, repository.ErrStateChanged)

	err = orders.UpdateAmount(ctx, order.ID, decimal.NewFromInt(1), repository.LevelAuto, []repository.OrderState{repository.StateToApprove})
	require.NoError(t, err)
	got, err := orders.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(1).Equal(got.AmountTotal))
	assert.Equal(t, repository.LevelAuto, got.ApprovalLevel)
}

func TestOrderRepository_ListByStates(t *testing.T) {
	ctx := context.Background()
	orders := NewOrderRepository(nil)
	first := newOrder(t, orders, "PO-5")
	second := newOrder(t, orders, "PO-6")

	require.NoError(t, orders.Transition(ctx, &repository.StateTransition{OrderID: second.ID, From: repository.StateToApprove, To: repository.StateApprovedLevel1}))

	list, err := orders.ListByStates(ctx, "acme", []repository.OrderState{repository.StateToApprove, repository.StateApprovedLevel1})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, first.ID, list[0].ID)
	assert.Equal(t, second.ID, list[1].ID)

	list, err = orders.ListByStates(ctx, "other", []repository.OrderState{repository.StateToApprove})
	require.NoError(t, err)
	assert.Empty(t, list)

	err = orders.Create(ctx, &repository.PurchaseOrder{CompanyID: "acme", OrderNumber: "PO-5"})
	assert.Equal(t, errors.ErrCodeConflict, errors.CodeOf(err))
}

func TestConfigRepository_FindActive(t *testing.T) {
	ctx := context.Background()
	configs := NewConfigRepository()

	cfg, err := configs.FindActive(ctx, "acme")
	require.NoError(t, err)
	assert.Nil(t, cfg)

	first := &repository.ApprovalConfig{CompanyID: "acme", Name: "first", Active: true}
	second := &repository.ApprovalConfig{CompanyID: "acme", Name: "second", Active: true}
	require.NoError(t, configs.Create(ctx, &repository.ApprovalConfig{CompanyID: "acme", Name: "off"}))
	require.NoError(t, configs.Create(ctx, first))
	require.NoError(t, configs.Create(ctx, second))

	cfg, err = configs.FindActive(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, "first", cfg.Name)

	require.NoError(t, configs.Deactivate(ctx, first.ID))
	cfg, err = configs.FindActive(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, "second", cfg.Name)

	_, err = configs.GetByID(ctx, "missing")
	assert.Equal(t, errors.ErrCodeNotFound, errors.CodeOf(err))
}

func TestGroupRepository(t *testing.T) {
	ctx := context.Background()
	groups := NewGroupRepository()

	require.NoError(t, groups.AddMember(ctx, "acme", "l1", "bob"))
	require.NoError(t, groups.AddMember(ctx, "acme", "l1", "alice"))
	require.NoError(t, groups.AddMember(ctx, "globex", "l1", "mallory"))

	ok, err := groups.Contains(ctx, "acme", "alice", "l1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = groups.Contains(ctx, "acme", "alice", "l2")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = groups.Contains(ctx, "acme", "mallory", "l1")
	require.NoError(t, err)
	assert.False(t, ok, "groups are per company")

	members, err := groups.Members(ctx, "acme", "l1")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, members)

	require.NoError(t, groups.RemoveMember(ctx, "acme", "l1", "alice"))
	err = groups.RemoveMember(ctx, "acme", "l1", "alice")
	assert.Equal(t, errors.ErrCodeNotFound, errors.CodeOf(err))
}

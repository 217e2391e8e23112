package repository_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/pesio-ai/be-po-approvals/internal/common/errors"
	"github.com/pesio-ai/be-po-approvals/internal/repository"
	"github.com/pesio-ai/be-po-approvals/internal/repository/memory"
)

// Malformed ids never reach Postgres, so both drivers answer the same way.
// The Postgres repositories are built without a pool: the id guard must
// return before any query runs.
func TestMalformedIDsMatchMemoryStore(t *testing.T) {
	ctx := context.Background()
	const badID = "not-a-uuid"

	pgConfigs := repository.NewApprovalConfigRepository(nil)
	memConfigs := memory.NewConfigRepository()
	pgOrders := repository.NewPurchaseOrderRepository(nil)
	memOrders := memory.NewOrderRepository(nil)

	type testCase struct {
		name   string
		pg     func() error
		mem    func() error
		expect errors.Code
	}

	tests := []testCase{
		{
			name:   "get config",
			pg:     func() error { _, err := pgConfigs.GetByID(ctx, badID); return err },
			mem:    func() error { _, err := memConfigs.GetByID(ctx, badID); return err },
			expect: errors.ErrCodeNotFound,
		},
		{
			name:   "update config",
			pg:     func() error { return pgConfigs.Update(ctx, &repository.ApprovalConfig{ID: badID, Name: "x"}) },
			mem:    func() error { return memConfigs.Update(ctx, &repository.ApprovalConfig{ID: badID, Name: "x"}) },
			expect: errors.ErrCodeNotFound,
		},
		{
			name:   "deactivate config",
			pg:     func() error { return pgConfigs.Deactivate(ctx, badID) },
			mem:    func() error { return memConfigs.Deactivate(ctx, badID) },
			expect: errors.ErrCodeNotFound,
		},
		{
			name:   "get order",
			pg:     func() error { _, err := pgOrders.GetByID(ctx, badID); return err },
			mem:    func() error { _, err := memOrders.GetByID(ctx, badID); return err },
			expect: errors.ErrCodeNotFound,
		},
		{
			name:   "set approval level",
			pg:     func() error { return pgOrders.SetApprovalLevel(ctx, badID, repository.Level1) },
			mem:    func() error { return memOrders.SetApprovalLevel(ctx, badID, repository.Level1) },
			expect: errors.ErrCodeNotFound,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expect, errors.CodeOf(tc.pg()))
			assert.Equal(t, tc.expect, errors.CodeOf(tc.mem()))
		})
	}

	t.Run("conditional writes", func(t *testing.T) {
		editable := []repository.OrderState{repository.StateDraft}
		tr := &repository.StateTransition{OrderID: badID, From: repository.StateDraft, To: repository.StateSent}

		assert.ErrorIs(t, pgOrders.UpdateAmount(ctx, badID, decimal.NewFromInt(1), repository.LevelAuto, editable), repository.ErrStateChanged)
		assert.ErrorIs(t, memOrders.UpdateAmount(ctx, badID, decimal.NewFromInt(1), repository.LevelAuto, editable), repository.ErrStateChanged)
		assert.ErrorIs(t, pgOrders.Transition(ctx, tr), repository.ErrStateChanged)
		assert.ErrorIs(t, memOrders.Transition(ctx, tr), repository.ErrStateChanged)
	})
}

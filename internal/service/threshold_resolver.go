package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/pesio-ai/be-po-approvals/internal/common/errors"
	"github.com/pesio-ai/be-po-approvals/internal/repository"
)

// DefaultAutoApproveMax is the auto-approval ceiling used when a config
// leaves auto_approve_max unset.
var DefaultAutoApproveMax = decimal.NewFromInt(5000)

// ErrClassificationGap is returned when an amount falls between the
// configured bands.
var ErrClassificationGap = errors.New(errors.ErrCodeInvalidInput, "amount does not fall into any configured approval range")

// ResolveLevel classifies amount against cfg. A nil cfg auto-approves.
// It is pure: the same inputs always yield the same result.
func ResolveLevel(amount decimal.Decimal, cfg *repository.ApprovalConfig) (repository.ApprovalLevel, error) {
	if cfg == nil {
		return repository.LevelAuto, nil
	}

	autoMax := cfg.AutoApproveMax
	if autoMax.IsZero() {
		autoMax = DefaultAutoApproveMax
	}

	switch {
	case amount.LessThanOrEqual(autoMax):
		return repository.LevelAuto, nil
	case amount.GreaterThanOrEqual(cfg.Level1Min) && amount.LessThanOrEqual(cfg.Level1Max):
		return repository.Level1, nil
	case amount.GreaterThanOrEqual(cfg.Level2Min):
		return repository.Level2, nil
	}

	return repository.LevelAuto, &errors.AppError{
		Code:    errors.ErrCodeInvalidInput,
		Field:   "amount_total",
		Message: fmt.Sprintf("the purchase order amount %s does not fall into any configured approval range", amount.String()),
		Err:     ErrClassificationGap,
	}
}

// ThresholdResolver resolves approval levels against the active config of
// an order's company.
type ThresholdResolver struct {
	configs ConfigFinder
}

// NewThresholdResolver creates a new ThresholdResolver.
func NewThresholdResolver(configs ConfigFinder) *ThresholdResolver {
	return &ThresholdResolver{configs: configs}
}

// Resolve returns the level for amount under companyID's active config.
func (r *ThresholdResolver) Resolve(ctx context.Context, companyID string, amount decimal.Decimal) (repository.ApprovalLevel, error) {
	cfg, err := r.configs.FindActive(ctx, companyID)
	if err != nil {
		return repository.LevelAuto, err
	}
	return ResolveLevel(amount, cfg)
}

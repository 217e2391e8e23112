package service

import (
	"context"

	"github.com/pesio-ai/be-po-approvals/internal/repository"
)

// batch collects one ActionResult per distinct order id, in request order,
// and caches config lookups per company for the duration of one action.
type batch struct {
	ids     []string
	byID    map[string]*ActionResult
	configs map[string]*repository.ApprovalConfig
}

func newBatch(orderIDs []string) *batch {
	b := &batch{
		byID:    make(map[string]*ActionResult, len(orderIDs)),
		configs: make(map[string]*repository.ApprovalConfig),
	}
	for _, id := range orderIDs {
		if _, dup := b.byID[id]; dup {
			continue
		}
		b.ids = append(b.ids, id)
		b.byID[id] = &ActionResult{OrderID: id}
	}
	return b
}

// config returns the active config for companyID. A company without one is
// cached as nil.
func (b *batch) config(ctx context.Context, finder ConfigFinder, companyID string) (*repository.ApprovalConfig, error) {
	if cfg, ok := b.configs[companyID]; ok {
		return cfg, nil
	}
	cfg, err := finder.FindActive(ctx, companyID)
	if err != nil {
		return nil, err
	}
	b.configs[companyID] = cfg
	return cfg, nil
}

func (b *batch) apply(id string, state repository.OrderState) {
	r := b.byID[id]
	r.Outcome, r.State = OutcomeApplied, state
}

func (b *batch) skip(id string, state repository.OrderState, reason string) {
	r := b.byID[id]
	r.Outcome, r.State, r.Reason = OutcomeSkipped, state, reason
}

func (b *batch) fail(id string, err error) {
	b.failAt(id, "", err)
}

func (b *batch) failAt(id string, state repository.OrderState, err error) {
	r := b.byID[id]
	r.Outcome, r.State, r.Err = OutcomeFailed, state, err
}

func (b *batch) results() []*ActionResult {
	out := make([]*ActionResult, len(b.ids))
	for i, id := range b.ids {
		out[i] = b.byID[id]
	}
	return out
}

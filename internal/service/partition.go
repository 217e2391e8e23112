package service

import "github.com/pesio-ai/be-po-approvals/internal/repository"

// NeedsApproval selects orders that confirm diverts into the approval
// pipeline.
func NeedsApproval(o *repository.PurchaseOrder) bool {
	return o.RequiresApproval() &&
		(o.State == repository.StateDraft || o.State == repository.StateSent)
}

// ForNormalFlow selects orders handed to the host confirm path.
func ForNormalFlow(o *repository.PurchaseOrder) bool {
	return !NeedsApproval(o)
}

// Partition splits orders by NeedsApproval, preserving order.
func Partition(orders []*repository.PurchaseOrder) (approval, normal []*repository.PurchaseOrder) {
	for _, o := range orders {
		if NeedsApproval(o) {
			approval = append(approval, o)
		}
		if ForNormalFlow(o) {
			normal = append(normal, o)
		}
	}
	return approval, normal
}

package service

import (
	"context"

	"github.com/pesio-ai/be-po-approvals/internal/repository"
)

// CanApprove reports whether userID may approve at level under cfg. It fails
// closed: a nil config, an unset group, or any level other than 1 or 2 deny.
// Membership lookup errors are returned, never treated as allowed.
func CanApprove(
	ctx context.Context,
	level repository.ApprovalLevel,
	userID string,
	cfg *repository.ApprovalConfig,
	membership GroupMembership,
) (bool, error) {
	group := cfg.ApproverGroup(level)
	if group == nil || *group == "" || userID == "" {
		return false, nil
	}
	return membership.Contains(ctx, cfg.CompanyID, userID, *group)
}

package repository

import (
	"context"

	"github.com/pesio-ai/be-po-approvals/internal/common/database"
	"github.com/pesio-ai/be-po-approvals/internal/common/errors"
)

// GroupMembershipRepository stores approver group membership. Groups are
// owned by a company: the same group id in two companies is two groups.
type GroupMembershipRepository struct {
	db *database.DB
}

// NewGroupMembershipRepository creates a new GroupMembershipRepository.
func NewGroupMembershipRepository(db *database.DB) *GroupMembershipRepository {
	return &GroupMembershipRepository{db: db}
}

// Contains reports whether userID belongs to companyID's groupID.
func (r *GroupMembershipRepository) Contains(ctx context.Context, companyID, userID, groupID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (
		    SELECT 1 FROM approval_group_members
		    WHERE company_id = $1 AND group_id = $2 AND user_id = $3
		)
	`, companyID, groupID, userID).Scan(&exists)
	if err != nil {
		return false, errors.Wrap(err, errors.ErrCodeInternal, "failed to check group membership")
	}
	return exists, nil
}

// Members returns the user ids of a group, sorted.
func (r *GroupMembershipRepository) Members(ctx context.Context, companyID, groupID string) ([]string, error) {
	rows, err := r.db.Query(ctx, `
		SELECT user_id FROM approval_group_members
		WHERE company_id = $1 AND group_id = $2
		ORDER BY user_id ASC
	`, companyID, groupID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list group members")
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan group member")
		}
		users = append(users, userID)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list group members")
	}
	return users, nil
}

// AddMember adds userID to groupID. Adding an existing member is a no-op.
func (r *GroupMembershipRepository) AddMember(ctx context.Context, companyID, groupID, userID string) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO approval_group_members (company_id, group_id, user_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (company_id, group_id, user_id) DO NOTHING
	`, companyID, groupID, userID)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to add group member")
	}
	return nil
}

// RemoveMember removes userID from groupID.
func (r *GroupMembershipRepository) RemoveMember(ctx context.Context, companyID, groupID, userID string) error {
	tag, err := r.db.Exec(ctx, `
		DELETE FROM approval_group_members
		WHERE company_id = $1 AND group_id = $2 AND user_id = $3
	`, companyID, groupID, userID)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to remove group member")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("group_member", groupID+"/"+userID)
	}
	return nil
}

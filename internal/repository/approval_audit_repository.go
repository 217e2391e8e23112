package repository

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/pesio-ai/be-po-approvals/internal/common/database"
	"github.com/pesio-ai/be-po-approvals/internal/common/errors"
)

// ApprovalAuditRepository appends and reads immutable approval audit log entries.
type ApprovalAuditRepository struct {
	db *database.DB
}

// NewApprovalAuditRepository creates a new ApprovalAuditRepository.
func NewApprovalAuditRepository(db *database.DB) *ApprovalAuditRepository {
	return &ApprovalAuditRepository{db: db}
}

// Append inserts one audit entry. The table has an update/delete-prevention
// trigger so this is the only mutation operation exposed.
func (r *ApprovalAuditRepository) Append(ctx context.Context, entry *ApprovalAuditEntry) error {
	return appendAudit(ctx, r.db, entry)
}

// appendAudit is shared with PurchaseOrderRepository.Transition, which runs
// it inside the state-change transaction.
func appendAudit(ctx context.Context, q database.Querier, entry *ApprovalAuditEntry) error {
	var metadataJSON []byte
	if entry.Metadata != nil {
		var err error
		metadataJSON, err = json.Marshal(entry.Metadata)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal audit metadata")
		}
	}

	query := `
		INSERT INTO purchase_order_approval_audit
		    (order_id, company_id, action, performed_by,
		     state_before, state_after, approval_level, metadata)
		VALUES ($1, $2, $3, $4,
		        $5, $6, $7, $8)
		RETURNING id, performed_at
	`

	err := q.QueryRow(ctx, query,
		entry.OrderID,
		entry.CompanyID,
		entry.Action,
		entry.PerformedBy,
		entry.StateBefore,
		entry.StateAfter,
		int(entry.ApprovalLevel),
		metadataJSON,
	).Scan(&entry.ID, &entry.PerformedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to append audit entry")
	}
	return nil
}

// GetByOrderID returns the full audit trail for an order ordered oldest-first.
func (r *ApprovalAuditRepository) GetByOrderID(ctx context.Context, orderID string) ([]*ApprovalAuditEntry, error) {
	if !isUUID(orderID) {
		return nil, nil
	}
	query := `
		SELECT id, order_id, company_id, action, performed_by, performed_at,
		       state_before, state_after, approval_level, metadata
		FROM purchase_order_approval_audit
		WHERE order_id = $1
		ORDER BY performed_at ASC, id ASC
	`

	rows, err := r.db.Query(ctx, query, orderID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get audit log")
	}
	defer rows.Close()

	return r.scanRows(rows)
}

// ── scan helpers ──────────────────────────────────────────────────────────────

func (r *ApprovalAuditRepository) scanRows(rows pgx.Rows) ([]*ApprovalAuditEntry, error) {
	var entries []*ApprovalAuditEntry
	for rows.Next() {
		entry, err := r.scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to read audit log")
	}
	return entries, nil
}

type auditScanner interface {
	Scan(dest ...any) error
}

func (r *ApprovalAuditRepository) scanEntry(sc auditScanner) (*ApprovalAuditEntry, error) {
	entry := &ApprovalAuditEntry{}
	var metadataJSON []byte
	var level int16

	err := sc.Scan(
		&entry.ID,
		&entry.OrderID,
		&entry.CompanyID,
		&entry.Action,
		&entry.PerformedBy,
		&entry.PerformedAt,
		&entry.StateBefore,
		&entry.StateAfter,
		&level,
		&metadataJSON,
	)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan audit entry")
	}
	entry.ApprovalLevel = ApprovalLevel(level)

	if metadataJSON != nil {
		if err := json.Unmarshal(metadataJSON, &entry.Metadata); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to unmarshal audit metadata")
		}
	}

	return entry, nil
}

package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/pesio-ai/be-po-approvals/internal/common/database"
	"github.com/pesio-ai/be-po-approvals/internal/common/errors"
)

// ApprovalConfigRepository handles CRUD for purchase_approval_configs.
type ApprovalConfigRepository struct {
	db *database.DB
}

// NewApprovalConfigRepository creates a new ApprovalConfigRepository.
func NewApprovalConfigRepository(db *database.DB) *ApprovalConfigRepository {
	return &ApprovalConfigRepository{db: db}
}

const configColumns = `
	id, company_id, name, auto_approve_max,
	level1_min, level1_max, level2_min,
	level1_approver_group, level2_approver_group,
	active, created_at, updated_at
`

// Create inserts a new approval config.
func (r *ApprovalConfigRepository) Create(ctx context.Context, cfg *ApprovalConfig) error {
	query := `
		INSERT INTO purchase_approval_configs
		    (company_id, name, auto_approve_max,
		     level1_min, level1_max, level2_min,
		     level1_approver_group, level2_approver_group, active)
		VALUES ($1, $2, $3,
		        $4, $5, $6,
		        $7, $8, $9)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRow(ctx, query,
		cfg.CompanyID,
		cfg.Name,
		cfg.AutoApproveMax,
		cfg.Level1Min,
		cfg.Level1Max,
		cfg.Level2Min,
		cfg.Level1ApproverGroup,
		cfg.Level2ApproverGroup,
		cfg.Active,
	).Scan(&cfg.ID, &cfg.CreatedAt, &cfg.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create approval config")
	}
	return nil
}

// GetByID retrieves a config by primary key.
func (r *ApprovalConfigRepository) GetByID(ctx context.Context, id string) (*ApprovalConfig, error) {
	if !isUUID(id) {
		return nil, errors.NotFound("approval_config", id)
	}
	query := `SELECT ` + configColumns + ` FROM purchase_approval_configs WHERE id = $1`

	cfg, err := r.scanConfig(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.NotFound("approval_config", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get approval config")
	}
	return cfg, nil
}

// List returns the configs of a company in storage order, optionally active only.
func (r *ApprovalConfigRepository) List(ctx context.Context, companyID string, activeOnly bool) ([]*ApprovalConfig, error) {
	query := `SELECT ` + configColumns + ` FROM purchase_approval_configs WHERE company_id = $1`
	if activeOnly {
		query += " AND active = TRUE"
	}
	query += " ORDER BY created_at ASC, id ASC"

	rows, err := r.db.Query(ctx, query, companyID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list approval configs")
	}
	defer rows.Close()

	var configs []*ApprovalConfig
	for rows.Next() {
		cfg, err := r.scanConfig(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan approval config")
		}
		configs = append(configs, cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list approval configs")
	}
	return configs, nil
}

// FindActive returns the first active config for a company in storage order.
// Returns nil (no error) when the company has none.
func (r *ApprovalConfigRepository) FindActive(ctx context.Context, companyID string) (*ApprovalConfig, error) {
	query := `SELECT ` + configColumns + `
		FROM purchase_approval_configs
		WHERE company_id = $1 AND active = TRUE
		ORDER BY created_at ASC, id ASC
		LIMIT 1
	`

	cfg, err := r.scanConfig(r.db.QueryRow(ctx, query, companyID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to find active approval config")
	}
	return cfg, nil
}

// Update persists changes to an existing config.
func (r *ApprovalConfigRepository) Update(ctx context.Context, cfg *ApprovalConfig) error {
	if !isUUID(cfg.ID) {
		return errors.NotFound("approval_config", cfg.ID)
	}
	query := `
		UPDATE purchase_approval_configs
		SET name                  = $2,
		    auto_approve_max      = $3,
		    level1_min            = $4,
		    level1_max            = $5,
		    level2_min            = $6,
		    level1_approver_group = $7,
		    level2_approver_group = $8,
		    active                = $9,
		    updated_at            = NOW()
		WHERE id = $1
		RETURNING updated_at
	`

	err := r.db.QueryRow(ctx, query,
		cfg.ID,
		cfg.Name,
		cfg.AutoApproveMax,
		cfg.Level1Min,
		cfg.Level1Max,
		cfg.Level2Min,
		cfg.Level1ApproverGroup,
		cfg.Level2ApproverGroup,
		cfg.Active,
	).Scan(&cfg.UpdatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return errors.NotFound("approval_config", cfg.ID)
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to update approval config")
	}
	return nil
}

// Deactivate soft-deletes a config.
func (r *ApprovalConfigRepository) Deactivate(ctx context.Context, id string) error {
	if !isUUID(id) {
		return errors.NotFound("approval_config", id)
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE purchase_approval_configs
		SET active = FALSE, updated_at = NOW()
		WHERE id = $1
	`, id)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to deactivate approval config")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("approval_config", id)
	}
	return nil
}

// ── scan helpers ─────────────────────────────────────────────────────────────

type configScanner interface {
	Scan(dest ...any) error
}

func (r *ApprovalConfigRepository) scanConfig(row configScanner) (*ApprovalConfig, error) {
	cfg := &ApprovalConfig{}
	err := row.Scan(
		&cfg.ID,
		&cfg.CompanyID,
		&cfg.Name,
		&cfg.AutoApproveMax,
		&cfg.Level1Min,
		&cfg.Level1Max,
		&cfg.Level2Min,
		&cfg.Level1ApproverGroup,
		&cfg.Level2ApproverGroup,
		&cfg.Active,
		&cfg.CreatedAt,
		&cfg.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

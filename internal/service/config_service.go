package service

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/pesio-ai/be-po-approvals/internal/common/errors"
	"github.com/pesio-ai/be-po-approvals/internal/common/logger"
	"github.com/pesio-ai/be-po-approvals/internal/repository"
)

// Band defaults applied when a config is created without them.
var (
	DefaultLevel1Min = decimal.NewFromInt(5001)
	DefaultLevel1Max = decimal.NewFromInt(20000)
	DefaultLevel2Min = decimal.NewFromInt(20001)
)

// ApprovalConfigService manages approval configs and approver group
// membership.
type ApprovalConfigService struct {
	configs ConfigStore
	groups  GroupDirectory
	log     *logger.Logger
}

// NewApprovalConfigService creates a new ApprovalConfigService.
func NewApprovalConfigService(configs ConfigStore, groups GroupDirectory, log *logger.Logger) *ApprovalConfigService {
	return &ApprovalConfigService{configs: configs, groups: groups, log: log}
}

// CreateConfigRequest represents a create approval config request. Zero
// amounts take the defaults; a nil Active means true.
type CreateConfigRequest struct {
	CompanyID           string
	Name                string
	AutoApproveMax      decimal.Decimal
	Level1Min           decimal.Decimal
	Level1Max           decimal.Decimal
	Level2Min           decimal.Decimal
	Level1ApproverGroup *string
	Level2ApproverGroup *string
	Active              *bool
}

// UpdateConfigRequest carries the fields to change. Nil fields are kept.
type UpdateConfigRequest struct {
	ID                  string
	CompanyID           string
	Name                *string
	AutoApproveMax      *decimal.Decimal
	Level1Min           *decimal.Decimal
	Level1Max           *decimal.Decimal
	Level2Min           *decimal.Decimal
	Level1ApproverGroup *string
	Level2ApproverGroup *string
	Active              *bool
}

// ── Configs ───────────────────────────────────────────────────────────────────

// CreateConfig creates an approval config.
func (s *ApprovalConfigService) CreateConfig(ctx context.Context, req *CreateConfigRequest) (*repository.ApprovalConfig, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, errors.InvalidInput("name", "name is required")
	}
	if req.CompanyID == "" {
		return nil, errors.InvalidInput("company_id", "company is required")
	}

	cfg := &repository.ApprovalConfig{
		CompanyID:           req.CompanyID,
		Name:                req.Name,
		AutoApproveMax:      orDefault(req.AutoApproveMax, DefaultAutoApproveMax),
		Level1Min:           orDefault(req.Level1Min, DefaultLevel1Min),
		Level1Max:           orDefault(req.Level1Max, DefaultLevel1Max),
		Level2Min:           orDefault(req.Level2Min, DefaultLevel2Min),
		Level1ApproverGroup: blankToNil(req.Level1ApproverGroup),
		Level2ApproverGroup: blankToNil(req.Level2ApproverGroup),
		Active:              req.Active == nil || *req.Active,
	}
	if err := validateAmounts(cfg); err != nil {
		return nil, err
	}

	if err := s.configs.Create(ctx, cfg); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("config_id", cfg.ID).
		Str("company_id", cfg.CompanyID).
		Str("name", cfg.Name).
		Bool("active", cfg.Active).
		Msg("Approval config created")

	return cfg, nil
}

// GetConfig retrieves a config of companyID.
func (s *ApprovalConfigService) GetConfig(ctx context.Context, companyID, id string) (*repository.ApprovalConfig, error) {
	cfg, err := s.configs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if cfg.CompanyID != companyID {
		return nil, errors.NotFound("approval_config", id)
	}
	return cfg, nil
}

// ListConfigs returns a company's configs in storage order.
func (s *ApprovalConfigService) ListConfigs(ctx context.Context, companyID string, activeOnly bool) ([]*repository.ApprovalConfig, error) {
	configs, err := s.configs.List(ctx, companyID, activeOnly)
	if err != nil {
		return nil, err
	}
	if configs == nil {
		configs = []*repository.ApprovalConfig{}
	}
	return configs, nil
}

// UpdateConfig applies the set fields of req. Orders already in flight keep
// their persisted level until they are confirmed again or their amount
// changes.
func (s *ApprovalConfigService) UpdateConfig(ctx context.Context, req *UpdateConfigRequest) (*repository.ApprovalConfig, error) {
	cfg, err := s.GetConfig(ctx, req.CompanyID, req.ID)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		if strings.TrimSpace(*req.Name) == "" {
			return nil, errors.InvalidInput("name", "name is required")
		}
		cfg.Name = *req.Name
	}
	for _, f := range []struct {
		src *decimal.Decimal
		dst *decimal.Decimal
	}{
		{req.AutoApproveMax, &cfg.AutoApproveMax},
		{req.Level1Min, &cfg.Level1Min},
		{req.Level1Max, &cfg.Level1Max},
		{req.Level2Min, &cfg.Level2Min},
	} {
		if f.src != nil {
			*f.dst = *f.src
		}
	}
	if req.Level1ApproverGroup != nil {
		cfg.Level1ApproverGroup = blankToNil(req.Level1ApproverGroup)
	}
	if req.Level2ApproverGroup != nil {
		cfg.Level2ApproverGroup = blankToNil(req.Level2ApproverGroup)
	}
	if req.Active != nil {
		cfg.Active = *req.Active
	}
	if err := validateAmounts(cfg); err != nil {
		return nil, err
	}

	if err := s.configs.Update(ctx, cfg); err != nil {
		return nil, err
	}

	s.log.Info().Str("config_id", cfg.ID).Msg("Approval config updated")
	return cfg, nil
}

// DeactivateConfig soft-deletes a config.
func (s *ApprovalConfigService) DeactivateConfig(ctx context.Context, companyID, id string) error {
	if _, err := s.GetConfig(ctx, companyID, id); err != nil {
		return err
	}
	if err := s.configs.Deactivate(ctx, id); err != nil {
		return err
	}
	s.log.Info().Str("config_id", id).Msg("Approval config deactivated")
	return nil
}

// ── Approver groups ───────────────────────────────────────────────────────────

// AddGroupMember adds userID to one of companyID's approver groups.
func (s *ApprovalConfigService) AddGroupMember(ctx context.Context, companyID, groupID, userID string) error {
	if companyID == "" {
		return errors.InvalidInput("company_id", "company is required")
	}
	if groupID == "" {
		return errors.InvalidInput("group_id", "group is required")
	}
	if userID == "" {
		return errors.InvalidInput("user_id", "user is required")
	}
	if err := s.groups.AddMember(ctx, companyID, groupID, userID); err != nil {
		return err
	}
	s.log.Info().
		Str("company_id", companyID).
		Str("group_id", groupID).
		Str("user_id", userID).
		Msg("Approver group member added")
	return nil
}

// RemoveGroupMember removes userID from one of companyID's approver groups.
func (s *ApprovalConfigService) RemoveGroupMember(ctx context.Context, companyID, groupID, userID string) error {
	if err := s.groups.RemoveMember(ctx, companyID, groupID, userID); err != nil {
		return err
	}
	s.log.Info().
		Str("company_id", companyID).
		Str("group_id", groupID).
		Str("user_id", userID).
		Msg("Approver group member removed")
	return nil
}

// GroupMembers lists the members of one of companyID's approver groups.
func (s *ApprovalConfigService) GroupMembers(ctx context.Context, companyID, groupID string) ([]string, error) {
	members, err := s.groups.Members(ctx, companyID, groupID)
	if err != nil {
		return nil, err
	}
	if members == nil {
		members = []string{}
	}
	return members, nil
}

// ── Seed ──────────────────────────────────────────────────────────────────────

// ApplySeed creates the seeded configs a company does not already have (by
// name) and adds the seeded group members. It is safe to run on every start.
func (s *ApprovalConfigService) ApplySeed(ctx context.Context, seed *repository.Seed) error {
	for _, sc := range seed.Configs {
		existing, err := s.configs.List(ctx, sc.CompanyID, false)
		if err != nil {
			return err
		}
		if hasConfigNamed(existing, sc.Name) {
			continue
		}
		active := sc.Active
		_, err = s.CreateConfig(ctx, &CreateConfigRequest{
			CompanyID:           sc.CompanyID,
			Name:                sc.Name,
			AutoApproveMax:      sc.AutoApproveMax,
			Level1Min:           sc.Level1Min,
			Level1Max:           sc.Level1Max,
			Level2Min:           sc.Level2Min,
			Level1ApproverGroup: sc.Level1ApproverGroup,
			Level2ApproverGroup: sc.Level2ApproverGroup,
			Active:              &active,
		})
		if err != nil {
			return err
		}
	}

	for _, g := range seed.Groups {
		for _, userID := range g.Members {
			if err := s.AddGroupMember(ctx, g.CompanyID, g.GroupID, userID); err != nil {
				return err
			}
		}
	}
	return nil
}

// ── Internal helpers ──────────────────────────────────────────────────────────

// validateAmounts rejects negative or over-precise bounds. Band ordering is
// not enforced; gaps surface at classification time.
func validateAmounts(cfg *repository.ApprovalConfig) error {
	for _, f := range []struct {
		name  string
		value decimal.Decimal
	}{
		{"auto_approve_max", cfg.AutoApproveMax},
		{"level1_min", cfg.Level1Min},
		{"level1_max", cfg.Level1Max},
		{"level2_min", cfg.Level2Min},
	} {
		if err := validateMoney(f.name, f.value); err != nil {
			return err
		}
	}
	return nil
}

func orDefault(v, def decimal.Decimal) decimal.Decimal {
	if v.IsZero() {
		return def
	}
	return v
}

func blankToNil(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	return s
}

func hasConfigNamed(configs []*repository.ApprovalConfig, name string) bool {
	for _, c := range configs {
		if c.Name == name {
			return true
		}
	}
	return false
}

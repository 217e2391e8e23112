package repository

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Seed is the startup data loaded from APPROVAL_SEED_FILE.
//
//	configs:
//	  - company_id: acme
//	    name: Default
//	    level1_min: "5001"
//	    level1_max: "20000"
//	    level2_min: "20001"
//	    level1_approver_group: purchase-level1
//	    level2_approver_group: purchase-level2
//	groups:
//	  - company_id: acme
//	    group_id: purchase-level1
//	    members: [alice]
type Seed struct {
	Configs []*ApprovalConfig
	Groups  []SeedGroup
}

// SeedGroup lists the members of one company's approver group.
type SeedGroup struct {
	CompanyID string   `yaml:"company_id"`
	GroupID   string   `yaml:"group_id"`
	Members   []string `yaml:"members"`
}

type seedFile struct {
	Configs []seedConfig `yaml:"configs"`
	Groups  []SeedGroup  `yaml:"groups"`
}

// Amounts are strings so they parse exactly into decimals.
type seedConfig struct {
	CompanyID           string  `yaml:"company_id"`
	Name                string  `yaml:"name"`
	AutoApproveMax      string  `yaml:"auto_approve_max"`
	Level1Min           string  `yaml:"level1_min"`
	Level1Max           string  `yaml:"level1_max"`
	Level2Min           string  `yaml:"level2_min"`
	Level1ApproverGroup *string `yaml:"level1_approver_group"`
	Level2ApproverGroup *string `yaml:"level2_approver_group"`
	Active              *bool   `yaml:"active"`
}

// LoadSeedFile reads and parses a seed file. Empty amounts stay zero so the
// config service applies its defaults.
func LoadSeedFile(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return ParseSeed(data)
}

// ParseSeed parses seed YAML.
func ParseSeed(data []byte) (*Seed, error) {
	var raw seedFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}

	for i, g := range raw.Groups {
		if g.CompanyID == "" || g.GroupID == "" {
			return nil, fmt.Errorf("groups[%d]: company_id and group_id are required", i)
		}
	}

	seed := &Seed{Groups: raw.Groups}
	for i, sc := range raw.Configs {
		cfg := &ApprovalConfig{
			CompanyID:           sc.CompanyID,
			Name:                sc.Name,
			Level1ApproverGroup: sc.Level1ApproverGroup,
			Level2ApproverGroup: sc.Level2ApproverGroup,
			Active:              sc.Active == nil || *sc.Active,
		}
		amounts := []struct {
			name string
			raw  string
			dst  *decimal.Decimal
		}{
			{"auto_approve_max", sc.AutoApproveMax, &cfg.AutoApproveMax},
			{"level1_min", sc.Level1Min, &cfg.Level1Min},
			{"level1_max", sc.Level1Max, &cfg.Level1Max},
			{"level2_min", sc.Level2Min, &cfg.Level2Min},
		}
		for _, a := range amounts {
			if a.raw == "" {
				continue
			}
			d, err := decimal.NewFromString(a.raw)
			if err != nil {
				return nil, fmt.Errorf("configs[%d].%s: %w", i, a.name, err)
			}
			*a.dst = d
		}
		seed.Configs = append(seed.Configs, cfg)
	}
	return seed, nil
}

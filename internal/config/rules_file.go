package config

import (
	"os"

	"github.com/goccy/go-yaml"
	"github.com/shopspring/decimal"

	"github.com/campuskit/be-fin-approvals/internal/apperr"
	"github.com/campuskit/be-fin-approvals/internal/engine"
)

// rulesFile is the YAML shape of an approval rules file. Amounts are strings
// so currency values round-trip without float precision loss.
//
//	domains:
//	  expense:
//	    tiers:
//	      - min: "0"
//	        max: "5000"
//	        roles: [finance_manager]
//	        auto_approve: true
//	      - min: "5000"
//	        roles: [finance_manager, admin]
//	    overrides:
//	      Salaries:
//	        role: admin
//	        dual_approval: true
//	    routine: [Utilities, "Office Supplies"]
type rulesFile struct {
	Domains map[string]domainRules `yaml:"domains"`
}

type domainRules struct {
	Tiers     []tierRule              `yaml:"tiers"`
	Overrides map[string]overrideRule `yaml:"overrides"`
	Routine   []string                `yaml:"routine"`
}

type tierRule struct {
	Min               string   `yaml:"min"`
	Max               string   `yaml:"max"` // empty = unbounded, last tier only
	Roles             []string `yaml:"roles"`
	AutoApprove       bool     `yaml:"auto_approve"`
	AllowSelfApproval bool     `yaml:"allow_self_approval"`
}

type overrideRule struct {
	Role               string `yaml:"role"`
	DualApproval       bool   `yaml:"dual_approval"`
	AutoApproveCeiling string `yaml:"auto_approve_ceiling"`
}

// LoadRules reads and parses a YAML rules file into a registry
// configuration. Partition validation happens in engine.NewRegistry.
func LoadRules(path string) (engine.RegistryConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return engine.RegistryConfig{}, apperr.Wrap(err, apperr.ErrCodeInvalidInput, "reading rules file")
	}
	return ParseRules(data)
}

// ParseRules parses YAML rule content into a registry configuration.
func ParseRules(data []byte) (engine.RegistryConfig, error) {
	var doc rulesFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return engine.RegistryConfig{}, apperr.Wrap(err, apperr.ErrCodeInvalidInput, "parsing rules file")
	}

	cfg := engine.RegistryConfig{
		Tiers:             make(map[engine.Domain][]engine.AmountTier),
		Overrides:         make(map[engine.Domain]map[string]engine.CategoryOverride),
		RoutineCategories: make(map[engine.Domain][]string),
	}

	for name, rules := range doc.Domains {
		domain := engine.Domain(name)

		tiers := make([]engine.AmountTier, 0, len(rules.Tiers))
		for _, t := range rules.Tiers {
			min, err := parseAmount(t.Min, name, "min")
			if err != nil {
				return engine.RegistryConfig{}, err
			}
			tier := engine.AmountTier{
				Min:               min,
				RequiredRoles:     t.Roles,
				AutoApprove:       t.AutoApprove,
				AllowSelfApproval: t.AllowSelfApproval,
			}
			if t.Max != "" {
				max, err := parseAmount(t.Max, name, "max")
				if err != nil {
					return engine.RegistryConfig{}, err
				}
				tier.Max = &max
			}
			tiers = append(tiers, tier)
		}
		cfg.Tiers[domain] = tiers

		if len(rules.Overrides) > 0 {
			ovs := make(map[string]engine.CategoryOverride, len(rules.Overrides))
			for category, o := range rules.Overrides {
				ov := engine.CategoryOverride{
					RequiredRole: o.Role,
					DualApproval: o.DualApproval,
				}
				if o.AutoApproveCeiling != "" {
					ceiling, err := parseAmount(o.AutoApproveCeiling, name, "auto_approve_ceiling")
					if err != nil {
						return engine.RegistryConfig{}, err
					}
					ov.AutoApproveCeiling = &ceiling
				}
				ovs[category] = ov
			}
			cfg.Overrides[domain] = ovs
		}

		if len(rules.Routine) > 0 {
			cfg.RoutineCategories[domain] = rules.Routine
		}
	}

	return cfg, nil
}

func parseAmount(s, domain, field string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, apperr.Newf(apperr.ErrCodeInvalidInput,
			"rules file: domain %q: invalid %s amount %q", domain, field, s)
	}
	return d, nil
}

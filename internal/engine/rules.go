package engine

import (
	"github.com/shopspring/decimal"

	"github.com/campuskit/be-fin-approvals/internal/apperr"
)

// AmountTier is one row of the rule registry: a half-open amount range
// [Min, Max) within a domain mapping to required approver roles. A nil Max
// means the range is unbounded above.
type AmountTier struct {
	Min               decimal.Decimal
	Max               *decimal.Decimal
	RequiredRoles     []string
	AutoApprove       bool
	AllowSelfApproval bool
}

// contains reports whether amount falls inside the tier's half-open range.
func (t AmountTier) contains(amount decimal.Decimal) bool {
	if amount.LessThan(t.Min) {
		return false
	}
	return t.Max == nil || amount.LessThan(*t.Max)
}

// CategoryOverride adjusts the matched tier for specific categories or
// sources. A non-empty RequiredRole replaces the tier's role list entirely.
type CategoryOverride struct {
	RequiredRole       string
	DualApproval       bool
	AutoApproveCeiling *decimal.Decimal
}

// RegistryConfig is the declarative policy table the registry is built from.
// Tiers for each domain must be ordered and fully partition [0, ∞).
type RegistryConfig struct {
	Tiers             map[Domain][]AmountTier
	Overrides         map[Domain]map[string]CategoryOverride
	RoutineCategories map[Domain][]string
}

// Registry is the immutable rule table. Read-only at runtime; safe for
// concurrent use without locking.
type Registry struct {
	tiers     map[Domain][]AmountTier
	overrides map[Domain]map[string]CategoryOverride
	routine   map[Domain]map[string]struct{}
}

// NewRegistry validates the configuration and builds a registry. Validation
// fails when any domain's tiers have gaps, overlaps, a non-zero lower bound,
// or a bounded final range, so configuration mistakes surface at startup
// rather than as silent runtime fallbacks.
func NewRegistry(cfg RegistryConfig) (*Registry, error) {
	r := &Registry{
		tiers:     make(map[Domain][]AmountTier, len(cfg.Tiers)),
		overrides: make(map[Domain]map[string]CategoryOverride, len(cfg.Overrides)),
		routine:   make(map[Domain]map[string]struct{}, len(cfg.RoutineCategories)),
	}

	for domain, tiers := range cfg.Tiers {
		if !domain.Valid() {
			return nil, apperr.Newf(apperr.ErrCodeInvalidInput, "rules: unknown domain %q", domain)
		}
		if err := validateTiers(domain, tiers); err != nil {
			return nil, err
		}
		r.tiers[domain] = append([]AmountTier(nil), tiers...)
	}

	for domain, ovs := range cfg.Overrides {
		m := make(map[string]CategoryOverride, len(ovs))
		for category, ov := range ovs {
			m[category] = ov
		}
		r.overrides[domain] = m
	}

	for domain, categories := range cfg.RoutineCategories {
		set := make(map[string]struct{}, len(categories))
		for _, c := range categories {
			set[c] = struct{}{}
		}
		r.routine[domain] = set
	}

	return r, nil
}

// validateTiers checks that tiers fully and exclusively partition [0, ∞).
func validateTiers(domain Domain, tiers []AmountTier) error {
	if len(tiers) == 0 {
		return apperr.Newf(apperr.ErrCodeInvalidInput, "rules: domain %q has no tiers", domain)
	}
	if !tiers[0].Min.IsZero() {
		return apperr.Newf(apperr.ErrCodeInvalidInput,
			"rules: domain %q first tier must start at 0, got %s", domain, tiers[0].Min)
	}
	for i, tier := range tiers {
		if len(tier.RequiredRoles) == 0 {
			return apperr.Newf(apperr.ErrCodeInvalidInput,
				"rules: domain %q tier %d has no required roles", domain, i)
		}
		last := i == len(tiers)-1
		if last {
			if tier.Max != nil {
				return apperr.Newf(apperr.ErrCodeInvalidInput,
					"rules: domain %q last tier must be unbounded", domain)
			}
			continue
		}
		if tier.Max == nil {
			return apperr.Newf(apperr.ErrCodeInvalidInput,
				"rules: domain %q tier %d is unbounded but not last", domain, i)
		}
		if !tier.Max.GreaterThan(tier.Min) {
			return apperr.Newf(apperr.ErrCodeInvalidInput,
				"rules: domain %q tier %d has empty range [%s, %s)", domain, i, tier.Min, tier.Max)
		}
		if !tiers[i+1].Min.Equal(*tier.Max) {
			return apperr.Newf(apperr.ErrCodeInvalidInput,
				"rules: domain %q tiers %d and %d are not contiguous (%s vs %s)",
				domain, i, i+1, tier.Max, tiers[i+1].Min)
		}
	}
	return nil
}

// ResolveAmountTier returns the tier covering amount for a domain. Returns an
// unknown_domain error when the domain has no configured tiers; callers must
// treat that as mandatory admin approval, never as auto-approve.
func (r *Registry) ResolveAmountTier(domain Domain, amount decimal.Decimal) (AmountTier, error) {
	tiers, ok := r.tiers[domain]
	if !ok {
		return AmountTier{}, apperr.Newf(apperr.ErrCodeUnknownDomain,
			"no approval tiers configured for domain %q", domain)
	}
	for _, tier := range tiers {
		if tier.contains(amount) {
			return tier, nil
		}
	}
	// Unreachable once validation passed; fail closed anyway.
	return AmountTier{}, apperr.Newf(apperr.ErrCodeUnknownDomain,
		"no tier matches amount %s in domain %q", amount, domain)
}

// ResolveCategoryOverride returns the override for a category within a
// domain, if one is configured.
func (r *Registry) ResolveCategoryOverride(domain Domain, category string) (CategoryOverride, bool) {
	ov, ok := r.overrides[domain][category]
	return ov, ok
}

// RoutineCategory reports whether a category is whitelisted as routine for
// auto-approval purposes.
func (r *Registry) RoutineCategory(domain Domain, category string) bool {
	_, ok := r.routine[domain][category]
	return ok
}

// Domains returns the domains with configured tiers.
func (r *Registry) Domains() []Domain {
	out := make([]Domain, 0, len(r.tiers))
	for d := range r.tiers {
		out = append(out, d)
	}
	return out
}

// Tiers returns a copy of the tier list for a domain.
func (r *Registry) Tiers(domain Domain) []AmountTier {
	return append([]AmountTier(nil), r.tiers[domain]...)
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

// DefaultRegistryConfig is the built-in policy table used when no rules file
// is configured.
func DefaultRegistryConfig() RegistryConfig {
	return RegistryConfig{
		Tiers: map[Domain][]AmountTier{
			DomainExpense: {
				{Min: dec("0"), Max: decPtr("5000"), RequiredRoles: []string{RoleFinanceManager}, AutoApprove: true},
				{Min: dec("5000"), Max: decPtr("20000"), RequiredRoles: []string{RoleFinanceManager}},
				{Min: dec("20000"), Max: nil, RequiredRoles: []string{RoleFinanceManager, RoleAdmin}},
			},
			DomainRevenue: {
				{Min: dec("0"), Max: decPtr("10000"), RequiredRoles: []string{RoleFinanceManager}, AutoApprove: true},
				{Min: dec("10000"), Max: nil, RequiredRoles: []string{RoleFinanceManager, RoleAdmin}},
			},
			DomainBudget: {
				{Min: dec("0"), Max: decPtr("50000"), RequiredRoles: []string{RoleFinanceManager}},
				{Min: dec("50000"), Max: nil, RequiredRoles: []string{RoleFinanceManager, RoleAdmin}},
			},
			DomainFundTransfer: {
				{Min: dec("0"), Max: decPtr("10000"), RequiredRoles: []string{RoleFinanceManager}},
				{Min: dec("10000"), Max: nil, RequiredRoles: []string{RoleAdmin}},
			},
			DomainRequest: {
				{Min: dec("0"), Max: decPtr("1000"), RequiredRoles: []string{RoleFinanceManager}, AutoApprove: true},
				{Min: dec("1000"), Max: nil, RequiredRoles: []string{RoleFinanceManager}},
			},
		},
		Overrides: map[Domain]map[string]CategoryOverride{
			DomainExpense: {
				"Salaries":     {RequiredRole: RoleAdmin, DualApproval: true},
				"Construction": {RequiredRole: RoleAdmin, DualApproval: true},
				// Keeps the tier's role list but demands every approver in it.
				"Laboratory Equipment": {DualApproval: true},
			},
			DomainFundTransfer: {
				"Endowment Fund": {RequiredRole: RoleAdmin, DualApproval: true, AutoApproveCeiling: decPtr("0")},
			},
		},
		RoutineCategories: map[Domain][]string{
			DomainExpense: {"Utilities", "Office Supplies", "Maintenance", "Teaching Materials"},
			DomainRevenue: {"Tuition Fees", "Library Fines"},
			DomainRequest: {"Stationery", "Minor Repairs"},
		},
	}
}

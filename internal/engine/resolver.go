package engine

import "github.com/shopspring/decimal"

// Resolver merges the rule registry's output for a transaction into a single
// approval requirement descriptor.
type Resolver struct {
	registry *Registry
	ceiling  decimal.Decimal // global auto-approve ceiling
}

// NewResolver creates a resolver over a registry.
func NewResolver(registry *Registry, autoApproveCeiling decimal.Decimal) *Resolver {
	return &Resolver{registry: registry, ceiling: autoApproveCeiling}
}

// Resolve computes the approval requirement for a transaction. Unknown
// domains fail closed to mandatory admin approval; the FailClosed flag lets
// the caller log the configuration gap.
func (r *Resolver) Resolve(tx *Transaction) ApprovalRequirement {
	tier, err := r.registry.ResolveAmountTier(tx.Domain, tx.Amount)
	if err != nil {
		return ApprovalRequirement{
			ApproverRoles:      []string{RoleAdmin},
			AutoApproveCeiling: r.ceiling,
			FailClosed:         true,
		}
	}

	req := ApprovalRequirement{
		ApproverRoles:       dedupRoles(tier.RequiredRoles),
		AutoApproveEligible: tier.AutoApprove,
		AllowSelfApproval:   tier.AllowSelfApproval,
		AutoApproveCeiling:  r.ceiling,
	}

	if ov, ok := r.registry.ResolveCategoryOverride(tx.Domain, tx.Category); ok {
		// An override requiring a specific role replaces the tier's list.
		if ov.RequiredRole != "" {
			req.ApproverRoles = []string{ov.RequiredRole}
		}
		req.DualApproval = ov.DualApproval
		if ov.AutoApproveCeiling != nil && ov.AutoApproveCeiling.LessThan(req.AutoApproveCeiling) {
			req.AutoApproveCeiling = *ov.AutoApproveCeiling
		}
	}

	// Segregation of duties: the submitter's own role may not approve.
	// An admin keeps self-eligibility only when the tier explicitly allows it.
	req.ApproverRoles = removeSubmitterRole(req.ApproverRoles, tx.SubmitterRole, req.AllowSelfApproval)

	return req
}

// AutoApprovable reports whether a transaction may bypass human approval
// entirely. All conditions are necessary: the matched tier must be flagged
// auto-approve, the amount must be at or below the effective ceiling, the
// category must be whitelisted as routine, and a documentation reference
// must be present. Dual-approval overrides and fail-closed fallbacks never
// auto-approve.
func AutoApprovable(req ApprovalRequirement, tx *Transaction, registry *Registry) bool {
	if !req.AutoApproveEligible || req.FailClosed || req.DualApproval {
		return false
	}
	if tx.Amount.GreaterThan(req.AutoApproveCeiling) {
		return false
	}
	if !registry.RoutineCategory(tx.Domain, tx.Category) {
		return false
	}
	return tx.DocumentationRef != ""
}

func dedupRoles(roles []string) []string {
	seen := make(map[string]struct{}, len(roles))
	out := make([]string, 0, len(roles))
	for _, role := range roles {
		if _, ok := seen[role]; ok {
			continue
		}
		seen[role] = struct{}{}
		out = append(out, role)
	}
	return out
}

func removeSubmitterRole(roles []string, submitterRole string, allowSelf bool) []string {
	out := make([]string, 0, len(roles))
	for _, role := range roles {
		if role == submitterRole && !(role == RoleAdmin && allowSelf) {
			continue
		}
		out = append(out, role)
	}
	return out
}

package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestResolver(t *testing.T) (*Resolver, *Registry) {
	t.Helper()
	reg, err := NewRegistry(DefaultRegistryConfig())
	require.NoError(t, err)
	return NewResolver(reg, dec("5000")), reg
}

func TestResolveUsesAmountTier(t *testing.T) {
	resolver, _ := newTestResolver(t)

	req := resolver.Resolve(expenseTx("3000", "RCPT-1"))
	assert.Equal(t, []string{RoleFinanceManager}, req.ApproverRoles)
	assert.True(t, req.AutoApproveEligible)
	assert.False(t, req.DualApproval)
	assert.False(t, req.FailClosed)
}

func TestResolveRemovesSubmitterRole(t *testing.T) {
	resolver, _ := newTestResolver(t)

	tx := expenseTx("30000", "RCPT-1")
	tx.SubmitterRole = RoleFinanceManager
	req := resolver.Resolve(tx)
	assert.Equal(t, []string{RoleAdmin}, req.ApproverRoles)
}

func TestResolveOverrideReplacesRoles(t *testing.T) {
	resolver, _ := newTestResolver(t)

	tx := expenseTx("1200", "RCPT-1")
	tx.Category = "Salaries"
	req := resolver.Resolve(tx)
	// The override's role replaces the tier roles rather than unioning.
	assert.Equal(t, []string{RoleAdmin}, req.ApproverRoles)
	assert.True(t, req.DualApproval)
}

func TestResolveOverrideKeepsTierRolesWithoutRoleOverride(t *testing.T) {
	resolver, _ := newTestResolver(t)

	tx := expenseTx("25000", "RCPT-1")
	tx.Category = "Laboratory Equipment"
	req := resolver.Resolve(tx)
	assert.Equal(t, []string{RoleFinanceManager, RoleAdmin}, req.ApproverRoles)
	assert.True(t, req.DualApproval)
}

func TestResolveOverrideCeilingLowersGlobalCeiling(t *testing.T) {
	resolver, _ := newTestResolver(t)

	tx := &Transaction{Domain: DomainFundTransfer, Amount: dec("500"),
		Category: "Endowment Fund", Submitter: "alice", SubmitterRole: RoleAccountant}
	req := resolver.Resolve(tx)
	assert.True(t, req.AutoApproveCeiling.IsZero())
}

func TestResolveAdminRetainsSelfEligibilityOnlyWhenAllowed(t *testing.T) {
	cfg := DefaultRegistryConfig()
	reg, err := NewRegistry(cfg)
	require.NoError(t, err)
	resolver := NewResolver(reg, dec("5000"))

	tx := &Transaction{Domain: DomainFundTransfer, Amount: dec("30000"),
		Category: "Operations", Submitter: "root", SubmitterRole: RoleAdmin}
	req := resolver.Resolve(tx)
	assert.Empty(t, req.ApproverRoles)

	// Same tier with explicit self-approval keeps the admin role.
	cfg.Tiers[DomainFundTransfer][1].AllowSelfApproval = true
	reg, err = NewRegistry(cfg)
	require.NoError(t, err)
	req = NewResolver(reg, dec("5000")).Resolve(tx)
	assert.Equal(t, []string{RoleAdmin}, req.ApproverRoles)
	assert.True(t, req.AllowSelfApproval)
}

func TestResolveFailsClosedOnUnknownDomain(t *testing.T) {
	reg, err := NewRegistry(RegistryConfig{Tiers: map[Domain][]AmountTier{
		DomainExpense: {{Min: dec("0"), Max: nil, RequiredRoles: []string{RoleFinanceManager}}},
	}})
	require.NoError(t, err)
	resolver := NewResolver(reg, dec("5000"))

	tx := &Transaction{Domain: DomainRequest, Amount: dec("10"), Submitter: "alice"}
	req := resolver.Resolve(tx)
	assert.True(t, req.FailClosed)
	assert.Equal(t, []string{RoleAdmin}, req.ApproverRoles)
	assert.False(t, req.AutoApproveEligible)
}

func TestAutoApprovableRequiresAllConditions(t *testing.T) {
	resolver, reg := newTestResolver(t)

	base := expenseTx("3000", "RCPT-1")
	req := resolver.Resolve(base)
	assert.True(t, AutoApprovable(req, base, reg))

	// Above the ceiling.
	over := expenseTx("5000.01", "RCPT-1")
	assert.False(t, AutoApprovable(resolver.Resolve(over), over, reg))

	// Non-routine category.
	odd := expenseTx("3000", "RCPT-1")
	odd.Category = "Consulting"
	assert.False(t, AutoApprovable(resolver.Resolve(odd), odd, reg))

	// Missing documentation.
	undocumented := expenseTx("3000", "")
	assert.False(t, AutoApprovable(resolver.Resolve(undocumented), undocumented, reg))

	// Tier not flagged auto-approve.
	high := expenseTx("6000", "RCPT-1")
	assert.False(t, AutoApprovable(resolver.Resolve(high), high, reg))

	// Fail-closed requirements never auto-approve.
	failClosed := ApprovalRequirement{ApproverRoles: []string{RoleAdmin},
		AutoApproveEligible: true, AutoApproveCeiling: dec("5000"), FailClosed: true}
	assert.False(t, AutoApprovable(failClosed, base, reg))

	// Dual-approval overrides never auto-approve.
	dual := resolver.Resolve(base)
	dual.DualApproval = true
	assert.False(t, AutoApprovable(dual, base, reg))
}

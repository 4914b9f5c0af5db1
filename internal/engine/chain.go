package engine

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/campuskit/be-fin-approvals/internal/apperr"
)

// ChainBuilder turns required roles into a concrete, ordered list of
// eligible human approvers.
type ChainBuilder struct {
	identity IdentityResolver
	log      zerolog.Logger
}

// NewChainBuilder creates a chain builder over the identity collaborator.
func NewChainBuilder(identity IdentityResolver, log zerolog.Logger) *ChainBuilder {
	return &ChainBuilder{identity: identity, log: log}
}

// Build resolves one concrete approver per required role, in order. The
// submitter is never placed in their own chain unless the matched tier
// explicitly allows admin self-approval. Roles with no resolvable user are
// dropped; an empty result is a hard no_eligible_approvers failure, never a
// silent auto-approval.
func (b *ChainBuilder) Build(ctx context.Context, req ApprovalRequirement, tx *Transaction) ([]string, error) {
	chain := make([]string, 0, len(req.ApproverRoles))

	for _, role := range req.ApproverRoles {
		users, err := b.identity.UsersWithRole(ctx, role)
		if err != nil {
			return nil, apperr.Wrap(err, apperr.ErrCodeUnavailable, "resolving users for role "+role)
		}

		approver := ""
		for _, user := range users {
			if user.Username == tx.Submitter && !(role == RoleAdmin && req.AllowSelfApproval) {
				continue
			}
			if contains(chain, user.Username) {
				// One person never occupies two chain positions.
				continue
			}
			approver = user.Username
			break
		}
		if approver == "" {
			b.log.Warn().
				Str("role", role).
				Str("transaction_id", tx.ID).
				Msg("No eligible approver for role; dropping from chain")
			continue
		}
		chain = append(chain, approver)
	}

	if len(chain) == 0 {
		return nil, apperr.Newf(apperr.ErrCodeNoEligibleApprovers,
			"no eligible approvers for transaction %s in domain %s", tx.ID, tx.Domain)
	}
	return chain, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

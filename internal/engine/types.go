// Package engine implements the transaction approval and workflow engine:
// declarative tiered approval rules, an automated check battery, approval
// chain construction with segregation of duties, and a pending-approval
// queue with audit and notification side effects.
package engine

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Domain is the category of financial action under approval.
type Domain string

const (
	DomainExpense      Domain = "expense"
	DomainRevenue      Domain = "revenue"
	DomainBudget       Domain = "budget"
	DomainFundTransfer Domain = "fund_transfer"
	DomainRequest      Domain = "request"
)

// Valid reports whether d is one of the known domains.
func (d Domain) Valid() bool {
	switch d {
	case DomainExpense, DomainRevenue, DomainBudget, DomainFundTransfer, DomainRequest:
		return true
	}
	return false
}

// Well-known approver roles referenced by the default rule set.
const (
	RoleAdmin          = "admin"
	RoleFinanceManager = "finance_manager"
	RoleAccountant     = "accountant"
)

// Status is the lifecycle state of a transaction within the engine.
type Status string

const (
	StatusValidationFailed Status = "validation_failed"
	StatusAutoApproved     Status = "auto_approved"
	StatusPendingApproval  Status = "pending_approval"
	StatusApproved         Status = "approved"
	StatusRejected         Status = "rejected"
	StatusRecalled         Status = "recalled"
)

// Decision is a human approver's action on a pending transaction.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// Transaction is a financial action under review. Immutable once created;
// the engine never mutates it, only derives decisions from it.
type Transaction struct {
	ID               string
	Domain           Domain
	Amount           decimal.Decimal
	Category         string // domain-specific category or source label
	Submitter        string // username of the submitting user
	SubmitterRole    string
	DocumentationRef string // receipt/reference number; empty when absent
	CreatedAt        time.Time
}

// UserIdentity is a concrete user as resolved by the identity collaborator.
type UserIdentity struct {
	Username string
	Role     string
}

// BudgetSnapshot is the allocation state for a domain, used by the
// budget-exceedance check.
type BudgetSnapshot struct {
	Total decimal.Decimal
	Spent decimal.Decimal
}

// CheckResult is the outcome of one automated check. Ephemeral: produced and
// consumed within a single ProcessTransaction call.
type CheckResult struct {
	Name       string
	Passed     bool
	Warning    bool
	Message    string
	Details    map[string]any
	RiskWeight int
}

// ApprovalRequirement is the resolved approval policy for one transaction.
type ApprovalRequirement struct {
	// ApproverRoles is ordered, deduplicated, with the submitter's own role
	// removed (admin excepted when the matched tier allows self-approval).
	ApproverRoles       []string
	DualApproval        bool
	AutoApproveEligible bool // the matched tier's auto_approve flag
	AllowSelfApproval   bool
	AutoApproveCeiling  decimal.Decimal
	// FailClosed is set when the domain had no configured tiers and the
	// mandatory-admin fallback was applied.
	FailClosed bool
}

// WorkflowItem is a transaction awaiting human decision. Mutated only by the
// queue's Advance and Recall operations; removed from the live queue on any
// terminal decision.
type WorkflowItem struct {
	TransactionID        string
	Domain               Domain
	Submitter            string
	Amount               decimal.Decimal
	Category             string
	ApprovalChain        []string // ordered approver usernames, never contains Submitter
	CurrentApproverIndex int
	DualApproval         bool
	Status               Status
	RiskScore            int
	Warnings             []string
	SubmittedAt          time.Time
	DecidedAt            *time.Time
	DecisionBy           string
	Comments             string
}

// CurrentApprover returns the username whose decision is awaited, or empty
// when the item is terminal.
func (w *WorkflowItem) CurrentApprover() string {
	if w.Status != StatusPendingApproval {
		return ""
	}
	if w.CurrentApproverIndex < 0 || w.CurrentApproverIndex >= len(w.ApprovalChain) {
		return ""
	}
	return w.ApprovalChain[w.CurrentApproverIndex]
}

func (w *WorkflowItem) clone() *WorkflowItem {
	c := *w
	c.ApprovalChain = append([]string(nil), w.ApprovalChain...)
	c.Warnings = append([]string(nil), w.Warnings...)
	if w.DecidedAt != nil {
		t := *w.DecidedAt
		c.DecidedAt = &t
	}
	return &c
}

// AuditEntry is one immutable record of a state transition.
type AuditEntry struct {
	ID            string
	Action        string
	Domain        Domain
	TransactionID string
	Actor         string
	Timestamp     time.Time
	Payload       map[string]any
}

// ── Collaborator interfaces ──────────────────────────────────────────────────
// The engine consumes these; implementations live outside the engine
// (internal/repository, internal/client).

// HistoryReader provides read-only views of recent transaction activity,
// backed by the persistence layer.
type HistoryReader interface {
	RecentTransactionsBySubmitter(ctx context.Context, submitter string, window time.Duration) ([]Transaction, error)
	HistoricalAverage(ctx context.Context, domain Domain, sampleSize int) (decimal.Decimal, error)
}

// IdentityResolver resolves concrete users holding a role.
type IdentityResolver interface {
	UsersWithRole(ctx context.Context, role string) ([]UserIdentity, error)
}

// BudgetReader exposes the active allocation for a domain.
type BudgetReader interface {
	ActiveBudget(ctx context.Context, domain Domain) (BudgetSnapshot, error)
}

// NotificationSink delivers messages to users. Best-effort: implementations
// must never block the decision path and never return delivery failures.
type NotificationSink interface {
	Notify(ctx context.Context, recipient, severity, message string)
}

// Notification severities.
const (
	SeverityInfo           = "info"
	SeverityWarning        = "warning"
	SeverityActionRequired = "action_required"
)

// AuditSink durably records state transitions. A decision is not considered
// durable until its audit entry is written.
type AuditSink interface {
	Append(ctx context.Context, entry *AuditEntry) error
	ByTransaction(ctx context.Context, transactionID string) ([]*AuditEntry, error)
}

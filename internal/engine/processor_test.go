package engine

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuskit/be-fin-approvals/internal/apperr"
)

type procFixture struct {
	proc     *Processor
	queue    *Queue
	notifier *fakeNotifier
	audit    *fakeAudit
}

func newProcFixture(t *testing.T) *procFixture {
	t.Helper()
	reg, err := NewRegistry(DefaultRegistryConfig())
	require.NoError(t, err)

	cfg := DefaultCheckConfig()
	queue := NewQueue()
	notifier := &fakeNotifier{}
	audit := &fakeAudit{}
	proc := NewProcessor(
		reg,
		NewCheckBattery(&fakeHistory{}, nil, reg, cfg),
		NewResolver(reg, cfg.AutoApproveCeiling),
		NewChainBuilder(testIdentity(), zerolog.Nop()),
		queue,
		notifier,
		audit,
		zerolog.Nop(),
	)
	return &procFixture{proc: proc, queue: queue, notifier: notifier, audit: audit}
}

func submission(id string, domain Domain, amount, category, submitter, role, doc string) *Transaction {
	tx := expenseTx(amount, doc)
	tx.ID = id
	tx.Domain = domain
	tx.Category = category
	tx.Submitter = submitter
	tx.SubmitterRole = role
	return tx
}

func TestProcessTransactionAutoApproves(t *testing.T) {
	f := newProcFixture(t)

	out, err := f.proc.ProcessTransaction(context.Background(),
		submission("tx-1", DomainExpense, "3000", "Utilities", "alice", RoleAccountant, "RCPT-1"))
	require.NoError(t, err)

	assert.Equal(t, StatusAutoApproved, out.Status)
	assert.Empty(t, out.Failures)
	assert.Equal(t, []string{"auto_approved"}, f.audit.actions())

	sent := f.notifier.sentTo("alice")
	require.Len(t, sent, 1)
	assert.Equal(t, SeverityInfo, sent[0].severity)

	stats := f.proc.QueueStatistics()
	assert.Equal(t, 1, stats.AutoApprovedLast24h)
	assert.Equal(t, 0, stats.Pending)
}

func TestProcessTransactionRoutesLargeExpense(t *testing.T) {
	f := newProcFixture(t)

	// 30000 lands in the top tier. The submitter is a finance manager, so
	// that role drops out and the chain collapses to the admin.
	out, err := f.proc.ProcessTransaction(context.Background(),
		submission("tx-1", DomainExpense, "30000", "Utilities", "fiona", RoleFinanceManager, "INV-9"))
	require.NoError(t, err)

	assert.Equal(t, StatusPendingApproval, out.Status)
	assert.Equal(t, "root", out.RoutedTo)
	assert.Equal(t, []string{"submitted"}, f.audit.actions())

	sent := f.notifier.sentTo("root")
	require.Len(t, sent, 1)
	assert.Equal(t, SeverityActionRequired, sent[0].severity)
	// The submitter could have approved this tier; that advisory rides along.
	assert.Contains(t, sent[0].message, "Advisories:")

	pending := f.proc.PendingApprovalsFor("root")
	require.Len(t, pending, 1)
	assert.Equal(t, "tx-1", pending[0].TransactionID)
}

func TestProcessTransactionSmallUndocumentedRoutesForApproval(t *testing.T) {
	f := newProcFixture(t)

	// Below the documentation threshold the missing reference is not a
	// failure, but it still disqualifies the automated path.
	out, err := f.proc.ProcessTransaction(context.Background(),
		submission("tx-1", DomainExpense, "200", "Utilities", "alice", RoleAccountant, ""))
	require.NoError(t, err)

	assert.Equal(t, StatusPendingApproval, out.Status)
	assert.Equal(t, "fiona", out.RoutedTo)
	assert.Empty(t, out.Failures)
}

func TestProcessTransactionValidationFailure(t *testing.T) {
	f := newProcFixture(t)

	out, err := f.proc.ProcessTransaction(context.Background(),
		submission("tx-1", DomainExpense, "6000", "Utilities", "alice", RoleAccountant, ""))
	require.NoError(t, err)

	assert.Equal(t, StatusValidationFailed, out.Status)
	require.Len(t, out.Failures, 1)
	assert.Contains(t, out.Failures[0], "documentation")
	assert.Equal(t, riskWeightFail, out.RiskScore)

	// A failed validation is terminal with no side effects.
	assert.Empty(t, f.audit.actions())
	assert.Empty(t, f.notifier.sentTo("alice"))
	assert.Equal(t, int64(0), f.proc.QueueStatistics().Total)
}

func TestProcessTransactionRejectsInvalidInput(t *testing.T) {
	f := newProcFixture(t)
	ctx := context.Background()

	_, err := f.proc.ProcessTransaction(ctx,
		submission("", DomainExpense, "100", "Utilities", "alice", RoleAccountant, "R-1"))
	assert.Equal(t, apperr.ErrCodeInvalidInput, apperr.CodeOf(err))

	_, err = f.proc.ProcessTransaction(ctx,
		submission("tx-1", Domain("payroll"), "100", "Utilities", "alice", RoleAccountant, "R-1"))
	assert.Equal(t, apperr.ErrCodeInvalidInput, apperr.CodeOf(err))

	_, err = f.proc.ProcessTransaction(ctx,
		submission("tx-1", DomainExpense, "-5", "Utilities", "alice", RoleAccountant, "R-1"))
	assert.Equal(t, apperr.ErrCodeInvalidInput, apperr.CodeOf(err))
}

func TestProcessTransactionFailsWhenNoEligibleApprovers(t *testing.T) {
	f := newProcFixture(t)

	// Large fund transfers require an admin; the only admin submitted it.
	_, err := f.proc.ProcessTransaction(context.Background(),
		submission("tx-1", DomainFundTransfer, "30000", "Endowment Fund", "root", RoleAdmin, "TRF-1"))
	assert.Equal(t, apperr.ErrCodeNoEligibleApprovers, apperr.CodeOf(err))
	assert.Empty(t, f.audit.actions())
}

func TestProcessTransactionAuditFailureBlocksAutoApproval(t *testing.T) {
	f := newProcFixture(t)
	f.audit.failNext = true

	_, err := f.proc.ProcessTransaction(context.Background(),
		submission("tx-1", DomainExpense, "3000", "Utilities", "alice", RoleAccountant, "RCPT-1"))
	assert.Equal(t, apperr.ErrCodeAuditWriteFailed, apperr.CodeOf(err))

	// The approval never happened as far as the system is concerned.
	assert.Equal(t, 0, f.proc.QueueStatistics().AutoApprovedLast24h)
	assert.Empty(t, f.notifier.sentTo("alice"))
}

func TestProcessTransactionAuditFailureBlocksEnqueue(t *testing.T) {
	f := newProcFixture(t)
	f.audit.failNext = true

	_, err := f.proc.ProcessTransaction(context.Background(),
		submission("tx-1", DomainExpense, "30000", "Utilities", "fiona", RoleFinanceManager, "INV-9"))
	assert.Equal(t, apperr.ErrCodeAuditWriteFailed, apperr.CodeOf(err))

	_, ok := f.queue.Get("tx-1")
	assert.False(t, ok)
	assert.Empty(t, f.notifier.sentTo("root"))
}

func TestProcessApprovalSingleApproverFlow(t *testing.T) {
	f := newProcFixture(t)
	ctx := context.Background()

	_, err := f.proc.ProcessTransaction(ctx,
		submission("tx-1", DomainExpense, "30000", "Utilities", "fiona", RoleFinanceManager, "INV-9"))
	require.NoError(t, err)

	out, err := f.proc.ProcessApproval(ctx, "tx-1", DecisionApprove, "root", "looks fine")
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, out.Status)
	assert.Equal(t, []string{"submitted", "approved"}, f.audit.actions())

	sent := f.notifier.sentTo("fiona")
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].message, "approved by root")

	// The decision is terminal; a repeat finds nothing to act on.
	_, err = f.proc.ProcessApproval(ctx, "tx-1", DecisionApprove, "root", "")
	assert.Equal(t, apperr.ErrCodeNotFound, apperr.CodeOf(err))
}

func TestProcessApprovalDualApprovalFlow(t *testing.T) {
	f := newProcFixture(t)
	ctx := context.Background()

	// Laboratory Equipment keeps the tier's roles but demands two sign-offs.
	out, err := f.proc.ProcessTransaction(ctx,
		submission("tx-1", DomainExpense, "25000", "Laboratory Equipment", "alice", RoleAccountant, "PO-7"))
	require.NoError(t, err)
	assert.Equal(t, "fiona", out.RoutedTo)

	out, err = f.proc.ProcessApproval(ctx, "tx-1", DecisionApprove, "fiona", "")
	require.NoError(t, err)
	assert.Equal(t, StatusPendingApproval, out.Status)
	assert.Equal(t, "root", out.RoutedTo)

	out, err = f.proc.ProcessApproval(ctx, "tx-1", DecisionApprove, "root", "")
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, out.Status)

	assert.Equal(t, []string{"submitted", "approval_advanced", "approved"}, f.audit.actions())
}

func TestProcessApprovalRejectionNotifiesSubmitter(t *testing.T) {
	f := newProcFixture(t)
	ctx := context.Background()

	_, err := f.proc.ProcessTransaction(ctx,
		submission("tx-1", DomainExpense, "25000", "Laboratory Equipment", "alice", RoleAccountant, "PO-7"))
	require.NoError(t, err)

	out, err := f.proc.ProcessApproval(ctx, "tx-1", DecisionReject, "fiona", "wrong vendor")
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, out.Status)

	sent := f.notifier.sentTo("alice")
	require.Len(t, sent, 1)
	assert.Equal(t, SeverityWarning, sent[0].severity)
	assert.Contains(t, sent[0].message, "wrong vendor")
}

func TestProcessApprovalRejectsWrongApprover(t *testing.T) {
	f := newProcFixture(t)
	ctx := context.Background()

	_, err := f.proc.ProcessTransaction(ctx,
		submission("tx-1", DomainExpense, "30000", "Utilities", "fiona", RoleFinanceManager, "INV-9"))
	require.NoError(t, err)

	_, err = f.proc.ProcessApproval(ctx, "tx-1", DecisionApprove, "alice", "")
	assert.Equal(t, apperr.ErrCodeUnauthorized, apperr.CodeOf(err))
	assert.Equal(t, []string{"submitted"}, f.audit.actions())
}

func TestProcessRecall(t *testing.T) {
	f := newProcFixture(t)
	ctx := context.Background()

	_, err := f.proc.ProcessTransaction(ctx,
		submission("tx-1", DomainExpense, "30000", "Utilities", "fiona", RoleFinanceManager, "INV-9"))
	require.NoError(t, err)

	_, err = f.proc.ProcessRecall(ctx, "tx-1", "alice", "")
	assert.Equal(t, apperr.ErrCodeUnauthorized, apperr.CodeOf(err))

	out, err := f.proc.ProcessRecall(ctx, "tx-1", "fiona", "duplicate submission")
	require.NoError(t, err)
	assert.Equal(t, StatusRecalled, out.Status)
	assert.Equal(t, []string{"submitted", "recalled"}, f.audit.actions())

	// The waiting approver learns the item was withdrawn.
	sent := f.notifier.sentTo("root")
	require.Len(t, sent, 2)
	assert.Contains(t, sent[1].message, "recalled")
}

func TestApprovalHistory(t *testing.T) {
	f := newProcFixture(t)
	ctx := context.Background()

	_, err := f.proc.ProcessTransaction(ctx,
		submission("tx-1", DomainExpense, "30000", "Utilities", "fiona", RoleFinanceManager, "INV-9"))
	require.NoError(t, err)
	_, err = f.proc.ProcessApproval(ctx, "tx-1", DecisionApprove, "root", "")
	require.NoError(t, err)

	history, err := f.proc.ApprovalHistory(ctx, "tx-1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "submitted", history[0].Action)
	assert.Equal(t, "approved", history[1].Action)
	assert.Equal(t, "fiona", history[0].Actor)
	assert.Equal(t, "root", history[1].Actor)
}

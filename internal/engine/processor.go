package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/campuskit/be-fin-approvals/internal/apperr"
)

// Processor is the single public entry point of the approval engine. It
// orchestrates the check battery, requirement resolver, chain builder and
// workflow queue, emitting audit entries and notifications as transitions
// occur. Both entry points run synchronously to a terminal or pending
// outcome; the engine performs no retries of its own.
type Processor struct {
	registry *Registry
	battery  *CheckBattery
	resolver *Resolver
	chains   *ChainBuilder
	queue    *Queue
	notifier NotificationSink
	audit    AuditSink
	log      zerolog.Logger
}

// NewProcessor wires the engine components together.
func NewProcessor(
	registry *Registry,
	battery *CheckBattery,
	resolver *Resolver,
	chains *ChainBuilder,
	queue *Queue,
	notifier NotificationSink,
	audit AuditSink,
	log zerolog.Logger,
) *Processor {
	return &Processor{
		registry: registry,
		battery:  battery,
		resolver: resolver,
		chains:   chains,
		queue:    queue,
		notifier: notifier,
		audit:    audit,
		log:      log,
	}
}

// Outcome is the result of processing a submission or a decision.
type Outcome struct {
	TransactionID string   `json:"transaction_id"`
	Status        Status   `json:"status"`
	RiskScore     int      `json:"risk_score"`
	Warnings      []string `json:"warnings,omitempty"`
	Failures      []string `json:"failures,omitempty"`
	RoutedTo      string   `json:"routed_to,omitempty"`
	Message       string   `json:"message"`
}

// ProcessTransaction intercepts a submitted transaction and decides whether
// it is auto-approved, routed to a human approver chain, or fails
// validation. A validation failure is a normal terminal outcome with no
// further effects; infrastructure failures are returned as errors.
func (p *Processor) ProcessTransaction(ctx context.Context, tx *Transaction) (*Outcome, error) {
	if tx.ID == "" {
		return nil, apperr.InvalidInput("id", "transaction id is required")
	}
	if !tx.Domain.Valid() {
		return nil, apperr.InvalidInput("domain", fmt.Sprintf("unknown domain %q", tx.Domain))
	}
	if tx.Amount.IsNegative() {
		return nil, apperr.InvalidInput("amount", "amount must be non-negative")
	}

	results, err := p.battery.Run(ctx, tx)
	if err != nil {
		return nil, err
	}
	risk := RiskScore(results)
	failures := FailedMessages(results)
	warnings := WarningMessages(results)

	if len(failures) > 0 {
		p.log.Info().
			Str("transaction_id", tx.ID).
			Str("domain", string(tx.Domain)).
			Int("risk_score", risk).
			Strs("failures", failures).
			Msg("Transaction failed validation")
		return &Outcome{
			TransactionID: tx.ID,
			Status:        StatusValidationFailed,
			RiskScore:     risk,
			Warnings:      warnings,
			Failures:      failures,
			Message:       "validation failed: " + strings.Join(failures, "; "),
		}, nil
	}

	req := p.resolver.Resolve(tx)
	if req.FailClosed {
		p.log.Warn().
			Str("transaction_id", tx.ID).
			Str("domain", string(tx.Domain)).
			Msg("No approval tiers configured for domain; requiring admin approval")
	}

	if AutoApprovable(req, tx, p.registry) {
		entry := p.newAuditEntry("auto_approved", tx.Domain, tx.ID, "system", map[string]any{
			"decision_method": "automated",
			"amount":          tx.Amount.String(),
			"category":        tx.Category,
			"risk_score":      risk,
		})
		if err := p.audit.Append(ctx, entry); err != nil {
			return nil, apperr.Wrap(err, apperr.ErrCodeAuditWriteFailed, "recording automated approval")
		}
		p.queue.RecordAutoApproval(time.Now())
		p.notifier.Notify(ctx, tx.Submitter, SeverityInfo,
			fmt.Sprintf("Your %s of %s (%s) was approved automatically.", tx.Domain, tx.Amount, tx.Category))

		p.log.Info().
			Str("transaction_id", tx.ID).
			Str("domain", string(tx.Domain)).
			Str("amount", tx.Amount.String()).
			Msg("Transaction auto-approved")
		return &Outcome{
			TransactionID: tx.ID,
			Status:        StatusAutoApproved,
			RiskScore:     risk,
			Warnings:      warnings,
			Message:       "approved automatically",
		}, nil
	}

	chain, err := p.chains.Build(ctx, req, tx)
	if err != nil {
		return nil, err
	}

	item := &WorkflowItem{
		TransactionID: tx.ID,
		Domain:        tx.Domain,
		Submitter:     tx.Submitter,
		Amount:        tx.Amount,
		Category:      tx.Category,
		ApprovalChain: chain,
		DualApproval:  req.DualApproval,
		Status:        StatusPendingApproval,
		RiskScore:     risk,
		Warnings:      warnings,
		SubmittedAt:   time.Now(),
	}

	err = p.queue.Enqueue(item, func(stored *WorkflowItem) error {
		entry := p.newAuditEntry("submitted", tx.Domain, tx.ID, tx.Submitter, map[string]any{
			"amount":         tx.Amount.String(),
			"category":       tx.Category,
			"approval_chain": stored.ApprovalChain,
			"dual_approval":  stored.DualApproval,
			"risk_score":     risk,
		})
		if err := p.audit.Append(ctx, entry); err != nil {
			return apperr.Wrap(err, apperr.ErrCodeAuditWriteFailed, "recording submission")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	p.notifyApprover(ctx, chain[0], tx.Domain, tx.ID, tx.Amount.String(), warnings)

	p.log.Info().
		Str("transaction_id", tx.ID).
		Str("domain", string(tx.Domain)).
		Str("routed_to", chain[0]).
		Int("chain_length", len(chain)).
		Int("risk_score", risk).
		Msg("Transaction routed for approval")
	return &Outcome{
		TransactionID: tx.ID,
		Status:        StatusPendingApproval,
		RiskScore:     risk,
		Warnings:      warnings,
		RoutedTo:      chain[0],
		Message:       "awaiting approval by " + chain[0],
	}, nil
}

// ProcessApproval applies a human approve/reject decision to a queued
// transaction. Attempts by anyone other than the current chain entry are
// rejected without mutating state; repeating a terminal decision finds the
// item gone and fails with not_found.
func (p *Processor) ProcessApproval(ctx context.Context, transactionID string, decision Decision, approver, comments string) (*Outcome, error) {
	item, terminal, err := p.queue.Advance(transactionID, decision, approver, comments,
		func(next *WorkflowItem, terminal bool) error {
			action := "approval_advanced"
			if terminal {
				action = string(next.Status)
			}
			entry := p.newAuditEntry(action, next.Domain, next.TransactionID, approver, map[string]any{
				"comments":       comments,
				"approver_index": next.CurrentApproverIndex,
				"terminal":       terminal,
			})
			if err := p.audit.Append(ctx, entry); err != nil {
				return apperr.Wrap(err, apperr.ErrCodeAuditWriteFailed, "recording approval decision")
			}
			return nil
		})
	if err != nil {
		return nil, err
	}

	outcome := &Outcome{
		TransactionID: item.TransactionID,
		Status:        item.Status,
		RiskScore:     item.RiskScore,
	}

	switch {
	case !terminal:
		next := item.CurrentApprover()
		p.notifyApprover(ctx, next, item.Domain, item.TransactionID, item.Amount.String(), item.Warnings)
		outcome.RoutedTo = next
		outcome.Message = "approved; awaiting approval by " + next
	case item.Status == StatusApproved:
		p.notifier.Notify(ctx, item.Submitter, SeverityInfo,
			fmt.Sprintf("Your %s of %s was approved by %s.", item.Domain, item.Amount, approver))
		outcome.Message = "approved"
	default:
		reason := comments
		if reason == "" {
			reason = "no reason given"
		}
		p.notifier.Notify(ctx, item.Submitter, SeverityWarning,
			fmt.Sprintf("Your %s of %s was rejected by %s: %s", item.Domain, item.Amount, approver, reason))
		outcome.Message = "rejected"
	}

	p.log.Info().
		Str("transaction_id", transactionID).
		Str("decision", string(decision)).
		Str("approver", approver).
		Bool("terminal", terminal).
		Msg("Approval decision processed")
	return outcome, nil
}

// ProcessRecall lets the original submitter withdraw a pending transaction
// from the queue.
func (p *Processor) ProcessRecall(ctx context.Context, transactionID, submitter, comments string) (*Outcome, error) {
	item, err := p.queue.Recall(transactionID, submitter, comments, func(next *WorkflowItem) error {
		entry := p.newAuditEntry("recalled", next.Domain, next.TransactionID, submitter, map[string]any{
			"comments": comments,
		})
		if err := p.audit.Append(ctx, entry); err != nil {
			return apperr.Wrap(err, apperr.ErrCodeAuditWriteFailed, "recording recall")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if approver := item.ApprovalChain[item.CurrentApproverIndex]; approver != "" {
		p.notifier.Notify(ctx, approver, SeverityInfo,
			fmt.Sprintf("The %s of %s submitted by %s was recalled.", item.Domain, item.Amount, submitter))
	}

	p.log.Info().
		Str("transaction_id", transactionID).
		Str("submitter", submitter).
		Msg("Transaction recalled")
	return &Outcome{
		TransactionID: item.TransactionID,
		Status:        StatusRecalled,
		RiskScore:     item.RiskScore,
		Message:       "recalled by submitter",
	}, nil
}

// PendingApprovalsFor returns the workflow items awaiting a decision from
// the given user.
func (p *Processor) PendingApprovalsFor(user string) []*WorkflowItem {
	return p.queue.PendingFor(user)
}

// QueueStatistics returns a read-only summary of queue activity.
func (p *Processor) QueueStatistics() QueueStatistics {
	return p.queue.Stats()
}

// ApprovalHistory returns the audit trail for a transaction, oldest first.
func (p *Processor) ApprovalHistory(ctx context.Context, transactionID string) ([]*AuditEntry, error) {
	return p.audit.ByTransaction(ctx, transactionID)
}

func (p *Processor) notifyApprover(ctx context.Context, approver string, domain Domain, txID, amount string, warnings []string) {
	msg := fmt.Sprintf("A %s of %s (transaction %s) awaits your approval.", domain, amount, txID)
	if len(warnings) > 0 {
		msg += " Advisories: " + strings.Join(warnings, "; ")
	}
	p.notifier.Notify(ctx, approver, SeverityActionRequired, msg)
}

func (p *Processor) newAuditEntry(action string, domain Domain, transactionID, actor string, payload map[string]any) *AuditEntry {
	return &AuditEntry{
		Action:        action,
		Domain:        domain,
		TransactionID: transactionID,
		Actor:         actor,
		Timestamp:     time.Now(),
		Payload:       payload,
	}
}

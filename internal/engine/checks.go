package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/campuskit/be-fin-approvals/internal/apperr"
)

// Risk weight contributed by one check outcome.
const (
	riskWeightFail = 30
	riskWeightWarn = 10
	maxRiskScore   = 100
)

// CheckConfig holds thresholds for the automated check battery.
type CheckConfig struct {
	DuplicateWindow        time.Duration
	DuplicateEpsilon       decimal.Decimal // currency-precision tolerance
	AnomalyMultiplier      int
	AnomalySampleSize      int
	RateWindow             time.Duration
	RateThreshold          int
	DocumentationThreshold decimal.Decimal
	AutoApproveCeiling     decimal.Decimal
}

// DefaultCheckConfig returns the standard thresholds.
func DefaultCheckConfig() CheckConfig {
	return CheckConfig{
		DuplicateWindow:        time.Hour,
		DuplicateEpsilon:       dec("0.01"),
		AnomalyMultiplier:      3,
		AnomalySampleSize:      50,
		RateWindow:             time.Hour,
		RateThreshold:          10,
		DocumentationThreshold: dec("5000"),
		AutoApproveCeiling:     dec("5000"),
	}
}

// CheckBattery runs the independent, side-effect-free automated checks.
// Documentation completeness is the only check that can fail a transaction
// outright; every other check is advisory.
type CheckBattery struct {
	history  HistoryReader
	budgets  BudgetReader // optional; nil disables the budget-exceedance check
	registry *Registry
	cfg      CheckConfig
}

// NewCheckBattery creates a battery over the given collaborators.
func NewCheckBattery(history HistoryReader, budgets BudgetReader, registry *Registry, cfg CheckConfig) *CheckBattery {
	return &CheckBattery{history: history, budgets: budgets, registry: registry, cfg: cfg}
}

// Run executes every check against tx and returns their results in a fixed
// order. Collaborator read failures propagate as retryable errors.
func (b *CheckBattery) Run(ctx context.Context, tx *Transaction) ([]CheckResult, error) {
	submitterRecent, err := b.history.RecentTransactionsBySubmitter(ctx, tx.Submitter, b.cfg.RateWindow)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.ErrCodeUnavailable, "reading submitter history")
	}

	results := []CheckResult{
		b.DuplicateCheck(tx, submitterRecent),
		b.SubmissionRateCheck(tx, submitterRecent),
		b.DocumentationCheck(tx),
		b.SegregationOfDutiesCheck(tx),
	}

	anomaly, err := b.AnomalousAmountCheck(ctx, tx)
	if err != nil {
		return nil, err
	}
	results = append(results, anomaly)

	if b.budgets != nil && (tx.Domain == DomainExpense || tx.Domain == DomainBudget) {
		budget, err := b.BudgetExceedanceCheck(ctx, tx)
		if err != nil {
			return nil, err
		}
		results = append(results, budget)
	}

	return results, nil
}

// DuplicateCheck flags a transaction whose amount matches another recent
// transaction from the same submitter within the duplicate window. Warning
// only; duplicates are surfaced to approvers, never blocked here.
func (b *CheckBattery) DuplicateCheck(tx *Transaction, recent []Transaction) CheckResult {
	cutoff := tx.CreatedAt.Add(-b.cfg.DuplicateWindow)
	for _, prev := range recent {
		if prev.ID == tx.ID || prev.CreatedAt.Before(cutoff) {
			continue
		}
		if prev.Amount.Sub(tx.Amount).Abs().LessThanOrEqual(b.cfg.DuplicateEpsilon) {
			return warnResult("duplicate",
				fmt.Sprintf("amount %s matches transaction %s submitted at %s",
					tx.Amount, prev.ID, prev.CreatedAt.Format(time.RFC3339)),
				map[string]any{"matched_transaction_id": prev.ID})
		}
	}
	return passResult("duplicate", "no recent duplicate amounts")
}

// SubmissionRateCheck flags a submitter exceeding the configured number of
// transactions within the rate window.
func (b *CheckBattery) SubmissionRateCheck(tx *Transaction, recent []Transaction) CheckResult {
	cutoff := tx.CreatedAt.Add(-b.cfg.RateWindow)
	count := 0
	for _, prev := range recent {
		if prev.ID != tx.ID && !prev.CreatedAt.Before(cutoff) {
			count++
		}
	}
	if count > b.cfg.RateThreshold {
		return warnResult("submission_rate",
			fmt.Sprintf("%d transactions in the last %s exceeds threshold %d",
				count, b.cfg.RateWindow, b.cfg.RateThreshold),
			map[string]any{"count": count, "threshold": b.cfg.RateThreshold})
	}
	return passResult("submission_rate", "submission rate within limits")
}

// DocumentationCheck fails a transaction above the documentation threshold
// that carries no documentation reference. This is the only hard failure in
// the battery.
func (b *CheckBattery) DocumentationCheck(tx *Transaction) CheckResult {
	if tx.Amount.GreaterThan(b.cfg.DocumentationThreshold) && tx.DocumentationRef == "" {
		return failResult("documentation",
			fmt.Sprintf("amount %s exceeds %s and no documentation reference is attached",
				tx.Amount, b.cfg.DocumentationThreshold))
	}
	return passResult("documentation", "documentation requirement satisfied")
}

// SegregationOfDutiesCheck warns when the submitter's own role appears in the
// matched tier's required roles. Enforcement happens in the chain builder;
// this check only surfaces the condition to approvers.
func (b *CheckBattery) SegregationOfDutiesCheck(tx *Transaction) CheckResult {
	tier, err := b.registry.ResolveAmountTier(tx.Domain, tx.Amount)
	if err != nil {
		// Unknown domains fail closed in the resolver; nothing to advise on.
		return passResult("segregation_of_duties", "no tier to evaluate")
	}
	for _, role := range tier.RequiredRoles {
		if role == tx.SubmitterRole {
			return warnResult("segregation_of_duties",
				fmt.Sprintf("submitter role %q could approve this tier; self-approval will be excluded", role),
				map[string]any{"role": role})
		}
	}
	return passResult("segregation_of_duties", "submitter cannot approve this tier")
}

// AnomalousAmountCheck warns when the amount exceeds the anomaly multiplier
// times the trailing mean for the domain.
func (b *CheckBattery) AnomalousAmountCheck(ctx context.Context, tx *Transaction) (CheckResult, error) {
	mean, err := b.history.HistoricalAverage(ctx, tx.Domain, b.cfg.AnomalySampleSize)
	if err != nil {
		return CheckResult{}, apperr.Wrap(err, apperr.ErrCodeUnavailable, "reading historical average")
	}
	if mean.IsPositive() {
		limit := mean.Mul(decimal.NewFromInt(int64(b.cfg.AnomalyMultiplier)))
		if tx.Amount.GreaterThan(limit) {
			return warnResult("anomalous_amount",
				fmt.Sprintf("amount %s exceeds %dx the trailing mean %s for domain %s",
					tx.Amount, b.cfg.AnomalyMultiplier, mean, tx.Domain),
				map[string]any{"mean": mean.String(), "limit": limit.String()}), nil
		}
	}
	return passResult("anomalous_amount", "amount within expected range"), nil
}

// BudgetExceedanceCheck warns when the transaction would push spending past
// the active allocation for its domain.
func (b *CheckBattery) BudgetExceedanceCheck(ctx context.Context, tx *Transaction) (CheckResult, error) {
	budget, err := b.budgets.ActiveBudget(ctx, tx.Domain)
	if err != nil {
		return CheckResult{}, apperr.Wrap(err, apperr.ErrCodeUnavailable, "reading active budget")
	}
	if budget.Total.IsPositive() && budget.Spent.Add(tx.Amount).GreaterThan(budget.Total) {
		return warnResult("budget_exceedance",
			fmt.Sprintf("amount %s would exceed the active budget (%s of %s spent)",
				tx.Amount, budget.Spent, budget.Total),
			map[string]any{"total": budget.Total.String(), "spent": budget.Spent.String()}), nil
	}
	return passResult("budget_exceedance", "within active budget"), nil
}

// RiskScore derives the bounded composite score from check results. Always
// recomputed from the results at hand, never cached.
func RiskScore(results []CheckResult) int {
	score := 0
	for _, r := range results {
		score += r.RiskWeight
	}
	if score > maxRiskScore {
		return maxRiskScore
	}
	return score
}

// FailedMessages returns the messages of hard-failed checks.
func FailedMessages(results []CheckResult) []string {
	var out []string
	for _, r := range results {
		if !r.Passed {
			out = append(out, r.Name+": "+r.Message)
		}
	}
	return out
}

// WarningMessages returns the messages of advisory warnings.
func WarningMessages(results []CheckResult) []string {
	var out []string
	for _, r := range results {
		if r.Passed && r.Warning {
			out = append(out, r.Name+": "+r.Message)
		}
	}
	return out
}

func passResult(name, message string) CheckResult {
	return CheckResult{Name: name, Passed: true, Message: message}
}

func warnResult(name, message string, details map[string]any) CheckResult {
	return CheckResult{Name: name, Passed: true, Warning: true, Message: message, Details: details, RiskWeight: riskWeightWarn}
}

func failResult(name, message string) CheckResult {
	return CheckResult{Name: name, Passed: false, Message: message, RiskWeight: riskWeightFail}
}

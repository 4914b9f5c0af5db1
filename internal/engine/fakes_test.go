package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// fakeHistory is an in-memory HistoryReader.
type fakeHistory struct {
	transactions []Transaction
	mean         decimal.Decimal
	err          error
}

func (f *fakeHistory) RecentTransactionsBySubmitter(_ context.Context, submitter string, window time.Duration) ([]Transaction, error) {
	if f.err != nil {
		return nil, f.err
	}
	cutoff := time.Now().Add(-window)
	var out []Transaction
	for _, tx := range f.transactions {
		if tx.Submitter == submitter && !tx.CreatedAt.Before(cutoff) {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (f *fakeHistory) HistoricalAverage(_ context.Context, _ Domain, _ int) (decimal.Decimal, error) {
	if f.err != nil {
		return decimal.Decimal{}, f.err
	}
	return f.mean, nil
}

// fakeIdentity maps roles to users.
type fakeIdentity struct {
	usersByRole map[string][]UserIdentity
	err         error
}

func (f *fakeIdentity) UsersWithRole(_ context.Context, role string) ([]UserIdentity, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.usersByRole[role], nil
}

// fakeBudgets serves one snapshot per domain.
type fakeBudgets struct {
	budgets map[Domain]BudgetSnapshot
}

func (f *fakeBudgets) ActiveBudget(_ context.Context, domain Domain) (BudgetSnapshot, error) {
	return f.budgets[domain], nil
}

// fakeNotifier records notifications.
type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
}

type sentNotification struct {
	recipient string
	severity  string
	message   string
}

func (f *fakeNotifier) Notify(_ context.Context, recipient, severity, message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentNotification{recipient, severity, message})
}

func (f *fakeNotifier) sentTo(recipient string) []sentNotification {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sentNotification
	for _, n := range f.sent {
		if n.recipient == recipient {
			out = append(out, n)
		}
	}
	return out
}

// fakeAudit records entries in memory; failNext forces the next append to
// fail.
type fakeAudit struct {
	mu       sync.Mutex
	entries  []*AuditEntry
	failNext bool
}

var errAuditDown = errors.New("audit store unavailable")

func (f *fakeAudit) Append(_ context.Context, entry *AuditEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext {
		f.failNext = false
		return errAuditDown
	}
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeAudit) ByTransaction(_ context.Context, transactionID string) ([]*AuditEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*AuditEntry
	for _, e := range f.entries {
		if e.TransactionID == transactionID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeAudit) actions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.entries))
	for _, e := range f.entries {
		out = append(out, e.Action)
	}
	return out
}

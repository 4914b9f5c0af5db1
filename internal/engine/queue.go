package engine

import (
	"sort"
	"sync"
	"time"

	"github.com/campuskit/be-fin-approvals/internal/apperr"
)

// Queue holds transactions awaiting human decision, keyed by transaction id.
// One mutex serializes all mutating operations; read-only lookups take the
// read lock and may proceed concurrently.
//
// Mutations accept a commit callback (the audit write). The callback runs
// inside the critical section on a copy of the next state and the mutation
// is applied only when it returns nil, so no decision becomes visible
// without its durable audit record and no caller ever observes a
// half-updated item.
type Queue struct {
	mu           sync.RWMutex
	items        map[string]*WorkflowItem
	submitted    int64 // cumulative transactions accepted (queued or auto-approved)
	autoApproved []time.Time
}

// QueueStatistics is a read-only summary of queue activity.
type QueueStatistics struct {
	Total               int64 `json:"total"`
	Pending             int   `json:"pending"`
	AutoApprovedLast24h int   `json:"auto_approved_last_24h"`
}

// NewQueue creates an empty workflow queue.
func NewQueue() *Queue {
	return &Queue{items: make(map[string]*WorkflowItem)}
}

// Enqueue adds a pending item. The commit callback is invoked before the
// item becomes visible; a commit failure leaves the queue unchanged.
func (q *Queue) Enqueue(item *WorkflowItem, commit func(*WorkflowItem) error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, exists := q.items[item.TransactionID]; exists {
		return apperr.Newf(apperr.ErrCodeConflict, "transaction %s is already queued", item.TransactionID)
	}
	if item.Status != StatusPendingApproval || item.CurrentApproverIndex >= len(item.ApprovalChain) {
		return apperr.InvalidInput("workflow_item", "item is not a valid pending entry")
	}

	stored := item.clone()
	if commit != nil {
		if err := commit(stored.clone()); err != nil {
			return err
		}
	}
	q.items[item.TransactionID] = stored
	q.submitted++
	return nil
}

// Get returns a copy of the queued item.
func (q *Queue) Get(transactionID string) (*WorkflowItem, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	item, ok := q.items[transactionID]
	if !ok {
		return nil, false
	}
	return item.clone(), true
}

// Advance applies a human decision to a queued item. Only the current chain
// entry may act. An approval on a dual-approval item with approvers left in
// the chain moves the index forward and stays pending; any other approval is
// terminal. A rejection is terminal immediately regardless of chain
// position. Terminal items are dequeued; history lives in the audit sink.
func (q *Queue) Advance(
	transactionID string,
	decision Decision,
	approver, comments string,
	commit func(next *WorkflowItem, terminal bool) error,
) (*WorkflowItem, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	item, ok := q.items[transactionID]
	if !ok {
		return nil, false, apperr.NotFound("workflow_item", transactionID)
	}
	if approver == "" || item.CurrentApprover() != approver {
		return nil, false, apperr.Newf(apperr.ErrCodeUnauthorized,
			"%q is not the current approver for transaction %s", approver, transactionID)
	}

	next := item.clone()
	now := time.Now()
	terminal := true

	switch decision {
	case DecisionApprove:
		if next.DualApproval && next.CurrentApproverIndex < len(next.ApprovalChain)-1 {
			next.CurrentApproverIndex++
			terminal = false
		} else {
			next.Status = StatusApproved
		}
	case DecisionReject:
		next.Status = StatusRejected
	default:
		return nil, false, apperr.InvalidInput("decision", "must be approve or reject")
	}

	if terminal {
		next.DecidedAt = &now
		next.DecisionBy = approver
		next.Comments = comments
	}

	if commit != nil {
		if err := commit(next.clone(), terminal); err != nil {
			return nil, false, err
		}
	}

	if terminal {
		delete(q.items, transactionID)
	} else {
		q.items[transactionID] = next
	}
	return next.clone(), terminal, nil
}

// Recall removes a pending item at the submitter's request. Only the
// original submitter may recall.
func (q *Queue) Recall(transactionID, submitter, comments string, commit func(*WorkflowItem) error) (*WorkflowItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	item, ok := q.items[transactionID]
	if !ok {
		return nil, apperr.NotFound("workflow_item", transactionID)
	}
	if item.Submitter != submitter {
		return nil, apperr.New(apperr.ErrCodeUnauthorized, "only the submitter can recall a pending transaction")
	}

	next := item.clone()
	now := time.Now()
	next.Status = StatusRecalled
	next.DecidedAt = &now
	next.DecisionBy = submitter
	next.Comments = comments

	if commit != nil {
		if err := commit(next.clone()); err != nil {
			return nil, err
		}
	}
	delete(q.items, transactionID)
	return next.clone(), nil
}

// RecordAutoApproval counts an automated approval for the statistics window.
func (q *Queue) RecordAutoApproval(at time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.submitted++
	q.autoApproved = append(q.autoApproved, at)
}

// PendingFor returns copies of the items currently awaiting a decision from
// the given user, oldest first.
func (q *Queue) PendingFor(user string) []*WorkflowItem {
	q.mu.RLock()
	defer q.mu.RUnlock()

	var out []*WorkflowItem
	for _, item := range q.items {
		if item.CurrentApprover() == user {
			out = append(out, item.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.Before(out[j].SubmittedAt) })
	return out
}

// Stats returns queue statistics. Iteration is exposed only through this
// read-only view, never for mutation.
func (q *Queue) Stats() QueueStatistics {
	q.mu.Lock()
	defer q.mu.Unlock()

	cutoff := time.Now().Add(-24 * time.Hour)
	kept := q.autoApproved[:0]
	for _, at := range q.autoApproved {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}
	q.autoApproved = kept

	return QueueStatistics{
		Total:               q.submitted,
		Pending:             len(q.items),
		AutoApprovedLast24h: len(kept),
	}
}

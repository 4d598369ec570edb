package registry

import (
	"sync"
	"time"

	"github.com/cortexrt/cortex/internal/envelope"
)

// DelegationStatus is the lifecycle state of a DelegationRecord.
type DelegationStatus string

const (
	DelegationAssigned       DelegationStatus = "Assigned"
	DelegationInProgress     DelegationStatus = "InProgress"
	DelegationAwaitingReview DelegationStatus = "AwaitingReview"
	DelegationComplete       DelegationStatus = "Complete"
)

// DelegationRecord tracks one unit of delegated work. Records are immutable;
// UpdateStatus replaces the stored value rather than mutating it in place.
// Overdue is deliberately not a stored status: GetOverdue computes it from
// DueAt at query time (SPEC_FULL.md §9).
type DelegationRecord struct {
	ReferenceCode envelope.ReferenceCode
	DelegatedBy   string
	DelegatedTo   string
	Description   string
	Status        DelegationStatus
	AssignedAt    time.Time
	DueAt         *time.Time
	CompletedAt   *time.Time
}

// DelegationTracker is a concurrent map keyed by the reference code's string
// form.
type DelegationTracker struct {
	mu          sync.RWMutex
	delegations map[string]DelegationRecord
}

func NewDelegationTracker() *DelegationTracker {
	return &DelegationTracker{delegations: make(map[string]DelegationRecord)}
}

func (t *DelegationTracker) Create(record DelegationRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.delegations[record.ReferenceCode.String()] = record
}

func (t *DelegationTracker) Get(ref envelope.ReferenceCode) (DelegationRecord, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	record, ok := t.delegations[ref.String()]
	return record, ok
}

// UpdateStatus replaces the stored record's status, stamping CompletedAt when
// transitioning to Complete. It is a no-op if ref is unknown.
func (t *DelegationTracker) UpdateStatus(ref envelope.ReferenceCode, status DelegationStatus, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	record, ok := t.delegations[ref.String()]
	if !ok {
		return
	}
	record.Status = status
	if status == DelegationComplete {
		completed := now
		record.CompletedAt = &completed
	}
	t.delegations[ref.String()] = record
}

// GetByAssignee returns every delegation currently assigned to agentID.
func (t *DelegationTracker) GetByAssignee(agentID string) []DelegationRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []DelegationRecord
	for _, r := range t.delegations {
		if r.DelegatedTo == agentID {
			out = append(out, r)
		}
	}
	return out
}

// GetOverdue returns every delegation whose DueAt is set, in the past as of
// now, and not yet Complete.
func (t *DelegationTracker) GetOverdue(now time.Time) []DelegationRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []DelegationRecord
	for _, r := range t.delegations {
		if r.DueAt != nil && r.DueAt.Before(now) && r.Status != DelegationComplete {
			out = append(out, r)
		}
	}
	return out
}

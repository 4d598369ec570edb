// Package workflow implements the workflow tracker and pending-plan store
// (SPEC_FULL.md §4.7 and the "Pending plan" data model in §3): parent/child
// correlation, partial result accumulation, and completion detection.
package workflow

import (
	"sync"
	"time"

	"github.com/cortexrt/cortex/internal/envelope"
)

// Status is the lifecycle state of a WorkflowRecord.
type Status string

const (
	InProgress Status = "InProgress"
	Completed  Status = "Completed"
	Failed     Status = "Failed"
)

// Record is the immutable description of one decomposed goal: which subtask
// reference codes belong to it and what summary line introduces the
// aggregated reply.
type Record struct {
	ReferenceCode         envelope.ReferenceCode
	OriginalEnvelope      envelope.MessageEnvelope
	SubtaskReferenceCodes []envelope.ReferenceCode
	Summary               string
	Status                Status
	CreatedAt             time.Time
	CompletedAt           *time.Time
}

// entry pairs an immutable Record with its mutable partial-result map, both
// guarded by the same per-workflow mutex so that a read-modify-write (such as
// recording a subtask result and checking for completion) is one critical
// section.
type entry struct {
	mu      sync.Mutex
	record  Record
	results map[string]envelope.MessageEnvelope
}

// Tracker is the in-memory reference WorkflowTracker: a concurrent map from
// parent reference code to its entry, plus a reverse index from subtask
// reference code to parent for FindBySubtask.
type Tracker struct {
	mu       sync.RWMutex
	entries  map[string]*entry
	children map[string]string // subtask ref string -> parent ref string
}

func NewTracker() *Tracker {
	return &Tracker{
		entries:  make(map[string]*entry),
		children: make(map[string]string),
	}
}

// Create starts tracking a new workflow. Every subtask reference code in
// record.SubtaskReferenceCodes is indexed so FindBySubtask can resolve it.
func (t *Tracker) Create(record Record) {
	t.mu.Lock()
	defer t.mu.Unlock()

	parentKey := record.ReferenceCode.String()
	t.entries[parentKey] = &entry{record: record, results: make(map[string]envelope.MessageEnvelope)}
	for _, sub := range record.SubtaskReferenceCodes {
		t.children[sub.String()] = parentKey
	}
}

// FindBySubtask returns the workflow record owning subtaskRef, or false if
// subtaskRef is not a known subtask code (including the case where it is
// itself a parent code: the reverse index holds child codes only).
func (t *Tracker) FindBySubtask(subtaskRef envelope.ReferenceCode) (Record, bool) {
	t.mu.RLock()
	parentKey, ok := t.children[subtaskRef.String()]
	if !ok {
		t.mu.RUnlock()
		return Record{}, false
	}
	e, ok := t.entries[parentKey]
	t.mu.RUnlock()
	if !ok {
		return Record{}, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.record, true
}

// RecordResult stores env under subtaskRef within its parent workflow. It is
// a no-op if subtaskRef does not belong to a tracked workflow.
func (t *Tracker) RecordResult(subtaskRef envelope.ReferenceCode, env envelope.MessageEnvelope) {
	t.mu.RLock()
	parentKey, ok := t.children[subtaskRef.String()]
	if !ok {
		t.mu.RUnlock()
		return
	}
	e, ok := t.entries[parentKey]
	t.mu.RUnlock()
	if !ok {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.results[subtaskRef.String()] = env
}

// AllSubtasksComplete reports whether every subtask code of the workflow
// identified by parentRef has a recorded result.
func (t *Tracker) AllSubtasksComplete(parentRef envelope.ReferenceCode) bool {
	t.mu.RLock()
	e, ok := t.entries[parentRef.String()]
	t.mu.RUnlock()
	if !ok {
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, sub := range e.record.SubtaskReferenceCodes {
		if _, ok := e.results[sub.String()]; !ok {
			return false
		}
	}
	return true
}

// OrderedResults returns the recorded subtask results in the order
// SubtaskReferenceCodes were declared at Create time. A subtask with no
// recorded result yet is omitted.
func (t *Tracker) OrderedResults(parentRef envelope.ReferenceCode) []envelope.MessageEnvelope {
	t.mu.RLock()
	e, ok := t.entries[parentRef.String()]
	t.mu.RUnlock()
	if !ok {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]envelope.MessageEnvelope, 0, len(e.record.SubtaskReferenceCodes))
	for _, sub := range e.record.SubtaskReferenceCodes {
		if env, ok := e.results[sub.String()]; ok {
			out = append(out, env)
		}
	}
	return out
}

// MarkCompleted transitions the workflow to Completed, stamping completedAt.
func (t *Tracker) MarkCompleted(parentRef envelope.ReferenceCode, completedAt time.Time) {
	t.mu.RLock()
	e, ok := t.entries[parentRef.String()]
	t.mu.RUnlock()
	if !ok {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.record.Status = Completed
	stamp := completedAt
	e.record.CompletedAt = &stamp
}

// Get returns the current record for parentRef.
func (t *Tracker) Get(parentRef envelope.ReferenceCode) (Record, bool) {
	t.mu.RLock()
	e, ok := t.entries[parentRef.String()]
	t.mu.RUnlock()
	if !ok {
		return Record{}, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.record, true
}

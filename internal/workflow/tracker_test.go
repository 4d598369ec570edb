package workflow

import (
	"testing"
	"time"

	"github.com/cortexrt/cortex/internal/envelope"
)

func parentRef(t *testing.T, s string) envelope.ReferenceCode {
	t.Helper()
	r, err := envelope.ParseReferenceCode(s)
	if err != nil {
		t.Fatalf("ParseReferenceCode(%q): %v", s, err)
	}
	return r
}

func TestTracker_FindBySubtask_ResolvesChildNotParent(t *testing.T) {
	tr := NewTracker()
	parent := parentRef(t, "CTX-2026-0305-001")
	child1 := parentRef(t, "CTX-2026-0305-002")
	child2 := parentRef(t, "CTX-2026-0305-003")

	tr.Create(Record{
		ReferenceCode:         parent,
		SubtaskReferenceCodes: []envelope.ReferenceCode{child1, child2},
		Status:                InProgress,
	})

	if _, ok := tr.FindBySubtask(parent); ok {
		t.Error("expected FindBySubtask on a parent code to return false")
	}
	record, ok := tr.FindBySubtask(child1)
	if !ok {
		t.Fatal("expected FindBySubtask on a child code to succeed")
	}
	if record.ReferenceCode.String() != parent.String() {
		t.Errorf("resolved record = %v, want %v", record.ReferenceCode, parent)
	}
}

func TestTracker_AllSubtasksComplete(t *testing.T) {
	tr := NewTracker()
	parent := parentRef(t, "CTX-2026-0305-001")
	child1 := parentRef(t, "CTX-2026-0305-002")
	child2 := parentRef(t, "CTX-2026-0305-003")

	tr.Create(Record{
		ReferenceCode:         parent,
		SubtaskReferenceCodes: []envelope.ReferenceCode{child1, child2},
		Status:                InProgress,
	})

	if tr.AllSubtasksComplete(parent) {
		t.Error("expected incomplete workflow before any results")
	}

	tr.RecordResult(child1, envelope.MessageEnvelope{})
	if tr.AllSubtasksComplete(parent) {
		t.Error("expected incomplete workflow with one of two results")
	}

	tr.RecordResult(child2, envelope.MessageEnvelope{})
	if !tr.AllSubtasksComplete(parent) {
		t.Error("expected complete workflow once both results are in")
	}
}

func TestTracker_OrderedResults_FollowsDeclarationOrder(t *testing.T) {
	tr := NewTracker()
	parent := parentRef(t, "CTX-2026-0305-001")
	child1 := parentRef(t, "CTX-2026-0305-002")
	child2 := parentRef(t, "CTX-2026-0305-003")

	tr.Create(Record{
		ReferenceCode:         parent,
		SubtaskReferenceCodes: []envelope.ReferenceCode{child1, child2},
	})

	env1 := envelope.New(envelope.NewTextMessage("narrative", ""), child1, envelope.Context{})
	env2 := envelope.New(envelope.NewTextMessage("metrics", ""), child2, envelope.Context{})

	// Record out of declaration order to prove OrderedResults re-sorts.
	tr.RecordResult(child2, env2)
	tr.RecordResult(child1, env1)

	results := tr.OrderedResults(parent)
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}
	text, _ := results[0].Message.(envelope.TextContent).TextContent()
	if text != "narrative" {
		t.Errorf("results[0] text = %q, want narrative", text)
	}
}

func TestTracker_MarkCompleted_StampsCompletedAt(t *testing.T) {
	tr := NewTracker()
	parent := parentRef(t, "CTX-2026-0305-001")
	tr.Create(Record{ReferenceCode: parent, Status: InProgress})

	now := time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC)
	tr.MarkCompleted(parent, now)

	record, ok := tr.Get(parent)
	if !ok {
		t.Fatal("expected record to exist")
	}
	if record.Status != Completed {
		t.Errorf("Status = %v, want Completed", record.Status)
	}
	if record.CompletedAt == nil || !record.CompletedAt.Equal(now) {
		t.Errorf("CompletedAt = %v, want %v", record.CompletedAt, now)
	}
}

func TestNullTracker_AlwaysInert(t *testing.T) {
	var tr NullTracker
	ref := parentRef(t, "CTX-2026-0305-001")

	tr.Create(Record{ReferenceCode: ref})
	if _, ok := tr.FindBySubtask(ref); ok {
		t.Error("expected NullTracker.FindBySubtask to always return false")
	}
	if tr.AllSubtasksComplete(ref) {
		t.Error("expected NullTracker.AllSubtasksComplete to always return false")
	}
	if _, ok := tr.Get(ref); ok {
		t.Error("expected NullTracker.Get to always return false")
	}
}

func TestPendingPlanStore_TakeAndRemoveIsOneShot(t *testing.T) {
	s := NewPendingPlanStore()
	ref := parentRef(t, "CTX-2026-0305-001")
	s.Store(ref, PendingPlan{Decomposition: Decomposition{Summary: "ship it"}})

	plan, ok := s.TakeAndRemove(ref)
	if !ok || plan.Decomposition.Summary != "ship it" {
		t.Fatalf("TakeAndRemove = %v, %v", plan, ok)
	}

	if _, ok := s.TakeAndRemove(ref); ok {
		t.Error("expected second TakeAndRemove to fail")
	}
}

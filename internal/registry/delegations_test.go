package registry

import (
	"testing"
	"time"

	"github.com/cortexrt/cortex/internal/envelope"
)

func ref(t *testing.T, s string) envelope.ReferenceCode {
	t.Helper()
	r, err := envelope.ParseReferenceCode(s)
	if err != nil {
		t.Fatalf("ParseReferenceCode(%q): %v", s, err)
	}
	return r
}

func TestDelegationTracker_GetOverdue(t *testing.T) {
	tr := NewDelegationTracker()
	now := time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tr.Create(DelegationRecord{ReferenceCode: ref(t, "CTX-2026-0305-001"), Status: DelegationAssigned, DueAt: &past})
	tr.Create(DelegationRecord{ReferenceCode: ref(t, "CTX-2026-0305-002"), Status: DelegationAssigned, DueAt: &future})
	tr.Create(DelegationRecord{ReferenceCode: ref(t, "CTX-2026-0305-003"), Status: DelegationComplete, DueAt: &past})
	tr.Create(DelegationRecord{ReferenceCode: ref(t, "CTX-2026-0305-004"), Status: DelegationAssigned})

	overdue := tr.GetOverdue(now)
	if len(overdue) != 1 {
		t.Fatalf("len(overdue) = %d, want 1", len(overdue))
	}
	if overdue[0].ReferenceCode.String() != "CTX-2026-0305-001" {
		t.Errorf("overdue[0] = %v, want CTX-2026-0305-001", overdue[0].ReferenceCode)
	}
}

func TestDelegationTracker_UpdateStatus_StampsCompletedAt(t *testing.T) {
	tr := NewDelegationTracker()
	r := ref(t, "CTX-2026-0305-001")
	tr.Create(DelegationRecord{ReferenceCode: r, Status: DelegationAssigned})

	now := time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC)
	tr.UpdateStatus(r, DelegationComplete, now)

	record, ok := tr.Get(r)
	if !ok {
		t.Fatal("expected record to exist")
	}
	if record.Status != DelegationComplete {
		t.Errorf("Status = %v, want Complete", record.Status)
	}
	if record.CompletedAt == nil || !record.CompletedAt.Equal(now) {
		t.Errorf("CompletedAt = %v, want %v", record.CompletedAt, now)
	}
}

func TestRetryCounter_IncrementAndReset(t *testing.T) {
	c := NewRetryCounter()
	r := ref(t, "CTX-2026-0305-001")

	if got := c.Increment(r); got != 1 {
		t.Errorf("first Increment = %d, want 1", got)
	}
	if got := c.Increment(r); got != 2 {
		t.Errorf("second Increment = %d, want 2", got)
	}

	c.Reset(r)
	if got := c.Increment(r); got != 1 {
		t.Errorf("Increment after Reset = %d, want 1", got)
	}
}

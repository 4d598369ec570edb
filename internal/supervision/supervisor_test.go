package supervision

import (
	"context"
	"testing"
	"time"

	"github.com/cortexrt/cortex/internal/bus"
	"github.com/cortexrt/cortex/internal/envelope"
	"github.com/cortexrt/cortex/internal/registry"
)

func refCode(t *testing.T, s string) envelope.ReferenceCode {
	t.Helper()
	r, err := envelope.ParseReferenceCode(s)
	if err != nil {
		t.Fatalf("ParseReferenceCode(%q): %v", s, err)
	}
	return r
}

func subscribe(t *testing.T, b *bus.MemoryBus, queue string) <-chan envelope.MessageEnvelope {
	t.Helper()
	received := make(chan envelope.MessageEnvelope, 8)
	_, err := b.StartConsuming(context.Background(), queue, func(ctx context.Context, env envelope.MessageEnvelope) error {
		received <- env
		return nil
	})
	if err != nil {
		t.Fatalf("StartConsuming(%q): %v", queue, err)
	}
	return received
}

func await(t *testing.T, ch <-chan envelope.MessageEnvelope) envelope.MessageEnvelope {
	t.Helper()
	select {
	case env := <-ch:
		return env
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for envelope")
		return envelope.MessageEnvelope{}
	}
}

func newOverdueDelegation(t *testing.T, ref string, dueAt time.Time) registry.DelegationRecord {
	return registry.DelegationRecord{
		ReferenceCode: refCode(t, ref),
		DelegatedBy:   "cos",
		DelegatedTo:   "writer",
		Description:   "draft the doc",
		Status:        registry.DelegationAssigned,
		AssignedAt:    dueAt.Add(-time.Hour),
		DueAt:         &dueAt,
	}
}

func TestSupervisor_Tick_PublishesAlertUnderRetryBudget(t *testing.T) {
	b := bus.NewMemoryBus(nil)
	delegations := registry.NewDelegationTracker()
	retries := registry.NewRetryCounter()

	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	delegations.Create(newOverdueDelegation(t, "CTX-2026-0730-001", now.Add(-time.Hour)))

	s := New(Config{MaxRetries: 3}, b, delegations, retries, nil, func() time.Time { return now }, nil)

	alertCh := subscribe(t, b, "agent.cos")
	s.tick(context.Background())

	env := await(t, alertCh)
	alert, ok := env.Message.(*envelope.SupervisionAlert)
	if !ok {
		t.Fatalf("expected *envelope.SupervisionAlert, got %T", env.Message)
	}
	if alert.RetryCount != 1 {
		t.Errorf("RetryCount = %d, want 1", alert.RetryCount)
	}
	if !alert.IsAgentRunning {
		t.Error("expected IsAgentRunning = true when no runtime injected")
	}
}

func TestSupervisor_Tick_EscalatesAfterMaxRetries(t *testing.T) {
	b := bus.NewMemoryBus(nil)
	delegations := registry.NewDelegationTracker()
	retries := registry.NewRetryCounter()

	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	ref := refCode(t, "CTX-2026-0730-002")
	delegations.Create(newOverdueDelegation(t, "CTX-2026-0730-002", now.Add(-time.Hour)))

	s := New(Config{MaxRetries: 2}, b, delegations, retries, nil, func() time.Time { return now }, nil)

	alertCh := subscribe(t, b, "agent.cos")
	escalationCh := subscribe(t, b, "agent.founder")

	s.tick(context.Background())
	await(t, alertCh)
	s.tick(context.Background())
	await(t, alertCh)
	s.tick(context.Background())

	env := await(t, escalationCh)
	escalation, ok := env.Message.(*envelope.EscalationAlert)
	if !ok {
		t.Fatalf("expected *envelope.EscalationAlert, got %T", env.Message)
	}
	if escalation.ReferenceCode.String() != ref.String() {
		t.Errorf("ReferenceCode = %v, want %v", escalation.ReferenceCode, ref)
	}
	if escalation.Reason != "Max retries exceeded (2)" {
		t.Errorf("Reason = %q, want %q", escalation.Reason, "Max retries exceeded (2)")
	}
}

func TestSupervisor_Tick_SkipsDelegationsNotYetDue(t *testing.T) {
	b := bus.NewMemoryBus(nil)
	delegations := registry.NewDelegationTracker()
	retries := registry.NewRetryCounter()

	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	delegations.Create(newOverdueDelegation(t, "CTX-2026-0730-003", now.Add(time.Hour)))

	s := New(Config{}, b, delegations, retries, nil, func() time.Time { return now }, nil)

	alertCh := subscribe(t, b, "agent.cos")
	s.tick(context.Background())

	select {
	case env := <-alertCh:
		t.Fatalf("expected no alert for a not-yet-due delegation, got one with reference code %v", env.ReferenceCode)
	case <-time.After(50 * time.Millisecond):
	}
}

type fakeRunningAgents struct{ ids []string }

func (f fakeRunningAgents) RunningAgentIDs() []string { return f.ids }

func TestSupervisor_Tick_ReportsAgentRunningStateFromRuntime(t *testing.T) {
	b := bus.NewMemoryBus(nil)
	delegations := registry.NewDelegationTracker()
	retries := registry.NewRetryCounter()

	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	delegations.Create(newOverdueDelegation(t, "CTX-2026-0730-004", now.Add(-time.Hour)))

	s := New(Config{}, b, delegations, retries, fakeRunningAgents{ids: []string{"someone-else"}}, func() time.Time { return now }, nil)

	alertCh := subscribe(t, b, "agent.cos")
	s.tick(context.Background())

	env := await(t, alertCh)
	alert := env.Message.(*envelope.SupervisionAlert)
	if alert.IsAgentRunning {
		t.Error("expected IsAgentRunning = false when delegatedTo is absent from the running set")
	}
}

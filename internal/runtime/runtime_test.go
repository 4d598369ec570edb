package runtime

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cortexrt/cortex/internal/bus"
	"github.com/cortexrt/cortex/internal/envelope"
	"github.com/cortexrt/cortex/internal/registry"
)

type noopAgent struct{ id string }

func (a *noopAgent) AgentID() string                   { return a.id }
func (a *noopAgent) Name() string                      { return a.id }
func (a *noopAgent) Capabilities() []registry.Capability { return nil }
func (a *noopAgent) Process(ctx context.Context, env envelope.MessageEnvelope) (*envelope.MessageEnvelope, error) {
	return nil, nil
}

func TestRuntime_StartAgent_RejectsDuplicate(t *testing.T) {
	rt := New(bus.NewMemoryBus(nil), registry.NewAgentRegistry(), nil, nil)
	ctx := context.Background()

	if err := rt.StartAgent(ctx, &noopAgent{id: "a"}, ""); err != nil {
		t.Fatalf("first StartAgent: %v", err)
	}
	err := rt.StartAgent(ctx, &noopAgent{id: "a"}, "")
	if !errors.Is(err, ErrDuplicateAgent) {
		t.Fatalf("second StartAgent error = %v, want ErrDuplicateAgent", err)
	}
}

func TestRuntime_StopAgent_RemovesFromTeam(t *testing.T) {
	rt := New(bus.NewMemoryBus(nil), registry.NewAgentRegistry(), nil, nil)
	ctx := context.Background()

	if err := rt.StartAgent(ctx, &noopAgent{id: "a"}, "team1"); err != nil {
		t.Fatalf("StartAgent: %v", err)
	}
	if got := rt.GetTeamAgentIDs("team1"); len(got) != 1 || got[0] != "a" {
		t.Fatalf("GetTeamAgentIDs = %v, want [a]", got)
	}

	if err := rt.StopAgent(ctx, "a"); err != nil {
		t.Fatalf("StopAgent: %v", err)
	}
	if got := rt.GetTeamAgentIDs("team1"); len(got) != 0 {
		t.Errorf("GetTeamAgentIDs after stop = %v, want empty", got)
	}
}

func TestRuntime_StopAgent_NonRunningIsNoOp(t *testing.T) {
	rt := New(bus.NewMemoryBus(nil), registry.NewAgentRegistry(), nil, nil)
	if err := rt.StopAgent(context.Background(), "ghost"); err != nil {
		t.Fatalf("StopAgent on unknown agent should be a no-op, got %v", err)
	}
}

func TestRuntime_StopTeam_StopsEveryMemberAndRemovesTeam(t *testing.T) {
	rt := New(bus.NewMemoryBus(nil), registry.NewAgentRegistry(), nil, nil)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		if err := rt.StartAgent(ctx, &noopAgent{id: id}, "team1"); err != nil {
			t.Fatalf("StartAgent(%s): %v", id, err)
		}
	}

	if err := rt.StopTeam(ctx, "team1"); err != nil {
		t.Fatalf("StopTeam: %v", err)
	}
	if got := rt.GetTeamAgentIDs("team1"); len(got) != 0 {
		t.Errorf("GetTeamAgentIDs after StopTeam = %v, want empty", got)
	}
	if got := rt.RunningAgentIDs(); len(got) != 0 {
		t.Errorf("RunningAgentIDs after StopTeam = %v, want empty", got)
	}
}

func TestRuntime_Stop_StopsEverything(t *testing.T) {
	rt := New(bus.NewMemoryBus(nil), registry.NewAgentRegistry(), nil, nil)
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		if err := rt.StartAgent(ctx, &noopAgent{id: id}, ""); err != nil {
			t.Fatalf("StartAgent(%s): %v", id, err)
		}
	}

	done := make(chan error, 1)
	go func() { done <- rt.Stop(ctx) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Stop: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Stop did not return in time")
	}

	if got := rt.RunningAgentIDs(); len(got) != 0 {
		t.Errorf("RunningAgentIDs after Stop = %v, want empty", got)
	}
}

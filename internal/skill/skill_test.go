package skill

import (
	"context"
	"errors"
	"testing"

	"github.com/cortexrt/cortex/internal/envelope"
)

type recordingExecutor struct {
	results map[string]any
	errs    map[string]error
	calls   []string
}

func (e *recordingExecutor) Execute(ctx context.Context, definition Definition, parameters map[string]any) (any, error) {
	e.calls = append(e.calls, definition.SkillID)
	if err, ok := e.errs[definition.SkillID]; ok {
		return nil, err
	}
	return e.results[definition.SkillID], nil
}

func TestRunner_Run_ThreadsResultsForward(t *testing.T) {
	r := New(nil)
	r.RegisterSkill(Definition{SkillID: "first", ExecutorType: "recording"})
	r.RegisterSkill(Definition{SkillID: "second", ExecutorType: "recording"})

	executor := &recordingExecutor{results: map[string]any{"first": "alpha", "second": "beta"}}
	r.RegisterExecutor("recording", executor)

	ctx := r.Run(context.Background(), []string{"first", "second"}, envelope.MessageEnvelope{}, nil)

	if ctx.Results["first"] != "alpha" || ctx.Results["second"] != "beta" {
		t.Fatalf("Results = %v", ctx.Results)
	}
	if len(executor.calls) != 2 {
		t.Fatalf("expected 2 executor calls, got %d", len(executor.calls))
	}
}

func TestRunner_Run_SkipsUnknownSkillAndExecutor(t *testing.T) {
	r := New(nil)
	r.RegisterSkill(Definition{SkillID: "known", ExecutorType: "missing-executor"})

	ctx := r.Run(context.Background(), []string{"unknown-skill", "known"}, envelope.MessageEnvelope{}, nil)

	if len(ctx.Results) != 0 {
		t.Errorf("Results = %v, want empty (both skill and executor unresolved)", ctx.Results)
	}
}

func TestRunner_Run_FailedSkillLeavesNoResultButContinues(t *testing.T) {
	r := New(nil)
	r.RegisterSkill(Definition{SkillID: "fails", ExecutorType: "recording"})
	r.RegisterSkill(Definition{SkillID: "succeeds", ExecutorType: "recording"})

	executor := &recordingExecutor{
		results: map[string]any{"succeeds": "ok"},
		errs:    map[string]error{"fails": errors.New("boom")},
	}
	r.RegisterExecutor("recording", executor)

	ctx := r.Run(context.Background(), []string{"fails", "succeeds"}, envelope.MessageEnvelope{}, nil)

	if _, ok := ctx.Results["fails"]; ok {
		t.Error("expected no result slot for a failed skill")
	}
	if ctx.Results["succeeds"] != "ok" {
		t.Errorf("Results[succeeds] = %v, want ok", ctx.Results["succeeds"])
	}
}

// Package skill implements the skill pipeline runner (SPEC_FULL.md §4.6): a
// sequential executor over a named chain of skills, each dispatched to the
// executor registered for its executorType.
package skill

import (
	"context"
	"log/slog"

	"github.com/cortexrt/cortex/internal/envelope"
)

// Definition describes one skill: what it is, and which executor runs it.
type Definition struct {
	SkillID      string
	Name         string
	Description  string
	Category     string
	ExecutorType string
	Content      string
}

// Executor runs one skill invocation and returns its result value. The
// reference implementation is the LLM executor in package llm.
type Executor interface {
	Execute(ctx context.Context, definition Definition, parameters map[string]any) (any, error)
}

// Context is the per-invocation state threaded through a pipeline Run: the
// triggering envelope, caller-supplied parameters, and each skill's result
// as it completes.
type Context struct {
	Envelope   envelope.MessageEnvelope
	Parameters map[string]any
	Results    map[string]any
}

// Runner composes a registry of skill definitions with a set of executors
// keyed by executorType.
type Runner struct {
	definitions map[string]Definition
	executors   map[string]Executor
	logger      *slog.Logger
}

// New builds a Runner. logger defaults to slog.Default() if nil.
func New(logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		definitions: make(map[string]Definition),
		executors:   make(map[string]Executor),
		logger:      logger,
	}
}

// RegisterSkill adds or replaces a skill definition.
func (r *Runner) RegisterSkill(def Definition) {
	r.definitions[def.SkillID] = def
}

// RegisterExecutor adds or replaces the executor for executorType.
func (r *Runner) RegisterExecutor(executorType string, executor Executor) {
	r.executors[executorType] = executor
}

// Run invokes skillIDs in order against env, threading results forward. A
// skill whose definition or executor is missing is logged and skipped,
// leaving no entry in Results for later skills to key off. Execution never
// aborts on an individual skill's failure: the error is logged, and the
// skill's result slot is left absent.
func (r *Runner) Run(ctx context.Context, skillIDs []string, env envelope.MessageEnvelope, additionalParameters map[string]any) Context {
	pipelineCtx := Context{
		Envelope:   env,
		Parameters: additionalParameters,
		Results:    make(map[string]any),
	}
	if pipelineCtx.Parameters == nil {
		pipelineCtx.Parameters = make(map[string]any)
	}

	for _, skillID := range skillIDs {
		def, ok := r.definitions[skillID]
		if !ok {
			r.logger.WarnContext(ctx, "skipping unknown skill", "skillId", skillID)
			continue
		}
		executor, ok := r.executors[def.ExecutorType]
		if !ok {
			r.logger.WarnContext(ctx, "skipping skill with no registered executor", "skillId", skillID, "executorType", def.ExecutorType)
			continue
		}

		params := make(map[string]any, len(pipelineCtx.Parameters)+2)
		for k, v := range pipelineCtx.Parameters {
			params[k] = v
		}
		params["envelope"] = env
		params["results"] = pipelineCtx.Results

		result, err := executor.Execute(ctx, def, params)
		if err != nil {
			r.logger.WarnContext(ctx, "skill execution failed", "skillId", skillID, "error", err)
			continue
		}
		pipelineCtx.Results[skillID] = result
	}

	return pipelineCtx
}

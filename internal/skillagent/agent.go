package skillagent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cortexrt/cortex/internal/bus"
	"github.com/cortexrt/cortex/internal/envelope"
	"github.com/cortexrt/cortex/internal/registry"
	"github.com/cortexrt/cortex/internal/skill"
	"github.com/cortexrt/cortex/internal/workflow"
)

// Agent is the single type that drives every AI agent in the fleet. It
// publishes its own outbound envelopes directly on the bus rather than
// returning a reply for the harness to forward: its branches each target a
// different queue with bespoke reference codes and authority claims, which
// does not fit the harness's generic single-reply convention (see
// SPEC_FULL.md's harness §4.3 versus this component's §4.5). Process always
// returns (nil, nil) to the harness.
type Agent struct {
	persona Persona

	bus          bus.Bus
	registry     *registry.AgentRegistry
	delegations  *registry.DelegationTracker
	workflows    workflow.WorkflowTracker
	pendingPlans *workflow.PendingPlanStore
	refGen       *envelope.ReferenceCodeGenerator
	pipeline     *skill.Runner
	metrics      Metrics

	now    func() time.Time
	logger *slog.Logger
}

// Metrics is the skill-driven agent's optional observability sink;
// *observability.MetricsManager satisfies this.
type Metrics interface {
	IncrementEscalations(ctx context.Context, source string)
}

// Deps bundles Agent's collaborators so New has one parameter beyond the
// persona itself.
type Deps struct {
	Bus          bus.Bus
	Registry     *registry.AgentRegistry
	Delegations  *registry.DelegationTracker
	Workflows    workflow.WorkflowTracker
	PendingPlans *workflow.PendingPlanStore
	RefGen       *envelope.ReferenceCodeGenerator
	Pipeline     *skill.Runner
	Metrics      Metrics
	Now          func() time.Time
	Logger       *slog.Logger
}

func New(persona Persona, deps Deps) *Agent {
	if deps.Workflows == nil {
		deps.Workflows = workflow.NullTracker{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Agent{
		persona:      persona,
		bus:          deps.Bus,
		registry:     deps.Registry,
		delegations:  deps.Delegations,
		workflows:    deps.Workflows,
		pendingPlans: deps.PendingPlans,
		refGen:       deps.RefGen,
		pipeline:     deps.Pipeline,
		metrics:      deps.Metrics,
		now:          deps.Now,
		logger:       deps.Logger,
	}
}

func (a *Agent) AgentID() string                     { return a.persona.AgentID }
func (a *Agent) Name() string                        { return a.persona.Name }
func (a *Agent) Capabilities() []registry.Capability { return a.persona.Capabilities }
func (a *Agent) AgentType() registry.AgentType       { return a.persona.AgentType }

func (a *Agent) queueName() string { return "agent." + a.persona.AgentID }

// Process implements the three-branch dispatch of SPEC_FULL.md §4.5.
func (a *Agent) Process(ctx context.Context, env envelope.MessageEnvelope) (*envelope.MessageEnvelope, error) {
	if record, ok := a.workflows.FindBySubtask(env.ReferenceCode); ok {
		a.handleSubtaskReply(ctx, record, env)
		return nil, nil
	}

	if approval, ok := env.Message.(*envelope.PlanApprovalResponse); ok {
		a.handlePlanApproval(ctx, approval)
		return nil, nil
	}

	a.handleNewGoal(ctx, env)
	return nil, nil
}

// --- (A) Sub-task reply: workflow aggregation ---

func (a *Agent) handleSubtaskReply(ctx context.Context, record workflow.Record, reply envelope.MessageEnvelope) {
	a.workflows.RecordResult(reply.ReferenceCode, reply)
	a.delegations.UpdateStatus(reply.ReferenceCode, registry.DelegationComplete, a.now())

	if !a.workflows.AllSubtasksComplete(record.ReferenceCode) {
		return
	}

	var body strings.Builder
	body.WriteString(record.Summary)
	for _, result := range a.workflows.OrderedResults(record.ReferenceCode) {
		body.WriteString("\n\n## ")
		body.WriteString(result.ReferenceCode.String())
		body.WriteString("\n")
		body.WriteString(messageText(result.Message))
	}

	outboundContext := record.OriginalEnvelope.Context
	outboundContext.ParentMessageID = record.OriginalEnvelope.Message.MessageID()
	outboundContext.FromAgentID = a.persona.AgentID

	outbound := envelope.New(
		envelope.NewTextMessage(body.String(), record.OriginalEnvelope.Message.CorrelationID()),
		record.ReferenceCode,
		outboundContext,
	)

	target := record.OriginalEnvelope.Context.ReplyTo
	if err := a.bus.Publish(ctx, outbound, target); err != nil {
		a.logger.ErrorContext(ctx, "failed to publish aggregated workflow result", "workflow", record.ReferenceCode.String(), "error", err)
	}
	a.workflows.MarkCompleted(record.ReferenceCode, a.now())
}

// --- (B) Plan approval response ---

func (a *Agent) handlePlanApproval(ctx context.Context, approval *envelope.PlanApprovalResponse) {
	plan, ok := a.pendingPlans.TakeAndRemove(approval.WorkflowReferenceCode)
	if !ok {
		a.logger.WarnContext(ctx, "plan approval response for an unknown or already-resolved plan", "workflow", approval.WorkflowReferenceCode.String())
		return
	}

	if !approval.Approved {
		rejectionContext := plan.OriginalEnvelope.Context
		rejectionContext.FromAgentID = a.persona.AgentID
		rejectionContext.ParentMessageID = plan.OriginalEnvelope.Message.MessageID()

		rejection := envelope.New(
			envelope.NewTextMessage("Plan rejected: "+approval.RejectionReason, plan.OriginalEnvelope.Message.CorrelationID()),
			approval.WorkflowReferenceCode,
			rejectionContext,
		)
		if err := a.bus.Publish(ctx, rejection, plan.OriginalEnvelope.Context.ReplyTo); err != nil {
			a.logger.ErrorContext(ctx, "failed to publish plan rejection", "error", err)
		}
		return
	}

	a.routeDecomposition(ctx, plan.OriginalEnvelope, plan.Decomposition)
}

// --- (C) New goal: decomposition and routing ---

func (a *Agent) handleNewGoal(ctx context.Context, env envelope.MessageEnvelope) {
	result := a.pipeline.Run(ctx, a.persona.Pipeline, env, map[string]any{
		"messageContent":        messageText(env.Message),
		"availableCapabilities": a.registry.EnumerateAll(),
	})

	decomposition, ok := extractDecomposition(a.persona.Pipeline, result.Results)
	if !ok {
		a.escalate(ctx, env, "No decomposition result")
		return
	}
	if decomposition.Confidence < a.persona.effectiveConfidenceThreshold() {
		a.escalate(ctx, env, "Low confidence")
		return
	}
	if len(decomposition.Tasks) == 0 {
		a.escalate(ctx, env, "Empty task list")
		return
	}

	maxInbound := envelope.HighestTier(env.AuthorityClaims)
	if maxInbound >= envelope.AskMeFirst {
		a.storeAsPendingPlan(ctx, env, decomposition)
		return
	}

	a.routeDecomposition(ctx, env, decomposition)
}

func (a *Agent) storeAsPendingPlan(ctx context.Context, env envelope.MessageEnvelope, decomposition workflow.Decomposition) {
	parentRef, err := a.refGen.Generate()
	if err != nil {
		a.logger.ErrorContext(ctx, "failed to allocate reference code for pending plan", "error", err)
		return
	}

	a.pendingPlans.Store(parentRef, workflow.PendingPlan{
		OriginalEnvelope: env,
		Decomposition:    decomposition,
		StoredAt:         a.now(),
	})

	proposal := envelope.New(
		envelope.NewPlanProposal(decomposition.Summary, env.Context.OriginalGoal, decomposition.TaskDescriptions(), parentRef, env.Message.CorrelationID()),
		parentRef,
		envelope.Context{FromAgentID: a.persona.AgentID},
	)
	if err := a.bus.Publish(ctx, proposal, a.persona.EscalationTarget); err != nil {
		a.logger.ErrorContext(ctx, "failed to publish plan proposal", "error", err)
	}
}

// routeDecomposition dispatches an approved (or never-gated) decomposition:
// single task routes 1:1, multi-task fans out into a tracked workflow.
func (a *Agent) routeDecomposition(ctx context.Context, env envelope.MessageEnvelope, decomposition workflow.Decomposition) {
	maxInbound := envelope.HighestTier(env.AuthorityClaims)

	if len(decomposition.Tasks) == 1 {
		a.routeSingleTask(ctx, env, decomposition.Tasks[0], maxInbound)
		return
	}
	a.fanOutMultiTask(ctx, env, decomposition, maxInbound)
}

func (a *Agent) routeSingleTask(ctx context.Context, env envelope.MessageEnvelope, task workflow.DecompositionTask, maxInbound envelope.AuthorityTier) {
	candidates := a.registry.FindByCapability(task.Capability, a.persona.AgentID)
	if len(candidates) == 0 {
		a.escalate(ctx, env, fmt.Sprintf("Cannot decompose: no agent with capability %s", task.Capability))
		return
	}
	target := candidates[0]

	childRef, err := a.refGen.Generate()
	if err != nil {
		a.logger.ErrorContext(ctx, "failed to allocate reference code for delegation", "error", err)
		return
	}

	taskTier, _ := envelope.ParseTier(task.AuthorityTier)
	effectiveTier := envelope.EffectiveTier(taskTier, maxInbound)
	now := a.now()

	a.delegations.Create(registry.DelegationRecord{
		ReferenceCode: childRef,
		DelegatedBy:   a.persona.AgentID,
		DelegatedTo:   target.AgentID,
		Description:   task.Description,
		Status:        registry.DelegationAssigned,
		AssignedAt:    now,
	})

	childContext := env.Context
	childContext.ParentMessageID = env.Message.MessageID()
	childContext.FromAgentID = a.persona.AgentID

	outbound := envelope.New(
		envelope.NewTextMessage(task.Description, env.Message.CorrelationID()),
		childRef,
		childContext,
	).WithAuthorityClaims([]envelope.AuthorityClaim{{
		GrantedBy: a.persona.AgentID,
		GrantedTo: target.AgentID,
		Tier:      effectiveTier,
		GrantedAt: now,
	}})

	if err := a.bus.Publish(ctx, outbound, "agent."+target.AgentID); err != nil {
		a.logger.ErrorContext(ctx, "failed to publish single-task delegation", "error", err)
	}
}

func (a *Agent) fanOutMultiTask(ctx context.Context, env envelope.MessageEnvelope, decomposition workflow.Decomposition, maxInbound envelope.AuthorityTier) {
	targets := make([]registry.AgentRegistration, len(decomposition.Tasks))
	for i, task := range decomposition.Tasks {
		candidates := a.registry.FindByCapability(task.Capability, a.persona.AgentID)
		if len(candidates) == 0 {
			a.escalate(ctx, env, fmt.Sprintf("Cannot decompose: no agent with capability %s", task.Capability))
			return
		}
		targets[i] = candidates[0]
	}

	parentRef, err := a.refGen.Generate()
	if err != nil {
		a.logger.ErrorContext(ctx, "failed to allocate parent reference code", "error", err)
		return
	}

	now := a.now()
	childRefs := make([]envelope.ReferenceCode, len(decomposition.Tasks))

	for i, task := range decomposition.Tasks {
		childRef, err := a.refGen.Generate()
		if err != nil {
			a.logger.ErrorContext(ctx, "failed to allocate child reference code", "error", err)
			return
		}
		childRefs[i] = childRef
		target := targets[i]

		a.delegations.Create(registry.DelegationRecord{
			ReferenceCode: childRef,
			DelegatedBy:   a.persona.AgentID,
			DelegatedTo:   target.AgentID,
			Description:   task.Description,
			Status:        registry.DelegationAssigned,
			AssignedAt:    now,
		})

		taskTier, _ := envelope.ParseTier(task.AuthorityTier)
		effectiveTier := envelope.EffectiveTier(taskTier, maxInbound)

		childContext := env.Context
		childContext.ParentMessageID = env.Message.MessageID()
		childContext.FromAgentID = a.persona.AgentID
		childContext.ReplyTo = a.queueName()
		childContext.OriginalGoal = decomposition.Summary

		childEnv := envelope.New(
			envelope.NewTextMessage(task.Description, env.Message.CorrelationID()),
			childRef,
			childContext,
		).WithAuthorityClaims([]envelope.AuthorityClaim{{
			GrantedBy: a.persona.AgentID,
			GrantedTo: target.AgentID,
			Tier:      effectiveTier,
			GrantedAt: now,
		}})

		if err := a.bus.Publish(ctx, childEnv, "agent."+target.AgentID); err != nil {
			a.logger.ErrorContext(ctx, "failed to publish multi-task delegation", "task", task.Capability, "error", err)
		}
	}

	a.workflows.Create(workflow.Record{
		ReferenceCode:         parentRef,
		OriginalEnvelope:      env,
		SubtaskReferenceCodes: childRefs,
		Summary:               decomposition.Summary,
		Status:                workflow.InProgress,
		CreatedAt:             now,
	})
}

func (a *Agent) escalate(ctx context.Context, env envelope.MessageEnvelope, reason string) {
	ref, err := a.refGen.Generate()
	if err != nil {
		a.logger.ErrorContext(ctx, "failed to allocate reference code for escalation", "error", err)
		return
	}

	a.delegations.Create(registry.DelegationRecord{
		ReferenceCode: ref,
		DelegatedBy:   a.persona.AgentID,
		DelegatedTo:   a.persona.EscalationTarget,
		Description:   "Escalated: " + reason,
		Status:        registry.DelegationAssigned,
		AssignedAt:    a.now(),
	})

	outboundContext := env.Context
	outboundContext.ParentMessageID = env.Message.MessageID()
	outboundContext.FromAgentID = a.persona.AgentID

	outbound := env.WithReferenceCode(ref).WithContext(outboundContext)
	if err := a.bus.Publish(ctx, outbound, a.persona.EscalationTarget); err != nil {
		a.logger.ErrorContext(ctx, "failed to publish escalation", "reason", reason, "error", err)
		return
	}
	if a.metrics != nil {
		a.metrics.IncrementEscalations(ctx, a.persona.AgentID)
	}
}

// messageText flattens any message payload into a display string: its
// TextContent if it implements that interface, otherwise its %+v formatting.
func messageText(msg envelope.Message) string {
	if tc, ok := msg.(envelope.TextContent); ok {
		if text, ok := tc.TextContent(); ok {
			return text
		}
	}
	return fmt.Sprintf("%+v", msg)
}

// Package harness implements the agent harness (SPEC_FULL.md §4.3): it binds
// one agent to its inbox queue, gates inbound envelopes on authority, and
// routes the agent's reply back onto the bus.
package harness

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cortexrt/cortex/internal/authority"
	"github.com/cortexrt/cortex/internal/bus"
	"github.com/cortexrt/cortex/internal/envelope"
	"github.com/cortexrt/cortex/internal/registry"
)

// Agent is the interface a harness drives. Process returns nil when there is
// nothing to reply with.
type Agent interface {
	AgentID() string
	Name() string
	Capabilities() []registry.Capability
	Process(ctx context.Context, env envelope.MessageEnvelope) (*envelope.MessageEnvelope, error)
}

// CapabilityProvider optionally supplies an AgentType for the registration;
// an agent that does not implement it registers as AgentTypeUnknown.
type CapabilityProvider interface {
	AgentType() registry.AgentType
}

// AuthorityProvider is the harness's gate dependency. A nil AuthorityProvider
// field on Harness disables gating entirely (every envelope is allowed).
type AuthorityProvider interface {
	HasAuthority(agentID, action string, minTier envelope.AuthorityTier) bool
	GetClaim(agentID, action string) (envelope.AuthorityClaim, bool)
}

var _ AuthorityProvider = (*authority.Provider)(nil)

// Metrics is the harness's optional observability sink. A nil Metrics field
// on Harness disables instrumentation entirely; *observability.MetricsManager
// satisfies this.
type Metrics interface {
	IncrementEnvelopesProcessed(ctx context.Context, agentID string)
	IncrementAuthorityGateDrops(ctx context.Context, agentID string)
}

func queueName(agentID string) string {
	return "agent." + agentID
}

// Harness binds one Agent to its queue. Construct with New, start with
// Start, stop with Stop; a Harness is not reusable after Stop.
type Harness struct {
	agent     Agent
	bus       bus.Bus
	registry  *registry.AgentRegistry
	authority AuthorityProvider
	metrics   Metrics
	logger    *slog.Logger

	handle bus.ConsumerHandle
}

// New builds a harness. authorityProvider may be nil to disable the
// authority gate entirely.
func New(agent Agent, b bus.Bus, reg *registry.AgentRegistry, authorityProvider AuthorityProvider, logger *slog.Logger) *Harness {
	if logger == nil {
		logger = slog.Default()
	}
	return &Harness{agent: agent, bus: b, registry: reg, authority: authorityProvider, logger: logger}
}

// WithMetrics attaches an optional metrics sink, returning h for chaining.
func (h *Harness) WithMetrics(metrics Metrics) *Harness {
	h.metrics = metrics
	return h
}

// Start upserts the agent's registration and opens its consumer.
func (h *Harness) Start(ctx context.Context) error {
	agentType := registry.AgentTypeUnknown
	if provider, ok := h.agent.(CapabilityProvider); ok {
		agentType = provider.AgentType()
	}

	h.registry.Upsert(registry.AgentRegistration{
		AgentID:      h.agent.AgentID(),
		Name:         h.agent.Name(),
		AgentType:    agentType,
		Capabilities: h.agent.Capabilities(),
		RegisteredAt: time.Now(),
		IsAvailable:  true,
	})

	handle, err := h.bus.StartConsuming(ctx, queueName(h.agent.AgentID()), h.handleMessage)
	if err != nil {
		return fmt.Errorf("harness: start consuming for %s: %w", h.agent.AgentID(), err)
	}
	h.handle = handle

	h.logger.InfoContext(ctx, "harness started", "agentId", h.agent.AgentID())
	return nil
}

// Stop disposes this harness's consumer and marks the registration
// unavailable. It does not touch any other harness's consumer.
func (h *Harness) Stop(ctx context.Context) error {
	if h.handle != nil {
		if err := h.handle.Close(ctx); err != nil {
			return fmt.Errorf("harness: stop consuming for %s: %w", h.agent.AgentID(), err)
		}
	}
	h.registry.SetAvailable(h.agent.AgentID(), false)
	h.logger.InfoContext(ctx, "harness stopped", "agentId", h.agent.AgentID())
	return nil
}

func (h *Harness) handleMessage(ctx context.Context, env envelope.MessageEnvelope) error {
	if !h.passesAuthorityGate(ctx, env) {
		if h.metrics != nil {
			h.metrics.IncrementAuthorityGateDrops(ctx, h.agent.AgentID())
		}
		return nil
	}
	if h.metrics != nil {
		h.metrics.IncrementEnvelopesProcessed(ctx, h.agent.AgentID())
	}

	reply, err := h.agent.Process(ctx, env)
	if err != nil {
		return fmt.Errorf("harness: agent %s: %w", h.agent.AgentID(), err)
	}
	if reply == nil {
		return nil
	}
	if env.Context.ReplyTo == "" {
		h.logger.WarnContext(ctx, "dropping reply: inbound envelope has no replyTo target", "agentId", h.agent.AgentID())
		return nil
	}

	outbound := reply.AsReply(env, h.agent.AgentID())
	if err := h.bus.Publish(ctx, outbound, env.Context.ReplyTo); err != nil {
		return fmt.Errorf("harness: publish reply for %s: %w", h.agent.AgentID(), err)
	}
	return nil
}

// passesAuthorityGate implements SPEC_FULL.md §4.3 step 1. It never produces
// a reply on failure, only a dropped message and a warning log.
func (h *Harness) passesAuthorityGate(ctx context.Context, env envelope.MessageEnvelope) bool {
	if h.authority == nil || len(env.AuthorityClaims) == 0 {
		return true
	}

	now := time.Now()
	agentID := h.agent.AgentID()
	for _, claim := range env.AuthorityClaims {
		if claim.IsExpired(now) || claim.GrantedTo != agentID {
			h.logger.WarnContext(ctx, "dropping envelope that failed the authority gate",
				"agentId", agentID, "grantedTo", claim.GrantedTo)
			return false
		}
	}
	return true
}

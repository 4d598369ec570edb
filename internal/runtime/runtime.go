// Package runtime implements the agent runtime (SPEC_FULL.md §4.4): a
// process-wide service composing many harnesses, with dynamic start/stop and
// team membership.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/cortexrt/cortex/internal/authority"
	"github.com/cortexrt/cortex/internal/bus"
	"github.com/cortexrt/cortex/internal/harness"
	"github.com/cortexrt/cortex/internal/registry"
)

// ErrDuplicateAgent is returned by StartAgent when agentId is already
// running.
var ErrDuplicateAgent = errors.New("runtime: agent already running")

// Runtime composes harnesses for a fleet of agents sharing one bus and
// registry.
type Runtime struct {
	bus       bus.Bus
	registry  *registry.AgentRegistry
	authority harness.AuthorityProvider
	logger    *slog.Logger

	mu        sync.Mutex
	harnesses map[string]*harness.Harness
	teams     map[string]map[string]struct{}
}

// New builds a runtime. authorityProvider may be nil to disable the
// authority gate for every harness it starts.
func New(b bus.Bus, reg *registry.AgentRegistry, authorityProvider *authority.Provider, logger *slog.Logger) *Runtime {
	if logger == nil {
		logger = slog.Default()
	}
	var ap harness.AuthorityProvider
	if authorityProvider != nil {
		ap = authorityProvider
	}
	return &Runtime{
		bus:       b,
		registry:  reg,
		authority: ap,
		logger:    logger,
		harnesses: make(map[string]*harness.Harness),
		teams:     make(map[string]map[string]struct{}),
	}
}

// StartAll starts a harness for every startup agent, stopping on the first
// failure and leaving already-started harnesses running (the caller is
// expected to call Stop to unwind on a startup failure).
func (r *Runtime) StartAll(ctx context.Context, startupAgents []harness.Agent) error {
	for _, agent := range startupAgents {
		if err := r.StartAgent(ctx, agent, ""); err != nil {
			return err
		}
	}
	return nil
}

// StartAgent builds and starts a harness for agent, optionally adding it to
// teamId's membership set.
func (r *Runtime) StartAgent(ctx context.Context, agent harness.Agent, teamID string) error {
	r.mu.Lock()
	if _, exists := r.harnesses[agent.AgentID()]; exists {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateAgent, agent.AgentID())
	}
	h := harness.New(agent, r.bus, r.registry, r.authority, r.logger)
	r.harnesses[agent.AgentID()] = h
	if teamID != "" {
		members, ok := r.teams[teamID]
		if !ok {
			members = make(map[string]struct{})
			r.teams[teamID] = members
		}
		members[agent.AgentID()] = struct{}{}
	}
	r.mu.Unlock()

	if err := h.Start(ctx); err != nil {
		r.mu.Lock()
		delete(r.harnesses, agent.AgentID())
		r.mu.Unlock()
		return err
	}
	return nil
}

// StopAgent stops agentId's harness and removes it from every team it
// belonged to. Stopping a non-running agent is a no-op with a warning.
func (r *Runtime) StopAgent(ctx context.Context, agentID string) error {
	r.mu.Lock()
	h, ok := r.harnesses[agentID]
	if !ok {
		r.mu.Unlock()
		r.logger.WarnContext(ctx, "stop requested for an agent that is not running", "agentId", agentID)
		return nil
	}
	delete(r.harnesses, agentID)
	r.removeFromAllTeamsLocked(agentID)
	r.mu.Unlock()

	return h.Stop(ctx)
}

// removeFromAllTeamsLocked must be called with r.mu held. Team membership
// sets are rewritten rather than mutated in place by deletion.
func (r *Runtime) removeFromAllTeamsLocked(agentID string) {
	for teamID, members := range r.teams {
		if _, ok := members[agentID]; !ok {
			continue
		}
		rebuilt := make(map[string]struct{}, len(members)-1)
		for id := range members {
			if id != agentID {
				rebuilt[id] = struct{}{}
			}
		}
		r.teams[teamID] = rebuilt
	}
}

// GetTeamAgentIDs returns a snapshot of teamId's current membership.
func (r *Runtime) GetTeamAgentIDs(teamID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	members := r.teams[teamID]
	ids := make([]string, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	return ids
}

// StopTeam stops every member of teamId concurrently, one errgroup goroutine
// per member with no concurrency limit, then removes the team.
func (r *Runtime) StopTeam(ctx context.Context, teamID string) error {
	ids := r.GetTeamAgentIDs(teamID)

	g, gctx := errgroup.WithContext(ctx)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			return r.StopAgent(gctx, id)
		})
	}
	err := g.Wait()

	r.mu.Lock()
	delete(r.teams, teamID)
	r.mu.Unlock()

	return err
}

// RunningAgentIDs returns a snapshot of every agentId with a running
// harness.
func (r *Runtime) RunningAgentIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.harnesses))
	for id := range r.harnesses {
		ids = append(ids, id)
	}
	return ids
}

// Stop stops every running harness sequentially, so shutdown logs stay
// readable (SPEC_FULL.md §5). Team-wide stop remains the only concurrent
// stop path.
func (r *Runtime) Stop(ctx context.Context) error {
	r.mu.Lock()
	ids := make([]string, 0, len(r.harnesses))
	for id := range r.harnesses {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	var firstErr error
	for _, id := range ids {
		if err := r.StopAgent(ctx, id); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

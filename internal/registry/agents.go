// Package registry holds the concurrent-map stores the runtime composes:
// agent registrations, delegation records, and the supervision retry
// counter.
package registry

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// AgentType classifies who is behind an agentId.
type AgentType string

const (
	AgentTypeAI      AgentType = "ai"
	AgentTypeHuman   AgentType = "human"
	AgentTypeUnknown AgentType = "unknown"
)

// Capability is one named skill an agent advertises.
type Capability struct {
	Name        string
	Description string
	SkillIDs    []string
}

// AgentRegistration is the registry's record for one agent.
type AgentRegistration struct {
	AgentID      string
	Name         string
	AgentType    AgentType
	Capabilities []Capability
	RegisteredAt time.Time
	IsAvailable  bool
}

// AgentRegistry is a concurrent, keyed-by-agentId store. It persists across
// harness restarts: harness.Stop only flips IsAvailable, it never deletes.
type AgentRegistry struct {
	mu     sync.RWMutex
	agents map[string]AgentRegistration
}

func NewAgentRegistry() *AgentRegistry {
	return &AgentRegistry{agents: make(map[string]AgentRegistration)}
}

// Upsert inserts or replaces the registration for reg.AgentID.
func (r *AgentRegistry) Upsert(reg AgentRegistration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[reg.AgentID] = reg
}

// SetAvailable flips the IsAvailable flag for an existing registration. A
// registration for an unknown agentId is a no-op.
func (r *AgentRegistry) SetAvailable(agentID string, available bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if reg, ok := r.agents[agentID]; ok {
		reg.IsAvailable = available
		r.agents[agentID] = reg
	}
}

// Get returns the registration for agentID.
func (r *AgentRegistry) Get(agentID string) (AgentRegistration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.agents[agentID]
	return reg, ok
}

// FindByCapability returns every available agent (other than excludeAgentID)
// advertising a capability whose name matches (case-insensitively), sorted
// by agentId so callers that pick "the first" candidate (the skill-driven
// agent's routing step) get a stable choice across calls.
func (r *AgentRegistry) FindByCapability(capabilityName, excludeAgentID string) []AgentRegistration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	wanted := strings.ToLower(capabilityName)
	var matches []AgentRegistration
	for _, reg := range r.agents {
		if reg.AgentID == excludeAgentID || !reg.IsAvailable {
			continue
		}
		for _, c := range reg.Capabilities {
			if strings.ToLower(c.Name) == wanted {
				matches = append(matches, reg)
				break
			}
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].AgentID < matches[j].AgentID })
	return matches
}

// EnumerateAll returns the union of every registered agent's capability
// names, regardless of caller. Used by the LLM skill executor to build a
// complete capability prompt instead of the persona's own stubbed self-view
// (see SPEC_FULL.md §9 open question 1).
func (r *AgentRegistry) EnumerateAll() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{})
	var names []string
	for _, reg := range r.agents {
		for _, c := range reg.Capabilities {
			if _, ok := seen[c.Name]; !ok {
				seen[c.Name] = struct{}{}
				names = append(names, c.Name)
			}
		}
	}
	return names
}

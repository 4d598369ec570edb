// Package skillagent implements the skill-driven agent (SPEC_FULL.md §4.5):
// one type drives every AI agent, with behaviour supplied by a persona
// configuration and a skill pipeline. It is the hardest component in the
// runtime: it branches on sub-task aggregation, plan approval, and new-goal
// decomposition/routing, with an AskMeFirst gate and escalation on every
// failure mode.
package skillagent

import (
	"github.com/cortexrt/cortex/internal/registry"
)

// defaultConfidenceThreshold is used when a Persona is constructed with a
// zero ConfidenceThreshold.
const defaultConfidenceThreshold = 0.6

// Persona configures one skill-driven agent instance: its identity, the
// skills it runs on a new goal, and where it escalates work it cannot
// resolve itself.
type Persona struct {
	AgentID             string
	Name                string
	AgentType           registry.AgentType
	Capabilities        []registry.Capability
	Pipeline            []string
	EscalationTarget    string
	ModelTier           string
	ConfidenceThreshold float64
}

// effectiveConfidenceThreshold applies the §4.5 default of 0.6 when the
// persona did not set one.
func (p Persona) effectiveConfidenceThreshold() float64 {
	if p.ConfidenceThreshold == 0 {
		return defaultConfidenceThreshold
	}
	return p.ConfidenceThreshold
}

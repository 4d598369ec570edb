package workflow

import (
	"sync"
	"time"

	"github.com/cortexrt/cortex/internal/envelope"
)

// DecompositionTask is one task the pipeline proposed, carrying the
// authority tier it suggests for whoever is delegated the work.
type DecompositionTask struct {
	Capability    string
	Description   string
	AuthorityTier string
}

// Decomposition is the pipeline's proposed breakdown of a goal into one or
// more tasks. When the AskMeFirst gate fires it is held in a PendingPlan
// until a human approves or rejects it.
type Decomposition struct {
	Summary    string
	Confidence float64
	Tasks      []DecompositionTask
}

// TaskDescriptions projects Tasks down to the capability/description pairs a
// PlanProposal shows a human (authority tier is an internal routing detail).
func (d Decomposition) TaskDescriptions() []envelope.TaskDescription {
	out := make([]envelope.TaskDescription, len(d.Tasks))
	for i, task := range d.Tasks {
		out[i] = envelope.TaskDescription{Capability: task.Capability, Description: task.Description}
	}
	return out
}

// PendingPlan is the AskMeFirst gate's stored state: the envelope that
// triggered decomposition, the proposed decomposition itself, and when it was
// stored.
type PendingPlan struct {
	OriginalEnvelope envelope.MessageEnvelope
	Decomposition    Decomposition
	StoredAt         time.Time
}

// PendingPlanStore is a concurrent map keyed by the parent workflow reference
// code's string form.
type PendingPlanStore struct {
	mu    sync.Mutex
	plans map[string]PendingPlan
}

func NewPendingPlanStore() *PendingPlanStore {
	return &PendingPlanStore{plans: make(map[string]PendingPlan)}
}

// Store saves plan under workflowRef, overwriting any existing entry.
func (s *PendingPlanStore) Store(workflowRef envelope.ReferenceCode, plan PendingPlan) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plans[workflowRef.String()] = plan
}

// TakeAndRemove returns the pending plan for workflowRef and removes it, so a
// plan can only be approved or rejected once.
func (s *PendingPlanStore) TakeAndRemove(workflowRef envelope.ReferenceCode) (PendingPlan, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := workflowRef.String()
	plan, ok := s.plans[key]
	if ok {
		delete(s.plans, key)
	}
	return plan, ok
}

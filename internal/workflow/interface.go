package workflow

import (
	"time"

	"github.com/cortexrt/cortex/internal/envelope"
)

// WorkflowTracker is the dependency surface the skill-driven agent consumes.
// Tracker and NullTracker both satisfy it.
type WorkflowTracker interface {
	Create(record Record)
	FindBySubtask(subtaskRef envelope.ReferenceCode) (Record, bool)
	RecordResult(subtaskRef envelope.ReferenceCode, env envelope.MessageEnvelope)
	AllSubtasksComplete(parentRef envelope.ReferenceCode) bool
	OrderedResults(parentRef envelope.ReferenceCode) []envelope.MessageEnvelope
	MarkCompleted(parentRef envelope.ReferenceCode, completedAt time.Time)
	Get(parentRef envelope.ReferenceCode) (Record, bool)
}

var (
	_ WorkflowTracker = (*Tracker)(nil)
	_ WorkflowTracker = NullTracker{}
)

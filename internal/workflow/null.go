package workflow

import (
	"time"

	"github.com/cortexrt/cortex/internal/envelope"
)

// NullTracker is the optional-dependency stand-in for Tracker (SPEC_FULL.md
// §9, "Optional dependencies"): it always reports no workflow and nothing
// complete, and silently drops writes. Injecting it makes the skill-driven
// agent's aggregation branch automatically inert.
type NullTracker struct{}

func (NullTracker) Create(Record) {}

func (NullTracker) FindBySubtask(envelope.ReferenceCode) (Record, bool) {
	return Record{}, false
}

func (NullTracker) RecordResult(envelope.ReferenceCode, envelope.MessageEnvelope) {}

func (NullTracker) AllSubtasksComplete(envelope.ReferenceCode) bool { return false }

func (NullTracker) OrderedResults(envelope.ReferenceCode) []envelope.MessageEnvelope {
	return nil
}

func (NullTracker) MarkCompleted(envelope.ReferenceCode, time.Time) {}

func (NullTracker) Get(envelope.ReferenceCode) (Record, bool) {
	return Record{}, false
}

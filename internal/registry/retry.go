package registry

import (
	"sync"

	"github.com/cortexrt/cortex/internal/envelope"
)

// RetryCounter is a concurrent map from a reference code's string form to a
// retry count, used by the supervision service to decide when a delegation
// has exceeded its retry budget.
type RetryCounter struct {
	mu     sync.Mutex
	counts map[string]int
}

func NewRetryCounter() *RetryCounter {
	return &RetryCounter{counts: make(map[string]int)}
}

// Increment atomically bumps ref's count and returns the new value.
func (c *RetryCounter) Increment(ref envelope.ReferenceCode) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := ref.String()
	c.counts[key]++
	return c.counts[key]
}

// Reset removes ref's entry entirely.
func (c *RetryCounter) Reset(ref envelope.ReferenceCode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.counts, ref.String())
}

// Package bus defines the message bus abstraction every other Cortex
// component is built on: publish, per-consumer subscription, and topology
// introspection, with an in-memory reference implementation (memory.go) and
// an AMQP-backed implementation (amqp.go).
package bus

import (
	"context"

	"github.com/cortexrt/cortex/internal/envelope"
)

// Handler processes one envelope delivered to a consumer. A returned error
// is never retried by the bus itself: the in-memory variant logs and
// continues, the AMQP variant nacks the delivery to the dead-letter
// exchange. Retry policy belongs to the supervision service, not the bus.
type Handler func(ctx context.Context, env envelope.MessageEnvelope) error

// ConsumerHandle is a scoped resource returned by StartConsuming. Disposing
// it stops only the consumer it was issued for; it never affects other
// consumers on the same queue. Close is safe to call more than once.
type ConsumerHandle interface {
	Close(ctx context.Context) error
	QueueName() string
}

// Binding describes one consumer attached to a queue, as reported by
// GetTopology.
type Binding struct {
	QueueName  string
	RoutingKey string
	ChannelID  string
	AgentID    string
	Priority   envelope.Priority
}

// Bus is the core message transport abstraction. Implementations must be
// safe for concurrent use by multiple publishers and consumers.
type Bus interface {
	// Publish delivers env to every consumer currently bound to queueName.
	Publish(ctx context.Context, env envelope.MessageEnvelope, queueName string) error

	// StartConsuming registers handler against queueName and returns a
	// handle scoped to this one consumer.
	StartConsuming(ctx context.Context, queueName string, handler Handler) (ConsumerHandle, error)

	// StopAll disposes every handle created through this bus instance. It is
	// an administrative affordance, not a normal shutdown path for a single
	// agent (use the returned ConsumerHandle for that).
	StopAll(ctx context.Context) error

	// GetTopology returns the current set of consumer bindings.
	GetTopology() []Binding
}

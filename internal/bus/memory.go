package bus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/cortexrt/cortex/internal/envelope"
)

// busSystem tags spans/metrics emitted by MemoryBus, distinguishing them
// from AMQPBus's in a shared Tracer/Metrics backend.
const busSystem = "memory"

// deliveryTimeout bounds how long a delivery goroutine started by Publish
// waits for a slow consumer before giving up on that one delivery and
// logging a timeout, mirroring the teacher broker's per-subscriber send
// timeout. Publish itself does not wait.
const deliveryTimeout = 5 * time.Second

// subscriber is one registered consumer's mailbox.
type subscriber struct {
	id      string
	ch      chan envelope.MessageEnvelope
	handler Handler
	cancel  context.CancelFunc
	closed  atomic.Bool
	bus     *MemoryBus
	queue   string
}

func (s *subscriber) QueueName() string { return s.queue }

func (s *subscriber) Close(ctx context.Context) error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.cancel()
	s.bus.removeSubscriber(s.queue, s.id)
	return nil
}

// MemoryBus is the in-memory reference implementation: one buffered channel
// per consumer (64 slots), fan-out-per-writer across whatever consumers are
// attached to the queue when Publish runs (one delivery goroutine per
// consumer per publish), and per-consumer reader goroutines that ack
// (continue) past handler errors rather than dead-lettering them.
type MemoryBus struct {
	logger  *slog.Logger
	metrics Metrics
	tracer  Tracer

	mu          sync.RWMutex
	subscribers map[string][]*subscriber // queueName -> subscribers
}

// NewMemoryBus builds an empty in-memory bus. logger defaults to
// slog.Default() if nil.
func NewMemoryBus(logger *slog.Logger) *MemoryBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &MemoryBus{
		logger:      logger,
		subscribers: make(map[string][]*subscriber),
	}
}

// WithMetrics attaches a metrics sink; publish/consume activity records
// against it from then on. Returns b for chaining.
func (b *MemoryBus) WithMetrics(metrics Metrics) *MemoryBus {
	b.metrics = metrics
	return b
}

// WithTracer attaches a span tracer; publish/consume operations open spans
// against it from then on. Returns b for chaining.
func (b *MemoryBus) WithTracer(tracer Tracer) *MemoryBus {
	b.tracer = tracer
	return b
}

func (b *MemoryBus) Publish(ctx context.Context, env envelope.MessageEnvelope, queueName string) error {
	eventType := fmt.Sprintf("%T", env.Message)
	start := time.Now()

	if b.tracer != nil {
		var span trace.Span
		ctx, span = b.tracer.StartPublishSpan(ctx, busSystem, queueName, eventType)
		defer span.End()
		defer func() { b.tracer.SetSpanSuccess(span) }()
	}

	b.mu.RLock()
	targets := append([]*subscriber(nil), b.subscribers[queueName]...)
	b.mu.RUnlock()

	for _, sub := range targets {
		go b.deliver(ctx, sub, env)
	}

	if b.metrics != nil {
		b.metrics.IncrementEventsPublished(ctx, eventType, queueName)
		b.metrics.RecordBrokerPublishDuration(ctx, queueName, time.Since(start))
	}
	return nil
}

func (b *MemoryBus) deliver(ctx context.Context, sub *subscriber, env envelope.MessageEnvelope) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.ErrorContext(ctx, "recovered from panic while delivering envelope",
				"queue", sub.queue, "reference_code", env.ReferenceCode.String(), "panic", r)
		}
	}()

	select {
	case sub.ch <- env:
	case <-ctx.Done():
		b.logger.InfoContext(ctx, "context cancelled while delivering envelope",
			"queue", sub.queue, "reference_code", env.ReferenceCode.String())
	case <-time.After(deliveryTimeout):
		b.logger.WarnContext(ctx, "timeout delivering envelope to consumer",
			"queue", sub.queue, "reference_code", env.ReferenceCode.String())
	}
}

func (b *MemoryBus) StartConsuming(ctx context.Context, queueName string, handler Handler) (ConsumerHandle, error) {
	consumerCtx, cancel := context.WithCancel(ctx)

	sub := &subscriber{
		id:      uuid.NewString(),
		ch:      make(chan envelope.MessageEnvelope, 64),
		handler: handler,
		cancel:  cancel,
		bus:     b,
		queue:   queueName,
	}

	b.mu.Lock()
	b.subscribers[queueName] = append(b.subscribers[queueName], sub)
	b.mu.Unlock()

	go b.consume(consumerCtx, sub)

	return sub, nil
}

func (b *MemoryBus) consume(ctx context.Context, sub *subscriber) {
	for {
		select {
		case env := <-sub.ch:
			b.handleEnvelope(ctx, sub, env)
		case <-ctx.Done():
			return
		}
	}
}

func (b *MemoryBus) handleEnvelope(ctx context.Context, sub *subscriber, env envelope.MessageEnvelope) {
	eventType := fmt.Sprintf("%T", env.Message)
	start := time.Now()

	consumeCtx := ctx
	var span trace.Span
	if b.tracer != nil {
		consumeCtx, span = b.tracer.StartConsumeSpan(ctx, busSystem, sub.queue, eventType)
		defer span.End()
	}

	handlerStart := time.Now()
	err := sub.handler(consumeCtx, env)

	if b.metrics != nil {
		b.metrics.RecordEventProcessingDuration(ctx, eventType, sub.queue, time.Since(handlerStart))
		b.metrics.RecordBrokerConsumeDuration(ctx, sub.queue, time.Since(start))
		b.metrics.IncrementEventsProcessed(ctx, eventType, sub.queue, err == nil)
	}

	if err != nil {
		b.logger.ErrorContext(ctx, "handler returned error, continuing (in-memory bus acks regardless)",
			"queue", sub.queue, "reference_code", env.ReferenceCode.String(), "error", err)
		if b.metrics != nil {
			b.metrics.IncrementEventErrors(ctx, eventType, sub.queue, "handler_error")
		}
		if span != nil {
			b.tracer.RecordError(span, err)
		}
		return
	}
	if span != nil {
		b.tracer.SetSpanSuccess(span)
	}
}

func (b *MemoryBus) removeSubscriber(queueName, id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subscribers[queueName]
	kept := subs[:0]
	for _, s := range subs {
		if s.id != id {
			kept = append(kept, s)
		}
	}
	if len(kept) == 0 {
		delete(b.subscribers, queueName)
	} else {
		b.subscribers[queueName] = kept
	}
}

func (b *MemoryBus) StopAll(ctx context.Context) error {
	b.mu.RLock()
	var all []*subscriber
	for _, subs := range b.subscribers {
		all = append(all, subs...)
	}
	b.mu.RUnlock()

	for _, sub := range all {
		_ = sub.Close(ctx)
	}
	return nil
}

func (b *MemoryBus) GetTopology() []Binding {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var bindings []Binding
	for queue, subs := range b.subscribers {
		for _, s := range subs {
			bindings = append(bindings, Binding{
				QueueName:  queue,
				RoutingKey: "queue." + queue,
				ChannelID:  s.id,
			})
		}
	}
	return bindings
}

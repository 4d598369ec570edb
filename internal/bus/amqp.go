package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/cortexrt/cortex/internal/envelope"
)

const (
	messagesExchange  = "cortex.messages"
	deadLetterExchange = "cortex.deadletter"
	messageTypeHeader  = "cortex-message-type"

	// busSystemAMQP tags spans/metrics emitted by AMQPBus, distinguishing them
	// from MemoryBus's in a shared Tracer/Metrics backend.
	busSystemAMQP = "amqp"
)

// wireEnvelope is the JSON body shape published to the messages exchange.
// The concrete payload type travels out-of-band in the cortex-message-type
// header; Payload here is deferred decoding (json.RawMessage) until the
// header tells us which Go type to decode it into.
type wireEnvelope struct {
	ReferenceCode   string                    `json:"referenceCode"`
	AuthorityClaims []envelope.AuthorityClaim `json:"authorityClaims"`
	Context         envelope.Context          `json:"context"`
	Priority        envelope.Priority         `json:"priority"`
	Payload         json.RawMessage           `json:"payload"`
}

// AMQPBus is the broker-backed implementation described in §4.2b: a single
// durable topic exchange routes by "queue.<name>", a fanout exchange sinks
// dead letters, and every consumer owns one channel. Connection recovery is
// left to the amqp091-go client's reconnect notifications; callers that need
// resilience across a broker restart should rebuild the Bus from those
// notifications rather than expect this type to reconnect itself.
type AMQPBus struct {
	conn  *amqp.Connection
	pubCh *amqp.Channel
	codec *PayloadCodec

	logger  *slog.Logger
	metrics Metrics
	tracer  Tracer

	mu      sync.Mutex
	handles []*amqpConsumerHandle
}

// WithMetrics attaches a metrics sink; publish/consume activity records
// against it from then on. Returns b for chaining.
func (b *AMQPBus) WithMetrics(metrics Metrics) *AMQPBus {
	b.metrics = metrics
	return b
}

// WithTracer attaches a span tracer; publish/consume operations open spans
// against it from then on. Returns b for chaining.
func (b *AMQPBus) WithTracer(tracer Tracer) *AMQPBus {
	b.tracer = tracer
	return b
}

// DialAMQP connects to url and declares the topology §4.2b requires: the
// durable topic exchange and the durable dead-letter fanout exchange.
func DialAMQP(url string, codec *PayloadCodec, logger *slog.Logger) (*AMQPBus, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if codec == nil {
		codec = NewPayloadCodec()
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("bus: dial amqp: %w", err)
	}

	pubCh, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("bus: open publish channel: %w", err)
	}

	if err := declareTopology(pubCh); err != nil {
		pubCh.Close()
		conn.Close()
		return nil, err
	}

	return &AMQPBus{conn: conn, pubCh: pubCh, codec: codec, logger: logger}, nil
}

func declareTopology(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(messagesExchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return fmt.Errorf("bus: declare messages exchange: %w", err)
	}
	if err := ch.ExchangeDeclare(deadLetterExchange, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
		return fmt.Errorf("bus: declare deadletter exchange: %w", err)
	}
	return nil
}

func (b *AMQPBus) Publish(ctx context.Context, env envelope.MessageEnvelope, queueName string) error {
	start := time.Now()

	typeName, err := b.codec.Name(env.Message)
	if err != nil {
		return err
	}

	var span trace.Span
	if b.tracer != nil {
		ctx, span = b.tracer.StartPublishSpan(ctx, busSystemAMQP, queueName, typeName)
		defer span.End()
	}

	err = b.publish(ctx, env, queueName, typeName)

	if b.metrics != nil {
		b.metrics.RecordBrokerPublishDuration(ctx, queueName, time.Since(start))
		b.metrics.IncrementEventsPublished(ctx, typeName, queueName)
		if err != nil {
			b.metrics.IncrementBrokerConnectionErrors(ctx)
		}
	}
	if span != nil {
		if err != nil {
			b.tracer.RecordError(span, err)
		} else {
			b.tracer.SetSpanSuccess(span)
		}
	}
	return err
}

func (b *AMQPBus) publish(ctx context.Context, env envelope.MessageEnvelope, queueName, typeName string) error {
	payload, err := json.Marshal(env.Message)
	if err != nil {
		return fmt.Errorf("bus: marshal payload: %w", err)
	}

	body, err := json.Marshal(wireEnvelope{
		ReferenceCode:   env.ReferenceCode.String(),
		AuthorityClaims: env.AuthorityClaims,
		Context:         env.Context,
		Priority:        env.Priority,
		Payload:         payload,
	})
	if err != nil {
		return fmt.Errorf("bus: marshal envelope: %w", err)
	}

	return b.pubCh.PublishWithContext(ctx, messagesExchange, "queue."+queueName, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Headers:      amqp.Table{messageTypeHeader: typeName},
		Body:         body,
	})
}

// amqpConsumerHandle wraps the per-consumer channel and declared queue so
// Close can tear down exactly this consumer.
type amqpConsumerHandle struct {
	queue   string
	channel *amqp.Channel
	cancel  context.CancelFunc
	closed  sync.Once
}

func (h *amqpConsumerHandle) QueueName() string { return h.queue }

func (h *amqpConsumerHandle) Close(ctx context.Context) error {
	var err error
	h.closed.Do(func() {
		h.cancel()
		err = h.channel.Close()
	})
	return err
}

func (b *AMQPBus) StartConsuming(ctx context.Context, queueName string, handler Handler) (ConsumerHandle, error) {
	ch, err := b.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("bus: open consumer channel: %w", err)
	}

	_, err = ch.QueueDeclare(queueName, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange": deadLetterExchange,
	})
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("bus: declare queue %s: %w", queueName, err)
	}

	if err := ch.QueueBind(queueName, "queue."+queueName, messagesExchange, false, nil); err != nil {
		ch.Close()
		return nil, fmt.Errorf("bus: bind queue %s: %w", queueName, err)
	}

	consumerTag := "cortex-" + uuid.NewString()
	deliveries, err := ch.Consume(queueName, consumerTag, false, false, false, false, nil)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("bus: consume queue %s: %w", queueName, err)
	}

	consumerCtx, cancel := context.WithCancel(ctx)
	handle := &amqpConsumerHandle{queue: queueName, channel: ch, cancel: cancel}

	b.mu.Lock()
	b.handles = append(b.handles, handle)
	b.mu.Unlock()

	go b.consume(consumerCtx, deliveries, handler, queueName)

	return handle, nil
}

func (b *AMQPBus) consume(ctx context.Context, deliveries <-chan amqp.Delivery, handler Handler, queueName string) {
	for {
		select {
		case delivery, ok := <-deliveries:
			if !ok {
				return
			}
			b.handleDelivery(ctx, delivery, handler, queueName)
		case <-ctx.Done():
			return
		}
	}
}

func (b *AMQPBus) handleDelivery(ctx context.Context, delivery amqp.Delivery, handler Handler, queueName string) {
	start := time.Now()

	typeName, _ := delivery.Headers[messageTypeHeader].(string)
	if typeName == "" {
		b.logger.WarnContext(ctx, "missing cortex-message-type header, nacking to dead-letter", "queue", queueName)
		b.recordConsumeFailure(ctx, queueName, "unknown", "missing_type_header", start)
		delivery.Nack(false, false)
		return
	}

	var span trace.Span
	if b.tracer != nil {
		ctx, span = b.tracer.StartConsumeSpan(ctx, busSystemAMQP, queueName, typeName)
		defer span.End()
	}

	var wire wireEnvelope
	if err := json.Unmarshal(delivery.Body, &wire); err != nil {
		b.logger.WarnContext(ctx, "failed to decode envelope body, nacking to dead-letter", "queue", queueName, "error", err)
		b.failDelivery(ctx, span, queueName, typeName, "decode_envelope", err, start)
		delivery.Nack(false, false)
		return
	}

	payload, err := b.codec.Decode(typeName, wire.Payload)
	if err != nil {
		b.logger.WarnContext(ctx, "failed to resolve payload type, nacking to dead-letter", "queue", queueName, "type", typeName, "error", err)
		b.failDelivery(ctx, span, queueName, typeName, "decode_payload", err, start)
		delivery.Nack(false, false)
		return
	}

	ref, err := envelope.ParseReferenceCode(wire.ReferenceCode)
	if err != nil {
		b.logger.WarnContext(ctx, "malformed reference code, nacking to dead-letter", "queue", queueName, "error", err)
		b.failDelivery(ctx, span, queueName, typeName, "parse_reference_code", err, start)
		delivery.Nack(false, false)
		return
	}

	env := envelope.New(payload, ref, wire.Context).WithAuthorityClaims(wire.AuthorityClaims)
	env.Priority = wire.Priority

	handlerStart := time.Now()
	err = handler(ctx, env)
	if b.metrics != nil {
		b.metrics.RecordEventProcessingDuration(ctx, typeName, queueName, time.Since(handlerStart))
	}
	if err != nil {
		b.logger.ErrorContext(ctx, "handler failed, nacking to dead-letter", "queue", queueName, "reference_code", ref.String(), "error", err)
		b.failDelivery(ctx, span, queueName, typeName, "handler_error", err, start)
		delivery.Nack(false, false)
		return
	}

	if b.metrics != nil {
		b.metrics.RecordBrokerConsumeDuration(ctx, queueName, time.Since(start))
		b.metrics.IncrementEventsProcessed(ctx, typeName, queueName, true)
	}
	if span != nil {
		b.tracer.SetSpanSuccess(span)
	}
	delivery.Ack(false)
}

func (b *AMQPBus) failDelivery(ctx context.Context, span trace.Span, queueName, typeName, errorType string, err error, start time.Time) {
	if b.metrics != nil {
		b.metrics.RecordBrokerConsumeDuration(ctx, queueName, time.Since(start))
		b.metrics.IncrementEventsProcessed(ctx, typeName, queueName, false)
		b.metrics.IncrementEventErrors(ctx, typeName, queueName, errorType)
	}
	if span != nil {
		b.tracer.RecordError(span, err)
	}
}

func (b *AMQPBus) recordConsumeFailure(ctx context.Context, queueName, typeName, errorType string, start time.Time) {
	if b.metrics != nil {
		b.metrics.RecordBrokerConsumeDuration(ctx, queueName, time.Since(start))
		b.metrics.IncrementEventErrors(ctx, typeName, queueName, errorType)
	}
}

func (b *AMQPBus) StopAll(ctx context.Context) error {
	b.mu.Lock()
	handles := append([]*amqpConsumerHandle(nil), b.handles...)
	b.mu.Unlock()

	for _, h := range handles {
		_ = h.Close(ctx)
	}
	return nil
}

func (b *AMQPBus) GetTopology() []Binding {
	b.mu.Lock()
	defer b.mu.Unlock()

	bindings := make([]Binding, 0, len(b.handles))
	for _, h := range b.handles {
		bindings = append(bindings, Binding{QueueName: h.queue, RoutingKey: "queue." + h.queue})
	}
	return bindings
}

// Close tears down every consumer, the publish channel, and the connection.
func (b *AMQPBus) Close(ctx context.Context) error {
	_ = b.StopAll(ctx)
	_ = b.pubCh.Close()
	return b.conn.Close()
}

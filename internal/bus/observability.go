package bus

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// Metrics is the subset of *observability.MetricsManager a Bus needs to
// record publish/consume activity. Buses accept it as a narrow interface so
// tests can supply a stub without pulling in the metrics package.
type Metrics interface {
	IncrementEventsProcessed(ctx context.Context, eventType, source string, success bool)
	IncrementEventsPublished(ctx context.Context, eventType, destination string)
	IncrementEventErrors(ctx context.Context, eventType, source, errorType string)
	RecordEventProcessingDuration(ctx context.Context, eventType, source string, duration time.Duration)
	RecordBrokerPublishDuration(ctx context.Context, topic string, duration time.Duration)
	RecordBrokerConsumeDuration(ctx context.Context, topic string, duration time.Duration)
	IncrementBrokerConnectionErrors(ctx context.Context)
}

// Tracer is the subset of *observability.TraceManager a Bus needs to span
// publish/consume operations.
type Tracer interface {
	StartPublishSpan(ctx context.Context, system, destination, eventType string) (context.Context, trace.Span)
	StartConsumeSpan(ctx context.Context, system, source, eventType string) (context.Context, trace.Span)
	RecordError(span trace.Span, err error)
	SetSpanSuccess(span trace.Span)
}

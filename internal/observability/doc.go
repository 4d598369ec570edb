// Package observability provides tracing, metrics, structured logging, and
// health-check infrastructure shared by every Cortex binary.
//
// # Overview
//
// The package wraps OpenTelemetry with:
//   - Distributed tracing (OTLP exporter, typically to Jaeger)
//   - Metrics collection (Prometheus exporter)
//   - Structured logging (log/slog, trace-context aware)
//   - HTTP health check and metrics endpoints
//
// # Quick Start
//
//	config := observability.DefaultConfig("cortex-broker")
//	obs, err := observability.NewObservability(config)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer obs.Shutdown(context.Background())
//
//	logger := obs.Logger
//	tracer := obs.Tracer
//	meter := obs.Meter
//
// DefaultConfig reads CORTEX_OTLP_ENDPOINT, CORTEX_METRICS_PORT,
// CORTEX_SERVICE_VERSION, CORTEX_ENVIRONMENT, and CORTEX_LOG_LEVEL from the
// environment via internal/config.
//
// # Tracing
//
// TraceManager wraps a single trace.Tracer with helpers for the spans a
// message bus needs: one pair for publishing an envelope, one pair for
// consuming it.
//
//	traceManager := observability.NewTraceManager("cortex-broker")
//
//	ctx, span := traceManager.StartPublishSpan(ctx, "amqp", "agent.cos", "cortex.TextMessage")
//	defer span.End()
//	if err != nil {
//	    traceManager.RecordError(span, err)
//	} else {
//	    traceManager.SetSpanSuccess(span)
//	}
//
// The system argument ("memory" or "amqp") tags the messaging.system span
// attribute so both Bus implementations share one backend without losing
// which transport actually carried the envelope. internal/bus's MemoryBus
// and AMQPBus both accept a Tracer via WithTracer and call these methods
// from their Publish and consume paths.
//
// StartEventProcessingSpan, AddTaskAttributes, and AddTaskResult exist for
// callers that want a finer-grained span around the work a handler does
// after receiving an envelope, separate from the consume span itself.
//
// # Metrics
//
// MetricsManager registers a fixed set of counters and histograms against
// an otel metric.Meter.
//
//	metricsManager, err := observability.NewMetricsManager(obs.Meter)
//
// Bus metrics (via internal/bus's WithMetrics):
//   - events_processed_total, event_errors_total, events_published_total
//   - message_broker_publish_duration_seconds, message_broker_consume_duration_seconds
//   - message_broker_connection_errors_total
//
// Cortex runtime metrics (via internal/harness, internal/supervision,
// internal/skillagent):
//   - cortex_envelopes_processed_total
//   - cortex_authority_gate_drops_total
//   - cortex_escalations_total
//   - cortex_supervision_alerts_total
//
// System metrics, sampled on a periodic ticker in each cmd/ main:
//
//	metricsManager.UpdateSystemMetrics(ctx) // go_goroutines, go_memstats_alloc_bytes, process_resident_memory_bytes
//
// All metrics are exposed on the HealthServer's /metrics endpoint, on the
// health port (default :8080/metrics). Config.PrometheusPort is carried in
// the config but no listener is opened on it.
//
// # Structured Logging
//
//	logger.InfoContext(ctx, "envelope delivered", "agent_id", agentID, "reference_code", ref)
//
// LogLevel (DEBUG, INFO, WARN, ERROR) controls verbosity; DEBUG additionally
// mirrors output to stdout via CombinedHandler.
//
// # Health Checks
//
// See healthcheck.go: HealthServer exposes GET /health and GET /metrics.
//
//	health := observability.NewHealthServer(cfg.HealthPort, cfg.ServiceName, cfg.ServiceVersion)
//	health.AddChecker("bus", observability.NewBasicHealthChecker("bus", func(ctx context.Context) error {
//	    return nil
//	}))
//	go health.Start(ctx)
//	defer health.Shutdown(ctx)
//
// # Graceful Shutdown
//
// obs.Shutdown flushes pending spans and exports final metrics before the
// trace and meter providers close; call it with a bounded context on every
// exit path.
package observability

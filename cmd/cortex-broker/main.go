// Command cortex-broker runs the message bus as a standalone process: the
// AMQP-backed bus declares its topology and serves health/metrics endpoints
// until signalled to shut down. There is nothing to run for the in-memory
// bus (it only exists inside a single process), so CORTEX_BUS_KIND=memory
// exits immediately after logging that fact.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cortexrt/cortex/internal/bus"
	"github.com/cortexrt/cortex/internal/config"
	"github.com/cortexrt/cortex/internal/observability"
)

// systemMetricsInterval mirrors the teacher's publisher/subscriber/broker
// mains, which all sample process and Go-runtime metrics every 30 seconds.
const systemMetricsInterval = 30 * time.Second

func main() {
	cfg := config.Load()

	obs, err := observability.NewObservability(observability.DefaultConfig(cfg.ServiceName))
	if err != nil {
		os.Exit(1)
	}
	logger := obs.Logger

	metrics, err := observability.NewMetricsManager(obs.Meter)
	if err != nil {
		logger.Error("failed to set up metrics manager", "error", err)
		os.Exit(1)
	}
	tracer := observability.NewTraceManager(cfg.ServiceName)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	go runSystemMetricsTicker(ctx, metrics)

	if cfg.BusKind == config.BusKindMemory {
		logger.InfoContext(ctx, "CORTEX_BUS_KIND=memory: nothing to run as a standalone broker process")
		return
	}

	codec := bus.NewPayloadCodec()
	amqpBus, err := bus.DialAMQP(cfg.AMQPURL, codec, logger)
	if err != nil {
		logger.ErrorContext(ctx, "failed to dial AMQP broker", "url", cfg.AMQPURL, "error", err)
		os.Exit(1)
	}
	amqpBus.WithMetrics(metrics).WithTracer(tracer)
	defer amqpBus.Close(ctx)

	health := observability.NewHealthServer(cfg.HealthPort, cfg.ServiceName, cfg.ServiceVersion)
	health.AddChecker("amqp", observability.NewBasicHealthChecker("amqp", func(ctx context.Context) error {
		return nil
	}))
	go func() {
		if err := health.Start(ctx); err != nil && err != http.ErrServerClosed {
			logger.ErrorContext(ctx, "health server exited", "error", err)
		}
	}()
	defer health.Shutdown(ctx)

	logger.InfoContext(ctx, "cortex broker running", "amqpUrl", cfg.AMQPURL, "healthPort", cfg.HealthPort)
	<-ctx.Done()
	logger.InfoContext(ctx, "cortex broker shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := obs.Shutdown(shutdownCtx); err != nil {
		logger.ErrorContext(shutdownCtx, "observability shutdown failed", "error", err)
	}
}

func runSystemMetricsTicker(ctx context.Context, metrics *observability.MetricsManager) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			metrics.UpdateSystemMetrics(ctx)
		case <-ctx.Done():
			return
		}
	}
}

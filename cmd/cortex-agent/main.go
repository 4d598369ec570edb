// Command cortex-agent hosts one skill-driven agent persona inside a runtime,
// with its own authority provider, delegation tracker, and supervision
// service. CORTEX_AGENT_PERSONA selects which persona runs; it defaults to
// "cos", the Chief-of-Staff that decomposes incoming goals and fans them out
// to the rest of the fleet.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cortexrt/cortex/internal/authority"
	"github.com/cortexrt/cortex/internal/bus"
	"github.com/cortexrt/cortex/internal/config"
	"github.com/cortexrt/cortex/internal/envelope"
	"github.com/cortexrt/cortex/internal/harness"
	"github.com/cortexrt/cortex/internal/llm"
	"github.com/cortexrt/cortex/internal/observability"
	"github.com/cortexrt/cortex/internal/registry"
	"github.com/cortexrt/cortex/internal/runtime"
	"github.com/cortexrt/cortex/internal/skill"
	"github.com/cortexrt/cortex/internal/skillagent"
	"github.com/cortexrt/cortex/internal/supervision"
	"github.com/cortexrt/cortex/internal/workflow"
)

// systemMetricsInterval mirrors the teacher's publisher/subscriber/broker
// mains, which all sample process and Go-runtime metrics every 30 seconds.
const systemMetricsInterval = 30 * time.Second

// buildLLMClient selects the LLM backend via CORTEX_LLM_BACKEND: "genai"
// dials Google's Gemini models (Vertex AI when GCP_PROJECT is set, the
// Gemini Developer API otherwise), anything else (including unset) shells
// out to a local CLI in print mode.
func buildLLMClient(ctx context.Context) (llm.Client, error) {
	if os.Getenv("CORTEX_LLM_BACKEND") == "genai" {
		return llm.NewGenAIClient(ctx, llm.GenAIConfigFromEnv())
	}
	return llm.NewCLIClient("claude", []string{"--print"}, 60*time.Second), nil
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

// personaBuilders maps a persona name to the persona definition and the
// skill pipeline it runs. Only "cos" decomposes goals today; new personas
// are added here as the fleet grows.
var personaBuilders = map[string]func() (skillagent.Persona, []skill.Definition){
	"cos": func() (skillagent.Persona, []skill.Definition) {
		persona := skillagent.Persona{
			AgentID:             "cos",
			Name:                "Chief of Staff",
			AgentType:           registry.AgentTypeAI,
			EscalationTarget:    "agent.founder",
			Pipeline:            []string{"decompose"},
			ModelTier:           "default",
			ConfidenceThreshold: 0.6,
			Capabilities: []registry.Capability{
				{Name: "decomposition", Description: "Breaks a goal into delegatable subtasks", SkillIDs: []string{"decompose"}},
			},
		}
		skills := []skill.Definition{
			{
				SkillID:      "decompose",
				Name:         "Decompose goal",
				Description:  "Breaks an inbound goal into a summary, confidence score, and delegatable subtasks",
				Category:     "planning",
				ExecutorType: llm.ExecutorType,
			},
		}
		return persona, skills
	},
}

func main() {
	personaName := os.Getenv("CORTEX_AGENT_PERSONA")
	if personaName == "" {
		personaName = "cos"
	}
	build, ok := personaBuilders[personaName]
	if !ok {
		fmt.Fprintf(os.Stderr, "cortex-agent: unknown persona %q\n", personaName)
		os.Exit(1)
	}
	persona, skillDefs := build()

	cfg := config.Load()

	obs, err := observability.NewObservability(observability.DefaultConfig("cortex-agent-" + personaName))
	if err != nil {
		fmt.Fprintf(os.Stderr, "cortex-agent: failed to set up observability: %v\n", err)
		os.Exit(1)
	}
	logger := obs.Logger

	metrics, err := observability.NewMetricsManager(obs.Meter)
	if err != nil {
		logger.Error("failed to set up metrics manager", "error", err)
		os.Exit(1)
	}
	tracer := observability.NewTraceManager("cortex-agent-" + personaName)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	go runSystemMetricsTicker(ctx, metrics)

	var messageBus bus.Bus
	switch cfg.BusKind {
	case config.BusKindAMQP:
		amqpBus, err := bus.DialAMQP(cfg.AMQPURL, bus.NewPayloadCodec(), logger)
		if err != nil {
			logger.ErrorContext(ctx, "failed to dial AMQP bus", "url", cfg.AMQPURL, "error", err)
			os.Exit(1)
		}
		amqpBus.WithMetrics(metrics).WithTracer(tracer)
		defer amqpBus.Close(ctx)
		messageBus = amqpBus
	default:
		messageBus = bus.NewMemoryBus(logger).WithMetrics(metrics).WithTracer(tracer)
	}

	agentRegistry := registry.NewAgentRegistry()
	delegations := registry.NewDelegationTracker()
	retries := registry.NewRetryCounter()
	authorityProvider := authority.New(nil)
	workflows := workflow.NewTracker()
	pendingPlans := workflow.NewPendingPlanStore()

	loc := cfg.Location()
	refGen := envelope.NewReferenceCodeGenerator(func() time.Time { return time.Now().In(loc) })

	llmClient, err := buildLLMClient(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "failed to set up LLM client", "error", err)
		os.Exit(1)
	}

	skillRunner := skill.New(logger)
	for _, def := range skillDefs {
		skillRunner.RegisterSkill(def)
	}
	skillRunner.RegisterExecutor(llm.ExecutorType, llm.NewExecutor(llmClient))

	agent := skillagent.New(persona, skillagent.Deps{
		Bus:          messageBus,
		Registry:     agentRegistry,
		Delegations:  delegations,
		Workflows:    workflows,
		PendingPlans: pendingPlans,
		RefGen:       refGen,
		Pipeline:     skillRunner,
		Metrics:      metrics,
		Logger:       logger,
	})

	rt := runtime.New(messageBus, agentRegistry, authorityProvider, logger)
	if err := rt.StartAll(ctx, []harness.Agent{agent}); err != nil {
		logger.ErrorContext(ctx, "failed to start agent", "agentId", persona.AgentID, "error", err)
		os.Exit(1)
	}
	defer rt.Stop(ctx)

	supervisor := supervision.New(supervision.Config{
		CheckInterval:    cfg.SupervisionCheckInterval,
		MaxRetries:       cfg.SupervisionMaxRetries,
		AlertTarget:      cfg.SupervisionAlertTarget,
		EscalationTarget: cfg.SupervisionEscalationTarget,
	}, messageBus, delegations, retries, rt, nil, logger).WithMetrics(metrics)
	supervisor.Start(ctx)
	defer supervisor.Stop()

	health := observability.NewHealthServer(cfg.HealthPort, cfg.ServiceName, cfg.ServiceVersion)
	health.AddChecker("runtime", observability.NewBasicHealthChecker("runtime", func(ctx context.Context) error {
		return nil
	}))
	go func() {
		if err := health.Start(ctx); err != nil && err != http.ErrServerClosed {
			logger.ErrorContext(ctx, "health server exited", "error", err)
		}
	}()
	defer health.Shutdown(ctx)

	logger.InfoContext(ctx, "cortex agent running", "persona", persona.AgentID, "busKind", cfg.BusKind)
	<-ctx.Done()
	logger.InfoContext(ctx, "cortex agent shutting down", "persona", persona.AgentID)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := obs.Shutdown(shutdownCtx); err != nil {
		logger.ErrorContext(shutdownCtx, "observability shutdown failed", "error", err)
	}
}

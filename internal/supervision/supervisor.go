// Package supervision implements the supervision service (SPEC_FULL.md
// §4.10): a periodic timer that scans for overdue delegations and escalates
// them once their retry budget is exhausted.
package supervision

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cortexrt/cortex/internal/bus"
	"github.com/cortexrt/cortex/internal/envelope"
	"github.com/cortexrt/cortex/internal/registry"
)

const (
	defaultCheckInterval    = 60 * time.Second
	defaultMaxRetries       = 3
	defaultAlertTarget      = "agent.cos"
	defaultEscalationTarget = "agent.founder"
)

// RunningAgentChecker reports whether an agentId currently has a running
// harness. *runtime.Runtime satisfies this; Supervisor defaults
// isAgentRunning to true when none is injected.
type RunningAgentChecker interface {
	RunningAgentIDs() []string
}

// Config holds the supervisor's tunables. Zero values fall back to the
// §4.10 defaults.
type Config struct {
	CheckInterval    time.Duration
	MaxRetries       int
	AlertTarget      string
	EscalationTarget string
}

func (c Config) withDefaults() Config {
	if c.CheckInterval == 0 {
		c.CheckInterval = defaultCheckInterval
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = defaultMaxRetries
	}
	if c.AlertTarget == "" {
		c.AlertTarget = defaultAlertTarget
	}
	if c.EscalationTarget == "" {
		c.EscalationTarget = defaultEscalationTarget
	}
	return c
}

// Supervisor runs a periodic ticker over the delegation tracker, bumping
// retry counts for overdue work and publishing alerts or escalations.
type Supervisor struct {
	cfg Config

	bus          bus.Bus
	delegations  *registry.DelegationTracker
	retries      *registry.RetryCounter
	runningCheck RunningAgentChecker
	metrics      Metrics

	now    func() time.Time
	logger *slog.Logger

	ticker *time.Ticker
	done   chan struct{}
}

// Metrics is the supervisor's optional observability sink;
// *observability.MetricsManager satisfies this.
type Metrics interface {
	IncrementSupervisionAlerts(ctx context.Context)
	IncrementEscalations(ctx context.Context, source string)
}

// New builds a Supervisor. runningCheck may be nil, in which case every
// overdue delegation is reported as isAgentRunning=true. now defaults to
// time.Now, logger to slog.Default.
func New(cfg Config, b bus.Bus, delegations *registry.DelegationTracker, retries *registry.RetryCounter, runningCheck RunningAgentChecker, now func() time.Time, logger *slog.Logger) *Supervisor {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		cfg:          cfg.withDefaults(),
		bus:          b,
		delegations:  delegations,
		retries:      retries,
		runningCheck: runningCheck,
		now:          now,
		logger:       logger,
		ticker:       time.NewTicker(cfg.withDefaults().CheckInterval),
		done:         make(chan struct{}),
	}
}

// WithMetrics attaches an optional metrics sink, returning s for chaining.
func (s *Supervisor) WithMetrics(metrics Metrics) *Supervisor {
	s.metrics = metrics
	return s
}

// Start begins the supervision loop in a background goroutine.
func (s *Supervisor) Start(ctx context.Context) {
	go func() {
		defer s.ticker.Stop()
		for {
			select {
			case <-s.ticker.C:
				s.tick(ctx)
			case <-ctx.Done():
				return
			case <-s.done:
				return
			}
		}
	}()
}

// Stop signals the loop to exit. It does not block on the loop's exit; the
// loop observes done (or ctx.Done) on its own next iteration.
func (s *Supervisor) Stop() {
	close(s.done)
}

// tick runs one supervision pass. A panic inside is recovered and logged so
// one bad scan never kills the loop.
func (s *Supervisor) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.ErrorContext(ctx, "recovered from panic during supervision tick", "panic", r)
		}
	}()

	now := s.now()
	overdue := s.delegations.GetOverdue(now)

	runningIDs := s.runningAgentSet()

	for _, record := range overdue {
		n := s.retries.Increment(record.ReferenceCode)
		isAgentRunning := true
		if runningIDs != nil {
			_, isAgentRunning = runningIDs[record.DelegatedTo]
		}

		if n > s.cfg.MaxRetries {
			s.publishEscalation(ctx, record, n)
			continue
		}
		s.publishAlert(ctx, record, n, isAgentRunning)
	}
}

func (s *Supervisor) runningAgentSet() map[string]struct{} {
	if s.runningCheck == nil {
		return nil
	}
	ids := s.runningCheck.RunningAgentIDs()
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func (s *Supervisor) publishAlert(ctx context.Context, record registry.DelegationRecord, retryCount int, isAgentRunning bool) {
	var dueAt time.Time
	if record.DueAt != nil {
		dueAt = *record.DueAt
	}

	alert := envelope.New(
		envelope.NewSupervisionAlert(record.ReferenceCode, record.DelegatedTo, record.Description, retryCount, dueAt, isAgentRunning, ""),
		record.ReferenceCode,
		envelope.Context{FromAgentID: "supervision"},
	)
	if err := s.bus.Publish(ctx, alert, s.cfg.AlertTarget); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish supervision alert", "reference_code", record.ReferenceCode.String(), "error", err)
		return
	}
	if s.metrics != nil {
		s.metrics.IncrementSupervisionAlerts(ctx)
	}
}

func (s *Supervisor) publishEscalation(ctx context.Context, record registry.DelegationRecord, retryCount int) {
	reason := fmt.Sprintf("Max retries exceeded (%d)", s.cfg.MaxRetries)

	alert := envelope.New(
		envelope.NewEscalationAlert(record.ReferenceCode, record.DelegatedTo, record.Description, reason, ""),
		record.ReferenceCode,
		envelope.Context{FromAgentID: "supervision"},
	)
	if err := s.bus.Publish(ctx, alert, s.cfg.EscalationTarget); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish escalation alert", "reference_code", record.ReferenceCode.String(), "retry_count", retryCount, "error", err)
		return
	}
	if s.metrics != nil {
		s.metrics.IncrementEscalations(ctx, "supervision")
	}
}

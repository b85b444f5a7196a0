// Package guardian periodically probes services and restarts unhealthy ones
// under a bounded retry policy.
package guardian

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"llmvisor/internal/ledger"
	"llmvisor/internal/services"
	"llmvisor/pkg/types"
)

// States of the per-service restart machine.
const (
	StateUnknown    = "unknown"
	StateHealthy    = "healthy"
	StateUnhealthy  = "unhealthy"
	StateRestarting = "restarting"
	StateFailed     = "failed"
)

// History event kinds.
const (
	KindCheckFailed   = "check_failed"
	KindRestart       = "restart"
	KindRestartFailed = "restart_failed"
	KindRecovered     = "recovered"
	KindExhausted     = "exhausted"
	KindReset         = "reset"
)

// FailureThreshold is the number of consecutive failed probes that triggers
// a restart.
const FailureThreshold = 3

// DefaultInterval is the time between cycles.
const DefaultInterval = 30 * time.Second

// Controller is the part of the service graph the guardian drives.
// *services.Graph satisfies it.
type Controller interface {
	Services() []services.Service
	CheckHealth(ctx context.Context, id string) services.HealthResult
	RestartService(ctx context.Context, id string) (string, error)
	RestartPolicy() services.RestartPolicy
}

// Config configures a Guardian.
type Config struct {
	Services Controller
	// Alerts persists exhaustion alerts; nil keeps them in logs only.
	Alerts      ledger.Store
	Logger      zerolog.Logger
	Interval    time.Duration
	HistorySize int
	// Sleep waits for the backoff delay; defaults to a ctx-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
	Now   func() time.Time
}

type serviceState struct {
	state       string
	failures    int
	attempts    int
	lastCheck   time.Time
	lastDetail  string
	alertRaised bool
}

// Guardian runs the health loop.
type Guardian struct {
	svcs     Controller
	alerts   ledger.Store
	log      zerolog.Logger
	interval time.Duration
	sleep    func(ctx context.Context, d time.Duration) error
	now      func() time.Time
	history  *history
	running  atomic.Bool

	mu     sync.Mutex
	states map[string]*serviceState
}

var (
	restartsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llmvisor_guardian_restarts_total",
			Help: "Automatic service restarts by result.",
		},
		[]string{"service", "result"},
	)
	cyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "llmvisor_guardian_cycles_total",
			Help: "Completed guardian health cycles.",
		},
	)
	failedServices = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "llmvisor_guardian_failed_services",
			Help: "Services that exhausted their restart budget and await manual reset.",
		},
	)
)

func init() {
	prometheus.MustRegister(restartsTotal, cyclesTotal, failedServices)
}

func New(cfg Config) *Guardian {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleepCtx
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	g := &Guardian{
		svcs:     cfg.Services,
		alerts:   cfg.Alerts,
		log:      cfg.Logger,
		interval: cfg.Interval,
		sleep:    cfg.Sleep,
		now:      cfg.Now,
		history:  newHistory(cfg.HistorySize),
		states:   make(map[string]*serviceState),
	}
	for _, svc := range cfg.Services.Services() {
		if !svc.OnDemand {
			g.states[svc.ID] = &serviceState{state: StateUnknown}
		}
	}
	return g
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run executes a cycle immediately and then every interval until ctx ends.
func (g *Guardian) Run(ctx context.Context) {
	if !g.running.CompareAndSwap(false, true) {
		return
	}
	defer g.running.Store(false)
	g.log.Info().Dur("interval", g.interval).Int("services", len(g.states)).Msg("event=guardian_started")
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()
	for {
		g.RunCycle(ctx)
		select {
		case <-ctx.Done():
			g.log.Info().Msg("event=guardian_stopped")
			return
		case <-ticker.C:
		}
	}
}

// Running reports whether Run is active.
func (g *Guardian) Running() bool { return g.running.Load() }

// Interval returns the configured cycle interval.
func (g *Guardian) Interval() time.Duration { return g.interval }

// RunCycle probes every monitored service once and applies the restart
// policy. Safe to call directly from tests.
func (g *Guardian) RunCycle(ctx context.Context) {
	for _, svc := range g.svcs.Services() {
		if svc.OnDemand {
			continue
		}
		if ctx.Err() != nil {
			return
		}
		g.check(ctx, svc.ID)
	}
	cyclesTotal.Inc()
}

func (g *Guardian) check(ctx context.Context, id string) {
	h := g.svcs.CheckHealth(ctx, id)

	g.mu.Lock()
	st := g.stateLocked(id)
	st.lastCheck = g.now()
	st.lastDetail = h.Detail
	if st.state == StateFailed {
		g.mu.Unlock()
		return
	}
	if h.Healthy() {
		recovered := st.failures > 0 || st.attempts > 0
		st.state = StateHealthy
		st.failures = 0
		st.attempts = 0
		g.mu.Unlock()
		if recovered {
			g.record(id, KindRecovered, h.Detail)
			g.log.Info().Str("service", id).Msg("event=service_recovered")
		}
		return
	}

	st.state = StateUnhealthy
	st.failures++
	failures, attempts := st.failures, st.attempts
	policy := g.svcs.RestartPolicy()
	g.mu.Unlock()

	g.record(id, KindCheckFailed, fmt.Sprintf("%s (%d consecutive)", h.Detail, failures))
	g.log.Warn().Str("service", id).Str("status", h.Status).Str("detail", h.Detail).Int("failures", failures).Msg("event=health_check_failed")
	if failures < FailureThreshold {
		return
	}
	if attempts >= policy.MaxRetries {
		g.exhaust(ctx, id, attempts, policy)
		return
	}
	g.restart(ctx, id, attempts, policy)
}

func (g *Guardian) restart(ctx context.Context, id string, attempt int, policy services.RestartPolicy) {
	g.mu.Lock()
	st := g.stateLocked(id)
	st.state = StateRestarting
	st.attempts++
	n := st.attempts
	g.mu.Unlock()

	g.log.Warn().Str("service", id).Int("attempt", n).Int("max", policy.MaxRetries).Msg("event=service_restart")
	_, err := g.svcs.RestartService(ctx, id)
	if err != nil {
		restartsTotal.WithLabelValues(id, "error").Inc()
		g.record(id, KindRestartFailed, err.Error())
		g.log.Error().Err(err).Str("service", id).Int("attempt", n).Msg("event=service_restart_failed")
	} else {
		restartsTotal.WithLabelValues(id, "ok").Inc()
		g.record(id, KindRestart, fmt.Sprintf("attempt %d/%d", n, policy.MaxRetries))
	}

	delay := backoff(policy, attempt)
	_ = g.sleep(ctx, delay)

	g.mu.Lock()
	if st := g.stateLocked(id); st.state == StateRestarting {
		st.state = StateUnhealthy
	}
	g.mu.Unlock()
}

// backoff is retry_delay x multiplier^attempt, attempt counting from zero.
func backoff(p services.RestartPolicy, attempt int) time.Duration {
	mult := p.BackoffMultiplier
	if mult <= 0 {
		mult = 1
	}
	return time.Duration(float64(p.RetryDelay) * math.Pow(mult, float64(attempt)))
}

func (g *Guardian) exhaust(ctx context.Context, id string, attempts int, policy services.RestartPolicy) {
	g.mu.Lock()
	st := g.stateLocked(id)
	st.state = StateFailed
	raise := !st.alertRaised
	st.alertRaised = true
	g.mu.Unlock()
	g.updateFailedGauge()
	if !raise {
		return
	}

	msg := fmt.Sprintf("service %s still unhealthy after %d restart attempts; manual intervention required", id, attempts)
	g.record(id, KindExhausted, msg)
	if policy.AlertAfterExhaustion {
		g.log.Error().Str("service", id).Int("attempts", attempts).Msg("event=guardian_exhausted " + msg)
	} else {
		g.log.Warn().Str("service", id).Int("attempts", attempts).Msg("event=guardian_exhausted")
	}
	if g.alerts == nil {
		return
	}
	alert := types.Alert{
		ID:        uuid.NewString(),
		Service:   id,
		Kind:      types.AlertKindGuardianExhausted,
		Message:   msg,
		Attempts:  attempts,
		Timestamp: g.now(),
	}
	if err := g.alerts.AppendAlert(context.WithoutCancel(ctx), alert); err != nil {
		g.log.Error().Err(err).Str("service", id).Msg("event=alert_write_failed")
	}
}

func (g *Guardian) updateFailedGauge() {
	g.mu.Lock()
	n := 0
	for _, st := range g.states {
		if st.state == StateFailed {
			n++
		}
	}
	g.mu.Unlock()
	failedServices.Set(float64(n))
}

// notMonitoredError is returned by Reset for on-demand or unknown services.
type notMonitoredError struct{ id string }

func (e notMonitoredError) Error() string   { return fmt.Sprintf("service %q is not monitored", e.id) }
func (e notMonitoredError) StatusCode() int { return http.StatusNotFound }

// Reset clears FAILED and all counters for id so the guardian manages it
// again.
func (g *Guardian) Reset(id string) error {
	g.mu.Lock()
	st, ok := g.states[id]
	if !ok {
		g.mu.Unlock()
		return notMonitoredError{id: id}
	}
	*st = serviceState{state: StateUnknown}
	g.mu.Unlock()
	g.updateFailedGauge()
	g.record(id, KindReset, "manual reset")
	g.log.Info().Str("service", id).Msg("event=guardian_reset")
	return nil
}

// States returns the state machine view of every monitored service.
func (g *Guardian) States() []types.GuardianState {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]types.GuardianState, 0, len(g.states))
	for id, st := range g.states {
		gs := types.GuardianState{
			Service:             id,
			State:               st.state,
			ConsecutiveFailures: st.failures,
			RestartAttempts:     st.attempts,
			LastDetail:          st.lastDetail,
		}
		if !st.lastCheck.IsZero() {
			gs.LastCheck = st.lastCheck.Unix()
		}
		out = append(out, gs)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Service < out[j].Service })
	return out
}

// History returns recent guardian events, newest first.
func (g *Guardian) History() []types.GuardianEvent { return g.history.List() }

func (g *Guardian) stateLocked(id string) *serviceState {
	st, ok := g.states[id]
	if !ok {
		st = &serviceState{state: StateUnknown}
		g.states[id] = st
	}
	return st
}

func (g *Guardian) record(id, kind, detail string) {
	g.history.Add(types.GuardianEvent{Time: g.now().Unix(), Service: id, Kind: kind, Detail: detail})
}

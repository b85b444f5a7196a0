// Package boot starts the service graph phase by phase, waiting for each
// phase to turn healthy before moving on.
package boot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"llmvisor/internal/services"
	"llmvisor/pkg/types"
)

// Per-service outcomes.
const (
	OutcomeAlreadyRunning = services.OutcomeAlreadyRunning
	OutcomeStarted        = services.OutcomeStarted
	OutcomeTimeout        = "timeout"
	OutcomeFailed         = "failed"
	OutcomeSkipped        = "skipped"
)

// ActionPreloadModel loads a model into the backend once its service is up.
const ActionPreloadModel = "preload_model"

// Defaults.
const (
	DefaultPollInterval = 2 * time.Second
	DefaultPhaseTimeout = 60 * time.Second
)

// Graph is the part of the service graph the sequencer drives.
// *services.Graph satisfies it.
type Graph interface {
	BootPhases() []services.BootPhase
	Service(id string) (services.Service, bool)
	CheckHealth(ctx context.Context, id string) services.HealthResult
	StartService(ctx context.Context, id string) (string, error)
}

// Loader preloads models. *scheduler.Scheduler satisfies it.
type Loader interface {
	EnsureLoaded(ctx context.Context, model string) error
}

// Resolver maps logical model names to backend names. *registry.Registry
// satisfies it.
type Resolver interface {
	Resolve(name string) string
}

// Config configures a Sequencer.
type Config struct {
	Graph    Graph
	Loader   Loader
	Resolver Resolver
	Logger   zerolog.Logger
	// PollInterval is the health poll period while waiting for a phase.
	PollInterval time.Duration
	// HaltOnFailure stops the boot after a phase with a timeout or failure;
	// later phases are reported as skipped.
	HaltOnFailure bool
}

// Sequencer runs boot phases. Runs are serialized.
type Sequencer struct {
	cfg Config
	mu  sync.Mutex
}

func New(cfg Config) *Sequencer {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	return &Sequencer{cfg: cfg}
}

// Run boots every phase in order and reports per-service outcomes.
func (s *Sequencer) Run(ctx context.Context) types.BootReport {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	rep := types.BootReport{RunID: uuid.NewString(), StartedAt: start.Unix(), Errors: []string{}}
	log := s.cfg.Logger.With().Str("run_id", rep.RunID).Logger()
	log.Info().Int("phases", len(s.cfg.Graph.BootPhases())).Msg("event=boot_start")

	halted := false
	for _, phase := range s.cfg.Graph.BootPhases() {
		if halted || ctx.Err() != nil {
			rep.Phases = append(rep.Phases, skippedPhase(phase))
			continue
		}
		pr, errs := s.runPhase(ctx, phase, log)
		rep.Phases = append(rep.Phases, pr)
		rep.Errors = append(rep.Errors, errs...)
		if s.cfg.HaltOnFailure && phaseFailed(pr) {
			halted = true
			log.Warn().Int("phase", phase.Phase).Msg("event=boot_halted")
		}
	}

	rep.DurationMS = time.Since(start).Milliseconds()
	rep.OK = len(rep.Errors) == 0
	lvl := zerolog.InfoLevel
	if !rep.OK {
		lvl = zerolog.WarnLevel
	}
	log.WithLevel(lvl).Strs("errors", rep.Errors).Bool("ok", rep.OK).Int64("duration_ms", rep.DurationMS).Msg("event=boot_done")
	return rep
}

func skippedPhase(p services.BootPhase) types.BootPhaseReport {
	pr := types.BootPhaseReport{Phase: p.Phase, Name: p.Name}
	for _, id := range p.Services {
		pr.Services = append(pr.Services, types.BootServiceOutcome{Service: id, Outcome: OutcomeSkipped})
	}
	return pr
}

func phaseFailed(pr types.BootPhaseReport) bool {
	for _, o := range pr.Services {
		if o.Outcome == OutcomeTimeout || o.Outcome == OutcomeFailed {
			return true
		}
	}
	return false
}

func (s *Sequencer) runPhase(ctx context.Context, phase services.BootPhase, log zerolog.Logger) (types.BootPhaseReport, []string) {
	start := time.Now()
	timeout := phase.Timeout
	if timeout <= 0 {
		timeout = DefaultPhaseTimeout
	}
	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	log.Info().Int("phase", phase.Phase).Str("name", phase.Name).Strs("services", phase.Services).Msg("event=phase_start")

	inPhase := make(map[string]bool, len(phase.Services))
	for _, id := range phase.Services {
		inPhase[id] = true
	}
	outcomes := make([]types.BootServiceOutcome, len(phase.Services))
	errs := make([][]string, len(phase.Services))
	var wg sync.WaitGroup
	for i, id := range phase.Services {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			outcomes[i], errs[i] = s.bootService(ctx, pctx, id, inPhase, timeout, log)
		}(i, id)
	}
	wg.Wait()

	var flat []string
	for _, e := range errs {
		flat = append(flat, e...)
	}
	pr := types.BootPhaseReport{
		Phase:      phase.Phase,
		Name:       phase.Name,
		Services:   outcomes,
		DurationMS: time.Since(start).Milliseconds(),
	}
	log.Info().Int("phase", phase.Phase).Int64("duration_ms", pr.DurationMS).Msg("event=phase_done")
	return pr, flat
}

// bootService starts one service and waits for it within the phase deadline.
// Dependencies booting in the same phase are waited for first. Post-start
// actions use the parent ctx so a model preload is not cut short by the phase
// timer.
func (s *Sequencer) bootService(ctx, pctx context.Context, id string, inPhase map[string]bool, timeout time.Duration, log zerolog.Logger) (types.BootServiceOutcome, []string) {
	out := types.BootServiceOutcome{Service: id}
	if s.cfg.Graph.CheckHealth(pctx, id).Healthy() {
		out.Outcome = OutcomeAlreadyRunning
		return out, s.postStart(ctx, id, log)
	}

	if dep, h, ok := s.waitForDeps(pctx, id, inPhase); !ok {
		out.Outcome = OutcomeTimeout
		out.Detail = fmt.Sprintf("dependency %s is %s", dep, h.Status)
		log.Warn().Str("service", id).Str("dependency", dep).Dur("timeout", timeout).Msg("event=boot_dependency_timeout")
		return out, []string{fmt.Sprintf("%s: dependency %s not healthy after %s", id, dep, timeout)}
	}

	res, err := s.cfg.Graph.StartService(pctx, id)
	if err != nil {
		out.Outcome = OutcomeFailed
		out.Detail = err.Error()
		log.Error().Err(err).Str("service", id).Msg("event=boot_start_failed")
		return out, []string{fmt.Sprintf("%s: %v", id, err)}
	}
	if res == services.OutcomeAlreadyRunning {
		out.Outcome = OutcomeAlreadyRunning
		return out, s.postStart(ctx, id, log)
	}

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()
	for {
		h := s.cfg.Graph.CheckHealth(pctx, id)
		if h.Healthy() {
			out.Outcome = OutcomeStarted
			log.Info().Str("service", id).Msg("event=boot_service_healthy")
			return out, s.postStart(ctx, id, log)
		}
		select {
		case <-pctx.Done():
			out.Outcome = OutcomeTimeout
			out.Detail = h.Detail
			log.Warn().Str("service", id).Dur("timeout", timeout).Msg("event=boot_service_timeout")
			return out, []string{fmt.Sprintf("%s: not healthy after %s", id, timeout)}
		case <-ticker.C:
		}
	}
}

// waitForDeps polls the dependencies of id that boot in the same phase until
// each is healthy. It reports the first dependency still unhealthy when pctx
// expires.
func (s *Sequencer) waitForDeps(pctx context.Context, id string, inPhase map[string]bool) (string, services.HealthResult, bool) {
	svc, ok := s.cfg.Graph.Service(id)
	if !ok {
		return "", services.HealthResult{}, true
	}
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()
	for _, dep := range svc.DependsOn {
		if !inPhase[dep] || dep == id {
			continue
		}
		for {
			h := s.cfg.Graph.CheckHealth(pctx, dep)
			if h.Healthy() {
				break
			}
			select {
			case <-pctx.Done():
				return dep, h, false
			case <-ticker.C:
			}
		}
	}
	return "", services.HealthResult{}, true
}

func (s *Sequencer) postStart(ctx context.Context, id string, log zerolog.Logger) []string {
	svc, ok := s.cfg.Graph.Service(id)
	if !ok {
		return nil
	}
	var errs []string
	for _, a := range svc.PostStart {
		switch a.Action {
		case ActionPreloadModel:
			if s.cfg.Loader == nil {
				continue
			}
			model := a.Model
			if s.cfg.Resolver != nil {
				model = s.cfg.Resolver.Resolve(model)
			}
			if err := s.cfg.Loader.EnsureLoaded(ctx, model); err != nil {
				errs = append(errs, fmt.Sprintf("%s: preload %s: %v", id, model, err))
				log.Error().Err(err).Str("service", id).Str("model", model).Msg("event=preload_failed")
				continue
			}
			log.Info().Str("service", id).Str("model", model).Msg("event=preload_ok")
		default:
			errs = append(errs, fmt.Sprintf("%s: unknown post_start action %q", id, a.Action))
		}
	}
	return errs
}

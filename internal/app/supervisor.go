// Package app wires the registry, scheduler, router, service graph, guardian
// and boot sequencer into one Supervisor that the HTTP layer and CLI drive.
package app

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"llmvisor/internal/boot"
	"llmvisor/internal/cloud"
	"llmvisor/internal/config"
	"llmvisor/internal/gpu"
	"llmvisor/internal/guardian"
	"llmvisor/internal/ledger"
	"llmvisor/internal/ollama"
	"llmvisor/internal/registry"
	"llmvisor/internal/router"
	"llmvisor/internal/scheduler"
	"llmvisor/internal/services"
)

// Config file base names looked up in the config directory.
const (
	ModelsFile   = "models"
	ServicesFile = "services"
	SettingsFile = "llmvisor"
)

// Options configures New.
type Options struct {
	ConfigDir string
	// Settings, when non-nil, replaces the settings file.
	Settings *config.Settings
	Logger   zerolog.Logger
	// Probe overrides the nvidia-smi probe; tests inject fakes.
	Probe gpu.Prober
	// Providers overrides the cloud provider set.
	Providers map[string]cloud.Provider
	Getenv    func(string) string
}

// Supervisor owns every long-lived component.
type Supervisor struct {
	Settings  config.Settings
	Registry  *registry.Registry
	Ollama    *ollama.Client
	Scheduler *scheduler.Scheduler
	Ledger    ledger.Store
	Cloud     *cloud.Fallback
	Router    *router.Router
	Graph     *services.Graph
	Guardian  *guardian.Guardian
	Boot      *boot.Sequencer

	passthrough http.Handler
	events      *scheduler.MemoryPublisher
	log         zerolog.Logger
	started     time.Time
	ready       atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// LoadSettings resolves the settings file in dir and applies defaults.
func LoadSettings(dir string) (config.Settings, error) {
	return config.LoadSettings(config.FindFile(dir, SettingsFile))
}

// New loads configuration from opts.ConfigDir and builds every component.
// Malformed configuration is fatal; unreachable dependencies are not.
func New(opts Options) (*Supervisor, error) {
	var st config.Settings
	if opts.Settings != nil {
		st = opts.Settings.WithDefaults()
	} else {
		var err error
		if st, err = LoadSettings(opts.ConfigDir); err != nil {
			return nil, err
		}
	}
	log := opts.Logger

	reg, err := registry.Load(config.FindFile(opts.ConfigDir, ModelsFile))
	if err != nil {
		return nil, err
	}
	graph, err := services.Load(config.FindFile(opts.ConfigDir, ServicesFile), services.Options{
		Logger: log.With().Str("component", "services").Logger(),
	})
	if err != nil {
		return nil, err
	}
	store, err := ledger.Open(st.Ledger, st.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}

	oc := ollama.New(st.OllamaURL)
	pt, err := router.NewPassthrough(st.OllamaURL, log.With().Str("component", "passthrough").Logger())
	if err != nil {
		_ = store.Close()
		return nil, config.Errorf("", "ollama_url: %v", err)
	}
	probe := opts.Probe
	if probe == nil {
		probe = gpu.NvidiaSMI{}
	}
	events := scheduler.NewMemoryPublisher(scheduler.DefaultEventLimit)
	sched := scheduler.New(scheduler.Config{
		Registry:  reg,
		Backend:   oc,
		Probe:     probe,
		Publisher: events,
		Logger:    log.With().Str("component", "scheduler").Logger(),
	})

	providers := opts.Providers
	if providers == nil {
		providers = cloud.DefaultProviders(&http.Client{})
	}
	fb := cloud.New(cloud.Config{
		Registry:  reg,
		Providers: providers,
		Ledger:    store,
		Logger:    log.With().Str("component", "cloud").Logger(),
		Timeout:   time.Duration(st.Router.CloudTimeoutSeconds) * time.Second,
		Getenv:    opts.Getenv,
	})
	rt := router.New(router.Config{
		Registry:     reg,
		Backend:      oc,
		Loader:       sched,
		Cloud:        fb,
		Logger:       log.With().Str("component", "router").Logger(),
		Attempts:     st.Router.LocalAttempts,
		RetryDelay:   config.Seconds(st.Router.RetryDelaySeconds),
		LocalTimeout: time.Duration(st.Router.LocalTimeoutSeconds) * time.Second,
		EmbedTimeout: time.Duration(st.Router.EmbedTimeoutSeconds) * time.Second,
		Window:       st.Router.LatencyWindow,
	})
	gd := guardian.New(guardian.Config{
		Services: graph,
		Alerts:   store,
		Logger:   log.With().Str("component", "guardian").Logger(),
		Interval: time.Duration(st.GuardianIntervalSeconds) * time.Second,
	})
	seq := boot.New(boot.Config{
		Graph:         graph,
		Loader:        sched,
		Resolver:      reg,
		Logger:        log.With().Str("component", "boot").Logger(),
		PollInterval:  config.Seconds(st.Boot.PollIntervalSeconds),
		HaltOnFailure: st.Boot.HaltOnFailure,
	})

	return &Supervisor{
		Settings:  st,
		Registry:  reg,
		Ollama:    oc,
		Scheduler: sched,
		Ledger:    store,
		Cloud:     fb,
		Router:    rt,
		Graph:     graph,
		Guardian:  gd,
		Boot:      seq,

		passthrough: pt,
		events:      events,
		log:         log,
		started:     time.Now(),
	}, nil
}

// Start adopts models already resident in the backend and launches the
// guardian loop. It returns immediately.
func (s *Supervisor) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	if err := s.Scheduler.Reconcile(ctx); err != nil {
		s.log.Warn().Err(err).Msg("event=reconcile_failed")
	}
	gctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		s.Guardian.Run(gctx)
	}()
	s.ready.Store(true)
}

// Passthrough forwards backend endpoints that need no routing decision.
func (s *Supervisor) Passthrough() http.Handler { return s.passthrough }

// Ready reports whether Start has completed.
func (s *Supervisor) Ready() bool { return s.ready.Load() }

// Close stops the guardian, optionally stops spawned services and closes the
// ledger.
func (s *Supervisor) Close(ctx context.Context) error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()
	s.ready.Store(false)
	if cancel != nil {
		cancel()
		select {
		case <-done:
		case <-ctx.Done():
		}
	}
	if s.Settings.StopServicesOnExit {
		s.Graph.StopAll(ctx)
	}
	return s.Ledger.Close()
}

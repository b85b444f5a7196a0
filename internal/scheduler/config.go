package scheduler

import (
	"time"

	"github.com/rs/zerolog"

	"llmvisor/internal/gpu"
	"llmvisor/internal/registry"
)

// Package defaults.
const (
	// DefaultEstimateGB is charged for models the registry does not describe.
	DefaultEstimateGB = 4.0
	// DefaultBackendTimeout bounds a single load or unload call.
	DefaultBackendTimeout = 5 * time.Minute
)

// Config configures a Scheduler.
type Config struct {
	Registry *registry.Registry
	Backend  Backend
	// Probe measures the real device; nil means GPUStats always estimates.
	Probe          gpu.Prober
	Logger         zerolog.Logger
	Publisher      EventPublisher
	EstimateGB     float64
	BackendTimeout time.Duration
	// now is overridable in tests for deterministic LRU ordering.
	now func() time.Time
}

func (c *Config) applyDefaults() {
	if c.EstimateGB <= 0 {
		c.EstimateGB = DefaultEstimateGB
	}
	if c.BackendTimeout <= 0 {
		c.BackendTimeout = DefaultBackendTimeout
	}
	if c.Publisher == nil {
		c.Publisher = noopPublisher{}
	}
	if c.now == nil {
		c.now = time.Now
	}
}

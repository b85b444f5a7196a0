package scheduler

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"llmvisor/internal/gpu"
	"llmvisor/internal/ollama"
	"llmvisor/internal/registry"
)

// Backend is the subset of the inference backend the scheduler drives.
// *ollama.Client satisfies it.
type Backend interface {
	Load(ctx context.Context, model string, embedding bool) error
	Unload(ctx context.Context, model string, embedding bool) error
	Running(ctx context.Context) ([]ollama.RunningModel, error)
}

// loaded is the tracked state of one resident model.
type loaded struct {
	vramGB   float64
	lastUsed time.Time
	pinned   bool
	loadedAt time.Time
}

// Scheduler tracks resident models and enforces the VRAM budget.
type Scheduler struct {
	// loadMu serializes every change to the loaded map: eviction decisions,
	// backend load/unload calls and accounting.
	loadMu sync.Mutex
	// mu guards the map itself for concurrent readers.
	mu     sync.RWMutex
	models map[string]*loaded

	reg        *registry.Registry
	backend    Backend
	probe      gpu.Prober
	log        zerolog.Logger
	publisher  EventPublisher
	estimateGB float64
	timeout    time.Duration
	now        func() time.Time

	totalGB    float64
	reservedGB float64

	loads       int64
	loadFails   int64
	evictions   int64
	overcommits int64
}

// New constructs a Scheduler. Registry and Backend are required.
func New(cfg Config) *Scheduler {
	cfg.applyDefaults()
	s := &Scheduler{
		models:     make(map[string]*loaded),
		reg:        cfg.Registry,
		backend:    cfg.Backend,
		probe:      cfg.Probe,
		log:        cfg.Logger,
		publisher:  cfg.Publisher,
		estimateGB: cfg.EstimateGB,
		timeout:    cfg.BackendTimeout,
		now:        cfg.now,
	}
	if cfg.Registry != nil {
		s.totalGB, s.reservedGB = cfg.Registry.Budget()
	}
	return s
}

// describe returns the footprint and pin flag for a backend model.
func (s *Scheduler) describe(model string) (vramGB float64, pinned, embedding bool) {
	vramGB = s.estimateGB
	if s.reg != nil {
		if d, ok := s.reg.ModelInfo(model); ok {
			if d.VRAMGB > 0 {
				vramGB = d.VRAMGB
			}
			pinned = d.AlwaysLoaded
			embedding = isEmbeddingRole(d.Role)
		}
	}
	if !embedding {
		embedding = strings.Contains(strings.ToLower(model), "embed")
	}
	return vramGB, pinned, embedding
}

// IsEmbedding reports whether the backend model serves embeddings only.
func (s *Scheduler) IsEmbedding(model string) bool {
	_, _, e := s.describe(model)
	return e
}

func isEmbeddingRole(role string) bool {
	return strings.HasPrefix(strings.ToLower(role), "embed")
}

// usedLocked sums tracked footprints. Caller holds mu (read or write).
func (s *Scheduler) usedLocked() float64 {
	var sum float64
	for _, m := range s.models {
		sum += m.vramGB
	}
	return sum
}

func (s *Scheduler) updateGauges() {
	s.mu.RLock()
	used := s.usedLocked()
	n := len(s.models)
	s.mu.RUnlock()
	vramUsedGB.Set(used)
	loadedModels.Set(float64(n))
}

func (s *Scheduler) backendCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

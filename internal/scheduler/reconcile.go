package scheduler

import (
	"context"
	"fmt"
)

const bytesPerGB = 1 << 30

// Reconcile adopts models the backend already reports as running so that
// accounting reflects what is resident after a supervisor restart. Tracked
// models the backend no longer holds are dropped.
func (s *Scheduler) Reconcile(ctx context.Context) error {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()

	rctx, cancel := s.backendCtx(ctx)
	running, err := s.backend.Running(rctx)
	cancel()
	if err != nil {
		return fmt.Errorf("reconcile: %w", err)
	}

	seen := make(map[string]bool, len(running))
	now := s.now()
	s.mu.Lock()
	for _, rm := range running {
		name := rm.Name
		if name == "" {
			name = rm.Model
		}
		if name == "" {
			continue
		}
		seen[name] = true
		if _, ok := s.models[name]; ok {
			continue
		}
		vram, pinned, _ := s.describe(name)
		if !s.known(name) && rm.SizeVRAM > 0 {
			vram = float64(rm.SizeVRAM) / bytesPerGB
		}
		s.models[name] = &loaded{vramGB: vram, lastUsed: now, loadedAt: now, pinned: pinned}
		s.publisher.Publish(Event{Name: EventAdopt, Model: name, Fields: map[string]any{"vram_gb": vram}})
		s.log.Info().Str("model", name).Float64("vram_gb", vram).Msg("event=model_adopted")
	}
	for name := range s.models {
		if !seen[name] {
			delete(s.models, name)
			s.log.Info().Str("model", name).Msg("event=model_dropped not resident in backend")
		}
	}
	s.mu.Unlock()
	s.updateGauges()
	return nil
}

func (s *Scheduler) known(model string) bool {
	if s.reg == nil {
		return false
	}
	_, ok := s.reg.ModelInfo(model)
	return ok
}

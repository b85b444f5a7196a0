package scheduler

import (
	"context"
	"fmt"
)

// EnsureLoaded makes sure the backend model is resident. A nil error means
// the model is loaded and tracked.
func (s *Scheduler) EnsureLoaded(ctx context.Context, model string) error {
	if model == "" {
		return fmt.Errorf("ensure: empty model name")
	}
	if s.touch(model) {
		return nil
	}

	s.loadMu.Lock()
	defer s.loadMu.Unlock()
	// Another caller may have loaded it while we waited.
	if s.touch(model) {
		return nil
	}

	needed, pinned, embedding := s.describe(model)
	s.publisher.Publish(Event{Name: EventEnsureStart, Model: model, Fields: map[string]any{"needed_gb": needed}})

	usable := s.totalGB - s.reservedGB
	if avail := s.available(); avail < needed {
		s.evictUntilFits(ctx, model, needed)
		if avail = s.available(); avail < needed {
			if needed <= usable {
				err := &shortfallError{model: model, neededGB: needed, availGB: avail, pinnedGB: s.pinnedGB()}
				s.log.Warn().Str("model", model).Float64("needed_gb", needed).Float64("available_gb", avail).
					Msg("event=vram_shortfall")
				s.recordLoadFail(model, err)
				return err
			}
			s.overcommits++
			overcommitsTotal.Inc()
			s.publisher.Publish(Event{Name: EventOvercommit, Model: model, Fields: map[string]any{"needed_gb": needed, "usable_gb": usable}})
			s.log.Warn().Str("model", model).Float64("needed_gb", needed).Float64("usable_gb", usable).
				Msg("event=vram_overcommit model exceeds budget on its own")
		}
	}

	lctx, cancel := s.backendCtx(ctx)
	err := s.backend.Load(lctx, model, embedding)
	cancel()
	if err != nil {
		s.recordLoadFail(model, err)
		return fmt.Errorf("load %s: %w", model, err)
	}

	now := s.now()
	s.mu.Lock()
	s.models[model] = &loaded{vramGB: needed, lastUsed: now, loadedAt: now, pinned: pinned}
	s.loads++
	s.mu.Unlock()
	loadsTotal.WithLabelValues("ok").Inc()
	s.updateGauges()
	s.publisher.Publish(Event{Name: EventLoadOK, Model: model, Fields: map[string]any{"vram_gb": needed}})
	s.log.Info().Str("model", model).Float64("vram_gb", needed).Msg("event=model_loaded")
	return nil
}

// touch bumps last_used when the model is tracked.
func (s *Scheduler) touch(model string) bool {
	s.mu.RLock()
	_, ok := s.models[model]
	s.mu.RUnlock()
	if !ok {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.models[model]; ok {
		m.lastUsed = s.now()
		return true
	}
	return false
}

// available is total - reserved - Σloaded.
func (s *Scheduler) available() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.totalGB - s.reservedGB - s.usedLocked()
}

func (s *Scheduler) pinnedGB() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var sum float64
	for _, m := range s.models {
		if m.pinned {
			sum += m.vramGB
		}
	}
	return sum
}

func (s *Scheduler) recordLoadFail(model string, err error) {
	s.mu.Lock()
	s.loadFails++
	s.mu.Unlock()
	loadsTotal.WithLabelValues("error").Inc()
	s.publisher.Publish(Event{Name: EventLoadFail, Model: model, Fields: map[string]any{"error": err.Error()}})
	s.log.Error().Err(err).Str("model", model).Msg("event=model_load_failed")
}

package scheduler

import (
	"context"
	"fmt"
)

// Unload removes a model from the backend and from tracking. Pinned models
// may be unloaded manually; they are only protected from eviction.
func (s *Scheduler) Unload(ctx context.Context, model string) error {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()

	s.mu.RLock()
	_, ok := s.models[model]
	s.mu.RUnlock()
	if !ok {
		return notLoadedError{model: model}
	}

	_, _, embedding := s.describe(model)
	uctx, cancel := s.backendCtx(ctx)
	err := s.backend.Unload(uctx, model, embedding)
	cancel()
	if err != nil {
		return fmt.Errorf("unload %s: %w", model, err)
	}

	s.mu.Lock()
	delete(s.models, model)
	s.mu.Unlock()
	s.updateGauges()
	s.publisher.Publish(Event{Name: EventUnload, Model: model, Fields: map[string]any{}})
	s.log.Info().Str("model", model).Msg("event=model_unloaded")
	return nil
}

package scheduler

import (
	"context"
	"sort"
)

// evictUntilFits unloads non-pinned models, least recently used first, until
// neededGB fits or no candidates remain. Caller holds loadMu.
func (s *Scheduler) evictUntilFits(ctx context.Context, requester string, neededGB float64) {
	for _, victim := range s.evictionOrder() {
		if s.available() >= neededGB {
			return
		}
		_, _, embedding := s.describe(victim)
		uctx, cancel := s.backendCtx(ctx)
		err := s.backend.Unload(uctx, victim, embedding)
		cancel()
		if err != nil {
			// Memory is presumably still held; leave it tracked.
			s.log.Warn().Err(err).Str("model", victim).Str("for", requester).Msg("event=evict_failed")
			continue
		}
		s.mu.Lock()
		freed := s.models[victim].vramGB
		delete(s.models, victim)
		s.evictions++
		s.mu.Unlock()
		evictionsTotal.Inc()
		s.updateGauges()
		s.publisher.Publish(Event{Name: EventEvict, Model: victim, Fields: map[string]any{"for": requester, "freed_gb": freed}})
		s.log.Info().Str("model", victim).Str("for", requester).Float64("freed_gb", freed).Msg("event=model_evicted")
	}
}

// evictionOrder lists non-pinned models by last_used ascending.
func (s *Scheduler) evictionOrder() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	type cand struct {
		name string
		m    *loaded
	}
	cands := make([]cand, 0, len(s.models))
	for name, m := range s.models {
		if m.pinned {
			continue
		}
		cands = append(cands, cand{name, m})
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].m.lastUsed.Equal(cands[j].m.lastUsed) {
			return cands[i].name < cands[j].name
		}
		return cands[i].m.lastUsed.Before(cands[j].m.lastUsed)
	})
	out := make([]string, len(cands))
	for i, c := range cands {
		out[i] = c.name
	}
	return out
}

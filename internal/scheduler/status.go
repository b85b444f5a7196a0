package scheduler

import (
	"context"
	"sort"

	"llmvisor/internal/gpu"
	"llmvisor/pkg/types"
)

// IsLoaded reports whether the model is tracked as resident.
func (s *Scheduler) IsLoaded(model string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.models[model]
	return ok
}

// Loaded lists resident models, most recently used first.
func (s *Scheduler) Loaded() []types.LoadedModel {
	s.mu.RLock()
	out := make([]types.LoadedModel, 0, len(s.models))
	for name, m := range s.models {
		out = append(out, types.LoadedModel{
			Model:    name,
			VRAMGB:   m.vramGB,
			Pinned:   m.pinned,
			LastUsed: m.lastUsed.Unix(),
			LoadedAt: m.loadedAt.Unix(),
		})
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastUsed == out[j].LastUsed {
			return out[i].Model < out[j].Model
		}
		return out[i].LastUsed > out[j].LastUsed
	})
	return out
}

// Status builds the budget snapshot for /supervisor/status.
func (s *Scheduler) Status() types.SchedulerStatus {
	loaded := s.Loaded()
	s.mu.RLock()
	defer s.mu.RUnlock()
	used := s.usedLocked()
	return types.SchedulerStatus{
		TotalGB:      s.totalGB,
		ReservedGB:   s.reservedGB,
		UsedGB:       used,
		AvailableGB:  s.totalGB - s.reservedGB - used,
		Loaded:       loaded,
		Loads:        s.loads,
		LoadFailures: s.loadFails,
		Evictions:    s.evictions,
		Overcommits:  s.overcommits,
	}
}

// GPUStats reports measured device numbers when a probe is configured and
// succeeds, otherwise numbers estimated from tracked state.
func (s *Scheduler) GPUStats(ctx context.Context) types.GPUStats {
	s.mu.RLock()
	tracked := s.usedLocked()
	s.mu.RUnlock()
	out := types.GPUStats{TrackedUsedGB: tracked, BudgetGB: s.totalGB - s.reservedGB}

	if s.probe != nil {
		st, err := s.probe.Probe(ctx)
		if err == nil {
			out.Source = st.Source
			out.Devices = st.Devices
			out.TotalGB = st.TotalGB
			out.UsedGB = st.UsedGB
			out.FreeGB = st.FreeGB
			out.TemperatureC = st.TemperatureC
			out.UtilizationPct = st.UtilizationPct
			return out
		}
		s.log.Debug().Err(err).Msg("event=gpu_probe_unavailable")
	}
	out.Source = gpu.SourceEstimate
	out.TotalGB = s.totalGB
	out.UsedGB = tracked + s.reservedGB
	out.FreeGB = s.totalGB - out.UsedGB
	if out.FreeGB < 0 {
		out.FreeGB = 0
	}
	return out
}

package scheduler

import "github.com/prometheus/client_golang/prometheus"

var (
	loadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llmvisor_scheduler_loads_total",
			Help: "Backend model loads by result.",
		},
		[]string{"result"},
	)
	evictionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "llmvisor_scheduler_evictions_total",
			Help: "Models evicted to make room for another load.",
		},
	)
	overcommitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "llmvisor_scheduler_overcommits_total",
			Help: "Loads admitted although the model alone exceeds the usable budget.",
		},
	)
	vramUsedGB = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "llmvisor_scheduler_vram_used_gb",
			Help: "Tracked VRAM footprint of loaded models.",
		},
	)
	loadedModels = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "llmvisor_scheduler_loaded_models",
			Help: "Number of models tracked as loaded.",
		},
	)
)

func init() {
	prometheus.MustRegister(loadsTotal, evictionsTotal, overcommitsTotal, vramUsedGB, loadedModels)
}

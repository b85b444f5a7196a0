package router

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"llmvisor/pkg/types"
)

var (
	routedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llmvisor_router_requests_total",
			Help: "Routed LLM requests by kind and outcome (local, cloud, error).",
		},
		[]string{"kind", "outcome"},
	)
	localLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llmvisor_router_local_latency_seconds",
			Help:    "Latency of successful local backend calls.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"kind"},
	)
	localAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llmvisor_router_local_attempts_total",
			Help: "Local backend attempts by result.",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(routedTotal, localLatency, localAttempts)
}

// counters is the in-process mirror of the request metrics.
type counters struct {
	mu           sync.Mutex
	total        int64
	localSuccess int64
	cloudSuccess int64
	errors       int64
	perModel     map[string]int64
}

func (c *counters) request(model string) {
	c.mu.Lock()
	c.total++
	if c.perModel == nil {
		c.perModel = map[string]int64{}
	}
	c.perModel[model]++
	c.mu.Unlock()
}

func (c *counters) outcome(kind, outcome string) {
	c.mu.Lock()
	switch outcome {
	case SourceLocal:
		c.localSuccess++
	case outcomeCloud:
		c.cloudSuccess++
	default:
		c.errors++
	}
	c.mu.Unlock()
	routedTotal.WithLabelValues(kind, outcome).Inc()
}

func (c *counters) snapshot() types.RouterMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	pm := make(map[string]int64, len(c.perModel))
	for k, v := range c.perModel {
		pm[k] = v
	}
	return types.RouterMetrics{
		Total:        c.total,
		LocalSuccess: c.localSuccess,
		CloudSuccess: c.cloudSuccess,
		Errors:       c.errors,
		PerModel:     pm,
	}
}

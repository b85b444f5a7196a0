package services

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"llmvisor/pkg/types"
)

// Health statuses.
const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
	StatusUnknown   = "unknown"
)

// HealthResult is a point-in-time probe outcome. Results are never cached.
type HealthResult struct {
	ID        string
	Status    string
	Detail    string
	Latency   time.Duration
	CheckedAt time.Time
}

// Healthy reports whether the probe succeeded.
func (h HealthResult) Healthy() bool { return h.Status == StatusHealthy }

// CheckHealth probes id once with the service's bounded timeout.
func (g *Graph) CheckHealth(ctx context.Context, id string) HealthResult {
	svc, ok := g.services[id]
	if !ok {
		return HealthResult{ID: id, Status: StatusUnknown, Detail: "unknown service", CheckedAt: time.Now()}
	}
	return g.probe(ctx, svc)
}

func (g *Graph) probe(ctx context.Context, svc Service) HealthResult {
	res := HealthResult{ID: svc.ID, CheckedAt: time.Now()}
	hc := svc.Health
	ctx, cancel := context.WithTimeout(ctx, hc.Timeout)
	defer cancel()
	start := time.Now()
	switch hc.Type {
	case CheckHTTP:
		res.Status, res.Detail = g.probeHTTP(ctx, hc.URL)
	case CheckTCP:
		res.Status, res.Detail = probeTCP(ctx, hc.Host, hc.Port)
	default:
		res.Status, res.Detail = StatusUnknown, "no health check configured"
	}
	res.Latency = time.Since(start)
	return res
}

// probeHTTP treats any response below 500 as healthy: the process answers.
func (g *Graph) probeHTTP(ctx context.Context, url string) (string, string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return StatusUnhealthy, err.Error()
	}
	resp, err := g.hc.Do(req)
	if err != nil {
		return StatusUnhealthy, err.Error()
	}
	_ = resp.Body.Close()
	if resp.StatusCode >= 500 {
		return StatusUnhealthy, fmt.Sprintf("status %d", resp.StatusCode)
	}
	return StatusHealthy, fmt.Sprintf("status %d", resp.StatusCode)
}

func probeTCP(ctx context.Context, host string, port int) (string, string) {
	var d net.Dialer
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return StatusUnhealthy, err.Error()
	}
	_ = conn.Close()
	return StatusHealthy, "connected " + addr
}

// Status probes every service concurrently and returns results in dependency
// order.
func (g *Graph) Status(ctx context.Context) []types.ServiceStatus {
	out := make([]types.ServiceStatus, len(g.order))
	var wg sync.WaitGroup
	for i, id := range g.order {
		wg.Add(1)
		go func(i int, svc Service) {
			defer wg.Done()
			out[i] = g.view(svc, g.probe(ctx, svc))
		}(i, g.services[id])
	}
	wg.Wait()
	return out
}

// ServiceStatus probes one service and renders its view.
func (g *Graph) ServiceStatus(ctx context.Context, id string) (types.ServiceStatus, error) {
	svc, ok := g.services[id]
	if !ok {
		return types.ServiceStatus{}, unknownServiceError{id: id}
	}
	return g.view(svc, g.probe(ctx, svc)), nil
}

func (g *Graph) view(svc Service, h HealthResult) types.ServiceStatus {
	deps := append([]string(nil), svc.DependsOn...)
	sort.Strings(deps)
	return types.ServiceStatus{
		ID:        svc.ID,
		Name:      svc.Name,
		Kind:      svc.Kind,
		Port:      svc.Port,
		Critical:  svc.Critical,
		OnDemand:  svc.OnDemand,
		DependsOn: deps,
		Status:    h.Status,
		Detail:    h.Detail,
		LatencyMS: float64(h.Latency) / float64(time.Millisecond),
		CheckedAt: h.CheckedAt.Unix(),
		PID:       g.ManagedPID(svc.ID),
	}
}

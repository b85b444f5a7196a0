package httpapi

import (
	"context"
	"net/http"
	"sync"

	"llmvisor/pkg/types"
)

type mockService struct {
	mu sync.Mutex

	ready     bool
	status    types.StatusResponse
	models    types.ModelsResponse
	loadErr   error
	unloadErr error
	svcErr    error
	actionErr error
	alerts    []types.Alert
	alertsLim int
	proxyErr  error
	proxyOut  map[string]any
	lastBody  map[string]any
	embedPath string
	passHits  []string
}

func (m *mockService) Ready() bool                                 { return m.ready }
func (m *mockService) Status(context.Context) types.StatusResponse { return m.status }
func (m *mockService) Models() types.ModelsResponse                { return m.models }
func (m *mockService) GPU(context.Context) types.GPUStats          { return types.GPUStats{Source: "estimate"} }
func (m *mockService) RouterMetrics() types.RouterMetrics          { return types.RouterMetrics{Total: 3} }

func (m *mockService) RunBoot(context.Context) types.BootReport {
	return types.BootReport{RunID: "r1", OK: true}
}

func (m *mockService) GuardianStatus() types.GuardianResponse {
	return types.GuardianResponse{Running: true}
}

func (m *mockService) Services(context.Context) types.ServicesResponse {
	return types.ServicesResponse{}
}

func (m *mockService) SchedulerEvents() types.SchedulerEventsResponse {
	return types.SchedulerEventsResponse{Events: []types.SchedulerEvent{{Name: "load_ok", Model: "llama3.1:8b"}}}
}

func (m *mockService) LoadModel(_ context.Context, name string) (string, error) {
	return "resolved:" + name, m.loadErr
}

func (m *mockService) UnloadModel(_ context.Context, name string) (string, error) {
	return "resolved:" + name, m.unloadErr
}

func (m *mockService) Service(_ context.Context, id string) (types.ServiceStatus, error) {
	return types.ServiceStatus{ID: id, Status: "healthy"}, m.svcErr
}

func (m *mockService) ServiceAction(_ context.Context, id, action string) (types.ServiceActionResponse, error) {
	return types.ServiceActionResponse{ID: id, Action: action, Outcome: "started"}, m.actionErr
}

func (m *mockService) CostsToday(context.Context) (types.CostReport, error) {
	return types.CostReport{Date: "2026-10-15", TotalUSD: 0.5}, nil
}

func (m *mockService) Alerts(_ context.Context, limit int) (types.AlertsResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alertsLim = limit
	return types.AlertsResponse{Alerts: m.alerts}, nil
}

func (m *mockService) proxy(body map[string]any) (map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastBody = body
	if m.proxyErr != nil {
		return nil, m.proxyErr
	}
	return m.proxyOut, nil
}

func (m *mockService) ProxyChat(_ context.Context, body map[string]any) (map[string]any, error) {
	return m.proxy(body)
}

func (m *mockService) ProxyGenerate(_ context.Context, body map[string]any) (map[string]any, error) {
	return m.proxy(body)
}

func (m *mockService) ProxyEmbed(_ context.Context, path string, body map[string]any) (map[string]any, error) {
	m.mu.Lock()
	m.embedPath = path
	m.mu.Unlock()
	return m.proxy(body)
}

func (m *mockService) Passthrough() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		m.passHits = append(m.passHits, r.Method+" "+r.URL.Path)
		m.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"models":[]}`))
	})
}

type mockHTTPError struct {
	msg  string
	code int
}

func (e mockHTTPError) Error() string   { return e.msg }
func (e mockHTTPError) StatusCode() int { return e.code }

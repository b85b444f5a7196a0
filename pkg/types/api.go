package types

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: invalid JSON body
	Error string `json:"error" example:"invalid JSON body"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
	// Remediation hint, when one is known.
	Hint string `json:"hint,omitempty"`
	// Backends tried before giving up (router exhaustion only).
	Attempts []string `json:"attempts,omitempty"`
}

// ModelView describes a registry entry plus its residency.
type ModelView struct {
	// Registry key.
	// example: qwen-coder
	Key string `json:"key" example:"qwen-coder"`
	// Concrete backend model name.
	// example: qwen2.5-coder:7b
	Backend string `json:"ollama_name" example:"qwen2.5-coder:7b"`
	// example: coding
	Role         string  `json:"role" example:"coding"`
	VRAMGB       float64 `json:"vram_gb"`
	Default      bool    `json:"default"`
	AlwaysLoaded bool    `json:"always_loaded"`
	OnDemand     bool    `json:"on_demand"`
	// True when the scheduler tracks the model as resident.
	Loaded bool `json:"loaded"`
}

// ModelsResponse wraps GET /supervisor/models.
type ModelsResponse struct {
	Models  []ModelView       `json:"models"`
	Aliases map[string]string `json:"aliases"`
	// Default backend model used when a request names none.
	// example: llama3.1:8b
	Default string `json:"default" example:"llama3.1:8b"`
}

// ModelActionResponse is returned by POST /supervisor/models/{name}/load|unload.
type ModelActionResponse struct {
	// Name as requested.
	Name string `json:"name"`
	// Resolved backend model.
	// example: qwen2.5-coder:7b
	Model string `json:"model" example:"qwen2.5-coder:7b"`
	// loaded or unloaded.
	Status string `json:"status"`
}

// LoadedModel summarizes one resident model.
type LoadedModel struct {
	// example: llama3.1:8b
	Model  string  `json:"model" example:"llama3.1:8b"`
	VRAMGB float64 `json:"vram_gb"`
	// Pinned models are never evicted.
	Pinned bool `json:"pinned"`
	// Last time a request touched this model (unix seconds).
	LastUsed int64 `json:"last_used_unix"`
	LoadedAt int64 `json:"loaded_at_unix"`
}

// SchedulerStatus reports the VRAM budget and its tracked usage.
type SchedulerStatus struct {
	TotalGB      float64       `json:"total_gb"`
	ReservedGB   float64       `json:"reserved_gb"`
	UsedGB       float64       `json:"used_gb"`
	AvailableGB  float64       `json:"available_gb"`
	Loaded       []LoadedModel `json:"loaded"`
	Loads        int64         `json:"loads_total"`
	LoadFailures int64         `json:"load_failures_total"`
	Evictions    int64         `json:"evictions_total"`
	Overcommits  int64         `json:"overcommits_total"`
}

// GPUStats is returned by GET /supervisor/gpu.
type GPUStats struct {
	// Where the numbers came from: nvidia-smi or estimate.
	// example: nvidia-smi
	Source         string   `json:"source" example:"nvidia-smi"`
	Devices        []string `json:"devices,omitempty"`
	TotalGB        float64  `json:"total_gb"`
	UsedGB         float64  `json:"used_gb"`
	FreeGB         float64  `json:"free_gb"`
	TemperatureC   *float64 `json:"temperature_c,omitempty"`
	UtilizationPct *float64 `json:"utilization_pct,omitempty"`
	// Scheduler view, always present.
	TrackedUsedGB float64 `json:"tracked_used_gb"`
	BudgetGB      float64 `json:"budget_gb"`
}

// ServiceStatus is a live view of one declared service.
type ServiceStatus struct {
	// example: memory-api
	ID   string `json:"id" example:"memory-api"`
	Name string `json:"name"`
	// process or docker.
	Kind      string   `json:"kind"`
	Port      int      `json:"port,omitempty"`
	Critical  bool     `json:"critical"`
	OnDemand  bool     `json:"on_demand"`
	DependsOn []string `json:"depends_on,omitempty"`
	// healthy, unhealthy or unknown.
	// example: healthy
	Status    string  `json:"status" example:"healthy"`
	Detail    string  `json:"detail,omitempty"`
	LatencyMS float64 `json:"latency_ms"`
	CheckedAt int64   `json:"checked_at_unix"`
	// PID of the supervisor-spawned process, if any.
	PID int `json:"pid,omitempty"`
}

// ServicesResponse wraps GET /supervisor/services.
type ServicesResponse struct {
	Services []ServiceStatus `json:"services"`
}

// ServiceActionResponse is returned by start/stop/restart/reset.
type ServiceActionResponse struct {
	ID     string `json:"id"`
	Action string `json:"action"`
	// example: started
	Outcome string `json:"outcome" example:"started"`
}

// BootServiceOutcome is the result of one service within a phase.
type BootServiceOutcome struct {
	Service string `json:"service"`
	// already_running, started, timeout, failed or skipped.
	Outcome string `json:"outcome"`
	Detail  string `json:"detail,omitempty"`
}

// BootPhaseReport collects the outcomes of one phase.
type BootPhaseReport struct {
	Phase      int                  `json:"phase"`
	Name       string               `json:"name"`
	Services   []BootServiceOutcome `json:"services"`
	DurationMS int64                `json:"duration_ms"`
}

// BootReport is returned by POST /supervisor/boot and printed by --boot.
type BootReport struct {
	RunID      string            `json:"run_id"`
	OK         bool              `json:"ok"`
	StartedAt  int64             `json:"started_at_unix"`
	DurationMS int64             `json:"duration_ms"`
	Phases     []BootPhaseReport `json:"phases"`
	Errors     []string          `json:"errors"`
}

// RouterMetrics summarizes request routing since startup.
type RouterMetrics struct {
	Total        int64            `json:"total_requests"`
	LocalSuccess int64            `json:"local_success"`
	CloudSuccess int64            `json:"cloud_fallback"`
	Errors       int64            `json:"errors"`
	PerModel     map[string]int64 `json:"per_model"`
	P50MS        float64          `json:"latency_p50_ms"`
	P95MS        float64          `json:"latency_p95_ms"`
	WindowSize   int              `json:"latency_window"`
}

// ModelCost aggregates spend for one cloud model.
type ModelCost struct {
	Requests     int     `json:"requests"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	CostUSD      float64 `json:"cost_usd"`
}

// ProviderCost aggregates spend for one provider.
type ProviderCost struct {
	ModelCost
	Models map[string]ModelCost `json:"models"`
}

// CostReport is returned by GET /supervisor/costs/today.
type CostReport struct {
	// example: 2026-10-15
	Date       string                  `json:"date" example:"2026-10-15"`
	TotalUSD   float64                 `json:"total_usd"`
	Requests   int                     `json:"requests"`
	ByProvider map[string]ProviderCost `json:"by_provider"`
}

// GuardianState is the per-service restart state machine view.
type GuardianState struct {
	Service string `json:"service"`
	// unknown, healthy, unhealthy, restarting or failed.
	State               string `json:"state"`
	ConsecutiveFailures int    `json:"consecutive_failures"`
	RestartAttempts     int    `json:"restart_attempts"`
	LastCheck           int64  `json:"last_check_unix,omitempty"`
	LastDetail          string `json:"last_detail,omitempty"`
}

// GuardianEvent is one entry of the in-memory guardian history.
type GuardianEvent struct {
	Time    int64  `json:"time_unix"`
	Service string `json:"service"`
	// check_failed, restart, restart_failed, recovered, exhausted, reset.
	Kind   string `json:"kind"`
	Detail string `json:"detail,omitempty"`
}

// SchedulerEvent is one retained scheduler lifecycle event.
type SchedulerEvent struct {
	Time   int64          `json:"time_unix"`
	Name   string         `json:"name"`
	Model  string         `json:"model,omitempty"`
	Fields map[string]any `json:"fields,omitempty"`
}

// SchedulerEventsResponse is returned by GET /supervisor/scheduler/events,
// newest first.
type SchedulerEventsResponse struct {
	Events []SchedulerEvent `json:"events"`
}

// GuardianResponse is returned by GET /supervisor/guardian.
type GuardianResponse struct {
	Running         bool            `json:"running"`
	IntervalSeconds float64         `json:"interval_seconds"`
	Services        []GuardianState `json:"services"`
	History         []GuardianEvent `json:"history"`
}

// AlertsResponse wraps GET /supervisor/alerts.
type AlertsResponse struct {
	Alerts []Alert `json:"alerts"`
}

// StatusResponse is returned by GET /supervisor/status and rendered by --status.
type StatusResponse struct {
	// Uptime of the supervisor in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// Server time in unix seconds.
	// example: 1700000000
	ServerTimeUnix int64           `json:"server_time_unix" example:"1700000000"`
	Scheduler      SchedulerStatus `json:"scheduler"`
	Services       []ServiceStatus `json:"services"`
	Router         RouterMetrics   `json:"router"`
	GuardianActive bool            `json:"guardian_running"`
	// Critical services that are not healthy.
	CriticalUnhealthy []string `json:"critical_unhealthy"`
}

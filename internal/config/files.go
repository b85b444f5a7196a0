package config

// ModelsFile is the on-disk model registry.
type ModelsFile struct {
	VRAMTotalGB    float64                    `json:"vram_total_gb" yaml:"vram_total_gb" toml:"vram_total_gb"`
	VRAMReservedGB float64                    `json:"vram_reserved_gb" yaml:"vram_reserved_gb" toml:"vram_reserved_gb"`
	Models         map[string]ModelEntry      `json:"models" yaml:"models" toml:"models"`
	Aliases        map[string]string          `json:"aliases" yaml:"aliases" toml:"aliases"`
	CloudFallback  map[string][]FallbackEntry `json:"cloud_fallback" yaml:"cloud_fallback" toml:"cloud_fallback"`
}

type ModelEntry struct {
	OllamaName   string  `json:"ollama_name" yaml:"ollama_name" toml:"ollama_name"`
	Role         string  `json:"role" yaml:"role" toml:"role"`
	VRAMGB       float64 `json:"vram_gb" yaml:"vram_gb" toml:"vram_gb"`
	Default      bool    `json:"default" yaml:"default" toml:"default"`
	AlwaysLoaded bool    `json:"always_loaded" yaml:"always_loaded" toml:"always_loaded"`
	OnDemand     bool    `json:"on_demand" yaml:"on_demand" toml:"on_demand"`
}

type FallbackEntry struct {
	Provider string `json:"provider" yaml:"provider" toml:"provider"`
	Model    string `json:"model" yaml:"model" toml:"model"`
	EnvKey   string `json:"env_key" yaml:"env_key" toml:"env_key"`
}

// ServicesFile is the on-disk service graph.
type ServicesFile struct {
	Services       map[string]ServiceEntry `json:"services" yaml:"services" toml:"services"`
	DockerServices map[string]ServiceEntry `json:"docker_services" yaml:"docker_services" toml:"docker_services"`
	BootPhases     []BootPhaseEntry        `json:"boot_phases" yaml:"boot_phases" toml:"boot_phases"`
	RestartPolicy  RestartPolicyEntry      `json:"restart_policy" yaml:"restart_policy" toml:"restart_policy"`
}

type ServiceEntry struct {
	Name         string            `json:"name" yaml:"name" toml:"name"`
	Port         int               `json:"port" yaml:"port" toml:"port"`
	Type         string            `json:"type" yaml:"type" toml:"type"`
	HealthCheck  HealthCheckEntry  `json:"health_check" yaml:"health_check" toml:"health_check"`
	DependsOn    []string          `json:"depends_on" yaml:"depends_on" toml:"depends_on"`
	StartCommand string            `json:"start_command" yaml:"start_command" toml:"start_command"`
	StopCommand  string            `json:"stop_command" yaml:"stop_command" toml:"stop_command"`
	Cwd          string            `json:"cwd" yaml:"cwd" toml:"cwd"`
	Env          map[string]string `json:"env" yaml:"env" toml:"env"`
	Critical     bool              `json:"critical" yaml:"critical" toml:"critical"`
	OnDemand     bool              `json:"on_demand" yaml:"on_demand" toml:"on_demand"`
	PostStart    []PostStartEntry  `json:"post_start" yaml:"post_start" toml:"post_start"`
	Container    string            `json:"container" yaml:"container" toml:"container"`
	Host         string            `json:"host" yaml:"host" toml:"host"`
	LogFile      string            `json:"log_file" yaml:"log_file" toml:"log_file"`
}

type HealthCheckEntry struct {
	Type           string  `json:"type" yaml:"type" toml:"type"`
	URL            string  `json:"url" yaml:"url" toml:"url"`
	Port           int     `json:"port" yaml:"port" toml:"port"`
	TimeoutSeconds float64 `json:"timeout_seconds" yaml:"timeout_seconds" toml:"timeout_seconds"`
}

type PostStartEntry struct {
	Action string `json:"action" yaml:"action" toml:"action"`
	Model  string `json:"model" yaml:"model" toml:"model"`
}

type BootPhaseEntry struct {
	Phase          int      `json:"phase" yaml:"phase" toml:"phase"`
	Name           string   `json:"name" yaml:"name" toml:"name"`
	Services       []string `json:"services" yaml:"services" toml:"services"`
	TimeoutSeconds int      `json:"timeout_seconds" yaml:"timeout_seconds" toml:"timeout_seconds"`
}

type RestartPolicyEntry struct {
	MaxRetries           int     `json:"max_retries" yaml:"max_retries" toml:"max_retries"`
	RetryDelaySeconds    float64 `json:"retry_delay_seconds" yaml:"retry_delay_seconds" toml:"retry_delay_seconds"`
	BackoffMultiplier    float64 `json:"backoff_multiplier" yaml:"backoff_multiplier" toml:"backoff_multiplier"`
	AlertAfterExhaustion bool    `json:"alert_after_exhaustion" yaml:"alert_after_exhaustion" toml:"alert_after_exhaustion"`
}

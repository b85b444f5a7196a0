package config

import "time"

// Defaults applied by WithDefaults when the corresponding field is unset.
const (
	DefaultListenAddr       = ":11435"
	DefaultOllamaURL        = "http://127.0.0.1:11434"
	DefaultDataDir          = "~/.local/share/llmvisor"
	DefaultGuardianInterval = 30
	defaultLocalTimeout     = 120
	defaultEmbedTimeout     = 60
	defaultCloudTimeout     = 90
	defaultRetryDelay       = 2
	defaultLocalAttempts    = 3
	defaultLatencyWindow    = 1000
	defaultBootPoll         = 2
)

// Settings holds runtime parameters for the supervisor process itself.
// Zero values mean "unspecified" and are replaced by WithDefaults.
type Settings struct {
	ListenAddr              string         `json:"listen_addr" yaml:"listen_addr" toml:"listen_addr"`
	OllamaURL               string         `json:"ollama_url" yaml:"ollama_url" toml:"ollama_url"`
	DataDir                 string         `json:"data_dir" yaml:"data_dir" toml:"data_dir"`
	Ledger                  string         `json:"ledger" yaml:"ledger" toml:"ledger"`
	LogLevel                string         `json:"log_level" yaml:"log_level" toml:"log_level"`
	LogFormat               string         `json:"log_format" yaml:"log_format" toml:"log_format"`
	GuardianIntervalSeconds int            `json:"guardian_interval_seconds" yaml:"guardian_interval_seconds" toml:"guardian_interval_seconds"`
	MaxBodyBytes            int64          `json:"max_body_bytes" yaml:"max_body_bytes" toml:"max_body_bytes"`
	Router                  RouterSettings `json:"router" yaml:"router" toml:"router"`
	Boot                    BootSettings   `json:"boot" yaml:"boot" toml:"boot"`
	CORS                    CORSSettings   `json:"cors" yaml:"cors" toml:"cors"`

	// StopServicesOnExit stops supervisor-spawned services on shutdown.
	StopServicesOnExit bool `json:"stop_services_on_exit" yaml:"stop_services_on_exit" toml:"stop_services_on_exit"`
}

type RouterSettings struct {
	LocalTimeoutSeconds int     `json:"local_timeout_seconds" yaml:"local_timeout_seconds" toml:"local_timeout_seconds"`
	EmbedTimeoutSeconds int     `json:"embed_timeout_seconds" yaml:"embed_timeout_seconds" toml:"embed_timeout_seconds"`
	CloudTimeoutSeconds int     `json:"cloud_timeout_seconds" yaml:"cloud_timeout_seconds" toml:"cloud_timeout_seconds"`
	RetryDelaySeconds   float64 `json:"retry_delay_seconds" yaml:"retry_delay_seconds" toml:"retry_delay_seconds"`
	LocalAttempts       int     `json:"local_attempts" yaml:"local_attempts" toml:"local_attempts"`
	LatencyWindow       int     `json:"latency_window" yaml:"latency_window" toml:"latency_window"`
}

type BootSettings struct {
	HaltOnFailure       bool    `json:"halt_on_failure" yaml:"halt_on_failure" toml:"halt_on_failure"`
	PollIntervalSeconds float64 `json:"poll_interval_seconds" yaml:"poll_interval_seconds" toml:"poll_interval_seconds"`
}

type CORSSettings struct {
	Enabled bool     `json:"enabled" yaml:"enabled" toml:"enabled"`
	Origins []string `json:"origins" yaml:"origins" toml:"origins"`
	Methods []string `json:"methods" yaml:"methods" toml:"methods"`
	Headers []string `json:"headers" yaml:"headers" toml:"headers"`
}

// WithDefaults returns a copy of s with every unset field filled in.
func (s Settings) WithDefaults() Settings {
	if s.ListenAddr == "" {
		s.ListenAddr = DefaultListenAddr
	}
	if s.OllamaURL == "" {
		s.OllamaURL = DefaultOllamaURL
	}
	if s.DataDir == "" {
		s.DataDir = DefaultDataDir
	}
	if s.Ledger == "" {
		s.Ledger = "jsonl"
	}
	if s.LogLevel == "" {
		s.LogLevel = "info"
	}
	if s.LogFormat == "" {
		s.LogFormat = "console"
	}
	if s.GuardianIntervalSeconds <= 0 {
		s.GuardianIntervalSeconds = DefaultGuardianInterval
	}
	if s.MaxBodyBytes <= 0 {
		s.MaxBodyBytes = 8 << 20
	}
	r := &s.Router
	if r.LocalTimeoutSeconds <= 0 {
		r.LocalTimeoutSeconds = defaultLocalTimeout
	}
	if r.EmbedTimeoutSeconds <= 0 {
		r.EmbedTimeoutSeconds = defaultEmbedTimeout
	}
	if r.CloudTimeoutSeconds <= 0 {
		r.CloudTimeoutSeconds = defaultCloudTimeout
	}
	if r.RetryDelaySeconds <= 0 {
		r.RetryDelaySeconds = defaultRetryDelay
	}
	if r.LocalAttempts <= 0 {
		r.LocalAttempts = defaultLocalAttempts
	}
	if r.LatencyWindow <= 0 {
		r.LatencyWindow = defaultLatencyWindow
	}
	if s.Boot.PollIntervalSeconds <= 0 {
		s.Boot.PollIntervalSeconds = defaultBootPoll
	}
	return s
}

// Seconds converts a float seconds value into a time.Duration.
func Seconds(v float64) time.Duration { return time.Duration(v * float64(time.Second)) }

package main

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"llmvisor/internal/app"
	"llmvisor/internal/config"
)

// errCriticalUnhealthy makes --status exit non-zero after printing the table.
var errCriticalUnhealthy = errors.New("critical services unhealthy")

// cliOptions holds flag values after environment defaults are applied.
type cliOptions struct {
	configDir string
	port      int
	logLevel  string
	boot      bool
	status    bool
}

func newRootCmd(getenv func(string) string) *cobra.Command {
	opts := &cliOptions{configDir: "~/.config/llmvisor"}
	if v := getenv("LLMVISOR_CONFIG_DIR"); v != "" {
		opts.configDir = v
	}
	if v := getenv("LLMVISOR_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			opts.port = n
		}
	}

	root := &cobra.Command{
		Use:           "llmvisor",
		Short:         "Local LLM runtime supervisor",
		Long:          "llmvisor schedules models on the local GPU, supervises the service stack around them and\nserves an Ollama-compatible proxy with cloud fallback.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.boot && opts.status {
				return fmt.Errorf("--boot and --status are mutually exclusive")
			}
			st, log, err := loadSettings(opts, getenv)
			if err != nil {
				return err
			}
			if opts.status {
				return runStatus(cmd.Context(), cmd.OutOrStdout(), opts, st, log)
			}
			return runServe(cmd.Context(), opts, st, log)
		},
	}
	f := root.Flags()
	f.BoolVar(&opts.boot, "boot", false, "Run the boot sequence before serving")
	f.BoolVar(&opts.status, "status", false, "Print a one-shot health snapshot and exit (exit 1 if a critical service is unhealthy)")
	f.IntVar(&opts.port, "port", opts.port, "Override the listen port (defaults LLMVISOR_PORT or settings listen_addr)")
	f.StringVar(&opts.configDir, "config-dir", opts.configDir, "Directory holding models.yaml, services.yaml and llmvisor.yaml (defaults LLMVISOR_CONFIG_DIR)")
	f.StringVar(&opts.logLevel, "log-level", "", "Log level: debug|info|warn|error (defaults settings log_level)")
	return root
}

// loadSettings reads llmvisor.yaml and applies flag and environment overrides.
func loadSettings(opts *cliOptions, getenv func(string) string) (config.Settings, zerolog.Logger, error) {
	st, err := app.LoadSettings(opts.configDir)
	if err != nil {
		return st, zerolog.Nop(), err
	}
	if opts.port > 0 {
		st.ListenAddr = withPort(st.ListenAddr, opts.port)
	}
	if opts.logLevel != "" {
		st.LogLevel = opts.logLevel
	}
	if origins := splitCSV(getenv("LLMVISOR_CORS_ORIGINS")); len(origins) > 0 {
		st.CORS.Enabled = true
		st.CORS.Origins = origins
	}
	log, err := newLogger(st.LogLevel, st.LogFormat)
	return st, log, err
}

func newLogger(level, format string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid log level %q", level)
	}
	var l zerolog.Logger
	if format == "json" {
		l = zerolog.New(os.Stderr)
	} else {
		l = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
	return l.Level(lvl).With().Timestamp().Logger(), nil
}

// withPort replaces the port of addr, keeping its host.
func withPort(addr string, port int) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = ""
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

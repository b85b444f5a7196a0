package cloud

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"llmvisor/internal/ledger"
	"llmvisor/internal/registry"
	"llmvisor/pkg/types"
)

// DefaultTimeout bounds one provider call.
const DefaultTimeout = 90 * time.Second

// Response is a successful cloud answer.
type Response struct {
	Provider     string        `json:"provider"`
	Model        string        `json:"model"`
	Message      types.Message `json:"message"`
	InputTokens  int           `json:"input_tokens"`
	OutputTokens int           `json:"output_tokens"`
	CostUSD      float64       `json:"cost_usd"`
	// Source is "cloud:<provider>".
	Source string `json:"source"`
}

// AttemptError records why one chain candidate did not answer.
type AttemptError struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
	// Skipped means the candidate was never called (missing credential or
	// unknown provider) and is not counted as a provider error.
	Skipped bool   `json:"skipped"`
	Err     string `json:"error"`
}

func (a AttemptError) String() string {
	if a.Skipped {
		return fmt.Sprintf("cloud:%s/%s skipped: %s", a.Provider, a.Model, a.Err)
	}
	return fmt.Sprintf("cloud:%s/%s: %s", a.Provider, a.Model, a.Err)
}

// Config configures a Fallback.
type Config struct {
	Registry  *registry.Registry
	Providers map[string]Provider
	// Ledger receives one entry per successful completion; nil disables costing.
	Ledger  ledger.Store
	Logger  zerolog.Logger
	Timeout time.Duration
	// Getenv resolves credentials; defaults to os.Getenv.
	Getenv func(string) string
	Now    func() time.Time
}

// Fallback walks a role's cloud chain until one provider answers.
type Fallback struct {
	reg       *registry.Registry
	providers map[string]Provider
	ledger    ledger.Store
	log       zerolog.Logger
	timeout   time.Duration
	getenv    func(string) string
	now       func() time.Time
}

var cloudAttempts = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "llmvisor_cloud_attempts_total",
		Help: "Cloud fallback attempts by provider and result (ok, error, skipped).",
	},
	[]string{"provider", "result"},
)

var cloudCostUSD = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "llmvisor_cloud_cost_usd_total",
		Help: "Estimated cloud spend in USD.",
	},
	[]string{"provider"},
)

func init() {
	prometheus.MustRegister(cloudAttempts, cloudCostUSD)
}

func New(cfg Config) *Fallback {
	if cfg.Providers == nil {
		cfg.Providers = DefaultProviders(nil)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Getenv == nil {
		cfg.Getenv = os.Getenv
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Fallback{
		reg:       cfg.Registry,
		providers: cfg.Providers,
		ledger:    cfg.Ledger,
		log:       cfg.Logger,
		timeout:   cfg.Timeout,
		getenv:    cfg.Getenv,
		now:       cfg.Now,
	}
}

// Chat tries each candidate of role's chain in order. On success it returns
// the response and the errors of earlier candidates; otherwise nil and one
// error per candidate.
func (f *Fallback) Chat(ctx context.Context, messages []types.Message, role string) (*Response, []AttemptError) {
	var attempts []AttemptError
	for _, c := range f.reg.FallbackChain(role) {
		envKey := c.EnvKey
		if envKey == "" {
			envKey = DefaultEnvKey(c.Provider)
		}
		p, ok := f.providers[c.Provider]
		if !ok {
			attempts = append(attempts, AttemptError{Provider: c.Provider, Model: c.Model, Skipped: true, Err: "unknown provider"})
			cloudAttempts.WithLabelValues(c.Provider, "skipped").Inc()
			continue
		}
		key := strings.TrimSpace(f.getenv(envKey))
		if key == "" {
			attempts = append(attempts, AttemptError{Provider: c.Provider, Model: c.Model, Skipped: true, Err: envKey + " not set"})
			cloudAttempts.WithLabelValues(c.Provider, "skipped").Inc()
			f.log.Debug().Str("provider", c.Provider).Str("env_key", envKey).Msg("event=cloud_skip missing credential")
			continue
		}

		cctx, cancel := context.WithTimeout(ctx, f.timeout)
		start := time.Now()
		comp, err := p.Chat(cctx, key, c.Model, messages)
		cancel()
		if err != nil {
			attempts = append(attempts, AttemptError{Provider: c.Provider, Model: c.Model, Err: err.Error()})
			cloudAttempts.WithLabelValues(c.Provider, "error").Inc()
			f.log.Warn().Err(err).Str("provider", c.Provider).Str("model", c.Model).Msg("event=cloud_attempt_failed")
			if ctx.Err() != nil {
				return nil, attempts
			}
			continue
		}

		cost := Cost(c.Provider, c.Model, comp.InputTokens, comp.OutputTokens)
		cloudAttempts.WithLabelValues(c.Provider, "ok").Inc()
		cloudCostUSD.WithLabelValues(c.Provider).Add(cost)
		f.record(ctx, types.CostEntry{
			Provider:     c.Provider,
			Model:        comp.Model,
			InputTokens:  comp.InputTokens,
			OutputTokens: comp.OutputTokens,
			CostUSD:      cost,
			Timestamp:    f.now(),
		})
		f.log.Info().Str("provider", c.Provider).Str("model", comp.Model).Float64("cost_usd", cost).
			Dur("dur", time.Since(start)).Msg("event=cloud_fallback_ok")
		return &Response{
			Provider:     c.Provider,
			Model:        comp.Model,
			Message:      types.Message{Role: "assistant", Content: comp.Content},
			InputTokens:  comp.InputTokens,
			OutputTokens: comp.OutputTokens,
			CostUSD:      cost,
			Source:       "cloud:" + c.Provider,
		}, attempts
	}
	return nil, attempts
}

func (f *Fallback) record(ctx context.Context, e types.CostEntry) {
	if f.ledger == nil {
		return
	}
	// A ledger write failure never fails the user's request.
	if err := f.ledger.AppendCost(context.WithoutCancel(ctx), e); err != nil {
		f.log.Error().Err(err).Str("provider", e.Provider).Msg("event=cost_ledger_write_failed")
	}
}

// CostReport totals today's spend (local calendar day of now).
func (f *Fallback) CostReport(ctx context.Context) (types.CostReport, error) {
	return f.CostReportFor(ctx, f.now())
}

// CostReportFor totals spend for the calendar day containing day.
func (f *Fallback) CostReportFor(ctx context.Context, day time.Time) (types.CostReport, error) {
	start := ledger.StartOfDay(day)
	date := start.Format("2006-01-02")
	if f.ledger == nil {
		return ledger.Summarize(date, nil), nil
	}
	entries, err := f.ledger.Costs(ctx, start)
	if err != nil {
		return types.CostReport{}, err
	}
	end := start.AddDate(0, 0, 1)
	kept := entries[:0]
	for _, e := range entries {
		if e.Timestamp.Before(end) {
			kept = append(kept, e)
		}
	}
	return ledger.Summarize(date, kept), nil
}

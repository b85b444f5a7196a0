package router

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"llmvisor/internal/cloud"
	"llmvisor/internal/registry"
	"llmvisor/internal/scheduler"
	"llmvisor/pkg/types"
)

// Sources reported on successful responses.
const (
	SourceLocal  = "local"
	outcomeCloud = "cloud"
	outcomeError = "error"
)

// Request kinds.
const (
	KindChat     = "chat"
	KindGenerate = "generate"
	KindEmbed    = "embed"
)

// Defaults.
const (
	DefaultAttempts     = 3
	DefaultRetryDelay   = 2 * time.Second
	DefaultLocalTimeout = 120 * time.Second
	DefaultEmbedTimeout = 60 * time.Second
	DefaultWindow       = 1000
)

// Backend is the local inference API. *ollama.Client satisfies it.
type Backend interface {
	Chat(ctx context.Context, body map[string]any) (map[string]any, error)
	Generate(ctx context.Context, body map[string]any) (map[string]any, error)
	Embed(ctx context.Context, path string, body map[string]any) (map[string]any, error)
}

// Loader makes a backend model resident. *scheduler.Scheduler satisfies it.
type Loader interface {
	EnsureLoaded(ctx context.Context, model string) error
}

// Fallback answers chat requests from the cloud. *cloud.Fallback satisfies it.
type Fallback interface {
	Chat(ctx context.Context, messages []types.Message, role string) (*cloud.Response, []cloud.AttemptError)
}

// Config configures a Router.
type Config struct {
	Registry     *registry.Registry
	Backend      Backend
	Loader       Loader
	Cloud        Fallback
	Logger       zerolog.Logger
	Attempts     int
	RetryDelay   time.Duration
	LocalTimeout time.Duration
	EmbedTimeout time.Duration
	Window       int
	// Sleep waits between local attempts; defaults to a ctx-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Result is a routed response in the backend's JSON shape.
type Result struct {
	Body   map[string]any
	Model  string
	Source string
}

// Router routes LLM traffic local-first.
type Router struct {
	reg          *registry.Registry
	backend      Backend
	loader       Loader
	cloud        Fallback
	log          zerolog.Logger
	attempts     int
	retryDelay   time.Duration
	localTimeout time.Duration
	embedTimeout time.Duration
	sleep        func(ctx context.Context, d time.Duration) error

	counters counters
	window   *latencyWindow
}

func New(cfg Config) *Router {
	if cfg.Attempts <= 0 {
		cfg.Attempts = DefaultAttempts
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = 0
	}
	if cfg.LocalTimeout <= 0 {
		cfg.LocalTimeout = DefaultLocalTimeout
	}
	if cfg.EmbedTimeout <= 0 {
		cfg.EmbedTimeout = DefaultEmbedTimeout
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleepCtx
	}
	return &Router{
		reg:          cfg.Registry,
		backend:      cfg.Backend,
		loader:       cfg.Loader,
		cloud:        cfg.Cloud,
		log:          cfg.Logger,
		attempts:     cfg.Attempts,
		retryDelay:   cfg.RetryDelay,
		localTimeout: cfg.LocalTimeout,
		embedTimeout: cfg.EmbedTimeout,
		sleep:        cfg.Sleep,
		window:       newLatencyWindow(cfg.Window),
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ProxyChat routes an Ollama /api/chat request.
func (r *Router) ProxyChat(ctx context.Context, body map[string]any) (*Result, error) {
	return r.route(ctx, KindChat, "", body)
}

// ProxyGenerate routes an Ollama /api/generate request.
func (r *Router) ProxyGenerate(ctx context.Context, body map[string]any) (*Result, error) {
	return r.route(ctx, KindGenerate, "", body)
}

// ProxyEmbed routes an embedding request to path (/api/embed or
// /api/embeddings). Embeddings never fall back to the cloud.
func (r *Router) ProxyEmbed(ctx context.Context, path string, body map[string]any) (*Result, error) {
	return r.route(ctx, KindEmbed, path, body)
}

// Metrics returns a snapshot of routing counters and local latency.
func (r *Router) Metrics() types.RouterMetrics {
	m := r.counters.snapshot()
	m.P50MS, m.P95MS = r.window.Percentiles()
	m.WindowSize = r.window.Len()
	return m
}

func (r *Router) route(ctx context.Context, kind, path string, body map[string]any) (*Result, error) {
	if body == nil {
		return nil, badRequestError{msg: "request body must be a JSON object"}
	}
	name, _ := body["model"].(string)
	if strings.TrimSpace(name) == "" {
		name = r.reg.DefaultModel()
	}
	model := r.reg.Resolve(name)
	role := r.reg.RoleForModel(model)

	// Work on a copy so callers keep their payload.
	req := make(map[string]any, len(body)+1)
	for k, v := range body {
		req[k] = v
	}
	req["model"] = model
	req["stream"] = false

	r.counters.request(model)
	log := r.log.With().Str("kind", kind).Str("model", model).Str("requested", name).Logger()

	var tried []string
	skipLocal := false
	if err := r.loader.EnsureLoaded(ctx, model); err != nil {
		if scheduler.IsInsufficientVRAM(err) {
			skipLocal = true
			tried = append(tried, fmt.Sprintf("local:%s: %v", model, err))
			log.Warn().Err(err).Msg("event=local_skipped insufficient vram")
		} else {
			log.Warn().Err(err).Msg("event=ensure_failed trying backend anyway")
		}
	}

	if !skipLocal {
		out, errs := r.tryLocal(ctx, kind, path, req, log)
		if out != nil {
			out["source"] = SourceLocal
			r.counters.outcome(kind, SourceLocal)
			return &Result{Body: out, Model: model, Source: SourceLocal}, nil
		}
		tried = append(tried, errs...)
	}

	if ctx.Err() == nil && kind != KindEmbed && r.cloud != nil {
		msgs, err := messagesFor(kind, req)
		if err != nil {
			r.counters.outcome(kind, outcomeError)
			return nil, err
		}
		resp, attempts := r.cloud.Chat(ctx, msgs, role)
		if resp != nil {
			r.counters.outcome(kind, outcomeCloud)
			log.Info().Str("provider", resp.Provider).Msg("event=cloud_fallback_served")
			return &Result{Body: cloudBody(kind, resp), Model: resp.Model, Source: resp.Source}, nil
		}
		for _, a := range attempts {
			tried = append(tried, a.String())
		}
		if len(attempts) == 0 {
			tried = append(tried, fmt.Sprintf("cloud: no fallback chain for role %q", role))
		}
		r.counters.outcome(kind, outcomeError)
		return nil, &ExhaustedError{Model: model, Role: role, Attempts: tried, Hint: hint(kind, attempts)}
	}

	r.counters.outcome(kind, outcomeError)
	ex := &ExhaustedError{Model: model, Role: role, Attempts: tried, Hint: hint(kind, nil)}
	log.Error().Strs("attempts", tried).Msg("event=route_exhausted")
	return nil, ex
}

// tryLocal calls the backend up to r.attempts times. After attempt N fails it
// waits N x retryDelay before the next one.
func (r *Router) tryLocal(ctx context.Context, kind, path string, req map[string]any, log zerolog.Logger) (map[string]any, []string) {
	var errs []string
	timeout := r.localTimeout
	if kind == KindEmbed {
		timeout = r.embedTimeout
	}
	for attempt := 1; attempt <= r.attempts; attempt++ {
		actx, cancel := context.WithTimeout(ctx, timeout)
		start := time.Now()
		var out map[string]any
		var err error
		switch kind {
		case KindChat:
			out, err = r.backend.Chat(actx, req)
		case KindGenerate:
			out, err = r.backend.Generate(actx, req)
		default:
			out, err = r.backend.Embed(actx, path, req)
		}
		cancel()
		if err == nil {
			d := time.Since(start)
			r.window.Observe(d)
			localLatency.WithLabelValues(kind).Observe(d.Seconds())
			localAttempts.WithLabelValues("ok").Inc()
			return out, errs
		}
		localAttempts.WithLabelValues("error").Inc()
		errs = append(errs, fmt.Sprintf("local:%s attempt %d: %v", req["model"], attempt, err))
		log.Warn().Err(err).Int("attempt", attempt).Msg("event=local_attempt_failed")
		if attempt == r.attempts {
			break
		}
		if err := r.sleep(ctx, time.Duration(attempt)*r.retryDelay); err != nil {
			break
		}
	}
	return nil, errs
}

// messagesFor turns a chat or generate payload into chat messages.
func messagesFor(kind string, req map[string]any) ([]types.Message, error) {
	if kind == KindGenerate {
		var msgs []types.Message
		if sys, _ := req["system"].(string); sys != "" {
			msgs = append(msgs, types.Message{Role: "system", Content: sys})
		}
		prompt, _ := req["prompt"].(string)
		return append(msgs, types.Message{Role: "user", Content: prompt}), nil
	}
	raw, ok := req["messages"].([]any)
	if !ok {
		return nil, badRequestError{msg: "messages must be an array"}
	}
	msgs := make([]types.Message, 0, len(raw))
	for _, m := range raw {
		obj, ok := m.(map[string]any)
		if !ok {
			return nil, badRequestError{msg: "messages entries must be objects"}
		}
		role, _ := obj["role"].(string)
		content, _ := obj["content"].(string)
		msgs = append(msgs, types.Message{Role: role, Content: content})
	}
	return msgs, nil
}

// cloudBody renders a cloud response in the Ollama shape of kind.
func cloudBody(kind string, resp *cloud.Response) map[string]any {
	out := map[string]any{
		"model":             resp.Model,
		"created_at":        time.Now().UTC().Format(time.RFC3339Nano),
		"done":              true,
		"done_reason":       "stop",
		"prompt_eval_count": resp.InputTokens,
		"eval_count":        resp.OutputTokens,
		"source":            resp.Source,
	}
	if kind == KindGenerate {
		out["response"] = resp.Message.Content
	} else {
		out["message"] = map[string]any{"role": resp.Message.Role, "content": resp.Message.Content}
	}
	return out
}

func hint(kind string, attempts []cloud.AttemptError) string {
	h := "check that the inference backend is running (ollama serve) and the model is pulled"
	if kind == KindEmbed {
		return h + "; embeddings are served locally only"
	}
	var keys []string
	for _, a := range attempts {
		if a.Skipped && strings.HasSuffix(a.Err, " not set") {
			keys = append(keys, strings.TrimSuffix(a.Err, " not set"))
		}
	}
	if len(keys) > 0 {
		h += "; set " + strings.Join(keys, " or ") + " to enable cloud fallback"
	}
	return h
}

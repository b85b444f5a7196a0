package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"llmvisor/internal/app"
	"llmvisor/internal/cloud"
	"llmvisor/internal/config"
	"llmvisor/internal/gpu"
	"llmvisor/internal/httpapi"
)

type noGPU struct{}

func (noGPU) Probe(context.Context) (gpu.Stats, error) { return gpu.Stats{}, gpu.ErrNoDevice }

// fakeOllama is a minimal stand-in for the inference backend. When down is
// set, chat and generate fail with 500.
type fakeOllama struct {
	mu    sync.Mutex
	down  bool
	calls []string
}

func (f *fakeOllama) setDown(v bool) {
	f.mu.Lock()
	f.down = v
	f.mu.Unlock()
}

func (f *fakeOllama) record(s string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, s)
	return f.down
}

func (f *fakeOllama) count(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

func (f *fakeOllama) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/ps", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"models":[]}`))
	})
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, r *http.Request) {
		f.record("tags")
		_, _ = w.Write([]byte(`{"models":[{"name":"llama3.1:8b"}]}`))
	})
	mux.HandleFunc("/api/generate", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if _, ok := body["prompt"]; !ok {
			// keep_alive load/unload
			f.record(fmt.Sprintf("load %v %v", body["model"], body["keep_alive"]))
			_, _ = w.Write([]byte(`{"done":true}`))
			return
		}
		if f.record(fmt.Sprintf("generate %v", body["model"])) {
			http.Error(w, `{"error":"model crashed"}`, http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"model": body["model"], "response": "local says hi", "done": true})
	})
	mux.HandleFunc("/api/chat", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if f.record(fmt.Sprintf("chat %v stream=%v", body["model"], body["stream"])) {
			http.Error(w, `{"error":"model crashed"}`, http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"model":   body["model"],
			"message": map[string]any{"role": "assistant", "content": "local says hi"},
			"done":    true,
		})
	})
	return mux
}

// openAIStub answers /chat/completions like the OpenAI API.
func openAIStub(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","model":"gpt-4o-mini",
"choices":[{"index":0,"message":{"role":"assistant","content":"cloud says hi"},"finish_reason":"stop"}],
"usage":{"prompt_tokens":100,"completion_tokens":50,"total_tokens":150}}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	_ = ln.Close()
	return port
}

type stack struct {
	srv    *httptest.Server
	sup    *app.Supervisor
	ollama *fakeOllama
	// svcPort is the tcp port of the "worker" service; nothing listens
	// there until the test binds it.
	svcPort int
}

func newStack(t *testing.T) *stack {
	t.Helper()
	fo := &fakeOllama{}
	osrv := httptest.NewServer(fo.handler())
	t.Cleanup(osrv.Close)
	oai := openAIStub(t)

	port := freePort(t)
	dir := t.TempDir()
	models := `vram_total_gb: 12
vram_reserved_gb: 1
models:
  general:
    ollama_name: llama3.1:8b
    role: general
    vram_gb: 6
    default: true
  coder:
    ollama_name: qwen2.5-coder:7b
    role: coding
    vram_gb: 5
aliases:
  chat: general
cloud_fallback:
  general:
    - provider: openai
      model: gpt-4o-mini
`
	svcs := fmt.Sprintf(`services:
  worker:
    port: %d
    health_check:
      type: tcp
      timeout_seconds: 0.2
    start_command: "true"
    critical: true
    post_start:
      - action: preload_model
        model: coder
boot_phases:
  - phase: 1
    name: workers
    services: [worker]
    timeout_seconds: 1
`, port)
	for name, body := range map[string]string{"models.yaml": models, "services.yaml": svcs} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	st := config.Settings{
		OllamaURL: osrv.URL,
		DataDir:   filepath.Join(dir, "data"),
		Ledger:    "sqlite",
		Router:    config.RouterSettings{RetryDelaySeconds: 0.001},
		Boot:      config.BootSettings{PollIntervalSeconds: 0.01},
	}
	sup, err := app.New(app.Options{
		ConfigDir: dir,
		Settings:  &st,
		Logger:    zerolog.Nop(),
		Probe:     noGPU{},
		Providers: map[string]cloud.Provider{"openai": cloud.NewOpenAICompatible("openai", oai.URL, oai.Client())},
		Getenv: func(k string) string {
			if k == "OPENAI_API_KEY" {
				return "sk-test"
			}
			return ""
		},
	})
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	sup.Start(context.Background())
	srv := httptest.NewServer(httpapi.NewMux(sup))
	t.Cleanup(func() {
		srv.Close()
		_ = sup.Close(context.Background())
	})
	return &stack{srv: srv, sup: sup, ollama: fo, svcPort: port}
}

func (s *stack) post(t *testing.T, path string, body any, out any) int {
	t.Helper()
	b, _ := json.Marshal(body)
	resp, err := http.Post(s.srv.URL+path, "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	defer resp.Body.Close()
	decode(t, resp.Body, out)
	return resp.StatusCode
}

func (s *stack) get(t *testing.T, path string, out any) int {
	t.Helper()
	resp, err := http.Get(s.srv.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	decode(t, resp.Body, out)
	return resp.StatusCode
}

func decode(t *testing.T, r io.Reader, out any) {
	t.Helper()
	if out == nil {
		_, _ = io.Copy(io.Discard, r)
		return
	}
	if err := json.NewDecoder(r).Decode(out); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

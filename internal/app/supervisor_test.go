package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"llmvisor/internal/config"
	"llmvisor/internal/gpu"
	"llmvisor/internal/scheduler"
)

type noGPU struct{}

func (noGPU) Probe(context.Context) (gpu.Stats, error) { return gpu.Stats{}, gpu.ErrNoDevice }

// fakeOllama records load calls and reports small:1b as already resident.
type fakeOllama struct {
	mu    sync.Mutex
	loads []string
}

func (f *fakeOllama) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/ps", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"models":[{"name":"small:1b","model":"small:1b","size_vram":2147483648}]}`))
	})
	mux.HandleFunc("/api/generate", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.loads = append(f.loads, fmt.Sprint(body["model"]))
		f.mu.Unlock()
		_, _ = w.Write([]byte(`{"done":true}`))
	})
	return mux
}

func closedPort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	_ = ln.Close()
	return port
}

func writeConfig(t *testing.T, port int) string {
	t.Helper()
	dir := t.TempDir()
	models := `vram_total_gb: 10
vram_reserved_gb: 1
models:
  small:
    ollama_name: small:1b
    role: general
    vram_gb: 2
    default: true
  coder:
    ollama_name: coder:7b
    role: coding
    vram_gb: 5
aliases:
  code: coder
`
	svcs := fmt.Sprintf(`services:
  db:
    name: Database
    port: %d
    health_check:
      type: tcp
      port: %d
      timeout_seconds: 0.2
    start_command: "true"
    critical: true
boot_phases:
  - phase: 1
    name: core
    services: [db]
    timeout_seconds: 1
restart_policy:
  max_retries: 1
  retry_delay_seconds: 0.01
`, port, port)
	for name, body := range map[string]string{"models.yaml": models, "services.yaml": svcs} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return dir
}

func newSupervisor(t *testing.T) (*Supervisor, *fakeOllama) {
	t.Helper()
	fo := &fakeOllama{}
	srv := httptest.NewServer(fo.handler())
	t.Cleanup(srv.Close)
	st := config.Settings{OllamaURL: srv.URL, DataDir: t.TempDir()}
	sup, err := New(Options{
		ConfigDir: writeConfig(t, closedPort(t)),
		Settings:  &st,
		Logger:    zerolog.Nop(),
		Probe:     noGPU{},
		Getenv:    func(string) string { return "" },
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = sup.Close(context.Background()) })
	return sup, fo
}

func TestStart_AdoptsRunningModelsAndBecomesReady(t *testing.T) {
	sup, _ := newSupervisor(t)
	if sup.Ready() {
		t.Fatalf("ready before Start")
	}
	sup.Start(context.Background())
	if !sup.Ready() {
		t.Fatalf("not ready after Start")
	}
	if !sup.Scheduler.IsLoaded("small:1b") {
		t.Fatalf("expected small:1b adopted from /api/ps")
	}
	m := sup.Models()
	if m.Default != "small:1b" || len(m.Models) != 2 {
		t.Fatalf("models=%+v", m)
	}
	for _, v := range m.Models {
		if v.Key == "small" && !v.Loaded {
			t.Fatalf("small should be reported loaded")
		}
	}
	deadline := time.Now().Add(2 * time.Second)
	for !sup.Guardian.Running() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if !sup.Guardian.Running() {
		t.Fatalf("guardian not running")
	}
	if err := sup.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if sup.Ready() {
		t.Fatalf("still ready after Close")
	}
}

func TestStatus_ReportsCriticalUnhealthy(t *testing.T) {
	sup, _ := newSupervisor(t)
	st := sup.Status(context.Background())
	if len(st.CriticalUnhealthy) != 1 || st.CriticalUnhealthy[0] != "db" {
		t.Fatalf("critical_unhealthy=%v", st.CriticalUnhealthy)
	}
	if st.Scheduler.TotalGB != 10 || st.Scheduler.ReservedGB != 1 {
		t.Fatalf("scheduler=%+v", st.Scheduler)
	}
}

func TestLoadModel_ResolvesAlias(t *testing.T) {
	sup, fo := newSupervisor(t)
	model, err := sup.LoadModel(context.Background(), "code")
	if err != nil {
		t.Fatalf("LoadModel: %v", err)
	}
	if model != "coder:7b" || !sup.Scheduler.IsLoaded("coder:7b") {
		t.Fatalf("model=%s loaded=%v", model, sup.Scheduler.IsLoaded("coder:7b"))
	}
	fo.mu.Lock()
	defer fo.mu.Unlock()
	if len(fo.loads) != 1 || fo.loads[0] != "coder:7b" {
		t.Fatalf("loads=%v", fo.loads)
	}
}

func TestSchedulerEvents_NewestFirst(t *testing.T) {
	sup, _ := newSupervisor(t)
	if _, err := sup.LoadModel(context.Background(), "code"); err != nil {
		t.Fatalf("LoadModel: %v", err)
	}
	evs := sup.SchedulerEvents().Events
	if len(evs) < 2 {
		t.Fatalf("events=%+v", evs)
	}
	if evs[0].Name != scheduler.EventLoadOK || evs[0].Model != "coder:7b" || evs[0].Time == 0 {
		t.Fatalf("newest event=%+v", evs[0])
	}
	if evs[len(evs)-1].Name != scheduler.EventEnsureStart {
		t.Fatalf("oldest event=%+v", evs[len(evs)-1])
	}
}

func TestServiceAction_Errors(t *testing.T) {
	sup, _ := newSupervisor(t)
	type statusCoder interface{ StatusCode() int }

	_, err := sup.ServiceAction(context.Background(), "db", "explode")
	sc, ok := err.(statusCoder)
	if !ok || sc.StatusCode() != http.StatusBadRequest {
		t.Fatalf("bad action err=%v", err)
	}
	_, err = sup.ServiceAction(context.Background(), "nope", ActionReset)
	sc, ok = err.(statusCoder)
	if !ok || sc.StatusCode() != http.StatusNotFound {
		t.Fatalf("reset unknown err=%v", err)
	}
	resp, err := sup.ServiceAction(context.Background(), "db", ActionReset)
	if err != nil || resp.Outcome != "reset" {
		t.Fatalf("reset db resp=%+v err=%v", resp, err)
	}
}

func TestAlerts_EmptyIsNonNil(t *testing.T) {
	sup, _ := newSupervisor(t)
	a, err := sup.Alerts(context.Background(), 10)
	if err != nil {
		t.Fatalf("Alerts: %v", err)
	}
	if a.Alerts == nil || len(a.Alerts) != 0 {
		t.Fatalf("alerts=%#v", a.Alerts)
	}
}

func TestNew_MalformedModelsIsConfigError(t *testing.T) {
	dir := writeConfig(t, closedPort(t))
	if err := os.WriteFile(filepath.Join(dir, "models.yaml"), []byte("models: [oops\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	st := config.Settings{DataDir: t.TempDir()}
	_, err := New(Options{ConfigDir: dir, Settings: &st, Logger: zerolog.Nop()})
	if !config.IsConfigError(err) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
}

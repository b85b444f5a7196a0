package boot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"llmvisor/internal/services"
	"llmvisor/pkg/types"
)

// fakeGraph marks a service healthy once started unless healthyAfter is
// negative; startDelay postpones that. Like the real graph, a start with an
// unhealthy dependency fails.
type fakeGraph struct {
	mu           sync.Mutex
	phases       []services.BootPhase
	svcs         map[string]services.Service
	healthy      map[string]bool
	healthyAfter map[string]int
	startDelay   map[string]time.Duration
	checks       map[string]int
	startErr     map[string]error
	started      []string
}

func newFakeGraph(phases ...services.BootPhase) *fakeGraph {
	g := &fakeGraph{
		phases:       phases,
		svcs:         map[string]services.Service{},
		healthy:      map[string]bool{},
		healthyAfter: map[string]int{},
		startDelay:   map[string]time.Duration{},
		checks:       map[string]int{},
		startErr:     map[string]error{},
	}
	for _, p := range phases {
		for _, id := range p.Services {
			g.svcs[id] = services.Service{ID: id}
		}
	}
	return g
}

func (g *fakeGraph) BootPhases() []services.BootPhase { return g.phases }

func (g *fakeGraph) Service(id string) (services.Service, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.svcs[id]
	return s, ok
}

func (g *fakeGraph) CheckHealth(_ context.Context, id string) services.HealthResult {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.healthy[id] {
		return services.HealthResult{ID: id, Status: services.StatusHealthy}
	}
	return services.HealthResult{ID: id, Status: services.StatusUnhealthy, Detail: "connection refused"}
}

func (g *fakeGraph) StartService(_ context.Context, id string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.started = append(g.started, id)
	if err := g.startErr[id]; err != nil {
		return "", err
	}
	for _, dep := range g.svcs[id].DependsOn {
		if !g.healthy[dep] {
			return "", &services.DependencyUnhealthyError{Service: id, Dependency: dep, Status: services.StatusUnhealthy}
		}
	}
	if g.healthyAfter[id] < 0 {
		return services.OutcomeStarted, nil
	}
	if d := g.startDelay[id]; d > 0 {
		time.AfterFunc(d, func() {
			g.mu.Lock()
			g.healthy[id] = true
			g.mu.Unlock()
		})
		return services.OutcomeStarted, nil
	}
	g.healthy[id] = true
	return services.OutcomeStarted, nil
}

func (g *fakeGraph) startedIDs() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.started...)
}

type fakeLoader struct {
	mu     sync.Mutex
	loaded []string
	err    error
}

func (l *fakeLoader) EnsureLoaded(_ context.Context, model string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.loaded = append(l.loaded, model)
	return l.err
}

type aliasResolver map[string]string

func (r aliasResolver) Resolve(name string) string {
	if v, ok := r[name]; ok {
		return v
	}
	return name
}

func outcomeOf(rep types.BootReport, id string) string {
	for _, p := range rep.Phases {
		for _, o := range p.Services {
			if o.Service == id {
				return o.Outcome
			}
		}
	}
	return ""
}

func TestRun_AlreadyRunningIsNotRestarted(t *testing.T) {
	g := newFakeGraph(services.BootPhase{Phase: 1, Name: "core", Services: []string{"ollama"}, Timeout: time.Second})
	g.healthy["ollama"] = true
	g.svcs["ollama"] = services.Service{ID: "ollama", PostStart: []services.PostStart{{Action: ActionPreloadModel, Model: "chat"}}}
	ld := &fakeLoader{}
	seq := New(Config{Graph: g, Loader: ld, Resolver: aliasResolver{"chat": "llama3.1:8b"}, PollInterval: time.Millisecond})

	rep := seq.Run(context.Background())
	if !rep.OK || len(rep.Errors) != 0 {
		t.Fatalf("expected ok report, got %+v", rep)
	}
	if got := outcomeOf(rep, "ollama"); got != OutcomeAlreadyRunning {
		t.Fatalf("outcome=%q", got)
	}
	if len(g.startedIDs()) != 0 {
		t.Fatalf("healthy service must not be started: %v", g.startedIDs())
	}
	if len(ld.loaded) != 1 || ld.loaded[0] != "llama3.1:8b" {
		t.Fatalf("preload should use the resolved name: %v", ld.loaded)
	}
	if rep.RunID == "" {
		t.Fatalf("missing run id")
	}
}

func TestRun_StartedThenPreload(t *testing.T) {
	g := newFakeGraph(services.BootPhase{Phase: 1, Services: []string{"a", "b"}, Timeout: time.Second})
	g.svcs["a"] = services.Service{ID: "a", PostStart: []services.PostStart{{Action: ActionPreloadModel, Model: "qwen"}}}
	ld := &fakeLoader{}
	rep := New(Config{Graph: g, Loader: ld, PollInterval: time.Millisecond}).Run(context.Background())

	if !rep.OK {
		t.Fatalf("errors: %v", rep.Errors)
	}
	for _, id := range []string{"a", "b"} {
		if got := outcomeOf(rep, id); got != OutcomeStarted {
			t.Fatalf("%s outcome=%q", id, got)
		}
	}
	if len(ld.loaded) != 1 || ld.loaded[0] != "qwen" {
		t.Fatalf("loaded=%v", ld.loaded)
	}
}

func TestRun_TimeoutSkipsPostStart(t *testing.T) {
	g := newFakeGraph(services.BootPhase{Phase: 1, Services: []string{"slow"}, Timeout: 30 * time.Millisecond})
	g.healthyAfter["slow"] = -1
	g.svcs["slow"] = services.Service{ID: "slow", PostStart: []services.PostStart{{Action: ActionPreloadModel, Model: "m"}}}
	ld := &fakeLoader{}
	rep := New(Config{Graph: g, Loader: ld, PollInterval: 5 * time.Millisecond}).Run(context.Background())

	if rep.OK {
		t.Fatalf("expected failure")
	}
	if got := outcomeOf(rep, "slow"); got != OutcomeTimeout {
		t.Fatalf("outcome=%q", got)
	}
	if len(ld.loaded) != 0 {
		t.Fatalf("post-start must not run after timeout: %v", ld.loaded)
	}
	if len(rep.Errors) != 1 || !strings.Contains(rep.Errors[0], "slow") {
		t.Fatalf("errors=%v", rep.Errors)
	}
}

func TestRun_ContinuesAfterFailureByDefault(t *testing.T) {
	g := newFakeGraph(
		services.BootPhase{Phase: 1, Services: []string{"db"}, Timeout: time.Second},
		services.BootPhase{Phase: 2, Services: []string{"api"}, Timeout: time.Second},
	)
	g.startErr["db"] = errors.New("boom")
	rep := New(Config{Graph: g, PollInterval: time.Millisecond}).Run(context.Background())

	if got := outcomeOf(rep, "db"); got != OutcomeFailed {
		t.Fatalf("db outcome=%q", got)
	}
	if got := outcomeOf(rep, "api"); got != OutcomeStarted {
		t.Fatalf("api outcome=%q", got)
	}
	if rep.OK {
		t.Fatalf("report must not be ok")
	}
}

func TestRun_HaltOnFailureSkipsLaterPhases(t *testing.T) {
	g := newFakeGraph(
		services.BootPhase{Phase: 1, Services: []string{"db"}, Timeout: time.Second},
		services.BootPhase{Phase: 2, Services: []string{"api", "ui"}, Timeout: time.Second},
	)
	g.startErr["db"] = errors.New("boom")
	rep := New(Config{Graph: g, PollInterval: time.Millisecond, HaltOnFailure: true}).Run(context.Background())

	for _, id := range []string{"api", "ui"} {
		if got := outcomeOf(rep, id); got != OutcomeSkipped {
			t.Fatalf("%s outcome=%q", id, got)
		}
	}
	if ids := g.startedIDs(); len(ids) != 1 || ids[0] != "db" {
		t.Fatalf("started=%v", ids)
	}
	if len(rep.Phases) != 2 {
		t.Fatalf("phases=%d", len(rep.Phases))
	}
}

func TestRun_DependencyUnhealthyIsFailed(t *testing.T) {
	g := newFakeGraph(services.BootPhase{Phase: 1, Services: []string{"api"}, Timeout: time.Second})
	g.startErr["api"] = &services.DependencyUnhealthyError{Service: "api", Dependency: "db", Status: services.StatusUnhealthy}
	rep := New(Config{Graph: g, PollInterval: time.Millisecond}).Run(context.Background())

	if got := outcomeOf(rep, "api"); got != OutcomeFailed {
		t.Fatalf("outcome=%q", got)
	}
	if len(rep.Errors) != 1 || !strings.Contains(rep.Errors[0], "db") {
		t.Fatalf("errors=%v", rep.Errors)
	}
}

func TestRun_PreloadFailureIsReported(t *testing.T) {
	g := newFakeGraph(services.BootPhase{Phase: 1, Services: []string{"ollama"}, Timeout: time.Second})
	g.healthy["ollama"] = true
	g.svcs["ollama"] = services.Service{ID: "ollama", PostStart: []services.PostStart{{Action: ActionPreloadModel, Model: "m"}}}
	rep := New(Config{Graph: g, Loader: &fakeLoader{err: errors.New("no vram")}, PollInterval: time.Millisecond}).Run(context.Background())

	if rep.OK || len(rep.Errors) != 1 || !strings.Contains(rep.Errors[0], "preload m") {
		t.Fatalf("report=%+v", rep)
	}
	if got := outcomeOf(rep, "ollama"); got != OutcomeAlreadyRunning {
		t.Fatalf("outcome=%q", got)
	}
}

func TestRun_WaitsForSamePhaseDependency(t *testing.T) {
	g := newFakeGraph(services.BootPhase{Phase: 1, Name: "core", Services: []string{"api", "db"}, Timeout: 2 * time.Second})
	g.svcs["api"] = services.Service{ID: "api", DependsOn: []string{"db"}}
	g.startDelay["db"] = 50 * time.Millisecond
	rep := New(Config{Graph: g, PollInterval: 5 * time.Millisecond}).Run(context.Background())

	if !rep.OK {
		t.Fatalf("errors: %v", rep.Errors)
	}
	for _, id := range []string{"api", "db"} {
		if got := outcomeOf(rep, id); got != OutcomeStarted {
			t.Fatalf("%s outcome=%q", id, got)
		}
	}
	if ids := g.startedIDs(); len(ids) != 2 || ids[0] != "db" {
		t.Fatalf("db must start before api: %v", ids)
	}
}

func TestRun_SamePhaseDependencyTimesOut(t *testing.T) {
	g := newFakeGraph(services.BootPhase{Phase: 1, Services: []string{"api", "db"}, Timeout: 40 * time.Millisecond})
	g.svcs["api"] = services.Service{ID: "api", DependsOn: []string{"db"}}
	g.healthyAfter["db"] = -1
	rep := New(Config{Graph: g, PollInterval: 5 * time.Millisecond}).Run(context.Background())

	if got := outcomeOf(rep, "api"); got != OutcomeTimeout {
		t.Fatalf("api outcome=%q", got)
	}
	for _, id := range g.startedIDs() {
		if id == "api" {
			t.Fatalf("api must not be started while db is unhealthy")
		}
	}
	found := false
	for _, e := range rep.Errors {
		if strings.Contains(e, "api: dependency db") {
			found = true
		}
	}
	if !found {
		t.Fatalf("errors=%v", rep.Errors)
	}
}

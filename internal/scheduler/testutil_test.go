package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"llmvisor/internal/config"
	"llmvisor/internal/ollama"
	"llmvisor/internal/registry"
)

// fakeBackend records load/unload calls and can be told to fail.
type fakeBackend struct {
	mu        sync.Mutex
	calls     []string
	loadErr   map[string]error
	unloadErr map[string]error
	running   []ollama.RunningModel
	delay     time.Duration
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{loadErr: map[string]error{}, unloadErr: map[string]error{}}
}

func (f *fakeBackend) Load(ctx context.Context, model string, embedding bool) error {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "load:"+model)
	return f.loadErr[model]
}

func (f *fakeBackend) Unload(ctx context.Context, model string, embedding bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "unload:"+model)
	return f.unloadErr[model]
}

func (f *fakeBackend) Running(ctx context.Context) ([]ollama.RunningModel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running, nil
}

func (f *fakeBackend) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

// fakeClock advances one second per call so LRU ordering is deterministic.
type fakeClock struct {
	mu  sync.Mutex
	cur time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cur = c.cur.Add(time.Second)
	return c.cur
}

func newTestRegistry(t *testing.T, total, reserved float64, models map[string]config.ModelEntry) *registry.Registry {
	t.Helper()
	reg, err := registry.New(config.ModelsFile{VRAMTotalGB: total, VRAMReservedGB: reserved, Models: models}, "test")
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	return reg
}

func newTestScheduler(t *testing.T, reg *registry.Registry, be *fakeBackend) (*Scheduler, *MemoryPublisher) {
	t.Helper()
	pub := NewMemoryPublisher(0)
	clk := &fakeClock{cur: time.Unix(1700000000, 0)}
	s := New(Config{Registry: reg, Backend: be, Publisher: pub, now: clk.Now})
	return s, pub
}

func hasEvent(names []string, want string) bool {
	for _, n := range names {
		if n == want {
			return true
		}
	}
	return false
}

package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

type recorded struct {
	path string
	body map[string]any
}

func newBackend(t *testing.T, status int, reply any) (*httptest.Server, *[]recorded) {
	t.Helper()
	var mu sync.Mutex
	var calls []recorded
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&body)
		}
		mu.Lock()
		calls = append(calls, recorded{path: r.URL.Path, body: body})
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(reply)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestChatForwardsBodyAndDecodes(t *testing.T) {
	srv, calls := newBackend(t, http.StatusOK, map[string]any{"model": "m", "message": map[string]any{"role": "assistant", "content": "hi"}, "done": true})
	c := New(srv.URL + "/")
	out, err := c.Chat(context.Background(), map[string]any{"model": "m", "stream": false, "options": map[string]any{"seed": 1}})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if out["done"] != true {
		t.Fatalf("unexpected reply: %v", out)
	}
	if len(*calls) != 1 || (*calls)[0].path != "/api/chat" {
		t.Fatalf("unexpected calls: %+v", *calls)
	}
	if _, ok := (*calls)[0].body["options"]; !ok {
		t.Fatalf("unknown fields must be forwarded: %+v", (*calls)[0].body)
	}
}

func TestNon200IsBackendError(t *testing.T) {
	srv, _ := newBackend(t, http.StatusNotFound, map[string]any{"error": "model not found"})
	c := New(srv.URL)
	_, err := c.Generate(context.Background(), map[string]any{"model": "x"})
	if err == nil || !IsBackendError(err) {
		t.Fatalf("expected backend error, got %v", err)
	}
	be := err.(*BackendError)
	if be.Status != http.StatusNotFound || be.Path != "/api/generate" {
		t.Fatalf("unexpected error fields: %+v", be)
	}
}

func TestLoadAndUnloadUseKeepAlive(t *testing.T) {
	srv, calls := newBackend(t, http.StatusOK, map[string]any{"done": true})
	c := New(srv.URL)
	ctx := context.Background()
	if err := c.Load(ctx, "chat:7b", false); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := c.Unload(ctx, "embed:1b", true); err != nil {
		t.Fatalf("unload: %v", err)
	}
	got := *calls
	if got[0].path != "/api/generate" || got[0].body["keep_alive"] != float64(-1) {
		t.Fatalf("unexpected load call: %+v", got[0])
	}
	if got[1].path != "/api/embed" || got[1].body["keep_alive"] != float64(0) {
		t.Fatalf("unexpected unload call: %+v", got[1])
	}
}

func TestRunningParsesPS(t *testing.T) {
	srv, _ := newBackend(t, http.StatusOK, map[string]any{"models": []map[string]any{{"name": "a:1b", "model": "a:1b", "size_vram": 1024}}})
	models, err := New(srv.URL).Running(context.Background())
	if err != nil {
		t.Fatalf("running: %v", err)
	}
	if len(models) != 1 || models[0].Name != "a:1b" || models[0].SizeVRAM != 1024 {
		t.Fatalf("unexpected models: %+v", models)
	}
}

func TestTimeoutIsDetected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := New(srv.URL).Chat(ctx, map[string]any{"model": "m"})
	if err == nil || !IsTimeout(err) {
		t.Fatalf("expected timeout, got %v", err)
	}
}

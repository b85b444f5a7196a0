package main_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"syscall"
	"testing"
	"time"
)

// findFreePort picks an available TCP port on localhost.
func findFreePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func projectRoot(t *testing.T) string {
	t.Helper()
	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("runtime.Caller failed")
	}
	// this file: <root>/cmd/llmvisor/blackbox_test.go
	return filepath.Dir(filepath.Dir(filepath.Dir(thisFile)))
}

func buildBinary(t *testing.T) string {
	t.Helper()
	binPath := filepath.Join(t.TempDir(), "llmvisor")
	cmd := exec.Command("go", "build", "-o", binPath, "./cmd/llmvisor")
	cmd.Dir = projectRoot(t)
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("go build failed: %v\n%s", err, string(out))
	}
	return binPath
}

func writeConfigDir(t *testing.T, ollamaPort int) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"llmvisor.yaml": fmt.Sprintf("ollama_url: http://127.0.0.1:%d\ndata_dir: %s\nlog_format: json\nguardian_interval_seconds: 1\n",
			ollamaPort, filepath.Join(dir, "data")),
		"models.yaml":   "vram_total_gb: 8\nvram_reserved_gb: 0.5\nmodels:\n  small:\n    ollama_name: small:1b\n    vram_gb: 2\n    default: true\n",
		"services.yaml": "services:\n  idle:\n    port: 1\n    on_demand: true\n",
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return dir
}

func get(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	b, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, b
}

func TestBlackbox_ServeAndShutdown(t *testing.T) {
	if testing.Short() {
		t.Skip("builds the binary")
	}
	bin := buildBinary(t)
	port := findFreePort(t)
	dir := writeConfigDir(t, findFreePort(t))
	base := fmt.Sprintf("http://127.0.0.1:%d", port)

	cmd := exec.Command(bin, "--config-dir", dir, "--port", fmt.Sprint(port), "--log-level", "warn")
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { _ = cmd.Process.Kill() })

	deadline := time.Now().Add(10 * time.Second)
	for {
		resp, err := http.Get(base + "/readyz")
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				break
			}
		}
		if time.Now().After(deadline) {
			t.Fatalf("server did not become ready in time")
		}
		time.Sleep(50 * time.Millisecond)
	}

	resp, body := get(t, base+"/supervisor/status")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/supervisor/status %d %s", resp.StatusCode, string(body))
	}
	var st struct {
		Scheduler struct {
			TotalGB float64 `json:"total_gb"`
		} `json:"scheduler"`
		CriticalUnhealthy []string `json:"critical_unhealthy"`
	}
	if err := json.Unmarshal(body, &st); err != nil {
		t.Fatalf("json: %v body=%s", err, string(body))
	}
	if st.Scheduler.TotalGB != 8 || len(st.CriticalUnhealthy) != 0 {
		t.Fatalf("status=%+v", st)
	}

	// The backend is down: passthrough answers 502 rather than hanging.
	if resp, body = get(t, base+"/api/tags"); resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("/api/tags %d %s", resp.StatusCode, string(body))
	}

	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		t.Fatalf("signal: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("exit: %v", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatalf("server did not exit after SIGTERM")
	}
}

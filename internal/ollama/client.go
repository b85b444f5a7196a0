package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client talks to an Ollama-compatible inference backend. Every call takes a
// context; callers attach the deadline.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// New returns a client for baseURL. The http.Client carries no global timeout:
// per-call deadlines come from the context.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP: &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        64,
				MaxIdleConnsPerHost: 32,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// Chat performs a non-streaming /api/chat call. body is forwarded as-is so
// unknown request fields survive.
func (c *Client) Chat(ctx context.Context, body map[string]any) (map[string]any, error) {
	var out map[string]any
	if err := c.postJSON(ctx, "/api/chat", body, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Generate performs a non-streaming /api/generate call.
func (c *Client) Generate(ctx context.Context, body map[string]any) (map[string]any, error) {
	var out map[string]any
	if err := c.postJSON(ctx, "/api/generate", body, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Embed calls the embedding endpoint at path (/api/embed or the legacy
// /api/embeddings).
func (c *Client) Embed(ctx context.Context, path string, body map[string]any) (map[string]any, error) {
	if path == "" {
		path = "/api/embed"
	}
	var out map[string]any
	if err := c.postJSON(ctx, path, body, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Load asks the backend to load model and keep it resident until unloaded.
// Embedding models cannot be loaded through /api/generate.
func (c *Client) Load(ctx context.Context, model string, embedding bool) error {
	return c.keepAlive(ctx, model, embedding, -1)
}

// Unload asks the backend to release model immediately.
func (c *Client) Unload(ctx context.Context, model string, embedding bool) error {
	return c.keepAlive(ctx, model, embedding, 0)
}

func (c *Client) keepAlive(ctx context.Context, model string, embedding bool, keepAlive int) error {
	body := map[string]any{"model": model, "keep_alive": keepAlive}
	path := "/api/generate"
	if embedding {
		path = "/api/embed"
		body["input"] = ""
	} else {
		body["stream"] = false
	}
	return c.postJSON(ctx, path, body, nil)
}

// RunningModel is one entry of /api/ps.
type RunningModel struct {
	Name      string    `json:"name"`
	Model     string    `json:"model"`
	Size      int64     `json:"size"`
	SizeVRAM  int64     `json:"size_vram"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Running lists the models the backend currently holds in memory.
func (c *Client) Running(ctx context.Context) ([]RunningModel, error) {
	var out struct {
		Models []RunningModel `json:"models"`
	}
	if err := c.getJSON(ctx, "/api/ps", &out); err != nil {
		return nil, err
	}
	return out.Models, nil
}

// Version returns the backend version string; used as a cheap liveness probe.
func (c *Client) Version(ctx context.Context) (string, error) {
	var out struct {
		Version string `json:"version"`
	}
	if err := c.getJSON(ctx, "/api/version", &out); err != nil {
		return "", err
	}
	return out.Version, nil
}

func (c *Client) postJSON(ctx context.Context, path string, body any, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, path, out)
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, path, out)
}

func (c *Client) do(req *http.Request, path string, out any) error {
	res, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("backend %s: %w", path, err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return &BackendError{Path: path, Status: res.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, res.Body)
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("backend %s: decode: %w", path, err)
	}
	return nil
}

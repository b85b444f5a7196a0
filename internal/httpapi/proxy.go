package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// proxyFunc is one routed backend call.
type proxyFunc func(ctx context.Context, body map[string]any) (map[string]any, error)

func mountProxy(r chi.Router, svc Service) {
	r.Post("/chat", proxyHandler("chat", svc.ProxyChat))
	r.Post("/generate", proxyHandler("generate", svc.ProxyGenerate))
	for _, p := range []string{"/embed", "/embeddings"} {
		path := "/api" + p
		r.Post(p, proxyHandler("embed", func(ctx context.Context, body map[string]any) (map[string]any, error) {
			return svc.ProxyEmbed(ctx, path, body)
		}))
	}

	pass := svc.Passthrough()
	r.Get("/tags", pass.ServeHTTP)
	r.Post("/pull", pass.ServeHTTP)
	r.Post("/show", pass.ServeHTTP)
	r.Get("/ps", pass.ServeHTTP)
	r.Get("/version", pass.ServeHTTP)
}

func proxyHandler(kind string, call proxyFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body == nil {
			writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		model, _ := body["model"].(string)
		pl := startProxyLog(r, kind)

		ctx, cancel := handlerContext(r)
		defer cancel()
		out, err := call(ctx, body)
		if err != nil {
			// Client went away or the server is shutting down.
			if r.Context().Err() != nil || serverBaseCtx.Err() != nil {
				pl.end(499, model, err)
				return
			}
			status := statusFor(err)
			pl.end(status, model, err)
			writeError(w, err)
			return
		}
		if m, ok := out["model"].(string); ok {
			model = m
		}
		pl.end(http.StatusOK, model, nil)
		writeJSON(w, http.StatusOK, out)
	}
}

// serverBaseCtx is a process-level context that can be canceled on shutdown.
var serverBaseCtx = context.Background()

// SetBaseContext sets the process-level base context used by proxy handlers
// so shutdown cancels in-flight backend calls.
func SetBaseContext(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	serverBaseCtx = ctx
}

// handlerContext derives the request context and also cancels it when the
// server base context ends.
func handlerContext(r *http.Request) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(r.Context())
	stop := context.AfterFunc(serverBaseCtx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

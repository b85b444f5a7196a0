package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"llmvisor/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
// *app.Supervisor implements it.
type Service interface {
	Ready() bool
	Status(ctx context.Context) types.StatusResponse
	Models() types.ModelsResponse
	LoadModel(ctx context.Context, name string) (string, error)
	UnloadModel(ctx context.Context, name string) (string, error)
	GPU(ctx context.Context) types.GPUStats
	Services(ctx context.Context) types.ServicesResponse
	Service(ctx context.Context, id string) (types.ServiceStatus, error)
	ServiceAction(ctx context.Context, id, action string) (types.ServiceActionResponse, error)
	RunBoot(ctx context.Context) types.BootReport
	RouterMetrics() types.RouterMetrics
	CostsToday(ctx context.Context) (types.CostReport, error)
	GuardianStatus() types.GuardianResponse
	SchedulerEvents() types.SchedulerEventsResponse
	Alerts(ctx context.Context, limit int) (types.AlertsResponse, error)

	ProxyChat(ctx context.Context, body map[string]any) (map[string]any, error)
	ProxyGenerate(ctx context.Context, body map[string]any) (map[string]any, error)
	ProxyEmbed(ctx context.Context, path string, body map[string]any) (map[string]any, error)
	// Passthrough forwards backend endpoints that need no routing.
	Passthrough() http.Handler
}

// NewMux builds the full HTTP surface: management routes under /supervisor,
// the Ollama-compatible proxy under /api, plus probes and metrics.
func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   corsAllowedOrigins,
			AllowedMethods:   corsAllowedMethods,
			AllowedHeaders:   corsAllowedHeaders,
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	r.Route("/supervisor", func(r chi.Router) {
		r.Use(middleware.Compress(5))
		mountSupervisor(r, svc)
	})
	r.Route("/api", func(r chi.Router) {
		mountProxy(r, svc)
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("loading"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zlog.Debug().Err(err).Msg("encode response")
	}
}

//go:build swagger

package httpapi

import (
	"github.com/go-chi/chi/v5"
	httpSwagger "github.com/swaggo/http-swagger"
	"github.com/swaggo/swag"
)

// apiDoc is a hand-maintained OpenAPI description of the management and
// proxy routes.
type apiDoc struct{}

func (apiDoc) ReadDoc() string { return openAPIDoc }

func init() { swag.Register(swag.Name, apiDoc{}) }

// MountSwagger serves the Swagger UI at /swagger/.
func MountSwagger(r chi.Router) {
	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))
}

const openAPIDoc = `{
  "swagger": "2.0",
  "info": {
    "title": "llmvisor API",
    "description": "Local LLM runtime supervisor: model scheduling, service graph and Ollama-compatible proxy.",
    "version": "1.0"
  },
  "basePath": "/",
  "schemes": ["http"],
  "paths": {
    "/supervisor/status": {"get": {"summary": "Aggregate status", "responses": {"200": {"description": "OK"}}}},
    "/supervisor/models": {"get": {"summary": "Registry with residency", "responses": {"200": {"description": "OK"}}}},
    "/supervisor/models/{name}/load": {"post": {"summary": "Load a model", "parameters": [{"name": "name", "in": "path", "required": true, "type": "string"}], "responses": {"200": {"description": "OK"}, "503": {"description": "Insufficient VRAM"}}}},
    "/supervisor/models/{name}/unload": {"post": {"summary": "Unload a model", "parameters": [{"name": "name", "in": "path", "required": true, "type": "string"}], "responses": {"200": {"description": "OK"}, "404": {"description": "Not loaded"}}}},
    "/supervisor/gpu": {"get": {"summary": "GPU telemetry", "responses": {"200": {"description": "OK"}}}},
    "/supervisor/services": {"get": {"summary": "Service health", "responses": {"200": {"description": "OK"}}}},
    "/supervisor/services/{id}": {"get": {"summary": "One service", "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}], "responses": {"200": {"description": "OK"}, "404": {"description": "Unknown service"}}}},
    "/supervisor/services/{id}/{action}": {"post": {"summary": "start, stop, restart or reset", "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}, {"name": "action", "in": "path", "required": true, "type": "string", "enum": ["start", "stop", "restart", "reset"]}], "responses": {"200": {"description": "OK"}, "409": {"description": "Dependency unhealthy"}}}},
    "/supervisor/boot": {"post": {"summary": "Run the boot sequence", "responses": {"200": {"description": "Boot report"}}}},
    "/supervisor/metrics/requests": {"get": {"summary": "Router metrics", "responses": {"200": {"description": "OK"}}}},
    "/supervisor/costs/today": {"get": {"summary": "Cloud spend today", "responses": {"200": {"description": "OK"}}}},
    "/supervisor/guardian": {"get": {"summary": "Guardian state", "responses": {"200": {"description": "OK"}}}},
    "/supervisor/scheduler/events": {"get": {"summary": "Recent scheduler events, newest first", "responses": {"200": {"description": "OK"}}}},
    "/supervisor/alerts": {"get": {"summary": "Persisted alerts", "parameters": [{"name": "limit", "in": "query", "type": "integer"}], "responses": {"200": {"description": "OK"}}}},
    "/api/chat": {"post": {"summary": "Routed chat", "responses": {"200": {"description": "OK"}, "503": {"description": "All backends failed"}}}},
    "/api/generate": {"post": {"summary": "Routed generate", "responses": {"200": {"description": "OK"}, "503": {"description": "All backends failed"}}}},
    "/api/embed": {"post": {"summary": "Local embeddings", "responses": {"200": {"description": "OK"}}}}
  }
}`

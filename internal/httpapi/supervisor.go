package httpapi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"llmvisor/pkg/types"
)

func mountSupervisor(r chi.Router, svc Service) {
	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.Status(r.Context()))
	})

	r.Get("/models", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.Models())
	})
	r.Post("/models/{name}/load", func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		model, err := svc.LoadModel(r.Context(), name)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, types.ModelActionResponse{Name: name, Model: model, Status: "loaded"})
	})
	r.Post("/models/{name}/unload", func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		model, err := svc.UnloadModel(r.Context(), name)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, types.ModelActionResponse{Name: name, Model: model, Status: "unloaded"})
	})

	r.Get("/gpu", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.GPU(r.Context()))
	})

	r.Get("/services", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.Services(r.Context()))
	})
	r.Get("/services/{id}", func(w http.ResponseWriter, r *http.Request) {
		st, err := svc.Service(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	})
	r.Post("/services/{id}/{action:start|stop|restart|reset}", func(w http.ResponseWriter, r *http.Request) {
		resp, err := svc.ServiceAction(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "action"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	})

	r.Post("/boot", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.RunBoot(r.Context()))
	})

	r.Get("/metrics/requests", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.RouterMetrics())
	})
	r.Get("/costs/today", func(w http.ResponseWriter, r *http.Request) {
		rep, err := svc.CostsToday(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rep)
	})
	r.Get("/guardian", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.GuardianStatus())
	})
	r.Get("/scheduler/events", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.SchedulerEvents())
	})
	r.Get("/alerts", func(w http.ResponseWriter, r *http.Request) {
		limit := defaultAlertsLimit
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				writeJSONError(w, http.StatusBadRequest, "limit must be a positive integer")
				return
			}
			limit = min(n, maxAlertsLimit)
		}
		resp, err := svc.Alerts(r.Context(), limit)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	})
}

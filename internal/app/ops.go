package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"llmvisor/internal/services"
	"llmvisor/pkg/types"
)

// Service actions accepted by ServiceAction.
const (
	ActionStart   = "start"
	ActionStop    = "stop"
	ActionRestart = "restart"
	ActionReset   = "reset"
)

type badActionError struct{ action string }

func (e badActionError) Error() string   { return fmt.Sprintf("unknown service action %q", e.action) }
func (e badActionError) StatusCode() int { return http.StatusBadRequest }

// Status is the aggregate snapshot served at /supervisor/status and printed
// by --status.
func (s *Supervisor) Status(ctx context.Context) types.StatusResponse {
	svcs := s.Graph.Status(ctx)
	critical := []string{}
	for _, st := range svcs {
		if st.Critical && st.Status != services.StatusHealthy {
			critical = append(critical, st.ID)
		}
	}
	now := time.Now()
	return types.StatusResponse{
		UptimeSeconds:     int64(now.Sub(s.started).Seconds()),
		ServerTimeUnix:    now.Unix(),
		Scheduler:         s.Scheduler.Status(),
		Services:          svcs,
		Router:            s.Router.Metrics(),
		GuardianActive:    s.Guardian.Running(),
		CriticalUnhealthy: critical,
	}
}

// Models lists registry entries with their residency.
func (s *Supervisor) Models() types.ModelsResponse {
	descs := s.Registry.Models()
	out := types.ModelsResponse{
		Models:  make([]types.ModelView, 0, len(descs)),
		Aliases: s.Registry.Aliases(),
		Default: s.Registry.DefaultModel(),
	}
	for _, d := range descs {
		out.Models = append(out.Models, types.ModelView{
			Key:          d.Key,
			Backend:      d.Backend,
			Role:         d.Role,
			VRAMGB:       d.VRAMGB,
			Default:      d.Default,
			AlwaysLoaded: d.AlwaysLoaded,
			OnDemand:     d.OnDemand,
			Loaded:       s.Scheduler.IsLoaded(d.Backend),
		})
	}
	return out
}

// LoadModel resolves name and makes it resident.
func (s *Supervisor) LoadModel(ctx context.Context, name string) (string, error) {
	model := s.Registry.Resolve(name)
	return model, s.Scheduler.EnsureLoaded(ctx, model)
}

// UnloadModel resolves name and evicts it.
func (s *Supervisor) UnloadModel(ctx context.Context, name string) (string, error) {
	model := s.Registry.Resolve(name)
	return model, s.Scheduler.Unload(ctx, model)
}

func (s *Supervisor) GPU(ctx context.Context) types.GPUStats { return s.Scheduler.GPUStats(ctx) }

func (s *Supervisor) Services(ctx context.Context) types.ServicesResponse {
	return types.ServicesResponse{Services: s.Graph.Status(ctx)}
}

func (s *Supervisor) Service(ctx context.Context, id string) (types.ServiceStatus, error) {
	return s.Graph.ServiceStatus(ctx, id)
}

// ServiceAction runs a manual start, stop, restart or guardian reset.
func (s *Supervisor) ServiceAction(ctx context.Context, id, action string) (types.ServiceActionResponse, error) {
	resp := types.ServiceActionResponse{ID: id, Action: action}
	var err error
	switch action {
	case ActionStart:
		resp.Outcome, err = s.Graph.StartService(ctx, id)
	case ActionStop:
		resp.Outcome, err = s.Graph.StopService(ctx, id)
	case ActionRestart:
		resp.Outcome, err = s.Graph.RestartService(ctx, id)
	case ActionReset:
		if err = s.Guardian.Reset(id); err == nil {
			resp.Outcome = "reset"
		}
	default:
		err = badActionError{action: action}
	}
	if err != nil {
		s.log.Warn().Err(err).Str("service", id).Str("action", action).Msg("event=service_action_failed")
		return resp, err
	}
	s.log.Info().Str("service", id).Str("action", action).Str("outcome", resp.Outcome).Msg("event=service_action")
	return resp, nil
}

// RunBoot runs the boot sequence once.
func (s *Supervisor) RunBoot(ctx context.Context) types.BootReport { return s.Boot.Run(ctx) }

func (s *Supervisor) RouterMetrics() types.RouterMetrics { return s.Router.Metrics() }

func (s *Supervisor) CostsToday(ctx context.Context) (types.CostReport, error) {
	return s.Cloud.CostReport(ctx)
}

func (s *Supervisor) GuardianStatus() types.GuardianResponse {
	return types.GuardianResponse{
		Running:         s.Guardian.Running(),
		IntervalSeconds: s.Guardian.Interval().Seconds(),
		Services:        s.Guardian.States(),
		History:         s.Guardian.History(),
	}
}

// SchedulerEvents returns the retained scheduler events, newest first.
func (s *Supervisor) SchedulerEvents() types.SchedulerEventsResponse {
	evs := s.events.Events()
	out := make([]types.SchedulerEvent, 0, len(evs))
	for i := len(evs) - 1; i >= 0; i-- {
		e := evs[i]
		out = append(out, types.SchedulerEvent{Time: e.Time.Unix(), Name: e.Name, Model: e.Model, Fields: e.Fields})
	}
	return types.SchedulerEventsResponse{Events: out}
}

// Alerts returns the newest persisted alerts, up to limit.
func (s *Supervisor) Alerts(ctx context.Context, limit int) (types.AlertsResponse, error) {
	alerts, err := s.Ledger.Alerts(ctx, limit)
	if err != nil {
		return types.AlertsResponse{}, err
	}
	if alerts == nil {
		alerts = []types.Alert{}
	}
	return types.AlertsResponse{Alerts: alerts}, nil
}

func (s *Supervisor) ProxyChat(ctx context.Context, body map[string]any) (map[string]any, error) {
	res, err := s.Router.ProxyChat(ctx, body)
	if err != nil {
		return nil, err
	}
	return res.Body, nil
}

func (s *Supervisor) ProxyGenerate(ctx context.Context, body map[string]any) (map[string]any, error) {
	res, err := s.Router.ProxyGenerate(ctx, body)
	if err != nil {
		return nil, err
	}
	return res.Body, nil
}

func (s *Supervisor) ProxyEmbed(ctx context.Context, path string, body map[string]any) (map[string]any, error) {
	res, err := s.Router.ProxyEmbed(ctx, path, body)
	if err != nil {
		return nil, err
	}
	return res.Body, nil
}

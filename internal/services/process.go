package services

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"llmvisor/internal/common/fsutil"
)

// Outcomes of lifecycle actions.
const (
	OutcomeStarted        = "started"
	OutcomeAlreadyRunning = "already_running"
	OutcomeStopped        = "stopped"
	OutcomeNotRunning     = "not_running"
	OutcomeRestarted      = "restarted"
)

const commandTimeout = 30 * time.Second

// CommandRunner runs a short-lived command to completion.
type CommandRunner func(ctx context.Context, name string, args ...string) error

func execRunner(ctx context.Context, name string, args ...string) error {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if len(msg) > 512 {
			msg = msg[len(msg)-512:]
		}
		if msg != "" {
			return fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, msg)
		}
		return fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
	}
	return nil
}

// proc is a supervisor-spawned process group.
type proc struct {
	cmd     *exec.Cmd
	pid     int
	started time.Time
	done    chan struct{}
	logFile *os.File
}

// ManagedPID returns the pid of the process the supervisor spawned for id,
// or 0 when none is running.
func (g *Graph) ManagedPID(id string) int {
	g.procMu.Lock()
	defer g.procMu.Unlock()
	if p := g.procs[id]; p != nil {
		return p.pid
	}
	return 0
}

func (g *Graph) lock(id string) (Service, func(), error) {
	svc, ok := g.services[id]
	if !ok {
		return Service{}, nil, unknownServiceError{id: id}
	}
	mu := g.locks[id]
	mu.Lock()
	return svc, mu.Unlock, nil
}

// StartService starts id after checking its dependencies. A healthy service
// is reported as already_running and left alone.
func (g *Graph) StartService(ctx context.Context, id string) (string, error) {
	svc, unlock, err := g.lock(id)
	if err != nil {
		return "", err
	}
	defer unlock()
	return g.startLocked(ctx, svc)
}

// StopService stops id: SIGTERM to the managed process group, then SIGKILL
// after the stop timeout; docker stop for containers; stop_command otherwise.
func (g *Graph) StopService(ctx context.Context, id string) (string, error) {
	svc, unlock, err := g.lock(id)
	if err != nil {
		return "", err
	}
	defer unlock()
	return g.stopLocked(ctx, svc)
}

// RestartService stops then starts id while holding its lock. An unhealthy
// dependency fails the restart before the running process is touched.
func (g *Graph) RestartService(ctx context.Context, id string) (string, error) {
	svc, unlock, err := g.lock(id)
	if err != nil {
		return "", err
	}
	defer unlock()
	if err := g.checkDeps(ctx, svc); err != nil {
		return "", err
	}
	if _, err := g.stopLocked(ctx, svc); err != nil {
		g.log.Warn().Err(err).Str("service", id).Msg("event=restart_stop_failed continuing with start")
	}
	if _, err := g.startLocked(ctx, svc); err != nil {
		return "", err
	}
	return OutcomeRestarted, nil
}

func (g *Graph) checkDeps(ctx context.Context, svc Service) error {
	for _, dep := range svc.DependsOn {
		h := g.CheckHealth(ctx, dep)
		if !h.Healthy() {
			return &DependencyUnhealthyError{Service: svc.ID, Dependency: dep, Status: h.Status, Detail: h.Detail}
		}
	}
	return nil
}

func (g *Graph) startLocked(ctx context.Context, svc Service) (string, error) {
	if err := g.checkDeps(ctx, svc); err != nil {
		return "", err
	}
	if g.probe(ctx, svc).Healthy() {
		return OutcomeAlreadyRunning, nil
	}

	switch svc.Kind {
	case KindDocker:
		cctx, cancel := context.WithTimeout(ctx, commandTimeout)
		defer cancel()
		if err := g.run(cctx, "docker", "start", svc.Container); err != nil {
			return "", &SpawnError{Service: svc.ID, Err: err}
		}
		g.log.Info().Str("service", svc.ID).Str("container", svc.Container).Msg("event=container_started")
		return OutcomeStarted, nil
	default:
		if g.ManagedPID(svc.ID) != 0 {
			// Spawned earlier and still running; give it time to turn healthy.
			return OutcomeStarted, nil
		}
		if err := g.spawn(svc); err != nil {
			return "", &SpawnError{Service: svc.ID, Err: err}
		}
		return OutcomeStarted, nil
	}
}

func (g *Graph) spawn(svc Service) error {
	if strings.TrimSpace(svc.StartCommand) == "" {
		return fmt.Errorf("no start_command configured")
	}
	cmd := exec.Command("sh", "-c", svc.StartCommand)
	if svc.Cwd != "" {
		dir, err := fsutil.ExpandHome(svc.Cwd)
		if err != nil {
			return err
		}
		cmd.Dir = dir
	}
	cmd.Env = mergeEnv(os.Environ(), svc.Env)
	setProcessGroup(cmd)

	var logFile *os.File
	if svc.LogFile != "" {
		path, err := fsutil.ExpandHome(svc.LogFile)
		if err != nil {
			return err
		}
		logFile, err = os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		cmd.Stdout, cmd.Stderr = logFile, logFile
	} else {
		cmd.Stdout, cmd.Stderr = io.Discard, io.Discard
	}

	if err := cmd.Start(); err != nil {
		if logFile != nil {
			_ = logFile.Close()
		}
		return err
	}
	p := &proc{cmd: cmd, pid: cmd.Process.Pid, started: time.Now(), done: make(chan struct{}), logFile: logFile}
	g.procMu.Lock()
	g.procs[svc.ID] = p
	g.procMu.Unlock()
	g.log.Info().Str("service", svc.ID).Int("pid", p.pid).Msg("event=process_started")

	go g.reap(svc.ID, p)
	return nil
}

// reap waits for the process and forgets it once it exits.
func (g *Graph) reap(id string, p *proc) {
	err := p.cmd.Wait()
	if p.logFile != nil {
		_ = p.logFile.Close()
	}
	g.procMu.Lock()
	if g.procs[id] == p {
		delete(g.procs, id)
	}
	g.procMu.Unlock()
	close(p.done)
	lvl := zerolog.InfoLevel
	if err != nil {
		lvl = zerolog.WarnLevel
	}
	g.log.WithLevel(lvl).Err(err).Str("service", id).Int("pid", p.pid).Dur("uptime", time.Since(p.started)).Msg("event=process_exited")
}

func (g *Graph) stopLocked(ctx context.Context, svc Service) (string, error) {
	if svc.Kind == KindDocker {
		cctx, cancel := context.WithTimeout(ctx, g.stopTimeout+commandTimeout)
		defer cancel()
		secs := strconv.Itoa(int(g.stopTimeout / time.Second))
		if err := g.run(cctx, "docker", "stop", "-t", secs, svc.Container); err != nil {
			return "", err
		}
		g.log.Info().Str("service", svc.ID).Str("container", svc.Container).Msg("event=container_stopped")
		return OutcomeStopped, nil
	}

	g.procMu.Lock()
	p := g.procs[svc.ID]
	g.procMu.Unlock()
	if p != nil {
		g.terminate(svc.ID, p)
		return OutcomeStopped, nil
	}
	if svc.StopCommand != "" {
		cctx, cancel := context.WithTimeout(ctx, commandTimeout)
		defer cancel()
		if err := g.run(cctx, "sh", "-c", svc.StopCommand); err != nil {
			return "", err
		}
		g.log.Info().Str("service", svc.ID).Msg("event=stop_command_ran")
		return OutcomeStopped, nil
	}
	return OutcomeNotRunning, nil
}

// terminate sends SIGTERM to the process group and escalates to SIGKILL.
func (g *Graph) terminate(id string, p *proc) {
	_ = signalGroup(p.pid, syscall.SIGTERM)
	select {
	case <-p.done:
		g.log.Info().Str("service", id).Int("pid", p.pid).Msg("event=process_stopped")
		return
	case <-time.After(g.stopTimeout):
	}
	g.log.Warn().Str("service", id).Int("pid", p.pid).Dur("after", g.stopTimeout).Msg("event=process_killed")
	_ = signalGroup(p.pid, syscall.SIGKILL)
	<-p.done
}

// StopAll stops every managed process, later boot phases first. Processes
// not named by any phase go last.
func (g *Graph) StopAll(ctx context.Context) {
	g.procMu.Lock()
	running := make(map[string]bool, len(g.procs))
	for id := range g.procs {
		running[id] = true
	}
	g.procMu.Unlock()

	ids := make([]string, 0, len(running))
	for i := len(g.phases) - 1; i >= 0; i-- {
		for _, id := range g.phases[i].Services {
			if running[id] {
				ids = append(ids, id)
				delete(running, id)
			}
		}
	}
	for id := range running {
		ids = append(ids, id)
	}
	for _, id := range ids {
		if _, err := g.StopService(ctx, id); err != nil {
			g.log.Warn().Err(err).Str("service", id).Msg("event=stop_on_shutdown_failed")
		}
	}
}

// mergeEnv overlays overrides on base, replacing existing keys.
func mergeEnv(base []string, overrides map[string]string) []string {
	if len(overrides) == 0 {
		return base
	}
	out := make([]string, 0, len(base)+len(overrides))
	for _, kv := range base {
		k, _, _ := strings.Cut(kv, "=")
		if _, ok := overrides[k]; ok {
			continue
		}
		out = append(out, kv)
	}
	for _, k := range sortedKeys(overrides) {
		out = append(out, k+"="+overrides[k])
	}
	return out
}

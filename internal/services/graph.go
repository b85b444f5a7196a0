// Package services owns the declared service graph: descriptors, dependency
// validation, live health probes and process lifecycle.
package services

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"llmvisor/internal/config"
)

// Service kinds.
const (
	KindProcess = "process"
	KindDocker  = "docker"
)

// Health check types.
const (
	CheckHTTP = "http"
	CheckTCP  = "tcp"
	CheckNone = ""
)

// DefaultStopTimeout is how long Stop waits after SIGTERM before SIGKILL.
const DefaultStopTimeout = 10 * time.Second

const defaultProbeTimeout = 5 * time.Second

// HealthCheck describes how to probe a service.
type HealthCheck struct {
	Type    string
	URL     string
	Host    string
	Port    int
	Timeout time.Duration
}

// PostStart is an action run by the boot sequencer once a service is healthy.
type PostStart struct {
	Action string
	Model  string
}

// Service is an immutable service descriptor.
type Service struct {
	ID           string
	Name         string
	Port         int
	Kind         string
	Health       HealthCheck
	DependsOn    []string
	StartCommand string
	StopCommand  string
	Cwd          string
	Env          map[string]string
	Critical     bool
	OnDemand     bool
	PostStart    []PostStart
	Container    string
	LogFile      string
}

// BootPhase is an ordered, timed group of services.
type BootPhase struct {
	Phase    int
	Name     string
	Services []string
	Timeout  time.Duration
}

// RestartPolicy bounds the guardian's automatic restarts.
type RestartPolicy struct {
	MaxRetries           int
	RetryDelay           time.Duration
	BackoffMultiplier    float64
	AlertAfterExhaustion bool
}

// Options configures a Graph's runtime behavior.
type Options struct {
	Logger      zerolog.Logger
	StopTimeout time.Duration
	HTTPClient  *http.Client
	// Run executes short-lived commands such as docker start/stop.
	Run CommandRunner
}

// Graph is the validated service graph plus the processes it manages.
type Graph struct {
	services map[string]Service
	order    []string
	phases   []BootPhase
	policy   RestartPolicy

	log         zerolog.Logger
	stopTimeout time.Duration
	hc          *http.Client
	run         CommandRunner

	// locks serializes start/stop/restart per service, shared by manual
	// actions and the guardian.
	locks map[string]*sync.Mutex

	procMu sync.Mutex
	procs  map[string]*proc
}

// Load reads and validates a services file.
func Load(path string, opts Options) (*Graph, error) {
	sf, err := config.LoadServices(path)
	if err != nil {
		return nil, err
	}
	return New(sf, path, opts)
}

// New validates sf and builds a Graph. Every validation failure is a
// *config.ConfigError labelled with path.
func New(sf config.ServicesFile, path string, opts Options) (*Graph, error) {
	g := &Graph{
		services:    make(map[string]Service, len(sf.Services)+len(sf.DockerServices)),
		locks:       make(map[string]*sync.Mutex),
		procs:       make(map[string]*proc),
		log:         opts.Logger,
		stopTimeout: opts.StopTimeout,
		hc:          opts.HTTPClient,
		run:         opts.Run,
	}
	if g.stopTimeout <= 0 {
		g.stopTimeout = DefaultStopTimeout
	}
	if g.hc == nil {
		g.hc = &http.Client{}
	}
	if g.run == nil {
		g.run = execRunner
	}

	add := func(id string, e config.ServiceEntry, kind string) error {
		if strings.TrimSpace(id) == "" {
			return config.Errorf(path, "service id must not be empty")
		}
		if _, dup := g.services[id]; dup {
			return config.Errorf(path, "duplicate service id %q", id)
		}
		svc, err := buildService(id, e, kind)
		if err != nil {
			return config.Errorf(path, "service %q: %v", id, err)
		}
		g.services[id] = svc
		g.locks[id] = &sync.Mutex{}
		return nil
	}
	for _, id := range sortedKeys(sf.Services) {
		if err := add(id, sf.Services[id], KindProcess); err != nil {
			return nil, err
		}
	}
	for _, id := range sortedKeys(sf.DockerServices) {
		if err := add(id, sf.DockerServices[id], KindDocker); err != nil {
			return nil, err
		}
	}

	for _, id := range sortedKeys(g.services) {
		for _, dep := range g.services[id].DependsOn {
			if _, ok := g.services[dep]; !ok {
				return nil, config.Errorf(path, "service %q depends on unknown service %q", id, dep)
			}
		}
	}
	order, err := topoOrder(g.services)
	if err != nil {
		return nil, config.Errorf(path, "%v", err)
	}
	g.order = order

	for i, p := range sf.BootPhases {
		for _, id := range p.Services {
			if _, ok := g.services[id]; !ok {
				return nil, config.Errorf(path, "boot phase %d (%s) lists unknown service %q", p.Phase, p.Name, id)
			}
		}
		if p.TimeoutSeconds < 0 {
			return nil, config.Errorf(path, "boot phase %d: timeout_seconds must be >= 0", i)
		}
		g.phases = append(g.phases, BootPhase{
			Phase:    p.Phase,
			Name:     p.Name,
			Services: append([]string(nil), p.Services...),
			Timeout:  time.Duration(p.TimeoutSeconds) * time.Second,
		})
	}
	sort.SliceStable(g.phases, func(i, j int) bool { return g.phases[i].Phase < g.phases[j].Phase })
	if err := checkPhaseDeps(g.phases, g.services); err != nil {
		return nil, config.Errorf(path, "%v", err)
	}

	g.policy = RestartPolicy{
		MaxRetries:           sf.RestartPolicy.MaxRetries,
		RetryDelay:           config.Seconds(sf.RestartPolicy.RetryDelaySeconds),
		BackoffMultiplier:    sf.RestartPolicy.BackoffMultiplier,
		AlertAfterExhaustion: sf.RestartPolicy.AlertAfterExhaustion,
	}
	if g.policy.MaxRetries < 0 {
		return nil, config.Errorf(path, "restart_policy.max_retries must be >= 0")
	}
	if g.policy.BackoffMultiplier <= 0 {
		g.policy.BackoffMultiplier = 1
	}
	return g, nil
}

func buildService(id string, e config.ServiceEntry, kind string) (Service, error) {
	if kind == KindProcess && e.Type != "" {
		kind = strings.ToLower(e.Type)
	}
	if kind != KindProcess && kind != KindDocker {
		return Service{}, fmt.Errorf("unknown type %q", e.Type)
	}
	svc := Service{
		ID:           id,
		Name:         e.Name,
		Port:         e.Port,
		Kind:         kind,
		DependsOn:    append([]string(nil), e.DependsOn...),
		StartCommand: e.StartCommand,
		StopCommand:  e.StopCommand,
		Cwd:          e.Cwd,
		Env:          e.Env,
		Critical:     e.Critical,
		OnDemand:     e.OnDemand,
		Container:    e.Container,
		LogFile:      e.LogFile,
	}
	if svc.Name == "" {
		svc.Name = id
	}
	if kind == KindDocker && svc.Container == "" {
		svc.Container = id
	}
	for _, ps := range e.PostStart {
		svc.PostStart = append(svc.PostStart, PostStart{Action: ps.Action, Model: ps.Model})
	}

	hc := HealthCheck{
		Type:    strings.ToLower(e.HealthCheck.Type),
		URL:     e.HealthCheck.URL,
		Host:    e.Host,
		Port:    e.HealthCheck.Port,
		Timeout: config.Seconds(e.HealthCheck.TimeoutSeconds),
	}
	if hc.Type == CheckNone && hc.URL != "" {
		hc.Type = CheckHTTP
	}
	if hc.Host == "" {
		hc.Host = "127.0.0.1"
	}
	if hc.Port == 0 {
		hc.Port = e.Port
	}
	if hc.Timeout <= 0 {
		hc.Timeout = defaultProbeTimeout
	}
	switch hc.Type {
	case CheckNone:
	case CheckHTTP:
		if hc.URL == "" {
			return Service{}, fmt.Errorf("http health check requires url")
		}
	case CheckTCP:
		if hc.Port <= 0 {
			return Service{}, fmt.Errorf("tcp health check requires a port")
		}
	default:
		return Service{}, fmt.Errorf("unknown health check type %q", e.HealthCheck.Type)
	}
	svc.Health = hc
	return svc, nil
}

// topoOrder returns ids with dependencies first, or an error naming a cycle.
func topoOrder(svcs map[string]Service) ([]string, error) {
	const (
		white = iota
		grey
		black
	)
	color := make(map[string]int, len(svcs))
	var order []string
	var stack []string
	var visit func(id string) error
	visit = func(id string) error {
		switch color[id] {
		case grey:
			start := 0
			for i, s := range stack {
				if s == id {
					start = i
				}
			}
			return fmt.Errorf("dependency cycle: %s -> %s", strings.Join(stack[start:], " -> "), id)
		case black:
			return nil
		}
		color[id] = grey
		stack = append(stack, id)
		deps := append([]string(nil), svcs[id].DependsOn...)
		sort.Strings(deps)
		for _, d := range deps {
			if err := visit(d); err != nil {
				return err
			}
		}
		stack = stack[:len(stack)-1]
		color[id] = black
		order = append(order, id)
		return nil
	}
	for _, id := range sortedKeys(svcs) {
		if err := visit(id); err != nil {
			return nil, err
		}
	}
	return order, nil
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Service returns the descriptor for id.
func (g *Graph) Service(id string) (Service, bool) {
	s, ok := g.services[id]
	return s, ok
}

// Services lists descriptors in dependency order.
func (g *Graph) Services() []Service {
	out := make([]Service, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.services[id])
	}
	return out
}

// Order lists service ids with dependencies before dependents.
func (g *Graph) Order() []string { return append([]string(nil), g.order...) }

// BootPhases returns the phases sorted by phase number.
func (g *Graph) BootPhases() []BootPhase {
	out := make([]BootPhase, len(g.phases))
	copy(out, g.phases)
	return out
}

// checkPhaseDeps rejects a boot phase service whose dependency only boots in
// a later phase: it could never pass its dependency check. Same-phase
// dependencies are waited for by the sequencer.
func checkPhaseDeps(phases []BootPhase, svcs map[string]Service) error {
	bootsIn := map[string]int{}
	for i, p := range phases {
		for _, id := range p.Services {
			if _, seen := bootsIn[id]; !seen {
				bootsIn[id] = i
			}
		}
	}
	for i, p := range phases {
		for _, id := range p.Services {
			for _, dep := range svcs[id].DependsOn {
				if j, ok := bootsIn[dep]; ok && j > i {
					return fmt.Errorf("boot phase %d (%s): %q depends on %q which boots in phase %d", p.Phase, p.Name, id, dep, phases[j].Phase)
				}
			}
		}
	}
	return nil
}

// RestartPolicy returns the guardian restart policy.
func (g *Graph) RestartPolicy() RestartPolicy { return g.policy }

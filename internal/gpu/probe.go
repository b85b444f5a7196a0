// Package gpu reads live device memory and temperature from the host.
package gpu

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Sources tag where GPU numbers came from.
const (
	SourceNvidiaSMI = "nvidia-smi"
	SourceEstimate  = "estimate"
)

// Stats is a point-in-time view of GPU memory. Temperature and utilization
// are nil when the source cannot measure them.
type Stats struct {
	Source         string   `json:"source"`
	Devices        []string `json:"devices,omitempty"`
	TotalGB        float64  `json:"total_gb"`
	UsedGB         float64  `json:"used_gb"`
	FreeGB         float64  `json:"free_gb"`
	TemperatureC   *float64 `json:"temperature_c,omitempty"`
	UtilizationPct *float64 `json:"utilization_pct,omitempty"`
}

// Prober measures the real device.
type Prober interface {
	Probe(ctx context.Context) (Stats, error)
}

// ErrNoDevice is returned when no supported GPU tooling is present.
var ErrNoDevice = errors.New("gpu: no device tooling available")

// NvidiaSMI probes NVIDIA devices through the nvidia-smi CLI.
type NvidiaSMI struct {
	Bin     string
	Timeout time.Duration
}

const smiQuery = "--query-gpu=name,memory.total,memory.used,memory.free,temperature.gpu,utilization.gpu"

func (n NvidiaSMI) Probe(ctx context.Context) (Stats, error) {
	bin := n.Bin
	if bin == "" {
		bin = "nvidia-smi"
	}
	path, err := exec.LookPath(bin)
	if err != nil {
		return Stats{}, ErrNoDevice
	}
	timeout := n.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	out, err := exec.CommandContext(ctx, path, smiQuery, "--format=csv,noheader,nounits").Output()
	if err != nil {
		return Stats{}, fmt.Errorf("nvidia-smi: %w", err)
	}
	return parseSMI(string(out))
}

// parseSMI folds one CSV line per device into a single host view: memory is
// summed, temperature is the hottest device, utilization is averaged.
func parseSMI(out string) (Stats, error) {
	st := Stats{Source: SourceNvidiaSMI}
	var maxTemp, utilSum float64
	var haveTemp bool
	var utilN int
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Split(line, ",")
		if len(fields) < 4 {
			return Stats{}, fmt.Errorf("nvidia-smi: unexpected line %q", line)
		}
		for i := range fields {
			fields[i] = strings.TrimSpace(fields[i])
		}
		total, err1 := strconv.ParseFloat(fields[1], 64)
		used, err2 := strconv.ParseFloat(fields[2], 64)
		free, err3 := strconv.ParseFloat(fields[3], 64)
		if err := errors.Join(err1, err2, err3); err != nil {
			return Stats{}, fmt.Errorf("nvidia-smi: parse memory: %w", err)
		}
		st.Devices = append(st.Devices, fields[0])
		st.TotalGB += total / 1024
		st.UsedGB += used / 1024
		st.FreeGB += free / 1024
		if len(fields) > 4 {
			if v, err := strconv.ParseFloat(fields[4], 64); err == nil && (!haveTemp || v > maxTemp) {
				maxTemp, haveTemp = v, true
			}
		}
		if len(fields) > 5 {
			if v, err := strconv.ParseFloat(fields[5], 64); err == nil {
				utilSum += v
				utilN++
			}
		}
	}
	if len(st.Devices) == 0 {
		return Stats{}, ErrNoDevice
	}
	if haveTemp {
		st.TemperatureC = &maxTemp
	}
	if utilN > 0 {
		avg := utilSum / float64(utilN)
		st.UtilizationPct = &avg
	}
	return st, nil
}

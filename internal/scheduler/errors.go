package scheduler

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrInsufficientVRAM is returned when eviction cannot free enough memory and
// the request is not the single-oversized-model case.
var ErrInsufficientVRAM = errors.New("insufficient vram")

// IsInsufficientVRAM reports whether err carries ErrInsufficientVRAM.
func IsInsufficientVRAM(err error) bool { return errors.Is(err, ErrInsufficientVRAM) }

// shortfallError details a VRAM shortfall for logs and HTTP callers.
type shortfallError struct {
	model    string
	neededGB float64
	availGB  float64
	pinnedGB float64
}

func (e *shortfallError) Error() string {
	return fmt.Sprintf("insufficient vram for %s: need %.1f GB, %.1f GB available (%.1f GB pinned)",
		e.model, e.neededGB, e.availGB, e.pinnedGB)
}

func (e *shortfallError) Unwrap() error { return ErrInsufficientVRAM }

// StatusCode maps the shortfall to 503 for the HTTP layer.
func (e *shortfallError) StatusCode() int { return http.StatusServiceUnavailable }

// notLoadedError is returned by Unload for untracked models.
type notLoadedError struct{ model string }

func (e notLoadedError) Error() string   { return "model not loaded: " + e.model }
func (e notLoadedError) StatusCode() int { return http.StatusNotFound }

// IsNotLoaded reports whether err indicates an untracked model.
func IsNotLoaded(err error) bool {
	var nl notLoadedError
	return errors.As(err, &nl)
}

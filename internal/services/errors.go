package services

import (
	"errors"
	"fmt"
	"net/http"
)

// DependencyUnhealthyError is returned by StartService when a dependency is
// not healthy. Nothing was spawned.
type DependencyUnhealthyError struct {
	Service    string
	Dependency string
	Status     string
	Detail     string
}

func (e *DependencyUnhealthyError) Error() string {
	msg := fmt.Sprintf("cannot start %s: dependency %s is %s", e.Service, e.Dependency, e.Status)
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return msg
}

func (e *DependencyUnhealthyError) StatusCode() int { return http.StatusConflict }

// SpawnError wraps a failure to launch a service.
type SpawnError struct {
	Service string
	Err     error
}

func (e *SpawnError) Error() string { return fmt.Sprintf("spawn %s: %v", e.Service, e.Err) }
func (e *SpawnError) Unwrap() error { return e.Err }

func (e *SpawnError) StatusCode() int { return http.StatusBadGateway }

// unknownServiceError is returned for ids not in the graph.
type unknownServiceError struct{ id string }

func (e unknownServiceError) Error() string   { return "unknown service: " + e.id }
func (e unknownServiceError) StatusCode() int { return http.StatusNotFound }

// IsUnknownService reports whether err names a service outside the graph.
func IsUnknownService(err error) bool {
	var u unknownServiceError
	return errors.As(err, &u)
}

// IsDependencyUnhealthy reports whether err is a *DependencyUnhealthyError.
func IsDependencyUnhealthy(err error) bool {
	var d *DependencyUnhealthyError
	return errors.As(err, &d)
}

package scheduler

import "time"

// Event names published by the scheduler.
const (
	EventEnsureStart = "ensure_start"
	EventEvict       = "evict"
	EventLoadOK      = "load_ok"
	EventLoadFail    = "load_fail"
	EventOvercommit  = "overcommit"
	EventUnload      = "unload"
	EventAdopt       = "adopt"
)

// Event represents a scheduler lifecycle event.
type Event struct {
	Name   string
	Model  string
	Fields map[string]any
	// Time is stamped by the publisher when left zero.
	Time time.Time
}

// EventPublisher receives events from the scheduler. Implementations should be
// lightweight and non-blocking; Publish must not panic.
type EventPublisher interface {
	Publish(Event)
}

type noopPublisher struct{}

func (noopPublisher) Publish(Event) {}

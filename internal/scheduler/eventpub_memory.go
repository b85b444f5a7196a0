package scheduler

import (
	"sync"
	"time"
)

// DefaultEventLimit bounds the publisher used by the supervisor.
const DefaultEventLimit = 200

// MemoryPublisher keeps the most recent events in memory, oldest dropped
// first. It backs GET /supervisor/scheduler/events.
type MemoryPublisher struct {
	mu     sync.Mutex
	limit  int
	events []Event
	now    func() time.Time
}

// NewMemoryPublisher keeps up to limit events; limit <= 0 keeps all of them.
func NewMemoryPublisher(limit int) *MemoryPublisher {
	return &MemoryPublisher{limit: limit, now: time.Now}
}

func (p *MemoryPublisher) Publish(e Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e.Time.IsZero() {
		e.Time = p.now()
	}
	p.events = append(p.events, e)
	if p.limit > 0 && len(p.events) > p.limit {
		p.events = append(p.events[:0], p.events[len(p.events)-p.limit:]...)
	}
}

// Events returns the retained events in publish order.
func (p *MemoryPublisher) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Event, len(p.events))
	copy(out, p.events)
	return out
}

// Names returns the event names in publish order.
func (p *MemoryPublisher) Names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Name
	}
	return out
}

package guardian

import (
	"sync"

	"llmvisor/pkg/types"
)

// history is a bounded in-memory ring of guardian events. Not persisted.
type history struct {
	mu   sync.RWMutex
	buf  []types.GuardianEvent
	next int
	full bool
}

func newHistory(size int) *history {
	if size <= 0 {
		size = 200
	}
	return &history{buf: make([]types.GuardianEvent, size)}
}

func (h *history) Add(e types.GuardianEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.buf[h.next] = e
	h.next++
	if h.next >= len(h.buf) {
		h.next = 0
		h.full = true
	}
}

// List returns events newest first.
func (h *history) List() []types.GuardianEvent {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if !h.full && h.next == 0 {
		return nil
	}

	var out []types.GuardianEvent
	if h.full {
		out = make([]types.GuardianEvent, 0, len(h.buf))
		out = append(out, h.buf[h.next:]...)
		out = append(out, h.buf[:h.next]...)
	} else {
		out = append([]types.GuardianEvent(nil), h.buf[:h.next]...)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

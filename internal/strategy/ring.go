package strategy

import (
	"sync"

	"signal-systemv1/internal/model"
)

// signalRing is a fixed-size circular buffer of recently emitted signals.
// Overwrites the oldest entry when full.
type signalRing struct {
	mu   sync.RWMutex
	buf  []model.Signal
	cap  int
	pos  int
	full bool
}

func newSignalRing(capacity int) *signalRing {
	if capacity <= 0 {
		capacity = 100
	}
	return &signalRing{buf: make([]model.Signal, capacity), cap: capacity}
}

func (r *signalRing) push(s model.Signal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf[r.pos] = s
	r.pos = (r.pos + 1) % r.cap
	if r.pos == 0 && !r.full {
		r.full = true
	}
}

// snapshot returns buffered signals oldest-first.
func (r *signalRing) snapshot() []model.Signal {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := r.pos
	if r.full {
		n = r.cap
	}
	out := make([]model.Signal, 0, n)
	for i := 0; i < n; i++ {
		idx := i
		if r.full {
			idx = (r.pos + i) % r.cap
		}
		out = append(out, r.buf[idx])
	}
	return out
}

func (r *signalRing) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.full {
		return r.cap
	}
	return r.pos
}

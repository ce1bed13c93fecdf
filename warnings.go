package mirror

import (
	"sync"
	"time"
)

// Warning is a recorded non-fatal failure.
type Warning struct {
	// At is when the failure was recorded.
	At time.Time

	// Err is the failure itself.
	Err error
}

// warnRing is a thread-safe ring buffer of recent warnings.
type warnRing struct {
	mu      sync.RWMutex
	entries []Warning
	size    int
	head    int
	count   int
}

// newWarnRing creates a warning ring with the given capacity.
// A size of 0 disables the ring.
func newWarnRing(size int) *warnRing {
	if size <= 0 {
		return nil
	}
	return &warnRing{
		entries: make([]Warning, size),
		size:    size,
	}
}

// record adds a warning, displacing the oldest when full.
func (r *warnRing) record(at time.Time, err error) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries[r.head] = Warning{At: at, Err: err}
	r.head = (r.head + 1) % r.size
	if r.count < r.size {
		r.count++
	}
}

// recent returns the retained warnings, oldest first.
func (r *warnRing) recent() []Warning {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.count == 0 {
		return nil
	}

	out := make([]Warning, r.count)
	start := (r.head - r.count + r.size) % r.size
	for i := 0; i < r.count; i++ {
		out[i] = r.entries[(start+i)%r.size]
	}
	return out
}

package session

import "sync"

// Liveness gates appliers of late asynchronous results. A screen (or
// any other consumer) holds one for its lifetime and closes it on
// teardown; results that arrive after Close are dropped instead of
// being applied to a consumer that no longer exists.
type Liveness struct {
	mu    sync.Mutex
	alive bool
}

// NewLiveness returns an open liveness guard.
func NewLiveness() *Liveness {
	return &Liveness{alive: true}
}

// Close marks the guard dead. Idempotent.
func (l *Liveness) Close() {
	l.mu.Lock()
	l.alive = false
	l.mu.Unlock()
}

// Alive reports whether results should still be applied.
func (l *Liveness) Alive() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.alive
}

// Do runs fn only if the guard is still alive, holding the guard closed
// against a concurrent Close for the duration. Reports whether fn ran.
func (l *Liveness) Do(fn func()) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.alive {
		return false
	}
	fn()
	return true
}

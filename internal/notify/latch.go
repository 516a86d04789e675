package notify

import "sync"

// Latch remembers the last failure reported per source so that a poller
// can notify once per distinct failure instead of on every tick.
type Latch struct {
	mu   sync.Mutex
	last map[string]string
}

// NewLatch returns an empty latch.
func NewLatch() *Latch {
	return &Latch{last: make(map[string]string)}
}

// Trip records msg for source and reports whether it differs from the
// failure already latched there.
func (l *Latch) Trip(source, msg string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if prev, ok := l.last[source]; ok && prev == msg {
		return false
	}
	l.last[source] = msg
	return true
}

// Clear forgets the failure for source, typically after it succeeds again.
func (l *Latch) Clear(source string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.last, source)
}

// Reset forgets every latched failure.
func (l *Latch) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	clear(l.last)
}

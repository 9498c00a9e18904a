package dialogue

import "sync"

// #region ring
// ring is a bounded FIFO of turns, oldest first.
type ring struct {
	buf   []InnerTurn
	start int
	n     int
}

func newRing(size int) ring {
	return ring{buf: make([]InnerTurn, size)}
}

func (r *ring) push(t InnerTurn) {
	if r.n < len(r.buf) {
		r.buf[(r.start+r.n)%len(r.buf)] = t
		r.n++
		return
	}
	r.buf[r.start] = t
	r.start = (r.start + 1) % len(r.buf)
}

// last returns up to n newest items, oldest first.
func (r *ring) last(n int) []InnerTurn {
	if n <= 0 || n > r.n {
		n = r.n
	}
	out := make([]InnerTurn, 0, n)
	for i := r.n - n; i < r.n; i++ {
		out = append(out, r.buf[(r.start+i)%len(r.buf)])
	}
	return out
}
// #endregion ring

// #region shared-context
// SharedContext is the externally visible output of the inner dialogue.
// Only broadcast turns enter it.
type SharedContext struct {
	mu   sync.RWMutex
	ring ring
}

// NewSharedContext returns a context holding at most size turns.
func NewSharedContext(size int) *SharedContext {
	return &SharedContext{ring: newRing(size)}
}

// Add appends t if it was broadcast and reports whether it was accepted.
func (c *SharedContext) Add(t InnerTurn) bool {
	if t.Decision != Broadcast {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ring.push(t)
	return true
}

// Recent returns up to n newest turns, oldest first. n <= 0 returns all.
func (c *SharedContext) Recent(n int) []InnerTurn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ring.last(n)
}

// Len returns the number of held turns.
func (c *SharedContext) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ring.n
}
// #endregion shared-context

// #region audit-log
// AuditLog keeps every turn regardless of decision.
type AuditLog struct {
	mu   sync.RWMutex
	ring ring
}

// NewAuditLog returns a log holding at most size turns.
func NewAuditLog(size int) *AuditLog {
	return &AuditLog{ring: newRing(size)}
}

// Append records t.
func (l *AuditLog) Append(t InnerTurn) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ring.push(t)
}

// Recent returns up to n newest turns, oldest first. n <= 0 returns all.
func (l *AuditLog) Recent(n int) []InnerTurn {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.ring.last(n)
}
// #endregion audit-log

// Package bus delivers engine notifications to interested subscribers.
// Publish never blocks the caller; slow subscribers lose notifications.
package bus

import (
	"sync"
	"sync/atomic"
	"time"
)

// #region kinds
// Kind identifies a notification type.
type Kind string

const (
	TickCompleted      Kind = "tick_completed"
	PhaseChanged       Kind = "phase_changed"
	EventSuperseded    Kind = "event_superseded"
	MemoryStored       Kind = "memory_stored"
	MemoryConsolidated Kind = "memory_consolidated"
	TurnBroadcast      Kind = "turn_broadcast"
	SafetyTripped      Kind = "safety_tripped"
	DecisionMade       Kind = "decision_made"
)

// Notification is one published message. Payload is owned by the receiver
// and must be a value or an immutable pointer.
type Notification struct {
	Kind    Kind
	EventID string
	At      time.Time
	Payload any
}
// #endregion kinds

// #region bus
// Bus is a fan-out publisher. The zero value is not usable; call New.
type Bus struct {
	mu      sync.RWMutex
	subs    map[uint64]*Subscription
	nextID  uint64
	dropped atomic.Uint64
	closed  bool
}

// New returns an empty bus.
func New() *Bus {
	return &Bus{subs: make(map[uint64]*Subscription)}
}

// Subscription receives notifications of the kinds it asked for.
type Subscription struct {
	id    uint64
	kinds map[Kind]bool
	ch    chan Notification
	bus   *Bus
	once  sync.Once
}

// C is the delivery channel. It is closed by Close or by Bus.Close.
func (s *Subscription) C() <-chan Notification { return s.ch }

// Close unsubscribes and closes C.
func (s *Subscription) Close() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	s.closeLocked()
}

func (s *Subscription) closeLocked() {
	s.once.Do(func() {
		delete(s.bus.subs, s.id)
		close(s.ch)
	})
}

func (s *Subscription) wants(k Kind) bool {
	return len(s.kinds) == 0 || s.kinds[k]
}

// Subscribe registers for kinds; no kinds means everything. buffer is the
// channel capacity (minimum 1).
func (b *Bus) Subscribe(buffer int, kinds ...Kind) *Subscription {
	if buffer < 1 {
		buffer = 1
	}
	sub := &Subscription{
		kinds: make(map[Kind]bool, len(kinds)),
		ch:    make(chan Notification, buffer),
		bus:   b,
	}
	for _, k := range kinds {
		sub.kinds[k] = true
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(sub.ch)
		return sub
	}
	b.nextID++
	sub.id = b.nextID
	b.subs[sub.id] = sub
	return sub
}

// Publish delivers n to every matching subscriber without blocking.
func (b *Bus) Publish(n Notification) {
	if n.At.IsZero() {
		n.At = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, s := range b.subs {
		if !s.wants(n.Kind) {
			continue
		}
		select {
		case s.ch <- n:
		default:
			b.dropped.Add(1)
		}
	}
}

// Dropped returns the number of notifications lost to full subscribers.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// Close closes every subscription. Later publishes are ignored.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, s := range b.subs {
		s.closeLocked()
	}
}
// #endregion bus

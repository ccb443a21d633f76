// Package eventbus is a small in-memory fanout used to decouple the scheduler
// from diagnostics. Publish never blocks; slow subscribers drop events.
package eventbus

import (
	"sync"
	"time"
)

// Event types published by the scheduler.
const (
	TypeJobFired   = "job.fired"
	TypeJobFailed  = "job.failed"
	TypeReconciled = "scheduler.reconciled"
	TypeOrphanScan = "scheduler.orphan_scan"
)

// Event is a lightweight, in-memory signal.
// Data should be small and ideally JSON-serializable.
type Event struct {
	Type string
	Time time.Time
	Data any
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

type subscriber struct {
	ch     chan Event
	closed bool
}

type memBus struct {
	mu   sync.Mutex
	subs map[uint64]*subscriber
	next uint64
}

// New returns a simple in-memory fanout bus.
// It does not own any background goroutines.
func New() Bus {
	return &memBus{subs: map[uint64]*subscriber{}}
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.subs {
		if s.closed {
			continue
		}
		// Non-blocking delivery: drop for slow subscribers.
		select {
		case s.ch <- e:
		default:
		}
	}
}

func (b *memBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	sub := &subscriber{ch: make(chan Event, buffer)}

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = sub
	b.mu.Unlock()

	unsub := func() {
		b.mu.Lock()
		if s, ok := b.subs[id]; ok && !s.closed {
			s.closed = true
			delete(b.subs, id)
			close(s.ch)
		}
		b.mu.Unlock()
	}
	return sub.ch, unsub
}

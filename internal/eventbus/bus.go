package eventbus

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// Bus is the process-wide unbounded event queue. Producers call Emit,
// which never blocks; the single consumer goroutine started by Loop.Run
// drains it in FIFO order. The queue is backed by a growable linked list
// guarded by a mutex rather than a fixed-capacity Go channel, because the
// contract is an unbounded MPMC queue: a bounded channel would make Emit
// block (or drop) under a burst, which the spec rules out.
type Bus struct {
	mu     sync.Mutex
	items  *list.List
	notify chan struct{} // buffered(1), signals "queue is non-empty"
}

// NewBus constructs an empty Bus.
func NewBus() *Bus {
	return &Bus{
		items:  list.New(),
		notify: make(chan struct{}, 1),
	}
}

// Emit enqueues ev for the consumer loop. It never blocks and never
// drops: this is the single non-blocking producer API every component
// (adapters, the HTTP layer, background tasks posting completions) uses
// to get events onto the single consumer's queue.
func (b *Bus) Emit(ev Event) {
	b.mu.Lock()
	b.items.PushBack(ev)
	b.mu.Unlock()
	select {
	case b.notify <- struct{}{}:
	default:
	}
}

// pop removes and returns the oldest queued event, if any.
func (b *Bus) pop() (Event, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	front := b.items.Front()
	if front == nil {
		return Event{}, false
	}
	b.items.Remove(front)
	return front.Value.(Event), true
}

// TryPop removes and returns the oldest queued event, if any. Production
// code must never call this — only Loop.Run may drain the bus. It exists
// so other packages' tests can assert on what a producer enqueued without
// running a full Loop.
func (b *Bus) TryPop() (Event, bool) {
	return b.pop()
}

// len reports the current queue depth, for diagnostics.
func (b *Bus) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.items.Len()
}

// Handler processes one event on the consumer goroutine. It must not
// block: long work (adapter calls, DB writes, broadcasts) is spawned
// onto its own goroutine which reports completion by emitting a new
// event back onto the Bus.
type Handler func(ctx context.Context, ev Event)

// Loop is the single-consumer event-loop task. It owns the warmup timer
// and wakes on the Bus's notify signal whenever Emit queues an event; no
// other goroutine may read from the Bus.
type Loop struct {
	bus     *Bus
	handle  Handler
	warmup  time.Duration

	mu      sync.Mutex
	warm    bool // true once StartupCompleted has been processed
}

// NewLoop builds a Loop that dispatches every popped event to handle,
// and fires a synthetic StartupCompleted event warmup after Run starts
// (per §5 "Warmup": ObservedState is processed during warmup but
// InternalUpdate propagation to downstream components is suppressed
// until that timer fires).
func NewLoop(bus *Bus, warmup time.Duration, handle Handler) *Loop {
	return &Loop{bus: bus, handle: handle, warmup: warmup}
}

// Warm reports whether StartupCompleted has already been processed.
func (l *Loop) Warm() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.warm
}

func (l *Loop) markWarm() {
	l.mu.Lock()
	l.warm = true
	l.mu.Unlock()
}

// Run drains the bus until ctx is cancelled. It is the only goroutine
// permitted to call pop; every handler invocation happens here,
// serialized, matching the "one cooperative multitasking runtime, one
// consumer task" model of §5.
func (l *Loop) Run(ctx context.Context) {
	warmupTimer := time.NewTimer(l.warmup)
	defer warmupTimer.Stop()
	warmupFired := false

	// drain anything already queued without waiting for a notify signal
	l.drainAvailable(ctx)

	for {
		select {
		case <-ctx.Done():
			return

		case <-l.bus.notify:
			l.drainAvailable(ctx)

		case <-warmupTimer.C:
			if !warmupFired {
				warmupFired = true
				l.bus.Emit(Event{Kind: KindStartupCompleted})
			}
		}
	}
}

// drainAvailable pops and dispatches every event currently queued. It is
// intentionally a tight loop with no yield back to select between items:
// FIFO order within a drain matches "events from the same producer are
// delivered in FIFO order" (§5).
func (l *Loop) drainAvailable(ctx context.Context) {
	for {
		ev, ok := l.bus.pop()
		if !ok {
			return
		}
		if ev.Kind == KindStartupCompleted {
			l.markWarm()
		}
		l.handle(ctx, ev)
	}
}

// Depth exposes the current queue length for health/metrics reporting.
func (l *Loop) Depth() int {
	return l.bus.len()
}

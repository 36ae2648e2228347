package storecore

import (
	"sync"
	"sync/atomic"

	"github.com/shashiranjanraj/kashvi/pkg/logger"
)

// Event is the payload carried by every bus emission. Surfaces populate only
// the fields relevant to the named event; callers type-assert Item/OldItem
// against their entity type.
type Event struct {
	Name     string
	Instance any
	Item     any
	OldItem  any
	ID       any
	Items    any
	Err      error
}

type subscription struct {
	id      uint64
	event   string
	once    bool
	handler func(Event)
}

// Unsubscribe removes a handler previously registered with On or Once.
type Unsubscribe func()

// Bus is a typed, named-event emitter. Every internally-scheduled emission
// is deferred to the bus's single dispatch-loop goroutine so a chain of
// synchronous state mutations completes before any observer runs — this is
// the Go stand-in for "defer to the next microtask" and it has the same
// purpose: observers never see a partially updated query, and they cannot
// reenter the call stack that produced the event.
//
// The exported Emit method is intentionally useless: a public emit from
// outside the component that owns the bus is a programmer error. Internal
// call sites (ItemQuery, CollectionQuery, EntityStore, WeakIndex) use the
// unexported dispatch method instead.
type Bus struct {
	mu       sync.Mutex
	handlers map[string][]*subscription
	nextID   uint64
	queue    chan func()
	closed   chan struct{}
	closeOne sync.Once
}

// NewBus creates a Bus and starts its dispatch loop. Call Close when the
// owning component is discarded so the loop goroutine can exit.
func NewBus() *Bus {
	b := &Bus{
		handlers: make(map[string][]*subscription),
		queue:    make(chan func(), 256),
		closed:   make(chan struct{}),
	}
	go b.loop()
	return b
}

func (b *Bus) loop() {
	for {
		select {
		case fn := <-b.queue:
			fn()
		case <-b.closed:
			for {
				select {
				case fn := <-b.queue:
					fn()
				default:
					return
				}
			}
		}
	}
}

// Close stops the dispatch loop after draining anything already queued.
// Safe to call more than once.
func (b *Bus) Close() {
	b.closeOne.Do(func() { close(b.closed) })
}

// On registers handler for every emission of name, returning a function that
// unsubscribes it.
func (b *Bus) On(name string, handler func(Event)) Unsubscribe {
	return b.add(name, handler, false)
}

// Once registers handler for exactly one emission of name.
func (b *Bus) Once(name string, handler func(Event)) Unsubscribe {
	return b.add(name, handler, true)
}

func (b *Bus) add(name string, handler func(Event), once bool) Unsubscribe {
	id := atomic.AddUint64(&b.nextID, 1)
	sub := &subscription{id: id, event: name, once: once, handler: handler}

	b.mu.Lock()
	b.handlers[name] = append(b.handlers[name], sub)
	b.mu.Unlock()

	return func() { b.Off(name, id) }
}

// Off removes a specific subscription by the id its registration captured.
func (b *Bus) Off(name string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.handlers[name]
	for i, s := range subs {
		if s.id == id {
			b.handlers[name] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}

// Emit is the public surface of the bus. External emission is forbidden by
// design (§4.1): the bus only ever dispatches events the owning component
// produces through its internal state transitions.
func (b *Bus) Emit(name string, payload Event) error {
	return newErr(KindInternal, "Bus.Emit is internal-only; the owning component dispatches its own events")
}

// dispatch schedules name/payload for delivery on the dispatch loop. Handler
// panics are recovered and logged so one bad observer cannot corrupt the
// bus or the emitter's state machine.
func (b *Bus) dispatch(name string, payload Event) {
	payload.Name = name

	b.mu.Lock()
	subs := append([]*subscription(nil), b.handlers[name]...)
	b.mu.Unlock()

	if len(subs) == 0 {
		return
	}

	b.queue <- func() {
		for _, s := range subs {
			invoke(s, payload)
			if s.once {
				b.Off(name, s.id)
			}
		}
	}
}

func invoke(s *subscription, payload Event) {
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("storecore: event handler panicked", "event", s.event, "recover", r)
		}
	}()
	s.handler(payload)
}

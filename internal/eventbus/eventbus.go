// Package eventbus implements the type-indexed pub/sub layer that marshals
// cross-subsystem events onto a target Dispatcher (spec component G).
//
// Grounded on the teacher's SubscriptionIndex channel->subscriber map
// pattern (broadcast.go), generalized from a websocket channel string key
// to a Go event type key since Go has no template instantiation.
package eventbus

import (
	"reflect"
	"sync"

	"github.com/kybird/vsurv/internal/dispatch"
)

type subscriber struct {
	dispatcher *dispatch.Dispatcher
	callback   func(any)
}

// Bus is a type-indexed pub/sub registry.
type Bus struct {
	mu   sync.RWMutex
	subs map[reflect.Type][]subscriber
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{subs: make(map[reflect.Type][]subscriber)}
}

// Subscribe registers fn to run (on d) whenever an event of type E is
// published. Returns an Unsubscribe function.
func Subscribe[E any](bus *Bus, d *dispatch.Dispatcher, fn func(E)) func() {
	var zero E
	t := reflect.TypeOf(zero)

	wrapped := func(ev any) { fn(ev.(E)) }
	sub := subscriber{dispatcher: d, callback: wrapped}

	bus.mu.Lock()
	bus.subs[t] = append(bus.subs[t], sub)
	idx := len(bus.subs[t]) - 1
	bus.mu.Unlock()

	return func() {
		bus.mu.Lock()
		defer bus.mu.Unlock()
		list := bus.subs[t]
		if idx < 0 || idx >= len(list) {
			return
		}
		// Mark removed by nil-ing the callback rather than slicing, so
		// concurrently-iterating Publish calls that already snapshotted the
		// slice don't invoke a removed subscriber's callback after this
		// returns... they still might, per the "unsubscribe before the
		// subscriber dies" invariant: this just stops *future* publishes.
		list[idx].callback = nil
	}
}

// Publish delivers ev to every subscriber of type E, each on its own
// Dispatcher, preserving FIFO order per (publisher, subscriber) pair since
// each subscriber's callback is posted in the order Publish iterates them
// and each Dispatcher runs tasks in the order they were posted.
func Publish[E any](bus *Bus, ev E) {
	t := reflect.TypeOf(ev)

	bus.mu.RLock()
	subs := make([]subscriber, len(bus.subs[t]))
	copy(subs, bus.subs[t])
	bus.mu.RUnlock()

	for _, s := range subs {
		if s.callback == nil {
			continue
		}
		cb := s.callback
		evCopy := ev
		s.dispatcher.Post(func() { cb(evCopy) })
	}
}

// Package bus implements a process-local publish/subscribe hub: the
// wire contract that decouples the probe engine, state machine, log
// store, and broadcaster from one another.
package bus

import (
	"log"
	"reflect"
	"sync"
	"time"
)

const maxHistory = 100

// Handler receives a published payload. A handler that panics is
// recovered by the bus and logged; it never reaches the publisher.
type Handler func(payload interface{})

type subscription struct {
	handler Handler
	once    bool
}

// Entry is one recorded publish, returned by History.
type Entry struct {
	Event     string
	Payload   interface{}
	Timestamp time.Time
}

// Bus is safe for concurrent use.
type Bus struct {
	mu      sync.Mutex
	subs    map[string][]*subscription
	history []Entry
}

func New() *Bus {
	return &Bus{subs: make(map[string][]*subscription)}
}

// Subscribe registers handler for event. Insertion order is preserved
// for dispatch.
func (b *Bus) Subscribe(event string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[event] = append(b.subs[event], &subscription{handler: handler})
}

// SubscribeOnce registers handler for event; it is removed after its
// first invocation even if it panics.
func (b *Bus) SubscribeOnce(event string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[event] = append(b.subs[event], &subscription{handler: handler, once: true})
}

// Unsubscribe removes the first handler registered for event whose
// underlying function matches handler, as compared by sameFunc. No-op
// if none matches. Closures are not told apart by what they capture.
func (b *Bus) Unsubscribe(event string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[event]
	for i, s := range subs {
		if sameFunc(s.handler, handler) {
			b.subs[event] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

// Publish invokes every registered handler for event, in insertion
// order, synchronously, with the same payload. A handler failure is
// logged and does not prevent subsequent handlers from running or
// propagate to the publisher.
func (b *Bus) Publish(event string, payload interface{}) {
	b.mu.Lock()
	subs := append([]*subscription(nil), b.subs[event]...)
	b.history = append(b.history, Entry{Event: event, Payload: payload, Timestamp: time.Now()})
	if len(b.history) > maxHistory {
		b.history = b.history[len(b.history)-maxHistory:]
	}
	var remaining []*subscription
	for _, s := range subs {
		if !s.once {
			remaining = append(remaining, s)
		}
	}
	if onceRemoved := len(subs) != len(remaining); onceRemoved {
		b.subs[event] = remaining
	}
	b.mu.Unlock()

	for _, s := range subs {
		invoke(event, s.handler, payload)
	}
}

func invoke(event string, h Handler, payload interface{}) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("bus: handler for %q panicked: %v", event, r)
		}
	}()
	h(payload)
}

// History returns the last <=limit entries, optionally filtered to one
// event name. limit<=0 defaults to 50.
func (b *Bus) History(event string, limit int) []Entry {
	if limit <= 0 {
		limit = 50
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	var filtered []Entry
	if event == "" {
		filtered = b.history
	} else {
		for _, e := range b.history {
			if e.Event == event {
				filtered = append(filtered, e)
			}
		}
	}
	if len(filtered) > limit {
		filtered = filtered[len(filtered)-limit:]
	}
	out := make([]Entry, len(filtered))
	copy(out, filtered)
	return out
}

// ListenerCount returns the number of handlers registered for event.
func (b *Bus) ListenerCount(event string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[event])
}

// Events returns the names with at least one registered handler.
func (b *Bus) Events() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.subs))
	for name, subs := range b.subs {
		if len(subs) > 0 {
			out = append(out, name)
		}
	}
	return out
}

// sameFunc compares handlers by their underlying code pointer. Two
// closures from the same function literal compare equal regardless of
// captured variables, so Unsubscribe may remove an earlier-registered
// closure of the same literal instead of the one passed in.
func sameFunc(a, b Handler) bool {
	return reflect.ValueOf(a).Pointer() == reflect.ValueOf(b).Pointer()
}

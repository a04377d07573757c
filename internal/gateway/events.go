// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package gateway

import (
	"log/slog"
	"sync"
)

// Listener receives events of one name. Listeners run on a delivery
// goroutine separate from the receive loop, one event at a time in arrival
// order. A slow listener delays later events but never responses, so a
// listener may call Request. It must not call ChatSend, which waits on the
// same delivery goroutine.
type Listener func(Event)

// dispatcher fans events out to named listener sets.
type dispatcher struct {
	logger *slog.Logger

	mu        sync.RWMutex
	nextID    uint64
	listeners map[string]map[uint64]Listener
}

func newDispatcher(logger *slog.Logger) *dispatcher {
	return &dispatcher{
		logger:    logger,
		listeners: make(map[string]map[uint64]Listener),
	}
}

// on registers listener for name and returns an idempotent unsubscribe func.
func (d *dispatcher) on(name string, listener Listener) func() {
	d.mu.Lock()
	id := d.nextID
	d.nextID++
	set, ok := d.listeners[name]
	if !ok {
		set = make(map[uint64]Listener)
		d.listeners[name] = set
	}
	set[id] = listener
	d.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			// The name entry stays even when its set becomes empty.
			if set, ok := d.listeners[name]; ok {
				delete(set, id)
			}
			d.mu.Unlock()
		})
	}
}

// dispatch delivers ev to every listener registered for its name.
func (d *dispatcher) dispatch(ev Event) {
	d.mu.RLock()
	set := d.listeners[ev.Name]
	targets := make([]Listener, 0, len(set))
	for _, l := range set {
		targets = append(targets, l)
	}
	d.mu.RUnlock()

	for _, l := range targets {
		d.invoke(l, ev)
	}
}

// invoke runs one listener and contains its panic.
func (d *dispatcher) invoke(l Listener, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			listenerPanics.Inc()
			d.logger.Error("event listener panicked", "event", ev.Name, "panic", r)
		}
	}()
	l(ev)
}

// count returns the number of listeners registered for name.
func (d *dispatcher) count(name string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.listeners[name])
}

// clear removes every listener.
func (d *dispatcher) clear() {
	d.mu.Lock()
	d.listeners = make(map[string]map[uint64]Listener)
	d.mu.Unlock()
}

// eventQueue hands events from the receive loop to a single delivery
// goroutine. push never blocks.
type eventQueue struct {
	mu     sync.Mutex
	items  []Event
	closed bool

	wake chan struct{}
	done chan struct{}
}

func newEventQueue() *eventQueue {
	return &eventQueue{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// push appends ev. It reports false once the queue is closed.
func (q *eventQueue) push(ev Event) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, ev)
	q.mu.Unlock()
	q.signal()
	return true
}

func (q *eventQueue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// close stops the queue accepting events. Queued events are still delivered
// unless discard is set. Safe to call more than once.
func (q *eventQueue) close(discard bool) {
	q.mu.Lock()
	q.closed = true
	if discard {
		q.items = nil
	}
	q.mu.Unlock()
	q.signal()
}

// run delivers queued events through d until the queue is closed and
// drained, then closes q.done.
func (q *eventQueue) run(d *dispatcher) {
	defer close(q.done)
	for {
		q.mu.Lock()
		batch := q.items
		q.items = nil
		closed := q.closed
		q.mu.Unlock()

		if len(batch) == 0 {
			if closed {
				return
			}
			<-q.wake
			continue
		}
		for _, ev := range batch {
			d.dispatch(ev)
		}
	}
}

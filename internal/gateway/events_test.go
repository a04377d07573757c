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
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/agentdesk/agentdesk/internal/log"
)

func TestDispatcher_DeliversToAllListeners(t *testing.T) {
	d := newDispatcher(log.Discard())

	var a, b []string
	d.on("chat", func(ev Event) { a = append(a, string(ev.Payload)) })
	d.on("chat", func(ev Event) { b = append(b, string(ev.Payload)) })
	d.on("tick", func(ev Event) { t.Error("tick listener received chat event") })

	d.dispatch(Event{Name: "chat", Payload: json.RawMessage(`1`)})
	d.dispatch(Event{Name: "chat", Payload: json.RawMessage(`2`)})

	assert.Equal(t, []string{"1", "2"}, a)
	assert.Equal(t, []string{"1", "2"}, b)
}

func TestDispatcher_Unsubscribe(t *testing.T) {
	d := newDispatcher(log.Discard())

	calls := 0
	off := d.on("chat", func(Event) { calls++ })
	assert.Equal(t, 1, d.count("chat"))

	d.dispatch(Event{Name: "chat"})
	off()
	off() // idempotent
	d.dispatch(Event{Name: "chat"})

	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, d.count("chat"))
}

func TestDispatcher_UnsubscribeLeavesOthers(t *testing.T) {
	d := newDispatcher(log.Discard())

	kept := 0
	off := d.on("chat", func(Event) {})
	d.on("chat", func(Event) { kept++ })

	off()
	off()
	d.dispatch(Event{Name: "chat"})

	assert.Equal(t, 1, kept)
	assert.Equal(t, 1, d.count("chat"))
}

func TestDispatcher_PanickingListener(t *testing.T) {
	d := newDispatcher(log.Discard())

	delivered := 0
	d.on("chat", func(Event) { panic("boom") })
	d.on("chat", func(Event) { delivered++ })

	assert.NotPanics(t, func() {
		d.dispatch(Event{Name: "chat"})
		d.dispatch(Event{Name: "chat"})
	})
	assert.Equal(t, 2, delivered)
}

func TestDispatcher_Clear(t *testing.T) {
	d := newDispatcher(log.Discard())
	off := d.on("chat", func(Event) {})
	d.on("tick", func(Event) {})

	d.clear()
	assert.Equal(t, 0, d.count("chat"))
	assert.Equal(t, 0, d.count("tick"))

	// Unsubscribing after clear is harmless.
	off()
}

func TestDispatcher_ListenerMayUnsubscribeItself(t *testing.T) {
	d := newDispatcher(log.Discard())

	calls := 0
	var off func()
	off = d.on("chat", func(Event) {
		calls++
		off()
	})

	d.dispatch(Event{Name: "chat"})
	d.dispatch(Event{Name: "chat"})
	assert.Equal(t, 1, calls)
}

func TestEventQueue_DeliversInOrder(t *testing.T) {
	d := newDispatcher(log.Discard())
	var got []string
	d.on("tick", func(ev Event) { got = append(got, string(ev.Payload)) })

	q := newEventQueue()
	for _, p := range []string{"1", "2", "3"} {
		assert.True(t, q.push(Event{Name: "tick", Payload: json.RawMessage(p)}))
	}
	q.close(false)
	assert.False(t, q.push(Event{Name: "tick", Payload: json.RawMessage(`4`)}))

	q.run(d)

	assert.Equal(t, []string{"1", "2", "3"}, got)
	select {
	case <-q.done:
	default:
		t.Fatal("done not closed after run returned")
	}
}

func TestEventQueue_CloseDiscard(t *testing.T) {
	d := newDispatcher(log.Discard())
	calls := 0
	d.on("tick", func(Event) { calls++ })

	q := newEventQueue()
	q.push(Event{Name: "tick"})
	q.push(Event{Name: "tick"})
	q.close(true)
	q.close(true)

	q.run(d)
	assert.Equal(t, 0, calls)
}

func TestEventQueue_PushDoesNotWaitForListener(t *testing.T) {
	d := newDispatcher(log.Discard())
	release := make(chan struct{})
	delivered := make(chan string, 3)
	d.on("tick", func(ev Event) {
		<-release
		delivered <- string(ev.Payload)
	})

	q := newEventQueue()
	go q.run(d)

	for _, p := range []string{"1", "2", "3"} {
		q.push(Event{Name: "tick", Payload: json.RawMessage(p)})
	}
	close(release)
	q.close(false)
	<-q.done

	close(delivered)
	var got []string
	for p := range delivered {
		got = append(got, p)
	}
	assert.Equal(t, []string{"1", "2", "3"}, got)
}

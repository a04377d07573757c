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
	"fmt"
	"sync"
)

// result is the outcome delivered to a waiting caller.
type result struct {
	payload json.RawMessage
	err     error
}

// pendingCall is one outstanding request. Whoever removes it from the table
// owns its settlement and sends exactly one result on ch.
type pendingCall struct {
	method string
	ch     chan result
}

// pendingTable tracks outstanding requests for a single transport session.
// Once closed it refuses new registrations, so a request can never be parked
// on a connection that is being torn down.
type pendingTable struct {
	mu     sync.Mutex
	calls  map[string]*pendingCall
	closed error
}

func newPendingTable() *pendingTable {
	return &pendingTable{calls: make(map[string]*pendingCall)}
}

// add registers a call under id.
func (t *pendingTable) add(id, method string) (*pendingCall, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed != nil {
		return nil, t.closed
	}
	if _, exists := t.calls[id]; exists {
		return nil, fmt.Errorf("gateway: duplicate request id %s", id)
	}

	call := &pendingCall{method: method, ch: make(chan result, 1)}
	t.calls[id] = call
	pendingRequests.Inc()
	return call, nil
}

// take removes and returns the call registered under id.
func (t *pendingTable) take(id string) (*pendingCall, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	call, ok := t.calls[id]
	if ok {
		delete(t.calls, id)
		pendingRequests.Dec()
	}
	return call, ok
}

// remove drops the call registered under id. It reports whether the caller
// won the race; false means another path already settled the call and its
// result is (or will be) on the channel.
func (t *pendingTable) remove(id string) bool {
	_, ok := t.take(id)
	return ok
}

// resolve settles the call matching a response frame. It reports false for
// responses nobody is waiting for.
func (t *pendingTable) resolve(f *responseFrame) bool {
	call, ok := t.take(f.ID)
	if !ok {
		return false
	}
	call.ch <- f.toResult(call.method)
	return true
}

// closeAll fails every pending call with err and refuses later registrations.
// It returns the number of calls failed. Calling it again is a no-op.
func (t *pendingTable) closeAll(err error) int {
	t.mu.Lock()
	if t.closed != nil {
		t.mu.Unlock()
		return 0
	}
	t.closed = err
	calls := t.calls
	t.calls = make(map[string]*pendingCall)
	pendingRequests.Sub(float64(len(calls)))
	t.mu.Unlock()

	for _, call := range calls {
		call.ch <- result{err: fmt.Errorf("%s: %w", call.method, err)}
	}
	return len(calls)
}

// len returns the number of outstanding calls.
func (t *pendingTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.calls)
}

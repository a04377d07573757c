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
	"context"
	"errors"
	"fmt"
	"testing"

	agenterrors "github.com/agentdesk/agentdesk/pkg/errors"
)

func TestOutcome(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, "ok"},
		{"timeout", &agenterrors.TimeoutError{Operation: "x"}, "timeout"},
		{"closed", fmt.Errorf("chat.send: %w", ErrConnectionClosed), "closed"},
		{"aborted", ErrChatAborted, "aborted"},
		{"canceled", context.Canceled, "canceled"},
		{"request error", &RequestError{Method: "m"}, "error"},
		{"chat error", &ChatError{Message: "x"}, "error"},
		{"other", errors.New("boom"), "failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := outcome(tt.err); got != tt.want {
				t.Errorf("outcome(%v) = %q, want %q", tt.err, got, tt.want)
			}
		})
	}
}

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

package chatproxy

import "context"

// Responder produces a reply when the gateway cannot.
type Responder interface {
	Respond(ctx context.Context, sessionKey, message string) (string, error)
}

// StaticResponder always answers with the same message.
type StaticResponder struct {
	Message string
}

// Respond implements Responder.
func (s StaticResponder) Respond(context.Context, string, string) (string, error) {
	return s.Message, nil
}

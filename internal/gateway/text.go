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
	"bytes"
	"encoding/json"
	"strings"
)

// ExtractText returns the plain text carried by a chat message. It accepts
// a bare string, an object whose content is a string, and an object whose
// content is an array of blocks. Blocks are either strings or objects of the
// form {"type":"text","text":...}; text blocks are concatenated in order and
// every other block is skipped. An object with only a top-level "text"
// field is also accepted. Anything else yields "".
func ExtractText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text
	}

	var msg struct {
		Content json.RawMessage `json:"content"`
		Text    *string         `json:"text"`
	}
	if err := json.Unmarshal(raw, &msg); err != nil {
		return ""
	}

	if len(msg.Content) > 0 && !bytes.Equal(msg.Content, []byte("null")) {
		if err := json.Unmarshal(msg.Content, &text); err == nil {
			return text
		}
		var blocks []json.RawMessage
		if err := json.Unmarshal(msg.Content, &blocks); err == nil {
			return joinTextBlocks(blocks)
		}
	}

	if msg.Text != nil {
		return *msg.Text
	}
	return ""
}

func joinTextBlocks(blocks []json.RawMessage) string {
	var b strings.Builder
	for _, block := range blocks {
		var s string
		if err := json.Unmarshal(block, &s); err == nil {
			b.WriteString(s)
			continue
		}
		var tb struct {
			Type string `json:"type"`
			Text string `json:"text"`
		}
		if err := json.Unmarshal(block, &tb); err == nil && tb.Type == "text" {
			b.WriteString(tb.Text)
		}
	}
	return b.String()
}

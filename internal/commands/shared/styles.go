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

package shared

import (
	"io"

	"github.com/charmbracelet/lipgloss"
)

// Symbols for status indicators
const (
	SymbolOK    = "✓"
	SymbolWarn  = "⚠"
	SymbolError = "✗"
)

// Styles renders status output for one writer. Colors are only emitted
// when the writer is a terminal that supports them.
type Styles struct {
	ok     lipgloss.Style
	warn   lipgloss.Style
	err    lipgloss.Style
	muted  lipgloss.Style
	header lipgloss.Style
}

// NewStyles returns styles bound to w's color profile.
func NewStyles(w io.Writer) *Styles {
	r := lipgloss.NewRenderer(w)
	return &Styles{
		ok:     r.NewStyle().Foreground(lipgloss.Color("42")),  // green
		warn:   r.NewStyle().Foreground(lipgloss.Color("214")), // orange
		err:    r.NewStyle().Foreground(lipgloss.Color("196")), // red
		muted:  r.NewStyle().Foreground(lipgloss.Color("245")), // gray
		header: r.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
	}
}

// OK renders a success message with a green checkmark.
func (s *Styles) OK(msg string) string {
	return s.ok.Render(SymbolOK) + " " + msg
}

// Warn renders a warning message with an orange symbol.
func (s *Styles) Warn(msg string) string {
	return s.warn.Render(SymbolWarn) + " " + msg
}

// Error renders an error message with a red X.
func (s *Styles) Error(msg string) string {
	return s.err.Render(SymbolError) + " " + msg
}

// Label renders a dim label for key: value pairs.
func (s *Styles) Label(label string) string {
	return s.muted.Render(label)
}

// Header renders a section header.
func (s *Styles) Header(text string) string {
	return s.header.Render(text)
}

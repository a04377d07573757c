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
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/agentdesk/agentdesk/internal/gateway"
	pkgerrors "github.com/agentdesk/agentdesk/pkg/errors"
)

// Exit codes for agentdesk commands
const (
	ExitSuccess            = 0
	ExitFailed             = 1
	ExitUsage              = 2
	ExitConfigError        = 3
	ExitGatewayUnavailable = 4
	ExitTimeout            = 5
)

// ExitError is an error that carries an exit code
type ExitError struct {
	Code    int
	Message string
	Cause   error
}

func (e *ExitError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Cause
}

// NewExecutionError creates an error for generic command failures
func NewExecutionError(msg string, cause error) *ExitError {
	return &ExitError{
		Code:    ExitFailed,
		Message: msg,
		Cause:   cause,
	}
}

// NewUsageError creates an error for invalid arguments or input
func NewUsageError(msg string, cause error) *ExitError {
	return &ExitError{
		Code:    ExitUsage,
		Message: msg,
		Cause:   cause,
	}
}

// NewConfigError creates an error for configuration problems
func NewConfigError(msg string, cause error) *ExitError {
	return &ExitError{
		Code:    ExitConfigError,
		Message: msg,
		Cause:   cause,
	}
}

// NewGatewayError wraps a gateway failure with the exit code matching its
// class: unreachable gateway, timeout, bad input, or a generic failure.
func NewGatewayError(msg string, cause error) *ExitError {
	code := ExitFailed

	var connErr *gateway.ConnectError
	var timeoutErr *pkgerrors.TimeoutError
	var validationErr *pkgerrors.ValidationError
	switch {
	case errors.As(cause, &connErr):
		code = ExitGatewayUnavailable
	case errors.As(cause, &timeoutErr):
		code = ExitTimeout
	case errors.As(cause, &validationErr):
		code = ExitUsage
	case errors.Is(cause, gateway.ErrConnectionClosed):
		code = ExitGatewayUnavailable
	}

	return &ExitError{
		Code:    code,
		Message: msg,
		Cause:   cause,
	}
}

// ExitCode returns the process exit code for err.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailed
}

// HandleExitError prints err and exits with the appropriate code
func HandleExitError(err error) {
	if err == nil {
		return
	}
	WriteError(os.Stderr, err)
	os.Exit(ExitCode(err))
}

// WriteError prints err and, when an error in its chain is user visible,
// the suggestion attached to it.
func WriteError(w io.Writer, err error) {
	if msg := err.Error(); msg != "" {
		fmt.Fprintln(w, "Error:", msg)
	}
	printUserVisibleSuggestion(w, err)
}

// printUserVisibleSuggestion checks if an error implements UserVisibleError
// and prints the suggestion if available.
func printUserVisibleSuggestion(w io.Writer, err error) {
	var userErr pkgerrors.UserVisibleError
	if !errors.As(err, &userErr) || !userErr.IsUserVisible() {
		return
	}
	if suggestion := userErr.Suggestion(); suggestion != "" {
		fmt.Fprintf(w, "\nSuggestion: %s\n", suggestion)
	}
}

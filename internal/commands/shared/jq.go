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
	"context"
	"encoding/json"
	"io"

	"github.com/spf13/cobra"

	"github.com/agentdesk/agentdesk/internal/jq"
)

// AddJQFlag registers --jq on cmd, bound to expr.
func AddJQFlag(cmd *cobra.Command, expr *string) {
	cmd.Flags().StringVar(expr, "jq", "", "Filter the raw gateway payload with a jq expression")
}

// ValidateJQ returns a usage error when expression does not compile.
func ValidateJQ(expression string) error {
	if expression == "" {
		return nil
	}
	if err := jq.NewExecutor(0, 0).Validate(expression); err != nil {
		return NewUsageError("invalid --jq expression", err)
	}
	return nil
}

// EmitJQ filters payload with expression and writes each result to w.
func EmitJQ(ctx context.Context, w io.Writer, expression string, payload json.RawMessage) error {
	results, err := jq.NewExecutor(0, 0).Filter(ctx, expression, payload)
	if err != nil {
		return NewExecutionError("jq filter failed", err)
	}
	return jq.Write(w, results)
}

package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/deixis/shellout/internal/workflow"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type pipelineParams struct {
	Name string `json:"name" jsonschema:"name of a pipeline from the .shellout file"`
}

func (h *handler) pipelineHandler(ctx context.Context, req *mcp.CallToolRequest, params pipelineParams) (*mcp.CallToolResult, any, error) {
	if params.Name == "" {
		return errorResult("name is required")
	}
	result, err := h.engineFor(req).Pipeline(ctx, params.Name)
	if err != nil {
		return errorResult(fmt.Sprintf("pipeline failed: %v", err))
	}

	text := formatPipeline(result)
	if result.FailedIdx >= 0 {
		return errorResult(text)
	}
	return textResult(text)
}

func formatPipeline(result *workflow.PipelineResult) string {
	var b strings.Builder

	allPassed := result.FailedIdx < 0
	if allPassed {
		fmt.Fprintln(&b, "Status: PASS")
	} else {
		fmt.Fprintln(&b, "Status: FAIL")
	}
	fmt.Fprintf(&b, "Run: %s\n", result.Record.ID)
	fmt.Fprintf(&b, "Pipeline: %s\n", result.Record.Name)
	fmt.Fprintln(&b)

	fmt.Fprintln(&b, "Steps:")
	for _, s := range result.Steps {
		switch {
		case s.Run != nil:
			fmt.Fprintf(&b, "  %s: %s (run %s)\n", s.Name, s.Status, s.Run.ID)
		default:
			fmt.Fprintf(&b, "  %s: %s\n", s.Name, s.Status)
		}
	}
	fmt.Fprintln(&b)

	if allPassed {
		fmt.Fprintln(&b, "All steps passed.")
		return b.String()
	}

	failed := result.Steps[result.FailedIdx]
	fmt.Fprintf(&b, "Failed step: %s\n", failed.Name)
	if failed.Detail != "" {
		fmt.Fprintf(&b, "Error: %s\n", failed.Detail)
	}
	if failed.Status == workflow.StatusUnavailable {
		fmt.Fprintf(&b, "Action: %s could not be started. Check the executable path in .shellout.\n", failed.Name)
	} else if failed.Run != nil {
		fmt.Fprintf(&b, "Inspect with sh_inspect(run_id=%q, stream=\"stderr\").\n", failed.Run.ID)
	}
	return b.String()
}

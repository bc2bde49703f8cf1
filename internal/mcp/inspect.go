package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/deixis/shellout/internal/report"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type inspectParams struct {
	RunID  string `json:"run_id" jsonschema:"the run ID from a sh_run, sh_exec or sh_pipeline result"`
	Stream string `json:"stream,omitempty" jsonschema:"stdout, stderr or both (default both)"`
	Tail   int    `json:"tail,omitempty" jsonschema:"only show the last N lines"`
	Grep   string `json:"grep,omitempty" jsonschema:"only show lines containing this text"`
}

func (h *handler) inspectHandler(ctx context.Context, req *mcp.CallToolRequest, params inspectParams) (*mcp.CallToolResult, any, error) {
	if params.RunID == "" {
		return errorResult("run_id is required")
	}

	rec, err := h.store.Load(params.RunID)
	if err != nil {
		return errorResult(fmt.Sprintf("Failed to load run %s: %v", params.RunID, err))
	}

	if rec.Kind == report.Pipeline {
		return textResult(formatPipelineRecord(rec))
	}

	out, err := report.Select(rec, report.Query{Stream: params.Stream, Tail: params.Tail, Grep: params.Grep})
	if err != nil {
		return errorResult(err.Error())
	}
	return textResult(formatInspectOutput(rec, params, out))
}

func formatInspectOutput(rec *report.Record, params inspectParams, out string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Run: %s (%s)\n", rec.ID, rec.Outcome)
	cmdline := strings.TrimSpace(rec.Executable + " " + strings.Join(rec.Args, " "))
	fmt.Fprintf(&b, "Command: %s\n", cmdline)
	if rec.Error != "" {
		fmt.Fprintf(&b, "Error: %s\n", rec.Error)
	}
	fmt.Fprintln(&b)

	if out == "" {
		var filters []string
		if params.Stream != "" {
			filters = append(filters, "stream="+params.Stream)
		}
		if params.Grep != "" {
			filters = append(filters, fmt.Sprintf("grep=%q", params.Grep))
		}
		if len(filters) > 0 {
			fmt.Fprintf(&b, "No output matches %s.\n", strings.Join(filters, ", "))
		} else {
			fmt.Fprintln(&b, "No output captured.")
		}
		return b.String()
	}

	b.WriteString(out)
	return b.String()
}

func formatPipelineRecord(rec *report.Record) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Run: %s (pipeline %s, %s)\n", rec.ID, rec.Name, rec.Outcome)
	fmt.Fprintln(&b)
	for _, s := range rec.Steps {
		if s.RunID != "" {
			fmt.Fprintf(&b, "  %s: %s (run %s)\n", s.Name, s.Status, s.RunID)
		} else {
			fmt.Fprintf(&b, "  %s: %s\n", s.Name, s.Status)
		}
	}
	fmt.Fprintln(&b)
	fmt.Fprintln(&b, "Inspect a step's output with its run ID.")
	return b.String()
}

package mcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/deixis/shellout/internal/logging"
	"github.com/deixis/shellout/internal/report"
	"github.com/deixis/shellout/internal/runner"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// inlineLines caps how many lines per stream a run result shows inline.
const inlineLines = 200

type runParams struct {
	Executable string   `json:"executable" jsonschema:"absolute path or file:// URL of the program, or a program name found on PATH"`
	Args       []string `json:"args,omitempty" jsonschema:"arguments passed verbatim, without shell interpretation"`
	Dir        string   `json:"dir,omitempty" jsonschema:"working directory. Defaults to the directory containing the executable."`
	Input      *string  `json:"input,omitempty" jsonschema:"text written to standard input, which is then closed"`
}

func (h *handler) runHandler(ctx context.Context, req *mcp.CallToolRequest, params runParams) (*mcp.CallToolResult, any, error) {
	if params.Executable == "" {
		return errorResult("executable is required")
	}
	rec, _ := h.engineFor(req).Run(ctx, "", runner.Request{
		Executable: params.Executable,
		Dir:        params.Dir,
		Input:      params.Input,
		Args:       params.Args,
	})
	return h.runResult(ctx, rec)
}

type execParams struct {
	Name  string   `json:"name" jsonschema:"name of a command from the .shellout file"`
	Args  []string `json:"args,omitempty" jsonschema:"extra arguments appended to the configured ones"`
	Input *string  `json:"input,omitempty" jsonschema:"text written to standard input, replacing any configured input"`
}

func (h *handler) execHandler(ctx context.Context, req *mcp.CallToolRequest, params execParams) (*mcp.CallToolResult, any, error) {
	if params.Name == "" {
		return errorResult("name is required")
	}
	rec, err := h.engineFor(req).Exec(ctx, params.Name, params.Args, params.Input)
	if rec == nil {
		return errorResult(fmt.Sprintf("exec failed: %v", err))
	}
	return h.runResult(ctx, rec)
}

func (h *handler) runResult(ctx context.Context, rec *report.Record) (*mcp.CallToolResult, any, error) {
	log := logging.FromContext(logging.WithRunID(ctx, rec.ID), h.logger)
	log.Debug("tool run finished", "outcome", rec.Outcome)

	text := formatRun(rec)
	if rec.Outcome != report.OK {
		return errorResult(text)
	}
	return textResult(text)
}

func formatRun(rec *report.Record) string {
	var b strings.Builder

	switch rec.Outcome {
	case report.OK:
		fmt.Fprintln(&b, "Status: OK")
	case report.Failed:
		fmt.Fprintln(&b, "Status: FAIL")
	default:
		fmt.Fprintln(&b, "Status: NOT STARTED")
	}
	fmt.Fprintf(&b, "Run: %s\n", rec.ID)
	if rec.Name != "" {
		fmt.Fprintf(&b, "Command: %s\n", rec.Name)
	}

	if rec.Outcome == report.StartError {
		fmt.Fprintf(&b, "Error: %s\n", rec.Error)
		return b.String()
	}

	if rec.Signal != "" {
		fmt.Fprintf(&b, "Signal: %s\n", rec.Signal)
	} else {
		fmt.Fprintf(&b, "Exit: %d\n", rec.ExitCode)
	}
	fmt.Fprintf(&b, "Duration: %s\n", rec.Duration.Round(time.Millisecond))
	if rec.Truncated {
		fmt.Fprintln(&b, "Output was truncated at the configured size cap.")
	}
	fmt.Fprintln(&b)

	shortened := writeStream(&b, "stdout", rec.Stdout)
	shortened = writeStream(&b, "stderr", rec.Stderr) || shortened

	if rec.Stdout == "" && rec.Stderr == "" {
		fmt.Fprintln(&b, "(no output)")
	}
	if shortened {
		fmt.Fprintln(&b)
		fmt.Fprintf(&b, "Output shortened. Inspect with sh_inspect(run_id=%q, stream=\"stdout\", tail=500).\n", rec.ID)
	}
	return b.String()
}

// writeStream writes a labelled, indented stream and reports whether it
// had to drop lines.
func writeStream(b *strings.Builder, label, s string) bool {
	if s == "" {
		return false
	}
	lines := strings.Split(strings.TrimSuffix(s, "\n"), "\n")
	dropped := 0
	if len(lines) > inlineLines {
		dropped = len(lines) - inlineLines
		lines = lines[dropped:]
	}

	fmt.Fprintf(b, "%s:\n", label)
	if dropped > 0 {
		fmt.Fprintf(b, "    ... %d earlier lines omitted ...\n", dropped)
	}
	for _, line := range lines {
		fmt.Fprintf(b, "    %s\n", line)
	}
	return dropped > 0
}

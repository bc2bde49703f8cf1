package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type commandsParams struct{}

func (h *handler) commandsHandler(ctx context.Context, req *mcp.CallToolRequest, _ commandsParams) (*mcp.CallToolResult, any, error) {
	cfg := h.engineFor(req).Config
	var b strings.Builder

	names := cfg.CommandNames()
	if len(names) == 0 {
		fmt.Fprintln(&b, "No commands configured. Add a commands section to .shellout, or use sh_run.")
		return textResult(b.String())
	}

	fmt.Fprintf(&b, "Commands (%d):\n", len(names))
	for _, name := range names {
		c := cfg.Commands[name]
		line := strings.TrimSpace(c.Executable + " " + strings.Join(c.Args, " "))
		fmt.Fprintf(&b, "  %s: %s\n", name, line)
		if c.Description != "" {
			fmt.Fprintf(&b, "      %s\n", c.Description)
		}
	}

	if pipelines := cfg.PipelineNames(); len(pipelines) > 0 {
		fmt.Fprintln(&b)
		fmt.Fprintf(&b, "Pipelines (%d):\n", len(pipelines))
		for _, name := range pipelines {
			p := cfg.Pipelines[name]
			fmt.Fprintf(&b, "  %s (%s): %s\n", name, p.ModeOrDefault(), strings.Join(p.Steps, ", "))
			if p.Description != "" {
				fmt.Fprintf(&b, "      %s\n", p.Description)
			}
		}
	}

	return textResult(b.String())
}

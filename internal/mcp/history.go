package mcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/deixis/shellout/internal/report"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const defaultHistory = 10

type historyParams struct {
	Limit int `json:"limit,omitempty" jsonschema:"Maximum number of runs to list (default 10)"`
}

func (h *handler) historyHandler(ctx context.Context, req *mcp.CallToolRequest, params historyParams) (*mcp.CallToolResult, any, error) {
	lister, ok := h.store.(report.Lister)
	if !ok {
		return errorResult("Run history is not available for this store.")
	}
	limit := params.Limit
	if limit <= 0 {
		limit = defaultHistory
	}

	recs, err := lister.Recent(limit)
	if err != nil {
		return errorResult(fmt.Sprintf("Failed to list runs: %v", err))
	}
	if len(recs) == 0 {
		return textResult("No runs yet.\n")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Recent runs (%d):\n", len(recs))
	for _, rec := range recs {
		label := rec.Name
		if label == "" {
			label = strings.TrimSpace(rec.Executable + " " + strings.Join(rec.Args, " "))
		}
		fmt.Fprintf(&b, "  %s  %-8s %-11s %8s  %s\n",
			rec.ID, rec.Kind, rec.Outcome, rec.Duration.Round(time.Millisecond), label)
	}
	return textResult(b.String())
}

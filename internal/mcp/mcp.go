// Package mcp provides the shellout MCP server, registering the process
// tools and publishing model instructions.
package mcp

import (
	"context"
	_ "embed"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/deixis/shellout"
	"github.com/deixis/shellout/internal/config"
	"github.com/deixis/shellout/internal/observability"
	"github.com/deixis/shellout/internal/report"
	"github.com/deixis/shellout/internal/workflow"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

//go:embed instructions.md
var Instructions string

// handler holds shared dependencies for all tool handlers.
type handler struct {
	engine *workflow.Engine
	store  report.Store
	logger *slog.Logger

	// engines for sessions whose client root has its own .shellout,
	// keyed by *mcp.ServerSession
	sessions sync.Map
}

// engineFor returns the engine serving the session behind req.
func (h *handler) engineFor(req *mcp.CallToolRequest) *workflow.Engine {
	if req != nil && req.Session != nil {
		if e, ok := h.sessions.Load(req.Session); ok {
			return e.(*workflow.Engine)
		}
	}
	return h.engine
}

// NewServer creates an MCP server with all shellout tools registered.
// Every run goes through r and is recorded in store.
func NewServer(cfg *config.Config, r workflow.CommandRunner, store report.Store, opts ...ServerOption) *mcp.Server {
	var so serverOptions
	for _, o := range opts {
		o(&so)
	}
	logger := so.logger
	if logger == nil {
		logger = slog.Default()
	}

	h := &handler{
		engine: &workflow.Engine{
			Config:  cfg,
			Runner:  r,
			Store:   store,
			Metrics: so.metrics,
			Logger:  logger,
		},
		store:  store,
		logger: logger,
	}

	mcpOpts := &mcp.ServerOptions{
		Instructions: Instructions,
		Capabilities: &mcp.ServerCapabilities{
			Tools: &mcp.ToolCapabilities{ListChanged: false},
		},
	}
	if so.followRoots {
		mcpOpts.InitializedHandler = func(ctx context.Context, req *mcp.InitializedRequest) {
			h.updateConfigFromRoots(ctx, req.Session)
		}
	}
	s := mcp.NewServer(&mcp.Implementation{Name: "shellout", Version: shellout.Version}, mcpOpts)

	mcp.AddTool(s, &mcp.Tool{
		Name: "sh_run",
		Description: `Run a program to completion and return its exit status, stdout and stderr.

Arguments are passed verbatim; there is no shell. Use input to feed text on stdin.
The working directory defaults to the directory containing the executable.
Results are stored for drill-down via sh_inspect.`,
	}, h.runHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name: "sh_exec",
		Description: `Run a command configured in the .shellout file by name.

Extra args are appended to the configured ones. Use sh_commands to list names.`,
	}, h.execHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name: "sh_pipeline",
		Description: `Run a configured pipeline of commands.

Sequential pipelines stop on the first failure; parallel pipelines run every step.
Each step's output can be inspected via sh_inspect with the step's run ID.`,
	}, h.pipelineHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "sh_commands",
		Description: "List the commands and pipelines configured in the .shellout file.",
	}, h.commandsHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name: "sh_inspect",
		Description: `Show the captured output of an earlier run.

Use the run_id from a sh_run, sh_exec or sh_pipeline result. Narrow the output with
stream (stdout, stderr or both), tail (last N lines) and grep (substring filter).`,
	}, h.inspectHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "sh_history",
		Description: "List the most recently started runs and pipelines, newest first, with their run IDs.",
	}, h.historyHandler)

	return s
}

// ServerOption configures the shellout MCP server.
type ServerOption func(*serverOptions)

type serverOptions struct {
	logger      *slog.Logger
	metrics     *observability.RunMetrics
	followRoots bool
}

// WithLogger sets the logger used by the server and its runs.
func WithLogger(l *slog.Logger) ServerOption {
	return func(o *serverOptions) {
		o.logger = l
	}
}

// WithMetrics records every run in m.
func WithMetrics(m *observability.RunMetrics) ServerOption {
	return func(o *serverOptions) {
		o.metrics = m
	}
}

// WithRoots loads the configuration from the client's first file root
// when a session is initialized. The loaded configuration applies to
// that session only.
func WithRoots() ServerOption {
	return func(o *serverOptions) {
		o.followRoots = true
	}
}

// updateConfigFromRoots queries the client for MCP roots and loads the
// configuration from the first file root into an engine for session.
// Other sessions keep the server's configuration.
func (h *handler) updateConfigFromRoots(ctx context.Context, session *mcp.ServerSession) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	roots, err := session.ListRoots(ctx, &mcp.ListRootsParams{})
	if err != nil || len(roots.Roots) == 0 {
		return
	}

	u, err := url.Parse(roots.Roots[0].URI)
	if err != nil || u.Scheme != "file" {
		return
	}

	loaded, err := config.Load(u.Path)
	if err != nil {
		h.logger.Warn("loading config from client root", "root", u.Path, "error", err)
		return
	}
	if loaded.Path == "" {
		return
	}
	e := *h.engine
	e.Config = loaded.Config
	h.sessions.Store(session, &e)
	go func() {
		_ = session.Wait()
		h.sessions.Delete(session)
	}()
	h.logger.Info("using client root config", "path", loaded.Path)
}

// textResult is a helper to build a text-only tool result.
func textResult(text string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}, nil, nil
}

// errorResult is a helper to build an error tool result.
func errorResult(text string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: true,
	}, nil, nil
}

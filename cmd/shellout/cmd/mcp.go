package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/deixis/shellout/internal/mcp"
	"github.com/deixis/shellout/internal/observability"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"
)

func newMCPCmd(a *app) *cobra.Command {
	var (
		httpAddr     string
		instructions bool
		roots        bool
	)
	c := &cobra.Command{
		Use:   "mcp",
		Short: "Start the MCP server",
		Long: `Serve the shellout tools over MCP. By default the server speaks stdio;
with --http it serves the streamable HTTP transport, rate limited per client,
and exposes Prometheus metrics at /metrics.`,
		Args: cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			if instructions {
				fmt.Fprint(c.OutOrStdout(), mcp.Instructions)
				return nil
			}

			ctx, stop := signal.NotifyContext(c.Context(), os.Interrupt)
			defer stop()

			opts := []mcp.ServerOption{mcp.WithLogger(a.logger)}
			if roots {
				opts = append(opts, mcp.WithRoots())
			}

			if httpAddr == "" {
				server := mcp.NewServer(a.cfg, a.runner, a.store, opts...)
				return server.Run(ctx, &mcpsdk.StdioTransport{})
			}
			return a.serveHTTP(ctx, httpAddr, opts)
		},
	}
	c.Flags().StringVar(&httpAddr, "http", "", "start HTTP server on address (e.g. :9090)")
	c.Flags().BoolVar(&instructions, "instructions", false, "print model instructions and exit")
	c.Flags().BoolVar(&roots, "roots", false, "reload the .shellout file from the client's first root")
	return c
}

func (a *app) serveHTTP(ctx context.Context, addr string, opts []mcp.ServerOption) error {
	metricsHandler, shutdown, err := observability.InitMetrics()
	if err != nil {
		return fmt.Errorf("initializing metrics: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			a.logger.Warn("shutting down metrics", "error", err)
		}
	}()

	metrics, err := observability.NewRunMetrics()
	if err != nil {
		return fmt.Errorf("creating run metrics: %w", err)
	}
	opts = append(opts, mcp.WithMetrics(metrics))

	server := mcp.NewServer(a.cfg, a.runner, a.store, opts...)
	limit, burst := a.cfg.RateLimit()
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mcp.NewHTTPHandler(server, metricsHandler, rate.Limit(limit), burst),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		_ = httpServer.Close()
	}()

	a.logger.Info("listening", "addr", addr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

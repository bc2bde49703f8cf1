// Package workflow runs configured commands and pipelines through the
// process runner, recording every outcome. It is consumed by both the
// MCP server and the CLI commands.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/deixis/shellout/internal/config"
	"github.com/deixis/shellout/internal/observability"
	"github.com/deixis/shellout/internal/report"
	"github.com/deixis/shellout/internal/runner"
	"github.com/google/uuid"
)

// CommandRunner executes a single process request.
// Implemented by runner.Runner.
type CommandRunner interface {
	Run(req runner.Request) (*runner.Result, error)
}

// Engine holds shared dependencies for all workflow operations.
type Engine struct {
	Config  *config.Config
	Runner  CommandRunner
	Store   report.Store              // nil disables recording
	Metrics *observability.RunMetrics // nil disables metrics
	Logger  *slog.Logger
}

// ResolveExecutable turns a configured executable into something the
// runner can start. Absolute paths and file:// URLs pass through, relative
// paths are made absolute, and bare names are looked up on PATH.
func ResolveExecutable(name string) (string, error) {
	switch {
	case name == "":
		return "", fmt.Errorf("empty executable")
	case strings.HasPrefix(name, "file:"), filepath.IsAbs(name):
		return name, nil
	case strings.ContainsRune(name, filepath.Separator) || strings.Contains(name, "/"):
		abs, err := filepath.Abs(name)
		if err != nil {
			return "", fmt.Errorf("resolving %s: %w", name, err)
		}
		return abs, nil
	}

	path, err := exec.LookPath(name)
	if err != nil {
		return "", ErrCommandUnavailable{Name: name, Err: err}
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", path, err)
	}
	return abs, nil
}

// ErrCommandUnavailable is returned when an executable named without a
// path cannot be found on PATH.
type ErrCommandUnavailable struct {
	Name string
	Err  error
}

func (e ErrCommandUnavailable) Error() string {
	return fmt.Sprintf("%s is required but not installed (not found on PATH)", e.Name)
}

func (e ErrCommandUnavailable) Unwrap() error {
	return e.Err
}

// Run executes an ad-hoc request. name labels the record and may be empty.
// The returned error is the one produced by the runner: an
// *runner.ExecError for abnormal termination, or the start failure.
func (e *Engine) Run(ctx context.Context, name string, req runner.Request) (*report.Record, error) {
	started := time.Now()
	exe, err := ResolveExecutable(req.Executable)
	if err != nil {
		return e.finish(ctx, name, req, nil, err, started), err
	}
	req.Executable = exe

	res, err := e.Runner.Run(req)
	return e.finish(ctx, name, req, res, err, started), err
}

// Exec runs the configured command name. extra is appended to the
// configured arguments; a non-nil input replaces the configured input.
func (e *Engine) Exec(ctx context.Context, name string, extra []string, input *string) (*report.Record, error) {
	req, err := e.request(name, extra, input)
	if err != nil {
		return nil, err
	}
	return e.Run(ctx, name, req)
}

// request builds the runner request for a configured command.
func (e *Engine) request(name string, extra []string, input *string) (runner.Request, error) {
	cmd, ok := e.Config.Commands[name]
	if !ok {
		return runner.Request{}, fmt.Errorf("unknown command %q", name)
	}
	args := make([]string, 0, len(cmd.Args)+len(extra))
	args = append(args, cmd.Args...)
	args = append(args, extra...)

	req := runner.Request{
		Executable: cmd.Executable,
		Dir:        cmd.Dir,
		Input:      cmd.Input,
		Args:       args,
	}
	if input != nil {
		req.Input = input
	}
	return req, nil
}

// finish turns a runner outcome into a stored record.
func (e *Engine) finish(ctx context.Context, name string, req runner.Request, res *runner.Result, err error, started time.Time) *report.Record {
	rec := report.FromRun(uuid.New().String(), name, req, res, err, started)
	if rec.Outcome == report.StartError {
		rec.Duration = time.Since(started)
	}
	e.Metrics.Record(ctx, string(rec.Outcome), rec.Duration)
	e.save(rec)
	return rec
}

func (e *Engine) save(rec *report.Record) {
	if e.Store == nil {
		return
	}
	if err := e.Store.Save(rec); err != nil {
		e.logger().Warn("saving run record", "run_id", rec.ID, "error", err)
	}
}

func (e *Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

// stepStatus maps a run outcome to a pipeline step status.
func stepStatus(err error) string {
	var execErr *runner.ExecError
	switch {
	case err == nil:
		return StatusPass
	case errors.As(err, &execErr):
		return StatusFail
	default:
		return StatusUnavailable
	}
}

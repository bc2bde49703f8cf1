// Package runner runs a child process to completion. Standard output and
// standard error are drained concurrently into memory while the process
// runs, and the way it terminated decides between a Result and an
// ExecError.
package runner

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
)

// Runner executes one child process per call. The zero value is ready to
// use: it logs to slog.Default and captures output without a size cap.
type Runner struct {
	Logger    *slog.Logger
	MaxOutput int // bytes per stream; 0 means unlimited
}

// Request describes a single process execution.
type Request struct {
	// Executable is an absolute path or a file:// URL. A relative path is
	// taken relative to the caller's working directory, not Dir.
	Executable string
	// Dir is the working directory. Defaults to the directory that
	// contains Executable.
	Dir string
	// Input, when non-nil, is written to the child's stdin, which is then
	// closed. When nil the child reads from the null device.
	Input *string
	// Args are passed as-is, without shell interpretation.
	Args []string
}

// Input returns a pointer to s, for use as Request.Input.
func Input(s string) *string {
	return &s
}

// Run starts the requested process and blocks until it terminates.
//
// A Result is returned only when the process exited normally with status
// 0. Any other termination yields an *ExecError carrying whatever output
// was captured. If the process cannot be started at all, the error from
// the operating system is returned as-is.
func (r *Runner) Run(req Request) (*Result, error) {
	exe, err := executablePath(req.Executable)
	if err != nil {
		return nil, err
	}

	dir := req.Dir
	if dir == "" {
		dir = filepath.Dir(exe)
	}

	runID := uuid.New().String()
	log := r.logger().With("run_id", runID)

	cmd := exec.Command(exe, req.Args...)
	cmd.Dir = dir
	if req.Input != nil {
		// os/exec copies the reader into a pipe and closes it at EOF.
		cmd.Stdin = strings.NewReader(*req.Input)
	}

	outPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	errPipe, err := cmd.StderrPipe()
	if err != nil {
		_ = outPipe.Close()
		return nil, err
	}

	stdout := newAccumulator(r.MaxOutput)
	stderr := newAccumulator(r.MaxOutput)

	log.Info("starting process",
		"executable", exe,
		"has_input", req.Input != nil,
		"arguments", strings.Join(req.Args, ", "),
	)

	started := time.Now()
	if err := cmd.Start(); err != nil {
		// Start closes both pipes on failure; nothing is draining them yet.
		return nil, err
	}

	// Both streams must be drained before Wait, which closes the read ends.
	var wg sync.WaitGroup
	wg.Add(2)
	go drain(&wg, stdout, outPipe)
	go drain(&wg, stderr, errPipe)
	wg.Wait()

	waitErr := cmd.Wait()
	elapsed := time.Since(started)

	state := cmd.ProcessState
	if state == nil {
		return nil, waitErr
	}
	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) {
		log.Warn("waiting for process", "error", waitErr)
	}

	outText, outRaw := stdout.text()
	errText, errRaw := stderr.text()
	truncated := stdout.wasTruncated() || stderr.wasTruncated()

	log.Info("process finished", "stdout", outText, "duration", elapsed)
	if errText != "" {
		log.Error("process wrote to stderr", "stderr", errText)
	}

	exited, code, signal := termination(state)
	if !exited || code != 0 {
		return nil, &ExecError{
			RunID:      runID,
			Executable: exe,
			Args:       req.Args,
			Pid:        state.Pid(),
			Exited:     exited,
			ExitCode:   code,
			Signal:     signal,
			Stdout:     outText,
			Stderr:     errText,
			RawStdout:  outRaw,
			RawStderr:  errRaw,
			Truncated:  truncated,
			Duration:   elapsed,
		}
	}

	return &Result{
		RunID:     runID,
		Status:    code,
		Stdout:    outText,
		Stderr:    errText,
		RawStdout: outRaw,
		RawStderr: errRaw,
		Truncated: truncated,
		Duration:  elapsed,
	}, nil
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

// drain copies src into acc until EOF. Read errors end the drain; the
// process outcome is still decided by Wait.
func drain(wg *sync.WaitGroup, acc *accumulator, src io.Reader) {
	defer wg.Done()
	_, _ = io.Copy(acc, src)
}

// executablePath accepts a plain path or a file:// URL and returns a path.
// Relative paths are made absolute against the current directory; bare
// names are left for os/exec to look up on PATH.
func executablePath(s string) (string, error) {
	if s == "" {
		return "", fmt.Errorf("empty executable")
	}
	if !strings.HasPrefix(s, "file:") {
		// os/exec would resolve a relative path against Dir, not the
		// caller's working directory.
		if !filepath.IsAbs(s) && strings.ContainsRune(filepath.ToSlash(s), '/') {
			return filepath.Abs(s)
		}
		return s, nil
	}
	u, err := url.Parse(s)
	if err != nil {
		return "", fmt.Errorf("parsing executable URL: %w", err)
	}
	if u.Host != "" && u.Host != "localhost" {
		return "", fmt.Errorf("executable URL %q does not name a local file", s)
	}
	if u.Path == "" {
		return "", fmt.Errorf("executable URL %q has no path", s)
	}
	return filepath.FromSlash(u.Path), nil
}

// waitStatus is satisfied by syscall.WaitStatus on Unix and Windows.
type waitStatus interface {
	Signaled() bool
	Signal() syscall.Signal
}

// termination reports whether the process exited on its own, its exit
// status (-1 if it did not exit), and the terminating signal, if any.
func termination(state *os.ProcessState) (exited bool, code int, signal string) {
	exited = state.Exited()
	code = state.ExitCode()
	if ws, ok := state.Sys().(waitStatus); ok && ws.Signaled() {
		signal = ws.Signal().String()
	}
	return exited, code, signal
}

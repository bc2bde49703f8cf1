package runner

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Result holds the output of a process that exited with status 0.
type Result struct {
	RunID     string        // unique identifier for this run
	Status    int           // always 0
	Stdout    string        // captured stdout; "" if not valid UTF-8
	Stderr    string        // captured stderr; "" if not valid UTF-8
	RawStdout []byte        // captured stdout bytes (may be truncated)
	RawStderr []byte        // captured stderr bytes (may be truncated)
	Truncated bool          // true if either stream exceeded the size cap
	Duration  time.Duration // from start to reap
}

// ExecError reports a process that was started but did not exit normally
// with status 0. It holds the captured output so callers can inspect what
// the process wrote before it failed.
type ExecError struct {
	RunID      string
	Executable string
	Args       []string
	Pid        int
	Exited     bool   // false if the process was terminated by a signal
	ExitCode   int    // -1 if the process did not exit
	Signal     string // e.g. "killed"; empty unless signaled
	Stdout     string
	Stderr     string
	RawStdout  []byte
	RawStderr  []byte
	Truncated  bool
	Duration   time.Duration
}

func (e *ExecError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: ", filepath.Base(e.Executable))
	switch {
	case e.Exited:
		fmt.Fprintf(&b, "exit status %d", e.ExitCode)
	case e.Signal != "":
		fmt.Fprintf(&b, "signal: %s", e.Signal)
	default:
		b.WriteString("terminated abnormally")
	}
	if line := firstLine(e.Stderr); line != "" {
		fmt.Fprintf(&b, ": %s", line)
	}
	return b.String()
}

// ExitCode returns the exit status carried by err: 0 for nil, the status
// of an *ExecError (-1 if it was signaled), and -1 for anything else,
// such as a failure to start.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *ExecError
	if errors.As(err, &ee) {
		return ee.ExitCode
	}
	return -1
}

func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}

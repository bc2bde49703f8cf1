// Package report persists run records so that the output of a finished
// process can be retrieved later by run ID.
package report

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/deixis/shellout/internal/runner"
)

// Kind identifies the type of a record.
type Kind string

const (
	// Run is a single process execution.
	Run Kind = "run"
	// Pipeline is a sequence of named commands.
	Pipeline Kind = "pipeline"
)

// Outcome summarises how a run ended.
type Outcome string

const (
	OK         Outcome = "ok"          // exited with status 0
	Failed     Outcome = "failed"      // non-zero exit or signal
	StartError Outcome = "start_error" // never started
)

// ErrNotFound is returned by Load for unknown run IDs.
var ErrNotFound = errors.New("run not found")

// Store persists and retrieves run records.
type Store interface {
	Save(rec *Record) error
	Load(runID string) (*Record, error)
}

// Record holds the outcome of one run or pipeline.
type Record struct {
	ID         string        `json:"id"`
	Kind       Kind          `json:"kind"`
	Name       string        `json:"name,omitempty"` // configured command or pipeline name
	Executable string        `json:"executable,omitempty"`
	Args       []string      `json:"args,omitempty"`
	Dir        string        `json:"dir,omitempty"`
	HasInput   bool          `json:"has_input,omitempty"`
	Outcome    Outcome       `json:"outcome"`
	ExitCode   int           `json:"exit_code"`
	Signal     string        `json:"signal,omitempty"`
	Stdout     string        `json:"stdout,omitempty"`
	Stderr     string        `json:"stderr,omitempty"`
	Error      string        `json:"error,omitempty"`
	Truncated  bool          `json:"truncated,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
	Steps      []StepRecord  `json:"steps,omitempty"`
}

// StepRecord links a pipeline step to the record of its run.
type StepRecord struct {
	Name   string `json:"name"`
	Status string `json:"status"` // pass, fail, unavailable, skipped
	RunID  string `json:"run_id,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// Expect returns an error if the record's Kind does not match want.
func (r *Record) Expect(want Kind) error {
	if r.Kind != want {
		return fmt.Errorf("run %s is a %s record, not a %s record", r.ID, r.Kind, want)
	}
	return nil
}

// FromRun builds a record from the outcome of runner.Run. id is used
// only when the process never started and so has no run ID of its own.
func FromRun(id, name string, req runner.Request, res *runner.Result, err error, started time.Time) *Record {
	rec := &Record{
		ID:         id,
		Kind:       Run,
		Name:       name,
		Executable: req.Executable,
		Args:       req.Args,
		Dir:        req.Dir,
		HasInput:   req.Input != nil,
		StartedAt:  started,
	}

	var execErr *runner.ExecError
	switch {
	case err == nil && res != nil:
		rec.ID = res.RunID
		rec.Outcome = OK
		rec.ExitCode = res.Status
		rec.Stdout = res.Stdout
		rec.Stderr = res.Stderr
		rec.Truncated = res.Truncated
		rec.Duration = res.Duration
	case errors.As(err, &execErr):
		rec.ID = execErr.RunID
		rec.Outcome = Failed
		rec.ExitCode = execErr.ExitCode
		rec.Signal = execErr.Signal
		rec.Stdout = execErr.Stdout
		rec.Stderr = execErr.Stderr
		rec.Truncated = execErr.Truncated
		rec.Duration = execErr.Duration
		rec.Error = err.Error()
	default:
		rec.Outcome = StartError
		rec.ExitCode = -1
		if err != nil {
			rec.Error = err.Error()
		}
	}
	return rec
}

// Streams accepted by Select.
const (
	Stdout = "stdout"
	Stderr = "stderr"
	Both   = "both"
)

// Query narrows the captured output returned by Select.
type Query struct {
	Stream string // stdout, stderr or both (default)
	Tail   int    // keep only the last N lines; 0 keeps everything
	Grep   string // keep only lines containing this substring
}

// Select returns the part of a record's output described by q.
func Select(rec *Record, q Query) (string, error) {
	switch q.Stream {
	case Stdout:
		return filterLines(rec.Stdout, q), nil
	case Stderr:
		return filterLines(rec.Stderr, q), nil
	case "", Both:
		var b strings.Builder
		if out := filterLines(rec.Stdout, q); out != "" {
			b.WriteString("stdout:\n")
			b.WriteString(indent(out))
		}
		if errOut := filterLines(rec.Stderr, q); errOut != "" {
			b.WriteString("stderr:\n")
			b.WriteString(indent(errOut))
		}
		return b.String(), nil
	default:
		return "", fmt.Errorf("unknown stream %q: want stdout, stderr or both", q.Stream)
	}
}

func filterLines(s string, q Query) string {
	if s == "" || (q.Tail <= 0 && q.Grep == "") {
		return s
	}
	lines := strings.Split(strings.TrimSuffix(s, "\n"), "\n")
	if q.Grep != "" {
		kept := lines[:0:0]
		for _, line := range lines {
			if strings.Contains(line, q.Grep) {
				kept = append(kept, line)
			}
		}
		lines = kept
	}
	if q.Tail > 0 && len(lines) > q.Tail {
		lines = lines[len(lines)-q.Tail:]
	}
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}

func indent(s string) string {
	var b strings.Builder
	for _, line := range strings.Split(strings.TrimSuffix(s, "\n"), "\n") {
		b.WriteString("    ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}

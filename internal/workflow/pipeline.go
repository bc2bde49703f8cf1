package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/deixis/shellout/internal/config"
	"github.com/deixis/shellout/internal/report"
	"github.com/deixis/shellout/internal/runner"
	"github.com/google/uuid"
)

// Step statuses.
const (
	StatusPass        = "pass"
	StatusFail        = "fail"
	StatusUnavailable = "unavailable" // the process could not be started
	StatusSkipped     = "skipped"
)

// PipelineResult holds the full outcome of a pipeline run.
type PipelineResult struct {
	Record    *report.Record
	Steps     []StepResult
	FailedIdx int // -1 if all passed
}

// StepResult holds the outcome of a single pipeline step.
type StepResult struct {
	Name   string
	Status string
	Detail string         // error text for fail and unavailable steps
	Run    *report.Record // nil for skipped steps
}

// Pipeline runs the configured pipeline name. Sequential pipelines stop
// on the first failing step and mark the rest skipped. Parallel pipelines
// start every step at once and wait for all of them.
func (e *Engine) Pipeline(ctx context.Context, name string) (*PipelineResult, error) {
	p, ok := e.Config.Pipelines[name]
	if !ok {
		return nil, fmt.Errorf("unknown pipeline %q", name)
	}

	started := time.Now()
	steps := make([]StepResult, len(p.Steps))
	for i, step := range p.Steps {
		steps[i] = StepResult{Name: step, Status: StatusSkipped}
	}

	var err error
	if p.ModeOrDefault() == config.Parallel {
		err = e.runParallel(ctx, steps)
	} else {
		err = e.runSequential(ctx, steps)
	}
	if err != nil {
		return nil, fmt.Errorf("pipeline %s: %w", name, err)
	}

	failedIdx := -1
	rec := &report.Record{
		ID:        uuid.New().String(),
		Kind:      report.Pipeline,
		Name:      name,
		Outcome:   report.OK,
		StartedAt: started,
		Duration:  time.Since(started),
	}
	for i, s := range steps {
		sr := report.StepRecord{Name: s.Name, Status: s.Status, Detail: s.Detail}
		if s.Run != nil {
			sr.RunID = s.Run.ID
		}
		rec.Steps = append(rec.Steps, sr)
		if failedIdx < 0 && (s.Status == StatusFail || s.Status == StatusUnavailable) {
			failedIdx = i
			rec.Outcome = report.Failed
			if s.Run != nil {
				rec.ExitCode = s.Run.ExitCode
			}
			rec.Error = fmt.Sprintf("step %s: %s", s.Name, s.Detail)
		}
	}
	e.save(rec)

	e.logger().Info("pipeline finished",
		"run_id", rec.ID,
		"pipeline", name,
		"outcome", rec.Outcome,
		"duration", rec.Duration,
	)

	return &PipelineResult{Record: rec, Steps: steps, FailedIdx: failedIdx}, nil
}

func (e *Engine) runSequential(ctx context.Context, steps []StepResult) error {
	for i := range steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec, err := e.Exec(ctx, steps[i].Name, nil, nil)
		if rec == nil {
			return err
		}
		steps[i] = stepResult(steps[i].Name, rec, err)
		if steps[i].Status != StatusPass {
			return nil
		}
	}
	return nil
}

func (e *Engine) runParallel(ctx context.Context, steps []StepResult) error {
	type pending struct {
		req     runner.Request
		call    *runner.Call
		started time.Time
	}
	calls := make([]*pending, len(steps))

	for i, s := range steps {
		req, err := e.request(s.Name, nil, nil)
		if err != nil {
			return err
		}
		started := time.Now()
		exe, err := ResolveExecutable(req.Executable)
		if err != nil {
			steps[i] = stepResult(s.Name, e.finish(ctx, s.Name, req, nil, err, started), err)
			continue
		}
		req.Executable = exe
		calls[i] = &pending{req: req, call: runner.GoFunc(e.Runner.Run, req), started: started}
	}

	for i, p := range calls {
		if p == nil {
			continue
		}
		res, err := p.call.Wait()
		steps[i] = stepResult(steps[i].Name, e.finish(ctx, steps[i].Name, p.req, res, err, p.started), err)
	}
	return nil
}

func stepResult(name string, rec *report.Record, err error) StepResult {
	s := StepResult{Name: name, Status: stepStatus(err), Run: rec}
	if err != nil {
		s.Detail = err.Error()
	}
	return s
}

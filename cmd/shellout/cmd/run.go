package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/deixis/shellout/internal/report"
	"github.com/deixis/shellout/internal/runner"
	"github.com/spf13/cobra"
)

// inputFlags are the stdin options shared by run and exec.
type inputFlags struct {
	input     string
	fromStdin bool
	asJSON    bool
}

func (f *inputFlags) register(c *cobra.Command) {
	c.Flags().StringVar(&f.input, "input", "", "text written to the program's stdin")
	c.Flags().BoolVar(&f.fromStdin, "stdin", false, "forward shellout's own stdin to the program")
	c.Flags().BoolVar(&f.asJSON, "json", false, "print the run record as JSON")
	c.MarkFlagsMutuallyExclusive("input", "stdin")
	// Everything after the executable belongs to the child.
	c.Flags().SetInterspersed(false)
}

// payload returns the stdin payload, or nil when none was requested.
func (f *inputFlags) payload(c *cobra.Command) (*string, error) {
	switch {
	case f.fromStdin:
		data, err := io.ReadAll(c.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}
		return runner.Input(string(data)), nil
	case c.Flags().Changed("input"):
		return runner.Input(f.input), nil
	}
	return nil, nil
}

func newRunCmd(a *app) *cobra.Command {
	var (
		flags inputFlags
		dir   string
	)
	c := &cobra.Command{
		Use:   "run [flags] -- EXECUTABLE [ARGS...]",
		Short: "Run a program and print its captured output",
		Long: `Run a program to completion. Its stdout and stderr are printed once it exits,
and shellout exits with the program's exit status.

EXECUTABLE is an absolute path, a file:// URL, a relative path or a name looked
up on PATH. The working directory defaults to the executable's directory.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			input, err := flags.payload(c)
			if err != nil {
				return err
			}
			req := runner.Request{
				Executable: args[0],
				Dir:        dir,
				Input:      input,
				Args:       args[1:],
			}
			rec, err := a.engine.Run(c.Context(), "", req)
			return printRun(c, rec, err, flags.asJSON)
		},
	}
	c.Flags().StringVar(&dir, "dir", "", "working directory (default: the executable's directory)")
	flags.register(c)
	return c
}

func newExecCmd(a *app) *cobra.Command {
	var flags inputFlags
	c := &cobra.Command{
		Use:   "exec NAME [ARGS...]",
		Short: "Run a command configured in the .shellout file",
		Long: `Run a named command from the .shellout file. ARGS are appended to the
configured arguments, and --input or --stdin replace the configured input.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			input, err := flags.payload(c)
			if err != nil {
				return err
			}
			rec, err := a.engine.Exec(c.Context(), args[0], args[1:], input)
			return printRun(c, rec, err, flags.asJSON)
		},
	}
	flags.register(c)
	return c
}

// printRun writes a run's output and maps its outcome to an exit status.
func printRun(c *cobra.Command, rec *report.Record, runErr error, asJSON bool) error {
	if rec == nil {
		return runErr
	}

	if asJSON {
		enc := json.NewEncoder(c.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(rec); err != nil {
			return err
		}
	} else {
		fmt.Fprint(c.OutOrStdout(), rec.Stdout)
		fmt.Fprint(c.ErrOrStderr(), rec.Stderr)
		if rec.Truncated {
			fmt.Fprintf(c.ErrOrStderr(), "shellout: output truncated (run %s)\n", rec.ID)
		}
	}

	switch rec.Outcome {
	case report.OK:
		return nil
	case report.Failed:
		code := rec.ExitCode
		if code <= 0 {
			// killed by a signal
			code = 1
		}
		return &ExitError{Code: code}
	default:
		if asJSON {
			return &ExitError{Code: 1}
		}
		return runErr
	}
}

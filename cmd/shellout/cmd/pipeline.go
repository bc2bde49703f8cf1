package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/deixis/shellout/internal/workflow"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newPipelineCmd(a *app) *cobra.Command {
	var asJSON, verbose bool
	c := &cobra.Command{
		Use:   "pipeline NAME",
		Short: "Run a pipeline configured in the .shellout file",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			result, err := a.engine.Pipeline(c.Context(), args[0])
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(c.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(result.Record); err != nil {
					return err
				}
			} else {
				fmt.Fprint(c.OutOrStdout(), formatPipelineCLI(result, verbose))
			}

			if result.FailedIdx >= 0 {
				return &ExitError{Code: 1}
			}
			return nil
		},
	}
	c.Flags().BoolVar(&asJSON, "json", false, "print the pipeline record as JSON")
	c.Flags().BoolVarP(&verbose, "verbose", "v", false, "print the failing step's stderr")
	return c
}

func formatPipelineCLI(result *workflow.PipelineResult, verbose bool) string {
	var b []byte
	w := func(format string, args ...any) {
		b = fmt.Appendf(b, format, args...)
	}

	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed, color.Bold).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	dim := color.New(color.Faint).SprintFunc()

	allPassed := result.FailedIdx < 0
	if allPassed {
		w("%s\n", green("ok"))
	} else {
		w("%s\n", red("FAIL"))
	}
	w("\n")

	for _, s := range result.Steps {
		switch s.Status {
		case workflow.StatusPass:
			w("  %-15s %s\n", s.Name, green("ok"))
		case workflow.StatusFail:
			w("  %-15s %s\n", s.Name, red("FAIL"))
		case workflow.StatusUnavailable:
			w("  %-15s %s\n", s.Name, yellow("unavailable"))
		case workflow.StatusSkipped:
			w("  %-15s %s\n", s.Name, dim("-"))
		}
	}
	w("\n")

	if !allPassed {
		failed := result.Steps[result.FailedIdx]
		w("%s: %s\n", failed.Name, failed.Detail)
		if verbose && failed.Run != nil && failed.Run.Stderr != "" {
			w("\n%s", failed.Run.Stderr)
		}
		if failed.Run != nil {
			w("\nInspect with: shellout inspect %s\n", failed.Run.ID)
		}
	}
	w("Run: %s\n", result.Record.ID)
	return string(b)
}

package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/deixis/shellout/internal/report"
	"github.com/spf13/cobra"
)

func newInspectCmd(a *app) *cobra.Command {
	var (
		q      report.Query
		asJSON bool
	)
	c := &cobra.Command{
		Use:   "inspect RUN_ID",
		Short: "Show the captured output of an earlier run",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			rec, err := a.store.Load(args[0])
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(c.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(rec)
			}

			if rec.Kind == report.Pipeline {
				fmt.Fprintf(c.OutOrStdout(), "Pipeline %s: %s\n", rec.Name, rec.Outcome)
				for _, s := range rec.Steps {
					fmt.Fprintf(c.OutOrStdout(), "  %-15s %-12s %s\n", s.Name, s.Status, s.RunID)
				}
				return nil
			}

			out, err := report.Select(rec, q)
			if err != nil {
				return err
			}
			fmt.Fprint(c.OutOrStdout(), out)
			return nil
		},
	}
	c.Flags().StringVar(&q.Stream, "stream", report.Stdout, "stream to show: stdout, stderr or both")
	c.Flags().IntVar(&q.Tail, "tail", 0, "show only the last N lines")
	c.Flags().StringVar(&q.Grep, "grep", "", "show only lines containing this text")
	c.Flags().BoolVar(&asJSON, "json", false, "print the whole record as JSON")
	return c
}

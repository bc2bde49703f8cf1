package cmd

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/deixis/shellout/internal/report"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newHistoryCmd(a *app) *cobra.Command {
	var (
		limit  int
		asJSON bool
	)
	c := &cobra.Command{
		Use:   "history",
		Short: "List recent runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			recs, err := a.store.Recent(limit)
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(c.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(recs)
			}

			if len(recs) == 0 {
				fmt.Fprintln(c.OutOrStdout(), "No runs recorded.")
				return nil
			}
			dim := color.New(color.Faint)
			for _, rec := range recs {
				label := rec.Name
				if label == "" {
					label = strings.TrimSpace(rec.Executable + " " + strings.Join(rec.Args, " "))
				}
				fmt.Fprintf(c.OutOrStdout(), "%s  %-8s %s %8s  %s\n",
					rec.ID, rec.Kind, outcomeLabel(rec.Outcome),
					rec.Duration.Round(time.Millisecond), label)
			}
			dim.Fprintln(c.OutOrStdout(), "\nInspect a run with: shellout inspect <run-id>")
			return nil
		},
	}
	c.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of runs to list")
	c.Flags().BoolVar(&asJSON, "json", false, "print the records as JSON")
	return c
}

// outcomeLabel pads before colouring so columns stay aligned.
func outcomeLabel(o report.Outcome) string {
	s := fmt.Sprintf("%-11s", o)
	switch o {
	case report.OK:
		return color.GreenString(s)
	case report.Failed:
		return color.RedString(s)
	default:
		return color.YellowString(s)
	}
}

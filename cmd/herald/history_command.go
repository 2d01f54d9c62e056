package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"herald/internal/api"
	"herald/internal/history"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent scheduler runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := history.Open(cfg.HistoryPath())
			if err != nil {
				return err
			}
			defer store.Close()

			entries, err := store.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			runs := api.FromHistory(entries)
			if jsonOut {
				return writeJSON(cmd, api.HistoryResponse{Runs: runs})
			}
			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs recorded yet")
				return nil
			}
			rows := make([][]string, 0, len(runs))
			for _, run := range runs {
				started := run.StartedAt
				if at, err := time.Parse(time.RFC3339, run.StartedAt); err == nil {
					started = at.Format("2006-01-02 15:04:05")
				}
				rows = append(rows, []string{
					started,
					run.Outcome,
					strconv.Itoa(run.Published),
					strconv.Itoa(run.FailedUnits),
					strconv.Itoa(run.Pending),
					yesNo(run.Wrote),
					run.Error,
				})
			}
			fmt.Fprintln(out, renderTable([]column{
				{header: "Started (UTC)"},
				{header: "Outcome"},
				{header: "Published", right: true},
				{header: "Failed", right: true},
				{header: "Pending", right: true},
				{header: "Saved"},
				{header: "Error", maxWidth: 40},
			}, rows))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to show")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print runs as JSON")
	return cmd
}

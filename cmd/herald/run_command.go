package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"herald/internal/api"
	"herald/internal/publisher"
	"herald/internal/queue"
	"herald/internal/runlock"
	"herald/internal/runner"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var nowFlag string
	var dryRun bool
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Publish every due post once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if !dryRun {
				if err := cfg.ValidatePublishing(); err != nil {
					return err
				}
			}
			now := time.Now().UTC()
			if strings.TrimSpace(nowFlag) != "" {
				now, err = queue.ParseScheduleTime(nowFlag)
				if err != nil {
					return fmt.Errorf("--now: %w", err)
				}
			}

			logger, err := ctx.logger(cfg)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			rt, err := runner.Build(cfg, logger, nil, runner.Options{DryRun: dryRun})
			if err != nil {
				return err
			}
			defer closeQuietly(rt)

			summary, runErr := rt.Runner.Run(cmd.Context(), now)
			if errors.Is(runErr, runlock.ErrBusy) {
				return fmt.Errorf("another herald run is in progress (lock %s)", cfg.LockPath())
			}
			if jsonOut {
				if err := writeJSON(cmd, api.FromSummary(summary, runErr)); err != nil {
					return err
				}
				return runErr
			}
			printRunSummary(cmd, summary, runErr)
			return runErr
		},
	}

	cmd.Flags().StringVar(&nowFlag, "now", "", "Evaluate due posts at this RFC 3339 instant instead of the current time")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report due posts without publishing or writing the queue")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the run summary as JSON")
	return cmd
}

func printRunSummary(cmd *cobra.Command, summary publisher.Summary, runErr error) {
	out := cmd.OutOrStdout()
	status := api.FromSummary(summary, runErr)
	fmt.Fprintln(out, renderStatusLine("Run", outcomeKind(status.Outcome), summary.String(), shouldColorize(out)))
	if len(summary.Units) == 0 {
		return
	}
	rows := make([][]string, 0, len(summary.Units))
	for _, unit := range summary.Units {
		kind := "post"
		if unit.ThreadID != "" {
			kind = "thread"
		}
		result := "published"
		switch {
		case summary.DryRun:
			result = "due"
		case unit.Error != "" && len(unit.Consumed) > 0:
			result = "partial: " + unit.Error
		case unit.Error != "":
			result = "failed: " + unit.Error
		}
		rows = append(rows, []string{
			kind,
			shortID(strings.Join(unit.PostIDs, ",")),
			fmt.Sprintf("%d/%d", len(unit.Consumed), len(unit.PostIDs)),
			result,
		})
	}
	fmt.Fprintln(out, renderTable([]column{
		{header: "Unit"},
		{header: "Posts"},
		{header: "Sent", right: true},
		{header: "Result", maxWidth: 60},
	}, rows))
	for _, warning := range summary.Warnings {
		fmt.Fprintln(out, renderStatusLine("Invalid", statusWarn, warning, shouldColorize(out)))
	}
	for _, id := range summary.Degraded {
		fmt.Fprintln(out, renderStatusLine("No image", statusWarn, "post "+shortID(id)+" published without its image", shouldColorize(out)))
	}
}

func shortID(id string) string {
	parts := strings.Split(id, ",")
	for i, part := range parts {
		if len(part) > 8 {
			parts[i] = part[:8]
		}
	}
	return strings.Join(parts, ",")
}

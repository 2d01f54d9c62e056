package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"herald/internal/logs"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var lines int
	var follow bool
	var daemon bool
	var filter logs.Filter

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Print recent log records from herald run or the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			name := "herald.log"
			if daemon {
				name = "heraldd.log"
			}
			path := filepath.Join(cfg.Paths.LogDir, name)
			if daemon {
				// heraldd.log points at the current process log.
				if resolved, err := filepath.EvalSymlinks(path); err == nil {
					path = resolved
				}
			}

			out := cmd.OutOrStdout()
			emit := func(line string) {
				if filter.Match(line) {
					fmt.Fprintln(out, line)
				}
			}

			var recent []string
			var offset int64
			if filter == (logs.Filter{}) {
				recent, offset, err = logs.Last(path, lines)
			} else {
				// -n counts matches, so scan the whole file.
				recent, offset, err = logs.Forward(path, 0)
			}
			if err != nil {
				return err
			}
			matched := make([]string, 0, len(recent))
			for _, line := range recent {
				if filter.Match(line) {
					matched = append(matched, line)
				}
			}
			if len(matched) > lines {
				matched = matched[len(matched)-lines:]
			}
			for _, line := range matched {
				fmt.Fprintln(out, line)
			}
			if !follow {
				return nil
			}
			return logs.Follow(cmd.Context(), path, offset, time.Second, emit)
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of trailing records to print")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing records as they are written")
	cmd.Flags().BoolVar(&daemon, "daemon", false, "Read the daemon log instead of the herald run log")
	cmd.Flags().StringVar(&filter.MinLevel, "level", "", "Only show records at or above this level")
	cmd.Flags().StringVar(&filter.Component, "component", "", "Only show records from this component")
	cmd.Flags().StringVar(&filter.RunID, "run", "", "Only show records for this run id (prefix)")
	cmd.Flags().StringVar(&filter.PostID, "post", "", "Only show records for this post id (prefix)")
	return cmd
}

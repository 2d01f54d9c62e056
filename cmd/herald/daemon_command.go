package main

import (
	"github.com/spf13/cobra"

	"herald/internal/daemonrun"
)

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	var dryRun bool
	var development bool
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the scheduler in the foreground on a fixed interval",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
				LogLevel:    ctx.resolvedLogLevel(cfg),
				Development: development,
				DryRun:      dryRun,
			})
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report due posts each interval without publishing")
	cmd.Flags().BoolVar(&development, "development", false, "Include source locations in log records")
	return cmd
}

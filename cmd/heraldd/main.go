// Command heraldd runs the Herald scheduler daemon: it publishes due posts on
// a fixed interval and serves the status API on paths.api_bind.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"herald/internal/config"
	"herald/internal/daemonrun"
)

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string
	var logLevel string
	var dryRun bool
	var development bool

	cmd := &cobra.Command{
		Use:           "heraldd",
		Short:         "Herald scheduler daemon",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, _, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			level := logLevel
			if level == "" {
				level = cfg.Logging.Level
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
				LogLevel:    level,
				Development: development,
				DryRun:      dryRun,
			})
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Configuration file path")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Log level override (debug, info, warn, error)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report due posts each interval without publishing")
	cmd.Flags().BoolVar(&development, "development", false, "Include source locations in log records")
	return cmd
}

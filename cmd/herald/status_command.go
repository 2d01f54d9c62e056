package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"herald/internal/api"
	"herald/internal/config"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the running daemon's status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			status, err := fetchDaemonStatus(cmd, cfg)
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd, status)
			}
			printDaemonStatus(cmd.OutOrStdout(), status)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the raw status payload")
	return cmd
}

func fetchDaemonStatus(cmd *cobra.Command, cfg *config.Config) (api.DaemonStatus, error) {
	var status api.DaemonStatus
	url := "http://" + cfg.Paths.APIBind + "/api/status"
	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, url, nil)
	if err != nil {
		return status, err
	}
	if cfg.Paths.APIToken != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.Paths.APIToken)
	}
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		if errors.Is(err, syscall.ECONNREFUSED) {
			return status, fmt.Errorf("daemon not reachable at %s; start it with `herald daemon`", cfg.Paths.APIBind)
		}
		return status, fmt.Errorf("query daemon: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return status, fmt.Errorf("daemon returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return status, fmt.Errorf("decode daemon status: %w", err)
	}
	return status, nil
}

func printDaemonStatus(out io.Writer, status api.DaemonStatus) {
	colorize := shouldColorize(out)
	daemonKind, daemonMsg := statusError, "stopped"
	if status.Running {
		daemonKind, daemonMsg = statusOK, fmt.Sprintf("running (pid %d since %s)", status.PID, status.StartedAt)
	}
	fmt.Fprintln(out, renderStatusLine("Daemon", daemonKind, daemonMsg, colorize))
	fmt.Fprintln(out, renderStatusLine("Store", statusInfo, status.StoreBackend+" "+status.StorePath, colorize))
	fmt.Fprintln(out, renderStatusLine("Interval", statusInfo, fmt.Sprintf("%ds, next run %s", status.IntervalSecs, status.NextRun), colorize))
	if status.LastRun == nil {
		fmt.Fprintln(out, renderStatusLine("Last run", statusInfo, "none yet", colorize))
		return
	}
	fmt.Fprintln(out, renderStatusLine("Last run", outcomeKind(status.LastRun.Outcome), status.LastRun.Summary, colorize))
	if status.LastError != "" {
		fmt.Fprintln(out, renderStatusLine("Last error", statusError, status.LastError, colorize))
	}
}

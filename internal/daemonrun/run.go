package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"herald/internal/config"
	"herald/internal/daemon"
	"herald/internal/logging"
	"herald/internal/metrics"
	"herald/internal/runner"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
	DryRun      bool
}

// Run starts the herald daemon and blocks until SIGINT or SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.ValidatePublishing(); err != nil && !opts.DryRun {
		return err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	stamp := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("herald-%s.log", stamp))
	level := opts.LogLevel
	if level == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout"},
		FilePath:    logPath,
		Development: opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update heraldd.log link: %v\n", err)
	}
	logConfigSnapshot(logger, cfg, opts)

	pidPath := filepath.Join(cfg.Paths.StateDir, "heraldd.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	rec := metrics.New()
	rt, err := runner.Build(cfg, logger, rec, runner.Options{DryRun: opts.DryRun})
	if err != nil {
		logging.ErrorWithContext(logger, "daemon setup failed", "daemon_setup_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the [store] section and state directory permissions"),
		)
		return err
	}
	defer rt.Close()

	d, err := daemon.New(cfg, daemon.Deps{
		Runner:  rt.Runner,
		Queue:   rt.Repo,
		History: rt.History,
		Metrics: rec,
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	if err := d.Run(signalCtx); err != nil {
		return err
	}
	logger.Info("herald daemon shut down")
	return nil
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "heraldd.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logConfigSnapshot(logger *slog.Logger, cfg *config.Config, opts Options) {
	logger.Info("configuration snapshot",
		logging.String(logging.FieldEventType, "config_snapshot"),
		logging.String("store_backend", cfg.Store.Backend),
		logging.String("store_path", cfg.Store.Path),
		logging.String("pds_url", cfg.Platform.PDSURL),
		logging.Bool("platform_credentials_present", cfg.Platform.Identifier != "" && cfg.Platform.AppPassword != ""),
		logging.Duration("interval", cfg.Interval()),
		logging.Duration("thread_pause", cfg.ThreadPause()),
		logging.Bool("watch_file", cfg.Scheduler.WatchFile),
		logging.Bool("notifications_enabled", cfg.Notifications.NtfyTopic != ""),
		logging.String("api_bind", cfg.Paths.APIBind),
		logging.Bool("dry_run", opts.DryRun),
	)
}

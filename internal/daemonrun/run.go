package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"leaflens/internal/config"
	"leaflens/internal/daemon"
	"leaflens/internal/logging"
	"leaflens/internal/preflight"
)

// PIDFileName is written under paths.log_dir while the daemon runs.
const PIDFileName = "leaflens.pid"

// keepRunLogs caps per-run log files independent of logging.retention_days.
const keepRunLogs = 30

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the leaflens daemon and blocks until the context ends or the
// process receives SIGINT or SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	level := opts.LogLevel
	if strings.TrimSpace(level) == "" {
		level = cfg.Logging.Level
	}
	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("leaflens-%s.log", runID))
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", logPath},
		Development: opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	logDependencySnapshot(logger, cfg)
	logPreflight(signalCtx, logger, cfg)
	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update %s link: %v\n", logging.LogFileName, err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "leaflens-*.log", Exclude: []string{logPath}, KeepNewest: keepRunLogs},
	)
	pidPath := filepath.Join(cfg.Paths.LogDir, PIDFileName)
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	rt, err := Build(signalCtx, cfg, logger)
	if err != nil {
		logger.Error("build runtime", logging.Error(err))
		return err
	}
	defer rt.Close()

	d, err := daemon.New(cfg, daemon.Options{
		Store:    rt.Store,
		Scans:    rt.Controller,
		Workflow: rt.Workflow,
		Catalog:  rt.Catalog,
		Watcher:  rt.Watcher,
		Searcher: rt.Searcher,
	}, logger)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}

	if err := d.Start(signalCtx); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}
	defer d.Stop()

	<-signalCtx.Done()
	logger.Info("leaflens daemon shutting down")
	return nil
}

// ensureCurrentLogPointer points leaflens.log at the log of this run.
func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, logging.LogFileName)
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

// ReadPID returns the pid recorded by a running daemon, or 0.
func ReadPID(cfg *config.Config) int {
	data, err := os.ReadFile(filepath.Join(cfg.Paths.LogDir, PIDFileName))
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0
	}
	return pid
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	logger.Info("dependency snapshot",
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.String("database_driver", cfg.Database.Driver),
		logging.String("analysis_provider", cfg.Analysis.Provider),
		logging.String("upload_strategies", strings.Join(cfg.Upload.Strategies, ",")),
		logging.Bool("control_plane_configured", strings.TrimSpace(cfg.ControlPlane.URL) != ""),
		logging.Bool("control_plane_key_present", strings.TrimSpace(cfg.ControlPlane.APIKey) != ""),
		logging.Bool("ingest_configured", strings.TrimSpace(cfg.Ingest.URL) != ""),
		logging.Bool("object_store_enabled", cfg.ObjectStore.Enabled),
		logging.Bool("catalog_watch", cfg.Catalog.Watch),
		logging.Bool("catalog_search_remote", strings.TrimSpace(cfg.Catalog.SearchURL) != ""),
		logging.Bool("notifications_enabled", strings.TrimSpace(cfg.Notifications.NtfyTopic) != ""),
	)
}

func logPreflight(ctx context.Context, logger *slog.Logger, cfg *config.Config) {
	for _, result := range preflight.Failed(preflight.RunAll(ctx, cfg)) {
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldImpact, "scans needing this collaborator fail at that stage"),
			logging.String(logging.FieldErrorHint, "run leaflens preflight for the full report"),
		)
	}
}

package main

import (
	"fmt"
	"maps"
	"net/http"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"leaflens/internal/api"
	"leaflens/internal/daemonrun"
	"leaflens/internal/services/httpclient"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var logLevel string
	var development bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the leaflens daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
				LogLevel:    logLevel,
				Development: development,
			})
		},
	}

	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override logging.level")
	cmd.Flags().BoolVar(&development, "dev", false, "Enable development logging")
	return cmd
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon, database, and catalog status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			colorize := shouldColorize(cmd.OutOrStdout())
			base, running := ctx.daemonBaseURL(cfg)
			if !running {
				if ctx.jsonOutput() {
					return writeJSON(cmd, api.DaemonStatus{})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderStatusLine("Daemon", statusWarn, "Not running", colorize))
				return nil
			}

			client := httpclient.New(httpclient.Config{Name: "leaflens daemon", BaseURL: base, APIKey: cfg.Paths.APIToken, TimeoutSeconds: 10},
				httpclient.WithRetryMaxAttempts(1))
			var status api.DaemonStatus
			if err := client.DoJSON(cmd.Context(), http.MethodGet, "api/health", nil, nil, &status); err != nil &&
				httpclient.StatusCode(err) != http.StatusServiceUnavailable {
				return fmt.Errorf("query daemon: %w", err)
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, status)
			}
			fmt.Fprintln(cmd.OutOrStdout(), strings.Join(daemonStatusLines(status, base, colorize), "\n"))
			return nil
		},
	}
}

func daemonStatusLines(status api.DaemonStatus, base string, colorize bool) []string {
	lines := renderSectionHeader("leaflens", colorize)
	lines = append(lines,
		renderStatusLine("Daemon", statusOK, fmt.Sprintf("Running (pid %d, %s)", status.PID, base), colorize),
		renderStatusLine("Workflow", boolKind(status.Workflow.Running), fmt.Sprintf("running=%s workers=%d active=%d",
			yesNo(status.Workflow.Running), status.Workflow.Workers, len(status.Workflow.ActiveScans)), colorize),
	)
	if status.Workflow.LastError != "" {
		lines = append(lines, renderStatusLine("Last error", statusWarn, status.Workflow.LastError, colorize))
	}

	dbDetail := fmt.Sprintf("%s %s (%d records, schema %d)", status.Database.Driver, status.Database.Location,
		status.Database.TotalRecords, status.Database.SchemaVersion)
	if status.Database.Error != "" {
		dbDetail = status.Database.Error
	}
	lines = append(lines, renderStatusLine("Database", boolKind(status.Database.Reachable), dbDetail, colorize))

	catalogKind := statusOK
	if status.Catalog.Entries == 0 {
		catalogKind = statusWarn
	}
	lines = append(lines, renderStatusLine("Catalog", catalogKind,
		fmt.Sprintf("%d entries from %s (watching=%s)", status.Catalog.Entries, status.Catalog.Source, yesNo(status.Catalog.Watching)), colorize))

	if len(status.Workflow.ScanStats) > 0 {
		rows := make([][]string, 0, len(status.Workflow.ScanStats))
		for _, name := range slices.Sorted(maps.Keys(status.Workflow.ScanStats)) {
			rows = append(rows, []string{name, fmt.Sprint(status.Workflow.ScanStats[name])})
		}
		lines = append(lines, "", renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight}, colorize))
	}
	return lines
}

func boolKind(ok bool) statusKind {
	if ok {
		return statusOK
	}
	return statusError
}

package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"leaflens/internal/config"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration utilities",
	}
	configCmd.AddCommand(newConfigInitCommand(), newConfigValidateCommand(ctx))
	return configCmd
}

func newConfigInitCommand() *cobra.Command {
	var targetPath string
	var overwrite bool

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Write a sample configuration file",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := initTarget(targetPath)
			if err != nil {
				return err
			}
			if !overwrite {
				_, statErr := os.Stat(target)
				switch {
				case statErr == nil:
					return fmt.Errorf("%s already exists (pass --overwrite to replace it)", target)
				case !errors.Is(statErr, fs.ErrNotExist):
					return fmt.Errorf("check config path: %w", statErr)
				}
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("create config directory: %w", err)
			}
			if err := config.CreateSample(target); err != nil {
				return fmt.Errorf("create sample config: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote sample configuration to %s\n", target)
			fmt.Fprintln(out, "Set control_plane.url (or ingest.url) and an analysis provider key before running leaflens serve.")
			return nil
		},
	}

	cmd.Flags().StringVarP(&targetPath, "path", "p", "", "Destination for the configuration file")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace an existing file")
	return cmd
}

// initTarget resolves --path, falling back to the per-user default location.
func initTarget(flagValue string) (string, error) {
	if value := strings.TrimSpace(flagValue); value != "" {
		expanded, err := config.ExpandPath(value)
		if err != nil {
			return "", fmt.Errorf("resolve config path: %w", err)
		}
		return expanded, nil
	}
	path, err := config.DefaultConfigPath()
	if err != nil {
		return "", fmt.Errorf("determine default config path: %w", err)
	}
	return path, nil
}

// configSummary is what config validate reports about a loaded file.
type configSummary struct {
	Path          string   `json:"path"`
	FileExists    bool     `json:"fileExists"`
	Database      string   `json:"database"`
	Strategies    []string `json:"strategies"`
	Provider      string   `json:"provider"`
	ControlPlane  bool     `json:"controlPlane"`
	Ingest        bool     `json:"ingest"`
	ObjectStore   bool     `json:"objectStore"`
	Catalog       string   `json:"catalog"`
	RemoteSearch  bool     `json:"remoteSearch"`
	Notifications bool     `json:"notifications"`
}

func summarizeConfig(cfg *config.Config, path string, exists bool) configSummary {
	configured := func(v string) bool { return strings.TrimSpace(v) != "" }
	return configSummary{
		Path:          path,
		FileExists:    exists,
		Database:      cfg.Database.Driver,
		Strategies:    cfg.Upload.Strategies,
		Provider:      cfg.Analysis.Provider,
		ControlPlane:  configured(cfg.ControlPlane.URL),
		Ingest:        configured(cfg.Ingest.URL),
		ObjectStore:   cfg.ObjectStore.Enabled,
		Catalog:       cfg.Catalog.Path,
		RemoteSearch:  configured(cfg.Catalog.SearchURL),
		Notifications: configured(cfg.Notifications.NtfyTopic),
	}
}

func newConfigValidateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:         "validate",
		Short:       "Load, normalize, and validate the configuration",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, exists, err := config.Load(ctx.configFlagValue())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return fmt.Errorf("ensure directories: %w", err)
			}
			summary := summarizeConfig(cfg, path, exists)
			if ctx.jsonOutput() {
				return writeJSON(cmd, summary)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config path: %s\n", summary.Path)
			if !summary.FileExists {
				fmt.Fprintln(out, "Config file did not exist; defaults were used")
			}
			rows := [][]string{
				{"Database", summary.Database},
				{"Upload strategies", strings.Join(summary.Strategies, ", ")},
				{"Analysis provider", summary.Provider},
				{"Control plane", yesNo(summary.ControlPlane)},
				{"Ingest", yesNo(summary.Ingest)},
				{"Object store", yesNo(summary.ObjectStore)},
				{"Catalog", summary.Catalog},
				{"Remote search", yesNo(summary.RemoteSearch)},
				{"Notifications", yesNo(summary.Notifications)},
			}
			fmt.Fprintln(out, renderTable([]string{"Setting", "Value"}, rows, nil, shouldColorize(out)))
			fmt.Fprintln(out, "Configuration valid")
			return nil
		},
	}
}

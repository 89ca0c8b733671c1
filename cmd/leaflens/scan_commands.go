package main

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"leaflens/internal/api"
	"leaflens/internal/lifecycle"
	"leaflens/internal/scans"
)

func newScanCommand(ctx *commandContext) *cobra.Command {
	scanCmd := &cobra.Command{
		Use:   "scan",
		Short: "Create, inspect, and resolve plant scans",
	}

	scanCmd.AddCommand(newScanAddCommand(ctx))
	scanCmd.AddCommand(newScanShowCommand(ctx))
	scanCmd.AddCommand(newScanListCommand(ctx))
	scanCmd.AddCommand(newScanProcessCommand(ctx))
	scanCmd.AddCommand(newScanSelectCommand(ctx))
	scanCmd.AddCommand(newScanRetryCommand(ctx))

	return scanCmd
}

func newScanAddCommand(ctx *commandContext) *cobra.Command {
	var owner string
	var wait bool

	cmd := &cobra.Command{
		Use:   "add <image>...",
		Short: "Create a scan from one or more photos",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			images, err := readImageFiles(args)
			if err != nil {
				return err
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if strings.TrimSpace(owner) == "" {
				owner = cfg.Upload.OwnerID
			}
			return ctx.withBackend(cmd, func(backend scanBackend) error {
				scan, err := backend.Create(cmd.Context(), owner, images, wait)
				if err != nil && scan.ID == "" {
					return err
				}
				if renderErr := ctx.renderScan(cmd, scan); renderErr != nil {
					return renderErr
				}
				if err == nil && !wait && backend.Mode() == "local" {
					fmt.Fprintln(cmd.ErrOrStderr(), "Scan created; run `leaflens scan process "+scan.ID+"` or start the daemon to process it")
				}
				return err
			})
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "Owner id recorded on the scan (default upload.owner_id)")
	cmd.Flags().BoolVar(&wait, "wait", false, "Process the scan before returning")
	return cmd
}

func newScanShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one scan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withBackend(cmd, func(backend scanBackend) error {
				scan, err := backend.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return ctx.renderScan(cmd, scan)
			})
		},
	}
}

func newScanListCommand(ctx *commandContext) *cobra.Command {
	var statuses []string
	var owner string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List scans, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := listOptions(statuses, owner, limit)
			if err != nil {
				return err
			}
			return ctx.withBackend(cmd, func(backend scanBackend) error {
				list, err := backend.List(cmd.Context(), opts)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, api.ScanListResponse{Scans: list})
				}
				if len(list) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No scans")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderScanTable(list, shouldColorize(cmd.OutOrStdout())))
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "Filter by status (repeatable or comma-separated)")
	cmd.Flags().StringVar(&owner, "owner", "", "Filter by owner id")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum scans to list (0 for all)")
	return cmd
}

func newScanProcessCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "process <id>",
		Short: "Run upload, analysis, and matching for a scan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withBackend(cmd, func(backend scanBackend) error {
				scan, err := backend.Process(cmd.Context(), args[0])
				return ctx.renderOutcome(cmd, scan, err)
			})
		},
	}
}

func newScanSelectCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "select <id> <catalog-entry-id>",
		Short: "Record the user's chosen catalog entry",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withBackend(cmd, func(backend scanBackend) error {
				scan, err := backend.Select(cmd.Context(), args[0], args[1])
				return ctx.renderOutcome(cmd, scan, err)
			})
		},
	}
}

func newScanRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <id>",
		Short: "Clear a recorded stage failure so the scan resumes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withBackend(cmd, func(backend scanBackend) error {
				scan, cleared, err := backend.Retry(cmd.Context(), args[0])
				if err != nil {
					return ctx.renderOutcome(cmd, scan, err)
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, api.RetryResponse{Cleared: cleared, Scan: scan})
				}
				if !cleared {
					fmt.Fprintf(cmd.OutOrStdout(), "Scan %s has no recorded failure (status %s)\n", scan.ID, scan.Status)
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared failure on scan %s; it resumes from %s\n", scan.ID, scan.Status)
				return nil
			})
		},
	}
}

// renderOutcome prints the scan when one came back, then returns err.
func (c *commandContext) renderOutcome(cmd *cobra.Command, scan api.Scan, err error) error {
	if scan.ID == "" {
		return err
	}
	if renderErr := c.renderScan(cmd, scan); renderErr != nil {
		return renderErr
	}
	return err
}

func (c *commandContext) renderScan(cmd *cobra.Command, scan api.Scan) error {
	if c.jsonOutput() {
		return writeJSON(cmd, scan)
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderScanDetail(scan, shouldColorize(cmd.OutOrStdout())))
	return nil
}

func listOptions(statuses []string, owner string, limit int) (scans.ListOptions, error) {
	opts := scans.ListOptions{OwnerID: strings.TrimSpace(owner), Limit: max(limit, 0)}
	for _, raw := range statuses {
		for _, part := range strings.Split(raw, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			status, ok := scans.ParseStatus(part)
			if !ok {
				return scans.ListOptions{}, fmt.Errorf("unknown status %q", part)
			}
			opts.Statuses = append(opts.Statuses, status)
		}
	}
	return opts, nil
}

func readImageFiles(paths []string) ([]lifecycle.Image, error) {
	images := make([]lifecycle.Image, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read image %s: %w", path, err)
		}
		images = append(images, lifecycle.Image{
			Filename:    filepath.Base(path),
			ContentType: http.DetectContentType(data),
			Data:        data,
		})
	}
	return images, nil
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"leaflens/internal/export"
	"leaflens/internal/scans"
)

func newExportCommand(ctx *commandContext) *cobra.Command {
	var statuses []string
	var owner string

	cmd := &cobra.Command{
		Use:   "export <file.xlsx>",
		Short: "Write scan history to an XLSX workbook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			opts, err := listOptions(statuses, owner, 0)
			if err != nil {
				return err
			}
			store, err := scans.Open(cfg)
			if err != nil {
				return fmt.Errorf("open scan store: %w", err)
			}
			defer store.Close()

			rows, err := export.NewService(store, cliLogger(cmd, cfg)).WriteFile(cmd.Context(), args[0], opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d scans to %s\n", rows, args[0])
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "Filter by status (repeatable or comma-separated)")
	cmd.Flags().StringVar(&owner, "owner", "", "Filter by owner id")
	return cmd
}

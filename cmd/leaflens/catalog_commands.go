package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"leaflens/internal/api"
	"leaflens/internal/catalog"
	"leaflens/internal/daemonrun"
)

func newCatalogCommand(ctx *commandContext) *cobra.Command {
	catalogCmd := &cobra.Command{
		Use:   "catalog",
		Short: "Validate and search the reference catalog",
	}

	catalogCmd.AddCommand(newCatalogValidateCommand(ctx))
	catalogCmd.AddCommand(newCatalogSearchCommand(ctx))

	return catalogCmd
}

func newCatalogValidateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:         "validate [file]",
		Short:       "Validate a catalog document (default catalog.path)",
		Args:        cobra.MaximumNArgs(1),
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			} else {
				cfg, err := ctx.ensureConfig()
				if err != nil {
					return err
				}
				path = cfg.Catalog.Path
			}
			snap, err := catalog.Load(path)
			if err != nil {
				return fmt.Errorf("catalog %s invalid: %w", path, err)
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, api.FromSnapshot(snap, false))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Catalog valid: %s (%d entries)\n", path, snap.Len())
			return nil
		},
	}
}

func newCatalogSearchCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Keyword search over the catalog",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			query := strings.Join(args, " ")
			snap, err := catalog.Load(cfg.Catalog.Path)
			if err != nil && strings.TrimSpace(cfg.Catalog.SearchURL) == "" {
				return fmt.Errorf("load catalog: %w", err)
			}
			searcher := daemonrun.NewSearcher(cfg, catalog.NewHolder(snap))
			if limit <= 0 {
				limit = max(cfg.Catalog.SearchLimit, 1)
			}
			entries, err := searcher.Search(cmd.Context(), query, limit)
			if err != nil {
				return err
			}

			resp := api.FromEntries(query, entries)
			if ctx.jsonOutput() {
				return writeJSON(cmd, resp)
			}
			if len(resp.Entries) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No catalog entries match %q\n", query)
				return nil
			}
			rows := make([][]string, 0, len(resp.Entries))
			for _, e := range resp.Entries {
				rows = append(rows, []string{e.ID, e.Name, strings.Join(e.Aliases, ", ")})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Name", "Aliases"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft},
				shouldColorize(cmd.OutOrStdout()),
			))
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum entries (default catalog.search_limit)")
	return cmd
}

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"leaflens/internal/preflight"
)

type preflightJSON struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

func newPreflightCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "preflight",
		Short: "Check directories, catalog, and collaborators",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			results := preflight.RunAll(cmd.Context(), cfg)
			failed := preflight.Failed(results)

			if ctx.jsonOutput() {
				out := make([]preflightJSON, 0, len(results))
				for _, r := range results {
					out = append(out, preflightJSON{Name: r.Name, Passed: r.Passed, Detail: r.Detail})
				}
				if err := writeJSON(cmd, out); err != nil {
					return err
				}
			} else {
				colorize := shouldColorize(cmd.OutOrStdout())
				lines := append(renderSectionHeader("Preflight", colorize), preflightLines(results, colorize)...)
				fmt.Fprintln(cmd.OutOrStdout(), strings.Join(lines, "\n"))
			}
			if len(failed) > 0 {
				return fmt.Errorf("%d preflight check(s) failed", len(failed))
			}
			return nil
		},
	}
}

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"glbopt/internal/workspace"
)

func newCleanCommand(ctx *commandContext) *cobra.Command {
	var maxAge time.Duration

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove stale staging directories left by crashed runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}

			result := workspace.CleanStale(cfg.Paths.StagingDir, maxAge, logger)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Removed %d stale staging directories.\n", len(result.Removed))
			for _, cleanupErr := range result.Errors {
				fmt.Fprintf(out, "  failed: %s (%v)\n", cleanupErr.Path, cleanupErr.Error)
			}
			if len(result.Errors) > 0 {
				return fmt.Errorf("cleanup finished with %d errors", len(result.Errors))
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&maxAge, "max-age", 24*time.Hour, "Remove staging directories older than this")
	return cmd
}

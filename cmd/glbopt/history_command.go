package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"glbopt/internal/history"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect past optimization runs",
	}

	historyCmd.AddCommand(newHistoryListCommand(ctx))
	historyCmd.AddCommand(newHistoryShowCommand(ctx))

	return historyCmd
}

func newHistoryListCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := history.Open(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs recorded.")
				return nil
			}

			rows := make([][]string, 0, len(runs))
			for _, run := range runs {
				rows = append(rows, []string{
					shortRunID(run.RunID),
					run.Title,
					run.Quality,
					yesNo(run.Success),
					humanize.Bytes(uint64(run.OriginalSizeBytes)),
					humanize.Bytes(uint64(run.CompressedSizeBytes)),
					ratioPercent(run.CompressionRatio),
					run.Duration.Round(time.Millisecond).String(),
					humanize.Time(run.CreatedAt),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Run", "Asset", "Quality", "OK", "Original", "Compressed", "Ratio", "Elapsed", "When"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs to list")
	return cmd
}

func newHistoryShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one run in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := history.Open(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			run, err := store.GetByRunID(cmd.Context(), strings.TrimSpace(args[0]))
			if err != nil {
				return err
			}

			title := cases.Title(language.Und)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Run %s\n", run.RunID)
			if run.Title != "" {
				fmt.Fprintf(out, "  Asset:      %s\n", run.Title)
			}
			fmt.Fprintf(out, "  Input:      %s\n", run.InputPath)
			fmt.Fprintf(out, "  Output:     %s\n", run.OutputPath)
			fmt.Fprintf(out, "  Quality:    %s\n", title.String(run.Quality))
			fmt.Fprintf(out, "  Success:    %s\n", yesNo(run.Success))
			fmt.Fprintf(out, "  Original:   %s\n", humanize.Bytes(uint64(run.OriginalSizeBytes)))
			fmt.Fprintf(out, "  Compressed: %s (%s)\n",
				humanize.Bytes(uint64(run.CompressedSizeBytes)), ratioPercent(run.CompressionRatio))
			fmt.Fprintf(out, "  Methods:    %s\n", strings.Join(run.MethodsUsed, ", "))
			if len(run.DegradedStages) > 0 {
				fmt.Fprintf(out, "  Degraded:   %s\n", strings.Join(run.DegradedStages, ", "))
			}
			if run.ErrorMessage != "" {
				fmt.Fprintf(out, "  Error:      %s (%s)\n", run.ErrorMessage, run.ErrorCategory)
			}
			fmt.Fprintf(out, "  Elapsed:    %s\n", run.Duration.Round(time.Millisecond))
			fmt.Fprintf(out, "  When:       %s\n", run.CreatedAt.Local().Format(time.RFC1123))
			for _, line := range run.Diagnostics {
				fmt.Fprintf(out, "  diag: %s\n", line)
			}
			return nil
		},
	}
}

func shortRunID(runID string) string {
	if len(runID) > 8 {
		return runID[:8]
	}
	return runID
}

func ratioPercent(ratio float64) string {
	if ratio <= 0 {
		return "-"
	}
	return fmt.Sprintf("%.1f%%", ratio*100)
}

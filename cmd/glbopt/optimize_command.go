package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"glbopt/internal/config"
	"glbopt/internal/history"
	"glbopt/internal/logging"
	"glbopt/internal/pipeline"
)

func newOptimizeCommand(ctx *commandContext) *cobra.Command {
	var outputPath string
	var qualityFlag string
	var noProgress bool
	var enableLOD bool
	var enableSimplify bool
	var showDiagnostics bool

	cmd := &cobra.Command{
		Use:   "optimize <input.glb>",
		Short: "Optimize a GLB asset and publish it to the output directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}

			orch, err := pipeline.New(cfg, logger)
			if err != nil {
				return err
			}

			input := strings.TrimSpace(args[0])
			output := strings.TrimSpace(outputPath)
			if output == "" {
				output = filepath.Join(cfg.Paths.OutputDir, filepath.Base(input))
			}

			if !cmd.Flags().Changed("lod") {
				enableLOD = cfg.Optimizer.EnableLOD
			}
			if !cmd.Flags().Changed("simplify") {
				enableSimplify = cfg.Optimizer.EnableSimplification
			}

			progress := newProgressSink(noProgress)
			result := orch.Optimize(cmd.Context(), pipeline.Request{
				InputPath:            input,
				OutputPath:           output,
				Quality:              qualityFlag,
				EnableLOD:            enableLOD,
				EnableSimplification: enableSimplify,
			}, progress.update)
			progress.finish()

			recordRun(cmd.Context(), cfg, logger, input, &result)

			out := cmd.OutOrStdout()
			if !result.Success {
				fmt.Fprintf(out, "Optimization failed (%s): %s\n", result.ErrorCategory, result.ErrorMessage)
				return fmt.Errorf("optimization failed")
			}

			fmt.Fprintf(out, "Published %s\n", result.OutputPath)
			fmt.Fprintf(out, "  Quality:    %s\n", result.Quality)
			fmt.Fprintf(out, "  Original:   %s\n", humanize.Bytes(uint64(result.OriginalSizeBytes)))
			fmt.Fprintf(out, "  Compressed: %s (%.1f%% of original)\n",
				humanize.Bytes(uint64(result.CompressedSizeBytes)), result.CompressionRatio*100)
			fmt.Fprintf(out, "  Methods:    %s\n", strings.Join(result.MethodsUsed, ", "))
			if len(result.DegradedStages) > 0 {
				fmt.Fprintf(out, "  Degraded:   %s\n", strings.Join(result.DegradedStages, ", "))
			}
			fmt.Fprintf(out, "  Elapsed:    %s\n", result.ProcessingTime.Round(time.Millisecond))
			if showDiagnostics {
				for _, line := range result.Diagnostics {
					fmt.Fprintf(out, "  diag: %s\n", line)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Destination path (defaults to the output directory)")
	cmd.Flags().StringVarP(&qualityFlag, "quality", "q", "", "Quality preset: high, balanced, or max")
	cmd.Flags().BoolVar(&noProgress, "no-progress", false, "Disable the progress bar")
	cmd.Flags().BoolVar(&enableLOD, "lod", false, "Run a detail-reduction pre-pass before geometry compression")
	cmd.Flags().BoolVar(&enableSimplify, "simplify", true, "Allow the geometry packer to drop triangles")
	cmd.Flags().BoolVar(&showDiagnostics, "diagnostics", false, "Print per-stage diagnostic details")
	return cmd
}

// progressSink renders pipeline progress on a terminal and stays silent
// everywhere else.
type progressSink struct {
	bar *progressbar.ProgressBar
}

func newProgressSink(disabled bool) *progressSink {
	if disabled || !isatty.IsTerminal(os.Stderr.Fd()) {
		return &progressSink{}
	}
	bar := progressbar.NewOptions(100,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription("optimizing"),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionClearOnFinish(),
	)
	return &progressSink{bar: bar}
}

func (p *progressSink) update(prog pipeline.Progress) {
	if p.bar == nil {
		return
	}
	p.bar.Describe(prog.Stage)
	_ = p.bar.Set(prog.Percent)
}

func (p *progressSink) finish() {
	if p.bar == nil {
		return
	}
	_ = p.bar.Finish()
}

// recordRun persists the outcome when history is enabled. Failures to record
// are logged, never surfaced; history must not break optimization.
func recordRun(ctx context.Context, cfg *config.Config, logger *slog.Logger, input string, result *pipeline.Result) {
	if !cfg.History.Enabled {
		return
	}
	store, err := history.Open(cfg)
	if err != nil {
		logger.Warn("open history store", logging.Error(err))
		return
	}
	defer store.Close()

	runID := result.RunID
	if runID == "" {
		runID = fmt.Sprintf("failed-%d", time.Now().UnixNano())
	}
	run := &history.Run{
		RunID:               runID,
		InputPath:           input,
		OutputPath:          result.OutputPath,
		Title:               displayTitle(input),
		Quality:             result.Quality,
		Success:             result.Success,
		OriginalSizeBytes:   result.OriginalSizeBytes,
		CompressedSizeBytes: result.CompressedSizeBytes,
		CompressionRatio:    result.CompressionRatio,
		MethodsUsed:         result.MethodsUsed,
		DegradedStages:      result.DegradedStages,
		ErrorMessage:        result.ErrorMessage,
		ErrorCategory:       result.ErrorCategory,
		Diagnostics:         result.Diagnostics,
		Duration:            result.ProcessingTime,
	}
	if err := store.Record(ctx, run); err != nil {
		logger.Warn("record run history", logging.Error(err))
		return
	}
	if _, err := store.Prune(ctx, cfg.History.KeepRuns); err != nil {
		logger.Warn("prune run history", logging.Error(err))
	}
}

// displayTitle turns an input filename into a readable asset name for
// history rows, so "ancient_temple-v2.glb" lists as "Ancient Temple V2".
func displayTitle(inputPath string) string {
	name := filepath.Base(inputPath)
	name = strings.TrimSuffix(name, filepath.Ext(name))
	name = strings.NewReplacer("_", " ", "-", " ").Replace(name)
	name = strings.Join(strings.Fields(name), " ")
	if name == "" {
		return ""
	}
	return cases.Title(language.Und).String(name)
}

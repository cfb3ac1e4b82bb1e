package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"glbopt/internal/config"
)

func newConfigCommand() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration utilities",
	}

	configCmd.AddCommand(newConfigInitCommand())
	configCmd.AddCommand(newConfigValidateCommand())
	configCmd.AddCommand(newConfigShowCommand())

	return configCmd
}

func newConfigInitCommand() *cobra.Command {
	var targetPath string
	var overwrite bool

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Create a sample configuration file",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			target := strings.TrimSpace(targetPath)
			if target == "" {
				defaultPath, err := config.DefaultConfigPath()
				if err != nil {
					return fmt.Errorf("determine default config path: %w", err)
				}
				target = defaultPath
			} else {
				expanded, err := config.ExpandPath(target)
				if err != nil {
					return fmt.Errorf("resolve config path: %w", err)
				}
				target = expanded
			}

			dir := filepath.Dir(target)
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create config directory %q: %w", dir, err)
			}

			if !overwrite {
				if _, err := os.Stat(target); err == nil {
					return fmt.Errorf("config file already exists at %s (use --overwrite to replace it)", target)
				} else if err != nil && !os.IsNotExist(err) {
					return fmt.Errorf("check config path: %w", err)
				}
			}

			if err := config.CreateSample(target); err != nil {
				return fmt.Errorf("create sample config: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote sample configuration to %s\n", target)
			fmt.Fprintln(out, "Edit the file to point upload_dir, output_dir, and staging_dir at your asset roots.")
			return nil
		},
	}

	cmd.Flags().StringVarP(&targetPath, "path", "p", "", "Destination for the configuration file")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Overwrite existing configuration if present")
	return cmd
}

func newConfigValidateCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:         "validate",
		Short:       "Validate a configuration file",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, resolvedPath, exists, err := config.Load(strings.TrimSpace(configPath))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if !exists {
				fmt.Fprintf(out, "No configuration file found at %s; defaults are valid.\n", resolvedPath)
				return nil
			}
			fmt.Fprintf(out, "Configuration at %s is valid.\n", resolvedPath)
			fmt.Fprintf(out, "  Quality preset: %s\n", cfg.Optimizer.Quality)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "path", "p", "", "Configuration file to validate")
	return cmd
}

func newConfigShowCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:         "show",
		Short:       "Print the effective configuration",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, resolvedPath, exists, err := config.Load(strings.TrimSpace(configPath))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			source := resolvedPath
			if !exists {
				source = "(defaults; no config file found)"
			}
			fmt.Fprintf(out, "Source: %s\n", source)

			rows := [][]string{
				{"upload_dir", cfg.Paths.UploadDir},
				{"output_dir", cfg.Paths.OutputDir},
				{"staging_dir", cfg.Paths.StagingDir},
				{"log_dir", cfg.Paths.LogDir},
				{"gltfpack", cfg.GltfpackBinary()},
				{"gltf_transform", cfg.GltfTransformBinary()},
				{"toktx", cfg.ToktxBinary()},
				{"tool_timeout", fmt.Sprintf("%ds", cfg.Tools.ToolTimeout)},
				{"race_timeout", fmt.Sprintf("%ds", cfg.Tools.RaceTimeout)},
				{"max_parallel_workers", fmt.Sprintf("%d", cfg.Tools.MaxParallelWorkers)},
				{"quality", cfg.Optimizer.Quality},
				{"enable_lod", yesNo(cfg.Optimizer.EnableLOD)},
				{"enable_simplification", yesNo(cfg.Optimizer.EnableSimplification)},
				{"max_input_mib", fmt.Sprintf("%d", cfg.Optimizer.MaxInputMiB)},
				{"allow_system_temp", yesNo(cfg.Optimizer.AllowSystemTemp)},
				{"log_format", cfg.Logging.Format},
				{"log_level", cfg.Logging.Level},
				{"history_enabled", yesNo(cfg.History.Enabled)},
				{"history_keep_runs", fmt.Sprintf("%d", cfg.History.KeepRuns)},
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Setting", "Value"},
				rows,
				[]columnAlignment{alignLeft, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "path", "p", "", "Configuration file to show")
	return cmd
}

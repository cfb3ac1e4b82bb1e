package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateTools(); err != nil {
		return err
	}
	if err := c.validateOptimizer(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	if err := c.validateHistory(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	named := map[string]string{
		"paths.upload_dir":  c.Paths.UploadDir,
		"paths.output_dir":  c.Paths.OutputDir,
		"paths.staging_dir": c.Paths.StagingDir,
		"paths.log_dir":     c.Paths.LogDir,
	}
	for key, value := range named {
		if value == "" {
			return fmt.Errorf("%s must be set", key)
		}
	}
	if c.Paths.UploadDir == c.Paths.OutputDir {
		return errors.New("paths.upload_dir and paths.output_dir must differ")
	}
	if c.Paths.StagingDir == c.Paths.UploadDir || c.Paths.StagingDir == c.Paths.OutputDir {
		return errors.New("paths.staging_dir must not overlap the upload or output roots")
	}
	return nil
}

func (c *Config) validateTools() error {
	if c.Tools.ToolTimeout <= 0 {
		return errors.New("tools.tool_timeout must be positive (seconds)")
	}
	if c.Tools.RaceTimeout <= 0 {
		return errors.New("tools.race_timeout must be positive (seconds)")
	}
	if c.Tools.RaceTimeout < c.Tools.ToolTimeout {
		return errors.New("tools.race_timeout must be at least tools.tool_timeout")
	}
	if c.Tools.MaxParallelWorkers <= 0 {
		return errors.New("tools.max_parallel_workers must be positive")
	}
	return nil
}

func (c *Config) validateOptimizer() error {
	switch c.Optimizer.Quality {
	case "high", "balanced", "max":
	default:
		return fmt.Errorf("optimizer.quality must be one of high, balanced, max (got %q)", c.Optimizer.Quality)
	}
	if c.Optimizer.MaxInputMiB <= 0 {
		return errors.New("optimizer.max_input_mib must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json (got %q)", c.Logging.Format)
	}
	return nil
}

func (c *Config) validateHistory() error {
	if c.History.Enabled && c.History.KeepRuns <= 0 {
		return errors.New("history.keep_runs must be positive when history.enabled is true")
	}
	return nil
}

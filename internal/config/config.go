package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration for the optimizer roots.
type Paths struct {
	UploadDir  string `toml:"upload_dir"`
	OutputDir  string `toml:"output_dir"`
	StagingDir string `toml:"staging_dir"`
	LogDir     string `toml:"log_dir"`
}

// Tools contains external tool commands and execution limits.
type Tools struct {
	Gltfpack           string `toml:"gltfpack"`
	GltfTransform      string `toml:"gltf_transform"`
	Toktx              string `toml:"toktx"`
	ToolTimeout        int    `toml:"tool_timeout"`
	RaceTimeout        int    `toml:"race_timeout"`
	MaxParallelWorkers int    `toml:"max_parallel_workers"`
	// EnvPassthrough lists extra environment variables forwarded to child
	// processes, on top of the built-in allow-list.
	EnvPassthrough []string `toml:"env_passthrough"`
}

// Optimizer contains default pipeline behavior.
type Optimizer struct {
	Quality              string `toml:"quality"`
	EnableLOD            bool   `toml:"enable_lod"`
	EnableSimplification bool   `toml:"enable_simplification"`
	MaxInputMiB          int    `toml:"max_input_mib"`
	AllowSystemTemp      bool   `toml:"allow_system_temp"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// History contains configuration for the run-history store.
type History struct {
	Enabled  bool `toml:"enabled"`
	KeepRuns int  `toml:"keep_runs"`
}

// Config encapsulates all configuration values for glbopt.
//
// Configuration sections by subsystem:
//   - Paths: upload/output/staging/log roots
//   - Tools: external tool commands, timeouts, worker caps
//   - Optimizer: default quality preset and feature toggles
//   - Logging: log format and level
//   - History: sqlite run-history retention
type Config struct {
	Paths     Paths     `toml:"paths"`
	Tools     Tools     `toml:"tools"`
	Optimizer Optimizer `toml:"optimizer"`
	Logging   Logging   `toml:"logging"`
	History   History   `toml:"history"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/glbopt/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized. The boolean reports
// whether a config file was actually found.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("glbopt.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the optimizer root directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.UploadDir, c.Paths.OutputDir, c.Paths.StagingDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// GltfpackBinary returns the geometry-packing executable.
func (c *Config) GltfpackBinary() string {
	if cmd := strings.TrimSpace(c.Tools.Gltfpack); cmd != "" {
		return cmd
	}
	return "gltfpack"
}

// GltfTransformBinary returns the glTF transform CLI executable.
func (c *Config) GltfTransformBinary() string {
	if cmd := strings.TrimSpace(c.Tools.GltfTransform); cmd != "" {
		return cmd
	}
	return "gltf-transform"
}

// ToktxBinary returns the KTX2 texture compressor executable.
func (c *Config) ToktxBinary() string {
	if cmd := strings.TrimSpace(c.Tools.Toktx); cmd != "" {
		return cmd
	}
	return "toktx"
}

// ToolDirs lists the directories of explicitly configured tool binaries so
// they can be placed on a child process PATH.
func (c *Config) ToolDirs() []string {
	dirs := make([]string, 0, 3)
	seen := make(map[string]struct{}, 3)
	for _, cmd := range []string{c.Tools.Gltfpack, c.Tools.GltfTransform, c.Tools.Toktx} {
		cmd = strings.TrimSpace(cmd)
		if cmd == "" || !filepath.IsAbs(cmd) {
			continue
		}
		dir := filepath.Dir(cmd)
		if _, ok := seen[dir]; ok {
			continue
		}
		seen[dir] = struct{}{}
		dirs = append(dirs, dir)
	}
	return dirs
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

package config

const (
	defaultUploadDir          = "~/.local/share/glbopt/uploads"
	defaultOutputDir          = "~/.local/share/glbopt/output"
	defaultStagingDir         = "~/.local/share/glbopt/staging"
	defaultLogDir             = "~/.local/share/glbopt/logs"
	defaultToolTimeout        = 300
	defaultRaceTimeout        = 600
	defaultMaxParallelWorkers = 3
	defaultQuality            = "balanced"
	defaultMaxInputMiB        = 512
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
	defaultHistoryKeepRuns    = 500
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			UploadDir:  defaultUploadDir,
			OutputDir:  defaultOutputDir,
			StagingDir: defaultStagingDir,
			LogDir:     defaultLogDir,
		},
		Tools: Tools{
			ToolTimeout:        defaultToolTimeout,
			RaceTimeout:        defaultRaceTimeout,
			MaxParallelWorkers: defaultMaxParallelWorkers,
		},
		Optimizer: Optimizer{
			Quality:              defaultQuality,
			EnableLOD:            false,
			EnableSimplification: true,
			MaxInputMiB:          defaultMaxInputMiB,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		History: History{
			Enabled:  true,
			KeepRuns: defaultHistoryKeepRuns,
		},
	}
}

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"glbopt/internal/analysis"
	"glbopt/internal/config"
	"glbopt/internal/fileutil"
	"glbopt/internal/gltf"
	"glbopt/internal/logging"
	"glbopt/internal/pathguard"
	"glbopt/internal/quality"
	"glbopt/internal/services"
	"glbopt/internal/toolrunner"
	"glbopt/internal/workspace"
)

// Request describes one optimization run. It is never mutated after
// construction.
type Request struct {
	InputPath  string
	OutputPath string
	// Quality overrides the configured preset when non-empty.
	Quality string
	// EnableLOD requests a detail-reduction pre-pass before geometry
	// compression.
	EnableLOD bool
	// EnableSimplification lets the geometry packer drop triangles below
	// the preset's target ratio.
	EnableSimplification bool
}

// Result summarizes a finished run. Success means a valid asset was
// published, even if some stages degraded along the way.
type Result struct {
	Success             bool
	RunID               string
	OutputPath          string
	Quality             string
	OriginalSizeBytes   int64
	CompressedSizeBytes int64
	CompressionRatio    float64
	ProcessingTime      time.Duration
	MethodsUsed         []string
	DegradedStages      []string
	// Diagnostics retains the technical detail for every degraded stage.
	// It may contain filesystem paths and is for logs and support, never
	// for end users.
	Diagnostics   []string
	ErrorMessage  string
	ErrorCategory string
}

// Orchestrator drives the optimization pipeline end to end.
type Orchestrator struct {
	cfg       *config.Config
	logger    *slog.Logger
	validator *pathguard.Validator
	runner    commandRunner
}

// New builds an orchestrator from configuration. The path validator and tool
// runner it constructs are shared across runs.
func New(cfg *config.Config, logger *slog.Logger) (*Orchestrator, error) {
	if cfg == nil {
		return nil, errors.New("pipeline requires configuration")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	validator, err := pathguard.New(cfg.Paths.UploadDir, cfg.Paths.OutputDir, cfg.Paths.StagingDir, pathguard.Options{
		AllowSystemTemp: cfg.Optimizer.AllowSystemTemp,
	})
	if err != nil {
		return nil, fmt.Errorf("build path validator: %w", err)
	}

	runner := toolrunner.New(validator, logger, toolrunner.Options{
		ToolDirs:       cfg.ToolDirs(),
		EnvPassthrough: cfg.Tools.EnvPassthrough,
		DefaultTimeout: time.Duration(cfg.Tools.ToolTimeout) * time.Second,
	})

	return &Orchestrator{
		cfg:       cfg,
		logger:    logging.NewComponentLogger(logger, "pipeline"),
		validator: validator,
		runner:    runner,
	}, nil
}

// Validator exposes the shared path validator.
func (o *Orchestrator) Validator() *pathguard.Validator { return o.validator }

// Optimize runs the full stage chain for one asset and publishes the result
// atomically. Non-security stage failures degrade; the run still publishes
// the best artifact produced, falling back to a verified copy of the input
// when every stage fails.
func (o *Orchestrator) Optimize(ctx context.Context, req Request, progress ProgressFunc) Result {
	start := time.Now()
	report := newReporter(progress)
	result := Result{OutputPath: req.OutputPath}

	fail := func(err error) Result {
		result.Success = false
		result.ErrorMessage = services.SafeMessage(err)
		result.ErrorCategory = services.Category(err)
		result.ProcessingTime = time.Since(start)
		o.logger.Error("optimization failed",
			logging.String(logging.FieldRunID, result.RunID),
			logging.String("category", result.ErrorCategory),
			logging.Error(err))
		return result
	}

	report.Report(ProgressStart, "validate", "validating input")

	level, err := o.resolveQuality(req.Quality)
	if err != nil {
		return fail(services.Wrap(services.ErrValidation, "validate", "quality", "unknown quality preset", err))
	}
	result.Quality = level.String()

	validatedInput, err := o.validator.Validate(req.InputPath, false)
	if err != nil {
		return fail(err)
	}
	inputPath := validatedInput.String()

	info, err := os.Stat(inputPath)
	if err != nil {
		return fail(services.Wrap(services.ErrValidation, "validate", "stat", "input file is not readable", err))
	}
	result.OriginalSizeBytes = info.Size()
	if maxBytes := int64(o.cfg.Optimizer.MaxInputMiB) << 20; maxBytes > 0 && info.Size() > maxBytes {
		return fail(services.Wrap(services.ErrValidation, "validate", "size",
			fmt.Sprintf("input exceeds the %d MiB limit", o.cfg.Optimizer.MaxInputMiB), nil))
	}
	if err := gltf.ValidateFile(inputPath); err != nil {
		return fail(services.Wrap(services.ErrValidation, "validate", "container", "input is not a valid binary glTF asset", err))
	}

	if err := workspace.Preflight(o.cfg, info.Size()); err != nil {
		return fail(err)
	}

	session, err := workspace.Begin(o.cfg, o.logger)
	if err != nil {
		return fail(err)
	}
	defer session.Close()
	result.RunID = session.RunID

	runLogger := o.logger.With(logging.String(logging.FieldRunID, session.RunID))
	runLogger.Info("optimization started",
		logging.String("input", filepath.Base(inputPath)),
		logging.String("quality", level.String()),
		logging.Int64("size_bytes", info.Size()))

	writer := NewAtomicWriter(o.validator)
	defer writer.Cleanup()

	st := &runState{
		cfg:            o.cfg,
		settings:       quality.SettingsFor(level),
		level:          level,
		session:        session,
		runner:         o.runner,
		validator:      o.validator,
		logger:         runLogger,
		enableLOD:      req.EnableLOD,
		enableSimplify: req.EnableSimplification,
		current:        inputPath,
	}

	st.analysis = analysis.Analyze(ctx, o.runner, o.cfg.GltfTransformBinary(), inputPath, runLogger)
	report.Report(ProgressAnalyzed, "analyze", fmt.Sprintf("complexity %s", st.analysis.Complexity))

	for _, stage := range stageChain() {
		stageCtx := logging.WithStage(ctx, stage.name)
		if err := ctx.Err(); err != nil {
			return fail(services.Wrap(services.ErrTimeout, stage.name, "run", "optimization cancelled", err))
		}
		runLogger.Debug("stage started",
			logging.String(logging.FieldEventType, "stage_start"),
			logging.String(logging.FieldStage, stage.name))
		if err := stage.run(stageCtx, st); err != nil {
			if services.Fatal(err) {
				return fail(err)
			}
			st.degraded = append(st.degraded, stage.name)
			st.diagnostics = append(st.diagnostics,
				fmt.Sprintf("%s [%s]: %v", stage.name, services.Category(err), err))
			runLogger.Warn("stage degraded, continuing with previous result",
				logging.String(logging.FieldEventType, "stage_fallback"),
				logging.String(logging.FieldStage, stage.name),
				logging.String(logging.FieldErrorHint, services.SafeMessage(err)),
				logging.Error(err))
		} else {
			runLogger.Debug("stage finished",
				logging.String(logging.FieldEventType, "stage_complete"),
				logging.String(logging.FieldStage, stage.name))
		}
		report.Report(stage.percent, stage.name, "stage finished")
	}

	publishSrc := st.current
	if publishSrc == inputPath {
		// Every stage failed. Publish a verified copy of the input so the
		// caller still receives a usable asset.
		passthrough := session.StagePath("passthrough")
		if err := fileutil.CopyFileVerified(inputPath, passthrough); err != nil {
			return fail(services.Wrap(services.ErrIO, "publish", "passthrough", "copy input for publication", err))
		}
		publishSrc = passthrough
	}
	writer.Track(publishSrc)

	report.Report(ProgressPublished, "publish", "publishing output")
	if err := writer.Finalize(publishSrc, req.OutputPath); err != nil {
		return fail(err)
	}

	finalInfo, err := os.Stat(req.OutputPath)
	if err != nil {
		return fail(services.Wrap(services.ErrIO, "publish", "stat", "published file is not readable", err))
	}

	result.Success = true
	result.CompressedSizeBytes = finalInfo.Size()
	if result.OriginalSizeBytes > 0 {
		result.CompressionRatio = float64(result.CompressedSizeBytes) / float64(result.OriginalSizeBytes)
	}
	result.MethodsUsed = st.methodsUsed
	result.DegradedStages = st.degraded
	result.Diagnostics = st.diagnostics
	result.ProcessingTime = time.Since(start)

	report.Done()
	runLogger.Info("optimization complete",
		logging.String(logging.FieldEventType, "run_complete"),
		logging.Int64("original_bytes", result.OriginalSizeBytes),
		logging.Int64("compressed_bytes", result.CompressedSizeBytes),
		logging.Float64("ratio", result.CompressionRatio),
		logging.Duration("elapsed", result.ProcessingTime),
		logging.Int("degraded_stages", len(result.DegradedStages)))
	return result
}

func (o *Orchestrator) resolveQuality(override string) (quality.Level, error) {
	value := override
	if value == "" {
		value = o.cfg.Optimizer.Quality
	}
	return quality.Parse(value)
}

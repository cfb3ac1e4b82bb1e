package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"time"

	"glbopt/internal/analysis"
	"glbopt/internal/config"
	"glbopt/internal/gltf"
	"glbopt/internal/logging"
	"glbopt/internal/pathguard"
	"glbopt/internal/quality"
	"glbopt/internal/race"
	"glbopt/internal/services"
	"glbopt/internal/toolrunner"
	"glbopt/internal/workspace"
)

// webpAdvantageRatio is how much smaller a WebP result must be before it
// beats KTX2. KTX2 stays GPU-resident after upload, so WebP has to win on
// size by a clear margin.
const webpAdvantageRatio = 0.8

// commandRunner abstracts tool invocation so stage logic is testable
// without real binaries.
type commandRunner interface {
	Run(ctx context.Context, argv []string, stepName string, timeout time.Duration) (toolrunner.Result, error)
}

var _ commandRunner = (*toolrunner.Runner)(nil)

// runState threads one asset through the stage chain. current always names
// the best valid artifact produced so far.
type runState struct {
	cfg       *config.Config
	settings  quality.Settings
	level     quality.Level
	session   *workspace.Session
	runner    commandRunner
	validator *pathguard.Validator
	logger    *slog.Logger

	enableLOD      bool
	enableSimplify bool

	analysis analysis.Analysis
	current  string

	methodsUsed []string
	degraded    []string
	diagnostics []string
}

func (st *runState) toolTimeout() time.Duration {
	return time.Duration(st.cfg.Tools.ToolTimeout) * time.Second
}

func (st *runState) raceTimeout() time.Duration {
	return time.Duration(st.cfg.Tools.RaceTimeout) * time.Second
}

// promote adopts the stage output as the new best artifact if it is a valid,
// non-empty GLB. An invalid output leaves current untouched. The candidate
// is re-validated against the sandbox roots before any file operation.
func (st *runState) promote(stage, candidate string) error {
	if st.validator != nil {
		validated, err := st.validator.Validate(candidate, true)
		if err != nil {
			return err
		}
		if err := st.validator.Recheck(validated, true); err != nil {
			return err
		}
		candidate = validated.String()
	}
	info, err := os.Stat(candidate)
	if err != nil {
		return services.Wrap(services.ErrIO, stage, "promote", "stage output missing", err)
	}
	if info.Size() == 0 {
		_ = os.Remove(candidate)
		return services.Wrap(services.ErrExternalTool, stage, "promote", "stage output is empty", nil)
	}
	if err := gltf.ValidateFile(candidate); err != nil {
		_ = os.Remove(candidate)
		return services.Wrap(services.ErrExternalTool, stage, "promote", "stage output is not a valid asset", err)
	}
	if st.current != "" && st.current != candidate && st.session != nil {
		// Previous intermediates live under the session root and go away
		// with it; removing eagerly keeps staging space bounded.
		st.removeIntermediate(st.session.Root, st.current)
	}
	st.current = candidate
	return nil
}

// removeIntermediate discards a superseded staging artifact. Paths outside
// the session root, or ones the validator no longer accepts, are left alone.
func (st *runState) removeIntermediate(root, path string) {
	if root == "" || path == "" {
		return
	}
	if len(path) <= len(root) || path[:len(root)] != root {
		return
	}
	if st.validator != nil {
		validated, err := st.validator.Validate(path, true)
		if err != nil {
			return
		}
		if err := st.validator.Recheck(validated, true); err != nil {
			return
		}
		path = validated.String()
	}
	_ = os.Remove(path)
}

type stageFunc func(ctx context.Context, st *runState) error

type stageDef struct {
	name    string
	percent int
	run     stageFunc
}

func stageChain() []stageDef {
	return []stageDef{
		{name: "prune", percent: ProgressPruned, run: stagePrune},
		{name: "weld", percent: ProgressWelded, run: stageWeld},
		{name: "geometry", percent: ProgressGeometry, run: stageGeometry},
		{name: "texture", percent: ProgressTextures, run: stageTexture},
		{name: "animation", percent: ProgressAnimation, run: stageAnimation},
		{name: "finalpack", percent: ProgressPacked, run: stageFinalPack},
	}
}

// stagePrune strips unused nodes, meshes, materials, and textures.
func stagePrune(ctx context.Context, st *runState) error {
	out := st.session.StagePath("prune")
	argv := []string{st.cfg.GltfTransformBinary(), "prune", st.current, out}
	if _, err := st.runner.Run(ctx, argv, "prune", st.toolTimeout()); err != nil {
		return err
	}
	if err := st.promote("prune", out); err != nil {
		return err
	}
	st.methodsUsed = append(st.methodsUsed, "prune")
	return nil
}

// stageWeld merges duplicate vertices so downstream compression sees fewer
// unique attributes.
func stageWeld(ctx context.Context, st *runState) error {
	out := st.session.StagePath("weld")
	argv := []string{st.cfg.GltfTransformBinary(), "weld", st.current, out}
	if _, err := st.runner.Run(ctx, argv, "weld", st.toolTimeout()); err != nil {
		return err
	}
	if err := st.promote("weld", out); err != nil {
		return err
	}
	st.methodsUsed = append(st.methodsUsed, "weld")
	return nil
}

// stageGeometry races the candidate compression methods selected for this
// asset and keeps the smallest valid result. When LOD generation is
// requested, a simplification pre-pass reduces detail before the race so
// every candidate compresses the same reduced mesh.
func stageGeometry(ctx context.Context, st *runState) error {
	input := st.current
	if st.enableLOD {
		simplified := st.session.StagePath("simplify")
		argv := []string{
			st.cfg.GltfTransformBinary(), "simplify", input, simplified,
			"--ratio", strconv.FormatFloat(st.settings.SimplifyRatio, 'f', 2, 64),
		}
		if _, err := st.runner.Run(ctx, argv, "geometry", st.toolTimeout()); err != nil {
			st.logger.Warn("simplification pre-pass failed, compressing full detail", logging.Error(err))
		} else if info, statErr := os.Stat(simplified); statErr == nil && info.Size() > 0 {
			input = simplified
		}
	}

	methods := analysis.SelectMethods(st.analysis, st.level)
	racer := race.New(race.Options{
		MaxWorkers: st.cfg.Tools.MaxParallelWorkers,
		Timeout:    st.raceTimeout(),
		Logger:     st.logger,
	})
	winner, err := racer.Run(ctx, methods, st.session.Root, func(ctx context.Context, method analysis.Method, outputPath string) error {
		return st.compressGeometry(ctx, method, input, outputPath)
	})
	if err != nil {
		return err
	}
	if err := st.promote("geometry", winner.Path); err != nil {
		return err
	}
	st.methodsUsed = append(st.methodsUsed, string(winner.Method))
	st.logger.Info("geometry compression finished",
		logging.String(logging.FieldMethod, string(winner.Method)),
		logging.Int64("size_bytes", winner.SizeBytes),
		logging.Duration("elapsed", winner.Elapsed))
	return nil
}

func (st *runState) compressGeometry(ctx context.Context, method analysis.Method, input, output string) error {
	switch method {
	case analysis.MethodMeshopt:
		return st.runMeshopt(ctx, input, output, true)
	case analysis.MethodDraco:
		return st.runDraco(ctx, input, output)
	case analysis.MethodHybrid:
		// Simplify with gltfpack first, then recompress the survivors
		// with Draco.
		mid := st.session.StagePath("hybrid-mid")
		defer os.Remove(mid)
		if err := st.runMeshopt(ctx, input, mid, false); err != nil {
			return err
		}
		return st.runDraco(ctx, mid, output)
	default:
		return services.Wrap(services.ErrValidation, "geometry", "compress", fmt.Sprintf("unknown method %q", method), nil)
	}
}

func (st *runState) runMeshopt(ctx context.Context, input, output string, compress bool) error {
	argv := []string{st.cfg.GltfpackBinary(), "-i", input, "-o", output}
	if compress {
		argv = append(argv, "-cc")
	}
	if st.enableSimplify && st.settings.SimplifyRatio < 1 {
		argv = append(argv, "-si", strconv.FormatFloat(st.settings.SimplifyRatio, 'f', 2, 64))
	}
	_, err := st.runner.Run(ctx, argv, "geometry", st.toolTimeout())
	return err
}

func (st *runState) runDraco(ctx context.Context, input, output string) error {
	bits := st.settings.Draco
	argv := []string{
		st.cfg.GltfTransformBinary(), "draco", input, output,
		"--quantize-position", strconv.Itoa(bits.Position),
		"--quantize-normal", strconv.Itoa(bits.Normal),
		"--quantize-color", strconv.Itoa(bits.Color),
		"--quantize-texcoord", strconv.Itoa(bits.TexCoord),
	}
	_, err := st.runner.Run(ctx, argv, "geometry", st.toolTimeout())
	return err
}

// stageTexture races KTX2 against WebP on the same input and keeps the
// KTX2 result unless WebP is smaller by a clear margin.
func stageTexture(ctx context.Context, st *runState) error {
	input := st.current
	ktx2Out := st.session.StagePath("texture-ktx2")
	webpOut := st.session.StagePath("texture-webp")

	raceCtx := ctx
	if timeout := st.raceTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		raceCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var (
		wg                 sync.WaitGroup
		ktx2Size, webpSize int64
		ktx2Err, webpErr   error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		ktx2Size, ktx2Err = st.compressTextureKTX2(raceCtx, input, ktx2Out)
	}()
	go func() {
		defer wg.Done()
		webpSize, webpErr = st.compressTextureWebP(raceCtx, input, webpOut)
	}()
	wg.Wait()

	if ktx2Err != nil && webpErr != nil {
		_ = os.Remove(ktx2Out)
		_ = os.Remove(webpOut)
		return services.Wrap(services.ErrExternalTool, "texture", "compress",
			"both texture formats failed", fmt.Errorf("ktx2: %w; webp: %v", ktx2Err, webpErr))
	}

	chosen, format := ktx2Out, "ktx2"
	if ktx2Err != nil {
		chosen, format = webpOut, "webp"
	} else if webpErr == nil && float64(webpSize) < webpAdvantageRatio*float64(ktx2Size) {
		chosen, format = webpOut, "webp"
	}

	if err := st.promote("texture", chosen); err != nil {
		_ = os.Remove(ktx2Out)
		_ = os.Remove(webpOut)
		return err
	}
	if chosen == ktx2Out {
		_ = os.Remove(webpOut)
	} else {
		_ = os.Remove(ktx2Out)
	}
	st.methodsUsed = append(st.methodsUsed, format)
	st.logger.Info("texture compression finished",
		logging.String("format", format),
		logging.Int64("ktx2_bytes", ktx2Size),
		logging.Int64("webp_bytes", webpSize))
	return nil
}

func (st *runState) compressTextureKTX2(ctx context.Context, input, output string) (int64, error) {
	mode := st.settings.KTX2Mode
	argv := []string{st.cfg.GltfTransformBinary(), mode, input, output}
	if mode == "etc1s" {
		argv = append(argv, "--quality", strconv.Itoa(st.settings.TextureQuality))
	}
	if _, err := st.runner.Run(ctx, argv, "texture", st.toolTimeout()); err != nil {
		return 0, err
	}
	return outputSize(output)
}

func (st *runState) compressTextureWebP(ctx context.Context, input, output string) (int64, error) {
	argv := []string{st.cfg.GltfTransformBinary(), "webp", input, output}
	if _, err := st.runner.Run(ctx, argv, "texture", st.toolTimeout()); err != nil {
		return 0, err
	}
	return outputSize(output)
}

func outputSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, services.Wrap(services.ErrIO, "texture", "stat", "compressed output missing", err)
	}
	if info.Size() == 0 {
		return 0, services.Wrap(services.ErrExternalTool, "texture", "stat", "compressed output is empty", nil)
	}
	return info.Size(), nil
}

// stageAnimation resamples animation keyframes to drop redundant frames.
func stageAnimation(ctx context.Context, st *runState) error {
	out := st.session.StagePath("animation")
	argv := []string{st.cfg.GltfTransformBinary(), "resample", st.current, out}
	if _, err := st.runner.Run(ctx, argv, "animation", st.toolTimeout()); err != nil {
		return err
	}
	if err := st.promote("animation", out); err != nil {
		return err
	}
	st.methodsUsed = append(st.methodsUsed, "resample")
	return nil
}

// stageFinalPack runs a last gltfpack pass to tighten buffer layout.
func stageFinalPack(ctx context.Context, st *runState) error {
	out := st.session.StagePath("finalpack")
	argv := []string{st.cfg.GltfpackBinary(), "-i", st.current, "-o", out, "-c"}
	if _, err := st.runner.Run(ctx, argv, "finalpack", st.toolTimeout()); err != nil {
		return err
	}
	if err := st.promote("finalpack", out); err != nil {
		return err
	}
	st.methodsUsed = append(st.methodsUsed, "gltfpack")
	return nil
}

package analysis

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"strings"
	"time"

	"glbopt/internal/logging"
	"glbopt/internal/toolrunner"
)

// Complexity buckets an asset's expected optimization cost.
const (
	ComplexityLow     = "low"
	ComplexityMedium  = "medium"
	ComplexityHigh    = "high"
	ComplexityUnknown = "unknown"
)

// Analysis summarizes an asset for method selection.
type Analysis struct {
	VertexCount   int64
	FileSizeBytes int64
	Complexity    string
}

// CommandRunner is the subset of toolrunner used by the analyzer.
type CommandRunner interface {
	Run(ctx context.Context, argv []string, stepName string, timeout time.Duration) (toolrunner.Result, error)
}

const inspectTimeout = 30 * time.Second

// size buckets for the degraded, tool-free analysis path
const (
	lowSizeBytes    = 1 << 20  // 1 MiB
	mediumSizeBytes = 10 << 20 // 10 MiB
)

// vertex-count buckets used when inspection succeeds
const (
	lowVertexCount    = 50_000
	mediumVertexCount = 200_000
)

// inspectReport mirrors the fields we consume from the transform CLI's
// inspect output; everything else is ignored.
type inspectReport struct {
	Meshes struct {
		Properties []struct {
			Vertices int64 `json:"vertices"`
		} `json:"properties"`
	} `json:"meshes"`
}

// Analyze inspects the asset at path. It never returns an error: inspection
// failures degrade to a size-derived analysis, and a stat failure yields
// Complexity "unknown", which is valid input to method selection.
func Analyze(ctx context.Context, runner CommandRunner, inspectTool, path string, logger *slog.Logger) Analysis {
	logger = logging.NewComponentLogger(logger, "analysis")

	result := Analysis{Complexity: ComplexityUnknown}
	if info, err := os.Stat(path); err == nil {
		result.FileSizeBytes = info.Size()
		result.Complexity = sizeComplexity(info.Size())
	} else {
		logger.Debug("stat failed, analysis degraded", logging.Error(err))
		return result
	}

	if runner == nil || strings.TrimSpace(inspectTool) == "" {
		return result
	}

	out, err := runner.Run(ctx, []string{inspectTool, "inspect", path, "--format", "json"}, "analyze", inspectTimeout)
	if err != nil {
		logger.Debug("inspection tool failed, using size buckets", logging.Error(err))
		return result
	}

	var report inspectReport
	if err := json.Unmarshal([]byte(out.Stdout), &report); err != nil {
		logger.Debug("inspection output unusable, using size buckets", logging.Error(err))
		return result
	}

	var vertices int64
	for _, mesh := range report.Meshes.Properties {
		vertices += mesh.Vertices
	}
	if vertices <= 0 {
		return result
	}

	result.VertexCount = vertices
	result.Complexity = vertexComplexity(vertices)
	return result
}

func sizeComplexity(size int64) string {
	switch {
	case size < lowSizeBytes:
		return ComplexityLow
	case size < mediumSizeBytes:
		return ComplexityMedium
	default:
		return ComplexityHigh
	}
}

func vertexComplexity(vertices int64) string {
	switch {
	case vertices < lowVertexCount:
		return ComplexityLow
	case vertices < mediumVertexCount:
		return ComplexityMedium
	default:
		return ComplexityHigh
	}
}

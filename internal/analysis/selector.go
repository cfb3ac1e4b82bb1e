package analysis

import "glbopt/internal/quality"

// Method names a candidate geometry-compression strategy.
type Method string

const (
	MethodMeshopt Method = "meshopt"
	MethodDraco   Method = "draco"
	MethodHybrid  Method = "hybrid"
)

// selection thresholds; changing these changes which assets race multiple
// candidates, so they are pinned by tests
const (
	dracoVertexThreshold  = 50_000
	hybridVertexThreshold = 100_000
	hybridSizeThreshold   = 5_000_000
)

// SelectMethods maps an analysis and quality preset to the ordered candidate
// set. It is pure: the same inputs always produce the same slice, and the
// output order is always the canonical (meshopt, draco, hybrid) order no
// matter which conditions fired. Meshopt is always present.
func SelectMethods(a Analysis, level quality.Level) []Method {
	includeDraco := a.VertexCount > dracoVertexThreshold || level == quality.MaxCompression
	includeHybrid := a.VertexCount > hybridVertexThreshold ||
		a.FileSizeBytes > hybridSizeThreshold ||
		level == quality.Balanced || level == quality.MaxCompression

	methods := []Method{MethodMeshopt}
	if includeDraco {
		methods = append(methods, MethodDraco)
	}
	if includeHybrid {
		methods = append(methods, MethodHybrid)
	}
	return methods
}

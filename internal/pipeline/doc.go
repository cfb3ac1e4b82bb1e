// Package pipeline orchestrates the optimization stages for a single GLB
// asset: prune, weld, geometry compression, texture compression, animation
// resampling, and final packing, followed by an atomic publish into the
// output root.
//
// Stage failures degrade rather than abort. Each stage consumes the best
// result produced so far, and a stage that fails leaves that result in
// place. Only security violations stop a run outright.
package pipeline

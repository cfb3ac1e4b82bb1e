// Package analysis inspects input assets to guide compression method
// selection.
//
// Analyze is best-effort and never fails: when the external inspection tool
// is unavailable or produces unusable output, it degrades to file-size
// buckets. SelectMethods is the pure policy mapping an analysis and quality
// preset to the ordered candidate set raced by the pipeline.
package analysis

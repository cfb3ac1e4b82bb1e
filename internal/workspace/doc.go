// Package workspace manages per-run staging directories, the single-instance
// lock, and environment preflight checks for optimization runs.
package workspace

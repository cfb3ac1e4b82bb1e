// Package pathguard is the filesystem trust boundary for the optimizer.
//
// Every path handed to a subprocess or file operation must first pass
// Validate, which canonicalizes the path, enforces the extension policy, and
// confirms containment inside one of the configured roots. Validation results
// may be cached, but the cache is a fast path only: Recheck re-runs
// resolution and containment and must be called immediately before each file
// operation to close the time-of-check/time-of-use window.
package pathguard

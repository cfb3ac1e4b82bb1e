package pipeline

import (
	"errors"
	"os"
	"path/filepath"
	"sync"

	"glbopt/internal/fileutil"
	"glbopt/internal/gltf"
	"glbopt/internal/pathguard"
	"glbopt/internal/services"
)

// renameFile is swapped out by tests to exercise the post-move checks.
var renameFile = os.Rename

// AtomicWriter publishes finished assets into the output root. The temp file
// is re-validated immediately before the move, and the published path is
// validated again after it, so a swap in either window is caught.
type AtomicWriter struct {
	validator *pathguard.Validator

	mu      sync.Mutex
	pending map[string]struct{}
}

// NewAtomicWriter constructs a writer backed by the given validator.
func NewAtomicWriter(validator *pathguard.Validator) *AtomicWriter {
	return &AtomicWriter{
		validator: validator,
		pending:   make(map[string]struct{}),
	}
}

// Track registers a temp file for removal by Cleanup if it is never
// published.
func (w *AtomicWriter) Track(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending[path] = struct{}{}
}

func (w *AtomicWriter) untrack(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.pending, path)
}

// Cleanup removes every tracked temp file that was not published.
func (w *AtomicWriter) Cleanup() {
	w.mu.Lock()
	paths := make([]string, 0, len(w.pending))
	for path := range w.pending {
		paths = append(paths, path)
	}
	w.pending = make(map[string]struct{})
	w.mu.Unlock()

	for _, path := range paths {
		_ = os.Remove(path)
	}
}

// Finalize moves tempPath to finalPath. The rename is atomic on a single
// filesystem; across filesystems it degrades to a verified copy plus remove.
// The temp file must be a structurally valid asset before the move, and the
// published file is validated again afterwards; a file that fails the second
// check is removed so an invalid asset never survives at finalPath.
func (w *AtomicWriter) Finalize(tempPath, finalPath string) error {
	validatedTemp, err := w.validator.Validate(tempPath, true)
	if err != nil {
		return err
	}
	if err := w.validator.Recheck(validatedTemp, true); err != nil {
		return err
	}
	if err := gltf.ValidateFile(validatedTemp.String()); err != nil {
		return services.Wrap(services.ErrValidation, "publish", "finalize", "output failed container validation", err)
	}

	validatedFinal, err := w.validator.Validate(finalPath, false)
	if err != nil {
		return err
	}

	unlock := w.validator.LockPath(validatedFinal)
	defer unlock()

	dst := validatedFinal.String()
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return services.Wrap(services.ErrIO, "publish", "finalize", "create output directory", err)
	}

	src := validatedTemp.String()
	if err := renameFile(src, dst); err != nil {
		var linkErr *os.LinkError
		if !errors.As(err, &linkErr) {
			return services.Wrap(services.ErrIO, "publish", "finalize", "move output into place", err)
		}
		// Rename across filesystems fails with EXDEV.
		if err := fileutil.CopyFileVerified(src, dst); err != nil {
			return services.Wrap(services.ErrIO, "publish", "finalize", "copy output into place", err)
		}
		_ = os.Remove(src)
	}

	if err := w.validator.Recheck(validatedFinal, false); err != nil {
		_ = os.Remove(dst)
		return services.Wrap(services.ErrSecurity, "publish", "finalize", "published file failed validation", err)
	}
	if err := gltf.ValidateFile(dst); err != nil {
		_ = os.Remove(dst)
		return services.Wrap(services.ErrIO, "publish", "verify", "published file failed container validation", err)
	}

	w.untrack(tempPath)
	return nil
}

package pathguard

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"glbopt/internal/gltf"
	"glbopt/internal/services"
)

// tempExtensions whitelists intermediate artifact extensions allowed under
// the staging and temp roots.
var tempExtensions = map[string]struct{}{
	gltf.Extension: {},
	".bin":         {},
	".ktx2":        {},
	".webp":        {},
	".png":         {},
	".jpg":         {},
	".json":        {},
}

const shellMetacharacters = ";|&$`><\n\x00"

// ValidatedPath is a canonical absolute path that passed validation. The zero
// value is unusable; instances are only produced by Validator.Validate.
type ValidatedPath struct {
	resolved string
}

// String returns the canonical absolute path.
func (p ValidatedPath) String() string { return p.resolved }

// IsZero reports whether the path was never validated.
func (p ValidatedPath) IsZero() bool { return p.resolved == "" }

// Validator authorizes filesystem paths against a fixed set of roots.
type Validator struct {
	roots           []string
	tempRoot        string
	allowSystemTemp bool

	mu    sync.Mutex
	cache map[string]struct{}
	locks map[string]*sync.Mutex
}

// Options tunes validator construction.
type Options struct {
	// AllowSystemTemp permits paths under the OS temp root for calls made
	// with allowTemp=true.
	AllowSystemTemp bool
}

// New builds a validator over the upload, output, and staging roots. The
// roots must exist; they are canonicalized once at construction.
func New(uploadRoot, outputRoot, stagingRoot string, opts Options) (*Validator, error) {
	v := &Validator{
		allowSystemTemp: opts.AllowSystemTemp,
		cache:           make(map[string]struct{}),
		locks:           make(map[string]*sync.Mutex),
	}
	for _, root := range []string{uploadRoot, outputRoot, stagingRoot} {
		canonical, err := canonicalizeRoot(root)
		if err != nil {
			return nil, err
		}
		v.roots = append(v.roots, canonical)
	}
	if opts.AllowSystemTemp {
		canonical, err := canonicalizeRoot(os.TempDir())
		if err != nil {
			return nil, err
		}
		v.tempRoot = canonical
	}
	return v, nil
}

func canonicalizeRoot(root string) (string, error) {
	trimmed := strings.TrimSpace(root)
	if trimmed == "" {
		return "", services.Wrap(services.ErrConfiguration, "paths", "init", "empty root directory", nil)
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return "", services.Wrap(services.ErrConfiguration, "paths", "init", "unresolvable root directory", err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", services.Wrap(services.ErrConfiguration, "paths", "init", "root directory does not resolve", err)
	}
	info, err := os.Stat(resolved)
	if err != nil || !info.IsDir() {
		return "", services.Wrap(services.ErrConfiguration, "paths", "init", "root is not a directory", err)
	}
	return resolved, nil
}

func securityErr(operation string) error {
	return services.Wrap(services.ErrSecurity, "paths", operation, "path rejected", nil)
}

// Validate canonicalizes path and authorizes it against the allowed roots.
// allowTemp additionally admits the OS temp root (when configured) and the
// intermediate-extension whitelist. Successful validations are cached by
// resolved path; the cache never substitutes for the pre-operation Recheck.
func (v *Validator) Validate(path string, allowTemp bool) (ValidatedPath, error) {
	raw := strings.TrimSpace(path)
	if raw == "" {
		return ValidatedPath{}, securityErr("validate")
	}
	if strings.ContainsAny(raw, shellMetacharacters) {
		return ValidatedPath{}, securityErr("validate")
	}

	resolved, err := v.resolve(raw)
	if err != nil {
		return ValidatedPath{}, err
	}

	cacheKey := fmt.Sprintf("%s|%t", resolved, allowTemp)
	v.mu.Lock()
	_, cached := v.cache[cacheKey]
	v.mu.Unlock()
	if cached {
		return ValidatedPath{resolved: resolved}, nil
	}

	if err := v.check(resolved, allowTemp); err != nil {
		return ValidatedPath{}, err
	}

	v.mu.Lock()
	v.cache[cacheKey] = struct{}{}
	v.mu.Unlock()
	return ValidatedPath{resolved: resolved}, nil
}

// Recheck re-runs resolution and containment for a previously validated path.
// Call it immediately before every file operation; it never consults the
// cache, so a path swapped for a symlink after Validate is rejected here.
func (v *Validator) Recheck(p ValidatedPath, allowTemp bool) error {
	if p.IsZero() {
		return securityErr("recheck")
	}
	resolved, err := v.resolve(p.resolved)
	if err != nil {
		return err
	}
	if resolved != p.resolved {
		// The on-disk entry no longer resolves to the path that was
		// validated; treat as a swap attempt.
		return securityErr("recheck")
	}
	return v.check(resolved, allowTemp)
}

// resolve produces the canonical absolute path, following symlinks in every
// existing ancestor. Nonexistent leaf components are allowed so output paths
// can be validated before creation.
func (v *Validator) resolve(path string) (string, error) {
	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", securityErr("resolve")
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err == nil {
		return resolved, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return "", securityErr("resolve")
	}
	// Leaf does not exist yet: canonicalize the parent and re-join.
	dir, base := filepath.Split(abs)
	resolvedDir, dirErr := filepath.EvalSymlinks(filepath.Clean(dir))
	if dirErr != nil {
		return "", securityErr("resolve")
	}
	return filepath.Join(resolvedDir, base), nil
}

func (v *Validator) check(resolved string, allowTemp bool) error {
	// A path that is still a symlink after resolution means the entry was
	// swapped between resolution and this check.
	if info, err := os.Lstat(resolved); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return securityErr("symlink check")
	}

	if err := v.checkExtension(resolved, allowTemp); err != nil {
		return err
	}
	return v.checkContainment(resolved, allowTemp)
}

func (v *Validator) checkExtension(resolved string, allowTemp bool) error {
	if info, err := os.Stat(resolved); err == nil && info.IsDir() {
		return nil
	}
	ext := strings.ToLower(filepath.Ext(resolved))
	if ext == gltf.Extension {
		return nil
	}
	if !allowTemp {
		return securityErr("extension check")
	}
	if _, ok := tempExtensions[ext]; ok {
		return nil
	}
	if isTempSuffix(filepath.Base(resolved)) {
		return nil
	}
	return securityErr("extension check")
}

// isTempSuffix matches the ".tmp.<pid>" naming used for in-flight outputs.
func isTempSuffix(base string) bool {
	idx := strings.LastIndex(base, ".tmp.")
	if idx <= 0 {
		return false
	}
	suffix := base[idx+len(".tmp."):]
	if suffix == "" {
		return false
	}
	for _, r := range suffix {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func (v *Validator) checkContainment(resolved string, allowTemp bool) error {
	for _, root := range v.roots {
		if isStrictDescendant(root, resolved) {
			return nil
		}
	}
	if allowTemp && v.tempRoot != "" && isStrictDescendant(v.tempRoot, resolved) {
		return nil
	}
	return securityErr("containment check")
}

func isStrictDescendant(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	if rel == "." || rel == ".." {
		return false
	}
	return !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// LockPath serializes filesystem operations on one resolved path within this
// process. The returned function releases the lock.
func (v *Validator) LockPath(p ValidatedPath) func() {
	v.mu.Lock()
	lock, ok := v.locks[p.resolved]
	if !ok {
		lock = &sync.Mutex{}
		v.locks[p.resolved] = lock
	}
	v.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

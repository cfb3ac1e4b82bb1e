package toolrunner

import (
	"os"
	"strings"
)

// basePathDirs are always present in the child PATH alongside the configured
// tool directories.
var basePathDirs = []string{"/usr/local/bin", "/usr/bin", "/bin"}

// envAllowList names parent variables copied into the child environment when
// set. Loader-injection vectors (LD_PRELOAD, PYTHONPATH, NODE_OPTIONS, ...)
// are deliberately absent and never forwarded.
var envAllowList = []string{"HOME", "LANG", "LC_ALL", "TMPDIR"}

// childEnv assembles the minimal environment passed to tool processes.
func (r *Runner) childEnv() []string {
	env := make([]string, 0, len(envAllowList)+len(r.opts.EnvPassthrough)+1)

	seen := map[string]struct{}{}
	pathDirs := make([]string, 0, len(r.opts.ToolDirs)+len(basePathDirs))
	for _, dir := range append(append([]string{}, r.opts.ToolDirs...), basePathDirs...) {
		dir = strings.TrimSpace(dir)
		if dir == "" {
			continue
		}
		if _, ok := seen[dir]; ok {
			continue
		}
		seen[dir] = struct{}{}
		pathDirs = append(pathDirs, dir)
	}
	env = append(env, "PATH="+strings.Join(pathDirs, string(os.PathListSeparator)))

	for _, name := range envAllowList {
		if value, ok := os.LookupEnv(name); ok {
			env = append(env, name+"="+value)
		}
	}
	for _, name := range r.opts.EnvPassthrough {
		name = strings.TrimSpace(name)
		if name == "" || strings.EqualFold(name, "PATH") {
			continue
		}
		if blockedEnv(name) {
			continue
		}
		if value, ok := os.LookupEnv(name); ok {
			env = append(env, name+"="+value)
		}
	}
	return env
}

// blockedEnv rejects passthrough names that would reintroduce interpreter or
// loader search-path injection.
func blockedEnv(name string) bool {
	upper := strings.ToUpper(name)
	switch upper {
	case "LD_PRELOAD", "LD_LIBRARY_PATH", "DYLD_INSERT_LIBRARIES", "DYLD_LIBRARY_PATH",
		"PYTHONPATH", "PYTHONSTARTUP", "NODE_OPTIONS", "NODE_PATH", "PERL5LIB", "RUBYLIB", "IFS":
		return true
	}
	return strings.HasPrefix(upper, "LD_") || strings.HasPrefix(upper, "DYLD_")
}

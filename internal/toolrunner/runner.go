package toolrunner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"glbopt/internal/gltf"
	"glbopt/internal/logging"
	"glbopt/internal/pathguard"
	"glbopt/internal/services"
)

// Result captures the output of one tool invocation.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// Options tunes runner construction.
type Options struct {
	// ToolDirs are directories of configured tool binaries, prepended to the
	// child PATH.
	ToolDirs []string
	// EnvPassthrough lists extra parent environment variables forwarded to
	// children, on top of the built-in allow-list.
	EnvPassthrough []string
	// DefaultTimeout bounds invocations whose caller passes no timeout.
	DefaultTimeout time.Duration
}

// Runner launches external tools with validated arguments and a minimal
// environment.
type Runner struct {
	validator *pathguard.Validator
	logger    *slog.Logger
	opts      Options
}

// New constructs a runner. The validator is required; every path-like
// argument passes through it.
func New(validator *pathguard.Validator, logger *slog.Logger, opts Options) *Runner {
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = 5 * time.Minute
	}
	return &Runner{
		validator: validator,
		logger:    logging.NewComponentLogger(logger, "toolrunner"),
		opts:      opts,
	}
}

// startProcess is overridable in tests to avoid launching real binaries.
var startProcess = func(ctx context.Context, cmd *exec.Cmd) error { return cmd.Run() }

// Run executes argv with no shell interpretation. Path-looking arguments are
// validated (allowTemp=true) and rechecked immediately before launch.
func (r *Runner) Run(ctx context.Context, argv []string, stepName string, timeout time.Duration) (Result, error) {
	if len(argv) == 0 {
		return Result{}, services.Wrap(services.ErrConfiguration, stepName, "run", "empty command", nil)
	}
	if timeout <= 0 {
		timeout = r.opts.DefaultTimeout
	}

	binary, err := exec.LookPath(argv[0])
	if err != nil {
		return Result{}, services.Wrap(services.ErrToolMissing, stepName, argv[0], "required tool is not installed", err)
	}

	args := make([]string, 0, len(argv)-1)
	for _, arg := range argv[1:] {
		if looksLikeManagedPath(arg) {
			validated, err := r.validator.Validate(arg, true)
			if err != nil {
				return Result{}, err
			}
			if err := r.validator.Recheck(validated, true); err != nil {
				return Result{}, err
			}
			args = append(args, validated.String())
			continue
		}
		args = append(args, arg)
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, binary, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.Env = r.childEnv()

	started := time.Now()
	runErr := startProcess(runCtx, cmd)
	result := Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(started),
	}
	if cmd.ProcessState != nil {
		result.ExitCode = cmd.ProcessState.ExitCode()
	}

	if runErr == nil {
		r.logger.Debug("tool finished",
			logging.String(logging.FieldStage, stepName),
			logging.String("tool", filepath.Base(binary)),
			logging.Duration("duration", result.Duration),
		)
		return result, nil
	}

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return result, services.Wrap(services.ErrTimeout, stepName, filepath.Base(binary),
			fmt.Sprintf("tool exceeded its %s time limit", timeout), runErr)
	}
	if errors.Is(runErr, exec.ErrNotFound) {
		return result, services.Wrap(services.ErrToolMissing, stepName, filepath.Base(binary), "required tool is not installed", runErr)
	}

	sig := Classify(result.Stderr + "\n" + result.Stdout)
	detail := fmt.Errorf("exit code %d: %s", result.ExitCode, excerpt(result.Stderr, 400))
	return result, services.Wrap(sig.Marker, stepName, filepath.Base(binary), sig.UserMessage, detail)
}

// looksLikeManagedPath reports whether an argument should be treated as a
// filesystem path and routed through validation. Flags and bare values pass
// through unchanged.
func looksLikeManagedPath(arg string) bool {
	if arg == "" || strings.HasPrefix(arg, "-") {
		return false
	}
	if strings.ContainsRune(arg, filepath.Separator) {
		return true
	}
	ext := strings.ToLower(filepath.Ext(arg))
	switch ext {
	case gltf.Extension, ".bin", ".ktx2", ".webp", ".png", ".jpg", ".json":
		return true
	}
	return strings.Contains(arg, ".tmp.")
}

func excerpt(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

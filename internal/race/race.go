package race

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"glbopt/internal/analysis"
	"glbopt/internal/logging"
	"glbopt/internal/services"
)

// DefaultMaxWorkers caps parallel compression attempts. Each attempt drives
// an external tool process, so concurrency beyond a few workers only adds
// memory pressure.
const DefaultMaxWorkers = 3

// CompressFunc produces a compressed asset at outputPath using the given
// method. Implementations run the actual work in a child process.
type CompressFunc func(ctx context.Context, method analysis.Method, outputPath string) error

// Outcome describes one method's attempt.
type Outcome struct {
	Method    analysis.Method
	Path      string
	SizeBytes int64
	Elapsed   time.Duration
	Err       error
}

// Racer coordinates candidate compression methods.
type Racer struct {
	maxWorkers int
	timeout    time.Duration
	logger     *slog.Logger
}

// Options tune the racer.
type Options struct {
	// MaxWorkers bounds parallelism. Zero or negative uses DefaultMaxWorkers.
	MaxWorkers int
	// Timeout bounds the whole race. Zero disables the deadline.
	Timeout time.Duration
	Logger  *slog.Logger
}

// New constructs a racer.
func New(opts Options) *Racer {
	workers := opts.MaxWorkers
	if workers <= 0 {
		workers = DefaultMaxWorkers
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Racer{maxWorkers: workers, timeout: opts.Timeout, logger: logger}
}

// workerCount returns the pool size for the given number of candidates.
func (r *Racer) workerCount(candidates int) int {
	workers := runtime.NumCPU()
	if candidates < workers {
		workers = candidates
	}
	if r.maxWorkers < workers {
		workers = r.maxWorkers
	}
	if workers < 1 {
		workers = 1
	}
	return workers
}

// Run races the candidate methods and returns the winning outcome. Candidate
// outputs are written under scratchDir. Losing outputs are removed before
// returning. When every candidate fails, a final sequential meshopt attempt
// is made before giving up.
func (r *Racer) Run(ctx context.Context, methods []analysis.Method, scratchDir string, compress CompressFunc) (Outcome, error) {
	if len(methods) == 0 {
		return Outcome{}, services.Wrap(services.ErrValidation, "race", "run", "no candidate methods", nil)
	}
	if compress == nil {
		return Outcome{}, services.Wrap(services.ErrValidation, "race", "run", "no compress function", nil)
	}

	raceCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		raceCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	if len(methods) == 1 {
		outcome := r.attempt(raceCtx, methods[0], scratchDir, compress)
		if outcome.Err != nil {
			return Outcome{}, outcome.Err
		}
		return outcome, nil
	}

	outcomes := r.runPool(raceCtx, methods, scratchDir, compress)

	winner, ok := pickWinner(outcomes)
	for _, outcome := range outcomes {
		if outcome.Err == nil {
			r.logger.Debug("compression candidate finished",
				logging.String(logging.FieldMethod, string(outcome.Method)),
				logging.Int64("size_bytes", outcome.SizeBytes),
				logging.Duration("elapsed", outcome.Elapsed))
		} else {
			r.logger.Warn("compression candidate failed",
				logging.String(logging.FieldMethod, string(outcome.Method)),
				logging.Error(outcome.Err))
		}
	}
	if ok {
		removeLosers(outcomes, winner)
		return winner, nil
	}

	// Every parallel candidate failed. Try meshopt once, sequentially.
	r.logger.Warn("all compression candidates failed, retrying meshopt sequentially")
	removeLosers(outcomes, Outcome{})
	fallback := r.attempt(ctx, analysis.MethodMeshopt, scratchDir, compress)
	if fallback.Err != nil {
		return Outcome{}, services.Wrap(services.ErrExternalTool, "race", "run",
			"all compression methods failed", errors.Join(collectErrs(outcomes, fallback.Err)...))
	}
	return fallback, nil
}

func (r *Racer) runPool(ctx context.Context, methods []analysis.Method, scratchDir string, compress CompressFunc) []Outcome {
	workers := r.workerCount(len(methods))
	jobs := make(chan analysis.Method)
	results := make(chan Outcome, len(methods))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for method := range jobs {
				results <- r.attempt(ctx, method, scratchDir, compress)
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, method := range methods {
			select {
			case jobs <- method:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	// Collection order is completion order, which breaks size ties in
	// favor of the faster method.
	outcomes := make([]Outcome, 0, len(methods))
	for outcome := range results {
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}

func (r *Racer) attempt(ctx context.Context, method analysis.Method, scratchDir string, compress CompressFunc) Outcome {
	outputPath := candidatePath(scratchDir, method)
	start := time.Now()
	outcome := Outcome{Method: method, Path: outputPath}

	if err := ctx.Err(); err != nil {
		outcome.Err = services.Wrap(services.ErrTimeout, "race", string(method), "race deadline exceeded", err)
		return outcome
	}
	if err := compress(ctx, method, outputPath); err != nil {
		outcome.Err = err
		outcome.Elapsed = time.Since(start)
		_ = os.Remove(outputPath)
		return outcome
	}
	outcome.Elapsed = time.Since(start)

	info, err := os.Stat(outputPath)
	if err != nil {
		outcome.Err = services.Wrap(services.ErrIO, "race", string(method), "compressed output missing", err)
		return outcome
	}
	if info.Size() <= 0 {
		_ = os.Remove(outputPath)
		outcome.Err = services.Wrap(services.ErrExternalTool, "race", string(method), "compressed output is empty", nil)
		return outcome
	}
	outcome.SizeBytes = info.Size()
	return outcome
}

// pickWinner selects the strictly smallest successful outcome. Ties keep the
// outcome that completed first.
func pickWinner(outcomes []Outcome) (Outcome, bool) {
	var winner Outcome
	found := false
	for _, outcome := range outcomes {
		if outcome.Err != nil || outcome.SizeBytes <= 0 {
			continue
		}
		if !found || outcome.SizeBytes < winner.SizeBytes {
			winner = outcome
			found = true
		}
	}
	return winner, found
}

func removeLosers(outcomes []Outcome, winner Outcome) {
	for _, outcome := range outcomes {
		if outcome.Path == "" || outcome.Path == winner.Path {
			continue
		}
		_ = os.Remove(outcome.Path)
	}
}

func collectErrs(outcomes []Outcome, extra error) []error {
	errs := make([]error, 0, len(outcomes)+1)
	for _, outcome := range outcomes {
		if outcome.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", outcome.Method, outcome.Err))
		}
	}
	if extra != nil {
		errs = append(errs, extra)
	}
	return errs
}

func candidatePath(scratchDir string, method analysis.Method) string {
	name := fmt.Sprintf("%s-%s.glb.tmp.%d", method, uuid.NewString(), os.Getpid())
	return filepath.Join(scratchDir, name)
}

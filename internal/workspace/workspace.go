package workspace

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"glbopt/internal/config"
	"glbopt/internal/logging"
	"glbopt/internal/services"
)

const lockFileName = "glbopt.lock"

// Session owns the scratch space for one optimization run. Every
// intermediate artifact a run produces lives under Root so that a single
// RemoveAll reclaims it, success or failure.
type Session struct {
	RunID string
	Root  string

	lockPath string
	lock     *flock.Flock
	logger   *slog.Logger
	closed   bool
}

// Begin acquires the staging lock and creates a fresh run directory.
// The caller must Close the session to release both.
func Begin(cfg *config.Config, logger *slog.Logger) (*Session, error) {
	if cfg == nil {
		return nil, errors.New("workspace requires configuration")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	stagingDir := strings.TrimSpace(cfg.Paths.StagingDir)
	if stagingDir == "" {
		return nil, services.Wrap(services.ErrConfiguration, "workspace", "begin", "staging directory is not configured", nil)
	}
	if err := os.MkdirAll(stagingDir, 0o755); err != nil {
		return nil, services.Wrap(services.ErrIO, "workspace", "begin", "create staging directory", err)
	}

	lockPath := filepath.Join(stagingDir, lockFileName)
	lock := flock.New(lockPath)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, services.Wrap(services.ErrIO, "workspace", "begin", "acquire staging lock", err)
	}
	if !ok {
		return nil, services.Wrap(services.ErrConfiguration, "workspace", "begin", "another optimization run is already active", nil)
	}

	runID := uuid.NewString()
	root := filepath.Join(stagingDir, runID)
	if err := os.MkdirAll(root, 0o755); err != nil {
		_ = lock.Unlock()
		return nil, services.Wrap(services.ErrIO, "workspace", "begin", "create run directory", err)
	}

	logger.Debug("workspace session started",
		logging.String(logging.FieldRunID, runID),
		logging.String("staging_root", root))

	return &Session{
		RunID:    runID,
		Root:     root,
		lockPath: lockPath,
		lock:     lock,
		logger:   logger,
	}, nil
}

// Path joins the given elements under the session root.
func (s *Session) Path(parts ...string) string {
	return filepath.Join(append([]string{s.Root}, parts...)...)
}

// StagePath returns a scratch file path for the named stage. The ".tmp.<pid>"
// suffix marks the file as transient for path validation.
func (s *Session) StagePath(stage string) string {
	return filepath.Join(s.Root, fmt.Sprintf("%s.glb.tmp.%d", stage, os.Getpid()))
}

// Close removes the run directory and releases the staging lock. It is safe
// to call more than once.
func (s *Session) Close() error {
	if s == nil || s.closed {
		return nil
	}
	s.closed = true

	var firstErr error
	if err := os.RemoveAll(s.Root); err != nil {
		firstErr = fmt.Errorf("remove run directory: %w", err)
		s.logger.Warn("failed to remove run directory",
			logging.String(logging.FieldRunID, s.RunID),
			logging.Error(err))
	}
	if err := s.lock.Unlock(); err != nil {
		if firstErr == nil {
			firstErr = fmt.Errorf("release staging lock: %w", err)
		}
		s.logger.Warn("failed to release staging lock", logging.Error(err))
	}

	s.logger.Debug("workspace session closed", logging.String(logging.FieldRunID, s.RunID))
	return firstErr
}

package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Run is one recorded optimization.
type Run struct {
	ID                  int64
	RunID               string
	InputPath           string
	OutputPath          string
	Title               string
	Quality             string
	Success             bool
	OriginalSizeBytes   int64
	CompressedSizeBytes int64
	CompressionRatio    float64
	MethodsUsed         []string
	DegradedStages      []string
	ErrorMessage        string
	ErrorCategory       string
	Diagnostics         []string
	Duration            time.Duration
	CreatedAt           time.Time
}

const runColumns = `id, run_id, input_path, output_path, title, quality, success,
original_size_bytes, compressed_size_bytes, compression_ratio,
methods_used, degraded_stages, error_message, error_category,
diagnostics, duration_ms, created_at`

// Record inserts a finished run.
func (s *Store) Record(ctx context.Context, run *Run) error {
	if run == nil {
		return errors.New("nil run")
	}
	if strings.TrimSpace(run.RunID) == "" {
		return errors.New("run id is required")
	}
	createdAt := run.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	res, err := s.execWithRetry(ctx, `INSERT INTO runs (
run_id, input_path, output_path, title, quality, success,
original_size_bytes, compressed_size_bytes, compression_ratio,
methods_used, degraded_stages, error_message, error_category,
diagnostics, duration_ms, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, run.InputPath, run.OutputPath, run.Title, run.Quality, boolToInt(run.Success),
		run.OriginalSizeBytes, run.CompressedSizeBytes, run.CompressionRatio,
		strings.Join(run.MethodsUsed, ","), strings.Join(run.DegradedStages, ","),
		run.ErrorMessage, run.ErrorCategory,
		strings.Join(run.Diagnostics, "\n"),
		run.Duration.Milliseconds(), createdAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	if id, idErr := res.LastInsertId(); idErr == nil {
		run.ID = id
	}
	run.CreatedAt = createdAt
	return nil
}

// List returns runs in reverse chronological order, newest first. A limit of
// zero or less returns everything.
func (s *Store) List(ctx context.Context, limit int) ([]Run, error) {
	ctx = ensureContext(ctx)
	query := fmt.Sprintf("SELECT %s FROM runs ORDER BY id DESC", runColumns)
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetByRunID fetches one run by its uuid. A unique prefix also matches so
// the shortened ids shown in listings can be pasted back.
func (s *Store) GetByRunID(ctx context.Context, runID string) (*Run, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT %s FROM runs WHERE run_id = ? OR run_id LIKE ? ESCAPE '\' ORDER BY id DESC LIMIT 1`, runColumns),
		runID, escapeLike(runID)+"%")
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// Prune deletes the oldest runs beyond keep. A keep of zero or less is a
// no-op.
func (s *Store) Prune(ctx context.Context, keep int) (int64, error) {
	if keep <= 0 {
		return 0, nil
	}
	res, err := s.execWithRetry(ctx,
		"DELETE FROM runs WHERE id NOT IN (SELECT id FROM runs ORDER BY id DESC LIMIT ?)", keep)
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var (
		run         Run
		success     int
		methods     string
		degraded    string
		diagnostics string
		durationMS  int64
		createdAt   string
	)
	err := row.Scan(&run.ID, &run.RunID, &run.InputPath, &run.OutputPath, &run.Title, &run.Quality, &success,
		&run.OriginalSizeBytes, &run.CompressedSizeBytes, &run.CompressionRatio,
		&methods, &degraded, &run.ErrorMessage, &run.ErrorCategory,
		&diagnostics, &durationMS, &createdAt)
	if err != nil {
		return Run{}, err
	}
	run.Success = success != 0
	run.MethodsUsed = splitList(methods)
	run.DegradedStages = splitList(degraded)
	run.Diagnostics = splitLines(diagnostics)
	run.Duration = time.Duration(durationMS) * time.Millisecond
	if ts, parseErr := time.Parse(time.RFC3339Nano, createdAt); parseErr == nil {
		run.CreatedAt = ts
	}
	return run, nil
}

func escapeLike(value string) string {
	replacer := strings.NewReplacer("%", `\%`, "_", `\_`)
	return replacer.Replace(value)
}

func splitLines(value string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return strings.Split(value, "\n")
}

func splitList(value string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return strings.Split(value, ",")
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"aum/internal/config"
	"aum/internal/services"
	"aum/internal/unlock"
)

// Run statuses.
const (
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
)

// ErrNotFound is returned when a run ID is unknown.
var ErrNotFound = errors.New("run not found")

// Run is one recorded batch.
type Run struct {
	ID          string
	Environment string
	Status      string
	StartedAt   time.Time
	FinishedAt  time.Time
	FilesTotal  int
	Succeeded   int
	Failed      int
	TimedOut    int
	Removed     int
	Error       string
}

// JobRecord is one recorded unlock attempt.
type JobRecord struct {
	RunID      string
	Position   int
	FileName   string
	FilePath   string
	State      string
	Reason     string
	Error      string
	Artifact   string
	Target     string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Store persists run history backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// NewRunID returns a fresh batch identifier.
func NewRunID() string {
	return uuid.NewString()
}

// Open connects to the history database under the configured state directory.
func Open(cfg *config.Config) (*Store, error) {
	return OpenPath(cfg.HistoryPath())
}

// OpenPath initializes or connects to the database at path.
func OpenPath(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure state directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// StartRun records the beginning of a batch.
func (s *Store) StartRun(ctx context.Context, id, environment string, files int, startedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, environment, status, started_at, files_total) VALUES (?, ?, ?, ?, ?)`,
		id, environment, RunRunning, formatTime(startedAt), files,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// RecordJob stores a terminal job. The job position is taken from ctx when present.
func (s *Store) RecordJob(ctx context.Context, runID string, job unlock.Job) error {
	position := 0
	if index, _, ok := services.JobPositionFromContext(ctx); ok {
		position = index
	}
	var errText string
	if job.Err != nil {
		errText = job.Err.Error()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (
            run_id, position, file_name, file_path, state, reason, error,
            artifact, target, started_at, finished_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID,
		position,
		job.File.Name,
		job.File.Path,
		string(job.State),
		nullableString(job.Reason()),
		nullableString(errText),
		nullableString(job.Artifact.Path),
		nullableString(job.Target),
		formatTime(job.StartedAt),
		nullableTime(job.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// FinishRun stores the final counts of a batch. A non-nil runErr marks the run failed.
func (s *Store) FinishRun(ctx context.Context, report unlock.Report, removed int, runErr error) error {
	succeeded, failed, timedOut := report.Counts()
	status := RunCompleted
	var errText string
	if runErr != nil {
		status = RunFailed
		errText = runErr.Error()
	}
	finished := report.FinishedAt
	if finished.IsZero() {
		finished = time.Now()
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, finished_at = ?, succeeded = ?, failed = ?, timed_out = ?,
            removed = ?, error = ? WHERE id = ?`,
		status, formatTime(finished), succeeded, failed, timedOut, removed, nullableString(errText), report.RunID,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, report.RunID)
	}
	return nil
}

// ListRuns returns the most recent runs first, at most limit (0 means all).
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	query := `SELECT id, environment, status, started_at, finished_at, files_total,
        succeeded, failed, timed_out, removed, error FROM runs ORDER BY started_at DESC, id`
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

// GetRun returns a run by ID.
func (s *Store) GetRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, environment, status, started_at, finished_at, files_total,
        succeeded, failed, timed_out, removed, error FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return run, err
}

// Jobs returns the jobs recorded for runID in batch order.
func (s *Store) Jobs(ctx context.Context, runID string) ([]JobRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT run_id, position, file_name, file_path, state, reason, error,
        artifact, target, started_at, finished_at FROM jobs WHERE run_id = ? ORDER BY position, id`, runID)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []JobRecord
	for rows.Next() {
		var (
			rec                               JobRecord
			reason, errText, artifact, target sql.NullString
			started                           string
			finished                          sql.NullString
		)
		if err := rows.Scan(&rec.RunID, &rec.Position, &rec.FileName, &rec.FilePath, &rec.State,
			&reason, &errText, &artifact, &target, &started, &finished); err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		rec.Reason = reason.String
		rec.Error = errText.String
		rec.Artifact = artifact.String
		rec.Target = target.String
		rec.StartedAt = parseTime(started)
		rec.FinishedAt = parseTime(finished.String)
		jobs = append(jobs, rec)
	}
	return jobs, rows.Err()
}

// Prune deletes all but the newest keep runs and their jobs.
func (s *Store) Prune(ctx context.Context, keep int) (int64, error) {
	if keep <= 0 {
		return 0, nil
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM runs WHERE id NOT IN (SELECT id FROM runs ORDER BY started_at DESC LIMIT ?)`, keep)
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
		run      Run
		started  string
		finished sql.NullString
		errText  sql.NullString
	)
	if err := row.Scan(&run.ID, &run.Environment, &run.Status, &started, &finished, &run.FilesTotal,
		&run.Succeeded, &run.Failed, &run.TimedOut, &run.Removed, &errText); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	run.StartedAt = parseTime(started)
	run.FinishedAt = parseTime(finished.String)
	run.Error = errText.String
	return run, nil
}

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return formatTime(t)
}

func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/cwygoda/ytaudio/internal/domain"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    id          TEXT PRIMARY KEY,
    started_at  DATETIME NOT NULL,
    finished_at DATETIME,
    total       INTEGER NOT NULL DEFAULT 0,
    successful  INTEGER NOT NULL DEFAULT 0,
    failed      INTEGER NOT NULL DEFAULT 0,
    cancelled   INTEGER NOT NULL DEFAULT 0,
    skipped     INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS downloads (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id      TEXT NOT NULL REFERENCES runs(id),
    url         TEXT NOT NULL,
    url_key     TEXT NOT NULL,
    status      TEXT NOT NULL,
    retry_count INTEGER NOT NULL DEFAULT 0,
    error       TEXT,
    output_path TEXT,
    title       TEXT,
    finished_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_downloads_key ON downloads(url_key, status);
`

// Repository implements domain.HistoryRepository using SQLite.
type Repository struct {
	db  *sql.DB
	now func() time.Time
}

// New opens the history database, initializing the schema if needed.
func New(dbPath string) (*Repository, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// Workers record concurrently; a single connection serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	return &Repository{db: db, now: time.Now}, nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

// StartRun inserts a run row.
func (r *Repository) StartRun(ctx context.Context, runID string, total int) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, total) VALUES (?, ?, ?)`,
		runID, r.now().UTC(), total,
	)
	return err
}

// RecordJob stores the terminal snapshot of one job.
func (r *Repository) RecordJob(ctx context.Context, runID, key string, job domain.JobSnapshot) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO downloads (run_id, url, url_key, status, retry_count, error, output_path, title, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, job.URL, key, string(job.Status), job.RetryCount,
		nullString(job.Error), nullString(job.OutputPath), nullString(job.Title), r.now().UTC(),
	)
	return err
}

// FinishRun writes the final counters of a run.
func (r *Repository) FinishRun(ctx context.Context, s domain.RunSummary) error {
	finished := s.FinishedAt
	if finished.IsZero() {
		finished = r.now()
	}
	result, err := r.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, total = ?, successful = ?, failed = ?, cancelled = ?, skipped = ?
		 WHERE id = ?`,
		finished.UTC(), s.Total, s.Successful, s.Failed, s.Cancelled, s.Skipped, s.ID,
	)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// FindCompleted returns the newest output path recorded as complete for key.
func (r *Repository) FindCompleted(ctx context.Context, key string) (string, error) {
	var path string
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(output_path, '') FROM downloads
		 WHERE url_key = ? AND status = ?
		 ORDER BY finished_at DESC, id DESC LIMIT 1`,
		key, string(domain.StatusComplete),
	).Scan(&path)
	if errors.Is(err, sql.ErrNoRows) {
		return "", domain.ErrNotFound
	}
	return path, err
}

// RecentRuns returns up to limit runs, newest first.
func (r *Repository) RecentRuns(ctx context.Context, limit int) ([]domain.RunSummary, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, started_at, finished_at, total, successful, failed, cancelled, skipped
		 FROM runs ORDER BY started_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []domain.RunSummary
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (domain.RunSummary, error) {
	var run domain.RunSummary
	var finished sql.NullTime
	err := row.Scan(&run.ID, &run.StartedAt, &finished,
		&run.Total, &run.Successful, &run.Failed, &run.Cancelled, &run.Skipped)
	if err != nil {
		return domain.RunSummary{}, err
	}
	if finished.Valid {
		run.FinishedAt = finished.Time
	}
	return run, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Status is the lifecycle state of a batch job.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusStopped   Status = "stopped"
	StatusFailed    Status = "failed"
)

// Terminal reports whether the status ends a job.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusStopped, StatusFailed:
		return true
	}
	return false
}

// InterruptedReason is recorded on jobs found running when no process owns them.
const InterruptedReason = "vidscribe exited before the batch finished"

// JobRecord is the persisted summary of one batch job.
type JobRecord struct {
	ID                string     `json:"id"`
	Status            Status     `json:"status"`
	Model             string     `json:"model"`
	Format            string     `json:"format"`
	OutputDir         string     `json:"outputDir"`
	Files             []string   `json:"files"`
	Total             int        `json:"total"`
	Processed         int        `json:"processed"`
	FailedFiles       []string   `json:"failedFiles,omitempty"`
	LastError         string     `json:"lastError,omitempty"`
	CancelRequestedAt *time.Time `json:"cancelRequestedAt,omitempty"`
	StartedAt         time.Time  `json:"startedAt"`
	FinishedAt        *time.Time `json:"finishedAt,omitempty"`
}

// Elapsed returns the run time so far, or the total once finished.
func (r JobRecord) Elapsed(now time.Time) time.Duration {
	end := now
	if r.FinishedAt != nil {
		end = *r.FinishedAt
	}
	if r.StartedAt.IsZero() || end.Before(r.StartedAt) {
		return 0
	}
	return end.Sub(r.StartedAt)
}

const jobColumns = "id, status, model, format, output_dir, files_json, total, processed, failed_files_json, last_error, cancel_requested_at, started_at, finished_at"

// SaveJob inserts or replaces a job record.
func (s *Store) SaveJob(ctx context.Context, rec JobRecord) error {
	if rec.ID == "" {
		return errors.New("save job: id is required")
	}
	files, err := json.Marshal(nonNil(rec.Files))
	if err != nil {
		return fmt.Errorf("marshal files: %w", err)
	}
	failed, err := json.Marshal(nonNil(rec.FailedFiles))
	if err != nil {
		return fmt.Errorf("marshal failed files: %w", err)
	}
	if rec.StartedAt.IsZero() {
		rec.StartedAt = time.Now().UTC()
	}
	err = s.exec(ctx,
		`INSERT INTO jobs (`+jobColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            status = excluded.status,
            total = excluded.total,
            processed = excluded.processed,
            failed_files_json = excluded.failed_files_json,
            last_error = excluded.last_error,
            cancel_requested_at = excluded.cancel_requested_at,
            finished_at = excluded.finished_at`,
		rec.ID,
		string(rec.Status),
		rec.Model,
		rec.Format,
		rec.OutputDir,
		string(files),
		rec.Total,
		rec.Processed,
		string(failed),
		nullableString(rec.LastError),
		nullableTime(rec.CancelRequestedAt),
		rec.StartedAt.UTC().Format(timeLayout),
		nullableTime(rec.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("save job %s: %w", rec.ID, err)
	}
	return nil
}

// GetJob returns a job by id, or nil when it does not exist.
func (s *Store) GetJob(ctx context.Context, id string) (*JobRecord, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), "SELECT "+jobColumns+" FROM jobs WHERE id = ?", id)
	rec, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	return rec, nil
}

// ListJobs returns the most recent jobs first. limit <= 0 returns all.
func (s *Store) ListJobs(ctx context.Context, limit int) ([]JobRecord, error) {
	query := "SELECT " + jobColumns + " FROM jobs ORDER BY started_at DESC"
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var out []JobRecord
	for rows.Next() {
		rec, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// ReconcileInterrupted marks jobs still recorded as running as failed. Call it
// only while holding the batch lock, when no live process can own them.
func (s *Store) ReconcileInterrupted(ctx context.Context) (int64, error) {
	now := time.Now().UTC().Format(timeLayout)
	var affected int64
	err := retryOnBusy(ensureContext(ctx), func() error {
		res, err := s.db.ExecContext(ensureContext(ctx),
			"UPDATE jobs SET status = ?, last_error = COALESCE(last_error, ?), finished_at = ? WHERE status = ?",
			string(StatusFailed), InterruptedReason, now, string(StatusRunning),
		)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("reconcile interrupted jobs: %w", err)
	}
	return affected, nil
}

func scanJob(scanner interface{ Scan(dest ...any) error }) (*JobRecord, error) {
	var (
		rec        JobRecord
		status     string
		filesRaw   string
		failedRaw  string
		lastError  sql.NullString
		cancelRaw  sql.NullString
		startedRaw string
		finishRaw  sql.NullString
	)
	if err := scanner.Scan(
		&rec.ID,
		&status,
		&rec.Model,
		&rec.Format,
		&rec.OutputDir,
		&filesRaw,
		&rec.Total,
		&rec.Processed,
		&failedRaw,
		&lastError,
		&cancelRaw,
		&startedRaw,
		&finishRaw,
	); err != nil {
		return nil, err
	}
	rec.Status = Status(status)
	rec.LastError = lastError.String
	if err := json.Unmarshal([]byte(filesRaw), &rec.Files); err != nil {
		return nil, fmt.Errorf("decode files: %w", err)
	}
	if err := json.Unmarshal([]byte(failedRaw), &rec.FailedFiles); err != nil {
		return nil, fmt.Errorf("decode failed files: %w", err)
	}
	rec.StartedAt = parseTime(startedRaw)
	rec.CancelRequestedAt = parseNullableTime(cancelRaw)
	rec.FinishedAt = parseNullableTime(finishRaw)
	return &rec, nil
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(raw string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

func parseNullableTime(raw sql.NullString) *time.Time {
	if !raw.Valid || raw.String == "" {
		return nil
	}
	t := parseTime(raw.String)
	if t.IsZero() {
		return nil
	}
	return &t
}

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

package state

import (
	"context"
	"fmt"
	"time"
)

// Job outcomes recorded in the ledger.
const (
	OutcomeCompleted           = "completed"
	OutcomeCompletedWithErrors = "completed_with_errors"
	OutcomeFailed              = "failed"
	OutcomeEmpty               = "empty"
	OutcomeCanceled            = "canceled"
)

// defaultJobLimit caps RecentJobs when the caller passes no limit.
const defaultJobLimit = 20

const (
	sqlInsertJob = `INSERT INTO jobs
		(id, user_id, chat_id, link, total, succeeded, failed, outcome, error_msg, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	sqlSelectJobs = `SELECT id, user_id, chat_id, link, total, succeeded, failed, outcome, error_msg,
		started_at, finished_at FROM jobs`
)

// JobRecord is one finished transfer job.
type JobRecord struct {
	ID         string
	UserID     string
	ChatID     int64
	Link       string
	Total      int
	Succeeded  int
	Failed     int
	Outcome    string
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Duration returns how long the job ran.
func (j *JobRecord) Duration() time.Duration {
	return j.FinishedAt.Sub(j.StartedAt)
}

// RecordJob appends a finished job to the ledger.
func (d *DB) RecordJob(ctx context.Context, j *JobRecord) error {
	_, err := d.db.ExecContext(ctx, sqlInsertJob,
		j.ID, j.UserID, j.ChatID, j.Link, j.Total, j.Succeeded, j.Failed, j.Outcome, j.Error,
		j.StartedAt.UnixMilli(), j.FinishedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("state: recording job %s: %w", j.ID, err)
	}

	return nil
}

// RecentJobs returns the newest jobs first. An empty userID returns jobs of
// every user.
func (d *DB) RecentJobs(ctx context.Context, userID string, limit int) ([]JobRecord, error) {
	if limit <= 0 {
		limit = defaultJobLimit
	}

	query := sqlSelectJobs
	args := []any{}

	if userID != "" {
		query += ` WHERE user_id = ?`
		args = append(args, userID)
	}

	query += ` ORDER BY started_at DESC, id LIMIT ?`
	args = append(args, limit)

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("state: querying jobs: %w", err)
	}
	defer rows.Close()

	var jobs []JobRecord

	for rows.Next() {
		var (
			j                 JobRecord
			started, finished int64
		)

		if err := rows.Scan(&j.ID, &j.UserID, &j.ChatID, &j.Link, &j.Total, &j.Succeeded, &j.Failed,
			&j.Outcome, &j.Error, &started, &finished); err != nil {
			return nil, fmt.Errorf("state: scanning job row: %w", err)
		}

		j.StartedAt = time.UnixMilli(started)
		j.FinishedAt = time.UnixMilli(finished)
		jobs = append(jobs, j)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("state: iterating job rows: %w", err)
	}

	return jobs, nil
}

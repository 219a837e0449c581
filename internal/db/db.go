package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/rs/xid"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
    id           TEXT PRIMARY KEY,
    tool_name    TEXT NOT NULL,
    arguments    TEXT NOT NULL DEFAULT '{}',
    request_id   TEXT NOT NULL DEFAULT '',
    status       TEXT NOT NULL DEFAULT 'pending'
        CHECK (status IN ('pending', 'in_progress', 'completed', 'failed', 'cancelled')),
    result       TEXT,
    error        TEXT,
    attempts     INTEGER NOT NULL DEFAULT 0,
    created_at   TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now')),
    started_at   TEXT,
    completed_at TEXT,
    updated_at   TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
);
CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
CREATE INDEX IF NOT EXISTS idx_jobs_tool ON jobs(tool_name);
CREATE INDEX IF NOT EXISTS idx_jobs_status_created ON jobs(status, created_at);
`

const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusCancelled  = "cancelled"
)

const now = `strftime('%Y-%m-%dT%H:%M:%fZ', 'now')`

// Job is one background tool call.
type Job struct {
	ID          string  `db:"id" json:"id"`
	ToolName    string  `db:"tool_name" json:"tool_name"`
	Arguments   string  `db:"arguments" json:"arguments"`
	RequestID   string  `db:"request_id" json:"request_id"`
	Status      string  `db:"status" json:"status"`
	Result      *string `db:"result" json:"result,omitempty"`
	Error       *string `db:"error" json:"error,omitempty"`
	Attempts    int     `db:"attempts" json:"attempts"`
	CreatedAt   string  `db:"created_at" json:"created_at"`
	StartedAt   *string `db:"started_at" json:"started_at,omitempty"`
	CompletedAt *string `db:"completed_at" json:"completed_at,omitempty"`
	UpdatedAt   string  `db:"updated_at" json:"updated_at"`
}

type ListOpts struct {
	Status   *string
	ToolName *string
	Limit    int
}

func InitDB(path string) (*sqlx.DB, error) {
	conn, err := sqlx.Connect("sqlite",
		path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	conn.SetMaxOpenConns(1)
	if _, err = conn.ExecContext(context.Background(), schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return conn, nil
}

func NewJobID() string {
	return "job_" + xid.New().String()
}

func InsertJob(ctx context.Context, db *sqlx.DB, j *Job) error {
	_, err := db.NamedExecContext(ctx,
		`INSERT INTO jobs (id, tool_name, arguments, request_id)
         VALUES (:id, :tool_name, :arguments, :request_id)`,
		j,
	)
	return err
}

func QueryJobs(ctx context.Context, db *sqlx.DB, opts ListOpts) ([]Job, error) {
	query := "SELECT * FROM jobs WHERE 1=1"
	args := make(map[string]any)

	if opts.Status != nil {
		query += " AND status = :status"
		args["status"] = *opts.Status
	}

	if opts.ToolName != nil {
		query += " AND tool_name = :tool_name"
		args["tool_name"] = *opts.ToolName
	}

	query += " ORDER BY created_at DESC, id DESC"

	if opts.Limit > 0 {
		query += " LIMIT :limit"
		args["limit"] = opts.Limit
	}

	jobs := []Job{}
	rows, err := db.NamedQueryContext(ctx, query, args)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var j Job
		if err := rows.StructScan(&j); err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func GetJob(ctx context.Context, db *sqlx.DB, id string) (*Job, error) {
	var j Job
	err := db.GetContext(ctx, &j, "SELECT * FROM jobs WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

// ClaimNextJob moves the oldest pending job to in_progress and returns it.
// Returns sql.ErrNoRows when nothing is pending.
func ClaimNextJob(ctx context.Context, db *sqlx.DB) (*Job, error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var j Job
	err = tx.GetContext(ctx, &j,
		`SELECT * FROM jobs WHERE status = 'pending'
         ORDER BY created_at ASC, id ASC LIMIT 1`)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE jobs SET status = 'in_progress', attempts = attempts + 1,
         started_at = `+now+`, updated_at = `+now+`
         WHERE id = ?`, j.ID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	j.Status = StatusInProgress
	j.Attempts++
	return &j, nil
}

func CompleteJob(ctx context.Context, db *sqlx.DB, id, result string) error {
	return finishJob(ctx, db, id, StatusCompleted, "result", result)
}

func FailJob(ctx context.Context, db *sqlx.DB, id, msg string) error {
	return finishJob(ctx, db, id, StatusFailed, "error", msg)
}

func finishJob(ctx context.Context, db *sqlx.DB, id, status, column, value string) error {
	result, err := db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, `+column+` = ?,
         completed_at = `+now+`, updated_at = `+now+`
         WHERE id = ? AND status = 'in_progress'`,
		status, value, id)
	if err != nil {
		return err
	}
	return expectRow(result)
}

// CancelJob cancels a job that has not started yet.
// Returns sql.ErrNoRows if the job does not exist or is no longer pending.
func CancelJob(ctx context.Context, db *sqlx.DB, id string) error {
	result, err := db.ExecContext(ctx,
		`UPDATE jobs SET status = 'cancelled', completed_at = `+now+`, updated_at = `+now+`
         WHERE id = ? AND status = 'pending'`, id)
	if err != nil {
		return err
	}
	return expectRow(result)
}

func DeleteJob(ctx context.Context, db *sqlx.DB, id string) error {
	result, err := db.ExecContext(ctx, "DELETE FROM jobs WHERE id = ?", id)
	if err != nil {
		return err
	}
	return expectRow(result)
}

// ResetInProgress puts jobs left in_progress by a previous process back in
// the queue.
func ResetInProgress(ctx context.Context, db *sqlx.DB) (int64, error) {
	result, err := db.ExecContext(ctx,
		`UPDATE jobs SET status = 'pending', started_at = NULL, updated_at = `+now+`
         WHERE status = 'in_progress'`)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func JobExists(ctx context.Context, db *sqlx.DB, id string) (bool, error) {
	var exists bool
	err := db.GetContext(ctx, &exists, "SELECT EXISTS(SELECT 1 FROM jobs WHERE id = ?)", id)
	return exists, err
}

func expectRow(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Package jobs runs tool calls in the background. Submitted calls are stored
// in sqlite and picked up by a fixed pool of workers.
package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"golang.org/x/sync/errgroup"

	"procdexeh/mcpcore/internal/db"
	"procdexeh/mcpcore/internal/mcp"
)

var (
	ErrJobNotFound   = errors.New("job not found")
	ErrJobNotPending = errors.New("job is no longer pending")
	ErrJobActive     = errors.New("job has not finished")
)

const (
	DefaultWorkers      = 2
	DefaultPollInterval = time.Second
)

// Executor runs a tool by name. *mcp.Registry satisfies it.
type Executor interface {
	Execute(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResponse, error)
}

type Config struct {
	DB           *sqlx.DB
	Executor     Executor
	Logger       *slog.Logger
	Workers      int
	PollInterval time.Duration

	// AppContext is attached to every job's context, as mcp.Server does
	// for inline calls.
	AppContext any
}

// Queue implements mcp.TaskRunner.
type Queue struct {
	db           *sqlx.DB
	exec         Executor
	logger       *slog.Logger
	workers      int
	pollInterval time.Duration
	appContext   any
	wake         chan struct{}
}

func New(cfg Config) (*Queue, error) {
	if cfg.DB == nil {
		return nil, errors.New("database is required")
	}
	if cfg.Executor == nil {
		return nil, errors.New("executor is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	return &Queue{
		db:           cfg.DB,
		exec:         cfg.Executor,
		logger:       logger,
		workers:      workers,
		pollInterval: poll,
		appContext:   cfg.AppContext,
		wake:         make(chan struct{}, 1),
	}, nil
}

// Submit stores a tool call and returns its job id.
func (q *Queue) Submit(ctx context.Context, req mcp.ToolExecutionRequest) (string, error) {
	args := req.Args
	if args == nil {
		args = map[string]any{}
	}
	data, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("encode arguments: %w", err)
	}

	job := &db.Job{
		ID:        db.NewJobID(),
		ToolName:  req.ToolName,
		Arguments: string(data),
		RequestID: req.RequestID,
	}
	if err := db.InsertJob(ctx, q.db, job); err != nil {
		return "", fmt.Errorf("insert job: %w", err)
	}

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return job.ID, nil
}

func (q *Queue) Get(ctx context.Context, id string) (*db.Job, error) {
	job, err := db.GetJob(ctx, q.db, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

func (q *Queue) List(ctx context.Context, opts db.ListOpts) ([]db.Job, error) {
	jobs, err := db.QueryJobs(ctx, q.db, opts)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	return jobs, nil
}

// Cancel stops a job that has not been picked up yet.
func (q *Queue) Cancel(ctx context.Context, id string) error {
	err := db.CancelJob(ctx, q.db, id)
	if errors.Is(err, sql.ErrNoRows) {
		exists, existsErr := db.JobExists(ctx, q.db, id)
		if existsErr != nil {
			return fmt.Errorf("cancel job: %w", existsErr)
		}
		if !exists {
			return fmt.Errorf("%w: %s", ErrJobNotFound, id)
		}
		return fmt.Errorf("%w: %s", ErrJobNotPending, id)
	}
	if err != nil {
		return fmt.Errorf("cancel job: %w", err)
	}
	return nil
}

// Delete removes a job that has finished. Pending and running jobs are kept;
// cancel them first.
func (q *Queue) Delete(ctx context.Context, id string) error {
	job, err := q.Get(ctx, id)
	if err != nil {
		return err
	}
	if job.Status == db.StatusPending || job.Status == db.StatusInProgress {
		return fmt.Errorf("%w: %s is %s", ErrJobActive, id, job.Status)
	}
	if err := db.DeleteJob(ctx, q.db, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s", ErrJobNotFound, id)
		}
		return fmt.Errorf("delete job: %w", err)
	}
	return nil
}

// Run starts the workers and blocks until ctx is done.
func (q *Queue) Run(ctx context.Context) error {
	n, err := db.ResetInProgress(ctx, q.db)
	if err != nil {
		return fmt.Errorf("reset in-progress jobs: %w", err)
	}
	if n > 0 {
		q.logger.Warn("requeued interrupted jobs", "count", n)
	}

	q.logger.Info("job workers starting", "workers", q.workers)

	g, gctx := errgroup.WithContext(ctx)
	for i := range q.workers {
		g.Go(func() error { return q.work(gctx, i) })
	}
	return g.Wait()
}

func (q *Queue) work(ctx context.Context, worker int) error {
	ticker := time.NewTicker(q.pollInterval)
	defer ticker.Stop()

	for {
		for ctx.Err() == nil {
			job, err := db.ClaimNextJob(ctx, q.db)
			if errors.Is(err, sql.ErrNoRows) {
				break
			}
			if err != nil {
				if ctx.Err() == nil {
					q.logger.Error("claim job", "worker", worker, "error", err)
				}
				break
			}
			q.perform(ctx, worker, job)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case <-q.wake:
		}
	}
}

// perform runs one job and records its outcome. Store writes are detached
// from ctx so a shutdown mid-job still records the result.
func (q *Queue) perform(ctx context.Context, worker int, job *db.Job) {
	logger := q.logger.With("job_id", job.ID, "tool", job.ToolName, "worker", worker)
	store := context.WithoutCancel(ctx)
	start := time.Now()

	var args map[string]any
	if err := json.Unmarshal([]byte(job.Arguments), &args); err != nil {
		logger.Error("decode job arguments", "error", err)
		if err := db.FailJob(store, q.db, job.ID, "invalid arguments: "+err.Error()); err != nil {
			logger.Error("record job failure", "error", err)
		}
		return
	}

	if q.appContext != nil {
		ctx = mcp.WithAppContext(ctx, q.appContext)
	}
	resp, err := q.exec.Execute(ctx, job.ToolName, args)
	if err != nil {
		logger.Warn("job failed", "elapsed", time.Since(start), "error", err)
		if err := db.FailJob(store, q.db, job.ID, err.Error()); err != nil {
			logger.Error("record job failure", "error", err)
		}
		return
	}

	data, err := json.Marshal(resp)
	if err != nil {
		logger.Error("encode job result", "error", err)
		if err := db.FailJob(store, q.db, job.ID, "encode result: "+err.Error()); err != nil {
			logger.Error("record job failure", "error", err)
		}
		return
	}
	if err := db.CompleteJob(store, q.db, job.ID, string(data)); err != nil {
		logger.Error("record job result", "error", err)
		return
	}
	logger.Info("job completed", "elapsed", time.Since(start))
}

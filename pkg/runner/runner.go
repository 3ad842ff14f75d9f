// Package runner executes retrieval jobs across a bounded worker pool.
//
// Each job invokes the external retrieval program once per attempt, bounded
// by the job's per-attempt timeout. A timed-out attempt kills the process
// and is retried up to the job's retry budget; any other failure terminates
// the job immediately. Timeouts are the only condition retry can fix: a
// stuck archive request usually succeeds when resubmitted, while a non-zero
// exit reflects a problem resubmission cannot cure.
//
// Jobs are independent by construction (disjoint date chunks, disjoint
// output directories), so one job's failure never cancels its siblings.
package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/stormpetrel/metfetch/pkg/chunk"
	"github.com/stormpetrel/metfetch/pkg/marker"
	"github.com/stormpetrel/metfetch/pkg/plan"
	"github.com/stormpetrel/metfetch/pkg/runstate"
)

// Config configures runner behavior.
type Config struct {
	// Workers is the number of jobs allowed to run concurrently.
	// Default: 4
	Workers int

	// LaunchRate is the maximum external process launches per second,
	// across all workers. Zero means unlimited. Useful to avoid hammering
	// the archive service with simultaneous requests.
	// Default: 0
	LaunchRate float64
}

// DefaultConfig returns the default runner configuration.
func DefaultConfig() Config {
	return Config{
		Workers:    4,
		LaunchRate: 0,
	}
}

// Runner executes a batch of retrieval jobs.
//
// Runner is safe for single use only. Create a new Runner for each batch.
type Runner struct {
	config  Config
	store   *runstate.Store
	logger  *zap.Logger
	limiter *rate.Limiter
}

// New creates a runner.
func New(cfg Config) *Runner {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultConfig().Workers
	}

	r := &Runner{
		config: cfg,
		logger: zap.NewNop(),
	}
	if cfg.LaunchRate > 0 {
		r.limiter = rate.NewLimiter(rate.Limit(cfg.LaunchRate), 1)
	}
	return r
}

// WithStore sets an optional run-record store. Record writes are best
// effort and never affect job outcomes.
// Returns the runner for method chaining.
func (r *Runner) WithStore(s *runstate.Store) *Runner {
	r.store = s
	return r
}

// WithLogger sets the logger. Returns the runner for method chaining.
func (r *Runner) WithLogger(l *zap.Logger) *Runner {
	r.logger = l
	return r
}

// Run executes all jobs under the concurrency limit and returns one Result
// per job, in submission order (not completion order).
//
// Exactly Workers jobs may be invoking the external program at any instant;
// the rest queue until a slot frees. A worker owns its job through all
// retries before taking another. Run blocks until every job has a result.
//
// Cancelling the context stops launching new attempts; jobs that never ran
// are reported failed with a cancellation message.
func (r *Runner) Run(ctx context.Context, jobs []plan.Job) []Result {
	results := make([]Result, len(jobs))

	sem := make(chan struct{}, r.config.Workers)
	var wg sync.WaitGroup

	for i, job := range jobs {
		select {
		case <-ctx.Done():
		case sem <- struct{}{}:
		}

		if ctx.Err() != nil {
			results[i] = Result{ID: job.ID, Outcome: OutcomeFailed, Message: "run cancelled before start"}
			continue
		}

		wg.Add(1)
		go func(i int, job plan.Job) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = r.runJob(ctx, job)
		}(i, job)
	}

	wg.Wait()
	return results
}

// runJob drives one job through its attempt sequence to a terminal result.
func (r *Runner) runJob(ctx context.Context, job plan.Job) Result {
	// Double-check the marker: planning filters completed jobs, but a
	// sibling invocation may have finished this chunk since then.
	if marker.IsDone(job.OutputDir) {
		return Result{ID: job.ID, Outcome: OutcomeSkipped, Message: "completion marker present"}
	}

	rec := &runstate.Record{
		JobID:       job.ID,
		RunID:       uuid.New().String(),
		State:       runstate.StateQueued,
		StartDate:   job.Range.Start.Format(chunk.DateLayout),
		EndDate:     job.Range.End.Format(chunk.DateLayout),
		ControlFile: job.ControlFile,
		LogPath:     job.LogPath,
		CreatedAt:   time.Now().UTC(),
	}
	r.writeRecord(rec)

	logFile, err := os.Create(job.LogPath)
	if err != nil {
		return r.finish(rec, Result{
			ID:      job.ID,
			Outcome: OutcomeFailed,
			Message: fmt.Sprintf("create job log: %v", err),
		})
	}
	defer func() { _ = logFile.Close() }()

	now := time.Now().UTC()
	rec.State = runstate.StateRunning
	rec.StartedAt = &now
	r.writeRecord(rec)

	maxAttempts := job.MaxRetries + 1
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		rec.Attempts = attempt

		if err := r.waitForLaunchSlot(ctx); err != nil {
			return r.finish(rec, Result{
				ID:       job.ID,
				Outcome:  OutcomeFailed,
				Attempts: attempt - 1,
				Message:  "run cancelled while waiting to launch",
			})
		}

		r.logger.Info("Launching retrieval attempt",
			zap.String("job_id", job.ID),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", maxAttempts))

		timedOut, err := r.runAttempt(ctx, job, logFile, rec)
		switch {
		case err == nil:
			res := Result{ID: job.ID, Outcome: OutcomeSuccess, Attempts: attempt}
			if merr := marker.MarkDone(job.OutputDir); merr != nil {
				// The job itself succeeded; it just looks incomplete to
				// the next invocation and will be re-run.
				res.Message = fmt.Sprintf("warning: %v", merr)
				r.logger.Warn("Completion marker write failed",
					zap.String("job_id", job.ID),
					zap.Error(merr))
			}
			return r.finish(rec, res)

		case timedOut:
			r.logger.Warn("Retrieval attempt timed out",
				zap.String("job_id", job.ID),
				zap.Int("attempt", attempt),
				zap.Duration("timeout", job.Timeout))
			if attempt == maxAttempts {
				return r.finish(rec, Result{
					ID:       job.ID,
					Outcome:  OutcomeTimedOut,
					Attempts: attempt,
					Message:  fmt.Sprintf("timed out after %d attempts of %s each", attempt, job.Timeout),
				})
			}
			// Retry the next attempt.

		default:
			// Non-timeout failure: not retried.
			r.logger.Error("Retrieval attempt failed",
				zap.String("job_id", job.ID),
				zap.Int("attempt", attempt),
				zap.Error(err))
			return r.finish(rec, Result{
				ID:       job.ID,
				Outcome:  OutcomeFailed,
				Attempts: attempt,
				Message:  err.Error(),
			})
		}
	}

	// Unreachable: the loop always returns on its final attempt.
	return r.finish(rec, Result{ID: job.ID, Outcome: OutcomeFailed, Message: "no attempts executed"})
}

// runAttempt launches the external program once and waits for it to exit.
// The returned bool reports whether the attempt ended by per-attempt
// timeout, in which case the process has been killed.
func (r *Runner) runAttempt(ctx context.Context, job plan.Job, logFile *os.File, rec *runstate.Record) (bool, error) {
	attemptCtx := ctx
	cancel := context.CancelFunc(func() {})
	if job.Timeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, job.Timeout)
	}
	defer cancel()

	cmd := exec.CommandContext(attemptCtx, job.Executable,
		"--controlfile", job.ControlFile,
		"--inputdir", job.InputDir,
		"--outputdir", job.OutputDir,
	)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.Env = os.Environ()

	if err := cmd.Start(); err != nil {
		return false, fmt.Errorf("start %s: %w", job.Executable, err)
	}

	rec.PID = cmd.Process.Pid
	r.writeRecord(rec)

	err := cmd.Wait()
	if err == nil {
		return false, nil
	}

	// Distinguish a per-attempt deadline (retryable) from everything else.
	// A cancelled parent context is a whole-run abort, not a timeout.
	if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return true, err
	}
	if ctx.Err() != nil {
		return false, fmt.Errorf("run cancelled: %w", ctx.Err())
	}
	return false, fmt.Errorf("external program: %w", err)
}

// waitForLaunchSlot blocks until the launch rate limiter allows another
// process start. Returns immediately if rate limiting is disabled.
func (r *Runner) waitForLaunchSlot(ctx context.Context) error {
	if r.limiter == nil {
		return nil
	}
	return r.limiter.Wait(ctx)
}

// finish records the terminal state and returns the result unchanged.
func (r *Runner) finish(rec *runstate.Record, res Result) Result {
	now := time.Now().UTC()
	rec.EndedAt = &now
	rec.Attempts = res.Attempts
	rec.Message = res.Message
	rec.State = stateFor(res.Outcome)
	r.writeRecord(rec)
	return res
}

func stateFor(o Outcome) runstate.State {
	switch o {
	case OutcomeSuccess:
		return runstate.StateSuccess
	case OutcomeSkipped:
		return runstate.StateSkipped
	case OutcomeTimedOut:
		return runstate.StateTimedOut
	default:
		return runstate.StateFailed
	}
}

// writeRecord persists a run record, logging (not failing) on error.
func (r *Runner) writeRecord(rec *runstate.Record) {
	if r.store == nil {
		return
	}
	if err := r.store.Write(rec); err != nil {
		r.logger.Warn("Failed to write run record",
			zap.String("job_id", rec.JobID),
			zap.Error(err))
	}
}

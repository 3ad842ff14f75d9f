package runner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stormpetrel/metfetch/pkg/chunk"
	"github.com/stormpetrel/metfetch/pkg/marker"
	"github.com/stormpetrel/metfetch/pkg/plan"
	"github.com/stormpetrel/metfetch/pkg/runstate"
)

// writeScript writes an executable shell script fixture standing in for the
// external retrieval program.
func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0755))
	return path
}

func testJob(t *testing.T, outRoot, exe, id string, timeout time.Duration, maxRetries int) plan.Job {
	t.Helper()
	start, err := chunk.ParseDate("20130201")
	require.NoError(t, err)
	end, err := chunk.ParseDate("20130203")
	require.NoError(t, err)

	return plan.Job{
		ID:          id,
		Range:       chunk.Range{Start: start, End: end},
		Executable:  exe,
		ControlFile: filepath.Join(outRoot, "CONTROL"),
		InputDir:    filepath.Join(outRoot, id+"_tmp"),
		OutputDir:   filepath.Join(outRoot, id+"_out"),
		LogPath:     filepath.Join(outRoot, id+".log"),
		Timeout:     timeout,
		MaxRetries:  maxRetries,
	}
}

func TestRunner_Success(t *testing.T) {
	dir := t.TempDir()
	exe := writeScript(t, dir, "submit.sh", "echo retrieved\nexit 0\n")
	job := testJob(t, dir, exe, "job_0_20130201-20130203", time.Minute, 3)

	results := New(DefaultConfig()).Run(context.Background(), []plan.Job{job})

	require.Len(t, results, 1)
	assert.Equal(t, OutcomeSuccess, results[0].Outcome)
	assert.Equal(t, 1, results[0].Attempts)
	assert.Empty(t, results[0].Message)

	// Marker written, output captured.
	assert.True(t, marker.IsDone(job.OutputDir))
	b, err := os.ReadFile(job.LogPath)
	require.NoError(t, err)
	assert.Contains(t, string(b), "retrieved")
}

func TestRunner_NonZeroExitFailsWithoutRetry(t *testing.T) {
	dir := t.TempDir()
	counter := filepath.Join(dir, "launches")
	exe := writeScript(t, dir, "submit.sh", fmt.Sprintf("echo x >> %s\nexit 7\n", counter))
	job := testJob(t, dir, exe, "job_fail", time.Minute, 3)

	results := New(DefaultConfig()).Run(context.Background(), []plan.Job{job})

	require.Len(t, results, 1)
	assert.Equal(t, OutcomeFailed, results[0].Outcome)
	assert.Equal(t, 1, results[0].Attempts)
	assert.Contains(t, results[0].Message, "external program")
	assert.False(t, marker.IsDone(job.OutputDir))

	// A generic failure must not be retried.
	b, err := os.ReadFile(counter)
	require.NoError(t, err)
	assert.Equal(t, "x\n", string(b))
}

func TestRunner_TimeoutRetriesUntilExhausted(t *testing.T) {
	dir := t.TempDir()
	counter := filepath.Join(dir, "launches")
	exe := writeScript(t, dir, "submit.sh", fmt.Sprintf("echo x >> %s\nsleep 5\n", counter))
	job := testJob(t, dir, exe, "job_slow", 100*time.Millisecond, 2)

	results := New(DefaultConfig()).Run(context.Background(), []plan.Job{job})

	require.Len(t, results, 1)
	assert.Equal(t, OutcomeTimedOut, results[0].Outcome)
	assert.Equal(t, 3, results[0].Attempts) // maxRetries+1 total
	assert.False(t, marker.IsDone(job.OutputDir))

	b, err := os.ReadFile(counter)
	require.NoError(t, err)
	assert.Equal(t, "x\nx\nx\n", string(b))
}

func TestRunner_SucceedsOnSecondAttempt(t *testing.T) {
	dir := t.TempDir()
	flag := filepath.Join(dir, "already_ran")
	// First launch hangs past the timeout; second exits clean.
	exe := writeScript(t, dir, "submit.sh", fmt.Sprintf(
		"if [ -f %s ]; then exit 0; fi\ntouch %s\nsleep 5\n", flag, flag))
	job := testJob(t, dir, exe, "job_flaky", 150*time.Millisecond, 3)

	results := New(DefaultConfig()).Run(context.Background(), []plan.Job{job})

	require.Len(t, results, 1)
	assert.Equal(t, OutcomeSuccess, results[0].Outcome)
	assert.Equal(t, 2, results[0].Attempts)
	assert.True(t, marker.IsDone(job.OutputDir))
}

func TestRunner_SkipsMarkedJob(t *testing.T) {
	dir := t.TempDir()
	counter := filepath.Join(dir, "launches")
	exe := writeScript(t, dir, "submit.sh", fmt.Sprintf("echo x >> %s\nexit 0\n", counter))
	job := testJob(t, dir, exe, "job_done_already", time.Minute, 0)
	require.NoError(t, marker.MarkDone(job.OutputDir))

	results := New(DefaultConfig()).Run(context.Background(), []plan.Job{job})

	require.Len(t, results, 1)
	assert.Equal(t, OutcomeSkipped, results[0].Outcome)
	assert.Equal(t, 0, results[0].Attempts)

	// The external program was never invoked.
	_, err := os.Stat(counter)
	assert.True(t, os.IsNotExist(err))
}

func TestRunner_BoundedConcurrency(t *testing.T) {
	dir := t.TempDir()
	running := filepath.Join(dir, "running")
	require.NoError(t, os.MkdirAll(running, 0755))

	// Each invocation drops a token while it sleeps.
	exe := writeScript(t, dir, "submit.sh",
		fmt.Sprintf("touch %s/$$\nsleep 0.2\nrm -f %s/$$\nexit 0\n", running, running))

	jobs := make([]plan.Job, 5)
	for i := range jobs {
		jobs[i] = testJob(t, dir, exe, fmt.Sprintf("job_%d", i), time.Minute, 0)
	}

	// Sample the number of live external processes while the pool runs.
	stop := make(chan struct{})
	maxLive := make(chan int, 1)
	go func() {
		max := 0
		ticker := time.NewTicker(5 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				maxLive <- max
				return
			case <-ticker.C:
				entries, _ := os.ReadDir(running)
				if n := len(entries); n > max {
					max = n
				}
			}
		}
	}()

	cfg := DefaultConfig()
	cfg.Workers = 2
	results := New(cfg).Run(context.Background(), jobs)
	close(stop)

	require.Len(t, results, 5)
	for i, r := range results {
		assert.Equal(t, jobs[i].ID, r.ID, "results follow submission order")
		assert.Equal(t, OutcomeSuccess, r.Outcome)
	}

	assert.LessOrEqual(t, <-maxLive, 2, "never more than Workers external processes alive")
}

func TestRunner_FailureIsolation(t *testing.T) {
	dir := t.TempDir()
	good := writeScript(t, dir, "good.sh", "exit 0\n")
	bad := writeScript(t, dir, "bad.sh", "exit 1\n")

	jobs := []plan.Job{
		testJob(t, dir, good, "job_a", time.Minute, 0),
		testJob(t, dir, bad, "job_b", time.Minute, 0),
		testJob(t, dir, good, "job_c", time.Minute, 0),
	}

	cfg := DefaultConfig()
	cfg.Workers = 1
	results := New(cfg).Run(context.Background(), jobs)

	require.Len(t, results, 3)
	assert.Equal(t, OutcomeSuccess, results[0].Outcome)
	assert.Equal(t, OutcomeFailed, results[1].Outcome)
	assert.Equal(t, OutcomeSuccess, results[2].Outcome)
}

func TestRunner_WritesRunRecords(t *testing.T) {
	dir := t.TempDir()
	exe := writeScript(t, dir, "submit.sh", "exit 0\n")
	job := testJob(t, dir, exe, "job_rec", time.Minute, 0)

	store := runstate.NewStore(dir)
	results := New(DefaultConfig()).WithStore(store).Run(context.Background(), []plan.Job{job})
	require.Len(t, results, 1)
	require.Equal(t, OutcomeSuccess, results[0].Outcome)

	rec, err := store.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, runstate.StateSuccess, rec.State)
	assert.Equal(t, 1, rec.Attempts)
	assert.NotEmpty(t, rec.RunID)
	assert.Equal(t, "20130201", rec.StartDate)
	assert.NotNil(t, rec.StartedAt)
	assert.NotNil(t, rec.EndedAt)
}

func TestRunner_CancelledRun(t *testing.T) {
	dir := t.TempDir()
	exe := writeScript(t, dir, "submit.sh", "sleep 5\nexit 0\n")

	jobs := []plan.Job{
		testJob(t, dir, exe, "job_x", 0, 0),
		testJob(t, dir, exe, "job_y", 0, 0),
		testJob(t, dir, exe, "job_z", 0, 0),
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	cfg := DefaultConfig()
	cfg.Workers = 1
	results := New(cfg).Run(ctx, jobs)

	require.Len(t, results, 3)
	for _, r := range results {
		assert.NotEqual(t, OutcomeSuccess, r.Outcome)
		assert.NotEqual(t, OutcomeTimedOut, r.Outcome, "cancellation is not a timeout")
	}
}

func TestHasFailures(t *testing.T) {
	assert.False(t, HasFailures(nil))
	assert.False(t, HasFailures([]Result{
		{Outcome: OutcomeSuccess},
		{Outcome: OutcomeSkipped},
	}))
	assert.True(t, HasFailures([]Result{
		{Outcome: OutcomeSuccess},
		{Outcome: OutcomeFailed},
	}))
	assert.True(t, HasFailures([]Result{{Outcome: OutcomeTimedOut}}))
}

func TestNew_Defaults(t *testing.T) {
	r := New(Config{})
	assert.Equal(t, 4, r.config.Workers)
	assert.Nil(t, r.limiter)

	r = New(Config{Workers: 2, LaunchRate: 1.5})
	assert.Equal(t, 2, r.config.Workers)
	assert.NotNil(t, r.limiter)
}

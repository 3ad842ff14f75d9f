package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stormpetrel/metfetch/pkg/chunk"
	"github.com/stormpetrel/metfetch/pkg/plan"
	"github.com/stormpetrel/metfetch/pkg/runner"
)

func mustRange(t *testing.T, start, end string) chunk.Range {
	t.Helper()
	s, err := chunk.ParseDate(start)
	require.NoError(t, err)
	e, err := chunk.ParseDate(end)
	require.NoError(t, err)
	return chunk.Range{Start: s, End: e}
}

func TestPrintPlan(t *testing.T) {
	r := mustRange(t, "20130201", "20130207")
	jobs := []plan.Job{
		{
			ID:          "EI_job_0_20130201-20130203",
			Range:       mustRange(t, "20130201", "20130203"),
			ControlFile: "/ctl/CONTROL_EI.public_EI_job_0",
			InputDir:    "/out/EI_job_0_20130201-20130203_tmp",
			OutputDir:   "/out/EI_job_0_20130201-20130203_out",
			LogPath:     "/out/EI_job_0_20130201-20130203.log",
			Timeout:     4 * time.Hour,
			MaxRetries:  3,
		},
	}

	var buf bytes.Buffer
	PrintPlan(&buf, Plan{
		Range:       r,
		DaysPerJob:  3,
		Workers:     3,
		Jobs:        jobs,
		SkippedJobs: []string{"EI_job_1_20130204-20130206"},
	})

	out := buf.String()
	assert.Contains(t, out, "Time period:      20130201 - 20130207")
	assert.Contains(t, out, "Total days:       7")
	assert.Contains(t, out, "Jobs to run:      1")
	assert.Contains(t, out, "Jobs skipped:     1")
	assert.Contains(t, out, "Parallel workers: 3")
	assert.Contains(t, out, "skip EI_job_1_20130204-20130206")
	assert.Contains(t, out, "Job EI_job_0_20130201-20130203")
	assert.Contains(t, out, "Timeout:      4h0m0s")
	assert.Contains(t, out, "Retries:      3")
}

func TestPrintResults_AllSuccess(t *testing.T) {
	var buf bytes.Buffer
	PrintResults(&buf, []runner.Result{
		{ID: "a", Outcome: runner.OutcomeSuccess, Attempts: 1},
		{ID: "b", Outcome: runner.OutcomeSkipped},
	})

	out := buf.String()
	assert.Contains(t, out, "Total:     2")
	assert.Contains(t, out, "success:   1")
	assert.Contains(t, out, "skipped:   1")
	assert.NotContains(t, out, "follow-up")
}

func TestPrintResults_ListsFailures(t *testing.T) {
	var buf bytes.Buffer
	PrintResults(&buf, []runner.Result{
		{ID: "job_c", Outcome: runner.OutcomeTimedOut, Attempts: 4, Message: "timed out after 4 attempts of 1h0m0s each"},
		{ID: "job_a", Outcome: runner.OutcomeFailed, Attempts: 1, Message: "external program: exit status 1"},
		{ID: "job_b", Outcome: runner.OutcomeSuccess, Attempts: 2},
	})

	out := buf.String()
	assert.Contains(t, out, "Jobs needing follow-up:")
	assert.Contains(t, out, "job_a  failed (attempts=1): external program: exit status 1")
	assert.Contains(t, out, "job_c  timed_out (attempts=4)")

	// Follow-up list is sorted by id for stable operator output.
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("job_a")), bytes.Index(buf.Bytes(), []byte("job_c")))
}

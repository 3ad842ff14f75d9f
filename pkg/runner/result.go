package runner

// Outcome is the terminal disposition of a single retrieval job.
type Outcome string

const (
	// OutcomeSuccess means the external program exited zero and the
	// completion marker was written.
	OutcomeSuccess Outcome = "success"

	// OutcomeSkipped means a completion marker already existed, so the
	// job never ran.
	OutcomeSkipped Outcome = "skipped"

	// OutcomeFailed means the external program exited non-zero (or could
	// not be started), or the run was cancelled. Not retried.
	OutcomeFailed Outcome = "failed"

	// OutcomeTimedOut means every allowed attempt exceeded the per-attempt
	// timeout.
	OutcomeTimedOut Outcome = "timed_out"
)

// Result records the end state of one job. Created once when the job's
// attempt sequence finishes; never mutated afterwards.
type Result struct {
	// ID is the job identifier from the plan.
	ID string

	// Outcome is the terminal disposition.
	Outcome Outcome

	// Attempts is the number of times the external program was launched.
	Attempts int

	// Message carries operator-facing detail: the failure reason, or a
	// warning (e.g. a marker write error on an otherwise successful job).
	Message string
}

// HasFailures reports whether any result ended failed or timed out.
// Used to decide the overall process exit code.
func HasFailures(results []Result) bool {
	for _, r := range results {
		if r.Outcome == OutcomeFailed || r.Outcome == OutcomeTimedOut {
			return true
		}
	}
	return false
}

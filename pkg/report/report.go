// Package report formats plan and outcome summaries for operators.
//
// Formatting is pure: both entry points write to the supplied io.Writer
// and have no other side effects, so dry runs and tests can capture them.
package report

import (
	"fmt"
	"io"
	"sort"

	"github.com/stormpetrel/metfetch/pkg/chunk"
	"github.com/stormpetrel/metfetch/pkg/plan"
	"github.com/stormpetrel/metfetch/pkg/runner"
)

// Plan carries everything PrintPlan needs to describe an upcoming run.
type Plan struct {
	Range       chunk.Range
	DaysPerJob  int
	Workers     int
	Jobs        []plan.Job
	SkippedJobs []string
}

// PrintPlan writes a human-readable breakdown of the planned jobs.
func PrintPlan(w io.Writer, p Plan) {
	fmt.Fprintln(w, "=== Retrieval Plan ===")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Time period:      %s - %s\n",
		p.Range.Start.Format(chunk.DateLayout), p.Range.End.Format(chunk.DateLayout))
	fmt.Fprintf(w, "Total days:       %d\n", p.Range.Days())
	fmt.Fprintf(w, "Days per job:     %d\n", p.DaysPerJob)
	fmt.Fprintf(w, "Jobs to run:      %d\n", len(p.Jobs))
	fmt.Fprintf(w, "Jobs skipped:     %d (completion marker present)\n", len(p.SkippedJobs))
	fmt.Fprintf(w, "Parallel workers: %d\n", p.Workers)
	fmt.Fprintln(w)

	for _, id := range p.SkippedJobs {
		fmt.Fprintf(w, "skip %s\n", id)
	}
	if len(p.SkippedJobs) > 0 {
		fmt.Fprintln(w)
	}

	for _, j := range p.Jobs {
		fmt.Fprintf(w, "Job %s\n", j.ID)
		fmt.Fprintf(w, "  Time period:  %s - %s\n",
			j.Range.Start.Format(chunk.DateLayout), j.Range.End.Format(chunk.DateLayout))
		fmt.Fprintf(w, "  CONTROL file: %s\n", j.ControlFile)
		fmt.Fprintf(w, "  Input dir:    %s\n", j.InputDir)
		fmt.Fprintf(w, "  Output dir:   %s\n", j.OutputDir)
		fmt.Fprintf(w, "  Log file:     %s\n", j.LogPath)
		fmt.Fprintf(w, "  Timeout:      %s\n", j.Timeout)
		fmt.Fprintf(w, "  Retries:      %d\n", j.MaxRetries)
	}
}

// PrintResults tabulates outcomes and lists jobs needing follow-up.
func PrintResults(w io.Writer, results []runner.Result) {
	counts := map[runner.Outcome]int{}
	var followUp []runner.Result
	for _, r := range results {
		counts[r.Outcome]++
		if r.Outcome == runner.OutcomeFailed || r.Outcome == runner.OutcomeTimedOut {
			followUp = append(followUp, r)
		}
	}

	fmt.Fprintln(w, "=== Retrieval Results ===")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Total:     %d\n", len(results))
	for _, o := range []runner.Outcome{
		runner.OutcomeSuccess, runner.OutcomeSkipped,
		runner.OutcomeTimedOut, runner.OutcomeFailed,
	} {
		fmt.Fprintf(w, "%-10s %d\n", string(o)+":", counts[o])
	}

	if len(followUp) == 0 {
		return
	}

	sort.Slice(followUp, func(i, j int) bool { return followUp[i].ID < followUp[j].ID })

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Jobs needing follow-up:")
	for _, r := range followUp {
		fmt.Fprintf(w, "  %s  %s (attempts=%d)", r.ID, r.Outcome, r.Attempts)
		if r.Message != "" {
			fmt.Fprintf(w, ": %s", r.Message)
		}
		fmt.Fprintln(w)
	}
}

package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/stormpetrel/metfetch/internal/observability"
	"github.com/stormpetrel/metfetch/pkg/chunk"
	"github.com/stormpetrel/metfetch/pkg/manifest"
	"github.com/stormpetrel/metfetch/pkg/plan"
	"github.com/stormpetrel/metfetch/pkg/report"
	"github.com/stormpetrel/metfetch/pkg/runner"
	"github.com/stormpetrel/metfetch/pkg/runstate"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Split a date range into chunks and run the retrieval program per chunk",
	Long: `Split the retrieval period into chunks of --days-per-job days and launch
the external retrieval program once per chunk, up to --workers at a time.

A campaign can be described in a YAML/JSON manifest (--job) or entirely
on the command line; flags override manifest values. Chunks whose output
directory already holds a completion marker are skipped, making re-runs
of an interrupted campaign cheap.

Examples:
  metfetch fetch --job erai.yaml
  metfetch fetch --job erai.yaml --workers 6 --dry-run
  metfetch fetch \
    --executable /opt/flex_extract/Source/Python/submit.py \
    --control-file /opt/flex_extract/Run/Control/CONTROL_EI.public \
    --start 20130201 --end 20130228 --days-per-job 3 \
    --output /data/flexpart_erai`,
	Args: cobra.NoArgs,
	RunE: runFetch,
}

var (
	fetchManifest    string
	fetchExecutable  string
	fetchControlFile string
	fetchStart       string
	fetchEnd         string
	fetchDaysPerJob  int
	fetchJobPrefix   string
	fetchCopyControl bool
	fetchWorkers     int
	fetchTimeout     time.Duration
	fetchRetries     int
	fetchLaunchRate  float64
	fetchOutputDir   string
	fetchDryRun      bool
)

func init() {
	rootCmd.AddCommand(fetchCmd)

	fetchCmd.Flags().StringVarP(&fetchManifest, "job", "j", "", "Job manifest file (YAML or JSON)")
	fetchCmd.Flags().StringVar(&fetchExecutable, "executable", "", "Path to the external retrieval program")
	fetchCmd.Flags().StringVar(&fetchControlFile, "control-file", "", "Path to the base CONTROL file")
	fetchCmd.Flags().StringVar(&fetchStart, "start", "", "Start date (YYYYMMDD, inclusive)")
	fetchCmd.Flags().StringVar(&fetchEnd, "end", "", "End date (YYYYMMDD, inclusive)")
	fetchCmd.Flags().IntVar(&fetchDaysPerJob, "days-per-job", 0, "Days retrieved per job (default 1)")
	fetchCmd.Flags().StringVar(&fetchJobPrefix, "job-prefix", "", "Prefix for job ids and directories (default \"job\")")
	fetchCmd.Flags().BoolVar(&fetchCopyControl, "copy-control", true, "Write a parameterized CONTROL copy per job")
	fetchCmd.Flags().IntVarP(&fetchWorkers, "workers", "w", 0, "Concurrent retrievals (default 3)")
	fetchCmd.Flags().DurationVar(&fetchTimeout, "timeout", 0, "Per-attempt timeout (default 4h, 0=none)")
	fetchCmd.Flags().IntVar(&fetchRetries, "timeout-retries", -1, "Extra attempts after a timeout (default 3)")
	fetchCmd.Flags().Float64Var(&fetchLaunchRate, "launch-rate", 0, "Max external launches per second (0=unlimited)")
	fetchCmd.Flags().StringVarP(&fetchOutputDir, "output", "o", "", "Root directory for job outputs, logs, and markers")
	fetchCmd.Flags().BoolVar(&fetchDryRun, "dry-run", false, "Print the job plan without launching anything")
}

func runFetch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	m, err := resolveManifest(cmd)
	if err != nil {
		return err
	}

	start, _ := chunk.ParseDate(m.StartDate) // validated above
	end, _ := chunk.ParseDate(m.EndDate)

	ranges, err := chunk.BreakDown(start, end, m.DaysPerJob)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid date range", err)
	}

	timeout, _ := m.TimeoutDuration()
	jobs, skippedIDs, err := plan.Build(plan.Spec{
		Executable:  m.Executable,
		ControlFile: m.ControlFile,
		Ranges:      ranges,
		OutputDir:   m.OutputDir,
		Timeout:     timeout,
		MaxRetries:  m.Retries(),
		JobPrefix:   m.JobPrefix,
		CopyControl: m.CopyControlEnabled(),
	})
	if err != nil {
		switch {
		case errors.Is(err, plan.ErrExecutableNotFound),
			errors.Is(err, plan.ErrControlFileNotFound):
			return exitError(foundry.ExitFileNotFound, "Planning failed", err)
		default:
			return exitError(foundry.ExitFileWriteError, "Planning failed", err)
		}
	}

	observability.CLILogger.Info("Planned retrieval campaign",
		zap.String("start", m.StartDate),
		zap.String("end", m.EndDate),
		zap.Int("days_per_job", m.DaysPerJob),
		zap.Int("jobs", len(jobs)),
		zap.Int("skipped", len(skippedIDs)),
		zap.Int("workers", m.Workers))

	if fetchDryRun {
		report.PrintPlan(cmd.OutOrStdout(), report.Plan{
			Range:       chunk.Range{Start: start, End: end},
			DaysPerJob:  m.DaysPerJob,
			Workers:     m.Workers,
			Jobs:        jobs,
			SkippedJobs: skippedIDs,
		})
		return nil
	}

	r := runner.New(runner.Config{
		Workers:    m.Workers,
		LaunchRate: m.LaunchRate,
	}).
		WithStore(runstate.NewStore(m.OutputDir)).
		WithLogger(observability.CLILogger)

	results := r.Run(ctx, jobs)

	for _, id := range skippedIDs {
		results = append(results, runner.Result{ID: id, Outcome: runner.OutcomeSkipped})
	}
	report.PrintResults(cmd.OutOrStdout(), results)

	if runner.HasFailures(results) {
		return exitError(foundry.ExitExternalServiceUnavailable, "One or more retrievals failed",
			fmt.Errorf("%d of %d jobs did not complete", countFailures(results), len(results)))
	}
	return nil
}

// resolveManifest builds the effective campaign description from the
// manifest file (if any) with flag overrides applied on top.
func resolveManifest(cmd *cobra.Command) (*manifest.Manifest, error) {
	var m *manifest.Manifest
	if fetchManifest != "" {
		loaded, err := manifest.Load(fetchManifest)
		if err != nil {
			return nil, exitError(foundry.ExitFileReadError, "Failed to load job manifest", err)
		}
		m = loaded
	} else {
		m = &manifest.Manifest{}
	}

	flags := cmd.Flags()
	if flags.Changed("executable") {
		m.Executable = fetchExecutable
	}
	if flags.Changed("control-file") {
		m.ControlFile = fetchControlFile
	}
	if flags.Changed("start") {
		m.StartDate = fetchStart
	}
	if flags.Changed("end") {
		m.EndDate = fetchEnd
	}
	if flags.Changed("days-per-job") {
		m.DaysPerJob = fetchDaysPerJob
	}
	if flags.Changed("job-prefix") {
		m.JobPrefix = fetchJobPrefix
	}
	if flags.Changed("copy-control") {
		m.CopyControl = &fetchCopyControl
	}
	if flags.Changed("workers") {
		m.Workers = fetchWorkers
	} else if m.Workers == 0 {
		m.Workers = viper.GetInt("workers")
	}
	if flags.Changed("timeout") {
		m.Timeout = fetchTimeout.String()
	}
	if flags.Changed("timeout-retries") {
		m.TimeoutRetries = &fetchRetries
	}
	if flags.Changed("launch-rate") {
		m.LaunchRate = fetchLaunchRate
	}
	if flags.Changed("output") {
		m.OutputDir = fetchOutputDir
	}

	m.ApplyDefaults()
	if err := m.Validate(); err != nil {
		return nil, exitError(foundry.ExitInvalidArgument, "Invalid campaign options", err)
	}
	return m, nil
}

func countFailures(results []runner.Result) int {
	n := 0
	for _, r := range results {
		if r.Outcome == runner.OutcomeFailed || r.Outcome == runner.OutcomeTimedOut {
			n++
		}
	}
	return n
}

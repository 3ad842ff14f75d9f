package cmd

import (
	"fmt"
	"path/filepath"
	"text/tabwriter"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"

	"github.com/stormpetrel/metfetch/pkg/marker"
	"github.com/stormpetrel/metfetch/pkg/runstate"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show run records for a campaign output directory",
	Long: `List the per-chunk run records found under the campaign output
directory, with the completion-marker state of each chunk.

Records are informational; the marker file alone decides what a re-run
skips. Delete a chunk's job_done marker to force it to run again.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

var statusOutputDir string

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().StringVarP(&statusOutputDir, "output", "o", "", "Campaign output directory")
	_ = statusCmd.MarkFlagRequired("output")
}

func runStatus(cmd *cobra.Command, args []string) error {
	store := runstate.NewStore(statusOutputDir)

	records, err := store.List()
	if err != nil {
		return exitError(foundry.ExitFileReadError, "Failed to read run records", err)
	}
	if len(records) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "No run records under %s\n", statusOutputDir)
		return nil
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "JOB\tSTATE\tMARKER\tATTEMPTS\tPERIOD\tENDED")
	for _, rec := range records {
		done := "-"
		if marker.IsDone(outDirFor(store, rec.JobID)) {
			done = "done"
		}
		ended := "-"
		if rec.EndedAt != nil {
			ended = rec.EndedAt.Format("2006-01-02 15:04:05")
		}
		period := "-"
		if rec.StartDate != "" {
			period = rec.StartDate + "-" + rec.EndDate
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
			rec.JobID, rec.State, done, rec.Attempts, period, ended)
	}
	return tw.Flush()
}

// outDirFor recovers the chunk output directory from the record path.
func outDirFor(store *runstate.Store, jobID string) string {
	return filepath.Dir(store.RecordPath(jobID))
}

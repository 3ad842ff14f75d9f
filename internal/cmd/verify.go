package cmd

import (
	"fmt"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"

	"github.com/stormpetrel/metfetch/pkg/chunk"
	"github.com/stormpetrel/metfetch/pkg/verify"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check retrieved data files for gaps",
	Long: `Compare the data files present under a directory against the names
expected for a date range and time step, and report the missing spans as
contiguous periods ready to feed back into a new fetch.

Data files follow the <prefix>YYMMDDHH naming of the external program,
e.g. EI13020100. The scan recurses, so files already sorted into
per-year folders are still counted.

Example:
  metfetch verify --dir /data/flexpart_erai --start 20130201 --end 20130228 \
    --prefix EI --step-hours 3`,
	Args: cobra.NoArgs,
	RunE: runVerify,
}

var (
	verifyDir       string
	verifyStart     string
	verifyEnd       string
	verifyStepHours int
	verifyPrefix    string
	verifyMaxGap    int
)

func init() {
	rootCmd.AddCommand(verifyCmd)

	verifyCmd.Flags().StringVarP(&verifyDir, "dir", "d", "", "Directory holding retrieved data files")
	verifyCmd.Flags().StringVar(&verifyStart, "start", "", "Start date (YYYYMMDD, inclusive)")
	verifyCmd.Flags().StringVar(&verifyEnd, "end", "", "End date (YYYYMMDD, inclusive)")
	verifyCmd.Flags().IntVar(&verifyStepHours, "step-hours", 3, "Hours between consecutive data files")
	verifyCmd.Flags().StringVar(&verifyPrefix, "prefix", "EI", "Data file name prefix")
	verifyCmd.Flags().IntVar(&verifyMaxGap, "max-gap-hours", 24, "Merge missing instants closer than this into one period")
	_ = verifyCmd.MarkFlagRequired("dir")
	_ = verifyCmd.MarkFlagRequired("start")
	_ = verifyCmd.MarkFlagRequired("end")
}

func runVerify(cmd *cobra.Command, args []string) error {
	start, err := chunk.ParseDate(verifyStart)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid start date", err)
	}
	end, err := chunk.ParseDate(verifyEnd)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid end date", err)
	}

	expected, err := verify.ExpectedNames(start, end, verifyStepHours, verifyPrefix)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid verification range", err)
	}

	missing, err := verify.Missing(verifyDir, expected, verifyPrefix)
	if err != nil {
		return exitError(foundry.ExitFileReadError, "Failed to scan data directory", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Expected files: %d\n", len(expected))
	fmt.Fprintf(out, "Missing files:  %d\n", len(missing))

	if len(missing) == 0 {
		fmt.Fprintln(out, "Data set is complete.")
		return nil
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Missing periods:")
	for _, p := range verify.MergePeriods(missing, verifyMaxGap) {
		fmt.Fprintf(out, "  %s - %s\n",
			p.Start.Format(chunk.DateLayout+" 15h"), p.End.Format(chunk.DateLayout+" 15h"))
	}
	return nil
}

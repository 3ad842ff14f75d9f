package cmd

import (
	"fmt"
	"sort"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/stormpetrel/metfetch/internal/observability"
	"github.com/stormpetrel/metfetch/pkg/archive"
)

var sortyearsCmd = &cobra.Command{
	Use:   "sortyears",
	Short: "Sort retrieved data files into per-year folders",
	Long: `Move data files named <prefix>YYMMDDHH from a flat directory into
per-year subfolders (1999/, 2000/, ...) of the destination directory.

Long campaigns accumulate tens of thousands of flat files; sorting by
year keeps the archive browsable.

Example:
  metfetch sortyears --dir /data/flexpart_erai --prefix EI`,
	Args: cobra.NoArgs,
	RunE: runSortYears,
}

var (
	sortyearsDir    string
	sortyearsOut    string
	sortyearsPrefix string
)

func init() {
	rootCmd.AddCommand(sortyearsCmd)

	sortyearsCmd.Flags().StringVarP(&sortyearsDir, "dir", "d", "", "Directory holding the flat data files")
	sortyearsCmd.Flags().StringVar(&sortyearsOut, "dest", "", "Destination root for year folders (default: same as --dir)")
	sortyearsCmd.Flags().StringVar(&sortyearsPrefix, "prefix", "EI", "Data file name prefix")
	_ = sortyearsCmd.MarkFlagRequired("dir")
}

func runSortYears(cmd *cobra.Command, args []string) error {
	dest := sortyearsOut
	if dest == "" {
		dest = sortyearsDir
	}

	moved, err := archive.SortYears(sortyearsDir, dest, sortyearsPrefix)
	if err != nil {
		return exitError(foundry.ExitFileWriteError, "Failed to sort data files", err)
	}

	observability.CLILogger.Info("Sorted data files into year folders",
		zap.String("dir", sortyearsDir),
		zap.String("dest", dest),
		zap.Int("years", len(moved)))

	years := make([]string, 0, len(moved))
	for y := range moved {
		years = append(years, y)
	}
	sort.Strings(years)

	out := cmd.OutOrStdout()
	total := 0
	for _, y := range years {
		fmt.Fprintf(out, "%s: %d files\n", y, moved[y])
		total += moved[y]
	}
	fmt.Fprintf(out, "Total: %d files moved\n", total)
	return nil
}

// Package verify checks retrieved meteorological data files for gaps.
//
// The external program writes one data file per time step, named
// <prefix>YYMMDDHH (e.g. EI13020100, EI13020103). Verification builds the
// expected name list for a date range and step, compares it against the
// files actually present, and merges the missing instants into contiguous
// periods an operator can feed back into a new retrieval.
package verify

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

// NameLayout is the timestamp portion of a data file name.
const NameLayout = "06010215"

// Period is an inclusive span of missing data instants.
type Period struct {
	Start time.Time
	End   time.Time
}

// ExpectedNames returns the data file names expected for [start, end] at
// the given step in hours, chronological order. Instants past end are
// excluded, matching the external program's own cutoff.
func ExpectedNames(start, end time.Time, stepHours int, prefix string) ([]string, error) {
	if stepHours < 1 || stepHours > 24 {
		return nil, fmt.Errorf("step hours must be in [1, 24], got %d", stepHours)
	}
	if start.After(end) {
		return nil, fmt.Errorf("start %s is after end %s", start, end)
	}

	var names []string
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		for h := 0; h < 24; h += stepHours {
			instant := day.Add(time.Duration(h) * time.Hour)
			if instant.After(end) {
				break
			}
			names = append(names, prefix+instant.Format(NameLayout))
		}
	}
	return names, nil
}

// Present lists the data file basenames under dir matching the prefix.
// The scan recurses so outputs already sorted into per-year folders are
// still found.
func Present(dir, prefix string) ([]string, error) {
	matches, err := doublestar.Glob(os.DirFS(dir), "**/"+prefix+"*")
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}

	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, filepath.Base(m))
	}
	sort.Strings(names)
	return names, nil
}

// Missing returns the timestamps of expected files not present in dir.
func Missing(dir string, expected []string, prefix string) ([]time.Time, error) {
	present, err := Present(dir, prefix)
	if err != nil {
		// A missing search dir means everything is missing.
		if _, statErr := os.Stat(dir); os.IsNotExist(statErr) {
			present = nil
		} else {
			return nil, err
		}
	}

	have := make(map[string]bool, len(present))
	for _, name := range present {
		have[name] = true
	}

	var missing []time.Time
	for _, name := range expected {
		if have[name] {
			continue
		}
		ts, err := time.ParseInLocation(NameLayout, strings.TrimPrefix(name, prefix), time.UTC)
		if err != nil {
			return nil, fmt.Errorf("unexpected name %q: %w", name, err)
		}
		missing = append(missing, ts)
	}
	return missing, nil
}

// MergePeriods merges time instants into contiguous periods. Two
// consecutive instants further apart than maxGapHours start a new period.
func MergePeriods(instants []time.Time, maxGapHours int) []Period {
	if len(instants) == 0 {
		return nil
	}

	sorted := make([]time.Time, len(instants))
	copy(sorted, instants)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	gap := time.Duration(maxGapHours) * time.Hour
	periods := []Period{{Start: sorted[0], End: sorted[0]}}
	for _, ts := range sorted[1:] {
		last := &periods[len(periods)-1]
		if ts.Sub(last.End) > gap {
			periods = append(periods, Period{Start: ts, End: ts})
			continue
		}
		last.End = ts
	}
	return periods
}

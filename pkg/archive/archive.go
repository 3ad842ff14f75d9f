// Package archive organizes retrieved data files into per-year folders.
//
// Long retrieval campaigns accumulate thousands of <prefix>YYMMDDHH files
// in one flat directory. SortYears groups them by year and moves each
// group into a four-digit year subfolder of the destination, which keeps
// directory listings workable and matches how downstream dispersion runs
// consume the data.
package archive

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

// yearLayout parses the two-digit year prefix of a data file timestamp.
const yearLayout = "06"

// SortYears moves <prefix>YYMMDDHH files from dir into <outDir>/<YYYY>/.
//
// Files already inside a year folder are left alone. Returns the number of
// files moved per four-digit year. Moving is rename-first with a copy
// fallback so destinations on other filesystems work.
func SortYears(dir, outDir, prefix string) (map[string]int, error) {
	matches, err := doublestar.Glob(os.DirFS(dir), prefix+"*")
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}

	moved := make(map[string]int)
	for _, name := range matches {
		year, ok := yearOf(name, prefix)
		if !ok {
			continue
		}

		yearDir := filepath.Join(outDir, year)
		if err := os.MkdirAll(yearDir, 0755); err != nil {
			return moved, fmt.Errorf("create year dir %s: %w", yearDir, err)
		}

		src := filepath.Join(dir, name)
		dst := filepath.Join(yearDir, name)
		if err := moveFile(src, dst); err != nil {
			return moved, fmt.Errorf("move %s: %w", name, err)
		}
		moved[year]++
	}
	return moved, nil
}

// Years lists the four-digit years present among matching files, sorted.
func Years(dir, prefix string) ([]string, error) {
	matches, err := doublestar.Glob(os.DirFS(dir), prefix+"*")
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}

	seen := make(map[string]bool)
	for _, name := range matches {
		if year, ok := yearOf(name, prefix); ok {
			seen[year] = true
		}
	}

	years := make([]string, 0, len(seen))
	for y := range seen {
		years = append(years, y)
	}
	sort.Strings(years)
	return years, nil
}

// yearOf extracts the four-digit year from a data file name, rejecting
// names that do not carry a parseable two-digit year after the prefix.
func yearOf(name, prefix string) (string, bool) {
	rest := strings.TrimPrefix(name, prefix)
	if len(rest) < 2 || rest == name {
		return "", false
	}
	t, err := time.ParseInLocation(yearLayout, rest[:2], time.UTC)
	if err != nil {
		return "", false
	}
	return t.Format("2006"), true
}

func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	// Rename failed, likely a cross-device destination. Copy then remove.
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}

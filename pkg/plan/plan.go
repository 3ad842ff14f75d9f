// Package plan turns date chunks into concrete retrieval job descriptors.
//
// Planning validates the external collaborators up front (executable and
// base CONTROL file), derives deterministic per-job identifiers and
// directories, materializes per-job CONTROL copies when requested, and
// filters out jobs whose completion marker already exists on disk.
package plan

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/stormpetrel/metfetch/pkg/chunk"
	"github.com/stormpetrel/metfetch/pkg/control"
	"github.com/stormpetrel/metfetch/pkg/marker"
)

// Sentinel errors for planning-time validation. Both are fatal: no job
// descriptors are built when either fires.
var (
	// ErrExecutableNotFound indicates the external retrieval program is missing.
	ErrExecutableNotFound = errors.New("retrieval executable not found")

	// ErrControlFileNotFound indicates the base CONTROL file is missing.
	ErrControlFileNotFound = errors.New("control file not found")
)

// Job describes one retrieval of a single date chunk.
//
// A Job is immutable once built and owned solely by the runner for the
// duration of its execution.
type Job struct {
	// ID is the unique job identifier: <prefix>_<nn>_<start>-<end>, where
	// <nn> is the chunk index zero-padded to the width of the chunk count.
	ID string

	// Range is the inclusive date chunk this job retrieves.
	Range chunk.Range

	// Executable is the absolute path to the external retrieval program.
	Executable string

	// ControlFile is the CONTROL file passed to the executable. Either a
	// dedicated per-job copy or the shared base file, depending on the
	// CopyControl setting at build time.
	ControlFile string

	// InputDir is the external program's scratch directory for this job.
	InputDir string

	// OutputDir is where the external program writes final outputs and
	// where the completion marker lives.
	OutputDir string

	// LogPath receives the combined stdout/stderr of every attempt.
	LogPath string

	// Timeout bounds each individual attempt. Zero means no timeout.
	Timeout time.Duration

	// MaxRetries is the number of extra attempts allowed after a timeout.
	MaxRetries int
}

// Spec carries the flat set of options planning needs.
type Spec struct {
	Executable  string
	ControlFile string
	Ranges      []chunk.Range
	OutputDir   string
	Timeout     time.Duration
	MaxRetries  int
	JobPrefix   string
	CopyControl bool
}

// Build constructs job descriptors for every range whose completion marker
// is absent. It returns the runnable jobs in chronological order and the
// ids of ranges skipped because a marker was found.
//
// Side effects: creates the output directory tree and, when CopyControl is
// set, writes one parameterized CONTROL copy per job next to the base file.
//
// Fails with ErrExecutableNotFound or ErrControlFileNotFound before any
// descriptor is built when the external collaborators cannot be located.
func Build(spec Spec) ([]Job, []string, error) {
	if err := checkFile(spec.Executable, ErrExecutableNotFound); err != nil {
		return nil, nil, err
	}
	if err := checkFile(spec.ControlFile, ErrControlFileNotFound); err != nil {
		return nil, nil, err
	}
	if spec.MaxRetries < 0 {
		return nil, nil, fmt.Errorf("max retries must be >= 0, got %d", spec.MaxRetries)
	}

	if err := os.MkdirAll(spec.OutputDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("create output dir %s: %w", spec.OutputDir, err)
	}

	ctrlDir := filepath.Dir(spec.ControlFile)
	ctrlName := filepath.Base(spec.ControlFile)
	width := len(fmt.Sprintf("%d", len(spec.Ranges)))

	var jobs []Job
	var skipped []string
	for i, r := range spec.Ranges {
		nn := fmt.Sprintf("%0*d", width, i)
		id := fmt.Sprintf("%s_%s_%s", spec.JobPrefix, nn, r)

		jobDir := filepath.Join(spec.OutputDir, id)
		outDir := jobDir + "_out"
		if marker.IsDone(outDir) {
			skipped = append(skipped, id)
			continue
		}

		ctrlFile := spec.ControlFile
		if spec.CopyControl {
			// The copy lives next to the base file, like the base file
			// itself it is input to the external program, not output.
			ctrlFile = filepath.Join(ctrlDir, fmt.Sprintf("%s_%s_%s", ctrlName, spec.JobPrefix, nn))
			if err := control.WriteCopy(spec.ControlFile, ctrlFile, r.Start, r.End); err != nil {
				return nil, nil, err
			}
		}

		jobs = append(jobs, Job{
			ID:          id,
			Range:       r,
			Executable:  spec.Executable,
			ControlFile: ctrlFile,
			InputDir:    jobDir + "_tmp",
			OutputDir:   outDir,
			LogPath:     filepath.Join(spec.OutputDir, id+".log"),
			Timeout:     spec.Timeout,
			MaxRetries:  spec.MaxRetries,
		})
	}

	return jobs, skipped, nil
}

func checkFile(path string, sentinel error) error {
	if path == "" {
		return fmt.Errorf("%w: path is empty", sentinel)
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("%w: %s", sentinel, path)
	}
	return nil
}

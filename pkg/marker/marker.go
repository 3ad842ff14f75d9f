// Package marker tracks per-job completion through sentinel files.
//
// The presence of a marker file inside a job's output directory is the sole
// durable record that the job finished successfully. Planning reads markers
// to skip finished jobs; the runner writes one after each success. Deleting
// a marker forces the job to re-run on the next invocation.
//
// This is deliberately a filesystem-existence check and not an in-memory or
// database-backed state: it survives crashes, is trivially inspectable, and
// can never desynchronize from the output tree it lives in.
package marker

import (
	"fmt"
	"os"
	"path/filepath"
)

// FileName is the sentinel file written into a job's output directory.
const FileName = "job_done"

// content mirrors the original tool so existing output trees keep working.
const content = "job done."

// Path returns the marker path for a job output directory.
func Path(outDir string) string {
	return filepath.Join(outDir, FileName)
}

// IsDone reports whether the job owning outDir has previously completed.
func IsDone(outDir string) bool {
	_, err := os.Stat(Path(outDir))
	return err == nil
}

// MarkDone records successful completion of the job owning outDir.
//
// The output directory is created if the external program removed it or
// never wrote anything. Called once per job, after its work is fully
// finished, so no two writers ever target the same path.
func MarkDone(outDir string) error {
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return fmt.Errorf("create output dir %s: %w", outDir, err)
	}
	if err := os.WriteFile(Path(outDir), []byte(content), 0644); err != nil {
		return fmt.Errorf("write completion marker: %w", err)
	}
	return nil
}

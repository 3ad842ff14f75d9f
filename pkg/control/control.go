// Package control parameterizes CONTROL files for the external retrieval
// program.
//
// A CONTROL file is the external program's own configuration format and is
// treated as opaque except for the START_DATE and END_DATE lines, which are
// rewritten (or prepended when absent) to scope each job to its date chunk.
package control

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/stormpetrel/metfetch/pkg/chunk"
)

var (
	startPattern = regexp.MustCompile(`(?m)^START_DATE +\d{8}`)
	endPattern   = regexp.MustCompile(`(?m)^END_DATE +\d{8}`)
)

// RewriteDates returns content with START_DATE and END_DATE set to the given
// dates. Existing lines are replaced in place; missing lines are prepended.
func RewriteDates(content []byte, start, end time.Time) []byte {
	startLine := "START_DATE " + start.Format(chunk.DateLayout)
	endLine := "END_DATE " + end.Format(chunk.DateLayout)

	if endPattern.Match(content) {
		content = endPattern.ReplaceAll(content, []byte(endLine))
	} else {
		content = append([]byte(endLine+"\n"), content...)
	}

	if startPattern.Match(content) {
		content = startPattern.ReplaceAll(content, []byte(startLine))
	} else {
		content = append([]byte(startLine+"\n"), content...)
	}

	return content
}

// WriteCopy writes a date-parameterized copy of the base CONTROL file.
//
// The copy carries the same permissions intent as the original tool: plain
// 0644 text next to whatever destPath the planner chose. The base file is
// never modified.
func WriteCopy(basePath, destPath string, start, end time.Time) error {
	content, err := os.ReadFile(basePath)
	if err != nil {
		return fmt.Errorf("read control file %s: %w", basePath, err)
	}

	rewritten := RewriteDates(content, start, end)
	if err := os.WriteFile(destPath, rewritten, 0644); err != nil {
		return fmt.Errorf("write control copy %s: %w", destPath, err)
	}
	return nil
}

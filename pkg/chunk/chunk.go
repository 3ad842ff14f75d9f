// Package chunk splits inclusive date ranges into fixed-size sub-periods.
//
// A retrieval request for a long date range is broken into consecutive,
// non-overlapping chunks of a fixed number of days. Each chunk becomes one
// independent retrieval job. The final chunk is truncated to the remaining
// days when the range does not divide evenly.
package chunk

import (
	"errors"
	"fmt"
	"time"
)

// DateLayout is the wire format for dates throughout the tool.
// It matches the START_DATE/END_DATE convention of the external
// retrieval program's CONTROL files.
const DateLayout = "20060102"

// Sentinel errors for range validation.
var (
	// ErrInvalidRange indicates the start date is after the end date.
	ErrInvalidRange = errors.New("start date is after end date")

	// ErrInvalidChunkSize indicates days-per-chunk is below one.
	ErrInvalidChunkSize = errors.New("days per chunk must be >= 1")
)

// Range is an inclusive day-granularity date range.
type Range struct {
	Start time.Time
	End   time.Time
}

// Days returns the number of calendar days covered by the range, inclusive.
func (r Range) Days() int {
	return int(r.End.Sub(r.Start).Hours()/24) + 1
}

// String formats the range as "YYYYMMDD-YYYYMMDD".
func (r Range) String() string {
	return r.Start.Format(DateLayout) + "-" + r.End.Format(DateLayout)
}

// ParseDate parses a YYYYMMDD date string into a UTC day value.
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (want YYYYMMDD): %w", s, err)
	}
	return t, nil
}

// BreakDown splits [start, end] into ordered chunks of daysPerChunk days.
//
// The chunks are consecutive, non-overlapping, and gap-free; their union is
// exactly [start, end]. Every chunk spans daysPerChunk days except possibly
// the last, which is truncated to the remaining days. The function is pure:
// the same inputs always yield the same sequence.
//
// Returns ErrInvalidRange when start > end and ErrInvalidChunkSize when
// daysPerChunk < 1.
func BreakDown(start, end time.Time, daysPerChunk int) ([]Range, error) {
	if daysPerChunk < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidChunkSize, daysPerChunk)
	}

	start = truncateDay(start)
	end = truncateDay(end)
	if start.After(end) {
		return nil, fmt.Errorf("%w: %s > %s",
			ErrInvalidRange, start.Format(DateLayout), end.Format(DateLayout))
	}

	var ranges []Range
	for t1 := start; !t1.After(end); {
		t2 := t1.AddDate(0, 0, daysPerChunk-1)
		if t2.After(end) {
			t2 = end
		}
		ranges = append(ranges, Range{Start: t1, End: t2})
		t1 = t2.AddDate(0, 0, 1)
	}

	return ranges, nil
}

// truncateDay drops any sub-day component and normalizes to UTC.
func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

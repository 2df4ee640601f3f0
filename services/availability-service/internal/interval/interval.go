package interval

import (
	"fmt"
	"sort"
	"time"
)

// Interval is a UTC busy window. Overlap checks treat intervals as half-open:
// an interval ending exactly when another starts does not conflict with it.
type Interval struct {
	Start time.Time
	End   time.Time
}

// Merge sorts intervals by start and folds overlapping or touching ones into
// a single interval. Input is not modified; empty input returns nil.
func Merge(in []Interval) []Interval {
	if len(in) == 0 {
		return nil
	}

	sorted := make([]Interval, len(in))
	copy(sorted, in)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Start.Equal(sorted[j].Start) {
			return sorted[i].End.Before(sorted[j].End)
		}
		return sorted[i].Start.Before(sorted[j].Start)
	})

	merged := make([]Interval, 0, len(sorted))
	merged = append(merged, sorted[0])
	for _, cur := range sorted[1:] {
		last := &merged[len(merged)-1]
		// Touching counts as mergeable, so back-to-back busy blocks collapse.
		if cur.Start.After(last.End) {
			merged = append(merged, cur)
			continue
		}
		if cur.End.After(last.End) {
			last.End = cur.End
		}
	}
	return merged
}

// Overlaps reports whether [aStart, aEnd) and [bStart, bEnd) strictly overlap.
// Shared boundaries are not an overlap.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// IsFree reports whether a slot [start, end), expanded by the given buffers,
// avoids every busy interval.
func IsFree(start, end time.Time, busy []Interval, bufBefore, bufAfter time.Duration) bool {
	if bufBefore > 0 {
		start = start.Add(-bufBefore)
	}
	if bufAfter > 0 {
		end = end.Add(bufAfter)
	}
	for _, b := range busy {
		if Overlaps(start, end, b.Start, b.End) {
			return false
		}
	}
	return true
}

// Parse normalizes an RFC3339 start/end pair into a UTC interval.
func Parse(startRaw, endRaw string) (Interval, error) {
	start, err := time.Parse(time.RFC3339, startRaw)
	if err != nil {
		return Interval{}, fmt.Errorf("invalid interval start %q: %w", startRaw, err)
	}
	end, err := time.Parse(time.RFC3339, endRaw)
	if err != nil {
		return Interval{}, fmt.Errorf("invalid interval end %q: %w", endRaw, err)
	}
	if !end.After(start) {
		return Interval{}, fmt.Errorf("interval end %q is not after start %q", endRaw, startRaw)
	}
	return Interval{Start: start.UTC(), End: end.UTC()}, nil
}

package models

import (
	"fmt"
	"sort"
)

// TimeInterval is an inclusive range of the photo timeline, in seconds,
// known to be fully synced.
type TimeInterval struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// BeginningOfTime is the sentinel interval a full scan grows from.
var BeginningOfTime = TimeInterval{Start: 0, End: 0}

// NewTimeInterval creates a validated TimeInterval
func NewTimeInterval(start, end int64) (TimeInterval, error) {
	iv := TimeInterval{Start: start, End: end}
	if err := iv.Validate(); err != nil {
		return TimeInterval{}, err
	}
	return iv, nil
}

// Validate checks that the interval is well formed. A point interval
// (Start == End) is valid.
func (i TimeInterval) Validate() error {
	if i.Start < 0 {
		return fmt.Errorf("%w: negative start %d", ErrInvalidInterval, i.Start)
	}
	if i.Start > i.End {
		return fmt.Errorf("%w: start %d after end %d", ErrInvalidInterval, i.Start, i.End)
	}
	return nil
}

// Contains reports whether ts falls inside the interval
func (i TimeInterval) Contains(ts int64) bool {
	return ts >= i.Start && ts <= i.End
}

func (i TimeInterval) String() string {
	return fmt.Sprintf("[%d,%d]", i.Start, i.End)
}

// SortIntervals sorts in place, ascending by Start
func SortIntervals(intervals []TimeInterval) {
	sort.SliceStable(intervals, func(a, b int) bool {
		return intervals[a].Start < intervals[b].Start
	})
}

// MergeIntervals returns the minimal sorted set of non-overlapping,
// non-adjacent intervals covering exactly the points of the input.
// Two intervals merge when next.Start <= current.End+1. The input is not
// modified.
func MergeIntervals(intervals []TimeInterval) []TimeInterval {
	if len(intervals) == 0 {
		return []TimeInterval{}
	}

	sorted := make([]TimeInterval, len(intervals))
	copy(sorted, intervals)
	SortIntervals(sorted)

	merged := make([]TimeInterval, 0, len(sorted))
	current := sorted[0]
	for _, next := range sorted[1:] {
		if next.Start <= current.End+1 {
			if next.End > current.End {
				current.End = next.End
			}
			continue
		}
		merged = append(merged, current)
		current = next
	}
	return append(merged, current)
}

// IsNormalized reports whether intervals are already in MergeIntervals form
func IsNormalized(intervals []TimeInterval) bool {
	for i := 1; i < len(intervals); i++ {
		if intervals[i].Start <= intervals[i-1].End+1 {
			return false
		}
	}
	return true
}

// FindByStart returns the index of the interval starting at start, or -1
func FindByStart(intervals []TimeInterval, start int64) int {
	for i, iv := range intervals {
		if iv.Start == start {
			return i
		}
	}
	return -1
}

// FindContaining returns the index of the first interval containing ts, or -1
func FindContaining(intervals []TimeInterval, ts int64) int {
	for i, iv := range intervals {
		if iv.Contains(ts) {
			return i
		}
	}
	return -1
}

// CloneIntervals returns a copy that can be mutated independently
func CloneIntervals(intervals []TimeInterval) []TimeInterval {
	out := make([]TimeInterval, len(intervals))
	copy(out, intervals)
	return out
}

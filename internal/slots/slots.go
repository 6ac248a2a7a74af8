// Package slots computes bookable start times from a provider's availability windows.
package slots

import (
	"errors"
	"fmt"
	"iter"
	"time"

	"chairbook/backend/internal/domain"
)

var ErrInvalidRequest = errors.New("invalid slot query")

type Query struct {
	// Date is the calendar day to compute; only its year, month and day are used.
	Date     time.Time
	Location *time.Location
	Windows  []domain.AvailabilityWindow
	Duration time.Duration
	Step     time.Duration
	// Now filters out candidates that start in the past. Zero disables the filter.
	Now time.Time
}

// Compute returns the chronological sequence of start times t such that [t, t+Duration) fits inside
// one active window for the date. Candidates step from each window's start. The sequence is finite
// and can be ranged over more than once.
func Compute(q Query) (iter.Seq[time.Time], error) {
	if q.Duration <= 0 {
		return nil, fmt.Errorf("%w: duration must be positive", ErrInvalidRequest)
	}
	if q.Step <= 0 {
		return nil, fmt.Errorf("%w: step must be positive", ErrInvalidRequest)
	}
	loc := q.Location
	if loc == nil {
		loc = time.UTC
	}

	y, m, d := q.Date.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, loc)
	if !q.Now.IsZero() {
		ny, nm, nd := q.Now.In(loc).Date()
		if day.Before(time.Date(ny, nm, nd, 0, 0, 0, 0, loc)) {
			return nil, fmt.Errorf("%w: date is in the past", ErrInvalidRequest)
		}
	}

	intervals := domain.ExpandWindows(q.Windows, day, loc)
	duration, step, now := q.Duration, q.Step, q.Now

	return func(yield func(time.Time) bool) {
		for _, iv := range intervals {
			for t := iv.Start; !t.Add(duration).After(iv.End); t = t.Add(step) {
				if !now.IsZero() && t.Before(now) {
					continue
				}
				if !yield(t) {
					return
				}
			}
		}
	}, nil
}

// Collect drains a slot sequence into a slice.
func Collect(seq iter.Seq[time.Time]) []time.Time {
	var out []time.Time
	for t := range seq {
		out = append(out, t)
	}
	return out
}

// Fits reports whether [start, end) lies entirely inside one of the intervals.
func Fits(intervals []domain.Interval, start, end time.Time) bool {
	if !end.After(start) {
		return false
	}
	want := domain.Interval{Start: start, End: end}
	for _, iv := range intervals {
		if iv.Contains(want) {
			return true
		}
	}
	return false
}

// Without drops candidates whose [t, t+duration) overlaps any of the busy intervals.
func Without(seq iter.Seq[time.Time], duration time.Duration, busy []domain.Interval) iter.Seq[time.Time] {
	return func(yield func(time.Time) bool) {
		for t := range seq {
			candidate := domain.Interval{Start: t, End: t.Add(duration)}
			free := true
			for _, b := range busy {
				if candidate.Overlaps(b) {
					free = false
					break
				}
			}
			if free && !yield(t) {
				return
			}
		}
	}
}

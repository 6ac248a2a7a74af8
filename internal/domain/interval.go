package domain

import "time"

// Interval is a half-open span [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

func (i Interval) Valid() bool {
	return i.End.After(i.Start)
}

func (i Interval) Duration() time.Duration {
	return i.End.Sub(i.Start)
}

// Overlaps reports whether the two half-open intervals intersect: a.start < b.end && b.start < a.end.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start.Before(o.End) && o.Start.Before(i.End)
}

// Contains reports whether o lies entirely inside i.
func (i Interval) Contains(o Interval) bool {
	return !o.Start.Before(i.Start) && !o.End.After(i.End)
}

// LocalDates lists the calendar dates in loc that the interval touches, in order.
func (i Interval) LocalDates(loc *time.Location) []string {
	if loc == nil {
		loc = time.UTC
	}
	last := i.Start
	if i.Valid() {
		last = i.End.Add(-time.Nanosecond)
	}
	y, m, d := i.Start.In(loc).Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, loc)
	lastDate := last.In(loc).Format(DateLayout)

	var out []string
	for {
		date := day.Format(DateLayout)
		out = append(out, date)
		if date >= lastDate {
			return out
		}
		day = time.Date(day.Year(), day.Month(), day.Day()+1, 0, 0, 0, 0, loc)
	}
}

package domain

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const DateLayout = "2006-01-02"

// Clock is a local wall-clock time of day in minutes since midnight. 24:00 is allowed as an end.
type Clock int

const EndOfDay Clock = 24 * 60

func NewClock(hour, minute int) Clock {
	return Clock(hour*60 + minute)
}

func ParseClock(s string) (Clock, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, errors.New("invalid time of day")
	}
	if h < 0 || m < 0 || m > 59 || h > 24 || (h == 24 && m != 0) {
		return 0, errors.New("invalid time of day")
	}
	return NewClock(h, m), nil
}

func (c Clock) Hour() int   { return int(c) / 60 }
func (c Clock) Minute() int { return int(c) % 60 }

func (c Clock) Valid() bool {
	return c >= 0 && c <= EndOfDay
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour(), c.Minute())
}

// On places the wall-clock time on the given calendar day in loc. The local hour is preserved
// across DST changes; 24:00 lands on the next midnight.
func (c Clock) On(year int, month time.Month, day int, loc *time.Location) time.Time {
	return time.Date(year, month, day, c.Hour(), c.Minute(), 0, 0, loc)
}

type AvailabilityWindow struct {
	bun.BaseModel `bun:"table:availability_windows"`

	ID         uuid.UUID    `bun:"id,pk,type:uuid"`
	ProviderID string       `bun:"provider_id,notnull"`
	ShopID     string       `bun:"shop_id,notnull"`
	Weekday    time.Weekday `bun:"weekday,notnull"`
	Start      Clock        `bun:"start_minute,notnull"`
	End        Clock        `bun:"end_minute,notnull"`
	Active     bool         `bun:"active,notnull"`
	CreatedAt  time.Time    `bun:"created_at,notnull"`
	UpdatedAt  time.Time    `bun:"updated_at,notnull"`
}

func (w *AvailabilityWindow) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if w.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			w.ID = id
		}
		if w.CreatedAt.IsZero() {
			w.CreatedAt = now
		}
		if w.UpdatedAt.IsZero() {
			w.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		w.UpdatedAt = now
	}
	return nil
}

// Overlaps reports whether two windows share a weekday and their wall-clock spans intersect.
func (w AvailabilityWindow) Overlaps(o AvailabilityWindow) bool {
	return w.Weekday == o.Weekday && w.Start < o.End && o.Start < w.End
}

func ValidWeekday(wd time.Weekday) bool {
	return wd >= time.Sunday && wd <= time.Saturday
}

// ExpandWindows maps the active windows that apply to date's weekday onto concrete instants of that
// calendar day in loc, ordered by start. date is interpreted by its own year/month/day.
func ExpandWindows(windows []AvailabilityWindow, date time.Time, loc *time.Location) []Interval {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := date.Date()
	weekday := time.Date(y, m, d, 12, 0, 0, 0, loc).Weekday()

	out := make([]Interval, 0, len(windows))
	for _, w := range windows {
		if !w.Active || w.Weekday != weekday {
			continue
		}
		if !w.Start.Valid() || !w.End.Valid() || w.Start >= w.End {
			continue
		}
		start := w.Start.On(y, m, d, loc)
		end := w.End.On(y, m, d, loc)
		if !end.After(start) {
			continue
		}
		out = append(out, Interval{Start: start, End: end})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

// ParseDate parses a YYYY-MM-DD calendar date as local midnight in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation(DateLayout, s, loc)
	if err != nil {
		return time.Time{}, errors.New("invalid date")
	}
	return t, nil
}

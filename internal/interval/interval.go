// Package interval provides day and hour ranges used by availability and pricing.
// All day arithmetic happens on UTC calendar days so that client and server agree on boundaries.
package interval

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const DateLayout = "2006-01-02"

const secondsPerDay = 24 * 60 * 60

var (
	ErrInvalidDate = errors.New("invalid date")
	ErrInvalidHour = errors.New("invalid hour")
)

// Day truncates t to midnight of its UTC calendar day.
func Day(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// DayKey returns the YYYY-MM-DD identifier of t's UTC day.
func DayKey(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// DayNumber returns the number of days since the Unix epoch for t's UTC day.
func DayNumber(t time.Time) int {
	return int(Day(t).Unix() / secondsPerDay)
}

// FromDayNumber is the inverse of DayNumber.
func FromDayNumber(n int) time.Time {
	return time.Unix(int64(n)*secondsPerDay, 0).UTC()
}

// ParseDate accepts YYYY-MM-DD or an RFC 3339 timestamp and returns the UTC day.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return Day(t), nil
}

// Nights is a half-open range of day numbers [Start, End).
type Nights struct {
	Start int
	End   int
}

// OccupiedNights returns the nights used by a stay from start to the checkout day end.
// The checkout day itself stays free for a new check-in.
func OccupiedNights(start, end time.Time) Nights {
	return Nights{Start: DayNumber(start), End: DayNumber(end)}
}

func (n Nights) Count() int {
	if n.End <= n.Start {
		return 0
	}
	return n.End - n.Start
}

func (n Nights) Empty() bool {
	return n.Count() == 0
}

func (n Nights) Contains(day int) bool {
	return day >= n.Start && day < n.End
}

func (n Nights) Overlaps(o Nights) bool {
	if n.Empty() || o.Empty() {
		return false
	}
	return n.Start < o.End && o.Start < n.End
}

// Days lists every occupied night as a UTC midnight.
func (n Nights) Days() []time.Time {
	days := make([]time.Time, 0, n.Count())
	for d := n.Start; d < n.End; d++ {
		days = append(days, FromDayNumber(d))
	}
	return days
}

// HourRange is a half-open range of hours [Start, End) within one day.
type HourRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

func (h HourRange) Duration() int {
	return h.End - h.Start
}

func (h HourRange) Overlaps(o HourRange) bool {
	return HourOverlap(h.Start, h.End, o.Start, o.End)
}

func (h HourRange) Contains(hour int) bool {
	return hour >= h.Start && hour < h.End
}

// WithBuffer extends the range by buffer hours after its end.
func (h HourRange) WithBuffer(buffer int) HourRange {
	return HourRange{Start: h.Start, End: h.End + buffer}
}

// CleaningBlock is the buffer hours right after the range.
func (h HourRange) CleaningBlock(buffer int) HourRange {
	return HourRange{Start: h.End, End: h.End + buffer}
}

func (h HourRange) String() string {
	return FormatHour(h.Start) + "-" + FormatHour(h.End)
}

// HourOverlap reports whether [aStart, aEnd) and [bStart, bEnd) intersect.
func HourOverlap(aStart, aEnd, bStart, bEnd int) bool {
	return aStart < bEnd && bStart < aEnd
}

// ParseHour parses "HH:MM" (or a bare hour) into an hour between 0 and 24.
// Only whole hours are accepted.
func ParseHour(s string) (int, error) {
	s = strings.TrimSpace(s)
	hourPart, minutePart, hasMinutes := strings.Cut(s, ":")
	hour, err := strconv.Atoi(hourPart)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidHour, s)
	}
	if hasMinutes {
		minutes, err := strconv.Atoi(minutePart)
		if err != nil || minutes != 0 {
			return 0, fmt.Errorf("%w: %q", ErrInvalidHour, s)
		}
	}
	if hour < 0 || hour > 24 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidHour, s)
	}
	return hour, nil
}

func FormatHour(h int) string {
	return fmt.Sprintf("%02d:00", h)
}

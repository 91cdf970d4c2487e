// Package schedule decides which events are still ahead and which are over.
//
// An event carries a calendar date and, optionally, a display time such as
// "7:30 PM". Events whose time is missing, "TBA" or unreadable are treated as
// lasting until the end of their day, so they stay upcoming for that whole
// day.
package schedule

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"ensemble/internal/model"
)

// TBA marks an event whose time has not been announced.
const TBA = "TBA"

// ErrInvalidDateFormat is returned when a date is not three numeric
// year-month-day components.
var ErrInvalidDateFormat = errors.New("invalid date format")

var clockPattern = regexp.MustCompile(`(?i)(\d{1,2}):(\d{2})\s*(AM|PM)`)

// DateError reports the event whose date could not be read.
type DateError struct {
	Index int
	Date  string
}

func (e *DateError) Error() string {
	return fmt.Sprintf("event %d: %s %q", e.Index, ErrInvalidDateFormat, e.Date)
}

func (e *DateError) Unwrap() error { return ErrInvalidDateFormat }

// Classified is the upcoming/past split of a list of events.
type Classified struct {
	// Upcoming is sorted earliest first.
	Upcoming []model.Event `json:"upcoming"`
	// Past is sorted most recent first.
	Past []model.Event `json:"past"`
}

// ParseDate reads a YYYY-MM-DD date as midnight in loc.
func ParseDate(date string, loc *time.Location) (time.Time, error) {
	parts := strings.Split(date, "-")
	if len(parts) != 3 {
		return time.Time{}, ErrInvalidDateFormat
	}
	var ymd [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return time.Time{}, ErrInvalidDateFormat
		}
		ymd[i] = n
	}
	if loc == nil {
		loc = time.Local
	}
	return time.Date(ymd[0], time.Month(ymd[1]), ymd[2], 0, 0, 0, 0, loc), nil
}

// ParseClock extracts a 24-hour hour and minute from a display time like
// "3:00 PM". ok is false for "", "TBA" and anything without an H:MM AM|PM
// part.
func ParseClock(s string) (hour, minute int, ok bool) {
	if s == "" || s == TBA {
		return 0, 0, false
	}
	m := clockPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, 0, false
	}
	hour, _ = strconv.Atoi(m[1])
	minute, _ = strconv.Atoi(m[2])

	switch pm := strings.EqualFold(m[3], "PM"); {
	case pm && hour != 12:
		hour += 12
	case !pm && hour == 12:
		hour = 0
	}
	return hour, minute, true
}

// ResolveEffectiveInstant returns the instant used to order and classify an
// event. The date is read in now's location.
func ResolveEffectiveInstant(date, clock string, now time.Time) (time.Time, error) {
	day, err := ParseDate(date, now.Location())
	if err != nil {
		return time.Time{}, err
	}
	hour, minute, ok := ParseClock(clock)
	if !ok {
		return endOfDay(day), nil
	}
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, day.Location()), nil
}

func endOfDay(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), 23, 59, 59, int(999*time.Millisecond), day.Location())
}

// Validate reports whether the event's date can be classified.
func Validate(ev model.Event) error {
	if _, err := ParseDate(ev.Date, time.UTC); err != nil {
		return err
	}
	return nil
}

type timed struct {
	at time.Time
	ev model.Event
}

// Classify splits events into upcoming (effective instant at or after now)
// and past, ordering upcoming ascending and past descending.
//
// The first event with an unreadable date aborts classification with a
// *DateError.
func Classify(events []model.Event, now time.Time) (Classified, error) {
	var upcoming, past []timed
	for i, ev := range events {
		at, err := ResolveEffectiveInstant(ev.Date, ev.Time, now)
		if err != nil {
			return Classified{}, &DateError{Index: i, Date: ev.Date}
		}
		if at.Before(now) {
			past = append(past, timed{at, ev})
		} else {
			upcoming = append(upcoming, timed{at, ev})
		}
	}

	slices.SortStableFunc(upcoming, func(a, b timed) int { return a.at.Compare(b.at) })
	slices.SortStableFunc(past, func(a, b timed) int { return b.at.Compare(a.at) })

	return Classified{
		Upcoming: unwrap(upcoming),
		Past:     unwrap(past),
	}, nil
}

func unwrap(ts []timed) []model.Event {
	out := make([]model.Event, len(ts))
	for i, t := range ts {
		out[i] = t.ev
	}
	return out
}

package ics

import (
	"io"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/google/uuid"

	"ensemble/internal/model"
	"ensemble/internal/schedule"
)

// uidNamespace scopes event UIDs so they never collide with other
// name-based UUIDs.
var uidNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:ensemble:events"))

const uidSuffix = "@ensemble"

// ExportOptions describes the published calendar.
type ExportOptions struct {
	// Name is the calendar display name (X-WR-CALNAME).
	Name string
	// Scope distinguishes pages so equal events on two pages keep distinct
	// UIDs.
	Scope string
	// Location is the timezone event dates and times are read in.
	Location *time.Location
	// Duration is the length given to timed events.
	Duration time.Duration
	// Now stamps DTSTAMP.
	Now time.Time
}

// EventUID returns a stable UID for an event: the same scope, date and name
// always give the same value.
func EventUID(scope string, ev model.Event) string {
	key := strings.Join([]string{scope, ev.Date, ev.Time, ev.Name}, "\x00")
	return uuid.NewSHA1(uidNamespace, []byte(key)).String() + uidSuffix
}

// ScopedEvent is an event together with the scope its UID is derived in.
type ScopedEvent struct {
	Scope string
	Event model.Event
}

// Export writes a METHOD:PUBLISH calendar of events to w, all in
// opts.Scope. Events with a readable display time become timed events; the
// rest are all-day. Events with an unreadable date are skipped.
func Export(w io.Writer, events []model.Event, opts ExportOptions) error {
	scoped := make([]ScopedEvent, len(events))
	for i, ev := range events {
		scoped[i] = ScopedEvent{Scope: opts.Scope, Event: ev}
	}
	return ExportScoped(w, scoped, opts)
}

// ExportScoped is Export for events from several scopes, e.g. a feed that
// merges every page.
func ExportScoped(w io.Writer, events []ScopedEvent, opts ExportOptions) error {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	if opts.Duration <= 0 {
		opts.Duration = 2 * time.Hour
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId("-//ensemble//site calendar//EN")
	cal.SetCalscale("GREGORIAN")
	if opts.Name != "" {
		cal.SetXWRCalName(opts.Name)
	}
	if loc != time.Local {
		cal.SetXWRTimezone(loc.String())
	}
	cal.SetXPublishedTTL("PT1H")

	// Repeated entries would share a UID and be merged by clients; later
	// copies get a numeric suffix.
	seen := make(map[string]int)
	for _, se := range events {
		ev := se.Event
		day, err := schedule.ParseDate(ev.Date, loc)
		if err != nil {
			continue
		}

		uid := EventUID(se.Scope, ev)
		seen[uid]++
		if n := seen[uid]; n > 1 {
			uid = strings.TrimSuffix(uid, uidSuffix) + "-" + strconv.Itoa(n) + uidSuffix
		}

		vev := cal.AddEvent(uid)
		vev.SetDtStampTime(opts.Now.UTC())

		if hour, minute, ok := schedule.ParseClock(ev.Time); ok {
			start := time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, loc)
			vev.SetStartAt(start)
			vev.SetEndAt(start.Add(opts.Duration))
		} else {
			vev.SetAllDayStartAt(day)
			vev.SetAllDayEndAt(day.AddDate(0, 0, 1))
		}

		if ev.Name != "" {
			vev.SetSummary(ev.Name)
		}
		if ev.Location != "" {
			vev.SetLocation(ev.Location)
		}
		if desc := describe(ev); desc != "" {
			vev.SetDescription(desc)
		}
		if ev.Info != "" {
			vev.SetURL(ev.Info)
		}
	}

	return cal.SerializeTo(w)
}

func describe(ev model.Event) string {
	var parts []string
	if ev.Type != "" {
		parts = append(parts, ev.Type)
	}
	if len(ev.Program) > 0 {
		composers := make([]string, 0, len(ev.Program))
		for _, p := range ev.Program {
			composers = append(composers, p.Composer)
		}
		parts = append(parts, "Program: "+strings.Join(composers, ", "))
	}
	if ev.Time == schedule.TBA {
		parts = append(parts, "Time to be announced")
	}
	if ev.Note != "" {
		parts = append(parts, ev.Note)
	}
	return strings.Join(parts, "\n")
}

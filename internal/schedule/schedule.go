// Package schedule turns a recognized timetable slot into a calendar event
// request carrying a weekly recurrence rule with holiday exception dates.
//
// Everything in this package is pure: no I/O, deterministic given inputs.
// The side effect (creating the event) lives in internal/gcal.
package schedule

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/teambition/rrule-go"
)

var (
	// ErrInvalidDayName is returned for a day name that matches neither a
	// full weekday name nor a recognized two-letter prefix. Guessing a
	// default weekday instead is a defect, not a fallback.
	ErrInvalidDayName = errors.New("invalid day name")

	// ErrInvalidTimeFormat is returned for wall-clock times not parseable
	// as HH:MM (24h).
	ErrInvalidTimeFormat = errors.New("invalid time format (want HH:MM)")
)

// TimeZone is the fixed timezone tag used on event timestamps and the
// EXDATE clause.
const TimeZone = "GMT"

// semesterMonths is how far a recurring class runs past the planning instant.
const semesterMonths = 3

// ClassSlot is one recognized class from a timetable image.
type ClassSlot struct {
	Summary     string
	DayOfWeek   string // "Monday".."Sunday" or a two-letter prefix ("Mo".."Su")
	StartTime   string // "HH:MM", 24h
	EndTime     string // "HH:MM", 24h
	Description string
}

// EventTime mirrors the calendar provider's dateTime+timeZone pair.
type EventTime struct {
	DateTime string
	TimeZone string
}

// EventRequest is the provider-neutral payload for one recurring event.
type EventRequest struct {
	Summary     string
	Description string
	Start       EventTime
	End         EventTime
	Recurrence  []string
}

// Monday-first, matching the day-of-week names the vision model is asked
// to produce.
var weekdayNames = [7]string{
	"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday",
}

func dayIndex(name string) (int, error) {
	n := strings.TrimSpace(name)
	for i, full := range weekdayNames {
		if strings.EqualFold(n, full) {
			return i, nil
		}
	}
	// Short forms are exactly two letters ("Mo".."Su"); anything longer
	// that isn't a full name is rejected, not guessed at.
	if len(n) == 2 {
		p := strings.ToLower(n)
		for i, full := range weekdayNames {
			if p == strings.ToLower(full[:2]) {
				return i, nil
			}
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidDayName, name)
}

// NextWeekday returns the date of the next occurrence of the named weekday
// strictly after ref's date: if ref itself falls on that weekday, the result
// is 7 days later, never the same day. Classes are scheduled from the next
// upcoming slot, not today's.
func NextWeekday(ref time.Time, name string) (time.Time, error) {
	target, err := dayIndex(name)
	if err != nil {
		return time.Time{}, err
	}
	// time.Weekday is Sunday-first; shift to Monday-first.
	cur := (int(ref.Weekday()) + 6) % 7
	ahead := target - cur
	if ahead <= 0 {
		ahead += 7
	}
	d := ref.AddDate(0, 0, ahead)
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, ref.Location()), nil
}

// Exceptions walks weekly from first while the occurrence's date is on or
// before end's date, and returns the occurrences whose month-day is in hs,
// in chronological order. An empty result means the event recurs on every
// weekly occurrence.
func Exceptions(first, end time.Time, hs HolidaySet) []time.Time {
	var out []time.Time
	endY, endM, endD := end.Date()
	endDate := time.Date(endY, endM, endD, 0, 0, 0, 0, time.UTC)
	for cur := first; ; cur = cur.AddDate(0, 0, 7) {
		y, m, d := cur.Date()
		if time.Date(y, m, d, 0, 0, 0, 0, time.UTC).After(endDate) {
			break
		}
		if hs.Contains(cur) {
			out = append(out, cur)
		}
	}
	return out
}

// Planner builds event requests against a fixed holiday calendar.
type Planner struct {
	Holidays HolidaySet
}

// BuildEventRequest composes the event payload for one class slot.
//
// The recurrence runs weekly from the next occurrence of slot.DayOfWeek
// (strictly after now) until now + 3 calendar months, skipping weekly
// occurrences that land on a holiday. Pure function: calling it twice with
// identical inputs yields identical requests.
func (p Planner) BuildEventRequest(slot ClassSlot, now time.Time) (EventRequest, error) {
	until := now.AddDate(0, semesterMonths, 0)

	firstDate, err := NextWeekday(now, slot.DayOfWeek)
	if err != nil {
		return EventRequest{}, err
	}

	sh, sm, err := parseHHMM(slot.StartTime)
	if err != nil {
		return EventRequest{}, err
	}
	eh, em, err := parseHHMM(slot.EndTime)
	if err != nil {
		return EventRequest{}, err
	}

	y, m, d := firstDate.Date()
	startDT := time.Date(y, m, d, sh, sm, 0, 0, now.Location())
	endDT := time.Date(y, m, d, eh, em, 0, 0, now.Location())

	rule, err := weeklyUntil(until)
	if err != nil {
		return EventRequest{}, err
	}
	recurrence := []string{rule}
	if ex := Exceptions(startDT, until, p.Holidays); len(ex) > 0 {
		recurrence = append(recurrence, exdateClause(ex))
	}

	return EventRequest{
		Summary:     slot.Summary,
		Description: slot.Description,
		Start:       EventTime{DateTime: startDT.Format("2006-01-02T15:04:05"), TimeZone: TimeZone},
		End:         EventTime{DateTime: endDT.Format("2006-01-02T15:04:05"), TimeZone: TimeZone},
		Recurrence:  recurrence,
	}, nil
}

// weeklyUntil renders "RRULE:FREQ=WEEKLY;UNTIL=<YYYYMMDDT235959Z>" with the
// bound normalized to end-of-day UTC.
func weeklyUntil(until time.Time) (string, error) {
	y, m, d := until.Date()
	r, err := rrule.NewRRule(rrule.ROption{
		Freq:  rrule.WEEKLY,
		Until: time.Date(y, m, d, 23, 59, 59, 0, time.UTC),
	})
	if err != nil {
		return "", err
	}
	return "RRULE:" + r.String(), nil
}

func exdateClause(ex []time.Time) string {
	parts := make([]string, 0, len(ex))
	for _, t := range ex {
		parts = append(parts, t.Format("20060102T150405"))
	}
	return "EXDATE;TZID=" + TimeZone + ":" + strings.Join(parts, ",")
}

func parseHHMM(s string) (hour, minute int, err error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidTimeFormat, s)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidTimeFormat, s)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidTimeFormat, s)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidTimeFormat, s)
	}
	return hour, minute, nil
}

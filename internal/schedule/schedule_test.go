package schedule

import (
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestNextWeekdayVariants(t *testing.T) {
	t.Parallel()
	// 2025-11-03 is a Monday.
	ref := time.Date(2025, 11, 3, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		day  string
		want time.Time
	}{
		{name: "same weekday resolves a week later", day: "Monday", want: date(2025, 11, 10)},
		{name: "lowercase full name", day: "friday", want: date(2025, 11, 7)},
		{name: "short form We", day: "We", want: date(2025, 11, 5)},
		{name: "short form su", day: "su", want: date(2025, 11, 9)},
		{name: "tomorrow", day: "Tuesday", want: date(2025, 11, 4)},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := NextWeekday(ref, tt.day)
			if err != nil {
				t.Fatalf("NextWeekday(%q) error: %v", tt.day, err)
			}
			if !got.Equal(tt.want) {
				t.Fatalf("NextWeekday(%q) = %v, want %v", tt.day, got, tt.want)
			}
			if !got.After(ref) {
				t.Fatalf("result %v is not strictly after reference %v", got, ref)
			}
		})
	}
}

func TestNextWeekdayAlwaysStrictlyAhead(t *testing.T) {
	t.Parallel()
	// Every reference weekday against every target name: result lands on the
	// requested weekday, 1..7 days ahead.
	for off := 0; off < 7; off++ {
		ref := date(2025, 11, 3).AddDate(0, 0, off)
		for i, name := range weekdayNames {
			got, err := NextWeekday(ref, name)
			if err != nil {
				t.Fatalf("NextWeekday(%v, %q) error: %v", ref, name, err)
			}
			if gotIdx := (int(got.Weekday()) + 6) % 7; gotIdx != i {
				t.Fatalf("NextWeekday(%v, %q) landed on %v", ref, name, got.Weekday())
			}
			diff := got.Sub(ref).Hours() / 24
			if diff < 1 || diff > 7 {
				t.Fatalf("NextWeekday(%v, %q) = %v; %v days ahead", ref, name, got, diff)
			}
		}
	}
}

func TestNextWeekdayInvalid(t *testing.T) {
	t.Parallel()
	for _, bad := range []string{"", "M", "Funday", "X9", "Monday Tuesday", "Moo", "Sunset"} {
		if _, err := NextWeekday(date(2025, 11, 3), bad); !errors.Is(err, ErrInvalidDayName) {
			t.Fatalf("NextWeekday(%q) = %v, want ErrInvalidDayName", bad, err)
		}
	}
}

func TestExceptionsEmptyWhenNoHolidays(t *testing.T) {
	t.Parallel()
	hs, err := NewHolidaySet(nil)
	if err != nil {
		t.Fatalf("NewHolidaySet: %v", err)
	}
	first := time.Date(2025, 11, 10, 8, 0, 0, 0, time.UTC)
	if got := Exceptions(first, date(2026, 2, 3), hs); len(got) != 0 {
		t.Fatalf("expected no exceptions, got %v", got)
	}
}

func TestExceptionsCompleteAndSound(t *testing.T) {
	t.Parallel()
	hs, err := NewHolidaySet([]string{"12-05", "12-25", "01-01"})
	if err != nil {
		t.Fatalf("NewHolidaySet: %v", err)
	}

	// Weekly Mondays 08:00 from 2025-11-10 through 2026-02-03.
	first := time.Date(2025, 11, 10, 8, 0, 0, 0, time.UTC)
	got := Exceptions(first, date(2026, 2, 3), hs)

	// None of 12-05 (Friday), 12-25 (Thursday), 01-01 (Thursday) fall on a
	// Monday in that window, so an exhaustive walk must agree with Exceptions.
	var want []time.Time
	for cur := first; !cur.After(time.Date(2026, 2, 3, 23, 59, 59, 0, time.UTC)); cur = cur.AddDate(0, 0, 7) {
		if hs.Contains(cur) {
			want = append(want, cur)
		}
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Exceptions = %v, want %v", got, want)
	}

	// Soundness: every returned timestamp is weekly-spaced and a holiday.
	for i, ts := range got {
		if !hs.Contains(ts) {
			t.Fatalf("exception %v is not a holiday", ts)
		}
		if diff := ts.Sub(first); diff%(7*24*time.Hour) != 0 {
			t.Fatalf("exception %d (%v) is not weekly-spaced from %v", i, ts, first)
		}
	}
}

func TestExceptionsMatchesWeeklyHoliday(t *testing.T) {
	t.Parallel()
	// Force hits: every Monday date in the window declared a holiday.
	first := time.Date(2025, 11, 10, 8, 0, 0, 0, time.UTC)
	days := []string{"11-17", "12-01"}
	hs, err := NewHolidaySet(days)
	if err != nil {
		t.Fatalf("NewHolidaySet: %v", err)
	}
	got := Exceptions(first, date(2025, 12, 31), hs)
	if len(got) != 2 {
		t.Fatalf("expected 2 exceptions, got %v", got)
	}
	if got[0].Day() != 17 || got[1].Day() != 1 {
		t.Fatalf("unexpected exception dates: %v", got)
	}
	for _, ts := range got {
		if ts.Hour() != 8 || ts.Minute() != 0 {
			t.Fatalf("exception keeps the class wall time, got %v", ts)
		}
	}
}

func TestExceptionsEndDateInclusive(t *testing.T) {
	t.Parallel()
	hs, _ := NewHolidaySet([]string{"11-17"})
	first := time.Date(2025, 11, 10, 8, 0, 0, 0, time.UTC)
	// End exactly on the holiday occurrence's date: still included.
	got := Exceptions(first, date(2025, 11, 17), hs)
	if len(got) != 1 {
		t.Fatalf("expected the end-date occurrence to be included, got %v", got)
	}
}

func TestBuildEventRequestScenario(t *testing.T) {
	t.Parallel()
	hs, err := NewHolidaySet([]string{"12-05", "12-25"})
	if err != nil {
		t.Fatalf("NewHolidaySet: %v", err)
	}
	p := Planner{Holidays: hs}

	now := time.Date(2025, 11, 3, 9, 0, 0, 0, time.UTC) // a Monday
	slot := ClassSlot{
		Summary:     "CSM 258",
		DayOfWeek:   "Monday",
		StartTime:   "08:00",
		EndTime:     "09:00",
		Description: "Dr. Mensah, Room B12",
	}

	req, err := p.BuildEventRequest(slot, now)
	if err != nil {
		t.Fatalf("BuildEventRequest: %v", err)
	}

	if req.Start.DateTime != "2025-11-10T08:00:00" {
		t.Fatalf("first occurrence start = %s, want next Monday 08:00", req.Start.DateTime)
	}
	if req.End.DateTime != "2025-11-10T09:00:00" {
		t.Fatalf("first occurrence end = %s", req.End.DateTime)
	}
	if req.Start.TimeZone != "GMT" || req.End.TimeZone != "GMT" {
		t.Fatalf("timezone tags = %q/%q, want GMT", req.Start.TimeZone, req.End.TimeZone)
	}

	if len(req.Recurrence) == 0 {
		t.Fatal("missing recurrence rule")
	}
	// recurrence_end = planning instant + 3 months = 2026-02-03, end of day UTC.
	if want := "RRULE:FREQ=WEEKLY;UNTIL=20260203T235959Z"; req.Recurrence[0] != want {
		t.Fatalf("rrule = %q, want %q", req.Recurrence[0], want)
	}
	// Neither 2025-12-05 nor 2025-12-25 is a Monday, so no EXDATE clause.
	if len(req.Recurrence) != 1 {
		t.Fatalf("unexpected exception clause: %v", req.Recurrence)
	}
}

func TestBuildEventRequestExdates(t *testing.T) {
	t.Parallel()
	// Mondays 2025-12-01 and 2025-12-08 declared holidays.
	hs, err := NewHolidaySet([]string{"12-01", "12-08"})
	if err != nil {
		t.Fatalf("NewHolidaySet: %v", err)
	}
	p := Planner{Holidays: hs}

	now := time.Date(2025, 11, 3, 9, 0, 0, 0, time.UTC)
	slot := ClassSlot{Summary: "CSM 101", DayOfWeek: "Mo", StartTime: "14:00", EndTime: "16:00"}

	req, err := p.BuildEventRequest(slot, now)
	if err != nil {
		t.Fatalf("BuildEventRequest: %v", err)
	}
	if len(req.Recurrence) != 2 {
		t.Fatalf("expected RRULE + EXDATE, got %v", req.Recurrence)
	}
	if want := "EXDATE;TZID=GMT:20251201T140000,20251208T140000"; req.Recurrence[1] != want {
		t.Fatalf("exdate = %q, want %q", req.Recurrence[1], want)
	}
}

func TestBuildEventRequestIdempotent(t *testing.T) {
	t.Parallel()
	hs, _ := NewHolidaySet([]string{"12-25", "01-01"})
	p := Planner{Holidays: hs}
	now := time.Date(2025, 11, 3, 9, 0, 0, 0, time.UTC)
	slot := ClassSlot{Summary: "MATH 164", DayOfWeek: "Thursday", StartTime: "10:00", EndTime: "11:00"}

	a, err := p.BuildEventRequest(slot, now)
	if err != nil {
		t.Fatalf("BuildEventRequest: %v", err)
	}
	b, err := p.BuildEventRequest(slot, now)
	if err != nil {
		t.Fatalf("BuildEventRequest: %v", err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("not idempotent:\n%+v\n%+v", a, b)
	}
}

func TestBuildEventRequestErrors(t *testing.T) {
	t.Parallel()
	p := Planner{Holidays: HolidaySet{}}
	now := time.Date(2025, 11, 3, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		slot ClassSlot
		want error
	}{
		{
			name: "bad day name",
			slot: ClassSlot{DayOfWeek: "Noday", StartTime: "08:00", EndTime: "09:00"},
			want: ErrInvalidDayName,
		},
		{
			name: "missing colon",
			slot: ClassSlot{DayOfWeek: "Monday", StartTime: "0800", EndTime: "09:00"},
			want: ErrInvalidTimeFormat,
		},
		{
			name: "non-numeric minute",
			slot: ClassSlot{DayOfWeek: "Monday", StartTime: "08:xx", EndTime: "09:00"},
			want: ErrInvalidTimeFormat,
		},
		{
			name: "hour out of range",
			slot: ClassSlot{DayOfWeek: "Monday", StartTime: "08:00", EndTime: "25:00"},
			want: ErrInvalidTimeFormat,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if _, err := p.BuildEventRequest(tt.slot, now); !errors.Is(err, tt.want) {
				t.Fatalf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestNewHolidaySetValidation(t *testing.T) {
	t.Parallel()
	if _, err := NewHolidaySet([]string{"13-01"}); err == nil {
		t.Fatal("expected error for month 13")
	}
	if _, err := NewHolidaySet([]string{"2025-12-25"}); err == nil {
		t.Fatal("expected error for full-date entry")
	}
	hs, err := NewHolidaySet([]string{"12-25", "", "  01-07  "})
	if err != nil {
		t.Fatalf("NewHolidaySet: %v", err)
	}
	if len(hs) != 2 {
		t.Fatalf("expected 2 entries, got %v", hs.Days())
	}
	if !hs.Contains(time.Date(1999, 12, 25, 10, 0, 0, 0, time.UTC)) {
		t.Fatal("membership must ignore the year")
	}
}

func TestHolidaySetMergeICS(t *testing.T) {
	t.Parallel()
	body := strings.Join([]string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//test//EN",
		"BEGIN:VEVENT",
		"UID:h1@test",
		"DTSTAMP:20250101T000000Z",
		"DTSTART;VALUE=DATE:20250306",
		"DTEND;VALUE=DATE:20250307",
		"SUMMARY:Independence Day",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"UID:h2@test",
		"DTSTAMP:20250101T000000Z",
		"DTSTART;VALUE=DATE:20251225",
		"DTEND;VALUE=DATE:20251227",
		"SUMMARY:Christmas + Boxing Day",
		"END:VEVENT",
		"END:VCALENDAR",
	}, "\r\n")

	hs := HolidaySet{}
	n, err := hs.MergeICS([]byte(body))
	if err != nil {
		t.Fatalf("MergeICS: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 dates folded in, got %d (%v)", n, hs.Days())
	}
	for _, d := range []string{"03-06", "12-25", "12-26"} {
		if _, ok := hs[d]; !ok {
			t.Fatalf("missing %s in %v", d, hs.Days())
		}
	}
}

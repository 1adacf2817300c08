package schedule

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
)

// HolidaySet is a set of fixed "MM-DD" month-day strings representing
// non-class dates, compared against computed occurrence dates ignoring
// the year.
type HolidaySet map[string]struct{}

// NewHolidaySet builds a set from "MM-DD" entries. Malformed entries are
// rejected so a config typo surfaces at startup rather than as silently
// unskipped holidays.
func NewHolidaySet(days []string) (HolidaySet, error) {
	hs := make(HolidaySet, len(days))
	for _, d := range days {
		d = strings.TrimSpace(d)
		if d == "" {
			continue
		}
		if _, err := time.Parse("01-02", d); err != nil {
			return nil, fmt.Errorf("invalid holiday %q (want MM-DD): %w", d, err)
		}
		hs[d] = struct{}{}
	}
	return hs, nil
}

// Contains reports whether t's month-day is a holiday.
func (hs HolidaySet) Contains(t time.Time) bool {
	_, ok := hs[t.Format("01-02")]
	return ok
}

func (hs HolidaySet) add(t time.Time) {
	hs[t.Format("01-02")] = struct{}{}
}

// Days returns the month-days in sorted order (for logging and /status).
func (hs HolidaySet) Days() []string {
	out := make([]string, 0, len(hs))
	for d := range hs {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// MergeICS folds the event dates of an ICS payload (e.g. a public-holiday
// feed) into the set, ignoring years. Multi-day events contribute every
// covered date. Events that fail to parse are skipped; the feed is advisory.
func (hs HolidaySet) MergeICS(body []byte) (int, error) {
	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("parse holiday ics: %w", err)
	}
	added := 0
	for _, ve := range cal.Events() {
		start, err := propTime(ve, ical.ComponentPropertyDtStart)
		if err != nil {
			continue
		}
		end, err := propTime(ve, ical.ComponentPropertyDtEnd)
		if err != nil || end.Before(start) {
			end = start
		}
		// DTEND is exclusive for all-day events; walking while strictly
		// before end covers single- and multi-day cases alike.
		cur := start
		for {
			hs.add(cur)
			added++
			cur = cur.AddDate(0, 0, 1)
			if !cur.Before(end) {
				break
			}
		}
	}
	return added, nil
}

// propTime parses a DTSTART/DTEND property value. Only the month-day
// matters here, so DATE, local DATE-TIME and UTC forms are all acceptable.
func propTime(ve *ical.VEvent, name ical.ComponentProperty) (time.Time, error) {
	p := ve.GetProperty(name)
	if p == nil || p.Value == "" {
		return time.Time{}, fmt.Errorf("missing %s", name)
	}
	v := strings.TrimSpace(p.Value)
	switch {
	case strings.HasSuffix(v, "Z"):
		return time.Parse("20060102T150405Z", v)
	case strings.Contains(v, "T"):
		return time.ParseInLocation("20060102T150405", v, time.UTC)
	default:
		return time.ParseInLocation("20060102", v, time.UTC)
	}
}

// LoadICSSource reads an ICS holiday feed from a local path or an http(s)
// URL and merges its dates into the set.
func (hs HolidaySet) LoadICSSource(ctx context.Context, client *http.Client, source string) (int, error) {
	var body []byte
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		if client == nil {
			client = &http.Client{Timeout: 15 * time.Second}
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
		if err != nil {
			return 0, err
		}
		resp, err := client.Do(req)
		if err != nil {
			return 0, fmt.Errorf("fetch holiday ics: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode/100 != 2 {
			return 0, fmt.Errorf("fetch holiday ics: http %d", resp.StatusCode)
		}
		body, err = io.ReadAll(io.LimitReader(resp.Body, 4<<20))
		if err != nil {
			return 0, err
		}
	} else {
		var err error
		body, err = os.ReadFile(source)
		if err != nil {
			return 0, err
		}
	}
	return hs.MergeICS(body)
}

package gcal

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"testing"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"

	"classbot/internal/schedule"
	logx "classbot/pkg/logx"
)

type fakeAPI struct {
	events     []*calendar.Event
	pageSize   int
	listCalls  int
	inserted   []*calendar.Event
	deleted    []string
	insertErr  error
	deleteErr  error
	listErr    error
	nextInsert int
}

func (f *fakeAPI) insertEvent(_ context.Context, _ string, ev *calendar.Event) (*calendar.Event, error) {
	if f.insertErr != nil {
		return nil, f.insertErr
	}
	f.nextInsert++
	cp := *ev
	cp.Id = "ev" + strconv.Itoa(f.nextInsert)
	f.inserted = append(f.inserted, &cp)
	return &cp, nil
}

func (f *fakeAPI) deleteEvent(_ context.Context, _ string, eventID string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, eventID)
	return nil
}

func (f *fakeAPI) listEvents(_ context.Context, _ string, maxResults int64, pageToken string) (*calendar.Events, error) {
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	start := 0
	if pageToken != "" {
		start, _ = strconv.Atoi(pageToken)
	}
	limit := int(maxResults)
	if f.pageSize > 0 && limit > f.pageSize {
		limit = f.pageSize
	}
	end := start + limit
	if end > len(f.events) {
		end = len(f.events)
	}
	out := &calendar.Events{Items: f.events[start:end]}
	if end < len(f.events) {
		out.NextPageToken = strconv.Itoa(end)
	}
	return out, nil
}

func (f *fakeAPI) listCalendars(_ context.Context, _ int64, _ string) (*calendar.CalendarList, error) {
	return &calendar.CalendarList{Items: []*calendar.CalendarListEntry{
		{Id: "primary", Summary: "Main"},
	}}, nil
}

func newTestClient(f *fakeAPI) *Client {
	return &Client{api: f, log: logx.Nop()}
}

func makeEvents(n int) []*calendar.Event {
	out := make([]*calendar.Event, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, &calendar.Event{
			Id:      "ev" + strconv.Itoa(i),
			Summary: "CSM " + strconv.Itoa(100 + i),
			Start:   &calendar.EventDateTime{DateTime: "2025-11-10T08:00:00"},
		})
	}
	return out
}

func TestCreateEventMapsRequest(t *testing.T) {
	t.Parallel()
	f := &fakeAPI{}
	c := newTestClient(f)

	hs, _ := schedule.NewHolidaySet([]string{"12-01"})
	p := schedule.Planner{Holidays: hs}
	req, err := p.BuildEventRequest(schedule.ClassSlot{
		Summary: "CSM 258", DayOfWeek: "Monday", StartTime: "08:00", EndTime: "09:00",
		Description: "Room B12",
	}, time.Date(2025, 11, 3, 9, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("BuildEventRequest: %v", err)
	}

	id, err := c.CreateEvent(context.Background(), "primary", req)
	if err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}
	if id != "ev1" {
		t.Fatalf("id = %q", id)
	}
	got := f.inserted[0]
	if got.Summary != "CSM 258" || got.Description != "Room B12" {
		t.Fatalf("unexpected payload: %+v", got)
	}
	if got.Start.TimeZone != "GMT" || got.End.TimeZone != "GMT" {
		t.Fatalf("timezone not carried: %+v/%+v", got.Start, got.End)
	}
	if len(got.Recurrence) != 2 {
		t.Fatalf("recurrence = %v", got.Recurrence)
	}
}

func TestCreateEventRemoteFailure(t *testing.T) {
	t.Parallel()
	f := &fakeAPI{insertErr: fmt.Errorf("backend unavailable")}
	c := newTestClient(f)

	_, err := c.CreateEvent(context.Background(), "primary", schedule.EventRequest{Summary: "x"})
	var rerr *RemoteAPIError
	if !errors.As(err, &rerr) {
		t.Fatalf("error = %v, want RemoteAPIError", err)
	}
	if rerr.Op != "events.insert" {
		t.Fatalf("op = %q", rerr.Op)
	}
}

func TestDeleteEventReturnsBool(t *testing.T) {
	t.Parallel()
	f := &fakeAPI{}
	c := newTestClient(f)
	if !c.DeleteEvent(context.Background(), "primary", "ev1") {
		t.Fatal("expected delete to succeed")
	}

	f.deleteErr = fmt.Errorf("gone")
	if c.DeleteEvent(context.Background(), "primary", "ev2") {
		t.Fatal("expected delete failure to report false, not panic or error")
	}
}

func TestListEventsPaginationCap(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		total     int
		pageSize  int
		max       int
		want      int
		wantCalls int
	}{
		{name: "cap below total", total: 30, pageSize: 10, max: 25, want: 25, wantCalls: 3},
		{name: "total below cap", total: 7, pageSize: 10, max: 20, want: 7, wantCalls: 1},
		{name: "exact page boundary", total: 20, pageSize: 10, max: 20, want: 20, wantCalls: 2},
		{name: "zero max", total: 5, pageSize: 10, max: 0, want: 0, wantCalls: 0},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeAPI{events: makeEvents(tt.total), pageSize: tt.pageSize}
			c := newTestClient(f)
			got, err := c.ListEvents(context.Background(), "primary", tt.max)
			if err != nil {
				t.Fatalf("ListEvents: %v", err)
			}
			if len(got) != tt.want {
				t.Fatalf("len = %d, want %d", len(got), tt.want)
			}
			if f.listCalls != tt.wantCalls {
				t.Fatalf("api calls = %d, want %d", f.listCalls, tt.wantCalls)
			}
		})
	}
}

func TestListEventsRemoteFailure(t *testing.T) {
	t.Parallel()
	f := &fakeAPI{listErr: fmt.Errorf("boom")}
	c := newTestClient(f)
	if _, err := c.ListEvents(context.Background(), "primary", 10); err == nil {
		t.Fatal("expected error")
	}
}

func TestLoadTokenMissing(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	_, err := LoadToken(dir)
	if !errors.Is(err, ErrAuthorizationRequired) {
		t.Fatalf("error = %v, want ErrAuthorizationRequired", err)
	}
}

func TestTokenRoundTrip(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	tok := &oauth2.Token{
		AccessToken:  "at",
		RefreshToken: "rt",
		TokenType:    "Bearer",
		Expiry:       time.Now().Add(-time.Hour), // expired, but refreshable
	}
	if err := SaveToken(dir, tok); err != nil {
		t.Fatalf("SaveToken: %v", err)
	}
	got, err := LoadToken(dir)
	if err != nil {
		t.Fatalf("LoadToken: %v", err)
	}
	if got.RefreshToken != "rt" || got.AccessToken != "at" {
		t.Fatalf("unexpected token: %+v", got)
	}
}

func TestLoadTokenExpiredWithoutRefresh(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	tok := &oauth2.Token{AccessToken: "at", Expiry: time.Now().Add(-time.Hour)}
	if err := SaveToken(dir, tok); err != nil {
		t.Fatalf("SaveToken: %v", err)
	}
	if _, err := LoadToken(dir); !errors.Is(err, ErrAuthorizationRequired) {
		t.Fatalf("error = %v, want ErrAuthorizationRequired", err)
	}
}

// Package gcal wraps the Google Calendar API behind the small surface the
// bot needs: create one recurring event, delete one event, list a capped
// number of events. The client is an explicit instance passed by reference
// into every call site; there is no package-level service.
package gcal

import (
	"context"

	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"classbot/internal/schedule"
	logx "classbot/pkg/logx"
)

// Event is the trimmed view of a remote calendar event kept by this app.
type Event struct {
	ID      string
	Summary string
	Start   string
	Status  string
}

// CalendarInfo is the trimmed view of a calendar-list entry.
type CalendarInfo struct {
	ID          string
	Summary     string
	Description string
}

// api is the seam over the generated Google client, so pagination and
// delete semantics are testable against a fake.
type api interface {
	insertEvent(ctx context.Context, calendarID string, ev *calendar.Event) (*calendar.Event, error)
	deleteEvent(ctx context.Context, calendarID, eventID string) error
	listEvents(ctx context.Context, calendarID string, maxResults int64, pageToken string) (*calendar.Events, error)
	listCalendars(ctx context.Context, maxResults int64, pageToken string) (*calendar.CalendarList, error)
}

type Client struct {
	api api
	log logx.Logger
}

// eventsPageSize is the provider's per-page cap for events.list.
const eventsPageSize = 250

// NewClient builds an authenticated client from the cached OAuth token.
// Returns ErrAuthorizationRequired (wrapped) when no usable token exists.
func NewClient(ctx context.Context, credentialsFile, tokenDir string, log logx.Logger) (*Client, error) {
	conf, err := OAuthConfig(credentialsFile)
	if err != nil {
		return nil, err
	}
	tok, err := LoadToken(tokenDir)
	if err != nil {
		return nil, err
	}
	// conf.Client refreshes expired tokens transparently using the refresh
	// token; refreshed tokens live only in memory for this process.
	svc, err := calendar.NewService(ctx, option.WithHTTPClient(conf.Client(ctx, tok)))
	if err != nil {
		return nil, &RemoteAPIError{Op: "service.new", Err: err}
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{api: googleAPI{svc: svc}, log: log}, nil
}

// CreateEvent inserts one recurring event and returns the provider's opaque
// event identifier.
func (c *Client) CreateEvent(ctx context.Context, calendarID string, req schedule.EventRequest) (string, error) {
	ev := &calendar.Event{
		Summary:     req.Summary,
		Description: req.Description,
		Start:       &calendar.EventDateTime{DateTime: req.Start.DateTime, TimeZone: req.Start.TimeZone},
		End:         &calendar.EventDateTime{DateTime: req.End.DateTime, TimeZone: req.End.TimeZone},
		Recurrence:  req.Recurrence,
	}
	created, err := c.api.insertEvent(ctx, calendarID, ev)
	if err != nil {
		return "", &RemoteAPIError{Op: "events.insert", Err: err}
	}
	c.log.Info("event created",
		logx.String("event_id", created.Id),
		logx.String("summary", req.Summary),
		logx.String("first_start", req.Start.DateTime))
	return created.Id, nil
}

// DeleteEvent removes one event. It reports success as a bool rather than an
// error so an undo batch can keep iterating past individual failures.
func (c *Client) DeleteEvent(ctx context.Context, calendarID, eventID string) bool {
	if err := c.api.deleteEvent(ctx, calendarID, eventID); err != nil {
		c.log.Warn("event delete failed", logx.String("event_id", eventID), logx.Err(err))
		return false
	}
	return true
}

// ListEvents pages through events.list, accumulating until max items are
// collected or the provider signals no further pages. Never exceeds max.
func (c *Client) ListEvents(ctx context.Context, calendarID string, max int) ([]Event, error) {
	if max <= 0 {
		return nil, nil
	}
	out := make([]Event, 0, max)
	pageToken := ""
	for len(out) < max {
		size := int64(max - len(out))
		if size > eventsPageSize {
			size = eventsPageSize
		}
		page, err := c.api.listEvents(ctx, calendarID, size, pageToken)
		if err != nil {
			return nil, &RemoteAPIError{Op: "events.list", Err: err}
		}
		for _, it := range page.Items {
			if len(out) >= max {
				break
			}
			out = append(out, trimEvent(it))
		}
		pageToken = page.NextPageToken
		if pageToken == "" {
			break
		}
	}
	return out, nil
}

// ListCalendars pages through calendarList.list with the same cap contract
// as ListEvents.
func (c *Client) ListCalendars(ctx context.Context, max int) ([]CalendarInfo, error) {
	if max <= 0 {
		return nil, nil
	}
	out := make([]CalendarInfo, 0, max)
	pageToken := ""
	for len(out) < max {
		size := int64(max - len(out))
		if size > eventsPageSize {
			size = eventsPageSize
		}
		page, err := c.api.listCalendars(ctx, size, pageToken)
		if err != nil {
			return nil, &RemoteAPIError{Op: "calendarList.list", Err: err}
		}
		for _, it := range page.Items {
			if len(out) >= max {
				break
			}
			out = append(out, CalendarInfo{ID: it.Id, Summary: it.Summary, Description: it.Description})
		}
		pageToken = page.NextPageToken
		if pageToken == "" {
			break
		}
	}
	return out, nil
}

func trimEvent(it *calendar.Event) Event {
	ev := Event{ID: it.Id, Summary: it.Summary, Status: it.Status}
	if it.Start != nil {
		if it.Start.DateTime != "" {
			ev.Start = it.Start.DateTime
		} else {
			ev.Start = it.Start.Date
		}
	}
	return ev
}

// googleAPI is the production api implementation over the generated service.
type googleAPI struct {
	svc *calendar.Service
}

func (g googleAPI) insertEvent(ctx context.Context, calendarID string, ev *calendar.Event) (*calendar.Event, error) {
	return g.svc.Events.Insert(calendarID, ev).Context(ctx).Do()
}

func (g googleAPI) deleteEvent(ctx context.Context, calendarID, eventID string) error {
	return g.svc.Events.Delete(calendarID, eventID).Context(ctx).Do()
}

func (g googleAPI) listEvents(ctx context.Context, calendarID string, maxResults int64, pageToken string) (*calendar.Events, error) {
	call := g.svc.Events.List(calendarID).MaxResults(maxResults).Context(ctx)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}
	return call.Do()
}

func (g googleAPI) listCalendars(ctx context.Context, maxResults int64, pageToken string) (*calendar.CalendarList, error) {
	call := g.svc.CalendarList.List().MaxResults(maxResults).Context(ctx)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}
	return call.Do()
}

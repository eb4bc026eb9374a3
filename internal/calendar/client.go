package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/nekogravitycat/meeting-booking-backend/internal/availability"
)

// ErrEventGone is returned by Delete when the event no longer exists.
var ErrEventGone = errors.New("calendar event not found")

// Reminder is a per-event reminder override.
type Reminder struct {
	Method  string // "email" or "popup"
	Minutes int64
}

// Event is the payload written to the external calendar.
type Event struct {
	Summary     string
	Description string
	Start       time.Time
	End         time.Time
	TimeZone    string
	Reminders   []Reminder
}

// FoundEvent is an event returned by Search. Start is zero for all-day
// events.
type FoundEvent struct {
	ID          string
	Summary     string
	Description string
	Start       time.Time
}

// Client is the subset of the external calendar API the service relies on.
type Client interface {
	Insert(ctx context.Context, calendarID string, ev Event) (string, error)
	Delete(ctx context.Context, calendarID, eventID string) error
	Search(ctx context.Context, calendarID, query string, timeMin, timeMax time.Time) ([]FoundEvent, error)
	FreeBusy(ctx context.Context, calendarIDs []string, timeMin, timeMax time.Time) ([]availability.Interval, error)
}

// TokenSourcer hands out bearer tokens for calendar calls.
type TokenSourcer interface {
	TokenSource(ctx context.Context) oauth2.TokenSource
}

type googleClient struct {
	tokens   TokenSourcer
	endpoint string
}

// NewGoogleClient returns a Client backed by the Google Calendar v3 API.
// endpoint overrides the API base URL and is empty in production.
func NewGoogleClient(tokens TokenSourcer, endpoint string) Client {
	return &googleClient{tokens: tokens, endpoint: endpoint}
}

// service builds a calendar service with a freshly exchanged token.
func (c *googleClient) service(ctx context.Context) (*gcal.Service, error) {
	opts := []option.ClientOption{option.WithTokenSource(c.tokens.TokenSource(ctx))}
	if c.endpoint != "" {
		opts = append(opts, option.WithEndpoint(c.endpoint))
	}
	srv, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}
	return srv, nil
}

func (c *googleClient) Insert(ctx context.Context, calendarID string, ev Event) (string, error) {
	srv, err := c.service(ctx)
	if err != nil {
		return "", err
	}

	overrides := make([]*gcal.EventReminder, 0, len(ev.Reminders))
	for _, r := range ev.Reminders {
		overrides = append(overrides, &gcal.EventReminder{Method: r.Method, Minutes: r.Minutes})
	}

	created, err := srv.Events.Insert(calendarID, &gcal.Event{
		Summary:     ev.Summary,
		Description: ev.Description,
		Start:       &gcal.EventDateTime{DateTime: ev.Start.Format(time.RFC3339), TimeZone: ev.TimeZone},
		End:         &gcal.EventDateTime{DateTime: ev.End.Format(time.RFC3339), TimeZone: ev.TimeZone},
		Reminders: &gcal.EventReminders{
			UseDefault:      false,
			Overrides:       overrides,
			ForceSendFields: []string{"UseDefault"},
		},
	}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("insert event into %s: %w", calendarID, err)
	}
	return created.Id, nil
}

func (c *googleClient) Delete(ctx context.Context, calendarID, eventID string) error {
	srv, err := c.service(ctx)
	if err != nil {
		return err
	}
	if err := srv.Events.Delete(calendarID, eventID).Context(ctx).Do(); err != nil {
		var gErr *googleapi.Error
		if errors.As(err, &gErr) && (gErr.Code == http.StatusNotFound || gErr.Code == http.StatusGone) {
			return ErrEventGone
		}
		return fmt.Errorf("delete event %s from %s: %w", eventID, calendarID, err)
	}
	return nil
}

func (c *googleClient) Search(ctx context.Context, calendarID, query string, timeMin, timeMax time.Time) ([]FoundEvent, error) {
	srv, err := c.service(ctx)
	if err != nil {
		return nil, err
	}

	var found []FoundEvent
	call := srv.Events.List(calendarID).
		Q(query).
		SingleEvents(true).
		TimeMin(timeMin.Format(time.RFC3339)).
		TimeMax(timeMax.Format(time.RFC3339))
	err = call.Pages(ctx, func(page *gcal.Events) error {
		for _, item := range page.Items {
			ev := FoundEvent{ID: item.Id, Summary: item.Summary, Description: item.Description}
			if item.Start != nil && item.Start.DateTime != "" {
				if t, err := time.Parse(time.RFC3339, item.Start.DateTime); err == nil {
					ev.Start = t
				}
			}
			found = append(found, ev)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("search events in %s: %w", calendarID, err)
	}
	return found, nil
}

func (c *googleClient) FreeBusy(ctx context.Context, calendarIDs []string, timeMin, timeMax time.Time) ([]availability.Interval, error) {
	srv, err := c.service(ctx)
	if err != nil {
		return nil, err
	}

	items := make([]*gcal.FreeBusyRequestItem, 0, len(calendarIDs))
	for _, id := range calendarIDs {
		items = append(items, &gcal.FreeBusyRequestItem{Id: id})
	}

	resp, err := srv.Freebusy.Query(&gcal.FreeBusyRequest{
		TimeMin: timeMin.Format(time.RFC3339),
		TimeMax: timeMax.Format(time.RFC3339),
		Items:   items,
	}).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("freebusy query: %w", err)
	}

	var out []availability.Interval
	for id, cal := range resp.Calendars {
		if len(cal.Errors) > 0 {
			return nil, fmt.Errorf("freebusy for %s: %s", id, cal.Errors[0].Reason)
		}
		for _, p := range cal.Busy {
			start, err := time.Parse(time.RFC3339, p.Start)
			if err != nil {
				return nil, fmt.Errorf("parse busy start %q: %w", p.Start, err)
			}
			end, err := time.Parse(time.RFC3339, p.End)
			if err != nil {
				return nil, fmt.Errorf("parse busy end %q: %w", p.End, err)
			}
			out = append(out, availability.Interval{Start: start, End: end})
		}
	}
	return out, nil
}

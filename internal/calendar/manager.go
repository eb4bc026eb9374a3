package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nekogravitycat/meeting-booking-backend/internal/availability"
	"github.com/nekogravitycat/meeting-booking-backend/internal/pkg/apperror"
)

var (
	ErrProvisioningFailure = apperror.New(http.StatusBadGateway, "calendar event could not be created")
	ErrDeletionFailure     = apperror.New(http.StatusBadGateway, "calendar event could not be removed")
)

const bookingIDPrefix = "Booking ID: "

// PrimaryCalendar is the alias for the caller's own calendar.
const PrimaryCalendar = "primary"

var defaultReminders = []Reminder{
	{Method: "email", Minutes: 24 * 60},
	{Method: "popup", Minutes: 30},
}

// Booking is the calendar view of a booking request.
type Booking struct {
	RequestID      string
	Name           string
	Email          string
	Phone          string
	ClientName     string
	RoleName       string
	JobDescription string
	Message        string
	Slots          []Slot
}

// Slot is one booked interval. CalendarID and EventID are set once the
// event has been provisioned.
type Slot struct {
	Ordinal    int
	Start      time.Time
	End        time.Time
	CalendarID string
	EventID    string
}

// EventRef links a slot to the event created for it.
type EventRef struct {
	Ordinal    int
	CalendarID string
	EventID    string
}

// Config configures the Manager.
type Config struct {
	CalendarID     string // shared calendar, optional
	ServiceAccount string
	Location       *time.Location
}

type Manager struct {
	client Client
	cfg    Config
	log    *zap.Logger
}

func NewManager(client Client, cfg Config, log *zap.Logger) *Manager {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Manager{client: client, cfg: cfg, log: log}
}

// Candidates returns the calendar ids tried in order when writing events.
func (m *Manager) Candidates() []string {
	var ids []string
	for _, id := range []string{m.cfg.CalendarID, PrimaryCalendar, m.cfg.ServiceAccount} {
		if id == "" {
			continue
		}
		dup := false
		for _, seen := range ids {
			if seen == id {
				dup = true
				break
			}
		}
		if !dup {
			ids = append(ids, id)
		}
	}
	return ids
}

// Label is the deterministic text that identifies the event of a slot.
func Label(name string, ordinal int) string {
	return fmt.Sprintf("%s - Slot %d", strings.TrimSpace(name), ordinal)
}

// Summary is the event title written for a slot.
func Summary(name string, ordinal int) string {
	return "Meeting: " + Label(name, ordinal)
}

// CreateEvents provisions one event per slot that has no event yet. Refs for
// every successful slot are returned even when other slots failed.
func (m *Manager) CreateEvents(ctx context.Context, b Booking) ([]EventRef, error) {
	var refs []EventRef
	var errs []error

	for _, slot := range b.Slots {
		if slot.EventID != "" {
			continue
		}
		ref, err := m.createSlotEvent(ctx, b, slot)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		refs = append(refs, ref)
	}

	if len(errs) > 0 {
		return refs, apperror.WrapSentinel(ErrProvisioningFailure, errors.Join(errs...))
	}
	return refs, nil
}

func (m *Manager) createSlotEvent(ctx context.Context, b Booking, slot Slot) (EventRef, error) {
	ev := Event{
		Summary:     Summary(b.Name, slot.Ordinal),
		Description: describe(b),
		Start:       slot.Start.In(m.cfg.Location),
		End:         slot.End.In(m.cfg.Location),
		TimeZone:    m.cfg.Location.String(),
		Reminders:   defaultReminders,
	}

	var errs []error
	for _, calID := range m.Candidates() {
		id, err := m.client.Insert(ctx, calID, ev)
		if err != nil {
			m.log.Warn("calendar insert failed, trying next calendar",
				zap.String("calendar_id", calID),
				zap.String("booking_id", b.RequestID),
				zap.Int("slot", slot.Ordinal),
				zap.Error(err),
			)
			errs = append(errs, err)
			continue
		}
		return EventRef{Ordinal: slot.Ordinal, CalendarID: calID, EventID: id}, nil
	}
	return EventRef{}, fmt.Errorf("slot %d: %w", slot.Ordinal, errors.Join(errs...))
}

// DeleteEvents removes the events of every slot. Slots with a stored event
// id are deleted by id; others are located by their label. Missing events
// are not an error.
func (m *Manager) DeleteEvents(ctx context.Context, b Booking) error {
	var errs []error
	for _, slot := range b.Slots {
		var err error
		if slot.EventID != "" && slot.CalendarID != "" {
			err = m.deleteByID(ctx, slot.CalendarID, slot.EventID)
		} else {
			err = m.deleteByLabel(ctx, b, slot)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("slot %d: %w", slot.Ordinal, err))
		}
	}
	if len(errs) > 0 {
		return apperror.WrapSentinel(ErrDeletionFailure, errors.Join(errs...))
	}
	return nil
}

func (m *Manager) deleteByID(ctx context.Context, calendarID, eventID string) error {
	err := m.client.Delete(ctx, calendarID, eventID)
	if errors.Is(err, ErrEventGone) {
		return nil
	}
	return err
}

func (m *Manager) deleteByLabel(ctx context.Context, b Booking, slot Slot) error {
	var searchErrs, deleteErrs []error
	for _, calID := range m.Candidates() {
		found, err := m.client.Search(ctx, calID, Label(b.Name, slot.Ordinal), slot.Start, slot.End)
		if err != nil {
			searchErrs = append(searchErrs, err)
			continue
		}
		for _, ev := range found {
			if !ownsEvent(b, slot, ev) {
				continue
			}
			if err := m.deleteByID(ctx, calID, ev.ID); err != nil {
				deleteErrs = append(deleteErrs, err)
			}
		}
	}

	// A calendar we cannot read cannot hold our events, so search errors
	// only count when no calendar was searchable at all.
	if len(deleteErrs) > 0 {
		return errors.Join(deleteErrs...)
	}
	if len(searchErrs) == len(m.Candidates()) {
		return errors.Join(searchErrs...)
	}
	return nil
}

// ownsEvent reports whether ev is the event written for slot of b. The
// summary alone is shared by every booking made under the same name, so the
// start time must match and a recorded booking id must be ours.
func ownsEvent(b Booking, slot Slot, ev FoundEvent) bool {
	if ev.Summary != Summary(b.Name, slot.Ordinal) || !ev.Start.Equal(slot.Start) {
		return false
	}
	if i := strings.LastIndex(ev.Description, bookingIDPrefix); i >= 0 {
		id := strings.TrimSpace(strings.SplitN(ev.Description[i+len(bookingIDPrefix):], "\n", 2)[0])
		return id == b.RequestID
	}
	return true
}

// BusyIntervals reports busy time on the calendar bookings are written to.
func (m *Manager) BusyIntervals(ctx context.Context, start, end time.Time) ([]availability.Interval, error) {
	target := m.cfg.CalendarID
	if target == "" {
		target = m.cfg.ServiceAccount
	}
	return m.client.FreeBusy(ctx, []string{target}, start, end)
}

// AddToCalendarURL builds a link that opens a prefilled event in Google
// Calendar. It is offered to requesters when provisioning failed.
func AddToCalendarURL(summary, details string, start, end time.Time) string {
	const layout = "20060102T150405Z"
	q := url.Values{}
	q.Set("action", "TEMPLATE")
	q.Set("text", summary)
	q.Set("dates", start.UTC().Format(layout)+"/"+end.UTC().Format(layout))
	q.Set("details", details)
	return "https://calendar.google.com/calendar/render?" + q.Encode()
}

func describe(b Booking) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Booked by: %s <%s>\n", b.Name, b.Email)
	if b.Phone != "" {
		fmt.Fprintf(&sb, "Phone: %s\n", b.Phone)
	}
	if b.ClientName != "" {
		fmt.Fprintf(&sb, "Client: %s\n", b.ClientName)
	}
	if b.RoleName != "" {
		fmt.Fprintf(&sb, "Role: %s\n", b.RoleName)
	}
	if b.JobDescription != "" {
		fmt.Fprintf(&sb, "Job description: %s\n", b.JobDescription)
	}
	if b.Message != "" {
		fmt.Fprintf(&sb, "Message: %s\n", b.Message)
	}
	fmt.Fprintf(&sb, "%s%s", bookingIDPrefix, b.RequestID)
	return sb.String()
}

package notification

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"

	"go.uber.org/zap"

	"github.com/nekogravitycat/meeting-booking-backend/internal/pkg/apperror"
)

//go:embed templates/*.html
var templateFS embed.FS

// Dispatcher renders and sends the email for each booking transition.
type Dispatcher interface {
	Notify(ctx context.Context, event Event, msg Message) error
}

// Config identifies the operator who approves bookings.
type Config struct {
	OperatorEmail string
	OperatorName  string
}

type dispatcher struct {
	cfg       Config
	sender    Sender
	templates *template.Template
	log       *zap.Logger
}

var subjects = map[Event]string{
	EventSubmitted: "New booking request from %s",
	EventApproved:  "Your booking is confirmed, %s",
	EventRejected:  "Your booking request could not be accepted, %s",
	EventCancelled: "Booking cancelled: %s",
}

func NewDispatcher(cfg Config, sender Sender, log *zap.Logger) (Dispatcher, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse email templates: %w", err)
	}
	return &dispatcher{cfg: cfg, sender: sender, templates: tmpl, log: log}, nil
}

func (d *dispatcher) recipients(event Event, msg Message) []Mail {
	operator := Mail{ToEmail: d.cfg.OperatorEmail, ToName: d.cfg.OperatorName}
	requester := Mail{ToEmail: msg.RequesterEmail, ToName: msg.RequesterName}

	switch event {
	case EventSubmitted:
		return []Mail{operator}
	case EventApproved, EventRejected:
		return []Mail{requester}
	case EventCancelled:
		return []Mail{requester, operator}
	}
	return nil
}

func (d *dispatcher) Notify(ctx context.Context, event Event, msg Message) error {
	subjectFmt, ok := subjects[event]
	if !ok {
		return fmt.Errorf("unknown notification event %q", event)
	}

	var buf bytes.Buffer
	if err := d.templates.ExecuteTemplate(&buf, string(event)+".html", msg); err != nil {
		return apperror.WrapSentinel(ErrNotificationFailure, fmt.Errorf("render %s: %w", event, err))
	}

	var errs []error
	for _, m := range d.recipients(event, msg) {
		m.Subject = fmt.Sprintf(subjectFmt, msg.RequesterName)
		m.HTML = buf.String()
		if err := d.sender.Send(ctx, m); err != nil {
			d.log.Error("failed to send notification",
				zap.String("event", string(event)),
				zap.String("booking_id", msg.BookingID),
				zap.String("to", m.ToEmail),
				zap.Error(err),
			)
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return apperror.WrapSentinel(ErrNotificationFailure, errors.Join(errs...))
	}
	return nil
}

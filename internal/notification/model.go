package notification

import (
	"context"
	"net/http"

	"github.com/nekogravitycat/meeting-booking-backend/internal/pkg/apperror"
)

var ErrNotificationFailure = apperror.New(http.StatusBadGateway, "notification could not be sent")

// Event names the booking transition a message is sent for.
type Event string

const (
	EventSubmitted Event = "submitted"
	EventApproved  Event = "approved"
	EventRejected  Event = "rejected"
	EventCancelled Event = "cancelled"
)

// Mail is a rendered transactional email.
type Mail struct {
	ToEmail string
	ToName  string
	Subject string
	HTML    string
}

// Sender delivers rendered mail.
type Sender interface {
	Send(ctx context.Context, m Mail) error
}

// SlotLine is one booked slot as shown in a message.
type SlotLine struct {
	Date     string
	Start    string
	End      string
	Duration int
}

// Message carries the booking fields rendered into every template.
type Message struct {
	BookingID      string
	RequesterName  string
	RequesterEmail string
	Phone          string
	ClientName     string
	RoleName       string
	JobDescription string
	TeamName       string
	JobLink        string
	Note           string
	Slots          []SlotLine

	// submitted
	ApproveURL string
	RejectURL  string

	// approved
	CancelURL           string
	CalendarProvisioned bool
	AddToCalendarURLs   []string

	// cancelled
	CancellationReason string
}

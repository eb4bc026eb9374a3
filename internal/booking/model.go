package booking

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nekogravitycat/meeting-booking-backend/internal/pkg/apperror"
)

var (
	// ErrValidation is the cause wrapped by every user-correctable input error.
	ErrValidation = errors.New("validation failed")

	ErrNotFound      = apperror.New(http.StatusNotFound, "booking not found or link already used")
	ErrTimeConflict  = apperror.New(http.StatusConflict, "time slot already booked")
	ErrPersistence   = apperror.New(http.StatusInternalServerError, "booking could not be saved")
	ErrInvalidAction = apperror.New(http.StatusBadRequest, "action must be approve or reject")
)

func validationError(format string, args ...any) error {
	return apperror.Wrap(ErrValidation, http.StatusBadRequest, fmt.Sprintf(format, args...))
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"
)

// Action is the operator decision carried by an approval link.
type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
)

const (
	DateLayout  = "2006-01-02"
	ClockLayout = "15:04"
)

// Request is a booking request and its slots.
type Request struct {
	ID                    string
	UserName              string
	UserEmail             string
	PhoneNumber           string
	ClientName            string
	RoleName              string
	JobDescription        string
	TeamName              string
	JobLink               string
	Message               string
	ResumeFilePath        string
	PaymentScreenshotPath string
	Status                Status
	ApprovalToken         *string
	CancellationToken     *string
	CreatedAt             time.Time
	UpdatedAt             time.Time
	CancelledAt           *time.Time
	CancellationReason    *string
	Slots                 []Slot
}

// Slot is one requested interval in wall-clock time of the business timezone.
type Slot struct {
	ID              string
	RequestID       string
	Ordinal         int    // 1-based position within the request
	Date            string // YYYY-MM-DD
	StartTime       string // HH:MM
	EndTime         string // HH:MM
	DurationMinutes int
	CalendarID      *string
	CalendarEventID *string
}

// Bounds resolves the slot's wall-clock times in loc.
func (s Slot) Bounds(loc *time.Location) (time.Time, time.Time, error) {
	start, err := time.ParseInLocation(DateLayout+" "+ClockLayout, s.Date+" "+s.StartTime, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid slot start: %w", err)
	}
	end, err := time.ParseInLocation(DateLayout+" "+ClockLayout, s.Date+" "+s.EndTime, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid slot end: %w", err)
	}
	return start, end, nil
}

type Filter struct {
	Status    string
	Email     string
	Page      int
	PageSize  int
	SortOrder string
}

// WorkKind names a calendar side effect that must be retried.
type WorkKind string

const (
	WorkCalendarCreate WorkKind = "calendar_create"
	WorkCalendarDelete WorkKind = "calendar_delete"
)

type WorkStatus string

const (
	WorkPending WorkStatus = "pending"
	WorkRunning WorkStatus = "running" // claimed by a reconcile pass
	WorkDone    WorkStatus = "done"
	WorkFailed  WorkStatus = "failed"
)

// WorkItem records a calendar side effect that failed after the booking's
// status change was committed.
type WorkItem struct {
	ID        string
	RequestID string
	Kind      WorkKind
	Status    WorkStatus
	Attempts  int
	LastError string
	CreatedAt time.Time
	UpdatedAt time.Time
}

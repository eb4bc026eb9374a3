package availability

import (
	"net/http"
	"time"

	"github.com/nekogravitycat/meeting-booking-backend/internal/pkg/apperror"
)

var (
	ErrInvalidRange       = apperror.New(http.StatusBadRequest, "endDate must not be before startDate")
	ErrRangeTooLong       = apperror.New(http.StatusBadRequest, "requested range is too long")
	ErrBusyLookupFailed   = apperror.New(http.StatusBadGateway, "unable to check calendar availability")
	ErrBookedLookupFailed = apperror.New(http.StatusInternalServerError, "unable to load existing bookings")
)

// Durations offered for every slot start, in minutes.
var Durations = []int{30, 60}

// StepMinutes is the spacing between slot start times.
const StepMinutes = 30

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports whether two half-open intervals intersect.
// Touching intervals (a.End == b.Start) do not overlap.
func (a Interval) Overlaps(b Interval) bool {
	return a.Start.Before(b.End) && a.End.After(b.Start)
}

// BusinessHours describes when slots are offered.
type BusinessHours struct {
	Location  *time.Location
	OpenHour  int
	CloseHour int
}

// Slot is a candidate meeting interval. It is computed on every query and
// never stored.
type Slot struct {
	ID          string
	Date        string // YYYY-MM-DD in the business timezone
	StartTime   string // HH:MM
	EndTime     string // HH:MM
	Start       time.Time
	End         time.Time
	Duration    int // minutes
	IsAvailable bool
}

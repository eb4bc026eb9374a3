package availability

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/nekogravitycat/meeting-booking-backend/internal/pkg/apperror"
)

// BusySource returns intervals during which no slot may be offered.
type BusySource interface {
	BusyIntervals(ctx context.Context, start, end time.Time) ([]Interval, error)
}

type Service interface {
	Slots(ctx context.Context, start, end time.Time) ([]Slot, error)
}

// Config configures the availability service.
type Config struct {
	Hours   BusinessHours
	MaxDays int
}

type service struct {
	cfg      Config
	calendar BusySource
	bookings BusySource
	log      *zap.Logger
	now      func() time.Time
}

// NewService wires the external calendar and the local booking store as busy
// sources. bookings may be nil.
func NewService(cfg Config, calendar BusySource, bookings BusySource, log *zap.Logger) Service {
	return &service{
		cfg:      cfg,
		calendar: calendar,
		bookings: bookings,
		log:      log,
		now:      time.Now,
	}
}

func (s *service) Slots(ctx context.Context, start, end time.Time) ([]Slot, error) {
	if end.Before(start) {
		return nil, ErrInvalidRange
	}
	if s.cfg.MaxDays > 0 && end.Sub(start) > time.Duration(s.cfg.MaxDays)*24*time.Hour {
		return nil, ErrRangeTooLong
	}

	// Widen the lookup to whole days so that busy intervals touching the
	// first and last business day are included.
	loc := s.cfg.Hours.Location
	if loc == nil {
		loc = time.UTC
	}
	lookupStart := startOfDay(start.In(loc))
	lookupEnd := startOfDay(end.In(loc)).AddDate(0, 0, 1)

	busy, err := s.calendar.BusyIntervals(ctx, lookupStart, lookupEnd)
	if err != nil {
		s.log.Error("calendar busy lookup failed", zap.Error(err))
		return nil, apperror.WrapSentinel(ErrBusyLookupFailed, err)
	}

	if s.bookings != nil {
		booked, err := s.bookings.BusyIntervals(ctx, lookupStart, lookupEnd)
		if err != nil {
			s.log.Error("booked slot lookup failed", zap.Error(err))
			return nil, apperror.WrapSentinel(ErrBookedLookupFailed, err)
		}
		busy = append(busy, booked...)
	}

	// Slots that already started cannot be booked.
	if now := s.now(); now.After(lookupStart) {
		busy = append(busy, Interval{Start: lookupStart, End: now})
	}

	return ComputeSlots(start, end, busy, s.cfg.Hours), nil
}

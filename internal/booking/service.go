package booking

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nekogravitycat/meeting-booking-backend/internal/availability"
	"github.com/nekogravitycat/meeting-booking-backend/internal/calendar"
	"github.com/nekogravitycat/meeting-booking-backend/internal/notification"
	"github.com/nekogravitycat/meeting-booking-backend/internal/pkg/apperror"
)

const (
	maxSlotsPerRequest = 10
	maxReasonLength    = 2000
)

// SlotInput is a requested slot as submitted by the client.
type SlotInput struct {
	Date            string
	StartTime       string
	EndTime         string
	DurationMinutes int
}

type SubmitRequest struct {
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
	Slots                 []SlotInput
}

// CalendarManager provisions and removes the external events of a booking.
type CalendarManager interface {
	CreateEvents(ctx context.Context, b calendar.Booking) ([]calendar.EventRef, error)
	DeleteEvents(ctx context.Context, b calendar.Booking) error
}

type Service interface {
	Submit(ctx context.Context, req SubmitRequest) (*Request, error)
	Resolve(ctx context.Context, approvalToken string, action Action) (*Request, error)
	Cancel(ctx context.Context, cancellationToken string, reason string) (*Request, error)
	GetByID(ctx context.Context, id string) (*Request, error)
	List(ctx context.Context, filter Filter) ([]*Request, int, error)
}

// Config holds the settings the state machine needs from the environment.
type Config struct {
	PublicBaseURL string
	Hours         availability.BusinessHours
}

type service struct {
	cfg      Config
	repo     Repository
	calendar CalendarManager
	notifier notification.Dispatcher
	log      *zap.Logger
	now      func() time.Time
	newToken func() (string, error)
}

func NewService(cfg Config, repo Repository, cal CalendarManager, notifier notification.Dispatcher, log *zap.Logger) Service {
	if cfg.Hours.Location == nil {
		cfg.Hours.Location = time.UTC
	}
	return &service{
		cfg:      cfg,
		repo:     repo,
		calendar: cal,
		notifier: notifier,
		log:      log,
		now:      time.Now,
		newToken: NewToken,
	}
}

func (s *service) Submit(ctx context.Context, req SubmitRequest) (*Request, error) {
	slots, err := s.validate(&req)
	if err != nil {
		return nil, err
	}

	token, err := s.newToken()
	if err != nil {
		return nil, apperror.WrapSentinel(ErrPersistence, err)
	}

	r := &Request{
		UserName:              req.UserName,
		UserEmail:             req.UserEmail,
		PhoneNumber:           req.PhoneNumber,
		ClientName:            req.ClientName,
		RoleName:              req.RoleName,
		JobDescription:        req.JobDescription,
		TeamName:              req.TeamName,
		JobLink:               req.JobLink,
		Message:               req.Message,
		ResumeFilePath:        req.ResumeFilePath,
		PaymentScreenshotPath: req.PaymentScreenshotPath,
		Status:                StatusPending,
		ApprovalToken:         &token,
		Slots:                 slots,
	}

	if err := s.repo.Create(ctx, r); err != nil {
		if errors.Is(err, ErrTimeConflict) {
			return nil, err
		}
		return nil, apperror.WrapSentinel(ErrPersistence, err)
	}

	msg := s.message(r)
	msg.ApproveURL = s.link("/v1/bookings/resolve", url.Values{"token": {token}, "action": {string(ActionApprove)}})
	msg.RejectURL = s.link("/v1/bookings/resolve", url.Values{"token": {token}, "action": {string(ActionReject)}})
	s.notify(ctx, notification.EventSubmitted, r, msg)

	return r, nil
}

func (s *service) Resolve(ctx context.Context, approvalToken string, action Action) (*Request, error) {
	if action != ActionApprove && action != ActionReject {
		return nil, ErrInvalidAction
	}
	if approvalToken == "" {
		return nil, ErrNotFound
	}

	if action == ActionReject {
		r, err := s.repo.ConsumeApprovalToken(ctx, approvalToken, StatusRejected, nil)
		if err != nil {
			return nil, s.storeError(err)
		}
		s.log.Info("booking rejected", zap.String("booking_id", r.ID))
		s.notify(ctx, notification.EventRejected, r, s.message(r))
		return r, nil
	}

	cancelToken, err := s.newToken()
	if err != nil {
		return nil, apperror.WrapSentinel(ErrPersistence, err)
	}
	r, err := s.repo.ConsumeApprovalToken(ctx, approvalToken, StatusApproved, &cancelToken)
	if err != nil {
		return nil, s.storeError(err)
	}
	s.log.Info("booking approved", zap.String("booking_id", r.ID))

	provisioned := s.provision(ctx, r)

	msg := s.message(r)
	msg.CancelURL = s.link("/v1/bookings/cancel", url.Values{"token": {cancelToken}})
	msg.CalendarProvisioned = provisioned
	if !provisioned {
		msg.AddToCalendarURLs = s.addToCalendarLinks(r)
	}
	s.notify(ctx, notification.EventApproved, r, msg)

	return r, nil
}

func (s *service) Cancel(ctx context.Context, cancellationToken string, reason string) (*Request, error) {
	if utf8.RuneCountInString(reason) > maxReasonLength {
		return nil, validationError("reason must be at most %d characters", maxReasonLength)
	}
	if cancellationToken == "" {
		return nil, ErrNotFound
	}

	r, err := s.repo.ConsumeCancellationToken(ctx, cancellationToken, reason)
	if err != nil {
		return nil, s.storeError(err)
	}
	s.log.Info("booking cancelled", zap.String("booking_id", r.ID))

	if err := s.calendar.DeleteEvents(ctx, toCalendarBooking(r, s.cfg.Hours.Location, s.log)); err != nil {
		s.log.Error("calendar cleanup failed",
			zap.String("booking_id", r.ID),
			zap.Error(err),
		)
		s.enqueue(ctx, r.ID, WorkCalendarDelete, err)
	}

	msg := s.message(r)
	msg.CancellationReason = reason
	s.notify(ctx, notification.EventCancelled, r, msg)

	return r, nil
}

func (s *service) GetByID(ctx context.Context, id string) (*Request, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *service) List(ctx context.Context, filter Filter) ([]*Request, int, error) {
	return s.repo.List(ctx, filter)
}

// provision creates the calendar events of an approved request and stores
// their ids. It reports whether every slot got an event.
func (s *service) provision(ctx context.Context, r *Request) bool {
	refs, err := s.calendar.CreateEvents(ctx, toCalendarBooking(r, s.cfg.Hours.Location, s.log))
	if len(refs) > 0 {
		if serr := s.repo.SetSlotEvents(ctx, r.ID, refs); serr != nil {
			s.log.Error("failed to store calendar event ids", zap.String("booking_id", r.ID), zap.Error(serr))
		}
		applyRefs(r, refs)
	}
	if err != nil {
		s.log.Error("calendar provisioning failed",
			zap.String("booking_id", r.ID),
			zap.Error(err),
		)
		s.enqueue(ctx, r.ID, WorkCalendarCreate, err)
		return false
	}
	return true
}

func (s *service) enqueue(ctx context.Context, requestID string, kind WorkKind, cause error) {
	w := &WorkItem{
		ID:        uuid.NewString(),
		RequestID: requestID,
		Kind:      kind,
		Status:    WorkPending,
		LastError: cause.Error(),
	}
	if err := s.repo.EnqueueWork(ctx, w); err != nil {
		s.log.Error("failed to record calendar work item",
			zap.String("booking_id", requestID),
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
	}
}

func (s *service) notify(ctx context.Context, event notification.Event, r *Request, msg notification.Message) {
	if err := s.notifier.Notify(ctx, event, msg); err != nil {
		s.log.Error("notification failed",
			zap.String("event", string(event)),
			zap.String("booking_id", r.ID),
			zap.Error(err),
		)
	}
}

func (s *service) storeError(err error) error {
	if errors.Is(err, ErrNotFound) {
		return ErrNotFound
	}
	return apperror.WrapSentinel(ErrPersistence, err)
}

func (s *service) link(path string, q url.Values) string {
	return strings.TrimRight(s.cfg.PublicBaseURL, "/") + path + "?" + q.Encode()
}

// toCalendarBooking converts a request into the calendar view.
func toCalendarBooking(r *Request, loc *time.Location, log *zap.Logger) calendar.Booking {
	b := calendar.Booking{
		RequestID:      r.ID,
		Name:           r.UserName,
		Email:          r.UserEmail,
		Phone:          r.PhoneNumber,
		ClientName:     r.ClientName,
		RoleName:       r.RoleName,
		JobDescription: r.JobDescription,
		Message:        r.Message,
	}
	for _, slot := range r.Slots {
		start, end, err := slot.Bounds(loc)
		if err != nil {
			log.Error("skipping unparsable slot", zap.String("booking_id", r.ID), zap.Error(err))
			continue
		}
		cs := calendar.Slot{Ordinal: slot.Ordinal, Start: start, End: end}
		if slot.CalendarID != nil {
			cs.CalendarID = *slot.CalendarID
		}
		if slot.CalendarEventID != nil {
			cs.EventID = *slot.CalendarEventID
		}
		b.Slots = append(b.Slots, cs)
	}
	return b
}

func (s *service) addToCalendarLinks(r *Request) []string {
	var links []string
	for _, slot := range r.Slots {
		if slot.CalendarEventID != nil {
			continue
		}
		start, end, err := slot.Bounds(s.cfg.Hours.Location)
		if err != nil {
			continue
		}
		links = append(links, calendar.AddToCalendarURL(
			calendar.Summary(r.UserName, slot.Ordinal),
			"Booking ID: "+r.ID,
			start, end,
		))
	}
	return links
}

func (s *service) message(r *Request) notification.Message {
	msg := notification.Message{
		BookingID:      r.ID,
		RequesterName:  r.UserName,
		RequesterEmail: r.UserEmail,
		Phone:          r.PhoneNumber,
		ClientName:     r.ClientName,
		RoleName:       r.RoleName,
		JobDescription: r.JobDescription,
		TeamName:       r.TeamName,
		JobLink:        r.JobLink,
		Note:           r.Message,
	}
	for _, slot := range r.Slots {
		msg.Slots = append(msg.Slots, notification.SlotLine{
			Date:     slot.Date,
			Start:    slot.StartTime,
			End:      slot.EndTime,
			Duration: slot.DurationMinutes,
		})
	}
	return msg
}

func applyRefs(r *Request, refs []calendar.EventRef) {
	for _, ref := range refs {
		for i := range r.Slots {
			if r.Slots[i].Ordinal == ref.Ordinal {
				calID, evID := ref.CalendarID, ref.EventID
				r.Slots[i].CalendarID = &calID
				r.Slots[i].CalendarEventID = &evID
			}
		}
	}
}

// validate trims the request in place and converts its slots.
func (s *service) validate(req *SubmitRequest) ([]Slot, error) {
	req.UserName = strings.TrimSpace(req.UserName)
	req.UserEmail = strings.TrimSpace(req.UserEmail)

	var missing []string
	if req.UserName == "" {
		missing = append(missing, "user_name")
	}
	if req.UserEmail == "" {
		missing = append(missing, "user_email")
	}
	if len(req.Slots) == 0 {
		missing = append(missing, "slots")
	}
	if len(missing) > 0 {
		return nil, validationError("missing required fields: %s", strings.Join(missing, ", "))
	}

	if addr, err := mail.ParseAddress(req.UserEmail); err != nil || addr.Address != req.UserEmail {
		return nil, validationError("user_email is not a valid email address")
	}
	if len(req.Slots) > maxSlotsPerRequest {
		return nil, validationError("at most %d slots can be requested at once", maxSlotsPerRequest)
	}

	slots := make([]Slot, 0, len(req.Slots))
	intervals := make([]availability.Interval, 0, len(req.Slots))
	for i, in := range req.Slots {
		slot, start, end, err := s.parseSlot(in)
		if err != nil {
			return nil, validationError("slot %d: %s", i+1, err.Error())
		}
		slot.Ordinal = i + 1
		slots = append(slots, slot)
		intervals = append(intervals, availability.Interval{Start: start, End: end})
	}

	sorted := append([]availability.Interval(nil), intervals...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start.Before(sorted[j].Start) })
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Overlaps(sorted[i-1]) {
			return nil, validationError("requested slots overlap each other")
		}
	}

	return slots, nil
}

func (s *service) parseSlot(in SlotInput) (Slot, time.Time, time.Time, error) {
	loc := s.cfg.Hours.Location
	date, err := time.ParseInLocation(DateLayout, strings.TrimSpace(in.Date), loc)
	if err != nil {
		return Slot{}, time.Time{}, time.Time{}, errors.New("slot_date must be YYYY-MM-DD")
	}
	startClock, err := normalizeClock(in.StartTime)
	if err != nil {
		return Slot{}, time.Time{}, time.Time{}, errors.New("slot_start_time must be HH:MM")
	}
	endClock, err := normalizeClock(in.EndTime)
	if err != nil {
		return Slot{}, time.Time{}, time.Time{}, errors.New("slot_end_time must be HH:MM")
	}

	slot := Slot{
		Date:            date.Format(DateLayout),
		StartTime:       startClock,
		EndTime:         endClock,
		DurationMinutes: in.DurationMinutes,
	}
	start, end, err := slot.Bounds(loc)
	if err != nil {
		return Slot{}, time.Time{}, time.Time{}, err
	}

	validDuration := false
	for _, d := range availability.Durations {
		if in.DurationMinutes == d {
			validDuration = true
		}
	}
	if !validDuration {
		return Slot{}, time.Time{}, time.Time{}, errors.New("slot_duration_minutes must be 30 or 60")
	}
	if !end.After(start) || end.Sub(start) != time.Duration(in.DurationMinutes)*time.Minute {
		return Slot{}, time.Time{}, time.Time{}, fmt.Errorf("slot must last exactly %d minutes", in.DurationMinutes)
	}

	if start.Minute()%availability.StepMinutes != 0 {
		return Slot{}, time.Time{}, time.Time{}, fmt.Errorf("slot must start on a %d-minute boundary", availability.StepMinutes)
	}
	if wd := start.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return Slot{}, time.Time{}, time.Time{}, errors.New("slot falls on a weekend")
	}
	y, m, d := start.Date()
	open := time.Date(y, m, d, s.cfg.Hours.OpenHour, 0, 0, 0, loc)
	closing := time.Date(y, m, d, s.cfg.Hours.CloseHour, 0, 0, 0, loc)
	if start.Before(open) || end.After(closing) {
		return Slot{}, time.Time{}, time.Time{}, errors.New("slot is outside business hours")
	}
	if start.Before(s.now()) {
		return Slot{}, time.Time{}, time.Time{}, errors.New("slot is in the past")
	}

	return slot, start, end, nil
}

// normalizeClock accepts HH:MM or HH:MM:SS and returns HH:MM.
func normalizeClock(v string) (string, error) {
	v = strings.TrimSpace(v)
	for _, layout := range []string{ClockLayout, "15:04:05"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t.Format(ClockLayout), nil
		}
	}
	return "", fmt.Errorf("invalid clock time %q", v)
}

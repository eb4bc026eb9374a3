package booking

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nekogravitycat/meeting-booking-backend/internal/availability"
	"github.com/nekogravitycat/meeting-booking-backend/internal/calendar"
	"github.com/nekogravitycat/meeting-booking-backend/internal/notification"
)

// memRepository is an in-memory Repository with the same token semantics as
// the pgx implementation.
type memRepository struct {
	mu        sync.Mutex
	requests  map[string]*Request
	work      []*WorkItem
	nextID    int
	createErr error
}

func newMemRepository() *memRepository {
	return &memRepository{requests: map[string]*Request{}}
}

func clone(r *Request) *Request {
	c := *r
	c.Slots = append([]Slot(nil), r.Slots...)
	return &c
}

func (m *memRepository) Create(ctx context.Context, r *Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	for _, existing := range m.requests {
		if existing.Status != StatusPending && existing.Status != StatusApproved {
			continue
		}
		for _, a := range existing.Slots {
			for _, b := range r.Slots {
				if a.Date == b.Date && a.StartTime < b.EndTime && a.EndTime > b.StartTime {
					return ErrTimeConflict
				}
			}
		}
	}
	m.nextID++
	r.ID = fmt.Sprintf("req-%d", m.nextID)
	r.CreatedAt = time.Now()
	r.UpdatedAt = r.CreatedAt
	for i := range r.Slots {
		r.Slots[i].ID = fmt.Sprintf("%s-slot-%d", r.ID, i+1)
		r.Slots[i].RequestID = r.ID
	}
	m.requests[r.ID] = clone(r)
	return nil
}

func (m *memRepository) GetByID(ctx context.Context, id string) (*Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(r), nil
}

func (m *memRepository) List(ctx context.Context, filter Filter) ([]*Request, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Request
	for _, r := range m.requests {
		if filter.Status == "" || string(r.Status) == filter.Status {
			out = append(out, clone(r))
		}
	}
	return out, len(out), nil
}

func (m *memRepository) ConsumeApprovalToken(ctx context.Context, token string, to Status, cancellationToken *string) (*Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.requests {
		if r.Status == StatusPending && r.ApprovalToken != nil && *r.ApprovalToken == token {
			r.Status = to
			r.ApprovalToken = nil
			r.CancellationToken = cancellationToken
			r.UpdatedAt = time.Now()
			return clone(r), nil
		}
	}
	return nil, ErrNotFound
}

func (m *memRepository) ConsumeCancellationToken(ctx context.Context, token string, reason string) (*Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.requests {
		if r.Status == StatusApproved && r.CancellationToken != nil && *r.CancellationToken == token {
			now := time.Now()
			r.Status = StatusCancelled
			r.CancellationToken = nil
			r.CancellationReason = &reason
			r.CancelledAt = &now
			r.UpdatedAt = now
			return clone(r), nil
		}
	}
	return nil, ErrNotFound
}

func (m *memRepository) SetSlotEvents(ctx context.Context, requestID string, refs []calendar.EventRef) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[requestID]
	if !ok {
		return ErrNotFound
	}
	applyRefs(r, refs)
	return nil
}

func (m *memRepository) BusyIntervals(ctx context.Context, start, end time.Time) ([]availability.Interval, error) {
	return nil, nil
}

func (m *memRepository) EnqueueWork(ctx context.Context, w *WorkItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *w
	m.work = append(m.work, &cp)
	return nil
}

func (m *memRepository) ClaimWork(ctx context.Context, limit int, staleAfter time.Duration) ([]*WorkItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	var out []*WorkItem
	for _, w := range m.work {
		if len(out) == limit {
			break
		}
		stale := w.Status == WorkRunning && now.Sub(w.UpdatedAt) > staleAfter
		if w.Status != WorkPending && !stale {
			continue
		}
		w.Status = WorkRunning
		w.UpdatedAt = now
		cp := *w
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memRepository) UpdateWork(ctx context.Context, w *WorkItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.work {
		if existing.ID == w.ID {
			cp := *w
			cp.UpdatedAt = time.Now()
			m.work[i] = &cp
			return nil
		}
	}
	return fmt.Errorf("work item %s not found", w.ID)
}

type fakeCalendar struct {
	mu         sync.Mutex
	createErr  error
	deleteErr  error
	creates    []calendar.Booking
	deletes    []calendar.Booking
	refsOnFail bool
}

func (f *fakeCalendar) CreateEvents(ctx context.Context, b calendar.Booking) ([]calendar.EventRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates = append(f.creates, b)
	if f.createErr != nil {
		return nil, f.createErr
	}
	var refs []calendar.EventRef
	for _, s := range b.Slots {
		if s.EventID != "" {
			continue
		}
		refs = append(refs, calendar.EventRef{Ordinal: s.Ordinal, CalendarID: "primary", EventID: fmt.Sprintf("evt-%s-%d", b.RequestID, s.Ordinal)})
	}
	return refs, nil
}

func (f *fakeCalendar) DeleteEvents(ctx context.Context, b calendar.Booking) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, b)
	return f.deleteErr
}

type sentNotification struct {
	Event   notification.Event
	Message notification.Message
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
	err  error
}

func (f *fakeNotifier) Notify(ctx context.Context, event notification.Event, msg notification.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentNotification{Event: event, Message: msg})
	return f.err
}

func (f *fakeNotifier) events() []notification.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []notification.Event
	for _, s := range f.sent {
		out = append(out, s.Event)
	}
	return out
}

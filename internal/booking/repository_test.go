package booking

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nekogravitycat/meeting-booking-backend/internal/availability"
	"github.com/nekogravitycat/meeting-booking-backend/internal/calendar"
	"github.com/nekogravitycat/meeting-booking-backend/internal/db"
)

// newTestRepository connects to TEST_DB_DSN, applies the schema and clears
// the booking tables.
func newTestRepository(t *testing.T) Repository {
	t.Helper()
	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		t.Skip("TEST_DB_DSN is not set")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, dsn, db.PoolOptions{MaxConns: 8})
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, db.Migrate(ctx, pool))
	clearTables(t, pool)

	return NewPgxRepository(pool, time.UTC)
}

func clearTables(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	_, err := pool.Exec(context.Background(), "TRUNCATE public.booking_work_items, public.booking_slots, public.booking_requests CASCADE")
	require.NoError(t, err)
}

func pendingRequest(email string, slots ...Slot) *Request {
	token, _ := NewToken()
	for i := range slots {
		slots[i].Ordinal = i + 1
	}
	return &Request{
		UserName:      "Ada Lovelace",
		UserEmail:     email,
		Status:        StatusPending,
		ApprovalToken: &token,
		Slots:         slots,
	}
}

func slotAt(date, start, end string, minutes int) Slot {
	return Slot{Date: date, StartTime: start, EndTime: end, DurationMinutes: minutes}
}

func TestPgxRepositoryLifecycle(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	req := pendingRequest("ada@example.com",
		slotAt("2026-03-02", "10:00", "10:30", 30),
		slotAt("2026-03-02", "14:00", "15:00", 60),
	)
	require.NoError(t, repo.Create(ctx, req))
	require.NotEmpty(t, req.ID)

	t.Run("Get returns slots in order", func(t *testing.T) {
		got, err := repo.GetByID(ctx, req.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusPending, got.Status)
		require.Len(t, got.Slots, 2)
		assert.Equal(t, "2026-03-02", got.Slots[0].Date)
		assert.Equal(t, "10:00", got.Slots[0].StartTime)
		assert.Equal(t, "15:00", got.Slots[1].EndTime)
	})

	t.Run("Overlapping submission conflicts", func(t *testing.T) {
		other := pendingRequest("grace@example.com", slotAt("2026-03-02", "14:30", "15:00", 30))
		assert.ErrorIs(t, repo.Create(ctx, other), ErrTimeConflict)

		adjacent := pendingRequest("grace@example.com", slotAt("2026-03-02", "10:30", "11:00", 30))
		assert.NoError(t, repo.Create(ctx, adjacent))
	})

	t.Run("Busy intervals include pending slots", func(t *testing.T) {
		busy, err := repo.BusyIntervals(ctx,
			time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
			time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC))
		require.NoError(t, err)
		assert.Contains(t, busy, availabilityInterval(2026, 3, 2, 10, 0, 30))
	})

	var cancelToken string
	t.Run("Approval token is consumed once", func(t *testing.T) {
		ct, _ := NewToken()
		approved, err := repo.ConsumeApprovalToken(ctx, *req.ApprovalToken, StatusApproved, &ct)
		require.NoError(t, err)
		assert.Equal(t, StatusApproved, approved.Status)
		assert.Nil(t, approved.ApprovalToken)
		require.NotNil(t, approved.CancellationToken)
		assert.Len(t, approved.Slots, 2)
		cancelToken = *approved.CancellationToken

		_, err = repo.ConsumeApprovalToken(ctx, *req.ApprovalToken, StatusRejected, nil)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("Slot events are stored", func(t *testing.T) {
		require.NoError(t, repo.SetSlotEvents(ctx, req.ID, []calendar.EventRef{
			{Ordinal: 1, CalendarID: "primary", EventID: "evt-1"},
			{Ordinal: 2, CalendarID: "primary", EventID: "evt-2"},
		}))
		got, err := repo.GetByID(ctx, req.ID)
		require.NoError(t, err)
		require.NotNil(t, got.Slots[1].CalendarEventID)
		assert.Equal(t, "evt-2", *got.Slots[1].CalendarEventID)
	})

	t.Run("Cancellation stores reason verbatim", func(t *testing.T) {
		cancelled, err := repo.ConsumeCancellationToken(ctx, cancelToken, "schedule conflict")
		require.NoError(t, err)
		assert.Equal(t, StatusCancelled, cancelled.Status)
		assert.Nil(t, cancelled.CancellationToken)
		require.NotNil(t, cancelled.CancellationReason)
		assert.Equal(t, "schedule conflict", *cancelled.CancellationReason)
		assert.NotNil(t, cancelled.CancelledAt)

		_, err = repo.ConsumeCancellationToken(ctx, cancelToken, "again")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("Cancelled slots free the time", func(t *testing.T) {
		again := pendingRequest("grace@example.com", slotAt("2026-03-02", "14:00", "15:00", 60))
		assert.NoError(t, repo.Create(ctx, again))
	})

	t.Run("List filters by status", func(t *testing.T) {
		list, total, err := repo.List(ctx, Filter{Status: string(StatusCancelled)})
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		require.Len(t, list, 1)
		assert.Equal(t, req.ID, list[0].ID)
	})

	t.Run("Work items are claimed once", func(t *testing.T) {
		w := &WorkItem{ID: uuid.NewString(), RequestID: req.ID, Kind: WorkCalendarDelete, Status: WorkPending, LastError: "boom"}
		require.NoError(t, repo.EnqueueWork(ctx, w))

		var wg sync.WaitGroup
		claims := make([][]*WorkItem, 4)
		for i := range claims {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				items, err := repo.ClaimWork(ctx, 10, time.Minute)
				assert.NoError(t, err)
				claims[i] = items
			}(i)
		}
		wg.Wait()

		var claimed []*WorkItem
		for _, items := range claims {
			claimed = append(claimed, items...)
		}
		require.Len(t, claimed, 1)
		assert.Equal(t, WorkCalendarDelete, claimed[0].Kind)
		assert.Equal(t, WorkRunning, claimed[0].Status)

		claimed[0].Status = WorkDone
		claimed[0].Attempts = 1
		require.NoError(t, repo.UpdateWork(ctx, claimed[0]))

		again, err := repo.ClaimWork(ctx, 10, time.Minute)
		require.NoError(t, err)
		assert.Empty(t, again)
	})

	t.Run("Stale claims are taken over", func(t *testing.T) {
		w := &WorkItem{ID: uuid.NewString(), RequestID: req.ID, Kind: WorkCalendarDelete, Status: WorkRunning}
		require.NoError(t, repo.EnqueueWork(ctx, w))

		claimed, err := repo.ClaimWork(ctx, 10, time.Hour)
		require.NoError(t, err)
		assert.Empty(t, claimed)

		time.Sleep(10 * time.Millisecond)
		claimed, err = repo.ClaimWork(ctx, 10, time.Millisecond)
		require.NoError(t, err)
		require.Len(t, claimed, 1)
		assert.Equal(t, w.ID, claimed[0].ID)
	})

	t.Run("Unknown id", func(t *testing.T) {
		_, err := repo.GetByID(ctx, uuid.NewString())
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestPgxRepositoryConcurrentSubmissions(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- repo.Create(ctx, pendingRequest("race@example.com", slotAt("2026-03-03", "11:00", "12:00", 60)))
		}()
	}
	wg.Wait()
	close(errs)

	created := 0
	for err := range errs {
		if err == nil {
			created++
		} else {
			assert.ErrorIs(t, err, ErrTimeConflict)
		}
	}
	assert.Equal(t, 1, created)
}

func availabilityInterval(y int, m time.Month, d, hour, minute, length int) availability.Interval {
	start := time.Date(y, m, d, hour, minute, 0, 0, time.UTC)
	return availability.Interval{Start: start, End: start.Add(time.Duration(length) * time.Minute)}
}

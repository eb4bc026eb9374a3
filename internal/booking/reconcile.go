package booking

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Report summarizes one reconciliation pass.
type Report struct {
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Retrying  int `json:"retrying"`
	Failed    int `json:"failed"`
}

// claimTimeout is how long a claimed item may stay running before another
// pass takes it over. It must exceed the longest reconcile pass.
const claimTimeout = 15 * time.Minute

// Reconciler retries calendar side effects recorded as work items.
type Reconciler struct {
	repo        Repository
	calendar    CalendarManager
	loc         *time.Location
	maxAttempts int
	log         *zap.Logger
}

func NewReconciler(repo Repository, cal CalendarManager, loc *time.Location, maxAttempts int, log *zap.Logger) *Reconciler {
	if loc == nil {
		loc = time.UTC
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Reconciler{repo: repo, calendar: cal, loc: loc, maxAttempts: maxAttempts, log: log}
}

// Run claims up to limit pending work items and processes each once.
// Concurrent runs work on disjoint items.
func (rc *Reconciler) Run(ctx context.Context, limit int) (Report, error) {
	var report Report

	items, err := rc.repo.ClaimWork(ctx, limit, claimTimeout)
	if err != nil {
		return report, err
	}

	for _, w := range items {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Processed++

		err := rc.apply(ctx, w)
		w.Attempts++
		switch {
		case err == nil:
			w.Status = WorkDone
			w.LastError = ""
			report.Succeeded++
		case w.Attempts >= rc.maxAttempts:
			w.Status = WorkFailed
			w.LastError = err.Error()
			report.Failed++
			rc.log.Error("calendar work item gave up",
				zap.String("work_id", w.ID),
				zap.String("booking_id", w.RequestID),
				zap.String("kind", string(w.Kind)),
				zap.Int("attempts", w.Attempts),
				zap.Error(err),
			)
		default:
			w.Status = WorkPending
			w.LastError = err.Error()
			report.Retrying++
			rc.log.Warn("calendar work item failed, will retry",
				zap.String("work_id", w.ID),
				zap.String("booking_id", w.RequestID),
				zap.Error(err),
			)
		}

		if err := rc.repo.UpdateWork(ctx, w); err != nil {
			return report, err
		}
	}
	return report, nil
}

// apply performs a work item. Items whose booking has since moved to a
// state where the effect no longer applies are completed without action.
func (rc *Reconciler) apply(ctx context.Context, w *WorkItem) error {
	r, err := rc.repo.GetByID(ctx, w.RequestID)
	if err != nil {
		return err
	}

	b := toCalendarBooking(r, rc.loc, rc.log)

	switch w.Kind {
	case WorkCalendarCreate:
		if r.Status != StatusApproved {
			return nil
		}
		refs, err := rc.calendar.CreateEvents(ctx, b)
		if len(refs) > 0 {
			if serr := rc.repo.SetSlotEvents(ctx, r.ID, refs); serr != nil {
				return serr
			}
		}
		return err
	case WorkCalendarDelete:
		if r.Status != StatusCancelled {
			return nil
		}
		return rc.calendar.DeleteEvents(ctx, b)
	}
	return fmt.Errorf("unknown work kind %q", w.Kind)
}

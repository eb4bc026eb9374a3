package booking

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nekogravitycat/meeting-booking-backend/internal/availability"
	"github.com/nekogravitycat/meeting-booking-backend/internal/calendar"
)

type Repository interface {
	// Create inserts the request and its slots. It fails with ErrTimeConflict
	// when a slot overlaps a pending or approved booking.
	Create(ctx context.Context, r *Request) error
	GetByID(ctx context.Context, id string) (*Request, error)
	List(ctx context.Context, filter Filter) ([]*Request, int, error)

	// ConsumeApprovalToken moves the pending request holding token to the
	// given status and clears the token in one statement.
	ConsumeApprovalToken(ctx context.Context, token string, to Status, cancellationToken *string) (*Request, error)
	// ConsumeCancellationToken cancels the approved request holding token.
	ConsumeCancellationToken(ctx context.Context, token string, reason string) (*Request, error)

	SetSlotEvents(ctx context.Context, requestID string, refs []calendar.EventRef) error

	// BusyIntervals returns the slots of pending and approved requests
	// between start and end.
	BusyIntervals(ctx context.Context, start, end time.Time) ([]availability.Interval, error)

	EnqueueWork(ctx context.Context, w *WorkItem) error
	// ClaimWork marks up to limit pending items running and returns them.
	// Items left running for longer than staleAfter are claimed again.
	// Concurrent callers never receive the same item.
	ClaimWork(ctx context.Context, limit int, staleAfter time.Duration) ([]*WorkItem, error)
	UpdateWork(ctx context.Context, w *WorkItem) error
}

var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

var requestColumns = []string{
	"id", "user_name", "user_email", "phone_number", "client_name", "role_name",
	"job_description", "team_name", "job_link", "message", "resume_file_path",
	"payment_screenshot_path", "status", "approval_token", "cancellation_token",
	"created_at", "updated_at", "cancelled_at", "cancellation_reason",
}

type pgxRepository struct {
	pool *pgxpool.Pool
	loc  *time.Location
}

// NewPgxRepository creates a repository. loc is the business timezone slot
// wall-clock times are stored in.
func NewPgxRepository(pool *pgxpool.Pool, loc *time.Location) Repository {
	if loc == nil {
		loc = time.UTC
	}
	return &pgxRepository{pool: pool, loc: loc}
}

func scanRequest(row pgx.Row, extra ...any) (*Request, error) {
	var r Request
	dest := []any{
		&r.ID, &r.UserName, &r.UserEmail, &r.PhoneNumber, &r.ClientName, &r.RoleName,
		&r.JobDescription, &r.TeamName, &r.JobLink, &r.Message, &r.ResumeFilePath,
		&r.PaymentScreenshotPath, &r.Status, &r.ApprovalToken, &r.CancellationToken,
		&r.CreatedAt, &r.UpdatedAt, &r.CancelledAt, &r.CancellationReason,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	return &r, nil
}

func (r *pgxRepository) Create(ctx context.Context, req *Request) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin create booking tx failed: %w", err)
	}
	defer tx.Rollback(ctx)

	// Serialize submissions touching the same dates so the overlap check
	// and the insert below cannot interleave with another submission.
	dates := map[string]bool{}
	for _, s := range req.Slots {
		dates[s.Date] = true
	}
	ordered := make([]string, 0, len(dates))
	for d := range dates {
		ordered = append(ordered, d)
	}
	sort.Strings(ordered)
	for _, d := range ordered {
		if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", "booking_slots:"+d); err != nil {
			return fmt.Errorf("lock slot date failed: %w", err)
		}
	}

	for _, s := range req.Slots {
		overlap, err := hasOverlap(ctx, tx, s)
		if err != nil {
			return err
		}
		if overlap {
			return ErrTimeConflict
		}
	}

	query, args, err := psql.Insert("public.booking_requests").
		Columns(
			"user_name", "user_email", "phone_number", "client_name", "role_name",
			"job_description", "team_name", "job_link", "message", "resume_file_path",
			"payment_screenshot_path", "status", "approval_token",
		).
		Values(
			req.UserName, req.UserEmail, req.PhoneNumber, req.ClientName, req.RoleName,
			req.JobDescription, req.TeamName, req.JobLink, req.Message, req.ResumeFilePath,
			req.PaymentScreenshotPath, req.Status, req.ApprovalToken,
		).
		Suffix("RETURNING id, created_at, updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build create booking query failed: %w", err)
	}
	if err := tx.QueryRow(ctx, query, args...).Scan(&req.ID, &req.CreatedAt, &req.UpdatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return fmt.Errorf("approval token collision: %w", err)
		}
		return fmt.Errorf("create booking failed: %w", err)
	}

	for i := range req.Slots {
		s := &req.Slots[i]
		s.RequestID = req.ID
		query, args, err := psql.Insert("public.booking_slots").
			Columns("booking_request_id", "ordinal", "slot_date", "slot_start_time", "slot_end_time", "slot_duration_minutes").
			Values(req.ID, s.Ordinal, s.Date, s.StartTime, s.EndTime, s.DurationMinutes).
			Suffix("RETURNING id").
			ToSql()
		if err != nil {
			return fmt.Errorf("build create slot query failed: %w", err)
		}
		if err := tx.QueryRow(ctx, query, args...).Scan(&s.ID); err != nil {
			return fmt.Errorf("create slot failed: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit create booking failed: %w", err)
	}
	return nil
}

func hasOverlap(ctx context.Context, tx pgx.Tx, s Slot) (bool, error) {
	// Time overlaps on the same date: (NewStart < ExistingEnd) AND (NewEnd > ExistingStart)
	subQuery := psql.Select("1").
		From("public.booking_slots s").
		Join("public.booking_requests r ON s.booking_request_id = r.id").
		Where(squirrel.Eq{"r.status": []string{string(StatusPending), string(StatusApproved)}}).
		Where(squirrel.Expr("s.slot_date = ?::date", s.Date)).
		Where(squirrel.Expr("s.slot_start_time < ?::time", s.EndTime)).
		Where(squirrel.Expr("s.slot_end_time > ?::time", s.StartTime))

	sql, args, err := subQuery.ToSql()
	if err != nil {
		return false, fmt.Errorf("build check overlap query failed: %w", err)
	}

	var exists bool
	if err := tx.QueryRow(ctx, "SELECT EXISTS ("+sql+")", args...).Scan(&exists); err != nil {
		return false, fmt.Errorf("check overlap failed: %w", err)
	}
	return exists, nil
}

func (r *pgxRepository) GetByID(ctx context.Context, id string) (*Request, error) {
	query, args, err := psql.Select(requestColumns...).
		From("public.booking_requests").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get booking query failed: %w", err)
	}

	req, err := scanRequest(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get booking failed: %w", err)
	}

	if err := r.loadSlots(ctx, []*Request{req}); err != nil {
		return nil, err
	}
	return req, nil
}

func (r *pgxRepository) List(ctx context.Context, filter Filter) ([]*Request, int, error) {
	query := psql.Select(append(requestColumns, "count(*) OVER() AS total_count")...).
		From("public.booking_requests")

	if filter.Status != "" {
		query = query.Where(squirrel.Eq{"status": filter.Status})
	}
	if filter.Email != "" {
		query = query.Where(squirrel.ILike{"user_email": filter.Email})
	}

	orderDir := "DESC"
	if filter.SortOrder == "asc" {
		orderDir = "ASC"
	}
	query = query.OrderBy("created_at " + orderDir)

	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 {
		filter.PageSize = 20
	}
	offset := (filter.Page - 1) * filter.PageSize
	query = query.Limit(uint64(filter.PageSize)).Offset(uint64(offset))

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build list bookings query failed: %w", err)
	}

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list bookings failed: %w", err)
	}
	defer rows.Close()

	var out []*Request
	var total int
	for rows.Next() {
		req, err := scanRequest(rows, &total)
		if err != nil {
			return nil, 0, fmt.Errorf("scan booking failed: %w", err)
		}
		out = append(out, req)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list bookings failed: %w", err)
	}

	if err := r.loadSlots(ctx, out); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *pgxRepository) loadSlots(ctx context.Context, reqs []*Request) error {
	if len(reqs) == 0 {
		return nil
	}
	byID := make(map[string]*Request, len(reqs))
	ids := make([]string, 0, len(reqs))
	for _, req := range reqs {
		byID[req.ID] = req
		ids = append(ids, req.ID)
	}

	query, args, err := psql.Select(
		"id", "booking_request_id", "ordinal",
		"to_char(slot_date, 'YYYY-MM-DD')",
		"to_char(slot_start_time, 'HH24:MI')",
		"to_char(slot_end_time, 'HH24:MI')",
		"slot_duration_minutes", "calendar_id", "calendar_event_id",
	).
		From("public.booking_slots").
		Where(squirrel.Eq{"booking_request_id": ids}).
		OrderBy("booking_request_id", "ordinal").
		ToSql()
	if err != nil {
		return fmt.Errorf("build list slots query failed: %w", err)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("list slots failed: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var s Slot
		if err := rows.Scan(
			&s.ID, &s.RequestID, &s.Ordinal, &s.Date, &s.StartTime, &s.EndTime,
			&s.DurationMinutes, &s.CalendarID, &s.CalendarEventID,
		); err != nil {
			return fmt.Errorf("scan slot failed: %w", err)
		}
		if req, ok := byID[s.RequestID]; ok {
			req.Slots = append(req.Slots, s)
		}
	}
	return rows.Err()
}

func (r *pgxRepository) ConsumeApprovalToken(ctx context.Context, token string, to Status, cancellationToken *string) (*Request, error) {
	query, args, err := psql.Update("public.booking_requests").
		Set("status", to).
		Set("approval_token", nil).
		Set("cancellation_token", cancellationToken).
		Set("updated_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"approval_token": token, "status": StatusPending}).
		Suffix("RETURNING " + strings.Join(requestColumns, ", ")).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build resolve booking query failed: %w", err)
	}
	return r.transition(ctx, query, args)
}

func (r *pgxRepository) ConsumeCancellationToken(ctx context.Context, token string, reason string) (*Request, error) {
	query, args, err := psql.Update("public.booking_requests").
		Set("status", StatusCancelled).
		Set("cancellation_token", nil).
		Set("cancellation_reason", reason).
		Set("cancelled_at", squirrel.Expr("now()")).
		Set("updated_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"cancellation_token": token, "status": StatusApproved}).
		Suffix("RETURNING " + strings.Join(requestColumns, ", ")).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build cancel booking query failed: %w", err)
	}
	return r.transition(ctx, query, args)
}

// transition runs a guarded UPDATE ... RETURNING. The WHERE clause carries
// the token and expected status, so at most one caller can win.
func (r *pgxRepository) transition(ctx context.Context, query string, args []any) (*Request, error) {
	req, err := scanRequest(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("update booking status failed: %w", err)
	}
	if err := r.loadSlots(ctx, []*Request{req}); err != nil {
		return nil, err
	}
	return req, nil
}

func (r *pgxRepository) SetSlotEvents(ctx context.Context, requestID string, refs []calendar.EventRef) error {
	batch := &pgx.Batch{}
	for _, ref := range refs {
		query, args, err := psql.Update("public.booking_slots").
			Set("calendar_id", ref.CalendarID).
			Set("calendar_event_id", ref.EventID).
			Where(squirrel.Eq{"booking_request_id": requestID, "ordinal": ref.Ordinal}).
			ToSql()
		if err != nil {
			return fmt.Errorf("build set slot event query failed: %w", err)
		}
		batch.Queue(query, args...)
	}
	if batch.Len() == 0 {
		return nil
	}
	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("set slot events failed: %w", err)
	}
	return nil
}

func (r *pgxRepository) BusyIntervals(ctx context.Context, start, end time.Time) ([]availability.Interval, error) {
	query, args, err := psql.Select(
		"to_char(s.slot_date, 'YYYY-MM-DD')",
		"to_char(s.slot_start_time, 'HH24:MI')",
		"to_char(s.slot_end_time, 'HH24:MI')",
	).
		From("public.booking_slots s").
		Join("public.booking_requests r ON s.booking_request_id = r.id").
		Where(squirrel.Eq{"r.status": []string{string(StatusPending), string(StatusApproved)}}).
		Where(squirrel.Expr("s.slot_date BETWEEN ?::date AND ?::date",
			start.In(r.loc).Format(DateLayout), end.In(r.loc).Format(DateLayout))).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build busy slots query failed: %w", err)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list busy slots failed: %w", err)
	}
	defer rows.Close()

	var out []availability.Interval
	for rows.Next() {
		var s Slot
		if err := rows.Scan(&s.Date, &s.StartTime, &s.EndTime); err != nil {
			return nil, fmt.Errorf("scan busy slot failed: %w", err)
		}
		from, to, err := s.Bounds(r.loc)
		if err != nil {
			return nil, err
		}
		out = append(out, availability.Interval{Start: from, End: to})
	}
	return out, rows.Err()
}

func (r *pgxRepository) EnqueueWork(ctx context.Context, w *WorkItem) error {
	query, args, err := psql.Insert("public.booking_work_items").
		Columns("id", "booking_request_id", "kind", "status", "attempts", "last_error").
		Values(w.ID, w.RequestID, w.Kind, w.Status, w.Attempts, w.LastError).
		Suffix("RETURNING created_at, updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build enqueue work query failed: %w", err)
	}
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&w.CreatedAt, &w.UpdatedAt); err != nil {
		return fmt.Errorf("enqueue work failed: %w", err)
	}
	return nil
}

var workColumns = []string{"id", "booking_request_id", "kind", "status", "attempts", "last_error", "created_at", "updated_at"}

func (r *pgxRepository) ClaimWork(ctx context.Context, limit int, staleAfter time.Duration) ([]*WorkItem, error) {
	subQuery := psql.Select("id").
		From("public.booking_work_items").
		Where(squirrel.Or{
			squirrel.Eq{"status": WorkPending},
			squirrel.And{
				squirrel.Eq{"status": WorkRunning},
				squirrel.Expr("updated_at < now() - make_interval(secs => ?)", staleAfter.Seconds()),
			},
		}).
		OrderBy("created_at").
		Limit(uint64(limit)).
		Suffix("FOR UPDATE SKIP LOCKED")

	sql, args, err := subQuery.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build claim work query failed: %w", err)
	}
	query := "UPDATE public.booking_work_items SET status = '" + string(WorkRunning) + "', updated_at = now() " +
		"WHERE id IN (" + sql + ") RETURNING " + strings.Join(workColumns, ", ")

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("claim work failed: %w", err)
	}
	defer rows.Close()

	var out []*WorkItem
	for rows.Next() {
		var w WorkItem
		if err := rows.Scan(&w.ID, &w.RequestID, &w.Kind, &w.Status, &w.Attempts, &w.LastError, &w.CreatedAt, &w.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan work item failed: %w", err)
		}
		out = append(out, &w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("claim work failed: %w", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *pgxRepository) UpdateWork(ctx context.Context, w *WorkItem) error {
	query, args, err := psql.Update("public.booking_work_items").
		Set("status", w.Status).
		Set("attempts", w.Attempts).
		Set("last_error", w.LastError).
		Set("updated_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"id": w.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update work query failed: %w", err)
	}

	ct, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update work failed: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("work item %s not found", w.ID)
	}
	return nil
}

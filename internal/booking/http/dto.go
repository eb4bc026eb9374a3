package http

import (
	"time"

	"github.com/nekogravitycat/meeting-booking-backend/internal/booking"
	"github.com/nekogravitycat/meeting-booking-backend/internal/pkg/request"
)

type SlotBody struct {
	SlotDate            string `json:"slot_date"`
	SlotStartTime       string `json:"slot_start_time"`
	SlotEndTime         string `json:"slot_end_time"`
	SlotDurationMinutes int    `json:"slot_duration_minutes"`
}

// SubmitBookingBody is the public submission payload. Required fields are
// checked by the service so that every input error has the same shape.
type SubmitBookingBody struct {
	UserName              string     `json:"user_name"`
	UserEmail             string     `json:"user_email"`
	PhoneNumber           string     `json:"phone_number"`
	ClientName            string     `json:"client_name"`
	RoleName              string     `json:"role_name"`
	JobDescription        string     `json:"job_description"`
	TeamName              string     `json:"team_name"`
	JobLink               string     `json:"job_link"`
	Message               string     `json:"message"`
	Slots                 []SlotBody `json:"slots"`
	ResumeFilePath        string     `json:"resume_file_path"`
	PaymentScreenshotPath string     `json:"payment_screenshot_path"`
}

func (b SubmitBookingBody) toRequest() booking.SubmitRequest {
	req := booking.SubmitRequest{
		UserName:              b.UserName,
		UserEmail:             b.UserEmail,
		PhoneNumber:           b.PhoneNumber,
		ClientName:            b.ClientName,
		RoleName:              b.RoleName,
		JobDescription:        b.JobDescription,
		TeamName:              b.TeamName,
		JobLink:               b.JobLink,
		Message:               b.Message,
		ResumeFilePath:        b.ResumeFilePath,
		PaymentScreenshotPath: b.PaymentScreenshotPath,
	}
	for _, s := range b.Slots {
		req.Slots = append(req.Slots, booking.SlotInput{
			Date:            s.SlotDate,
			StartTime:       s.SlotStartTime,
			EndTime:         s.SlotEndTime,
			DurationMinutes: s.SlotDurationMinutes,
		})
	}
	return req
}

type SubmitBookingResponse struct {
	Success   bool   `json:"success"`
	BookingID string `json:"bookingId"`
	Message   string `json:"message"`
}

// ListBookingsRequest defines query parameters for the operator listing.
type ListBookingsRequest struct {
	request.ListParams
	Status string `form:"status" binding:"omitempty,oneof=pending approved rejected cancelled"`
	Email  string `form:"email" binding:"omitempty,email"`
}

type ReconcileRequest struct {
	Limit int `form:"limit,default=50" binding:"min=1,max=500"`
}

type SlotResponse struct {
	ID              string  `json:"id"`
	Ordinal         int     `json:"ordinal"`
	SlotDate        string  `json:"slot_date"`
	SlotStartTime   string  `json:"slot_start_time"`
	SlotEndTime     string  `json:"slot_end_time"`
	DurationMinutes int     `json:"slot_duration_minutes"`
	CalendarID      *string `json:"calendar_id"`
	CalendarEventID *string `json:"calendar_event_id"`
}

// BookingResponse is the operator view of a request. Tokens are never exposed.
type BookingResponse struct {
	ID                    string         `json:"id"`
	UserName              string         `json:"user_name"`
	UserEmail             string         `json:"user_email"`
	PhoneNumber           string         `json:"phone_number"`
	ClientName            string         `json:"client_name"`
	RoleName              string         `json:"role_name"`
	JobDescription        string         `json:"job_description"`
	TeamName              string         `json:"team_name"`
	JobLink               string         `json:"job_link"`
	Message               string         `json:"message"`
	ResumeFilePath        string         `json:"resume_file_path"`
	PaymentScreenshotPath string         `json:"payment_screenshot_path"`
	Status                string         `json:"status"`
	Slots                 []SlotResponse `json:"slots"`
	CreatedAt             time.Time      `json:"created_at"`
	UpdatedAt             time.Time      `json:"updated_at"`
	CancelledAt           *time.Time     `json:"cancelled_at"`
	CancellationReason    *string        `json:"cancellation_reason"`
}

func NewBookingResponse(r *booking.Request) BookingResponse {
	resp := BookingResponse{
		ID:                    r.ID,
		UserName:              r.UserName,
		UserEmail:             r.UserEmail,
		PhoneNumber:           r.PhoneNumber,
		ClientName:            r.ClientName,
		RoleName:              r.RoleName,
		JobDescription:        r.JobDescription,
		TeamName:              r.TeamName,
		JobLink:               r.JobLink,
		Message:               r.Message,
		ResumeFilePath:        r.ResumeFilePath,
		PaymentScreenshotPath: r.PaymentScreenshotPath,
		Status:                string(r.Status),
		Slots:                 make([]SlotResponse, 0, len(r.Slots)),
		CreatedAt:             r.CreatedAt,
		UpdatedAt:             r.UpdatedAt,
		CancelledAt:           r.CancelledAt,
		CancellationReason:    r.CancellationReason,
	}
	for _, s := range r.Slots {
		resp.Slots = append(resp.Slots, SlotResponse{
			ID:              s.ID,
			Ordinal:         s.Ordinal,
			SlotDate:        s.Date,
			SlotStartTime:   s.StartTime,
			SlotEndTime:     s.EndTime,
			DurationMinutes: s.DurationMinutes,
			CalendarID:      s.CalendarID,
			CalendarEventID: s.CalendarEventID,
		})
	}
	return resp
}

// page is the data rendered by the confirmation pages.
type page struct {
	Title   string
	Heading string
	Body    string
	Slots   []booking.Slot
}

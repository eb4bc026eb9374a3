package http

import (
	"time"

	"github.com/nekogravitycat/meeting-booking-backend/internal/availability"
)

// SlotsRequest defines the query parameters of the slot lookup.
type SlotsRequest struct {
	StartDate time.Time `form:"startDate" binding:"required" time_format:"2006-01-02T15:04:05Z07:00"`
	EndDate   time.Time `form:"endDate" binding:"required" time_format:"2006-01-02T15:04:05Z07:00"`
}

type SlotResponse struct {
	ID          string `json:"id"`
	Date        string `json:"date"`
	StartTime   string `json:"startTime"`
	EndTime     string `json:"endTime"`
	IsAvailable bool   `json:"isAvailable"`
	Duration    int    `json:"duration"`
}

type SlotsResponse struct {
	Slots []SlotResponse `json:"slots"`
}

func NewSlotsResponse(slots []availability.Slot) SlotsResponse {
	resp := SlotsResponse{Slots: make([]SlotResponse, 0, len(slots))}
	for _, s := range slots {
		resp.Slots = append(resp.Slots, SlotResponse{
			ID:          s.ID,
			Date:        s.Date,
			StartTime:   s.StartTime,
			EndTime:     s.EndTime,
			IsAvailable: s.IsAvailable,
			Duration:    s.Duration,
		})
	}
	return resp
}

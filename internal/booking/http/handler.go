package http

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/render"
	"go.uber.org/zap"

	"github.com/nekogravitycat/meeting-booking-backend/internal/auth"
	"github.com/nekogravitycat/meeting-booking-backend/internal/booking"
	"github.com/nekogravitycat/meeting-booking-backend/internal/pkg/apperror"
	"github.com/nekogravitycat/meeting-booking-backend/internal/pkg/logger"
	"github.com/nekogravitycat/meeting-booking-backend/internal/pkg/request"
	"github.com/nekogravitycat/meeting-booking-backend/internal/pkg/response"
)

//go:embed pages/*.html
var pageFS embed.FS

var pages = template.Must(template.ParseFS(pageFS, "pages/*.html"))

// Reconciler retries pending calendar work items.
type Reconciler interface {
	Run(ctx context.Context, limit int) (booking.Report, error)
}

type Handler struct {
	service    booking.Service
	reconciler Reconciler
}

func NewHandler(service booking.Service, reconciler Reconciler) *Handler {
	return &Handler{
		service:    service,
		reconciler: reconciler,
	}
}

func (h *Handler) Submit(c *gin.Context) {
	var body SubmitBookingBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{Error: "invalid request body"})
		return
	}

	r, err := h.service.Submit(c.Request.Context(), body.toRequest())
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusCreated, SubmitBookingResponse{
		Success:   true,
		BookingID: r.ID,
		Message:   "Booking request submitted. You will receive an email once it has been reviewed.",
	})
}

// Resolve handles the approve/reject link sent to the operator.
func (h *Handler) Resolve(c *gin.Context) {
	action := booking.Action(c.Query("action"))
	r, err := h.service.Resolve(c.Request.Context(), c.Query("token"), action)
	if err != nil {
		h.errorPage(c, err)
		return
	}

	p := page{Title: "Booking rejected", Heading: "Booking rejected",
		Body: "The request from " + r.UserName + " has been rejected and they have been notified."}
	if r.Status == booking.StatusApproved {
		p = page{Title: "Booking approved", Heading: "Booking approved",
			Body: "The request from " + r.UserName + " has been approved and they have been notified.", Slots: r.Slots}
	}
	h.page(c, http.StatusOK, p)
}

// Cancel handles the cancellation link sent to the requester.
func (h *Handler) Cancel(c *gin.Context) {
	r, err := h.service.Cancel(c.Request.Context(), c.Query("token"), c.Query("reason"))
	if err != nil {
		h.errorPage(c, err)
		return
	}

	h.page(c, http.StatusOK, page{
		Title:   "Booking cancelled",
		Heading: "Your booking has been cancelled",
		Body:    "The following slots have been released. A confirmation has been sent to you and to the organizer.",
		Slots:   r.Slots,
	})
}

func (h *Handler) List(c *gin.Context) {
	var req ListBookingsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{Error: "invalid query parameters"})
		return
	}

	filter := booking.Filter{
		Status:    req.Status,
		Email:     req.Email,
		Page:      req.Page,
		PageSize:  req.PageSize,
		SortOrder: req.SortOrder,
	}
	requests, total, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]BookingResponse, len(requests))
	for i, r := range requests {
		items[i] = NewBookingResponse(r)
	}
	c.JSON(http.StatusOK, response.NewPageResponse(items, req.Page, req.PageSize, total))
}

func (h *Handler) Get(c *gin.Context) {
	var req request.ByIDRequest
	if err := c.ShouldBindUri(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{Error: "invalid UUID"})
		return
	}

	r, err := h.service.GetByID(c.Request.Context(), req.ID)
	if err != nil {
		if errors.Is(err, booking.ErrNotFound) {
			c.JSON(http.StatusNotFound, response.ErrorResponse{Error: "booking not found"})
			return
		}
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, NewBookingResponse(r))
}

// Reconcile runs one pass over pending calendar work items.
func (h *Handler) Reconcile(c *gin.Context) {
	var req ReconcileRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{Error: "invalid query parameters"})
		return
	}

	report, err := h.reconciler.Run(c.Request.Context(), req.Limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	logger.FromContext(c).Info("reconcile triggered",
		zap.String("operator", auth.GetOperator(c)),
		zap.Int("processed", report.Processed),
		zap.Int("failed", report.Failed),
	)
	c.JSON(http.StatusOK, report)
}

func (h *Handler) errorPage(c *gin.Context, err error) {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) || appErr.Code >= http.StatusInternalServerError {
		logger.FromContext(c).Error("booking link failed", zap.Error(err))
		h.page(c, http.StatusInternalServerError, page{
			Title:   "Something went wrong",
			Heading: "Something went wrong",
			Body:    "We could not process this link. Please try again later.",
		})
		return
	}

	p := page{Title: "Link not valid", Heading: "This link is no longer valid", Body: appErr.Message}
	if errors.Is(err, booking.ErrNotFound) {
		p.Body = "The booking was not found or this link has already been used."
	}
	h.page(c, appErr.Code, p)
}

func (h *Handler) page(c *gin.Context, code int, p page) {
	c.Render(code, render.HTML{Template: pages, Name: "result.html", Data: p})
}

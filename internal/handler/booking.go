package handler

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/seat-booking/internal/middleware"
	"github.com/iliyamo/seat-booking/internal/model"
	"github.com/iliyamo/seat-booking/internal/service"
	"github.com/iliyamo/seat-booking/internal/utils"
)

// BookingAPI is the part of service.BookingService the handlers use.
type BookingAPI interface {
	Book(ctx context.Context, screeningID uint64, seatIDs []uint64, requester string) (*model.Booking, error)
	Get(ctx context.Context, bookingID string, caller service.Caller) (*model.Booking, error)
	Cancel(ctx context.Context, bookingID string, caller service.Caller) (model.Transition, error)
	RequestConfirmation(ctx context.Context, bookingID string) (*model.Booking, error)
}

type BookingHandler struct {
	svc BookingAPI
	log *zap.Logger
}

func NewBookingHandler(svc BookingAPI, log *zap.Logger) *BookingHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &BookingHandler{svc: svc, log: log.With(zap.String("component", "booking_handler"))}
}

type bookRequest struct {
	SeatIDs []uint64 `json:"seat_ids" validate:"max=20,dive,gt=0"`
}

type bookingResponse struct {
	BookingID string              `json:"booking_id"`
	Status    model.BookingStatus `json:"status"`
	SeatIDs   []uint64            `json:"seat_ids"`
}

func bookingBody(b *model.Booking) bookingResponse {
	seats := b.SeatIDs
	if seats == nil {
		seats = []uint64{}
	}
	return bookingResponse{BookingID: b.ID, Status: b.Status, SeatIDs: seats}
}

func caller(c echo.Context) service.Caller {
	return service.Caller{Subject: middleware.Requester(c), Operator: middleware.IsOperator(c)}
}

// Book handles POST /v1/screenings/:id/bookings.  An empty or absent
// seat_ids books the screening itself with no seat rows.
func (h *BookingHandler) Book(c echo.Context) error {
	screeningID, ok := paramID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid screening id"})
	}
	var req bookRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if errs := utils.ValidateStruct(req); errs != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "validation failed", "fields": errs})
	}

	b, err := h.svc.Book(c.Request().Context(), screeningID, req.SeatIDs, middleware.Requester(c))
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusCreated, bookingBody(b))
}

// Get handles GET /v1/bookings/:id.
func (h *BookingHandler) Get(c echo.Context) error {
	id, ok := bookingID(c)
	if !ok {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "booking not found"})
	}
	b, err := h.svc.Get(c.Request().Context(), id, caller(c))
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, b)
}

// Cancel handles POST /v1/bookings/:id/cancel.
func (h *BookingHandler) Cancel(c echo.Context) error {
	id, ok := bookingID(c)
	if !ok {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "booking not found"})
	}
	tr, err := h.svc.Cancel(c.Request().Context(), id, caller(c))
	if err != nil {
		return writeError(c, h.log, err)
	}
	released := tr.SeatIDs
	if released == nil {
		released = []uint64{}
	}
	return c.JSON(http.StatusOK, echo.Map{
		"booking_id": id,
		"status":     tr.To,
		"previous":   tr.From,
		"released":   released,
	})
}

// RequestConfirmation handles POST /v1/bookings/:id/confirm.  It
// re-enqueues a PENDING booking; the worker performs the transition.
func (h *BookingHandler) RequestConfirmation(c echo.Context) error {
	id, ok := bookingID(c)
	if !ok {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "booking not found"})
	}
	b, err := h.svc.RequestConfirmation(c.Request().Context(), id)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusAccepted, bookingBody(b))
}

// bookingID returns the canonical form of the :id parameter.  Ids that
// are not UUIDs cannot exist.
func bookingID(c echo.Context) (string, bool) {
	u, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return "", false
	}
	return u.String(), true
}

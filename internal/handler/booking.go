package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/cinema-seat-sync/internal/logger"
	"github.com/iliyamo/cinema-seat-sync/internal/middleware"
	"github.com/iliyamo/cinema-seat-sync/internal/model"
	"github.com/iliyamo/cinema-seat-sync/internal/repository"
	"github.com/iliyamo/cinema-seat-sync/internal/service"
)

type bookingService interface {
	Create(ctx context.Context, userID, showID uint64, seats []string) (*model.Booking, error)
	Cancel(ctx context.Context, userID, bookingID uint64) (*model.Booking, error)
	ShowSeats(ctx context.Context, userID, showID uint64) (model.ShowSeats, error)
	ListByUser(ctx context.Context, userID uint64) ([]model.Booking, error)
}

type lockSnapshotter interface {
	Snapshot(ctx context.Context, showID uint64) ([]string, error)
}

// BookingHandler serves the booking REST endpoints.  All routes sit behind
// JWTAuth.
type BookingHandler struct {
	bookings bookingService
	locks    lockSnapshotter
}

func NewBookingHandler(bookings bookingService, locks lockSnapshotter) *BookingHandler {
	return &BookingHandler{bookings: bookings, locks: locks}
}

type createBookingRequest struct {
	// UserID may be omitted; when present it must be the caller.
	UserID uint64   `json:"userId"`
	ShowID uint64   `json:"showId" validate:"required"`
	Seats  []string `json:"seats"`
}

// Create handles POST /v1/bookings.
//
//	201 created booking
//	400 malformed body, no seats, too many seats, unknown seat ids
//	403 userId is somebody else
//	409 a seat is already booked
func (h *BookingHandler) Create(c echo.Context) error {
	uid, ok := middleware.UserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var body createBookingRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if err := c.Validate(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "showId is required"})
	}
	if body.UserID != 0 && body.UserID != uid {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "cannot book for another user"})
	}

	b, err := h.bookings.Create(c.Request().Context(), uid, body.ShowID, body.Seats)
	if err != nil {
		return bookingError(c, err)
	}
	return c.JSON(http.StatusCreated, b)
}

// Cancel handles DELETE /v1/bookings/:id.
func (h *BookingHandler) Cancel(c echo.Context) error {
	uid, ok := middleware.UserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking id"})
	}
	b, err := h.bookings.Cancel(c.Request().Context(), uid, id)
	if err != nil {
		return bookingError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "booking cancelled", "booking": b})
}

// ShowBookings handles GET /v1/shows/:id/bookings.
func (h *BookingHandler) ShowBookings(c echo.Context) error {
	uid, ok := middleware.UserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	showID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || showID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid show id"})
	}
	seats, err := h.bookings.ShowSeats(c.Request().Context(), uid, showID)
	if err != nil {
		return bookingError(c, err)
	}
	return c.JSON(http.StatusOK, seats)
}

// MyBookings handles GET /v1/me/bookings.
func (h *BookingHandler) MyBookings(c echo.Context) error {
	uid, ok := middleware.UserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	list, err := h.bookings.ListByUser(c.Request().Context(), uid)
	if err != nil {
		return bookingError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"bookings": list})
}

// ShowLocks handles GET /v1/shows/:id/locks, the HTTP twin of the
// websocket join snapshot.
func (h *BookingHandler) ShowLocks(c echo.Context) error {
	showID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || showID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid show id"})
	}
	seats, err := h.locks.Snapshot(c.Request().Context(), showID)
	if err != nil {
		logger.Warn("handler: lock snapshot failed", zap.Uint64("show_id", showID), zap.Error(err))
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "seat state unavailable"})
	}
	return c.JSON(http.StatusOK, echo.Map{"showId": showID, "lockedSeats": seats})
}

// bookingError maps service errors to responses.  Conflict and invalid
// request messages are returned verbatim so the caller can tell them
// apart.
func bookingError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, service.ErrInvalidRequest):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	case errors.Is(err, service.ErrSeatConflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
	case errors.Is(err, service.ErrBookingNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "booking not found"})
	case errors.Is(err, repository.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "booking belongs to another user"})
	default:
		logger.Error("handler: booking request failed", zap.String("path", c.Path()), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
}

package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-booking-settlement/internal/model"
)

// SeatReader exposes seat availability for display.
type SeatReader interface {
	ListByShowtime(ctx context.Context, showtimeID uint64) ([]model.SeatSlot, error)
}

// SeatMapHandler serves the read-only availability view the seat picker
// polls while customers choose seats.  Responses are safe to cache for a
// few seconds; the authoritative check happens at hold time anyway.
type SeatMapHandler struct {
	Seats SeatReader
}

// NewSeatMapHandler constructs a SeatMapHandler.
func NewSeatMapHandler(seats SeatReader) *SeatMapHandler {
	if seats == nil {
		panic("nil seat reader passed to NewSeatMapHandler")
	}
	return &SeatMapHandler{Seats: seats}
}

// ByShowtime handles GET /v1/showtimes/:id/seats.
func (h *SeatMapHandler) ByShowtime(c echo.Context) error {
	showtimeID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || showtimeID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid showtime id"})
	}
	slots, err := h.Seats.ListByShowtime(c.Request().Context(), showtimeID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load seats"})
	}
	items := make([]echo.Map, 0, len(slots))
	for _, s := range slots {
		items = append(items, echo.Map{
			"seat_id": s.SeatID,
			"status":  string(s.Status),
		})
	}
	return c.JSON(http.StatusOK, echo.Map{"showtime_id": showtimeID, "items": items})
}

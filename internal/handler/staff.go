package handler

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-booking-settlement/internal/model"
	"github.com/iliyamo/cinema-booking-settlement/internal/service"
)

// StaffHandler serves the counter flow: the cashier already knows which
// order was paid (QR scanned at the desk, cash taken), so settlement runs
// directly against the named order and the matcher's inference is bypassed
// entirely.  Routes using this handler must sit behind the staff JWT and
// role middleware.
type StaffHandler struct {
	Orders  Ledger
	Settler *service.SettlementProcessor
}

// NewStaffHandler constructs a StaffHandler.
func NewStaffHandler(orders Ledger, settler *service.SettlementProcessor) *StaffHandler {
	if orders == nil || settler == nil {
		panic("nil dependency passed to NewStaffHandler")
	}
	return &StaffHandler{Orders: orders, Settler: settler}
}

// Settle handles POST /v1/staff/orders/:code/settle.  The optional body
// may carry the provider transaction id and received amount when the
// payment arrived through a terminal; both default to values derived from
// the order for cash payments.
func (h *StaffHandler) Settle(c echo.Context) error {
	code := c.Param("code")
	ctx := c.Request().Context()

	o, err := h.Orders.GetByCode(ctx, code)
	if errors.Is(err, model.ErrOrderNotFound) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "order not found"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load order"})
	}

	var body struct {
		ExternalTxnID string `json:"external_txn_id"`
		Amount        int64  `json:"amount"`
	}
	_ = c.Bind(&body) // body is optional for the cash flow
	if body.ExternalTxnID == "" {
		body.ExternalTxnID = fmt.Sprintf("COUNTER-%s", o.PublicCode)
	}
	if body.Amount == 0 {
		body.Amount = o.TotalAmount
	}

	outcome, err := h.Settler.Settle(ctx, o.PublicCode, model.PaymentNotification{
		ExternalTxnID: body.ExternalTxnID,
		Amount:        body.Amount,
		Direction:     model.TxnIn,
		ReceivedAt:    time.Now().UTC(),
	})
	switch {
	case errors.Is(err, model.ErrInvalidSeatState):
		// The hold expired and the sweep released the seats; the order is
		// still PENDING and nothing was applied.
		return c.JSON(http.StatusConflict, echo.Map{"error": "invalid_seat_state"})
	case err != nil:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to settle order"})
	}

	status := model.OrderCompleted
	if outcome == service.AlreadySettled {
		// Terminal before this call; report the idempotent success.
		if fresh, err := h.Orders.GetByCode(ctx, code); err == nil {
			status = fresh.Status
		}
	}
	return c.JSON(http.StatusOK, echo.Map{"status": string(status)})
}

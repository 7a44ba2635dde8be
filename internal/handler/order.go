package handler

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-booking-settlement/internal/model"
	"github.com/iliyamo/cinema-booking-settlement/internal/service"
)

// Ledger is the slice of the booking ledger used directly by handlers.
type Ledger interface {
	GetByCode(ctx context.Context, code string) (*model.Order, error)
}

// OrderHandler serves order creation, the payment status poll and explicit
// cancellation.  Failures during creation surface synchronously so the
// client can retry with different seats.
type OrderHandler struct {
	Minter     *service.Minter
	Matcher    *service.Matcher
	Settler    *service.SettlementProcessor
	Orders     Ledger
	Txns       TxnLog
	PollWindow time.Duration
}

// NewOrderHandler constructs an OrderHandler.  All dependencies except Txns
// must be non-nil.
func NewOrderHandler(minter *service.Minter, matcher *service.Matcher, settler *service.SettlementProcessor, orders Ledger, txns TxnLog, pollWindow time.Duration) *OrderHandler {
	if minter == nil || matcher == nil || settler == nil || orders == nil {
		panic("nil dependency passed to NewOrderHandler")
	}
	return &OrderHandler{Minter: minter, Matcher: matcher, Settler: settler, Orders: orders, Txns: txns, PollWindow: pollWindow}
}

// createOrderRequest is the POST /v1/orders body.  Total amount, points and
// voucher selection are fixed here and never recomputed by reconciliation.
type createOrderRequest struct {
	ShowtimeID      uint64  `json:"showtime_id"`
	SeatIDs         []uint64 `json:"seat_ids"`
	TotalAmount     int64   `json:"total_amount"`
	MemberAccountID *uint64 `json:"member_account_id"`
	VoucherID       *string `json:"voucher_id"`
	PointsRedeemed  int64   `json:"points_redeemed"`
	PointsEarned    int64   `json:"points_earned"`
	Channel         string  `json:"channel"`
}

// orderResponse is the wire form of an order.
type orderResponse struct {
	PublicCode  string   `json:"public_code"`
	Status      string   `json:"status"`
	TotalAmount int64    `json:"total_amount"`
	ShowtimeID  uint64   `json:"showtime_id"`
	SeatIDs     []uint64 `json:"seat_ids"`
	CreatedAt   string   `json:"created_at"`
	SettledAt   string   `json:"settled_at,omitempty"`
}

func toOrderResponse(o *model.Order) orderResponse {
	resp := orderResponse{
		PublicCode:  o.PublicCode,
		Status:      string(o.Status),
		TotalAmount: o.TotalAmount,
		ShowtimeID:  o.ShowtimeID,
		SeatIDs:     o.SeatIDs,
		CreatedAt:   o.CreatedAt.UTC().Format(time.RFC3339),
	}
	if o.SettledAt != nil {
		resp.SettledAt = o.SettledAt.UTC().Format(time.RFC3339)
	}
	return resp
}

// CreateOrder handles POST /v1/orders.  It mints the order, holds the
// seats and returns the payment payload.  When any seat is taken the whole
// creation fails with 409 and no order is persisted.
func (h *OrderHandler) CreateOrder(c echo.Context) error {
	var body createOrderRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if body.ShowtimeID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "showtime_id is required"})
	}
	if body.TotalAmount <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "total_amount must be positive"})
	}
	if body.PointsRedeemed < 0 || body.PointsEarned < 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "point values must not be negative"})
	}
	seats := dedupeSeats(body.SeatIDs)
	if len(seats) == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "seat_ids is required"})
	}
	origin := model.ChannelSelfService
	if body.Channel == string(model.ChannelCounter) {
		origin = model.ChannelCounter
	}

	o, err := h.Minter.CreateOrder(c.Request().Context(), service.CreateOrderRequest{
		ShowtimeID:      body.ShowtimeID,
		SeatIDs:         seats,
		TotalAmount:     body.TotalAmount,
		MemberAccountID: body.MemberAccountID,
		VoucherID:       body.VoucherID,
		PointsRedeemed:  body.PointsRedeemed,
		PointsEarned:    body.PointsEarned,
		Origin:          origin,
	})
	switch {
	case errors.Is(err, model.ErrSeatUnavailable):
		// The wrapped error names the seat that was taken.
		return c.JSON(http.StatusConflict, echo.Map{"error": "seat_unavailable", "detail": err.Error()})
	case errors.Is(err, model.ErrIdentifierSpaceExhausted):
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "identifier_space_exhausted"})
	case err != nil:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to create order"})
	}

	return c.JSON(http.StatusCreated, echo.Map{
		"order":   toOrderResponse(o),
		"payment": h.Minter.PaymentPayload(o),
	})
}

// Status handles GET /v1/orders/:code/status.  For a still-pending order it
// opportunistically re-runs the matcher over recent unmatched inbound
// transactions, settling when one resolves to this order — the fallback
// path for a webhook that never arrived.
func (h *OrderHandler) Status(c echo.Context) error {
	code := c.Param("code")
	ctx := c.Request().Context()
	o, err := h.Orders.GetByCode(ctx, code)
	if errors.Is(err, model.ErrOrderNotFound) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "order not found"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load order"})
	}

	if o.Status == model.OrderPending && h.Txns != nil {
		if settled := h.trySettleFromUnmatched(c, o); settled {
			if fresh, err := h.Orders.GetByCode(ctx, code); err == nil {
				o = fresh
			}
		}
	}

	return c.JSON(http.StatusOK, echo.Map{"order": toOrderResponse(o)})
}

// trySettleFromUnmatched is best-effort by design: every failure is logged
// and the poll still answers with the current status.
func (h *OrderHandler) trySettleFromUnmatched(c echo.Context, o *model.Order) bool {
	ctx := c.Request().Context()
	since := time.Now().UTC().Add(-h.PollWindow)
	txns, err := h.Txns.FindUnmatchedInbound(ctx, since)
	if err != nil {
		log.Printf("order: poll fallback query failed for %s: %v", o.PublicCode, err)
		return false
	}
	for _, txn := range txns {
		resolved, kind, err := h.Matcher.Resolve(ctx, txn)
		if err != nil || kind == service.MatchNone || kind == service.MatchTerminal {
			continue
		}
		if resolved.PublicCode != o.PublicCode {
			continue
		}
		outcome, err := h.Settler.Settle(ctx, o.PublicCode, txn)
		if err != nil {
			log.Printf("order: poll fallback settle of %s via txn %s failed: %v", o.PublicCode, txn.ExternalTxnID, err)
			return false
		}
		if outcome == service.Settled || outcome == service.AlreadySettled {
			if err := h.Txns.MarkMatched(ctx, txn.ExternalTxnID, o.PublicCode); err != nil {
				log.Printf("order: mark txn %s matched failed: %v", txn.ExternalTxnID, err)
			}
			return true
		}
	}
	return false
}

// Cancel handles POST /v1/orders/:code/cancel.  Cancelling a terminal
// order is an idempotent success that simply reports the current state.
func (h *OrderHandler) Cancel(c echo.Context) error {
	code := c.Param("code")
	ctx := c.Request().Context()
	err := h.Settler.Cancel(ctx, code)
	switch {
	case errors.Is(err, model.ErrOrderNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "order not found"})
	case errors.Is(err, model.ErrAlreadySettled):
		return c.JSON(http.StatusOK, echo.Map{"status": string(model.OrderCompleted)})
	case err != nil:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to cancel order"})
	}
	return c.JSON(http.StatusOK, echo.Map{"status": string(model.OrderCancelled)})
}

// dedupeSeats drops zero and repeated seat ids while keeping order.
func dedupeSeats(ids []uint64) []uint64 {
	seen := make(map[uint64]struct{}, len(ids))
	out := make([]uint64, 0, len(ids))
	for _, id := range ids {
		if id == 0 {
			continue
		}
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}

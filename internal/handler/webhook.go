package handler

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-booking-settlement/internal/model"
	"github.com/iliyamo/cinema-booking-settlement/internal/service"
)

// TxnLog records incoming bank transactions and their match outcomes.
type TxnLog interface {
	Record(ctx context.Context, n model.PaymentNotification) error
	MarkMatched(ctx context.Context, externalTxnID, orderCode string) error
	FindUnmatchedInbound(ctx context.Context, since time.Time) ([]model.PaymentNotification, error)
}

// WebhookHandler receives bank-transfer notifications.  The external
// contract is deliberately asymmetric: only malformed or oversized requests
// are rejected, before any business logic runs; everything else — no match,
// duplicate delivery, internal failure — is acknowledged with {"error": 0}
// so the provider never enters a retry storm.  The precise outcome of each
// transaction is decided by the inner matcher/settlement pipeline and
// logged.
type WebhookHandler struct {
	Matcher      *service.Matcher
	Settler      *service.SettlementProcessor
	Txns         TxnLog
	MaxBodyBytes int64
}

// NewWebhookHandler constructs a WebhookHandler.
func NewWebhookHandler(matcher *service.Matcher, settler *service.SettlementProcessor, txns TxnLog, maxBodyBytes int64) *WebhookHandler {
	if matcher == nil || settler == nil {
		panic("nil dependency passed to NewWebhookHandler")
	}
	if maxBodyBytes <= 0 {
		maxBodyBytes = 1 << 20
	}
	return &WebhookHandler{Matcher: matcher, Settler: settler, Txns: txns, MaxBodyBytes: maxBodyBytes}
}

// Receive handles POST /v1/payments/webhook.
func (h *WebhookHandler) Receive(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, h.MaxBodyBytes+1))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": 1, "message": "unreadable body"})
	}
	if int64(len(body)) > h.MaxBodyBytes {
		return c.JSON(http.StatusRequestEntityTooLarge, echo.Map{"error": 1, "message": "payload too large"})
	}

	txns, err := decodeWebhookPayload(body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": 1, "message": "malformed payload"})
	}

	// From here on nothing may fail toward the provider.
	for _, txn := range txns {
		h.process(c.Request().Context(), txn)
	}
	return c.JSON(http.StatusOK, echo.Map{"error": 0})
}

// process runs the inner pipeline for one normalized transaction.  All
// errors end up in the log, never in the HTTP response.
func (h *WebhookHandler) process(ctx context.Context, txn model.PaymentNotification) {
	if h.Txns != nil {
		if err := h.Txns.Record(ctx, txn); err != nil {
			log.Printf("webhook: record txn %s failed: %v", txn.ExternalTxnID, err)
		}
	}
	if txn.Direction == model.TxnOut {
		return
	}

	o, kind, err := h.Matcher.Resolve(ctx, txn)
	if err != nil {
		log.Printf("webhook: resolve txn %s failed: %v", txn.ExternalTxnID, err)
		return
	}
	switch kind {
	case service.MatchNone:
		log.Printf("webhook: txn %s (amount %d) matched no order", txn.ExternalTxnID, txn.Amount)
		return
	case service.MatchTerminal:
		log.Printf("webhook: txn %s targets terminal order %s; acknowledged as no-op", txn.ExternalTxnID, o.PublicCode)
		return
	}

	outcome, err := h.Settler.Settle(ctx, o.PublicCode, txn)
	if err != nil {
		log.Printf("webhook: settle %s via txn %s failed: %v", o.PublicCode, txn.ExternalTxnID, err)
		return
	}
	if outcome == service.Settled && h.Txns != nil {
		if err := h.Txns.MarkMatched(ctx, txn.ExternalTxnID, o.PublicCode); err != nil {
			log.Printf("webhook: mark txn %s matched failed: %v", txn.ExternalTxnID, err)
		}
	}
	log.Printf("webhook: txn %s -> order %s (outcome %d)", txn.ExternalTxnID, o.PublicCode, outcome)
}

// wireTxn accepts the field spellings the provider has been observed to
// send across payload versions.
type wireTxn struct {
	ID             json.Number `json:"id"`
	TransactionID  string      `json:"transaction_id"`
	ReferenceCode  string      `json:"reference_code"`
	Content        string      `json:"content"`
	Description    string      `json:"description"`
	TransferAmount json.Number `json:"transferAmount"`
	Amount         json.Number `json:"amount"`
	TransferType   string      `json:"transferType"`
	AccountNumber  string      `json:"accountNumber"`
}

// decodeWebhookPayload resolves the provider's payload shapes once, at the
// boundary: a single transaction object, a bare array, or an array nested
// under a versioned wrapper key ("data" or "transactions").  Everything
// downstream works on []model.PaymentNotification only.
func decodeWebhookPayload(body []byte) ([]model.PaymentNotification, error) {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return nil, io.ErrUnexpectedEOF
	}

	var raw []wireTxn
	switch trimmed[0] {
	case '[':
		if err := json.Unmarshal(body, &raw); err != nil {
			return nil, err
		}
	case '{':
		var wrapper struct {
			Data         json.RawMessage `json:"data"`
			Transactions json.RawMessage `json:"transactions"`
		}
		if err := json.Unmarshal(body, &wrapper); err != nil {
			return nil, err
		}
		switch {
		case len(wrapper.Data) > 0:
			if err := json.Unmarshal(wrapper.Data, &raw); err != nil {
				return nil, err
			}
		case len(wrapper.Transactions) > 0:
			if err := json.Unmarshal(wrapper.Transactions, &raw); err != nil {
				return nil, err
			}
		default:
			var single wireTxn
			if err := json.Unmarshal(body, &single); err != nil {
				return nil, err
			}
			raw = []wireTxn{single}
		}
	default:
		return nil, io.ErrUnexpectedEOF
	}

	now := time.Now().UTC()
	out := make([]model.PaymentNotification, 0, len(raw))
	for _, w := range raw {
		n, ok := w.normalize(now)
		if ok {
			out = append(out, n)
		}
	}
	return out, nil
}

// normalize maps one wire transaction onto the internal type.  Entries
// without any transaction id are dropped: they cannot be deduplicated and
// the provider redelivers them with ids anyway.
func (w wireTxn) normalize(receivedAt time.Time) (model.PaymentNotification, bool) {
	id := w.TransactionID
	if id == "" {
		id = w.ID.String()
	}
	if id == "" || id == "0" {
		return model.PaymentNotification{}, false
	}
	desc := w.Content
	if desc == "" {
		desc = w.Description
	}
	dir := model.TxnIn
	if strings.EqualFold(w.TransferType, "out") {
		dir = model.TxnOut
	}
	return model.PaymentNotification{
		ExternalTxnID:       id,
		Description:         desc,
		Amount:              parseAmount(w.TransferAmount, w.Amount),
		Direction:           dir,
		CounterpartyAccount: w.AccountNumber,
		Reference:           strings.TrimSpace(w.ReferenceCode),
		ReceivedAt:          receivedAt,
	}, true
}

// parseAmount takes the first non-empty amount field.  Providers send both
// integers and decimal strings; fractional parts are rounded since the
// currency has no minor subunits on the wire.
func parseAmount(candidates ...json.Number) int64 {
	for _, n := range candidates {
		s := n.String()
		if s == "" {
			continue
		}
		if v, err := n.Int64(); err == nil {
			return v
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return int64(math.Round(f))
		}
	}
	return 0
}

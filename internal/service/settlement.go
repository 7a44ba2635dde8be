package service

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/iliyamo/cinema-booking-settlement/internal/model"
	"github.com/iliyamo/cinema-booking-settlement/internal/queue"
)

// SettlementStore is the transactional slice of the store the processor
// drives.  Settle must be atomic and serialized per order code; Cancel must
// release the order's seats in the same transaction.
type SettlementStore interface {
	Settle(ctx context.Context, orderCode, externalTxnID string, settledAt time.Time) (*model.Order, error)
	Cancel(ctx context.Context, orderCode string) error
}

// TxnDeduper is a fast-path guard against redelivered transaction ids.  It
// is advisory only: the durable guard is the order's terminal status under
// the row lock, so a lost dedupe entry costs one wasted store round trip,
// never a double settlement.
type TxnDeduper interface {
	Seen(ctx context.Context, externalTxnID string) bool
	Mark(ctx context.Context, externalTxnID string)
}

// EventPublisher emits the post-commit settlement event.  Publishing is
// best-effort; failures are logged and never unwind a committed settlement.
type EventPublisher interface {
	PublishOrderSettled(ctx context.Context, ev queue.OrderSettledEvent) error
}

// SettleOutcome reports what a settlement attempt did.
type SettleOutcome int

const (
	// Settled means this call performed the settlement.
	Settled SettleOutcome = iota
	// AlreadySettled means the order was terminal before this call; the
	// attempt is an idempotent success.
	AlreadySettled
	// DuplicateTxn means the transaction id was processed before; nothing
	// was touched.
	DuplicateTxn
)

// SettlementProcessor turns a resolved (order, notification) pair into the
// committed consequences of payment.  It owns nothing itself: atomicity
// lives in the store, and the processor adds idempotency short-circuits and
// post-commit bookkeeping.
type SettlementProcessor struct {
	store  SettlementStore
	dedupe TxnDeduper
	events EventPublisher
}

// NewSettlementProcessor constructs a SettlementProcessor.  dedupe and
// events may be nil; both degrade to disabled.
func NewSettlementProcessor(store SettlementStore, dedupe TxnDeduper, events EventPublisher) *SettlementProcessor {
	return &SettlementProcessor{store: store, dedupe: dedupe, events: events}
}

// Settle applies a confirmed payment to an order.  Terminal orders and
// already-seen transaction ids report success without re-applying any
// effect.  A failure inside the store (typically seat finalize after an
// expiry sweep) is returned as-is with nothing committed; the order stays
// PENDING.
func (p *SettlementProcessor) Settle(ctx context.Context, orderCode string, n model.PaymentNotification) (SettleOutcome, error) {
	if p.dedupe != nil && n.ExternalTxnID != "" && p.dedupe.Seen(ctx, n.ExternalTxnID) {
		return DuplicateTxn, nil
	}

	o, err := p.store.Settle(ctx, orderCode, n.ExternalTxnID, time.Now().UTC())
	if errors.Is(err, model.ErrAlreadySettled) {
		if p.dedupe != nil && n.ExternalTxnID != "" {
			p.dedupe.Mark(ctx, n.ExternalTxnID)
		}
		return AlreadySettled, nil
	}
	if err != nil {
		return Settled, err
	}

	if p.dedupe != nil && n.ExternalTxnID != "" {
		p.dedupe.Mark(ctx, n.ExternalTxnID)
	}
	p.publish(ctx, o)
	return Settled, nil
}

// Cancel delegates to the store's cancel transaction.
func (p *SettlementProcessor) Cancel(ctx context.Context, orderCode string) error {
	return p.store.Cancel(ctx, orderCode)
}

func (p *SettlementProcessor) publish(ctx context.Context, o *model.Order) {
	if p.events == nil || o == nil {
		return
	}
	ev := queue.OrderSettledEvent{
		OrderCode:     o.PublicCode,
		ShowtimeID:    o.ShowtimeID,
		SeatIDs:       o.SeatIDs,
		TotalAmount:   o.TotalAmount,
		OriginChannel: string(o.Origin),
	}
	if o.ExternalTxnID != nil {
		ev.ExternalTxnID = *o.ExternalTxnID
	}
	if o.SettledAt != nil {
		ev.SettledAt = o.SettledAt.UTC().Format(time.RFC3339)
	}
	if err := p.events.PublishOrderSettled(ctx, ev); err != nil {
		log.Printf("settlement: publish order.settled for %s failed: %v", o.PublicCode, err)
	}
}

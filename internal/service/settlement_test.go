package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cinema-booking-settlement/internal/model"
	"github.com/iliyamo/cinema-booking-settlement/internal/queue"
)

type fakeSettlementStore struct {
	settleCalls int
	cancelCalls int
	settleErr   error
	order       *model.Order
}

func (f *fakeSettlementStore) Settle(_ context.Context, orderCode, externalTxnID string, settledAt time.Time) (*model.Order, error) {
	f.settleCalls++
	if f.settleErr != nil {
		return f.order, f.settleErr
	}
	o := *f.order
	o.Status = model.OrderCompleted
	at := settledAt.UTC()
	o.SettledAt = &at
	o.ExternalTxnID = &externalTxnID
	return &o, nil
}

func (f *fakeSettlementStore) Cancel(_ context.Context, _ string) error {
	f.cancelCalls++
	return nil
}

type fakeDeduper struct {
	seen   map[string]bool
	marked []string
}

func (f *fakeDeduper) Seen(_ context.Context, id string) bool { return f.seen[id] }
func (f *fakeDeduper) Mark(_ context.Context, id string)      { f.marked = append(f.marked, id) }

type fakePublisher struct {
	events []queue.OrderSettledEvent
	err    error
}

func (f *fakePublisher) PublishOrderSettled(_ context.Context, ev queue.OrderSettledEvent) error {
	f.events = append(f.events, ev)
	return f.err
}

func settlementFixture() (*fakeSettlementStore, *fakeDeduper, *fakePublisher, *SettlementProcessor) {
	store := &fakeSettlementStore{order: &model.Order{
		PublicCode:  "ONLABC234",
		Status:      model.OrderPending,
		TotalAmount: 150000,
		ShowtimeID:  7,
		SeatIDs:     []uint64{1, 2},
		Origin:      model.ChannelSelfService,
	}}
	dedupe := &fakeDeduper{seen: map[string]bool{}}
	pub := &fakePublisher{}
	return store, dedupe, pub, NewSettlementProcessor(store, dedupe, pub)
}

func txn(id string) model.PaymentNotification {
	return model.PaymentNotification{
		ExternalTxnID: id,
		Amount:        150000,
		Direction:     model.TxnIn,
		ReceivedAt:    time.Now().UTC(),
	}
}

func TestSettlePublishesAndMarks(t *testing.T) {
	store, dedupe, pub, p := settlementFixture()

	outcome, err := p.Settle(context.Background(), "ONLABC234", txn("bank-1"))
	require.NoError(t, err)
	assert.Equal(t, Settled, outcome)
	assert.Equal(t, 1, store.settleCalls)
	assert.Equal(t, []string{"bank-1"}, dedupe.marked)

	require.Len(t, pub.events, 1)
	ev := pub.events[0]
	assert.Equal(t, "ONLABC234", ev.OrderCode)
	assert.Equal(t, "bank-1", ev.ExternalTxnID)
	assert.Equal(t, []uint64{1, 2}, ev.SeatIDs)
	assert.Equal(t, string(model.ChannelSelfService), ev.OriginChannel)
}

func TestSettleTerminalOrderIsIdempotentSuccess(t *testing.T) {
	store, dedupe, pub, p := settlementFixture()
	store.settleErr = model.ErrAlreadySettled

	outcome, err := p.Settle(context.Background(), "ONLABC234", txn("bank-2"))
	require.NoError(t, err)
	assert.Equal(t, AlreadySettled, outcome)
	// No event for a settlement this call did not perform, but the txn id
	// is still marked so the next redelivery short-circuits.
	assert.Empty(t, pub.events)
	assert.Equal(t, []string{"bank-2"}, dedupe.marked)
}

func TestSettleDuplicateTxnShortCircuits(t *testing.T) {
	store, dedupe, pub, p := settlementFixture()
	dedupe.seen["bank-3"] = true

	outcome, err := p.Settle(context.Background(), "ONLABC234", txn("bank-3"))
	require.NoError(t, err)
	assert.Equal(t, DuplicateTxn, outcome)
	assert.Zero(t, store.settleCalls)
	assert.Empty(t, pub.events)
}

func TestSettleStoreFailurePropagatesWithoutEvent(t *testing.T) {
	store, dedupe, pub, p := settlementFixture()
	store.settleErr = model.ErrInvalidSeatState

	_, err := p.Settle(context.Background(), "ONLABC234", txn("bank-4"))
	assert.ErrorIs(t, err, model.ErrInvalidSeatState)
	assert.Empty(t, pub.events)
	assert.Empty(t, dedupe.marked)
}

func TestSettlePublishFailureDoesNotFailSettlement(t *testing.T) {
	_, _, pub, p := settlementFixture()
	pub.err = assert.AnError

	outcome, err := p.Settle(context.Background(), "ONLABC234", txn("bank-5"))
	require.NoError(t, err)
	assert.Equal(t, Settled, outcome)
}

func TestSettleNilDedupeAndPublisher(t *testing.T) {
	store := &fakeSettlementStore{order: &model.Order{PublicCode: "ONLABC234", Status: model.OrderPending}}
	p := NewSettlementProcessor(store, nil, nil)

	outcome, err := p.Settle(context.Background(), "ONLABC234", txn("bank-6"))
	require.NoError(t, err)
	assert.Equal(t, Settled, outcome)
}

func TestCancelDelegates(t *testing.T) {
	store, _, _, p := settlementFixture()
	require.NoError(t, p.Cancel(context.Background(), "ONLABC234"))
	assert.Equal(t, 1, store.cancelCalls)
}

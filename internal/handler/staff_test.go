package handler

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cinema-booking-settlement/internal/model"
	"github.com/iliyamo/cinema-booking-settlement/internal/service"
)

func staffFixture(store *ordStore) *StaffHandler {
	return NewStaffHandler(store, service.NewSettlementProcessor(store, nil, nil))
}

func TestStaffSettleCashOrder(t *testing.T) {
	store := &ordStore{orders: map[string]*model.Order{
		"CTRXY2345": {PublicCode: "CTRXY2345", Status: model.OrderPending, TotalAmount: 90000, CreatedAt: time.Now().UTC()},
	}}
	h := staffFixture(store)

	// No body: cash at the counter.
	c, rec := newContext(http.MethodPost, "/v1/staff/orders/CTRXY2345/settle", "", "CTRXY2345")
	require.NoError(t, h.Settle(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "COMPLETED")

	o := store.orders["CTRXY2345"]
	assert.Equal(t, model.OrderCompleted, o.Status)
	require.NotNil(t, o.ExternalTxnID)
	assert.Equal(t, "COUNTER-CTRXY2345", *o.ExternalTxnID)
}

func TestStaffSettleWithTerminalTxnID(t *testing.T) {
	store := &ordStore{orders: map[string]*model.Order{
		"CTRXY2345": {PublicCode: "CTRXY2345", Status: model.OrderPending, TotalAmount: 90000, CreatedAt: time.Now().UTC()},
	}}
	h := staffFixture(store)

	c, rec := newContext(http.MethodPost, "/v1/staff/orders/CTRXY2345/settle",
		`{"external_txn_id":"POS-778","amount":90000}`, "CTRXY2345")
	require.NoError(t, h.Settle(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, store.orders["CTRXY2345"].ExternalTxnID)
	assert.Equal(t, "POS-778", *store.orders["CTRXY2345"].ExternalTxnID)
}

func TestStaffSettleIsIdempotent(t *testing.T) {
	store := &ordStore{orders: map[string]*model.Order{
		"CTRXY2345": {PublicCode: "CTRXY2345", Status: model.OrderCompleted, TotalAmount: 90000, CreatedAt: time.Now().UTC()},
	}}
	h := staffFixture(store)

	c, rec := newContext(http.MethodPost, "/v1/staff/orders/CTRXY2345/settle", "", "CTRXY2345")
	require.NoError(t, h.Settle(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "COMPLETED")
}

func TestStaffSettleUnknownOrder(t *testing.T) {
	h := staffFixture(&ordStore{orders: map[string]*model.Order{}})

	c, rec := newContext(http.MethodPost, "/v1/staff/orders/NOPE/settle", "", "NOPE")
	require.NoError(t, h.Settle(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

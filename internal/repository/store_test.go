package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cinema-booking-settlement/internal/model"
)

var orderCols = []string{
	"id", "public_code", "status", "total_amount", "showtime_id", "member_account_id",
	"voucher_id", "points_redeemed", "points_earned", "origin_channel", "created_at",
	"settled_at", "external_txn_id",
}

// orderRow builds the row the FOR UPDATE lock returns.  member and voucher
// are nil for guests and voucher-less orders.
func orderRow(code string, status model.OrderStatus, member, voucher interface{}, redeemed, earned int64) *sqlmock.Rows {
	return sqlmock.NewRows(orderCols).AddRow(
		int64(1), code, string(status), int64(150000), int64(7), member, voucher,
		redeemed, earned, string(model.ChannelSelfService), time.Now().UTC(), nil, nil)
}

func newStoreWithMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(db), mock
}

func expectLock(mock sqlmock.Sqlmock, code string, row *sqlmock.Rows, seatID int64) {
	mock.ExpectQuery(`FROM orders WHERE public_code = \? FOR UPDATE`).
		WithArgs(code).
		WillReturnRows(row)
	mock.ExpectQuery(`SELECT seat_id FROM order_seats WHERE order_id = \? ORDER BY position`).
		WillReturnRows(sqlmock.NewRows([]string{"seat_id"}).AddRow(seatID))
}

func TestSettleUsedVoucherIsSilentNoOp(t *testing.T) {
	store, mock := newStoreWithMock(t)

	mock.ExpectBegin()
	expectLock(mock, "ONLABC234", orderRow("ONLABC234", model.OrderPending, nil, "V-100", 0, 0), 11)
	mock.ExpectExec(`UPDATE seat_slots\s+SET status = 'BOOKED'`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	// The voucher was consumed by an earlier settlement attempt: the guarded
	// update touches no row, and the settlement still completes.
	mock.ExpectExec(`UPDATE vouchers SET is_used = 1\s+WHERE id = \? AND is_used = 0 AND expires_at > \?`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`UPDATE orders SET status = 'COMPLETED'`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	o, err := store.Settle(context.Background(), "ONLABC234", "bank-1", time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, model.OrderCompleted, o.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSettleAppliesClampedPointsDelta(t *testing.T) {
	store, mock := newStoreWithMock(t)

	// 200 redeemed, 50 earned: settlement applies a -150 delta through the
	// GREATEST clamp so the balance can never go negative.
	mock.ExpectBegin()
	expectLock(mock, "ONLABC234", orderRow("ONLABC234", model.OrderPending, int64(9), nil, 200, 50), 11)
	mock.ExpectExec(`UPDATE seat_slots\s+SET status = 'BOOKED'`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`SET point_balance = GREATEST\(0, point_balance \+ \?\)`).
		WithArgs(int64(-150), int64(9)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE orders SET status = 'COMPLETED'`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	_, err := store.Settle(context.Background(), "ONLABC234", "bank-2", time.Now().UTC())
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSettleTerminalOrderRollsBackWithoutWrites(t *testing.T) {
	store, mock := newStoreWithMock(t)

	mock.ExpectBegin()
	expectLock(mock, "ONLABC234", orderRow("ONLABC234", model.OrderCompleted, nil, nil, 0, 0), 11)
	mock.ExpectRollback()

	o, err := store.Settle(context.Background(), "ONLABC234", "bank-3", time.Now().UTC())
	assert.ErrorIs(t, err, model.ErrAlreadySettled)
	require.NotNil(t, o)
	assert.Equal(t, model.OrderCompleted, o.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSettleSeatFinalizeFailureRollsBack(t *testing.T) {
	store, mock := newStoreWithMock(t)

	// The hold expired and the sweep released the seat: the conditional
	// BOOKED update misses and the whole settlement unwinds.
	mock.ExpectBegin()
	expectLock(mock, "ONLABC234", orderRow("ONLABC234", model.OrderPending, nil, "V-100", 0, 0), 11)
	mock.ExpectExec(`UPDATE seat_slots\s+SET status = 'BOOKED'`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := store.Settle(context.Background(), "ONLABC234", "bank-4", time.Now().UTC())
	assert.ErrorIs(t, err, model.ErrInvalidSeatState)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCancelReleasesHeldSeats(t *testing.T) {
	store, mock := newStoreWithMock(t)

	mock.ExpectBegin()
	expectLock(mock, "ONLABC234", orderRow("ONLABC234", model.OrderPending, nil, nil, 0, 0), 11)
	mock.ExpectExec(`UPDATE orders SET status = 'CANCELLED'`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`SET status = 'AVAILABLE', holder_code = NULL`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.Cancel(context.Background(), "ONLABC234")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

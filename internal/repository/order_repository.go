package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/cinema-booking-settlement/internal/model"
)

// OrderRepo is the booking ledger: it exclusively owns order rows and their
// order_seats children.  Status only ever moves PENDING -> COMPLETED or
// PENDING -> CANCELLED; both targets are terminal.  The lookup primitives
// here are exactly what the payment matcher depends on.
type OrderRepo struct {
	db *sql.DB
}

// NewOrderRepo returns an OrderRepo bound to the provided database.
func NewOrderRepo(db *sql.DB) *OrderRepo { return &OrderRepo{db: db} }

// DB exposes the underlying handle for transaction management.
func (r *OrderRepo) DB() *sql.DB { return r.db }

// CodeExists reports whether a public code is already taken.  The minter
// calls this before inserting; the unique index on public_code remains the
// authoritative guard against races.
func (r *OrderRepo) CodeExists(ctx context.Context, code string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, `SELECT 1 FROM orders WHERE public_code = ?`, code).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// CreateTx inserts the order row plus one order_seats row per seat inside
// the provided transaction.  A lost uniqueness race on public_code is
// reported as model.ErrDuplicateCode so the minter can regenerate.  The
// order's ID and CreatedAt are populated on success.
func (r *OrderRepo) CreateTx(ctx context.Context, tx *sql.Tx, o *model.Order) error {
	now := time.Now().UTC()
	const ins = `INSERT INTO orders
	             (public_code, status, total_amount, showtime_id, member_account_id, voucher_id,
	              points_redeemed, points_earned, origin_channel, created_at)
	             VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := tx.ExecContext(ctx, ins,
		o.PublicCode, model.OrderPending, o.TotalAmount, o.ShowtimeID,
		o.MemberAccountID, o.VoucherID, o.PointsRedeemed, o.PointsEarned,
		o.Origin, now.Format("2006-01-02 15:04:05"))
	if err != nil {
		var me *mysql.MySQLError
		if errors.As(err, &me) && me.Number == 1062 {
			return model.ErrDuplicateCode
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	o.ID = uint64(id)
	o.Status = model.OrderPending
	o.CreatedAt = now
	if len(o.SeatIDs) > 0 {
		q := `INSERT INTO order_seats (order_id, showtime_id, seat_id, position) VALUES `
		args := make([]interface{}, 0, len(o.SeatIDs)*4)
		for i, sid := range o.SeatIDs {
			if i > 0 {
				q += ","
			}
			q += "(?, ?, ?, ?)"
			args = append(args, o.ID, o.ShowtimeID, sid, i)
		}
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return err
		}
	}
	return nil
}

const orderColumns = `id, public_code, status, total_amount, showtime_id, member_account_id,
	voucher_id, points_redeemed, points_earned, origin_channel, created_at, settled_at, external_txn_id`

// scanOrder reads one order row from any row scanner.
func scanOrder(row *sql.Row) (*model.Order, error) {
	var o model.Order
	var member sql.NullInt64
	var voucher, txn sql.NullString
	var settled sql.NullTime
	err := row.Scan(&o.ID, &o.PublicCode, &o.Status, &o.TotalAmount, &o.ShowtimeID,
		&member, &voucher, &o.PointsRedeemed, &o.PointsEarned, &o.Origin,
		&o.CreatedAt, &settled, &txn)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	if member.Valid {
		m := uint64(member.Int64)
		o.MemberAccountID = &m
	}
	if voucher.Valid {
		o.VoucherID = &voucher.String
	}
	if settled.Valid {
		t := settled.Time
		o.SettledAt = &t
	}
	if txn.Valid {
		o.ExternalTxnID = &txn.String
	}
	return &o, nil
}

// seatIDs loads the ordered seat list of an order.  It works both inside
// and outside a transaction depending on the querier passed in.
func seatIDs(ctx context.Context, q interface {
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
}, orderID uint64) ([]uint64, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT seat_id FROM order_seats WHERE order_id = ? ORDER BY position`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uint64
	for rows.Next() {
		var sid uint64
		if err := rows.Scan(&sid); err != nil {
			return nil, err
		}
		ids = append(ids, sid)
	}
	return ids, rows.Err()
}

// GetByCode fetches one order with its seats by exact public code.
func (r *OrderRepo) GetByCode(ctx context.Context, code string) (*model.Order, error) {
	o, err := scanOrder(r.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE public_code = ?`, code))
	if err != nil {
		return nil, err
	}
	if o.SeatIDs, err = seatIDs(ctx, r.db, o.ID); err != nil {
		return nil, err
	}
	return o, nil
}

// FindByCodePattern fetches one order by public code, matched
// case-insensitively.  Transfer descriptions frequently arrive upper- or
// lower-cased by the banking provider, so the matcher cannot rely on exact
// case.
func (r *OrderRepo) FindByCodePattern(ctx context.Context, code string) (*model.Order, error) {
	o, err := scanOrder(r.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE UPPER(public_code) = UPPER(?)`, code))
	if err != nil {
		return nil, err
	}
	if o.SeatIDs, err = seatIDs(ctx, r.db, o.ID); err != nil {
		return nil, err
	}
	return o, nil
}

// FindByAmountAndRecency returns PENDING orders whose total does not exceed
// maxTotal, most recent first.  When since is non-nil only orders created at
// or after it are considered.  The matcher applies the exact tolerance band
// on top of this superset.
func (r *OrderRepo) FindByAmountAndRecency(ctx context.Context, maxTotal int64, since *time.Time) ([]model.Order, error) {
	q := `SELECT ` + orderColumns + ` FROM orders
	      WHERE status = 'PENDING' AND total_amount <= ?`
	args := []interface{}{maxTotal}
	if since != nil {
		q += ` AND created_at >= ?`
		args = append(args, since.UTC().Format("2006-01-02 15:04:05"))
	}
	q += ` ORDER BY created_at DESC LIMIT 50`
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var orders []model.Order
	for rows.Next() {
		var o model.Order
		var member sql.NullInt64
		var voucher, txn sql.NullString
		var settled sql.NullTime
		if err := rows.Scan(&o.ID, &o.PublicCode, &o.Status, &o.TotalAmount, &o.ShowtimeID,
			&member, &voucher, &o.PointsRedeemed, &o.PointsEarned, &o.Origin,
			&o.CreatedAt, &settled, &txn); err != nil {
			return nil, err
		}
		if member.Valid {
			m := uint64(member.Int64)
			o.MemberAccountID = &m
		}
		if voucher.Valid {
			o.VoucherID = &voucher.String
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// LockByCodeTx fetches one order FOR UPDATE, serializing settlement and
// cancellation per order: the second of two concurrent settlers blocks here
// and then observes the terminal status.
func (r *OrderRepo) LockByCodeTx(ctx context.Context, tx *sql.Tx, code string) (*model.Order, error) {
	o, err := scanOrder(tx.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE public_code = ? FOR UPDATE`, code))
	if err != nil {
		return nil, err
	}
	if o.SeatIDs, err = seatIDs(ctx, tx, o.ID); err != nil {
		return nil, err
	}
	return o, nil
}

// CompleteTx moves a PENDING order to COMPLETED, stamping settlement time
// and the external transaction id.  The status guard in the WHERE clause
// keeps the transition one-way even without the row lock.
func (r *OrderRepo) CompleteTx(ctx context.Context, tx *sql.Tx, orderID uint64, settledAt time.Time, externalTxnID string) error {
	const q = `UPDATE orders SET status = 'COMPLETED', settled_at = ?, external_txn_id = ?
	           WHERE id = ? AND status = 'PENDING'`
	res, err := tx.ExecContext(ctx, q, settledAt.UTC().Format("2006-01-02 15:04:05"), externalTxnID, orderID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return model.ErrAlreadySettled
	}
	return nil
}

// CancelTx moves a PENDING order to CANCELLED.
func (r *OrderRepo) CancelTx(ctx context.Context, tx *sql.Tx, orderID uint64) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE orders SET status = 'CANCELLED' WHERE id = ? AND status = 'PENDING'`, orderID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return model.ErrAlreadySettled
	}
	return nil
}

// FindExpiredPending lists PENDING orders created before the cutoff, oldest
// first, for the expiry sweep.  Seats are loaded so the sweep can release
// them.
func (r *OrderRepo) FindExpiredPending(ctx context.Context, before time.Time, limit int) ([]model.Order, error) {
	const q = `SELECT ` + orderColumns + ` FROM orders
	           WHERE status = 'PENDING' AND created_at < ?
	           ORDER BY created_at ASC LIMIT ?`
	rows, err := r.db.QueryContext(ctx, q, before.UTC().Format("2006-01-02 15:04:05"), limit)
	if err != nil {
		return nil, err
	}
	var orders []model.Order
	for rows.Next() {
		var o model.Order
		var member sql.NullInt64
		var voucher, txn sql.NullString
		var settled sql.NullTime
		if err := rows.Scan(&o.ID, &o.PublicCode, &o.Status, &o.TotalAmount, &o.ShowtimeID,
			&member, &voucher, &o.PointsRedeemed, &o.PointsEarned, &o.Origin,
			&o.CreatedAt, &settled, &txn); err != nil {
			rows.Close()
			return nil, err
		}
		orders = append(orders, o)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	for i := range orders {
		if orders[i].SeatIDs, err = seatIDs(ctx, r.db, orders[i].ID); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/cinema-booking-settlement/internal/model"
)

// SeatSlotRepo provides data access to the seat_slots table.  Every status
// transition is a single conditional UPDATE keyed on the current status and
// verified through RowsAffected, so two concurrent transitions on the same
// seat can never both succeed.  Multi-seat operations run inside a caller
// supplied transaction and are all-or-nothing: the caller must roll back
// when any seat fails.
type SeatSlotRepo struct {
	db *sql.DB
}

// NewSeatSlotRepo returns a SeatSlotRepo bound to the provided database.
func NewSeatSlotRepo(db *sql.DB) *SeatSlotRepo { return &SeatSlotRepo{db: db} }

// DB exposes the underlying handle for transaction management.
func (r *SeatSlotRepo) DB() *sql.DB { return r.db }

// HoldTx marks every listed seat HELD for the given order.  Each seat is
// claimed with a compare-and-set on AVAILABLE; the first seat that is not
// AVAILABLE aborts with model.ErrSeatUnavailable and the caller is expected
// to roll back the transaction so that no partial hold survives.
func (r *SeatSlotRepo) HoldTx(ctx context.Context, tx *sql.Tx, showtimeID uint64, seatIDs []uint64, orderCode string, heldUntil time.Time) error {
	const q = `UPDATE seat_slots
	           SET status = 'HELD', holder_code = ?, held_until = ?
	           WHERE showtime_id = ? AND seat_id = ? AND status = 'AVAILABLE'`
	until := heldUntil.UTC().Format("2006-01-02 15:04:05")
	for _, sid := range seatIDs {
		res, err := tx.ExecContext(ctx, q, orderCode, until, showtimeID, sid)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n != 1 {
			return fmt.Errorf("seat %d for showtime %d: %w", sid, showtimeID, model.ErrSeatUnavailable)
		}
	}
	return nil
}

// ReleaseTx transitions the listed seats HELD -> AVAILABLE.  Seats that are
// already AVAILABLE (or BOOKED) are simply left untouched: release is an
// idempotent no-op so the expiry sweep and explicit cancellation can race
// without error.
func (r *SeatSlotRepo) ReleaseTx(ctx context.Context, tx *sql.Tx, showtimeID uint64, seatIDs []uint64) error {
	if len(seatIDs) == 0 {
		return nil
	}
	q := `UPDATE seat_slots
	      SET status = 'AVAILABLE', holder_code = NULL, held_until = NULL
	      WHERE showtime_id = ? AND status = 'HELD' AND seat_id IN (` + placeholders(len(seatIDs)) + `)`
	args := make([]interface{}, 0, len(seatIDs)+1)
	args = append(args, showtimeID)
	for _, sid := range seatIDs {
		args = append(args, sid)
	}
	_, err := tx.ExecContext(ctx, q, args...)
	return err
}

// FinalizeTx transitions the listed seats HELD -> BOOKED, but only when the
// hold belongs to the given order.  Any seat in another state (released by
// the sweep, booked by an administrative action) fails the whole call with
// model.ErrInvalidSeatState; the caller rolls back.
func (r *SeatSlotRepo) FinalizeTx(ctx context.Context, tx *sql.Tx, showtimeID uint64, seatIDs []uint64, orderCode string) error {
	const q = `UPDATE seat_slots
	           SET status = 'BOOKED', held_until = NULL
	           WHERE showtime_id = ? AND seat_id = ? AND status = 'HELD' AND holder_code = ?`
	for _, sid := range seatIDs {
		res, err := tx.ExecContext(ctx, q, showtimeID, sid, orderCode)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n != 1 {
			return fmt.Errorf("seat %d for showtime %d not held by %s: %w", sid, showtimeID, orderCode, model.ErrInvalidSeatState)
		}
	}
	return nil
}

// ListByShowtime returns the current status of every seat slot of a
// showtime, ordered by seat id, for display purposes.
func (r *SeatSlotRepo) ListByShowtime(ctx context.Context, showtimeID uint64) ([]model.SeatSlot, error) {
	const q = `SELECT id, showtime_id, seat_id, status, holder_code, held_until, updated_at
	           FROM seat_slots WHERE showtime_id = ? ORDER BY seat_id`
	rows, err := r.db.QueryContext(ctx, q, showtimeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var slots []model.SeatSlot
	for rows.Next() {
		var s model.SeatSlot
		var holder sql.NullString
		var until sql.NullTime
		if err := rows.Scan(&s.ID, &s.ShowtimeID, &s.SeatID, &s.Status, &holder, &until, &s.UpdatedAt); err != nil {
			return nil, err
		}
		if holder.Valid {
			s.HolderCode = &holder.String
		}
		if until.Valid {
			t := until.Time
			s.HeldUntil = &t
		}
		slots = append(slots, s)
	}
	return slots, rows.Err()
}

// placeholders builds a "?, ?, ?" fragment for IN clauses.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

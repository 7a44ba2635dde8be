package repository

import (
	"context"
	"database/sql"
	"time"
)

// VoucherRepo provides data access to vouchers.
type VoucherRepo struct {
	db *sql.DB
}

// NewVoucherRepo returns a VoucherRepo bound to the provided database.
func NewVoucherRepo(db *sql.DB) *VoucherRepo { return &VoucherRepo{db: db} }

// ConsumeTx flips an unused, unexpired voucher to used and reports whether
// this call was the one that consumed it.  A voucher that is missing,
// already used or expired yields (false, nil): settlement proceeds without
// the voucher's effect being re-applied, which is what makes redelivered
// notifications safe.
func (r *VoucherRepo) ConsumeTx(ctx context.Context, tx *sql.Tx, voucherID string, now time.Time) (bool, error) {
	const q = `UPDATE vouchers SET is_used = 1
	           WHERE id = ? AND is_used = 0 AND expires_at > ?`
	res, err := tx.ExecContext(ctx, q, voucherID, now.UTC().Format("2006-01-02 15:04:05"))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

package repository

import (
	"context"
	"database/sql"
)

// MemberRepo provides data access to member loyalty accounts.  Balances are
// only ever mutated inside the settlement transaction.
type MemberRepo struct {
	db *sql.DB
}

// NewMemberRepo returns a MemberRepo bound to the provided database.
func NewMemberRepo(db *sql.DB) *MemberRepo { return &MemberRepo{db: db} }

// AdjustPointsTx applies a signed delta to the account's point balance,
// clamped at zero, in a single atomic UPDATE.  The clamp is deliberate:
// redemption was validated when the order was created and settlement honors
// it even when the balance dropped in the meantime, but the balance itself
// must never go negative.
func (r *MemberRepo) AdjustPointsTx(ctx context.Context, tx *sql.Tx, accountID uint64, delta int64) error {
	const q = `UPDATE member_accounts
	           SET point_balance = GREATEST(0, point_balance + ?)
	           WHERE id = ?`
	_, err := tx.ExecContext(ctx, q, delta, accountID)
	return err
}
